package roles

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/academyhub/academyhub/internal/authz"
	"github.com/academyhub/academyhub/internal/rbac"
	"github.com/academyhub/academyhub/internal/shared"
	"github.com/academyhub/academyhub/internal/view"
)

// Handler manages role management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	guard     *authz.Guard
	respond   *authz.Responder
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, guard *authz.Guard, respond *authz.Responder) *Handler {
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, guard: guard, respond: respond}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermissionMiddleware(h.respond, rbac.ResPermissions, rbac.ActionRead))
		r.Get("/matrix", h.showMatrix)
	})
	r.With(h.guard.RequirePermissionMiddleware(h.respond, rbac.ResPermissions, rbac.ActionManage)).Post("/matrix", h.updateMatrix)
	r.With(h.guard.RequireAdminMiddleware(h.respond)).Get("/audit", h.showAudit)

	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermissionMiddleware(h.respond, rbac.ResRoles, rbac.ActionRead))
		r.Get("/", h.listRoles)
		r.Get("/{id}", h.showRole)
	})
	r.With(h.guard.RequirePermissionMiddleware(h.respond, rbac.ResRoles, rbac.ActionCreate)).Post("/", h.createRole)
	r.With(h.guard.RequirePermissionMiddleware(h.respond, rbac.ResRoles, rbac.ActionWrite)).Post("/{id}", h.updateRole)
	r.With(h.guard.RequirePermissionMiddleware(h.respond, rbac.ResRoles, rbac.ActionDelete)).Post("/{id}/delete", h.deleteRole)
}

type formErrors map[string]string

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roles, err := h.service.ListRoles(ctx)
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		h.render(w, r, "pages/roles.html", "Roles", map[string]any{"Errors": formErrors{"general": shared.UserSafeMessage(err)}}, http.StatusInternalServerError)
		return
	}
	perms, err := h.service.ListPermissions(ctx)
	if err != nil {
		h.respond.Respond(w, r, err)
		return
	}
	h.render(w, r, "pages/roles.html", "Roles", map[string]any{
		"Roles":       roles,
		"Permissions": perms,
		"CanCreate":   h.guard.CheckCurrentUserPermission(ctx, rbac.ResRoles, rbac.ActionCreate),
		"Errors":      formErrors{},
	}, http.StatusOK)
}

func (h *Handler) showRole(w http.ResponseWriter, r *http.Request) {
	h.renderRole(w, r, chi.URLParam(r, "id"), formErrors{}, http.StatusOK)
}

func (h *Handler) renderRole(w http.ResponseWriter, r *http.Request, id string, errs formErrors, status int) {
	ctx := r.Context()
	role, err := h.service.GetRole(ctx, id)
	if err != nil {
		h.respond.Respond(w, r, notFound(err))
		return
	}
	perms, err := h.service.ListPermissions(ctx)
	if err != nil {
		h.respond.Respond(w, r, err)
		return
	}
	selected := make(map[string]bool, len(role.PermissionIDs))
	for _, id := range role.PermissionIDs {
		selected[id] = true
	}
	h.render(w, r, "pages/role.html", role.Name, map[string]any{
		"Role":        role,
		"Permissions": perms,
		"Selected":    selected,
		"CanEdit":     h.guard.CheckCurrentUserPermission(ctx, rbac.ResRoles, rbac.ActionWrite),
		"CanDelete":   h.guard.CheckCurrentUserPermission(ctx, rbac.ResRoles, rbac.ActionDelete),
		"Errors":      errs,
	}, status)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	principal := authz.PrincipalFromContext(ctx)
	role, err := h.service.CreateRole(ctx, r.PostFormValue("name"), r.PostFormValue("description"), r.PostForm["permission_ids"], principal.UserID)
	if err != nil {
		h.redirectWithFlash(w, r, "/roles", "error", err.Error())
		return
	}
	h.redirectWithFlash(w, r, "/roles/"+role.ID, "success", "Role created")
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	principal := authz.PrincipalFromContext(ctx)
	if _, err := h.service.UpdateRole(ctx, id, r.PostFormValue("name"), r.PostFormValue("description"), r.PostForm["permission_ids"], principal.UserID); err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			if _, gerr := h.service.GetRole(ctx, id); gerr != nil {
				h.respond.Respond(w, r, notFound(gerr))
				return
			}
		}
		h.renderRole(w, r, id, formErrors{"general": err.Error()}, http.StatusBadRequest)
		return
	}
	h.redirectWithFlash(w, r, "/roles/"+id, "success", "Role updated")
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal := authz.PrincipalFromContext(ctx)
	if err := h.service.DeleteRole(ctx, chi.URLParam(r, "id"), principal.UserID); err != nil {
		h.respond.Respond(w, r, notFound(err))
		return
	}
	h.redirectWithFlash(w, r, "/roles", "success", "Role deleted")
}

type matrixRow struct {
	Resource rbac.RegisteredResource
	Allowed  map[rbac.Action]bool
}

func (h *Handler) showMatrix(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	role := rbac.UserRole(r.URL.Query().Get("role"))
	if role == "" {
		role = rbac.RoleManager
	}
	if !role.Valid() {
		h.respond.Respond(w, r, notFound(rbac.ErrUnknownRole))
		return
	}
	rp, err := h.service.Matrix(ctx, role)
	if err != nil {
		h.respond.Respond(w, r, err)
		return
	}
	resources, err := h.service.ListResources(ctx)
	if err != nil {
		h.respond.Respond(w, r, err)
		return
	}
	rows := make([]matrixRow, 0, len(resources))
	for _, res := range resources {
		allowed := make(map[rbac.Action]bool)
		for _, a := range rp.Matrix[res.Key] {
			allowed[a] = true
		}
		rows = append(rows, matrixRow{Resource: res, Allowed: allowed})
	}
	h.render(w, r, "pages/matrix.html", "Permission matrix", map[string]any{
		"Role":      role,
		"UserRoles": rbac.UserRoles(),
		"Actions":   rbac.Actions(),
		"Rows":      rows,
		"Matrix":    rp,
		"CanManage": h.guard.CheckCurrentUserPermission(ctx, rbac.ResPermissions, rbac.ActionManage),
	}, http.StatusOK)
}

func (h *Handler) updateMatrix(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	principal := authz.PrincipalFromContext(ctx)
	role := rbac.UserRole(r.PostFormValue("role"))
	matrix, err := ParseMatrixForm(r.PostForm["cell"])
	if err == nil {
		_, err = h.service.UpdateMatrix(ctx, role, matrix, principal.UserID)
	}
	target := "/roles/matrix?role=" + string(role)
	if err != nil {
		h.redirectWithFlash(w, r, target, "error", err.Error())
		return
	}
	h.logger.Info("role matrix updated", slog.String("role", string(role)), slog.String("by", principal.UserID))
	h.redirectWithFlash(w, r, target, "success", "Permissions saved")
}

// ParseMatrixForm converts "resource:action" cells into a matrix.
func ParseMatrixForm(cells []string) (map[string][]rbac.Action, error) {
	matrix := make(map[string][]rbac.Action)
	for _, cell := range cells {
		g, err := rbac.ParseGrant(cell)
		if err != nil {
			return nil, err
		}
		matrix[g.ResourceKey] = append(matrix[g.ResourceKey], g.Action)
	}
	return matrix, nil
}

const auditPerPage = 50

func (h *Handler) showAudit(w http.ResponseWriter, r *http.Request) {
	logs, page, err := h.service.AuditPage(r.Context(), shared.ParsePage(r.URL.Query().Get("page")), auditPerPage)
	if err != nil {
		h.respond.Respond(w, r, err)
		return
	}
	h.render(w, r, "pages/audit.html", "Audit log", map[string]any{"Logs": logs, "Page": page}, http.StatusOK)
}

// notFound maps rbac lookups onto the shared not-found sentinel.
func notFound(err error) error {
	if errors.Is(err, rbac.ErrNotFound) || errors.Is(err, rbac.ErrUnknownRole) {
		return errors.Join(err, shared.ErrNotFound)
	}
	return err
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template, title string, data map[string]any, status int) {
	if err := h.templates.Render(w, status, template, view.NewTemplateData(r, h.csrf, title, data)); err != nil {
		h.logger.Error("render template", slog.String("template", template), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, path, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, shared.LocalePath(shared.LocaleFromContext(r.Context()), path), http.StatusSeeOther)
}
