package roles

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/academyhub/academyhub/internal/authz"
	"github.com/academyhub/academyhub/internal/rbac"
	"github.com/academyhub/academyhub/internal/shared"
	"github.com/academyhub/academyhub/internal/view"
)

// PermissionsHandler serves the permission and registered resource lists.
type PermissionsHandler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	guard     *authz.Guard
	respond   *authz.Responder
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, guard *authz.Guard, respond *authz.Responder) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, service: service, templates: templates, csrf: csrf, guard: guard, respond: respond}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermissionMiddleware(h.respond, rbac.ResPermissions, rbac.ActionRead))
		r.Get("/", h.listPermissions)
		r.Get("/resources", h.listResources)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAdminMiddleware(h.respond))
		r.Post("/", h.createPermission)
		r.Post("/resources", h.registerResource)
	})
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.respond.Respond(w, r, err)
		return
	}
	h.render(w, r, "pages/permissions.html", "Permissions", map[string]any{
		"Permissions": perms,
		"Actions":     rbac.Actions(),
		"IsAdmin":     authz.PrincipalFromContext(r.Context()).IsAdmin(),
	})
}

func (h *PermissionsHandler) listResources(w http.ResponseWriter, r *http.Request) {
	resources, err := h.service.ListResources(r.Context())
	if err != nil {
		h.respond.Respond(w, r, err)
		return
	}
	h.render(w, r, "pages/resources.html", "Resources", map[string]any{
		"Resources": resources,
		"Types":     []rbac.ResourceType{rbac.ResourcePage, rbac.ResourceModule, rbac.ResourceEntity},
		"Actions":   rbac.Actions(),
		"IsAdmin":   authz.PrincipalFromContext(r.Context()).IsAdmin(),
	})
}

func (h *PermissionsHandler) createPermission(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	action, err := rbac.ParseAction(r.PostFormValue("action"))
	if err == nil {
		_, err = h.service.EnsurePermission(ctx, r.PostFormValue("resource"), action, r.PostFormValue("description"), authz.PrincipalFromContext(ctx).UserID)
	}
	if err != nil {
		h.redirectWithFlash(w, r, "/permissions", "error", err.Error())
		return
	}
	h.redirectWithFlash(w, r, "/permissions", "success", "Permission saved")
}

func (h *PermissionsHandler) registerResource(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	var actions []rbac.Action
	for _, raw := range r.PostForm["actions"] {
		a, err := rbac.ParseAction(raw)
		if err != nil {
			h.redirectWithFlash(w, r, "/permissions/resources", "error", err.Error())
			return
		}
		actions = append(actions, a)
	}
	res := rbac.RegisteredResource{
		Key:            strings.TrimSpace(r.PostFormValue("key")),
		Type:           rbac.ResourceType(r.PostFormValue("type")),
		Description:    strings.TrimSpace(r.PostFormValue("description")),
		DefaultActions: actions,
	}
	if err := h.service.RegisterResource(ctx, res, authz.PrincipalFromContext(ctx).UserID); err != nil {
		h.redirectWithFlash(w, r, "/permissions/resources", "error", err.Error())
		return
	}
	h.redirectWithFlash(w, r, "/permissions/resources", "success", "Resource registered")
}

func (h *PermissionsHandler) render(w http.ResponseWriter, r *http.Request, template, title string, data map[string]any) {
	if err := h.templates.Render(w, http.StatusOK, template, view.NewTemplateData(r, h.csrf, title, data)); err != nil {
		h.logger.Error("render template", slog.String("template", template), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *PermissionsHandler) redirectWithFlash(w http.ResponseWriter, r *http.Request, path, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, shared.LocalePath(shared.LocaleFromContext(r.Context()), path), http.StatusSeeOther)
}
