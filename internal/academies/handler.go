package academies

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/academyhub/academyhub/internal/authz"
	"github.com/academyhub/academyhub/internal/rbac"
	"github.com/academyhub/academyhub/internal/shared"
	"github.com/academyhub/academyhub/internal/view"
)

// Handler serves the academy switcher and academy administration.
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

// MountRoutes registers academy routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.RequireAuthMiddleware(h.respond)).Post("/select", h.selectAcademy)
	r.With(h.guard.RequirePermissionMiddleware(h.respond, rbac.ResAcademies, rbac.ActionRead)).Get("/", h.listAcademies)
	r.With(h.guard.RequirePermissionMiddleware(h.respond, rbac.ResAcademies, rbac.ActionCreate)).Post("/", h.createAcademy)
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermissionMiddleware(h.respond, rbac.ResMemberships, rbac.ActionRead))
		r.Get("/{id}/members", h.listMembers)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermissionMiddleware(h.respond, rbac.ResMemberships, rbac.ActionManage))
		r.Post("/{id}/members", h.addMember)
		r.Post("/{id}/members/{userID}/remove", h.removeMember)
	})
}

type formErrors map[string]string

func (h *Handler) selectAcademy(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	principal := authz.PrincipalFromContext(ctx)
	a, err := h.service.Select(ctx, principal, r.PostFormValue("academy_id"))
	if err != nil {
		h.respond.Respond(w, r, err)
		return
	}
	if sess := shared.SessionFromContext(ctx); sess != nil {
		sess.SetSelectedAcademy(a.ID)
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Switched to " + a.Name})
	}
	locale := shared.LocaleFromContext(ctx)
	http.Redirect(w, r, authz.SafeNext(r.PostFormValue("next"), shared.LocalePath(locale, "/")), http.StatusSeeOther)
}

func (h *Handler) listAcademies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := h.service.ListForUser(ctx, authz.PrincipalFromContext(ctx))
	if err != nil {
		h.respond.Respond(w, r, err)
		return
	}
	h.render(w, r, "pages/academies.html", "Academies", map[string]any{
		"Academies": list,
		"CanCreate": h.guard.CheckCurrentUserPermission(ctx, rbac.ResAcademies, rbac.ActionCreate),
		"Errors":    formErrors{},
	}, http.StatusOK)
}

func (h *Handler) createAcademy(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	principal := authz.PrincipalFromContext(ctx)
	in := CreateInput{Name: r.PostFormValue("name"), Slug: r.PostFormValue("slug")}
	a, err := h.service.Create(ctx, in, principal.UserID)
	if err != nil {
		errs := formErrors{}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs[fe.Field()] = fe.Error()
			}
		} else {
			errs["general"] = err.Error()
		}
		list, _ := h.service.ListForUser(ctx, principal)
		h.render(w, r, "pages/academies.html", "Academies", map[string]any{"Academies": list, "CanCreate": true, "Form": in, "Errors": errs}, http.StatusBadRequest)
		return
	}
	h.logger.Info("academy created", slog.String("academy_id", a.ID), slog.String("by", principal.UserID))
	h.redirectWithFlash(w, r, "/academies/"+a.ID+"/members", "success", "Academy created")
}

// authorizeAcademy hides academies the principal does not belong to.
func (h *Handler) authorizeAcademy(r *http.Request, academyID string) (Academy, error) {
	ctx := r.Context()
	return h.service.Select(ctx, authz.PrincipalFromContext(ctx), academyID)
}

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a, err := h.authorizeAcademy(r, chi.URLParam(r, "id"))
	if err != nil {
		h.respond.Respond(w, r, err)
		return
	}
	members, err := h.service.ListMembers(ctx, a.ID)
	if err != nil {
		h.respond.Respond(w, r, err)
		return
	}
	h.render(w, r, "pages/members.html", a.Name, map[string]any{
		"Academy":   a,
		"Members":   members,
		"Roles":     rbac.UserRoles(),
		"CanManage": h.guard.CheckCurrentUserPermission(ctx, rbac.ResMemberships, rbac.ActionManage),
	}, http.StatusOK)
}

func (h *Handler) addMember(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	principal := authz.PrincipalFromContext(ctx)
	a, err := h.authorizeAcademy(r, chi.URLParam(r, "id"))
	if err != nil {
		h.respond.Respond(w, r, err)
		return
	}
	role := rbac.UserRole(r.PostFormValue("role"))
	target := "/academies/" + a.ID + "/members"
	if _, err := h.service.AddMember(ctx, a.ID, r.PostFormValue("email"), role, principal); err != nil {
		var failure *authz.Failure
		if errors.As(err, &failure) {
			h.respond.Respond(w, r, err)
			return
		}
		msg := err.Error()
		if errors.Is(err, shared.ErrNotFound) {
			msg = "No account with that email"
		}
		h.redirectWithFlash(w, r, target, "error", msg)
		return
	}
	h.redirectWithFlash(w, r, target, "success", "Member added")
}

func (h *Handler) removeMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal := authz.PrincipalFromContext(ctx)
	a, err := h.authorizeAcademy(r, chi.URLParam(r, "id"))
	if err != nil {
		h.respond.Respond(w, r, err)
		return
	}
	if err := h.service.RemoveMember(ctx, a.ID, chi.URLParam(r, "userID"), principal.UserID); err != nil {
		h.respond.Respond(w, r, err)
		return
	}
	h.redirectWithFlash(w, r, "/academies/"+a.ID+"/members", "success", "Member removed")
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
