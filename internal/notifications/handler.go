package notifications

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

// Handler serves the notification feed of the signed-in user.
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

// MountRoutes registers notification routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermissionMiddleware(h.respond, rbac.ResNotifications, rbac.ActionRead))
		r.Get("/", h.list)
		r.Post("/read", h.markAllRead)
		r.Post("/{id}/read", h.markRead)
	})
	r.With(h.guard.RequirePermissionMiddleware(h.respond, rbac.ResNotifications, rbac.ActionCreate)).Post("/broadcast", h.broadcast)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	h.renderFeed(w, r, nil, http.StatusOK)
}

func (h *Handler) renderFeed(w http.ResponseWriter, r *http.Request, errs map[string]string, status int) {
	ctx := r.Context()
	principal := authz.PrincipalFromContext(ctx)
	list, err := h.service.List(ctx, principal.UserID, DefaultPageSize)
	if err != nil {
		h.respond.Respond(w, r, err)
		return
	}
	unread := 0
	for _, n := range list {
		if n.Unread() {
			unread++
		}
	}
	h.render(w, r, "pages/notifications.html", "Notifications", map[string]any{
		"Notifications": list,
		"Unread":        unread,
		"CanBroadcast":  h.guard.CheckCurrentUserPermission(ctx, rbac.ResNotifications, rbac.ActionCreate),
		"Errors":        errs,
	}, status)
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	principal := authz.PrincipalFromContext(r.Context())
	if err := h.service.MarkRead(r.Context(), principal.UserID, chi.URLParam(r, "id")); err != nil {
		h.respond.Respond(w, r, err)
		return
	}
	http.Redirect(w, r, shared.LocalePath(shared.LocaleFromContext(r.Context()), "/notifications"), http.StatusSeeOther)
}

func (h *Handler) markAllRead(w http.ResponseWriter, r *http.Request) {
	principal := authz.PrincipalFromContext(r.Context())
	if err := h.service.MarkAllRead(r.Context(), principal.UserID); err != nil {
		h.respond.Respond(w, r, err)
		return
	}
	h.redirectWithFlash(w, r, "/notifications", "success", "All notifications marked as read")
}

func (h *Handler) broadcast(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	principal := authz.PrincipalFromContext(ctx)
	b, err := h.service.Broadcast(ctx, shared.AcademyFromContext(ctx), r.PostFormValue("title"), r.PostFormValue("body"), principal.UserID)
	if err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			errs := map[string]string{}
			for _, fe := range verrs {
				errs[fe.Field()] = fe.Error()
			}
			h.renderFeed(w, r, errs, http.StatusBadRequest)
			return
		}
		h.respond.Respond(w, r, err)
		return
	}
	h.logger.Info("broadcast sent", slog.String("broadcast_id", b.ID), slog.String("user_id", principal.UserID))
	h.redirectWithFlash(w, r, "/notifications", "success", "Broadcast queued")
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
