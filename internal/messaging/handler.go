package messaging

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/academyhub/academyhub/internal/authz"
	"github.com/academyhub/academyhub/internal/rbac"
	"github.com/academyhub/academyhub/internal/shared"
	"github.com/academyhub/academyhub/internal/view"
)

// Directory resolves member IDs and display names for the compose form.
type Directory interface {
	MemberIDs(ctx context.Context, academyID string) ([]string, error)
	DisplayNames(ctx context.Context, ids []string) (map[string]string, error)
}

// Handler serves the mailbox pages of the selected academy.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	directory Directory
	templates *view.Engine
	csrf      *shared.CSRFManager
	guard     *authz.Guard
	respond   *authz.Responder
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, directory Directory, templates *view.Engine, csrf *shared.CSRFManager, guard *authz.Guard, respond *authz.Responder) *Handler {
	return &Handler{logger: logger, service: service, directory: directory, templates: templates, csrf: csrf, guard: guard, respond: respond}
}

// MountRoutes registers message routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermissionMiddleware(h.respond, rbac.ResMessages, rbac.ActionRead))
		r.Get("/", h.mailbox(Inbox))
		r.Get("/sent", h.mailbox(Sent))
		r.Get("/{id}", h.show)
	})
	r.With(h.guard.RequirePermissionMiddleware(h.respond, rbac.ResMessages, rbac.ActionCreate)).Post("/", h.send)
	r.With(h.guard.RequirePermissionMiddleware(h.respond, rbac.ResMessages, rbac.ActionDelete)).Post("/{id}/delete", h.remove)
}

func (h *Handler) mailbox(box Mailbox) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.renderMailbox(w, r, box, nil, SendInput{}, http.StatusOK)
	}
}

func (h *Handler) renderMailbox(w http.ResponseWriter, r *http.Request, box Mailbox, errs map[string]string, form SendInput, status int) {
	ctx := r.Context()
	principal := authz.PrincipalFromContext(ctx)
	academyID := shared.AcademyFromContext(ctx)
	list, err := h.service.Mailbox(ctx, box, academyID, principal.UserID)
	if err != nil {
		h.respond.Respond(w, r, err)
		return
	}
	memberIDs, err := h.directory.MemberIDs(ctx, academyID)
	if err != nil {
		h.respond.Respond(w, r, err)
		return
	}
	ids := append([]string{}, memberIDs...)
	for _, m := range list {
		ids = append(ids, m.SenderID, m.RecipientID)
	}
	names, err := h.directory.DisplayNames(ctx, ids)
	if err != nil {
		h.respond.Respond(w, r, err)
		return
	}
	recipients := make([]string, 0, len(memberIDs))
	for _, id := range memberIDs {
		if id != principal.UserID {
			recipients = append(recipients, id)
		}
	}
	form.IdempotencyKey = uuid.NewString()
	h.render(w, r, "pages/messages.html", "Messages", map[string]any{
		"Box":        string(box),
		"Messages":   list,
		"Names":      names,
		"Recipients": recipients,
		"CanSend":    h.guard.CheckCurrentUserPermission(ctx, rbac.ResMessages, rbac.ActionCreate),
		"Errors":     errs,
		"Form":       form,
	}, status)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal := authz.PrincipalFromContext(ctx)
	m, err := h.service.Open(ctx, shared.AcademyFromContext(ctx), principal.UserID, chi.URLParam(r, "id"))
	if err != nil {
		h.respond.Respond(w, r, err)
		return
	}
	names, err := h.directory.DisplayNames(ctx, []string{m.SenderID, m.RecipientID})
	if err != nil {
		h.respond.Respond(w, r, err)
		return
	}
	h.render(w, r, "pages/message.html", m.Subject, map[string]any{
		"Message":   m,
		"Names":     names,
		"CanDelete": h.guard.CheckCurrentUserPermission(ctx, rbac.ResMessages, rbac.ActionDelete),
	}, http.StatusOK)
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	principal := authz.PrincipalFromContext(ctx)
	in := SendInput{
		RecipientID:    r.PostFormValue("recipient_id"),
		Subject:        r.PostFormValue("subject"),
		Body:           r.PostFormValue("body"),
		IdempotencyKey: r.PostFormValue("idempotency_key"),
	}
	m, err := h.service.Send(ctx, shared.AcademyFromContext(ctx), principal.UserID, in)
	switch {
	case err == nil:
		h.logger.Info("message sent", slog.String("message_id", m.ID), slog.String("user_id", principal.UserID))
		h.redirectWithFlash(w, r, "/messages/sent", "success", "Message sent")
	case IsDuplicate(err):
		http.Redirect(w, r, shared.LocalePath(shared.LocaleFromContext(ctx), "/messages/sent"), http.StatusSeeOther)
	default:
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			errs := map[string]string{}
			for _, fe := range verrs {
				errs[fe.Field()] = fe.Error()
			}
			h.renderMailbox(w, r, Inbox, errs, in, http.StatusBadRequest)
			return
		}
		h.respond.Respond(w, r, err)
	}
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal := authz.PrincipalFromContext(ctx)
	if err := h.service.Delete(ctx, shared.AcademyFromContext(ctx), principal.UserID, chi.URLParam(r, "id")); err != nil {
		h.respond.Respond(w, r, err)
		return
	}
	h.redirectWithFlash(w, r, "/messages", "success", "Message deleted")
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
