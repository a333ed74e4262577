package appointments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/academyhub/academyhub/internal/authz"
	"github.com/academyhub/academyhub/internal/rbac"
	"github.com/academyhub/academyhub/internal/shared"
	"github.com/academyhub/academyhub/internal/view"
)

// startsAtLayout matches the value of an <input type="datetime-local">.
const startsAtLayout = "2006-01-02T15:04"

// Directory resolves member IDs and display names for forms and listings.
type Directory interface {
	MemberIDs(ctx context.Context, academyID string) ([]string, error)
	DisplayNames(ctx context.Context, ids []string) (map[string]string, error)
}

// Handler serves the appointment pages of the selected academy.
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
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, directory: directory, templates: templates, csrf: csrf, guard: guard, respond: respond}
}

// MountRoutes registers appointment routes. Holders of appointments:write see
// and manage the whole academy; everyone else sees and books their own.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.RequirePermissionMiddleware(h.respond, rbac.ResAppointments, rbac.ActionRead)).Get("/", h.list)
	r.With(h.guard.RequirePermissionMiddleware(h.respond, rbac.ResAppointments, rbac.ActionCreate)).Post("/", h.book)
	r.With(h.guard.RequirePermissionMiddleware(h.respond, rbac.ResAppointments, rbac.ActionRead)).Post("/{id}/cancel", h.cancel)
}

type formErrors map[string]string

func (h *Handler) canManage(ctx context.Context) bool {
	return h.guard.CheckCurrentUserPermission(ctx, rbac.ResAppointments, rbac.ActionWrite)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	h.renderList(w, r, formErrors{}, nil, http.StatusOK)
}

func (h *Handler) renderList(w http.ResponseWriter, r *http.Request, errs formErrors, form map[string]string, status int) {
	ctx := r.Context()
	principal := authz.PrincipalFromContext(ctx)
	academyID := shared.AcademyFromContext(ctx)
	manage := h.canManage(ctx)
	var (
		list []Appointment
		err  error
	)
	if manage {
		list, err = h.service.List(ctx, academyID)
	} else {
		list, err = h.service.ListForUser(ctx, academyID, principal.UserID)
	}
	if err != nil {
		h.respond.Respond(w, r, err)
		return
	}
	memberIDs, err := h.directory.MemberIDs(ctx, academyID)
	if err != nil {
		h.respond.Respond(w, r, err)
		return
	}
	names, err := h.directory.DisplayNames(ctx, memberIDs)
	if err != nil {
		h.respond.Respond(w, r, err)
		return
	}
	h.render(w, r, "pages/appointments.html", "Appointments", map[string]any{
		"Appointments": list,
		"Members":      memberIDs,
		"Names":        names,
		"CanBook":      h.guard.CheckCurrentUserPermission(ctx, rbac.ResAppointments, rbac.ActionCreate),
		"CanManage":    manage,
		"Self":         principal.UserID,
		"Errors":       errs,
		"Form":         form,
	}, status)
}

func (h *Handler) book(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	principal := authz.PrincipalFromContext(ctx)
	academyID := shared.AcademyFromContext(ctx)
	form := map[string]string{
		"CoachID":    r.PostFormValue("coach_id"),
		"AttendeeID": r.PostFormValue("attendee_id"),
		"StartsAt":   r.PostFormValue("starts_at"),
		"Minutes":    r.PostFormValue("minutes"),
		"Notes":      r.PostFormValue("notes"),
	}
	if !h.canManage(ctx) {
		form["AttendeeID"] = principal.UserID
	}
	startsAt, err := time.ParseInLocation(startsAtLayout, form["StartsAt"], time.UTC)
	if err != nil {
		h.renderList(w, r, formErrors{"StartsAt": "Pick a date and time"}, form, http.StatusBadRequest)
		return
	}
	minutes, err := strconv.Atoi(form["Minutes"])
	if err != nil {
		h.renderList(w, r, formErrors{"Minutes": "Duration must be a number of minutes"}, form, http.StatusBadRequest)
		return
	}
	a, err := h.service.Book(ctx, academyID, BookInput{
		CoachID:    form["CoachID"],
		AttendeeID: form["AttendeeID"],
		StartsAt:   startsAt,
		Minutes:    minutes,
		Notes:      form["Notes"],
	}, principal.UserID)
	if err != nil {
		var verrs validator.ValidationErrors
		switch {
		case errors.As(err, &verrs):
			errs := formErrors{}
			for _, fe := range verrs {
				errs[fe.Field()] = fe.Error()
			}
			h.renderList(w, r, errs, form, http.StatusBadRequest)
		case errors.Is(err, ErrSlotTaken), errors.Is(err, ErrInPast):
			h.renderList(w, r, formErrors{"StartsAt": err.Error()}, form, http.StatusConflict)
		default:
			h.respond.Respond(w, r, err)
		}
		return
	}
	h.logger.Info("appointment booked", slog.String("appointment_id", a.ID), slog.String("academy_id", academyID))
	h.redirectWithFlash(w, r, "/appointments", "success", "Appointment booked")
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal := authz.PrincipalFromContext(ctx)
	academyID := shared.AcademyFromContext(ctx)
	id := chi.URLParam(r, "id")
	a, err := h.service.Get(ctx, academyID, id)
	if err != nil {
		h.respond.Respond(w, r, err)
		return
	}
	if !h.canManage(ctx) && !a.Involves(principal.UserID) {
		h.respond.Respond(w, r, fmt.Errorf("appointment %s: %w", id, shared.ErrNotFound))
		return
	}
	if _, err := h.service.Cancel(ctx, academyID, id, principal.UserID); err != nil {
		if errors.Is(err, ErrAlreadyCancelled) {
			h.redirectWithFlash(w, r, "/appointments", "error", "Appointment was already cancelled")
			return
		}
		h.respond.Respond(w, r, err)
		return
	}
	h.redirectWithFlash(w, r, "/appointments", "success", "Appointment cancelled")
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
