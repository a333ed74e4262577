package courses

import (
	"context"
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

// Directory resolves member IDs and display names for forms and listings.
type Directory interface {
	MemberIDs(ctx context.Context, academyID string) ([]string, error)
	DisplayNames(ctx context.Context, ids []string) (map[string]string, error)
}

// Handler serves the course pages of the selected academy.
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

// MountRoutes registers course routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermissionMiddleware(h.respond, rbac.ResCourses, rbac.ActionRead))
		r.Get("/", h.listCourses)
		r.Get("/{id}", h.showCourse)
	})
	r.With(h.guard.RequirePermissionMiddleware(h.respond, rbac.ResCourses, rbac.ActionCreate)).Post("/", h.createCourse)
	r.With(h.guard.RequirePermissionMiddleware(h.respond, rbac.ResEnrollments, rbac.ActionCreate)).Post("/{id}/enroll", h.enroll)
	r.With(h.guard.RequirePermissionMiddleware(h.respond, rbac.ResEnrollments, rbac.ActionDelete)).Post("/{id}/unenroll", h.unenroll)
}

type formErrors map[string]string

func (h *Handler) listCourses(w http.ResponseWriter, r *http.Request) {
	academyID := shared.AcademyFromContext(r.Context())
	list, err := h.service.ListCourses(r.Context(), academyID)
	if err != nil {
		h.respond.Respond(w, r, err)
		return
	}
	h.render(w, r, "pages/courses.html", "Courses", map[string]any{
		"Courses":   list,
		"CanCreate": h.guard.CheckCurrentUserPermission(r.Context(), rbac.ResCourses, rbac.ActionCreate),
		"Errors":    formErrors{},
	}, http.StatusOK)
}

func (h *Handler) showCourse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	academyID := shared.AcademyFromContext(ctx)
	course, err := h.service.GetCourse(ctx, academyID, chi.URLParam(r, "id"))
	if err != nil {
		h.respond.Respond(w, r, err)
		return
	}
	enrollments, err := h.service.ListCourseEnrollments(ctx, academyID, course.ID)
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
	h.render(w, r, "pages/course.html", course.Title, map[string]any{
		"Course":      course,
		"Enrollments": enrollments,
		"Members":     memberIDs,
		"Names":       names,
		"CanEnroll":   h.guard.CheckCurrentUserPermission(ctx, rbac.ResEnrollments, rbac.ActionCreate),
		"CanUnenroll": h.guard.CheckCurrentUserPermission(ctx, rbac.ResEnrollments, rbac.ActionDelete),
	}, http.StatusOK)
}

func (h *Handler) createCourse(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	principal := authz.PrincipalFromContext(ctx)
	academyID := shared.AcademyFromContext(ctx)
	in := CourseInput{
		Title:       r.PostFormValue("title"),
		Description: r.PostFormValue("description"),
		CoachID:     r.PostFormValue("coach_id"),
	}
	course, err := h.service.CreateCourse(ctx, academyID, in, principal.UserID)
	if err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			errs := formErrors{}
			for _, fe := range verrs {
				errs[fe.Field()] = fe.Error()
			}
			list, _ := h.service.ListCourses(ctx, academyID)
			h.render(w, r, "pages/courses.html", "Courses", map[string]any{"Courses": list, "CanCreate": true, "Errors": errs, "Form": in}, http.StatusBadRequest)
			return
		}
		h.respond.Respond(w, r, err)
		return
	}
	h.logger.Info("course created", slog.String("course_id", course.ID), slog.String("academy_id", academyID))
	h.redirectWithFlash(w, r, "/courses/"+course.ID, "success", "Course created")
}

func (h *Handler) enroll(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	courseID := chi.URLParam(r, "id")
	principal := authz.PrincipalFromContext(ctx)
	if _, err := h.service.Enroll(ctx, shared.AcademyFromContext(ctx), courseID, r.PostFormValue("user_id"), principal.UserID); err != nil {
		h.respond.Respond(w, r, err)
		return
	}
	h.redirectWithFlash(w, r, "/courses/"+courseID, "success", "Member enrolled")
}

func (h *Handler) unenroll(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	courseID := chi.URLParam(r, "id")
	if err := h.service.Unenroll(ctx, shared.AcademyFromContext(ctx), courseID, r.PostFormValue("user_id")); err != nil {
		h.respond.Respond(w, r, err)
		return
	}
	h.redirectWithFlash(w, r, "/courses/"+courseID, "success", "Enrollment removed")
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
