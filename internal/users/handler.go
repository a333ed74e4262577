package users

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/academyhub/academyhub/internal/authz"
	"github.com/academyhub/academyhub/internal/courses"
	"github.com/academyhub/academyhub/internal/membership"
	"github.com/academyhub/academyhub/internal/rbac"
	"github.com/academyhub/academyhub/internal/shared"
	"github.com/academyhub/academyhub/internal/view"
)

// EnrollmentLister loads a user's enrollments within an academy.
type EnrollmentLister interface {
	ListUserEnrollments(ctx context.Context, academyID, userID string) ([]courses.UserEnrollment, error)
}

// Handler manages user management endpoints.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	members     *membership.Service
	enrollments EnrollmentLister
	templates   *view.Engine
	csrf        *shared.CSRFManager
	guard       *authz.Guard
	respond     *authz.Responder
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, members *membership.Service, enrollments EnrollmentLister, templates *view.Engine, csrf *shared.CSRFManager, guard *authz.Guard, respond *authz.Responder) *Handler {
	return &Handler{logger: logger, service: service, members: members, enrollments: enrollments, templates: templates, csrf: csrf, guard: guard, respond: respond}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermissionMiddleware(h.respond, rbac.ResUsers, rbac.ActionRead))
		r.Get("/", h.listUsers)
		r.Get("/{id}", h.showUser)
	})
	r.With(h.guard.RequirePermissionMiddleware(h.respond, rbac.ResUsers, rbac.ActionCreate)).Post("/", h.createUser)
	r.With(h.guard.RequirePermissionMiddleware(h.respond, rbac.ResUsers, rbac.ActionWrite)).Post("/{id}", h.updateUser)
	r.With(h.guard.RequirePermissionMiddleware(h.respond, rbac.ResUsers, rbac.ActionManage)).Post("/{id}/active", h.toggleActive)
	r.With(h.guard.RequireAdminMiddleware(h.respond)).Post("/{id}/grants", h.updateGrants)
}

type formErrors map[string]string

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal := authz.PrincipalFromContext(ctx)
	academyID := shared.AcademyFromContext(ctx)
	showAll := principal.IsAdmin() && r.URL.Query().Get("all") == "1"

	var (
		list []User
		err  error
	)
	switch {
	case showAll:
		list, err = h.service.ListUsers(ctx)
	case academyID != "":
		var ids []string
		ids, err = h.members.MemberIDs(ctx, academyID)
		if err == nil {
			list, err = h.service.ListByIDs(ctx, ids)
		}
	}
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		h.render(w, r, "pages/users.html", "Users", map[string]any{"Errors": formErrors{"general": shared.UserSafeMessage(err)}}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/users.html", "Users", map[string]any{
		"Users":     list,
		"ShowAll":   showAll,
		"Roles":     rbac.UserRoles(),
		"CanCreate": h.guard.CheckCurrentUserPermission(ctx, rbac.ResUsers, rbac.ActionCreate),
		"Errors":    formErrors{},
	}, http.StatusOK)
}

// scope resolves the academy the target user is viewed in and enforces the
// membership check before any of the user's data is read.
func (h *Handler) scope(ctx context.Context, principal *authz.Principal, targetID string) (string, error) {
	viewer := membership.Viewer{Role: principal.Role, SelectedAcademyID: shared.AcademyFromContext(ctx)}
	academyID, err := h.members.ResolveTargetUserAcademyID(ctx, viewer, targetID)
	if err != nil {
		return "", err
	}
	if err := h.members.RequireUserInAcademy(ctx, academyID, targetID); err != nil {
		return "", err
	}
	return academyID, nil
}

// mutableTarget scopes targetID like a profile view and loads it. Only admins
// may change admin accounts.
func (h *Handler) mutableTarget(ctx context.Context, principal *authz.Principal, targetID string, action rbac.Action) (User, error) {
	if _, err := h.scope(ctx, principal, targetID); err != nil {
		return User{}, err
	}
	target, err := h.service.FindUserByID(ctx, targetID)
	if err != nil {
		return User{}, err
	}
	if !principal.IsAdmin() && target.Role == rbac.RoleAdmin {
		return User{}, &authz.Failure{Kind: authz.KindForbidden, UserID: principal.UserID, Resource: rbac.ResUsers, Action: action}
	}
	return target, nil
}

type profile struct {
	User        User
	AcademyID   string
	Memberships []membership.Membership
	Enrollments []courses.UserEnrollment
}

func (h *Handler) loadProfile(ctx context.Context, principal *authz.Principal, targetID string) (profile, error) {
	academyID, err := h.scope(ctx, principal, targetID)
	if err != nil {
		return profile{}, err
	}
	p := profile{AcademyID: academyID}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := h.service.FindUserByID(gctx, targetID)
		p.User = u
		return err
	})
	g.Go(func() error {
		list, err := h.members.ListUserMemberships(gctx, targetID)
		if err != nil {
			return err
		}
		if !principal.IsAdmin() {
			// Non-admins only see the membership of the academy in scope.
			kept := list[:0]
			for _, m := range list {
				if m.AcademyID == academyID {
					kept = append(kept, m)
				}
			}
			list = kept
		}
		p.Memberships = list
		return nil
	})
	g.Go(func() error {
		if h.enrollments == nil {
			return nil
		}
		list, err := h.enrollments.ListUserEnrollments(gctx, academyID, targetID)
		p.Enrollments = list
		return err
	})
	if err := g.Wait(); err != nil {
		return profile{}, err
	}
	return p, nil
}

func (h *Handler) showUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal := authz.PrincipalFromContext(ctx)
	p, err := h.loadProfile(ctx, principal, chi.URLParam(r, "id"))
	if err != nil {
		h.respond.Respond(w, r, err)
		return
	}
	h.renderProfile(w, r, p, formErrors{}, http.StatusOK)
}

func (h *Handler) renderProfile(w http.ResponseWriter, r *http.Request, p profile, errs formErrors, status int) {
	ctx := r.Context()
	grants := make([]string, len(p.User.Grants))
	for i, g := range p.User.Grants {
		grants[i] = g.String()
	}
	h.render(w, r, "pages/user.html", p.User.Name, map[string]any{
		"Profile":    p,
		"Grants":     strings.Join(grants, "\n"),
		"Roles":      rbac.UserRoles(),
		"CanEdit":    h.guard.CheckCurrentUserPermission(ctx, rbac.ResUsers, rbac.ActionWrite),
		"CanManage":  h.guard.CheckCurrentUserPermission(ctx, rbac.ResUsers, rbac.ActionManage),
		"CanGrant":   authz.PrincipalFromContext(ctx).IsAdmin(),
		"Errors":     errs,
		"IsSelf":     authz.PrincipalFromContext(ctx).UserID == p.User.ID,
		"AcademyID":  p.AcademyID,
		"HasCourses": len(p.Enrollments) > 0,
	}, status)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	principal := authz.PrincipalFromContext(ctx)
	role := rbac.UserRole(r.PostFormValue("role"))
	if role == rbac.RoleAdmin && !principal.IsAdmin() {
		h.respond.Respond(w, r, &authz.Failure{Kind: authz.KindForbidden, UserID: principal.UserID, Resource: rbac.ResUsers, Action: rbac.ActionCreate})
		return
	}
	in := CreateInput{
		Email:     r.PostFormValue("email"),
		Name:      r.PostFormValue("name"),
		Password:  r.PostFormValue("password"),
		Role:      role,
		AcademyID: shared.AcademyFromContext(ctx),
		CreatedBy: principal.UserID,
	}
	u, err := h.service.CreateUser(ctx, in)
	if err != nil {
		errs := formErrorsFrom(err)
		if errs == nil {
			h.respond.Respond(w, r, err)
			return
		}
		in.Password = ""
		h.render(w, r, "pages/users.html", "Users", map[string]any{
			"Roles":     rbac.UserRoles(),
			"CanCreate": true,
			"Form":      in,
			"Errors":    errs,
		}, http.StatusBadRequest)
		return
	}
	h.logger.Info("user created", slog.String("user_id", u.ID), slog.String("by", principal.UserID))
	h.redirectWithFlash(w, r, "/users/"+u.ID, "success", "User created")
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	principal := authz.PrincipalFromContext(ctx)
	id := chi.URLParam(r, "id")
	current, err := h.mutableTarget(ctx, principal, id, rbac.ActionWrite)
	if err != nil {
		h.respond.Respond(w, r, err)
		return
	}
	role := rbac.UserRole(r.PostFormValue("role"))
	if !principal.IsAdmin() && role == rbac.RoleAdmin {
		h.respond.Respond(w, r, &authz.Failure{Kind: authz.KindForbidden, UserID: principal.UserID, Resource: rbac.ResUsers, Action: rbac.ActionWrite})
		return
	}
	in := UpdateInput{Name: r.PostFormValue("name"), Role: role, RoleIDs: current.RoleIDs}
	if principal.IsAdmin() {
		in.RoleIDs = splitList(r.PostFormValue("role_ids"))
	}
	if _, err := h.service.UpdateUser(ctx, id, in, principal.UserID); err != nil {
		errs := formErrorsFrom(err)
		if errs == nil {
			h.respond.Respond(w, r, err)
			return
		}
		p, perr := h.loadProfile(ctx, principal, id)
		if perr != nil {
			h.respond.Respond(w, r, perr)
			return
		}
		h.renderProfile(w, r, p, errs, http.StatusBadRequest)
		return
	}
	h.redirectWithFlash(w, r, "/users/"+id, "success", "User updated")
}

func (h *Handler) toggleActive(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	principal := authz.PrincipalFromContext(ctx)
	id := chi.URLParam(r, "id")
	if _, err := h.mutableTarget(ctx, principal, id, rbac.ActionManage); err != nil {
		h.respond.Respond(w, r, err)
		return
	}
	active := r.PostFormValue("active") == "true"
	if _, err := h.service.SetActive(ctx, id, active, principal.UserID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			h.respond.Respond(w, r, err)
			return
		}
		h.redirectWithFlash(w, r, "/users/"+id, "error", err.Error())
		return
	}
	msg := "User deactivated"
	if active {
		msg = "User activated"
	}
	h.redirectWithFlash(w, r, "/users/"+id, "success", msg)
}

func (h *Handler) updateGrants(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	principal := authz.PrincipalFromContext(ctx)
	id := chi.URLParam(r, "id")
	if _, err := h.mutableTarget(ctx, principal, id, rbac.ActionManage); err != nil {
		h.respond.Respond(w, r, err)
		return
	}
	if _, err := h.service.SetDirectGrants(ctx, id, splitList(r.PostFormValue("grants")), principal.UserID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			h.respond.Respond(w, r, err)
			return
		}
		h.redirectWithFlash(w, r, "/users/"+id, "error", err.Error())
		return
	}
	h.redirectWithFlash(w, r, "/users/"+id, "success", "Permissions updated")
}

// splitList splits on newlines and commas and drops blanks.
func splitList(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == '\n' || r == ',' || r == '\r' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func formErrorsFrom(err error) formErrors {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		errs := formErrors{}
		for _, fe := range verrs {
			errs[fe.Field()] = fe.Error()
		}
		return errs
	case errors.Is(err, ErrEmailTaken):
		return formErrors{"Email": "Email is already registered"}
	case errors.Is(err, rbac.ErrUnknownRole):
		return formErrors{"Role": "Unknown role"}
	}
	return nil
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
