package app

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/academyhub/academyhub/internal/academies"
	"github.com/academyhub/academyhub/internal/authz"
	"github.com/academyhub/academyhub/internal/rbac"
	"github.com/academyhub/academyhub/internal/shared"
	"github.com/academyhub/academyhub/internal/view"
)

// LocaleMiddleware validates the {locale} route segment and stores it in the
// request context. Unsupported locales are served notFound.
func LocaleMiddleware(locales *shared.Locales, notFound http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			locale := chi.URLParam(r, "locale")
			if !locales.Supported(locale) {
				notFound(w, r)
				return
			}
			if sess := shared.SessionFromContext(r.Context()); sess != nil {
				sess.SetLocale(locale)
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithLocale(r.Context(), locale)))
		})
	}
}

// RootRedirect sends "/" to the session's last locale or the negotiated one.
func RootRedirect(locales *shared.Locales) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		locale := ""
		if sess := shared.SessionFromContext(r.Context()); sess != nil && locales.Supported(sess.Locale()) {
			locale = sess.Locale()
		}
		if locale == "" {
			locale = locales.Negotiate(r)
		}
		http.Redirect(w, r, shared.LocalePath(locale, "/"), http.StatusSeeOther)
	}
}

// AcademyResolver picks the academy a principal operates in.
type AcademyResolver interface {
	Current(ctx context.Context, p *authz.Principal, selected string) (string, error)
	ListForUser(ctx context.Context, p *authz.Principal) ([]academies.Academy, error)
}

type navEntry struct {
	label    string
	path     string
	resource string
	admin    bool
}

var navigation = []navEntry{
	{label: "Dashboard", path: "/", resource: rbac.ResDashboard},
	{label: "Courses", path: "/courses", resource: rbac.ResCourses},
	{label: "Appointments", path: "/appointments", resource: rbac.ResAppointments},
	{label: "Users", path: "/users", resource: rbac.ResUsers},
	{label: "Messages", path: "/messages", resource: rbac.ResMessages},
	{label: "Notifications", path: "/notifications", resource: rbac.ResNotifications},
	{label: "Academies", path: "/academies", resource: rbac.ResAcademies},
	{label: "Roles", path: "/roles", resource: rbac.ResRoles},
	{label: "Permissions", path: "/roles/matrix", resource: rbac.ResPermissions},
	{label: "Audit", path: "/roles/audit", admin: true},
}

// AcademyMiddleware resolves the selected academy of the signed-in principal
// and the layout chrome. The resolved academy is written back to the session
// when the stored selection was stale.
func AcademyMiddleware(resolver AcademyResolver, guard *authz.Guard, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			principal := authz.PrincipalFromContext(ctx)
			if principal == nil {
				next.ServeHTTP(w, r)
				return
			}
			sess := shared.SessionFromContext(ctx)
			selected := ""
			if sess != nil {
				selected = sess.SelectedAcademy()
			}
			academyID, err := resolver.Current(ctx, principal, selected)
			if err != nil {
				logger.Error("resolve academy", slog.String("user_id", principal.UserID), slog.Any("error", err))
			}
			if sess != nil && academyID != selected {
				sess.SetSelectedAcademy(academyID)
			}
			ctx = shared.ContextWithAcademy(ctx, academyID)

			chrome := &view.Chrome{}
			list, err := resolver.ListForUser(ctx, principal)
			if err != nil {
				logger.Error("list academies", slog.String("user_id", principal.UserID), slog.Any("error", err))
			}
			for _, a := range list {
				ref := view.AcademyRef{ID: a.ID, Name: a.Name}
				chrome.Academies = append(chrome.Academies, ref)
				if a.ID == academyID {
					chrome.Academy = &ref
				}
			}
			locale := shared.LocaleFromContext(ctx)
			current := strings.TrimPrefix(r.URL.Path, "/"+locale)
			for _, entry := range navigation {
				if entry.admin && !principal.IsAdmin() {
					continue
				}
				if !entry.admin && !guard.CheckCurrentUserPermission(ctx, entry.resource, rbac.ActionRead) {
					continue
				}
				active := current == entry.path || (entry.path != "/" && strings.HasPrefix(current, entry.path+"/"))
				if entry.path == "/" && current == "" {
					active = true
				}
				chrome.Nav = append(chrome.Nav, view.NavItem{Label: entry.label, Path: shared.LocalePath(locale, entry.path), Active: active})
			}
			next.ServeHTTP(w, r.WithContext(view.ContextWithChrome(ctx, chrome)))
		})
	}
}
