package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/academyhub/academyhub/internal/academies"
	"github.com/academyhub/academyhub/internal/appointments"
	"github.com/academyhub/academyhub/internal/auth"
	"github.com/academyhub/academyhub/internal/authz"
	"github.com/academyhub/academyhub/internal/courses"
	"github.com/academyhub/academyhub/internal/messaging"
	"github.com/academyhub/academyhub/internal/notifications"
	"github.com/academyhub/academyhub/internal/observability"
	"github.com/academyhub/academyhub/internal/platform/httpx"
	"github.com/academyhub/academyhub/internal/rbac"
	"github.com/academyhub/academyhub/internal/roles"
	"github.com/academyhub/academyhub/internal/shared"
	"github.com/academyhub/academyhub/internal/users"
	"github.com/academyhub/academyhub/jobs"
	"github.com/academyhub/academyhub/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Locales        *shared.Locales
	Tokens         *authz.TokenManager
	Principals     authz.PrincipalLoader
	LoginSessions  authz.SessionValidator
	Guard          *authz.Guard
	Responder      *authz.Responder
	Academies      AcademyResolver
	Pages          *Pages
	Metrics        *observability.Metrics

	AuthHandler          *auth.Handler
	UsersHandler         *users.Handler
	CoursesHandler       *courses.Handler
	AppointmentsHandler  *appointments.Handler
	AcademiesHandler     *academies.Handler
	RolesHandler         *roles.Handler
	PermissionsHandler   *roles.PermissionsHandler
	MessagesHandler      *messaging.Handler
	NotificationsHandler *notifications.Handler
	JobHandler           *jobs.Handler
}

// NewRouter constructs the chi.Router with the application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.NotFound(params.Pages.NotFound)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/", RootRedirect(params.Locales))

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	r.Route("/{locale}", func(r chi.Router) {
		r.Use(LocaleMiddleware(params.Locales, params.Pages.NotFound))
		r.Use(authz.Authenticate(params.Tokens, params.Principals, params.LoginSessions, params.Logger))
		r.Use(AcademyMiddleware(params.Academies, params.Guard, params.Logger))

		r.With(params.Guard.RequirePermissionMiddleware(params.Responder, rbac.ResDashboard, rbac.ActionRead)).Get("/", params.Pages.Home)
		r.Get("/forbidden", params.Pages.Forbidden)

		r.Group(func(r chi.Router) {
			r.Use(LoginRateLimit(params.Config.RateLimitPerMinute))
			params.AuthHandler.MountRoutes(r)
		})
		r.Route("/users", params.UsersHandler.MountRoutes)
		r.Route("/courses", params.CoursesHandler.MountRoutes)
		r.Route("/appointments", params.AppointmentsHandler.MountRoutes)
		r.Route("/academies", params.AcademiesHandler.MountRoutes)
		r.Route("/roles", params.RolesHandler.MountRoutes)
		r.Route("/permissions", params.PermissionsHandler.MountRoutes)
		r.Route("/messages", params.MessagesHandler.MountRoutes)
		r.Route("/notifications", params.NotificationsHandler.MountRoutes)
	})

	return r
}

// staticCacheHandler wraps a file server with Cache-Control headers.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
