package app

import (
	"context"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/academyhub/academyhub/internal/authz"
	"github.com/academyhub/academyhub/internal/courses"
	"github.com/academyhub/academyhub/internal/rbac"
	"github.com/academyhub/academyhub/internal/shared"
	"github.com/academyhub/academyhub/internal/view"
)

// CourseLister lists the courses of an academy.
type CourseLister interface {
	ListCourses(ctx context.Context, academyID string) ([]courses.Course, error)
}

// MemberLister lists the member IDs of an academy.
type MemberLister interface {
	MemberIDs(ctx context.Context, academyID string) ([]string, error)
}

// NotificationCounter counts unread notifications of a user.
type NotificationCounter interface {
	UnreadCount(ctx context.Context, userID string) (int, error)
}

// MessageCounter counts unread messages of a user in an academy.
type MessageCounter interface {
	UnreadCount(ctx context.Context, academyID, userID string) (int, error)
}

// DashboardSources feed the counters on the home page.
type DashboardSources struct {
	Courses       CourseLister
	Members       MemberLister
	Notifications NotificationCounter
	Messages      MessageCounter
}

// Pages renders the pages owned by the application shell.
type Pages struct {
	logger    *slog.Logger
	templates *view.Engine
	csrf      *shared.CSRFManager
	guard     *authz.Guard
	sources   DashboardSources
}

// NewPages constructs Pages.
func NewPages(logger *slog.Logger, templates *view.Engine, csrf *shared.CSRFManager, guard *authz.Guard, sources DashboardSources) *Pages {
	return &Pages{logger: logger, templates: templates, csrf: csrf, guard: guard, sources: sources}
}

type dashboard struct {
	Courses             int
	Members             int
	UnreadNotifications int
	UnreadMessages      int
}

// Home renders the dashboard of the selected academy.
func (p *Pages) Home(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal := authz.PrincipalFromContext(ctx)
	academyID := shared.AcademyFromContext(ctx)

	var stats dashboard
	g, gctx := errgroup.WithContext(ctx)
	if academyID != "" && p.guard.CheckCurrentUserPermission(ctx, rbac.ResCourses, rbac.ActionRead) {
		g.Go(func() error {
			list, err := p.sources.Courses.ListCourses(gctx, academyID)
			stats.Courses = len(list)
			return err
		})
	}
	if academyID != "" && p.guard.CheckCurrentUserPermission(ctx, rbac.ResMemberships, rbac.ActionRead) {
		g.Go(func() error {
			ids, err := p.sources.Members.MemberIDs(gctx, academyID)
			stats.Members = len(ids)
			return err
		})
	}
	g.Go(func() error {
		n, err := p.sources.Notifications.UnreadCount(gctx, principal.UserID)
		stats.UnreadNotifications = n
		return err
	})
	if academyID != "" {
		g.Go(func() error {
			n, err := p.sources.Messages.UnreadCount(gctx, academyID, principal.UserID)
			stats.UnreadMessages = n
			return err
		})
	}
	if err := g.Wait(); err != nil {
		p.logger.Error("load dashboard", slog.String("user_id", principal.UserID), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	p.render(w, r, "pages/home.html", "Dashboard", map[string]any{"Stats": stats, "HasAcademy": academyID != ""}, http.StatusOK)
}

// Forbidden renders the page the guard redirects refused requests to.
func (p *Pages) Forbidden(w http.ResponseWriter, r *http.Request) {
	p.render(w, r, "pages/forbidden.html", "Access denied", nil, http.StatusForbidden)
}

// NotFound renders the shared 404 page. Tenant violations land here too.
func (p *Pages) NotFound(w http.ResponseWriter, r *http.Request) {
	p.render(w, r, "pages/notfound.html", "Not found", nil, http.StatusNotFound)
}

func (p *Pages) render(w http.ResponseWriter, r *http.Request, template, title string, data map[string]any, status int) {
	if err := p.templates.Render(w, status, template, view.NewTemplateData(r, p.csrf, title, data)); err != nil {
		p.logger.Error("render template", slog.String("template", template), slog.Any("error", err))
		http.Error(w, http.StatusText(status), status)
	}
}
