package authz

import (
	"context"
	"log/slog"

	"github.com/academyhub/academyhub/internal/rbac"
	"github.com/academyhub/academyhub/internal/shared"
)

// Policy evaluates a permission for a subject.
type Policy interface {
	Allows(ctx context.Context, subject rbac.Subject, resourceKey string, action rbac.Action) (bool, error)
}

// CheckRecorder counts permission checks by resource and outcome.
type CheckRecorder interface {
	RecordCheck(resource, outcome string)
}

// Guard gates pages and actions on the principal stored in the request
// context. It never mutates data.
type Guard struct {
	policy        Policy
	logger        *slog.Logger
	defaultLocale string
	checks        CheckRecorder
}

// NewGuard constructs a Guard.
func NewGuard(policy Policy, logger *slog.Logger, defaultLocale string) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultLocale == "" {
		defaultLocale = "en"
	}
	return &Guard{policy: policy, logger: logger, defaultLocale: defaultLocale}
}

// WithRecorder sets the recorder that counts permission checks.
func (g *Guard) WithRecorder(rec CheckRecorder) *Guard {
	g.checks = rec
	return g
}

func (g *Guard) record(resource, outcome string) {
	if g.checks != nil {
		g.checks.RecordCheck(resource, outcome)
	}
}

func (g *Guard) locale(ctx context.Context, locale string) string {
	if locale != "" {
		return locale
	}
	if l := shared.LocaleFromContext(ctx); l != "" {
		return l
	}
	return g.defaultLocale
}

// RequireAuth returns the current principal or an unauthenticated failure.
func (g *Guard) RequireAuth(ctx context.Context, locale string) (*Principal, error) {
	p := PrincipalFromContext(ctx)
	if p == nil || !p.Active {
		return nil, &Failure{Kind: KindUnauthenticated, Locale: g.locale(ctx, locale)}
	}
	return p, nil
}

// RequireAdmin is RequireAuth plus a forbidden failure for non-admins.
func (g *Guard) RequireAdmin(ctx context.Context, locale string) (*Principal, error) {
	p, err := g.RequireAuth(ctx, locale)
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin() {
		g.logger.Warn("admin required", slog.String("user_id", p.UserID), slog.String("role", string(p.Role)))
		return nil, &Failure{Kind: KindForbidden, Locale: g.locale(ctx, locale), UserID: p.UserID}
	}
	return p, nil
}

// RequirePermission returns the principal when its role matrix, a direct
// grant, or an attached role allows action on resourceKey. Policy errors deny.
func (g *Guard) RequirePermission(ctx context.Context, resourceKey string, action rbac.Action, locale string) (*Principal, error) {
	p, err := g.RequireAuth(ctx, locale)
	if err != nil {
		return nil, err
	}
	allowed, err := g.policy.Allows(ctx, p.Subject(), resourceKey, action)
	if err != nil {
		g.logger.Error("permission check", slog.String("user_id", p.UserID), slog.String("resource", resourceKey), slog.String("action", string(action)), slog.Any("error", err))
		g.record(resourceKey, "error")
		return nil, &Failure{Kind: KindForbidden, Locale: g.locale(ctx, locale), UserID: p.UserID, Resource: resourceKey, Action: action}
	}
	if !allowed {
		g.record(resourceKey, "deny")
		g.logger.Warn("permission denied", slog.String("user_id", p.UserID), slog.String("resource", resourceKey), slog.String("action", string(action)))
		return nil, &Failure{Kind: KindForbidden, Locale: g.locale(ctx, locale), UserID: p.UserID, Resource: resourceKey, Action: action}
	}
	g.record(resourceKey, "allow")
	return p, nil
}

// CheckCurrentUserPermission is the non-failing variant used to toggle UI.
func (g *Guard) CheckCurrentUserPermission(ctx context.Context, resourceKey string, action rbac.Action) bool {
	p := PrincipalFromContext(ctx)
	if p == nil || !p.Active {
		return false
	}
	allowed, err := g.policy.Allows(ctx, p.Subject(), resourceKey, action)
	if err != nil {
		g.logger.Error("permission check", slog.String("user_id", p.UserID), slog.Any("error", err))
		return false
	}
	return allowed
}
