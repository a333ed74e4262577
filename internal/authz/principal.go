// Package authz resolves the request principal and gates pages and actions by
// authentication state and permission.
package authz

import (
	"context"

	"github.com/academyhub/academyhub/internal/rbac"
)

// Principal is the authenticated user attached to a request. It is derived
// from a verified token and the stored user record, never persisted.
type Principal struct {
	UserID  string
	Email   string
	Name    string
	Role    rbac.UserRole
	Grants  []rbac.Grant
	RoleIDs []string
	Active  bool
}

// IsAdmin reports whether the principal holds the admin role.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == rbac.RoleAdmin
}

// Subject converts the principal into the policy subject.
func (p *Principal) Subject() rbac.Subject {
	return rbac.Subject{UserID: p.UserID, Role: p.Role, Grants: p.Grants, RoleIDs: p.RoleIDs}
}

// PrincipalLoader builds a principal from a verified user ID.
type PrincipalLoader interface {
	LoadPrincipal(ctx context.Context, userID string) (*Principal, error)
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal, or nil for anonymous requests.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}
