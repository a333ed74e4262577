package authz

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/academyhub/academyhub/internal/rbac"
	"github.com/academyhub/academyhub/internal/shared"
)

// SessionValidator reports whether a login session is still active.
type SessionValidator interface {
	SessionActive(ctx context.Context, sessionID string) (bool, error)
}

// Authenticate resolves the principal from the token cookie and stores it in
// the request context. Requests without a valid token continue anonymously.
func Authenticate(tokens *TokenManager, loader PrincipalLoader, sessions SessionValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := tokens.FromRequest(r)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := tokens.Verify(raw)
			if err != nil {
				logger.Debug("discarding auth token", slog.Any("error", err))
				tokens.ClearCookie(w)
				next.ServeHTTP(w, r)
				return
			}
			if sessions != nil {
				active, err := sessions.SessionActive(r.Context(), claims.SessionID)
				if err != nil {
					logger.Error("session lookup", slog.Any("error", err))
					next.ServeHTTP(w, r)
					return
				}
				if !active {
					tokens.ClearCookie(w)
					next.ServeHTTP(w, r)
					return
				}
			}
			principal, err := loader.LoadPrincipal(r.Context(), claims.UserID)
			if err != nil {
				if !errors.Is(err, shared.ErrNotFound) {
					logger.Error("load principal", slog.String("user_id", claims.UserID), slog.Any("error", err))
				}
				next.ServeHTTP(w, r)
				return
			}
			if principal == nil || !principal.Active {
				next.ServeHTTP(w, r)
				return
			}
			ctx := ContextWithPrincipal(r.Context(), principal)
			ctx = ContextWithSessionID(ctx, claims.SessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type sessionIDContextKey struct{}

// ContextWithSessionID stores the login session ID in context.
func ContextWithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDContextKey{}, id)
}

// SessionIDFromContext returns the login session ID, or "".
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDContextKey{}).(string)
	return id
}

// RequireAuthMiddleware rejects anonymous requests.
func (g *Guard) RequireAuthMiddleware(resp *Responder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := g.RequireAuth(r.Context(), ""); err != nil {
				resp.Respond(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdminMiddleware rejects non-admin requests.
func (g *Guard) RequireAdminMiddleware(resp *Responder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := g.RequireAdmin(r.Context(), ""); err != nil {
				resp.Respond(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermissionMiddleware rejects requests lacking action on resourceKey.
func (g *Guard) RequirePermissionMiddleware(resp *Responder, resourceKey string, action rbac.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := g.RequirePermission(r.Context(), resourceKey, action, ""); err != nil {
				resp.Respond(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
