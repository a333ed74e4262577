package shared

import "context"

type sessionContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

type academyContextKey struct{}

// ContextWithAcademy stores the selected academy ID in context.
func ContextWithAcademy(ctx context.Context, academyID string) context.Context {
	return context.WithValue(ctx, academyContextKey{}, academyID)
}

// AcademyFromContext returns the selected academy ID, or "".
func AcademyFromContext(ctx context.Context) string {
	id, _ := ctx.Value(academyContextKey{}).(string)
	return id
}
