package authz

import (
	"errors"
	"fmt"

	"github.com/academyhub/academyhub/internal/rbac"
	"github.com/academyhub/academyhub/internal/shared"
)

var (
	// ErrUnauthenticated means no valid session principal.
	ErrUnauthenticated = errors.New("authz: unauthenticated")
	// ErrForbidden means the principal lacks the required role or permission.
	ErrForbidden = errors.New("authz: forbidden")
)

// Kind classifies guard failures.
type Kind string

const (
	KindUnauthenticated Kind = "unauthenticated"
	KindForbidden       Kind = "forbidden"
	KindNotFound        Kind = "not_found"
)

// Failure is returned by guards. Respond converts it into a redirect or a 404.
type Failure struct {
	Kind     Kind
	Locale   string
	UserID   string
	Resource string
	Action   rbac.Action
}

func (f *Failure) Error() string {
	switch f.Kind {
	case KindUnauthenticated:
		return "authz: unauthenticated"
	case KindForbidden:
		if f.Resource != "" {
			return fmt.Sprintf("authz: forbidden %s:%s", f.Resource, f.Action)
		}
		return "authz: forbidden"
	default:
		return "authz: not found"
	}
}

// Unwrap exposes the sentinel matching the failure kind.
func (f *Failure) Unwrap() error {
	switch f.Kind {
	case KindUnauthenticated:
		return ErrUnauthenticated
	case KindForbidden:
		return ErrForbidden
	default:
		return shared.ErrNotFound
	}
}

// KindOf classifies any error the page boundary may receive. Errors that are
// not guard failures but wrap shared.ErrNotFound count as KindNotFound.
func KindOf(err error) (Kind, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind, true
	}
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return KindUnauthenticated, true
	case errors.Is(err, ErrForbidden):
		return KindForbidden, true
	case errors.Is(err, shared.ErrNotFound):
		return KindNotFound, true
	}
	return "", false
}
