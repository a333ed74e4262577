// Package membership links users to academies and guards academy-scoped access.
package membership

import (
	"time"

	"github.com/academyhub/academyhub/internal/rbac"
)

// Membership asserts that a user belongs to an academy.
type Membership struct {
	AcademyID string        `json:"academy_id"`
	UserID    string        `json:"user_id"`
	Role      rbac.UserRole `json:"role"`
	CreatedBy string        `json:"created_by"`
	CreatedAt time.Time     `json:"created_at"`
}
