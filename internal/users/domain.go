package users

import (
	"time"

	"github.com/academyhub/academyhub/internal/rbac"
)

// User represents a user account. Accounts are deactivated, never deleted.
type User struct {
	ID           string        `json:"id"`
	Email        string        `json:"email"`
	Name         string        `json:"name"`
	PasswordHash string        `json:"password_hash"`
	Role         rbac.UserRole `json:"role"`
	Grants       []rbac.Grant  `json:"grants,omitempty"`
	RoleIDs      []string      `json:"role_ids,omitempty"`
	GroupIDs     []string      `json:"group_ids,omitempty"`
	Active       bool          `json:"active"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// CreateInput carries the fields of a new account.
type CreateInput struct {
	Email     string        `validate:"required,email"`
	Name      string        `validate:"required,max=120"`
	Password  string        `validate:"required,min=8"`
	Role      rbac.UserRole `validate:"required"`
	AcademyID string
	CreatedBy string
}

// UpdateInput carries editable profile fields.
type UpdateInput struct {
	Name    string        `validate:"required,max=120"`
	Role    rbac.UserRole `validate:"required"`
	RoleIDs []string
}
