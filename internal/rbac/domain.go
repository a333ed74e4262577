package rbac

import (
	"fmt"
	"strings"
	"time"
)

// UserRole is the single role discriminator carried by every user.
type UserRole string

const (
	RoleAdmin   UserRole = "admin"
	RoleManager UserRole = "manager"
	RoleCoach   UserRole = "coach"
	RoleParent  UserRole = "parent"
	RolePlayer  UserRole = "player"
	RoleKid     UserRole = "kid"
)

// UserRoles lists every role in display order.
func UserRoles() []UserRole {
	return []UserRole{RoleAdmin, RoleManager, RoleCoach, RoleParent, RolePlayer, RoleKid}
}

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	for _, known := range UserRoles() {
		if r == known {
			return true
		}
	}
	return false
}

// Action is an operation on a resource.
type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionCreate Action = "create"
	ActionDelete Action = "delete"
	ActionManage Action = "manage"
)

// Actions lists every action in display order.
func Actions() []Action {
	return []Action{ActionRead, ActionWrite, ActionCreate, ActionDelete, ActionManage}
}

// ParseAction validates a raw action name.
func ParseAction(raw string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Actions() {
		if a == known {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, raw)
}

// Covers reports whether holding a grants b. Manage implies every action.
func (a Action) Covers(b Action) bool {
	return a == b || a == ActionManage
}

// ResourceType classifies a registered resource.
type ResourceType string

const (
	ResourcePage   ResourceType = "page"
	ResourceModule ResourceType = "module"
	ResourceEntity ResourceType = "entity"
)

// RegisteredResource is a protectable resource key.
type RegisteredResource struct {
	Key            string       `json:"key"`
	Type           ResourceType `json:"type"`
	Description    string       `json:"description"`
	DefaultActions []Action     `json:"default_actions"`
}

// Permission is a (resource, action) pair.
type Permission struct {
	ID          string `json:"id"`
	ResourceKey string `json:"resource_key"`
	Action      Action `json:"action"`
	Description string `json:"description"`
}

// Name renders the permission as "resource:action".
func (p Permission) Name() string {
	return Grant{ResourceKey: p.ResourceKey, Action: p.Action}.String()
}

// Role is a named bundle of permission IDs that can be attached to users.
type Role struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	PermissionIDs []string  `json:"permission_ids"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// RolePermission is the policy matrix for one user role.
type RolePermission struct {
	Role      UserRole            `json:"role"`
	Matrix    map[string][]Action `json:"matrix"`
	UpdatedBy string              `json:"updated_by"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// Allows reports whether the matrix grants action on resourceKey.
func (rp RolePermission) Allows(resourceKey string, action Action) bool {
	for _, granted := range rp.Matrix[resourceKey] {
		if granted.Covers(action) {
			return true
		}
	}
	return false
}

// Grant is a direct (resource, action) permission held by a user.
type Grant struct {
	ResourceKey string `json:"resource_key"`
	Action      Action `json:"action"`
}

// String renders the grant as "resource:action".
func (g Grant) String() string {
	return g.ResourceKey + ":" + string(g.Action)
}

// ParseGrant parses "resource:action".
func ParseGrant(raw string) (Grant, error) {
	resource, action, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok || strings.TrimSpace(resource) == "" {
		return Grant{}, fmt.Errorf("rbac: malformed grant %q", raw)
	}
	a, err := ParseAction(action)
	if err != nil {
		return Grant{}, err
	}
	return Grant{ResourceKey: strings.ToLower(strings.TrimSpace(resource)), Action: a}, nil
}

// Subject is the identity evaluated by the policy.
type Subject struct {
	UserID  string
	Role    UserRole
	Grants  []Grant
	RoleIDs []string
}
