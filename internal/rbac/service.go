package rbac

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SystemActor is recorded as UpdatedBy for seeded matrices.
const SystemActor = "system"

// Repository defines persistence operations for RBAC records.
type Repository interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id string) (Role, error)
	GetRoles(ctx context.Context, ids []string) ([]Role, error)
	SaveRole(ctx context.Context, role Role) error
	DeleteRole(ctx context.Context, id string) error
	ListPermissions(ctx context.Context) ([]Permission, error)
	GetPermissions(ctx context.Context, ids []string) ([]Permission, error)
	SavePermission(ctx context.Context, perm Permission) error
	ListResources(ctx context.Context) ([]RegisteredResource, error)
	SaveResource(ctx context.Context, res RegisteredResource) error
	GetRolePermission(ctx context.Context, role UserRole) (RolePermission, error)
	SaveRolePermission(ctx context.Context, rp RolePermission) error
}

// Service orchestrates RBAC operations.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService constructs a Service backed by the provided repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Allows reports whether subject may perform action on resourceKey. Admins are
// always allowed. Otherwise a direct grant, the role matrix, or an attached role
// bundle must cover the action. Store errors are returned with a false result.
func (s *Service) Allows(ctx context.Context, subject Subject, resourceKey string, action Action) (bool, error) {
	resourceKey = strings.ToLower(strings.TrimSpace(resourceKey))
	if resourceKey == "" {
		return false, nil
	}
	if subject.Role == RoleAdmin {
		return true, nil
	}
	for _, g := range subject.Grants {
		if g.ResourceKey == resourceKey && g.Action.Covers(action) {
			return true, nil
		}
	}
	matrix, err := s.GetRoleMatrix(ctx, subject.Role)
	if err != nil {
		return false, err
	}
	if matrix.Allows(resourceKey, action) {
		return true, nil
	}
	grants, err := s.bundleGrants(ctx, subject.RoleIDs)
	if err != nil {
		return false, err
	}
	for _, g := range grants {
		if g.ResourceKey == resourceKey && g.Action.Covers(action) {
			return true, nil
		}
	}
	return false, nil
}

// EffectiveGrants returns the deduplicated grants held by subject, sorted.
func (s *Service) EffectiveGrants(ctx context.Context, subject Subject) ([]Grant, error) {
	matrix, err := s.GetRoleMatrix(ctx, subject.Role)
	if err != nil {
		return nil, err
	}
	bundles, err := s.bundleGrants(ctx, subject.RoleIDs)
	if err != nil {
		return nil, err
	}
	seen := make(map[Grant]struct{})
	for resource, actions := range matrix.Matrix {
		for _, a := range actions {
			seen[Grant{ResourceKey: resource, Action: a}] = struct{}{}
		}
	}
	for _, g := range subject.Grants {
		seen[g] = struct{}{}
	}
	for _, g := range bundles {
		seen[g] = struct{}{}
	}
	grants := make([]Grant, 0, len(seen))
	for g := range seen {
		grants = append(grants, g)
	}
	sort.Slice(grants, func(i, j int) bool { return grants[i].String() < grants[j].String() })
	return grants, nil
}

func (s *Service) bundleGrants(ctx context.Context, roleIDs []string) ([]Grant, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	roles, err := s.repo.GetRoles(ctx, roleIDs)
	if err != nil {
		return nil, err
	}
	var permIDs []string
	for _, role := range roles {
		permIDs = append(permIDs, role.PermissionIDs...)
	}
	if len(permIDs) == 0 {
		return nil, nil
	}
	perms, err := s.repo.GetPermissions(ctx, permIDs)
	if err != nil {
		return nil, err
	}
	grants := make([]Grant, 0, len(perms))
	for _, p := range perms {
		grants = append(grants, Grant{ResourceKey: p.ResourceKey, Action: p.Action})
	}
	return grants, nil
}

// GetRoleMatrix returns the stored matrix for role, or the default matrix when
// none has been saved yet.
func (s *Service) GetRoleMatrix(ctx context.Context, role UserRole) (RolePermission, error) {
	if !role.Valid() {
		return RolePermission{}, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	rp, err := s.repo.GetRolePermission(ctx, role)
	if err == nil {
		return rp, nil
	}
	if errors.Is(err, ErrNotFound) {
		return RolePermission{Role: role, Matrix: DefaultMatrix(role), UpdatedBy: SystemActor}, nil
	}
	return RolePermission{}, err
}

// UpdateRoleMatrix validates and replaces the matrix for role.
func (s *Service) UpdateRoleMatrix(ctx context.Context, role UserRole, matrix map[string][]Action, updatedBy string) (RolePermission, error) {
	if !role.Valid() {
		return RolePermission{}, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	resources, err := s.repo.ListResources(ctx)
	if err != nil {
		return RolePermission{}, err
	}
	known := make(map[string]struct{}, len(resources))
	for _, res := range resources {
		known[res.Key] = struct{}{}
	}
	clean := make(map[string][]Action, len(matrix))
	for resource, actions := range matrix {
		if _, ok := known[resource]; !ok {
			return RolePermission{}, fmt.Errorf("%w: %q", ErrUnknownResource, resource)
		}
		deduped := dedupeActions(actions)
		if len(deduped) == 0 {
			continue
		}
		clean[resource] = deduped
	}
	rp := RolePermission{Role: role, Matrix: clean, UpdatedBy: updatedBy, UpdatedAt: s.now().UTC()}
	if err := s.repo.SaveRolePermission(ctx, rp); err != nil {
		return RolePermission{}, err
	}
	return rp, nil
}

func dedupeActions(actions []Action) []Action {
	seen := make(map[Action]struct{}, len(actions))
	out := make([]Action, 0, len(actions))
	for _, known := range Actions() {
		for _, a := range actions {
			if a != known {
				continue
			}
			if _, ok := seen[a]; ok {
				continue
			}
			seen[a] = struct{}{}
			out = append(out, a)
		}
	}
	return out
}

// ListRoles returns all roles ordered by name.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id string) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRole inserts a new role.
func (s *Service) CreateRole(ctx context.Context, name, description string, permissionIDs []string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("rbac: role name required")
	}
	if err := s.checkPermissionIDs(ctx, permissionIDs); err != nil {
		return Role{}, err
	}
	now := s.now().UTC()
	role := Role{
		ID:            uuid.NewString(),
		Name:          name,
		Description:   strings.TrimSpace(description),
		PermissionIDs: uniqueSorted(permissionIDs),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.SaveRole(ctx, role); err != nil {
		return Role{}, err
	}
	return role, nil
}

// UpdateRole updates an existing role's name and description.
func (s *Service) UpdateRole(ctx context.Context, id, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("rbac: role name required")
	}
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return Role{}, err
	}
	role.Name = name
	role.Description = strings.TrimSpace(description)
	role.UpdatedAt = s.now().UTC()
	if err := s.repo.SaveRole(ctx, role); err != nil {
		return Role{}, err
	}
	return role, nil
}

// DeleteRole removes a role by ID. Returns ErrNotFound if nothing was deleted.
func (s *Service) DeleteRole(ctx context.Context, id string) error {
	return s.repo.DeleteRole(ctx, id)
}

// SetRolePermissions replaces permissions for a role.
func (s *Service) SetRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if err := s.checkPermissionIDs(ctx, permissionIDs); err != nil {
		return err
	}
	role.PermissionIDs = uniqueSorted(permissionIDs)
	role.UpdatedAt = s.now().UTC()
	return s.repo.SaveRole(ctx, role)
}

func (s *Service) checkPermissionIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	unique := uniqueSorted(ids)
	perms, err := s.repo.GetPermissions(ctx, unique)
	if err != nil {
		return err
	}
	if len(perms) != len(unique) {
		return fmt.Errorf("%w: permission", ErrNotFound)
	}
	return nil
}

// ListPermissions returns all permissions.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// EnsurePermission upserts the permission for (resourceKey, action).
func (s *Service) EnsurePermission(ctx context.Context, resourceKey string, action Action, description string) (Permission, error) {
	resourceKey = strings.ToLower(strings.TrimSpace(resourceKey))
	if resourceKey == "" {
		return Permission{}, errors.New("rbac: resource key required")
	}
	if _, err := ParseAction(string(action)); err != nil {
		return Permission{}, err
	}
	perm := Permission{
		ResourceKey: resourceKey,
		Action:      action,
		Description: strings.TrimSpace(description),
	}
	perm.ID = perm.Name()
	if err := s.repo.SavePermission(ctx, perm); err != nil {
		return Permission{}, err
	}
	return perm, nil
}

// ListResources returns every registered resource.
func (s *Service) ListResources(ctx context.Context) ([]RegisteredResource, error) {
	return s.repo.ListResources(ctx)
}

// RegisterResource declares res and ensures a permission exists for each of
// its default actions.
func (s *Service) RegisterResource(ctx context.Context, res RegisteredResource) error {
	res.Key = strings.ToLower(strings.TrimSpace(res.Key))
	if res.Key == "" {
		return errors.New("rbac: resource key required")
	}
	switch res.Type {
	case ResourcePage, ResourceModule, ResourceEntity:
	default:
		return fmt.Errorf("rbac: unknown resource type %q", res.Type)
	}
	res.DefaultActions = dedupeActions(res.DefaultActions)
	if err := s.repo.SaveResource(ctx, res); err != nil {
		return err
	}
	for _, a := range res.DefaultActions {
		if _, err := s.EnsurePermission(ctx, res.Key, a, res.Description+" ("+string(a)+")"); err != nil {
			return err
		}
	}
	return nil
}

// SeedDefaults registers the default resources and stores the default matrix
// for every role that has none yet.
func (s *Service) SeedDefaults(ctx context.Context) error {
	for _, res := range DefaultResources() {
		if err := s.RegisterResource(ctx, res); err != nil {
			return fmt.Errorf("rbac: seed resource %s: %w", res.Key, err)
		}
	}
	for _, role := range UserRoles() {
		_, err := s.repo.GetRolePermission(ctx, role)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		rp := RolePermission{Role: role, Matrix: DefaultMatrix(role), UpdatedBy: SystemActor, UpdatedAt: s.now().UTC()}
		if err := s.repo.SaveRolePermission(ctx, rp); err != nil {
			return fmt.Errorf("rbac: seed matrix %s: %w", role, err)
		}
	}
	return nil
}

func uniqueSorted(values []string) []string {
	set := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := set[v]; ok {
			continue
		}
		set[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
