package rbac

import (
	"context"
	"errors"
	"sort"

	"github.com/academyhub/academyhub/internal/platform/kv"
)

const (
	keyRoles       = "rbac:roles"
	keyPermissions = "rbac:permissions"
	keyResources   = "rbac:resources"
)

func roleKey(id string) string            { return kv.Key("rbac", "role", id) }
func permissionKey(id string) string      { return kv.Key("rbac", "permission", id) }
func resourceKey(key string) string       { return kv.Key("rbac", "resource", key) }
func rolePermissionKey(r UserRole) string { return kv.Key("rbac", "role_permission", string(r)) }

// KVRepository persists RBAC records in the key-value store.
type KVRepository struct {
	store *kv.Store
}

// NewRepository constructs a KVRepository.
func NewRepository(store *kv.Store) *KVRepository {
	return &KVRepository{store: store}
}

// ListRoles returns all roles ordered by name.
func (r *KVRepository) ListRoles(ctx context.Context) ([]Role, error) {
	ids, err := r.store.SetMembers(ctx, keyRoles)
	if err != nil {
		return nil, err
	}
	roles, err := kv.GetMany[Role](ctx, r.store, mapKeys(ids, roleKey))
	if err != nil {
		return nil, err
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles, nil
}

// GetRole fetches a role by ID.
func (r *KVRepository) GetRole(ctx context.Context, id string) (Role, error) {
	var role Role
	if err := r.store.GetJSON(ctx, roleKey(id), &role); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// GetRoles fetches the roles with the given IDs, skipping unknown IDs.
func (r *KVRepository) GetRoles(ctx context.Context, ids []string) ([]Role, error) {
	return kv.GetMany[Role](ctx, r.store, mapKeys(ids, roleKey))
}

// SaveRole upserts a role.
func (r *KVRepository) SaveRole(ctx context.Context, role Role) error {
	return r.store.Tx(ctx, func(b *kv.Batch) error {
		b.SetJSON(roleKey(role.ID), role, 0)
		b.SetAdd(keyRoles, role.ID)
		return nil
	})
}

// DeleteRole removes a role by ID.
func (r *KVRepository) DeleteRole(ctx context.Context, id string) error {
	ok, err := r.store.Exists(ctx, roleKey(id))
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return r.store.Tx(ctx, func(b *kv.Batch) error {
		b.Delete(roleKey(id))
		b.SetRemove(keyRoles, id)
		return nil
	})
}

// ListPermissions returns all permissions ordered by resource then action.
func (r *KVRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	ids, err := r.store.SetMembers(ctx, keyPermissions)
	if err != nil {
		return nil, err
	}
	return r.GetPermissions(ctx, ids)
}

// GetPermissions fetches the permissions with the given IDs, skipping unknown IDs.
func (r *KVRepository) GetPermissions(ctx context.Context, ids []string) ([]Permission, error) {
	perms, err := kv.GetMany[Permission](ctx, r.store, mapKeys(ids, permissionKey))
	if err != nil {
		return nil, err
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].ID < perms[j].ID })
	return perms, nil
}

// SavePermission upserts a permission.
func (r *KVRepository) SavePermission(ctx context.Context, perm Permission) error {
	return r.store.Tx(ctx, func(b *kv.Batch) error {
		b.SetJSON(permissionKey(perm.ID), perm, 0)
		b.SetAdd(keyPermissions, perm.ID)
		return nil
	})
}

// ListResources returns every registered resource ordered by key.
func (r *KVRepository) ListResources(ctx context.Context) ([]RegisteredResource, error) {
	keys, err := r.store.SetMembers(ctx, keyResources)
	if err != nil {
		return nil, err
	}
	resources, err := kv.GetMany[RegisteredResource](ctx, r.store, mapKeys(keys, resourceKey))
	if err != nil {
		return nil, err
	}
	sort.Slice(resources, func(i, j int) bool { return resources[i].Key < resources[j].Key })
	return resources, nil
}

// SaveResource upserts a registered resource.
func (r *KVRepository) SaveResource(ctx context.Context, res RegisteredResource) error {
	return r.store.Tx(ctx, func(b *kv.Batch) error {
		b.SetJSON(resourceKey(res.Key), res, 0)
		b.SetAdd(keyResources, res.Key)
		return nil
	})
}

// GetRolePermission loads the matrix for role.
func (r *KVRepository) GetRolePermission(ctx context.Context, role UserRole) (RolePermission, error) {
	var rp RolePermission
	if err := r.store.GetJSON(ctx, rolePermissionKey(role), &rp); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return RolePermission{}, ErrNotFound
		}
		return RolePermission{}, err
	}
	return rp, nil
}

// SaveRolePermission replaces the matrix for rp.Role.
func (r *KVRepository) SaveRolePermission(ctx context.Context, rp RolePermission) error {
	return r.store.SetJSON(ctx, rolePermissionKey(rp.Role), rp, 0)
}

func mapKeys(ids []string, fn func(string) string) []string {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = fn(id)
	}
	return keys
}

var _ Repository = (*KVRepository)(nil)
