// Package roles serves role, permission-matrix and resource administration
// pages on top of the rbac policy store. Every change is audited.
package roles

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/academyhub/academyhub/internal/rbac"
	"github.com/academyhub/academyhub/internal/shared"
)

// Auditor records administrative changes.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
	Page(ctx context.Context, page, perPage int) ([]shared.AuditLog, shared.Pagination, error)
}

// Service wraps rbac.Service mutations with audit records.
type Service struct {
	policy *rbac.Service
	audit  Auditor
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(policy *rbac.Service, audit Auditor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{policy: policy, audit: audit, logger: logger}
}

// ListRoles returns all role bundles.
func (s *Service) ListRoles(ctx context.Context) ([]rbac.Role, error) {
	return s.policy.ListRoles(ctx)
}

// GetRole returns one role bundle.
func (s *Service) GetRole(ctx context.Context, id string) (rbac.Role, error) {
	return s.policy.GetRole(ctx, id)
}

// CreateRole creates a role bundle.
func (s *Service) CreateRole(ctx context.Context, name, description string, permissionIDs []string, actorID string) (rbac.Role, error) {
	role, err := s.policy.CreateRole(ctx, name, description, permissionIDs)
	if err != nil {
		return rbac.Role{}, err
	}
	s.record(ctx, actorID, "role.create", "role", role.ID, map[string]any{"name": role.Name})
	return role, nil
}

// UpdateRole changes the role's name, description and permissions.
func (s *Service) UpdateRole(ctx context.Context, id, name, description string, permissionIDs []string, actorID string) (rbac.Role, error) {
	if strings.TrimSpace(name) == "" {
		return rbac.Role{}, errors.New("roles: name required")
	}
	if err := s.policy.SetRolePermissions(ctx, id, permissionIDs); err != nil {
		return rbac.Role{}, err
	}
	role, err := s.policy.UpdateRole(ctx, id, name, description)
	if err != nil {
		return rbac.Role{}, err
	}
	s.record(ctx, actorID, "role.update", "role", role.ID, map[string]any{"permissions": role.PermissionIDs})
	return role, nil
}

// DeleteRole removes a role bundle.
func (s *Service) DeleteRole(ctx context.Context, id, actorID string) error {
	if err := s.policy.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "role.delete", "role", id, nil)
	return nil
}

// Matrix returns the policy matrix of a user role.
func (s *Service) Matrix(ctx context.Context, role rbac.UserRole) (rbac.RolePermission, error) {
	return s.policy.GetRoleMatrix(ctx, role)
}

// UpdateMatrix replaces the policy matrix of a user role.
func (s *Service) UpdateMatrix(ctx context.Context, role rbac.UserRole, matrix map[string][]rbac.Action, actorID string) (rbac.RolePermission, error) {
	rp, err := s.policy.UpdateRoleMatrix(ctx, role, matrix, actorID)
	if err != nil {
		return rbac.RolePermission{}, err
	}
	s.record(ctx, actorID, "matrix.update", "user_role", string(role), nil)
	return rp, nil
}

// ListPermissions returns all permissions.
func (s *Service) ListPermissions(ctx context.Context) ([]rbac.Permission, error) {
	return s.policy.ListPermissions(ctx)
}

// EnsurePermission declares a (resource, action) permission.
func (s *Service) EnsurePermission(ctx context.Context, resourceKey string, action rbac.Action, description, actorID string) (rbac.Permission, error) {
	perm, err := s.policy.EnsurePermission(ctx, resourceKey, action, description)
	if err != nil {
		return rbac.Permission{}, err
	}
	s.record(ctx, actorID, "permission.ensure", "permission", perm.ID, nil)
	return perm, nil
}

// ListResources returns the registered resources.
func (s *Service) ListResources(ctx context.Context) ([]rbac.RegisteredResource, error) {
	return s.policy.ListResources(ctx)
}

// RegisterResource declares a protectable resource.
func (s *Service) RegisterResource(ctx context.Context, res rbac.RegisteredResource, actorID string) error {
	if err := s.policy.RegisterResource(ctx, res); err != nil {
		return err
	}
	s.record(ctx, actorID, "resource.register", "resource", res.Key, nil)
	return nil
}

// AuditPage returns one page of administrative changes, newest first.
func (s *Service) AuditPage(ctx context.Context, page, perPage int) ([]shared.AuditLog, shared.Pagination, error) {
	return s.audit.Page(ctx, page, perPage)
}

func (s *Service) record(ctx context.Context, actorID, action, entity, entityID string, meta map[string]any) {
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: entity, EntityID: entityID, Meta: meta}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
