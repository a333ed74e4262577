package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/academyhub/academyhub/internal/authz"
	"github.com/academyhub/academyhub/internal/membership"
	"github.com/academyhub/academyhub/internal/rbac"
	"github.com/academyhub/academyhub/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUsers(ctx context.Context, ids []string) ([]User, error)
	ListUsers(ctx context.Context) ([]User, error)
	InsertUser(ctx context.Context, u User) error
	SaveUser(ctx context.Context, u User) error
	DeleteUser(ctx context.Context, u User) error
}

// MembershipPort links users to academies and keeps membership roles in step
// with the account role.
type MembershipPort interface {
	Add(ctx context.Context, academyID, userID string, role rbac.UserRole, createdBy string) (membership.Membership, error)
	SyncRole(ctx context.Context, userID string, role rbac.UserRole) error
}

// Auditor records administrative changes.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles user business logic.
type Service struct {
	repo       RepositoryPort
	members    MembershipPort
	audit      Auditor
	validate   *validator.Validate
	logger     *slog.Logger
	now        func() time.Time
	bcryptCost int
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, members MembershipPort, audit Auditor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       repo,
		members:    members,
		audit:      audit,
		validate:   validator.New(),
		logger:     logger,
		now:        time.Now,
		bcryptCost: bcrypt.DefaultCost,
	}
}

// FindUserByID returns the user with id.
func (s *Service) FindUserByID(ctx context.Context, id string) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// FindByEmail returns the user registered with email.
func (s *Service) FindByEmail(ctx context.Context, email string) (User, error) {
	return s.repo.GetUserByEmail(ctx, email)
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// ListByIDs returns the users with the given IDs.
func (s *Service) ListByIDs(ctx context.Context, ids []string) ([]User, error) {
	return s.repo.GetUsers(ctx, ids)
}

// CreateUser validates input, hashes the password and stores the account.
// A non-empty AcademyID also creates the membership; when that fails the
// account is removed again and the email stays available.
func (s *Service) CreateUser(ctx context.Context, in CreateInput) (User, error) {
	in.Email = normalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Struct(in); err != nil {
		return User{}, err
	}
	if !in.Role.Valid() {
		return User{}, fmt.Errorf("%w: %q", rbac.ErrUnknownRole, in.Role)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC()
	u := User{
		ID:           uuid.NewString(),
		Email:        in.Email,
		Name:         in.Name,
		PasswordHash: string(hash),
		Role:         in.Role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.InsertUser(ctx, u); err != nil {
		return User{}, err
	}
	if in.AcademyID != "" && s.members != nil {
		if _, err := s.members.Add(ctx, in.AcademyID, u.ID, u.Role, in.CreatedBy); err != nil {
			if derr := s.repo.DeleteUser(ctx, u); derr != nil {
				s.logger.Error("roll back user", slog.String("user_id", u.ID), slog.Any("error", derr))
			}
			return User{}, fmt.Errorf("add membership: %w", err)
		}
	}
	s.record(ctx, in.CreatedBy, "user.create", u.ID, map[string]any{"role": string(u.Role), "academy_id": in.AcademyID})
	return u, nil
}

// UpdateUser changes the editable profile fields. A role change is carried to
// every membership the user holds.
func (s *Service) UpdateUser(ctx context.Context, id string, in UpdateInput, actorID string) (User, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Struct(in); err != nil {
		return User{}, err
	}
	if !in.Role.Valid() {
		return User{}, fmt.Errorf("%w: %q", rbac.ErrUnknownRole, in.Role)
	}
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	roleChanged := u.Role != in.Role
	u.Name = in.Name
	u.Role = in.Role
	u.RoleIDs = in.RoleIDs
	u.UpdatedAt = s.now().UTC()
	if err := s.repo.SaveUser(ctx, u); err != nil {
		return User{}, err
	}
	if roleChanged && s.members != nil {
		if err := s.members.SyncRole(ctx, u.ID, u.Role); err != nil {
			return User{}, fmt.Errorf("sync membership role: %w", err)
		}
	}
	s.record(ctx, actorID, "user.update", u.ID, map[string]any{"role": string(u.Role)})
	return u, nil
}

// SetActive activates or deactivates the account.
func (s *Service) SetActive(ctx context.Context, id string, active bool, actorID string) (User, error) {
	if id == actorID && !active {
		return User{}, errors.New("users: cannot deactivate yourself")
	}
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	if u.Active == active {
		return u, nil
	}
	u.Active = active
	u.UpdatedAt = s.now().UTC()
	if err := s.repo.SaveUser(ctx, u); err != nil {
		return User{}, err
	}
	s.record(ctx, actorID, "user.set_active", u.ID, map[string]any{"active": active})
	return u, nil
}

// SetDirectGrants replaces the user's direct grants. Each entry is
// "resource:action".
func (s *Service) SetDirectGrants(ctx context.Context, id string, raw []string, actorID string) (User, error) {
	grants := make([]rbac.Grant, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, entry := range raw {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		g, err := rbac.ParseGrant(entry)
		if err != nil {
			return User{}, err
		}
		if _, dup := seen[g.String()]; dup {
			continue
		}
		seen[g.String()] = struct{}{}
		grants = append(grants, g)
	}
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	u.Grants = grants
	u.UpdatedAt = s.now().UTC()
	if err := s.repo.SaveUser(ctx, u); err != nil {
		return User{}, err
	}
	names := make([]string, len(grants))
	for i, g := range grants {
		names[i] = g.String()
	}
	s.record(ctx, actorID, "user.set_grants", u.ID, map[string]any{"grants": names})
	return u, nil
}

// LoadPrincipal builds the request principal for a verified user ID.
func (s *Service) LoadPrincipal(ctx context.Context, userID string) (*authz.Principal, error) {
	u, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &authz.Principal{
		UserID:  u.ID,
		Email:   u.Email,
		Name:    u.Name,
		Role:    u.Role,
		Grants:  u.Grants,
		RoleIDs: u.RoleIDs,
		Active:  u.Active,
	}, nil
}

func (s *Service) record(ctx context.Context, actorID, action, userID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if actorID == "" {
		actorID = rbac.SystemActor
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "user", EntityID: userID, Meta: meta}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

var _ authz.PrincipalLoader = (*Service)(nil)

// DisplayNames maps user IDs to names for listings. Unknown IDs map to
// themselves.
func (s *Service) DisplayNames(ctx context.Context, ids []string) (map[string]string, error) {
	list, err := s.repo.GetUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(ids))
	for _, id := range ids {
		names[id] = id
	}
	for _, u := range list {
		names[u.ID] = u.Name
	}
	return names, nil
}
