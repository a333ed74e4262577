package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/academyhub/academyhub/internal/rbac"
	"github.com/academyhub/academyhub/internal/shared"
)

// ErrNotMember reports a missing membership. It wraps shared.ErrNotFound so a
// tenant violation renders exactly like a missing entity.
var ErrNotMember = fmt.Errorf("%w: membership", shared.ErrNotFound)

// RepositoryPort defines data access for memberships.
type RepositoryPort interface {
	GetAcademyMembership(ctx context.Context, academyID, userID string) (*Membership, error)
	GetUserAcademyIDs(ctx context.Context, userID string) ([]string, error)
	ListUserMemberships(ctx context.Context, userID string) ([]Membership, error)
	ListAcademyMemberIDs(ctx context.Context, academyID string) ([]string, error)
	ListAcademyMembers(ctx context.Context, academyID string) ([]Membership, error)
	AddMembership(ctx context.Context, m Membership) error
	RemoveMembership(ctx context.Context, academyID, userID string) error
}

// Viewer is the requester whose academy scope is being resolved.
type Viewer struct {
	Role              rbac.UserRole
	SelectedAcademyID string
}

// Service exposes membership guards, the academy resolver and mutations.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// RequireUserInAcademy returns ErrNotMember unless userID belongs to academyID.
func (s *Service) RequireUserInAcademy(ctx context.Context, academyID, userID string) error {
	m, err := s.repo.GetAcademyMembership(ctx, academyID, userID)
	if err != nil {
		return err
	}
	if m == nil {
		return ErrNotMember
	}
	return nil
}

// IsUserInAcademy reports membership. Lookup failures count as not a member.
func (s *Service) IsUserInAcademy(ctx context.Context, academyID, userID string) bool {
	m, err := s.repo.GetAcademyMembership(ctx, academyID, userID)
	if err != nil {
		s.logger.Warn("membership lookup", slog.String("academy_id", academyID), slog.String("user_id", userID), slog.Any("error", err))
		return false
	}
	return m != nil
}

// ResolveTargetUserAcademyID picks the academy whose data is shown when viewer
// looks at targetUserID. Non-admins are pinned to their selected academy. An
// admin keeps the selected academy when the target belongs to it and otherwise
// falls back to the smallest academy ID the target belongs to. A target with no
// membership at all resolves to ErrNotMember for every viewer.
func (s *Service) ResolveTargetUserAcademyID(ctx context.Context, viewer Viewer, targetUserID string) (string, error) {
	ids, err := s.repo.GetUserAcademyIDs(ctx, targetUserID)
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", ErrNotMember
	}
	if viewer.Role != rbac.RoleAdmin {
		if viewer.SelectedAcademyID == "" {
			return "", ErrNotMember
		}
		return viewer.SelectedAcademyID, nil
	}
	if viewer.SelectedAcademyID != "" {
		m, err := s.repo.GetAcademyMembership(ctx, viewer.SelectedAcademyID, targetUserID)
		if err != nil {
			return "", err
		}
		if m != nil {
			return viewer.SelectedAcademyID, nil
		}
	}
	return slices.Min(ids), nil
}

// AcademyIDs returns the sorted academy IDs userID belongs to.
func (s *Service) AcademyIDs(ctx context.Context, userID string) ([]string, error) {
	return s.repo.GetUserAcademyIDs(ctx, userID)
}

// ListUserMemberships returns every membership held by userID.
func (s *Service) ListUserMemberships(ctx context.Context, userID string) ([]Membership, error) {
	return s.repo.ListUserMemberships(ctx, userID)
}

// ListMembers returns the memberships of academyID.
func (s *Service) ListMembers(ctx context.Context, academyID string) ([]Membership, error) {
	return s.repo.ListAcademyMembers(ctx, academyID)
}

// MemberIDs returns the user IDs belonging to academyID.
func (s *Service) MemberIDs(ctx context.Context, academyID string) ([]string, error) {
	return s.repo.ListAcademyMemberIDs(ctx, academyID)
}

// Add links userID to academyID. Re-adding an existing member updates the role
// and keeps the original audit fields.
func (s *Service) Add(ctx context.Context, academyID, userID string, role rbac.UserRole, createdBy string) (Membership, error) {
	academyID = strings.TrimSpace(academyID)
	userID = strings.TrimSpace(userID)
	if academyID == "" || userID == "" {
		return Membership{}, errors.New("membership: academy and user required")
	}
	if !role.Valid() {
		return Membership{}, fmt.Errorf("%w: %q", rbac.ErrUnknownRole, role)
	}
	existing, err := s.repo.GetAcademyMembership(ctx, academyID, userID)
	if err != nil {
		return Membership{}, err
	}
	m := Membership{AcademyID: academyID, UserID: userID, Role: role, CreatedBy: createdBy, CreatedAt: s.now().UTC()}
	if existing != nil {
		m.CreatedBy = existing.CreatedBy
		m.CreatedAt = existing.CreatedAt
	}
	if err := s.repo.AddMembership(ctx, m); err != nil {
		return Membership{}, err
	}
	return m, nil
}

// SyncRole rewrites the role on every membership userID holds.
func (s *Service) SyncRole(ctx context.Context, userID string, role rbac.UserRole) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", rbac.ErrUnknownRole, role)
	}
	list, err := s.repo.ListUserMemberships(ctx, userID)
	if err != nil {
		return err
	}
	for _, m := range list {
		if m.Role == role {
			continue
		}
		m.Role = role
		if err := s.repo.AddMembership(ctx, m); err != nil {
			return fmt.Errorf("sync role in %s: %w", m.AcademyID, err)
		}
	}
	return nil
}

// Remove unlinks userID from academyID.
func (s *Service) Remove(ctx context.Context, academyID, userID string) error {
	if err := s.RequireUserInAcademy(ctx, academyID, userID); err != nil {
		return err
	}
	return s.repo.RemoveMembership(ctx, academyID, userID)
}
