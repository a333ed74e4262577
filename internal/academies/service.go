package academies

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/academyhub/academyhub/internal/authz"
	"github.com/academyhub/academyhub/internal/membership"
	"github.com/academyhub/academyhub/internal/rbac"
	"github.com/academyhub/academyhub/internal/shared"
	"github.com/academyhub/academyhub/internal/users"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// RepositoryPort defines data access for academies.
type RepositoryPort interface {
	Get(ctx context.Context, id string) (Academy, error)
	GetMany(ctx context.Context, ids []string) ([]Academy, error)
	ListIDs(ctx context.Context) ([]string, error)
	Insert(ctx context.Context, a Academy) error
}

// UserDirectory resolves accounts for member management.
type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) (users.User, error)
	DisplayNames(ctx context.Context, ids []string) (map[string]string, error)
}

// Auditor records administrative changes.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages academies and their members.
type Service struct {
	repo     RepositoryPort
	members  *membership.Service
	users    UserDirectory
	audit    Auditor
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a Service.
func NewService(repo RepositoryPort, members *membership.Service, users UserDirectory, audit Auditor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, members: members, users: users, audit: audit, validate: validator.New(), logger: logger, now: time.Now}
}

// ListAcademies returns every academy.
func (s *Service) ListAcademies(ctx context.Context) ([]Academy, error) {
	ids, err := s.repo.ListIDs(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.GetMany(ctx, ids)
}

// ListForUser returns the academies p may switch to: all for admins, the
// member academies otherwise.
func (s *Service) ListForUser(ctx context.Context, p *authz.Principal) ([]Academy, error) {
	if p.IsAdmin() {
		return s.ListAcademies(ctx)
	}
	ids, err := s.members.AcademyIDs(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	return s.repo.GetMany(ctx, ids)
}

// Get returns one academy.
func (s *Service) Get(ctx context.Context, id string) (Academy, error) {
	return s.repo.Get(ctx, id)
}

// Create validates and stores a new academy.
func (s *Service) Create(ctx context.Context, in CreateInput, actorID string) (Academy, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Slug = strings.ToLower(strings.TrimSpace(in.Slug))
	if err := s.validate.Struct(in); err != nil {
		return Academy{}, err
	}
	if !slugPattern.MatchString(in.Slug) {
		return Academy{}, fmt.Errorf("academies: invalid slug %q", in.Slug)
	}
	a := Academy{ID: uuid.NewString(), Name: in.Name, Slug: in.Slug, CreatedBy: actorID, CreatedAt: s.now().UTC()}
	if err := s.repo.Insert(ctx, a); err != nil {
		return Academy{}, err
	}
	s.record(ctx, actorID, "academy.create", a.ID, map[string]any{"slug": a.Slug})
	return a, nil
}

// Select validates that p may operate in academyID. Non-admins must be
// members; admins may pick any existing academy. Violations are not found.
func (s *Service) Select(ctx context.Context, p *authz.Principal, academyID string) (Academy, error) {
	if !p.IsAdmin() {
		if err := s.members.RequireUserInAcademy(ctx, academyID, p.UserID); err != nil {
			return Academy{}, err
		}
	}
	return s.repo.Get(ctx, academyID)
}

// Current returns the academy p operates in given the session's selection.
// A stale or missing selection falls back to the smallest member academy ID,
// and for admins without memberships to the smallest academy ID overall.
// The empty string means p has no academy.
func (s *Service) Current(ctx context.Context, p *authz.Principal, selected string) (string, error) {
	if selected != "" {
		if p.IsAdmin() {
			if _, err := s.repo.Get(ctx, selected); err == nil {
				return selected, nil
			}
		} else if s.members.IsUserInAcademy(ctx, selected, p.UserID) {
			return selected, nil
		}
	}
	ids, err := s.members.AcademyIDs(ctx, p.UserID)
	if err != nil {
		return "", err
	}
	if len(ids) > 0 {
		return ids[0], nil
	}
	if !p.IsAdmin() {
		return "", nil
	}
	all, err := s.repo.ListIDs(ctx)
	if err != nil || len(all) == 0 {
		return "", err
	}
	return all[0], nil
}

// ListMembers returns the members of academyID with display names.
func (s *Service) ListMembers(ctx context.Context, academyID string) ([]Member, error) {
	list, err := s.members.ListMembers(ctx, academyID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(list))
	for i, m := range list {
		ids[i] = m.UserID
	}
	names, err := s.users.DisplayNames(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]Member, len(list))
	for i, m := range list {
		out[i] = Member{UserID: m.UserID, Name: names[m.UserID], Role: string(m.Role), CreatedBy: m.CreatedBy, CreatedAt: m.CreatedAt}
	}
	return out, nil
}

// AddMember links the account registered with email to academyID. Without a
// role the account's own role is used. Non-admin actors cannot hand out or
// touch admin memberships, and may only link accounts that have no academy
// yet or already share one with them; any other account reads as unknown.
func (s *Service) AddMember(ctx context.Context, academyID, email string, role rbac.UserRole, actor *authz.Principal) (membership.Membership, error) {
	if _, err := s.repo.Get(ctx, academyID); err != nil {
		return membership.Membership{}, err
	}
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return membership.Membership{}, err
	}
	if role == "" {
		role = u.Role
	}
	if !actor.IsAdmin() {
		if role == rbac.RoleAdmin || u.Role == rbac.RoleAdmin {
			return membership.Membership{}, &authz.Failure{Kind: authz.KindForbidden, UserID: actor.UserID, Resource: rbac.ResMemberships, Action: rbac.ActionManage}
		}
		if err := s.requireReachable(ctx, actor.UserID, u.ID); err != nil {
			return membership.Membership{}, err
		}
	}
	m, err := s.members.Add(ctx, academyID, u.ID, role, actor.UserID)
	if err != nil {
		return membership.Membership{}, err
	}
	s.record(ctx, actor.UserID, "membership.add", academyID, map[string]any{"user_id": u.ID, "role": string(role)})
	return m, nil
}

// requireReachable returns ErrNotMember when userID belongs to academies of
// which actorID is not a member.
func (s *Service) requireReachable(ctx context.Context, actorID, userID string) error {
	theirs, err := s.members.AcademyIDs(ctx, userID)
	if err != nil {
		return err
	}
	if len(theirs) == 0 {
		return nil
	}
	mine, err := s.members.AcademyIDs(ctx, actorID)
	if err != nil {
		return err
	}
	for _, id := range theirs {
		if slices.Contains(mine, id) {
			return nil
		}
	}
	return membership.ErrNotMember
}

// RemoveMember unlinks userID from academyID.
func (s *Service) RemoveMember(ctx context.Context, academyID, userID, actorID string) error {
	if err := s.members.Remove(ctx, academyID, userID); err != nil {
		return err
	}
	s.record(ctx, actorID, "membership.remove", academyID, map[string]any{"user_id": userID})
	return nil
}

func (s *Service) record(ctx context.Context, actorID, action, academyID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "academy", EntityID: academyID, Meta: meta}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
