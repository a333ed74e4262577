package membership

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/academyhub/academyhub/internal/rbac"
	"github.com/academyhub/academyhub/internal/shared"
)

type stubRepo struct {
	byUser map[string][]string
	err    error
}

func newStubRepo(memberships map[string][]string) *stubRepo {
	return &stubRepo{byUser: memberships}
}

func (s *stubRepo) GetAcademyMembership(ctx context.Context, academyID, userID string) (*Membership, error) {
	if s.err != nil {
		return nil, s.err
	}
	for _, id := range s.byUser[userID] {
		if id == academyID {
			return &Membership{AcademyID: academyID, UserID: userID, Role: rbac.RolePlayer}, nil
		}
	}
	return nil, nil
}

func (s *stubRepo) GetUserAcademyIDs(ctx context.Context, userID string) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	ids := append([]string(nil), s.byUser[userID]...)
	sort.Strings(ids)
	return ids, nil
}

func (s *stubRepo) ListUserMemberships(ctx context.Context, userID string) ([]Membership, error) {
	return nil, nil
}

func (s *stubRepo) ListAcademyMemberIDs(ctx context.Context, academyID string) ([]string, error) {
	return nil, nil
}

func (s *stubRepo) ListAcademyMembers(ctx context.Context, academyID string) ([]Membership, error) {
	return nil, nil
}

func (s *stubRepo) AddMembership(ctx context.Context, m Membership) error {
	s.byUser[m.UserID] = append(s.byUser[m.UserID], m.AcademyID)
	return nil
}

func (s *stubRepo) RemoveMembership(ctx context.Context, academyID, userID string) error {
	return nil
}

func TestResolveNonAdminPinnedToSelectedAcademy(t *testing.T) {
	svc := NewService(newStubRepo(map[string][]string{"target": {"A2"}}), nil)

	for _, role := range []rbac.UserRole{rbac.RoleManager, rbac.RoleCoach, rbac.RoleParent, rbac.RolePlayer, rbac.RoleKid} {
		got, err := svc.ResolveTargetUserAcademyID(context.Background(), Viewer{Role: role, SelectedAcademyID: "A1"}, "target")
		require.NoError(t, err)
		assert.Equal(t, "A1", got, "role %s", role)
	}
}

func TestResolveParentThenMembershipGuardFails(t *testing.T) {
	svc := NewService(newStubRepo(map[string][]string{"target": {"A2"}}), nil)
	ctx := context.Background()

	academyID, err := svc.ResolveTargetUserAcademyID(ctx, Viewer{Role: rbac.RoleParent, SelectedAcademyID: "A1"}, "target")
	require.NoError(t, err)
	assert.Equal(t, "A1", academyID)

	err = svc.RequireUserInAcademy(ctx, academyID, "target")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestResolveAdminKeepsSelectedAcademyWhenMember(t *testing.T) {
	svc := NewService(newStubRepo(map[string][]string{"target": {"A3", "A1", "A2"}}), nil)

	got, err := svc.ResolveTargetUserAcademyID(context.Background(), Viewer{Role: rbac.RoleAdmin, SelectedAcademyID: "A3"}, "target")
	require.NoError(t, err)
	assert.Equal(t, "A3", got)
}

func TestResolveAdminFallsBackToSmallestAcademy(t *testing.T) {
	svc := NewService(newStubRepo(map[string][]string{"target": {"A3", "A2"}}), nil)

	got, err := svc.ResolveTargetUserAcademyID(context.Background(), Viewer{Role: rbac.RoleAdmin, SelectedAcademyID: "A1"}, "target")
	require.NoError(t, err)
	assert.Equal(t, "A2", got)

	got, err = svc.ResolveTargetUserAcademyID(context.Background(), Viewer{Role: rbac.RoleAdmin}, "target")
	require.NoError(t, err)
	assert.Equal(t, "A2", got)
}

func TestResolveWithoutMembershipsIsNotFoundForEveryRole(t *testing.T) {
	svc := NewService(newStubRepo(map[string][]string{}), nil)

	for _, role := range rbac.UserRoles() {
		_, err := svc.ResolveTargetUserAcademyID(context.Background(), Viewer{Role: role, SelectedAcademyID: "A1"}, "ghost")
		assert.ErrorIs(t, err, ErrNotMember, "role %s", role)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	}
}

func TestRequireUserInAcademy(t *testing.T) {
	svc := NewService(newStubRepo(map[string][]string{"u1": {"A1"}}), nil)
	ctx := context.Background()

	assert.NoError(t, svc.RequireUserInAcademy(ctx, "A1", "u1"))
	assert.ErrorIs(t, svc.RequireUserInAcademy(ctx, "A2", "u1"), ErrNotMember)
	assert.True(t, svc.IsUserInAcademy(ctx, "A1", "u1"))
	assert.False(t, svc.IsUserInAcademy(ctx, "A2", "u1"))
}

func TestStoreFailureIsNotMembership(t *testing.T) {
	repo := newStubRepo(nil)
	repo.err = errors.New("store down")
	svc := NewService(repo, nil)
	ctx := context.Background()

	assert.False(t, svc.IsUserInAcademy(ctx, "A1", "u1"))
	err := svc.RequireUserInAcademy(ctx, "A1", "u1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, shared.ErrNotFound)
}

func TestAddRejectsUnknownRole(t *testing.T) {
	svc := NewService(newStubRepo(map[string][]string{}), nil)
	_, err := svc.Add(context.Background(), "A1", "u1", rbac.UserRole("owner"), "admin")
	assert.ErrorIs(t, err, rbac.ErrUnknownRole)
}

func TestSyncRoleRejectsUnknownRole(t *testing.T) {
	svc := NewService(newStubRepo(map[string][]string{"u1": {"A1"}}), nil)
	err := svc.SyncRole(context.Background(), "u1", rbac.UserRole("owner"))
	assert.ErrorIs(t, err, rbac.ErrUnknownRole)
}
