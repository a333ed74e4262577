package cli_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/academyhub/academyhub/cmd/academy/cli"
	"github.com/academyhub/academyhub/internal/academies"
	"github.com/academyhub/academyhub/internal/membership"
	"github.com/academyhub/academyhub/internal/rbac"
	"github.com/academyhub/academyhub/internal/shared"
	"github.com/academyhub/academyhub/internal/testing/kvtest"
	"github.com/academyhub/academyhub/internal/users"
)

func TestSeederIsIdempotent(t *testing.T) {
	store := kvtest.NewStore(t)
	ctx := context.Background()
	members := membership.NewService(membership.NewRepository(store), nil)
	userSvc := users.NewService(users.NewRepository(store), members, nil, nil)
	policy := rbac.NewService(rbac.NewRepository(store))
	seeder := &cli.Seeder{
		Policy:    policy,
		Academies: academies.NewService(academies.NewRepository(store), members, userSvc, shared.NewAuditLogger(store), nil),
		Users:     userSvc,
	}
	in := cli.SeedInput{
		AcademyName:   "Demo Academy",
		AcademySlug:   "demo",
		AdminEmail:    "admin@academy.test",
		AdminName:     "Admin",
		AdminPassword: "changeme123",
	}

	first, err := seeder.Run(ctx, in)
	require.NoError(t, err)
	assert.True(t, first.CreatedAcademy)
	assert.True(t, first.CreatedAdmin)
	assert.True(t, members.IsUserInAcademy(ctx, first.AcademyID, first.AdminID))

	rp, err := policy.GetRoleMatrix(ctx, rbac.RoleCoach)
	require.NoError(t, err)
	assert.Equal(t, rbac.SystemActor, rp.UpdatedBy)
	resources, err := policy.ListResources(ctx)
	require.NoError(t, err)
	assert.Len(t, resources, len(rbac.DefaultResources()))

	second, err := seeder.Run(ctx, in)
	require.NoError(t, err)
	assert.False(t, second.CreatedAcademy)
	assert.False(t, second.CreatedAdmin)
	assert.Equal(t, first.AcademyID, second.AcademyID)
	assert.Equal(t, first.AdminID, second.AdminID)
}

func TestSeederKeepsEditedMatrix(t *testing.T) {
	store := kvtest.NewStore(t)
	ctx := context.Background()
	members := membership.NewService(membership.NewRepository(store), nil)
	userSvc := users.NewService(users.NewRepository(store), members, nil, nil)
	policy := rbac.NewService(rbac.NewRepository(store))
	seeder := &cli.Seeder{
		Policy:    policy,
		Academies: academies.NewService(academies.NewRepository(store), members, userSvc, nil, nil),
		Users:     userSvc,
	}
	in := cli.SeedInput{AcademyName: "Demo", AcademySlug: "demo", AdminEmail: "admin@academy.test", AdminName: "Admin", AdminPassword: "changeme123"}
	_, err := seeder.Run(ctx, in)
	require.NoError(t, err)

	_, err = policy.UpdateRoleMatrix(ctx, rbac.RoleKid, map[string][]rbac.Action{rbac.ResDashboard: {rbac.ActionRead}}, "admin")
	require.NoError(t, err)
	_, err = seeder.Run(ctx, in)
	require.NoError(t, err)

	ok, err := policy.Allows(ctx, rbac.Subject{Role: rbac.RoleKid}, rbac.ResCourses, rbac.ActionRead)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSeederRejectsWeakPassword(t *testing.T) {
	store := kvtest.NewStore(t)
	members := membership.NewService(membership.NewRepository(store), nil)
	userSvc := users.NewService(users.NewRepository(store), members, nil, nil)
	seeder := &cli.Seeder{
		Policy:    rbac.NewService(rbac.NewRepository(store)),
		Academies: academies.NewService(academies.NewRepository(store), members, userSvc, nil, nil),
		Users:     userSvc,
	}
	_, err := seeder.Run(context.Background(), cli.SeedInput{AcademyName: "Demo", AcademySlug: "demo", AdminEmail: "admin@academy.test", AdminName: "Admin", AdminPassword: "short"})
	assert.Error(t, err)
}

func TestTriggerRejectsUnknownJob(t *testing.T) {
	c := cli.NewJobsCLI("127.0.0.1:0")
	defer c.Close()
	_, err := c.Trigger(context.Background(), "ledger:rebuild")
	assert.ErrorContains(t, err, "unsupported job")

	var missing *cli.JobsCLI
	_, err = missing.Trigger(context.Background(), "notifications:digest")
	assert.Error(t, err)
	_, err = missing.Pending()
	assert.Error(t, err)
}
