// Package cli holds the operator subcommands of the academy binary.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/academyhub/academyhub/internal/academies"
	"github.com/academyhub/academyhub/internal/authz"
	"github.com/academyhub/academyhub/internal/rbac"
	"github.com/academyhub/academyhub/internal/shared"
	"github.com/academyhub/academyhub/internal/users"
)

// SeedInput names the first academy and administrator.
type SeedInput struct {
	AcademyName   string
	AcademySlug   string
	AdminEmail    string
	AdminName     string
	AdminPassword string
}

// SeedResult reports what the seeder created or found.
type SeedResult struct {
	AcademyID      string
	AdminID        string
	CreatedAcademy bool
	CreatedAdmin   bool
}

// Seeder bootstraps an empty store. Running it twice is harmless.
type Seeder struct {
	Policy    *rbac.Service
	Academies *academies.Service
	Users     *users.Service
	Logger    *slog.Logger
}

// Run seeds the default policy, the first academy and the admin account.
func (s *Seeder) Run(ctx context.Context, in SeedInput) (SeedResult, error) {
	var res SeedResult
	if err := s.Policy.SeedDefaults(ctx); err != nil {
		return res, fmt.Errorf("seed policy: %w", err)
	}

	admin, err := s.Users.FindByEmail(ctx, in.AdminEmail)
	switch {
	case err == nil:
	case errors.Is(err, shared.ErrNotFound):
		admin, err = s.Users.CreateUser(ctx, users.CreateInput{
			Email:     in.AdminEmail,
			Name:      in.AdminName,
			Password:  in.AdminPassword,
			Role:      rbac.RoleAdmin,
			CreatedBy: "seed",
		})
		if err != nil {
			return res, fmt.Errorf("create admin: %w", err)
		}
		res.CreatedAdmin = true
	default:
		return res, err
	}
	res.AdminID = admin.ID

	list, err := s.Academies.ListAcademies(ctx)
	if err != nil {
		return res, err
	}
	for _, a := range list {
		if a.Slug == in.AcademySlug {
			res.AcademyID = a.ID
		}
	}
	if res.AcademyID == "" {
		a, err := s.Academies.Create(ctx, academies.CreateInput{Name: in.AcademyName, Slug: in.AcademySlug}, admin.ID)
		if err != nil {
			return res, fmt.Errorf("create academy: %w", err)
		}
		res.AcademyID = a.ID
		res.CreatedAcademy = true
	}
	if _, err := s.Academies.AddMember(ctx, res.AcademyID, admin.Email, rbac.RoleAdmin, &authz.Principal{UserID: admin.ID, Role: admin.Role, Active: true}); err != nil {
		return res, fmt.Errorf("add admin membership: %w", err)
	}
	s.logger().Info("seed complete",
		slog.String("academy_id", res.AcademyID),
		slog.String("admin_id", res.AdminID),
		slog.Bool("created_academy", res.CreatedAcademy),
		slog.Bool("created_admin", res.CreatedAdmin),
	)
	return res, nil
}

func (s *Seeder) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
