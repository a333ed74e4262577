package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/academyhub/academyhub/cmd/academy/cli"
	"github.com/academyhub/academyhub/internal/academies"
	"github.com/academyhub/academyhub/internal/app"
	"github.com/academyhub/academyhub/internal/appointments"
	"github.com/academyhub/academyhub/internal/auth"
	"github.com/academyhub/academyhub/internal/authz"
	"github.com/academyhub/academyhub/internal/courses"
	"github.com/academyhub/academyhub/internal/membership"
	"github.com/academyhub/academyhub/internal/messaging"
	"github.com/academyhub/academyhub/internal/notifications"
	"github.com/academyhub/academyhub/internal/observability"
	"github.com/academyhub/academyhub/internal/platform/kv"
	"github.com/academyhub/academyhub/internal/rbac"
	"github.com/academyhub/academyhub/internal/roles"
	"github.com/academyhub/academyhub/internal/shared"
	"github.com/academyhub/academyhub/internal/users"
	"github.com/academyhub/academyhub/internal/view"
	"github.com/academyhub/academyhub/jobs"
)

// directory joins membership lookups with user display names.
type directory struct {
	members *membership.Service
	users   *users.Service
}

func (d directory) MemberIDs(ctx context.Context, academyID string) ([]string, error) {
	return d.members.MemberIDs(ctx, academyID)
}

func (d directory) DisplayNames(ctx context.Context, ids []string) (map[string]string, error) {
	return d.users.DisplayNames(ctx, ids)
}

// services holds the domain services shared by every subcommand.
type services struct {
	store         *kv.Store
	audit         *shared.AuditLogger
	policy        *rbac.Service
	members       *membership.Service
	users         *users.Service
	academies     *academies.Service
	courses       *courses.Service
	appointments  *appointments.Service
	notifications *notifications.Service
	messages      *messaging.Service
	roles         *roles.Service
}

func buildServices(store *kv.Store, queue notifications.Enqueuer, logger *slog.Logger) *services {
	s := &services{store: store}
	s.audit = shared.NewAuditLogger(store)
	s.policy = rbac.NewService(rbac.NewRepository(store))
	s.members = membership.NewService(membership.NewRepository(store), logger)
	s.users = users.NewService(users.NewRepository(store), s.members, s.audit, logger)
	s.academies = academies.NewService(academies.NewRepository(store), s.members, s.users, s.audit, logger)
	s.courses = courses.NewService(courses.NewRepository(store), s.members)
	s.notifications = notifications.NewService(notifications.NewRepository(store), s.members, queue, logger)
	s.appointments = appointments.NewService(appointments.NewRepository(store), s.members, s.notifications, logger)
	s.messages = messaging.NewService(messaging.NewRepository(store), s.members, s.notifications, shared.NewIdempotencyStore(store), logger)
	s.roles = roles.NewService(s.policy, s.audit, logger)
	return s
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	cmd := "serve"
	args := os.Args[1:]
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	switch cmd {
	case "serve":
		err = serve(ctx, cfg, logger)
	case "seed":
		err = seed(ctx, cfg, logger, args)
	case "jobs":
		err = jobsCommand(ctx, cfg, args)
	default:
		err = fmt.Errorf("unknown command %q (want serve, seed or jobs)", cmd)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error(cmd, slog.Any("error", err))
		os.Exit(1)
	}
}

func openStore(ctx context.Context, cfg *app.Config) (*redis.Client, *kv.Store, error) {
	redisClient, err := kv.Dial(ctx, cfg.RedisAddr)
	if err != nil {
		return nil, nil, err
	}
	return redisClient, kv.New(redisClient, cfg.RedisPrefix), nil
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	redisClient, store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	svc := buildServices(store, jobClient, logger)

	tokens, err := authz.NewTokenManager(authz.TokenConfig{
		Secret: cfg.TokenSecret,
		Issuer: cfg.TokenIssuer,
		TTL:    cfg.TokenTTL,
		Secure: cfg.IsProduction(),
	})
	if err != nil {
		return err
	}
	sessionManager := shared.NewSessionManager(store, "academy_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	locales := shared.NewLocales(cfg.Locales())

	templates, err := view.NewEngine()
	if err != nil {
		return fmt.Errorf("parse templates: %w", err)
	}

	metrics := observability.NewMetrics()
	guard := authz.NewGuard(svc.policy, logger, locales.Default()).WithRecorder(metrics)
	pages := app.NewPages(logger, templates, csrfManager, guard, app.DashboardSources{
		Courses:       svc.courses,
		Members:       svc.members,
		Notifications: svc.notifications,
		Messages:      svc.messages,
	})
	responder := &authz.Responder{
		Logger:        logger,
		Metrics:       metrics,
		NotFound:      pages.NotFound,
		DefaultLocale: locales.Default(),
	}

	authService := auth.NewService(auth.NewRepository(store, svc.users), tokens)
	names := directory{members: svc.members, users: svc.users}

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		Locales:        locales,
		Tokens:         tokens,
		Principals:     svc.users,
		LoginSessions:  authService,
		Guard:          guard,
		Responder:      responder,
		Academies:      svc.academies,
		Pages:          pages,
		Metrics:        metrics,

		AuthHandler:          auth.NewHandler(logger, authService, templates, tokens, csrfManager),
		UsersHandler:         users.NewHandler(logger, svc.users, svc.members, svc.courses, templates, csrfManager, guard, responder),
		CoursesHandler:       courses.NewHandler(logger, svc.courses, names, templates, csrfManager, guard, responder),
		AppointmentsHandler:  appointments.NewHandler(logger, svc.appointments, names, templates, csrfManager, guard, responder),
		AcademiesHandler:     academies.NewHandler(logger, svc.academies, templates, csrfManager, guard, responder),
		RolesHandler:         roles.NewHandler(logger, svc.roles, templates, csrfManager, guard, responder),
		PermissionsHandler:   roles.NewPermissionsHandler(logger, svc.roles, templates, csrfManager, guard, responder),
		MessagesHandler:      messaging.NewHandler(logger, svc.messages, names, templates, csrfManager, guard, responder),
		NotificationsHandler: notifications.NewHandler(logger, svc.notifications, templates, csrfManager, guard, responder),
		JobHandler:           jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func seed(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	academyName := fs.String("academy-name", "Main Academy", "name of the first academy")
	academySlug := fs.String("academy-slug", "main", "slug of the first academy")
	adminEmail := fs.String("admin-email", "admin@academy.local", "administrator email")
	adminName := fs.String("admin-name", "Administrator", "administrator display name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if password == "" {
		return errors.New("SEED_ADMIN_PASSWORD must be set")
	}

	redisClient, store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	svc := buildServices(store, nil, logger)
	seeder := &cli.Seeder{Policy: svc.policy, Academies: svc.academies, Users: svc.users, Logger: logger}
	_, err = seeder.Run(ctx, cli.SeedInput{
		AcademyName:   *academyName,
		AcademySlug:   *academySlug,
		AdminEmail:    *adminEmail,
		AdminName:     *adminName,
		AdminPassword: password,
	})
	return err
}

func jobsCommand(ctx context.Context, cfg *app.Config, args []string) error {
	jobsCLI := cli.NewJobsCLI(cfg.RedisAddr)
	defer jobsCLI.Close()

	if len(args) == 0 {
		return errors.New("usage: academy jobs trigger <name> | academy jobs pending")
	}
	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			return errors.New("usage: academy jobs trigger <name>")
		}
		info, err := jobsCLI.Trigger(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s as %s\n", info.Type, info.ID)
	case "pending":
		n, err := jobsCLI.Pending()
		if err != nil {
			return err
		}
		fmt.Printf("%d pending\n", n)
	default:
		return fmt.Errorf("unknown jobs command %q", args[0])
	}
	return nil
}
