package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/academyhub/academyhub/internal/jobs"
	"github.com/academyhub/academyhub/internal/notifications"
	"github.com/academyhub/academyhub/internal/users"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// FanOuter creates per-member notifications for a broadcast.
type FanOuter interface {
	FanOut(ctx context.Context, b notifications.Broadcast) (int, error)
}

// FanoutJob delivers academy broadcasts.
type FanoutJob struct {
	Notifications FanOuter
	Logger        *slog.Logger
	Metrics       *jobmetrics.Metrics
}

// NewFanoutJob wires dependencies for the fan-out handler.
func NewFanoutJob(svc FanOuter, logger *slog.Logger, metrics *jobmetrics.Metrics) *FanoutJob {
	return &FanoutJob{Notifications: svc, Logger: logger, Metrics: metrics}
}

// Handle processes TaskNotificationsFanout tasks.
func (j *FanoutJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Notifications == nil {
		return errors.New("fanout: handler not configured")
	}
	var b notifications.Broadcast
	if err := json.Unmarshal(t.Payload(), &b); err != nil || b.ID == "" || b.AcademyID == "" {
		return asynq.SkipRetry
	}
	tracker := metricsOrDefault(j.Metrics).Track(TaskNotificationsFanout)
	defer func() { err = tracker.End(err) }()

	logger := loggerFor(j.Logger, TaskNotificationsFanout).With(slog.String("broadcast_id", b.ID), slog.String("academy_id", b.AcademyID))
	created, err := j.Notifications.FanOut(ctx, b)
	metricsOrDefault(j.Metrics).AddDelivered(TaskNotificationsFanout, created)
	if err != nil {
		logger.Error("fan out broadcast", slog.Int("created", created), slog.Any("error", err))
		return err
	}
	logger.Info("broadcast delivered", slog.Int("created", created))
	return nil
}

// UserLister lists accounts for the digest.
type UserLister interface {
	ListUsers(ctx context.Context) ([]users.User, error)
}

// UnreadCounter counts unread notifications.
type UnreadCounter interface {
	UnreadCount(ctx context.Context, userID string) (int, error)
}

// Mailer queues outgoing email.
type Mailer interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error)
}

// DigestJob mails active users who have unread notifications.
type DigestJob struct {
	Users         UserLister
	Notifications UnreadCounter
	Mail          Mailer
	Logger        *slog.Logger
	Metrics       *jobmetrics.Metrics
}

// NewDigestJob wires dependencies for the digest handler.
func NewDigestJob(users UserLister, counter UnreadCounter, mail Mailer, logger *slog.Logger, metrics *jobmetrics.Metrics) *DigestJob {
	return &DigestJob{Users: users, Notifications: counter, Mail: mail, Logger: logger, Metrics: metrics}
}

// Handle processes TaskNotificationsDigest tasks.
func (j *DigestJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Users == nil || j.Notifications == nil || j.Mail == nil {
		return errors.New("digest: handler not configured")
	}
	tracker := metricsOrDefault(j.Metrics).Track(TaskNotificationsDigest)
	defer func() { err = tracker.End(err) }()

	logger := loggerFor(j.Logger, TaskNotificationsDigest)
	list, err := j.Users.ListUsers(ctx)
	if err != nil {
		logger.Error("list users", slog.Any("error", err))
		return err
	}
	sent := 0
	for _, u := range list {
		if !u.Active || strings.TrimSpace(u.Email) == "" {
			continue
		}
		unread, err := j.Notifications.UnreadCount(ctx, u.ID)
		if err != nil {
			return err
		}
		if unread == 0 {
			continue
		}
		payload := SendEmailPayload{
			To:      u.Email,
			Subject: fmt.Sprintf("You have %d unread notifications", unread),
			Body:    fmt.Sprintf("Hello %s, %d notifications are waiting for you.", u.Name, unread),
		}
		if _, err := j.Mail.EnqueueSendEmail(ctx, payload); err != nil {
			logger.Error("enqueue digest", slog.String("user_id", u.ID), slog.Any("error", err))
			return err
		}
		sent++
	}
	metricsOrDefault(j.Metrics).AddDelivered(TaskNotificationsDigest, sent)
	logger.Info("digest queued", slog.Int("users", sent))
	return nil
}

func loggerFor(logger *slog.Logger, job string) *slog.Logger {
	if logger != nil {
		return logger.With(slog.String("job", job))
	}
	return slog.Default().With(slog.String("job", job))
}

func metricsOrDefault(m *jobmetrics.Metrics) *jobmetrics.Metrics {
	if m != nil {
		return m
	}
	return defaultJobMetrics
}
