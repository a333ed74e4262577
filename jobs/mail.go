package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/academyhub/academyhub/internal/jobs"
	"github.com/academyhub/academyhub/internal/platform/kv"
)

// OutboxKey is the sorted set holding delivered mail IDs, newest last.
const OutboxKey = "mail_outbox"

// OutboxMail is a delivered email kept for inspection by operators.
type OutboxMail struct {
	ID      string    `json:"id"`
	From    string    `json:"from"`
	To      string    `json:"to"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	SentAt  time.Time `json:"sent_at"`
}

// MailJob delivers emails into the store-backed outbox.
type MailJob struct {
	Store   *kv.Store
	From    string
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewMailJob wires dependencies for the mail handler.
func NewMailJob(store *kv.Store, from string, logger *slog.Logger, metrics *jobmetrics.Metrics) *MailJob {
	return &MailJob{Store: store, From: from, Logger: logger, Metrics: metrics, clock: func() time.Time { return time.Now().UTC() }}
}

// Handle processes TaskTypeSendEmail tasks.
func (j *MailJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Store == nil {
		return errors.New("mail: handler not configured")
	}
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.To == "" {
		return asynq.SkipRetry
	}
	tracker := metricsOrDefault(j.Metrics).Track(TaskTypeSendEmail)
	defer func() { err = tracker.End(err) }()

	mail := OutboxMail{ID: uuid.NewString(), From: j.From, To: payload.To, Subject: payload.Subject, Body: payload.Body, SentAt: j.clock()}
	err = j.Store.Tx(ctx, func(b *kv.Batch) error {
		b.SetJSON(kv.Key("mail", mail.ID), mail, 0)
		b.ZAdd(OutboxKey, float64(mail.SentAt.UnixNano()), mail.ID)
		return nil
	})
	if err != nil {
		loggerFor(j.Logger, TaskTypeSendEmail).Error("store mail", slog.Any("error", err))
		return err
	}
	metricsOrDefault(j.Metrics).AddDelivered(TaskTypeSendEmail, 1)
	loggerFor(j.Logger, TaskTypeSendEmail).Info("mail delivered", slog.String("mail_id", mail.ID), slog.String("to", mail.To))
	return nil
}
