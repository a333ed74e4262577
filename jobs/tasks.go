package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/academyhub/academyhub/internal/notifications"
)

const (
	// QueueDefault carries mail and digests.
	QueueDefault = "default"
	// QueueNotifications carries broadcast fan-out.
	QueueNotifications = "notifications"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskNotificationsFanout delivers an academy broadcast to every member.
	TaskNotificationsFanout = "notifications:fanout"
	// TaskNotificationsDigest mails each user a summary of unread notifications.
	TaskNotificationsDigest = "notifications:digest"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// NewFanoutTask wraps a broadcast for the fan-out handler.
func NewFanoutTask(b notifications.Broadcast) (*asynq.Task, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationsFanout, data), nil
}

// NewDigestTask builds the scheduled digest task.
func NewDigestTask() *asynq.Task {
	return asynq.NewTask(TaskNotificationsDigest, nil)
}
