package scheduler

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const TaskNotificationOutboxDue = "notification.outbox.due"

const TaskLeadRescore = "leads.rescore"

const TaskWebhookExport = "webhook.export"

type NotificationOutboxDuePayload struct {
	OutboxID string `json:"outboxId"`
	AgencyID string `json:"agencyId"`
}

type LeadRescorePayload struct {
	LeadID   string `json:"leadId"`
	AgencyID string `json:"agencyId"`
	Reason   string `json:"reason"`
}

type WebhookExportPayload struct {
	AgencyID string    `json:"agencyId"`
	Since    time.Time `json:"since"`
}

func NewNotificationOutboxDueTask(payload NotificationOutboxDuePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationOutboxDue, data), nil
}

func ParseNotificationOutboxDuePayload(task *asynq.Task) (NotificationOutboxDuePayload, error) {
	var payload NotificationOutboxDuePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return NotificationOutboxDuePayload{}, err
	}
	return payload, nil
}

func NewLeadRescoreTask(payload LeadRescorePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLeadRescore, data), nil
}

func ParseLeadRescorePayload(task *asynq.Task) (LeadRescorePayload, error) {
	var payload LeadRescorePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return LeadRescorePayload{}, err
	}
	return payload, nil
}

func NewWebhookExportTask(payload WebhookExportPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskWebhookExport, data), nil
}

func ParseWebhookExportPayload(task *asynq.Task) (WebhookExportPayload, error) {
	var payload WebhookExportPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return WebhookExportPayload{}, err
	}
	return payload, nil
}
