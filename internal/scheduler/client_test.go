package scheduler

import (
	"context"
	"strings"
	"testing"
	"time"

	"estatedesk_backend/platform/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
)

func startRedis(t *testing.T) (*miniredis.Miniredis, *config.Config) {
	t.Helper()
	srv, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(srv.Close)

	return srv, &config.Config{
		RedisURL:   "redis://" + srv.Addr(),
		AsynqQueue: "jobs",
	}
}

func hasKeyWithSuffix(srv *miniredis.Miniredis, suffix string) bool {
	for _, key := range srv.Keys() {
		if strings.HasSuffix(key, suffix) {
			return true
		}
	}
	return false
}

func TestNewClientRequiresRedisURL(t *testing.T) {
	if _, err := NewClient(&config.Config{}); err == nil {
		t.Fatal("expected error for missing redis url")
	}
}

func TestClientEnqueuesImmediateTask(t *testing.T) {
	srv, cfg := startRedis(t)

	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	err = client.EnqueueLeadRescore(context.Background(), LeadRescorePayload{
		LeadID:   uuid.NewString(),
		AgencyID: uuid.NewString(),
		Reason:   "score refreshed after site visit no-show",
	})
	if err != nil {
		t.Fatalf("EnqueueLeadRescore: %v", err)
	}

	if !hasKeyWithSuffix(srv, "{jobs}:pending") {
		t.Fatalf("pending list for queue jobs not found, keys: %v", srv.Keys())
	}
}

func TestClientSchedulesFutureTask(t *testing.T) {
	srv, cfg := startRedis(t)

	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	err = client.EnqueueNotificationOutboxDue(context.Background(), NotificationOutboxDuePayload{
		OutboxID: uuid.NewString(),
		AgencyID: uuid.NewString(),
	}, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("EnqueueNotificationOutboxDue: %v", err)
	}

	if !hasKeyWithSuffix(srv, "{jobs}:scheduled") {
		t.Fatalf("scheduled set for queue jobs not found, keys: %v", srv.Keys())
	}
	if hasKeyWithSuffix(srv, "{jobs}:pending") {
		t.Fatal("future task should not land in the pending list")
	}
}

func TestClientEnqueueWebhookExport(t *testing.T) {
	srv, cfg := startRedis(t)

	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	err = client.EnqueueWebhookExport(context.Background(), WebhookExportPayload{
		AgencyID: uuid.NewString(),
		Since:    time.Now().Add(-24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("EnqueueWebhookExport: %v", err)
	}

	if !hasKeyWithSuffix(srv, "{jobs}:pending") {
		t.Fatalf("pending list for queue jobs not found, keys: %v", srv.Keys())
	}
}

func TestNilClientIsSafe(t *testing.T) {
	var client *Client
	if err := client.Close(); err != nil {
		t.Fatalf("Close on nil client: %v", err)
	}
	if err := client.EnqueueLeadRescore(context.Background(), LeadRescorePayload{}); err != nil {
		t.Fatalf("enqueue on nil client: %v", err)
	}
}
