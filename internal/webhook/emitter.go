package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"estatedesk_backend/internal/events"
	"estatedesk_backend/platform/config"
	"estatedesk_backend/platform/logger"
)

// Envelope is the outbound wire format. Previous carries the pre-change
// snapshot where one exists, so receivers can diff without a read-back.
type Envelope struct {
	Event      string    `json:"event"`
	OccurredAt time.Time `json:"occurredAt"`
	Data       any       `json:"data"`
	Previous   any       `json:"previous,omitempty"`
}

// Emitter forwards lead lifecycle events to a configured external endpoint.
// When the emitter is disabled every call is a silent no-op, never an error.
type Emitter struct {
	client   *http.Client
	endpoint string
	secret   string
	enabled  bool
	log      *logger.Logger
}

func NewEmitter(cfg config.WebhookEmitterConfig, log *logger.Logger) *Emitter {
	return &Emitter{
		client:   &http.Client{Timeout: 10 * time.Second},
		endpoint: cfg.GetWebhookEndpoint(),
		secret:   cfg.GetWebhookSecret(),
		enabled:  cfg.IsWebhookEmitterEnabled(),
		log:      log,
	}
}

// Enabled reports whether deliveries will actually be sent.
func (e *Emitter) Enabled() bool {
	return e.enabled
}

// Emit POSTs one signed envelope to the endpoint. Receivers verify the
// HMAC-SHA256 body signature against the shared secret.
func (e *Emitter) Emit(ctx context.Context, eventName string, data, previous any) error {
	if !e.enabled {
		return nil
	}

	body, err := json.Marshal(Envelope{
		Event:      eventName,
		OccurredAt: time.Now().UTC(),
		Data:       data,
		Previous:   previous,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", eventName)
	req.Header.Set("X-Webhook-Signature", "sha256="+e.sign(body))

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint answered %d", resp.StatusCode)
	}
	return nil
}

func (e *Emitter) sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(e.secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// emittedEvents are the lifecycle events external systems can subscribe to.
var emittedEvents = []string{
	"lead.created",
	"lead.assigned",
	"lead.status.changed",
	"lead.visit.scheduled",
	"lead.visit.completed",
	"lead.visit.cancelled",
	"lead.merged",
	"lead.deleted",
}

// RegisterSubscribers wires the emitter onto the bus. Delivery is
// best-effort: failures are logged and never reach the publisher.
func (e *Emitter) RegisterSubscribers(bus events.Bus) {
	if !e.enabled {
		return
	}

	forward := events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		// The publishing request finishes before the async delivery does;
		// detach from its cancellation so the POST can complete.
		ctx = context.WithoutCancel(ctx)

		var previous any
		if changed, ok := event.(events.LeadStatusChanged); ok {
			previous = map[string]string{"status": changed.FromStatus}
		}

		if err := e.Emit(ctx, event.EventName(), event, previous); err != nil {
			e.log.Warn("webhook delivery failed", "event", event.EventName(), "error", err.Error())
		}
		return nil
	})

	for _, name := range emittedEvents {
		bus.Subscribe(name, forward)
	}
}
