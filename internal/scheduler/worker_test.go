package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"estatedesk_backend/internal/events"
	"estatedesk_backend/internal/leads/domain"
	"estatedesk_backend/platform/apperr"
	"estatedesk_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

type rescoreCall struct {
	leadID   uuid.UUID
	agencyID uuid.UUID
	reason   string
}

type fakeRescorer struct {
	calls []rescoreCall
	err   error
}

func (f *fakeRescorer) RescoreAutomatic(_ context.Context, leadID, agencyID uuid.UUID, reason string) error {
	f.calls = append(f.calls, rescoreCall{leadID: leadID, agencyID: agencyID, reason: reason})
	return f.err
}

type fakeExportSource struct {
	pages  [][]domain.Lead
	sinces []time.Time
	err    error
}

func (f *fakeExportSource) ListUpdatedSince(_ context.Context, _ uuid.UUID, since time.Time, _ int) ([]domain.Lead, error) {
	f.sinces = append(f.sinces, since)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.pages) == 0 {
		return nil, nil
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

type fakeSink struct {
	mu      sync.Mutex
	enabled bool
	names   []string
	rows    []leadExportRow
	err     error
}

func (f *fakeSink) Enabled() bool { return f.enabled }

func (f *fakeSink) Emit(_ context.Context, eventName string, data, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.names = append(f.names, eventName)
	if row, ok := data.(leadExportRow); ok {
		f.rows = append(f.rows, row)
	}
	return nil
}

func testWorker(bus events.Bus, lifecycle Rescorer, exports ExportSource, sink ExportSink) *Worker {
	return &Worker{
		bus:       bus,
		lifecycle: lifecycle,
		exports:   exports,
		sink:      sink,
		log:       logger.New("development"),
	}
}

func TestHandleNotificationOutboxDuePublishesSync(t *testing.T) {
	bus := &recordingBus{}
	w := testWorker(bus, nil, nil, nil)

	outboxID, agencyID := uuid.New(), uuid.New()
	task, err := NewNotificationOutboxDueTask(NotificationOutboxDuePayload{
		OutboxID: outboxID.String(),
		AgencyID: agencyID.String(),
	})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}

	if err := w.handleNotificationOutboxDue(context.Background(), task); err != nil {
		t.Fatalf("handler: %v", err)
	}

	if len(bus.sync) != 1 {
		t.Fatalf("expected 1 synchronous publish, got %d", len(bus.sync))
	}
	due, ok := bus.sync[0].(events.NotificationOutboxDue)
	if !ok {
		t.Fatalf("expected NotificationOutboxDue, got %T", bus.sync[0])
	}
	if due.OutboxID != outboxID || due.AgencyID != agencyID {
		t.Fatalf("unexpected ids: %+v", due)
	}
}

func TestHandleNotificationOutboxDueRejectsBadID(t *testing.T) {
	w := testWorker(&recordingBus{}, nil, nil, nil)

	task := asynq.NewTask(TaskNotificationOutboxDue, []byte(`{"outboxId":"nope","agencyId":"also nope"}`))
	if err := w.handleNotificationOutboxDue(context.Background(), task); err == nil {
		t.Fatal("expected error for malformed outbox id")
	}
}

func TestHandleLeadRescoreCallsService(t *testing.T) {
	lifecycle := &fakeRescorer{}
	w := testWorker(nil, lifecycle, nil, nil)

	leadID, agencyID := uuid.New(), uuid.New()
	task, err := NewLeadRescoreTask(LeadRescorePayload{
		LeadID:   leadID.String(),
		AgencyID: agencyID.String(),
		Reason:   "score refreshed after site visit no-show",
	})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}

	if err := w.handleLeadRescore(context.Background(), task); err != nil {
		t.Fatalf("handler: %v", err)
	}

	if len(lifecycle.calls) != 1 {
		t.Fatalf("expected 1 rescore call, got %d", len(lifecycle.calls))
	}
	call := lifecycle.calls[0]
	if call.leadID != leadID || call.agencyID != agencyID {
		t.Fatalf("unexpected ids: %+v", call)
	}
	if call.reason != "score refreshed after site visit no-show" {
		t.Fatalf("unexpected reason %q", call.reason)
	}
}

func TestHandleLeadRescoreDefaultsReason(t *testing.T) {
	lifecycle := &fakeRescorer{}
	w := testWorker(nil, lifecycle, nil, nil)

	task, err := NewLeadRescoreTask(LeadRescorePayload{
		LeadID:   uuid.NewString(),
		AgencyID: uuid.NewString(),
	})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}

	if err := w.handleLeadRescore(context.Background(), task); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if lifecycle.calls[0].reason != "scheduled re-score" {
		t.Fatalf("expected default reason, got %q", lifecycle.calls[0].reason)
	}
}

func TestHandleLeadRescoreSkipsMissingLead(t *testing.T) {
	lifecycle := &fakeRescorer{err: apperr.NotFound("lead not found")}
	w := testWorker(nil, lifecycle, nil, nil)

	task, err := NewLeadRescoreTask(LeadRescorePayload{
		LeadID:   uuid.NewString(),
		AgencyID: uuid.NewString(),
	})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}

	// A deleted lead is not a retryable condition.
	if err := w.handleLeadRescore(context.Background(), task); err != nil {
		t.Fatalf("expected nil for missing lead, got %v", err)
	}
}

func TestHandleLeadRescorePropagatesFailure(t *testing.T) {
	lifecycle := &fakeRescorer{err: errors.New("db down")}
	w := testWorker(nil, lifecycle, nil, nil)

	task, err := NewLeadRescoreTask(LeadRescorePayload{
		LeadID:   uuid.NewString(),
		AgencyID: uuid.NewString(),
	})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}

	if err := w.handleLeadRescore(context.Background(), task); err == nil {
		t.Fatal("expected transient failure to propagate for retry")
	}
}

func makeLeads(n int, start time.Time, step time.Duration) []domain.Lead {
	leads := make([]domain.Lead, n)
	for i := range leads {
		leads[i] = domain.Lead{
			ID:         uuid.New(),
			LeadNumber: fmt.Sprintf("LEAD-2025-%05d", i+1),
			Name:       fmt.Sprintf("Lead %d", i+1),
			Status:     domain.StatusNew,
			Priority:   domain.PriorityWarm,
			Source:     "website",
			Score:      40 + i%30,
			UpdatedAt:  start.Add(time.Duration(i) * step),
		}
	}
	return leads
}

func TestHandleWebhookExportPagesUntilShortPage(t *testing.T) {
	start := time.Date(2025, 11, 3, 9, 0, 0, 0, time.UTC)
	firstPage := makeLeads(exportPageSize, start, time.Second)
	secondPage := makeLeads(3, start.Add(time.Hour), time.Second)
	source := &fakeExportSource{pages: [][]domain.Lead{firstPage, secondPage}}
	sink := &fakeSink{enabled: true}
	w := testWorker(nil, nil, source, sink)

	since := start.Add(-time.Minute)
	task, err := NewWebhookExportTask(WebhookExportPayload{
		AgencyID: uuid.NewString(),
		Since:    since,
	})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}

	if err := w.handleWebhookExport(context.Background(), task); err != nil {
		t.Fatalf("handler: %v", err)
	}

	if len(source.sinces) != 2 {
		t.Fatalf("expected 2 pages fetched, got %d", len(source.sinces))
	}
	if !source.sinces[0].Equal(since) {
		t.Fatalf("first page should start at the payload instant, got %v", source.sinces[0])
	}
	wantCursor := firstPage[len(firstPage)-1].UpdatedAt
	if !source.sinces[1].Equal(wantCursor) {
		t.Fatalf("cursor should advance to %v, got %v", wantCursor, source.sinces[1])
	}

	if len(sink.rows) != exportPageSize+3 {
		t.Fatalf("expected %d envelopes, got %d", exportPageSize+3, len(sink.rows))
	}
	for _, name := range sink.names {
		if name != EventLeadExport {
			t.Fatalf("unexpected event name %q", name)
		}
	}

	found := false
	for _, row := range sink.rows {
		if row.LeadNumber == "LEAD-2025-00001" && row.Status == domain.StatusNew {
			found = true
			break
		}
	}
	if !found {
		t.Fatal("expected the first lead's snapshot among the envelopes")
	}
}

func TestHandleWebhookExportStopsOnFlatPage(t *testing.T) {
	// Every row shares the cursor instant, so the cursor cannot advance.
	since := time.Date(2025, 11, 3, 9, 0, 0, 0, time.UTC)
	flat := makeLeads(exportPageSize, since, 0)
	source := &fakeExportSource{pages: [][]domain.Lead{flat, flat}}
	sink := &fakeSink{enabled: true}
	w := testWorker(nil, nil, source, sink)

	task, err := NewWebhookExportTask(WebhookExportPayload{
		AgencyID: uuid.NewString(),
		Since:    since,
	})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}

	if err := w.handleWebhookExport(context.Background(), task); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(source.sinces) != 1 {
		t.Fatalf("expected export to stop after the flat page, got %d fetches", len(source.sinces))
	}
}

func TestHandleWebhookExportDisabledSinkIsNoOp(t *testing.T) {
	source := &fakeExportSource{pages: [][]domain.Lead{makeLeads(2, time.Now(), time.Second)}}
	sink := &fakeSink{enabled: false}
	w := testWorker(nil, nil, source, sink)

	task, err := NewWebhookExportTask(WebhookExportPayload{
		AgencyID: uuid.NewString(),
		Since:    time.Now().Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}

	if err := w.handleWebhookExport(context.Background(), task); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(source.sinces) != 0 {
		t.Fatal("disabled sink should not touch the repository")
	}
}

func TestHandleWebhookExportPropagatesEmitFailure(t *testing.T) {
	source := &fakeExportSource{pages: [][]domain.Lead{makeLeads(2, time.Now(), time.Second)}}
	sink := &fakeSink{enabled: true, err: errors.New("endpoint answered 500")}
	w := testWorker(nil, nil, source, sink)

	task, err := NewWebhookExportTask(WebhookExportPayload{
		AgencyID: uuid.NewString(),
		Since:    time.Now().Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}

	if err := w.handleWebhookExport(context.Background(), task); err == nil {
		t.Fatal("expected emit failure to propagate for retry")
	}
}
