// Package notification turns lead lifecycle events into agent- and
// lead-facing messages. In-app rows are written directly; email and SMS are
// staged in the outbox and delivered by the worker, so a crash between
// commit and send never loses a message. Everything here is best-effort:
// a notification failure must never surface to the publishing operation.
package notification

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	directoryrepo "estatedesk_backend/internal/directory/repository"
	"estatedesk_backend/internal/email"
	"estatedesk_backend/internal/events"
	apphttp "estatedesk_backend/internal/http"
	leadsdomain "estatedesk_backend/internal/leads/domain"
	"estatedesk_backend/internal/notification/handler"
	"estatedesk_backend/internal/notification/inapp"
	"estatedesk_backend/internal/notification/outbox"
	"estatedesk_backend/platform/config"
	"estatedesk_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AgencyReader resolves the agency snapshot whose settings gate the email
// and SMS channels.
type AgencyReader interface {
	GetAgency(ctx context.Context, id uuid.UUID) (directoryrepo.Agency, error)
}

// UserReader resolves notification recipients.
type UserReader interface {
	GetUser(ctx context.Context, id uuid.UUID) (directoryrepo.User, error)
}

// LeadReader resolves the lead behind an event for contact details the
// event payload does not carry.
type LeadReader interface {
	GetByID(ctx context.Context, id, agencyID uuid.UUID) (leadsdomain.Lead, error)
}

// InAppSender writes a notification row for a user.
type InAppSender interface {
	Send(ctx context.Context, p inapp.SendParams) error
}

// SMSSender delivers a text message. A gateway client that is not
// configured drops messages and returns nil.
type SMSSender interface {
	SendMessage(ctx context.Context, phoneNumber, message string) error
}

// OutboxStore stages and tracks deliverable messages.
type OutboxStore interface {
	Insert(ctx context.Context, p outbox.InsertParams) (uuid.UUID, error)
	GetByID(ctx context.Context, id uuid.UUID) (outbox.Record, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkSucceeded(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
	ScheduleRetry(ctx context.Context, id uuid.UUID, runAt time.Time, lastError string) error
}

const (
	outboxKindEmail   = "email"
	outboxKindSMS     = "sms"
	templateEmailSend = "email_send"
	templateSMSSend   = "sms_send"

	invalidOutboxPayloadPrefix = "invalid payload: "
	maxOutboxRetryAttempts     = 5
	outboxRetryBaseDelay       = time.Minute
	outboxRetryMaxDelay        = 60 * time.Minute

	agencyCacheTTL = 10 * time.Minute
)

// emailSendPayload is rendered at staging time so delivery needs no lead or
// template state.
type emailSendPayload struct {
	ToEmail  string `json:"toEmail"`
	Subject  string `json:"subject"`
	BodyHTML string `json:"bodyHtml"`
}

type smsSendPayload struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type agencyCacheEntry struct {
	agency  directoryrepo.Agency
	expires time.Time
}

// Module subscribes to lead lifecycle events and owns the in-app
// notification HTTP surface.
type Module struct {
	agencies AgencyReader
	users    UserReader
	leads    LeadReader
	inApp    InAppSender
	outbox   OutboxStore
	email    email.Sender
	sms      SMSSender

	appBaseURL string
	log        *logger.Logger

	// agencyID -> agencyCacheEntry; settings rarely change and every lead
	// event consults them.
	agencyCache sync.Map

	httpHandler *handler.HTTPHandler
}

// NewModule wires the notification module. The pool backs the in-app and
// outbox repositories; the remaining collaborators come from sibling
// modules.
func NewModule(pool *pgxpool.Pool, agencies AgencyReader, users UserReader, leads LeadReader, emailSender email.Sender, smsSender SMSSender, cfg config.NotificationConfig, log *logger.Logger) *Module {
	svc := inapp.NewService(inapp.NewRepository(pool), log)

	return &Module{
		agencies:    agencies,
		users:       users,
		leads:       leads,
		inApp:       svc,
		outbox:      outbox.New(pool),
		email:       emailSender,
		sms:         smsSender,
		appBaseURL:  strings.TrimRight(cfg.GetAppBaseURL(), "/"),
		log:         log,
		httpHandler: handler.NewHTTPHandler(svc),
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "notification"
}

// RegisterRoutes mounts the in-app notification feed.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/notifications")
	m.httpHandler.RegisterRoutes(group)
}

// RegisterHandlers subscribes the module to the events it reacts to.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe("lead.created", m)
	bus.Subscribe("lead.assigned", m)
	bus.Subscribe("lead.visit.scheduled", m)
	bus.Subscribe("lead.visit.completed", m)
	bus.Subscribe("lead.reminder.due", m)
	bus.Subscribe("notification.outbox.due", m)
}

// Handle dispatches a single event. Errors are returned for the bus to log
// but handlers never fail the publishing operation.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	// The publishing request finishes before async handling does; detach
	// from its cancellation so lookups and inserts can complete.
	ctx = context.WithoutCancel(ctx)

	switch e := event.(type) {
	case events.LeadCreated:
		return m.handleLeadCreated(ctx, e)
	case events.LeadAssigned:
		return m.handleLeadAssigned(ctx, e)
	case events.VisitScheduled:
		return m.handleVisitScheduled(ctx, e)
	case events.VisitCompleted:
		return m.handleVisitCompleted(ctx, e)
	case events.ReminderDue:
		return m.handleReminderDue(ctx, e)
	case events.NotificationOutboxDue:
		return m.handleNotificationOutboxDue(ctx, e)
	}
	return nil
}

var _ events.Handler = (*Module)(nil)
var _ apphttp.Module = (*Module)(nil)

// ── Insert side: events → in-app rows + staged email/SMS ────────────────

func (m *Module) handleLeadCreated(ctx context.Context, e events.LeadCreated) error {
	agency, ok := m.agencySnapshot(ctx, e.AgencyID)
	if !ok {
		return nil
	}

	lead, err := m.leads.GetByID(ctx, e.LeadID, e.AgencyID)
	if err != nil {
		m.log.Warn("lead lookup failed for welcome notification", "leadId", e.LeadID, "error", err)
		return nil
	}
	leadName := defaultName(lead.Name, "there")

	if agency.Settings.EmailNotifications && strings.TrimSpace(lead.Email) != "" {
		subject, body, err := email.RenderLeadWelcome(email.LeadWelcomeData{
			LeadName:   leadName,
			AgencyName: agency.Name,
		})
		if err != nil {
			m.log.Error("welcome email render failed", "leadId", e.LeadID, "error", err)
		} else {
			m.stageEmail(ctx, e.AgencyID, lead.Email, subject, body)
		}
	}

	if agency.Settings.SMSNotifications && strings.TrimSpace(lead.Phone) != "" {
		m.stageSMS(ctx, e.AgencyID, lead.Phone, smsLeadWelcome(leadName, agency.Name))
	}
	return nil
}

func (m *Module) handleLeadAssigned(ctx context.Context, e events.LeadAssigned) error {
	lead, err := m.leads.GetByID(ctx, e.LeadID, e.AgencyID)
	if err != nil {
		m.log.Warn("lead lookup failed for assignment notification", "leadId", e.LeadID, "error", err)
		return nil
	}

	leadID := e.LeadID
	if err := m.inApp.Send(ctx, inapp.SendParams{
		AgencyID:     e.AgencyID,
		UserID:       e.AgentID,
		Title:        titleLeadAssigned,
		Content:      bodyLeadAssigned(e.LeadNumber, defaultName(lead.Name, "unnamed")),
		ResourceID:   &leadID,
		ResourceType: "lead",
	}); err != nil {
		m.log.NotifyError("inapp", err)
	}

	agency, ok := m.agencySnapshot(ctx, e.AgencyID)
	if !ok || !agency.Settings.EmailNotifications {
		return nil
	}

	agent, err := m.users.GetUser(ctx, e.AgentID)
	if err != nil {
		m.log.Warn("agent lookup failed for assignment notification", "agentId", e.AgentID, "error", err)
		return nil
	}
	if strings.TrimSpace(agent.Email) == "" {
		return nil
	}

	subject, body, err := email.RenderLeadAssigned(email.LeadAssignedData{
		AgentName:  defaultName(agent.Name, "there"),
		LeadNumber: e.LeadNumber,
		LeadName:   defaultName(lead.Name, "unnamed"),
		Source:     lead.Source,
		LeadURL:    m.leadURL(e.LeadID),
	})
	if err != nil {
		m.log.Error("assignment email render failed", "leadId", e.LeadID, "error", err)
		return nil
	}
	m.stageEmail(ctx, e.AgencyID, agent.Email, subject, body)
	return nil
}

func (m *Module) handleVisitScheduled(ctx context.Context, e events.VisitScheduled) error {
	agency, ok := m.agencySnapshot(ctx, e.AgencyID)
	if !ok {
		return nil
	}

	lead, err := m.leads.GetByID(ctx, e.LeadID, e.AgencyID)
	if err != nil {
		m.log.Warn("lead lookup failed for visit notification", "leadId", e.LeadID, "error", err)
		return nil
	}

	leadName := defaultName(lead.Name, "there")
	propertyName := defaultName(e.PropertyName, "the property")
	visitDate, visitTime := formatVisitTime(e.ScheduledAt, agency.Settings.Timezone)

	agentID := e.AgentID
	if agentID == nil {
		agentID = lead.AssignedTo
	}
	if agentID != nil {
		leadID := e.LeadID
		if err := m.inApp.Send(ctx, inapp.SendParams{
			AgencyID:     e.AgencyID,
			UserID:       *agentID,
			Title:        titleVisitScheduled,
			Content:      bodyVisitScheduled(leadName, propertyName, visitDate, visitTime),
			ResourceID:   &leadID,
			ResourceType: "visit",
		}); err != nil {
			m.log.NotifyError("inapp", err)
		}
	}

	if agency.Settings.EmailNotifications && strings.TrimSpace(lead.Email) != "" {
		subject, body, err := email.RenderVisitConfirmation(email.VisitConfirmationData{
			LeadName:     leadName,
			PropertyName: propertyName,
			VisitDate:    visitDate,
			VisitTime:    visitTime,
			AgencyName:   agency.Name,
		})
		if err != nil {
			m.log.Error("visit confirmation email render failed", "leadId", e.LeadID, "error", err)
		} else {
			m.stageEmail(ctx, e.AgencyID, lead.Email, subject, body)
		}
	}

	if agency.Settings.SMSNotifications && strings.TrimSpace(lead.Phone) != "" {
		m.stageSMS(ctx, e.AgencyID, lead.Phone, smsVisitConfirmation(leadName, propertyName, visitDate, visitTime))
	}
	return nil
}

// handleVisitCompleted alerts the assigned agent when visit feedback came
// back hot; other interest levels produce no notification.
func (m *Module) handleVisitCompleted(ctx context.Context, e events.VisitCompleted) error {
	if e.InterestLevel != leadsdomain.InterestHigh {
		return nil
	}

	lead, err := m.leads.GetByID(ctx, e.LeadID, e.AgencyID)
	if err != nil {
		m.log.Warn("lead lookup failed for visit outcome notification", "leadId", e.LeadID, "error", err)
		return nil
	}
	if lead.AssignedTo == nil {
		return nil
	}

	leadID := e.LeadID
	if err := m.inApp.Send(ctx, inapp.SendParams{
		AgencyID:     e.AgencyID,
		UserID:       *lead.AssignedTo,
		Title:        titleHotVisit,
		Content:      bodyHotVisit(defaultName(lead.Name, "The lead")),
		ResourceID:   &leadID,
		ResourceType: "visit",
		Category:     "success",
	}); err != nil {
		m.log.NotifyError("inapp", err)
	}
	return nil
}

func (m *Module) handleReminderDue(ctx context.Context, e events.ReminderDue) error {
	lead, err := m.leads.GetByID(ctx, e.LeadID, e.AgencyID)
	if err != nil {
		m.log.Warn("lead lookup failed for reminder notification", "leadId", e.LeadID, "error", err)
		return nil
	}

	// The reminder's author hears about it; reminders created by the system
	// or by since-departed users fall back to the assigned agent.
	recipient := e.CreatedBy
	if recipient == nil {
		recipient = lead.AssignedTo
	}
	if recipient == nil {
		m.log.Debug("reminder has no recipient; dropping", "reminderId", e.ReminderID, "leadId", e.LeadID)
		return nil
	}

	leadID := e.LeadID
	if err := m.inApp.Send(ctx, inapp.SendParams{
		AgencyID:     e.AgencyID,
		UserID:       *recipient,
		Title:        titleReminderDue,
		Content:      bodyReminderDue(defaultName(lead.Name, "unnamed"), strings.TrimSpace(e.Message)),
		ResourceID:   &leadID,
		ResourceType: "reminder",
		Category:     "warning",
	}); err != nil {
		m.log.NotifyError("inapp", err)
	}
	return nil
}

func (m *Module) stageEmail(ctx context.Context, agencyID uuid.UUID, toEmail, subject, bodyHTML string) {
	id, err := m.outbox.Insert(ctx, outbox.InsertParams{
		AgencyID: agencyID,
		Kind:     outboxKindEmail,
		Template: templateEmailSend,
		Payload: emailSendPayload{
			ToEmail:  strings.TrimSpace(toEmail),
			Subject:  subject,
			BodyHTML: bodyHTML,
		},
	})
	if err != nil {
		m.log.Error("failed to stage outbox email", "agencyId", agencyID, "error", err)
		return
	}
	m.log.Debug("email staged for delivery", "outboxId", id, "agencyId", agencyID)
}

func (m *Module) stageSMS(ctx context.Context, agencyID uuid.UUID, phone, message string) {
	id, err := m.outbox.Insert(ctx, outbox.InsertParams{
		AgencyID: agencyID,
		Kind:     outboxKindSMS,
		Template: templateSMSSend,
		Payload: smsSendPayload{
			Phone:   strings.TrimSpace(phone),
			Message: message,
		},
	})
	if err != nil {
		m.log.Error("failed to stage outbox sms", "agencyId", agencyID, "error", err)
		return
	}
	m.log.Debug("sms staged for delivery", "outboxId", id, "agencyId", agencyID)
}

// ── Delivery side: outbox due events → email/SMS sends ──────────────────

func (m *Module) handleNotificationOutboxDue(ctx context.Context, e events.NotificationOutboxDue) error {
	rec, process, err := m.prepareOutboxRecord(ctx, e.OutboxID)
	if err != nil || !process {
		if err != nil {
			m.log.Error("failed to prepare outbox record", "outboxId", e.OutboxID, "error", err)
		}
		return err
	}

	if rec.Kind != outboxKindEmail && rec.Kind != outboxKindSMS {
		m.markOutboxUnsupported(ctx, rec)
		return nil
	}

	var processErr error
	switch rec.Template {
	case templateEmailSend:
		processErr = m.deliverEmailOutbox(ctx, rec)
	case templateSMSSend:
		processErr = m.deliverSMSOutbox(ctx, rec)
	default:
		m.markOutboxUnsupported(ctx, rec)
		return nil
	}

	if processErr != nil {
		m.handleOutboxDeliveryError(ctx, rec, processErr)
		return processErr
	}
	m.log.Info("outbox record delivered", "outboxId", rec.ID.String(), "kind", rec.Kind)
	return nil
}

// prepareOutboxRecord loads the record and moves it to processing. A record
// that already succeeded is skipped so redelivered tasks stay idempotent.
func (m *Module) prepareOutboxRecord(ctx context.Context, outboxID uuid.UUID) (outbox.Record, bool, error) {
	rec, err := m.outbox.GetByID(ctx, outboxID)
	if err != nil {
		return outbox.Record{}, false, err
	}
	if rec.Status == outbox.StatusSucceeded {
		m.log.Debug("outbox record already succeeded; skipping", "outboxId", rec.ID.String())
		return rec, false, nil
	}
	if err := m.outbox.MarkProcessing(ctx, rec.ID); err != nil {
		return outbox.Record{}, false, err
	}
	return rec, true, nil
}

// deliverEmailOutbox returns nil for terminal payload problems (the record
// is already marked) and an error only for transient delivery failures.
func (m *Module) deliverEmailOutbox(ctx context.Context, rec outbox.Record) error {
	var payload emailSendPayload
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		_ = m.outbox.MarkFailed(ctx, rec.ID, invalidOutboxPayloadPrefix+err.Error())
		return nil
	}
	if strings.TrimSpace(payload.ToEmail) == "" {
		m.log.Debug("outbox email payload has no recipient; marking succeeded", "outboxId", rec.ID.String())
		_ = m.outbox.MarkSucceeded(ctx, rec.ID)
		return nil
	}
	if strings.TrimSpace(payload.Subject) == "" || strings.TrimSpace(payload.BodyHTML) == "" {
		_ = m.outbox.MarkFailed(ctx, rec.ID, invalidOutboxPayloadPrefix+"subject and bodyHtml are required")
		return nil
	}

	if err := m.email.SendEmail(ctx, payload.ToEmail, payload.Subject, payload.BodyHTML); err != nil {
		return err
	}
	_ = m.outbox.MarkSucceeded(ctx, rec.ID)
	return nil
}

func (m *Module) deliverSMSOutbox(ctx context.Context, rec outbox.Record) error {
	var payload smsSendPayload
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		_ = m.outbox.MarkFailed(ctx, rec.ID, invalidOutboxPayloadPrefix+err.Error())
		return nil
	}
	if strings.TrimSpace(payload.Phone) == "" || strings.TrimSpace(payload.Message) == "" {
		m.log.Debug("outbox sms payload has no recipient or message; marking succeeded", "outboxId", rec.ID.String())
		_ = m.outbox.MarkSucceeded(ctx, rec.ID)
		return nil
	}

	if err := m.sms.SendMessage(ctx, payload.Phone, payload.Message); err != nil {
		return err
	}
	_ = m.outbox.MarkSucceeded(ctx, rec.ID)
	return nil
}

func (m *Module) markOutboxUnsupported(ctx context.Context, rec outbox.Record) {
	_ = m.outbox.MarkFailed(ctx, rec.ID, "unsupported kind or template")
	m.log.Warn("outbox record has unsupported kind or template",
		"outboxId", rec.ID.String(),
		"kind", rec.Kind,
		"template", rec.Template,
	)
}

func (m *Module) handleOutboxDeliveryError(ctx context.Context, rec outbox.Record, deliveryErr error) {
	attempt := rec.Attempts + 1
	if attempt >= maxOutboxRetryAttempts {
		_ = m.outbox.MarkFailed(ctx, rec.ID, deliveryErr.Error())
		m.log.Warn("notification outbox exhausted retries",
			"outboxId", rec.ID.String(),
			"kind", rec.Kind,
			"attempt", attempt,
			"maxAttempts", maxOutboxRetryAttempts,
			"error", deliveryErr,
		)
		return
	}

	retryAt := time.Now().UTC().Add(computeOutboxRetryDelay(attempt))
	if err := m.outbox.ScheduleRetry(ctx, rec.ID, retryAt, deliveryErr.Error()); err != nil {
		_ = m.outbox.MarkFailed(ctx, rec.ID, deliveryErr.Error())
		m.log.Error("notification outbox retry scheduling failed; marked failed",
			"outboxId", rec.ID.String(),
			"attempt", attempt,
			"error", err,
		)
		return
	}

	m.log.Warn("notification outbox scheduled retry",
		"outboxId", rec.ID.String(),
		"kind", rec.Kind,
		"attempt", attempt,
		"maxAttempts", maxOutboxRetryAttempts,
		"retryAt", retryAt,
		"error", deliveryErr,
	)
}

func computeOutboxRetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := outboxRetryBaseDelay << (attempt - 1)
	if delay > outboxRetryMaxDelay {
		return outboxRetryMaxDelay
	}
	return delay
}

// ── Lookup helpers ──────────────────────────────────────────────────────

func (m *Module) agencySnapshot(ctx context.Context, agencyID uuid.UUID) (directoryrepo.Agency, bool) {
	if cached, ok := m.agencyCache.Load(agencyID); ok {
		entry := cached.(agencyCacheEntry)
		if time.Now().Before(entry.expires) {
			return entry.agency, true
		}
		m.agencyCache.Delete(agencyID)
	}

	agency, err := m.agencies.GetAgency(ctx, agencyID)
	if err != nil {
		m.log.Warn("agency lookup failed for notification", "agencyId", agencyID, "error", err)
		return directoryrepo.Agency{}, false
	}
	m.agencyCache.Store(agencyID, agencyCacheEntry{agency: agency, expires: time.Now().Add(agencyCacheTTL)})
	return agency, true
}

func (m *Module) leadURL(id uuid.UUID) string {
	return m.appBaseURL + "/leads/" + id.String()
}

func defaultName(value, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
