package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"estatedesk_backend/internal/events"
	"estatedesk_backend/internal/leads/access"
	"estatedesk_backend/internal/leads/domain"
	"estatedesk_backend/internal/leads/repository"
	"estatedesk_backend/internal/leads/sla"
	"estatedesk_backend/internal/leads/transport"
	"estatedesk_backend/platform/apperr"
	"estatedesk_backend/platform/sanitize"

	"github.com/google/uuid"
)

// Notes.

// AddNote appends a free-text note to a lead.
func (s *Service) AddNote(ctx context.Context, actor access.Actor, leadID uuid.UUID, req transport.CreateNoteRequest) (transport.NoteResponse, error) {
	lead, err := s.authorize(ctx, actor, leadID, domain.ActionEdit)
	if err != nil {
		return transport.NoteResponse{}, err
	}

	body := sanitize.Text(req.Body)
	if body == "" {
		return transport.NoteResponse{}, apperr.Validation("note body is required")
	}

	note, err := s.repo.AddNote(ctx, repository.AddNoteParams{
		LeadID:    leadID,
		AgencyID:  lead.AgencyID,
		Body:      body,
		CreatedBy: actorRef(actor),
		Activity: []repository.ActivityParams{{
			Action:      domain.ActivityNoteAdded,
			Description: "note added",
			PerformedBy: actorRef(actor),
		}},
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return transport.NoteResponse{}, apperr.NotFound("lead not found")
		}
		return transport.NoteResponse{}, err
	}
	return toNoteResponse(note), nil
}

// ListNotes returns a lead's notes, newest first.
func (s *Service) ListNotes(ctx context.Context, actor access.Actor, leadID uuid.UUID) (transport.NoteListResponse, error) {
	lead, err := s.authorize(ctx, actor, leadID, domain.ActionView)
	if err != nil {
		return transport.NoteListResponse{}, err
	}

	notes, err := s.repo.ListNotes(ctx, leadID, lead.AgencyID)
	if err != nil {
		return transport.NoteListResponse{}, err
	}

	items := make([]transport.NoteResponse, 0, len(notes))
	for _, note := range notes {
		items = append(items, toNoteResponse(note))
	}
	return transport.NoteListResponse{Items: items}, nil
}

// Communications.

// LogCommunication records a customer touchpoint. Any type except note
// counts as contact: the first one resolves the first-contact clock and
// fixes the SLA verdict, later ones only move the last-contact marker. The
// engagement change also feeds a background re-score.
func (s *Service) LogCommunication(ctx context.Context, actor access.Actor, leadID uuid.UUID, req transport.LogCommunicationRequest) (transport.CommunicationResponse, error) {
	lead, err := s.authorize(ctx, actor, leadID, domain.ActionEdit)
	if err != nil {
		return transport.CommunicationResponse{}, err
	}

	commType := strings.ToLower(strings.TrimSpace(req.Type))
	if !domain.IsKnownCommType(commType) {
		return transport.CommunicationResponse{}, apperr.Validation(fmt.Sprintf("unknown communication type %q", req.Type))
	}
	direction := strings.ToLower(strings.TrimSpace(req.Direction))
	if direction == "" {
		direction = domain.DirectionOutbound
	}

	now := time.Now().UTC()
	slaUpd := sla.Apply(&lead, commType, now)

	entry := repository.ActivityParams{
		Action:      domain.ActivityCommLogged,
		Field:       "communication",
		NewValue:    commType,
		Description: fmt.Sprintf("%s logged", commType),
		PerformedBy: actorRef(actor),
	}
	if slaUpd != nil && slaUpd.FirstContact {
		entry.Description = fmt.Sprintf("%s logged, first contact recorded", commType)
	}

	comm, err := s.repo.AddCommunication(ctx, repository.AddCommunicationParams{
		LeadID:    leadID,
		AgencyID:  lead.AgencyID,
		Type:      commType,
		Direction: direction,
		Subject:   sanitize.Text(req.Subject),
		Body:      sanitize.Text(req.Body),
		LoggedBy:  actorRef(actor),
		SLA:       slaUpd,
		Activity:  []repository.ActivityParams{entry},
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return transport.CommunicationResponse{}, apperr.NotFound("lead not found")
		}
		return transport.CommunicationResponse{}, err
	}

	s.rescore(ctx, leadID, lead.AgencyID, lead.Score, true, nil)

	s.publish(ctx, events.CommunicationLogged{
		BaseEvent:       events.NewBaseEvent(),
		LeadID:          leadID,
		AgencyID:        lead.AgencyID,
		CommunicationID: comm.ID,
		Type:            commType,
		FirstContact:    slaUpd != nil && slaUpd.FirstContact,
	})

	return toCommunicationResponse(comm), nil
}

// ListCommunications returns a lead's communication log, newest first.
func (s *Service) ListCommunications(ctx context.Context, actor access.Actor, leadID uuid.UUID) (transport.CommunicationListResponse, error) {
	lead, err := s.authorize(ctx, actor, leadID, domain.ActionView)
	if err != nil {
		return transport.CommunicationListResponse{}, err
	}

	comms, err := s.repo.ListCommunications(ctx, leadID, lead.AgencyID)
	if err != nil {
		return transport.CommunicationListResponse{}, err
	}

	items := make([]transport.CommunicationResponse, 0, len(comms))
	for _, comm := range comms {
		items = append(items, toCommunicationResponse(comm))
	}
	return transport.CommunicationListResponse{Items: items}, nil
}

// Tasks.

// AddTask creates a follow-up task in pending state. An explicit assignee
// must be an active agent of the lead's agency.
func (s *Service) AddTask(ctx context.Context, actor access.Actor, leadID uuid.UUID, req transport.CreateTaskRequest) (transport.TaskResponse, error) {
	lead, err := s.authorize(ctx, actor, leadID, domain.ActionEdit)
	if err != nil {
		return transport.TaskResponse{}, err
	}

	title := sanitize.Text(req.Title)
	if title == "" {
		return transport.TaskResponse{}, apperr.Validation("task title is required")
	}

	params := repository.AddTaskParams{
		LeadID:      leadID,
		AgencyID:    lead.AgencyID,
		Title:       title,
		Description: sanitize.Text(req.Description),
		DueAt:       req.DueAt,
		CreatedBy:   actorRef(actor),
		Activity: []repository.ActivityParams{{
			Action:      domain.ActivityTaskAdded,
			Description: fmt.Sprintf("task added: %s", title),
			PerformedBy: actorRef(actor),
		}},
	}
	if req.AssignedTo.Value != nil {
		agent, err := s.validateAgent(ctx, lead.AgencyID, *req.AssignedTo.Value)
		if err != nil {
			return transport.TaskResponse{}, err
		}
		params.AssignedTo = &agent.ID
	}

	task, err := s.repo.AddTask(ctx, params)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return transport.TaskResponse{}, apperr.NotFound("lead not found")
		}
		return transport.TaskResponse{}, err
	}
	return toTaskResponse(task), nil
}

// UpdateTaskStatus moves a task through its status machine:
// pending -> in_progress -> completed or cancelled. Completed and cancelled
// are terminal; repeating the current status is a no-op.
func (s *Service) UpdateTaskStatus(ctx context.Context, actor access.Actor, leadID, taskID uuid.UUID, req transport.UpdateTaskStatusRequest) (transport.TaskResponse, error) {
	lead, err := s.authorize(ctx, actor, leadID, domain.ActionEdit)
	if err != nil {
		return transport.TaskResponse{}, err
	}

	task, err := s.repo.GetTask(ctx, taskID, leadID, lead.AgencyID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return transport.TaskResponse{}, apperr.NotFound("task not found")
		}
		return transport.TaskResponse{}, err
	}

	status := strings.ToLower(strings.TrimSpace(req.Status))
	if task.Status == status {
		return toTaskResponse(task), nil
	}
	if !domain.CanTransitionTask(task.Status, status) {
		return transport.TaskResponse{}, apperr.Validation(fmt.Sprintf("task cannot move from %s to %s", task.Status, status))
	}

	updated, err := s.repo.UpdateTaskStatus(ctx, taskID, leadID, lead.AgencyID, status, []repository.ActivityParams{{
		Action:      domain.ActivityTaskUpdated,
		Field:       "status",
		OldValue:    task.Status,
		NewValue:    status,
		Description: fmt.Sprintf("task moved to %s", status),
		PerformedBy: actorRef(actor),
	}})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return transport.TaskResponse{}, apperr.NotFound("task not found")
		}
		return transport.TaskResponse{}, err
	}
	return toTaskResponse(updated), nil
}

// ListTasks returns a lead's tasks, newest first.
func (s *Service) ListTasks(ctx context.Context, actor access.Actor, leadID uuid.UUID) (transport.TaskListResponse, error) {
	lead, err := s.authorize(ctx, actor, leadID, domain.ActionView)
	if err != nil {
		return transport.TaskListResponse{}, err
	}

	tasks, err := s.repo.ListTasks(ctx, leadID, lead.AgencyID)
	if err != nil {
		return transport.TaskListResponse{}, err
	}

	items := make([]transport.TaskResponse, 0, len(tasks))
	for _, task := range tasks {
		items = append(items, toTaskResponse(task))
	}
	return transport.TaskListResponse{Items: items}, nil
}

// Reminders.

// AddReminder schedules a reminder on a lead. The worker sweep picks it up
// once remind_at passes.
func (s *Service) AddReminder(ctx context.Context, actor access.Actor, leadID uuid.UUID, req transport.CreateReminderRequest) (transport.ReminderResponse, error) {
	lead, err := s.authorize(ctx, actor, leadID, domain.ActionEdit)
	if err != nil {
		return transport.ReminderResponse{}, err
	}

	message := sanitize.Text(req.Message)
	if message == "" {
		return transport.ReminderResponse{}, apperr.Validation("reminder message is required")
	}
	remindAt := req.RemindAt.UTC()

	reminder, err := s.repo.AddReminder(ctx, repository.AddReminderParams{
		LeadID:    leadID,
		AgencyID:  lead.AgencyID,
		Message:   message,
		RemindAt:  remindAt,
		CreatedBy: actorRef(actor),
		Activity: []repository.ActivityParams{{
			Action:      domain.ActivityReminderAdded,
			Description: fmt.Sprintf("reminder set for %s", remindAt.Format(time.RFC3339)),
			PerformedBy: actorRef(actor),
		}},
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return transport.ReminderResponse{}, apperr.NotFound("lead not found")
		}
		return transport.ReminderResponse{}, err
	}
	return toReminderResponse(reminder), nil
}

// CompleteReminder marks a reminder done. Completing an already-completed
// reminder is a no-op that returns the current row.
func (s *Service) CompleteReminder(ctx context.Context, actor access.Actor, leadID, reminderID uuid.UUID) (transport.ReminderResponse, error) {
	lead, err := s.authorize(ctx, actor, leadID, domain.ActionEdit)
	if err != nil {
		return transport.ReminderResponse{}, err
	}

	reminder, err := s.repo.CompleteReminder(ctx, reminderID, leadID, lead.AgencyID, []repository.ActivityParams{{
		Action:      domain.ActivityReminderDone,
		Description: "reminder completed",
		PerformedBy: actorRef(actor),
	}})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return transport.ReminderResponse{}, apperr.NotFound("reminder not found")
		}
		return transport.ReminderResponse{}, err
	}
	return toReminderResponse(reminder), nil
}

// ListReminders returns a lead's reminders, soonest first.
func (s *Service) ListReminders(ctx context.Context, actor access.Actor, leadID uuid.UUID) (transport.ReminderListResponse, error) {
	lead, err := s.authorize(ctx, actor, leadID, domain.ActionView)
	if err != nil {
		return transport.ReminderListResponse{}, err
	}

	reminders, err := s.repo.ListReminders(ctx, leadID, lead.AgencyID)
	if err != nil {
		return transport.ReminderListResponse{}, err
	}

	items := make([]transport.ReminderResponse, 0, len(reminders))
	for _, reminder := range reminders {
		items = append(items, toReminderResponse(reminder))
	}
	return transport.ReminderListResponse{Items: items}, nil
}

// Documents. Metadata lives on the lead, bytes in object storage; the two
// are linked by the storage key, which is namespaced {agency}/{lead}/ so a
// key can never reference another tenant's object.

// PresignDocumentUpload validates the upload and returns a short-lived URL
// the client PUTs the file to directly.
func (s *Service) PresignDocumentUpload(ctx context.Context, actor access.Actor, leadID uuid.UUID, req transport.PresignedUploadRequest) (transport.PresignedUploadResponse, error) {
	lead, err := s.authorize(ctx, actor, leadID, domain.ActionEdit)
	if err != nil {
		return transport.PresignedUploadResponse{}, err
	}
	if s.docs == nil {
		return transport.PresignedUploadResponse{}, apperr.Internal("document storage is not configured")
	}

	fileName := path.Base(sanitize.Text(req.FileName))
	if fileName == "" || fileName == "." || fileName == "/" {
		return transport.PresignedUploadResponse{}, apperr.Validation("invalid file name")
	}
	if err := s.docs.ValidateContentType(req.ContentType); err != nil {
		return transport.PresignedUploadResponse{}, apperr.Validation(err.Error())
	}
	if err := s.docs.ValidateFileSize(req.SizeBytes); err != nil {
		return transport.PresignedUploadResponse{}, apperr.Validation(err.Error())
	}

	folder := fmt.Sprintf("%s/%s", lead.AgencyID, leadID)
	presigned, err := s.docs.GenerateUploadURL(ctx, s.docBucket, folder, fileName, req.ContentType, req.SizeBytes)
	if err != nil {
		return transport.PresignedUploadResponse{}, fmt.Errorf("presign upload: %w", err)
	}

	return transport.PresignedUploadResponse{
		UploadURL:  presigned.URL,
		StorageKey: presigned.FileKey,
		ExpiresAt:  presigned.ExpiresAt.Unix(),
	}, nil
}

// AddDocument records document metadata after the client finished its
// presigned upload. The storage key must sit under this lead's namespace.
func (s *Service) AddDocument(ctx context.Context, actor access.Actor, leadID uuid.UUID, req transport.CreateDocumentRequest) (transport.DocumentResponse, error) {
	lead, err := s.authorize(ctx, actor, leadID, domain.ActionEdit)
	if err != nil {
		return transport.DocumentResponse{}, err
	}

	fileName := path.Base(sanitize.Text(req.FileName))
	if fileName == "" || fileName == "." || fileName == "/" {
		return transport.DocumentResponse{}, apperr.Validation("invalid file name")
	}
	storageKey := strings.TrimSpace(req.StorageKey)
	prefix := fmt.Sprintf("%s/%s/", lead.AgencyID, leadID)
	if !strings.HasPrefix(storageKey, prefix) {
		return transport.DocumentResponse{}, apperr.Validation("storage key does not belong to this lead")
	}

	doc, err := s.repo.AddDocument(ctx, repository.AddDocumentParams{
		LeadID:      leadID,
		AgencyID:    lead.AgencyID,
		FileName:    fileName,
		ContentType: strings.ToLower(strings.TrimSpace(req.ContentType)),
		SizeBytes:   req.SizeBytes,
		StorageKey:  storageKey,
		UploadedBy:  actorRef(actor),
		Activity: []repository.ActivityParams{{
			Action:      domain.ActivityDocumentAdded,
			Description: fmt.Sprintf("document attached: %s", fileName),
			PerformedBy: actorRef(actor),
		}},
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return transport.DocumentResponse{}, apperr.NotFound("lead not found")
		}
		return transport.DocumentResponse{}, err
	}

	resp := toDocumentResponse(doc)
	s.attachDownloadURL(ctx, &resp)
	return resp, nil
}

// GetDocument returns one document's metadata with a presigned download
// link when storage is wired.
func (s *Service) GetDocument(ctx context.Context, actor access.Actor, leadID, documentID uuid.UUID) (transport.DocumentResponse, error) {
	lead, err := s.authorize(ctx, actor, leadID, domain.ActionView)
	if err != nil {
		return transport.DocumentResponse{}, err
	}

	doc, err := s.repo.GetDocument(ctx, documentID, leadID, lead.AgencyID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return transport.DocumentResponse{}, apperr.NotFound("document not found")
		}
		return transport.DocumentResponse{}, err
	}

	resp := toDocumentResponse(doc)
	s.attachDownloadURL(ctx, &resp)
	return resp, nil
}

// ListDocuments returns a lead's documents, newest first.
func (s *Service) ListDocuments(ctx context.Context, actor access.Actor, leadID uuid.UUID) (transport.DocumentListResponse, error) {
	lead, err := s.authorize(ctx, actor, leadID, domain.ActionView)
	if err != nil {
		return transport.DocumentListResponse{}, err
	}

	docs, err := s.repo.ListDocuments(ctx, leadID, lead.AgencyID)
	if err != nil {
		return transport.DocumentListResponse{}, err
	}

	items := make([]transport.DocumentResponse, 0, len(docs))
	for _, doc := range docs {
		resp := toDocumentResponse(doc)
		s.attachDownloadURL(ctx, &resp)
		items = append(items, resp)
	}
	return transport.DocumentListResponse{Items: items}, nil
}

// DeleteDocument removes the metadata row and then the stored object. The
// object delete is best-effort: an orphaned object costs storage, a dangling
// metadata row would break listings.
func (s *Service) DeleteDocument(ctx context.Context, actor access.Actor, leadID, documentID uuid.UUID) error {
	lead, err := s.authorize(ctx, actor, leadID, domain.ActionEdit)
	if err != nil {
		return err
	}

	doc, err := s.repo.DeleteDocument(ctx, documentID, leadID, lead.AgencyID, []repository.ActivityParams{{
		Action:      domain.ActivityDocumentRemoved,
		Description: "document removed",
		PerformedBy: actorRef(actor),
	}})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("document not found")
		}
		return err
	}

	if s.docs != nil && doc.StorageKey != "" {
		if err := s.docs.DeleteObject(ctx, s.docBucket, doc.StorageKey); err != nil {
			s.log.Warn("document object delete failed", "storageKey", doc.StorageKey, "error", err.Error())
		}
	}
	return nil
}

// attachDownloadURL adds a presigned download link when storage is wired.
// A presign failure only costs the link, never the response.
func (s *Service) attachDownloadURL(ctx context.Context, doc *transport.DocumentResponse) {
	if s.docs == nil || doc.StorageKey == "" {
		return
	}
	presigned, err := s.docs.GenerateDownloadURL(ctx, s.docBucket, doc.StorageKey)
	if err != nil {
		s.log.Warn("presign download failed", "documentId", doc.ID.String(), "error", err.Error())
		return
	}
	doc.DownloadURL = &presigned.URL
}
