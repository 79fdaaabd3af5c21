package service

import (
	"estatedesk_backend/internal/leads/domain"
	"estatedesk_backend/internal/leads/transport"
)

func toScoreBreakdown(details *domain.ScoreDetails) *transport.ScoreBreakdownResponse {
	if details == nil {
		return nil
	}
	return &transport.ScoreBreakdownResponse{
		SourceScore:     details.SourceScore,
		BudgetScore:     details.BudgetScore,
		TimelineScore:   details.TimelineScore,
		EngagementScore: details.EngagementScore,
		Total:           details.Total,
		CalculatedAt:    details.CalculatedAt,
	}
}

func toPermissionFlags(perms domain.EntryPermissions) map[string]transport.PermissionFlags {
	if len(perms) == 0 {
		return nil
	}
	out := make(map[string]transport.PermissionFlags, len(perms))
	for role, flags := range perms {
		out[role] = transport.PermissionFlags{View: flags.View, Edit: flags.Edit, Delete: flags.Delete}
	}
	return out
}

func fromPermissionFlags(perms map[string]transport.PermissionFlags) domain.EntryPermissions {
	if len(perms) == 0 {
		return nil
	}
	out := make(domain.EntryPermissions, len(perms))
	for role, flags := range perms {
		out[role] = domain.PermissionFlags{View: flags.View, Edit: flags.Edit, Delete: flags.Delete}
	}
	return out
}

// toLeadResponse converts a lead aggregate to its API shape.
func toLeadResponse(lead domain.Lead) transport.LeadResponse {
	locations := lead.PreferredLocations
	if locations == nil {
		locations = []string{}
	}
	propertyTypes := lead.PropertyTypes
	if propertyTypes == nil {
		propertyTypes = []string{}
	}

	var responseMs *int64
	if lead.ResponseTime != nil {
		ms := lead.ResponseTime.Milliseconds()
		responseMs = &ms
	}

	return transport.LeadResponse{
		ID:                 lead.ID,
		LeadNumber:         lead.LeadNumber,
		Name:               lead.Name,
		Phone:              lead.Phone,
		Email:              lead.Email,
		AltPhone:           lead.AltPhone,
		Status:             lead.Status,
		Priority:           lead.Priority,
		Source:             lead.Source,
		SourceDetails:      lead.SourceDetails,
		AssignedTo:         lead.AssignedTo,
		ManagerID:          lead.ManagerID,
		Team:               lead.Team,
		PropertyID:         lead.PropertyID,
		PropertyName:       lead.PropertyName,
		BudgetMin:          lead.BudgetMin,
		BudgetMax:          lead.BudgetMax,
		Timeline:           lead.Timeline,
		PreferredLocations: locations,
		PropertyTypes:      propertyTypes,
		Message:            lead.Message,
		Score:              lead.Score,
		ScoreDetails:       toScoreBreakdown(lead.ScoreDetails),
		FirstContactAt:     lead.FirstContactAt,
		SLAMinutes:         int(lead.FirstContactSLA.Minutes()),
		ResponseTimeMs:     responseMs,
		SLAStatus:          lead.SLAStatus,
		LastContactAt:      lead.LastContactAt,
		BookingAmount:      lead.BookingAmount,
		ConvertedAt:        lead.ConvertedAt,
		EntryPermissions:   toPermissionFlags(lead.EntryPermissions),
		CreatedBy:          lead.CreatedBy,
		CreatedAt:          lead.CreatedAt,
		UpdatedAt:          lead.UpdatedAt,
	}
}

// toLeadResponseWithVisits additionally derives the current-visit pointer
// from the visit list.
func toLeadResponseWithVisits(lead domain.Lead, visits []domain.SiteVisit) transport.LeadResponse {
	resp := toLeadResponse(lead)
	if current := domain.CurrentVisit(visits); current != nil {
		visitResp := toVisitResponse(*current)
		resp.CurrentVisit = &visitResp
	}
	return resp
}

func toVisitResponse(visit domain.SiteVisit) transport.VisitResponse {
	return transport.VisitResponse{
		ID:                  visit.ID,
		LeadID:              visit.LeadID,
		PropertyID:          visit.PropertyID,
		PropertyName:        visit.PropertyName,
		ScheduledDate:       visit.ScheduledDate,
		ScheduledTime:       visit.ScheduledTime,
		Status:              visit.Status,
		CompletedDate:       visit.CompletedDate,
		CancelledDate:       visit.CancelledDate,
		Feedback:            visit.Feedback,
		InterestLevel:       visit.InterestLevel,
		NextAction:          visit.NextAction,
		RelationshipManager: visit.RelationshipManager,
		CreatedBy:           visit.CreatedBy,
		CreatedAt:           visit.CreatedAt,
		UpdatedAt:           visit.UpdatedAt,
	}
}

func toNoteResponse(note domain.Note) transport.NoteResponse {
	return transport.NoteResponse{
		ID:         note.ID,
		LeadID:     note.LeadID,
		Body:       note.Body,
		AuthorID:   note.CreatedBy,
		AuthorName: note.AuthorName,
		CreatedAt:  note.CreatedAt,
	}
}

func toCommunicationResponse(comm domain.Communication) transport.CommunicationResponse {
	return transport.CommunicationResponse{
		ID:        comm.ID,
		LeadID:    comm.LeadID,
		Type:      comm.Type,
		Direction: comm.Direction,
		Subject:   comm.Subject,
		Body:      comm.Body,
		LoggedBy:  comm.LoggedBy,
		CreatedAt: comm.CreatedAt,
	}
}

func toTaskResponse(task domain.Task) transport.TaskResponse {
	return transport.TaskResponse{
		ID:          task.ID,
		LeadID:      task.LeadID,
		Title:       task.Title,
		Description: task.Description,
		Status:      task.Status,
		DueAt:       task.DueAt,
		AssignedTo:  task.AssignedTo,
		CreatedBy:   task.CreatedBy,
		CreatedAt:   task.CreatedAt,
		UpdatedAt:   task.UpdatedAt,
	}
}

func toReminderResponse(reminder domain.Reminder) transport.ReminderResponse {
	return transport.ReminderResponse{
		ID:        reminder.ID,
		LeadID:    reminder.LeadID,
		Message:   reminder.Message,
		RemindAt:  reminder.RemindAt,
		Completed: reminder.Completed,
		CreatedBy: reminder.CreatedBy,
		CreatedAt: reminder.CreatedAt,
	}
}

func toDocumentResponse(doc domain.Document) transport.DocumentResponse {
	return transport.DocumentResponse{
		ID:          doc.ID,
		LeadID:      doc.LeadID,
		FileName:    doc.FileName,
		ContentType: doc.ContentType,
		SizeBytes:   doc.SizeBytes,
		StorageKey:  doc.StorageKey,
		UploadedBy:  doc.UploadedBy,
		CreatedAt:   doc.CreatedAt,
	}
}

func toActivityResponse(entry domain.ActivityEntry) transport.ActivityResponse {
	return transport.ActivityResponse{
		ID:          entry.ID,
		LeadID:      entry.LeadID,
		Action:      entry.Action,
		Field:       entry.Field,
		OldValue:    entry.OldValue,
		NewValue:    entry.NewValue,
		Description: entry.Description,
		PerformedBy: entry.PerformedBy,
		CreatedAt:   entry.CreatedAt,
	}
}
