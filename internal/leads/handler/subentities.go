package handler

import (
	"net/http"

	"estatedesk_backend/internal/leads/transport"
	"estatedesk_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

func (h *Handler) AddNote(c *gin.Context) {
	ident := httpkit.MustGetIdentity(c)
	if ident == nil {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req transport.CreateNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	note, err := h.svc.AddNote(c.Request.Context(), actor(ident), id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, note)
}

func (h *Handler) ListNotes(c *gin.Context) {
	ident := httpkit.MustGetIdentity(c)
	if ident == nil {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	notes, err := h.svc.ListNotes(c.Request.Context(), actor(ident), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, notes)
}

func (h *Handler) LogCommunication(c *gin.Context) {
	ident := httpkit.MustGetIdentity(c)
	if ident == nil {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req transport.LogCommunicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	comm, err := h.svc.LogCommunication(c.Request.Context(), actor(ident), id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, comm)
}

func (h *Handler) ListCommunications(c *gin.Context) {
	ident := httpkit.MustGetIdentity(c)
	if ident == nil {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	comms, err := h.svc.ListCommunications(c.Request.Context(), actor(ident), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, comms)
}

func (h *Handler) AddTask(c *gin.Context) {
	ident := httpkit.MustGetIdentity(c)
	if ident == nil {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req transport.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	task, err := h.svc.AddTask(c.Request.Context(), actor(ident), id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, task)
}

func (h *Handler) UpdateTaskStatus(c *gin.Context) {
	ident := httpkit.MustGetIdentity(c)
	if ident == nil {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	taskID, ok := pathID(c, "taskId")
	if !ok {
		return
	}

	var req transport.UpdateTaskStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	task, err := h.svc.UpdateTaskStatus(c.Request.Context(), actor(ident), id, taskID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, task)
}

func (h *Handler) ListTasks(c *gin.Context) {
	ident := httpkit.MustGetIdentity(c)
	if ident == nil {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	tasks, err := h.svc.ListTasks(c.Request.Context(), actor(ident), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, tasks)
}

func (h *Handler) AddReminder(c *gin.Context) {
	ident := httpkit.MustGetIdentity(c)
	if ident == nil {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req transport.CreateReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	reminder, err := h.svc.AddReminder(c.Request.Context(), actor(ident), id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, reminder)
}

func (h *Handler) CompleteReminder(c *gin.Context) {
	ident := httpkit.MustGetIdentity(c)
	if ident == nil {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	reminderID, ok := pathID(c, "reminderId")
	if !ok {
		return
	}

	reminder, err := h.svc.CompleteReminder(c.Request.Context(), actor(ident), id, reminderID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, reminder)
}

func (h *Handler) ListReminders(c *gin.Context) {
	ident := httpkit.MustGetIdentity(c)
	if ident == nil {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	reminders, err := h.svc.ListReminders(c.Request.Context(), actor(ident), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, reminders)
}

// PresignDocumentUpload hands out a short-lived upload URL. The client PUTs
// the bytes straight to object storage, then registers the document with
// AddDocument.
func (h *Handler) PresignDocumentUpload(c *gin.Context) {
	ident := httpkit.MustGetIdentity(c)
	if ident == nil {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req transport.PresignedUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	presigned, err := h.svc.PresignDocumentUpload(c.Request.Context(), actor(ident), id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, presigned)
}

func (h *Handler) AddDocument(c *gin.Context) {
	ident := httpkit.MustGetIdentity(c)
	if ident == nil {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req transport.CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	doc, err := h.svc.AddDocument(c.Request.Context(), actor(ident), id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, doc)
}

func (h *Handler) GetDocument(c *gin.Context) {
	ident := httpkit.MustGetIdentity(c)
	if ident == nil {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	documentID, ok := pathID(c, "documentId")
	if !ok {
		return
	}

	doc, err := h.svc.GetDocument(c.Request.Context(), actor(ident), id, documentID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, doc)
}

func (h *Handler) ListDocuments(c *gin.Context) {
	ident := httpkit.MustGetIdentity(c)
	if ident == nil {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	docs, err := h.svc.ListDocuments(c.Request.Context(), actor(ident), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, docs)
}

func (h *Handler) DeleteDocument(c *gin.Context) {
	ident := httpkit.MustGetIdentity(c)
	if ident == nil {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	documentID, ok := pathID(c, "documentId")
	if !ok {
		return
	}

	if err := h.svc.DeleteDocument(c.Request.Context(), actor(ident), id, documentID); err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, gin.H{"message": "document removed"})
}
