// Package handler exposes the lead lifecycle over HTTP. Handlers stay thin:
// bind, validate, build the actor, delegate to the service layer, and let the
// typed error kinds drive the status codes.
package handler

import (
	"net/http"
	"strconv"

	"estatedesk_backend/internal/leads/access"
	"estatedesk_backend/internal/leads/scheduling"
	"estatedesk_backend/internal/leads/service"
	"estatedesk_backend/internal/leads/transport"
	"estatedesk_backend/platform/httpkit"
	"estatedesk_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	svc    *service.Service
	visits *scheduling.Service
	val    *validator.Validator
}

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

func New(svc *service.Service, visits *scheduling.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, visits: visits, val: val}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/check-duplicate", h.CheckDuplicate)
	rg.GET("/status-summary", h.StatusSummary)
	rg.POST("/bulk-import", h.BulkImport)
	rg.POST("/bulk-delete", h.BulkDelete)
	rg.GET("/:id", h.GetByID)
	rg.PUT("/:id", h.Update)
	rg.DELETE("/:id", h.Delete)
	rg.PATCH("/:id/status", h.UpdateStatus)
	rg.POST("/:id/auto-stage", h.AutoStage)
	rg.PUT("/:id/assign", h.Assign)
	rg.POST("/:id/auto-assign", h.AutoAssign)
	rg.POST("/:id/rescore", h.Rescore)
	rg.POST("/:id/merge", h.Merge)
	rg.GET("/:id/activity", h.Activity)

	rg.GET("/:id/notes", h.ListNotes)
	rg.POST("/:id/notes", h.AddNote)
	rg.GET("/:id/communications", h.ListCommunications)
	rg.POST("/:id/communications", h.LogCommunication)
	rg.GET("/:id/tasks", h.ListTasks)
	rg.POST("/:id/tasks", h.AddTask)
	rg.PATCH("/:id/tasks/:taskId/status", h.UpdateTaskStatus)
	rg.GET("/:id/reminders", h.ListReminders)
	rg.POST("/:id/reminders", h.AddReminder)
	rg.POST("/:id/reminders/:reminderId/complete", h.CompleteReminder)
	rg.GET("/:id/documents", h.ListDocuments)
	rg.POST("/:id/documents", h.AddDocument)
	rg.POST("/:id/documents/presign", h.PresignDocumentUpload)
	rg.GET("/:id/documents/:documentId", h.GetDocument)
	rg.DELETE("/:id/documents/:documentId", h.DeleteDocument)

	rg.GET("/:id/visits", h.ListVisits)
	rg.POST("/:id/visits", h.ScheduleVisit)
	rg.PATCH("/:id/visits/:visitId", h.UpdateVisit)
	rg.POST("/:id/visits/:visitId/complete", h.CompleteVisit)
	rg.DELETE("/:id/visits/:visitId", h.RemoveVisit)
}

// actor builds the guard actor from the authenticated identity. Users carry
// exactly one role; if a token ever carries more, the first claim wins.
func actor(ident httpkit.Identity) access.Actor {
	a := access.Actor{UserID: ident.UserID(), AgencyID: ident.AgencyID()}
	if roles := ident.Roles(); len(roles) > 0 {
		a.Role = roles[0]
	}
	return a
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) Create(c *gin.Context) {
	ident := httpkit.MustGetIdentity(c)
	if ident == nil {
		return
	}

	var req transport.CreateLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.Create(c.Request.Context(), actor(ident), req)
	if httpkit.HandleError(c, err) {
		return
	}

	// A re-engaged duplicate returns the absorbing lead, not a new record.
	status := http.StatusCreated
	if result.ReEngaged {
		status = http.StatusOK
	}
	httpkit.JSON(c, status, result.Lead)
}

func (h *Handler) List(c *gin.Context) {
	ident := httpkit.MustGetIdentity(c)
	if ident == nil {
		return
	}

	var req transport.ListLeadsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.List(c.Request.Context(), actor(ident), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

func (h *Handler) GetByID(c *gin.Context) {
	ident := httpkit.MustGetIdentity(c)
	if ident == nil {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	lead, err := h.svc.GetByID(c.Request.Context(), actor(ident), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, lead)
}

func (h *Handler) Update(c *gin.Context) {
	ident := httpkit.MustGetIdentity(c)
	if ident == nil {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req transport.UpdateLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	lead, err := h.svc.Update(c.Request.Context(), actor(ident), id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, lead)
}

func (h *Handler) Delete(c *gin.Context) {
	ident := httpkit.MustGetIdentity(c)
	if ident == nil {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.svc.Delete(c.Request.Context(), actor(ident), id); err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, gin.H{"message": "lead deleted"})
}

func (h *Handler) BulkDelete(c *gin.Context) {
	ident := httpkit.MustGetIdentity(c)
	if ident == nil {
		return
	}

	var req transport.BulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.BulkDelete(c.Request.Context(), actor(ident), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

func (h *Handler) BulkImport(c *gin.Context) {
	ident := httpkit.MustGetIdentity(c)
	if ident == nil {
		return
	}

	var req transport.BulkImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.BulkImport(c.Request.Context(), actor(ident), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	ident := httpkit.MustGetIdentity(c)
	if ident == nil {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req transport.UpdateLeadStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	lead, err := h.svc.UpdateStatus(c.Request.Context(), actor(ident), id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, lead)
}

func (h *Handler) AutoStage(c *gin.Context) {
	ident := httpkit.MustGetIdentity(c)
	if ident == nil {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	lead, err := h.svc.AutoStage(c.Request.Context(), actor(ident), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, lead)
}

func (h *Handler) Assign(c *gin.Context) {
	ident := httpkit.MustGetIdentity(c)
	if ident == nil {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req transport.AssignLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	lead, err := h.svc.Assign(c.Request.Context(), actor(ident), id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, lead)
}

func (h *Handler) AutoAssign(c *gin.Context) {
	ident := httpkit.MustGetIdentity(c)
	if ident == nil {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	// Body is optional; an empty one means "use the agency's configured method".
	var req transport.AutoAssignRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
			return
		}
		if err := h.val.Struct(req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
			return
		}
	}

	lead, err := h.svc.AutoAssign(c.Request.Context(), actor(ident), id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, lead)
}

func (h *Handler) Rescore(c *gin.Context) {
	ident := httpkit.MustGetIdentity(c)
	if ident == nil {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	lead, err := h.svc.Rescore(c.Request.Context(), actor(ident), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, lead)
}

func (h *Handler) Merge(c *gin.Context) {
	ident := httpkit.MustGetIdentity(c)
	if ident == nil {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req transport.MergeLeadsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	lead, err := h.svc.Merge(c.Request.Context(), actor(ident), id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, lead)
}

func (h *Handler) CheckDuplicate(c *gin.Context) {
	ident := httpkit.MustGetIdentity(c)
	if ident == nil {
		return
	}

	var req transport.CheckDuplicateRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.CheckDuplicate(c.Request.Context(), actor(ident), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

func (h *Handler) StatusSummary(c *gin.Context) {
	ident := httpkit.MustGetIdentity(c)
	if ident == nil {
		return
	}

	result, err := h.svc.StatusSummary(c.Request.Context(), actor(ident))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

func (h *Handler) Activity(c *gin.Context) {
	ident := httpkit.MustGetIdentity(c)
	if ident == nil {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "50"))

	result, err := h.svc.Activity(c.Request.Context(), actor(ident), id, page, pageSize)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}
