package handler

import (
	"net/http"

	"estatedesk_backend/internal/leads/transport"
	"estatedesk_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

func (h *Handler) ScheduleVisit(c *gin.Context) {
	ident := httpkit.MustGetIdentity(c)
	if ident == nil {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req transport.ScheduleVisitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	visit, err := h.visits.ScheduleVisit(c.Request.Context(), actor(ident), id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, visit)
}

func (h *Handler) UpdateVisit(c *gin.Context) {
	ident := httpkit.MustGetIdentity(c)
	if ident == nil {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	visitID, ok := pathID(c, "visitId")
	if !ok {
		return
	}

	var req transport.UpdateVisitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	visit, err := h.visits.UpdateVisit(c.Request.Context(), actor(ident), id, visitID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, visit)
}

func (h *Handler) CompleteVisit(c *gin.Context) {
	ident := httpkit.MustGetIdentity(c)
	if ident == nil {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	visitID, ok := pathID(c, "visitId")
	if !ok {
		return
	}

	// Body is optional; an empty one completes with defaults.
	var req transport.CompleteVisitRequest
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

	visit, err := h.visits.CompleteVisit(c.Request.Context(), actor(ident), id, visitID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, visit)
}

// RemoveVisit cancels a visit, keeping the history entry. With purge=true the
// row is erased instead, which requires delete permission on the lead.
func (h *Handler) RemoveVisit(c *gin.Context) {
	ident := httpkit.MustGetIdentity(c)
	if ident == nil {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	visitID, ok := pathID(c, "visitId")
	if !ok {
		return
	}

	if c.Query("purge") == "true" {
		if err := h.visits.DeleteVisit(c.Request.Context(), actor(ident), id, visitID); err != nil {
			httpkit.HandleError(c, err)
			return
		}
		httpkit.OK(c, gin.H{"message": "visit removed"})
		return
	}

	visit, err := h.visits.CancelVisit(c.Request.Context(), actor(ident), id, visitID, transport.CancelVisitRequest{
		Reason: c.Query("reason"),
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, visit)
}

func (h *Handler) ListVisits(c *gin.Context) {
	ident := httpkit.MustGetIdentity(c)
	if ident == nil {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	visits, err := h.visits.ListVisits(c.Request.Context(), actor(ident), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, visits)
}
