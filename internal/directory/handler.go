package directory

import (
	"net/http"
	"time"

	"estatedesk_backend/internal/directory/repository"
	"estatedesk_backend/platform/httpkit"
	"estatedesk_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	repo *repository.Repository
	log  *logger.Logger
}

func NewHandler(repo *repository.Repository, log *logger.Logger) *Handler {
	return &Handler{repo: repo, log: log}
}

type userResponse struct {
	ID         uuid.UUID  `json:"id"`
	AgencyID   *uuid.UUID `json:"agencyId,omitempty"`
	Name       string     `json:"name"`
	Email      string     `json:"email,omitempty"`
	Phone      string     `json:"phone,omitempty"`
	Role       string     `json:"role"`
	Team       string     `json:"team,omitempty"`
	Locations  []string   `json:"locations"`
	IsActive   bool       `json:"isActive"`
	IsTeamLead bool       `json:"isTeamLead"`
	CreatedAt  time.Time  `json:"createdAt"`
}

type agencyResponse struct {
	ID       uuid.UUID                 `json:"id"`
	Name     string                    `json:"name"`
	Email    string                    `json:"email,omitempty"`
	Phone    string                    `json:"phone,omitempty"`
	Settings repository.AgencySettings `json:"settings"`
	IsActive bool                      `json:"isActive"`
}

func toUserResponse(user repository.User) userResponse {
	locations := user.Locations
	if locations == nil {
		locations = []string{}
	}
	return userResponse{
		ID:         user.ID,
		AgencyID:   user.AgencyID,
		Name:       user.Name,
		Email:      user.Email,
		Phone:      user.Phone,
		Role:       user.Role,
		Team:       user.Team,
		Locations:  locations,
		IsActive:   user.IsActive,
		IsTeamLead: user.IsTeamLead,
		CreatedAt:  user.CreatedAt,
	}
}

func (h *Handler) agencyID(c *gin.Context) (uuid.UUID, bool) {
	ident := httpkit.MustGetIdentity(c)
	if ident == nil {
		return uuid.Nil, false
	}
	if ident.AgencyID() == nil {
		httpkit.Error(c, http.StatusForbidden, "no agency context", nil)
		return uuid.Nil, false
	}
	return *ident.AgencyID(), true
}

func (h *Handler) ListAgents(c *gin.Context) {
	agencyID, ok := h.agencyID(c)
	if !ok {
		return
	}

	agents, err := h.repo.FindActiveAgents(c.Request.Context(), agencyID)
	if err != nil {
		h.log.Error("list agents failed", "agencyId", agencyID, "error", err.Error())
		httpkit.Error(c, http.StatusInternalServerError, "could not list agents", nil)
		return
	}

	items := make([]userResponse, 0, len(agents))
	for _, agent := range agents {
		items = append(items, toUserResponse(agent))
	}
	httpkit.OK(c, gin.H{"items": items})
}

func (h *Handler) ListUsers(c *gin.Context) {
	agencyID, ok := h.agencyID(c)
	if !ok {
		return
	}

	users, err := h.repo.ListUsers(c.Request.Context(), agencyID)
	if err != nil {
		h.log.Error("list users failed", "agencyId", agencyID, "error", err.Error())
		httpkit.Error(c, http.StatusInternalServerError, "could not list users", nil)
		return
	}

	items := make([]userResponse, 0, len(users))
	for _, user := range users {
		items = append(items, toUserResponse(user))
	}
	httpkit.OK(c, gin.H{"items": items})
}

func (h *Handler) GetAgency(c *gin.Context) {
	agencyID, ok := h.agencyID(c)
	if !ok {
		return
	}

	agency, err := h.repo.GetAgency(c.Request.Context(), agencyID)
	if err != nil {
		if err == repository.ErrNotFound {
			httpkit.Error(c, http.StatusNotFound, "agency not found", nil)
			return
		}
		h.log.Error("get agency failed", "agencyId", agencyID, "error", err.Error())
		httpkit.Error(c, http.StatusInternalServerError, "could not load agency", nil)
		return
	}

	httpkit.OK(c, agencyResponse{
		ID:       agency.ID,
		Name:     agency.Name,
		Email:    agency.Email,
		Phone:    agency.Phone,
		Settings: agency.Settings,
		IsActive: agency.IsActive,
	})
}
