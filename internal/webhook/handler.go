package webhook

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"estatedesk_backend/internal/scheduler"
	"estatedesk_backend/platform/httpkit"
	"estatedesk_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const timestampFormat = time.RFC3339

// defaultExportWindow is how far back an export reaches when the request
// does not name an instant.
const defaultExportWindow = 24 * time.Hour

// Handler exposes the public intake endpoint and the admin key management
// endpoints.
type Handler struct {
	service *Service
	repo    *Repository
	val     *validator.Validator
	exports scheduler.ExportEnqueuer
}

func NewHandler(service *Service, repo *Repository, val *validator.Validator) *Handler {
	return &Handler{service: service, repo: repo, val: val}
}

// ---- Public intake (API-key authenticated) ----

// HandleIntake accepts a lead submission as JSON or an HTML form post.
// POST /public/webhook/leads
func (h *Handler) HandleIntake(c *gin.Context) {
	agencyID, ok := webhookAgencyID(c)
	if !ok {
		return
	}

	fields := collectFields(c)
	if len(fields) == 0 {
		httpkit.Error(c, http.StatusBadRequest, "no form data received", nil)
		return
	}

	sub := IntakeSubmission{
		Fields:       fields,
		SourceDomain: originHost(c),
	}
	if keyID, exists := c.Get(ctxKeyIDKey); exists {
		sub.APIKeyID, _ = keyID.(uuid.UUID)
	}
	sub.APIKeyName = c.GetString(ctxKeyNameKey)

	resp, err := h.service.ProcessIntake(c.Request.Context(), agencyID, sub)
	if httpkit.HandleError(c, err) {
		return
	}

	status := http.StatusCreated
	if resp.Duplicate || resp.ReEngaged {
		status = http.StatusOK
	}
	httpkit.JSON(c, status, resp)
}

// ---- Admin API key management (JWT authenticated) ----

type CreateAPIKeyRequest struct {
	Name           string   `json:"name" validate:"required,min=1,max=100"`
	AllowedDomains []string `json:"allowedDomains" validate:"max=20,dive,max=200"`
}

type APIKeyResponse struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	KeyPrefix      string    `json:"keyPrefix"`
	AllowedDomains []string  `json:"allowedDomains"`
	IsActive       bool      `json:"isActive"`
	CreatedAt      string    `json:"createdAt"`
}

// CreateAPIKeyResponse carries the plaintext key, shown only this once.
type CreateAPIKeyResponse struct {
	APIKeyResponse
	Key string `json:"key"`
}

// HandleCreateAPIKey mints a new intake key for the caller's agency.
// POST /api/v1/admin/webhook/keys
func (h *Handler) HandleCreateAPIKey(c *gin.Context) {
	agencyID, ok := adminAgencyID(c)
	if !ok {
		return
	}

	var req CreateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	if err := h.val.Struct(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	plaintext, hash, prefix, err := GenerateAPIKey()
	if err != nil {
		httpkit.Error(c, http.StatusInternalServerError, "failed to generate API key", nil)
		return
	}

	domains := req.AllowedDomains
	if domains == nil {
		domains = []string{}
	}

	key, err := h.repo.Create(c.Request.Context(), agencyID, req.Name, hash, prefix, domains)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, CreateAPIKeyResponse{
		APIKeyResponse: toAPIKeyResponse(key),
		Key:            plaintext,
	})
}

// HandleListAPIKeys lists the agency's intake keys, active and revoked.
// GET /api/v1/admin/webhook/keys
func (h *Handler) HandleListAPIKeys(c *gin.Context) {
	agencyID, ok := adminAgencyID(c)
	if !ok {
		return
	}

	keys, err := h.repo.ListByAgency(c.Request.Context(), agencyID)
	if httpkit.HandleError(c, err) {
		return
	}

	result := make([]APIKeyResponse, len(keys))
	for i, k := range keys {
		result[i] = toAPIKeyResponse(k)
	}
	httpkit.OK(c, result)
}

// HandleRevokeAPIKey deactivates an intake key.
// DELETE /api/v1/admin/webhook/keys/:keyId
func (h *Handler) HandleRevokeAPIKey(c *gin.Context) {
	agencyID, ok := adminAgencyID(c)
	if !ok {
		return
	}

	keyID, err := uuid.Parse(c.Param("keyId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid key ID", nil)
		return
	}

	if err := h.repo.Revoke(c.Request.Context(), keyID, agencyID); err != nil {
		if err == ErrAPIKeyNotFound {
			httpkit.Error(c, http.StatusNotFound, "API key not found", nil)
			return
		}
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, gin.H{"message": "API key revoked"})
}

type TriggerExportRequest struct {
	Since string `json:"since"`
}

// HandleTriggerExport queues a bulk export of the agency's recently updated
// leads to the configured webhook endpoint. The body is optional; without a
// since instant the export covers the last 24 hours.
// POST /api/v1/admin/webhook/export
func (h *Handler) HandleTriggerExport(c *gin.Context) {
	agencyID, ok := adminAgencyID(c)
	if !ok {
		return
	}
	if h.exports == nil {
		httpkit.Error(c, http.StatusServiceUnavailable, "export jobs not configured", nil)
		return
	}

	var req TriggerExportRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	since := time.Now().Add(-defaultExportWindow)
	if req.Since != "" {
		parsed, err := time.Parse(time.RFC3339, req.Since)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, "invalid since timestamp, want RFC3339", nil)
			return
		}
		since = parsed
	}

	err := h.exports.EnqueueWebhookExport(c.Request.Context(), scheduler.WebhookExportPayload{
		AgencyID: agencyID.String(),
		Since:    since.UTC(),
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusAccepted, gin.H{
		"status": "queued",
		"since":  since.UTC().Format(timestampFormat),
	})
}

func toAPIKeyResponse(key APIKey) APIKeyResponse {
	return APIKeyResponse{
		ID:             key.ID,
		Name:           key.Name,
		KeyPrefix:      key.KeyPrefix,
		AllowedDomains: key.AllowedDomains,
		IsActive:       key.IsActive,
		CreatedAt:      key.CreatedAt.Format(timestampFormat),
	}
}

// ---- helpers ----

func webhookAgencyID(c *gin.Context) (uuid.UUID, bool) {
	raw, exists := c.Get(ctxAgencyIDKey)
	if !exists {
		httpkit.Error(c, http.StatusUnauthorized, "missing agency context", nil)
		return uuid.UUID{}, false
	}
	id, ok := raw.(uuid.UUID)
	if !ok {
		httpkit.Error(c, http.StatusUnauthorized, "missing agency context", nil)
		return uuid.UUID{}, false
	}
	return id, true
}

func adminAgencyID(c *gin.Context) (uuid.UUID, bool) {
	ident := httpkit.MustGetIdentity(c)
	if ident == nil {
		return uuid.UUID{}, false
	}
	agencyID := ident.AgencyID()
	if agencyID == nil {
		httpkit.Error(c, http.StatusForbidden, "no agency context", nil)
		return uuid.UUID{}, false
	}
	return *agencyID, true
}

// collectFields flattens the request body into a key-value map. JSON bodies
// take strings, numbers and booleans, with nested objects flattened one
// level ("siteVisit": {"date": ...} becomes "siteVisit_date"). Form posts
// take the first value per field.
func collectFields(c *gin.Context) map[string]string {
	fields := make(map[string]string)

	if c.ContentType() == "application/json" {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			return fields
		}
		for key, val := range body {
			switch v := val.(type) {
			case map[string]any:
				for subKey, subVal := range v {
					if s := stringifyField(subVal); s != "" {
						fields[key+"_"+subKey] = s
					}
				}
			default:
				if s := stringifyField(val); s != "" {
					fields[key] = s
				}
			}
		}
		return fields
	}

	if err := c.Request.ParseMultipartForm(4 << 20); err != nil {
		if err := c.Request.ParseForm(); err != nil {
			return fields
		}
	}
	if c.Request.MultipartForm != nil {
		for key, values := range c.Request.MultipartForm.Value {
			if len(values) > 0 {
				fields[key] = values[0]
			}
		}
	}
	for key, values := range c.Request.PostForm {
		if _, exists := fields[key]; !exists && len(values) > 0 {
			fields[key] = values[0]
		}
	}
	return fields
}

func stringifyField(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case float64:
		// JSON numbers decode as float64; print integers without the ".0".
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// originHost reports where the submission came from, for source attribution.
func originHost(c *gin.Context) string {
	origin := c.GetHeader("Origin")
	if origin == "" {
		origin = c.GetHeader("Referer")
	}
	if origin == "" {
		return ""
	}
	if parsed, err := url.Parse(origin); err == nil && parsed.Hostname() != "" {
		return parsed.Hostname()
	}
	return origin
}
