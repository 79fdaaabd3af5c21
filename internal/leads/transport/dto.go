package transport

import (
	"time"

	"github.com/google/uuid"
)

// PermissionFlags mirror the per-record entry permission overrides.
type PermissionFlags struct {
	View   bool `json:"view"`
	Edit   bool `json:"edit"`
	Delete bool `json:"delete"`
}

// Request DTOs.
//
// Source, priority, timeline and status fields deliberately carry no oneof
// constraint: intake data arrives with platform aliases (fb, call, high, ...)
// and the domain normalizers own the mapping to canonical values.
type CreateLeadRequest struct {
	Name               string                     `json:"name" validate:"required,min=1,max=200"`
	Phone              string                     `json:"phone" validate:"required,min=5,max=20"`
	Email              string                     `json:"email,omitempty" validate:"omitempty,email"`
	AltPhone           string                     `json:"altPhone,omitempty" validate:"omitempty,min=5,max=20"`
	Source             string                     `json:"source,omitempty" validate:"max=50"`
	SourceDetails      string                     `json:"sourceDetails,omitempty" validate:"max=500"`
	Priority           string                     `json:"priority,omitempty" validate:"max=30"`
	PropertyID         OptionalUUID               `json:"propertyId,omitempty" validate:"-"`
	PropertyName       string                     `json:"propertyName,omitempty" validate:"max=200"`
	BudgetMin          *float64                   `json:"budgetMin,omitempty" validate:"omitempty,min=0"`
	BudgetMax          *float64                   `json:"budgetMax,omitempty" validate:"omitempty,min=0"`
	Timeline           string                     `json:"timeline,omitempty" validate:"max=30"`
	PreferredLocations []string                   `json:"preferredLocations,omitempty" validate:"max=20,dive,max=100"`
	PropertyTypes      []string                   `json:"propertyTypes,omitempty" validate:"max=20,dive,max=50"`
	Message            string                     `json:"message,omitempty" validate:"max=5000"`
	Team               string                     `json:"team,omitempty" validate:"max=100"`
	AssignedTo         OptionalUUID               `json:"assignedTo,omitempty" validate:"-"`
	ManagerID          OptionalUUID               `json:"managerId,omitempty" validate:"-"`
	SLAMinutes         *int                       `json:"slaMinutes,omitempty" validate:"omitempty,min=1,max=10080"`
	EntryPermissions   map[string]PermissionFlags `json:"entryPermissions,omitempty" validate:"-"`
	SkipAutoAssign     bool                       `json:"skipAutoAssign,omitempty"`
}

type UpdateLeadRequest struct {
	Name               *string                    `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Phone              *string                    `json:"phone,omitempty" validate:"omitempty,min=5,max=20"`
	Email              *string                    `json:"email,omitempty" validate:"omitempty,email"`
	AltPhone           *string                    `json:"altPhone,omitempty" validate:"omitempty,max=20"`
	Source             *string                    `json:"source,omitempty" validate:"omitempty,max=50"`
	SourceDetails      *string                    `json:"sourceDetails,omitempty" validate:"omitempty,max=500"`
	Priority           *string                    `json:"priority,omitempty" validate:"omitempty,max=30"`
	PropertyID         OptionalUUID               `json:"propertyId,omitempty" validate:"-"`
	PropertyName       *string                    `json:"propertyName,omitempty" validate:"omitempty,max=200"`
	BudgetMin          OptionalFloat              `json:"budgetMin,omitempty" validate:"-"`
	BudgetMax          OptionalFloat              `json:"budgetMax,omitempty" validate:"-"`
	Timeline           *string                    `json:"timeline,omitempty" validate:"omitempty,max=30"`
	PreferredLocations []string                   `json:"preferredLocations,omitempty" validate:"max=20,dive,max=100"`
	PropertyTypes      []string                   `json:"propertyTypes,omitempty" validate:"max=20,dive,max=50"`
	Message            *string                    `json:"message,omitempty" validate:"omitempty,max=5000"`
	Team               *string                    `json:"team,omitempty" validate:"omitempty,max=100"`
	ManagerID          OptionalUUID               `json:"managerId,omitempty" validate:"-"`
	BookingAmount      OptionalFloat              `json:"bookingAmount,omitempty" validate:"-"`
	SLAMinutes         *int                       `json:"slaMinutes,omitempty" validate:"omitempty,min=1,max=10080"`
	EntryPermissions   map[string]PermissionFlags `json:"entryPermissions,omitempty" validate:"-"`
}

type UpdateLeadStatusRequest struct {
	Status        string   `json:"status" validate:"required,min=1,max=50"`
	Reason        string   `json:"reason,omitempty" validate:"max=500"`
	BookingAmount *float64 `json:"bookingAmount,omitempty" validate:"omitempty,min=0"`
}

type AssignLeadRequest struct {
	// AgentID null or absent clears the assignment.
	AgentID OptionalUUID `json:"agentId" validate:"-"`
	Team    *string      `json:"team,omitempty" validate:"omitempty,max=100"`
}

type AutoAssignRequest struct {
	Method string `json:"method,omitempty" validate:"omitempty,oneof=round_robin workload location project source smart"`
}

type MergeLeadsRequest struct {
	MergedLeadID uuid.UUID `json:"mergedLeadId" validate:"required"`
}

type BulkDeleteRequest struct {
	IDs []uuid.UUID `json:"ids" validate:"required,min=1,max=500"`
}

// LegacyVisit is the single-visit shape older exports carry. Intake converts
// it to a visit-list row immediately; nothing downstream sees this form.
type LegacyVisit struct {
	PropertyName  string    `json:"propertyName,omitempty" validate:"max=200"`
	Date          time.Time `json:"date" validate:"required"`
	Time          string    `json:"time,omitempty" validate:"max=20"`
	Status        string    `json:"status,omitempty" validate:"max=30"`
	Feedback      string    `json:"feedback,omitempty" validate:"max=2000"`
	InterestLevel string    `json:"interestLevel,omitempty" validate:"max=30"`
}

type BulkImportLead struct {
	Name               string       `json:"name" validate:"required,min=1,max=200"`
	Phone              string       `json:"phone" validate:"required,min=5,max=20"`
	Email              string       `json:"email,omitempty" validate:"omitempty,email"`
	AltPhone           string       `json:"altPhone,omitempty" validate:"omitempty,max=20"`
	Status             string       `json:"status,omitempty" validate:"max=50"`
	Source             string       `json:"source,omitempty" validate:"max=50"`
	SourceDetails      string       `json:"sourceDetails,omitempty" validate:"max=500"`
	Priority           string       `json:"priority,omitempty" validate:"max=30"`
	PropertyID         OptionalUUID `json:"propertyId,omitempty" validate:"-"`
	PropertyName       string       `json:"propertyName,omitempty" validate:"max=200"`
	BudgetMin          *float64     `json:"budgetMin,omitempty" validate:"omitempty,min=0"`
	BudgetMax          *float64     `json:"budgetMax,omitempty" validate:"omitempty,min=0"`
	Timeline           string       `json:"timeline,omitempty" validate:"max=30"`
	PreferredLocations []string     `json:"preferredLocations,omitempty" validate:"max=20,dive,max=100"`
	PropertyTypes      []string     `json:"propertyTypes,omitempty" validate:"max=20,dive,max=50"`
	Message            string       `json:"message,omitempty" validate:"max=5000"`
	Team               string       `json:"team,omitempty" validate:"max=100"`
	AssignedTo         OptionalUUID `json:"assignedTo,omitempty" validate:"-"`
	SiteVisit          *LegacyVisit `json:"siteVisit,omitempty"`
}

type BulkImportRequest struct {
	Leads []BulkImportLead `json:"leads" validate:"required,min=1,max=500,dive"`
}

type ListLeadsRequest struct {
	Status      string `form:"status" validate:"max=50"`
	Priority    string `form:"priority" validate:"max=30"`
	Source      string `form:"source" validate:"max=50"`
	AssignedTo  string `form:"assignedTo" validate:"omitempty,uuid"`
	Unassigned  bool   `form:"unassigned"`
	PropertyID  string `form:"propertyId" validate:"omitempty,uuid"`
	Team        string `form:"team" validate:"max=100"`
	SLAStatus   string `form:"slaStatus" validate:"omitempty,oneof=pending met breached"`
	MinScore    *int   `form:"minScore" validate:"omitempty,min=0,max=100"`
	Search      string `form:"search" validate:"max=100"`
	CreatedFrom string `form:"createdFrom" validate:"omitempty,datetime=2006-01-02"`
	CreatedTo   string `form:"createdTo" validate:"omitempty,datetime=2006-01-02"`
	Page        int    `form:"page" validate:"min=0"`
	PageSize    int    `form:"pageSize" validate:"min=0,max=100"`
	SortBy      string `form:"sortBy" validate:"omitempty,oneof=name status priority score lastContactAt createdAt updatedAt"`
	SortOrder   string `form:"sortOrder" validate:"omitempty,oneof=asc desc"`
}

type CheckDuplicateRequest struct {
	Phone string `form:"phone" validate:"omitempty,min=5,max=20"`
	Email string `form:"email" validate:"omitempty,email"`
}

// Response DTOs.

type ScoreBreakdownResponse struct {
	SourceScore     int       `json:"sourceScore"`
	BudgetScore     int       `json:"budgetScore"`
	TimelineScore   int       `json:"timelineScore"`
	EngagementScore int       `json:"engagementScore"`
	Total           int       `json:"total"`
	CalculatedAt    time.Time `json:"calculatedAt"`
}

type LeadResponse struct {
	ID                 uuid.UUID                  `json:"id"`
	LeadNumber         string                     `json:"leadNumber"`
	Name               string                     `json:"name"`
	Phone              string                     `json:"phone"`
	Email              string                     `json:"email,omitempty"`
	AltPhone           string                     `json:"altPhone,omitempty"`
	Status             string                     `json:"status"`
	Priority           string                     `json:"priority"`
	Source             string                     `json:"source"`
	SourceDetails      string                     `json:"sourceDetails,omitempty"`
	AssignedTo         *uuid.UUID                 `json:"assignedTo,omitempty"`
	ManagerID          *uuid.UUID                 `json:"managerId,omitempty"`
	Team               string                     `json:"team,omitempty"`
	PropertyID         *uuid.UUID                 `json:"propertyId,omitempty"`
	PropertyName       string                     `json:"propertyName,omitempty"`
	BudgetMin          *float64                   `json:"budgetMin,omitempty"`
	BudgetMax          *float64                   `json:"budgetMax,omitempty"`
	Timeline           string                     `json:"timeline,omitempty"`
	PreferredLocations []string                   `json:"preferredLocations"`
	PropertyTypes      []string                   `json:"propertyTypes"`
	Message            string                     `json:"message,omitempty"`
	Score              int                        `json:"score"`
	ScoreDetails       *ScoreBreakdownResponse    `json:"scoreDetails,omitempty"`
	FirstContactAt     *time.Time                 `json:"firstContactAt,omitempty"`
	SLAMinutes         int                        `json:"slaMinutes"`
	ResponseTimeMs     *int64                     `json:"responseTimeMs,omitempty"`
	SLAStatus          string                     `json:"slaStatus"`
	LastContactAt      *time.Time                 `json:"lastContactAt,omitempty"`
	BookingAmount      *float64                   `json:"bookingAmount,omitempty"`
	ConvertedAt        *time.Time                 `json:"convertedAt,omitempty"`
	EntryPermissions   map[string]PermissionFlags `json:"entryPermissions,omitempty"`
	CurrentVisit       *VisitResponse             `json:"currentVisit,omitempty"`
	CreatedBy          *uuid.UUID                 `json:"createdBy,omitempty"`
	CreatedAt          time.Time                  `json:"createdAt"`
	UpdatedAt          time.Time                  `json:"updatedAt"`
}

type LeadListResponse struct {
	Items      []LeadResponse `json:"items"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	PageSize   int            `json:"pageSize"`
	TotalPages int            `json:"totalPages"`
}

type DuplicateCheckResponse struct {
	IsDuplicate  bool          `json:"isDuplicate"`
	ExistingLead *LeadResponse `json:"existingLead,omitempty"`
}

type BulkImportError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

type BulkImportResponse struct {
	Imported int               `json:"imported"`
	Failed   int               `json:"failed"`
	Errors   []BulkImportError `json:"errors"`
}

type BulkDeleteResponse struct {
	Deleted int `json:"deleted"`
}

type StatusSummaryResponse struct {
	Counts map[string]int `json:"counts"`
}
