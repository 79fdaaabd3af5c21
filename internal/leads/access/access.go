// Package access is the capability evaluator guarding every lead operation.
// It runs three checks in a fixed order: per-record entry permission, tenant
// isolation, and assignment scoping. The guard executes before any mutation;
// a denial always carries a machine-readable reason code.
package access

import (
	"estatedesk_backend/internal/leads/domain"
	"estatedesk_backend/platform/apperr"

	"github.com/google/uuid"
)

// Denial reason codes. Clients branch on these, never on message text.
const (
	ReasonEntryPermission = "ENTRY_PERMISSION_DENIED"
	ReasonRolePermission  = "ROLE_PERMISSION_DENIED"
	ReasonUnknownRole     = "UNKNOWN_ROLE"
	ReasonNoAgency        = "NO_AGENCY"
	ReasonTenantMismatch  = "TENANT_MISMATCH"
	ReasonNotAssignee     = "NOT_ASSIGNEE"
)

// Actor is the caller of a guarded operation.
type Actor struct {
	UserID   uuid.UUID
	AgencyID *uuid.UUID
	Role     string
}

// Resource is the lead being acted upon, reduced to the fields the guard
// needs.
type Resource struct {
	AgencyID   uuid.UUID
	AssignedTo *uuid.UUID
	// ManagedBy is the property manager of the lead's linked property,
	// when one exists.
	ManagedBy        *uuid.UUID
	EntryPermissions domain.EntryPermissions
}

// ResourceFromLead reduces a lead to its guard-relevant fields.
func ResourceFromLead(lead *domain.Lead, propertyManager *uuid.UUID) Resource {
	return Resource{
		AgencyID:         lead.AgencyID,
		AssignedTo:       lead.AssignedTo,
		ManagedBy:        propertyManager,
		EntryPermissions: lead.EntryPermissions,
	}
}

// Decision is the tagged result of an access evaluation.
type Decision struct {
	Allowed bool
	Reason  string
}

var allow = Decision{Allowed: true}

func deny(reason string) Decision {
	return Decision{Reason: reason}
}

// Err converts a denial into a typed permission error, or nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return apperr.Forbidden("operation not permitted").WithCode(d.Reason)
}

// Evaluator evaluates actor capabilities against lead resources.
type Evaluator struct {
	policy *Policy
}

// NewEvaluator creates an evaluator over the given role-permission policy.
func NewEvaluator(policy *Policy) *Evaluator {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Evaluator{policy: policy}
}

// Evaluate runs the guard checks in order and returns the first denial.
//
// super_admin is platform-level: exempt from tenant isolation and entry
// permissions alike.
func (e *Evaluator) Evaluate(actor Actor, res Resource, action string) Decision {
	if actor.Role == domain.RoleSuperAdmin {
		return allow
	}

	if !e.policy.KnownRole(actor.Role) {
		return deny(ReasonUnknownRole)
	}
	if actor.AgencyID == nil {
		return deny(ReasonNoAgency)
	}

	// (a) Entry-level permission: an explicit per-record flag decides;
	// absence falls back to the global role table.
	if flags, ok := res.EntryPermissions[actor.Role]; ok {
		if !flagAllows(flags, action) {
			return deny(ReasonEntryPermission)
		}
	} else if !e.policy.allows(actor.Role, action) {
		return deny(ReasonRolePermission)
	}

	// (b) Tenant isolation.
	if *actor.AgencyID != res.AgencyID {
		return deny(ReasonTenantMismatch)
	}

	// (c) Assignment scoping: agents act only on their own leads or leads
	// on properties they manage.
	if actor.Role == domain.RoleAgent {
		if !isAssignee(actor.UserID, res.AssignedTo) && !isAssignee(actor.UserID, res.ManagedBy) {
			return deny(ReasonNotAssignee)
		}
	}

	return allow
}

func flagAllows(flags domain.PermissionFlags, action string) bool {
	switch action {
	case domain.ActionView:
		return flags.View
	case domain.ActionEdit:
		return flags.Edit
	case domain.ActionDelete:
		return flags.Delete
	default:
		return false
	}
}

func isAssignee(userID uuid.UUID, candidate *uuid.UUID) bool {
	return candidate != nil && *candidate == userID
}
