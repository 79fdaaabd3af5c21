package access

import (
	"testing"

	"estatedesk_backend/internal/leads/domain"
	"estatedesk_backend/platform/apperr"

	"github.com/google/uuid"
)

var (
	agencyA = uuid.New()
	agencyB = uuid.New()
)

func actor(role string, agency uuid.UUID) Actor {
	return Actor{UserID: uuid.New(), AgencyID: &agency, Role: role}
}

func TestSuperAdminBypassesAllChecks(t *testing.T) {
	e := NewEvaluator(nil)
	sa := Actor{UserID: uuid.New(), Role: domain.RoleSuperAdmin}
	res := Resource{
		AgencyID: agencyA,
		EntryPermissions: domain.EntryPermissions{
			domain.RoleAgencyAdmin: {View: false, Edit: false, Delete: false},
		},
	}

	for _, action := range []string{domain.ActionView, domain.ActionEdit, domain.ActionDelete} {
		if d := e.Evaluate(sa, res, action); !d.Allowed {
			t.Errorf("super_admin denied %q with reason %q", action, d.Reason)
		}
	}
}

func TestEntryPermissionExplicitFalseWins(t *testing.T) {
	e := NewEvaluator(nil)
	admin := actor(domain.RoleAgencyAdmin, agencyA)
	res := Resource{
		AgencyID: agencyA,
		EntryPermissions: domain.EntryPermissions{
			domain.RoleAgencyAdmin: {View: true, Edit: false, Delete: false},
		},
	}

	d := e.Evaluate(admin, res, domain.ActionEdit)
	if d.Allowed || d.Reason != ReasonEntryPermission {
		t.Fatalf("explicit edit=false should deny with entry reason, got %+v", d)
	}
	if d2 := e.Evaluate(admin, res, domain.ActionView); !d2.Allowed {
		t.Fatalf("view stays allowed, got %+v", d2)
	}
}

func TestEntryPermissionGrantOverridesGlobalDelete(t *testing.T) {
	e := NewEvaluator(nil)
	admin := actor(domain.RoleAgencyAdmin, agencyA)

	// Global table denies delete; an explicit per-record grant overrides it.
	denied := e.Evaluate(admin, Resource{AgencyID: agencyA}, domain.ActionDelete)
	if denied.Allowed || denied.Reason != ReasonRolePermission {
		t.Fatalf("default delete should be denied by the role table, got %+v", denied)
	}

	granted := e.Evaluate(admin, Resource{
		AgencyID: agencyA,
		EntryPermissions: domain.EntryPermissions{
			domain.RoleAgencyAdmin: {View: true, Edit: true, Delete: true},
		},
	}, domain.ActionDelete)
	if !granted.Allowed {
		t.Fatalf("per-record delete grant should allow, got %+v", granted)
	}
}

func TestTenantIsolation(t *testing.T) {
	e := NewEvaluator(nil)
	cases := []string{domain.RoleAgencyAdmin, domain.RoleStaff, domain.RoleAgent}
	for _, role := range cases {
		a := actor(role, agencyB)
		d := e.Evaluate(a, Resource{AgencyID: agencyA}, domain.ActionView)
		if d.Allowed || d.Reason != ReasonTenantMismatch {
			t.Errorf("role %q crossing tenants should deny with TENANT_MISMATCH, got %+v", role, d)
		}
	}
}

func TestAgentScopedToOwnLeads(t *testing.T) {
	e := NewEvaluator(nil)
	agent := actor(domain.RoleAgent, agencyA)
	otherAgent := uuid.New()

	// Lead assigned to someone else in the same agency.
	d := e.Evaluate(agent, Resource{AgencyID: agencyA, AssignedTo: &otherAgent}, domain.ActionEdit)
	if d.Allowed || d.Reason != ReasonNotAssignee {
		t.Fatalf("agent editing another agent's lead should deny NOT_ASSIGNEE, got %+v", d)
	}

	// Own lead.
	own := Resource{AgencyID: agencyA, AssignedTo: &agent.UserID}
	if d := e.Evaluate(agent, own, domain.ActionEdit); !d.Allowed {
		t.Fatalf("agent editing own lead should be allowed, got %+v", d)
	}

	// Lead on a property the agent manages.
	managed := Resource{AgencyID: agencyA, AssignedTo: &otherAgent, ManagedBy: &agent.UserID}
	if d := e.Evaluate(agent, managed, domain.ActionEdit); !d.Allowed {
		t.Fatalf("property manager should be allowed, got %+v", d)
	}
}

func TestAdminAndStaffNotAssignmentScoped(t *testing.T) {
	e := NewEvaluator(nil)
	otherAgent := uuid.New()
	res := Resource{AgencyID: agencyA, AssignedTo: &otherAgent}

	for _, role := range []string{domain.RoleAgencyAdmin, domain.RoleStaff} {
		if d := e.Evaluate(actor(role, agencyA), res, domain.ActionEdit); !d.Allowed {
			t.Errorf("role %q should not be assignment-scoped, got %+v", role, d)
		}
	}
}

func TestUnknownRoleAndMissingAgency(t *testing.T) {
	e := NewEvaluator(nil)

	d := e.Evaluate(actor("viewer", agencyA), Resource{AgencyID: agencyA}, domain.ActionView)
	if d.Allowed || d.Reason != ReasonUnknownRole {
		t.Fatalf("unknown role should deny, got %+v", d)
	}

	noAgency := Actor{UserID: uuid.New(), Role: domain.RoleAgent}
	d = e.Evaluate(noAgency, Resource{AgencyID: agencyA}, domain.ActionView)
	if d.Allowed || d.Reason != ReasonNoAgency {
		t.Fatalf("agency-less actor should deny, got %+v", d)
	}
}

func TestDecisionErr(t *testing.T) {
	if err := (Decision{Allowed: true}).Err(); err != nil {
		t.Fatalf("allowed decision must not error, got %v", err)
	}

	err := deny(ReasonTenantMismatch).Err()
	if err == nil {
		t.Fatal("denied decision must produce an error")
	}
	if apperr.GetKind(err) != apperr.KindForbidden {
		t.Fatalf("denial should map to forbidden, got kind %v", apperr.GetKind(err))
	}
	if apperr.GetCode(err) != ReasonTenantMismatch {
		t.Fatalf("error should carry the reason code, got %q", apperr.GetCode(err))
	}
}

func TestParsePolicyRejectsEmpty(t *testing.T) {
	if _, err := ParsePolicy([]byte("roles: {}")); err == nil {
		t.Fatal("empty policy should be rejected")
	}
	if _, err := ParsePolicy([]byte("not: [valid")); err == nil {
		t.Fatal("malformed yaml should be rejected")
	}
}
