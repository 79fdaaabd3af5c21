package domain

// Roles recognized by the permission guard. super_admin is platform-level
// and exempt from tenant isolation; the remaining roles are agency-scoped.
const (
	RoleSuperAdmin  = "super_admin"
	RoleAgencyAdmin = "agency_admin"
	RoleAgent       = "agent"
	RoleStaff       = "staff"
)

// Guarded actions.
const (
	ActionView   = "view"
	ActionEdit   = "edit"
	ActionDelete = "delete"
)

// PermissionFlags are per-record override flags for one role.
type PermissionFlags struct {
	View   bool `json:"view"`
	Edit   bool `json:"edit"`
	Delete bool `json:"delete"`
}

// EntryPermissions overrides the global role-permission defaults for a single
// lead, keyed by role. Roles absent from the map fall back to the defaults.
type EntryPermissions map[string]PermissionFlags

// DefaultEntryPermissions returns the baseline flags applied to every new
// lead: view and edit allowed, delete denied.
func DefaultEntryPermissions() EntryPermissions {
	return EntryPermissions{
		RoleAgencyAdmin: {View: true, Edit: true, Delete: false},
		RoleAgent:       {View: true, Edit: true, Delete: false},
		RoleStaff:       {View: true, Edit: true, Delete: false},
	}
}

// Allows reports whether the given role may perform the action on this lead.
// A role missing from the map gets the default flags (view/edit true,
// delete false); only an explicit false blocks view or edit.
func (p EntryPermissions) Allows(role, action string) bool {
	flags, ok := p[role]
	if !ok {
		return action != ActionDelete
	}
	switch action {
	case ActionView:
		return flags.View
	case ActionEdit:
		return flags.Edit
	case ActionDelete:
		return flags.Delete
	default:
		return false
	}
}
