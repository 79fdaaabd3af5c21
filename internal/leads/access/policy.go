package access

import (
	_ "embed"
	"fmt"

	"estatedesk_backend/internal/leads/domain"

	"gopkg.in/yaml.v3"
)

//go:embed policy.yaml
var policyYAML []byte

// Policy is the global role-permission table. Entry permissions on a lead
// override it per record.
type Policy struct {
	Roles map[string]policyFlags `yaml:"roles"`
}

type policyFlags struct {
	View   bool `yaml:"view"`
	Edit   bool `yaml:"edit"`
	Delete bool `yaml:"delete"`
}

// DefaultPolicy parses the embedded role-permission table. The embedded file
// is part of the build, so a parse failure is a programming error.
func DefaultPolicy() *Policy {
	policy, err := ParsePolicy(policyYAML)
	if err != nil {
		panic("access: embedded policy.yaml invalid: " + err.Error())
	}
	return policy
}

// ParsePolicy loads a role-permission table from YAML.
func ParsePolicy(raw []byte) (*Policy, error) {
	var policy Policy
	if err := yaml.Unmarshal(raw, &policy); err != nil {
		return nil, fmt.Errorf("parse access policy: %w", err)
	}
	if len(policy.Roles) == 0 {
		return nil, fmt.Errorf("access policy defines no roles")
	}
	return &policy, nil
}

// allows reports the global flag for a role and action. Unknown roles get
// nothing.
func (p *Policy) allows(role, action string) bool {
	flags, ok := p.Roles[role]
	if !ok {
		return false
	}
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

// KnownRole reports whether the policy defines the role.
func (p *Policy) KnownRole(role string) bool {
	_, ok := p.Roles[role]
	return ok
}
