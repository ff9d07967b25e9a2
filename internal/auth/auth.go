// Package auth maps caller roles to the capabilities the tracker gates on.
package auth

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Capability names an action a caller may be allowed to take.
type Capability string

const (
	// CapRecord covers recording set events and reading stats.
	CapRecord Capability = "record"
	// CapClose covers recording closed and install-scheduled events.
	CapClose Capability = "close"
	// CapExport covers ledger exports. Deleting events requires the same
	// capability.
	CapExport Capability = "export"
)

// Checker answers whether a set of roles grants a capability.
type Checker interface {
	Allows(cap Capability, roles []string) bool
}

// Policy grants capabilities by role. The zero value denies everything.
type Policy struct {
	Capabilities map[string][]string `toml:"capabilities"`
}

var _ Checker = (*Policy)(nil)

// DefaultPolicy grants the stock role hierarchy: admins and managers can do
// everything, closers can additionally close, and setters can record.
func DefaultPolicy() *Policy {
	return &Policy{
		Capabilities: map[string][]string{
			string(CapRecord): {"admin", "manager", "closer", "setter"},
			string(CapClose):  {"admin", "manager", "closer"},
			string(CapExport): {"admin", "manager"},
		},
	}
}

// LoadPolicy reads a TOML policy file.
//
//	[capabilities]
//	record = ["admin", "manager", "closer", "setter"]
//	close  = ["admin", "manager", "closer"]
//	export = ["admin", "manager"]
func LoadPolicy(path string) (*Policy, error) {
	var p Policy
	if _, err := toml.DecodeFile(path, &p); err != nil {
		return nil, fmt.Errorf("loading role policy from %s: %w", path, err)
	}
	for _, cap := range []Capability{CapRecord, CapClose, CapExport} {
		if _, ok := p.Capabilities[string(cap)]; !ok {
			return nil, fmt.Errorf("role policy %s missing capability %q", path, cap)
		}
	}
	return &p, nil
}

// Allows reports whether any of roles grants cap.
func (p *Policy) Allows(cap Capability, roles []string) bool {
	granted := p.Capabilities[string(cap)]
	for _, role := range roles {
		for _, g := range granted {
			if role == g {
				return true
			}
		}
	}
	return false
}
