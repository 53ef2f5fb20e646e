package backend

import "slices"

// Capability represents one operation a backend can provide.
type Capability string

const (
	// Core capabilities
	CapabilityScan   Capability = "scan"
	CapabilityUpdate Capability = "update"

	// Reserved for sub-tree backends; no in-tree backend provides it.
	CapabilityBranch Capability = "branch"
)

// Capabilities describes what a backend supports.
type Capabilities struct {
	Capabilities []Capability
}

// Contains checks if a capability is supported.
func (c *Capabilities) Contains(cap Capability) bool {
	return slices.Contains(c.Capabilities, cap)
}
