package domain

import "fmt"

// Capability is a single permission resolved upstream by the identity
// collaborator. The core never queries role tables; it receives the full
// capability set with every call.
type Capability string

const (
	CapabilityAuthor        Capability = "author"
	CapabilityReview        Capability = "review"
	CapabilityApprove       Capability = "approve"
	CapabilityObsolete      Capability = "obsolete"
	CapabilityAdministerAll Capability = "administer_all"
)

var knownCapabilities = map[Capability]bool{
	CapabilityAuthor:        true,
	CapabilityReview:        true,
	CapabilityApprove:       true,
	CapabilityObsolete:      true,
	CapabilityAdministerAll: true,
}

// ParseCapability validates a capability string at trust boundaries.
func ParseCapability(s string) (Capability, error) {
	c := Capability(s)
	if !knownCapabilities[c] {
		return "", fmt.Errorf("unknown capability: %s", s)
	}
	return c, nil
}

// Actor is the resolved caller of a core operation: identity plus the
// capability set computed once by the identity collaborator.
type Actor struct {
	ID           ActorID
	Capabilities map[Capability]bool
}

func NewActor(id ActorID, caps ...Capability) Actor {
	set := make(map[Capability]bool, len(caps))
	for _, c := range caps {
		set[c] = true
	}
	return Actor{ID: id, Capabilities: set}
}

func (a Actor) Can(c Capability) bool {
	return a.Capabilities[c] || a.Capabilities[CapabilityAdministerAll]
}

func (a Actor) IsNil() bool {
	return a.ID.IsNil()
}

// ViewScope controls list filtering: Self restricts to documents the actor
// participates in, All is granted upstream to administrators. Computed from
// capabilities by the caller, never checked ad hoc inside filtering code.
type ViewScope string

const (
	ViewScopeSelf ViewScope = "self"
	ViewScopeAll  ViewScope = "all"
)

// ScopeFor derives the view scope from an actor's capability set.
func ScopeFor(a Actor) ViewScope {
	if a.Capabilities[CapabilityAdministerAll] {
		return ViewScopeAll
	}
	return ViewScopeSelf
}
