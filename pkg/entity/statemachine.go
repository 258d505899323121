package entity

import (
	"time"
)

// State is the lifecycle state of an entity.
type State string

const (
	// StateDraft is the initial state; the entity is mutable and unverified.
	StateDraft State = "DRAFT"

	// StateValidated means every field passed its constraint set at
	// transition time.
	StateValidated State = "VALIDATED"

	// StateCommitted marks the entity as accepted downstream.
	StateCommitted State = "COMMITTED"

	// StateArchived parks the entity. Restoring to draft is the only way
	// out; there is no terminal state.
	StateArchived State = "ARCHIVED"
)

// transitions is the allowed-transition table.
var transitions = map[State][]State{
	StateDraft:     {StateValidated, StateArchived},
	StateValidated: {StateCommitted, StateDraft, StateArchived},
	StateCommitted: {StateArchived},
	StateArchived:  {StateDraft},
}

// CanTransition reports whether the lifecycle table allows from -> to.
func CanTransition(from, to State) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the states reachable from the given state.
func AllowedTransitions(from State) []State {
	allowed := transitions[from]
	out := make([]State, len(allowed))
	copy(out, allowed)
	return out
}

// Metadata is the mutable bookkeeping an entity carries: lifecycle state,
// monotonic version, timestamps, tags, and free-form annotations. Version
// starts at 1 and advances by exactly 1 on every accepted mutation or
// transition; it never decreases.
type Metadata struct {
	State     State                  `json:"state"`
	Version   int                    `json:"version"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
	Tags      []string               `json:"tags,omitempty"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
}

// newMetadata returns fresh draft metadata at version 1.
func newMetadata() Metadata {
	now := time.Now().UTC()
	return Metadata{
		State:     StateDraft,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
		Meta:      make(map[string]interface{}),
	}
}

// touch records an accepted mutation: version advances by 1 and UpdatedAt
// refreshes, never moving backwards.
func (m *Metadata) touch() {
	m.Version++
	if now := time.Now().UTC(); now.After(m.UpdatedAt) {
		m.UpdatedAt = now
	}
}

// transition moves to the target state if the table allows it, bumping the
// version. Validation gating for StateValidated is the caller's concern; this
// enforces the table only.
func (m *Metadata) transition(target State) error {
	if !CanTransition(m.State, target) {
		return &StateError{Current: m.State, Target: target}
	}
	m.State = target
	m.touch()
	return nil
}
