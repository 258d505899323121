package entity

import (
	"testing"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateDraft, StateValidated, true},
		{StateDraft, StateArchived, true},
		{StateDraft, StateCommitted, false},
		{StateValidated, StateCommitted, true},
		{StateValidated, StateDraft, true},
		{StateValidated, StateArchived, true},
		{StateCommitted, StateArchived, true},
		{StateCommitted, StateDraft, false},
		{StateCommitted, StateValidated, false},
		{StateArchived, StateDraft, true},
		{StateArchived, StateCommitted, false},
		{StateArchived, StateValidated, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s): expected %v, got %v", tt.from, tt.to, tt.want, got)
		}
	}
}

func TestAllowedTransitions(t *testing.T) {
	got := AllowedTransitions(StateCommitted)
	if len(got) != 1 || got[0] != StateArchived {
		t.Errorf("Expected [ARCHIVED], got %v", got)
	}

	if len(AllowedTransitions(State("UNKNOWN"))) != 0 {
		t.Error("Expected no transitions from an unknown state")
	}
}

func TestMetadataTouch(t *testing.T) {
	m := newMetadata()
	if m.State != StateDraft {
		t.Errorf("Expected initial state DRAFT, got %s", m.State)
	}
	if m.Version != 1 {
		t.Errorf("Expected initial version 1, got %d", m.Version)
	}
	if m.UpdatedAt.Before(m.CreatedAt) {
		t.Error("Expected UpdatedAt >= CreatedAt")
	}

	before := m.UpdatedAt
	for i := 0; i < 5; i++ {
		m.touch()
	}
	if m.Version != 6 {
		t.Errorf("Expected version 6 after 5 touches, got %d", m.Version)
	}
	if m.UpdatedAt.Before(before) {
		t.Error("Expected UpdatedAt to be non-decreasing")
	}
}

func TestMetadataTransition(t *testing.T) {
	m := newMetadata()

	if err := m.transition(StateCommitted); err == nil {
		t.Fatal("Expected StateError for DRAFT -> COMMITTED")
	} else if !IsState(err) {
		t.Errorf("Expected a StateError, got %T", err)
	}
	if m.State != StateDraft || m.Version != 1 {
		t.Error("Expected state and version unchanged after rejected transition")
	}

	if err := m.transition(StateValidated); err != nil {
		t.Fatalf("Expected DRAFT -> VALIDATED to succeed: %v", err)
	}
	if m.State != StateValidated || m.Version != 2 {
		t.Errorf("Expected VALIDATED at version 2, got %s v%d", m.State, m.Version)
	}
}
