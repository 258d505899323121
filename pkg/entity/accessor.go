package entity

import (
	"strings"
	"sync/atomic"
)

// hotFields are the identity-like names the mixed strategy keeps in direct
// slots. Matching is case-insensitive.
var hotFields = map[string]struct{}{
	"id":       {},
	"name":     {},
	"username": {},
	"email":    {},
	"status":   {},
	"active":   {},
}

// autoInstances counts instances created across all auto-resolved classes.
// Consulted only when Config.CountInstances is set.
var autoInstances atomic.Uint64

// accessor binds one field to its storage: a direct slot index on the
// instance, or delegation to the instance's field store under the field name.
type accessor struct {
	spec   *FieldSpec
	direct bool
	slot   int
}

// accessorSet is the per-class table of synthesized accessors. It is resolved
// once per class and shared by every instance; instances hold their own slot
// array and field store.
type accessorSet struct {
	accessors []accessor
	index     map[string]*accessor
	slots     int

	// policy is the effective strategy after auto resolution: direct,
	// delegated, or mixed.
	policy Strategy
}

// lookup returns the accessor for a declared field name.
func (s *accessorSet) lookup(name string) (*accessor, bool) {
	a, ok := s.index[name]
	return a, ok
}

// synthesize produces the accessor table for a field list under an already
// resolved policy (auto must be resolved by the caller first). Slot indices
// are assigned in declaration order.
func synthesize(fields []FieldSpec, policy Strategy) *accessorSet {
	set := &accessorSet{
		accessors: make([]accessor, 0, len(fields)),
		index:     make(map[string]*accessor, len(fields)),
		policy:    policy,
	}

	for i := range fields {
		spec := &fields[i]
		direct := false
		switch policy {
		case StrategyDirect:
			direct = true
		case StrategyMixed:
			_, direct = hotFields[strings.ToLower(spec.Name)]
		}

		a := accessor{spec: spec, direct: direct, slot: -1}
		if direct {
			a.slot = set.slots
			set.slots++
		}
		set.accessors = append(set.accessors, a)
	}

	for i := range set.accessors {
		set.index[set.accessors[i].spec.Name] = &set.accessors[i]
	}
	return set
}

// resolveStrategy maps the configured policy to an effective one. Auto
// resolution is a function of the class's field count, plus the cross-class
// instance budget when instance counting is enabled.
func (d *Descriptor) resolveStrategy() Strategy {
	switch d.cfg.Strategy {
	case StrategyAuto:
		if len(d.fields) > d.cfg.AutoFieldThreshold {
			return StrategyDelegated
		}
		if d.cfg.CountInstances && autoInstances.Load() > uint64(d.cfg.AutoInstanceThreshold) {
			return StrategyDelegated
		}
		return StrategyDirect
	default:
		return d.cfg.Strategy
	}
}

// countInstance advances the cross-class instance budget for auto classes.
func (d *Descriptor) countInstance() {
	if d.cfg.Strategy == StrategyAuto && d.cfg.CountInstances {
		autoInstances.Add(1)
	}
}
