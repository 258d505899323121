package entity

import (
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/entitykit/entitykit/pkg/fieldstore"
)

// Identity is the immutable identity of an entity: an opaque unique id and
// the class's type label. It never changes after construction.
type Identity struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Stats counts the operations an entity has served since construction.
type Stats struct {
	Reads       uint64 `json:"reads"`
	Writes      uint64 `json:"writes"`
	Deletes     uint64 `json:"deletes"`
	Validations uint64 `json:"validations"`
	ActionCalls uint64 `json:"action_calls"`
}

// Attribution records who last ran a command-profile action on an entity.
type Attribution struct {
	Action      string    `json:"action"`
	CallerID    string    `json:"caller_id,omitempty"`
	CallerRoles []string  `json:"caller_roles,omitempty"`
	At          time.Time `json:"at"`
}

// Entity is a live instance of a class: one identity, one metadata record,
// one field-storage backing, and a reference to the class's shared
// descriptor. Operations on a single entity observe a total order equal to
// call order; when the config enables thread safety, a per-entity mutex
// serializes mutations.
type Entity struct {
	identity Identity
	desc     *Descriptor
	acc      *accessorSet

	mu    sync.Mutex
	meta  Metadata
	slots []interface{}
	set   []bool
	store *fieldstore.Store
	stats Stats

	// queryCache holds results of query-profile actions; any mutation drops
	// it, which is the per-entity derived-artifact invalidation.
	queryCache  map[string]interface{}
	lastCommand *Attribution

	hashOnce sync.Once
	hashVal  uint64
}

// New creates a draft entity of the class with defaults applied and a fresh
// id.
func New(desc *Descriptor) *Entity {
	acc := desc.accessorSet()
	desc.countInstance()

	e := &Entity{
		identity: Identity{ID: uuid.NewString(), Type: desc.entityType},
		desc:     desc,
		acc:      acc,
		meta:     newMetadata(),
		slots:    make([]interface{}, acc.slots),
		set:      make([]bool, acc.slots),
		store:    fieldstore.New(),
	}

	desc.cfg.Logger.Debug().
		Str("entity_id", e.identity.ID).
		Str("entity_type", e.identity.Type).
		Str("strategy", string(acc.policy)).
		Msg("Entity created")
	return e
}

// NewWithData creates an entity seeded with the given values. Each value is
// validated against its field's constraint set, but seeding is construction,
// not mutation: the entity comes out at version 1. On a validation failure
// the entity is not returned; construction is all-or-nothing.
func NewWithData(desc *Descriptor, values map[string]interface{}) (*Entity, error) {
	e := New(desc)
	for _, name := range sortedKeys(values) {
		if err := e.validateField(name, values[name]); err != nil {
			return nil, err
		}
		e.writeField(name, values[name])
	}
	return e, nil
}

// FromMap is NewWithData under the factory naming used by deserializers.
func FromMap(desc *Descriptor, values map[string]interface{}) (*Entity, error) {
	return NewWithData(desc, values)
}

// FromStore creates an entity seeded from a field store's exported mapping.
func FromStore(desc *Descriptor, store *fieldstore.Store) (*Entity, error) {
	return NewWithData(desc, store.ToMap())
}

// ID returns the entity's opaque unique id.
func (e *Entity) ID() string {
	return e.identity.ID
}

// Type returns the class's type label.
func (e *Entity) Type() string {
	return e.identity.Type
}

// Descriptor returns the shared class descriptor.
func (e *Entity) Descriptor() *Descriptor {
	return e.desc
}

// State returns the current lifecycle state.
func (e *Entity) State() State {
	e.lock()
	defer e.unlock()
	return e.meta.State
}

// Version returns the monotonic version counter.
func (e *Entity) Version() int {
	e.lock()
	defer e.unlock()
	return e.meta.Version
}

// CreatedAt returns the construction timestamp.
func (e *Entity) CreatedAt() time.Time {
	e.lock()
	defer e.unlock()
	return e.meta.CreatedAt
}

// UpdatedAt returns the timestamp of the last accepted mutation.
func (e *Entity) UpdatedAt() time.Time {
	e.lock()
	defer e.unlock()
	return e.meta.UpdatedAt
}

// Get returns the value at the given path. Declared fields read through
// their synthesized accessor, falling back to the field default and then to
// def; undeclared paths read the field store directly.
func (e *Entity) Get(path string, def interface{}) interface{} {
	e.lock()
	defer e.unlock()
	e.stats.Reads++

	a, ok := e.acc.lookup(path)
	if !ok {
		return e.store.Get(path, def)
	}
	if a.direct {
		if e.set[a.slot] {
			return e.slots[a.slot]
		}
		if a.spec.Default != nil {
			return a.spec.Default
		}
		return def
	}
	fallback := def
	if a.spec.Default != nil {
		fallback = a.spec.Default
	}
	return e.store.Get(path, fallback)
}

// Set writes a value. Declared fields are validated against their constraint
// set first (unless validation is disabled); every accepted write bumps the
// version and invalidates the entity's cached query results.
func (e *Entity) Set(path string, value interface{}) error {
	e.lock()
	defer e.unlock()
	return e.setLocked(path, value)
}

func (e *Entity) setLocked(path string, value interface{}) error {
	if err := e.validateField(path, value); err != nil {
		return err
	}
	e.writeField(path, value)
	e.stats.Writes++
	e.mutated()
	return nil
}

// validateField checks a single write against the field's declaration.
// Undeclared paths always pass; they carry no constraints.
func (e *Entity) validateField(path string, value interface{}) error {
	a, declared := e.acc.lookup(path)
	if !declared || !e.desc.cfg.Validation {
		return nil
	}
	if value == nil && a.spec.Required {
		return &ValidationError{Field: path, Required: true, Constraints: a.spec.Constraints}
	}
	if res := e.desc.cfg.Evaluator.Evaluate(value, a.spec.Constraints); !res.OK {
		return &ValidationError{
			Field:       path,
			Value:       value,
			Constraints: a.spec.Constraints,
			Detail:      res.Detail,
		}
	}
	return nil
}

// writeField stores a value through the field's accessor, or the field store
// for undeclared paths.
func (e *Entity) writeField(path string, value interface{}) {
	if a, declared := e.acc.lookup(path); declared && a.direct {
		e.slots[a.slot] = value
		e.set[a.slot] = true
		return
	}
	e.store.Set(path, value)
}

// Delete removes the value at the given path. Deleting a declared field
// leaves it unset; reads fall back to the default again.
func (e *Entity) Delete(path string) error {
	e.lock()
	defer e.unlock()

	if a, ok := e.acc.lookup(path); ok && a.direct {
		e.slots[a.slot] = nil
		e.set[a.slot] = false
	} else {
		e.store.Delete(path)
	}

	e.stats.Deletes++
	e.mutated()
	return nil
}

// Update applies each pair through Set in sorted key order. Application is
// not atomic: a failure partway leaves the pairs already applied in place,
// and the error reports the pair that failed.
func (e *Entity) Update(values map[string]interface{}) error {
	for _, name := range sortedKeys(values) {
		if err := e.Set(name, values[name]); err != nil {
			return err
		}
	}
	return nil
}

// Has reports whether a value is present at the path, ignoring defaults.
func (e *Entity) Has(path string) bool {
	e.lock()
	defer e.unlock()

	if a, ok := e.acc.lookup(path); ok && a.direct {
		return e.set[a.slot]
	}
	return e.store.Has(path)
}

// Validate runs the full field-set validation pass and returns the first
// failure as a ValidationError, or nil when every field passes.
func (e *Entity) Validate() error {
	e.lock()
	defer e.unlock()
	return e.validateLocked()
}

// IsValid reports whether the full field-set validation pass succeeds.
func (e *Entity) IsValid() bool {
	return e.Validate() == nil
}

func (e *Entity) validateLocked() error {
	e.stats.Validations++

	for i := range e.acc.accessors {
		a := &e.acc.accessors[i]
		value, present := e.currentValue(a)
		if !present {
			if a.spec.Required {
				return &ValidationError{Field: a.spec.Name, Required: true, Constraints: a.spec.Constraints}
			}
			value = a.spec.Default
		}
		if res := e.desc.cfg.Evaluator.Evaluate(value, a.spec.Constraints); !res.OK {
			return &ValidationError{
				Field:       a.spec.Name,
				Value:       value,
				Constraints: a.spec.Constraints,
				Detail:      res.Detail,
			}
		}
	}
	return nil
}

// currentValue reads a declared field's stored value without defaults.
func (e *Entity) currentValue(a *accessor) (interface{}, bool) {
	if a.direct {
		if !e.set[a.slot] {
			return nil, false
		}
		return e.slots[a.slot], true
	}
	if !e.store.Has(a.spec.Name) {
		return nil, false
	}
	return e.store.Get(a.spec.Name, nil), true
}

// ToValidated transitions DRAFT -> VALIDATED. The transition is gated on a
// successful validation pass over the full field set; on failure the state
// does not change and the StateError wraps the ValidationError.
func (e *Entity) ToValidated() error {
	return e.transitionTo(StateValidated)
}

// Commit transitions VALIDATED -> COMMITTED.
func (e *Entity) Commit() error {
	return e.transitionTo(StateCommitted)
}

// Archive transitions to ARCHIVED from any state that allows it.
func (e *Entity) Archive() error {
	return e.transitionTo(StateArchived)
}

// Restore transitions ARCHIVED -> DRAFT.
func (e *Entity) Restore() error {
	return e.transitionTo(StateDraft)
}

// TransitionTo moves the entity to the target lifecycle state, enforcing the
// transition table and the validation gate on VALIDATED.
func (e *Entity) TransitionTo(target State) error {
	return e.transitionTo(target)
}

func (e *Entity) transitionTo(target State) error {
	e.lock()
	defer e.unlock()

	current := e.meta.State
	if !CanTransition(current, target) {
		return &StateError{Current: current, Target: target}
	}
	if target == StateValidated {
		if err := e.validateLocked(); err != nil {
			return &StateError{Current: current, Target: target, Reason: "validation failed", Err: err}
		}
	}
	if err := e.meta.transition(target); err != nil {
		return err
	}
	e.queryCache = nil

	e.desc.cfg.Logger.Debug().
		Str("entity_id", e.identity.ID).
		Str("from", string(current)).
		Str("to", string(target)).
		Int("version", e.meta.Version).
		Msg("State transition")
	return nil
}

// AddTag appends a tag if not already present.
func (e *Entity) AddTag(tag string) {
	e.lock()
	defer e.unlock()

	for _, t := range e.meta.Tags {
		if t == tag {
			return
		}
	}
	e.meta.Tags = append(e.meta.Tags, tag)
	e.mutated()
}

// HasTag reports whether the entity carries the tag.
func (e *Entity) HasTag(tag string) bool {
	e.lock()
	defer e.unlock()

	for _, t := range e.meta.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Tags returns the ordered tag list.
func (e *Entity) Tags() []string {
	e.lock()
	defer e.unlock()

	out := make([]string, len(e.meta.Tags))
	copy(out, e.meta.Tags)
	return out
}

// SetMeta stores a free-form annotation on the entity's metadata.
func (e *Entity) SetMeta(key string, value interface{}) {
	e.lock()
	defer e.unlock()

	e.meta.Meta[key] = value
	e.mutated()
}

// Meta returns a free-form annotation.
func (e *Entity) Meta(key string) (interface{}, bool) {
	e.lock()
	defer e.unlock()

	v, ok := e.meta.Meta[key]
	return v, ok
}

// Data exports the entity's current field values plus any undeclared paths in
// the field store as a deep-copied plain mapping. Unset fields with defaults
// appear with their default.
func (e *Entity) Data() map[string]interface{} {
	e.lock()
	defer e.unlock()
	return e.dataLocked()
}

func (e *Entity) dataLocked() map[string]interface{} {
	out := e.store.ToMap()
	for i := range e.acc.accessors {
		a := &e.acc.accessors[i]
		if value, present := e.currentValue(a); present {
			out[a.spec.Name] = value
		} else if a.spec.Default != nil {
			out[a.spec.Name] = a.spec.Default
		}
	}
	return out
}

// StoreView returns a read-only view of the entity's field store. Writes are
// not possible through the view.
func (e *Entity) StoreView() fieldstore.View {
	return e.store.View()
}

// Copy deep-duplicates field values, tags, and annotations into a new entity
// with a fresh identity. The copy starts at version 1 in DRAFT; version and
// state history are not carried over.
func (e *Entity) Copy() *Entity {
	e.lock()
	data := e.dataLocked()
	tags := make([]string, len(e.meta.Tags))
	copy(tags, e.meta.Tags)
	meta := make(map[string]interface{}, len(e.meta.Meta))
	for k, v := range e.meta.Meta {
		meta[k] = v
	}
	e.unlock()

	dup := New(e.desc)
	dup.store.LoadMap(data)
	for i := range dup.acc.accessors {
		a := &dup.acc.accessors[i]
		if !a.direct {
			continue
		}
		if dup.store.Has(a.spec.Name) {
			dup.slots[a.slot] = dup.store.Get(a.spec.Name, nil)
			dup.set[a.slot] = true
			dup.store.Delete(a.spec.Name)
		}
	}
	dup.meta.Tags = tags
	dup.meta.Meta = meta
	return dup
}

// Equal reports id equality: two entities are equal iff their ids match.
func (e *Entity) Equal(other *Entity) bool {
	if other == nil {
		return false
	}
	return e.identity.ID == other.identity.ID
}

// Hash returns a stable hash of the entity's id, computed once and cached
// for the instance's lifetime.
func (e *Entity) Hash() uint64 {
	e.hashOnce.Do(func() {
		h := fnv.New64a()
		h.Write([]byte(e.identity.ID))
		e.hashVal = h.Sum64()
	})
	return e.hashVal
}

// Stats returns a snapshot of the entity's operation counters.
func (e *Entity) Stats() Stats {
	e.lock()
	defer e.unlock()
	return e.stats
}

// LastCommand returns the attribution record of the most recent successful
// command-profile action, or nil if none has run.
func (e *Entity) LastCommand() *Attribution {
	e.lock()
	defer e.unlock()

	if e.lastCommand == nil {
		return nil
	}
	out := *e.lastCommand
	return &out
}

// mutated records an accepted mutation: version bump, timestamp refresh, and
// per-entity invalidation of derived artifacts. Callers hold the lock.
func (e *Entity) mutated() {
	e.meta.touch()
	e.queryCache = nil
}

func (e *Entity) lock() {
	if e.desc.cfg.ThreadSafe {
		e.mu.Lock()
	}
}

func (e *Entity) unlock() {
	if e.desc.cfg.ThreadSafe {
		e.mu.Unlock()
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
