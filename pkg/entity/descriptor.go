package entity

import (
	"fmt"
	"sync"

	"github.com/entitykit/entitykit/pkg/schema"
)

// Profile categorizes an action's execution contract. The dispatcher consumes
// it for caching, attribution, and deferral; it is also exported for
// introspection.
type Profile string

const (
	// ProfileQuery actions must not mutate entity state and may be served
	// from a result cache keyed by entity, action, and parameters.
	ProfileQuery Profile = "query"

	// ProfileCommand actions mutate state; every successful invocation bumps
	// the entity version and records the caller.
	ProfileCommand Profile = "command"

	// ProfileTask actions may be deferred to a task runner; the synchronous
	// contract is only enqueue-or-run.
	ProfileTask Profile = "task"

	// ProfileWorkflow actions run multiple internal steps; the dispatcher
	// does not roll back steps already applied when a later one fails. Bodies
	// own their compensating logic.
	ProfileWorkflow Profile = "workflow"

	// ProfileEndpoint actions map parameters 1:1 to external request fields;
	// every declared parameter is optional unless listed as required.
	ProfileEndpoint Profile = "endpoint"
)

// ActionFunc is the body of an action. It receives the target entity and the
// validated parameters, and its result is returned to the dispatcher's caller
// unchanged.
type ActionFunc func(e *Entity, params map[string]interface{}) (interface{}, error)

// FieldSpec declares one field of a class. Specs are immutable after Build.
type FieldSpec struct {
	// Name is the field name, unique within the class.
	Name string `json:"name"`

	// Constraints is the validation rule set for the field's values.
	Constraints *schema.ConstraintSet `json:"constraints,omitempty"`

	// Default is the value reads fall back to. A field with no default is
	// required.
	Default interface{} `json:"default,omitempty"`

	// Required marks a field that must carry a value for the entity to
	// validate. Derived by Build: true iff Default is nil.
	Required bool `json:"required"`
}

// ActionSpec declares one action of a class.
type ActionSpec struct {
	// Name is the action name, unique within the class.
	Name string `json:"name"`

	// Roles is the allowed-role set; policy.Wildcard admits any caller.
	Roles []string `json:"roles"`

	// Profile is the action's execution contract.
	Profile Profile `json:"profile"`

	// Description is free-form documentation carried into exports.
	Description string `json:"description,omitempty"`

	// InputConstraints validates supplied parameters by name.
	InputConstraints map[string]*schema.ConstraintSet `json:"input_constraints,omitempty"`

	// RequiredParams lists parameters that must be supplied. For endpoint
	// actions this is the only source of requiredness; constrained but
	// unlisted parameters stay optional.
	RequiredParams []string `json:"required_params,omitempty"`

	// Body is the action logic.
	Body ActionFunc `json:"-"`
}

// Descriptor is the immutable result of building a class: the ordered field
// table, the action table, and the accessor set resolved from the configured
// strategy. All entities of the class share one Descriptor.
type Descriptor struct {
	entityType  string
	cfg         *Config
	fields      []FieldSpec
	fieldIndex  map[string]int
	fieldNames  []string
	constraints map[string]*schema.ConstraintSet
	actions     map[string]*ActionSpec
	actionNames []string

	// Accessor synthesis is deferred to first use so auto resolution can see
	// the instance budget at that point. Resolved exactly once per class.
	resolveOnce sync.Once
	accessors   *accessorSet
}

// Builder accumulates field and action declarations for one class. Declare
// everything, then call Build once; Build validates the whole declaration and
// produces the Descriptor.
type Builder struct {
	entityType string
	fields     []FieldSpec
	actions    []ActionSpec
}

// NewBuilder starts a class declaration for the given type label.
func NewBuilder(entityType string) *Builder {
	return &Builder{entityType: entityType}
}

// Field adds a field declaration. Order is preserved into the descriptor's
// field table.
func (b *Builder) Field(spec FieldSpec) *Builder {
	b.fields = append(b.fields, spec)
	return b
}

// Action adds an action declaration.
func (b *Builder) Action(spec ActionSpec) *Builder {
	b.actions = append(b.actions, spec)
	return b
}

// Build validates the declaration and produces the class descriptor. The
// accessor strategy is resolved here, once for the class's lifetime.
func (b *Builder) Build(cfg *Config) (*Descriptor, error) {
	cfg = cfg.normalized()
	if err := cfg.Validate(); err != nil {
		return nil, &DefinitionError{EntityType: b.entityType, Kind: "config", Detail: err.Error()}
	}
	if b.entityType == "" {
		return nil, &DefinitionError{EntityType: b.entityType, Kind: "class", Detail: "entity type must not be empty"}
	}

	d := &Descriptor{
		entityType:  b.entityType,
		cfg:         cfg,
		fieldIndex:  make(map[string]int, len(b.fields)),
		constraints: make(map[string]*schema.ConstraintSet, len(b.fields)),
		actions:     make(map[string]*ActionSpec, len(b.actions)),
	}

	for _, spec := range b.fields {
		if spec.Name == "" {
			return nil, &DefinitionError{EntityType: b.entityType, Kind: "field", Detail: "field name must not be empty"}
		}
		if _, dup := d.fieldIndex[spec.Name]; dup {
			return nil, &DefinitionError{EntityType: b.entityType, Kind: "field", Name: spec.Name, Detail: "duplicate field name"}
		}
		spec.Required = spec.Default == nil
		if spec.Default != nil && cfg.Validation {
			if res := cfg.Evaluator.Evaluate(spec.Default, spec.Constraints); !res.OK {
				return nil, &DefinitionError{
					EntityType: b.entityType, Kind: "field", Name: spec.Name,
					Detail: fmt.Sprintf("default value violates constraints: %s", res.Detail),
				}
			}
		}
		d.fieldIndex[spec.Name] = len(d.fields)
		d.fields = append(d.fields, spec)
		d.fieldNames = append(d.fieldNames, spec.Name)
		if spec.Constraints != nil {
			d.constraints[spec.Name] = spec.Constraints
		}
	}

	for i := range b.actions {
		spec := b.actions[i]
		if spec.Name == "" {
			return nil, &DefinitionError{EntityType: b.entityType, Kind: "action", Detail: "action name must not be empty"}
		}
		if _, dup := d.actions[spec.Name]; dup {
			return nil, &DefinitionError{EntityType: b.entityType, Kind: "action", Name: spec.Name, Detail: "duplicate action name"}
		}
		if spec.Body == nil {
			return nil, &DefinitionError{EntityType: b.entityType, Kind: "action", Name: spec.Name, Detail: "action body must not be nil"}
		}
		switch spec.Profile {
		case ProfileQuery, ProfileCommand, ProfileTask, ProfileWorkflow, ProfileEndpoint:
		case "":
			spec.Profile = ProfileCommand
		default:
			return nil, &DefinitionError{
				EntityType: b.entityType, Kind: "action", Name: spec.Name,
				Detail: fmt.Sprintf("unknown profile %q", spec.Profile),
			}
		}
		d.actions[spec.Name] = &spec
		d.actionNames = append(d.actionNames, spec.Name)
	}

	return d, nil
}

// MustBuild is Build for static class declarations; it panics on a
// DefinitionError.
func (b *Builder) MustBuild(cfg *Config) *Descriptor {
	d, err := b.Build(cfg)
	if err != nil {
		panic(err)
	}
	return d
}

// Type returns the class's type label.
func (d *Descriptor) Type() string {
	return d.entityType
}

// Fields returns the ordered field table.
func (d *Descriptor) Fields() []FieldSpec {
	out := make([]FieldSpec, len(d.fields))
	copy(out, d.fields)
	return out
}

// FieldNames returns the field names in declaration order.
func (d *Descriptor) FieldNames() []string {
	out := make([]string, len(d.fieldNames))
	copy(out, d.fieldNames)
	return out
}

// Field looks up a field declaration by name.
func (d *Descriptor) Field(name string) (FieldSpec, bool) {
	i, ok := d.fieldIndex[name]
	if !ok {
		return FieldSpec{}, false
	}
	return d.fields[i], true
}

// ActionNames returns the action names in declaration order.
func (d *Descriptor) ActionNames() []string {
	out := make([]string, len(d.actionNames))
	copy(out, d.actionNames)
	return out
}

// accessorSet resolves the storage strategy on first use and caches the
// synthesized accessors for the class's lifetime.
func (d *Descriptor) accessorSet() *accessorSet {
	d.resolveOnce.Do(func() {
		d.accessors = synthesize(d.fields, d.resolveStrategy())
	})
	return d.accessors
}

// ResolvedStrategy reports the effective storage strategy, forcing auto
// resolution if it has not happened yet.
func (d *Descriptor) ResolvedStrategy() Strategy {
	return d.accessorSet().policy
}

// DescribeSchema renders the class shape as a plain mapping: the type label
// and the ordered field list with constraints, defaults, and requiredness.
// The runtime caches this per class.
func (d *Descriptor) DescribeSchema() map[string]interface{} {
	acc := d.accessorSet()
	fields := make([]interface{}, 0, len(d.fields))
	for i := range d.fields {
		spec := &d.fields[i]
		entry := map[string]interface{}{
			"name":     spec.Name,
			"required": spec.Required,
		}
		if spec.Default != nil {
			entry["default"] = spec.Default
		}
		if desc := spec.Constraints.Describe(); len(desc) > 0 {
			entry["constraints"] = desc
		}
		fields = append(fields, entry)
	}
	return map[string]interface{}{
		"type":     d.entityType,
		"strategy": string(acc.policy),
		"fields":   fields,
	}
}
