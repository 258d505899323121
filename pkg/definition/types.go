package definition

import (
	"github.com/entitykit/entitykit/pkg/schema"
)

// ClassDefinition is the on-disk declaration of one entity class.
type ClassDefinition struct {
	// Class is the type label.
	Class string `json:"class" yaml:"class" validate:"required"`

	// Strategy optionally overrides the configured storage strategy for this
	// class: direct, delegated, mixed, or auto.
	Strategy string `json:"strategy,omitempty" yaml:"strategy,omitempty" validate:"omitempty,oneof=direct delegated mixed auto"`

	// Fields declares the class's field table in order.
	Fields []FieldDefinition `json:"fields" yaml:"fields" validate:"required,min=1,dive"`

	// Actions declares the class's action table.
	Actions []ActionDefinition `json:"actions,omitempty" yaml:"actions,omitempty" validate:"dive"`
}

// FieldDefinition declares one field: its constraint rules and optional
// default. A field with no default is required.
type FieldDefinition struct {
	Name        string        `json:"name" yaml:"name" validate:"required"`
	Type        string        `json:"type,omitempty" yaml:"type,omitempty" validate:"omitempty,oneof=any string int float bool list map"`
	MinLength   *int          `json:"min_length,omitempty" yaml:"min_length,omitempty" validate:"omitempty,min=0"`
	MaxLength   *int          `json:"max_length,omitempty" yaml:"max_length,omitempty" validate:"omitempty,min=0"`
	Pattern     string        `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Min         *float64      `json:"min,omitempty" yaml:"min,omitempty"`
	Max         *float64      `json:"max,omitempty" yaml:"max,omitempty"`
	Enum        []string      `json:"enum,omitempty" yaml:"enum,omitempty"`
	Default     interface{}   `json:"default,omitempty" yaml:"default,omitempty"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
}

// ActionDefinition declares one action with a Starlark script body.
type ActionDefinition struct {
	Name        string `json:"name" yaml:"name" validate:"required"`
	Profile     string `json:"profile,omitempty" yaml:"profile,omitempty" validate:"omitempty,oneof=query command task workflow endpoint"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Roles is the allowed-role set; "*" admits any caller.
	Roles []string `json:"roles" yaml:"roles" validate:"required,min=1"`

	// Params declares constraint sets for named parameters.
	Params map[string]FieldDefinition `json:"params,omitempty" yaml:"params,omitempty"`

	// RequiredParams lists parameters the caller must supply.
	RequiredParams []string `json:"required_params,omitempty" yaml:"required_params,omitempty"`

	// Script is the Starlark body. It sees the globals `entity` (the data
	// mapping) and `params`, returns through the `result` global, and mutates
	// fields through the `updates` global.
	Script string `json:"script" yaml:"script" validate:"required"`
}

// constraints renders the declaration into an evaluator constraint set, or
// nil when no rule is declared.
func (f *FieldDefinition) constraints() *schema.ConstraintSet {
	t := f.Type
	if t == "any" {
		t = ""
	}
	cs := &schema.ConstraintSet{
		Type:        schema.ValueType(t),
		MinLength:   f.MinLength,
		MaxLength:   f.MaxLength,
		Pattern:     f.Pattern,
		Min:         f.Min,
		Max:         f.Max,
		Enum:        f.Enum,
		Description: f.Description,
	}
	if cs.IsZero() {
		return nil
	}
	return cs
}
