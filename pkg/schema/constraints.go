package schema

// ValueType identifies the primitive shape a constrained value must have.
type ValueType string

const (
	// TypeAny disables the type check.
	TypeAny ValueType = ""

	// TypeString requires a string value.
	TypeString ValueType = "string"

	// TypeInt requires an integer value (whole floats are accepted, since
	// JSON decoding produces float64 for all numbers).
	TypeInt ValueType = "int"

	// TypeFloat requires any numeric value.
	TypeFloat ValueType = "float"

	// TypeBool requires a boolean value.
	TypeBool ValueType = "bool"

	// TypeList requires a slice value.
	TypeList ValueType = "list"

	// TypeMap requires a string-keyed map value.
	TypeMap ValueType = "map"
)

// ConstraintSet describes the validation rules for a single value.
// A zero ConstraintSet accepts everything.
type ConstraintSet struct {
	// Type is the required primitive shape of the value.
	Type ValueType `json:"type,omitempty" yaml:"type,omitempty"`

	// MinLength is the minimum string length, when set.
	MinLength *int `json:"min_length,omitempty" yaml:"min_length,omitempty"`

	// MaxLength is the maximum string length, when set.
	MaxLength *int `json:"max_length,omitempty" yaml:"max_length,omitempty"`

	// Pattern is a regular expression the full value must match.
	Pattern string `json:"pattern,omitempty" yaml:"pattern,omitempty"`

	// Min is the minimum numeric value, when set.
	Min *float64 `json:"min,omitempty" yaml:"min,omitempty"`

	// Max is the maximum numeric value, when set.
	Max *float64 `json:"max,omitempty" yaml:"max,omitempty"`

	// Enum lists the permitted values. Empty means unrestricted.
	Enum []string `json:"enum,omitempty" yaml:"enum,omitempty"`

	// Description is free-form documentation carried into schema exports.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// IsZero reports whether the constraint set carries no rules at all.
func (cs *ConstraintSet) IsZero() bool {
	if cs == nil {
		return true
	}
	return cs.Type == TypeAny &&
		cs.MinLength == nil && cs.MaxLength == nil &&
		cs.Pattern == "" &&
		cs.Min == nil && cs.Max == nil &&
		len(cs.Enum) == 0
}

// Describe renders the constraint set as a plain mapping for schema exports
// and snapshots. Unset rules are omitted.
func (cs *ConstraintSet) Describe() map[string]interface{} {
	out := make(map[string]interface{})
	if cs == nil {
		return out
	}
	if cs.Type != TypeAny {
		out["type"] = string(cs.Type)
	}
	if cs.MinLength != nil {
		out["min_length"] = *cs.MinLength
	}
	if cs.MaxLength != nil {
		out["max_length"] = *cs.MaxLength
	}
	if cs.Pattern != "" {
		out["pattern"] = cs.Pattern
	}
	if cs.Min != nil {
		out["min"] = *cs.Min
	}
	if cs.Max != nil {
		out["max"] = *cs.Max
	}
	if len(cs.Enum) > 0 {
		enum := make([]interface{}, len(cs.Enum))
		for i, v := range cs.Enum {
			enum[i] = v
		}
		out["enum"] = enum
	}
	if cs.Description != "" {
		out["description"] = cs.Description
	}
	return out
}

// IntPtr is a convenience helper for building constraint sets in code.
func IntPtr(v int) *int { return &v }

// FloatPtr is a convenience helper for building constraint sets in code.
func FloatPtr(v float64) *float64 { return &v }
