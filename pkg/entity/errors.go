package entity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/entitykit/entitykit/pkg/schema"
)

// ValidationError reports a field or action-parameter value that failed its
// constraint set. It is recoverable: the caller decides whether to retry with
// corrected input.
type ValidationError struct {
	// Field is the field name, for field-level failures.
	Field string `json:"field,omitempty"`

	// Action and Param identify a parameter failure during dispatch.
	Action string `json:"action,omitempty"`
	Param  string `json:"param,omitempty"`

	// Value is the rejected value.
	Value interface{} `json:"value,omitempty"`

	// Constraints is the constraint set the value was checked against.
	Constraints *schema.ConstraintSet `json:"constraints,omitempty"`

	// Required marks a missing-required-field violation.
	Required bool `json:"required,omitempty"`

	// Detail describes the failed rule.
	Detail string `json:"detail,omitempty"`

	// Err is the underlying error, if the evaluator itself failed.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	switch {
	case e.Required:
		return fmt.Sprintf("validation failed: field %q is required", e.Field)
	case e.Action != "":
		return fmt.Sprintf("validation failed: action %q parameter %q rejected value %v: %s",
			e.Action, e.Param, e.Value, e.Detail)
	default:
		return fmt.Sprintf("validation failed: field %q rejected value %v: %s",
			e.Field, e.Value, e.Detail)
	}
}

// Unwrap returns the underlying error for error chain inspection.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// StateError reports an illegal lifecycle transition, including transitions
// to VALIDATED rejected by the validation gate.
type StateError struct {
	// Current is the entity's state at the time of the attempt.
	Current State `json:"current"`

	// Target is the state the transition aimed for.
	Target State `json:"target"`

	// Reason explains a gate failure; empty for plain illegal transitions.
	Reason string `json:"reason,omitempty"`

	// Err is the gate failure, when one caused the rejection.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *StateError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot transition %s -> %s: %s", e.Current, e.Target, e.Reason)
	}
	return fmt.Sprintf("transition %s -> %s is not allowed", e.Current, e.Target)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *StateError) Unwrap() error {
	return e.Err
}

// ActionNotFoundError reports dispatch to a name absent from the class's
// action table. This is a programmer error and should not be retried.
type ActionNotFoundError struct {
	// Action is the name that was dispatched.
	Action string `json:"action"`

	// EntityType is the class the dispatch targeted.
	EntityType string `json:"entity_type"`

	// Available lists the registered action names.
	Available []string `json:"available,omitempty"`
}

// Error implements the error interface.
func (e *ActionNotFoundError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("action %q not found on %s", e.Action, e.EntityType)
	}
	return fmt.Sprintf("action %q not found on %s (available: %s)",
		e.Action, e.EntityType, strings.Join(e.Available, ", "))
}

// AuthorizationError reports a role check failure during dispatch. It is
// recoverable only by re-authenticating or escalating.
type AuthorizationError struct {
	// Action is the action the caller attempted.
	Action string `json:"action"`

	// CallerRoles are the roles the caller held.
	CallerRoles []string `json:"caller_roles"`

	// AllowedRoles is the role set declared on the action.
	AllowedRoles []string `json:"allowed_roles"`

	// Reason is the denial reason from the authorizer, when given.
	Reason string `json:"reason,omitempty"`

	// Err is the authorizer's own failure, when the check itself errored.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *AuthorizationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authorization check for action %q failed: %v", e.Action, e.Err)
	}
	return fmt.Sprintf("caller roles %v are not authorized for action %q (allowed: %v)",
		e.CallerRoles, e.Action, e.AllowedRoles)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *AuthorizationError) Unwrap() error {
	return e.Err
}

// DefinitionError reports a duplicate or malformed field/action declaration.
// It is raised at class build time only, never at instance runtime.
type DefinitionError struct {
	// EntityType is the class being built.
	EntityType string `json:"entity_type"`

	// Kind is "field" or "action".
	Kind string `json:"kind"`

	// Name is the offending declaration, when it has a name.
	Name string `json:"name,omitempty"`

	// Detail describes what is wrong with the declaration.
	Detail string `json:"detail"`
}

// Error implements the error interface.
func (e *DefinitionError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("invalid %s %q in class %s: %s", e.Kind, e.Name, e.EntityType, e.Detail)
	}
	return fmt.Sprintf("invalid class %s: %s", e.EntityType, e.Detail)
}

// IsValidation returns true if the error is a ValidationError.
func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

// IsState returns true if the error is a StateError.
func IsState(err error) bool {
	var e *StateError
	return errors.As(err, &e)
}

// IsActionNotFound returns true if the error is an ActionNotFoundError.
func IsActionNotFound(err error) bool {
	var e *ActionNotFoundError
	return errors.As(err, &e)
}

// IsAuthorization returns true if the error is an AuthorizationError.
func IsAuthorization(err error) bool {
	var e *AuthorizationError
	return errors.As(err, &e)
}

// IsDefinition returns true if the error is a DefinitionError.
func IsDefinition(err error) bool {
	var e *DefinitionError
	return errors.As(err, &e)
}
