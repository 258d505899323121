package policy

import (
	"context"
)

// Wildcard in an action's allowed-role set grants access to any caller.
const Wildcard = "*"

// Request describes a single authorization check for an action dispatch.
type Request struct {
	// EntityID is the id of the entity the action targets.
	EntityID string `json:"entity_id"`

	// EntityType is the class label of the target entity.
	EntityType string `json:"entity_type"`

	// Action is the action name being dispatched.
	Action string `json:"action"`

	// Profile is the action's execution profile (query, command, ...).
	Profile string `json:"profile"`

	// CallerID identifies the caller, when known.
	CallerID string `json:"caller_id,omitempty"`

	// CallerRoles are the roles the caller holds.
	CallerRoles []string `json:"caller_roles"`

	// AllowedRoles is the role set declared on the action.
	AllowedRoles []string `json:"allowed_roles"`
}

// Decision is the outcome of an authorization check.
type Decision struct {
	// Allowed reports whether the dispatch may proceed.
	Allowed bool `json:"allowed"`

	// Reason explains a denial in human-readable form.
	Reason string `json:"reason,omitempty"`

	// Policy names the rule that produced the decision.
	Policy string `json:"policy,omitempty"`
}

// Authorizer decides whether an action dispatch is permitted.
type Authorizer interface {
	Authorize(ctx context.Context, req Request) (Decision, error)
}

// RoleAuthorizer implements the role-intersection rule: a dispatch is allowed
// when the action's allowed-role set contains the wildcard or shares at least
// one role with the caller. An empty allowed-role set denies everyone.
type RoleAuthorizer struct{}

// NewRoleAuthorizer creates the default role-intersection authorizer.
func NewRoleAuthorizer() *RoleAuthorizer {
	return &RoleAuthorizer{}
}

// Authorize applies the role-intersection rule. It never returns an error.
func (a *RoleAuthorizer) Authorize(_ context.Context, req Request) (Decision, error) {
	for _, allowed := range req.AllowedRoles {
		if allowed == Wildcard {
			return Decision{Allowed: true, Policy: "roles"}, nil
		}
		for _, held := range req.CallerRoles {
			if held == allowed {
				return Decision{Allowed: true, Policy: "roles"}, nil
			}
		}
	}
	return Decision{
		Allowed: false,
		Reason:  "caller roles do not intersect the action's allowed roles",
		Policy:  "roles",
	}, nil
}
