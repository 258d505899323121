// Package policy decides whether a caller may dispatch an entity action.
//
// Two authorizers are provided: RoleAuthorizer implements the plain
// role-intersection rule declared on each action, and RegoAuthorizer delegates
// the decision to an OPA Rego policy for deployments that need richer rules
// (environment gates, per-profile restrictions, caller attributes).
package policy
