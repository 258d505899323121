package entity

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/entitykit/entitykit/pkg/policy"
)

// Caller identifies who is dispatching an action.
type Caller struct {
	// ID identifies the caller for command attribution.
	ID string `json:"id,omitempty"`

	// Roles are the roles the caller holds.
	Roles []string `json:"roles"`
}

// ActionExport is the introspection record for one action: everything except
// the body. Produced by ExportActions, never triggers dispatch.
type ActionExport struct {
	Name             string                            `json:"name"`
	Roles            []string                          `json:"roles"`
	Profile          Profile                           `json:"profile"`
	Description      string                            `json:"description,omitempty"`
	InputConstraints map[string]map[string]interface{} `json:"input_constraints,omitempty"`
	RequiredParams   []string                          `json:"required_params,omitempty"`
}

// ExecuteAction dispatches an action by name: lookup, authorization,
// parameter validation, then invocation. The body's result is returned
// unchanged.
//
// Profile contracts honored by the dispatcher:
//   - query results are cached per entity and invalidated on any mutation;
//   - commands bump the entity version and record caller attribution;
//   - tasks are handed to the configured task runner when one is set (the
//     result is then nil);
//   - workflows are not rolled back on failure — steps already applied to the
//     entity stay applied, and bodies own their compensating logic.
//
// The entity lock is never held while the body runs, so bodies may call back
// into the entity's own operations.
func (e *Entity) ExecuteAction(ctx context.Context, name string, caller Caller, params map[string]interface{}) (interface{}, error) {
	cfg := e.desc.cfg

	spec, ok := e.desc.actions[name]
	if !ok {
		return nil, &ActionNotFoundError{
			Action:     name,
			EntityType: e.identity.Type,
			Available:  e.desc.ActionNames(),
		}
	}

	dec, err := cfg.Authorizer.Authorize(ctx, policy.Request{
		EntityID:     e.identity.ID,
		EntityType:   e.identity.Type,
		Action:       name,
		Profile:      string(spec.Profile),
		CallerID:     caller.ID,
		CallerRoles:  caller.Roles,
		AllowedRoles: spec.Roles,
	})
	if err != nil {
		return nil, &AuthorizationError{Action: name, CallerRoles: caller.Roles, AllowedRoles: spec.Roles, Err: err}
	}
	if !dec.Allowed {
		return nil, &AuthorizationError{
			Action:       name,
			CallerRoles:  caller.Roles,
			AllowedRoles: spec.Roles,
			Reason:       dec.Reason,
		}
	}

	if err := e.validateParams(spec, params); err != nil {
		return nil, err
	}

	e.lock()
	e.stats.ActionCalls++
	if spec.Profile == ProfileQuery {
		if cached, hit := e.queryCache[queryKey(name, params)]; hit {
			e.unlock()
			return cached, nil
		}
	}
	e.unlock()

	if spec.Profile == ProfileTask && cfg.TaskRunner != nil {
		body := spec.Body
		cfg.TaskRunner(func() {
			if _, err := body(e, params); err != nil {
				cfg.Logger.Error().Err(err).
					Str("entity_id", e.identity.ID).
					Str("action", name).
					Msg("Deferred task failed")
			}
		})
		return nil, nil
	}

	start := time.Now()
	result, err := spec.Body(e, params)
	if err != nil {
		return nil, err
	}

	switch spec.Profile {
	case ProfileQuery:
		e.lock()
		if e.queryCache == nil {
			e.queryCache = make(map[string]interface{})
		}
		e.queryCache[queryKey(name, params)] = result
		e.unlock()
	case ProfileCommand:
		e.lock()
		e.mutated()
		e.lastCommand = &Attribution{
			Action:      name,
			CallerID:    caller.ID,
			CallerRoles: caller.Roles,
			At:          time.Now().UTC(),
		}
		e.unlock()
	}

	cfg.Logger.Debug().
		Str("entity_id", e.identity.ID).
		Str("action", name).
		Str("profile", string(spec.Profile)).
		Dur("duration", time.Since(start)).
		Msg("Action dispatched")

	return result, nil
}

// validateParams enforces required parameters and checks each supplied
// parameter against its declared constraint set, failing on the first
// violation.
func (e *Entity) validateParams(spec *ActionSpec, params map[string]interface{}) error {
	for _, required := range spec.RequiredParams {
		if _, ok := params[required]; !ok {
			return &ValidationError{
				Action:   spec.Name,
				Param:    required,
				Required: true,
				Detail:   "parameter is required",
			}
		}
	}

	if !e.desc.cfg.Validation || len(spec.InputConstraints) == 0 {
		return nil
	}
	for _, name := range sortedKeys(params) {
		cs, constrained := spec.InputConstraints[name]
		if !constrained {
			continue
		}
		if res := e.desc.cfg.Evaluator.Evaluate(params[name], cs); !res.OK {
			return &ValidationError{
				Action:      spec.Name,
				Param:       name,
				Value:       params[name],
				Constraints: cs,
				Detail:      res.Detail,
			}
		}
	}
	return nil
}

// ListActions returns the action names in declaration order.
func (e *Entity) ListActions() []string {
	return e.desc.ActionNames()
}

// ExportActions renders the class's action table for introspection. No body
// is invoked.
func (e *Entity) ExportActions() map[string]ActionExport {
	return e.desc.ExportActions()
}

// ExportActions renders the descriptor's action table for introspection.
func (d *Descriptor) ExportActions() map[string]ActionExport {
	out := make(map[string]ActionExport, len(d.actions))
	for name, spec := range d.actions {
		export := ActionExport{
			Name:        name,
			Roles:       append([]string(nil), spec.Roles...),
			Profile:     spec.Profile,
			Description: spec.Description,
		}
		if len(spec.InputConstraints) > 0 {
			export.InputConstraints = make(map[string]map[string]interface{}, len(spec.InputConstraints))
			for param, cs := range spec.InputConstraints {
				export.InputConstraints[param] = cs.Describe()
			}
		}
		if len(spec.RequiredParams) > 0 {
			export.RequiredParams = append([]string(nil), spec.RequiredParams...)
		}
		out[name] = export
	}
	return out
}

// queryKey fingerprints a query-profile invocation for the per-entity result
// cache.
func queryKey(action string, params map[string]interface{}) string {
	if len(params) == 0 {
		return action
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(action)
	for _, k := range keys {
		fmt.Fprintf(&b, "|%s=%v", k, params[k])
	}
	return b.String()
}
