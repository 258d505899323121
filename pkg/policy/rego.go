package policy

import (
	"context"
	"fmt"
	"sync"

	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"
)

// RegoAuthorizer evaluates dispatch requests against an OPA Rego policy. The
// policy module is compiled once and the prepared query is reused for every
// check; SetPolicy swaps the module at runtime (definition watchers use this
// for hot reload).
type RegoAuthorizer struct {
	mu     sync.RWMutex
	query  rego.PreparedEvalQuery
	source string
	logger zerolog.Logger
}

// authzQuery selects the decision document produced by the policy module.
const authzQuery = "data.entitykit.authz"

// NewRegoAuthorizer compiles the given Rego module and prepares the decision
// query. Pass BuiltinAuthzRego for the stock role-intersection policy.
func NewRegoAuthorizer(ctx context.Context, source string, logger zerolog.Logger) (*RegoAuthorizer, error) {
	a := &RegoAuthorizer{
		logger: logger.With().Str("component", "rego-authorizer").Logger(),
	}
	if err := a.SetPolicy(ctx, source); err != nil {
		return nil, err
	}
	return a, nil
}

// SetPolicy replaces the policy module. In-flight checks finish against the
// previous module.
func (a *RegoAuthorizer) SetPolicy(ctx context.Context, source string) error {
	query, err := rego.New(
		rego.Module("authz.rego", source),
		rego.Query(authzQuery),
	).PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to compile authorization policy: %w", err)
	}

	a.mu.Lock()
	a.query = query
	a.source = source
	a.mu.Unlock()

	a.logger.Debug().Msg("Authorization policy compiled")
	return nil
}

// Authorize evaluates the policy's decision document for the request. The
// document must expose an `allow` boolean; an optional `reason` string is
// carried into the decision on denial.
func (a *RegoAuthorizer) Authorize(ctx context.Context, req Request) (Decision, error) {
	a.mu.RLock()
	query := a.query
	a.mu.RUnlock()

	results, err := query.Eval(ctx, rego.EvalInput(req))
	if err != nil {
		return Decision{}, fmt.Errorf("policy evaluation error: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{}, fmt.Errorf("policy produced no decision for query %s", authzQuery)
	}

	doc, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return Decision{}, fmt.Errorf("policy decision is not a document: %T", results[0].Expressions[0].Value)
	}

	decision := Decision{Policy: "rego"}
	if allow, ok := doc["allow"].(bool); ok {
		decision.Allowed = allow
	}
	if reason, ok := doc["reason"].(string); ok && !decision.Allowed {
		decision.Reason = reason
	}

	a.logger.Debug().
		Str("action", req.Action).
		Str("entity_type", req.EntityType).
		Bool("allowed", decision.Allowed).
		Msg("Authorization evaluated")

	return decision, nil
}
