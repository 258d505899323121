package entity

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/entitykit/entitykit/pkg/cache"
	"github.com/entitykit/entitykit/pkg/telemetry"
)

// Runtime is the composition root for a population of entities: a bounded
// LRU cache of live entities keyed by id, a bounded cache of derived class
// schemas, and the telemetry wiring around dispatch and transitions. A
// Runtime is safe for concurrent use.
type Runtime struct {
	cfg      *Config
	log      zerolog.Logger
	entities *cache.LRU[string, *Entity]
	schemas  *cache.LRU[string, map[string]interface{}]
	tel      *telemetry.Telemetry
}

// RuntimeStats exposes both cache counters.
type RuntimeStats struct {
	Entities cache.Stats `json:"entities"`
	Schemas  cache.Stats `json:"schemas"`
}

// NewRuntime creates a runtime with the given configuration. A nil config
// means DefaultConfig().
func NewRuntime(cfg *Config) *Runtime {
	cfg = cfg.normalized()
	return &Runtime{
		cfg:      cfg,
		log:      cfg.Logger.With().Str("component", "runtime").Logger(),
		entities: cache.NewLRU[string, *Entity](cfg.EntityCacheSize),
		schemas:  cache.NewLRU[string, map[string]interface{}](cfg.SchemaCacheSize),
	}
}

// WithTelemetry attaches a telemetry handle; metrics, tracing, and lifecycle
// events flow through it from then on.
func (r *Runtime) WithTelemetry(tel *telemetry.Telemetry) *Runtime {
	r.tel = tel
	if tel != nil {
		r.log = tel.Logger.Component("runtime").Zerolog()
	}
	return r
}

// Config returns the runtime's configuration.
func (r *Runtime) Config() *Config {
	return r.cfg
}

// Admit places an entity into the runtime cache, making it addressable by
// id. The least-recently-used entity is evicted when the bound is exceeded;
// eviction just drops the reference.
func (r *Runtime) Admit(e *Entity) {
	r.entities.Put(e.ID(), e)
	if r.tel != nil {
		r.tel.Metrics.SetLiveEntities(float64(r.entities.Len()))
		_ = r.tel.Events.PublishEntityCreated(e.ID(), e.Type())
	}
}

// Lookup fetches an entity by id, refreshing its recency.
func (r *Runtime) Lookup(id string) (*Entity, bool) {
	e, ok := r.entities.Get(id)
	if r.tel != nil {
		r.tel.Metrics.RecordCacheLookup("entity", ok)
	}
	return e, ok
}

// Evict drops an entity from the cache. It reports whether it was present.
func (r *Runtime) Evict(id string) bool {
	ok := r.entities.Remove(id)
	if ok && r.tel != nil {
		r.tel.Metrics.SetLiveEntities(float64(r.entities.Len()))
	}
	return ok
}

// SchemaFor returns the derived schema snapshot for a class, served from the
// schema cache. The class shape cannot change after build, so entries stay
// valid until ClearCaches.
func (r *Runtime) SchemaFor(desc *Descriptor) map[string]interface{} {
	if snap, ok := r.schemas.Get(desc.Type()); ok {
		if r.tel != nil {
			r.tel.Metrics.RecordCacheLookup("schema", true)
		}
		return snap
	}
	if r.tel != nil {
		r.tel.Metrics.RecordCacheLookup("schema", false)
	}

	snap := desc.DescribeSchema()
	r.schemas.Put(desc.Type(), snap)
	return snap
}

// ClearCaches empties both caches. Entity references held elsewhere stay
// live; only the runtime's index is dropped.
func (r *Runtime) ClearCaches() {
	r.entities.Clear()
	r.schemas.Clear()
	r.log.Debug().Msg("Caches cleared")
}

// Stats returns hit/miss counters for both caches.
func (r *Runtime) Stats() RuntimeStats {
	return RuntimeStats{
		Entities: r.entities.Stats(),
		Schemas:  r.schemas.Stats(),
	}
}

// Execute dispatches an action on a cached entity by id, wrapping the
// dispatch in a trace span and recording metrics and lifecycle events.
func (r *Runtime) Execute(ctx context.Context, entityID, action string, caller Caller, params map[string]interface{}) (interface{}, error) {
	e, ok := r.Lookup(entityID)
	if !ok {
		return nil, fmt.Errorf("entity %s not found in runtime cache", entityID)
	}
	return r.ExecuteOn(ctx, e, action, caller, params)
}

// ExecuteOn dispatches an action on an entity held by the caller, with the
// same instrumentation as Execute.
func (r *Runtime) ExecuteOn(ctx context.Context, e *Entity, action string, caller Caller, params map[string]interface{}) (interface{}, error) {
	profile := ""
	if spec, ok := e.desc.actions[action]; ok {
		profile = string(spec.Profile)
	}

	if r.tel != nil {
		spanCtx, traceSpan := r.tel.Tracer.StartDispatchSpan(ctx, e.ID(), e.Type(), action, profile)
		ctx = spanCtx
		defer traceSpan.End()

		start := time.Now()
		result, err := e.ExecuteAction(ctx, action, caller, params)
		duration := time.Since(start)

		if err != nil {
			telemetry.RecordError(traceSpan, err)
			r.tel.Metrics.RecordDispatch(e.Type(), profile, "error", duration)
			_ = r.tel.Events.PublishActionFailed(e.ID(), e.Type(), action, err.Error())
			return nil, err
		}
		telemetry.RecordSuccess(traceSpan)
		r.tel.Metrics.RecordDispatch(e.Type(), profile, "ok", duration)
		_ = r.tel.Events.PublishActionDispatched(e.ID(), e.Type(), action, profile, duration)
		return result, nil
	}

	return e.ExecuteAction(ctx, action, caller, params)
}

// Transition moves a cached entity to the target state, recording the
// transition in metrics and events.
func (r *Runtime) Transition(ctx context.Context, entityID string, target State) error {
	e, ok := r.Lookup(entityID)
	if !ok {
		return fmt.Errorf("entity %s not found in runtime cache", entityID)
	}

	from := e.State()
	if r.tel != nil {
		_, span := r.tel.Tracer.StartTransitionSpan(ctx, e.ID(), e.Type(), string(from), string(target))
		defer span.End()

		if err := e.TransitionTo(target); err != nil {
			telemetry.RecordError(span, err)
			return err
		}
		telemetry.RecordSuccess(span)
		r.tel.Metrics.RecordTransition(e.Type(), string(from), string(target))
		_ = r.tel.Events.PublishStateTransitioned(e.ID(), e.Type(), string(from), string(target), e.Version())
		return nil
	}

	return e.TransitionTo(target)
}
