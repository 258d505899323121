package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one entity lifecycle event.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// EntityID is the entity the event concerns.
	EntityID string `json:"entity_id,omitempty"`

	// EntityType is the class of that entity.
	EntityType string `json:"entity_type,omitempty"`

	// Action is the dispatched action, for dispatch events.
	Action string `json:"action,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// Event type constants.
const (
	EventEntityCreated     = "entity.created"
	EventFieldMutated      = "entity.field_mutated"
	EventStateTransitioned = "entity.state_transitioned"
	EventActionDispatched  = "entity.action_dispatched"
	EventActionFailed      = "entity.action_failed"
	EventEntityEvicted     = "cache.entity_evicted"
)

// Event severity levels.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be delivered.
type EventFilter func(event Event) bool

// EventPublisher fans entity lifecycle events out to subscribers, either
// synchronously or through a buffered channel drained by a worker.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given
// configuration. A disabled config yields a no-op publisher.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	ep := &EventPublisher{
		config: cfg,
		buffer: make(chan Event, cfg.BufferSize),
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.drain()
	}
	return ep, nil
}

// Publish delivers an event to all subscribers. With async delivery a full
// buffer drops the event and reports an error rather than blocking the
// entity operation that produced it.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Level == "" {
		event.Level = EventLevelInfo
	}

	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	ep.deliver(event)
	return nil
}

// PublishEntityCreated publishes an entity creation event.
func (ep *EventPublisher) PublishEntityCreated(entityID, entityType string) error {
	return ep.Publish(Event{
		Type:       EventEntityCreated,
		EntityID:   entityID,
		EntityType: entityType,
		Message:    fmt.Sprintf("Entity %s of class %s created", entityID, entityType),
	})
}

// PublishStateTransitioned publishes a lifecycle transition event.
func (ep *EventPublisher) PublishStateTransitioned(entityID, entityType, from, to string, version int) error {
	return ep.Publish(Event{
		Type:       EventStateTransitioned,
		EntityID:   entityID,
		EntityType: entityType,
		Message:    fmt.Sprintf("Entity %s transitioned %s -> %s", entityID, from, to),
		Data: map[string]interface{}{
			"from":    from,
			"to":      to,
			"version": version,
		},
	})
}

// PublishActionDispatched publishes a successful dispatch event.
func (ep *EventPublisher) PublishActionDispatched(entityID, entityType, action, profile string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:       EventActionDispatched,
		EntityID:   entityID,
		EntityType: entityType,
		Action:     action,
		Message:    fmt.Sprintf("Action %s dispatched on entity %s", action, entityID),
		Data: map[string]interface{}{
			"profile":  profile,
			"duration": duration.Seconds(),
		},
	})
}

// PublishActionFailed publishes a failed dispatch event.
func (ep *EventPublisher) PublishActionFailed(entityID, entityType, action, reason string) error {
	return ep.Publish(Event{
		Type:       EventActionFailed,
		EntityID:   entityID,
		EntityType: entityType,
		Action:     action,
		Message:    fmt.Sprintf("Action %s failed on entity %s: %s", action, entityID, reason),
		Level:      EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// Subscribe adds a new event subscriber with an optional filter.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// drain delivers buffered events until shutdown.
func (ep *EventPublisher) drain() {
	defer ep.wg.Done()

	for {
		select {
		case event := <-ep.buffer:
			ep.deliver(event)
		case <-ep.ctx.Done():
			for {
				select {
				case event := <-ep.buffer:
					ep.deliver(event)
				default:
					return
				}
			}
		}
	}
}

// deliver fans one event out to matching subscribers.
func (ep *EventPublisher) deliver(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown stops delivery after flushing buffered events.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
		return nil
	}

	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}
	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByEntity creates a filter that only allows events for one entity.
func FilterByEntity(entityID string) EventFilter {
	return func(event Event) bool {
		return event.EntityID == entityID
	}
}
