package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/escrow-backend/pkg/config"
	"github.com/angelmondragon/escrow-backend/pkg/db/models"
	"github.com/angelmondragon/escrow-backend/pkg/enums"
	"github.com/angelmondragon/escrow-backend/pkg/outbox"
	"github.com/angelmondragon/escrow-backend/pkg/outbox/payloads"
)

// ErrUnsupportedEvent is wrapped when a row names an event type with no route.
var ErrUnsupportedEvent = errors.New("unsupported event type")

// Route says where an event type is published and how its data decodes.
type Route struct {
	EventType  enums.OutboxEventType
	Topic      string
	NewPayload func() any
}

// ResolvedEvent is a validated outbox row ready for publishing.
type ResolvedEvent struct {
	Route    Route
	Envelope outbox.PayloadEnvelope
	Payload  any
}

// Topic returns the destination topic.
func (r *ResolvedEvent) Topic() string {
	return r.Route.Topic
}

// EventRegistry maps every emitted event type to its route.
type EventRegistry struct {
	routes map[enums.OutboxEventType]Route
}

// NonRetryableError marks rows that will fail the same way on every attempt.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func nonRetryable(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf(format, args...))
}

// NewEventRegistry routes notification requests to the delivery topic and
// escrow lifecycle events to the shared domain topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.NotificationTopic == "" {
		return nil, errors.New("notification topic is required")
	}
	if cfg.EscrowEventsTopic == "" {
		return nil, errors.New("escrow events topic is required")
	}

	reg := &EventRegistry{routes: make(map[enums.OutboxEventType]Route)}
	for _, route := range []Route{
		{enums.EventNotificationRequested, cfg.NotificationTopic, newPayload[payloads.NotificationRequestedEvent]},
		{enums.EventOrderSettled, cfg.EscrowEventsTopic, newPayload[payloads.OrderSettledEvent]},
		{enums.EventDisputeResolved, cfg.EscrowEventsTopic, newPayload[payloads.DisputeResolvedEvent]},
		{enums.EventPayoutSettled, cfg.EscrowEventsTopic, newPayload[payloads.PayoutSettledEvent]},
	} {
		if err := reg.add(route); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func newPayload[T any]() any {
	return new(T)
}

func (r *EventRegistry) add(route Route) error {
	if !route.EventType.IsValid() {
		return fmt.Errorf("cannot route unknown event type %q", route.EventType)
	}
	if _, dup := r.routes[route.EventType]; dup {
		return fmt.Errorf("event type %s routed twice", route.EventType)
	}
	r.routes[route.EventType] = route
	return nil
}

// Topics lists the distinct topics the registry publishes to.
func (r *EventRegistry) Topics() []string {
	seen := make(map[string]struct{}, len(r.routes))
	var topics []string
	for _, route := range r.routes {
		if _, ok := seen[route.Topic]; ok {
			continue
		}
		seen[route.Topic] = struct{}{}
		topics = append(topics, route.Topic)
	}
	return topics
}

// Resolve checks the row against its route and decodes the typed payload.
// Every error it returns is non-retryable.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	route, ok := r.routes[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("%w: %s", ErrUnsupportedEvent, event.EventType))
	}
	if want := event.EventType.Aggregate(); want != event.AggregateType {
		return nil, nonRetryable("aggregate mismatch: expected %s got %s", want, event.AggregateType)
	}
	if event.AggregateID == uuid.Nil {
		return nil, nonRetryable("missing aggregate_id")
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, nonRetryable("decode envelope: %w", err)
	}
	if envelope.EventID == "" {
		return nil, nonRetryable("envelope missing event_id")
	}
	if envelope.AggregateID != uuid.Nil && envelope.AggregateID != event.AggregateID {
		return nil, nonRetryable("envelope aggregate %s does not match row %s", envelope.AggregateID, event.AggregateID)
	}

	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nonRetryable("payload missing for %s", event.EventType)
	}
	payload := route.NewPayload()
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, nonRetryable("decode %s payload: %w", event.EventType, err)
	}

	return &ResolvedEvent{Route: route, Envelope: envelope, Payload: payload}, nil
}
