package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/angelmondragon/escrow-backend/pkg/enums"
	"github.com/angelmondragon/escrow-backend/pkg/outbox"
)

var (
	// ErrNoDecoder is wrapped when nothing is registered for an event version.
	ErrNoDecoder = errors.New("no decoder registered")
	// ErrMalformedMessage is wrapped when a delivery cannot be parsed. Such
	// messages never become valid on redelivery.
	ErrMalformedMessage = errors.New("malformed message")
)

// Decoder turns an envelope's data block into a typed payload.
type Decoder func(data json.RawMessage) (any, error)

type decoderKey struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry maps (event type, envelope version) to payload decoders on
// the consuming side.
type DecoderRegistry struct {
	mu       sync.RWMutex
	decoders map[decoderKey]Decoder
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{decoders: map[decoderKey]Decoder{}}
}

// Register adds decoder for eventType at version.
func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decoder Decoder) error {
	switch {
	case !eventType.IsValid():
		return fmt.Errorf("register decoder: unknown event type %q", eventType)
	case version < 1:
		return fmt.Errorf("register decoder: %s version %d must be positive", eventType, version)
	case decoder == nil:
		return fmt.Errorf("register decoder: %s@v%d decoder is nil", eventType, version)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	key := decoderKey{eventType: eventType, version: version}
	if _, exists := r.decoders[key]; exists {
		return fmt.Errorf("register decoder: %s@v%d already registered", eventType, version)
	}
	r.decoders[key] = decoder
	return nil
}

// MustRegister is Register for wiring done at construction time.
func (r *DecoderRegistry) MustRegister(eventType enums.OutboxEventType, version int, decoder Decoder) *DecoderRegistry {
	if err := r.Register(eventType, version, decoder); err != nil {
		panic(err)
	}
	return r
}

func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, data json.RawMessage) (any, error) {
	r.mu.RLock()
	decoder, ok := r.decoders[decoderKey{eventType: eventType, version: version}]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w for %s@v%d", ErrNoDecoder, eventType, version)
	}
	payload, err := decoder(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s@v%d data: %v", ErrMalformedMessage, eventType, version, err)
	}
	return payload, nil
}

// Decoded is a consumed envelope with its typed payload.
type Decoded struct {
	Envelope outbox.PayloadEnvelope
	EventID  uuid.UUID
	Payload  any
}

// DecodeMessage parses a published envelope and decodes its data block.
func (r *DecoderRegistry) DecodeMessage(body []byte) (Decoded, error) {
	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Decoded{}, fmt.Errorf("%w: envelope: %v", ErrMalformedMessage, err)
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		return Decoded{}, fmt.Errorf("%w: event id %q", ErrMalformedMessage, envelope.EventID)
	}
	payload, err := r.Decode(envelope.EventType, envelope.Version, envelope.Data)
	if err != nil {
		return Decoded{}, err
	}
	return Decoded{Envelope: envelope, EventID: eventID, Payload: payload}, nil
}

// JSONDecoder unmarshals into a fresh *T. Unknown fields are tolerated so
// producers can add fields without a version bump.
func JSONDecoder[T any]() Decoder {
	return func(data json.RawMessage) (any, error) {
		if trimmed := bytes.TrimSpace(data); len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
			return nil, errors.New("empty data")
		}
		value := new(T)
		if err := json.Unmarshal(data, value); err != nil {
			return nil, err
		}
		return value, nil
	}
}
