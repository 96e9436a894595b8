package registry

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/escrow-backend/pkg/enums"
	"github.com/angelmondragon/escrow-backend/pkg/outbox/payloads"
)

func notificationDecoders() *DecoderRegistry {
	return NewDecoderRegistry().
		MustRegister(enums.EventNotificationRequested, 1, JSONDecoder[payloads.NotificationRequestedEvent]())
}

func TestDecodeReturnsTypedPayload(t *testing.T) {
	output, err := notificationDecoders().Decode(enums.EventNotificationRequested, 1,
		json.RawMessage(`{"type":"payout_failed","title":"Payout failed","future_field":true}`))
	require.NoError(t, err)

	event, ok := output.(*payloads.NotificationRequestedEvent)
	require.True(t, ok, "unexpected payload type %T", output)
	assert.Equal(t, enums.NotificationTypePayoutFailed, event.Type)
	assert.Equal(t, "Payout failed", event.Title)
}

func TestDecodeSeparatesMissingDecoderFromBadData(t *testing.T) {
	decoders := notificationDecoders()

	_, err := decoders.Decode(enums.EventNotificationRequested, 2, json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrNoDecoder)

	_, err = decoders.Decode(enums.EventOrderSettled, 1, json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrNoDecoder)

	for _, data := range []string{`null`, ` `, `{"type":`} {
		_, err = decoders.Decode(enums.EventNotificationRequested, 1, json.RawMessage(data))
		assert.ErrorIs(t, err, ErrMalformedMessage, "data %q", data)
	}
}

func TestRegisterRejectsBadRegistrations(t *testing.T) {
	decoders := notificationDecoders()
	noop := func(json.RawMessage) (any, error) { return nil, nil }

	assert.Error(t, decoders.Register(enums.EventNotificationRequested, 1, noop), "duplicate")
	assert.Error(t, decoders.Register("wallet_exploded", 1, noop), "unknown type")
	assert.Error(t, decoders.Register(enums.EventPayoutSettled, 0, noop), "zero version")
	assert.Error(t, decoders.Register(enums.EventPayoutSettled, 1, nil), "nil decoder")
	assert.Panics(t, func() { decoders.MustRegister(enums.EventNotificationRequested, 1, noop) })
}

func TestDecodeMessage(t *testing.T) {
	decoders := notificationDecoders()
	eventID := uuid.New()
	body, err := json.Marshal(map[string]any{
		"version":        1,
		"event_id":       eventID.String(),
		"event_type":     enums.EventNotificationRequested,
		"aggregate_type": enums.AggregateNotification,
		"aggregate_id":   uuid.NewString(),
		"occurred_at":    "2026-03-01T10:00:00Z",
		"data":           map[string]any{"type": "wallet_funded", "title": "Wallet funded"},
	})
	require.NoError(t, err)

	decoded, err := decoders.DecodeMessage(body)
	require.NoError(t, err)
	assert.Equal(t, eventID, decoded.EventID)
	assert.Equal(t, enums.EventNotificationRequested, decoded.Envelope.EventType)
	assert.Equal(t, "Wallet funded", decoded.Payload.(*payloads.NotificationRequestedEvent).Title)

	_, err = decoders.DecodeMessage([]byte(`not json`))
	assert.True(t, errors.Is(err, ErrMalformedMessage))

	_, err = decoders.DecodeMessage([]byte(`{"version":1,"event_id":"nope","event_type":"notification_requested","data":{}}`))
	assert.ErrorIs(t, err, ErrMalformedMessage)
}
