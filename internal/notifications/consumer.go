package notifications

import (
	"context"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/escrow-backend/pkg/enums"
	"github.com/angelmondragon/escrow-backend/pkg/logger"
	"github.com/angelmondragon/escrow-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/escrow-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/escrow-backend/pkg/outbox/registry"
)

// DeliveryConsumer names the delivery consumer in idempotency keys.
const DeliveryConsumer = "notification-delivery"

// Consumer receives notification_requested events and marks the stored
// notification as delivered.
type Consumer struct {
	repo         Repository
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Guard
	decoders     *registry.DecoderRegistry
	logg         *logger.Logger
	now          func() time.Time
}

// NewConsumer builds a notification delivery consumer.
func NewConsumer(repo Repository, subscription *pubsub.Subscriber, guard *idempotency.Guard, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("notification subscription required")
	}
	if guard == nil {
		return nil, fmt.Errorf("idempotency guard required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:         repo,
		subscription: subscription,
		idempotency:  guard,
		decoders:     deliveryDecoders(),
		logg:         logg,
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

func deliveryDecoders() *registry.DecoderRegistry {
	return registry.NewDecoderRegistry().
		MustRegister(enums.EventNotificationRequested, 1, registry.JSONDecoder[payloads.NotificationRequestedEvent]())
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.handle(ctx, msg.ID, msg.Attributes["event_type"], msg.Data).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) handle(ctx context.Context, messageID, eventType string, data []byte) processResult {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": eventType,
	})

	if eventType != string(enums.EventNotificationRequested) {
		c.logg.Info(logCtx, "skipping unrelated event")
		return processResult{ack: true}
	}

	// undecodable deliveries are acked: redelivery cannot fix them
	decoded, err := c.decoders.DecodeMessage(data)
	if err != nil {
		c.logg.Error(logCtx, "dropping undecodable message", err)
		return processResult{ack: true}
	}
	eventID := decoded.EventID
	payload, ok := decoded.Payload.(*payloads.NotificationRequestedEvent)
	if !ok {
		c.logg.Warn(logCtx, "message carried a different event type than its attributes")
		return processResult{ack: true}
	}

	already, err := c.idempotency.CheckAndMarkEvent(ctx, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	logCtx = c.logg.WithFields(logCtx, map[string]any{
		"notification_id": payload.NotificationID.String(),
		"recipient_id":    payload.RecipientID.String(),
		"type":            payload.Type,
	})
	delivered, err := c.repo.MarkDelivered(ctx, payload.NotificationID, c.now())
	if err != nil {
		c.logg.Error(logCtx, "mark delivered failed", err)
		if relErr := c.idempotency.Release(ctx, eventID.String()); relErr != nil {
			c.logg.WarnErr(logCtx, "release idempotency claim", relErr)
		}
		return processResult{nack: true}
	}
	if !delivered {
		c.logg.Warn(logCtx, "notification missing or already delivered")
		return processResult{ack: true}
	}
	c.logg.Info(logCtx, "notification delivered")
	return processResult{ack: true}
}
