package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/echo-commerce-backend/pkg/enums"
	"github.com/angelmondragon/echo-commerce-backend/pkg/logger"
	"github.com/angelmondragon/echo-commerce-backend/pkg/outbox"
	"github.com/angelmondragon/echo-commerce-backend/pkg/outbox/idempotency"
)

const consumerName = "analytics"

type rowWriter interface {
	Insert(ctx context.Context, row *OrderEventRow) error
}

type idempotencyChecker interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (idempotency.Outcome, error)
	Complete(ctx context.Context, consumer string, eventID uuid.UUID) error
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Consumer drains the analytics subscription into the order events table.
type Consumer struct {
	subscription *gcppubsub.Subscriber
	writer       rowWriter
	manager      idempotencyChecker
	logg         *logger.Logger
}

func NewConsumer(subscription *gcppubsub.Subscriber, writer rowWriter, manager idempotencyChecker, logg *logger.Logger) (*Consumer, error) {
	if writer == nil {
		return nil, errors.New("analytics writer is required")
	}
	if manager == nil {
		return nil, errors.New("idempotency manager is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Consumer{subscription: subscription, writer: writer, manager: manager, logg: logg}, nil
}

// Run consumes messages until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	if c.subscription == nil {
		return errors.New("analytics subscription is required")
	}
	return c.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if c.process(innerCtx, msg.ID, msg.Attributes, msg.Data) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// process returns true when the message should be acked. Undecodable
// messages are acked so they do not redeliver forever.
func (c *Consumer) process(ctx context.Context, messageID string, attrs map[string]string, data []byte) bool {
	fields := map[string]any{"message_id": messageID}
	logCtx := c.logg.WithFields(ctx, fields)

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.logg.Warn(logCtx, "invalid analytics envelope: "+err.Error())
		return true
	}
	if envelope.EventID == "" {
		envelope.EventID = strings.TrimSpace(attrs["event_id"])
	}
	if envelope.OccurredAt.IsZero() {
		if created := strings.TrimSpace(attrs["created_at"]); created != "" {
			if parsed, err := time.Parse(time.RFC3339Nano, created); err == nil {
				envelope.OccurredAt = parsed
			}
		}
	}

	eventType, err := enums.ParseOutboxEventType(strings.TrimSpace(attrs["event_type"]))
	fields["event_id"] = envelope.EventID
	fields["event_type"] = attrs["event_type"]
	logCtx = c.logg.WithFields(ctx, fields)
	if err != nil {
		c.logg.Warn(logCtx, "unknown analytics event type")
		return true
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Warn(logCtx, "invalid event id")
		return true
	}

	row, err := BuildOrderEventRow(eventType, envelope)
	if err != nil {
		c.logg.Warn(logCtx, "invalid order event payload: "+err.Error())
		return true
	}

	outcome, err := c.manager.Claim(logCtx, consumerName, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency claim failed", err)
		return false
	}
	switch outcome {
	case idempotency.Done:
		c.logg.Info(logCtx, "event already processed")
		return true
	case idempotency.InFlight:
		return false
	}

	if err := c.writer.Insert(logCtx, row); err != nil {
		c.logg.Error(logCtx, "failed to insert order event row", err)
		if relErr := c.manager.Release(logCtx, consumerName, eventID); relErr != nil {
			c.logg.Error(logCtx, "failed to release idempotency claim", relErr)
		}
		return false
	}
	if err := c.manager.Complete(logCtx, consumerName, eventID); err != nil {
		c.logg.Error(logCtx, "failed to mark event processed", err)
	}

	c.logg.Info(logCtx, "order event recorded")
	return true
}
