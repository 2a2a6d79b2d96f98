// Package tasks runs the deferred work attached to order lifecycle events.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/echo-commerce-backend/internal/inventory"
	"github.com/angelmondragon/echo-commerce-backend/pkg/db/models"
	"github.com/angelmondragon/echo-commerce-backend/pkg/enums"
	"github.com/angelmondragon/echo-commerce-backend/pkg/logger"
	"github.com/angelmondragon/echo-commerce-backend/pkg/outbox"
	"github.com/angelmondragon/echo-commerce-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/echo-commerce-backend/pkg/outbox/payloads"
)

const consumerName = "order-tasks"

type inventoryAdjuster interface {
	Decrement(ctx context.Context, orderID uuid.UUID) (*inventory.Result, error)
	Increment(ctx context.Context, orderID uuid.UUID) (*inventory.Result, error)
}

type marketplaceSyncer interface {
	Sync(ctx context.Context, businessID, orderID uuid.UUID) (string, error)
}

type customerMessenger interface {
	SendPaymentConfirmation(ctx context.Context, order *models.Order) error
}

type orderLoader interface {
	FindByID(ctx context.Context, businessID, orderID uuid.UUID) (*models.Order, error)
}

type checkoutExpirer interface {
	ExpireCheckoutSession(ctx context.Context, sessionID string) error
}

type ConsumerParams struct {
	Subscription *pubsub.Subscriber
	Idempotency  *idempotency.Manager
	Inventory    inventoryAdjuster
	Orders       orderLoader
	Marketplace  marketplaceSyncer
	Messenger    customerMessenger
	Checkout     checkoutExpirer
	Logger       *logger.Logger
}

// Consumer applies order tasks delivered on the tasks subscription. The
// marketplace, messenger and checkout collaborators are optional.
type Consumer struct {
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	inventory    inventoryAdjuster
	orders       orderLoader
	marketplace  marketplaceSyncer
	messenger    customerMessenger
	checkout     checkoutExpirer
	logg         *logger.Logger
}

func NewConsumer(params ConsumerParams) (*Consumer, error) {
	if params.Idempotency == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory adjuster required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order loader required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		subscription: params.Subscription,
		idempotency:  params.Idempotency,
		inventory:    params.Inventory,
		orders:       params.Orders,
		marketplace:  params.Marketplace,
		messenger:    params.Messenger,
		checkout:     params.Checkout,
		logg:         params.Logger,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	if c.subscription == nil {
		return fmt.Errorf("tasks subscription required")
	}
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg.ID, msg.Attributes["event_type"], msg.Data) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// process returns true when the message should be acked.
func (c *Consumer) process(ctx context.Context, messageID, eventType string, data []byte) bool {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": eventType,
	})

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return true
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return true
	}
	var payload payloads.OrderEvent
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		return true
	}
	logCtx = c.logg.WithOrderID(logCtx, payload.OrderID.String())

	if !handles(enums.OutboxEventType(eventType)) {
		c.logg.Debug(logCtx, "skipping event without tasks")
		return true
	}

	outcome, err := c.idempotency.Claim(ctx, consumerName, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency claim failed", err)
		return false
	}
	switch outcome {
	case idempotency.Done:
		c.logg.Info(logCtx, "event already processed")
		return true
	case idempotency.InFlight:
		c.logg.Warn(logCtx, "event claimed by another delivery; retrying later")
		return false
	}

	if err := c.Handle(logCtx, enums.OutboxEventType(eventType), payload); err != nil {
		c.logg.Error(logCtx, "order task failed", err)
		if relErr := c.idempotency.Release(ctx, consumerName, eventID); relErr != nil {
			c.logg.Error(logCtx, "failed to release idempotency claim", relErr)
		}
		return false
	}
	if err := c.idempotency.Complete(ctx, consumerName, eventID); err != nil {
		c.logg.Error(logCtx, "failed to mark event processed", err)
	}
	return true
}

func handles(eventType enums.OutboxEventType) bool {
	switch eventType {
	case enums.EventOrderConfirmed, enums.EventOrderPaid, enums.EventOrderCancelled, enums.EventOrderInventoryCheck:
		return true
	}
	return false
}

// Handle runs the tasks for one event. Only inventory failures are returned;
// marketplace and messaging failures are logged and dropped.
func (c *Consumer) Handle(ctx context.Context, eventType enums.OutboxEventType, payload payloads.OrderEvent) error {
	if payload.OrderID == uuid.Nil {
		return errors.New("order id missing from payload")
	}
	switch eventType {
	case enums.EventOrderConfirmed:
		if err := c.decrement(ctx, payload); err != nil {
			return err
		}
		c.syncMarketplace(ctx, payload)
		c.expireCheckout(ctx, payload)
	case enums.EventOrderPaid:
		if err := c.decrement(ctx, payload); err != nil {
			return err
		}
		c.syncMarketplace(ctx, payload)
		c.confirmPayment(ctx, payload)
	case enums.EventOrderInventoryCheck:
		return c.decrement(ctx, payload)
	case enums.EventOrderCancelled:
		if err := c.increment(ctx, payload); err != nil {
			return err
		}
		c.expireCheckout(ctx, payload)
	}
	return nil
}
