package tasks

import (
	"context"
	"fmt"

	"github.com/angelmondragon/echo-commerce-backend/internal/inventory"
	"github.com/angelmondragon/echo-commerce-backend/internal/messaging"
	"github.com/angelmondragon/echo-commerce-backend/pkg/enums"
	"github.com/angelmondragon/echo-commerce-backend/pkg/outbox/payloads"
)

func (c *Consumer) decrement(ctx context.Context, payload payloads.OrderEvent) error {
	result, err := c.inventory.Decrement(ctx, payload.OrderID)
	if err != nil {
		return fmt.Errorf("decrement inventory for %s: %w", payload.OrderNumber, err)
	}
	c.logResult(ctx, payload, result)
	return nil
}

func (c *Consumer) increment(ctx context.Context, payload payloads.OrderEvent) error {
	result, err := c.inventory.Increment(ctx, payload.OrderID)
	if err != nil {
		return fmt.Errorf("restore inventory for %s: %w", payload.OrderNumber, err)
	}
	c.logResult(ctx, payload, result)
	return nil
}

func (c *Consumer) logResult(ctx context.Context, payload payloads.OrderEvent, result *inventory.Result) {
	if result == nil {
		return
	}
	if result.Skipped {
		c.logg.Info(ctx, fmt.Sprintf("inventory %s skipped for %s: %s", result.Direction, payload.OrderNumber, result.Reason))
		return
	}
	c.logg.Info(ctx, fmt.Sprintf("inventory %s applied to %d variants for %s", result.Direction, len(result.Lines), payload.OrderNumber))
}

func (c *Consumer) syncMarketplace(ctx context.Context, payload payloads.OrderEvent) {
	if c.marketplace == nil {
		return
	}
	outcome, err := c.marketplace.Sync(ctx, payload.BusinessID, payload.OrderID)
	if err != nil {
		c.logg.Error(ctx, fmt.Sprintf("marketplace sync failed for %s", payload.OrderNumber), err)
		return
	}
	c.logg.Info(ctx, fmt.Sprintf("marketplace sync for %s: %s", payload.OrderNumber, outcome))
}

func (c *Consumer) confirmPayment(ctx context.Context, payload payloads.OrderEvent) {
	if c.messenger == nil {
		return
	}
	order, err := c.orders.FindByID(ctx, payload.BusinessID, payload.OrderID)
	if err != nil || order == nil {
		c.logg.Error(ctx, fmt.Sprintf("payment confirmation skipped for %s: order unavailable", payload.OrderNumber), err)
		return
	}
	if err := c.messenger.SendPaymentConfirmation(ctx, order); err != nil {
		if messaging.IsNoConversation(err) {
			c.logg.Info(ctx, fmt.Sprintf("order %s has no conversation to confirm payment in", order.OrderNumber))
			return
		}
		c.logg.Error(ctx, fmt.Sprintf("payment confirmation failed for %s", order.OrderNumber), err)
		return
	}
	c.logg.Info(ctx, fmt.Sprintf("payment confirmation sent for %s", order.OrderNumber))
}

// expireCheckout closes the hosted checkout of a draft that left draft another
// way (cancelled, or confirmed as cash) while its link was still payable.
func (c *Consumer) expireCheckout(ctx context.Context, payload payloads.OrderEvent) {
	if c.checkout == nil || payload.PreviousStatus != enums.OrderStatusDraft {
		return
	}
	order, err := c.orders.FindByID(ctx, payload.BusinessID, payload.OrderID)
	if err != nil || order == nil {
		c.logg.Error(ctx, fmt.Sprintf("checkout expiry skipped for %s: order unavailable", payload.OrderNumber), err)
		return
	}
	if order.CheckoutSessionID == nil || *order.CheckoutSessionID == "" {
		return
	}
	if order.PaymentLinkExpiresAt != nil && !order.PaymentLinkExpiresAt.After(payload.At) {
		return
	}
	if err := c.checkout.ExpireCheckoutSession(ctx, *order.CheckoutSessionID); err != nil {
		c.logg.Warn(ctx, fmt.Sprintf("could not expire checkout for %s order %s: %v", order.Status, order.OrderNumber, err))
		return
	}
	c.logg.Info(ctx, fmt.Sprintf("checkout expired for %s order %s", order.Status, order.OrderNumber))
}
