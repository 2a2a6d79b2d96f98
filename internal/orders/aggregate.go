package orders

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/echo-commerce-backend/pkg/db/models"
	"github.com/angelmondragon/echo-commerce-backend/pkg/enums"
)

// Recalculate refreshes line totals, subtotal and total from the items and
// delivery fee. Every item mutation ends with a call to it.
func Recalculate(order *models.Order) {
	var subtotal int64
	for i := range order.Items {
		item := &order.Items[i]
		item.TotalCents = item.UnitPriceCents * int64(item.Quantity)
		subtotal += item.TotalCents
	}
	order.SubtotalCents = subtotal
	order.TotalCents = subtotal + order.DeliveryFeeCents
}

// ApplyTransition moves the order to target and stamps the matching timestamp.
func ApplyTransition(order *models.Order, target enums.OrderStatus, now time.Time) error {
	if err := RequireTransition(order.Status, target); err != nil {
		return err
	}
	now = now.UTC()
	order.Status = target
	switch target {
	case enums.OrderStatusConfirmed:
		order.ConfirmedAt = &now
	case enums.OrderStatusPaid:
		order.PaidAt = &now
		order.PaymentStatus = enums.PaymentStatusPaid
	case enums.OrderStatusCancelled:
		order.CancelledAt = &now
	}
	return nil
}

// InventoryCommitted reports whether the order reached a status where stock
// was scheduled for decrement.
func InventoryCommitted(status enums.OrderStatus) bool {
	switch status {
	case enums.OrderStatusConfirmed, enums.OrderStatusPaid, enums.OrderStatusPreparing,
		enums.OrderStatusReady, enums.OrderStatusDelivered:
		return true
	}
	return false
}

// FormatMoney renders cents as "10.00 USD".
func FormatMoney(cents int64, currency enums.Currency) string {
	return fmt.Sprintf("%s %s", decimal.NewFromInt(cents).Shift(-2).StringFixed(2), currency)
}
