package orders

import (
	"time"

	"github.com/angelmondragon/echo-commerce-backend/pkg/db/models"
	"github.com/angelmondragon/echo-commerce-backend/pkg/enums"
)

// PaymentSignal is an out-of-band payment outcome reported by a provider.
type PaymentSignal string

const (
	SignalPaid     PaymentSignal = "paid"
	SignalFailed   PaymentSignal = "failed"
	SignalRefunded PaymentSignal = "refunded"
)

// PaymentEffect describes what a signal changed. Columns is empty when the
// signal was a no-op for the order's current state.
type PaymentEffect struct {
	Previous enums.OrderStatus
	Columns  []string
	Event    enums.OutboxEventType
	Reason   string
}

// Changed reports whether the order needs to be written.
func (e PaymentEffect) Changed() bool {
	return len(e.Columns) > 0
}

// ApplyPaymentSignal folds a provider signal into the order. It looks only at
// current state, so applying the same signal twice changes nothing the second
// time. Cancelled orders take refunds only.
func ApplyPaymentSignal(order *models.Order, signal PaymentSignal, now time.Time) PaymentEffect {
	effect := PaymentEffect{Previous: order.Status}
	now = now.UTC()

	if order.Status == enums.OrderStatusCancelled && signal != SignalRefunded {
		effect.Reason = "order cancelled"
		return effect
	}

	switch signal {
	case SignalPaid:
		if order.PaymentStatus == enums.PaymentStatusPaid {
			effect.Reason = "already paid"
			return effect
		}
		if order.Status == enums.OrderStatusDraft {
			_ = ApplyTransition(order, enums.OrderStatusPaid, now)
			effect.Columns = []string{"status", "payment_status", "paid_at"}
			effect.Event = enums.EventOrderPaid
			return effect
		}
		// Committed through another path (cash); only the money side moves.
		order.PaymentStatus = enums.PaymentStatusPaid
		effect.Columns = []string{"payment_status"}
		if order.PaidAt == nil {
			order.PaidAt = &now
			effect.Columns = append(effect.Columns, "paid_at")
		}
	case SignalFailed:
		if order.Status != enums.OrderStatusDraft {
			effect.Reason = "order not draft"
			return effect
		}
		if order.PaymentStatus == enums.PaymentStatusFailed {
			effect.Reason = "already failed"
			return effect
		}
		order.PaymentStatus = enums.PaymentStatusFailed
		effect.Columns = []string{"payment_status"}
		if order.PaymentLinkExpiresAt == nil || order.PaymentLinkExpiresAt.After(now) {
			order.PaymentLinkExpiresAt = &now
			effect.Columns = append(effect.Columns, "payment_link_expires_at")
		}
		effect.Event = enums.EventOrderPaymentFailed
	case SignalRefunded:
		if order.PaymentStatus == enums.PaymentStatusRefunded {
			effect.Reason = "already refunded"
			return effect
		}
		order.PaymentStatus = enums.PaymentStatusRefunded
		effect.Columns = []string{"payment_status"}
		effect.Event = enums.EventOrderPaymentRefund
	default:
		effect.Reason = "unknown signal"
	}
	return effect
}
