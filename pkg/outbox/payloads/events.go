package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/echo-commerce-backend/pkg/enums"
)

// OrderEvent is the payload shared by every order lifecycle event. Consumers
// reload the order before acting, so the snapshot is informational.
type OrderEvent struct {
	OrderID         uuid.UUID              `json:"order_id"`
	BusinessID      uuid.UUID              `json:"business_id"`
	OrderNumber     string                 `json:"order_number"`
	ConversationID  *uuid.UUID             `json:"conversation_id,omitempty"`
	Status          enums.OrderStatus      `json:"status"`
	PreviousStatus  enums.OrderStatus      `json:"previous_status,omitempty"`
	PaymentStatus   enums.PaymentStatus    `json:"payment_status"`
	PaymentProvider *enums.PaymentProvider `json:"payment_provider,omitempty"`
	TotalCents      int64                  `json:"total_cents"`
	Currency        enums.Currency         `json:"currency"`
	Reason          *string                `json:"reason,omitempty"`
	At              time.Time              `json:"at"`
}
