package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/echo-commerce-backend/pkg/enums"
	"github.com/angelmondragon/echo-commerce-backend/pkg/types"
)

// Order is the aggregate root for a customer purchase started from a conversation.
type Order struct {
	ID               uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BusinessID       uuid.UUID              `gorm:"column:business_id;type:uuid;not null"`
	ConversationID   *uuid.UUID             `gorm:"column:conversation_id;type:uuid"`
	OrderNumber      string                 `gorm:"column:order_number;not null"`
	Status           enums.OrderStatus      `gorm:"column:status;type:text;not null;default:'draft'"`
	Currency         enums.Currency         `gorm:"column:currency;type:text;not null;default:'USD'"`
	SubtotalCents    int64                  `gorm:"column:subtotal_cents;not null;default:0"`
	DeliveryFeeCents int64                  `gorm:"column:delivery_fee_cents;not null;default:0"`
	TotalCents       int64                  `gorm:"column:total_cents;not null;default:0"`
	DeliveryType     enums.DeliveryType     `gorm:"column:delivery_type;type:text;not null;default:'pickup'"`
	DeliveryAddress  *types.DeliveryAddress `gorm:"column:delivery_address;type:jsonb;serializer:json"`
	ContactPhone     *string                `gorm:"column:contact_phone"`
	PaymentMethod    *enums.PaymentMethod   `gorm:"column:payment_method;type:text"`
	PaymentProvider  *enums.PaymentProvider `gorm:"column:payment_provider;type:text"`
	PaymentStatus    enums.PaymentStatus    `gorm:"column:payment_status;type:text;not null;default:'pending'"`

	CheckoutSessionID    *string    `gorm:"column:checkout_session_id"`
	PaymentLinkURL       *string    `gorm:"column:payment_link_url"`
	PaymentLinkExpiresAt *time.Time `gorm:"column:payment_link_expires_at"`
	MarketplaceDraftID   *string    `gorm:"column:marketplace_draft_order_id"`
	MarketplaceOrderID   *string    `gorm:"column:marketplace_order_id"`
	MarketplaceOrderName *string    `gorm:"column:marketplace_order_number"`

	CancelledAt        *time.Time      `gorm:"column:cancelled_at"`
	CancellationReason *string         `gorm:"column:cancellation_reason"`
	ConfirmedAt        *time.Time      `gorm:"column:confirmed_at"`
	PaidAt             *time.Time      `gorm:"column:paid_at"`
	Items              []OrderLineItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt          time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// HasActivePaymentLink reports whether a link exists that has not expired at now.
func (o Order) HasActivePaymentLink(now time.Time) bool {
	if o.PaymentLinkURL == nil || *o.PaymentLinkURL == "" {
		return false
	}
	if o.PaymentLinkExpiresAt == nil {
		return true
	}
	return now.Before(*o.PaymentLinkExpiresAt)
}

// OrderLineItem snapshots product data at the time it was added to the order.
type OrderLineItem struct {
	ID                uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID           uuid.UUID  `gorm:"column:order_id;type:uuid;not null"`
	ProductID         uuid.UUID  `gorm:"column:product_id;type:uuid;not null"`
	VariantID         *uuid.UUID `gorm:"column:variant_id;type:uuid"`
	Name              string     `gorm:"column:name;not null"`
	VariantName       *string    `gorm:"column:variant_name"`
	SKU               *string    `gorm:"column:sku"`
	ExternalVariantID *string    `gorm:"column:external_variant_id"`
	Quantity          int        `gorm:"column:quantity;not null"`
	UnitPriceCents    int64      `gorm:"column:unit_price_cents;not null"`
	TotalCents        int64      `gorm:"column:total_cents;not null"`
	Position          int        `gorm:"column:position;not null;default:0"`
	CreatedAt         time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderNumberCounter is the durable floor of the per-business order sequence.
type OrderNumberCounter struct {
	BusinessID uuid.UUID `gorm:"column:business_id;type:uuid;primaryKey"`
	Prefix     string    `gorm:"column:prefix;primaryKey"`
	LastSeq    int64     `gorm:"column:last_seq;not null;default:0"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
