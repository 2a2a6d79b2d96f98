package orders

import (
	"time"

	"github.com/google/uuid"

	internalorders "github.com/angelmondragon/echo-commerce-backend/internal/orders"
	"github.com/angelmondragon/echo-commerce-backend/pkg/db/models"
	"github.com/angelmondragon/echo-commerce-backend/pkg/enums"
	"github.com/angelmondragon/echo-commerce-backend/pkg/types"
)

type lineItemResponse struct {
	ID             uuid.UUID  `json:"id"`
	ProductID      uuid.UUID  `json:"product_id"`
	VariantID      *uuid.UUID `json:"variant_id,omitempty"`
	Name           string     `json:"name"`
	VariantName    *string    `json:"variant_name,omitempty"`
	SKU            *string    `json:"sku,omitempty"`
	Quantity       int        `json:"quantity"`
	UnitPriceCents int64      `json:"unit_price_cents"`
	TotalCents     int64      `json:"total_cents"`
}

type orderResponse struct {
	ID                     uuid.UUID              `json:"id"`
	BusinessID             uuid.UUID              `json:"business_id"`
	ConversationID         *uuid.UUID             `json:"conversation_id,omitempty"`
	OrderNumber            string                 `json:"order_number"`
	Status                 enums.OrderStatus      `json:"status"`
	Currency               enums.Currency         `json:"currency"`
	SubtotalCents          int64                  `json:"subtotal_cents"`
	DeliveryFeeCents       int64                  `json:"delivery_fee_cents"`
	TotalCents             int64                  `json:"total_cents"`
	DeliveryType           enums.DeliveryType     `json:"delivery_type"`
	DeliveryAddress        *types.DeliveryAddress `json:"delivery_address,omitempty"`
	ContactPhone           *string                `json:"contact_phone,omitempty"`
	PaymentMethod          *enums.PaymentMethod   `json:"payment_method,omitempty"`
	PaymentProvider        *enums.PaymentProvider `json:"payment_provider,omitempty"`
	PaymentStatus          enums.PaymentStatus    `json:"payment_status"`
	PaymentLinkURL         *string                `json:"payment_link_url,omitempty"`
	PaymentLinkExpiresAt   *time.Time             `json:"payment_link_expires_at,omitempty"`
	MarketplaceOrderID     *string                `json:"marketplace_order_id,omitempty"`
	MarketplaceOrderNumber *string                `json:"marketplace_order_number,omitempty"`
	CancellationReason     *string                `json:"cancellation_reason,omitempty"`
	ConfirmedAt            *time.Time             `json:"confirmed_at,omitempty"`
	PaidAt                 *time.Time             `json:"paid_at,omitempty"`
	CancelledAt            *time.Time             `json:"cancelled_at,omitempty"`
	Items                  []lineItemResponse     `json:"items"`
	CreatedAt              time.Time              `json:"created_at"`
	UpdatedAt              time.Time              `json:"updated_at"`
}

type orderListResponse struct {
	Orders     []orderResponse `json:"orders"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func newOrderResponse(order *models.Order) orderResponse {
	items := make([]lineItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, lineItemResponse{
			ID:             item.ID,
			ProductID:      item.ProductID,
			VariantID:      item.VariantID,
			Name:           item.Name,
			VariantName:    item.VariantName,
			SKU:            item.SKU,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			TotalCents:     item.TotalCents,
		})
	}
	return orderResponse{
		ID:                     order.ID,
		BusinessID:             order.BusinessID,
		ConversationID:         order.ConversationID,
		OrderNumber:            order.OrderNumber,
		Status:                 order.Status,
		Currency:               order.Currency,
		SubtotalCents:          order.SubtotalCents,
		DeliveryFeeCents:       order.DeliveryFeeCents,
		TotalCents:             order.TotalCents,
		DeliveryType:           order.DeliveryType,
		DeliveryAddress:        order.DeliveryAddress,
		ContactPhone:           order.ContactPhone,
		PaymentMethod:          order.PaymentMethod,
		PaymentProvider:        order.PaymentProvider,
		PaymentStatus:          order.PaymentStatus,
		PaymentLinkURL:         order.PaymentLinkURL,
		PaymentLinkExpiresAt:   order.PaymentLinkExpiresAt,
		MarketplaceOrderID:     order.MarketplaceOrderID,
		MarketplaceOrderNumber: order.MarketplaceOrderName,
		CancellationReason:     order.CancellationReason,
		ConfirmedAt:            order.ConfirmedAt,
		PaidAt:                 order.PaidAt,
		CancelledAt:            order.CancelledAt,
		Items:                  items,
		CreatedAt:              order.CreatedAt,
		UpdatedAt:              order.UpdatedAt,
	}
}

func newOrderListResponse(list *internalorders.OrderList) orderListResponse {
	out := orderListResponse{Orders: make([]orderResponse, 0, len(list.Orders)), NextCursor: list.NextCursor}
	for i := range list.Orders {
		out.Orders = append(out.Orders, newOrderResponse(&list.Orders[i]))
	}
	return out
}
