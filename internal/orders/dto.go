package orders

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/echo-commerce-backend/pkg/enums"
	"github.com/angelmondragon/echo-commerce-backend/pkg/types"
)

// ItemInput references a catalog product (and optionally one of its variants).
type ItemInput struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Quantity  int
}

type CreateInput struct {
	BusinessID      uuid.UUID
	ConversationID  *uuid.UUID
	ContactPhone    *string
	Items           []ItemInput
	DeliveryType    *enums.DeliveryType
	DeliveryAddress *types.DeliveryAddress
	Actor           Actor
}

type AddItemInput struct {
	BusinessID uuid.UUID
	OrderID    uuid.UUID
	Item       ItemInput
}

type UpdateItemInput struct {
	BusinessID uuid.UUID
	OrderID    uuid.UUID
	ItemID     uuid.UUID
	Quantity   int
}

// DeliveryInput switches between pickup and delivery. FeeCents overrides the
// business default fee for delivery orders.
type DeliveryInput struct {
	BusinessID uuid.UUID
	OrderID    uuid.UUID
	Type       enums.DeliveryType
	Address    *types.DeliveryAddress
	FeeCents   *int64
}
