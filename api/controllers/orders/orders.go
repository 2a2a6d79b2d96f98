package orders

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/echo-commerce-backend/api/middleware"
	"github.com/angelmondragon/echo-commerce-backend/api/responses"
	"github.com/angelmondragon/echo-commerce-backend/api/validators"
	internalorders "github.com/angelmondragon/echo-commerce-backend/internal/orders"
	"github.com/angelmondragon/echo-commerce-backend/pkg/db/models"
	"github.com/angelmondragon/echo-commerce-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/echo-commerce-backend/pkg/errors"
	"github.com/angelmondragon/echo-commerce-backend/pkg/logger"
	"github.com/angelmondragon/echo-commerce-backend/pkg/pagination"
	"github.com/angelmondragon/echo-commerce-backend/pkg/types"
)

const staffRole = "staff"

// OrderService is the part of the order aggregate exposed over HTTP.
type OrderService interface {
	Create(ctx context.Context, input internalorders.CreateInput) (*models.Order, error)
	Get(ctx context.Context, businessID, orderID uuid.UUID) (*models.Order, error)
	GetByNumber(ctx context.Context, businessID uuid.UUID, number string) (*models.Order, error)
	List(ctx context.Context, businessID uuid.UUID, params pagination.Params, filters internalorders.ListFilters) (*internalorders.OrderList, error)
	ListByConversation(ctx context.Context, businessID, conversationID uuid.UUID) ([]models.Order, error)
	AddItem(ctx context.Context, input internalorders.AddItemInput) (*models.Order, error)
	UpdateItemQuantity(ctx context.Context, input internalorders.UpdateItemInput) (*models.Order, error)
	RemoveItem(ctx context.Context, businessID, orderID, itemID uuid.UUID) (*models.Order, error)
	SetDelivery(ctx context.Context, input internalorders.DeliveryInput) (*models.Order, error)
}

type itemRequest struct {
	ProductID string  `json:"product_id" validate:"required,uuid"`
	VariantID *string `json:"variant_id,omitempty" validate:"omitempty,uuid"`
	Quantity  int     `json:"quantity" validate:"required,min=1,max=999"`
}

type createOrderRequest struct {
	ConversationID  *string                `json:"conversation_id,omitempty" validate:"omitempty,uuid"`
	ContactPhone    *string                `json:"contact_phone,omitempty" validate:"omitempty,max=32"`
	Items           []itemRequest          `json:"items" validate:"omitempty,max=100,dive"`
	DeliveryType    *string                `json:"delivery_type,omitempty" validate:"omitempty,oneof=pickup delivery"`
	DeliveryAddress *types.DeliveryAddress `json:"delivery_address,omitempty"`
}

type updateItemRequest struct {
	Quantity *int `json:"quantity" validate:"required,min=0,max=999"`
}

type deliveryRequest struct {
	Type     string                 `json:"type" validate:"required,oneof=pickup delivery"`
	Address  *types.DeliveryAddress `json:"address,omitempty"`
	FeeCents *int64                 `json:"fee_cents,omitempty" validate:"omitempty,min=0"`
}

// CreateOrder opens a draft for a conversation with an allocated order number.
func CreateOrder(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		conversationID, err := validators.ParseOptionalUUID(req.ConversationID, "conversation_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items := make([]internalorders.ItemInput, 0, len(req.Items))
		for _, item := range req.Items {
			in, err := item.toInput()
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			items = append(items, in)
		}

		input := internalorders.CreateInput{
			BusinessID:      middleware.BusinessIDFromContext(r.Context()),
			ConversationID:  conversationID,
			ContactPhone:    req.ContactPhone,
			Items:           items,
			DeliveryAddress: req.DeliveryAddress,
			Actor:           actorFrom(r.Context()),
		}
		if req.DeliveryType != nil {
			deliveryType := enums.DeliveryType(*req.DeliveryType)
			input.DeliveryType = &deliveryType
		}

		order, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newOrderResponse(order))
	}
}

// ListOrders pages through the business's orders, newest first.
func ListOrders(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		var filters internalorders.ListFilters
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseOrderStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			filters.Status = &status
		}

		list, err := svc.List(r.Context(), middleware.BusinessIDFromContext(r.Context()), params, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderListResponse(list))
	}
}

func GetOrder(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Get(r.Context(), middleware.BusinessIDFromContext(r.Context()), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// GetOrderByNumber resolves the ORD-XXX-NNNNNN reference customers quote in chat.
func GetOrderByNumber(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		number := strings.TrimSpace(chi.URLParam(r, "orderNumber"))
		if number == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order number is required"))
			return
		}
		order, err := svc.GetByNumber(r.Context(), middleware.BusinessIDFromContext(r.Context()), number)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

func ListConversationOrders(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		conversationID, err := validators.ParseUUIDParam(r, "conversationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orders, err := svc.ListByConversation(r.Context(), middleware.BusinessIDFromContext(r.Context()), conversationID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderListResponse(&internalorders.OrderList{Orders: orders}))
	}
}

// AddItem appends a catalog item to a draft, merging with an identical line.
func AddItem(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req itemRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		item, err := req.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.AddItem(r.Context(), internalorders.AddItemInput{
			BusinessID: middleware.BusinessIDFromContext(r.Context()),
			OrderID:    orderID,
			Item:       item,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// UpdateItem sets a line quantity; zero removes the line.
func UpdateItem(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, itemID, err := orderAndItemIDs(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req updateItemRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.UpdateItemQuantity(r.Context(), internalorders.UpdateItemInput{
			BusinessID: middleware.BusinessIDFromContext(r.Context()),
			OrderID:    orderID,
			ItemID:     itemID,
			Quantity:   *req.Quantity,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

func RemoveItem(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, itemID, err := orderAndItemIDs(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.RemoveItem(r.Context(), middleware.BusinessIDFromContext(r.Context()), orderID, itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// SetDelivery switches a draft between pickup and delivery.
func SetDelivery(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req deliveryRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.SetDelivery(r.Context(), internalorders.DeliveryInput{
			BusinessID: middleware.BusinessIDFromContext(r.Context()),
			OrderID:    orderID,
			Type:       enums.DeliveryType(req.Type),
			Address:    req.Address,
			FeeCents:   req.FeeCents,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

func (i itemRequest) toInput() (internalorders.ItemInput, error) {
	productID, err := uuid.Parse(i.ProductID)
	if err != nil {
		return internalorders.ItemInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product_id")
	}
	variantID, err := validators.ParseOptionalUUID(i.VariantID, "variant_id")
	if err != nil {
		return internalorders.ItemInput{}, err
	}
	return internalorders.ItemInput{ProductID: productID, VariantID: variantID, Quantity: i.Quantity}, nil
}

func orderAndItemIDs(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	orderID, err := validators.ParseUUIDParam(r, "orderId")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	itemID, err := validators.ParseUUIDParam(r, "itemId")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return orderID, itemID, nil
}

func actorFrom(ctx context.Context) internalorders.Actor {
	return internalorders.Actor{UserID: middleware.UserIDFromContext(ctx), Role: staffRole}
}
