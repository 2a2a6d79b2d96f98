package orders

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/echo-commerce-backend/api/middleware"
	"github.com/angelmondragon/echo-commerce-backend/api/responses"
	"github.com/angelmondragon/echo-commerce-backend/api/validators"
	internalorders "github.com/angelmondragon/echo-commerce-backend/internal/orders"
	"github.com/angelmondragon/echo-commerce-backend/internal/payments"
	"github.com/angelmondragon/echo-commerce-backend/pkg/db/models"
	"github.com/angelmondragon/echo-commerce-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/echo-commerce-backend/pkg/errors"
	"github.com/angelmondragon/echo-commerce-backend/pkg/logger"
)

type PaymentService interface {
	SetPaymentMethod(ctx context.Context, businessID, orderID uuid.UUID, method enums.PaymentMethod, actor internalorders.Actor) (*models.Order, error)
	GeneratePaymentLink(ctx context.Context, businessID, orderID uuid.UUID) (*payments.LinkResult, error)
}

type paymentMethodRequest struct {
	Method string `json:"method" validate:"required,oneof=cash card"`
}

// SetPaymentMethod records cash or card. Cash confirms the draft on the spot.
func SetPaymentMethod(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req paymentMethodRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		method, err := enums.ParsePaymentMethod(req.Method)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid method"))
			return
		}

		order, err := svc.SetPaymentMethod(r.Context(), middleware.BusinessIDFromContext(r.Context()), orderID, method, actorFrom(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// ConfirmOrder is the staff shortcut for a cash order.
func ConfirmOrder(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.SetPaymentMethod(r.Context(), middleware.BusinessIDFromContext(r.Context()), orderID, enums.PaymentMethodCash, actorFrom(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// GeneratePaymentLink returns a marketplace invoice or hosted checkout URL.
// Provider failures surface only as "payment could not be started".
func GeneratePaymentLink(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		link, err := svc.GeneratePaymentLink(r.Context(), middleware.BusinessIDFromContext(r.Context()), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if link.SkippedItems == nil {
			link.SkippedItems = []payments.SkippedItem{}
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, link)
	}
}
