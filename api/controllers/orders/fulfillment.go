package orders

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/echo-commerce-backend/api/middleware"
	"github.com/angelmondragon/echo-commerce-backend/api/responses"
	"github.com/angelmondragon/echo-commerce-backend/api/validators"
	internalorders "github.com/angelmondragon/echo-commerce-backend/internal/orders"
	"github.com/angelmondragon/echo-commerce-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/echo-commerce-backend/pkg/errors"
	"github.com/angelmondragon/echo-commerce-backend/pkg/logger"
)

type FulfillmentService interface {
	Prepare(ctx context.Context, businessID, orderID uuid.UUID, actor internalorders.Actor) (*models.Order, error)
	Ready(ctx context.Context, businessID, orderID uuid.UUID, actor internalorders.Actor) (*models.Order, error)
	Deliver(ctx context.Context, businessID, orderID uuid.UUID, actor internalorders.Actor) (*models.Order, error)
	Cancel(ctx context.Context, businessID, orderID uuid.UUID, reason string, actor internalorders.Actor) (*models.Order, error)
}

type transitionFunc func(ctx context.Context, businessID, orderID uuid.UUID, actor internalorders.Actor) (*models.Order, error)

type cancelRequest struct {
	Reason *string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

func PrepareOrder(svc FulfillmentService, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable(logg)
	}
	return advance(svc.Prepare, logg)
}

func ReadyOrder(svc FulfillmentService, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable(logg)
	}
	return advance(svc.Ready, logg)
}

func DeliverOrder(svc FulfillmentService, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable(logg)
	}
	return advance(svc.Deliver, logg)
}

// CancelOrder cancels a draft or confirmed order. The body is optional.
func CancelOrder(svc FulfillmentService, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable(logg)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req cancelRequest
		if err := validators.DecodeOptionalJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reason := ""
		if req.Reason != nil {
			reason = validators.SanitizeString(*req.Reason, 500)
		}

		order, err := svc.Cancel(r.Context(), middleware.BusinessIDFromContext(r.Context()), orderID, reason, actorFrom(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

func advance(fn transitionFunc, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := fn(r.Context(), middleware.BusinessIDFromContext(r.Context()), orderID, actorFrom(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

func unavailable(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "fulfillment service unavailable"))
	}
}
