package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/echo-commerce-backend/pkg/db/models"
	"github.com/angelmondragon/echo-commerce-backend/pkg/enums"
	"github.com/angelmondragon/echo-commerce-backend/pkg/outbox"
	"github.com/angelmondragon/echo-commerce-backend/pkg/outbox/payloads"
)

// Actor roles stamped on lifecycle events.
const (
	ActorStaff   = "staff"
	ActorWebhook = "webhook"
	ActorSystem  = "system"
)

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Actor identifies who drove a change.
type Actor struct {
	UserID uuid.UUID
	Role   string
}

func (a Actor) ref(businessID uuid.UUID) *outbox.ActorRef {
	ref := &outbox.ActorRef{Role: a.Role, BusinessID: &businessID}
	if a.UserID != uuid.Nil {
		id := a.UserID
		ref.UserID = &id
	}
	return ref
}

// LifecycleEvent snapshots the order into an outbox event.
func LifecycleEvent(eventType enums.OutboxEventType, order *models.Order, previous enums.OrderStatus, actor Actor, now time.Time) outbox.DomainEvent {
	payload := payloads.OrderEvent{
		OrderID:         order.ID,
		BusinessID:      order.BusinessID,
		OrderNumber:     order.OrderNumber,
		ConversationID:  order.ConversationID,
		Status:          order.Status,
		PreviousStatus:  previous,
		PaymentStatus:   order.PaymentStatus,
		PaymentProvider: order.PaymentProvider,
		TotalCents:      order.TotalCents,
		Currency:        order.Currency,
		Reason:          order.CancellationReason,
		At:              now.UTC(),
	}
	return outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor.ref(order.BusinessID),
		Data:          payload,
		OccurredAt:    now.UTC(),
	}
}
