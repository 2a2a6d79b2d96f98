package fulfillment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/echo-commerce-backend/internal/orders"
	"github.com/angelmondragon/echo-commerce-backend/pkg/db/models"
	"github.com/angelmondragon/echo-commerce-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/echo-commerce-backend/pkg/errors"
	"github.com/angelmondragon/echo-commerce-backend/pkg/logger"
	"github.com/angelmondragon/echo-commerce-backend/pkg/outbox"
)

const maxReasonLength = 500

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type orderStore interface {
	LockTx(tx *gorm.DB, orderID uuid.UUID) (*models.Order, error)
	UpdateTx(tx *gorm.DB, order *models.Order, columns ...string) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service applies staff fulfillment actions to orders.
type Service struct {
	orders orderStore
	tx     txRunner
	outbox outboxEmitter
	logg   *logger.Logger
	now    func() time.Time
}

func NewService(store orderStore, tx txRunner, emitter outboxEmitter, logg *logger.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("order store required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &Service{orders: store, tx: tx, outbox: emitter, logg: logg, now: time.Now}, nil
}

// Prepare moves a confirmed or paid order into the kitchen.
func (s *Service) Prepare(ctx context.Context, businessID, orderID uuid.UUID, actor orders.Actor) (*models.Order, error) {
	return s.advance(ctx, businessID, orderID, enums.OrderStatusPreparing, actor)
}

func (s *Service) Ready(ctx context.Context, businessID, orderID uuid.UUID, actor orders.Actor) (*models.Order, error) {
	return s.advance(ctx, businessID, orderID, enums.OrderStatusReady, actor)
}

func (s *Service) Deliver(ctx context.Context, businessID, orderID uuid.UUID, actor orders.Actor) (*models.Order, error) {
	return s.advance(ctx, businessID, orderID, enums.OrderStatusDelivered, actor)
}

// Cancel stops a draft or confirmed order. When the order had committed
// stock, the cancelled event drives the compensating increment.
func (s *Service) Cancel(ctx context.Context, businessID, orderID uuid.UUID, reason string, actor orders.Actor) (*models.Order, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) > maxReasonLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("reason must be at most %d characters", maxReasonLength))
	}
	return s.transition(ctx, businessID, orderID, enums.OrderStatusCancelled, actor, func(order *models.Order) []string {
		if reason != "" {
			order.CancellationReason = &reason
		}
		return []string{"cancellation_reason", "cancelled_at"}
	})
}

func (s *Service) advance(ctx context.Context, businessID, orderID uuid.UUID, target enums.OrderStatus, actor orders.Actor) (*models.Order, error) {
	return s.transition(ctx, businessID, orderID, target, actor, nil)
}

func (s *Service) transition(ctx context.Context, businessID, orderID uuid.UUID, target enums.OrderStatus, actor orders.Actor, mutate func(order *models.Order) []string) (*models.Order, error) {
	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.orders.LockTx(tx, orderID)
		if err != nil {
			return err
		}
		if order == nil || order.BusinessID != businessID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if err := orders.RequireTransition(order.Status, target); err != nil {
			return err
		}

		columns := []string{"status"}
		if mutate != nil {
			columns = append(columns, mutate(order)...)
		}
		previous := order.Status
		now := s.now()
		if err := orders.ApplyTransition(order, target, now); err != nil {
			return err
		}
		if err := s.orders.UpdateTx(tx, order, columns...); err != nil {
			return err
		}

		eventType := enums.EventOrderStatusChanged
		if target == enums.OrderStatusCancelled {
			eventType = enums.EventOrderCancelled
		}
		if err := s.outbox.Emit(ctx, tx, orders.LifecycleEvent(eventType, order, previous, actor, now)); err != nil {
			return err
		}
		result = order
		return nil
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderID(s.logg.WithBusinessID(ctx, businessID.String()), orderID.String())
		s.logg.Info(logCtx, fmt.Sprintf("order %s moved to %s", result.OrderNumber, target))
	}
	return result, nil
}
