package webhooks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/echo-commerce-backend/internal/orders"
	"github.com/angelmondragon/echo-commerce-backend/pkg/db/models"
	"github.com/angelmondragon/echo-commerce-backend/pkg/logger"
	"github.com/angelmondragon/echo-commerce-backend/pkg/metrics"
	"github.com/angelmondragon/echo-commerce-backend/pkg/outbox"
)

// Outcomes recorded per delivery.
const (
	OutcomeApplied   = "applied"
	OutcomeIgnored   = "ignored"
	OutcomeUnmatched = "unmatched"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type orderWriter interface {
	UpdateTx(tx *gorm.DB, order *models.Order, columns ...string) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Locator finds and locks the order a delivery refers to. A nil order means
// the delivery does not belong to any order.
type Locator func(tx *gorm.DB) (*models.Order, error)

// Patch adds provider correlation fields to an order that was found. It
// returns the columns it changed.
type Patch func(order *models.Order) []string

// Reconciler applies provider payment signals to orders inside one
// transaction per delivery.
type Reconciler struct {
	orders  orderWriter
	tx      txRunner
	outbox  outboxEmitter
	metrics *metrics.CommerceMetrics
	logg    *logger.Logger
	now     func() time.Time
}

type ReconcilerParams struct {
	Orders  orderWriter
	Tx      txRunner
	Outbox  outboxEmitter
	Metrics *metrics.CommerceMetrics
	Logger  *logger.Logger
	Now     func() time.Time
}

func NewReconciler(params ReconcilerParams) (*Reconciler, error) {
	if params.Orders == nil {
		return nil, errors.New("order repository required")
	}
	if params.Tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox publisher required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Reconciler{
		orders:  params.Orders,
		tx:      params.Tx,
		outbox:  params.Outbox,
		metrics: params.Metrics,
		logg:    params.Logger,
		now:     now,
	}, nil
}

// Apply locks the order found by locate, folds signal into it and emits the
// resulting lifecycle event in the same transaction. It returns the outcome
// label recorded for the delivery.
func (r *Reconciler) Apply(ctx context.Context, provider string, locate Locator, signal orders.PaymentSignal, patch Patch) (string, error) {
	outcome := OutcomeIgnored
	var (
		orderNumber string
		reason      string
	)
	err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := locate(tx)
		if err != nil {
			return err
		}
		if order == nil {
			outcome = OutcomeUnmatched
			return nil
		}
		orderNumber = order.OrderNumber

		now := r.now()
		effect := orders.ApplyPaymentSignal(order, signal, now)
		columns := effect.Columns
		if patch != nil {
			columns = append(columns, patch(order)...)
		}
		if len(columns) == 0 {
			reason = effect.Reason
			return nil
		}
		if err := r.orders.UpdateTx(tx, order, columns...); err != nil {
			return err
		}
		outcome = OutcomeApplied
		if effect.Event == "" {
			return nil
		}
		event := orders.LifecycleEvent(effect.Event, order, effect.Previous, orders.Actor{Role: orders.ActorWebhook}, now)
		return r.outbox.Emit(ctx, tx, event)
	})
	if err != nil {
		r.metrics.IncWebhook(provider, OutcomeFailed)
		return OutcomeFailed, fmt.Errorf("apply %s %s: %w", provider, signal, err)
	}

	r.metrics.IncWebhook(provider, outcome)
	if r.logg != nil {
		switch outcome {
		case OutcomeApplied:
			r.logg.Info(ctx, fmt.Sprintf("%s %s applied to order %s", provider, signal, orderNumber))
		case OutcomeIgnored:
			r.logg.Info(ctx, fmt.Sprintf("%s %s ignored for order %s: %s", provider, signal, orderNumber, reason))
		case OutcomeUnmatched:
			r.logg.Info(ctx, fmt.Sprintf("%s %s matched no order", provider, signal))
		}
	}
	return outcome, nil
}

// Skip records a delivery that carried nothing to apply.
func (r *Reconciler) Skip(ctx context.Context, provider, detail string) string {
	r.metrics.IncWebhook(provider, OutcomeIgnored)
	if r.logg != nil {
		r.logg.Debug(ctx, fmt.Sprintf("%s webhook skipped: %s", provider, detail))
	}
	return OutcomeIgnored
}

// Record counts a delivery decided before reaching the reconciler, such as a
// duplicate or a rejected signature.
func (r *Reconciler) Record(provider, outcome string) {
	r.metrics.IncWebhook(provider, outcome)
}
