package inventory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/echo-commerce-backend/internal/orders"
	"github.com/angelmondragon/echo-commerce-backend/pkg/db/models"
	"github.com/angelmondragon/echo-commerce-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/echo-commerce-backend/pkg/errors"
	"github.com/angelmondragon/echo-commerce-backend/pkg/logger"
	"github.com/angelmondragon/echo-commerce-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type orderLocker interface {
	LockTx(tx *gorm.DB, orderID uuid.UUID) (*models.Order, error)
}

type variantStore interface {
	LockVariantTx(tx *gorm.DB, variantID uuid.UUID) (*models.ProductVariant, error)
	SaveInventoryTx(tx *gorm.DB, variant *models.ProductVariant) error
}

type ledger interface {
	AdjustmentsTx(tx *gorm.DB, orderID uuid.UUID, direction enums.InventoryDirection) ([]models.InventoryAdjustment, error)
	InsertTx(tx *gorm.DB, row *models.InventoryAdjustment) error
	ListUndecrementedOrders(ctx context.Context, since, cutoff time.Time, limit int) ([]uuid.UUID, error)
}

type outboxEmitter interface {
	EmitIfNotPending(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) (bool, error)
}

// Line is the movement applied to one variant.
type Line struct {
	VariantID uuid.UUID
	Requested int
	Applied   int
	Quantity  int
	Available bool
}

// Result describes one Decrement or Increment call. Skipped results carry
// the reason and no lines.
type Result struct {
	OrderID   uuid.UUID
	Direction enums.InventoryDirection
	Skipped   bool
	Reason    string
	Lines     []Line
}

type AdjusterParams struct {
	Orders   orderLocker
	Variants variantStore
	Ledger   ledger
	Tx       txRunner
	Outbox   outboxEmitter
	Logger   *logger.Logger
	Now      func() time.Time
}

// Adjuster is the only writer of variant stock for orders. Each call runs in
// one transaction holding the order row lock, so it serializes with cancel.
type Adjuster struct {
	orders   orderLocker
	variants variantStore
	ledger   ledger
	tx       txRunner
	outbox   outboxEmitter
	logg     *logger.Logger
	now      func() time.Time
}

func NewAdjuster(params AdjusterParams) (*Adjuster, error) {
	switch {
	case params.Orders == nil:
		return nil, fmt.Errorf("order locker required")
	case params.Variants == nil:
		return nil, fmt.Errorf("variant store required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("inventory ledger required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Adjuster{
		orders:   params.Orders,
		variants: params.Variants,
		ledger:   params.Ledger,
		tx:       params.Tx,
		outbox:   params.Outbox,
		logg:     params.Logger,
		now:      now,
	}, nil
}

// Decrement removes the order's tracked quantities from stock, flooring at
// zero. Under a deny policy a variant that hits zero becomes unavailable.
// Cancelled, draft and already decremented orders are skipped.
func (a *Adjuster) Decrement(ctx context.Context, orderID uuid.UUID) (*Result, error) {
	result := &Result{OrderID: orderID, Direction: enums.InventoryDirectionDecrement}
	err := a.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := a.lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		switch {
		case order.Status == enums.OrderStatusCancelled:
			result.skip("order cancelled")
			return nil
		case !orders.InventoryCommitted(order.Status):
			result.skip("order not committed")
			return nil
		}
		existing, err := a.ledger.AdjustmentsTx(tx, orderID, enums.InventoryDirectionDecrement)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			result.skip("already decremented")
			return nil
		}

		for _, want := range requestedByVariant(order.Items) {
			variant, err := a.variants.LockVariantTx(tx, want.variantID)
			if err != nil {
				return fmt.Errorf("lock variant %s: %w", want.variantID, err)
			}
			if !variant.TrackInventory {
				continue
			}
			applied := want.quantity
			if variant.InventoryQuantity < applied {
				applied = max(variant.InventoryQuantity, 0)
			}
			variant.InventoryQuantity -= applied
			if variant.InventoryQuantity <= 0 && variant.InventoryPolicy == enums.InventoryPolicyDeny {
				variant.Available = false
			}
			if err := a.variants.SaveInventoryTx(tx, variant); err != nil {
				return err
			}
			if err := a.ledger.InsertTx(tx, &models.InventoryAdjustment{
				OrderID:   orderID,
				VariantID: variant.ID,
				Direction: enums.InventoryDirectionDecrement,
				Requested: want.quantity,
				Applied:   applied,
			}); err != nil {
				return err
			}
			result.Lines = append(result.Lines, Line{
				VariantID: variant.ID,
				Requested: want.quantity,
				Applied:   applied,
				Quantity:  variant.InventoryQuantity,
				Available: variant.Available,
			})
		}
		return nil
	})
	if err != nil {
		return nil, wrap(err, "decrement inventory")
	}
	a.logResult(ctx, result)
	return result, nil
}

// Increment reverses exactly what Decrement applied for a cancelled order and
// re-enables variants whose stock becomes positive.
func (a *Adjuster) Increment(ctx context.Context, orderID uuid.UUID) (*Result, error) {
	result := &Result{OrderID: orderID, Direction: enums.InventoryDirectionIncrement}
	err := a.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := a.lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		if order.Status != enums.OrderStatusCancelled {
			result.skip("order not cancelled")
			return nil
		}
		restored, err := a.ledger.AdjustmentsTx(tx, orderID, enums.InventoryDirectionIncrement)
		if err != nil {
			return err
		}
		if len(restored) > 0 {
			result.skip("already restored")
			return nil
		}
		decrements, err := a.ledger.AdjustmentsTx(tx, orderID, enums.InventoryDirectionDecrement)
		if err != nil {
			return err
		}
		if len(decrements) == 0 {
			result.skip("nothing decremented")
			return nil
		}

		for _, dec := range decrements {
			variant, err := a.variants.LockVariantTx(tx, dec.VariantID)
			if err != nil {
				return fmt.Errorf("lock variant %s: %w", dec.VariantID, err)
			}
			variant.InventoryQuantity += dec.Applied
			if variant.InventoryQuantity > 0 {
				variant.Available = true
			}
			if err := a.variants.SaveInventoryTx(tx, variant); err != nil {
				return err
			}
			if err := a.ledger.InsertTx(tx, &models.InventoryAdjustment{
				OrderID:   orderID,
				VariantID: variant.ID,
				Direction: enums.InventoryDirectionIncrement,
				Requested: dec.Applied,
				Applied:   dec.Applied,
			}); err != nil {
				return err
			}
			result.Lines = append(result.Lines, Line{
				VariantID: variant.ID,
				Requested: dec.Applied,
				Applied:   dec.Applied,
				Quantity:  variant.InventoryQuantity,
				Available: variant.Available,
			})
		}
		return nil
	})
	if err != nil {
		return nil, wrap(err, "restore inventory")
	}
	a.logResult(ctx, result)
	return result, nil
}

// QueueReconciliation emits an inventory reconcile task for every order
// committed within window but longer ago than grace that has not been
// decremented. Orders with a task still pending in the outbox are not queued
// twice. A failing order does not stop the sweep.
func (a *Adjuster) QueueReconciliation(ctx context.Context, grace, window time.Duration, limit int) (int, error) {
	if a.outbox == nil {
		return 0, fmt.Errorf("outbox publisher required")
	}
	now := a.now()
	ids, err := a.ledger.ListUndecrementedOrders(ctx, now.Add(-window), now.Add(-grace), limit)
	if err != nil {
		return 0, fmt.Errorf("list undecremented orders: %w", err)
	}

	queued := 0
	var errs error
	for _, id := range ids {
		err := a.tx.WithTx(ctx, func(tx *gorm.DB) error {
			order, err := a.orders.LockTx(tx, id)
			if err != nil || order == nil {
				return err
			}
			if !orders.InventoryCommitted(order.Status) {
				return nil
			}
			event := orders.LifecycleEvent(enums.EventOrderInventoryCheck, order, order.Status,
				orders.Actor{Role: orders.ActorSystem}, now)
			emitted, err := a.outbox.EmitIfNotPending(ctx, tx, event)
			if emitted {
				queued++
			}
			return err
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("queue reconcile for order %s: %w", id, err))
		}
	}
	return queued, errs
}

func (a *Adjuster) lockOrder(tx *gorm.DB, orderID uuid.UUID) (*models.Order, error) {
	order, err := a.orders.LockTx(tx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (a *Adjuster) logResult(ctx context.Context, result *Result) {
	if a.logg == nil {
		return
	}
	logCtx := a.logg.WithFields(ctx, map[string]any{
		"order_id":  result.OrderID.String(),
		"direction": result.Direction.String(),
	})
	if result.Skipped {
		a.logg.Info(logCtx, "inventory "+result.Direction.String()+" skipped: "+result.Reason)
		return
	}
	a.logg.Info(logCtx, fmt.Sprintf("inventory %s applied to %d variants", result.Direction, len(result.Lines)))
}

func (r *Result) skip(reason string) {
	r.Skipped = true
	r.Reason = reason
	r.Lines = nil
}

type variantDemand struct {
	variantID uuid.UUID
	quantity  int
}

// requestedByVariant sums line quantities per variant in a stable order so
// concurrent adjusters lock variant rows in the same sequence.
func requestedByVariant(items []models.OrderLineItem) []variantDemand {
	totals := map[uuid.UUID]int{}
	for _, item := range items {
		if item.VariantID == nil || item.Quantity <= 0 {
			continue
		}
		totals[*item.VariantID] += item.Quantity
	}
	out := make([]variantDemand, 0, len(totals))
	for id, qty := range totals {
		out = append(out, variantDemand{variantID: id, quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].variantID.String() < out[j].variantID.String()
	})
	return out
}

func wrap(err error, action string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, action)
}
