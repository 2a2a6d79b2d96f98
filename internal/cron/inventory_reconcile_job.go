package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/echo-commerce-backend/pkg/logger"
)

const (
	defaultReconcileGrace  = 15 * time.Minute
	defaultReconcileWindow = 72 * time.Hour
	defaultReconcileLimit  = 200
)

type reconciliationQueuer interface {
	QueueReconciliation(ctx context.Context, grace, window time.Duration, limit int) (int, error)
}

// InventoryReconcileJobParams configure the missed-decrement sweep.
type InventoryReconcileJobParams struct {
	Logger    *logger.Logger
	Inventory reconciliationQueuer
	Grace     time.Duration
	Window    time.Duration
	Limit     int
}

// NewInventoryReconcileJob builds the job that re-queues inventory decrements
// for committed orders whose task never ran.
func NewInventoryReconcileJob(params InventoryReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory adjuster required")
	}
	grace := params.Grace
	if grace <= 0 {
		grace = defaultReconcileGrace
	}
	window := params.Window
	if window <= grace {
		window = defaultReconcileWindow
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultReconcileLimit
	}
	return &inventoryReconcileJob{
		logg:      params.Logger,
		inventory: params.Inventory,
		grace:     grace,
		window:    window,
		limit:     limit,
	}, nil
}

type inventoryReconcileJob struct {
	logg      *logger.Logger
	inventory reconciliationQueuer
	grace     time.Duration
	window    time.Duration
	limit     int
}

func (j *inventoryReconcileJob) Name() string { return "inventory-reconcile" }

func (j *inventoryReconcileJob) Run(ctx context.Context) error {
	queued, err := j.inventory.QueueReconciliation(ctx, j.grace, j.window, j.limit)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"grace":  j.grace.String(),
		"window": j.window.String(),
		"queued": queued,
	})
	if err != nil {
		return fmt.Errorf("inventory reconcile: %w", err)
	}
	if queued > 0 {
		j.logg.Warn(logCtx, "queued inventory decrements for orders that missed them")
		return nil
	}
	j.logg.Info(logCtx, "inventory reconcile found nothing to queue")
	return nil
}
