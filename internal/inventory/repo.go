package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/echo-commerce-backend/internal/repo"
	"github.com/angelmondragon/echo-commerce-backend/pkg/db/models"
	"github.com/angelmondragon/echo-commerce-backend/pkg/enums"
)

// Repository reads and writes the inventory adjustment ledger.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func (r *Repository) AdjustmentsTx(tx *gorm.DB, orderID uuid.UUID, direction enums.InventoryDirection) ([]models.InventoryAdjustment, error) {
	var rows []models.InventoryAdjustment
	err := tx.Where("order_id = ? AND direction = ?", orderID, direction).
		Order("variant_id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *Repository) Adjustments(ctx context.Context, orderID uuid.UUID) ([]models.InventoryAdjustment, error) {
	var rows []models.InventoryAdjustment
	err := r.DB(ctx).Where("order_id = ?", orderID).
		Order("direction ASC").
		Order("variant_id ASC").
		Find(&rows).Error
	return rows, err
}

// InsertTx writes one ledger row. The (order, variant, direction) unique key
// rejects a second application of the same movement.
func (r *Repository) InsertTx(tx *gorm.DB, row *models.InventoryAdjustment) error {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	return tx.Create(row).Error
}

// ListUndecrementedOrders returns orders confirmed or paid between since and
// cutoff that still have tracked lines but no decrement in the ledger.
func (r *Repository) ListUndecrementedOrders(ctx context.Context, since, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 100
	}
	var ids []uuid.UUID
	err := r.DB(ctx).Model(&models.Order{}).
		Where("orders.status IN ?", []enums.OrderStatus{enums.OrderStatusConfirmed, enums.OrderStatusPaid}).
		Where("COALESCE(orders.confirmed_at, orders.paid_at) BETWEEN ? AND ?", since, cutoff).
		Where(`EXISTS (
			SELECT 1 FROM order_line_items li
			JOIN product_variants pv ON pv.id = li.variant_id
			WHERE li.order_id = orders.id AND pv.track_inventory = ?)`, true).
		Where(`NOT EXISTS (
			SELECT 1 FROM inventory_adjustments ia
			WHERE ia.order_id = orders.id AND ia.direction = ?)`, enums.InventoryDirectionDecrement).
		Order("orders.created_at ASC").
		Limit(limit).
		Pluck("orders.id", &ids).Error
	return ids, err
}
