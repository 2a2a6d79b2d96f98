package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/echo-commerce-backend/internal/repo"
	"github.com/angelmondragon/echo-commerce-backend/pkg/db/models"
	"github.com/angelmondragon/echo-commerce-backend/pkg/enums"
	"github.com/angelmondragon/echo-commerce-backend/pkg/pagination"
)

// Constraint guarding order numbers; collisions trigger one retry.
const orderNumberConstraint = "orders_business_number_key"

type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// ListFilters narrows business order listings.
type ListFilters struct {
	Status *enums.OrderStatus
}

// OrderList is one page of orders, newest first.
type OrderList struct {
	Orders     []models.Order
	NextCursor string
}

func withItems(db *gorm.DB) *gorm.DB {
	return db.Preload("Items", func(q *gorm.DB) *gorm.DB {
		return q.Order("position ASC").Order("created_at ASC")
	})
}

func (r *Repository) CreateTx(tx *gorm.DB, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	for i := range order.Items {
		if order.Items[i].ID == uuid.Nil {
			order.Items[i].ID = uuid.New()
		}
		order.Items[i].OrderID = order.ID
	}
	return tx.Create(order).Error
}

// FindByID returns the order with items when it belongs to the business.
func (r *Repository) FindByID(ctx context.Context, businessID, orderID uuid.UUID) (*models.Order, error) {
	return repo.FirstOrNil[models.Order](withItems(r.DB(ctx)).
		Where("id = ? AND business_id = ?", orderID, businessID))
}

func (r *Repository) FindByNumber(ctx context.Context, businessID uuid.UUID, number string) (*models.Order, error) {
	return repo.FirstOrNil[models.Order](withItems(r.DB(ctx)).
		Where("business_id = ? AND order_number = ?", businessID, number))
}

func (r *Repository) ListByConversation(ctx context.Context, businessID, conversationID uuid.UUID) ([]models.Order, error) {
	var orders []models.Order
	err := withItems(r.DB(ctx)).
		Where("business_id = ? AND conversation_id = ?", businessID, conversationID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&orders).Error
	return orders, err
}

func (r *Repository) List(ctx context.Context, businessID uuid.UUID, params pagination.Params, filters ListFilters) (*OrderList, error) {
	page, err := pagination.Scope(params)
	if err != nil {
		return nil, err
	}

	q := withItems(r.DB(ctx)).Where("business_id = ?", businessID)
	if filters.Status != nil {
		q = q.Where("status = ?", *filters.Status)
	}

	var rows []models.Order
	if err := q.Scopes(page).Find(&rows).Error; err != nil {
		return nil, err
	}

	list := &OrderList{}
	list.Orders, list.NextCursor = pagination.Trim(rows, params, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return list, nil
}

// LockTx loads the order row FOR UPDATE; all state transitions go through it.
func (r *Repository) LockTx(tx *gorm.DB, orderID uuid.UUID) (*models.Order, error) {
	return r.lockWhere(tx, "id = ?", orderID)
}

func (r *Repository) LockByCheckoutSessionTx(tx *gorm.DB, sessionID string) (*models.Order, error) {
	return r.lockWhere(tx, "checkout_session_id = ?", sessionID)
}

func (r *Repository) LockByMarketplaceDraftTx(tx *gorm.DB, draftID string) (*models.Order, error) {
	return r.lockWhere(tx, "marketplace_draft_order_id = ?", draftID)
}

func (r *Repository) LockByMarketplaceOrderTx(tx *gorm.DB, marketplaceOrderID string) (*models.Order, error) {
	return r.lockWhere(tx, "marketplace_order_id = ?", marketplaceOrderID)
}

func (r *Repository) LockByNumberTx(tx *gorm.DB, businessID uuid.UUID, number string) (*models.Order, error) {
	return r.lockWhere(tx, "business_id = ? AND order_number = ?", businessID, number)
}

func (r *Repository) lockWhere(tx *gorm.DB, query string, args ...any) (*models.Order, error) {
	return repo.FirstOrNil[models.Order](withItems(repo.ForUpdate(tx)).Where(query, args...))
}

// UpdateTx patches order columns; updated_at is always bumped.
func (r *Repository) UpdateTx(tx *gorm.DB, order *models.Order, columns ...string) error {
	if len(columns) == 0 {
		return nil
	}
	return tx.Model(order).Select(append(columns, "updated_at")).Omit(clause.Associations).Updates(order).Error
}

// SaveTotalsTx writes the derived money columns.
func (r *Repository) SaveTotalsTx(tx *gorm.DB, order *models.Order) error {
	return r.UpdateTx(tx, order, "subtotal_cents", "delivery_fee_cents", "total_cents")
}

func (r *Repository) CreateItemTx(tx *gorm.DB, item *models.OrderLineItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	return tx.Create(item).Error
}

func (r *Repository) UpdateItemQuantityTx(tx *gorm.DB, item *models.OrderLineItem) error {
	return tx.Model(item).Select("quantity", "total_cents", "updated_at").Updates(item).Error
}

func (r *Repository) DeleteItemTx(tx *gorm.DB, orderID, itemID uuid.UUID) error {
	return tx.Where("id = ? AND order_id = ?", itemID, orderID).Delete(&models.OrderLineItem{}).Error
}

// SequenceFloor returns the highest sequence used for prefix, from the
// counter table or, failing that, the newest matching order number.
func (r *Repository) SequenceFloor(ctx context.Context, businessID uuid.UUID, prefix string) (int64, error) {
	var counter models.OrderNumberCounter
	err := r.DB(ctx).
		Where("business_id = ? AND prefix = ?", businessID, prefix).
		First(&counter).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}
	floor := counter.LastSeq

	var numbers []string
	err = r.DB(ctx).Model(&models.Order{}).
		Where("business_id = ? AND order_number LIKE ?", businessID, fmt.Sprintf("ORD-%s-%%", prefix)).
		Order("LENGTH(order_number) DESC").
		Order("order_number DESC").
		Limit(1).
		Pluck("order_number", &numbers).Error
	if err != nil {
		return 0, err
	}
	if len(numbers) > 0 {
		if _, seq, ok := ParseNumber(numbers[0]); ok && seq > floor {
			floor = seq
		}
	}
	return floor, nil
}

// RecordSequenceTx raises the durable counter to seq; it never lowers it.
func (r *Repository) RecordSequenceTx(tx *gorm.DB, businessID uuid.UUID, prefix string, seq int64) error {
	counter := models.OrderNumberCounter{BusinessID: businessID, Prefix: prefix, LastSeq: seq}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "business_id"}, {Name: "prefix"}},
		DoUpdates: clause.Assignments(map[string]any{
			"last_seq":   gorm.Expr("CASE WHEN order_number_counters.last_seq < excluded.last_seq THEN excluded.last_seq ELSE order_number_counters.last_seq END"),
			"updated_at": gorm.Expr("excluded.updated_at"),
		}),
	}).Create(&counter).Error
}
