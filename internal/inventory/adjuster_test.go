package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/echo-commerce-backend/internal/catalog"
	"github.com/angelmondragon/echo-commerce-backend/internal/orders"
	"github.com/angelmondragon/echo-commerce-backend/pkg/db"
	"github.com/angelmondragon/echo-commerce-backend/pkg/db/dbtest"
	"github.com/angelmondragon/echo-commerce-backend/pkg/db/models"
	"github.com/angelmondragon/echo-commerce-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/echo-commerce-backend/pkg/errors"
	"github.com/angelmondragon/echo-commerce-backend/pkg/outbox"
)

type fixture struct {
	conn     *gorm.DB
	adjuster *Adjuster
	ledger   *Repository
	business models.Business
	product  models.Product
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	business := dbtest.SeedBusiness(t, conn, "Acme Tacos", 0)
	product := dbtest.SeedProduct(t, conn, business.ID, "Taco box", 500, nil)
	ledger := NewRepository(conn)

	adjuster, err := NewAdjuster(AdjusterParams{
		Orders:   orders.NewRepository(conn),
		Variants: catalog.NewRepository(conn),
		Ledger:   ledger,
		Tx:       db.NewFromConn(conn),
		Outbox:   outbox.NewService(outbox.NewRepository(conn), nil),
		Now:      func() time.Time { return now },
	})
	require.NoError(t, err)
	return &fixture{conn: conn, adjuster: adjuster, ledger: ledger, business: business, product: product}
}

func (f *fixture) variant(t *testing.T, id uuid.UUID) models.ProductVariant {
	t.Helper()
	var v models.ProductVariant
	require.NoError(t, f.conn.First(&v, "id = ?", id).Error)
	return v
}

func (f *fixture) setStatus(t *testing.T, order models.Order, status enums.OrderStatus) {
	t.Helper()
	require.NoError(t, f.conn.Model(&models.Order{}).Where("id = ?", order.ID).Update("status", status).Error)
}

func TestDecrementThenIncrementRestoresStock(t *testing.T) {
	f := newFixture(t, time.Now())
	ctx := context.Background()
	large := dbtest.SeedVariant(t, f.conn, f.product.ID, "Large", 10, enums.InventoryPolicyDeny)
	small := dbtest.SeedVariant(t, f.conn, f.product.ID, "Small", 1, enums.InventoryPolicyDeny)

	order := dbtest.SeedOrder(t, f.conn, f.business, "ORD-ACM-000001", enums.OrderStatusConfirmed,
		dbtest.Line(f.product, &large, 2),
		dbtest.Line(f.product, &small, 3),
	)

	dec, err := f.adjuster.Decrement(ctx, order.ID)
	require.NoError(t, err)
	require.False(t, dec.Skipped)
	require.Len(t, dec.Lines, 2)

	require.Equal(t, 8, f.variant(t, large.ID).InventoryQuantity)
	drained := f.variant(t, small.ID)
	require.Equal(t, 0, drained.InventoryQuantity)
	require.False(t, drained.Available)

	f.setStatus(t, order, enums.OrderStatusCancelled)
	inc, err := f.adjuster.Increment(ctx, order.ID)
	require.NoError(t, err)
	require.False(t, inc.Skipped)

	restoredLarge := f.variant(t, large.ID)
	restoredSmall := f.variant(t, small.ID)
	require.Equal(t, 10, restoredLarge.InventoryQuantity)
	require.Equal(t, 1, restoredSmall.InventoryQuantity)
	require.True(t, restoredSmall.Available)

	rows, err := f.ledger.Adjustments(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	for _, row := range rows {
		if row.VariantID != small.ID {
			continue
		}
		require.Equal(t, 1, row.Applied)
		if row.Direction == enums.InventoryDirectionDecrement {
			require.Equal(t, 3, row.Requested)
		}
	}

	again, err := f.adjuster.Increment(ctx, order.ID)
	require.NoError(t, err)
	require.True(t, again.Skipped)
	require.Equal(t, 10, f.variant(t, large.ID).InventoryQuantity)
}

func TestDecrementIsAppliedOnce(t *testing.T) {
	f := newFixture(t, time.Now())
	ctx := context.Background()
	large := dbtest.SeedVariant(t, f.conn, f.product.ID, "Large", 10, enums.InventoryPolicyDeny)
	order := dbtest.SeedOrder(t, f.conn, f.business, "ORD-ACM-000001", enums.OrderStatusPaid, dbtest.Line(f.product, &large, 2))

	_, err := f.adjuster.Decrement(ctx, order.ID)
	require.NoError(t, err)
	again, err := f.adjuster.Decrement(ctx, order.ID)
	require.NoError(t, err)
	require.True(t, again.Skipped)
	require.Equal(t, "already decremented", again.Reason)
	require.Equal(t, 8, f.variant(t, large.ID).InventoryQuantity)
}

func TestDecrementSkipsCancelledAndDraftOrders(t *testing.T) {
	f := newFixture(t, time.Now())
	ctx := context.Background()
	large := dbtest.SeedVariant(t, f.conn, f.product.ID, "Large", 10, enums.InventoryPolicyDeny)

	cancelled := dbtest.SeedOrder(t, f.conn, f.business, "ORD-ACM-000001", enums.OrderStatusCancelled, dbtest.Line(f.product, &large, 2))
	res, err := f.adjuster.Decrement(ctx, cancelled.ID)
	require.NoError(t, err)
	require.True(t, res.Skipped)

	draft := dbtest.SeedOrder(t, f.conn, f.business, "ORD-ACM-000002", enums.OrderStatusDraft, dbtest.Line(f.product, &large, 2))
	res, err = f.adjuster.Decrement(ctx, draft.ID)
	require.NoError(t, err)
	require.True(t, res.Skipped)

	require.Equal(t, 10, f.variant(t, large.ID).InventoryQuantity)

	inc, err := f.adjuster.Increment(ctx, cancelled.ID)
	require.NoError(t, err)
	require.True(t, inc.Skipped)
	require.Equal(t, "nothing decremented", inc.Reason)
	require.Equal(t, 10, f.variant(t, large.ID).InventoryQuantity)
}

func TestDecrementHonoursPolicyAndTracking(t *testing.T) {
	f := newFixture(t, time.Now())
	ctx := context.Background()
	oversell := dbtest.SeedVariant(t, f.conn, f.product.ID, "Backorder", 1, enums.InventoryPolicyContinue)
	untracked := dbtest.SeedVariant(t, f.conn, f.product.ID, "Untracked", 5, enums.InventoryPolicyDeny)
	require.NoError(t, f.conn.Model(&models.ProductVariant{}).Where("id = ?", untracked.ID).Update("track_inventory", false).Error)

	order := dbtest.SeedOrder(t, f.conn, f.business, "ORD-ACM-000001", enums.OrderStatusConfirmed,
		dbtest.Line(f.product, &oversell, 4),
		dbtest.Line(f.product, &untracked, 2),
		dbtest.Line(f.product, nil, 1),
	)
	res, err := f.adjuster.Decrement(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, res.Lines, 1)
	require.Equal(t, 4, res.Lines[0].Requested)
	require.Equal(t, 1, res.Lines[0].Applied)

	backorder := f.variant(t, oversell.ID)
	require.Equal(t, 0, backorder.InventoryQuantity)
	require.True(t, backorder.Available)
	require.Equal(t, 5, f.variant(t, untracked.ID).InventoryQuantity)
}

func TestIncrementRequiresCancelledOrder(t *testing.T) {
	f := newFixture(t, time.Now())
	large := dbtest.SeedVariant(t, f.conn, f.product.ID, "Large", 10, enums.InventoryPolicyDeny)
	order := dbtest.SeedOrder(t, f.conn, f.business, "ORD-ACM-000001", enums.OrderStatusConfirmed, dbtest.Line(f.product, &large, 2))

	res, err := f.adjuster.Increment(context.Background(), order.ID)
	require.NoError(t, err)
	require.True(t, res.Skipped)

	_, err = f.adjuster.Decrement(context.Background(), uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestQueueReconciliationFindsMissedDecrements(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, now)
	ctx := context.Background()
	large := dbtest.SeedVariant(t, f.conn, f.product.ID, "Large", 10, enums.InventoryPolicyDeny)

	stale := dbtest.SeedOrder(t, f.conn, f.business, "ORD-ACM-000001", enums.OrderStatusConfirmed, dbtest.Line(f.product, &large, 1))
	fresh := dbtest.SeedOrder(t, f.conn, f.business, "ORD-ACM-000002", enums.OrderStatusPaid, dbtest.Line(f.product, &large, 1))
	done := dbtest.SeedOrder(t, f.conn, f.business, "ORD-ACM-000003", enums.OrderStatusConfirmed, dbtest.Line(f.product, &large, 1))
	untracked := dbtest.SeedOrder(t, f.conn, f.business, "ORD-ACM-000004", enums.OrderStatusConfirmed, dbtest.Line(f.product, nil, 1))

	old := now.Add(-time.Hour)
	for _, id := range []uuid.UUID{stale.ID, done.ID, untracked.ID} {
		require.NoError(t, f.conn.Model(&models.Order{}).Where("id = ?", id).Update("confirmed_at", old).Error)
	}
	require.NoError(t, f.conn.Model(&models.Order{}).Where("id = ?", fresh.ID).Update("paid_at", now.Add(-time.Minute)).Error)
	_, err := f.adjuster.Decrement(ctx, done.ID)
	require.NoError(t, err)

	queued, err := f.adjuster.QueueReconciliation(ctx, 15*time.Minute, 72*time.Hour, 50)
	require.NoError(t, err)
	require.Equal(t, 1, queued)

	var events []models.OutboxEvent
	require.NoError(t, f.conn.Where("event_type = ?", enums.EventOrderInventoryCheck).Find(&events).Error)
	require.Len(t, events, 1)
	require.Equal(t, stale.ID, events[0].AggregateID)

	queued, err = f.adjuster.QueueReconciliation(ctx, 15*time.Minute, 72*time.Hour, 50)
	require.NoError(t, err)
	require.Zero(t, queued)
}

func TestRequestedByVariantSumsLines(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	out := requestedByVariant([]models.OrderLineItem{
		{VariantID: &a, Quantity: 2},
		{VariantID: &b, Quantity: 1},
		{VariantID: &a, Quantity: 3},
		{Quantity: 7},
	})
	require.Len(t, out, 2)
	totals := map[uuid.UUID]int{}
	for _, d := range out {
		totals[d.variantID] = d.quantity
	}
	require.Equal(t, 5, totals[a])
	require.Equal(t, 1, totals[b])
}
