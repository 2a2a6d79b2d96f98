package payments

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/echo-commerce-backend/internal/orders"
	"github.com/angelmondragon/echo-commerce-backend/pkg/db"
	"github.com/angelmondragon/echo-commerce-backend/pkg/db/dbtest"
	"github.com/angelmondragon/echo-commerce-backend/pkg/db/models"
	"github.com/angelmondragon/echo-commerce-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/echo-commerce-backend/pkg/errors"
	"github.com/angelmondragon/echo-commerce-backend/pkg/redis"
)

type stubConfirmer struct {
	cashCalls int
	cardCalls int
}

func (s *stubConfirmer) ConfirmCash(_ context.Context, _, orderID uuid.UUID, _ orders.Actor) (*models.Order, error) {
	s.cashCalls++
	return &models.Order{ID: orderID, Status: enums.OrderStatusConfirmed}, nil
}

func (s *stubConfirmer) SelectCard(_ context.Context, _, orderID uuid.UUID) (*models.Order, error) {
	s.cardCalls++
	return &models.Order{ID: orderID, Status: enums.OrderStatusDraft}, nil
}

type linkFixture struct {
	conn      *gorm.DB
	svc       *Service
	business  models.Business
	order     models.Order
	checkout  *fakeCheckout
	drafts    *fakeDrafts
	confirmer *stubConfirmer
	clock     *time.Time
}

func newLinkFixture(t *testing.T, marketplace bool, limit int) *linkFixture {
	t.Helper()
	conn := dbtest.Open(t)
	business := dbtest.SeedBusiness(t, conn, "Acme Tacos", 0)
	product := dbtest.SeedProduct(t, conn, business.ID, "Taco box", 500, strPtr("42"))
	order := dbtest.SeedOrder(t, conn, business, "ORD-ACM-000001", enums.OrderStatusDraft, dbtest.Line(product, nil, 2))

	srv := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = raw.Close() })

	clock := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }

	checkout := &fakeCheckout{}
	hosted := NewHostedCheckout(checkout, 24*time.Hour)
	hosted.now = now
	drafts := &fakeDrafts{}
	connections := fakeConnections{}
	if marketplace {
		connections = connected()
	}
	market := NewMarketplace(connections, clientsFor(drafts), 24*time.Hour)
	market.now = now

	confirmer := &stubConfirmer{}
	svc, err := NewService(ServiceParams{
		Orders:       orders.NewRepository(conn),
		Confirmer:    confirmer,
		Orchestrator: NewOrchestrator(market, hosted, nil),
		Tx:           db.NewFromConn(conn),
		Limiter:      redis.NewFromRaw(raw),
		Checkout:     checkout,
		LinkLimit:    limit,
		Now:          now,
	})
	require.NoError(t, err)
	return &linkFixture{conn: conn, svc: svc, business: business, order: order, checkout: checkout, drafts: drafts, confirmer: confirmer, clock: &clock}
}

func (f *linkFixture) reload(t *testing.T) models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, f.conn.First(&order, "id = ?", f.order.ID).Error)
	return order
}

func TestGeneratePaymentLinkPersistsHostedCheckout(t *testing.T) {
	f := newLinkFixture(t, false, 10)

	result, err := f.svc.GeneratePaymentLink(context.Background(), f.business.ID, f.order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.PaymentProviderStripe, result.Provider)
	require.NotEmpty(t, result.URL)
	require.Empty(t, result.SkippedItems)

	stored := f.reload(t)
	require.Equal(t, enums.OrderStatusDraft, stored.Status)
	require.Equal(t, "cs_test_ORD-ACM-000001", *stored.CheckoutSessionID)
	require.Equal(t, enums.PaymentMethodCard, *stored.PaymentMethod)
	require.Equal(t, enums.PaymentProviderStripe, *stored.PaymentProvider)
	require.Nil(t, stored.MarketplaceDraftID)
	require.True(t, stored.HasActivePaymentLink(*f.clock))
}

func TestGeneratePaymentLinkRefusesSecondActiveLink(t *testing.T) {
	f := newLinkFixture(t, false, 10)
	ctx := context.Background()

	_, err := f.svc.GeneratePaymentLink(ctx, f.business.ID, f.order.ID)
	require.NoError(t, err)
	_, err = f.svc.GeneratePaymentLink(ctx, f.business.ID, f.order.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	require.Equal(t, 1, f.checkout.calls)

	*f.clock = f.clock.Add(25 * time.Hour)
	_, err = f.svc.GeneratePaymentLink(ctx, f.business.ID, f.order.ID)
	require.NoError(t, err)
	require.Equal(t, 2, f.checkout.calls)
}

func TestGeneratePaymentLinkExpiresSessionWhenOrderChangedMeanwhile(t *testing.T) {
	f := newLinkFixture(t, false, 10)
	f.checkout.onCreate = func() {
		require.NoError(t, f.conn.Model(&models.Order{}).Where("id = ?", f.order.ID).
			Update("status", enums.OrderStatusCancelled).Error)
	}

	_, err := f.svc.GeneratePaymentLink(context.Background(), f.business.ID, f.order.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	require.Equal(t, []string{"cs_test_ORD-ACM-000001"}, f.checkout.expired)
	require.Nil(t, f.reload(t).CheckoutSessionID)
}

func TestGeneratePaymentLinkUsesMarketplaceWhenConnected(t *testing.T) {
	f := newLinkFixture(t, true, 10)

	result, err := f.svc.GeneratePaymentLink(context.Background(), f.business.ID, f.order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.PaymentProviderShopify, result.Provider)
	require.Equal(t, "https://acme.myshopify.com/invoices/abc", result.URL)

	stored := f.reload(t)
	require.Equal(t, "9001", *stored.MarketplaceDraftID)
	require.Equal(t, "#D12", *stored.MarketplaceOrderName)
	require.Nil(t, stored.CheckoutSessionID)
	require.Zero(t, f.checkout.calls)
}

func TestGeneratePaymentLinkFallsBackWhenMarketplaceFails(t *testing.T) {
	f := newLinkFixture(t, true, 10)
	f.drafts.err = pkgerrors.New(pkgerrors.CodeDependency, "shopify unavailable")

	result, err := f.svc.GeneratePaymentLink(context.Background(), f.business.ID, f.order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.PaymentProviderStripe, result.Provider)
	require.NotEmpty(t, result.FallbackReason)
	require.Equal(t, 1, f.drafts.calls)
}

func TestGeneratePaymentLinkRequiresDraft(t *testing.T) {
	f := newLinkFixture(t, false, 10)
	require.NoError(t, f.conn.Model(&models.Order{}).Where("id = ?", f.order.ID).Update("status", enums.OrderStatusPaid).Error)

	_, err := f.svc.GeneratePaymentLink(context.Background(), f.business.ID, f.order.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	require.Zero(t, f.checkout.calls)

	_, err = f.svc.GeneratePaymentLink(context.Background(), uuid.New(), f.order.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestGeneratePaymentLinkRateLimited(t *testing.T) {
	f := newLinkFixture(t, false, 1)
	ctx := context.Background()

	_, err := f.svc.GeneratePaymentLink(ctx, f.business.ID, f.order.ID)
	require.NoError(t, err)
	_, err = f.svc.GeneratePaymentLink(ctx, f.business.ID, f.order.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeRateLimit))
}

func TestSetPaymentMethod(t *testing.T) {
	f := newLinkFixture(t, false, 10)
	ctx := context.Background()

	order, err := f.svc.SetPaymentMethod(ctx, f.business.ID, f.order.ID, enums.PaymentMethodCash, orders.Actor{Role: orders.ActorStaff})
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusConfirmed, order.Status)
	require.Equal(t, 1, f.confirmer.cashCalls)

	_, err = f.svc.SetPaymentMethod(ctx, f.business.ID, f.order.ID, enums.PaymentMethodCard, orders.Actor{})
	require.NoError(t, err)
	require.Equal(t, 1, f.confirmer.cardCalls)

	_, err = f.svc.SetPaymentMethod(ctx, f.business.ID, f.order.ID, enums.PaymentMethod("crypto"), orders.Actor{})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
