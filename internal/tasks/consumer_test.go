package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/echo-commerce-backend/internal/inventory"
	"github.com/angelmondragon/echo-commerce-backend/pkg/db/models"
	"github.com/angelmondragon/echo-commerce-backend/pkg/enums"
	"github.com/angelmondragon/echo-commerce-backend/pkg/logger"
	"github.com/angelmondragon/echo-commerce-backend/pkg/outbox"
	"github.com/angelmondragon/echo-commerce-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/echo-commerce-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/echo-commerce-backend/pkg/redis"
)

type fakeInventory struct {
	decrements int
	increments int
	err        error
}

func (f *fakeInventory) Decrement(_ context.Context, orderID uuid.UUID) (*inventory.Result, error) {
	f.decrements++
	if f.err != nil {
		return nil, f.err
	}
	return &inventory.Result{OrderID: orderID, Direction: enums.InventoryDirectionDecrement}, nil
}

func (f *fakeInventory) Increment(_ context.Context, orderID uuid.UUID) (*inventory.Result, error) {
	f.increments++
	if f.err != nil {
		return nil, f.err
	}
	return &inventory.Result{OrderID: orderID, Direction: enums.InventoryDirectionIncrement, Skipped: true, Reason: "nothing decremented"}, nil
}

type fakeSyncer struct {
	calls int
	err   error
}

func (f *fakeSyncer) Sync(context.Context, uuid.UUID, uuid.UUID) (string, error) {
	f.calls++
	return "created", f.err
}

type fakeMessenger struct {
	sent []string
	err  error
}

func (f *fakeMessenger) SendPaymentConfirmation(_ context.Context, order *models.Order) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, order.OrderNumber)
	return nil
}

type fakeOrders struct {
	order *models.Order
}

func (f *fakeOrders) FindByID(context.Context, uuid.UUID, uuid.UUID) (*models.Order, error) {
	return f.order, nil
}

type fakeExpirer struct {
	sessions []string
}

func (f *fakeExpirer) ExpireCheckoutSession(_ context.Context, sessionID string) error {
	f.sessions = append(f.sessions, sessionID)
	return nil
}

type consumerFixture struct {
	consumer  *Consumer
	inventory *fakeInventory
	syncer    *fakeSyncer
	messenger *fakeMessenger
	expirer   *fakeExpirer
	order     *models.Order
}

func newConsumerFixture(t *testing.T) *consumerFixture {
	t.Helper()
	srv := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	manager, err := idempotency.NewManager(redis.NewFromRaw(raw), time.Hour)
	require.NoError(t, err)

	sessionID := "cs_test_1"
	expires := time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)
	order := &models.Order{
		ID:                   uuid.New(),
		BusinessID:           uuid.New(),
		OrderNumber:          "ORD-ACM-000001",
		CheckoutSessionID:    &sessionID,
		PaymentLinkExpiresAt: &expires,
	}
	f := &consumerFixture{
		inventory: &fakeInventory{},
		syncer:    &fakeSyncer{},
		messenger: &fakeMessenger{},
		expirer:   &fakeExpirer{},
		order:     order,
	}
	f.consumer, err = NewConsumer(ConsumerParams{
		Idempotency: manager,
		Inventory:   f.inventory,
		Orders:      &fakeOrders{order: order},
		Marketplace: f.syncer,
		Messenger:   f.messenger,
		Checkout:    f.expirer,
		Logger:      logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	require.NoError(t, err)
	return f
}

func (f *consumerFixture) message(t *testing.T, eventID uuid.UUID, previous enums.OrderStatus) []byte {
	t.Helper()
	data, err := json.Marshal(payloads.OrderEvent{
		OrderID:        f.order.ID,
		BusinessID:     f.order.BusinessID,
		OrderNumber:    f.order.OrderNumber,
		PreviousStatus: previous,
		At:             time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	envelope, err := json.Marshal(outbox.PayloadEnvelope{Version: 1, EventID: eventID.String(), Data: data})
	require.NoError(t, err)
	return envelope
}

func TestOrderPaidRunsAllTasksOnce(t *testing.T) {
	f := newConsumerFixture(t)
	ctx := context.Background()
	eventID := uuid.New()
	data := f.message(t, eventID, enums.OrderStatusDraft)

	require.True(t, f.consumer.process(ctx, "m1", string(enums.EventOrderPaid), data))
	require.Equal(t, 1, f.inventory.decrements)
	require.Equal(t, 1, f.syncer.calls)
	require.Equal(t, []string{"ORD-ACM-000001"}, f.messenger.sent)

	require.True(t, f.consumer.process(ctx, "m2", string(enums.EventOrderPaid), data))
	require.Equal(t, 1, f.inventory.decrements)
	require.Len(t, f.messenger.sent, 1)
}

func TestInventoryFailureNacksAndReleasesKey(t *testing.T) {
	f := newConsumerFixture(t)
	ctx := context.Background()
	data := f.message(t, uuid.New(), enums.OrderStatusDraft)

	f.inventory.err = errors.New("db down")
	require.False(t, f.consumer.process(ctx, "m1", string(enums.EventOrderConfirmed), data))
	require.Equal(t, 0, f.syncer.calls)

	f.inventory.err = nil
	require.True(t, f.consumer.process(ctx, "m1", string(enums.EventOrderConfirmed), data))
	require.Equal(t, 2, f.inventory.decrements)
	require.Equal(t, 1, f.syncer.calls)
	require.Empty(t, f.messenger.sent)
}

func TestBackgroundFailuresAreAcked(t *testing.T) {
	f := newConsumerFixture(t)
	f.syncer.err = errors.New("shop unavailable")
	f.messenger.err = errors.New("topic unavailable")

	require.True(t, f.consumer.process(context.Background(), "m1", string(enums.EventOrderPaid), f.message(t, uuid.New(), enums.OrderStatusDraft)))
	require.Equal(t, 1, f.inventory.decrements)
}

func TestCancelledDraftRestoresInventoryAndExpiresCheckout(t *testing.T) {
	f := newConsumerFixture(t)
	ctx := context.Background()

	require.True(t, f.consumer.process(ctx, "m1", string(enums.EventOrderCancelled), f.message(t, uuid.New(), enums.OrderStatusDraft)))
	require.Equal(t, 1, f.inventory.increments)
	require.Equal(t, []string{"cs_test_1"}, f.expirer.sessions)

	require.True(t, f.consumer.process(ctx, "m2", string(enums.EventOrderCancelled), f.message(t, uuid.New(), enums.OrderStatusConfirmed)))
	require.Equal(t, 2, f.inventory.increments)
	require.Len(t, f.expirer.sessions, 1)
}

func TestCashConfirmationExpiresEarlierCheckout(t *testing.T) {
	f := newConsumerFixture(t)
	f.order.Status = enums.OrderStatusConfirmed
	f.order.PaymentLinkExpiresAt = nil

	require.True(t, f.consumer.process(context.Background(), "m1", string(enums.EventOrderConfirmed), f.message(t, uuid.New(), enums.OrderStatusDraft)))
	require.Equal(t, 1, f.inventory.decrements)
	require.Equal(t, 1, f.syncer.calls)
	require.Equal(t, []string{"cs_test_1"}, f.expirer.sessions)
}

func TestReconcileEventOnlyDecrements(t *testing.T) {
	f := newConsumerFixture(t)

	require.True(t, f.consumer.process(context.Background(), "m1", string(enums.EventOrderInventoryCheck), f.message(t, uuid.New(), "")))
	require.Equal(t, 1, f.inventory.decrements)
	require.Equal(t, 0, f.syncer.calls)
	require.Empty(t, f.messenger.sent)
}

func TestMalformedAndForeignMessagesAreAcked(t *testing.T) {
	f := newConsumerFixture(t)
	ctx := context.Background()

	require.True(t, f.consumer.process(ctx, "m1", string(enums.EventOrderPaid), []byte("not json")))
	require.True(t, f.consumer.process(ctx, "m2", string(enums.EventOrderPaid), []byte(`{"eventId":"nope","data":{}}`)))
	require.True(t, f.consumer.process(ctx, "m3", string(enums.EventOrderStatusChanged), f.message(t, uuid.New(), enums.OrderStatusPaid)))
	require.Equal(t, 0, f.inventory.decrements)
	require.Equal(t, 0, f.inventory.increments)
}
