package analytics

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

	"github.com/angelmondragon/echo-commerce-backend/pkg/enums"
	"github.com/angelmondragon/echo-commerce-backend/pkg/logger"
	"github.com/angelmondragon/echo-commerce-backend/pkg/outbox"
	"github.com/angelmondragon/echo-commerce-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/echo-commerce-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/echo-commerce-backend/pkg/redis"
)

type fakeRowWriter struct {
	rows []*OrderEventRow
	err  error
}

func (f *fakeRowWriter) Insert(_ context.Context, row *OrderEventRow) error {
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, row)
	return nil
}

func newTestConsumer(t *testing.T) (*Consumer, *fakeRowWriter) {
	t.Helper()
	srv := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	manager, err := idempotency.NewManager(redis.NewFromRaw(raw), time.Hour)
	require.NoError(t, err)

	writer := &fakeRowWriter{}
	consumer, err := NewConsumer(nil, writer, manager, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	require.NoError(t, err)
	return consumer, writer
}

func orderEnvelope(t *testing.T, eventID uuid.UUID, event payloads.OrderEvent) []byte {
	t.Helper()
	data, err := json.Marshal(event)
	require.NoError(t, err)
	body, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID.String(),
		OccurredAt: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
		Data:       data,
	})
	require.NoError(t, err)
	return body
}

func attrs(eventType enums.OutboxEventType) map[string]string {
	return map[string]string{"event_type": string(eventType)}
}

func TestConsumerRecordsPaidOrderOnce(t *testing.T) {
	consumer, writer := newTestConsumer(t)
	ctx := context.Background()
	provider := enums.PaymentProviderStripe
	event := payloads.OrderEvent{
		OrderID:         uuid.New(),
		BusinessID:      uuid.New(),
		OrderNumber:     "ORD-ACM-000007",
		Status:          enums.OrderStatusPaid,
		PreviousStatus:  enums.OrderStatusDraft,
		PaymentStatus:   enums.PaymentStatusPaid,
		PaymentProvider: &provider,
		TotalCents:      2350,
		Currency:        enums.CurrencyUSD,
	}
	body := orderEnvelope(t, uuid.New(), event)

	require.True(t, consumer.process(ctx, "m1", attrs(enums.EventOrderPaid), body))
	require.True(t, consumer.process(ctx, "m2", attrs(enums.EventOrderPaid), body))
	require.Len(t, writer.rows, 1)

	row := writer.rows[0]
	require.Equal(t, "order_paid", row.EventType)
	require.Equal(t, event.OrderID.String(), row.OrderID)
	require.Equal(t, "ORD-ACM-000007", row.OrderNumber)
	require.Equal(t, "paid", row.Status)
	require.Equal(t, "draft", *row.PreviousStatus)
	require.Equal(t, "stripe", *row.PaymentProvider)
	require.Equal(t, int64(2350), row.TotalCents)
	require.Equal(t, time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC), row.OccurredAt)
}

func TestConsumerNacksAndReleasesOnInsertFailure(t *testing.T) {
	consumer, writer := newTestConsumer(t)
	ctx := context.Background()
	body := orderEnvelope(t, uuid.New(), payloads.OrderEvent{OrderID: uuid.New(), Status: enums.OrderStatusCancelled})

	writer.err = errors.New("bigquery unavailable")
	require.False(t, consumer.process(ctx, "m1", attrs(enums.EventOrderCancelled), body))

	writer.err = nil
	require.True(t, consumer.process(ctx, "m1", attrs(enums.EventOrderCancelled), body))
	require.Len(t, writer.rows, 1)
	require.Nil(t, writer.rows[0].PaymentProvider)
}

func TestConsumerAcksUndecodableMessages(t *testing.T) {
	consumer, writer := newTestConsumer(t)
	ctx := context.Background()
	valid := orderEnvelope(t, uuid.New(), payloads.OrderEvent{OrderID: uuid.New()})

	require.True(t, consumer.process(ctx, "m1", attrs(enums.EventOrderPaid), []byte("{")))
	require.True(t, consumer.process(ctx, "m2", attrs("order_created"), valid))
	require.True(t, consumer.process(ctx, "m3", attrs(enums.EventOrderPaid), []byte(`{"eventId":"not-a-uuid","data":{}}`)))
	require.Empty(t, writer.rows)
}

func TestConsumerFallsBackToAttributes(t *testing.T) {
	consumer, writer := newTestConsumer(t)
	eventID := uuid.New()
	data, err := json.Marshal(payloads.OrderEvent{OrderID: uuid.New(), Status: enums.OrderStatusReady})
	require.NoError(t, err)
	body, err := json.Marshal(outbox.PayloadEnvelope{Version: 1, Data: data})
	require.NoError(t, err)

	created := time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)
	require.True(t, consumer.process(context.Background(), "m1", map[string]string{
		"event_type": string(enums.EventOrderStatusChanged),
		"event_id":   eventID.String(),
		"created_at": created.Format(time.RFC3339Nano),
	}, body))
	require.Len(t, writer.rows, 1)
	require.Equal(t, eventID.String(), writer.rows[0].EventID)
	require.Equal(t, created, writer.rows[0].OccurredAt)
}

func TestConsumerNacksWhileAnotherDeliveryHoldsTheClaim(t *testing.T) {
	consumer, writer := newTestConsumer(t)
	ctx := context.Background()
	eventID := uuid.New()
	body := orderEnvelope(t, eventID, payloads.OrderEvent{OrderID: uuid.New(), Status: enums.OrderStatusPaid})

	outcome, err := consumer.manager.Claim(ctx, consumerName, eventID)
	require.NoError(t, err)
	require.Equal(t, idempotency.Claimed, outcome)

	require.False(t, consumer.process(ctx, "m2", attrs(enums.EventOrderPaid), body))
	require.Empty(t, writer.rows)
}
