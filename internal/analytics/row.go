// Package analytics records order lifecycle facts in BigQuery.
package analytics

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/echo-commerce-backend/pkg/enums"
	"github.com/angelmondragon/echo-commerce-backend/pkg/outbox"
	"github.com/angelmondragon/echo-commerce-backend/pkg/outbox/payloads"
)

// OrderEventRow is one row of the order events table.
type OrderEventRow struct {
	EventID         string    `bigquery:"event_id"`
	EventType       string    `bigquery:"event_type"`
	OrderID         string    `bigquery:"order_id"`
	BusinessID      string    `bigquery:"business_id"`
	OrderNumber     string    `bigquery:"order_number"`
	Status          string    `bigquery:"status"`
	PreviousStatus  *string   `bigquery:"previous_status"`
	PaymentStatus   string    `bigquery:"payment_status"`
	PaymentProvider *string   `bigquery:"payment_provider"`
	TotalCents      int64     `bigquery:"total_cents"`
	Currency        string    `bigquery:"currency"`
	Reason          *string   `bigquery:"reason"`
	OccurredAt      time.Time `bigquery:"occurred_at"`
}

// BuildOrderEventRow flattens an order event envelope. The envelope's
// occurred-at wins over the payload timestamp when both are set.
func BuildOrderEventRow(eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) (*OrderEventRow, error) {
	if envelope.EventID == "" {
		return nil, errors.New("event id missing")
	}
	var payload payloads.OrderEvent
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		return nil, fmt.Errorf("decode order event: %w", err)
	}

	occurredAt := envelope.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = payload.At
	}

	row := &OrderEventRow{
		EventID:       envelope.EventID,
		EventType:     string(eventType),
		OrderID:       payload.OrderID.String(),
		BusinessID:    payload.BusinessID.String(),
		OrderNumber:   payload.OrderNumber,
		Status:        string(payload.Status),
		PaymentStatus: string(payload.PaymentStatus),
		TotalCents:    payload.TotalCents,
		Currency:      payload.Currency.String(),
		Reason:        payload.Reason,
		OccurredAt:    occurredAt.UTC(),
	}
	if payload.PreviousStatus != "" {
		previous := string(payload.PreviousStatus)
		row.PreviousStatus = &previous
	}
	if payload.PaymentProvider != nil {
		provider := string(*payload.PaymentProvider)
		row.PaymentProvider = &provider
	}
	return row, nil
}
