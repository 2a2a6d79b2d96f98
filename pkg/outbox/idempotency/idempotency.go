// Package idempotency dedupes outbox event deliveries per consumer.
//
// A delivery first claims the event with a short lease. When the handler
// succeeds the claim is promoted to a done marker kept for the full TTL; when
// it fails the claim is released so a redelivery can run again. A delivery
// that finds another claim still in flight should nack rather than ack, so the
// event survives if the first delivery later fails.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// Outcome is the result of Claim.
type Outcome int

const (
	// Claimed means this delivery owns the event and must run it.
	Claimed Outcome = iota
	// Done means the event was already handled; ack and drop.
	Done
	// InFlight means another delivery holds the claim; retry later.
	InFlight
)

func (o Outcome) String() string {
	switch o {
	case Claimed:
		return "claimed"
	case Done:
		return "done"
	case InFlight:
		return "in_flight"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

const (
	markerPending = "pending"
	markerDone    = "done"

	defaultLease = 5 * time.Minute
)

// Store is the Redis surface the manager needs.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	DelIfValue(ctx context.Context, key, value string) (bool, error)
	IdempotencyKey(scope, id string) string
}

// Manager keys claims as echo:idempotency:evt:<consumer>:<event_id>.
type Manager struct {
	store Store
	ttl   time.Duration
	lease time.Duration
}

// NewManager keeps done markers for ttl; zero keeps them without expiry.
func NewManager(store Store, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	lease := defaultLease
	if ttl > 0 && ttl < lease {
		lease = ttl
	}
	return &Manager{store: store, ttl: ttl, lease: lease}, nil
}

func (m *Manager) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (Outcome, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return InFlight, err
	}
	won, err := m.store.SetNX(ctx, key, markerPending, m.lease)
	if err != nil {
		return InFlight, fmt.Errorf("claim %s: %w", key, err)
	}
	if won {
		return Claimed, nil
	}
	marker, err := m.store.Get(ctx, key)
	switch {
	case errors.Is(err, goredis.Nil):
		// The lease lapsed between SETNX and GET; let the broker redeliver.
		return InFlight, nil
	case err != nil:
		return InFlight, fmt.Errorf("read claim %s: %w", key, err)
	case marker == markerDone:
		return Done, nil
	}
	return InFlight, nil
}

// Complete marks a claimed event as handled.
func (m *Manager) Complete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, key, markerDone, m.ttl)
}

// Release drops a pending claim. Done markers are left alone.
func (m *Manager) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	_, err = m.store.DelIfValue(ctx, key, markerPending)
	return err
}

func (m *Manager) key(consumer string, eventID uuid.UUID) (string, error) {
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return m.store.IdempotencyKey("evt:"+consumer, eventID.String()), nil
}
