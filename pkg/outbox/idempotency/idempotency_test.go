package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/echo-commerce-backend/pkg/redis"
)

func newTestManager(t *testing.T, ttl time.Duration) (*Manager, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	srv := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	client := redis.NewFromRaw(raw)
	manager, err := NewManager(client, ttl)
	require.NoError(t, err)
	return manager, srv, client
}

func TestClaimLifecycle(t *testing.T) {
	manager, srv, client := newTestManager(t, 24*time.Hour)
	ctx := context.Background()
	eventID := uuid.New()
	key := client.IdempotencyKey("evt:tasks-worker", eventID.String())

	outcome, err := manager.Claim(ctx, "tasks-worker", eventID)
	require.NoError(t, err)
	require.Equal(t, Claimed, outcome)
	require.Equal(t, defaultLease, srv.TTL(key))

	outcome, err = manager.Claim(ctx, "tasks-worker", eventID)
	require.NoError(t, err)
	require.Equal(t, InFlight, outcome)

	require.NoError(t, manager.Complete(ctx, "tasks-worker", eventID))
	require.Equal(t, 24*time.Hour, srv.TTL(key))

	outcome, err = manager.Claim(ctx, "tasks-worker", eventID)
	require.NoError(t, err)
	require.Equal(t, Done, outcome)

	// Release after completion must not reopen the event.
	require.NoError(t, manager.Release(ctx, "tasks-worker", eventID))
	outcome, err = manager.Claim(ctx, "tasks-worker", eventID)
	require.NoError(t, err)
	require.Equal(t, Done, outcome)

	outcome, err = manager.Claim(ctx, "analytics-worker", eventID)
	require.NoError(t, err)
	require.Equal(t, Claimed, outcome, "consumers are deduped independently")
}

func TestReleaseReopensFailedEvent(t *testing.T) {
	manager, _, _ := newTestManager(t, time.Hour)
	ctx := context.Background()
	eventID := uuid.New()

	outcome, err := manager.Claim(ctx, "tasks-worker", eventID)
	require.NoError(t, err)
	require.Equal(t, Claimed, outcome)
	require.NoError(t, manager.Release(ctx, "tasks-worker", eventID))

	outcome, err = manager.Claim(ctx, "tasks-worker", eventID)
	require.NoError(t, err)
	require.Equal(t, Claimed, outcome)
}

func TestLeaseExpiryFreesAbandonedClaim(t *testing.T) {
	manager, srv, _ := newTestManager(t, time.Minute)
	require.Equal(t, time.Minute, manager.lease, "lease never outlives the ttl")
	ctx := context.Background()
	eventID := uuid.New()

	_, err := manager.Claim(ctx, "tasks-worker", eventID)
	require.NoError(t, err)
	srv.FastForward(2 * time.Minute)

	outcome, err := manager.Claim(ctx, "tasks-worker", eventID)
	require.NoError(t, err)
	require.Equal(t, Claimed, outcome)
}

func TestClaimValidatesInput(t *testing.T) {
	manager, _, _ := newTestManager(t, time.Hour)
	ctx := context.Background()

	_, err := manager.Claim(ctx, "", uuid.New())
	require.Error(t, err)
	_, err = manager.Claim(ctx, "tasks-worker", uuid.Nil)
	require.Error(t, err)
	require.Error(t, manager.Complete(ctx, "", uuid.New()))
	require.Error(t, manager.Release(ctx, "tasks-worker", uuid.Nil))

	_, err = NewManager(nil, time.Hour)
	require.Error(t, err)
	_, err = NewManager(&redis.Client{}, -time.Second)
	require.Error(t, err)
}

func TestClaimSurfacesStoreErrors(t *testing.T) {
	manager, srv, _ := newTestManager(t, time.Hour)
	srv.Close()

	outcome, err := manager.Claim(context.Background(), "tasks-worker", uuid.New())
	require.Error(t, err)
	require.Equal(t, InFlight, outcome)
	require.False(t, errors.Is(err, goredis.Nil))
}

func TestOutcomeString(t *testing.T) {
	require.Equal(t, "claimed", Claimed.String())
	require.Equal(t, "done", Done.String())
	require.Equal(t, "in_flight", InFlight.String())
	require.Equal(t, "outcome(9)", Outcome(9).String())
}
