package orders

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/echo-commerce-backend/pkg/db/dbtest"
	"github.com/angelmondragon/echo-commerce-backend/pkg/enums"
	"github.com/angelmondragon/echo-commerce-backend/pkg/redis"
)

type staticFloor struct {
	mu    sync.Mutex
	value int64
	calls int
}

func (f *staticFloor) SequenceFloor(context.Context, uuid.UUID, string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.value, nil
}

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	return redis.NewFromRaw(raw), srv
}

func TestPrefix(t *testing.T) {
	cases := map[string]string{
		"Acme Tacos":   "ACM",
		"la bodeguita": "LAB",
		"7-Eleven":     "ELE",
		"Café Olé":     "CAF",
		"Xy":           "BIZ",
		"":             "BIZ",
		"123 !!":       "BIZ",
		"Ñandú Grill":  "AND",
	}
	for name, want := range cases {
		require.Equal(t, want, Prefix(name), name)
	}
}

func TestFormatAndParseNumber(t *testing.T) {
	require.Equal(t, "ORD-ACM-000042", FormatNumber("ACM", 42))

	prefix, seq, ok := ParseNumber("ORD-ACM-000042")
	require.True(t, ok)
	require.Equal(t, "ACM", prefix)
	require.Equal(t, int64(42), seq)

	for _, bad := range []string{"ORD-AC-000001", "ord-acm-000001", "ORD-ACM-1", "ORD-ACM-00001", "ACM-000001"} {
		require.False(t, IsOrderNumber(bad), bad)
	}
}

func TestNumberPastSixDigitsStaysParseable(t *testing.T) {
	require.Equal(t, "ORD-ACM-999999", FormatNumber("ACM", 999999))

	number := FormatNumber("ACM", 1000000)
	require.Equal(t, "ORD-ACM-1000000", number)
	require.True(t, IsOrderNumber(number))

	prefix, seq, ok := ParseNumber(number)
	require.True(t, ok)
	require.Equal(t, "ACM", prefix)
	require.Equal(t, int64(1000000), seq)
}

func TestSequenceFloorPrefersLongerNumbers(t *testing.T) {
	conn := dbtest.Open(t)
	business := dbtest.SeedBusiness(t, conn, "Acme Tacos", 0)
	dbtest.SeedOrder(t, conn, business, "ORD-ACM-999999", enums.OrderStatusConfirmed)
	dbtest.SeedOrder(t, conn, business, "ORD-ACM-1000000", enums.OrderStatusDraft)

	floor, err := NewRepository(conn).SequenceFloor(context.Background(), business.ID, "ACM")
	require.NoError(t, err)
	require.Equal(t, int64(1000000), floor)
}

func TestAllocatorSeedsFromFloor(t *testing.T) {
	ctx := context.Background()
	client, _ := newRedis(t)
	floor := &staticFloor{value: 41}
	alloc := NewAllocator(client, floor)
	businessID := uuid.New()

	first, err := alloc.Next(ctx, businessID, "Acme Tacos")
	require.NoError(t, err)
	require.Equal(t, "ORD-ACM-000042", first.Number)
	require.Equal(t, int64(42), first.Seq)

	second, err := alloc.Next(ctx, businessID, "Acme Tacos")
	require.NoError(t, err)
	require.Equal(t, "ORD-ACM-000043", second.Number)
	require.Equal(t, 1, floor.calls)
}

func TestAllocatorConcurrentCallersGetDistinctNumbers(t *testing.T) {
	ctx := context.Background()
	client, _ := newRedis(t)
	alloc := NewAllocator(client, &staticFloor{})
	businessID := uuid.New()

	const workers = 25
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[string]bool{}
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := alloc.Next(ctx, businessID, "Acme")
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			seen[a.Number] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Len(t, seen, workers)
}

func TestAllocatorResyncRaisesCounter(t *testing.T) {
	ctx := context.Background()
	client, _ := newRedis(t)
	floor := &staticFloor{}
	alloc := NewAllocator(client, floor)
	businessID := uuid.New()

	_, err := alloc.Next(ctx, businessID, "Acme")
	require.NoError(t, err)

	floor.value = 10
	require.NoError(t, alloc.Resync(ctx, businessID, "Acme"))
	next, err := alloc.Next(ctx, businessID, "Acme")
	require.NoError(t, err)
	require.Equal(t, "ORD-ACM-000011", next.Number)

	floor.value = 2
	require.NoError(t, alloc.Resync(ctx, businessID, "Acme"))
	next, err = alloc.Next(ctx, businessID, "Acme")
	require.NoError(t, err)
	require.Equal(t, int64(12), next.Seq)
}

func TestAllocatorSeparatesBusinesses(t *testing.T) {
	ctx := context.Background()
	client, _ := newRedis(t)
	alloc := NewAllocator(client, &staticFloor{})

	a, err := alloc.Next(ctx, uuid.New(), "Acme")
	require.NoError(t, err)
	b, err := alloc.Next(ctx, uuid.New(), "Acme")
	require.NoError(t, err)
	require.Equal(t, a.Number, b.Number)
}
