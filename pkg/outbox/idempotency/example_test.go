package idempotency_test

import (
	"context"
	"fmt"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/echo-commerce-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/echo-commerce-backend/pkg/redis"
)

func ExampleManager_Claim() {
	srv, err := miniredis.Run()
	if err != nil {
		panic(err)
	}
	defer srv.Close()
	raw := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	defer raw.Close()

	ctx := context.Background()
	manager, _ := idempotency.NewManager(redis.NewFromRaw(raw), 7*24*time.Hour)
	eventID := uuid.MustParse("f47ac10b-58cc-4372-a567-0e02b2c3d479")

	first, _ := manager.Claim(ctx, "tasks-worker", eventID)
	_ = manager.Complete(ctx, "tasks-worker", eventID)
	second, _ := manager.Claim(ctx, "tasks-worker", eventID)

	fmt.Println(first)
	fmt.Println(second)
	// Output:
	// claimed
	// done
}
