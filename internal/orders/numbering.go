package orders

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "BIZ"
	sequenceWidth = 6
)

var orderNumberRe = regexp.MustCompile(`^ORD-([A-Z]{3})-(\d{6,})$`)

type counterStore interface {
	CounterKey(name string) string
	Get(ctx context.Context, key string) (string, error)
	Incr(ctx context.Context, key string) (int64, error)
	SeededIncr(ctx context.Context, key string, floor int64) (int64, error)
	RaiseTo(ctx context.Context, key string, floor int64) (int64, error)
}

// sequenceFloor reports the highest sequence already used for a prefix,
// from the durable counter table and the orders themselves.
type sequenceFloor interface {
	SequenceFloor(ctx context.Context, businessID uuid.UUID, prefix string) (int64, error)
}

// Allocator hands out per-business order numbers from a Redis counter that is
// seeded from the database whenever the key is missing.
type Allocator struct {
	store counterStore
	floor sequenceFloor
}

// Allocation is one reserved order number.
type Allocation struct {
	Number string
	Prefix string
	Seq    int64
}

func NewAllocator(store counterStore, floor sequenceFloor) *Allocator {
	return &Allocator{store: store, floor: floor}
}

// Next reserves the next number for the business. The counter only moves
// through INCR, so concurrent callers never receive the same sequence. A
// missing key is seeded from the database floor in the same script call.
func (a *Allocator) Next(ctx context.Context, businessID uuid.UUID, businessName string) (Allocation, error) {
	prefix := Prefix(businessName)
	key := a.key(businessID, prefix)

	var seq int64
	_, err := a.store.Get(ctx, key)
	switch {
	case err == nil:
		seq, err = a.store.Incr(ctx, key)
	case errors.Is(err, goredis.Nil):
		var floor int64
		floor, err = a.floor.SequenceFloor(ctx, businessID, prefix)
		if err != nil {
			return Allocation{}, fmt.Errorf("load sequence floor: %w", err)
		}
		seq, err = a.store.SeededIncr(ctx, key, floor)
	default:
		return Allocation{}, fmt.Errorf("read order counter: %w", err)
	}
	if err != nil {
		return Allocation{}, fmt.Errorf("increment order counter: %w", err)
	}
	return Allocation{Number: FormatNumber(prefix, seq), Prefix: prefix, Seq: seq}, nil
}

// Resync raises the Redis counter to the database floor after a collision.
func (a *Allocator) Resync(ctx context.Context, businessID uuid.UUID, businessName string) error {
	prefix := Prefix(businessName)
	key := a.key(businessID, prefix)
	floor, err := a.floor.SequenceFloor(ctx, businessID, prefix)
	if err != nil {
		return fmt.Errorf("load sequence floor: %w", err)
	}
	if _, err := a.store.RaiseTo(ctx, key, floor); err != nil {
		return fmt.Errorf("raise order counter: %w", err)
	}
	return nil
}

func (a *Allocator) key(businessID uuid.UUID, prefix string) string {
	return a.store.CounterKey(fmt.Sprintf("order_number:%s:%s", businessID, prefix))
}

// Prefix takes the first three letters of the business name, uppercased.
// Names with fewer than three letters get BIZ.
func Prefix(businessName string) string {
	var b strings.Builder
	for _, r := range businessName {
		if r > unicode.MaxASCII || !unicode.IsLetter(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
		if b.Len() == 3 {
			return b.String()
		}
	}
	return defaultPrefix
}

// FormatNumber zero-pads seq to six digits; longer sequences keep every digit.
func FormatNumber(prefix string, seq int64) string {
	return fmt.Sprintf("ORD-%s-%0*d", prefix, sequenceWidth, seq)
}

// ParseNumber splits a well-formed order number into prefix and sequence.
func ParseNumber(number string) (string, int64, bool) {
	m := orderNumberRe.FindStringSubmatch(strings.TrimSpace(number))
	if m == nil {
		return "", 0, false
	}
	seq, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return m[1], seq, true
}

// IsOrderNumber reports whether s has the ORD-XXX-000000 shape, with six or
// more sequence digits.
func IsOrderNumber(s string) bool {
	return orderNumberRe.MatchString(strings.TrimSpace(s))
}
