package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// MemoryIdempotencyStore
// ---------------------------------------------------------------------------

func TestMemoryIdempotencyStore_AddAndContains(t *testing.T) {
	store := NewMemoryIdempotencyStore(time.Minute)
	ctx := context.Background()

	seen, err := store.Contains(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, store.Add(ctx, "evt-1"))
	seen, err = store.Contains(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestMemoryIdempotencyStore_Expiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryIdempotencyStore(time.Minute)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, "evt-old"))
	now = now.Add(2 * time.Minute)

	seen, err := store.Contains(ctx, "evt-old")
	require.NoError(t, err)
	assert.False(t, seen)
	assert.Equal(t, 0, store.Len())
}

func TestMemoryIdempotencyStore_AddSweepsExpired(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryIdempotencyStore(time.Minute)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, "a"))
	require.NoError(t, store.Add(ctx, "b"))
	now = now.Add(2 * time.Minute)
	require.NoError(t, store.Add(ctx, "c"))

	assert.Equal(t, 1, store.Len())
}

func TestMemoryIdempotencyStore_ConcurrentAdds(t *testing.T) {
	store := NewMemoryIdempotencyStore(time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Add(ctx, "same")
			_, _ = store.Contains(ctx, "same")
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, store.Len())
}

// ---------------------------------------------------------------------------
// IdempotentHandler
// ---------------------------------------------------------------------------

type failingIdempotencyStore struct{}

func (failingIdempotencyStore) Contains(context.Context, string) (bool, error) {
	return false, errors.New("store down")
}

func (failingIdempotencyStore) Add(context.Context, string) error {
	return errors.New("store down")
}

func countingHandler(calls *int, err error) Handler {
	return func(context.Context, *Event) error {
		*calls++
		return err
	}
}

func TestIdempotentHandler_SkipsDuplicates(t *testing.T) {
	calls := 0
	h := IdempotentHandler(NewMemoryIdempotencyStore(time.Minute), countingHandler(&calls, nil), testLogger())
	event := &Event{EventID: "evt-dup", EventType: "cart.updated"}

	require.NoError(t, h(context.Background(), event))
	require.NoError(t, h(context.Background(), event))

	assert.Equal(t, 1, calls)
}

func TestIdempotentHandler_EmptyIDPassesThrough(t *testing.T) {
	calls := 0
	h := IdempotentHandler(NewMemoryIdempotencyStore(time.Minute), countingHandler(&calls, nil), testLogger())

	for i := 0; i < 3; i++ {
		require.NoError(t, h(context.Background(), &Event{EventType: "cart.updated"}))
	}

	assert.Equal(t, 3, calls)
}

func TestIdempotentHandler_FailureIsNotRecorded(t *testing.T) {
	store := NewMemoryIdempotencyStore(time.Minute)
	boom := errors.New("boom")
	calls := 0
	h := IdempotentHandler(store, countingHandler(&calls, boom), testLogger())
	event := &Event{EventID: "evt-err", EventType: "cart.updated"}

	require.ErrorIs(t, h(context.Background(), event), boom)
	require.ErrorIs(t, h(context.Background(), event), boom)

	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, store.Len())
}

func TestIdempotentHandler_StoreFailureHandlesAnyway(t *testing.T) {
	calls := 0
	h := IdempotentHandler(failingIdempotencyStore{}, countingHandler(&calls, nil), testLogger())

	require.NoError(t, h(context.Background(), &Event{EventID: "evt", EventType: "cart.updated"}))
	assert.Equal(t, 1, calls)
}

func TestIdempotentHandler_CountsDuplicates(t *testing.T) {
	calls := 0
	h := IdempotentHandler(NewMemoryIdempotencyStore(time.Minute), countingHandler(&calls, nil), testLogger())
	event := &Event{EventID: "evt-count", EventType: "dup.metric"}
	labels := map[string]string{"event_type": "dup.metric"}

	before := counterValue(t, "kafka_consumer_messages_duplicate_total", labels)
	require.NoError(t, h(context.Background(), event))
	require.NoError(t, h(context.Background(), event))

	assert.InDelta(t, before+1, counterValue(t, "kafka_consumer_messages_duplicate_total", labels), 0.001)
}
