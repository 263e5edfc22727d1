package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/marketplace/internal/domain"
	"github.com/utafrali/marketplace/internal/notifier"
	"github.com/utafrali/marketplace/internal/repository/memory"
	"github.com/utafrali/marketplace/pkg/logger"
)

var baseTime = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

// fakeClock advances one second per call.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// seqIDs returns id-1, id-2, ...
type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("id-%d", s.n)
}

type fixture struct {
	kv   *memory.Store
	bus  *notifier.Bus
	opts Options
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	kv := memory.NewStore(0)
	bus := notifier.NewBus(logger.Discard())
	clock := &fakeClock{now: baseTime}
	ids := &seqIDs{}
	return &fixture{
		kv:  kv,
		bus: bus,
		opts: Options{
			Namespace: "shop",
			Store:     kv,
			Notifier:  bus,
			Logger:    logger.Discard(),
			Clock:     clock.Now,
			IDs:       ids.Next,
		},
	}
}

func (f *fixture) cart(t *testing.T) *CartManager {
	t.Helper()
	m, err := NewCartManager(context.Background(), f.opts)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func (f *fixture) watchlist(t *testing.T) *WatchlistManager {
	t.Helper()
	m, err := NewWatchlistManager(context.Background(), f.opts)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

// stored decodes the raw value under key, failing when it is missing.
func (f *fixture) stored(t *testing.T, key string) string {
	t.Helper()
	raw, err := f.kv.Get(context.Background(), key)
	require.NoError(t, err)
	return string(raw)
}

func product(id string, price int64) domain.Product {
	return domain.Product{
		ID:     id,
		Title:  "Product " + id,
		Price:  price,
		Images: []string{"https://img.example.com/" + id + ".jpg"},
		Seller: domain.Seller{Name: "Acme", Rating: 4.5},
	}
}

func productIDs[T any](items []T, id func(T) string) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = id(item)
	}
	return out
}

func cartIDs(c domain.Cart) []string {
	return productIDs(c.Items, func(i domain.CartItem) string { return i.Product.ID })
}

func watchIDs(w domain.Watchlist) []string {
	return productIDs(w.Items, func(i domain.WatchItem) string { return i.Product.ID })
}

// changeCounter counts changes published on a bus.
func changeCounter(bus *notifier.Bus) *int {
	n := new(int)
	bus.Subscribe(func(notifier.Change) { *n++ })
	return n
}

// ---------------------------------------------------------------------------
// Mock event publisher
// ---------------------------------------------------------------------------

type mockEvents struct {
	mock.Mock
}

func (m *mockEvents) PublishCartUpdated(ctx context.Context, namespace string, cart domain.Cart) error {
	return m.Called(ctx, namespace, cart).Error(0)
}

func (m *mockEvents) PublishCartCleared(ctx context.Context, namespace string) error {
	return m.Called(ctx, namespace).Error(0)
}

func (m *mockEvents) PublishWatchlistUpdated(ctx context.Context, namespace string, w domain.Watchlist) error {
	return m.Called(ctx, namespace, w).Error(0)
}

func (m *mockEvents) PublishWatchlistCleared(ctx context.Context, namespace string) error {
	return m.Called(ctx, namespace).Error(0)
}
