package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/utafrali/marketplace/internal/domain"
	"github.com/utafrali/marketplace/internal/persistence"
	apperrors "github.com/utafrali/marketplace/pkg/errors"
)

// WatchlistManager is one tab's view of a watchlist.
type WatchlistManager struct {
	namespace string
	list      *listState[domain.WatchItem]
	events    EventPublisher
	logger    *slog.Logger
	clock     func() time.Time
	ids       func() string
}

// NewWatchlistManager loads the watchlist for opts.Namespace and starts
// listening for changes.
func NewWatchlistManager(ctx context.Context, opts Options) (*WatchlistManager, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	return &WatchlistManager{
		namespace: opts.Namespace,
		list:      newListState(ctx, engineWatchlist, persistence.WatchlistKey(opts.Namespace), domain.NormalizeWatchItems, opts),
		events:    opts.Events,
		logger:    opts.Logger,
		clock:     opts.Clock,
		ids:       opts.IDs,
	}, nil
}

// AddItem watches product. Watching an already watched product changes
// nothing but still saves.
func (m *WatchlistManager) AddItem(ctx context.Context, product domain.Product) error {
	if product.ID == "" {
		return apperrors.InvalidInput("product id is required")
	}
	product = product.Snapshot()

	m.apply(ctx, "add_item", func(items []domain.WatchItem) []domain.WatchItem {
		if (domain.Watchlist{Items: items}).Contains(product.ID) {
			return items
		}
		return append(items, domain.WatchItem{
			ID:      m.ids(),
			Product: product,
			AddedAt: m.clock().UTC(),
		})
	})
	return nil
}

// RemoveItem unwatches productID. Absent products are ignored.
func (m *WatchlistManager) RemoveItem(ctx context.Context, productID string) {
	m.apply(ctx, "remove_item", func(items []domain.WatchItem) []domain.WatchItem {
		out := items[:0]
		for _, item := range items {
			if item.Product.ID != productID {
				out = append(out, item)
			}
		}
		return out
	})
}

// Clear empties the watchlist and removes it from storage.
func (m *WatchlistManager) Clear(ctx context.Context) {
	if !m.list.clear(ctx) || m.events == nil {
		return
	}
	if err := m.events.PublishWatchlistCleared(ctx, m.namespace); err != nil {
		m.logger.ErrorContext(ctx, "failed to publish watchlist.cleared event",
			slog.String("namespace", m.namespace),
			slog.String("error", err.Error()),
		)
	}
}

// IsWatched reports whether productID is on the watchlist.
func (m *WatchlistManager) IsWatched(productID string) bool {
	var found bool
	m.list.read(func(items []domain.WatchItem) {
		found = domain.Watchlist{Items: items}.Contains(productID)
	})
	return found
}

// Watchlist returns a copy of the current watchlist.
func (m *WatchlistManager) Watchlist() domain.Watchlist {
	return domain.Watchlist{Items: m.list.snapshot()}
}

// ItemCount is the number of watched products.
func (m *WatchlistManager) ItemCount() int {
	var n int
	m.list.read(func(items []domain.WatchItem) { n = len(items) })
	return n
}

// Namespace returns the profile namespace the watchlist belongs to.
func (m *WatchlistManager) Namespace() string {
	return m.namespace
}

// OnChange registers fn to run after every mutation and every reload.
func (m *WatchlistManager) OnChange(fn func()) (cancel func()) {
	return m.list.observe(fn)
}

// Close stops listening for changes and drops all observers.
func (m *WatchlistManager) Close() {
	m.list.close()
}

func (m *WatchlistManager) apply(ctx context.Context, op string, fn func([]domain.WatchItem) []domain.WatchItem) {
	items, saved := m.list.mutate(ctx, op, fn)
	if !saved || m.events == nil {
		return
	}
	if err := m.events.PublishWatchlistUpdated(ctx, m.namespace, domain.Watchlist{Items: items}); err != nil {
		m.logger.ErrorContext(ctx, "failed to publish watchlist.updated event",
			slog.String("namespace", m.namespace),
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
	}
}
