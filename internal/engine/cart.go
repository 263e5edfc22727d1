package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/utafrali/marketplace/internal/domain"
	"github.com/utafrali/marketplace/internal/persistence"
	apperrors "github.com/utafrali/marketplace/pkg/errors"
)

// DefaultQuantity is used when AddItem is called with a quantity below 1.
const DefaultQuantity = 1

// CartManager is one tab's view of a cart.
type CartManager struct {
	namespace string
	list      *listState[domain.CartItem]
	events    EventPublisher
	logger    *slog.Logger
	clock     func() time.Time
	ids       func() string
}

// NewCartManager loads the cart for opts.Namespace and starts listening for
// changes. Unreadable stored data yields an empty cart.
func NewCartManager(ctx context.Context, opts Options) (*CartManager, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	return &CartManager{
		namespace: opts.Namespace,
		list:      newListState(ctx, engineCart, persistence.CartKey(opts.Namespace), domain.NormalizeCartItems, opts),
		events:    opts.Events,
		logger:    opts.Logger,
		clock:     opts.Clock,
		ids:       opts.IDs,
	}, nil
}

// AddItem adds quantity units of product. An existing entry for the same
// product keeps its snapshot and id and only grows in quantity, saturating
// at math.MaxInt.
func (m *CartManager) AddItem(ctx context.Context, product domain.Product, quantity int) error {
	if product.ID == "" {
		return apperrors.InvalidInput("product id is required")
	}
	if quantity < 1 {
		quantity = DefaultQuantity
	}
	product = product.Snapshot()

	m.apply(ctx, "add_item", func(items []domain.CartItem) []domain.CartItem {
		cart := domain.Cart{Items: items}
		if i := cart.FindItemIndex(product.ID); i >= 0 {
			items[i].Quantity = domain.AddQuantity(items[i].Quantity, quantity)
			return items
		}
		return append(items, domain.CartItem{
			ID:       m.ids(),
			Product:  product,
			Quantity: quantity,
			AddedAt:  m.clock().UTC(),
		})
	})
	return nil
}

// RemoveItem drops the entry for productID. Absent products are ignored,
// though the list is still saved.
func (m *CartManager) RemoveItem(ctx context.Context, productID string) {
	m.apply(ctx, "remove_item", func(items []domain.CartItem) []domain.CartItem {
		return removeCartItem(items, productID)
	})
}

// UpdateQuantity sets the quantity for productID. A quantity of 0 or less
// removes the entry.
func (m *CartManager) UpdateQuantity(ctx context.Context, productID string, quantity int) {
	if quantity <= 0 {
		m.RemoveItem(ctx, productID)
		return
	}

	m.apply(ctx, "update_quantity", func(items []domain.CartItem) []domain.CartItem {
		if i := (domain.Cart{Items: items}).FindItemIndex(productID); i >= 0 {
			items[i].Quantity = quantity
		}
		return items
	})
}

// RemovePurchased takes ordered quantities out of the cart: each entry
// loses purchased[productID] units and is dropped once none are left.
// Products added after the order was built stay. When nothing remains the
// stored cart is removed as Clear does.
func (m *CartManager) RemovePurchased(ctx context.Context, purchased map[string]int) {
	items, saved, cleared := m.list.mutateOrClear(ctx, "remove_purchased", func(items []domain.CartItem) []domain.CartItem {
		out := items[:0]
		for _, item := range items {
			if n, ok := purchased[item.Product.ID]; ok {
				if item.Quantity <= n {
					continue
				}
				item.Quantity -= n
			}
			out = append(out, item)
		}
		return out
	})
	if !saved || m.events == nil {
		return
	}

	var err error
	if cleared {
		err = m.events.PublishCartCleared(ctx, m.namespace)
	} else {
		err = m.events.PublishCartUpdated(ctx, m.namespace, domain.Cart{Items: items})
	}
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to publish cart event",
			slog.String("namespace", m.namespace),
			slog.String("operation", "remove_purchased"),
			slog.String("error", err.Error()),
		)
	}
}

// Clear empties the cart and removes it from storage.
func (m *CartManager) Clear(ctx context.Context) {
	if !m.list.clear(ctx) || m.events == nil {
		return
	}
	if err := m.events.PublishCartCleared(ctx, m.namespace); err != nil {
		m.logger.ErrorContext(ctx, "failed to publish cart.cleared event",
			slog.String("namespace", m.namespace),
			slog.String("error", err.Error()),
		)
	}
}

// IsInCart reports whether productID has an entry.
func (m *CartManager) IsInCart(productID string) bool {
	var found bool
	m.list.read(func(items []domain.CartItem) {
		found = domain.Cart{Items: items}.FindItemIndex(productID) >= 0
	})
	return found
}

// GetItemQuantity returns the quantity for productID, 0 when absent.
func (m *CartManager) GetItemQuantity(productID string) int {
	var qty int
	m.list.read(func(items []domain.CartItem) {
		qty = domain.Cart{Items: items}.Quantity(productID)
	})
	return qty
}

// Cart returns a copy of the current cart.
func (m *CartManager) Cart() domain.Cart {
	return domain.Cart{Items: m.list.snapshot()}
}

// Total is the sum of price × quantity over all entries.
func (m *CartManager) Total() int64 {
	var total int64
	m.list.read(func(items []domain.CartItem) {
		total = domain.Cart{Items: items}.TotalAmount()
	})
	return total
}

// ItemCount is the sum of all quantities.
func (m *CartManager) ItemCount() int {
	var count int
	m.list.read(func(items []domain.CartItem) {
		count = domain.Cart{Items: items}.ItemCount()
	})
	return count
}

// Namespace returns the profile namespace the cart belongs to.
func (m *CartManager) Namespace() string {
	return m.namespace
}

// OnChange registers fn to run after every mutation and every reload.
// fn runs synchronously and must not mutate the cart.
func (m *CartManager) OnChange(fn func()) (cancel func()) {
	return m.list.observe(fn)
}

// Close stops listening for changes and drops all observers.
func (m *CartManager) Close() {
	m.list.close()
}

func (m *CartManager) apply(ctx context.Context, op string, fn func([]domain.CartItem) []domain.CartItem) {
	items, saved := m.list.mutate(ctx, op, fn)
	if !saved || m.events == nil {
		return
	}
	if err := m.events.PublishCartUpdated(ctx, m.namespace, domain.Cart{Items: items}); err != nil {
		m.logger.ErrorContext(ctx, "failed to publish cart.updated event",
			slog.String("namespace", m.namespace),
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
	}
}

func removeCartItem(items []domain.CartItem, productID string) []domain.CartItem {
	out := items[:0]
	for _, item := range items {
		if item.Product.ID != productID {
			out = append(out, item)
		}
	}
	return out
}
