package checkout

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/utafrali/marketplace/internal/domain"
)

// ---------------------------------------------------------------------------
// Shared fixtures
// ---------------------------------------------------------------------------

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleCart() domain.Cart {
	return domain.Cart{Items: []domain.CartItem{
		{
			ID:       "line-1",
			Product:  domain.Product{ID: "p1", Title: "Walnut desk", Price: 12500, Images: []string{"desk-1.jpg", "desk-2.jpg"}},
			Quantity: 2,
			AddedAt:  fixedNow.Add(-time.Hour),
		},
		{
			ID:       "line-2",
			Product:  domain.Product{ID: "p2", Title: "Desk lamp", Price: 1999},
			Quantity: 1,
			AddedAt:  fixedNow.Add(-time.Minute),
		},
	}}
}

func sampleInput() Input {
	return Input{
		BuyerID:  "buyer-1",
		Currency: "EUR",
		ShippingAddress: Address{
			FullName:    "Ada Lovelace",
			AddressLine: "12 Analytical St",
			City:        "London",
			PostalCode:  "N1 9GU",
			Country:     "GB",
		},
		PaymentMethod: "card",
	}
}

func sampleOrder() *Order {
	return BuildOrder("buyer-1", sampleCart(), sampleInput(), fixedNow, "7d0c8d5e-3f8a-4c1e-9b7a-2f4e6d8c0a11")
}

type mockPlacer struct {
	mock.Mock
}

func (m *mockPlacer) PlaceOrder(ctx context.Context, order *Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

type fakeCart struct {
	mu      sync.Mutex
	cart    domain.Cart
	reads   int
	settled int
}

func (f *fakeCart) Cart() domain.Cart {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	return domain.Cart{Items: domain.CloneCartItems(f.cart.Items)}
}

func (f *fakeCart) RemovePurchased(_ context.Context, purchased map[string]int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settled++
	var kept []domain.CartItem
	for _, item := range f.cart.Items {
		item.Quantity -= purchased[item.Product.ID]
		if item.Quantity > 0 {
			kept = append(kept, item)
		}
	}
	f.cart = domain.Cart{Items: kept}
}
