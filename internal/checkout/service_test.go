package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/marketplace/internal/domain"
	"github.com/utafrali/marketplace/internal/engine"
	"github.com/utafrali/marketplace/internal/repository/memory"
	apperrors "github.com/utafrali/marketplace/pkg/errors"
	"github.com/utafrali/marketplace/pkg/validator"
)

func newTestService(placer OrderPlacer) *Service {
	svc := NewService(placer, testLogger())
	svc.now = func() time.Time { return fixedNow }
	svc.newID = func() string { return "order-1" }
	return svc
}

func TestCheckout_SuccessClearsCart(t *testing.T) {
	placer := new(mockPlacer)
	placer.On("PlaceOrder", mock.Anything, mock.MatchedBy(func(o *Order) bool {
		return o.ID == "order-1" && o.BuyerID == "buyer-1" && len(o.Lines) == 2 && o.TotalAmount == 26999
	})).Return(nil)

	cart := &fakeCart{cart: sampleCart()}
	before := testutil.ToFloat64(ordersTotal.WithLabelValues("placed"))

	order, err := newTestService(placer).Checkout(context.Background(), cart, sampleInput())
	require.NoError(t, err)

	assert.Equal(t, "order-1", order.ID)
	assert.Equal(t, fixedNow, order.CreatedAt)
	assert.Equal(t, 1, cart.reads)
	assert.Equal(t, 1, cart.settled)
	assert.Empty(t, cart.cart.Items)
	assert.Equal(t, before+1, testutil.ToFloat64(ordersTotal.WithLabelValues("placed")))
	placer.AssertExpectations(t)
}

func TestCheckout_KeepsItemsAddedWhilePlacing(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewStore(0)
	cart, err := engine.NewCartManager(ctx, engine.Options{Namespace: "shop", Store: kv})
	require.NoError(t, err)
	defer cart.Close()

	desk := domain.Product{ID: "p1", Title: "Walnut desk", Price: 12500}
	lamp := domain.Product{ID: "p2", Title: "Desk lamp", Price: 1999}
	require.NoError(t, cart.AddItem(ctx, desk, 2))

	entered := make(chan struct{})
	release := make(chan struct{})
	placer := new(mockPlacer)
	placer.On("PlaceOrder", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		close(entered)
		<-release
	}).Return(nil)

	type result struct {
		order *Order
		err   error
	}
	done := make(chan result, 1)
	go func() {
		order, err := newTestService(placer).Checkout(ctx, cart, sampleInput())
		done <- result{order, err}
	}()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("placer was not called")
	}
	require.NoError(t, cart.AddItem(ctx, lamp, 1))
	require.NoError(t, cart.AddItem(ctx, desk, 1))
	close(release)

	var res result
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("checkout did not return")
	}
	require.NoError(t, res.err)
	require.Len(t, res.order.Lines, 1)
	assert.Equal(t, 2, res.order.Lines[0].Quantity)

	assert.Equal(t, 1, cart.GetItemQuantity("p1"), "unit added during checkout stays")
	assert.True(t, cart.IsInCart("p2"))
	assert.Equal(t, 2, cart.ItemCount())
	assert.True(t, kv.Exists("shop-cart"))
}

func TestCheckout_FullPurchaseRemovesStoredCart(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewStore(0)
	cart, err := engine.NewCartManager(ctx, engine.Options{Namespace: "shop", Store: kv})
	require.NoError(t, err)
	defer cart.Close()
	require.NoError(t, cart.AddItem(ctx, domain.Product{ID: "p1", Price: 500}, 3))

	placer := new(mockPlacer)
	placer.On("PlaceOrder", mock.Anything, mock.Anything).Return(nil)

	_, err = newTestService(placer).Checkout(ctx, cart, sampleInput())
	require.NoError(t, err)

	assert.Zero(t, cart.ItemCount())
	assert.False(t, kv.Exists("shop-cart"))
}

func TestCheckout_PlacerFailureLeavesCartIntact(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		result   string
	}{
		{"rejected", apperrors.OrderRejected("order: out of stock"), apperrors.ErrOrderRejected, "rejected"},
		{"unavailable", apperrors.ServiceUnavailable("order service down"), apperrors.ErrServiceUnavail, "unavailable"},
		{"other", errors.New("insert order: boom"), nil, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			placer := new(mockPlacer)
			placer.On("PlaceOrder", mock.Anything, mock.Anything).Return(tt.err)

			cart := &fakeCart{cart: sampleCart()}
			before := testutil.ToFloat64(ordersTotal.WithLabelValues(tt.result))

			order, err := newTestService(placer).Checkout(context.Background(), cart, sampleInput())
			require.Error(t, err)
			assert.Nil(t, order)
			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
			}
			assert.Contains(t, err.Error(), "place order order-1")

			assert.Zero(t, cart.settled)
			assert.Equal(t, sampleCart(), cart.cart)
			assert.Equal(t, before+1, testutil.ToFloat64(ordersTotal.WithLabelValues(tt.result)))
		})
	}
}

func TestCheckout_EmptyCart(t *testing.T) {
	placer := new(mockPlacer)
	cart := &fakeCart{}

	_, err := newTestService(placer).Checkout(context.Background(), cart, sampleInput())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Zero(t, cart.settled)
	placer.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything)
}

func TestCheckout_InvalidInputNeverReadsCart(t *testing.T) {
	placer := new(mockPlacer)
	cart := &fakeCart{cart: sampleCart()}

	input := sampleInput()
	input.PaymentMethod = "barter"
	input.ShippingAddress.City = ""

	_, err := newTestService(placer).Checkout(context.Background(), cart, input)

	var valErr *validator.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Contains(t, valErr.Fields(), "payment_method")
	assert.Contains(t, valErr.Fields(), "shipping_address.city")
	assert.Zero(t, cart.reads)
	placer.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything)
}
