package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"

	"github.com/utafrali/marketplace/internal/domain"
	apperrors "github.com/utafrali/marketplace/pkg/errors"
	"github.com/utafrali/marketplace/pkg/tracing"
	"github.com/utafrali/marketplace/pkg/validator"
)

const tracerName = "github.com/utafrali/marketplace/internal/checkout"

var ordersTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storefront_checkout_orders_total",
		Help: "Checkout attempts by result.",
	},
	[]string{"result"},
)

// CartSource is the part of a cart manager checkout needs.
type CartSource interface {
	Cart() domain.Cart
	// RemovePurchased takes the ordered quantities out of the cart, keeping
	// anything added while the order was being placed.
	RemovePurchased(ctx context.Context, purchased map[string]int)
}

// Service places orders from carts.
type Service struct {
	placer OrderPlacer
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// NewService creates a checkout service that hands orders to placer.
func NewService(placer OrderPlacer, logger *slog.Logger) *Service {
	return &Service{
		placer: placer,
		logger: logger,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
}

// Checkout reads the cart once, builds an order and places it. Only when the
// placer succeeds are the ordered lines taken out of the cart; items added
// in the meantime stay. A failed placement leaves the cart exactly as it was.
func (s *Service) Checkout(ctx context.Context, cart CartSource, input Input) (order *Order, err error) {
	ctx, end := tracing.StartSpan(ctx, tracerName, "checkout.place_order",
		attribute.String("buyer.id", input.BuyerID),
	)
	defer func() { end(err) }()

	if err := validator.Validate(input); err != nil {
		ordersTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	snapshot := cart.Cart()
	if snapshot.IsEmpty() {
		ordersTotal.WithLabelValues("invalid").Inc()
		return nil, apperrors.InvalidInput("cart is empty")
	}

	order = BuildOrder(input.BuyerID, snapshot, input, s.now(), s.newID())

	if err := s.placer.PlaceOrder(ctx, order); err != nil {
		ordersTotal.WithLabelValues(failureResult(err)).Inc()
		s.logger.ErrorContext(ctx, "failed to place order",
			slog.String("order_id", order.ID),
			slog.String("buyer_id", order.BuyerID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("place order %s: %w", order.ID, err)
	}

	cart.RemovePurchased(ctx, order.Quantities())
	ordersTotal.WithLabelValues("placed").Inc()

	s.logger.InfoContext(ctx, "order placed",
		slog.String("order_id", order.ID),
		slog.String("buyer_id", order.BuyerID),
		slog.Int("lines", len(order.Lines)),
		slog.Int64("total_amount", order.TotalAmount),
	)
	return order, nil
}

func failureResult(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrOrderRejected):
		return "rejected"
	case errors.Is(err, apperrors.ErrServiceUnavail):
		return "unavailable"
	default:
		return "error"
	}
}
