package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/marketplace/internal/domain"
	"github.com/utafrali/marketplace/internal/engine"
	pkgkafka "github.com/utafrali/marketplace/pkg/kafka"
	"github.com/utafrali/marketplace/pkg/logger"
)

// Kafka topics for storefront domain events.
var (
	TopicCartUpdated      = pkgkafka.Topic("cart", "updated")
	TopicCartCleared      = pkgkafka.Topic("cart", "cleared")
	TopicWatchlistUpdated = pkgkafka.Topic("watchlist", "updated")
	TopicWatchlistCleared = pkgkafka.Topic("watchlist", "cleared")
)

// Event types and aggregate names.
const (
	EventCartUpdated      = "cart.updated"
	EventCartCleared      = "cart.cleared"
	EventWatchlistUpdated = "watchlist.updated"
	EventWatchlistCleared = "watchlist.cleared"

	AggregateTypeCart      = "cart"
	AggregateTypeWatchlist = "watchlist"

	SourceStorefront = "storefront"
)

// CartUpdatedData is the payload of cart.updated.
type CartUpdatedData struct {
	ProfileID   string         `json:"profile_id"`
	Items       []CartItemData `json:"items"`
	ItemCount   int            `json:"item_count"`
	TotalAmount int64          `json:"total_amount"`
}

// CartItemData describes one cart entry inside an event.
type CartItemData struct {
	ProductID string `json:"product_id"`
	Title     string `json:"title"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
}

// WatchlistUpdatedData is the payload of watchlist.updated.
type WatchlistUpdatedData struct {
	ProfileID  string   `json:"profile_id"`
	ProductIDs []string `json:"product_ids"`
	ItemCount  int      `json:"item_count"`
}

// ClearedData is the payload of cart.cleared and watchlist.cleared.
type ClearedData struct {
	ProfileID string `json:"profile_id"`
}

// Publisher is implemented by *pkgkafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes storefront domain events to Kafka.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a domain event producer.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishCartUpdated publishes a cart.updated event.
func (p *Producer) PublishCartUpdated(ctx context.Context, namespace string, cart domain.Cart) error {
	items := make([]CartItemData, len(cart.Items))
	for i, item := range cart.Items {
		items[i] = CartItemData{
			ProductID: item.Product.ID,
			Title:     item.Product.Title,
			Price:     item.Product.Price,
			Quantity:  item.Quantity,
		}
	}

	return p.publish(ctx, TopicCartUpdated, EventCartUpdated, namespace, AggregateTypeCart, CartUpdatedData{
		ProfileID:   namespace,
		Items:       items,
		ItemCount:   cart.ItemCount(),
		TotalAmount: cart.TotalAmount(),
	})
}

// PublishCartCleared publishes a cart.cleared event.
func (p *Producer) PublishCartCleared(ctx context.Context, namespace string) error {
	return p.publish(ctx, TopicCartCleared, EventCartCleared, namespace, AggregateTypeCart, ClearedData{ProfileID: namespace})
}

// PublishWatchlistUpdated publishes a watchlist.updated event.
func (p *Producer) PublishWatchlistUpdated(ctx context.Context, namespace string, watchlist domain.Watchlist) error {
	ids := make([]string, len(watchlist.Items))
	for i, item := range watchlist.Items {
		ids[i] = item.Product.ID
	}

	return p.publish(ctx, TopicWatchlistUpdated, EventWatchlistUpdated, namespace, AggregateTypeWatchlist, WatchlistUpdatedData{
		ProfileID:  namespace,
		ProductIDs: ids,
		ItemCount:  watchlist.ItemCount(),
	})
}

// PublishWatchlistCleared publishes a watchlist.cleared event.
func (p *Producer) PublishWatchlistCleared(ctx context.Context, namespace string) error {
	return p.publish(ctx, TopicWatchlistCleared, EventWatchlistCleared, namespace, AggregateTypeWatchlist, ClearedData{ProfileID: namespace})
}

func (p *Producer) publish(ctx context.Context, topic, eventType, namespace, aggregateType string, data any) error {
	event, err := pkgkafka.NewEvent(eventType, namespace, aggregateType, SourceStorefront, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", eventType, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}

	p.logger.DebugContext(ctx, "published domain event",
		slog.String("event_type", eventType),
		slog.String("profile_id", namespace),
	)
	return nil
}

var _ engine.EventPublisher = (*Producer)(nil)
