package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	segkafka "github.com/segmentio/kafka-go"

	"github.com/utafrali/marketplace/internal/notifier"
	pkgkafka "github.com/utafrali/marketplace/pkg/kafka"
)

const (
	// EventChanged is the event type carrying a notifier.Change.
	EventChanged = "storefront.changed"

	aggregateType = "storage_key"
	source        = "storefront"
	dedupTTL      = 10 * time.Minute
)

// Topic is where storage changes are exchanged between instances.
var Topic = pkgkafka.Topic("storefront", "sync")

// Publisher is implemented by *pkgkafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Config holds the Kafka notifier settings.
type Config struct {
	Brokers []string
	// InstanceID names this process. Every instance consumes with its own
	// group so each one sees every change.
	InstanceID string
}

// Notifier exchanges changes through a Kafka topic.
type Notifier struct {
	publisher Publisher
	cfg       Config
	bus       *notifier.Bus
	handler   pkgkafka.Handler
	logger    *slog.Logger
}

// New creates a Kafka notifier.
func New(publisher Publisher, cfg Config, logger *slog.Logger) *Notifier {
	n := &Notifier{
		publisher: publisher,
		cfg:       cfg,
		bus:       notifier.NewBus(logger),
		logger:    logger,
	}
	n.handler = pkgkafka.IdempotentHandler(
		pkgkafka.NewMemoryIdempotencyStore(dedupTTL),
		n.handle,
		logger,
	)
	return n
}

// Publish implements notifier.Notifier.
func (n *Notifier) Publish(ctx context.Context, change notifier.Change) error {
	if change.Timestamp.IsZero() {
		change.Timestamp = time.Now().UTC()
	}

	event, err := pkgkafka.NewEvent(EventChanged, change.Key, aggregateType, source, change)
	if err != nil {
		return err
	}
	event.WithMetadata("instance_id", n.cfg.InstanceID)

	if err := n.publisher.Publish(ctx, Topic, event); err != nil {
		return fmt.Errorf("publish change for %s: %w", change.Key, err)
	}
	return nil
}

// Subscribe implements notifier.Notifier. Listeners only hear changes while
// Run is active.
func (n *Notifier) Subscribe(fn notifier.Listener) func() {
	return n.bus.Subscribe(fn)
}

// GroupID is the consumer group of this instance.
func (n *Notifier) GroupID() string {
	return "storefront-sync-" + n.cfg.InstanceID
}

// Run consumes the sync topic until ctx is cancelled. A fresh group starts
// at the newest offset; history from before the process started is not
// replayed since managers load current state on construction.
func (n *Notifier) Run(ctx context.Context) error {
	consumer := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:     n.cfg.Brokers,
		GroupID:     n.GroupID(),
		Topic:       Topic,
		MinBytes:    1,
		MaxBytes:    1 << 20,
		StartOffset: segkafka.LastOffset,
	}, n.handler, n.logger)
	return consumer.Start(ctx)
}

// RunWithReader is Run over an existing reader.
func (n *Notifier) RunWithReader(ctx context.Context, r pkgkafka.MessageReader) error {
	consumer := pkgkafka.NewConsumerWithReader(r, Topic, n.GroupID(), n.handler, n.logger)
	return consumer.Start(ctx)
}

func (n *Notifier) handle(ctx context.Context, event *pkgkafka.Event) error {
	if event.EventType != EventChanged {
		return nil
	}

	var change notifier.Change
	if err := event.DecodeData(&change); err != nil {
		n.logger.ErrorContext(ctx, "dropping malformed change",
			slog.String("event_id", event.EventID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if change.Key == "" {
		return nil
	}

	n.bus.Dispatch(ctx, change)
	return nil
}

var _ notifier.Notifier = (*Notifier)(nil)
