package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/marketplace/internal/notifier"
)

// DefaultChannel is the Pub/Sub channel used when none is configured.
const DefaultChannel = "storefront:changes"

// Notifier broadcasts changes over Redis Pub/Sub. Changes published by this
// process reach local subscribers through the same round trip as changes
// from other processes.
type Notifier struct {
	client  *redis.Client
	channel string
	bus     *notifier.Bus
	logger  *slog.Logger

	mu      sync.Mutex
	running bool
	ready   chan struct{}
}

// New creates a notifier on channel. The caller owns client.
func New(client *redis.Client, channel string, logger *slog.Logger) *Notifier {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Notifier{
		client:  client,
		channel: channel,
		bus:     notifier.NewBus(logger),
		logger:  logger,
		ready:   make(chan struct{}),
	}
}

// Publish implements notifier.Notifier.
func (n *Notifier) Publish(ctx context.Context, change notifier.Change) error {
	if change.Timestamp.IsZero() {
		change.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal change for %s: %w", change.Key, err)
	}

	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		n.logger.ErrorContext(ctx, "failed to publish change",
			slog.String("channel", n.channel),
			slog.String("key", change.Key),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("publish change for %s: %w", change.Key, err)
	}
	return nil
}

// Subscribe implements notifier.Notifier. Listeners only hear changes while
// Run is active.
func (n *Notifier) Subscribe(fn notifier.Listener) func() {
	return n.bus.Subscribe(fn)
}

// Ready is closed once Run has confirmed its channel subscription.
func (n *Notifier) Ready() <-chan struct{} {
	return n.ready
}

// Run receives changes from Redis and dispatches them to local listeners in
// arrival order. It blocks until ctx is cancelled or the subscription drops.
func (n *Notifier) Run(ctx context.Context) error {
	n.mu.Lock()
	if n.running {
		n.mu.Unlock()
		return errors.New("redis notifier already running")
	}
	n.running = true
	n.mu.Unlock()
	defer func() {
		n.mu.Lock()
		n.running = false
		n.mu.Unlock()
	}()

	pubsub := n.client.Subscribe(ctx, n.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", n.channel, err)
	}
	n.markReady()
	n.logger.Info("listening for storage changes", slog.String("channel", n.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			n.logger.Info("change listener stopped", slog.String("channel", n.channel))
			return nil
		case msg, ok := <-ch:
			if !ok {
				n.logger.Warn("change channel closed", slog.String("channel", n.channel))
				return nil
			}

			var change notifier.Change
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				n.logger.Error("dropping malformed change",
					slog.String("channel", n.channel),
					slog.String("error", err.Error()),
				)
				continue
			}
			if change.Key == "" {
				continue
			}
			n.bus.Dispatch(ctx, change)
		}
	}
}

func (n *Notifier) markReady() {
	select {
	case <-n.ready:
	default:
		close(n.ready)
	}
}

var _ notifier.Notifier = (*Notifier)(nil)
