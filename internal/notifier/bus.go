package notifier

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Bus is an in-process Notifier. Publish delivers synchronously to every
// listener in subscription order.
type Bus struct {
	mu        sync.RWMutex
	listeners map[uint64]Listener
	order     []uint64
	nextID    uint64
	logger    *slog.Logger
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		listeners: make(map[uint64]Listener),
		logger:    logger,
	}
}

// Publish implements Notifier.
func (b *Bus) Publish(ctx context.Context, change Change) error {
	if change.Timestamp.IsZero() {
		change.Timestamp = time.Now().UTC()
	}
	b.Dispatch(ctx, change)
	return nil
}

// Dispatch fans change out to local listeners. Remote notifiers call it
// for changes they receive.
func (b *Bus) Dispatch(ctx context.Context, change Change) {
	b.mu.RLock()
	targets := make([]Listener, 0, len(b.order))
	for _, id := range b.order {
		targets = append(targets, b.listeners[id])
	}
	b.mu.RUnlock()

	for _, fn := range targets {
		b.deliver(ctx, fn, change)
	}
}

// Subscribe implements Notifier.
func (b *Bus) Subscribe(fn Listener) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	b.order = append(b.order, id)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

// Len returns the number of live subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.listeners, id)
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

func (b *Bus) deliver(ctx context.Context, fn Listener, change Change) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.ErrorContext(ctx, "change listener panicked",
				slog.String("key", change.Key),
				slog.Any("panic", r),
			)
		}
	}()
	fn(change)
}

var _ Notifier = (*Bus)(nil)
