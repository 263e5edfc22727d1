package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/utafrali/marketplace/internal/notifier"
	"github.com/utafrali/marketplace/internal/persistence"
)

const reloadTimeout = 5 * time.Second

// listState is the machinery shared by both managers: the in-memory list,
// its persistence and the change observers.
//
// writeMu serializes mutate-then-save sequences. mu guards items only and is
// never held across storage I/O, so reads and notification-driven reloads
// do not wait on a slow save. A synchronous notifier delivers the manager's
// own change while writeMu is held; the reload path therefore takes mu only.
type listState[T any] struct {
	engine string
	opts   Options
	store  *persistence.ListStore[T]
	logger *slog.Logger

	writeMu sync.Mutex

	mu    sync.RWMutex
	items []T

	obsMu     sync.Mutex
	observers map[uint64]func()
	nextObs   uint64

	unsubscribe func()
	closeOnce   sync.Once
}

// normalize repairs every list read back from storage.
func newListState[T any](ctx context.Context, engine, key string, normalize func([]T) []T, opts Options) *listState[T] {
	origin := opts.IDs()
	l := &listState[T]{
		engine:    engine,
		opts:      opts,
		store:     persistence.NewListStore[T](opts.Store, key, opts.Notifier, origin, opts.Logger).WithNormalizer(normalize),
		observers: make(map[uint64]func()),
		logger: opts.Logger.With(
			slog.String("engine", engine),
			slog.String("key", key),
			slog.String("origin", origin),
		),
	}

	items, err := l.store.Load(ctx)
	if err != nil {
		l.logger.WarnContext(ctx, "starting with an empty list", slog.String("error", err.Error()))
	}
	l.items = items

	l.unsubscribe = opts.Notifier.Subscribe(l.onChange)
	return l
}

// snapshot returns a copy of the current list.
func (l *listState[T]) snapshot() []T {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneList(l.items)
}

func (l *listState[T]) read(fn func(items []T)) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	fn(l.items)
}

func (l *listState[T]) set(items []T) {
	l.mu.Lock()
	l.items = items
	l.mu.Unlock()
}

// mutate applies fn to the current list, keeps the result in memory and
// saves it. A failed save is logged; the in-memory result stays and no
// change is announced. It reports whether the save succeeded.
func (l *listState[T]) mutate(ctx context.Context, op string, fn func(items []T) []T) ([]T, bool) {
	next, saved, _ := l.commit(ctx, op, fn, false)
	return next, saved
}

// mutateOrClear is mutate, except that an empty result removes the stored
// key instead of saving an empty list. cleared reports that case.
func (l *listState[T]) mutateOrClear(ctx context.Context, op string, fn func(items []T) []T) (items []T, saved, cleared bool) {
	return l.commit(ctx, op, fn, true)
}

func (l *listState[T]) commit(ctx context.Context, op string, fn func(items []T) []T, clearEmpty bool) ([]T, bool, bool) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	base := l.base(ctx)
	next := fn(base)
	if next == nil {
		next = []T{}
	}
	l.set(next)
	mutationsTotal.WithLabelValues(l.engine, op).Inc()

	cleared := clearEmpty && len(next) == 0
	var err error
	if cleared {
		err = l.store.Clear(ctx)
	} else {
		err = l.store.Save(ctx, next)
	}

	saved := true
	if err != nil {
		saved = false
		persistFailuresTotal.WithLabelValues(l.engine, op).Inc()
		l.logger.WarnContext(ctx, "mutation kept in memory only",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
	}

	l.fire()
	return cloneList(next), saved, cleared
}

// clear empties the list and removes the stored key.
func (l *listState[T]) clear(ctx context.Context) bool {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	l.set([]T{})
	mutationsTotal.WithLabelValues(l.engine, "clear").Inc()

	saved := true
	if err := l.store.Clear(ctx); err != nil {
		saved = false
		persistFailuresTotal.WithLabelValues(l.engine, "clear").Inc()
		l.logger.WarnContext(ctx, "clear kept in memory only", slog.String("error", err.Error()))
	}

	l.fire()
	return saved
}

// base is the list a mutation starts from.
func (l *listState[T]) base(ctx context.Context) []T {
	if l.opts.Policy != PolicyReadMergeWrite {
		return l.snapshot()
	}

	fresh, err := l.store.Load(ctx)
	switch {
	case err == nil:
		return fresh
	case errors.Is(err, persistence.ErrCorrupt):
		l.logger.WarnContext(ctx, "discarding corrupt stored list", slog.String("error", err.Error()))
		return []T{}
	default:
		l.logger.WarnContext(ctx, "storage unreadable, mutating in-memory list", slog.String("error", err.Error()))
		return l.snapshot()
	}
}

// onChange reloads from storage when the manager's key changed. The payload
// is never decoded.
func (l *listState[T]) onChange(change notifier.Change) {
	if change.Key != l.store.Key() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
	defer cancel()
	l.reload(ctx)
}

func (l *listState[T]) reload(ctx context.Context) {
	items, err := l.store.Load(ctx)
	switch {
	case err == nil:
		l.set(items)
	case errors.Is(err, persistence.ErrCorrupt):
		l.logger.WarnContext(ctx, "stored list corrupt, resetting", slog.String("error", err.Error()))
		l.set([]T{})
	default:
		l.logger.WarnContext(ctx, "reload failed, keeping current list", slog.String("error", err.Error()))
	}

	reloadsTotal.WithLabelValues(l.engine).Inc()
	l.fire()
}

// observe registers fn and returns its cancel function.
func (l *listState[T]) observe(fn func()) func() {
	l.obsMu.Lock()
	id := l.nextObs
	l.nextObs++
	l.observers[id] = fn
	l.obsMu.Unlock()

	return func() {
		l.obsMu.Lock()
		delete(l.observers, id)
		l.obsMu.Unlock()
	}
}

func (l *listState[T]) fire() {
	l.obsMu.Lock()
	fns := make([]func(), 0, len(l.observers))
	for _, fn := range l.observers {
		fns = append(fns, fn)
	}
	l.obsMu.Unlock()

	for _, fn := range fns {
		l.call(fn)
	}
}

func (l *listState[T]) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("change observer panicked", slog.Any("panic", r))
		}
	}()
	fn()
}

func (l *listState[T]) close() {
	l.closeOnce.Do(func() {
		l.unsubscribe()
		l.obsMu.Lock()
		l.observers = make(map[uint64]func())
		l.obsMu.Unlock()
	})
}

func cloneList[T any](items []T) []T {
	out := make([]T, len(items))
	copy(out, items)
	return out
}
