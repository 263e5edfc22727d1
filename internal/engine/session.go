package engine

import (
	"context"
	"fmt"
	"sync"

	apperrors "github.com/utafrali/marketplace/pkg/errors"
)

// Session pairs the cart and watchlist of one profile namespace.
type Session struct {
	Namespace string
	Cart      *CartManager
	Watchlist *WatchlistManager
}

// NewSession creates both managers for opts.Namespace.
func NewSession(ctx context.Context, opts Options) (*Session, error) {
	cart, err := NewCartManager(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("create cart manager: %w", err)
	}
	watchlist, err := NewWatchlistManager(ctx, opts)
	if err != nil {
		cart.Close()
		return nil, fmt.Errorf("create watchlist manager: %w", err)
	}

	return &Session{
		Namespace: opts.Namespace,
		Cart:      cart,
		Watchlist: watchlist,
	}, nil
}

// OnChange registers fn on both managers.
func (s *Session) OnChange(fn func()) (cancel func()) {
	cancelCart := s.Cart.OnChange(fn)
	cancelWatchlist := s.Watchlist.OnChange(fn)
	return func() {
		cancelCart()
		cancelWatchlist()
	}
}

// Close closes both managers.
func (s *Session) Close() {
	s.Cart.Close()
	s.Watchlist.Close()
}

// Registry hands out one Session per namespace, creating it on first use.
// All sessions share the backend, notifier and policy of base.
type Registry struct {
	base Options

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewRegistry creates an empty registry. base.Namespace is ignored.
func NewRegistry(base Options) *Registry {
	return &Registry{
		base:     base,
		sessions: make(map[string]*Session),
	}
}

// Session returns the session for namespace, creating it if needed.
func (r *Registry) Session(ctx context.Context, namespace string) (*Session, error) {
	if namespace == "" {
		return nil, apperrors.InvalidInput("namespace is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, apperrors.ServiceUnavailable("session registry is closed")
	}
	if s, ok := r.sessions[namespace]; ok {
		return s, nil
	}

	opts := r.base
	opts.Namespace = namespace
	s, err := NewSession(ctx, opts)
	if err != nil {
		return nil, err
	}
	r.sessions[namespace] = s
	return s, nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close closes every session. Later Session calls fail.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for ns, s := range r.sessions {
		s.Close()
		delete(r.sessions, ns)
	}
	r.closed = true
}
