package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/marketplace/internal/checkout"
	"github.com/utafrali/marketplace/internal/engine"
	"github.com/utafrali/marketplace/internal/notifier"
	"github.com/utafrali/marketplace/internal/repository/memory"
	"github.com/utafrali/marketplace/pkg/health"
	"github.com/utafrali/marketplace/pkg/logger"
	"github.com/utafrali/marketplace/pkg/middleware"
)

// ============================================================================
// Mock Checkouter
// ============================================================================

type mockCheckouter struct {
	mock.Mock
}

func (m *mockCheckouter) Checkout(ctx context.Context, cart checkout.CartSource, input checkout.Input) (*checkout.Order, error) {
	args := m.Called(ctx, cart, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*checkout.Order), args.Error(1)
}

// ============================================================================
// Test helpers
// ============================================================================

const testProfile = "tab-1"

type testEnv struct {
	registry *engine.Registry
	kv       *memory.Store
	checkout *mockCheckouter
	router   http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	co := &mockCheckouter{}
	env := newTestEnvWith(t, co)
	env.checkout = co
	return env
}

func newTestEnvWith(t *testing.T, co Checkouter) *testEnv {
	t.Helper()

	kv := memory.NewStore(0)
	registry := engine.NewRegistry(engine.Options{
		Store:    kv,
		Notifier: notifier.NewBus(logger.Discard()),
		Logger:   logger.Discard(),
	})
	t.Cleanup(registry.Close)

	cfg := DefaultRouterConfig()
	cfg.Heartbeat = 0

	return &testEnv{
		registry: registry,
		kv:       kv,
		router:   NewRouter(registry, co, health.NewHandler(), logger.Discard(), cfg),
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Profile-ID", testProfile)

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) session(t *testing.T) *engine.Session {
	t.Helper()
	s, err := e.registry.Session(context.Background(), testProfile)
	require.NoError(t, err)
	return s
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &out))
	return out
}

func product(id string, price int64) map[string]any {
	return map[string]any{
		"id":     id,
		"title":  "Product " + id,
		"price":  price,
		"images": []string{"https://cdn.example.com/" + id + ".jpg"},
		"seller": map[string]any{"name": "Acme", "rating": 4.5},
	}
}

// ============================================================================
// Profile handling
// ============================================================================

func TestRouter_MissingProfileIs401(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", decodeEnvelope(t, rec).Error.Code)
}

func TestRouter_ProfilesAreIsolated(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{"product": product("p1", 500)})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("X-Profile-ID", "tab-2")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	cart := decodeData[CartResponse](t, rec)
	assert.Empty(t, cart.Items)
	assert.Equal(t, 2, env.registry.Len())
}

func TestRouter_NoStoreHeader(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/watchlist", nil)

	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
}

func TestRouter_RejectsNonJSONBody(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader("id=p1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Profile-ID", testProfile)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestRouter_RateLimitPerProfile(t *testing.T) {
	env := newTestEnv(t)
	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{RPS: 0.001, Burst: 1}, logger.Discard())
	t.Cleanup(limiter.Close)

	cfg := DefaultRouterConfig()
	cfg.RateLimiter = limiter
	router := NewRouter(env.registry, env.checkout, health.NewHandler(), logger.Discard(), cfg)

	get := func(profile string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
		req.Header.Set("X-Profile-ID", profile)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, get(testProfile).Code)
	limited := get(testProfile)
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "RATE_LIMITED", decodeEnvelope(t, limited).Error.Code)
	assert.Equal(t, http.StatusOK, get("tab-2").Code)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

// ============================================================================
// Cart
// ============================================================================

func TestCart_AddMergesAndTotals(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{"product": product("p1", 1250), "quantity": 2})
	require.Equal(t, http.StatusOK, rec.Code)
	env.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{"product": product("p2", 1999)})
	rec = env.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{"product": product("p1", 9999), "quantity": 1})

	cart := decodeData[CartResponse](t, rec)
	require.Len(t, cart.Items, 2)
	assert.Equal(t, 3, cart.Items[0].Quantity)
	assert.Equal(t, int64(1250), cart.Items[0].Product.Price, "snapshot kept from first add")
	assert.Equal(t, int64(3*1250+1999), cart.TotalAmount)
	assert.Equal(t, 4, cart.ItemCount)
}

func TestCart_AddWithoutQuantityAddsOne(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{"product": product("p1", 100), "quantity": -3})

	cart := decodeData[CartResponse](t, rec)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 1, cart.Items[0].Quantity)
}

func TestCart_AddValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{"product": map[string]any{"price": -1}})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env1 := decodeEnvelope(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", env1.Error.Code)
	assert.Contains(t, env1.Error.Fields, "product.id")
	assert.Contains(t, env1.Error.Fields, "product.title")
	assert.Contains(t, env1.Error.Fields, "product.price")
}

func TestCart_AddMalformedJSON(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader("{"))
	req.Header.Set("X-Profile-ID", testProfile)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", decodeEnvelope(t, rec).Error.Code)
}

func TestCart_UpdateQuantity(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{"product": product("p1", 100)})

	rec := env.do(t, http.MethodPut, "/api/v1/cart/items/p1", map[string]any{"quantity": 7})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 7, decodeData[CartResponse](t, rec).ItemCount)

	rec = env.do(t, http.MethodPut, "/api/v1/cart/items/p1", map[string]any{"quantity": 0})
	assert.Empty(t, decodeData[CartResponse](t, rec).Items)
}

func TestCart_UpdateQuantityRequired(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/api/v1/cart/items/p1", map[string]any{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeEnvelope(t, rec).Error.Fields, "quantity")
}

func TestCart_UpdateAbsentProductIsNoop(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/api/v1/cart/items/ghost", map[string]any{"quantity": 3})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeData[CartResponse](t, rec).Items)
}

func TestCart_RemoveAndItemStatus(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{"product": product("p1", 100), "quantity": 2})

	status := decodeData[CartItemStatus](t, env.do(t, http.MethodGet, "/api/v1/cart/items/p1", nil))
	assert.True(t, status.InCart)
	assert.Equal(t, 2, status.Quantity)

	rec := env.do(t, http.MethodDelete, "/api/v1/cart/items/p1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	status = decodeData[CartItemStatus](t, env.do(t, http.MethodGet, "/api/v1/cart/items/p1", nil))
	assert.False(t, status.InCart)
	assert.Equal(t, 0, status.Quantity)
}

func TestCart_ClearDeletesKey(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{"product": product("p1", 100)})
	require.True(t, env.kv.Exists(testProfile+"-cart"))

	rec := env.do(t, http.MethodDelete, "/api/v1/cart", nil)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, env.kv.Exists(testProfile+"-cart"))
	assert.Equal(t, 0, env.session(t).Cart.ItemCount())
}

func TestCart_SortRecent(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{"product": product("old", 100)})
	time.Sleep(5 * time.Millisecond)
	env.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{"product": product("new", 100)})

	insertion := decodeData[CartResponse](t, env.do(t, http.MethodGet, "/api/v1/cart", nil))
	recent := decodeData[CartResponse](t, env.do(t, http.MethodGet, "/api/v1/cart?sort=recent", nil))

	assert.Equal(t, "old", insertion.Items[0].Product.ID)
	assert.Equal(t, "new", recent.Items[0].Product.ID)
}

// ============================================================================
// Watchlist
// ============================================================================

func TestWatchlist_SetSemantics(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/api/v1/watchlist/items", map[string]any{"product": product("p1", 100)})
	rec := env.do(t, http.MethodPost, "/api/v1/watchlist/items", map[string]any{"product": product("p1", 100)})

	list := decodeData[WatchlistResponse](t, rec)
	assert.Len(t, list.Items, 1)
	assert.Equal(t, 1, list.ItemCount)

	status := decodeData[WatchItemStatus](t, env.do(t, http.MethodGet, "/api/v1/watchlist/items/p1", nil))
	assert.True(t, status.Watched)
}

func TestWatchlist_RemoveAndClear(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/v1/watchlist/items", map[string]any{"product": product("p1", 100)})
	env.do(t, http.MethodPost, "/api/v1/watchlist/items", map[string]any{"product": product("p2", 100)})

	rec := env.do(t, http.MethodDelete, "/api/v1/watchlist/items/p1", nil)
	assert.Equal(t, 1, decodeData[WatchlistResponse](t, rec).ItemCount)

	rec = env.do(t, http.MethodDelete, "/api/v1/watchlist", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, env.kv.Exists(testProfile+"-watchlist"))

	empty := decodeData[WatchlistResponse](t, env.do(t, http.MethodGet, "/api/v1/watchlist", nil))
	assert.NotNil(t, empty.Items)
	assert.Empty(t, empty.Items)
}

func TestWatchlist_AddValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/watchlist/items", map[string]any{"product": map[string]any{"id": "p1"}})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeEnvelope(t, rec).Error.Fields, "product.title")
}
