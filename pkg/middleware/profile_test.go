package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/marketplace/pkg/logger"
)

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error.Code
}

func TestValidProfileID(t *testing.T) {
	valid := []string{"a", "tab-1", "user:42", "5f1c.b2_x", strings.Repeat("a", 128)}
	for _, id := range valid {
		assert.True(t, ValidProfileID(id), id)
	}

	invalid := []string{"", "-leading", "has space", "semi;colon", "slash/inside", strings.Repeat("a", 129)}
	for _, id := range invalid {
		assert.False(t, ValidProfileID(id), id)
	}
}

func TestProfile_StoresID(t *testing.T) {
	var seen string
	handler := Profile(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.ProfileIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set(ProfileHeader, "browser-7")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "browser-7", seen)
}

func TestProfile_MissingHeader(t *testing.T) {
	handler := Profile(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, rec))
}

func TestProfile_MalformedHeader(t *testing.T) {
	handler := Profile(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set(ProfileHeader, "../etc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", errorCode(t, rec))
}

// ---------------------------------------------------------------------------
// Recovery and NoStore
// ---------------------------------------------------------------------------

func TestRecovery_PanicBecomes500(t *testing.T) {
	var buf bytes.Buffer
	handler := Recovery(logger.NewWithWriter("storefront", "info", &buf))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("nil cart")
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req = req.WithContext(logger.WithCorrelationID(req.Context(), "corr-1"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", errorCode(t, rec))
	assert.Contains(t, buf.String(), "panic recovered")
	assert.Contains(t, buf.String(), "nil cart")
}

func TestRecovery_RepanicsAbortHandler(t *testing.T) {
	handler := Recovery(logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithError(t, http.ErrAbortHandler.Error(), func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestRecovery_PassThrough(t *testing.T) {
	handler := Recovery(logger.Discard())(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNoStore(t *testing.T) {
	rec := httptest.NewRecorder()
	NoStore(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/watchlist", nil))

	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, ProfileHeader, rec.Header().Get("Vary"))
}
