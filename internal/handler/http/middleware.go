package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/utafrali/marketplace/internal/engine"
	apperrors "github.com/utafrali/marketplace/pkg/errors"
	"github.com/utafrali/marketplace/pkg/httputil"
	"github.com/utafrali/marketplace/pkg/logger"
)

// SessionProvider hands out the cart and watchlist of a profile namespace.
// *engine.Registry implements it.
type SessionProvider interface {
	Session(ctx context.Context, namespace string) (*engine.Session, error)
}

type contextKey string

const sessionKey contextKey = "session"

// WithSession resolves the session of the profile set by middleware.Profile
// and stores it in the request context.
func WithSession(sessions SessionProvider, l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			profileID := logger.ProfileIDFromContext(r.Context())
			if profileID == "" {
				httputil.WriteError(w, r, apperrors.Unauthorized("X-Profile-ID header is required"), l)
				return
			}

			s, err := sessions.Session(r.Context(), profileID)
			if err != nil {
				httputil.WriteError(w, r, err, l)
				return
			}

			ctx := context.WithValue(r.Context(), sessionKey, s)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionFromContext(ctx context.Context) *engine.Session {
	s, _ := ctx.Value(sessionKey).(*engine.Session)
	return s
}

// ContentTypeJSON rejects request bodies that are not declared as JSON.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct != "" && !strings.HasPrefix(ct, "application/json") {
				httputil.WriteJSON(w, http.StatusUnsupportedMediaType, httputil.Response{
					Error: &httputil.ErrorResponse{
						Code:    "UNSUPPORTED_MEDIA_TYPE",
						Message: "Content-Type must be application/json",
					},
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
