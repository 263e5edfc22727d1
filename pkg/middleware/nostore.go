package middleware

import "net/http"

// NoStore marks responses as uncacheable. Cart and watchlist payloads are
// per-profile and change on every mutation.
func NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Vary", ProfileHeader)
		next.ServeHTTP(w, r)
	})
}
