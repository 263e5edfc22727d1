package middleware

import (
	"net/http"
	"regexp"

	apperrors "github.com/utafrali/marketplace/pkg/errors"
	"github.com/utafrali/marketplace/pkg/httputil"
	"github.com/utafrali/marketplace/pkg/logger"
)

// ProfileHeader names the browser profile whose cart and watchlist a request
// acts on.
const ProfileHeader = "X-Profile-ID"

var profileIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]{0,127}$`)

// ValidProfileID reports whether id can be used as a storage namespace.
func ValidProfileID(id string) bool {
	return profileIDPattern.MatchString(id)
}

// Profile requires the X-Profile-ID header, answering 401 when it is absent
// and 400 when it is malformed, and stores it with logger.WithProfileID.
func Profile(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(ProfileHeader)
		if id == "" {
			httputil.WriteError(w, r, apperrors.Unauthorized("X-Profile-ID header is required"), nil)
			return
		}
		if !ValidProfileID(id) {
			httputil.WriteError(w, r, apperrors.InvalidInput("X-Profile-ID header is malformed"), nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(logger.WithProfileID(r.Context(), id)))
	})
}
