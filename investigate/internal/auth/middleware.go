package auth

import (
	"net/http"
	"strings"

	"github.com/telhawk-systems/telhawk-investigate/common/httputil"
	"github.com/telhawk-systems/telhawk-investigate/common/logging"
	"github.com/telhawk-systems/telhawk-investigate/common/middleware"
)

// Middleware resolves the bearer token into an actor. When required is false
// anonymous requests pass through and the service falls back to its system
// actor; a token that is present but invalid is always rejected.
func Middleware(v *TokenValidator, required bool, logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			if header == "" {
				if required {
					httputil.WriteError(w, http.StatusUnauthorized, "unauthorized", "Missing authorization header")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				httputil.WriteError(w, http.StatusUnauthorized, "unauthorized", "Invalid authorization header")
				return
			}

			claims, err := v.Validate(strings.TrimSpace(parts[1]))
			if err != nil {
				logger.DebugContext(r.Context(), "token rejected", logging.Error(err))
				httputil.WriteError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			ctx := middleware.WithActor(r.Context(), claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func exempt(path string) bool {
	switch path {
	case "/healthz", "/readyz", "/metrics":
		return true
	}
	return false
}
