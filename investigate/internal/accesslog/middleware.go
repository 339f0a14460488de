package accesslog

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/telhawk-systems/telhawk-investigate/common/httputil"
	"github.com/telhawk-systems/telhawk-investigate/common/logging"
	"github.com/telhawk-systems/telhawk-investigate/common/middleware"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/models"
)

// Recorder persists access-log entries.
type Recorder interface {
	Record(ctx context.Context, l models.AccessLog) error
}

const recordTimeout = 2 * time.Second

var skipPaths = map[string]struct{}{
	"/healthz": {},
	"/readyz":  {},
	"/metrics": {},
}

// Middleware records every API request once it has been served. Recording
// happens off the request path; failures are logged and dropped.
func Middleware(rec Recorder, logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			if _, skip := skipPaths[r.URL.Path]; skip {
				return
			}

			entry := models.AccessLog{
				Method:    strings.ToUpper(r.Method),
				Path:      r.URL.RequestURI(),
				User:      middleware.GetActor(r.Context()),
				IP:        httputil.GetClientIP(r),
				Timestamp: time.Now().UTC(),
			}
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
				defer cancel()
				if err := rec.Record(ctx, entry); err != nil {
					logger.Warn("failed to record access log",
						logging.Path(entry.Path), logging.Error(err))
				}
			}()
		})
	}
}
