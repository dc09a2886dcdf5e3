// Package obs wires structured logging for the rate limit service.
package obs

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// SetupLogger builds a JSON logger writing to stdout. Unknown level
// strings fall back to info.
func SetupLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano

	return zerolog.New(os.Stdout).With().Timestamp().Logger().Level(lvl)
}

// RequestID middleware: uses X-Request-ID if present, else generates one.
func RequestID() func(http.Handler) http.Handler {
	return hlog.RequestIDHandler("req_id", "X-Request-ID")
}

// Logger returns a middleware that logs one line per request with
// method, path, remote address, status, size and duration.
func Logger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return hlog.NewHandler(logger)(
			hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
				hlog.FromRequest(r).Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("remote", r.RemoteAddr).
					Int("status", status).
					Int("size", size).
					Dur("dur", duration).
					Msg("req")
			})(
				hlog.RequestIDHandler("req_id", "X-Request-ID")(next),
			),
		)
	}
}
