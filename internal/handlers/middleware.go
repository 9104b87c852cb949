package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// RequestIDHeader carries the per-request identifier in both directions.
const RequestIDHeader = "X-Request-ID"

type loggerKey struct{}

// Logger returns the request-scoped entry stored by RequestID.
func Logger(ctx context.Context) *log.Entry {
	if e, ok := ctx.Value(loggerKey{}).(*log.Entry); ok {
		return e
	}
	return log.NewEntry(log.StandardLogger())
}

func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+RequestIDHeader)
		w.Header().Set("Access-Control-Expose-Headers", RequestIDHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// RequestID tags each request with an ID, taken from the client when it
// sends a valid UUID, and logs the outcome.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		entry := log.WithField("request_id", id)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), loggerKey{}, entry)))

		entry.WithFields(log.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start),
		}).Debug("[HTTP] Request served")
	})
}
