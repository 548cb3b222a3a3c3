package proxy

import (
	"net/http"
	"strconv"
	"time"
)

// responseWriter wraps http.ResponseWriter to capture status code and size.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// Flush implements http.Flusher so streaming relays keep flushing through
// the wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) statusString() string {
	return strconv.Itoa(rw.statusCode)
}

// observe wraps a handler with request logging and metrics. route is the
// stable label used for metrics, not the raw path.
func (s *Server) observe(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := newResponseWriter(w)

		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered", "route", route, "error", err)
				writeJSON(rw, http.StatusInternalServerError, map[string]any{"error": "internal server error"})
			}
			duration := time.Since(start)
			s.metrics.RecordRequest(route, rw.statusString(), duration)
			s.logger.Info("request completed",
				"method", r.Method,
				"route", route,
				"status", rw.statusCode,
				"bytes", rw.bytesWritten,
				"duration_ms", duration.Milliseconds(),
			)
		}()

		next(rw, r)
	}
}
