package gateway

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/chatagent/internal/observability"
)

const requestIDHeader = "X-Request-Id"

// statusRecorder captures the response code. It forwards Hijack and Flush so
// websocket upgrades and streamed responses keep working behind it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	if r.status == 0 {
		r.status = http.StatusSwitchingProtocols
	}
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// instrument tags the request with a request id and session id, traces it and
// records its outcome.
func (s *Server) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		ctx := observability.AddRequestID(r.Context(), requestID)
		if session := r.PathValue("session"); session != "" {
			ctx = observability.AddSessionID(ctx, session)
		}
		ctx, span := s.opts.Tracer.TraceHTTPRequest(ctx, r.Method, route)
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r.WithContext(ctx))

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
		s.opts.Metrics.RecordHTTPRequest(route, status, duration)
		s.logger.DebugContext(ctx, "http request",
			"method", r.Method,
			"route", route,
			"status", status,
			"duration", duration,
		)
	})
}
