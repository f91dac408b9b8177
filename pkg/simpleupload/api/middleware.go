package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// Middleware wraps an http.Handler
type Middleware func(http.Handler) http.Handler

type contextKey string

// RequestIDKey is the context key holding the request ID
const RequestIDKey contextKey = "request_id"

// RequestIDHeader carries the request ID in both directions
const RequestIDHeader = "X-Request-ID"

// RequestIDFromContext returns the request ID of the request, whether set by
// RequestIDMiddleware or by chi's middleware.RequestID further up the stack.
func RequestIDFromContext(ctx context.Context) string {
	if id, _ := ctx.Value(RequestIDKey).(string); id != "" {
		return id
	}
	return middleware.GetReqID(ctx)
}

// RequestIDMiddleware echoes the request ID on the response. It reuses an ID
// already assigned upstream, then an incoming X-Request-ID, and otherwise
// assigns a new uuid.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := RequestIDFromContext(r.Context())
		if id == "" {
			id = r.Header.Get(RequestIDHeader)
		}
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), RequestIDKey, id)))
	})
}

// observe runs next and reports status, byte count and elapsed time
func observe(w http.ResponseWriter, r *http.Request, next http.Handler, done func(status int, bytes int64, elapsed time.Duration)) {
	ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
	start := time.Now()
	next.ServeHTTP(ww, r)

	status := ww.Status()
	if status == 0 {
		status = http.StatusOK
	}
	done(status, int64(ww.BytesWritten()), time.Since(start))
}

// LoggingMiddleware logs one line per completed request
func LoggingMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			observe(w, r, next, func(status int, bytes int64, elapsed time.Duration) {
				logger.Info("request",
					"request_id", RequestIDFromContext(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"status", status,
					"duration", elapsed,
					"bytes", bytes,
				)
			})
		})
	}
}

// RecoveryMiddleware turns a panic into a 500 JSON error
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("Recovered from panic", "request_id", RequestIDFromContext(r.Context()), "panic", rec)
				writeError(w, r, http.StatusInternalServerError, "An internal server error occurred")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// MetricsCollector receives one observation per request
type MetricsCollector interface {
	RecordRequest(method, path string, statusCode int, duration time.Duration, size int64)
}

// UnmatchedRoute is the path label for requests no route matched
const UnmatchedRoute = "unmatched"

// MetricsMiddleware reports each request to collector, labelled with the
// chi route pattern so path parameters and 404 scans don't explode label
// cardinality.
func MetricsMiddleware(collector MetricsCollector) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			observe(w, r, next, func(status int, bytes int64, elapsed time.Duration) {
				path := UnmatchedRoute
				if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
					path = rctx.RoutePattern()
				}
				collector.RecordRequest(r.Method, path, status, elapsed, bytes)
			})
		})
	}
}

// BodyLimitMiddleware caps request bodies at maxBytes
func BodyLimitMiddleware(maxBytes int64) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// RouterOptions configures NewRouter, Register and Attach
type RouterOptions struct {
	Logger         *slog.Logger
	Metrics        MetricsCollector
	MaxBodyBytes   int64
	RequestTimeout time.Duration
}

func (o RouterOptions) withDefaults() RouterOptions {
	if o.MaxBodyBytes == 0 {
		o.MaxBodyBytes = 1 << 20
	}
	if o.RequestTimeout == 0 {
		o.RequestTimeout = 60 * time.Second
	}
	return o
}

// NewRouter builds a standalone router with the full middleware stack, the
// upload handlers, and any extra routes registered by mount.
func NewRouter(h *Handlers, opts RouterOptions, mount ...func(chi.Router)) chi.Router {
	r := chi.NewRouter()
	Register(r, h, opts, mount...)
	return r
}

// Register installs request IDs, request logging, panic recovery and a
// timeout, then the routes. Use it on a router with no stack of its own.
func Register(r chi.Router, h *Handlers, opts RouterOptions, mount ...func(chi.Router)) {
	opts = opts.withDefaults()

	r.Use(RequestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(opts.Logger))
	r.Use(RecoveryMiddleware)
	r.Use(middleware.Timeout(opts.RequestTimeout))
	routes(r, h, opts, mount)
}

// Attach installs the routes on a router whose own stack already assigns
// request IDs, logs requests and recovers panics, such as chi-demo's app.
// It only echoes the existing request ID and adds metrics and the body limit.
func Attach(r chi.Router, h *Handlers, opts RouterOptions, mount ...func(chi.Router)) {
	opts = opts.withDefaults()

	r.Use(RequestIDMiddleware)
	routes(r, h, opts, mount)
}

func routes(r chi.Router, h *Handlers, opts RouterOptions, mount []func(chi.Router)) {
	if opts.Metrics != nil {
		r.Use(MetricsMiddleware(opts.Metrics))
	}

	r.Group(func(r chi.Router) {
		r.Use(BodyLimitMiddleware(opts.MaxBodyBytes))
		h.Mount(r)
	})

	for _, m := range mount {
		m(r)
	}
}
