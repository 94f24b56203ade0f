package api

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5/middleware"

	domainerrors "github.com/scanixapp/scanix-server/internal/errors"
)

// EnvelopeVersion is the version of the response envelope.
// Clients reject envelopes with an unknown version.
const EnvelopeVersion = 1

// APIEnvelope wraps every successful JSON response and plain errors.
type APIEnvelope struct { //nolint:revive // API prefix is intentional for clarity
	Version int    `json:"v"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// APIErrorEnvelope wraps coded errors.
type APIErrorEnvelope struct { //nolint:revive // API prefix is intentional for clarity
	Version int    `json:"v"`
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// EnvelopeTransformer is a huma transformer that wraps response bodies.
// Raw byte bodies (images) bypass transformers and are written as is.
func EnvelopeTransformer(_ huma.Context, _ string, v any) (any, error) {
	if err, ok := v.(error); ok {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return APIErrorEnvelope{
				Version: EnvelopeVersion,
				Code:    apiErr.Code,
				Message: apiErr.Message,
				Details: apiErr.Details,
			}, nil
		}
		// Handlers return domain errors directly; the cause stays in the logs.
		var domainErr *domainerrors.Error
		if errors.As(err, &domainErr) {
			return APIErrorEnvelope{
				Version: EnvelopeVersion,
				Code:    string(domainErr.Code),
				Message: domainErr.Message,
				Details: domainErr.Details,
			}, nil
		}
		return APIEnvelope{Version: EnvelopeVersion, Error: err.Error()}, nil
	}

	return APIEnvelope{Version: EnvelopeVersion, Success: true, Data: v}, nil
}

// requestLogger logs one line per request with the chi request ID.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			level := slog.LevelDebug
			if ww.Status() >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// uploadRateLimit limits upload operations per client IP.
// Returns 429 Too Many Requests with Retry-After when the limit is exceeded.
func (s *Server) uploadRateLimit(ctx huma.Context, next func(huma.Context)) {
	if s.uploadLimiter == nil {
		next(ctx)
		return
	}

	key := clientIP(ctx.RemoteAddr())
	if !s.uploadLimiter.Allow(key) {
		wait := s.uploadLimiter.RetryAfter(key)
		s.logger.Warn("upload rate limit exceeded", "ip", key, "path", ctx.URL().Path)

		secs := int(wait.Round(time.Second) / time.Second)
		ctx.SetHeader("Retry-After", strconv.Itoa(max(secs, 1)))
		_ = huma.WriteErr(s.api, ctx, http.StatusTooManyRequests, "Too many uploads. Please try again later.") //nolint:errcheck // Response already committed
		return
	}

	next(ctx)
}

// clientIP strips the port from a remote address. RealIP has already
// applied X-Forwarded-For and X-Real-IP.
func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
