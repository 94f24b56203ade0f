// Package api provides the HTTP API server and handlers for the Scanix server.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/scanixapp/scanix-server/internal/ratelimit"
	"github.com/scanixapp/scanix-server/internal/sse"
	"github.com/scanixapp/scanix-server/internal/validation"
)

// Version is reported in the OpenAPI document.
const Version = "1.0.0"

// Options configures the HTTP surface.
type Options struct {
	AllowedOrigins []string // CORS; empty allows any origin
	UploadRPS      float64  // per-client upload rate; 0 disables limiting
	UploadBurst    int
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	services      *Services
	sseManager    *sse.Manager
	sseHandler    *sse.Handler
	uploadLimiter *ratelimit.KeyedRateLimiter
	validator     *validation.Validator
	router        *chi.Mux
	api           huma.API
	logger        *slog.Logger
	startedAt     time.Time
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(services *Services, sseManager *sse.Manager, opts Options, logger *slog.Logger) *Server {
	router := chi.NewRouter()

	s := &Server{
		services:   services,
		sseManager: sseManager,
		validator:  validation.New(),
		router:     router,
		logger:     logger,
		startedAt:  time.Now(),
	}
	if sseManager != nil {
		s.sseHandler = sse.NewHandler(sseManager, logger)
	}
	if opts.UploadRPS > 0 {
		s.uploadLimiter = ratelimit.New(opts.UploadRPS, max(opts.UploadBurst, 1), time.Minute)
	}

	s.setupMiddleware(opts)

	humaConfig := huma.DefaultConfig("Scanix API", Version)
	humaConfig.Info.Description = "Capture, organize, and export scanned documents."
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)

	s.api = humachi.New(router, humaConfig)
	RegisterErrorHandler()

	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API returns the huma API, for tests and OpenAPI generation.
func (s *Server) API() huma.API {
	return s.api
}

// Shutdown stops background work owned by the server.
func (s *Server) Shutdown() error {
	if s.uploadLimiter != nil {
		s.uploadLimiter.Stop()
	}
	return nil
}

// setupMiddleware configures the middleware stack.
func (s *Server) setupMiddleware(opts Options) {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "If-None-Match"},
		ExposedHeaders: []string{"ETag", "Retry-After", "Content-Disposition"},
		MaxAge:         300,
	}))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.registerHealthRoutes()
	s.registerScanRoutes()
	s.registerPageRoutes()
	s.registerExportRoutes()
	s.registerSearchRoutes()
	s.registerNameRoutes()

	// SSE streams outside huma; the response never completes.
	if s.sseHandler != nil {
		s.router.Get("/api/v1/events", s.sseHandler.ServeHTTP)
	}
}
