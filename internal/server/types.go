package server

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/buildscan/qto/internal/aggregate"
	"github.com/buildscan/qto/internal/pipeline"
)

// extractorInterface defines what the server needs from the pipeline.
type extractorInterface interface {
	Extract(ctx context.Context, req pipeline.Request) (*aggregate.Result, error)
	ExtractWithProgress(ctx context.Context, req pipeline.Request, progress pipeline.ProgressFunc) (*aggregate.Result, error)
	Config() pipeline.Config
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	extractor  extractorInterface
	corsOrigin string
	limiter    *UploadLimiter
}

// Config holds server configuration.
type Config struct {
	Host            string
	Port            int
	CORSOrigin      string
	ShutdownTimeout time.Duration

	// Per-client upload limits; zero disables the corresponding check.
	RateLimitPerMinute int
	DailyUploadBytes   int64
}

// HealthResponse is the /health body.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

// ErrorResponse is the structured error body for all non-2xx responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
}

// NewServer creates a server around a built extraction pipeline.
func NewServer(cfg Config, extractor extractorInterface) *Server {
	corsOrigin := cfg.CORSOrigin
	if corsOrigin == "" {
		corsOrigin = "*"
	}
	var limiter *UploadLimiter
	if cfg.RateLimitPerMinute > 0 || cfg.DailyUploadBytes > 0 {
		limiter = NewUploadLimiter(cfg.RateLimitPerMinute, cfg.DailyUploadBytes)
	}
	return &Server{
		extractor:  extractor,
		corsOrigin: corsOrigin,
		limiter:    limiter,
	}
}

// SetupRoutes registers all endpoints on the mux.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/extract", s.corsMiddleware(s.rateLimitMiddleware(s.extractHandler)))
	mux.HandleFunc("/extract/ws", s.rateLimitMiddleware(s.extractWebSocketHandler))
	mux.Handle("/metrics", promhttp.Handler())
}
