package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brojonat/fogoscan/service/config"
	"github.com/brojonat/fogoscan/service/metrics"
	"github.com/brojonat/fogoscan/service/scancache"
)

// Server represents the HTTP server for the explorer API.
type Server struct {
	addr       string
	cfg        *config.Config
	validators ValidatorLister
	scans      ScanSubscriber
	store      scancache.Store
	details    DetailEnricher
	backfill   BackfillStarter
	metrics    *metrics.Metrics
	logger     *slog.Logger
	server     *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The backfill starter is optional - if nil, the backfill endpoint answers 503.
// The metrics is optional - if nil, the metrics endpoint won't be available.
func New(cfg *config.Config, lister ValidatorLister, scans ScanSubscriber, store scancache.Store, enricher DetailEnricher, backfill BackfillStarter, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:       cfg.ServerAddr,
		cfg:        cfg,
		validators: lister,
		scans:      scans,
		store:      store,
		details:    enricher,
		backfill:   backfill,
		metrics:    m,
		logger:     logger,
	}
}

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /api/validators", s.instrument("validators", handleListValidators(s.validators, s.logger)))
	mux.Handle("GET /api/tx-cache/{votePubkey}", s.instrument("tx_cache", handleGetCacheStatus(s.store, s.logger)))
	mux.Handle("GET /api/tx-scan/{votePubkey}", s.instrument("tx_scan", handleScanStream(s.scans, s.cfg.SSEKeepalive, s.metrics, s.logger)))
	mux.Handle("GET /api/tx-month/{votePubkey}/{monthKey}", s.instrument("tx_month", handleGetMonthTransactions(s.store, s.logger)))
	mux.Handle("POST /api/tx-details", s.instrument("tx_details", handleGetTransactionDetails(s.details, s.logger)))
	mux.Handle("POST /api/backfill/{votePubkey}", s.instrument("backfill", handleStartBackfill(s.backfill, s.metrics, s.logger)))

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	// Static browser UI (if configured)
	if s.cfg.StaticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(s.cfg.StaticDir)))
	}

	return corsMiddleware(mux)
}

func (s *Server) instrument(name string, h http.Handler) http.Handler {
	if s.metrics == nil {
		return h
	}
	return metrics.HTTPMetricsMiddleware(s.metrics, name)(h)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server",
		"addr", s.addr,
		"static_dir", s.cfg.StaticDir,
		"backfill_enabled", s.backfill != nil,
	)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Set CORS headers for all requests
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		// Handle preflight OPTIONS requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		// Pass through to next handler
		next.ServeHTTP(w, r)
	})
}
