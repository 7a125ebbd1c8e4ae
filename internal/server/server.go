package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/chainpulse/wallet-tracker/internal/metrics"
	"github.com/chainpulse/wallet-tracker/internal/notification"
	"github.com/chainpulse/wallet-tracker/internal/provider"
	"github.com/chainpulse/wallet-tracker/internal/rotation"
	"github.com/chainpulse/wallet-tracker/internal/scheduler"
	"github.com/chainpulse/wallet-tracker/internal/storage"
	"github.com/chainpulse/wallet-tracker/pkg/utils"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port              int           `json:"port"`
	Host              string        `json:"host"`
	ReadTimeout       time.Duration `json:"read_timeout"`
	WriteTimeout      time.Duration `json:"write_timeout"`
	EnableMetrics     bool          `json:"enable_metrics"`
	EnableHealth      bool          `json:"enable_health"`
	TransactionsLimit int           `json:"transactions_limit"`
}

// HTTPServer exposes the tracker's REST and websocket surface
type HTTPServer struct {
	config    *ServerConfig
	server    *http.Server
	router    *mux.Router
	storage   storage.Storage
	provider  *provider.Client
	rotator   *rotation.Rotator
	scheduler *scheduler.Scheduler
	hub       *notification.WebSocketHub
	metrics   *metrics.Metrics
	logger    *logrus.Logger
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(
	config *ServerConfig,
	store storage.Storage,
	providerClient *provider.Client,
	rotator *rotation.Rotator,
	sched *scheduler.Scheduler,
	hub *notification.WebSocketHub,
	m *metrics.Metrics,
) *HTTPServer {

	server := &HTTPServer{
		config:    config,
		storage:   store,
		provider:  providerClient,
		rotator:   rotator,
		scheduler: sched,
		hub:       hub,
		metrics:   m,
		logger:    utils.GetLogger(),
	}

	server.setupRouter()

	server.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      server.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return server
}

// setupRouter sets up the HTTP routes
func (s *HTTPServer) setupRouter() {
	s.router = mux.NewRouter()

	// Middleware
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)
	if s.metrics != nil {
		s.router.Use(s.metricsMiddleware)
	}

	if s.config.EnableHealth {
		s.router.HandleFunc("/health", s.healthHandler).Methods("GET")
	}

	if s.config.EnableMetrics && s.metrics != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	}

	// Live transaction feed
	if s.hub != nil {
		s.router.HandleFunc("/ws", s.hub.ServeWS)
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/stats", s.statsHandler).Methods("GET")

	// Wallet directory
	api.HandleFunc("/wallets", s.listWalletsHandler).Methods("GET")
	api.HandleFunc("/wallets", s.addWalletHandler).Methods("POST")
	api.HandleFunc("/wallets/{address}", s.getWalletHandler).Methods("GET")
	api.HandleFunc("/wallets/{address}", s.updateWalletHandler).Methods("PUT")
	api.HandleFunc("/wallets/{address}", s.removeWalletHandler).Methods("DELETE")

	// Recorded activity and analytics
	api.HandleFunc("/wallets/{address}/transactions", s.listTransactionsHandler).Methods("GET")
	api.HandleFunc("/wallets/{address}/pnl", s.tokenPnlHandler).Methods("GET")
	api.HandleFunc("/wallets/{address}/pnl/summary", s.pnlSummaryHandler).Methods("GET")
	api.HandleFunc("/wallets/{address}/holdings", s.holdingsHandler).Methods("GET")
	api.HandleFunc("/tokens/{address}", s.tokenMetadataHandler).Methods("GET")
	api.HandleFunc("/leaderboard", s.leaderboardHandler).Methods("GET")
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.WithFields(logrus.Fields{
		"address":         s.server.Addr,
		"metrics_enabled": s.config.EnableMetrics,
	}).Info("Starting HTTP server")

	errChan := make(chan error, 1)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("HTTP server error")
			errChan <- err
		}
	}()

	// Catch immediate binding errors before declaring the server up
	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Stop stops the HTTP server
func (s *HTTPServer) Stop() error {
	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// Middleware

// loggingMiddleware logs HTTP requests
func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		next.ServeHTTP(w, r)

		s.logger.WithFields(logrus.Fields{
			"method":    r.Method,
			"path":      r.URL.Path,
			"duration":  time.Since(start),
			"remote_ip": r.RemoteAddr,
		}).Info("HTTP request")
	})
}

// corsMiddleware handles CORS
func (s *HTTPServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response code for metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// metricsMiddleware records request counts and latency per route
func (s *HTTPServer) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if template, err := current.GetPathTemplate(); err == nil {
				route = template
			}
		}

		s.metrics.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(recorder.status)).Inc()
		s.metrics.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Response helpers

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string, err error) {
	body := map[string]interface{}{
		"error":  message,
		"status": status,
	}
	if err != nil {
		var appErr *utils.AppError
		if errors.As(err, &appErr) {
			body["code"] = appErr.Code
		}
		body["details"] = err.Error()
	}
	s.writeJSON(w, status, body)
}

// healthHandler returns basic health status
func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if err := s.storage.Ping(); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	s.writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"tracking":  s.scheduler != nil && s.scheduler.IsRunning(),
	})
}

// statsHandler returns application statistics
func (s *HTTPServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	storageStats, err := s.storage.GetStorageStats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve storage stats", err)
		return
	}

	stats := map[string]interface{}{
		"timestamp": time.Now().UTC(),
		"storage":   storageStats,
		"pool_size": s.rotator.PoolSize(),
		"tracking":  s.scheduler != nil && s.scheduler.IsRunning(),
	}
	if s.hub != nil {
		stats["websocket_clients"] = s.hub.ClientCount()
	}

	s.writeJSON(w, http.StatusOK, stats)
}
