// Package web serves the regionpool JSON API: stats and health, lease
// acquire and release, a websocket event stream and Prometheus metrics.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-i2p/regionpool/lib/metrics"
)

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	gw         Gateway
	limiter    *RateLimiter
	logger     *slog.Logger
	handler    http.Handler

	mu       sync.RWMutex
	running  bool
	addr     string
	streams  sync.WaitGroup
	stopping chan struct{}
}

// Config holds web server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., "127.0.0.1:8080")
	ListenAddr string
	// Gateway serves every API call
	Gateway Gateway
	// RateLimit applies per client IP to /api/ routes
	RateLimit RateLimitConfig
	// Logger is the structured logger
	Logger *slog.Logger
}

// New creates a web server. Call Start to listen and Stop to release it.
func New(cfg Config) (*Server, error) {
	if cfg.Gateway == nil {
		return nil, errors.New("web: gateway is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		gw:       cfg.Gateway,
		limiter:  NewRateLimiter(cfg.RateLimit),
		logger:   cfg.Logger,
		stopping: make(chan struct{}),
	}
	s.limiter.SetOnReject(func(ip, path string) {
		s.logger.Warn("rate limited", "ip", ip, "path", path)
	})

	api := http.NewServeMux()
	api.HandleFunc("GET /api/status", s.handleAPIStatus)
	api.HandleFunc("GET /api/stats", s.handleAPIStats)
	api.HandleFunc("GET /api/regions/{region}", s.handleAPIRegion)
	api.HandleFunc("GET /api/health", s.handleAPIHealth)
	api.HandleFunc("POST /api/leases", s.handleAPIAcquire)
	api.HandleFunc("GET /api/leases/{id}", s.handleAPILease)
	api.HandleFunc("DELETE /api/leases/{id}", s.handleAPIRelease)
	api.HandleFunc("GET /api/events", s.handleAPIEvents)

	mux := http.NewServeMux()
	mux.Handle("/api/", s.limiter.Middleware(api))
	mux.HandleFunc("GET /healthz", s.handleLiveness)
	mux.HandleFunc("GET /readyz", s.handleReadiness)
	mux.Handle("GET /metrics", metrics.Handler())

	s.handler = s.withMiddleware(mux)
	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Start starts the web server.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.mu.Unlock()

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("listen: %w", err)
	}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()
	s.logger.Info("web server started", "addr", s.addr)

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", "error", err)
		}
	}()
	return nil
}

// Stop closes event streams and shuts the server down gracefully. The
// rate limiter is released whether or not the server was started.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	select {
	case <-s.stopping:
	default:
		close(s.stopping)
	}
	s.mu.Unlock()

	defer s.limiter.Close()
	if !wasRunning {
		return nil
	}

	// Hijacked websocket connections are not tracked by Shutdown.
	s.streams.Wait()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("web server stopped")
	return nil
}

func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
		)

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")

		next.ServeHTTP(w, r)

		s.logger.Debug("response",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
