// Package pgxstat exposes a pgxpool.Pool's occupancy over HTTP: a JSON
// status endpoint, a Prometheus /metrics endpoint, and a small read-only
// status dashboard, for embedding in a host application's own admin
// surface or running standalone via cmd/pgxbench.
package pgxstat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flowpg/flowpg/pgxpool"
)

// Server is an HTTP status/metrics server for one pool.
type Server struct {
	name       string
	pool       *pgxpool.Pool
	registry   *prometheus.Registry
	httpServer *http.Server
	startTime  time.Time
}

// New builds a Server reporting on pool. registry is the Prometheus
// registry /metrics serves: the one the pool's metrics (if any) were
// registered against via pgxpool.NewMetrics. If registry is nil, /metrics
// serves Prometheus's default registry.
func New(name string, pool *pgxpool.Pool, registry *prometheus.Registry) *Server {
	return &Server{name: name, pool: pool, registry: registry, startTime: time.Now()}
}

// Handler builds the router serving /status, /healthz, /metrics, and the
// dashboard, split out from Start so tests can exercise it directly
// against an httptest.Server or recorder without binding a real port.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/status", s.statusHandler).Methods("GET")
	r.HandleFunc("/healthz", s.healthzHandler).Methods("GET")
	if s.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}
	r.HandleFunc("/", s.dashboardHandler).Methods("GET")
	r.HandleFunc("/dashboard", s.dashboardHandler).Methods("GET")
	return r
}

// Start begins listening on addr (e.g. "127.0.0.1:9187"). It returns once
// the listener is up; serving happens in a background goroutine.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("pgxstat: listen on %s: %w", addr, err)
	}

	slog.Info("pgxstat server listening", "addr", addr, "pool", s.name)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("pgxstat server error", "err", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	stat := s.pool.Stat()
	writeJSON(w, http.StatusOK, map[string]any{
		"pool":               s.name,
		"uptime_seconds":     int(time.Since(s.startTime).Seconds()),
		"go_version":         runtime.Version(),
		"goroutines":         runtime.NumGoroutine(),
		"memory_mb":          float64(mem.Alloc) / 1024 / 1024,
		"acquired_conns":     stat.AcquiredConns,
		"idle_conns":         stat.IdleConns,
		"initializing_conns": stat.InitializingConns,
		"max_conns":          stat.MaxConns,
		"wait_count":         stat.WaitCount,
		"acquire_timeouts":   stat.AcquireTimeouts,
	})
}

func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	stat := s.pool.Stat()
	status := http.StatusOK
	if stat.AcquiredConns+stat.IdleConns == 0 && stat.MaxConns > 0 {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"status": statusLabel(status)})
}

func statusLabel(code int) string {
	if code == http.StatusOK {
		return "healthy"
	}
	return "unhealthy"
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
