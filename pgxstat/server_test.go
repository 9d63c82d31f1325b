package pgxstat

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flowpg/flowpg/pgconn"
	"github.com/flowpg/flowpg/pgxpool"
)

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	p, err := pgxpool.New(context.Background(), pgxpool.Config{
		ConnConfig:     &pgconn.Config{},
		MaxConns:       2,
		AcquireTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close(); server.Close() })
	go io.Copy(io.Discard, server)
	p.InjectTestConn(pgconn.ConnectRaw(client, nil, 1, 1))
	t.Cleanup(p.Close)
	return p
}

func TestStatusEndpoint(t *testing.T) {
	pool := newTestPool(t)
	s := New("primary", pool, prometheus.NewRegistry())

	req := httptest.NewRequest("GET", "/status", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var body map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["pool"] != "primary" {
		t.Errorf("pool = %v, want primary", body["pool"])
	}
	if int(body["idle_conns"].(float64)) != 1 {
		t.Errorf("idle_conns = %v, want 1", body["idle_conns"])
	}
	if int(body["max_conns"].(float64)) != 2 {
		t.Errorf("max_conns = %v, want 2", body["max_conns"])
	}
}

func TestHealthzEndpoint(t *testing.T) {
	pool := newTestPool(t)
	s := New("primary", pool, prometheus.NewRegistry())

	req := httptest.NewRequest("GET", "/healthz", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body map[string]string
	json.NewDecoder(rr.Body).Decode(&body)
	if body["status"] != "healthy" {
		t.Errorf("status = %q, want healthy", body["status"])
	}
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	pool := newTestPool(t)
	s := New("primary", pool, prometheus.NewRegistry())

	req := httptest.NewRequest("GET", "/metrics", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct == "" {
		t.Error("expected a Content-Type header from promhttp")
	}
}

func TestDashboardEndpointServesHTML(t *testing.T) {
	pool := newTestPool(t)
	s := New("primary", pool, prometheus.NewRegistry())

	req := httptest.NewRequest("GET", "/", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestStartAndStop(t *testing.T) {
	pool := newTestPool(t)
	s := New("primary", pool, prometheus.NewRegistry())

	if err := s.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
