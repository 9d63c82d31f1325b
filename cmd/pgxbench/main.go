// Command pgxbench is a connectivity and load smoke test: it dials a
// PostgreSQL server through pgxpool, runs a fixed query at a configured
// concurrency for a configured duration, and reports throughput and
// error counts, optionally exposing live pool stats over HTTP via
// pgxstat while it runs.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flowpg/flowpg/pgconn"
	"github.com/flowpg/flowpg/pgxpool"
	"github.com/flowpg/flowpg/pgxstat"
)

func main() {
	configPath := flag.String("config", "pgxbench.yaml", "path to benchmark target file")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	connCfg, err := pgconn.ParseConfig(cfg.DSN)
	if err != nil {
		log.Fatalf("parsing dsn: %v", err)
	}
	log.Printf("pgxbench target %s@%s:%d/%s, concurrency=%d duration=%s",
		connCfg.User, connCfg.Host, connCfg.Port, connCfg.Database, cfg.Concurrency, cfg.Duration)

	registry := prometheus.NewRegistry()
	poolMetrics := pgxpool.NewMetrics(registry, "pgxbench")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, pgxpool.Config{
		ConnConfig:        connCfg,
		MinConns:          cfg.MinConns,
		MaxConns:          cfg.MaxConns,
		HealthCheckPeriod: 30 * time.Second,
		AcquireTimeout:    10 * time.Second,
		Metrics:           poolMetrics,
	})
	if err != nil {
		log.Fatalf("creating pool: %v", err)
	}
	defer pool.Close()

	var statusServer *pgxstat.Server
	if cfg.StatusAddr != "" {
		statusServer = pgxstat.New("pgxbench", pool, registry)
		if err := statusServer.Start(cfg.StatusAddr); err != nil {
			log.Fatalf("starting status server: %v", err)
		}
		log.Printf("status dashboard at http://%s/", cfg.StatusAddr)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	runCtx, runCancel := context.WithTimeout(ctx, cfg.Duration)
	defer runCancel()

	go func() {
		select {
		case sig := <-sigCh:
			log.Printf("received signal %s, stopping early", sig)
			runCancel()
		case <-runCtx.Done():
		}
	}()

	result := run(runCtx, pool, cfg.Query, cfg.Concurrency)

	log.Printf("queries=%d errors=%d elapsed=%s qps=%.1f",
		result.queries, result.errors, result.elapsed, result.qps())

	if statusServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := statusServer.Stop(shutdownCtx); err != nil {
			log.Printf("stopping status server: %v", err)
		}
	}
}

type benchResult struct {
	queries int64
	errors  int64
	elapsed time.Duration
}

func (r benchResult) qps() float64 {
	if r.elapsed <= 0 {
		return 0
	}
	return float64(r.queries) / r.elapsed.Seconds()
}

func run(ctx context.Context, pool *pgxpool.Pool, query string, concurrency int) benchResult {
	var queries, errors int64
	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}
				if err := execOnce(ctx, pool, query); err != nil {
					atomic.AddInt64(&errors, 1)
					continue
				}
				atomic.AddInt64(&queries, 1)
			}
		}()
	}
	wg.Wait()

	return benchResult{queries: atomic.LoadInt64(&queries), errors: atomic.LoadInt64(&errors), elapsed: time.Since(start)}
}

func execOnce(ctx context.Context, pool *pgxpool.Pool, query string) error {
	c, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire: %w", err)
	}
	defer c.Release()

	if _, err := c.Conn().FetchRow(ctx, query); err != nil {
		return fmt.Errorf("query: %w", err)
	}
	return nil
}
