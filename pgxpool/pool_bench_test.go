package pgxpool

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/flowpg/flowpg/pgconn"
)

// newBenchPool creates a Pool pre-loaded with n injected net.Pipe
// connections and a large AcquireTimeout so waits don't skew results.
func newBenchPool(b *testing.B, n int) (*Pool, []net.Conn) {
	b.Helper()
	p, err := New(context.Background(), Config{
		ConnConfig:     &pgconn.Config{},
		MaxConns:       n,
		AcquireTimeout: 30 * time.Second,
	})
	if err != nil {
		b.Fatalf("New: %v", err)
	}

	pipes := make([]net.Conn, 0, n*2)
	for i := 0; i < n; i++ {
		client, server := net.Pipe()
		pipes = append(pipes, client, server)
		go io.Copy(io.Discard, server)
		p.InjectTestConn(pgconn.ConnectRaw(client, nil, 1, 1))
	}
	return p, pipes
}

// BenchmarkAcquireRelease measures the throughput of a single goroutine
// repeatedly acquiring and immediately releasing a connection.
// Pool size = 1 so no contention; measures pure acquire/release overhead.
func BenchmarkAcquireRelease(b *testing.B) {
	p, pipes := newBenchPool(b, 1)
	defer p.Close()
	defer func() {
		for _, c := range pipes {
			c.Close()
		}
	}()

	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c, err := p.Acquire(ctx)
		if err != nil {
			b.Fatalf("Acquire failed: %v", err)
		}
		c.Release()
	}
}

// BenchmarkAcquireReleaseParallel measures throughput under concurrent
// access with a pool sized to allow all goroutines to acquire simultaneously.
func BenchmarkAcquireReleaseParallel(b *testing.B) {
	p, pipes := newBenchPool(b, 12)
	defer p.Close()
	defer func() {
		for _, c := range pipes {
			c.Close()
		}
	}()

	ctx := context.Background()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			c, err := p.Acquire(ctx)
			if err != nil {
				continue
			}
			c.Release()
		}
	})
}

// BenchmarkAcquireContended measures latency when goroutines compete for
// fewer connections than goroutines.
func BenchmarkAcquireContended(b *testing.B) {
	const poolSize = 4
	p, pipes := newBenchPool(b, poolSize)
	defer p.Close()
	defer func() {
		for _, c := range pipes {
			c.Close()
		}
	}()

	ctx := context.Background()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			c, err := p.Acquire(ctx)
			if err != nil {
				continue
			}
			time.Sleep(time.Microsecond)
			c.Release()
		}
	})
}

// BenchmarkPoolStat measures the overhead of reading a pool stats snapshot
// (called periodically by a metrics scrape loop in production).
func BenchmarkPoolStat(b *testing.B) {
	p, pipes := newBenchPool(b, 4)
	defer p.Close()
	defer func() {
		for _, c := range pipes {
			c.Close()
		}
	}()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = p.Stat()
	}
}

// BenchmarkConcurrentAcquireReleaseThroughput measures aggregate ops/sec
// with a realistic worker-pool pattern: N workers each acquire, work, release.
func BenchmarkConcurrentAcquireReleaseThroughput(b *testing.B) {
	const poolSize = 8
	p, pipes := newBenchPool(b, poolSize)
	defer p.Close()
	defer func() {
		for _, c := range pipes {
			c.Close()
		}
	}()

	ctx := context.Background()
	const workers = 32
	work := make(chan struct{}, b.N)
	for i := 0; i < b.N; i++ {
		work <- struct{}{}
	}
	close(work)

	b.ResetTimer()
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range work {
				c, err := p.Acquire(ctx)
				if err != nil {
					continue
				}
				c.Release()
			}
		}()
	}
	wg.Wait()
}
