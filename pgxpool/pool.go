// Package pgxpool implements a bounded pool of pgconn.Conn handles: LIFO
// idle reuse, a FIFO waiter queue, idle/lifetime expiration, an optional
// liveness probe, and a per-acquire initialization hook.
package pgxpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flowpg/flowpg/pgconn"
	"github.com/flowpg/flowpg/pgproto"
)

// ErrPoolClosed is returned by Acquire once the pool has been closed.
var ErrPoolClosed = errors.New("pgxpool: pool is closed")

// ErrAcquireTimeout is returned by Acquire when the caller's context is
// done, or its deadline elapses, before a connection becomes available.
var ErrAcquireTimeout = errors.New("pgxpool: acquire timeout")

// Config describes how a Pool dials and manages its connections.
type Config struct {
	// ConnConfig is used to establish every physical connection the pool
	// opens. Callers typically build it with pgconn.ParseConfig.
	ConnConfig *pgconn.Config

	MinConns int
	MaxConns int

	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// AcquireTimeout bounds how long Acquire waits on a full pool when the
	// caller's context carries no deadline of its own. Zero means wait
	// until ctx is done.
	AcquireTimeout time.Duration

	// HealthCheckPeriod drives the idle reaper; zero disables it.
	HealthCheckPeriod time.Duration

	// LivenessProbe, if true, runs "SELECT 1" against a connection before
	// handing it out from the idle list.
	LivenessProbe bool

	// AfterConnect runs once per physical connection, right after it is
	// dialed and before it is made available to any acquirer.
	AfterConnect func(ctx context.Context, conn *pgconn.Conn) error

	Metrics *Metrics
}

func (cfg *Config) withDefaults() Config {
	c := *cfg
	if c.MaxConns <= 0 {
		c.MaxConns = 4
	}
	if c.MinConns > c.MaxConns {
		c.MinConns = c.MaxConns
	}
	return c
}

// pooledConn wraps a pgconn.Conn with the bookkeeping the pool needs to
// decide when to recycle or retire it.
type pooledConn struct {
	conn      *pgconn.Conn
	pool      *Pool
	createdAt time.Time
	lastUsed  time.Time
}

func (pc *pooledConn) isExpired(maxLifetime time.Duration) bool {
	return maxLifetime > 0 && time.Since(pc.createdAt) >= maxLifetime
}

func (pc *pooledConn) isIdleExpired(maxIdleTime time.Duration) bool {
	return maxIdleTime > 0 && time.Since(pc.lastUsed) >= maxIdleTime
}

// Conn is an acquired handle. Release must be called exactly once to
// return it (or a replacement) to the pool.
type Conn struct {
	pc       *pooledConn
	released bool
}

// Conn returns the underlying wire-protocol connection.
func (c *Conn) Conn() *pgconn.Conn { return c.pc.conn }

// Release returns the connection to the pool's idle set, after rolling
// back any open transaction. A connection that fails verification is
// closed and not replaced synchronously; the pool dials a replacement
// lazily on the next Acquire.
func (c *Conn) Release() {
	if c.released {
		return
	}
	c.released = true
	c.pc.pool.release(c.pc)
}

// Stats is a point-in-time snapshot of pool occupancy.
type Stats struct {
	AcquiredConns    int
	IdleConns        int
	InitializingConns int
	MaxConns         int
	WaitCount        int
	AcquireTimeouts  int64
}

// Pool manages a bounded set of pgconn.Conn handles.
type Pool struct {
	mu   sync.Mutex
	cond *sync.Cond

	cfg Config

	idle        []*pooledConn
	acquired    map[*pooledConn]struct{}
	initializing int
	total       int

	waiting         int
	acquireTimeouts int64

	closed bool
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New dials MinConns connections (if any are configured) and returns a
// ready Pool. Callers must call Close when done.
func New(ctx context.Context, cfg Config) (*Pool, error) {
	if cfg.ConnConfig == nil {
		return nil, errors.New("pgxpool: ConnConfig is required")
	}
	resolved := cfg.withDefaults()

	p := &Pool{
		cfg:      resolved,
		acquired: make(map[*pooledConn]struct{}),
		stopCh:   make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)

	for i := 0; i < resolved.MinConns; i++ {
		pc, err := p.dial(ctx)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("pgxpool: warm up connection %d/%d: %w", i+1, resolved.MinConns, err)
		}
		p.mu.Lock()
		p.idle = append(p.idle, pc)
		p.mu.Unlock()
	}

	if resolved.HealthCheckPeriod > 0 {
		p.wg.Add(1)
		go p.reapLoop()
	}

	return p, nil
}

func (p *Pool) dial(ctx context.Context) (*pooledConn, error) {
	conn, err := pgconn.ConnectConfig(ctx, p.cfg.ConnConfig)
	if err != nil {
		return nil, err
	}
	if p.cfg.AfterConnect != nil {
		if err := p.cfg.AfterConnect(ctx, conn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("pgxpool: AfterConnect: %w", err)
		}
	}
	now := time.Now()
	return &pooledConn{conn: conn, pool: p, createdAt: now, lastUsed: now}, nil
}

// Acquire returns a Conn from the pool, dialing a new physical connection
// if the pool has spare capacity, or waiting in FIFO order for one to
// free up otherwise.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	start := time.Now()
	defer func() {
		if p.cfg.Metrics != nil {
			p.cfg.Metrics.AcquireDuration(time.Since(start))
		}
	}()

	if _, hasDeadline := ctx.Deadline(); !hasDeadline && p.cfg.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.AcquireTimeout)
		defer cancel()
	}

	p.mu.Lock()
	for {
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}

		// LIFO: the most recently returned connection is most likely to
		// still have a warm OS-level socket buffer and kernel cache line.
		for len(p.idle) > 0 {
			pc := p.idle[len(p.idle)-1]
			p.idle = p.idle[:len(p.idle)-1]

			if pc.isExpired(p.cfg.MaxConnLifetime) || pc.isIdleExpired(p.cfg.MaxConnIdleTime) {
				p.total--
				p.mu.Unlock()
				pc.conn.Close()
				p.mu.Lock()
				continue
			}

			if p.cfg.LivenessProbe {
				p.mu.Unlock()
				if _, err := pc.conn.SimpleQuery(ctx, "SELECT 1"); err != nil {
					pc.conn.Close()
					p.mu.Lock()
					p.total--
					continue
				}
				p.mu.Lock()
			}

			p.acquired[pc] = struct{}{}
			p.mu.Unlock()
			return &Conn{pc: pc}, nil
		}

		if p.total < p.cfg.MaxConns {
			p.total++
			p.initializing++
			p.mu.Unlock()

			pc, err := p.dial(ctx)

			p.mu.Lock()
			p.initializing--
			if err != nil {
				p.total--
				p.mu.Unlock()
				return nil, fmt.Errorf("pgxpool: dial: %w", err)
			}
			p.acquired[pc] = struct{}{}
			p.mu.Unlock()
			return &Conn{pc: pc}, nil
		}

		// Pool is at capacity: wait in the FIFO queue maintained by
		// sync.Cond's notify list (Go's runtime notify list wakes
		// waiters in arrival order) until a connection is released,
		// the pool closes, or ctx is done.
		if p.cfg.Metrics != nil {
			p.cfg.Metrics.PoolExhausted()
		}
		p.waiting++
		stop := context.AfterFunc(ctx, func() {
			p.mu.Lock()
			p.cond.Broadcast()
			p.mu.Unlock()
		})
		for !p.closed && len(p.idle) == 0 && p.total >= p.cfg.MaxConns && ctx.Err() == nil {
			p.cond.Wait()
		}
		stop()
		p.waiting--

		if ctx.Err() != nil && !p.closed {
			p.mu.Unlock()
			p.acquireTimeouts++
			return nil, ErrAcquireTimeout
		}
		// Loop back around: re-check idle/capacity under the lock we
		// still hold.
	}
}

// release is the internal half of Conn.Release.
func (p *Pool) release(pc *pooledConn) {
	p.mu.Lock()
	delete(p.acquired, pc)
	p.mu.Unlock()

	if err := p.resetConn(pc); err != nil {
		slog.Warn("pgxpool: discarding connection that failed release verification", "err", err)
		pc.conn.Close()
		p.mu.Lock()
		p.total--
		p.mu.Unlock()
		p.cond.Signal()
		return
	}

	pc.lastUsed = time.Now()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		pc.conn.Close()
		return
	}
	p.idle = append(p.idle, pc)
	p.mu.Unlock()
	p.cond.Signal()
}

// resetConn rolls back any open transaction left behind by a careless
// caller so the connection can be safely reused.
func (p *Pool) resetConn(pc *pooledConn) error {
	if pc.conn.IsClosed() {
		return errors.New("connection closed by peer")
	}
	if pc.conn.TxStatus() == pgproto.TxIdle {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := pc.conn.SimpleQuery(ctx, "ROLLBACK")
	return err
}

func (p *Pool) reapLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.HealthCheckPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.reapIdle()
		case <-p.stopCh:
			return
		}
	}
}

func (p *Pool) reapIdle() {
	p.mu.Lock()
	kept := p.idle[:0]
	var stale []*pooledConn
	for _, pc := range p.idle {
		if len(kept)+len(stale) < p.cfg.MinConns {
			kept = append(kept, pc)
			continue
		}
		if pc.isExpired(p.cfg.MaxConnLifetime) || pc.isIdleExpired(p.cfg.MaxConnIdleTime) {
			stale = append(stale, pc)
			p.total--
			continue
		}
		kept = append(kept, pc)
	}
	p.idle = kept
	p.mu.Unlock()

	for _, pc := range stale {
		pc.conn.Close()
	}
}

// InjectTestConn adds a pre-built connection directly into the pool's idle
// list, bypassing dial and AfterConnect. Intended only for tests that can't
// reach a live server.
func (p *Pool) InjectTestConn(conn *pgconn.Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	p.idle = append(p.idle, &pooledConn{conn: conn, pool: p, createdAt: now, lastUsed: now})
	p.total++
	p.cond.Signal()
}

// Stat returns a snapshot of current pool occupancy.
func (p *Pool) Stat() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Stats{
		AcquiredConns:     len(p.acquired),
		IdleConns:         len(p.idle),
		InitializingConns: p.initializing,
		MaxConns:          p.cfg.MaxConns,
		WaitCount:         p.waiting,
		AcquireTimeouts:   p.acquireTimeouts,
	}
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.UpdatePoolStats(s.AcquiredConns, s.IdleConns, s.WaitCount)
	}
	return s
}

// Drain closes idle connections and waits (best-effort) for acquired
// connections to be released. It does not mark the pool closed, and
// Acquire calls are not rejected while or after it runs.
func (p *Pool) Drain(ctx context.Context) error {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()
	for _, pc := range idle {
		pc.conn.Close()
	}

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		p.mu.Lock()
		n := len(p.acquired)
		p.mu.Unlock()
		if n == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close stops the idle reaper, closes every idle and acquired connection,
// and makes subsequent Acquire calls fail with ErrPoolClosed.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	acquired := make([]*pooledConn, 0, len(p.acquired))
	for pc := range p.acquired {
		acquired = append(acquired, pc)
	}
	p.mu.Unlock()

	close(p.stopCh)
	p.wg.Wait()

	p.mu.Lock()
	p.cond.Broadcast()
	p.mu.Unlock()

	for _, pc := range idle {
		pc.conn.Close()
	}
	for _, pc := range acquired {
		pc.conn.Close()
	}
}
