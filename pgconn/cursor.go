package pgconn

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/flowpg/flowpg/pgproto"
	"github.com/flowpg/flowpg/record"
)

var portalCounter int64

func nextPortalName() string {
	n := atomic.AddInt64(&portalCounter, 1)
	return fmt.Sprintf("pgx_portal_%d", n)
}

// Cursor iterates a query's results in prefetch-sized batches via a
// server-side portal. It must be created within a transaction (the portal
// does not survive a transaction boundary) and closed (or exhausted) before
// the transaction ends.
type Cursor struct {
	conn      *Conn
	ps        *PreparedStatement
	portal    string
	prefetch  int32
	bound     bool
	exhausted bool
	pending   []*record.Record
	pos       int
}

// Cursor opens a server-side cursor over sql with the given prefetch batch
// size. Must be called with an open transaction (the spec's §4.4
// NoTransaction error otherwise).
func (t *Tx) Cursor(ctx context.Context, prefetch int, sql string, args ...any) (*Cursor, error) {
	if t.state != TxStarted {
		return nil, ErrNoTransaction
	}
	if prefetch <= 0 {
		prefetch = 1
	}
	t.conn.lock()
	ps, err := t.conn.prepareLocked(ctx, sql)
	t.conn.unlock()
	if err != nil {
		return nil, err
	}

	cur := &Cursor{conn: t.conn, ps: ps, portal: nextPortalName(), prefetch: int32(prefetch)}
	if err := cur.fetchBatch(ctx, args); err != nil {
		return nil, err
	}
	return cur, nil
}

// fetchBatch binds the portal (first call only) and executes one more
// prefetch-sized batch, stashing the decoded rows for Next to drain.
func (cur *Cursor) fetchBatch(ctx context.Context, args []any) error {
	cur.conn.lock()
	defer cur.conn.unlock()

	var rows []*record.Record
	sink := func(r *record.Record) { rows = append(rows, r) }

	if !cur.bound {
		_, suspended, err := cur.conn.bindAndExecute(ctx, cur.ps, cur.portal, args, cur.prefetch, sink)
		if err != nil {
			return err
		}
		cur.bound = true
		cur.pending = rows
		cur.exhausted = !suspended
		return nil
	}

	suspended, err := cur.conn.executePortal(ctx, cur.ps.Fields, cur.portal, cur.prefetch, sink)
	if err != nil {
		return err
	}
	cur.pending = rows
	cur.exhausted = !suspended
	return nil
}

// Next advances the cursor to the next row, transparently fetching the
// next prefetch-sized batch from the server when the current one is
// drained. It returns (nil, nil) once the cursor is exhausted.
func (cur *Cursor) Next(ctx context.Context) (*record.Record, error) {
	for cur.pos >= len(cur.pending) {
		if cur.exhausted {
			return nil, nil
		}
		if err := cur.fetchBatch(ctx, nil); err != nil {
			return nil, err
		}
		cur.pos = 0
	}
	r := cur.pending[cur.pos]
	cur.pos++
	return r, nil
}

// Close releases the cursor's portal. Safe to call on an already-exhausted
// cursor (a no-op in that case beyond sending the Close message, which
// PostgreSQL tolerates for an unknown portal name as a no-op too).
func (cur *Cursor) Close(ctx context.Context) error {
	if !cur.bound {
		return nil
	}
	cur.conn.lock()
	defer cur.conn.unlock()
	cur.conn.fe.Send(&pgproto.Close{Target: pgproto.DescribePortal, Name: cur.portal})
	cur.conn.fe.Send(&pgproto.Sync{})
	if err := cur.conn.fe.Flush(); err != nil {
		return &ConnectionError{Op: "flushing portal Close", Err: err}
	}
	for {
		msg, err := cur.conn.receive(ctx)
		if err != nil {
			return err
		}
		switch m := msg.(type) {
		case *pgproto.CloseComplete:
		case *pgproto.ReadyForQuery:
			cur.conn.txStatus = m.TxStatus
			cur.exhausted = true
			return nil
		case *pgproto.ErrorResponse:
			if err := cur.conn.drainToReady(ctx); err != nil {
				return err
			}
			return newPostgresError(m)
		case *pgproto.NoticeResponse:
			cur.conn.deliverNotice(m)
		case *pgproto.NotificationResponse:
			cur.conn.deliverNotification(m)
		case *pgproto.ParameterStatus:
			cur.conn.onParameterStatus(m)
		}
	}
}

// executePortal runs Execute/Sync against an already-bound portal without
// re-sending Bind, used by Cursor to pull subsequent batches.
func (c *Conn) executePortal(ctx context.Context, fields []ColumnDescriptor, portal string, maxRows int32, rowSink func(*record.Record)) (suspended bool, err error) {
	c.fe.Send(&pgproto.Execute{Portal: portal, MaxRows: maxRows})
	c.fe.Send(&pgproto.Sync{})
	if err := c.fe.Flush(); err != nil {
		return false, &ConnectionError{Op: "flushing Execute/Sync", Err: err}
	}

	var columns *record.Columns
	if len(fields) > 0 {
		columns = columnsFromDescriptors(fields)
	}

	for {
		msg, err := c.receive(ctx)
		if err != nil {
			return false, err
		}
		switch m := msg.(type) {
		case *pgproto.DataRow:
			if rowSink != nil {
				values, decErr := c.decodeRow(fields, m.Values)
				if decErr != nil {
					return false, decErr
				}
				rowSink(record.New(columns, values))
			}
		case *pgproto.CommandComplete:
		case *pgproto.PortalSuspended:
			suspended = true
		case *pgproto.ErrorResponse:
			pgErr := newPostgresError(m)
			if err := c.drainToReady(ctx); err != nil {
				return false, err
			}
			return false, pgErr
		case *pgproto.ReadyForQuery:
			c.txStatus = m.TxStatus
			return suspended, nil
		case *pgproto.NoticeResponse:
			c.deliverNotice(m)
		case *pgproto.NotificationResponse:
			c.deliverNotification(m)
		case *pgproto.ParameterStatus:
			c.onParameterStatus(m)
		default:
			return false, &ProtocolError{Detail: fmt.Sprintf("unexpected message during portal Execute: %T", msg)}
		}
	}
}
