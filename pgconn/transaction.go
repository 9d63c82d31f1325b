package pgconn

import (
	"context"
	"fmt"
)

// IsoLevel selects a transaction's isolation level.
type IsoLevel string

const (
	IsoDefault         IsoLevel = ""
	IsoReadUncommitted IsoLevel = "READ UNCOMMITTED"
	IsoReadCommitted   IsoLevel = "READ COMMITTED"
	IsoRepeatableRead  IsoLevel = "REPEATABLE READ"
	IsoSerializable    IsoLevel = "SERIALIZABLE"
)

// TxState mirrors the Data Model's Transaction.state enum.
type TxState int

const (
	TxNew TxState = iota
	TxStarted
	TxCommitted
	TxRolledback
)

// TxOptions configures a transaction started by Conn.Begin.
type TxOptions struct {
	IsoLevel   IsoLevel
	ReadOnly   bool
	Deferrable bool
}

// Tx represents one (possibly nested, via savepoints) transaction scope on
// a single Conn. A Tx whose State is not TxStarted rejects every further
// command, per the data model's invariant.
type Tx struct {
	conn         *Conn
	opts         TxOptions
	state        TxState
	nestingDepth int
	savepoint    string
	parent       *Tx
}

// Begin starts a top-level transaction with the given options. The
// returned Tx must be ended with Commit or Rollback.
func (c *Conn) Begin(ctx context.Context, opts TxOptions) (*Tx, error) {
	c.lock()
	if c.closed {
		c.unlock()
		return nil, &InterfaceError{Detail: "connection is closed"}
	}
	c.unlock()

	sql := "BEGIN"
	if opts.IsoLevel != IsoDefault {
		sql += " ISOLATION LEVEL " + string(opts.IsoLevel)
	}
	if opts.ReadOnly {
		sql += " READ ONLY"
	}
	if opts.Deferrable {
		sql += " DEFERRABLE"
	}
	if _, err := c.SimpleQuery(ctx, sql); err != nil {
		return nil, err
	}
	return &Tx{conn: c, opts: opts, state: TxStarted}, nil
}

// Begin starts a nested transaction scope as a savepoint. The parent must
// itself be TxStarted.
func (t *Tx) Begin(ctx context.Context) (*Tx, error) {
	if t.state != TxStarted {
		return nil, &InterfaceError{Detail: "parent transaction is not active"}
	}
	name := fmt.Sprintf("pgx_sp_%d", t.nestingDepth+1)
	if _, err := t.conn.SimpleQuery(ctx, "SAVEPOINT "+name); err != nil {
		return nil, err
	}
	return &Tx{
		conn:         t.conn,
		opts:         t.opts,
		state:        TxStarted,
		nestingDepth: t.nestingDepth + 1,
		savepoint:    name,
		parent:       t,
	}, nil
}

// Commit commits the transaction (or releases the savepoint, for a nested
// Tx). Rejects with InterfaceError if the Tx is not currently active.
func (t *Tx) Commit(ctx context.Context) error {
	if t.state != TxStarted {
		return &InterfaceError{Detail: "transaction is not active"}
	}
	sql := "COMMIT"
	if t.savepoint != "" {
		sql = "RELEASE SAVEPOINT " + t.savepoint
	}
	if _, err := t.conn.SimpleQuery(ctx, sql); err != nil {
		return err
	}
	t.state = TxCommitted
	return nil
}

// Rollback rolls back the transaction (or to the savepoint, for a nested
// Tx). Rejects with InterfaceError if the Tx is not currently active.
func (t *Tx) Rollback(ctx context.Context) error {
	if t.state != TxStarted {
		return &InterfaceError{Detail: "transaction is not active"}
	}
	sql := "ROLLBACK"
	if t.savepoint != "" {
		sql = "ROLLBACK TO SAVEPOINT " + t.savepoint
	}
	if _, err := t.conn.SimpleQuery(ctx, sql); err != nil {
		return err
	}
	t.state = TxRolledback
	return nil
}

// State returns the transaction's current state.
func (t *Tx) State() TxState { return t.state }

// Conn returns the connection the transaction runs on, so callers can issue
// statements, cursors, or COPY operations scoped to it.
func (t *Tx) Conn() *Conn { return t.conn }

// WithTransaction runs fn within a scoped transaction, translating a normal
// return into Commit and a returned error (or a panic, which is
// re-panicked after rollback) into Rollback.
func (c *Conn) WithTransaction(ctx context.Context, opts TxOptions, fn func(tx *Tx) error) (err error) {
	tx, err := c.Begin(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w (during rollback after: %v)", rbErr, err)
		}
		return err
	}
	return tx.Commit(ctx)
}
