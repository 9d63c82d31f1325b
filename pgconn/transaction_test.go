package pgconn

import (
	"context"
	"testing"
	"time"
)

func TestTxCommit(t *testing.T) {
	c, be := newTestConn(t)

	go func() {
		be.receive() // BEGIN
		be.readyForQuery('T')
		be.receive() // CREATE TEMP TABLE
		be.commandComplete("CREATE TABLE")
		be.readyForQuery('T')
		be.receive() // COMMIT
		be.readyForQuery('T')
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	tx, err := c.Begin(ctx, TxOptions{})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if tx.State() != TxStarted {
		t.Fatalf("state = %v, want TxStarted", tx.State())
	}
	if _, err := c.SimpleQuery(ctx, "CREATE TEMP TABLE t(x int)"); err != nil {
		t.Fatalf("SimpleQuery: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if tx.State() != TxCommitted {
		t.Fatalf("state = %v, want TxCommitted", tx.State())
	}
	if err := tx.Commit(ctx); err == nil {
		t.Fatal("second Commit should fail: transaction already committed")
	}
}

func TestTxRollbackRejectsFurtherCommands(t *testing.T) {
	c, be := newTestConn(t)

	go func() {
		be.receive() // BEGIN
		be.readyForQuery('T')
		be.receive() // ROLLBACK
		be.readyForQuery('E')
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	tx, err := c.Begin(ctx, TxOptions{})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if _, err := tx.Cursor(ctx, 10, "SELECT 1"); err != ErrNoTransaction {
		t.Fatalf("Cursor after rollback: got %v, want ErrNoTransaction", err)
	}
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	c, be := newTestConn(t)

	go func() {
		be.receive() // BEGIN
		be.readyForQuery('T')
		be.receive() // ROLLBACK
		be.readyForQuery('E')
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sentinel := &PostgresError{Severity: "ERROR", SQLState: "23505", Message: "boom"}
	err := c.WithTransaction(ctx, TxOptions{}, func(tx *Tx) error {
		return sentinel
	})
	if err != sentinel {
		t.Fatalf("got %v, want sentinel error", err)
	}
}
