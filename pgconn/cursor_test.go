package pgconn

import (
	"context"
	"testing"
	"time"

	"github.com/flowpg/flowpg/internal/buf"
	"github.com/flowpg/flowpg/pgproto"
	"github.com/flowpg/flowpg/pgtype"
)

func TestCursorPrefetchBatches(t *testing.T) {
	c, be := newTestConn(t)

	go func() {
		be.receive() // BEGIN
		be.readyForQuery('T')

		// Cursor(): prepare the statement.
		be.receive() // Parse
		be.receive() // Describe
		be.receive() // Sync
		be.parseComplete()
		be.parameterDescription(nil)
		be.rowDescription([]fakeField{{name: "i", oid: pgtype.OIDInt4}})
		be.readyForQuery('T')

		// First batch: Bind + Execute(maxRows=2) -> 2 rows, suspended.
		be.receive() // Bind
		be.receive() // Execute
		be.receive() // Sync
		be.bindComplete()
		be.dataRow([][]byte{{0, 0, 0, 1}})
		be.dataRow([][]byte{{0, 0, 0, 2}})
		be.send(pgproto.TagPortalSuspended, func(w *buf.Writer) {})
		be.readyForQuery('T')

		// Second batch: Execute only -> 1 row, then CommandComplete (exhausted).
		be.receive() // Execute
		be.receive() // Sync
		be.dataRow([][]byte{{0, 0, 0, 3}})
		be.commandComplete("SELECT 3")
		be.readyForQuery('T')

		be.receive() // ROLLBACK
		be.readyForQuery('T')
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	tx, err := c.Begin(ctx, TxOptions{})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	cur, err := tx.Cursor(ctx, 2, "SELECT generate_series(1,3) AS i")
	if err != nil {
		t.Fatalf("Cursor: %v", err)
	}

	var got []int32
	for {
		r, err := cur.Next(ctx)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if r == nil {
			break
		}
		v, _ := r.GetByName("i")
		got = append(got, v.(int32))
	}
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("got %v, want [1 2 3]", got)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
}
