package pgconn

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/flowpg/flowpg/internal/buf"
	"github.com/flowpg/flowpg/pgproto"
	"github.com/flowpg/flowpg/pgtype"
)

// fakeBackend wraps a raw message-encoding helper over the server side of
// a net.Pipe, standing in for a real PostgreSQL backend in tests that
// exercise Conn's query engine without a live server.
type fakeBackend struct {
	conn net.Conn
	w    *buf.Writer
	in   *pgproto.Frontend // reused purely for its generic tag+length+body framing reader
}

func newFakeBackend(conn net.Conn) *fakeBackend {
	return &fakeBackend{conn: conn, w: buf.NewWriter(256), in: pgproto.NewFrontend(conn, 4096)}
}

// receive reads one raw frontend-sent message (Query/CopyData/CopyDone/...)
// without decoding it as a backend message type, since the tag namespaces
// differ by direction.
func (b *fakeBackend) receive() (tag byte, body []byte, err error) {
	return b.in.ReceiveRaw()
}

func (b *fakeBackend) send(tag byte, encode func(w *buf.Writer)) {
	off := b.w.BeginMessage(tag)
	encode(b.w)
	b.w.EndMessage(off)
	b.conn.Write(b.w.Bytes())
	b.w.Reset()
}

func (b *fakeBackend) readyForQuery(status byte) {
	b.send(pgproto.TagReadyForQuery, func(w *buf.Writer) { w.WriteByte(status) })
}

func (b *fakeBackend) parseComplete() {
	b.send(pgproto.TagParseComplete, func(w *buf.Writer) {})
}

func (b *fakeBackend) bindComplete() {
	b.send(pgproto.TagBindComplete, func(w *buf.Writer) {})
}

func (b *fakeBackend) parameterDescription(oids []uint32) {
	b.send(pgproto.TagParameterDescription, func(w *buf.Writer) {
		w.WriteInt16(int16(len(oids)))
		for _, oid := range oids {
			w.WriteUint32(oid)
		}
	})
}

func (b *fakeBackend) noData() {
	b.send(pgproto.TagNoData, func(w *buf.Writer) {})
}

type fakeField struct {
	name string
	oid  uint32
}

func (b *fakeBackend) rowDescription(fields []fakeField) {
	b.send(pgproto.TagRowDescription, func(w *buf.Writer) {
		w.WriteInt16(int16(len(fields)))
		for _, f := range fields {
			w.WriteCString(f.name)
			w.WriteUint32(0)
			w.WriteInt16(0)
			w.WriteUint32(f.oid)
			w.WriteInt16(-1)
			w.WriteInt32(-1)
			w.WriteInt16(int16(pgtype.Binary))
		}
	})
}

func (b *fakeBackend) dataRow(values [][]byte) {
	b.send(pgproto.TagDataRow, func(w *buf.Writer) {
		w.WriteInt16(int16(len(values)))
		for _, v := range values {
			w.WriteLengthPrefixed(v)
		}
	})
}

func (b *fakeBackend) commandComplete(tag string) {
	b.send(pgproto.TagCommandComplete, func(w *buf.Writer) { w.WriteCString(tag) })
}

func (b *fakeBackend) errorResponse(sqlstate, message string) {
	b.send(pgproto.TagErrorResponse, func(w *buf.Writer) {
		w.WriteByte(pgproto.FieldSeverity)
		w.WriteCString("ERROR")
		w.WriteByte(pgproto.FieldSQLState)
		w.WriteCString(sqlstate)
		w.WriteByte(pgproto.FieldMessageText)
		w.WriteCString(message)
		w.WriteByte(0)
	})
}

// newTestConn builds a Conn wired directly to the client side of a
// net.Pipe, skipping Connect's dial/TLS/startup so tests can drive the
// fake backend directly against the query engine.
func newTestConn(t *testing.T) (*Conn, *fakeBackend) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close(); server.Close() })

	c := &Conn{
		netConn:  client,
		cfg:      defaultConfig(),
		params:   make(map[string]string),
		registry: pgtype.Global.LayerOver(),
	}
	c.stmtCache = newStatementCache(100, 0)
	c.fe = pgproto.NewFrontend(client, 4096)

	return c, newFakeBackend(server)
}

func TestConnExecuteRoundTrip(t *testing.T) {
	c, be := newTestConn(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		be.receive() // Parse
		be.receive() // Describe
		be.receive() // Sync
		be.parseComplete()
		be.parameterDescription([]uint32{pgtype.OIDInt4, pgtype.OIDInt4})
		be.noData()
		be.readyForQuery('I')

		be.receive() // Bind
		be.receive() // Execute
		be.receive() // Sync
		be.bindComplete()
		be.commandComplete("SELECT 1")
		be.readyForQuery('I')
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	res, err := c.Execute(ctx, "SELECT $1::int + $2::int", int32(40), int32(2))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.CommandTag != "SELECT 1" {
		t.Fatalf("CommandTag = %q, want %q", res.CommandTag, "SELECT 1")
	}
	<-done
}

func TestConnFetchMultipleRows(t *testing.T) {
	c, be := newTestConn(t)

	go func() {
		be.receive() // Parse
		be.receive() // Describe
		be.receive() // Sync
		be.parseComplete()
		be.parameterDescription(nil)
		be.rowDescription([]fakeField{{name: "i", oid: pgtype.OIDInt4}})
		be.readyForQuery('I')

		be.receive() // Bind
		be.receive() // Execute
		be.receive() // Sync
		be.bindComplete()
		be.dataRow([][]byte{{0, 0, 0, 1}})
		be.dataRow([][]byte{{0, 0, 0, 2}})
		be.dataRow([][]byte{{0, 0, 0, 3}})
		be.commandComplete("SELECT 3")
		be.readyForQuery('I')
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	rows, err := c.Fetch(ctx, "SELECT generate_series(1,3) AS i")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	for i, r := range rows {
		v, ok := r.GetByName("i")
		if !ok {
			t.Fatalf("row %d: no column i", i)
		}
		if v != int32(i+1) {
			t.Fatalf("row %d: i = %v, want %d", i, v, i+1)
		}
	}
}

func TestConnExecuteServerError(t *testing.T) {
	c, be := newTestConn(t)

	go func() {
		be.receive() // Parse
		be.receive() // Describe
		be.receive() // Sync
		be.parseComplete()
		be.parameterDescription(nil)
		be.noData()
		be.readyForQuery('I')

		be.receive() // Bind
		be.receive() // Execute
		be.receive() // Sync
		be.errorResponse("42P01", `relation "nope" does not exist`)
		be.readyForQuery('I')
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := c.Execute(ctx, "SELECT * FROM nope")
	var pgErr *PostgresError
	if !As(err, &pgErr) {
		t.Fatalf("got %T (%v), want *PostgresError", err, err)
	}
	if pgErr.SQLState != "42P01" {
		t.Fatalf("SQLState = %q, want 42P01", pgErr.SQLState)
	}
}

func TestConnFetchValAndRow(t *testing.T) {
	c, be := newTestConn(t)

	go func() {
		be.receive() // Parse
		be.receive() // Describe
		be.receive() // Sync
		be.parseComplete()
		be.parameterDescription(nil)
		be.rowDescription([]fakeField{{name: "one", oid: pgtype.OIDInt4}})
		be.readyForQuery('I')

		be.receive() // Bind
		be.receive() // Execute
		be.receive() // Sync
		be.bindComplete()
		be.dataRow([][]byte{{0, 0, 0, 1}})
		be.commandComplete("SELECT 1")
		be.readyForQuery('I')
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	v, err := c.FetchVal(ctx, "one", "SELECT 1 AS one")
	if err != nil {
		t.Fatalf("FetchVal: %v", err)
	}
	if v != int32(1) {
		t.Fatalf("FetchVal = %v, want 1", v)
	}
}

func TestStatementCacheReusesPreparedStatement(t *testing.T) {
	c, be := newTestConn(t)

	go func() {
		// Only one Parse/Describe round-trip is expected even though
		// Execute is called twice with identical SQL.
		be.receive() // Parse
		be.receive() // Describe
		be.receive() // Sync
		be.parseComplete()
		be.parameterDescription(nil)
		be.noData()
		be.readyForQuery('I')

		be.receive() // Bind
		be.receive() // Execute
		be.receive() // Sync
		be.bindComplete()
		be.commandComplete("SELECT 1")
		be.readyForQuery('I')

		be.receive() // Bind
		be.receive() // Execute
		be.receive() // Sync
		be.bindComplete()
		be.commandComplete("SELECT 1")
		be.readyForQuery('I')
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := c.Execute(ctx, "SELECT 1"); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	if _, err := c.Execute(ctx, "SELECT 1"); err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if len(c.stmtCache.entries) != 1 {
		t.Fatalf("statement cache has %d entries, want 1", len(c.stmtCache.entries))
	}
}
