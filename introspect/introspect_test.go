package introspect

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/flowpg/flowpg/internal/buf"
	"github.com/flowpg/flowpg/pgconn"
	"github.com/flowpg/flowpg/pgproto"
	"github.com/flowpg/flowpg/pgtype"
)

// fakeBackend is a minimal stand-in for a PostgreSQL backend, scripted to
// answer exactly the Parse/Describe/Bind/Execute sequence introspect's
// catalog queries issue, without a live server.
type fakeBackend struct {
	w   *buf.Writer
	out net.Conn
	in  *pgproto.Frontend
}

func newFakeBackend(conn net.Conn) *fakeBackend {
	return &fakeBackend{w: buf.NewWriter(256), out: conn, in: pgproto.NewFrontend(conn, 4096)}
}

func (b *fakeBackend) receive() (byte, []byte, error) { return b.in.ReceiveRaw() }

func (b *fakeBackend) send(tag byte, encode func(w *buf.Writer)) {
	off := b.w.BeginMessage(tag)
	encode(b.w)
	b.w.EndMessage(off)
	b.out.Write(b.w.Bytes())
	b.w.Reset()
}

func (b *fakeBackend) readyForQuery(status byte) {
	b.send(pgproto.TagReadyForQuery, func(w *buf.Writer) { w.WriteByte(status) })
}
func (b *fakeBackend) parseComplete() { b.send(pgproto.TagParseComplete, func(w *buf.Writer) {}) }
func (b *fakeBackend) bindComplete()  { b.send(pgproto.TagBindComplete, func(w *buf.Writer) {}) }
func (b *fakeBackend) noData()        { b.send(pgproto.TagNoData, func(w *buf.Writer) {}) }
func (b *fakeBackend) commandComplete(tag string) {
	b.send(pgproto.TagCommandComplete, func(w *buf.Writer) { w.WriteCString(tag) })
}

func (b *fakeBackend) parameterDescription(oids []uint32) {
	b.send(pgproto.TagParameterDescription, func(w *buf.Writer) {
		w.WriteInt16(int16(len(oids)))
		for _, oid := range oids {
			w.WriteUint32(oid)
		}
	})
}

type col struct {
	name string
	oid  uint32
}

func (b *fakeBackend) rowDescription(cols []col) {
	b.send(pgproto.TagRowDescription, func(w *buf.Writer) {
		w.WriteInt16(int16(len(cols)))
		for _, c := range cols {
			w.WriteCString(c.name)
			w.WriteUint32(0)
			w.WriteInt16(0)
			w.WriteUint32(c.oid)
			w.WriteInt16(-1)
			w.WriteInt32(-1)
			w.WriteInt16(0) // text format; unregistered/text-backed OIDs both decode fine as text
		}
	})
}

func (b *fakeBackend) dataRow(values []string) {
	b.send(pgproto.TagDataRow, func(w *buf.Writer) {
		w.WriteInt16(int16(len(values)))
		for _, v := range values {
			w.WriteLengthPrefixed([]byte(v))
		}
	})
}

// respondToQuery drains one Parse/Describe/Sync round trip followed by one
// Bind/Execute/Sync round trip, replying with cols/rows for both.
func (b *fakeBackend) respondToQuery(cols []col, rows [][]string) {
	b.receive() // Parse
	b.receive() // Describe
	b.receive() // Sync
	b.parseComplete()
	b.parameterDescription(nil)
	if len(cols) == 0 {
		b.noData()
	} else {
		b.rowDescription(cols)
	}
	b.readyForQuery('I')

	b.receive() // Bind
	b.receive() // Execute
	b.receive() // Sync
	b.bindComplete()
	for _, r := range rows {
		b.dataRow(r)
	}
	b.commandComplete("SELECT")
	b.readyForQuery('I')
}

func newTestConn(t *testing.T) (*pgconn.Conn, *fakeBackend) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close(); server.Close() })
	return pgconn.ConnectRaw(client, nil, 1, 1), newFakeBackend(server)
}

func TestResolveEnum(t *testing.T) {
	conn, be := newTestConn(t)
	registry := conn.Registry()
	cache := NewCache()

	const enumOID = 50000
	done := make(chan struct{})
	go func() {
		defer close(done)
		// pg_type lookup: typtype='e' (enum), no typelem/typbasetype/typrelid.
		be.respondToQuery(
			[]col{{"typname", pgtype.OIDText}, {"typtype", pgtype.OIDChar}, {"typelem", 26}, {"typbasetype", 26}, {"typrelid", 26}},
			[][]string{{"mood", "e", "0", "0", "0"}},
		)
		// pg_enum labels lookup.
		be.respondToQuery(
			[]col{{"enumlabel", pgtype.OIDText}},
			[][]string{{"sad"}, {"ok"}, {"happy"}},
		)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	codec, err := Resolve(ctx, conn, registry, cache, enumOID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if codec.Kind != pgtype.KindEnum {
		t.Fatalf("Kind = %v, want KindEnum", codec.Kind)
	}
	if len(codec.Labels) != 3 || codec.Labels[2] != "happy" {
		t.Fatalf("Labels = %v", codec.Labels)
	}
	<-done

	if cache.Len() != 1 {
		t.Fatalf("cache has %d entries, want 1", cache.Len())
	}

	// A second Resolve for the same OID must hit the cache and issue no
	// further catalog queries: the fake backend above only scripted one
	// round trip per query, so a second network round trip would hang.
	registry2 := pgtype.Global.LayerOver()
	codec2, err := Resolve(ctx, conn, registry2, cache, enumOID)
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if codec2 != codec {
		t.Fatal("second Resolve did not return the cached codec")
	}
}

func TestResolveDomainDelegatesToBase(t *testing.T) {
	conn, be := newTestConn(t)
	registry := conn.Registry()

	const domainOID = 50010
	go func() {
		// typtype='d' (domain) over int4.
		be.respondToQuery(
			[]col{{"typname", pgtype.OIDText}, {"typtype", pgtype.OIDChar}, {"typelem", 26}, {"typbasetype", 26}, {"typrelid", 26}},
			[][]string{{"posint", "d", "0", "23", "0"}},
		)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	codec, err := Resolve(ctx, conn, registry, nil, domainOID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if codec.Kind != pgtype.KindDomain || codec.BaseOID != pgtype.OIDInt4 {
		t.Fatalf("codec = %+v, want domain over int4", codec)
	}

	encoded, err := codec.Encode(pgtype.Binary, int32(7))
	if err != nil {
		t.Fatalf("Encode via domain: %v", err)
	}
	if len(encoded) != 4 {
		t.Fatalf("encoded = %v, want 4-byte int4", encoded)
	}
}

func TestResolveUnknownTypeSurfacesError(t *testing.T) {
	conn, be := newTestConn(t)
	go func() {
		be.respondToQuery(
			[]col{{"typname", pgtype.OIDText}, {"typtype", pgtype.OIDChar}, {"typelem", 26}, {"typbasetype", 26}, {"typrelid", 26}},
			[][]string{{"weird", "p", "0", "0", "0"}}, // 'p' = pseudo-type, unsupported
		)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := Resolve(ctx, conn, conn.Registry(), nil, 50020); err == nil {
		t.Fatal("expected an error for an unsupported typtype")
	}
}
