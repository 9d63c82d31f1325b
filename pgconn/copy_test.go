package pgconn

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/flowpg/flowpg/internal/buf"
	"github.com/flowpg/flowpg/pgproto"
)

func TestCopyFromReader(t *testing.T) {
	c, be := newTestConn(t)

	var received bytes.Buffer
	serverDone := make(chan error, 1)
	go func() {
		// Query carrying "COPY ... FROM STDIN".
		if _, _, err := be.receive(); err != nil {
			serverDone <- err
			return
		}
		be.send(pgproto.TagCopyInResponse, func(w *buf.Writer) {
			w.WriteByte(0)
			w.WriteInt16(0)
		})
		for {
			tag, body, err := be.receive()
			if err != nil {
				serverDone <- err
				return
			}
			if tag == pgproto.TagCopyData {
				received.Write(body)
				continue
			}
			if tag == pgproto.TagCopyDone {
				break
			}
		}
		be.commandComplete("COPY 3")
		be.readyForQuery('I')
		serverDone <- nil
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	n, err := c.CopyFromReader(ctx, "COPY t FROM STDIN", strings.NewReader("1\n2\n3\n"))
	if err != nil {
		t.Fatalf("CopyFromReader: %v", err)
	}
	if n != 3 {
		t.Fatalf("rows = %d, want 3", n)
	}
	if received.String() != "1\n2\n3\n" {
		t.Fatalf("server received %q", received.String())
	}
	if err := <-serverDone; err != nil {
		t.Fatalf("fake backend: %v", err)
	}
}

func TestCopyToWriter(t *testing.T) {
	c, be := newTestConn(t)

	go func() {
		be.receive() // Query
		be.send(pgproto.TagCopyOutResponse, func(w *buf.Writer) {
			w.WriteByte(0)
			w.WriteInt16(0)
		})
		be.send(pgproto.TagCopyData, func(w *buf.Writer) { w.WriteBytes([]byte("a,1\n")) })
		be.send(pgproto.TagCopyData, func(w *buf.Writer) { w.WriteBytes([]byte("b,2\n")) })
		be.send(pgproto.TagCopyDone, func(w *buf.Writer) {})
		be.commandComplete("COPY 2")
		be.readyForQuery('I')
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var dst bytes.Buffer
	n, err := c.CopyToWriter(ctx, CopyToSQL("t", nil), &dst)
	if err != nil {
		t.Fatalf("CopyToWriter: %v", err)
	}
	if n != 2 {
		t.Fatalf("rows = %d, want 2", n)
	}
	if dst.String() != "a,1\nb,2\n" {
		t.Fatalf("dst = %q", dst.String())
	}
}

func TestCopyToSQL(t *testing.T) {
	cases := []struct {
		in      string
		columns []string
		want    string
	}{
		{"orders", nil, "COPY orders TO STDOUT"},
		{"orders", []string{"id", "total"}, "COPY orders (id, total) TO STDOUT"},
		{"SELECT * FROM orders", nil, "COPY (SELECT * FROM orders) TO STDOUT"},
	}
	for _, tc := range cases {
		got := CopyToSQL(tc.in, tc.columns)
		if got != tc.want {
			t.Errorf("CopyToSQL(%q, %v) = %q, want %q", tc.in, tc.columns, got, tc.want)
		}
	}
}
