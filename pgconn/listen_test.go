package pgconn

import (
	"context"
	"testing"
	"time"

	"github.com/flowpg/flowpg/internal/buf"
	"github.com/flowpg/flowpg/pgproto"
)

func TestAddListenerDeliversNotification(t *testing.T) {
	c, be := newTestConn(t)

	go func() {
		be.receive() // LISTEN query
		be.readyForQuery('I')

		be.receive() // SELECT 1, used to pump the async message through

		// A NotificationResponse can arrive at any time, unprompted.
		be.send(pgproto.TagNotificationResp, func(w *buf.Writer) {
			w.WriteUint32(4242)
			w.WriteCString("ch")
			w.WriteCString("hello")
		})

		be.rowDescAndOne()
		be.readyForQuery('I')
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	received := make(chan struct{}, 1)
	var gotChannel, gotPayload string
	var gotPID uint32
	if _, err := c.AddListener(ctx, "ch", func(channel, payload string, pid uint32) {
		gotChannel, gotPayload, gotPID = channel, payload, pid
		received <- struct{}{}
	}); err != nil {
		t.Fatalf("AddListener: %v", err)
	}

	// Any subsequent round-trip gives the async NotificationResponse a
	// chance to be read and dispatched ahead of the synchronous reply.
	if _, err := c.SimpleQuery(ctx, "SELECT 1"); err != nil {
		t.Fatalf("SimpleQuery: %v", err)
	}

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("notification was not delivered")
	}
	if gotChannel != "ch" || gotPayload != "hello" || gotPID != 4242 {
		t.Fatalf("got (%q, %q, %d), want (ch, hello, 4242)", gotChannel, gotPayload, gotPID)
	}
}

func (b *fakeBackend) rowDescAndOne() {
	b.rowDescription([]fakeField{{name: "one", oid: 23}})
	b.dataRow([][]byte{[]byte("1")}) // simple query results are text
	b.commandComplete("SELECT 1")
}
