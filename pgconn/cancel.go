package pgconn

import (
	"context"
	"errors"
	"time"

	"github.com/flowpg/flowpg/pgproto"
)

// CancelToken carries everything needed to issue a best-effort
// out-of-band cancellation of an in-flight operation on a Conn, without
// needing the Conn itself (e.g. from a different goroutine than the one
// using it).
type CancelToken struct {
	cfg       *Config
	backendPID uint32
	secretKey  uint32
}

// CancelToken returns a token that can issue Cancel independently of this
// Conn, safe to call from another goroutine per §4.3/§5.
func (c *Conn) CancelToken() CancelToken {
	return CancelToken{cfg: c.cfg, backendPID: c.pid, secretKey: c.secretKey}
}

// Cancel opens a fresh connection to the same server and sends
// CancelRequest, per §4.3: cancellation never reuses the main connection's
// socket and is best-effort only. The server may have already finished,
// in which case this is a no-op from the target connection's perspective.
func (t CancelToken) Cancel(ctx context.Context) error {
	nc, err := dial(ctx, t.cfg)
	if err != nil {
		return &ConnectionError{Op: "dialing for cancel", Err: err}
	}
	defer nc.Close()

	fe := pgproto.NewFrontend(nc, 256)
	if err := fe.SendNow(&pgproto.CancelRequest{ProcessID: t.backendPID, SecretKey: t.secretKey}); err != nil {
		return &ConnectionError{Op: "sending CancelRequest", Err: err}
	}
	// The server closes the connection without a reply; draining a read
	// until EOF (ignoring the error) confirms the frame was accepted
	// on the wire before this connection goes away.
	var discard [1]byte
	_, _ = nc.Read(discard[:])
	return nil
}

// cancelAndDrain implements §5's cancellation flow for an operation whose
// ctx just expired or was cancelled mid-read: it issues an out-of-band
// CancelRequest over a fresh connection, then keeps reading this
// connection's socket until the server's ErrorResponse (query_canceled)
// and the ReadyForQuery that follows it, so the connection is left
// cleanly Idle instead of poisoned. Any failure along the way (the cancel
// dial/send, or the drain read itself) leaves the wire in an unknown
// state, so the connection is poisoned instead.
func (c *Conn) cancelAndDrain(causeCtx context.Context) error {
	token := CancelToken{cfg: c.cfg, backendPID: c.pid, secretKey: c.secretKey}
	cancelCtx, cancel := context.WithTimeout(context.Background(), cancelDrainTimeout)
	defer cancel()
	if err := token.Cancel(cancelCtx); err != nil {
		c.poison()
		return &ConnectionError{Op: "sending out-of-band cancel", Err: err}
	}

	c.netConn.SetReadDeadline(time.Now().Add(cancelDrainTimeout))
	defer c.netConn.SetReadDeadline(zeroTime)
	for {
		msg, err := c.fe.Receive()
		if err != nil {
			c.poison()
			return &ConnectionError{Op: "draining after cancel", Err: err}
		}
		switch m := msg.(type) {
		case *pgproto.ReadyForQuery:
			c.txStatus = m.TxStatus
			if errors.Is(causeCtx.Err(), context.DeadlineExceeded) {
				return &TimeoutError{}
			}
			return &CancelledError{}
		case *pgproto.NoticeResponse:
			c.deliverNotice(m)
		case *pgproto.NotificationResponse:
			c.deliverNotification(m)
		case *pgproto.ParameterStatus:
			c.onParameterStatus(m)
		case *pgproto.ErrorResponse:
			// Expected: 57014 query_canceled. Keep draining regardless:
			// the contract is "read until ReadyForQuery", not "stop at
			// the first error".
		}
	}
}
