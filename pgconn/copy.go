package pgconn

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/flowpg/flowpg/pgproto"
)

// CopyError wraps a failure during a COPY IN/OUT operation.
type CopyError struct {
	Detail string
	Err    error
}

func (e *CopyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pgconn: copy error: %s: %v", e.Detail, e.Err)
	}
	return "pgconn: copy error: " + e.Detail
}
func (e *CopyError) Unwrap() error { return e.Err }

// CopyFromReader streams src to the server as the data source for sql,
// which must be a `COPY ... FROM STDIN ...` statement. Returns the number
// of rows copied, as reported by the server's CommandComplete tag.
func (c *Conn) CopyFromReader(ctx context.Context, sql string, src io.Reader) (int64, error) {
	c.lock()
	defer c.unlock()
	if c.closed {
		return 0, &InterfaceError{Detail: "connection is closed"}
	}
	if err := c.fe.SendNow(&pgproto.Query{SQL: sql}); err != nil {
		return 0, &ConnectionError{Op: "sending COPY FROM Query", Err: err}
	}

	if err := c.awaitCopyInResponse(ctx); err != nil {
		return 0, err
	}

	buf := make([]byte, 64*1024)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if err := c.fe.SendNow(&pgproto.CopyData{Data: buf[:n]}); err != nil {
				_ = c.fe.SendNow(&pgproto.CopyFail{Message: err.Error()})
				return 0, &CopyError{Detail: "writing CopyData", Err: err}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			_ = c.fe.SendNow(&pgproto.CopyFail{Message: readErr.Error()})
			return 0, c.finishCopyFail(ctx, readErr)
		}
	}
	if err := c.fe.SendNow(&pgproto.CopyDone{}); err != nil {
		return 0, &ConnectionError{Op: "sending CopyDone", Err: err}
	}
	return c.awaitCopyComplete(ctx)
}

// CopyToSQL returns a `COPY (sql or table) TO STDOUT` statement suitable
// for CopyToWriter, wrapping table names (not starting with "(" or a
// SELECT keyword) as `COPY <table> (<columns>) TO STDOUT`.
func CopyToSQL(tableOrQuery string, columns []string) string {
	trimmed := strings.TrimSpace(tableOrQuery)
	upper := strings.ToUpper(trimmed)
	if strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(trimmed, "(") {
		return fmt.Sprintf("COPY (%s) TO STDOUT", trimmed)
	}
	if len(columns) > 0 {
		return fmt.Sprintf("COPY %s (%s) TO STDOUT", trimmed, strings.Join(columns, ", "))
	}
	return fmt.Sprintf("COPY %s TO STDOUT", trimmed)
}

// CopyToWriter streams the server's COPY OUT output for sql (a
// `COPY ... TO STDOUT ...` statement, see CopyToSQL) to dst. Returns the
// number of rows copied.
func (c *Conn) CopyToWriter(ctx context.Context, sql string, dst io.Writer) (int64, error) {
	c.lock()
	defer c.unlock()
	if c.closed {
		return 0, &InterfaceError{Detail: "connection is closed"}
	}
	if err := c.fe.SendNow(&pgproto.Query{SQL: sql}); err != nil {
		return 0, &ConnectionError{Op: "sending COPY TO Query", Err: err}
	}
	if err := c.awaitCopyOutResponse(ctx); err != nil {
		return 0, err
	}
	for {
		tag, body, err := c.fe.ReceiveRaw()
		if err != nil {
			return 0, &ConnectionError{Op: "reading COPY OUT data", Err: err}
		}
		switch tag {
		case pgproto.TagCopyData:
			if _, err := dst.Write(body); err != nil {
				return 0, &CopyError{Detail: "writing to destination", Err: err}
			}
		case pgproto.TagCopyDone:
			return c.awaitCopyComplete(ctx)
		case pgproto.TagErrorResponse:
			errMsg := &pgproto.ErrorResponse{}
			if decErr := errMsg.Decode(body); decErr != nil {
				return 0, &ProtocolError{Detail: "decoding ErrorResponse during COPY OUT"}
			}
			pgErr := newPostgresError(errMsg)
			if err := c.drainToReady(ctx); err != nil {
				return 0, err
			}
			return 0, pgErr
		default:
			return 0, &ProtocolError{Detail: fmt.Sprintf("unexpected message tag %q during COPY OUT", tag)}
		}
	}
}

func (c *Conn) awaitCopyInResponse(ctx context.Context) error {
	for {
		msg, err := c.receive(ctx)
		if err != nil {
			return err
		}
		switch m := msg.(type) {
		case *pgproto.CopyInResponse:
			return nil
		case *pgproto.ErrorResponse:
			pgErr := newPostgresError(m)
			if err := c.drainToReady(ctx); err != nil {
				return err
			}
			return pgErr
		case *pgproto.NoticeResponse:
			c.deliverNotice(m)
		case *pgproto.NotificationResponse:
			c.deliverNotification(m)
		case *pgproto.ParameterStatus:
			c.onParameterStatus(m)
		default:
			return &ProtocolError{Detail: fmt.Sprintf("unexpected message waiting for CopyInResponse: %T", msg)}
		}
	}
}

func (c *Conn) awaitCopyOutResponse(ctx context.Context) error {
	for {
		msg, err := c.receive(ctx)
		if err != nil {
			return err
		}
		switch m := msg.(type) {
		case *pgproto.CopyOutResponse:
			return nil
		case *pgproto.ErrorResponse:
			pgErr := newPostgresError(m)
			if err := c.drainToReady(ctx); err != nil {
				return err
			}
			return pgErr
		case *pgproto.NoticeResponse:
			c.deliverNotice(m)
		case *pgproto.NotificationResponse:
			c.deliverNotification(m)
		case *pgproto.ParameterStatus:
			c.onParameterStatus(m)
		default:
			return &ProtocolError{Detail: fmt.Sprintf("unexpected message waiting for CopyOutResponse: %T", msg)}
		}
	}
}

// awaitCopyComplete consumes CommandComplete and ReadyForQuery after a
// successful COPY, returning the row count from the command tag.
func (c *Conn) awaitCopyComplete(ctx context.Context) (int64, error) {
	var rows int64
	for {
		msg, err := c.receive(ctx)
		if err != nil {
			return 0, err
		}
		switch m := msg.(type) {
		case *pgproto.CommandComplete:
			rows = parseCommandTag(m.Tag)
		case *pgproto.ErrorResponse:
			pgErr := newPostgresError(m)
			if err := c.drainToReady(ctx); err != nil {
				return 0, err
			}
			return 0, pgErr
		case *pgproto.ReadyForQuery:
			c.txStatus = m.TxStatus
			return rows, nil
		case *pgproto.NoticeResponse:
			c.deliverNotice(m)
		case *pgproto.NotificationResponse:
			c.deliverNotification(m)
		case *pgproto.ParameterStatus:
			c.onParameterStatus(m)
		}
	}
}

// finishCopyFail drains the server's response to a CopyFail we already
// sent (an ErrorResponse is guaranteed) and surfaces the read error that
// triggered it as a CopyError.
func (c *Conn) finishCopyFail(ctx context.Context, cause error) error {
	_ = c.drainToReady(ctx)
	return &CopyError{Detail: "reading copy source", Err: cause}
}
