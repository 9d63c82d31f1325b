package pgconn

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/flowpg/flowpg/pgproto"
	"github.com/flowpg/flowpg/pgtype"
	"github.com/flowpg/flowpg/record"
)

// cancelDrainTimeout bounds how long receive waits for the server's
// ErrorResponse/ReadyForQuery pair after issuing an out-of-band cancel.
const cancelDrainTimeout = 5 * time.Second

// withCommandTimeout wraps ctx with cfg.CommandTimeout, per §5:
// "command_timeout wraps each operation in a deadline that triggers the
// [cancellation] flow." A zero CommandTimeout leaves ctx untouched.
func (c *Conn) withCommandTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.CommandTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.cfg.CommandTimeout)
}

// Result is the outcome of execute(): the server's command tag plus the
// affected-row count parsed out of it where the tag carries one (INSERT,
// UPDATE, DELETE, SELECT, MOVE, FETCH, COPY all do; CREATE TABLE etc. do
// not, and RowsAffected is 0 for those).
type Result struct {
	CommandTag   string
	RowsAffected int64
}

// parseCommandTag extracts the affected-row count from a command tag like
// "INSERT 0 3" or "SELECT 3". The row count is always the last
// whitespace-separated field.
func parseCommandTag(tag string) int64 {
	fields := strings.Fields(tag)
	if len(fields) == 0 {
		return 0
	}
	n, err := strconv.ParseInt(fields[len(fields)-1], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// Prepare parses sql on the server (via the statement cache, which
// deduplicates identical SQL text) and returns a handle describing its
// parameter and result shape.
func (c *Conn) Prepare(ctx context.Context, sql string) (*PreparedStatement, error) {
	ctx, cancel := c.withCommandTimeout(ctx)
	defer cancel()
	c.lock()
	defer c.unlock()
	return c.prepareLocked(ctx, sql)
}

func (c *Conn) prepareLocked(ctx context.Context, sql string) (*PreparedStatement, error) {
	if c.closed {
		return nil, &InterfaceError{Detail: "connection is closed"}
	}
	if ps, ok := c.stmtCache.get(sql); ok {
		ps.refCount++
		return ps, nil
	}

	var name string
	if c.stmtCache.maxSize > 0 {
		name = c.stmtCache.nextStatementName()
	}

	c.fe.Send(&pgproto.Parse{StatementName: name, SQL: sql})
	c.fe.Send(&pgproto.Describe{Target: pgproto.DescribeStatement, Name: name})
	c.fe.Send(&pgproto.Sync{})
	if err := c.fe.Flush(); err != nil {
		return nil, &ConnectionError{Op: "flushing Parse/Describe/Sync", Err: err}
	}

	ps := &PreparedStatement{Name: name, SQL: sql, refCount: 1}
	var sawParseComplete bool
	for {
		msg, err := c.receive(ctx)
		if err != nil {
			return nil, err
		}
		switch m := msg.(type) {
		case *pgproto.ParseComplete:
			sawParseComplete = true
		case *pgproto.ParameterDescription:
			ps.ParameterOIDs = m.ParameterOIDs
		case *pgproto.RowDescription:
			ps.Fields = fieldsFromRowDescription(m)
		case *pgproto.NoData:
			ps.Fields = nil
		case *pgproto.ErrorResponse:
			pgErr := newPostgresError(m)
			if err := c.drainToReady(ctx); err != nil {
				return nil, err
			}
			return nil, pgErr
		case *pgproto.ReadyForQuery:
			c.txStatus = m.TxStatus
			if !sawParseComplete {
				return nil, &ProtocolError{Detail: "ReadyForQuery before ParseComplete"}
			}
			ps.preparedAtNow()
			if evicted := c.stmtCache.put(ps); evicted != "" {
				if err := c.closeStatement(ctx, evicted); err != nil {
					return nil, err
				}
			}
			return ps, nil
		case *pgproto.NoticeResponse:
			c.deliverNotice(m)
		case *pgproto.NotificationResponse:
			c.deliverNotification(m)
		case *pgproto.ParameterStatus:
			c.params[m.Name] = m.Value
		default:
			return nil, &ProtocolError{Detail: fmt.Sprintf("unexpected message during Parse/Describe: %T", msg)}
		}
	}
}

func fieldsFromRowDescription(m *pgproto.RowDescription) []ColumnDescriptor {
	out := make([]ColumnDescriptor, len(m.Fields))
	for i, f := range m.Fields {
		out[i] = ColumnDescriptor{
			Name:         f.Name,
			TableOID:     f.TableOID,
			TableAttrNum: f.TableAttrNum,
			DataTypeOID:  f.DataTypeOID,
			DataTypeSize: f.DataTypeSize,
			TypeModifier: f.TypeModifier,
			Format:       f.Format,
		}
	}
	return out
}

func (c *Conn) closeStatement(ctx context.Context, name string) error {
	if name == "" {
		return nil
	}
	c.fe.Send(&pgproto.Close{Target: pgproto.DescribeStatement, Name: name})
	c.fe.Send(&pgproto.Sync{})
	if err := c.fe.Flush(); err != nil {
		return &ConnectionError{Op: "flushing Close", Err: err}
	}
	for {
		msg, err := c.receive(ctx)
		if err != nil {
			return err
		}
		switch m := msg.(type) {
		case *pgproto.CloseComplete:
		case *pgproto.ReadyForQuery:
			c.txStatus = m.TxStatus
			return nil
		case *pgproto.ErrorResponse:
			if err := c.drainToReady(ctx); err != nil {
				return err
			}
			return newPostgresError(m)
		case *pgproto.NoticeResponse:
			c.deliverNotice(m)
		case *pgproto.NotificationResponse:
			c.deliverNotification(m)
		case *pgproto.ParameterStatus:
			c.params[m.Name] = m.Value
		default:
			return &ProtocolError{Detail: fmt.Sprintf("unexpected message during Close: %T", msg)}
		}
	}
}

// bindAndExecute runs Bind/Execute(maxRows)/Sync against an already-parsed
// statement and collects rows via rowSink. It returns the command tag (if
// any) and whether the portal was suspended (more rows available).
func (c *Conn) bindAndExecute(ctx context.Context, ps *PreparedStatement, portal string, args []any, maxRows int32, rowSink func(*record.Record)) (tag string, suspended bool, err error) {
	paramFormats, paramValues, err := c.encodeParams(ps.ParameterOIDs, args)
	if err != nil {
		return "", false, err
	}
	resultFormats := resultFormatsFor(ps.Fields, c.registry)

	c.fe.Send(&pgproto.Bind{
		DestinationPortal: portal,
		StatementName:     ps.Name,
		ParameterFormats:  paramFormats,
		Parameters:        paramValues,
		ResultFormats:     resultFormats,
	})
	c.fe.Send(&pgproto.Execute{Portal: portal, MaxRows: maxRows})
	c.fe.Send(&pgproto.Sync{})
	if err := c.fe.Flush(); err != nil {
		return "", false, &ConnectionError{Op: "flushing Bind/Execute/Sync", Err: err}
	}

	var columns *record.Columns
	if len(ps.Fields) > 0 {
		columns = columnsFromDescriptors(ps.Fields)
	}

	for {
		msg, err := c.receive(ctx)
		if err != nil {
			return "", false, err
		}
		switch m := msg.(type) {
		case *pgproto.BindComplete:
		case *pgproto.DataRow:
			if rowSink != nil {
				values, decErr := c.decodeRow(ps.Fields, m.Values)
				if decErr != nil {
					return "", false, decErr
				}
				rowSink(record.New(columns, values))
			}
		case *pgproto.CommandComplete:
			tag = m.Tag
		case *pgproto.PortalSuspended:
			suspended = true
		case *pgproto.EmptyQueryResponse:
		case *pgproto.NoData:
		case *pgproto.ErrorResponse:
			pgErr := newPostgresError(m)
			if err := c.drainToReady(ctx); err != nil {
				return "", false, err
			}
			return "", false, pgErr
		case *pgproto.ReadyForQuery:
			c.txStatus = m.TxStatus
			return tag, suspended, nil
		case *pgproto.NoticeResponse:
			c.deliverNotice(m)
		case *pgproto.NotificationResponse:
			c.deliverNotification(m)
		case *pgproto.ParameterStatus:
			c.onParameterStatus(m)
		default:
			return "", false, &ProtocolError{Detail: fmt.Sprintf("unexpected message during Bind/Execute: %T", msg)}
		}
	}
}

func resultFormatsFor(fields []ColumnDescriptor, reg *pgtype.Registry) []int16 {
	if len(fields) == 0 {
		return nil
	}
	formats := make([]int16, len(fields))
	for i, f := range fields {
		if codec, ok := reg.Lookup(f.DataTypeOID); ok && codec.Decode != nil {
			formats[i] = int16(codec.PreferredFormat)
			continue
		}
		formats[i] = int16(pgtype.Text)
	}
	return formats
}

func columnsFromDescriptors(fields []ColumnDescriptor) *record.Columns {
	cols := make([]record.Column, len(fields))
	for i, f := range fields {
		cols[i] = record.Column{Name: f.Name, TableOID: f.TableOID, DataTypeOID: f.DataTypeOID}
	}
	return record.NewColumns(cols)
}

// encodeParams resolves each argument's wire format and bytes from the
// statement's Parse-time parameter OIDs, per §4.4: binary when a codec
// exists, text fallback otherwise, NULL encoded as length -1 regardless of
// format.
func (c *Conn) encodeParams(paramOIDs []uint32, args []any) (formats []int16, values [][]byte, err error) {
	if len(paramOIDs) > 0 && len(args) != len(paramOIDs) {
		return nil, nil, &InterfaceError{Detail: fmt.Sprintf("expected %d parameters, got %d", len(paramOIDs), len(args))}
	}
	formats = make([]int16, len(args))
	values = make([][]byte, len(args))
	for i, arg := range args {
		if arg == nil {
			values[i] = nil
			formats[i] = int16(pgtype.Binary)
			continue
		}
		var oid uint32
		if i < len(paramOIDs) {
			oid = paramOIDs[i]
		}
		codec, ok := c.registry.Lookup(oid)
		if !ok || codec.Encode == nil {
			// No codec resolved: require the value already be a string the
			// server can cast, per §4.4's "must be castable via explicit
			// ::type" fallback.
			s, ok := arg.(string)
			if !ok {
				return nil, nil, &DataError{Detail: fmt.Sprintf("no codec for OID %d and argument of type %T is not a string", oid, arg)}
			}
			formats[i] = int16(pgtype.Text)
			values[i] = []byte(s)
			continue
		}
		enc, err := codec.Encode(pgtype.Binary, arg)
		if err != nil {
			formats[i] = int16(pgtype.Text)
			enc, err = codec.Encode(pgtype.Text, arg)
			if err != nil {
				return nil, nil, &DataError{Detail: fmt.Sprintf("encoding parameter %d (OID %d)", i, oid), Err: err}
			}
			values[i] = enc
			continue
		}
		formats[i] = int16(pgtype.Binary)
		values[i] = enc
	}
	return formats, values, nil
}

func (c *Conn) decodeRow(fields []ColumnDescriptor, raw [][]byte) ([]any, error) {
	values := make([]any, len(raw))
	for i, v := range raw {
		if i >= len(fields) {
			return nil, &ProtocolError{Detail: "DataRow has more fields than RowDescription"}
		}
		f := fields[i]
		codec, ok := c.registry.Lookup(f.DataTypeOID)
		if !ok || codec.Decode == nil {
			if v == nil {
				values[i] = nil
			} else {
				values[i] = string(v)
			}
			continue
		}
		format := pgtype.Format(f.Format)
		decoded, err := codec.Decode(format, v)
		if err != nil {
			return nil, &DataError{Detail: fmt.Sprintf("decoding column %q (OID %d)", f.Name, f.DataTypeOID), Err: err}
		}
		values[i] = decoded
	}
	return values, nil
}

// Execute runs sql with args via the extended query protocol and returns
// the command tag and affected-row count. Use Fetch/FetchRow/FetchVal for
// result rows.
func (c *Conn) Execute(ctx context.Context, sql string, args ...any) (Result, error) {
	ctx, cancel := c.withCommandTimeout(ctx)
	defer cancel()
	c.lock()
	defer c.unlock()
	return c.executeLocked(ctx, sql, args)
}

func (c *Conn) executeLocked(ctx context.Context, sql string, args []any) (Result, error) {
	ps, err := c.prepareLocked(ctx, sql)
	if err != nil {
		return Result{}, err
	}
	tag, _, err := c.bindAndExecute(ctx, ps, "", args, 0, nil)
	if err != nil {
		return Result{}, err
	}
	return Result{CommandTag: tag, RowsAffected: parseCommandTag(tag)}, nil
}

// Fetch runs sql with args and returns every resulting row.
func (c *Conn) Fetch(ctx context.Context, sql string, args ...any) ([]*record.Record, error) {
	ctx, cancel := c.withCommandTimeout(ctx)
	defer cancel()
	c.lock()
	defer c.unlock()
	ps, err := c.prepareLocked(ctx, sql)
	if err != nil {
		return nil, err
	}
	var rows []*record.Record
	_, _, err = c.bindAndExecute(ctx, ps, "", args, 0, func(r *record.Record) {
		rows = append(rows, r)
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// FetchRow runs sql with args and returns the first row, or nil if the
// result set is empty.
func (c *Conn) FetchRow(ctx context.Context, sql string, args ...any) (*record.Record, error) {
	rows, err := c.Fetch(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// FetchVal runs sql with args and returns the value of the named column
// from the first row.
func (c *Conn) FetchVal(ctx context.Context, column string, sql string, args ...any) (any, error) {
	row, err := c.FetchRow(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	v, ok := row.GetByName(column)
	if !ok {
		return nil, &InterfaceError{Detail: fmt.Sprintf("no column named %q in result", column)}
	}
	return v, nil
}

// ExecuteMany runs sql once per element of argSets, via the extended query
// protocol (Parse once, Bind/Execute per row), matching the spec's
// `executemany` semantics used in S3.
func (c *Conn) ExecuteMany(ctx context.Context, sql string, argSets [][]any) (int64, error) {
	ctx, cancel := c.withCommandTimeout(ctx)
	defer cancel()
	c.lock()
	defer c.unlock()
	ps, err := c.prepareLocked(ctx, sql)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, args := range argSets {
		tag, _, err := c.bindAndExecute(ctx, ps, "", args, 0, nil)
		if err != nil {
			return total, err
		}
		total += parseCommandTag(tag)
	}
	return total, nil
}

// SimpleQuery runs sql via the simple query protocol: no parameters, all
// results in text format, possibly multiple statements and multiple result
// groups. It is used internally for commands that must not be prepared
// (BEGIN/COMMIT/ROLLBACK/LISTEN) and is exported for callers who need it
// directly.
func (c *Conn) SimpleQuery(ctx context.Context, sql string) ([]*record.Record, error) {
	ctx, cancel := c.withCommandTimeout(ctx)
	defer cancel()
	c.lock()
	defer c.unlock()
	return c.simpleQueryLocked(ctx, sql)
}

func (c *Conn) simpleQueryLocked(ctx context.Context, sql string) ([]*record.Record, error) {
	if c.closed {
		return nil, &InterfaceError{Detail: "connection is closed"}
	}
	if err := c.fe.SendNow(&pgproto.Query{SQL: sql}); err != nil {
		return nil, &ConnectionError{Op: "sending Query", Err: err}
	}

	var rows []*record.Record
	var columns *record.Columns
	var fields []ColumnDescriptor

	for {
		msg, err := c.receive(ctx)
		if err != nil {
			return nil, err
		}
		switch m := msg.(type) {
		case *pgproto.RowDescription:
			fields = fieldsFromRowDescription(m)
			for i := range fields {
				fields[i].Format = 0 // simple query is always text
			}
			columns = columnsFromDescriptors(fields)
		case *pgproto.DataRow:
			values, err := c.decodeRow(fields, m.Values)
			if err != nil {
				return nil, err
			}
			rows = append(rows, record.New(columns, values))
		case *pgproto.CommandComplete:
			// A multi-statement simple query can emit several
			// RowDescription/DataRow*/CommandComplete groups; reset the
			// column state between them.
			fields = nil
			columns = nil
		case *pgproto.EmptyQueryResponse:
		case *pgproto.ErrorResponse:
			pgErr := newPostgresError(m)
			if err := c.drainToReady(ctx); err != nil {
				return nil, err
			}
			return nil, pgErr
		case *pgproto.ReadyForQuery:
			c.txStatus = m.TxStatus
			return rows, nil
		case *pgproto.NoticeResponse:
			c.deliverNotice(m)
		case *pgproto.NotificationResponse:
			c.deliverNotification(m)
		case *pgproto.ParameterStatus:
			c.onParameterStatus(m)
		default:
			return nil, &ProtocolError{Detail: fmt.Sprintf("unexpected message during simple query: %T", msg)}
		}
	}
}

// drainToReady consumes messages until ReadyForQuery, the required
// response to any ErrorResponse mid-pipeline per §4.3's Sync contract.
func (c *Conn) drainToReady(ctx context.Context) error {
	for {
		msg, err := c.receive(ctx)
		if err != nil {
			return err
		}
		switch m := msg.(type) {
		case *pgproto.ReadyForQuery:
			c.txStatus = m.TxStatus
			return nil
		case *pgproto.NoticeResponse:
			c.deliverNotice(m)
		case *pgproto.NotificationResponse:
			c.deliverNotification(m)
		case *pgproto.ParameterStatus:
			c.onParameterStatus(m)
		}
	}
}

// receive reads one backend message honoring ctx's deadline. If the read
// is interrupted because ctx was cancelled or its deadline elapsed, it
// drives the §5 cancellation flow (cancelAndDrain) rather than poisoning
// the connection outright, so a command_timeout or caller cancellation
// leaves the connection Idle and reusable. Any other I/O failure poisons
// the connection, since a read already in flight for an unrelated reason
// cannot be un-read.
func (c *Conn) receive(ctx context.Context) (pgproto.BackendMessage, error) {
	if deadline, ok := ctx.Deadline(); ok {
		c.netConn.SetReadDeadline(deadline)
		defer c.netConn.SetReadDeadline(zeroTime)
	}
	msg, err := c.fe.Receive()
	if err != nil {
		select {
		case <-ctx.Done():
			return nil, c.cancelAndDrain(ctx)
		default:
			c.poison()
			return nil, &ConnectionError{Op: "reading backend message", Err: err}
		}
	}
	return msg, nil
}

// onParameterStatus records the new value in the server-parameter map.
// Codecs keep no state derived from server parameters, so nothing else is
// updated when a parameter affecting wire representation changes.
func (c *Conn) onParameterStatus(m *pgproto.ParameterStatus) {
	c.params[m.Name] = m.Value
}
