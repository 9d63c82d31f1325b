package pgconn

import (
	"errors"
	"fmt"

	"github.com/flowpg/flowpg/pgproto"
)

// ProtocolError reports a malformed message or an unexpected message for
// the connection's current state. The connection is no longer usable once
// this surfaces; the pool must replace it.
type ProtocolError struct {
	Detail string
}

func (e *ProtocolError) Error() string { return "pgconn: protocol error: " + e.Detail }

// PostgresError wraps a server-originated ErrorResponse/NoticeResponse.
type PostgresError struct {
	Severity       string
	SQLState       string
	Message        string
	Detail         string
	Hint           string
	Position       string
	SchemaName     string
	TableName      string
	ColumnName     string
	DataTypeName   string
	ConstraintName string
}

func (e *PostgresError) Error() string {
	return fmt.Sprintf("pgconn: %s: %s (SQLSTATE %s)", e.Severity, e.Message, e.SQLState)
}

// Fatal reports whether the server considers this connection no longer
// usable (severity FATAL or PANIC).
func (e *PostgresError) Fatal() bool {
	return e.Severity == "FATAL" || e.Severity == "PANIC"
}

func newPostgresError(f *pgproto.ErrorResponse) *PostgresError {
	return &PostgresError{
		Severity:       f.Severity(),
		SQLState:       f.SQLState(),
		Message:        f.Message(),
		Detail:         f.Fields[pgproto.FieldDetail],
		Hint:           f.Fields[pgproto.FieldHint],
		Position:       f.Fields[pgproto.FieldPosition],
		SchemaName:     f.Fields[pgproto.FieldSchemaName],
		TableName:      f.Fields[pgproto.FieldTableName],
		ColumnName:     f.Fields[pgproto.FieldColumnName],
		DataTypeName:   f.Fields[pgproto.FieldDataTypeName],
		ConstraintName: f.Fields[pgproto.FieldConstraint],
	}
}

// ConnectionError reports a socket-level I/O failure, TLS failure, or
// unexpected EOF. The connection is terminated.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string { return fmt.Sprintf("pgconn: %s: %v", e.Op, e.Err) }
func (e *ConnectionError) Unwrap() error { return e.Err }

// AuthenticationError reports rejected credentials or an unsupported
// authentication mechanism.
type AuthenticationError struct {
	Detail string
}

func (e *AuthenticationError) Error() string { return "pgconn: authentication failed: " + e.Detail }

// DataError reports a codec encode/decode failure: type mismatch, invalid
// array literal, numeric overflow, and similar.
type DataError struct {
	Detail string
	Err    error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pgconn: data error: %s: %v", e.Detail, e.Err)
	}
	return "pgconn: data error: " + e.Detail
}
func (e *DataError) Unwrap() error { return e.Err }

// InterfaceError reports caller misuse: wrong argument arity, an operation
// invoked in the wrong connection state, a cursor requested outside a
// transaction, a nested acquire on the same pool holder.
type InterfaceError struct {
	Detail string
}

func (e *InterfaceError) Error() string { return "pgconn: interface error: " + e.Detail }

// CancelledError reports that an in-flight operation was cancelled.
type CancelledError struct{}

func (e *CancelledError) Error() string { return "pgconn: operation cancelled" }

// TimeoutError reports that a configured deadline elapsed.
type TimeoutError struct{}

func (e *TimeoutError) Error() string { return "pgconn: operation timed out" }

// PoolError reports pool-level failures: AcquireTimeout, PoolClosed.
type PoolError struct {
	Detail string
}

func (e *PoolError) Error() string { return "pgconn: pool error: " + e.Detail }

var (
	ErrAcquireTimeout = &PoolError{Detail: "timed out waiting for a connection"}
	ErrPoolClosed     = &PoolError{Detail: "pool is closed"}
)

// ErrNoTransaction is returned when an operation requiring an open
// transaction (e.g. a server-side cursor) is attempted outside one.
var ErrNoTransaction = &InterfaceError{Detail: "operation requires an open transaction"}

// ErrNestedAcquire is returned when a caller holding a pool connection
// attempts to acquire another on the same logical holder.
var ErrNestedAcquire = &InterfaceError{Detail: "nested pool acquire on the same holder"}

// As is a thin re-export of errors.As so callers don't need a second
// import just to unwrap these types.
func As(err error, target any) bool { return errors.As(err, target) }
