package pgproto

import "github.com/flowpg/flowpg/internal/buf"

// FrontendMessage is any message the client can send to the backend.
type FrontendMessage interface {
	Encode(w *buf.Writer)
}

// StartupMessage is the first message sent on a new connection. It carries
// no leading type byte.
type StartupMessage struct {
	ProtocolVersion int32
	Parameters      map[string]string // e.g. "user", "database", "application_name", "options"
}

func (m *StartupMessage) Encode(w *buf.Writer) {
	off := w.BeginMessage(0)
	w.WriteInt32(m.ProtocolVersion)
	for k, v := range m.Parameters {
		w.WriteCString(k)
		w.WriteCString(v)
	}
	w.WriteByte(0)
	w.EndMessage(off)
}

// SSLRequest asks the server whether it will accept a TLS upgrade.
type SSLRequest struct{}

func (m *SSLRequest) Encode(w *buf.Writer) {
	off := w.BeginMessage(0)
	w.WriteInt32(SSLRequestCode)
	w.EndMessage(off)
}

// CancelRequest opens a fresh connection and asks the server to cancel the
// operation running on the connection identified by PID/SecretKey.
type CancelRequest struct {
	ProcessID uint32
	SecretKey uint32
}

func (m *CancelRequest) Encode(w *buf.Writer) {
	off := w.BeginMessage(0)
	w.WriteInt32(CancelRequestCode)
	w.WriteUint32(m.ProcessID)
	w.WriteUint32(m.SecretKey)
	w.EndMessage(off)
}

// PasswordMessage carries a cleartext or MD5-hashed password response.
type PasswordMessage struct {
	Password string
}

func (m *PasswordMessage) Encode(w *buf.Writer) {
	off := w.BeginMessage(TagPassword)
	w.WriteCString(m.Password)
	w.EndMessage(off)
}

// SASLInitialResponse begins a SASL authentication exchange (e.g. SCRAM-SHA-256).
type SASLInitialResponse struct {
	Mechanism string
	Data      []byte
}

func (m *SASLInitialResponse) Encode(w *buf.Writer) {
	off := w.BeginMessage(TagPassword)
	w.WriteCString(m.Mechanism)
	w.WriteLengthPrefixed(m.Data)
	w.EndMessage(off)
}

// SASLResponse continues a SASL authentication exchange.
type SASLResponse struct {
	Data []byte
}

func (m *SASLResponse) Encode(w *buf.Writer) {
	off := w.BeginMessage(TagPassword)
	w.WriteBytes(m.Data)
	w.EndMessage(off)
}

// Query issues the simple query protocol. Multiple ;-separated statements
// are permitted; none may use parameters.
type Query struct {
	SQL string
}

func (m *Query) Encode(w *buf.Writer) {
	off := w.BeginMessage(TagQuery)
	w.WriteCString(m.SQL)
	w.EndMessage(off)
}

// Parse creates a (possibly unnamed) prepared statement.
type Parse struct {
	StatementName string
	SQL           string
	ParameterOIDs []uint32
}

func (m *Parse) Encode(w *buf.Writer) {
	off := w.BeginMessage(TagParse)
	w.WriteCString(m.StatementName)
	w.WriteCString(m.SQL)
	w.WriteInt16(int16(len(m.ParameterOIDs)))
	for _, oid := range m.ParameterOIDs {
		w.WriteUint32(oid)
	}
	w.EndMessage(off)
}

// Bind creates a portal from a prepared statement and a set of parameter
// values, specifying the wire format for each parameter and each result
// column.
type Bind struct {
	DestinationPortal string
	StatementName     string
	ParameterFormats  []int16 // 0 or 1 entries broadcast to all, or one per parameter
	Parameters        [][]byte
	ResultFormats     []int16 // 0 entries means all-text
}

func (m *Bind) Encode(w *buf.Writer) {
	off := w.BeginMessage(TagBind)
	w.WriteCString(m.DestinationPortal)
	w.WriteCString(m.StatementName)

	w.WriteInt16(int16(len(m.ParameterFormats)))
	for _, f := range m.ParameterFormats {
		w.WriteInt16(f)
	}

	w.WriteInt16(int16(len(m.Parameters)))
	for _, p := range m.Parameters {
		w.WriteLengthPrefixed(p)
	}

	w.WriteInt16(int16(len(m.ResultFormats)))
	for _, f := range m.ResultFormats {
		w.WriteInt16(f)
	}
	w.EndMessage(off)
}

// DescribeTarget distinguishes describing a statement from a portal.
type DescribeTarget byte

const (
	DescribeStatement DescribeTarget = 'S'
	DescribePortal    DescribeTarget = 'P'
)

// Describe requests a ParameterDescription (for statements) and/or
// RowDescription (for statements and portals) for the named object.
type Describe struct {
	Target DescribeTarget
	Name   string
}

func (m *Describe) Encode(w *buf.Writer) {
	off := w.BeginMessage(TagDescribe)
	w.WriteByte(byte(m.Target))
	w.WriteCString(m.Name)
	w.EndMessage(off)
}

// Execute runs a bound portal. MaxRows of 0 means "fetch all rows"; a
// positive MaxRows arms portal suspension for server-side cursors.
type Execute struct {
	Portal  string
	MaxRows int32
}

func (m *Execute) Encode(w *buf.Writer) {
	off := w.BeginMessage(TagExecute)
	w.WriteCString(m.Portal)
	w.WriteInt32(m.MaxRows)
	w.EndMessage(off)
}

// Close closes a prepared statement or portal, freeing server resources.
type Close struct {
	Target DescribeTarget
	Name   string
}

func (m *Close) Encode(w *buf.Writer) {
	off := w.BeginMessage(TagClose)
	w.WriteByte(byte(m.Target))
	w.WriteCString(m.Name)
	w.EndMessage(off)
}

// Sync marks the end of a pipelined extended-query sequence; the backend
// responds with ReadyForQuery once it has processed everything before it.
type Sync struct{}

func (m *Sync) Encode(w *buf.Writer) {
	off := w.BeginMessage(TagSync)
	w.EndMessage(off)
}

// Flush asks the backend to deliver any pending output without implying a
// transaction boundary (unlike Sync).
type Flush struct{}

func (m *Flush) Encode(w *buf.Writer) {
	off := w.BeginMessage(TagFlush)
	w.EndMessage(off)
}

// CopyData carries one chunk of COPY data in either direction.
type CopyData struct {
	Data []byte
}

func (m *CopyData) Encode(w *buf.Writer) {
	off := w.BeginMessage(TagCopyData)
	w.WriteBytes(m.Data)
	w.EndMessage(off)
}

// CopyDone signals the end of a successful COPY IN.
type CopyDone struct{}

func (m *CopyDone) Encode(w *buf.Writer) {
	off := w.BeginMessage(TagCopyDone)
	w.EndMessage(off)
}

// CopyFail aborts an in-progress COPY IN with an error message.
type CopyFail struct {
	Message string
}

func (m *CopyFail) Encode(w *buf.Writer) {
	off := w.BeginMessage(TagCopyFail)
	w.WriteCString(m.Message)
	w.EndMessage(off)
}

// Terminate politely closes the connection.
type Terminate struct{}

func (m *Terminate) Encode(w *buf.Writer) {
	off := w.BeginMessage(TagTerminate)
	w.EndMessage(off)
}
