// Package pgproto implements the PostgreSQL frontend/backend wire protocol,
// version 3.0: message framing, the full message catalog used by the
// extended and simple query protocols, COPY, and asynchronous backend
// messages, and a Frontend type that drives the half-duplex request/
// response pump described by the protocol.
package pgproto

// Frontend (client-to-server) message type tags. StartupMessage,
// SSLRequest, GSSENCRequest and CancelRequest carry no leading tag byte;
// they are framed as length-prefixed only.
const (
	TagPassword           byte = 'p' // PasswordMessage, SASLInitialResponse, SASLResponse, GSSResponse
	TagQuery              byte = 'Q'
	TagParse              byte = 'P'
	TagBind               byte = 'B'
	TagDescribe           byte = 'D'
	TagExecute            byte = 'E'
	TagClose              byte = 'C'
	TagSync               byte = 'S'
	TagFlush              byte = 'H'
	TagCopyData           byte = 'd'
	TagCopyDone           byte = 'c'
	TagCopyFail           byte = 'f'
	TagFunctionCall       byte = 'F' // reserved; no FunctionCall message type is built on top of it
	TagTerminate          byte = 'X'
)

// Backend (server-to-client) message type tags.
const (
	TagAuthentication      byte = 'R'
	TagBackendKeyData      byte = 'K'
	TagBindComplete        byte = '2'
	TagCloseComplete       byte = '3'
	TagCommandComplete     byte = 'C'
	TagCopyInResponse      byte = 'G'
	TagCopyOutResponse     byte = 'H'
	TagCopyBothResponse    byte = 'W'
	TagDataRow             byte = 'D'
	TagEmptyQueryResponse  byte = 'I'
	TagErrorResponse       byte = 'E'
	TagNoData              byte = 'n'
	TagNoticeResponse      byte = 'N'
	TagNotificationResp    byte = 'A'
	TagParameterDescription byte = 't'
	TagParameterStatus     byte = 'S'
	TagParseComplete       byte = '1'
	TagPortalSuspended     byte = 's'
	TagReadyForQuery       byte = 'Z'
	TagRowDescription      byte = 'T'
	// TagCopyData and TagCopyDone are shared between directions ('d'/'c').
)

// Authentication sub-message types carried in the first int32 of an
// Authentication ('R') backend message payload.
const (
	AuthTypeOk                uint32 = 0
	AuthTypeCleartextPassword uint32 = 3
	AuthTypeMD5Password       uint32 = 5
	AuthTypeSCM               uint32 = 6
	AuthTypeGSS               uint32 = 7
	AuthTypeGSSContinue       uint32 = 8
	AuthTypeSSPI              uint32 = 9
	AuthTypeSASL              uint32 = 10
	AuthTypeSASLContinue      uint32 = 11
	AuthTypeSASLFinal         uint32 = 12
)

// ProtocolVersion30 is the PostgreSQL protocol version this engine speaks.
const ProtocolVersion30 = 3<<16 | 0

// SSLRequestCode is the magic number sent in place of a protocol version to
// request a TLS upgrade before the real StartupMessage.
const SSLRequestCode = 80877103

// GSSENCRequestCode requests GSSAPI encryption negotiation. The engine
// never sends it: GSSAPI/SSPI mechanics are out of scope (treated as a
// pluggable auth submodule, and no GSS implementation is wired in), so
// negotiateTLS only ever drives SSLRequest.
const GSSENCRequestCode = 80877104

// CancelRequestCode is the magic number identifying a CancelRequest.
const CancelRequestCode = 80877102

// FormatText and FormatBinary are the two wire format codes used in Bind
// parameter/result format lists and in ColumnDescriptor/RowDescription.
const (
	FormatText   int16 = 0
	FormatBinary int16 = 1
)

// TransactionStatus is the single-byte status carried by ReadyForQuery.
type TransactionStatus byte

const (
	TxIdle    TransactionStatus = 'I'
	TxInBlock TransactionStatus = 'T'
	TxFailed  TransactionStatus = 'E'
)
