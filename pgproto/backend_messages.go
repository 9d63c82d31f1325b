package pgproto

import (
	"fmt"

	"github.com/flowpg/flowpg/internal/buf"
)

// BackendMessage is any message the server can send to the client. body is
// the message payload with the tag and length already stripped.
type BackendMessage interface {
	Decode(body []byte) error
}

// FieldDescription describes one column of a RowDescription result.
type FieldDescription struct {
	Name             string
	TableOID         uint32
	TableAttrNum     int16
	DataTypeOID      uint32
	DataTypeSize     int16
	TypeModifier     int32
	Format           int16
}

// RowDescription announces the column shape of the rows that follow.
type RowDescription struct {
	Fields []FieldDescription
}

func (m *RowDescription) Decode(body []byte) error {
	r := buf.NewReader(body)
	n, err := r.ReadInt16()
	if err != nil {
		return err
	}
	m.Fields = make([]FieldDescription, n)
	for i := range m.Fields {
		f := &m.Fields[i]
		if f.Name, err = r.ReadCString(); err != nil {
			return err
		}
		if f.TableOID, err = r.ReadUint32(); err != nil {
			return err
		}
		if f.TableAttrNum, err = r.ReadInt16(); err != nil {
			return err
		}
		if f.DataTypeOID, err = r.ReadUint32(); err != nil {
			return err
		}
		if f.DataTypeSize, err = r.ReadInt16(); err != nil {
			return err
		}
		if f.TypeModifier, err = r.ReadInt32(); err != nil {
			return err
		}
		if f.Format, err = r.ReadInt16(); err != nil {
			return err
		}
	}
	return nil
}

// ParameterDescription announces the inferred/declared OIDs of a prepared
// statement's parameters.
type ParameterDescription struct {
	ParameterOIDs []uint32
}

func (m *ParameterDescription) Decode(body []byte) error {
	r := buf.NewReader(body)
	n, err := r.ReadInt16()
	if err != nil {
		return err
	}
	m.ParameterOIDs = make([]uint32, n)
	for i := range m.ParameterOIDs {
		if m.ParameterOIDs[i], err = r.ReadUint32(); err != nil {
			return err
		}
	}
	return nil
}

// DataRow carries one row of query results. A nil element means SQL NULL.
type DataRow struct {
	Values [][]byte
}

func (m *DataRow) Decode(body []byte) error {
	r := buf.NewReader(body)
	n, err := r.ReadInt16()
	if err != nil {
		return err
	}
	m.Values = make([][]byte, n)
	for i := range m.Values {
		if m.Values[i], err = r.ReadLengthPrefixed(); err != nil {
			return err
		}
	}
	return nil
}

// CommandComplete reports the tag of a successfully completed command, e.g.
// "SELECT 3" or "INSERT 0 1".
type CommandComplete struct {
	Tag string
}

func (m *CommandComplete) Decode(body []byte) error {
	r := buf.NewReader(body)
	s, err := r.ReadCString()
	if err != nil {
		return err
	}
	m.Tag = s
	return nil
}

// ParseComplete acknowledges a successful Parse.
type ParseComplete struct{}

func (m *ParseComplete) Decode(body []byte) error { return nil }

// BindComplete acknowledges a successful Bind.
type BindComplete struct{}

func (m *BindComplete) Decode(body []byte) error { return nil }

// CloseComplete acknowledges a successful Close.
type CloseComplete struct{}

func (m *CloseComplete) Decode(body []byte) error { return nil }

// NoData indicates that a Describe on a statement or portal produces no rows.
type NoData struct{}

func (m *NoData) Decode(body []byte) error { return nil }

// EmptyQueryResponse is sent in place of CommandComplete when the query
// string was empty.
type EmptyQueryResponse struct{}

func (m *EmptyQueryResponse) Decode(body []byte) error { return nil }

// PortalSuspended is sent instead of CommandComplete when Execute's MaxRows
// limit was reached before the portal finished.
type PortalSuspended struct{}

func (m *PortalSuspended) Decode(body []byte) error { return nil }

// ReadyForQuery marks the end of processing for one query cycle.
type ReadyForQuery struct {
	TxStatus TransactionStatus
}

func (m *ReadyForQuery) Decode(body []byte) error {
	if len(body) != 1 {
		return fmt.Errorf("pgproto: ReadyForQuery: want 1 byte, got %d", len(body))
	}
	m.TxStatus = TransactionStatus(body[0])
	return nil
}

// BackendKeyData carries the process ID and secret key used to build a
// CancelRequest against this connection.
type BackendKeyData struct {
	ProcessID uint32
	SecretKey uint32
}

func (m *BackendKeyData) Decode(body []byte) error {
	r := buf.NewReader(body)
	var err error
	if m.ProcessID, err = r.ReadUint32(); err != nil {
		return err
	}
	if m.SecretKey, err = r.ReadUint32(); err != nil {
		return err
	}
	return nil
}

// ParameterStatus reports a runtime parameter's current value
// (server_version, TimeZone, client_encoding, ...), sent on startup and
// whenever the server changes one asynchronously.
type ParameterStatus struct {
	Name, Value string
}

func (m *ParameterStatus) Decode(body []byte) error {
	r := buf.NewReader(body)
	var err error
	if m.Name, err = r.ReadCString(); err != nil {
		return err
	}
	if m.Value, err = r.ReadCString(); err != nil {
		return err
	}
	return nil
}

// NotificationResponse delivers an asynchronous LISTEN/NOTIFY payload.
type NotificationResponse struct {
	ProcessID uint32
	Channel   string
	Payload   string
}

func (m *NotificationResponse) Decode(body []byte) error {
	r := buf.NewReader(body)
	var err error
	if m.ProcessID, err = r.ReadUint32(); err != nil {
		return err
	}
	if m.Channel, err = r.ReadCString(); err != nil {
		return err
	}
	if m.Payload, err = r.ReadCString(); err != nil {
		return err
	}
	return nil
}

// FieldMessage holds the parsed fields of an ErrorResponse/NoticeResponse,
// keyed by their single-byte field codes (S, V, C, M, D, H, P, p, q, W, s,
// t, c, d, n, F, L, R per the protocol).
type FieldMessage map[byte]string

func decodeFields(body []byte) (FieldMessage, error) {
	r := buf.NewReader(body)
	fields := make(FieldMessage)
	for {
		code, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if code == 0 {
			return fields, nil
		}
		val, err := r.ReadCString()
		if err != nil {
			return nil, err
		}
		fields[code] = val
	}
}

// Severity, Code, Message and the rest mirror the most commonly used
// ErrorResponse/NoticeResponse fields for convenient access.
const (
	FieldSeverity     byte = 'S'
	FieldSeverityV    byte = 'V' // non-localized
	FieldSQLState     byte = 'C'
	FieldMessageText  byte = 'M'
	FieldDetail       byte = 'D'
	FieldHint         byte = 'H'
	FieldPosition     byte = 'P'
	FieldInternalPos  byte = 'p'
	FieldInternalQry  byte = 'q'
	FieldWhere        byte = 'W'
	FieldSchemaName   byte = 's'
	FieldTableName    byte = 't'
	FieldColumnName   byte = 'c'
	FieldDataTypeName byte = 'd'
	FieldConstraint   byte = 'n'
	FieldFile         byte = 'F'
	FieldLine         byte = 'L'
	FieldRoutine      byte = 'R'
)

// ErrorResponse reports a fatal error that terminates the current command
// (and sometimes the connection).
type ErrorResponse struct {
	Fields FieldMessage
}

func (m *ErrorResponse) Decode(body []byte) error {
	f, err := decodeFields(body)
	if err != nil {
		return err
	}
	m.Fields = f
	return nil
}

func (m *ErrorResponse) Severity() string { return m.Fields[FieldSeverity] }
func (m *ErrorResponse) SQLState() string { return m.Fields[FieldSQLState] }
func (m *ErrorResponse) Message() string  { return m.Fields[FieldMessageText] }

// NoticeResponse carries a non-fatal advisory message (warnings, NOTICE,
// LOG output from DO blocks, etc).
type NoticeResponse struct {
	Fields FieldMessage
}

func (m *NoticeResponse) Decode(body []byte) error {
	f, err := decodeFields(body)
	if err != nil {
		return err
	}
	m.Fields = f
	return nil
}

func (m *NoticeResponse) Severity() string { return m.Fields[FieldSeverity] }
func (m *NoticeResponse) Message() string  { return m.Fields[FieldMessageText] }

// CopyFormat describes the overall and per-column format of a COPY stream.
type CopyFormat struct {
	OverallFormat   int8
	ColumnFormats   []int16
}

func decodeCopyFormat(body []byte) (CopyFormat, error) {
	r := buf.NewReader(body)
	var cf CopyFormat
	b, err := r.ReadByte()
	if err != nil {
		return cf, err
	}
	cf.OverallFormat = int8(b)
	n, err := r.ReadInt16()
	if err != nil {
		return cf, err
	}
	cf.ColumnFormats = make([]int16, n)
	for i := range cf.ColumnFormats {
		if cf.ColumnFormats[i], err = r.ReadInt16(); err != nil {
			return cf, err
		}
	}
	return cf, nil
}

// CopyInResponse announces that the server is ready to receive a COPY FROM
// STDIN data stream.
type CopyInResponse struct{ CopyFormat }

func (m *CopyInResponse) Decode(body []byte) error {
	cf, err := decodeCopyFormat(body)
	if err != nil {
		return err
	}
	m.CopyFormat = cf
	return nil
}

// CopyOutResponse announces that the server is about to send a COPY TO
// STDOUT data stream.
type CopyOutResponse struct{ CopyFormat }

func (m *CopyOutResponse) Decode(body []byte) error {
	cf, err := decodeCopyFormat(body)
	if err != nil {
		return err
	}
	m.CopyFormat = cf
	return nil
}

// CopyBothResponse announces a bidirectional COPY stream, used by
// streaming replication.
type CopyBothResponse struct{ CopyFormat }

func (m *CopyBothResponse) Decode(body []byte) error {
	cf, err := decodeCopyFormat(body)
	if err != nil {
		return err
	}
	m.CopyFormat = cf
	return nil
}

// BackendCopyData carries one chunk of a COPY TO STDOUT stream.
type BackendCopyData struct {
	Data []byte
}

func (m *BackendCopyData) Decode(body []byte) error {
	m.Data = append([]byte(nil), body...)
	return nil
}

// BackendCopyDone marks the successful end of a COPY TO STDOUT stream.
type BackendCopyDone struct{}

func (m *BackendCopyDone) Decode(body []byte) error { return nil }

// AuthenticationOk confirms the server has accepted the client's credentials.
type AuthenticationOk struct{}

// AuthenticationCleartextPassword requests a cleartext PasswordMessage.
type AuthenticationCleartextPassword struct{}

// AuthenticationMD5Password requests an MD5-hashed PasswordMessage, keyed by
// a 4-byte server-chosen salt.
type AuthenticationMD5Password struct {
	Salt [4]byte
}

// AuthenticationSASL lists the SASL mechanisms the server supports.
type AuthenticationSASL struct {
	Mechanisms []string
}

// AuthenticationSASLContinue carries the server's first or intermediate
// SASL challenge.
type AuthenticationSASLContinue struct {
	Data []byte
}

// AuthenticationSASLFinal carries the server's final SASL verifier.
type AuthenticationSASLFinal struct {
	Data []byte
}

// Authentication decodes the 'R' message into one of the Authentication*
// types above based on its leading sub-type code.
type Authentication struct {
	Type uint32
	Ok                   *AuthenticationOk
	CleartextPassword    *AuthenticationCleartextPassword
	MD5Password          *AuthenticationMD5Password
	SASL                 *AuthenticationSASL
	SASLContinue         *AuthenticationSASLContinue
	SASLFinal            *AuthenticationSASLFinal
}

func (m *Authentication) Decode(body []byte) error {
	r := buf.NewReader(body)
	t, err := r.ReadUint32()
	if err != nil {
		return err
	}
	m.Type = t
	switch t {
	case AuthTypeOk:
		m.Ok = &AuthenticationOk{}
	case AuthTypeCleartextPassword:
		m.CleartextPassword = &AuthenticationCleartextPassword{}
	case AuthTypeMD5Password:
		salt, err := r.ReadBytes(4)
		if err != nil {
			return err
		}
		var a AuthenticationMD5Password
		copy(a.Salt[:], salt)
		m.MD5Password = &a
	case AuthTypeSASL:
		var mechs []string
		for {
			s, err := r.ReadCString()
			if err != nil {
				return err
			}
			if s == "" {
				break
			}
			mechs = append(mechs, s)
		}
		m.SASL = &AuthenticationSASL{Mechanisms: mechs}
	case AuthTypeSASLContinue:
		m.SASLContinue = &AuthenticationSASLContinue{Data: append([]byte(nil), r.Remaining()...)}
	case AuthTypeSASLFinal:
		m.SASLFinal = &AuthenticationSASLFinal{Data: append([]byte(nil), r.Remaining()...)}
	default:
		// GSS/SSPI/SCM and other continuation variants are accepted but
		// not implemented; only cleartext, MD5, and SCRAM-SHA-256 drive a
		// response.
	}
	return nil
}

// DecodeBackend dispatches on tag to construct and decode a BackendMessage.
// No backend tag is ambiguous in the current message set, so the tag alone
// selects the message type.
func DecodeBackend(tag byte, body []byte) (BackendMessage, error) {
	var m BackendMessage
	switch tag {
	case TagAuthentication:
		m = &Authentication{}
	case TagBackendKeyData:
		m = &BackendKeyData{}
	case TagBindComplete:
		m = &BindComplete{}
	case TagCloseComplete:
		m = &CloseComplete{}
	case TagCommandComplete:
		m = &CommandComplete{}
	case TagCopyInResponse:
		m = &CopyInResponse{}
	case TagCopyOutResponse:
		m = &CopyOutResponse{}
	case TagCopyBothResponse:
		m = &CopyBothResponse{}
	case TagDataRow:
		m = &DataRow{}
	case TagEmptyQueryResponse:
		m = &EmptyQueryResponse{}
	case TagErrorResponse:
		m = &ErrorResponse{}
	case TagNoData:
		m = &NoData{}
	case TagNoticeResponse:
		m = &NoticeResponse{}
	case TagNotificationResp:
		m = &NotificationResponse{}
	case TagParameterDescription:
		m = &ParameterDescription{}
	case TagParameterStatus:
		m = &ParameterStatus{}
	case TagParseComplete:
		m = &ParseComplete{}
	case TagPortalSuspended:
		m = &PortalSuspended{}
	case TagReadyForQuery:
		m = &ReadyForQuery{}
	case TagRowDescription:
		m = &RowDescription{}
	case TagCopyData:
		m = &BackendCopyData{}
	case TagCopyDone:
		m = &BackendCopyDone{}
	default:
		return nil, fmt.Errorf("pgproto: unknown backend message tag %q (0x%02x)", tag, tag)
	}
	if err := m.Decode(body); err != nil {
		return nil, fmt.Errorf("pgproto: decoding %T: %w", m, err)
	}
	return m, nil
}
