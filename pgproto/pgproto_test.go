package pgproto

import (
	"bytes"
	"io"
	"testing"

	"github.com/flowpg/flowpg/internal/buf"
)

// loopback is an io.ReadWriter splitting writes and reads into separate
// buffers, standing in for a duplex connection in tests.
type loopback struct {
	in  *bytes.Buffer
	out *bytes.Buffer
}

func (l *loopback) Read(p []byte) (int, error)  { return l.in.Read(p) }
func (l *loopback) Write(p []byte) (int, error) { return l.out.Write(p) }

func TestFrontendSendReceiveRoundTrip(t *testing.T) {
	wire := &bytes.Buffer{}
	// Encode a ReadyForQuery directly to simulate a backend reply.
	w := buf.NewWriter(16)
	off := w.BeginMessage(TagReadyForQuery)
	w.WriteByte(byte(TxIdle))
	w.EndMessage(off)
	wire.Write(w.Bytes())

	fe := NewFrontend(&loopback{in: wire, out: &bytes.Buffer{}}, 0)
	msg, err := fe.Receive()
	if err != nil {
		t.Fatal(err)
	}
	rfq, ok := msg.(*ReadyForQuery)
	if !ok {
		t.Fatalf("got %T, want *ReadyForQuery", msg)
	}
	if rfq.TxStatus != TxIdle {
		t.Fatalf("TxStatus = %c, want I", rfq.TxStatus)
	}
}

func TestFrontendPipelining(t *testing.T) {
	out := &bytes.Buffer{}
	fe := NewFrontend(&loopback{in: &bytes.Buffer{}, out: out}, 0)

	fe.Send(&Parse{StatementName: "s1", SQL: "select $1", ParameterOIDs: []uint32{23}})
	fe.Send(&Bind{StatementName: "s1", Parameters: [][]byte{[]byte("1")}})
	fe.Send(&Describe{Target: DescribePortal})
	fe.Send(&Execute{})
	fe.Send(&Sync{})
	if err := fe.Flush(); err != nil {
		t.Fatal(err)
	}

	r := buf.NewReader(out.Bytes())
	wantTags := []byte{TagParse, TagBind, TagDescribe, TagExecute, TagSync}
	for _, want := range wantTags {
		tag, err := r.ReadByte()
		if err != nil {
			t.Fatal(err)
		}
		if tag != want {
			t.Fatalf("tag = %c, want %c", tag, want)
		}
		length, err := r.ReadInt32()
		if err != nil {
			t.Fatal(err)
		}
		if _, err := r.ReadBytes(int(length) - 4); err != nil {
			t.Fatal(err)
		}
	}
	if r.Len() != 0 {
		t.Fatalf("trailing bytes: %d", r.Len())
	}
}

func TestDecodeBackendErrorResponse(t *testing.T) {
	w := buf.NewWriter(32)
	w.WriteByte(FieldSeverity)
	w.WriteCString("ERROR")
	w.WriteByte(FieldSQLState)
	w.WriteCString("42601")
	w.WriteByte(FieldMessageText)
	w.WriteCString("syntax error")
	w.WriteByte(0)

	msg, err := DecodeBackend(TagErrorResponse, w.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	er := msg.(*ErrorResponse)
	if er.SQLState() != "42601" || er.Message() != "syntax error" {
		t.Fatalf("got %+v", er.Fields)
	}
}

func TestDecodeBackendUnknownTag(t *testing.T) {
	if _, err := DecodeBackend(0xFF, nil); err == nil {
		t.Fatal("expected error for unknown tag")
	}
}

func TestRowDescriptionAndDataRowRoundTrip(t *testing.T) {
	w := buf.NewWriter(64)
	w.WriteInt16(2)
	w.WriteCString("id")
	w.WriteUint32(0)
	w.WriteInt16(0)
	w.WriteUint32(23)
	w.WriteInt16(4)
	w.WriteInt32(-1)
	w.WriteInt16(FormatText)
	w.WriteCString("name")
	w.WriteUint32(0)
	w.WriteInt16(0)
	w.WriteUint32(25)
	w.WriteInt16(-1)
	w.WriteInt32(-1)
	w.WriteInt16(FormatText)

	msg, err := DecodeBackend(TagRowDescription, w.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	rd := msg.(*RowDescription)
	if len(rd.Fields) != 2 || rd.Fields[0].Name != "id" || rd.Fields[1].Name != "name" {
		t.Fatalf("got %+v", rd.Fields)
	}

	dw := buf.NewWriter(32)
	dw.WriteInt16(2)
	dw.WriteLengthPrefixed([]byte("1"))
	dw.WriteLengthPrefixed(nil)

	dmsg, err := DecodeBackend(TagDataRow, dw.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	dr := dmsg.(*DataRow)
	if string(dr.Values[0]) != "1" || dr.Values[1] != nil {
		t.Fatalf("got %v", dr.Values)
	}
}

func TestAuthenticationMD5(t *testing.T) {
	w := buf.NewWriter(16)
	w.WriteUint32(AuthTypeMD5Password)
	w.WriteBytes([]byte{1, 2, 3, 4})

	msg, err := DecodeBackend(TagAuthentication, w.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	auth := msg.(*Authentication)
	if auth.MD5Password == nil {
		t.Fatal("expected MD5Password set")
	}
	if auth.MD5Password.Salt != [4]byte{1, 2, 3, 4} {
		t.Fatalf("salt = %v", auth.MD5Password.Salt)
	}
}

func TestAuthenticationSASLMechanisms(t *testing.T) {
	w := buf.NewWriter(32)
	w.WriteUint32(AuthTypeSASL)
	w.WriteCString("SCRAM-SHA-256")
	w.WriteCString("SCRAM-SHA-256-PLUS")
	w.WriteByte(0)

	msg, err := DecodeBackend(TagAuthentication, w.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	auth := msg.(*Authentication)
	if len(auth.SASL.Mechanisms) != 2 || auth.SASL.Mechanisms[0] != "SCRAM-SHA-256" {
		t.Fatalf("got %v", auth.SASL.Mechanisms)
	}
}

func TestReceiveRawThenCopyData(t *testing.T) {
	w := buf.NewWriter(32)
	off := w.BeginMessage(TagCopyData)
	w.WriteBytes([]byte("1,2,3\n"))
	w.EndMessage(off)

	fe := NewFrontend(&loopback{in: bytes.NewBuffer(w.Bytes()), out: &bytes.Buffer{}}, 0)
	tag, body, err := fe.ReceiveRaw()
	if err != nil {
		t.Fatal(err)
	}
	if tag != TagCopyData || string(body) != "1,2,3\n" {
		t.Fatalf("tag=%c body=%q", tag, body)
	}
}

var _ io.ReadWriter = (*loopback)(nil)
