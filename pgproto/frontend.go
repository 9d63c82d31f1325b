package pgproto

import (
	"bufio"
	"fmt"
	"io"

	"github.com/flowpg/flowpg/internal/buf"
)

// Frontend drives the client side of the wire protocol over an arbitrary
// io.ReadWriter (typically a net.Conn, possibly wrapped in tls.Conn). It is
// not safe for concurrent use; callers serialize access the way a single
// PostgreSQL connection only ever has one request in flight at a time,
// though several requests may be pipelined before a Sync.
type Frontend struct {
	rw  io.ReadWriter
	br  *bufio.Reader
	out *buf.Writer

	// headerBuf avoids an allocation per Receive call.
	headerBuf [5]byte
}

// NewFrontend wraps rw. readBufSize sizes the internal read buffer; 0 picks
// bufio's default.
func NewFrontend(rw io.ReadWriter, readBufSize int) *Frontend {
	var br *bufio.Reader
	if readBufSize > 0 {
		br = bufio.NewReaderSize(rw, readBufSize)
	} else {
		br = bufio.NewReader(rw)
	}
	return &Frontend{
		rw:  rw,
		br:  br,
		out: buf.NewWriter(4096),
	}
}

// Send encodes msg into the internal output buffer without writing it to
// the wire. Call Flush to actually send buffered messages;
// batching Parse/Bind/Describe/Execute before a Sync lets a caller pipeline
// a whole sequence as one write.
func (f *Frontend) Send(msg FrontendMessage) {
	msg.Encode(f.out)
}

// Flush writes everything buffered by Send to the underlying writer and
// resets the buffer.
func (f *Frontend) Flush() error {
	if f.out.Len() == 0 {
		return nil
	}
	_, err := f.rw.Write(f.out.Bytes())
	f.out.Reset()
	if err != nil {
		return fmt.Errorf("pgproto: write: %w", err)
	}
	return nil
}

// SendNow encodes and immediately flushes a single message.
func (f *Frontend) SendNow(msg FrontendMessage) error {
	f.Send(msg)
	return f.Flush()
}

// Receive blocks until one complete backend message has been read and
// decoded. It distinguishes the startup phase implicitly: before the
// caller's first ReadyForQuery, AuthenticationOk etc. are simply decoded as
// ordinary BackendMessage values like any other.
func (f *Frontend) Receive() (BackendMessage, error) {
	tag, body, err := f.ReceiveRaw()
	if err != nil {
		return nil, err
	}
	return DecodeBackend(tag, body)
}

// ReceiveRaw reads one message's tag and payload without decoding it,
// letting callers in COPY mode or custom dispatch paths avoid allocating a
// typed message when they only need the raw bytes (e.g. CopyData).
func (f *Frontend) ReceiveRaw() (tag byte, body []byte, err error) {
	if _, err = io.ReadFull(f.br, f.headerBuf[:]); err != nil {
		return 0, nil, fmt.Errorf("pgproto: reading message header: %w", err)
	}
	tag = f.headerBuf[0]
	length := int32(f.headerBuf[1])<<24 | int32(f.headerBuf[2])<<16 | int32(f.headerBuf[3])<<8 | int32(f.headerBuf[4])
	if length < 4 {
		return 0, nil, fmt.Errorf("pgproto: invalid message length %d for tag %q", length, tag)
	}
	if int64(length) > buf.MaxMessageLength {
		return 0, nil, fmt.Errorf("pgproto: %w: length %d for tag %q", buf.ErrIntegerOverflow, length, tag)
	}
	bodyLen := int(length) - 4
	body = make([]byte, bodyLen)
	if bodyLen > 0 {
		if _, err = io.ReadFull(f.br, body); err != nil {
			return 0, nil, fmt.Errorf("pgproto: reading message body (tag %q, %d bytes): %w", tag, bodyLen, err)
		}
	}
	return tag, body, nil
}

// ReceiveUntagged reads a length-prefixed message with no leading tag byte,
// used only for the single reply the server may send in place of a
// StartupMessage's normal response: none in the current protocol version,
// but SSL/GSS negotiation replies a bare single byte ('S' or 'N'), handled
// by ReceiveSSLResponse instead. Reserved for forward compatibility.
func (f *Frontend) ReceiveUntagged() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(f.br, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("pgproto: reading untagged header: %w", err)
	}
	length := int32(lenBuf[0])<<24 | int32(lenBuf[1])<<16 | int32(lenBuf[2])<<8 | int32(lenBuf[3])
	if length < 4 {
		return nil, fmt.Errorf("pgproto: invalid untagged message length %d", length)
	}
	body := make([]byte, length-4)
	if len(body) > 0 {
		if _, err := io.ReadFull(f.br, body); err != nil {
			return nil, err
		}
	}
	return body, nil
}

// ReceiveSSLResponse reads the single-byte reply to an SSLRequest: 'S' to
// proceed with TLS, 'N' to continue in cleartext, or any other byte (older
// servers close the connection outright instead, which surfaces as an EOF
// from the caller's io.ReadFull before this is reached).
func (f *Frontend) ReceiveSSLResponse() (byte, error) {
	b, err := f.br.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("pgproto: reading SSL negotiation response: %w", err)
	}
	return b, nil
}

// SetReadWriter swaps the underlying transport, used after a successful TLS
// upgrade to continue reading/writing through the tls.Conn instead of the
// raw net.Conn. Any buffered-but-unread bytes in the old reader are
// discarded, which is safe here because the SSL negotiation response is
// exactly one byte and is always consumed via ReceiveSSLResponse first.
func (f *Frontend) SetReadWriter(rw io.ReadWriter) {
	f.rw = rw
	f.br = bufio.NewReader(rw)
}
