// Package buf implements the low-level byte codec shared by the wire
// protocol engine: big-endian integers, length-prefixed and
// null-terminated strings, and message framing with deferred length
// patching.
package buf

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// MaxMessageLength bounds the length field accepted by Reader before it
// refuses to proceed, guarding against a corrupt or hostile length prefix
// asking for an implausible allocation.
const MaxMessageLength = 2*1024*1024*1024 - 1 // 2 GiB - 1

// ErrShortRead is returned when a reader runs out of bytes mid-message.
var ErrShortRead = errors.New("buf: short read")

// ErrIntegerOverflow is returned when a length prefix exceeds MaxMessageLength.
var ErrIntegerOverflow = errors.New("buf: implausible length prefix")

// Writer is an append-only byte buffer with big-endian integer helpers and
// support for deferred length patching: reserve space for a length field,
// write the payload, then back-patch the length once it is known. Writers
// are reused across messages via Reset to avoid per-message allocation.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer with the given initial capacity.
func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

// Reset empties the buffer while retaining its backing array.
func (w *Writer) Reset() { w.buf = w.buf[:0] }

// Bytes returns the accumulated buffer.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// WriteByte appends a single byte.
func (w *Writer) WriteByte(b byte) { w.buf = append(w.buf, b) }

// WriteBytes appends raw bytes verbatim.
func (w *Writer) WriteBytes(b []byte) { w.buf = append(w.buf, b...) }

// WriteInt16 appends a big-endian int16.
func (w *Writer) WriteInt16(v int16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(v))
}

// WriteInt32 appends a big-endian int32.
func (w *Writer) WriteInt32(v int32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v))
}

// WriteUint32 appends a big-endian uint32.
func (w *Writer) WriteUint32(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

// WriteInt64 appends a big-endian int64.
func (w *Writer) WriteInt64(v int64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, uint64(v))
}

// WriteCString appends a null-terminated string.
func (w *Writer) WriteCString(s string) {
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
}

// WriteLengthPrefixed appends a 4-byte signed length (-1 for nil) followed
// by the bytes. A nil slice encodes as SQL NULL (length -1); a non-nil
// empty slice encodes as a zero-length, non-NULL value.
func (w *Writer) WriteLengthPrefixed(b []byte) {
	if b == nil {
		w.WriteInt32(-1)
		return
	}
	w.WriteInt32(int32(len(b)))
	w.buf = append(w.buf, b...)
}

// ReserveLength appends 4 placeholder bytes for a length field that will be
// back-patched later, returning the offset to pass to PatchLength.
func (w *Writer) ReserveLength() int {
	off := len(w.buf)
	w.buf = append(w.buf, 0, 0, 0, 0)
	return off
}

// PatchLength writes the big-endian length of everything written since off
// (inclusive of the 4-byte length field itself, per the wire protocol's
// "length includes itself" convention) back into the reserved slot.
func (w *Writer) PatchLength(off int) {
	n := uint32(len(w.buf) - off)
	binary.BigEndian.PutUint32(w.buf[off:off+4], n)
}

// BeginMessage writes a 1-byte tag followed by a reserved length field and
// returns the offset for the later PatchLength call. Pass tag 0 for
// untagged messages (e.g. StartupMessage, CancelRequest, SSLRequest) which
// have no leading type byte.
func (w *Writer) BeginMessage(tag byte) int {
	if tag != 0 {
		w.WriteByte(tag)
	}
	return w.ReserveLength()
}

// EndMessage back-patches the length reserved by BeginMessage.
func (w *Writer) EndMessage(off int) {
	w.PatchLength(off)
}

// Reader is a position-advancing cursor over a byte slice.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps b for sequential reading.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Reset rebinds the reader to a new slice at position 0.
func (r *Reader) Reset(b []byte) {
	r.buf = b
	r.pos = 0
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int { return len(r.buf) - r.pos }

// Remaining returns the unread tail of the buffer without advancing.
func (r *Reader) Remaining() []byte { return r.buf[r.pos:] }

func (r *Reader) need(n int) error {
	if r.Len() < n {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrShortRead, n, r.Len())
	}
	return nil
}

// ReadByte consumes one byte.
func (r *Reader) ReadByte() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

// ReadBytes consumes and returns exactly n raw bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrIntegerOverflow, n)
	}
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadInt16 consumes a big-endian int16.
func (r *Reader) ReadInt16() (int16, error) {
	b, err := r.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(b)), nil
}

// ReadInt32 consumes a big-endian int32.
func (r *Reader) ReadInt32() (int32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

// ReadUint32 consumes a big-endian uint32.
func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// ReadInt64 consumes a big-endian int64.
func (r *Reader) ReadInt64() (int64, error) {
	b, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

// ReadCString consumes a null-terminated string, not including the terminator.
func (r *Reader) ReadCString() (string, error) {
	idx := -1
	for i := r.pos; i < len(r.buf); i++ {
		if r.buf[i] == 0 {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", fmt.Errorf("%w: unterminated C string", ErrShortRead)
	}
	s := string(r.buf[r.pos:idx])
	r.pos = idx + 1
	return s, nil
}

// ReadLengthPrefixed reads a 4-byte signed length followed by that many
// bytes. A length of -1 yields (nil, nil), representing SQL NULL.
func (r *Reader) ReadLengthPrefixed() ([]byte, error) {
	n, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	if n == -1 {
		return nil, nil
	}
	if n < -1 || int64(n) > MaxMessageLength {
		return nil, fmt.Errorf("%w: length %d", ErrIntegerOverflow, n)
	}
	return r.ReadBytes(int(n))
}
