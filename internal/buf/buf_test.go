package buf

import (
	"bytes"
	"testing"
)

func TestWriterDeferredLength(t *testing.T) {
	w := NewWriter(16)
	off := w.BeginMessage('Q')
	w.WriteCString("select 1")
	w.EndMessage(off)

	got := w.Bytes()
	if got[0] != 'Q' {
		t.Fatalf("tag = %c, want Q", got[0])
	}
	r := NewReader(got[1:])
	length, err := r.ReadInt32()
	if err != nil {
		t.Fatal(err)
	}
	if int(length) != len(got)-1 {
		t.Fatalf("length = %d, want %d", length, len(got)-1)
	}
}

func TestWriterUntaggedMessage(t *testing.T) {
	w := NewWriter(16)
	off := w.BeginMessage(0)
	w.WriteInt32(3<<16 | 0)
	w.WriteCString("user")
	w.WriteCString("alice")
	w.WriteByte(0)
	w.EndMessage(off)

	r := NewReader(w.Bytes())
	length, _ := r.ReadInt32()
	if int(length) != w.Len() {
		t.Fatalf("length = %d, want %d", length, w.Len())
	}
}

func TestLengthPrefixedRoundTrip(t *testing.T) {
	cases := [][]byte{nil, {}, []byte("hello"), bytes.Repeat([]byte{0xAB}, 300)}
	for _, c := range cases {
		w := NewWriter(8)
		w.WriteLengthPrefixed(c)
		r := NewReader(w.Bytes())
		got, err := r.ReadLengthPrefixed()
		if err != nil {
			t.Fatal(err)
		}
		if c == nil {
			if got != nil {
				t.Fatalf("expected nil (NULL), got %v", got)
			}
			continue
		}
		if !bytes.Equal(got, c) {
			t.Fatalf("got %v, want %v", got, c)
		}
	}
}

func TestReaderShortRead(t *testing.T) {
	r := NewReader([]byte{0, 0})
	if _, err := r.ReadInt32(); err == nil {
		t.Fatal("expected ErrShortRead")
	}
}

func TestReaderIntegerOverflow(t *testing.T) {
	w := NewWriter(4)
	w.WriteUint32(MaxMessageLength + 1)
	r := NewReader(w.Bytes())
	if _, err := r.ReadLengthPrefixed(); err == nil {
		t.Fatal("expected ErrIntegerOverflow")
	}
}

func TestCStringRoundTrip(t *testing.T) {
	w := NewWriter(8)
	w.WriteCString("hello")
	w.WriteCString("world")
	r := NewReader(w.Bytes())
	s1, err := r.ReadCString()
	if err != nil || s1 != "hello" {
		t.Fatalf("s1 = %q, err = %v", s1, err)
	}
	s2, err := r.ReadCString()
	if err != nil || s2 != "world" {
		t.Fatalf("s2 = %q, err = %v", s2, err)
	}
}
