// Package pgtype implements the OID-keyed type codec registry: encoding and
// decoding of Go values to and from the wire representations PostgreSQL
// uses for its built-in and catalog-defined types, in both text and binary
// format.
package pgtype

import (
	"errors"
	"fmt"
)

// Format is the wire format code carried in Bind/RowDescription: 0 for
// text, 1 for binary.
type Format int16

const (
	Text   Format = 0
	Binary Format = 1
)

// Kind classifies a Codec's structural shape, mirroring the variant set a
// statically typed registry dispatches on instead of runtime callable
// lookup.
type Kind int

const (
	KindScalar Kind = iota
	KindArray
	KindComposite
	KindRange
	KindEnum
	KindDomain
)

// ErrUnsupportedFormat is returned by codecs that only implement one wire
// format (most commonly text-only types like the geometric types and
// money) when asked to operate in the other.
var ErrUnsupportedFormat = errors.New("pgtype: unsupported wire format for this type")

// ErrNull is a sentinel for a SQL NULL that a destination cannot represent.
// No codec in this package returns it: decode functions yield a nil value
// for NULL.
var ErrNull = errors.New("pgtype: value is NULL")

// EncodeFunc renders a Go value to the wire bytes for the given format. It
// must return (nil, nil) to encode SQL NULL.
type EncodeFunc func(format Format, value any) ([]byte, error)

// DecodeFunc parses wire bytes (nil means SQL NULL) for the given format
// into a Go value.
type DecodeFunc func(format Format, src []byte) (any, error)

// CompositeField describes one field of a Composite codec's shape,
// resolved via introspection or supplied by hand for well-known types.
type CompositeField struct {
	Name string
	OID  uint32
}

// Codec is a registered type handler. Array/Range codecs carry ElemOID so
// the registry can recursively resolve the element codec; Composite codecs
// carry Fields; Enum codecs carry Labels; Domain codecs carry BaseOID and
// delegate entirely to the base codec's Encode/Decode.
type Codec struct {
	OID      uint32
	Name     string
	Kind     Kind
	ElemOID  uint32 // Array, Range
	Fields   []CompositeField // Composite
	Labels   []string // Enum
	BaseOID  uint32 // Domain

	// PreferredFormat is used when the caller hasn't been told otherwise
	// (e.g. choosing a Bind parameter format for a value with no column
	// context yet).
	PreferredFormat Format

	Encode EncodeFunc
	Decode DecodeFunc
}

func (c *Codec) String() string {
	return fmt.Sprintf("pgtype.Codec{OID: %d, Name: %q, Kind: %v}", c.OID, c.Name, c.Kind)
}
