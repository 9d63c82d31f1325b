package pgtype

import (
	"fmt"

	"github.com/flowpg/flowpg/internal/buf"
)

// Composite is the decoded representation of a row/composite-typed value:
// an ordered set of already-decoded field values, aligned with the
// Codec's Fields.
type Composite struct {
	Values []any
}

// NewCompositeCodec builds a codec for a composite type discovered via
// introspection, resolving each field's codec through resolver lazily so
// that later-registered field codecs are still honored.
func NewCompositeCodec(oid uint32, name string, fields []CompositeField, resolver *Registry) *Codec {
	return &Codec{
		OID: oid, Name: name, Kind: KindComposite, Fields: fields, PreferredFormat: Binary,
		Encode: func(f Format, v any) ([]byte, error) {
			if v == nil {
				return nil, nil
			}
			if f == Text {
				return nil, ErrUnsupportedFormat
			}
			c, ok := v.(Composite)
			if !ok {
				return nil, fmt.Errorf("pgtype: %s: want pgtype.Composite, got %T", name, v)
			}
			if len(c.Values) != len(fields) {
				return nil, fmt.Errorf("pgtype: %s: want %d fields, got %d", name, len(fields), len(c.Values))
			}
			w := buf.NewWriter(32)
			w.WriteInt32(int32(len(fields)))
			for i, field := range fields {
				fc, ok := resolver.Lookup(field.OID)
				if !ok {
					return nil, fmt.Errorf("pgtype: %s: field %q OID %d not registered", name, field.Name, field.OID)
				}
				enc, err := fc.Encode(Binary, c.Values[i])
				if err != nil {
					return nil, fmt.Errorf("pgtype: %s: field %q: %w", name, field.Name, err)
				}
				w.WriteUint32(field.OID)
				w.WriteLengthPrefixed(enc)
			}
			return w.Bytes(), nil
		},
		Decode: func(f Format, src []byte) (any, error) {
			if src == nil {
				return nil, nil
			}
			if f == Text {
				return nil, ErrUnsupportedFormat
			}
			r := buf.NewReader(src)
			n, err := r.ReadInt32()
			if err != nil {
				return nil, err
			}
			values := make([]any, n)
			for i := range values {
				fieldOID, err := r.ReadUint32()
				if err != nil {
					return nil, err
				}
				val, err := r.ReadLengthPrefixed()
				if err != nil {
					return nil, err
				}
				fc, ok := resolver.Lookup(fieldOID)
				if !ok {
					return nil, fmt.Errorf("pgtype: %s: field OID %d not registered", name, fieldOID)
				}
				v, err := fc.Decode(Binary, val)
				if err != nil {
					return nil, fmt.Errorf("pgtype: %s: field %d: %w", name, i, err)
				}
				values[i] = v
			}
			return Composite{Values: values}, nil
		},
	}
}
