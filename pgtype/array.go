package pgtype

import (
	"fmt"
	"strings"

	"github.com/flowpg/flowpg/internal/buf"
)

// ArrayDimension is one dimension of a (possibly multi-dimensional)
// PostgreSQL array.
type ArrayDimension struct {
	Length     int32
	LowerBound int32
}

// Array is the generic decoded representation of any array value: a
// rectangular set of dimensions plus a row-major flattening of the
// elements, each already decoded by the element codec. A nil entry in
// Elements represents SQL NULL at that position.
type Array struct {
	Dims     []ArrayDimension
	ElemOID  uint32
	Elements []any
}

// arrayCodec builds the codec for an array OID whose elements have OID
// elemOID, resolving the element codec through resolver at call time so
// that user overrides registered after registerArrays runs are still
// picked up (the registry is consulted lazily, not captured by value).
// NewArrayCodec builds the codec for an array OID whose elements have OID
// elemOID, exported for introspect to synthesize codecs for array types
// discovered via pg_type.typelem at runtime.
func NewArrayCodec(oid uint32, name string, elemOID uint32, resolver *Registry) *Codec {
	return arrayCodec(oid, name, elemOID, resolver)
}

func arrayCodec(oid uint32, name string, elemOID uint32, resolver *Registry) *Codec {
	return &Codec{
		OID: oid, Name: name, Kind: KindArray, ElemOID: elemOID, PreferredFormat: Binary,
		Encode: func(f Format, v any) ([]byte, error) {
			if v == nil {
				return nil, nil
			}
			arr, ok := v.(Array)
			if !ok {
				return nil, fmt.Errorf("pgtype: %s: want pgtype.Array, got %T", name, v)
			}
			elemCodec, ok := resolver.Lookup(elemOID)
			if !ok {
				return nil, fmt.Errorf("pgtype: %s: element OID %d not registered", name, elemOID)
			}
			if f == Text {
				return encodeArrayText(arr, elemCodec)
			}
			return encodeArrayBinary(arr, elemCodec)
		},
		Decode: func(f Format, src []byte) (any, error) {
			if src == nil {
				return nil, nil
			}
			elemCodec, ok := resolver.Lookup(elemOID)
			if !ok {
				return nil, fmt.Errorf("pgtype: %s: element OID %d not registered", name, elemOID)
			}
			if f == Text {
				return decodeArrayText(src, elemCodec, elemOID)
			}
			return decodeArrayBinary(src, elemCodec)
		},
	}
}

func encodeArrayBinary(arr Array, elemCodec *Codec) ([]byte, error) {
	w := buf.NewWriter(32)
	hasNulls := int32(0)
	for _, e := range arr.Elements {
		if e == nil {
			hasNulls = 1
			break
		}
	}
	w.WriteInt32(int32(len(arr.Dims)))
	w.WriteInt32(hasNulls)
	w.WriteUint32(arr.ElemOID)
	for _, d := range arr.Dims {
		w.WriteInt32(d.Length)
		w.WriteInt32(d.LowerBound)
	}
	for _, e := range arr.Elements {
		enc, err := elemCodec.Encode(Binary, e)
		if err != nil {
			return nil, fmt.Errorf("pgtype: array element: %w", err)
		}
		w.WriteLengthPrefixed(enc)
	}
	return w.Bytes(), nil
}

func decodeArrayBinary(src []byte, elemCodec *Codec) (Array, error) {
	r := buf.NewReader(src)
	ndim, err := r.ReadInt32()
	if err != nil {
		return Array{}, err
	}
	if _, err := r.ReadInt32(); err != nil { // has_nulls, informational only
		return Array{}, err
	}
	elemOID, err := r.ReadUint32()
	if err != nil {
		return Array{}, err
	}
	dims := make([]ArrayDimension, ndim)
	total := 1
	for i := range dims {
		length, err := r.ReadInt32()
		if err != nil {
			return Array{}, err
		}
		lb, err := r.ReadInt32()
		if err != nil {
			return Array{}, err
		}
		dims[i] = ArrayDimension{Length: length, LowerBound: lb}
		total *= int(length)
	}
	elements := make([]any, total)
	for i := 0; i < total; i++ {
		b, err := r.ReadLengthPrefixed()
		if err != nil {
			return Array{}, err
		}
		v, err := elemCodec.Decode(Binary, b)
		if err != nil {
			return Array{}, fmt.Errorf("pgtype: array element %d: %w", i, err)
		}
		elements[i] = v
	}
	return Array{Dims: dims, ElemOID: elemOID, Elements: elements}, nil
}

// encodeArrayText supports the one-dimensional case, quoting elements that
// contain separators, quotes, braces, backslashes or spaces via
// quoteArrayElement; multi-dimensional arrays return an error asking the
// caller to use binary format.
func encodeArrayText(arr Array, elemCodec *Codec) ([]byte, error) {
	if len(arr.Dims) > 1 {
		return nil, fmt.Errorf("pgtype: array: text format not implemented for %d-dimensional arrays, use binary", len(arr.Dims))
	}
	parts := make([]string, len(arr.Elements))
	for i, e := range arr.Elements {
		if e == nil {
			parts[i] = "NULL"
			continue
		}
		enc, err := elemCodec.Encode(Text, e)
		if err != nil {
			return nil, err
		}
		parts[i] = quoteArrayElement(string(enc))
	}
	return []byte("{" + strings.Join(parts, ",") + "}"), nil
}

func quoteArrayElement(s string) string {
	if s == "" {
		return `""`
	}
	needsQuote := false
	for _, c := range s {
		if c == ',' || c == '"' || c == '{' || c == '}' || c == '\\' || c == ' ' {
			needsQuote = true
			break
		}
	}
	if !needsQuote {
		return s
	}
	var b strings.Builder
	b.WriteByte('"')
	for _, c := range s {
		if c == '"' || c == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	b.WriteByte('"')
	return b.String()
}

func decodeArrayText(src []byte, elemCodec *Codec, elemOID uint32) (Array, error) {
	s := string(src)
	if len(s) < 2 || s[0] != '{' || s[len(s)-1] != '}' {
		return Array{}, fmt.Errorf("pgtype: array: malformed text literal %q", s)
	}
	inner := s[1 : len(s)-1]
	fields, err := splitArrayText(inner)
	if err != nil {
		return Array{}, err
	}
	elements := make([]any, len(fields))
	for i, field := range fields {
		if field == "NULL" {
			elements[i] = nil
			continue
		}
		v, err := elemCodec.Decode(Text, []byte(field))
		if err != nil {
			return Array{}, fmt.Errorf("pgtype: array element %d: %w", i, err)
		}
		elements[i] = v
	}
	return Array{
		Dims:     []ArrayDimension{{Length: int32(len(elements)), LowerBound: 1}},
		ElemOID:  elemOID,
		Elements: elements,
	}, nil
}

func splitArrayText(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var fields []string
	var cur strings.Builder
	inQuotes := false
	escaped := false
	for _, c := range s {
		switch {
		case escaped:
			cur.WriteRune(c)
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			inQuotes = !inQuotes
		case c == ',' && !inQuotes:
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(c)
		}
	}
	if escaped || inQuotes {
		return nil, fmt.Errorf("pgtype: array: unterminated quoted element in %q", s)
	}
	fields = append(fields, cur.String())
	return fields, nil
}

func registerArrays(r *Registry) {
	r.Register(arrayCodec(OIDBoolArray, "_bool", OIDBool, r))
	r.Register(arrayCodec(OIDInt2Array, "_int2", OIDInt2, r))
	r.Register(arrayCodec(OIDInt4Array, "_int4", OIDInt4, r))
	r.Register(arrayCodec(OIDInt8Array, "_int8", OIDInt8, r))
	r.Register(arrayCodec(OIDFloat4Array, "_float4", OIDFloat4, r))
	r.Register(arrayCodec(OIDFloat8Array, "_float8", OIDFloat8, r))
	r.Register(arrayCodec(OIDTextArray, "_text", OIDText, r))
	r.Register(arrayCodec(OIDVarcharArray, "_varchar", OIDVarchar, r))
	r.Register(arrayCodec(OIDUUIDArray, "_uuid", OIDUUID, r))
	r.Register(arrayCodec(OIDNumericArray, "_numeric", OIDNumeric, r))
	r.Register(arrayCodec(OIDJSONArray, "_json", OIDJSON, r))
	r.Register(arrayCodec(OIDJSONBArray, "_jsonb", OIDJSONB, r))
	r.Register(arrayCodec(OIDTimestampArray, "_timestamp", OIDTimestamp, r))
	r.Register(arrayCodec(OIDTimestamptzArray, "_timestamptz", OIDTimestamptz, r))
}
