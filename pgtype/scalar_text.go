package pgtype

import "fmt"

// textCodec builds a codec for the string-like types (text, varchar,
// bpchar, name, char, xml). All of them carry their value as raw bytes on
// the wire regardless of format; PostgreSQL never distinguishes binary
// from text encoding for these beyond "the bytes are the bytes".
func textCodec(oid uint32, name string) *Codec {
	return &Codec{
		OID: oid, Name: name, Kind: KindScalar, PreferredFormat: Text,
		Encode: func(f Format, v any) ([]byte, error) {
			if v == nil {
				return nil, nil
			}
			switch t := v.(type) {
			case string:
				return []byte(t), nil
			case []byte:
				return t, nil
			case fmt.Stringer:
				return []byte(t.String()), nil
			default:
				return nil, fmt.Errorf("pgtype: %s: want string, got %T", name, v)
			}
		},
		Decode: func(f Format, src []byte) (any, error) {
			if src == nil {
				return nil, nil
			}
			return string(src), nil
		},
	}
}

func byteaCodec() *Codec {
	return &Codec{
		OID: OIDBytea, Name: "bytea", Kind: KindScalar, PreferredFormat: Binary,
		Encode: func(f Format, v any) ([]byte, error) {
			if v == nil {
				return nil, nil
			}
			b, ok := v.([]byte)
			if !ok {
				return nil, fmt.Errorf("pgtype: bytea: want []byte, got %T", v)
			}
			if f == Binary {
				return b, nil
			}
			return []byte(encodeHexBytea(b)), nil
		},
		Decode: func(f Format, src []byte) (any, error) {
			if src == nil {
				return nil, nil
			}
			if f == Binary {
				return append([]byte(nil), src...), nil
			}
			return decodeHexBytea(string(src))
		},
	}
}

func encodeHexBytea(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, 2+len(b)*2)
	out[0], out[1] = '\\', 'x'
	for i, c := range b {
		out[2+i*2] = hextable[c>>4]
		out[3+i*2] = hextable[c&0xf]
	}
	return string(out)
}

func decodeHexBytea(s string) ([]byte, error) {
	if len(s) < 2 || s[0] != '\\' || s[1] != 'x' {
		return nil, fmt.Errorf("pgtype: bytea: text format must start with \\x, got %q", s)
	}
	s = s[2:]
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("pgtype: bytea: odd-length hex string")
	}
	out := make([]byte, len(s)/2)
	for i := range out {
		hi, err := hexDigit(s[i*2])
		if err != nil {
			return nil, err
		}
		lo, err := hexDigit(s[i*2+1])
		if err != nil {
			return nil, err
		}
		out[i] = hi<<4 | lo
	}
	return out, nil
}

func hexDigit(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, nil
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, nil
	}
	return 0, fmt.Errorf("pgtype: bytea: invalid hex digit %q", c)
}
