package pgtype

import (
	"encoding/json"
	"fmt"
)

// JSONMarshal and JSONUnmarshal default to encoding/json and are
// package-level variables, so callers needing a different JSON library (or
// custom tag conventions) can swap them out process-wide. The json/jsonb
// codecs call JSONMarshal to encode values that are not already JSON text;
// they never call JSONUnmarshal, since they decode to the raw JSON text.
var (
	JSONMarshal   = json.Marshal
	JSONUnmarshal = json.Unmarshal
)

// jsonCodec treats json/jsonb as text by default (per §4.2); values that
// are already string or []byte pass through verbatim (assumed to already
// be valid JSON text), anything else is marshaled via JSONMarshal. Decode
// always yields the raw JSON text as a string; callers wanting a decoded
// Go value call JSONUnmarshal themselves, or register a domain-specific
// codec that does so.
func jsonCodec(oid uint32, name string) *Codec {
	isJSONB := oid == OIDJSONB

	marshalJSONText := func(v any) ([]byte, error) {
		switch t := v.(type) {
		case string:
			return []byte(t), nil
		case []byte:
			return t, nil
		case json.RawMessage:
			return t, nil
		default:
			b, err := JSONMarshal(v)
			if err != nil {
				return nil, fmt.Errorf("pgtype: %s: marshal: %w", name, err)
			}
			return b, nil
		}
	}

	return &Codec{
		OID: oid, Name: name, Kind: KindScalar, PreferredFormat: Text,
		Encode: func(f Format, v any) ([]byte, error) {
			if v == nil {
				return nil, nil
			}
			text, err := marshalJSONText(v)
			if err != nil {
				return nil, err
			}
			if f == Binary && isJSONB {
				// jsonb's binary format is a single version byte (always 1)
				// followed by the JSON text itself.
				out := make([]byte, 1+len(text))
				out[0] = 1
				copy(out[1:], text)
				return out, nil
			}
			return text, nil
		},
		Decode: func(f Format, src []byte) (any, error) {
			if src == nil {
				return nil, nil
			}
			if f == Binary && isJSONB {
				if len(src) < 1 {
					return nil, fmt.Errorf("pgtype: %s: empty binary payload", name)
				}
				if src[0] != 1 {
					return nil, fmt.Errorf("pgtype: %s: unsupported jsonb version byte %d", name, src[0])
				}
				return string(src[1:]), nil
			}
			return string(src), nil
		},
	}
}
