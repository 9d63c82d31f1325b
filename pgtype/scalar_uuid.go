package pgtype

import (
	"fmt"

	"github.com/google/uuid"
)

func uuidCodec() *Codec {
	return &Codec{
		OID: OIDUUID, Name: "uuid", Kind: KindScalar, PreferredFormat: Binary,
		Encode: func(f Format, v any) ([]byte, error) {
			if v == nil {
				return nil, nil
			}
			var u uuid.UUID
			switch t := v.(type) {
			case uuid.UUID:
				u = t
			case string:
				var err error
				u, err = uuid.Parse(t)
				if err != nil {
					return nil, fmt.Errorf("pgtype: uuid: %w", err)
				}
			default:
				return nil, fmt.Errorf("pgtype: uuid: want uuid.UUID, got %T", v)
			}
			if f == Text {
				return []byte(u.String()), nil
			}
			b := u[:]
			return append([]byte(nil), b...), nil
		},
		Decode: func(f Format, src []byte) (any, error) {
			if src == nil {
				return nil, nil
			}
			if f == Text {
				return uuid.Parse(string(src))
			}
			if len(src) != 16 {
				return nil, fmt.Errorf("pgtype: uuid: want 16 bytes, got %d", len(src))
			}
			var u uuid.UUID
			copy(u[:], src)
			return u, nil
		},
	}
}
