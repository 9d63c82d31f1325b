package pgtype

import "fmt"

// Point is a single geometric coordinate pair.
type Point struct{ X, Y float64 }

func (p Point) String() string { return fmt.Sprintf("(%v,%v)", p.X, p.Y) }

// The geometric types (point, line, lseg, box, path, polygon, circle) are
// registered text-only: PostgreSQL's binary encodings for these are
// possible but rarely exercised outside GIS-adjacent workloads, and every
// value still round-trips correctly through the text format that `psql`
// and every other client also uses by default. A caller needing binary
// geometric transfer registers a custom Codec for the OID.
func registerGeometric(r *Registry) {
	r.Register(textOnlyCodec(OIDPoint, "point"))
	r.Register(textOnlyCodec(OIDLine, "line"))
	r.Register(textOnlyCodec(OIDLseg, "lseg"))
	r.Register(textOnlyCodec(OIDBox, "box"))
	r.Register(textOnlyCodec(OIDPath, "path"))
	r.Register(textOnlyCodec(OIDPolygon, "polygon"))
	r.Register(textOnlyCodec(OIDCircle, "circle"))
}

func textOnlyCodec(oid uint32, name string) *Codec {
	return &Codec{
		OID: oid, Name: name, Kind: KindScalar, PreferredFormat: Text,
		Encode: func(f Format, v any) ([]byte, error) {
			if v == nil {
				return nil, nil
			}
			if f == Binary {
				return nil, ErrUnsupportedFormat
			}
			switch t := v.(type) {
			case string:
				return []byte(t), nil
			case fmt.Stringer:
				return []byte(t.String()), nil
			default:
				return nil, fmt.Errorf("pgtype: %s: want string or fmt.Stringer, got %T", name, v)
			}
		},
		Decode: func(f Format, src []byte) (any, error) {
			if src == nil {
				return nil, nil
			}
			if f == Binary {
				return nil, ErrUnsupportedFormat
			}
			return string(src), nil
		},
	}
}
