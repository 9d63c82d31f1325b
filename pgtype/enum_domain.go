package pgtype

import "fmt"

// NewEnumCodec builds a codec for an enum type, transmitted as its label
// text on the wire in both formats (PostgreSQL enums have no binary
// encoding distinct from text).
func NewEnumCodec(oid uint32, name string, labels []string) *Codec {
	valid := make(map[string]bool, len(labels))
	for _, l := range labels {
		valid[l] = true
	}
	return &Codec{
		OID: oid, Name: name, Kind: KindEnum, Labels: labels, PreferredFormat: Text,
		Encode: func(f Format, v any) ([]byte, error) {
			if v == nil {
				return nil, nil
			}
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("pgtype: %s: want string, got %T", name, v)
			}
			if !valid[s] {
				return nil, fmt.Errorf("pgtype: %s: %q is not a valid label (%v)", name, s, labels)
			}
			return []byte(s), nil
		},
		Decode: func(f Format, src []byte) (any, error) {
			if src == nil {
				return nil, nil
			}
			return string(src), nil
		},
	}
}

// NewDomainCodec builds a codec for a domain type, which is transparent on
// the wire: it delegates entirely to the base type's codec, resolved
// lazily through resolver so a domain registered before its base type
// (or whose base is itself introspected later) still works.
func NewDomainCodec(oid uint32, name string, baseOID uint32, resolver *Registry) *Codec {
	return &Codec{
		OID: oid, Name: name, Kind: KindDomain, BaseOID: baseOID,
		Encode: func(f Format, v any) ([]byte, error) {
			base, ok := resolver.Lookup(baseOID)
			if !ok {
				return nil, fmt.Errorf("pgtype: domain %s: base OID %d not registered", name, baseOID)
			}
			return base.Encode(f, v)
		},
		Decode: func(f Format, src []byte) (any, error) {
			base, ok := resolver.Lookup(baseOID)
			if !ok {
				return nil, fmt.Errorf("pgtype: domain %s: base OID %d not registered", name, baseOID)
			}
			return base.Decode(f, src)
		},
	}
}
