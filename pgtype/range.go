package pgtype

import (
	"fmt"

	"github.com/flowpg/flowpg/internal/buf"
)

// Range flag bits, per §4.2.
const (
	rangeFlagEmpty        = 0x01
	rangeFlagLowerInc     = 0x02
	rangeFlagUpperInc     = 0x04
	rangeFlagLowerInf     = 0x08
	rangeFlagUpperInf     = 0x10
)

// Range is the decoded representation of a range-typed value. Lower/Upper
// are nil when Infinite on that side; Empty overrides everything else.
type Range struct {
	Empty                    bool
	Lower, Upper             any
	LowerInclusive           bool
	UpperInclusive           bool
	LowerInfinite            bool
	UpperInfinite            bool
}

// NewRangeCodec builds a codec for a range type over elements of elemOID,
// resolved lazily through resolver.
func NewRangeCodec(oid uint32, name string, elemOID uint32, resolver *Registry) *Codec {
	return &Codec{
		OID: oid, Name: name, Kind: KindRange, ElemOID: elemOID, PreferredFormat: Binary,
		Encode: func(f Format, v any) ([]byte, error) {
			if v == nil {
				return nil, nil
			}
			if f == Text {
				return nil, ErrUnsupportedFormat
			}
			rg, ok := v.(Range)
			if !ok {
				return nil, fmt.Errorf("pgtype: %s: want pgtype.Range, got %T", name, v)
			}
			var flags byte
			if rg.Empty {
				flags |= rangeFlagEmpty
			}
			if rg.LowerInclusive {
				flags |= rangeFlagLowerInc
			}
			if rg.UpperInclusive {
				flags |= rangeFlagUpperInc
			}
			if rg.LowerInfinite {
				flags |= rangeFlagLowerInf
			}
			if rg.UpperInfinite {
				flags |= rangeFlagUpperInf
			}
			w := buf.NewWriter(16)
			w.WriteByte(flags)
			if rg.Empty {
				return w.Bytes(), nil
			}
			elemCodec, ok := resolver.Lookup(elemOID)
			if !ok {
				return nil, fmt.Errorf("pgtype: %s: element OID %d not registered", name, elemOID)
			}
			if !rg.LowerInfinite {
				enc, err := elemCodec.Encode(Binary, rg.Lower)
				if err != nil {
					return nil, fmt.Errorf("pgtype: %s: lower bound: %w", name, err)
				}
				w.WriteLengthPrefixed(enc)
			}
			if !rg.UpperInfinite {
				enc, err := elemCodec.Encode(Binary, rg.Upper)
				if err != nil {
					return nil, fmt.Errorf("pgtype: %s: upper bound: %w", name, err)
				}
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
			flags, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			rg := Range{
				Empty:          flags&rangeFlagEmpty != 0,
				LowerInclusive: flags&rangeFlagLowerInc != 0,
				UpperInclusive: flags&rangeFlagUpperInc != 0,
				LowerInfinite:  flags&rangeFlagLowerInf != 0,
				UpperInfinite:  flags&rangeFlagUpperInf != 0,
			}
			if rg.Empty {
				return rg, nil
			}
			elemCodec, ok := resolver.Lookup(elemOID)
			if !ok {
				return nil, fmt.Errorf("pgtype: %s: element OID %d not registered", name, elemOID)
			}
			if !rg.LowerInfinite {
				b, err := r.ReadLengthPrefixed()
				if err != nil {
					return nil, err
				}
				if rg.Lower, err = elemCodec.Decode(Binary, b); err != nil {
					return nil, fmt.Errorf("pgtype: %s: lower bound: %w", name, err)
				}
			}
			if !rg.UpperInfinite {
				b, err := r.ReadLengthPrefixed()
				if err != nil {
					return nil, err
				}
				if rg.Upper, err = elemCodec.Decode(Binary, b); err != nil {
					return nil, fmt.Errorf("pgtype: %s: upper bound: %w", name, err)
				}
			}
			return rg, nil
		},
	}
}
