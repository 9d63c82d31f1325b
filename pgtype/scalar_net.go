package pgtype

import (
	"fmt"
	"net"
	"net/netip"
)

const (
	pgAFInet  = 2 // PGSQL_AF_INET
	pgAFInet6 = 3 // PGSQL_AF_INET6
)

// inetCodec serves both inet and cidr; the only wire difference is the
// is_cidr flag byte, which this implementation sets from the codec's OID
// (1 for cidr, 0 for inet) rather than exposing a separate Go type for
// each; both decode to netip.Prefix.
func inetCodec(oid uint32, name string) *Codec {
	isCidr := oid == OIDCidr
	return &Codec{
		OID: oid, Name: name, Kind: KindScalar, PreferredFormat: Binary,
		Encode: func(f Format, v any) ([]byte, error) {
			if v == nil {
				return nil, nil
			}
			prefix, err := toNetipPrefix(v)
			if err != nil {
				return nil, err
			}
			if f == Text {
				return []byte(prefix.String()), nil
			}
			return encodeInetBinary(prefix, isCidr), nil
		},
		Decode: func(f Format, src []byte) (any, error) {
			if src == nil {
				return nil, nil
			}
			if f == Text {
				return netip.ParsePrefix(ensureSlash(string(src)))
			}
			return decodeInetBinary(src)
		},
	}
}

func toNetipPrefix(v any) (netip.Prefix, error) {
	switch t := v.(type) {
	case netip.Prefix:
		return t, nil
	case netip.Addr:
		return netip.PrefixFrom(t, t.BitLen()), nil
	case *net.IPNet:
		ones, _ := t.Mask.Size()
		addr, ok := netip.AddrFromSlice(t.IP)
		if !ok {
			return netip.Prefix{}, fmt.Errorf("pgtype: inet: invalid IP %v", t.IP)
		}
		return netip.PrefixFrom(addr.Unmap(), ones), nil
	case string:
		return netip.ParsePrefix(ensureSlash(t))
	default:
		return netip.Prefix{}, fmt.Errorf("pgtype: inet/cidr: unsupported type %T", v)
	}
}

func ensureSlash(s string) string {
	for _, c := range s {
		if c == '/' {
			return s
		}
	}
	// netip.ParsePrefix requires a /bits suffix; infer the full width from
	// whether the text contains a colon (v6) the way inet's own text
	// format allows a bare address meaning "/32" or "/128".
	bits := "32"
	for _, c := range s {
		if c == ':' {
			bits = "128"
			break
		}
	}
	return s + "/" + bits
}

func encodeInetBinary(p netip.Prefix, isCidr bool) []byte {
	addr := p.Addr()
	family := byte(pgAFInet)
	addrBytes := addr.As4()
	addrSlice := addrBytes[:]
	if addr.Is6() {
		family = pgAFInet6
		b16 := addr.As16()
		addrSlice = b16[:]
	}
	cidrFlag := byte(0)
	if isCidr {
		cidrFlag = 1
	}
	out := make([]byte, 4+len(addrSlice))
	out[0] = family
	out[1] = byte(p.Bits())
	out[2] = cidrFlag
	out[3] = byte(len(addrSlice))
	copy(out[4:], addrSlice)
	return out
}

func decodeInetBinary(src []byte) (netip.Prefix, error) {
	if len(src) < 4 {
		return netip.Prefix{}, fmt.Errorf("pgtype: inet/cidr: short buffer (%d bytes)", len(src))
	}
	family, bits, _, addrLen := src[0], src[1], src[2], src[3]
	addr := src[4:]
	if len(addr) != int(addrLen) {
		return netip.Prefix{}, fmt.Errorf("pgtype: inet/cidr: addrlen mismatch: declared %d, got %d", addrLen, len(addr))
	}
	var a netip.Addr
	var ok bool
	switch family {
	case pgAFInet:
		a, ok = netip.AddrFromSlice(addr)
	case pgAFInet6:
		a, ok = netip.AddrFromSlice(addr)
	default:
		return netip.Prefix{}, fmt.Errorf("pgtype: inet/cidr: unknown family %d", family)
	}
	if !ok {
		return netip.Prefix{}, fmt.Errorf("pgtype: inet/cidr: invalid address bytes")
	}
	return netip.PrefixFrom(a, int(bits)), nil
}

func macaddrCodec() *Codec {
	return &Codec{
		OID: OIDMacaddr, Name: "macaddr", Kind: KindScalar, PreferredFormat: Binary,
		Encode: func(f Format, v any) ([]byte, error) {
			if v == nil {
				return nil, nil
			}
			mac, ok := v.(net.HardwareAddr)
			if !ok {
				return nil, fmt.Errorf("pgtype: macaddr: want net.HardwareAddr, got %T", v)
			}
			if len(mac) != 6 {
				return nil, fmt.Errorf("pgtype: macaddr: want 6 bytes, got %d", len(mac))
			}
			if f == Text {
				return []byte(mac.String()), nil
			}
			return append([]byte(nil), mac...), nil
		},
		Decode: func(f Format, src []byte) (any, error) {
			if src == nil {
				return nil, nil
			}
			if f == Text {
				return net.ParseMAC(string(src))
			}
			if len(src) != 6 {
				return nil, fmt.Errorf("pgtype: macaddr: want 6 bytes, got %d", len(src))
			}
			return net.HardwareAddr(append([]byte(nil), src...)), nil
		},
	}
}

// BitString is a fixed- or variable-length bit string (bit(n)/varbit).
type BitString struct {
	Bits []bool
}

func (b BitString) String() string {
	out := make([]byte, len(b.Bits))
	for i, bit := range b.Bits {
		if bit {
			out[i] = '1'
		} else {
			out[i] = '0'
		}
	}
	return string(out)
}

func bitCodec(oid uint32, name string) *Codec {
	return &Codec{
		OID: oid, Name: name, Kind: KindScalar, PreferredFormat: Binary,
		Encode: func(f Format, v any) ([]byte, error) {
			if v == nil {
				return nil, nil
			}
			bs, ok := v.(BitString)
			if !ok {
				return nil, fmt.Errorf("pgtype: %s: want pgtype.BitString, got %T", name, v)
			}
			if f == Text {
				return []byte(bs.String()), nil
			}
			return encodeBitStringBinary(bs), nil
		},
		Decode: func(f Format, src []byte) (any, error) {
			if src == nil {
				return nil, nil
			}
			if f == Text {
				return parseBitStringText(string(src)), nil
			}
			return decodeBitStringBinary(src)
		},
	}
}

func parseBitStringText(s string) BitString {
	bits := make([]bool, len(s))
	for i, c := range s {
		bits[i] = c == '1'
	}
	return BitString{Bits: bits}
}

func encodeBitStringBinary(bs BitString) []byte {
	nbytes := (len(bs.Bits) + 7) / 8
	out := make([]byte, 4+nbytes)
	out[0] = byte(len(bs.Bits) >> 24)
	out[1] = byte(len(bs.Bits) >> 16)
	out[2] = byte(len(bs.Bits) >> 8)
	out[3] = byte(len(bs.Bits))
	for i, bit := range bs.Bits {
		if bit {
			out[4+i/8] |= 1 << (7 - uint(i%8))
		}
	}
	return out
}

func decodeBitStringBinary(src []byte) (BitString, error) {
	if len(src) < 4 {
		return BitString{}, fmt.Errorf("pgtype: bit/varbit: short buffer (%d bytes)", len(src))
	}
	n := int(src[0])<<24 | int(src[1])<<16 | int(src[2])<<8 | int(src[3])
	data := src[4:]
	if len(data) < (n+7)/8 {
		return BitString{}, fmt.Errorf("pgtype: bit/varbit: declared %d bits, buffer too short", n)
	}
	bits := make([]bool, n)
	for i := range bits {
		bits[i] = data[i/8]&(1<<(7-uint(i%8))) != 0
	}
	return BitString{Bits: bits}, nil
}
