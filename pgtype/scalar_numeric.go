package pgtype

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

func registerScalars(r *Registry) {
	r.Register(boolCodec())
	r.Register(int2Codec())
	r.Register(int4Codec())
	r.Register(int8Codec())
	r.Register(float4Codec())
	r.Register(float8Codec())
	r.Register(numericCodec())
	r.Register(moneyCodec())
	r.Register(textCodec(OIDText, "text"))
	r.Register(textCodec(OIDVarchar, "varchar"))
	r.Register(textCodec(OIDBpchar, "bpchar"))
	r.Register(textCodec(OIDName, "name"))
	r.Register(textCodec(OIDChar, "char"))
	r.Register(textCodec(OIDXML, "xml"))
	r.Register(byteaCodec())
	r.Register(jsonCodec(OIDJSON, "json"))
	r.Register(jsonCodec(OIDJSONB, "jsonb"))
	r.Register(uuidCodec())
	r.Register(dateCodec())
	r.Register(timeCodec())
	r.Register(timetzCodec())
	r.Register(timestampCodec())
	r.Register(timestamptzCodec())
	r.Register(intervalCodec())
	r.Register(inetCodec(OIDInet, "inet"))
	r.Register(inetCodec(OIDCidr, "cidr"))
	r.Register(macaddrCodec())
	r.Register(bitCodec(OIDBit, "bit"))
	r.Register(bitCodec(OIDVarbit, "varbit"))
}

func boolCodec() *Codec {
	return &Codec{
		OID: OIDBool, Name: "bool", Kind: KindScalar, PreferredFormat: Binary,
		Encode: func(f Format, v any) ([]byte, error) {
			if v == nil {
				return nil, nil
			}
			b, ok := v.(bool)
			if !ok {
				return nil, fmt.Errorf("pgtype: bool: want bool, got %T", v)
			}
			if f == Binary {
				if b {
					return []byte{1}, nil
				}
				return []byte{0}, nil
			}
			if b {
				return []byte("t"), nil
			}
			return []byte("f"), nil
		},
		Decode: func(f Format, src []byte) (any, error) {
			if src == nil {
				return nil, nil
			}
			if f == Binary {
				if len(src) != 1 {
					return nil, fmt.Errorf("pgtype: bool: want 1 byte, got %d", len(src))
				}
				return src[0] != 0, nil
			}
			switch string(src) {
			case "t", "true", "1":
				return true, nil
			case "f", "false", "0":
				return false, nil
			}
			return nil, fmt.Errorf("pgtype: bool: unrecognized text value %q", src)
		},
	}
}

func int2Codec() *Codec {
	return &Codec{
		OID: OIDInt2, Name: "int2", Kind: KindScalar, PreferredFormat: Binary,
		Encode: func(f Format, v any) ([]byte, error) {
			n, err := toInt64(v)
			if err != nil {
				return nil, err
			}
			if n == nil {
				return nil, nil
			}
			if *n < math.MinInt16 || *n > math.MaxInt16 {
				return nil, fmt.Errorf("pgtype: int2: %d out of range", *n)
			}
			if f == Binary {
				b := make([]byte, 2)
				binary.BigEndian.PutUint16(b, uint16(int16(*n)))
				return b, nil
			}
			return []byte(strconv.FormatInt(*n, 10)), nil
		},
		Decode: func(f Format, src []byte) (any, error) {
			if src == nil {
				return nil, nil
			}
			if f == Binary {
				if len(src) != 2 {
					return nil, fmt.Errorf("pgtype: int2: want 2 bytes, got %d", len(src))
				}
				return int16(binary.BigEndian.Uint16(src)), nil
			}
			n, err := strconv.ParseInt(string(src), 10, 16)
			return int16(n), err
		},
	}
}

func int4Codec() *Codec {
	return &Codec{
		OID: OIDInt4, Name: "int4", Kind: KindScalar, PreferredFormat: Binary,
		Encode: func(f Format, v any) ([]byte, error) {
			n, err := toInt64(v)
			if err != nil {
				return nil, err
			}
			if n == nil {
				return nil, nil
			}
			if *n < math.MinInt32 || *n > math.MaxInt32 {
				return nil, fmt.Errorf("pgtype: int4: %d out of range", *n)
			}
			if f == Binary {
				b := make([]byte, 4)
				binary.BigEndian.PutUint32(b, uint32(int32(*n)))
				return b, nil
			}
			return []byte(strconv.FormatInt(*n, 10)), nil
		},
		Decode: func(f Format, src []byte) (any, error) {
			if src == nil {
				return nil, nil
			}
			if f == Binary {
				if len(src) != 4 {
					return nil, fmt.Errorf("pgtype: int4: want 4 bytes, got %d", len(src))
				}
				return int32(binary.BigEndian.Uint32(src)), nil
			}
			n, err := strconv.ParseInt(string(src), 10, 32)
			return int32(n), err
		},
	}
}

func int8Codec() *Codec {
	return &Codec{
		OID: OIDInt8, Name: "int8", Kind: KindScalar, PreferredFormat: Binary,
		Encode: func(f Format, v any) ([]byte, error) {
			n, err := toInt64(v)
			if err != nil {
				return nil, err
			}
			if n == nil {
				return nil, nil
			}
			if f == Binary {
				b := make([]byte, 8)
				binary.BigEndian.PutUint64(b, uint64(*n))
				return b, nil
			}
			return []byte(strconv.FormatInt(*n, 10)), nil
		},
		Decode: func(f Format, src []byte) (any, error) {
			if src == nil {
				return nil, nil
			}
			if f == Binary {
				if len(src) != 8 {
					return nil, fmt.Errorf("pgtype: int8: want 8 bytes, got %d", len(src))
				}
				return int64(binary.BigEndian.Uint64(src)), nil
			}
			return strconv.ParseInt(string(src), 10, 64)
		},
	}
}

// toInt64 accepts any Go integer kind (plus nil for NULL) so callers aren't
// forced to pick an exact width when binding parameters.
func toInt64(v any) (*int64, error) {
	if v == nil {
		return nil, nil
	}
	var n int64
	switch t := v.(type) {
	case int:
		n = int64(t)
	case int8:
		n = int64(t)
	case int16:
		n = int64(t)
	case int32:
		n = int64(t)
	case int64:
		n = t
	case uint:
		n = int64(t)
	case uint8:
		n = int64(t)
	case uint16:
		n = int64(t)
	case uint32:
		n = int64(t)
	default:
		return nil, fmt.Errorf("pgtype: cannot encode %T as integer", v)
	}
	return &n, nil
}

func float4Codec() *Codec {
	return &Codec{
		OID: OIDFloat4, Name: "float4", Kind: KindScalar, PreferredFormat: Binary,
		Encode: func(f Format, v any) ([]byte, error) {
			if v == nil {
				return nil, nil
			}
			var x float32
			switch t := v.(type) {
			case float32:
				x = t
			case float64:
				x = float32(t)
			default:
				return nil, fmt.Errorf("pgtype: float4: want float32/float64, got %T", v)
			}
			if f == Binary {
				b := make([]byte, 4)
				binary.BigEndian.PutUint32(b, math.Float32bits(x))
				return b, nil
			}
			return []byte(strconv.FormatFloat(float64(x), 'g', -1, 32)), nil
		},
		Decode: func(f Format, src []byte) (any, error) {
			if src == nil {
				return nil, nil
			}
			if f == Binary {
				if len(src) != 4 {
					return nil, fmt.Errorf("pgtype: float4: want 4 bytes, got %d", len(src))
				}
				return math.Float32frombits(binary.BigEndian.Uint32(src)), nil
			}
			x, err := strconv.ParseFloat(string(src), 32)
			return float32(x), err
		},
	}
}

func float8Codec() *Codec {
	return &Codec{
		OID: OIDFloat8, Name: "float8", Kind: KindScalar, PreferredFormat: Binary,
		Encode: func(f Format, v any) ([]byte, error) {
			if v == nil {
				return nil, nil
			}
			var x float64
			switch t := v.(type) {
			case float32:
				x = float64(t)
			case float64:
				x = t
			default:
				return nil, fmt.Errorf("pgtype: float8: want float32/float64, got %T", v)
			}
			if f == Binary {
				b := make([]byte, 8)
				binary.BigEndian.PutUint64(b, math.Float64bits(x))
				return b, nil
			}
			return []byte(strconv.FormatFloat(x, 'g', -1, 64)), nil
		},
		Decode: func(f Format, src []byte) (any, error) {
			if src == nil {
				return nil, nil
			}
			if f == Binary {
				if len(src) != 8 {
					return nil, fmt.Errorf("pgtype: float8: want 8 bytes, got %d", len(src))
				}
				return math.Float64frombits(binary.BigEndian.Uint64(src)), nil
			}
			return strconv.ParseFloat(string(src), 64)
		},
	}
}

// numeric sign codes, per the wire format documented in §4.2.
const (
	numericSignPositive uint16 = 0x0000
	numericSignNegative uint16 = 0x4000
	numericSignNaN      uint16 = 0xC000
	numericSignPosInf   uint16 = 0xD000
	numericSignNegInf   uint16 = 0xF000

	numericDigitWidth = 4 // base-10000 digits
)

func numericCodec() *Codec {
	return &Codec{
		OID: OIDNumeric, Name: "numeric", Kind: KindScalar, PreferredFormat: Binary,
		Encode: func(f Format, v any) ([]byte, error) {
			if v == nil {
				return nil, nil
			}
			d, err := toDecimal(v)
			if err != nil {
				return nil, err
			}
			if f == Text {
				return []byte(d.String()), nil
			}
			return encodeNumericBinary(d), nil
		},
		Decode: func(f Format, src []byte) (any, error) {
			if src == nil {
				return nil, nil
			}
			if f == Text {
				return decimal.NewFromString(string(src))
			}
			return decodeNumericBinary(src)
		},
	}
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, nil
	case string:
		return decimal.NewFromString(t)
	case float64:
		return decimal.NewFromFloat(t), nil
	case int:
		return decimal.NewFromInt(int64(t)), nil
	case int64:
		return decimal.NewFromInt(t), nil
	default:
		return decimal.Decimal{}, fmt.Errorf("pgtype: numeric: cannot encode %T", v)
	}
}

// encodeNumericBinary renders d in base-10000 digit groups, the format
// PostgreSQL's numeric type uses on the wire.
func encodeNumericBinary(d decimal.Decimal) []byte {
	if d.Equal(decimal.Zero) {
		b := make([]byte, 8)
		binary.BigEndian.PutUint16(b[6:8], uint16(d.Exponent()*-1))
		return b
	}

	neg := d.Sign() < 0
	abs := d.Abs()
	dscale := uint16(0)
	if e := abs.Exponent(); e < 0 {
		dscale = uint16(-e)
	}

	unscaled := abs.Coefficient().String()
	// Shift the decimal point dscale places left of the unscaled integer's
	// end to recover the digit string, then split into base-10000 groups
	// aligned on the ones place.
	intDigits := len(unscaled) - int(dscale)
	var intPart, fracPart string
	if intDigits > 0 {
		intPart = unscaled[:intDigits]
		fracPart = unscaled[intDigits:]
	} else {
		intPart = "0"
		fracPart = strings.Repeat("0", -intDigits) + unscaled
	}

	weight := (len(intPart) - 1) / numericDigitWidth
	padIntLen := (weight+1)*numericDigitWidth - len(intPart)
	paddedInt := strings.Repeat("0", padIntLen) + intPart

	fracGroups := (len(fracPart) + numericDigitWidth - 1) / numericDigitWidth
	padFracLen := fracGroups*numericDigitWidth - len(fracPart)
	paddedFrac := fracPart + strings.Repeat("0", padFracLen)

	var digits []uint16
	for i := 0; i < len(paddedInt); i += numericDigitWidth {
		n, _ := strconv.ParseUint(paddedInt[i:i+numericDigitWidth], 10, 16)
		digits = append(digits, uint16(n))
	}
	for i := 0; i < len(paddedFrac); i += numericDigitWidth {
		n, _ := strconv.ParseUint(paddedFrac[i:i+numericDigitWidth], 10, 16)
		digits = append(digits, uint16(n))
	}
	for len(digits) > 0 && digits[len(digits)-1] == 0 && len(digits) > weight+1 {
		digits = digits[:len(digits)-1]
	}
	for len(digits) > 0 && digits[0] == 0 {
		digits = digits[1:]
		weight--
	}

	sign := numericSignPositive
	if neg {
		sign = numericSignNegative
	}

	b := make([]byte, 8+len(digits)*2)
	binary.BigEndian.PutUint16(b[0:2], uint16(len(digits)))
	binary.BigEndian.PutUint16(b[2:4], uint16(int16(weight)))
	binary.BigEndian.PutUint16(b[4:6], sign)
	binary.BigEndian.PutUint16(b[6:8], dscale)
	for i, dg := range digits {
		binary.BigEndian.PutUint16(b[8+i*2:10+i*2], dg)
	}
	return b
}

func decodeNumericBinary(src []byte) (decimal.Decimal, error) {
	if len(src) < 8 {
		return decimal.Decimal{}, fmt.Errorf("pgtype: numeric: short buffer (%d bytes)", len(src))
	}
	ndigits := binary.BigEndian.Uint16(src[0:2])
	weight := int16(binary.BigEndian.Uint16(src[2:4]))
	sign := binary.BigEndian.Uint16(src[4:6])
	dscale := binary.BigEndian.Uint16(src[6:8])

	switch sign {
	case numericSignNaN:
		return decimal.Decimal{}, fmt.Errorf("pgtype: numeric: NaN has no decimal.Decimal representation")
	case numericSignPosInf, numericSignNegInf:
		return decimal.Decimal{}, fmt.Errorf("pgtype: numeric: infinity has no decimal.Decimal representation")
	}

	if len(src) != 8+int(ndigits)*2 {
		return decimal.Decimal{}, fmt.Errorf("pgtype: numeric: length mismatch for %d digits", ndigits)
	}

	var sb strings.Builder
	for i := 0; i < int(ndigits); i++ {
		dg := binary.BigEndian.Uint16(src[8+i*2 : 10+i*2])
		fmt.Fprintf(&sb, "%04d", dg)
	}
	digitsStr := sb.String()

	// The digit string represents value * 10000^weight; convert to a plain
	// base-10 string by placing the decimal point (weight+1)*4 digits in.
	pointPos := (int(weight) + 1) * numericDigitWidth
	var whole, frac string
	if pointPos <= 0 {
		whole = "0"
		frac = strings.Repeat("0", -pointPos) + digitsStr
	} else if pointPos >= len(digitsStr) {
		whole = digitsStr + strings.Repeat("0", pointPos-len(digitsStr))
		frac = ""
	} else {
		whole = digitsStr[:pointPos]
		frac = digitsStr[pointPos:]
	}
	if len(frac) > int(dscale) {
		frac = frac[:dscale]
	} else {
		frac = frac + strings.Repeat("0", int(dscale)-len(frac))
	}

	text := whole
	if dscale > 0 {
		text += "." + frac
	}
	if sign == numericSignNegative {
		text = "-" + text
	}
	return decimal.NewFromString(text)
}

// moneyCodec treats "money" as text-only per §4.2; its binary format
// (int64 cents, locale-dependent formatting) is not worth the complexity
// for a type PostgreSQL itself recommends against using.
func moneyCodec() *Codec {
	return &Codec{
		OID: OIDMoney, Name: "money", Kind: KindScalar, PreferredFormat: Text,
		Encode: func(f Format, v any) ([]byte, error) {
			if v == nil {
				return nil, nil
			}
			if f == Binary {
				return nil, ErrUnsupportedFormat
			}
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("pgtype: money: want string, got %T", v)
			}
			return []byte(s), nil
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
