package pgtype

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func roundTrip(t *testing.T, c *Codec, f Format, v any) any {
	t.Helper()
	enc, err := c.Encode(f, v)
	if err != nil {
		t.Fatalf("encode %v: %v", v, err)
	}
	dec, err := c.Decode(f, enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return dec
}

func TestBoolRoundTrip(t *testing.T) {
	c, _ := Global.Lookup(OIDBool)
	for _, f := range []Format{Text, Binary} {
		if got := roundTrip(t, c, f, true); got != true {
			t.Fatalf("format %v: got %v", f, got)
		}
		if got := roundTrip(t, c, f, false); got != false {
			t.Fatalf("format %v: got %v", f, got)
		}
	}
}

func TestIntRoundTrip(t *testing.T) {
	cases := []struct {
		oid uint32
		v   any
	}{
		{OIDInt2, int16(-1234)},
		{OIDInt4, int32(123456789)},
		{OIDInt8, int64(-9223372036854775000)},
	}
	for _, tc := range cases {
		c, _ := Global.Lookup(tc.oid)
		for _, f := range []Format{Text, Binary} {
			got := roundTrip(t, c, f, tc.v)
			if got != tc.v {
				t.Fatalf("oid %d format %v: got %v, want %v", tc.oid, f, got, tc.v)
			}
		}
	}
}

func TestNumericBinaryRoundTrip(t *testing.T) {
	c, _ := Global.Lookup(OIDNumeric)
	cases := []string{"0", "123.456", "-123.456", "1000000", "0.0001", "-0.5", "999999999999.999999"}
	for _, s := range cases {
		want, _ := decimal.NewFromString(s)
		got := roundTrip(t, c, Binary, want)
		gd := got.(decimal.Decimal)
		if !gd.Equal(want) {
			t.Fatalf("numeric %s: got %s, want %s", s, gd.String(), want.String())
		}
	}
}

func TestUUIDRoundTrip(t *testing.T) {
	c, _ := Global.Lookup(OIDUUID)
	u := uuid.New()
	for _, f := range []Format{Text, Binary} {
		got := roundTrip(t, c, f, u)
		if got.(uuid.UUID) != u {
			t.Fatalf("format %v: got %v, want %v", f, got, u)
		}
	}
}

func TestTimestamptzRoundTripBinary(t *testing.T) {
	c, _ := Global.Lookup(OIDTimestamptz)
	want := time.Date(2024, 3, 15, 12, 30, 45, 123000000, time.UTC)
	got := roundTrip(t, c, Binary, want)
	gt := got.(time.Time)
	if !gt.Equal(want) {
		t.Fatalf("got %v, want %v", gt, want)
	}
}

func TestIntervalRoundTrip(t *testing.T) {
	c, _ := Global.Lookup(OIDInterval)
	want := Interval{Microseconds: 1234567, Days: 10, Months: 3}
	got := roundTrip(t, c, Binary, want)
	if got.(Interval) != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestByteaHexTextRoundTrip(t *testing.T) {
	c, _ := Global.Lookup(OIDBytea)
	want := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	for _, f := range []Format{Text, Binary} {
		got := roundTrip(t, c, f, want)
		gb := got.([]byte)
		if string(gb) != string(want) {
			t.Fatalf("format %v: got %x, want %x", f, gb, want)
		}
	}
}

func TestArrayBinaryRoundTrip(t *testing.T) {
	c, _ := Global.Lookup(OIDInt4Array)
	arr := Array{
		Dims:    []ArrayDimension{{Length: 3, LowerBound: 1}},
		ElemOID: OIDInt4,
		Elements: []any{int32(1), int32(2), nil},
	}
	got := roundTrip(t, c, Binary, arr)
	ga := got.(Array)
	if len(ga.Elements) != 3 || ga.Elements[0] != int32(1) || ga.Elements[2] != nil {
		t.Fatalf("got %+v", ga)
	}
}

func TestArrayTextRoundTrip(t *testing.T) {
	c, _ := Global.Lookup(OIDTextArray)
	arr := Array{
		Dims:     []ArrayDimension{{Length: 2, LowerBound: 1}},
		ElemOID:  OIDText,
		Elements: []any{"hello, world", "simple"},
	}
	enc, err := c.Encode(Text, arr)
	if err != nil {
		t.Fatal(err)
	}
	dec, err := c.Decode(Text, enc)
	if err != nil {
		t.Fatalf("decode %q: %v", enc, err)
	}
	got := dec.(Array)
	if got.Elements[0] != "hello, world" || got.Elements[1] != "simple" {
		t.Fatalf("got %+v", got.Elements)
	}
}

func TestCompositeRoundTrip(t *testing.T) {
	fields := []CompositeField{{Name: "a", OID: OIDInt4}, {Name: "b", OID: OIDText}}
	c := NewCompositeCodec(16400, "test_row", fields, Global)
	want := Composite{Values: []any{int32(7), "hi"}}
	got := roundTrip(t, c, Binary, want)
	gc := got.(Composite)
	if gc.Values[0] != int32(7) || gc.Values[1] != "hi" {
		t.Fatalf("got %+v", gc.Values)
	}
}

func TestRangeRoundTrip(t *testing.T) {
	c := NewRangeCodec(16401, "int4range", OIDInt4, Global)
	want := Range{Lower: int32(1), Upper: int32(10), LowerInclusive: true, UpperInclusive: false}
	got := roundTrip(t, c, Binary, want)
	gr := got.(Range)
	if gr.Lower != int32(1) || gr.Upper != int32(10) || !gr.LowerInclusive {
		t.Fatalf("got %+v", gr)
	}
}

func TestRangeEmptyRoundTrip(t *testing.T) {
	c := NewRangeCodec(16402, "int4range", OIDInt4, Global)
	want := Range{Empty: true}
	got := roundTrip(t, c, Binary, want)
	if !got.(Range).Empty {
		t.Fatalf("got %+v", got)
	}
}

func TestEnumRoundTrip(t *testing.T) {
	c := NewEnumCodec(16403, "mood", []string{"sad", "ok", "happy"})
	got := roundTrip(t, c, Text, "happy")
	if got != "happy" {
		t.Fatalf("got %v", got)
	}
	if _, err := c.Encode(Text, "furious"); err == nil {
		t.Fatal("expected error for invalid label")
	}
}

func TestDomainDelegatesToBase(t *testing.T) {
	c := NewDomainCodec(16404, "posint", OIDInt4, Global)
	got := roundTrip(t, c, Binary, int32(42))
	if got != int32(42) {
		t.Fatalf("got %v", got)
	}
}

func TestRegistryLayering(t *testing.T) {
	child := Global.LayerOver()
	custom := &Codec{OID: 99999, Name: "custom", Kind: KindScalar}
	child.Register(custom)

	if _, ok := Global.Lookup(99999); ok {
		t.Fatal("custom codec leaked into Global")
	}
	if _, ok := child.Lookup(99999); !ok {
		t.Fatal("child should resolve its own registration")
	}
	if _, ok := child.Lookup(OIDBool); !ok {
		t.Fatal("child should fall through to parent for bool")
	}
}

func TestMoneyTextOnly(t *testing.T) {
	c, _ := Global.Lookup(OIDMoney)
	if _, err := c.Encode(Binary, "$1.00"); err != ErrUnsupportedFormat {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	got := roundTrip(t, c, Text, "$1.00")
	if got != "$1.00" {
		t.Fatalf("got %v", got)
	}
}
