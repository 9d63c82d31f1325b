package pgtype

import (
	"encoding/binary"
	"fmt"
	"time"
)

// pgEpoch is the PostgreSQL reference instant used by timestamp/date
// binary encodings: 2000-01-01 00:00:00 UTC.
var pgEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Sentinel binary values for +/-infinity timestamps, per §4.2.
const (
	pgInt64Infinity    = int64(9223372036854775807)
	pgInt64NegInfinity = int64(-9223372036854775808)
	pgInt32Infinity    = int32(2147483647)
	pgInt32NegInfinity = int32(-2147483648)
)

// infiniteTime and negativeInfiniteTime are the sentinel Go values used to
// round-trip PostgreSQL's infinity/-infinity timestamps, since time.Time
// has no native representation for them.
var (
	infiniteTime         = time.Date(294276, 12, 31, 23, 59, 59, 999999000, time.UTC)
	negativeInfiniteTime = time.Date(-4713, 11, 24, 0, 0, 0, 0, time.UTC)
)

func dateCodec() *Codec {
	return &Codec{
		OID: OIDDate, Name: "date", Kind: KindScalar, PreferredFormat: Binary,
		Encode: func(f Format, v any) ([]byte, error) {
			if v == nil {
				return nil, nil
			}
			t, ok := v.(time.Time)
			if !ok {
				return nil, fmt.Errorf("pgtype: date: want time.Time, got %T", v)
			}
			if f == Text {
				return []byte(t.Format("2006-01-02")), nil
			}
			days := int32(t.UTC().Sub(pgEpoch).Hours() / 24)
			b := make([]byte, 4)
			binary.BigEndian.PutUint32(b, uint32(days))
			return b, nil
		},
		Decode: func(f Format, src []byte) (any, error) {
			if src == nil {
				return nil, nil
			}
			if f == Text {
				return time.Parse("2006-01-02", string(src))
			}
			if len(src) != 4 {
				return nil, fmt.Errorf("pgtype: date: want 4 bytes, got %d", len(src))
			}
			days := int32(binary.BigEndian.Uint32(src))
			switch days {
			case pgInt32Infinity:
				return infiniteTime, nil
			case pgInt32NegInfinity:
				return negativeInfiniteTime, nil
			}
			return pgEpoch.AddDate(0, 0, int(days)), nil
		},
	}
}

func timeCodec() *Codec {
	return &Codec{
		OID: OIDTime, Name: "time", Kind: KindScalar, PreferredFormat: Binary,
		Encode: func(f Format, v any) ([]byte, error) {
			if v == nil {
				return nil, nil
			}
			t, ok := v.(time.Time)
			if !ok {
				return nil, fmt.Errorf("pgtype: time: want time.Time, got %T", v)
			}
			micros := int64(t.Hour())*3600e6 + int64(t.Minute())*60e6 + int64(t.Second())*1e6 + int64(t.Nanosecond())/1000
			if f == Text {
				return []byte(fmt.Sprintf("%02d:%02d:%02d.%06d", t.Hour(), t.Minute(), t.Second(), t.Nanosecond()/1000)), nil
			}
			b := make([]byte, 8)
			binary.BigEndian.PutUint64(b, uint64(micros))
			return b, nil
		},
		Decode: func(f Format, src []byte) (any, error) {
			if src == nil {
				return nil, nil
			}
			if f == Text {
				return time.Parse("15:04:05.999999", string(src))
			}
			if len(src) != 8 {
				return nil, fmt.Errorf("pgtype: time: want 8 bytes, got %d", len(src))
			}
			micros := int64(binary.BigEndian.Uint64(src))
			return microsToClock(micros), nil
		},
	}
}

func microsToClock(micros int64) time.Time {
	sec := micros / 1e6
	nsec := (micros % 1e6) * 1000
	return time.Date(0, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(sec)*time.Second + time.Duration(nsec))
}

func timetzCodec() *Codec {
	return &Codec{
		OID: OIDTimetz, Name: "timetz", Kind: KindScalar, PreferredFormat: Binary,
		Encode: func(f Format, v any) ([]byte, error) {
			if v == nil {
				return nil, nil
			}
			t, ok := v.(time.Time)
			if !ok {
				return nil, fmt.Errorf("pgtype: timetz: want time.Time, got %T", v)
			}
			if f == Text {
				return []byte(t.Format("15:04:05.999999Z07:00")), nil
			}
			_, offset := t.Zone()
			micros := int64(t.Hour())*3600e6 + int64(t.Minute())*60e6 + int64(t.Second())*1e6 + int64(t.Nanosecond())/1000
			b := make([]byte, 12)
			binary.BigEndian.PutUint64(b[0:8], uint64(micros))
			binary.BigEndian.PutUint32(b[8:12], uint32(int32(-offset)))
			return b, nil
		},
		Decode: func(f Format, src []byte) (any, error) {
			if src == nil {
				return nil, nil
			}
			if f == Text {
				return time.Parse("15:04:05.999999Z07:00", string(src))
			}
			if len(src) != 12 {
				return nil, fmt.Errorf("pgtype: timetz: want 12 bytes, got %d", len(src))
			}
			micros := int64(binary.BigEndian.Uint64(src[0:8]))
			offsetSec := int32(binary.BigEndian.Uint32(src[8:12]))
			loc := time.FixedZone("", -int(offsetSec))
			return microsToClock(micros).In(loc), nil
		},
	}
}

func timestampCodec() *Codec {
	return timestampCodecImpl(OIDTimestamp, "timestamp", false)
}

func timestamptzCodec() *Codec {
	return timestampCodecImpl(OIDTimestamptz, "timestamptz", true)
}

func timestampCodecImpl(oid uint32, name string, tz bool) *Codec {
	layout := "2006-01-02 15:04:05.999999"
	if tz {
		layout = "2006-01-02 15:04:05.999999Z07:00"
	}
	return &Codec{
		OID: oid, Name: name, Kind: KindScalar, PreferredFormat: Binary,
		Encode: func(f Format, v any) ([]byte, error) {
			if v == nil {
				return nil, nil
			}
			t, ok := v.(time.Time)
			if !ok {
				return nil, fmt.Errorf("pgtype: %s: want time.Time, got %T", name, v)
			}
			if f == Text {
				return []byte(t.Format(layout)), nil
			}
			var micros int64
			switch {
			case t.Equal(infiniteTime):
				micros = pgInt64Infinity
			case t.Equal(negativeInfiniteTime):
				micros = pgInt64NegInfinity
			default:
				d := t.UTC().Sub(pgEpoch)
				micros = d.Microseconds()
			}
			b := make([]byte, 8)
			binary.BigEndian.PutUint64(b, uint64(micros))
			return b, nil
		},
		Decode: func(f Format, src []byte) (any, error) {
			if src == nil {
				return nil, nil
			}
			if f == Text {
				return time.Parse(layout, string(src))
			}
			if len(src) != 8 {
				return nil, fmt.Errorf("pgtype: %s: want 8 bytes, got %d", name, len(src))
			}
			micros := int64(binary.BigEndian.Uint64(src))
			switch micros {
			case pgInt64Infinity:
				return infiniteTime, nil
			case pgInt64NegInfinity:
				return negativeInfiniteTime, nil
			}
			t := pgEpoch.Add(time.Duration(micros) * time.Microsecond)
			if !tz {
				return t, nil
			}
			return t.UTC(), nil
		},
	}
}

// Interval represents a PostgreSQL interval value, kept as its three
// independent components (microseconds, days, months) rather than
// collapsed into a single time.Duration, because the day/month components
// are calendar-relative and not a fixed duration (a "1 month" interval
// added to a date is not always 30*24h).
type Interval struct {
	Microseconds int64
	Days         int32
	Months       int32
}

func intervalCodec() *Codec {
	return &Codec{
		OID: OIDInterval, Name: "interval", Kind: KindScalar, PreferredFormat: Binary,
		Encode: func(f Format, v any) ([]byte, error) {
			if v == nil {
				return nil, nil
			}
			iv, ok := v.(Interval)
			if !ok {
				return nil, fmt.Errorf("pgtype: interval: want pgtype.Interval, got %T", v)
			}
			if f == Text {
				return []byte(formatIntervalText(iv)), nil
			}
			b := make([]byte, 16)
			binary.BigEndian.PutUint64(b[0:8], uint64(iv.Microseconds))
			binary.BigEndian.PutUint32(b[8:12], uint32(iv.Days))
			binary.BigEndian.PutUint32(b[12:16], uint32(iv.Months))
			return b, nil
		},
		Decode: func(f Format, src []byte) (any, error) {
			if src == nil {
				return nil, nil
			}
			if f == Text {
				return Interval{}, fmt.Errorf("pgtype: interval: text decoding not implemented, request binary format")
			}
			if len(src) != 16 {
				return nil, fmt.Errorf("pgtype: interval: want 16 bytes, got %d", len(src))
			}
			return Interval{
				Microseconds: int64(binary.BigEndian.Uint64(src[0:8])),
				Days:         int32(binary.BigEndian.Uint32(src[8:12])),
				Months:       int32(binary.BigEndian.Uint32(src[12:16])),
			}, nil
		},
	}
}

func formatIntervalText(iv Interval) string {
	years := iv.Months / 12
	months := iv.Months % 12
	totalSec := iv.Microseconds / 1e6
	micros := iv.Microseconds % 1e6
	hours := totalSec / 3600
	mins := (totalSec % 3600) / 60
	secs := totalSec % 60
	return fmt.Sprintf("%d years %d mons %d days %02d:%02d:%02d.%06d", years, months, iv.Days, hours, mins, secs, micros)
}
