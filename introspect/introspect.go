// Package introspect resolves OIDs that aren't in the static pgtype
// registry by querying the server's system catalog, synthesizing a codec,
// and caching the result, per-connection or shared across a pool.
package introspect

import (
	"context"
	"fmt"
	"sync"

	"github.com/flowpg/flowpg/pgconn"
	"github.com/flowpg/flowpg/pgtype"
)

// CacheEntry is one resolved type, keyed by OID.
type CacheEntry struct {
	OID          uint32
	Codec        *pgtype.Codec
	RefCount     int32
	DiscoverySQL string
}

// Cache is a read-mostly set of introspected codecs that can be shared
// across every connection in a pool, so a custom enum or composite type is
// only ever introspected once per pool rather than once per connection.
// It has no size limit: an entry, once stored, is never evicted.
type Cache struct {
	mu      sync.RWMutex
	entries map[uint32]*CacheEntry
}

// NewCache returns an empty, ready-to-use Cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[uint32]*CacheEntry)}
}

func (c *Cache) get(oid uint32) (*pgtype.Codec, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[oid]
	if !ok {
		return nil, false
	}
	return e.Codec, true
}

func (c *Cache) put(oid uint32, codec *pgtype.Codec, sql string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[oid]; ok {
		e.RefCount++
		return
	}
	c.entries[oid] = &CacheEntry{OID: oid, Codec: codec, RefCount: 1, DiscoverySQL: sql}
}

// Len reports how many OIDs this cache has resolved.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// The catalog queries' result columns are name, "char" and oid. name and
// "char" decode through text codecs built into pgtype.Global, and oid has
// no registered codec, so those columns arrive as raw text that asOID
// parses; none of them needs introspection, which is what prevents
// introspection from recursing into itself when resolving pg_catalog's own
// types. For the same reason the $1 OID argument is passed as decimal text.
const typeQuery = `
SELECT t.typname, t.typtype, t.typelem, t.typbasetype, t.typrelid
FROM pg_catalog.pg_type t
WHERE t.oid = $1::oid`

const compositeFieldsQuery = `
SELECT a.attname, a.atttypid
FROM pg_catalog.pg_attribute a
WHERE a.attrelid = $1::oid AND a.attnum > 0 AND NOT a.attisdropped
ORDER BY a.attnum`

const enumLabelsQuery = `
SELECT e.enumlabel
FROM pg_catalog.pg_enum e
WHERE e.enumtypid = $1::oid
ORDER BY e.enumsortorder`

const rangeSubtypeQuery = `
SELECT r.rngsubtype
FROM pg_catalog.pg_range r
WHERE r.rngtypid = $1::oid`

// Resolve returns the codec for oid, consulting registry first, then
// cache (if non-nil), and finally issuing catalog queries over conn.
// Newly discovered codecs are registered on registry and, if cache is
// non-nil, stored there too so later connections skip the round trip.
func Resolve(ctx context.Context, conn *pgconn.Conn, registry *pgtype.Registry, cache *Cache, oid uint32) (*pgtype.Codec, error) {
	if codec, ok := registry.Lookup(oid); ok {
		return codec, nil
	}
	if cache != nil {
		if codec, ok := cache.get(oid); ok {
			registry.Register(codec)
			return codec, nil
		}
	}

	codec, err := discover(ctx, conn, registry, cache, oid)
	if err != nil {
		return nil, err
	}
	registry.Register(codec)
	if cache != nil {
		cache.put(oid, codec, typeQuery)
	}
	return codec, nil
}

func discover(ctx context.Context, conn *pgconn.Conn, registry *pgtype.Registry, cache *Cache, oid uint32) (*pgtype.Codec, error) {
	row, err := conn.FetchRow(ctx, typeQuery, fmt.Sprint(oid))
	if err != nil {
		return nil, fmt.Errorf("introspect: pg_type lookup for OID %d: %w", oid, err)
	}
	if row == nil {
		return nil, fmt.Errorf("introspect: OID %d not found in pg_type", oid)
	}

	typname, _ := row.GetByName("typname")
	typtype, _ := row.GetByName("typtype")
	typelem, _ := row.GetByName("typelem")
	typbasetype, _ := row.GetByName("typbasetype")
	typrelid, _ := row.GetByName("typrelid")

	name, _ := typname.(string)
	kind, _ := typtype.(string)
	elemOID := asOID(typelem)
	baseOID := asOID(typbasetype)
	relOID := asOID(typrelid)

	// An array type is any type whose typelem is non-zero; its own
	// typtype is still 'b' (base), so this check comes before the
	// typtype switch below.
	if elemOID != 0 && kind == "b" {
		if _, err := Resolve(ctx, conn, registry, cache, elemOID); err != nil {
			return nil, fmt.Errorf("introspect: array %s element OID %d: %w", name, elemOID, err)
		}
		return pgtype.NewArrayCodec(oid, name, elemOID, registry), nil
	}

	switch kind {
	case "c":
		fields, err := compositeFields(ctx, conn, registry, cache, relOID)
		if err != nil {
			return nil, fmt.Errorf("introspect: composite %s: %w", name, err)
		}
		return pgtype.NewCompositeCodec(oid, name, fields, registry), nil

	case "e":
		labels, err := enumLabels(ctx, conn, oid)
		if err != nil {
			return nil, fmt.Errorf("introspect: enum %s: %w", name, err)
		}
		return pgtype.NewEnumCodec(oid, name, labels), nil

	case "d":
		if _, err := Resolve(ctx, conn, registry, cache, baseOID); err != nil {
			return nil, fmt.Errorf("introspect: domain %s base OID %d: %w", name, baseOID, err)
		}
		return pgtype.NewDomainCodec(oid, name, baseOID, registry), nil

	case "r":
		subOID, err := rangeSubtype(ctx, conn, oid)
		if err != nil {
			return nil, fmt.Errorf("introspect: range %s: %w", name, err)
		}
		if _, err := Resolve(ctx, conn, registry, cache, subOID); err != nil {
			return nil, fmt.Errorf("introspect: range %s subtype OID %d: %w", name, subOID, err)
		}
		return pgtype.NewRangeCodec(oid, name, subOID, registry), nil

	default:
		return nil, fmt.Errorf("introspect: OID %d (%s) has unsupported pg_type.typtype %q", oid, name, kind)
	}
}

func compositeFields(ctx context.Context, conn *pgconn.Conn, registry *pgtype.Registry, cache *Cache, relOID uint32) ([]pgtype.CompositeField, error) {
	rows, err := conn.Fetch(ctx, compositeFieldsQuery, fmt.Sprint(relOID))
	if err != nil {
		return nil, err
	}
	fields := make([]pgtype.CompositeField, 0, len(rows))
	for _, row := range rows {
		nameVal, _ := row.GetByName("attname")
		oidVal, _ := row.GetByName("atttypid")
		fieldOID := asOID(oidVal)
		if _, err := Resolve(ctx, conn, registry, cache, fieldOID); err != nil {
			return nil, fmt.Errorf("field %v OID %d: %w", nameVal, fieldOID, err)
		}
		name, _ := nameVal.(string)
		fields = append(fields, pgtype.CompositeField{Name: name, OID: fieldOID})
	}
	return fields, nil
}

func enumLabels(ctx context.Context, conn *pgconn.Conn, oid uint32) ([]string, error) {
	rows, err := conn.Fetch(ctx, enumLabelsQuery, fmt.Sprint(oid))
	if err != nil {
		return nil, err
	}
	labels := make([]string, 0, len(rows))
	for _, row := range rows {
		v, _ := row.GetByName("enumlabel")
		s, _ := v.(string)
		labels = append(labels, s)
	}
	return labels, nil
}

func rangeSubtype(ctx context.Context, conn *pgconn.Conn, oid uint32) (uint32, error) {
	row, err := conn.FetchRow(ctx, rangeSubtypeQuery, fmt.Sprint(oid))
	if err != nil {
		return 0, err
	}
	if row == nil {
		return 0, fmt.Errorf("no pg_range row for OID %d", oid)
	}
	v, _ := row.GetByName("rngsubtype")
	return asOID(v), nil
}

// asOID normalizes the handful of integer shapes a decoded OID/int4
// column might arrive as (int4 codec yields int32; oid codec, if ever
// registered, would yield uint32) into a plain uint32.
func asOID(v any) uint32 {
	switch t := v.(type) {
	case uint32:
		return t
	case int32:
		return uint32(t)
	case int64:
		return uint32(t)
	case int:
		return uint32(t)
	case string:
		var n uint32
		fmt.Sscanf(t, "%d", &n)
		return n
	default:
		return 0
	}
}
