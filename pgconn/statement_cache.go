package pgconn

import (
	"strconv"
	"strings"
	"time"
)

// PreparedStatement is a server-assigned named statement plus the metadata
// describing its parameters and result columns.
type PreparedStatement struct {
	Name          string
	SQL           string
	ParameterOIDs []uint32
	Fields        []ColumnDescriptor
	preparedAt    time.Time
	refCount      int
}

// ColumnDescriptor describes one output column of a prepared statement or
// portal.
type ColumnDescriptor struct {
	Name         string
	TableOID     uint32
	TableAttrNum int16
	DataTypeOID  uint32
	DataTypeSize int16
	TypeModifier int32
	Format       int16
}

// statementCache is a bounded, LRU-evicting cache of PreparedStatements
// keyed by normalized SQL text: `order` holds SQL keys from least- to
// most-recently-used, and both a lookup hit and an insertion move a key to
// the back. Eviction pops `order[0]` and queues the evicted entry's name
// for the caller to CLOSE (eviction itself does not talk to the network).
type statementCache struct {
	maxSize  int
	lifetime time.Duration
	order    []string // SQL keys, least-recently-used first
	entries  map[string]*PreparedStatement
	nextID   int
}

func newStatementCache(maxSize int, lifetime time.Duration) *statementCache {
	return &statementCache{
		maxSize:  maxSize,
		lifetime: lifetime,
		entries:  make(map[string]*PreparedStatement),
	}
}

func normalizeSQL(sql string) string {
	return strings.TrimSpace(sql)
}

// get returns the cached statement for sql if present and not expired.
func (c *statementCache) get(sql string) (*PreparedStatement, bool) {
	if c.maxSize == 0 {
		return nil, false
	}
	key := normalizeSQL(sql)
	ps, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.lifetime > 0 && time.Since(ps.preparedAt) > c.lifetime {
		c.remove(key)
		return nil, false
	}
	c.touch(key)
	return ps, true
}

// touch moves key to the back of order, marking it most-recently-used.
func (c *statementCache) touch(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.order = append(c.order, key)
}

// put registers ps in the cache, evicting the least-recently-used entry if
// the cache is full. It returns the name of an evicted statement that
// needs a CLOSE sent for it (empty string if nothing was evicted).
func (c *statementCache) put(ps *PreparedStatement) (evicted string) {
	if c.maxSize == 0 {
		return ""
	}
	key := normalizeSQL(ps.SQL)
	if _, exists := c.entries[key]; exists {
		// Re-preparing the same SQL text: the new entry replaces the old
		// one (last write wins) and touch promotes the key to
		// most-recently-used. The replaced statement's name is not
		// returned, so no CLOSE is sent for it.
		c.entries[key] = ps
		c.touch(key)
		return ""
	}
	if len(c.entries) >= c.maxSize {
		lruKey := c.order[0]
		c.order = c.order[1:]
		lru := c.entries[lruKey]
		delete(c.entries, lruKey)
		evicted = lru.Name
	}
	c.order = append(c.order, key)
	c.entries[key] = ps
	return evicted
}

func (c *statementCache) remove(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// preparedAtNow stamps the statement's preparation time, used for
// lifetime-based expiry in statementCache.get.
func (ps *PreparedStatement) preparedAtNow() { ps.preparedAt = time.Now() }

// nextStatementName returns a fresh server-side statement name distinct
// from every name this cache has ever issued.
func (c *statementCache) nextStatementName() string {
	c.nextID++
	return "pgx_stmt_" + strconv.Itoa(c.nextID)
}

// allNames returns every statement name currently cached. Nothing in this
// package calls it; Conn.Close does not send CLOSE for cached statements.
func (c *statementCache) allNames() []string {
	names := make([]string, 0, len(c.entries))
	for _, ps := range c.entries {
		names = append(names, ps.Name)
	}
	return names
}
