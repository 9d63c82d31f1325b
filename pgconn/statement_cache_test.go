package pgconn

import "testing"

func TestStatementCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := newStatementCache(2, 0)

	evicted := c.put(&PreparedStatement{Name: "s1", SQL: "SELECT 1"})
	if evicted != "" {
		t.Fatalf("unexpected eviction on first put: %q", evicted)
	}
	evicted = c.put(&PreparedStatement{Name: "s2", SQL: "SELECT 2"})
	if evicted != "" {
		t.Fatalf("unexpected eviction on second put: %q", evicted)
	}

	// Touch s1 so it becomes the most-recently-used entry, leaving s2 as
	// the least-recently-used one despite being registered after s1.
	if _, ok := c.get("SELECT 1"); !ok {
		t.Fatal("expected SELECT 1 to be cached")
	}

	evicted = c.put(&PreparedStatement{Name: "s3", SQL: "SELECT 3"})
	if evicted != "s2" {
		t.Fatalf("evicted = %q, want s2 (least recently used, not oldest-registered)", evicted)
	}
	if _, ok := c.get("SELECT 1"); !ok {
		t.Fatal("SELECT 1 should survive eviction: it was the most recently used")
	}
	if _, ok := c.get("SELECT 2"); ok {
		t.Fatal("SELECT 2 should have been evicted")
	}
}

func TestStatementCacheReinsertTouchesRecency(t *testing.T) {
	c := newStatementCache(2, 0)
	c.put(&PreparedStatement{Name: "s1", SQL: "SELECT 1"})
	c.put(&PreparedStatement{Name: "s2", SQL: "SELECT 2"})

	// Re-preparing SELECT 1's text (without an intervening get) should
	// also promote it to most-recently-used.
	evicted := c.put(&PreparedStatement{Name: "s1b", SQL: "SELECT 1"})
	if evicted != "" {
		t.Fatalf("re-registering existing SQL should not evict: got %q", evicted)
	}

	evicted = c.put(&PreparedStatement{Name: "s3", SQL: "SELECT 3"})
	if evicted != "s2" {
		t.Fatalf("evicted = %q, want s2", evicted)
	}
	if ps, ok := c.get("SELECT 1"); !ok || ps.Name != "s1b" {
		t.Fatalf("expected SELECT 1 to be cached as s1b, got %+v, ok=%v", ps, ok)
	}
}

func TestStatementCacheZeroSizeBypassesCache(t *testing.T) {
	c := newStatementCache(0, 0)
	if evicted := c.put(&PreparedStatement{Name: "s1", SQL: "SELECT 1"}); evicted != "" {
		t.Fatalf("unexpected eviction with maxSize=0: %q", evicted)
	}
	if _, ok := c.get("SELECT 1"); ok {
		t.Fatal("cache with maxSize=0 should never hit")
	}
}

func TestStatementCacheNextStatementNameIsSequentialAndUnique(t *testing.T) {
	c := newStatementCache(100, 0)
	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		name := c.nextStatementName()
		if seen[name] {
			t.Fatalf("duplicate statement name %q", name)
		}
		seen[name] = true
	}
	if got, want := c.nextStatementName(), "pgx_stmt_6"; got != want {
		t.Fatalf("nextStatementName = %q, want %q", got, want)
	}
}
