package cache

import (
	"errors"
	"testing"
	"time"
)

func TestSetAndGet(t *testing.T) {
	c := New()
	c.Set("user_data:profile:u1:abc", 42, time.Minute)

	v, ok := c.Get("user_data:profile:u1:abc")
	if !ok {
		t.Fatal("expected hit for freshly set key")
	}
	if v.(int) != 42 {
		t.Errorf("got %v, want 42", v)
	}

	if _, ok := c.Get("user_data:profile:u2:abc"); ok {
		t.Error("expected miss for unknown key")
	}
}

func TestGetEvictsExpiredEntry(t *testing.T) {
	c := New()
	c.Set("k", "v", time.Nanosecond)
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Fatal("expected miss for expired entry")
	}
	// The expired entry must be gone, not merely hidden.
	if stats := c.GetStats(); stats.TotalItems != 0 {
		t.Errorf("expired entry not evicted, total=%d", stats.TotalItems)
	}
}

func TestSetDefaultTTL(t *testing.T) {
	c := New()
	c.Set("k", "v", 0)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry with default TTL should be readable immediately")
	}
}

func TestConfiguredDefaultTTL(t *testing.T) {
	c := NewWithTTL(time.Nanosecond)
	c.Set("k", "v", 0)
	time.Sleep(5 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Fatal("entry should expire per the configured default TTL")
	}
}

func TestDelete(t *testing.T) {
	c := New()
	c.Set("k", "v", time.Minute)

	if !c.Delete("k") {
		t.Error("Delete should report true for present key")
	}
	if c.Delete("k") {
		t.Error("Delete should report false for absent key")
	}
	if _, ok := c.Get("k"); ok {
		t.Error("deleted key should miss")
	}
}

func TestInvalidateSubject(t *testing.T) {
	c := New()
	c.Set(Key(NamespaceUserData, "profile", "u1"), 1, time.Minute)
	c.Set(Key(NamespaceUserData, "redemption_history", "u1"), 2, time.Minute)
	c.Set(Key(NamespaceUserData, "profile", "u2"), 3, time.Minute)
	c.Set(Key(NamespaceAPIResponse, "statistics", "u1"), 4, time.Minute)

	removed := c.InvalidateSubject("u1")
	if removed != 3 {
		t.Errorf("removed %d entries, want 3", removed)
	}
	if _, ok := c.Get(Key(NamespaceUserData, "profile", "u2")); !ok {
		t.Error("other subject's entry should survive invalidation")
	}
}

func TestClear(t *testing.T) {
	c := New()
	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)
	c.Clear()

	if stats := c.GetStats(); stats.TotalItems != 0 {
		t.Errorf("cache not empty after Clear, total=%d", stats.TotalItems)
	}
}

func TestGetStats(t *testing.T) {
	c := New()
	c.Set("fresh", "value", time.Minute)
	c.Set("stale", "value", time.Nanosecond)
	time.Sleep(5 * time.Millisecond)

	stats := c.GetStats()
	if stats.TotalItems != 2 {
		t.Errorf("total=%d, want 2", stats.TotalItems)
	}
	if stats.ActiveItems != 1 {
		t.Errorf("active=%d, want 1", stats.ActiveItems)
	}
	if stats.ExpiredItems != 1 {
		t.Errorf("expired=%d, want 1", stats.ExpiredItems)
	}
	if stats.MemoryEstimate == 0 {
		t.Error("memory estimate should be non-zero with entries present")
	}
}

func TestKeyDeterministicAndArgSensitive(t *testing.T) {
	k1 := Key(NamespaceUserData, "history", "u1", 50)
	k2 := Key(NamespaceUserData, "history", "u1", 50)
	k3 := Key(NamespaceUserData, "history", "u1", 100)

	if k1 != k2 {
		t.Errorf("same inputs produced different keys: %s vs %s", k1, k2)
	}
	if k1 == k3 {
		t.Error("different args should produce different keys")
	}
}

func TestFetchReadThrough(t *testing.T) {
	c := New()
	calls := 0
	producer := func() (string, error) {
		calls++
		return "result", nil
	}

	v, err := Fetch(c, "k", time.Minute, producer)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if v != "result" {
		t.Errorf("got %q, want %q", v, "result")
	}

	// Second call is served from cache.
	if _, err := Fetch(c, "k", time.Minute, producer); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if calls != 1 {
		t.Errorf("producer called %d times, want 1", calls)
	}
}

func TestFetchProducerError(t *testing.T) {
	c := New()
	wantErr := errors.New("store down")

	_, err := Fetch(c, "k", time.Minute, func() (int, error) {
		return 0, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("got %v, want %v", err, wantErr)
	}

	// A failed producer must not poison the cache.
	if _, ok := c.Get("k"); ok {
		t.Error("failed fetch should not cache anything")
	}
}

func TestFetchNilCache(t *testing.T) {
	v, err := Fetch[int](nil, "k", time.Minute, func() (int, error) {
		return 7, nil
	})
	if err != nil {
		t.Fatalf("Fetch with nil cache: %v", err)
	}
	if v != 7 {
		t.Errorf("got %d, want 7", v)
	}
}

func TestFetchTypeDrift(t *testing.T) {
	c := New()
	c.Set("k", "a string", time.Minute)

	// Cached value has the wrong type for this call; producer must run and
	// the entry must be replaced.
	v, err := Fetch(c, "k", time.Minute, func() (int, error) {
		return 9, nil
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if v != 9 {
		t.Errorf("got %d, want 9", v)
	}

	cached, ok := c.Get("k")
	if !ok {
		t.Fatal("refilled entry should be present")
	}
	if cached.(int) != 9 {
		t.Errorf("cached %v, want 9", cached)
	}
}
