package cache

import "testing"

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c := New[string, int](2)
	var evicted []string
	c.OnEvict = func(k string, _ int) { evicted = append(evicted, k) }

	c.Add("a", 1)
	c.Add("b", 2)
	if _, ok := c.Get("a"); !ok { // a becomes MRU
		t.Fatalf("a missing")
	}
	c.Add("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatalf("b should have been evicted")
	}
	if len(evicted) != 1 || evicted[0] != "b" {
		t.Fatalf("OnEvict saw %v", evicted)
	}
	if v, _ := c.Get("a"); v != 1 {
		t.Fatalf("a = %d", v)
	}
	if c.Len() != 2 {
		t.Fatalf("Len = %d", c.Len())
	}
}

func TestLRU_UpdateAndRemove(t *testing.T) {
	c := New[string, int](2)
	c.Add("a", 1)
	c.Add("a", 5)
	if v, _ := c.Get("a"); v != 5 || c.Len() != 1 {
		t.Fatalf("update failed: v=%d len=%d", v, c.Len())
	}
	if !c.Remove("a") || c.Remove("a") {
		t.Fatalf("Remove semantics wrong")
	}
	c.Add("x", 1)
	c.Purge()
	if c.Len() != 0 {
		t.Fatalf("Purge left %d entries", c.Len())
	}
}

func TestLRU_PanicsOnZeroCapacity(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	New[string, int](0)
}
