package lru

import (
	"strconv"
	"testing"
	"time"
)

func TestIndexEvictsLeastRecentlyUsed(t *testing.T) {
	idx := New[int](3)
	idx.Put("a", 1)
	idx.Put("b", 2)
	idx.Put("c", 3)

	if _, ok := idx.Get("a"); !ok {
		t.Fatalf("expected a to be present")
	}

	evicted := idx.Put("d", 4)
	if len(evicted) != 1 || evicted[0].Key != "b" {
		t.Fatalf("expected b to be evicted, got %+v", evicted)
	}
	if idx.Len() != 3 {
		t.Fatalf("expected len 3, got %d", idx.Len())
	}
	if _, ok := idx.Peek("b"); ok {
		t.Fatalf("b should be gone")
	}
}

func TestIndexPeekDoesNotRefreshRecency(t *testing.T) {
	idx := New[string](2)
	idx.Put("a", "1")
	idx.Put("b", "2")
	idx.Peek("a")

	evicted := idx.Put("c", "3")
	if len(evicted) != 1 || evicted[0].Key != "a" {
		t.Fatalf("peek must not bump recency, evicted %+v", evicted)
	}
}

func TestIndexPutExistingReplacesValue(t *testing.T) {
	idx := New[int](2)
	idx.Put("a", 1)
	idx.Put("b", 2)
	if evicted := idx.Put("a", 10); evicted != nil {
		t.Fatalf("replacing must not evict, got %+v", evicted)
	}
	if v, _ := idx.Peek("a"); v != 10 {
		t.Fatalf("expected replaced value 10, got %d", v)
	}
	evicted := idx.Put("c", 3)
	if len(evicted) != 1 || evicted[0].Key != "b" {
		t.Fatalf("expected b to be evicted after replacing a, got %+v", evicted)
	}
}

func TestIndexLastAccessedUsesClock(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	idx := New[int](1, WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}))

	idx.Put("a", 1)
	idx.Get("a")
	evicted := idx.Put("b", 2)
	if len(evicted) != 1 || !evicted[0].LastAccessed.Equal(base.Add(2*time.Second)) {
		t.Fatalf("get should refresh last access, evicted %+v", evicted)
	}
}

func TestIndexUnboundedWhenCapacityZero(t *testing.T) {
	idx := New[int](0)
	for i := 0; i < 1000; i++ {
		idx.Put(strconv.Itoa(i), i)
	}
	if idx.Len() != 1000 {
		t.Fatalf("expected 1000 entries, got %d", idx.Len())
	}
}

func TestIndexClearAndRemove(t *testing.T) {
	idx := New[int](5)
	idx.Put("a", 1)
	idx.Put("b", 2)
	if !idx.Remove("a") {
		t.Fatalf("remove should report existing key")
	}
	if idx.Remove("a") {
		t.Fatalf("second remove should report missing key")
	}
	idx.Clear()
	idx.Clear()
	if idx.Len() != 0 || len(idx.Values()) != 0 {
		t.Fatalf("expected empty index after clear")
	}
}
