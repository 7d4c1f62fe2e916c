package cmap

import (
	"fmt"
	"sync"
	"testing"
)

func TestNew(t *testing.T) {
	m := New[string, int]()
	if m == nil {
		t.Fatal("New() returned nil")
	}
	if len(m.shards) != DefaultShardCount {
		t.Errorf("shard count = %d, want %d", len(m.shards), DefaultShardCount)
	}
}

func TestNewWithShards(t *testing.T) {
	tests := []struct {
		input    int
		expected int
	}{
		{0, DefaultShardCount},
		{-1, DefaultShardCount},
		{3, DefaultShardCount},
		{1, 1},
		{2, 2},
		{8, 8},
		{32, 32},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("shards=%d", tt.input), func(t *testing.T) {
			m := NewWithShards[string, int](tt.input)
			if m.ShardCount() != tt.expected {
				t.Errorf("NewWithShards(%d) shard count = %d, want %d",
					tt.input, m.ShardCount(), tt.expected)
			}
		})
	}
}

func TestSetAndGet(t *testing.T) {
	m := New[string, int]()

	m.Set("key1", 100)
	m.Set("key2", 200)

	val, ok := m.Get("key1")
	if !ok || val != 100 {
		t.Errorf("Get(key1) = (%d, %v), want (100, true)", val, ok)
	}

	val, ok = m.Get("key2")
	if !ok || val != 200 {
		t.Errorf("Get(key2) = (%d, %v), want (200, true)", val, ok)
	}

	if _, ok := m.Get("missing"); ok {
		t.Error("Get(missing) should not be found")
	}
}

func TestDeleteAndHas(t *testing.T) {
	m := New[string, int]()
	m.Set("key", 1)

	if !m.Has("key") {
		t.Fatal("Has(key) = false after Set")
	}
	m.Delete("key")
	if m.Has("key") {
		t.Error("Has(key) = true after Delete")
	}
}

func TestCountAndClear(t *testing.T) {
	m := New[int, int]()
	for i := 0; i < 100; i++ {
		m.Set(i, i)
	}
	if m.Count() != 100 {
		t.Errorf("Count() = %d, want 100", m.Count())
	}

	m.Clear()
	if m.Count() != 0 {
		t.Errorf("Count() after Clear = %d, want 0", m.Count())
	}
}

func TestKeyFunc(t *testing.T) {
	type id [4]byte
	calls := 0
	m := NewWithKeyFunc[id, string](4, func(k id) []byte {
		calls++
		return k[:]
	})

	a, b := id{1, 2, 3, 4}, id{4, 3, 2, 1}
	m.Set(a, "a")
	m.Set(b, "b")

	if v, _ := m.Get(a); v != "a" {
		t.Errorf("Get(a) = %q", v)
	}
	if v, _ := m.Get(b); v != "b" {
		t.Errorf("Get(b) = %q", v)
	}
	if calls == 0 {
		t.Error("key func was never called")
	}
}

func TestShardDistribution(t *testing.T) {
	m := NewWithShards[int, int](4)
	for i := 0; i < 1000; i++ {
		m.Set(i, i)
	}

	for i, s := range m.shards {
		if len(s.items) == 0 {
			t.Errorf("shard %d is empty after 1000 keys", i)
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	m := New[int, int]()
	var wg sync.WaitGroup
	numGoroutines := 50
	numOps := 500

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for j := 0; j < numOps; j++ {
				key := base*numOps + j
				m.Set(key, j)
				m.Get(key)
				m.Has(key)
			}
		}(i)
	}
	wg.Wait()

	if m.Count() != numGoroutines*numOps {
		t.Errorf("Count() = %d, want %d", m.Count(), numGoroutines*numOps)
	}
}
