package registry

import (
	"fmt"
	"sync"
	"testing"
)

func TestNew(t *testing.T) {
	reg := New[int]()
	if reg == nil {
		t.Fatal("New returned nil")
	}
	if reg.Len() != 0 {
		t.Errorf("Expected empty registry, got %d entries", reg.Len())
	}
}

func TestRegistry_SetGet(t *testing.T) {
	reg := New[string]()

	reg.Set("timer-1", "a")
	reg.Set("sound-1", "b")

	val, ok := reg.Get("timer-1")
	if !ok {
		t.Fatal("Expected timer-1 to exist")
	}
	if val != "a" {
		t.Errorf("Expected 'a', got %q", val)
	}

	if _, ok := reg.Get("missing"); ok {
		t.Error("Expected Get to return false for a missing key")
	}
}

func TestRegistry_InsertionOrder(t *testing.T) {
	reg := New[int]()
	for i, key := range []string{"c", "a", "b"} {
		reg.Set(key, i)
	}
	reg.Set("a", 10) // replacing keeps position

	keys := reg.Keys()
	want := []string{"c", "a", "b"}
	if fmt.Sprint(keys) != fmt.Sprint(want) {
		t.Errorf("Expected keys %v, got %v", want, keys)
	}

	list := reg.List()
	if list[1].Key != "a" || list[1].Value != 10 {
		t.Errorf("Expected a=10 at index 1, got %s=%d", list[1].Key, list[1].Value)
	}
}

func TestRegistry_Delete(t *testing.T) {
	reg := New[int]()
	reg.Set("a", 1)
	reg.Set("b", 2)
	reg.Set("c", 3)

	val, ok := reg.Delete("b")
	if !ok || val != 2 {
		t.Errorf("Expected to delete b=2, got %d (%v)", val, ok)
	}
	if reg.Has("b") {
		t.Error("Expected b to be gone")
	}
	if _, ok := reg.Delete("b"); ok {
		t.Error("Expected second delete to report false")
	}
	if fmt.Sprint(reg.Keys()) != "[a c]" {
		t.Errorf("Expected [a c], got %v", reg.Keys())
	}
}

func TestRegistry_Clear(t *testing.T) {
	reg := New[int]()
	reg.Set("a", 1)
	reg.Set("b", 2)

	removed := reg.Clear()
	if len(removed) != 2 || removed[0].Key != "a" {
		t.Errorf("Expected [a b] back, got %v", removed)
	}
	if reg.Len() != 0 {
		t.Errorf("Expected empty registry, got %d", reg.Len())
	}
}

func TestRegistry_Concurrent(t *testing.T) {
	reg := New[int]()
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("w-%d-%d", n, j)
				reg.Set(key, j)
				reg.Get(key)
				reg.Has(key)
			}
		}(i)
	}
	wg.Wait()

	if reg.Len() != 1000 {
		t.Errorf("Expected 1000 entries, got %d", reg.Len())
	}
	if len(reg.Keys()) != 1000 {
		t.Errorf("Expected 1000 keys, got %d", len(reg.Keys()))
	}
}
