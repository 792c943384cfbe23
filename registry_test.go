package recordcache

import (
	"errors"
	"testing"
)

func TestRegistryBindAndGet(t *testing.T) {
	r := NewRegistry()
	s := newTestStore(t)

	if err := r.Bind("users", s); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}

	got, ok := r.Get("users")
	if !ok || got != s {
		t.Error("Get should return the bound store")
	}
	if _, ok := r.Get("orders"); ok {
		t.Error("Get should miss for unbound names")
	}
}

func TestRegistryBindDuplicate(t *testing.T) {
	r := NewRegistry()
	s := newTestStore(t)

	if err := r.Bind("users", s); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if err := r.Bind("users", s); !errors.Is(err, ErrAlreadyBound) {
		t.Fatalf("Expected ErrAlreadyBound, got %v", err)
	}
}

func TestRegistryUnbind(t *testing.T) {
	r := NewRegistry()
	s := newTestStore(t)

	if err := r.Bind("users", s); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if err := r.Unbind("users"); err != nil {
		t.Fatalf("Unbind failed: %v", err)
	}
	if _, ok := r.Get("users"); ok {
		t.Error("Unbound store should be gone")
	}

	if err := r.Unbind("users"); !IsNotFound(err) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestRegistryNamesSorted(t *testing.T) {
	r := NewRegistry()
	s := newTestStore(t)

	for _, name := range []string{"orders", "users", "items"} {
		if err := r.Bind(name, s); err != nil {
			t.Fatalf("Bind(%s) failed: %v", name, err)
		}
	}

	want := []string{"items", "orders", "users"}
	got := r.Names()
	if len(got) != len(want) {
		t.Fatalf("Expected %d names, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
