package kv

import (
	"reflect"
	"testing"
)

func TestMemory(t *testing.T) {
	var m Memory

	if _, ok, err := m.Get("missing"); ok || err != nil {
		t.Fatalf("Get(missing) = ok %v, err %v", ok, err)
	}
	if err := m.Remove("missing"); err != nil {
		t.Fatalf("Remove(missing): %v", err)
	}

	if err := m.Set("a:xp", "10"); err != nil {
		t.Fatal(err)
	}
	if err := m.Set("a:streak", "2"); err != nil {
		t.Fatal(err)
	}
	if err := m.Set("b:xp", "5"); err != nil {
		t.Fatal(err)
	}
	if err := m.Set("a:xp", "20"); err != nil {
		t.Fatal(err)
	}

	v, ok, err := m.Get("a:xp")
	if err != nil || !ok || v != "20" {
		t.Errorf("Get(a:xp) = %q, %v, %v", v, ok, err)
	}
	if got := m.Keys("a:"); !reflect.DeepEqual(got, []string{"a:streak", "a:xp"}) {
		t.Errorf("Keys(a:) = %v", got)
	}

	if err := m.Remove("a:xp"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := m.Get("a:xp"); ok {
		t.Error("a:xp should be removed")
	}
}

func TestMemoryImplementsStore(t *testing.T) {
	var _ Store = NewMemory()
	var _ Store = (*Redis)(nil)
}
