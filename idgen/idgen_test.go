package idgen

import (
	"strings"
	"testing"
)

func TestUUIDv7_Format(t *testing.T) {
	id := UUIDv7()()
	parts := strings.Split(id, "-")
	if len(parts) != 5 {
		t.Fatalf("UUIDv7: expected 5 parts, got %d in %q", len(parts), id)
	}
	if len(id) != 36 {
		t.Fatalf("UUIDv7: expected length 36, got %d", len(id))
	}
	if parts[2][0] != '7' {
		t.Fatalf("UUIDv7: version nibble %q, want 7", parts[2][0])
	}
}

func TestUUIDv7_Sortable(t *testing.T) {
	gen := UUIDv7()
	prev := gen()
	for i := 0; i < 100; i++ {
		id := gen()
		if id <= prev {
			t.Fatalf("UUIDv7: %q not after %q", id, prev)
		}
		prev = id
	}
}

func TestPrefixed(t *testing.T) {
	gen := Prefixed("run_", func() string { return "abc" })
	if got := gen(); got != "run_abc" {
		t.Fatalf("Prefixed: got %q, want %q", got, "run_abc")
	}
}

func TestNew_UsesDefault(t *testing.T) {
	orig := Default
	defer func() { Default = orig }()
	Default = func() string { return "fixed" }
	if got := New(); got != "fixed" {
		t.Fatalf("New: got %q", got)
	}
}
