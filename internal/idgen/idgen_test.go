package idgen

import (
	"strings"
	"testing"
)

func TestUUIDv7Unique(t *testing.T) {
	gen := UUIDv7()
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := gen()
		if seen[id] {
			t.Fatalf("duplicate ID: %s", id)
		}
		seen[id] = true
		if len(id) != 36 {
			t.Fatalf("unexpected UUID length: %q", id)
		}
	}
}

func TestPrefixed(t *testing.T) {
	gen := Prefixed("cyc_", Default)
	id := gen()
	if !strings.HasPrefix(id, "cyc_") {
		t.Errorf("missing prefix: %q", id)
	}
}
