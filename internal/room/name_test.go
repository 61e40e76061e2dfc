package room

import (
	"strings"
	"testing"
)

func TestNewID(t *testing.T) {
	seen := make(map[string]bool)
	for range 20 {
		id := NewID()
		if parts := strings.Split(id, "-"); len(parts) != 4 {
			t.Fatalf("expected four words, got %q", id)
		}
		seen[id] = true
	}
	if len(seen) < 2 {
		t.Error("ids should vary")
	}
}
