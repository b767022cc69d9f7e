package uuid

import (
	"testing"

	guuid "github.com/google/uuid"
)

func TestNewIDProducesValidV7(t *testing.T) {
	t.Parallel()
	g := New()
	raw, err := g.NewID()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	parsed, err := guuid.Parse(raw)
	if err != nil {
		t.Fatalf("generated ID does not parse: %v", err)
	}
	if parsed.Version() != 7 {
		t.Fatalf("expected version 7, got %d", parsed.Version())
	}
}

func TestNewIDIsUnique(t *testing.T) {
	t.Parallel()
	g := New()
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id, err := g.NewID()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate ID generated: %s", id)
		}
		seen[id] = struct{}{}
	}
}
