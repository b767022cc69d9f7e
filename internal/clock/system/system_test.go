package system

import (
	"testing"
	"time"
)

func TestNowIsUTCAndDoesNotGoBackwards(t *testing.T) {
	t.Parallel()
	c := New()
	first := c.Now()
	if first.Location() != time.UTC {
		t.Fatalf("expected UTC time, got %v", first.Location())
	}
	second := c.Now()
	if second.Before(first) {
		t.Fatalf("clock went backwards: %v then %v", first, second)
	}
}
