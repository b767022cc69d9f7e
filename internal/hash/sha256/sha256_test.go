package sha256

import "testing"

func TestHashMatchesKnownDigest(t *testing.T) {
	t.Parallel()
	h := New()
	got, err := h.Hash([]byte("hello"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got != want {
		t.Fatalf("digest mismatch: got %s want %s", got, want)
	}
}

func TestHexIsDeterministic(t *testing.T) {
	t.Parallel()
	if Hex([]byte("a")) != Hex([]byte("a")) {
		t.Fatalf("same input must produce same digest")
	}
	if Hex([]byte("a")) == Hex([]byte("b")) {
		t.Fatalf("different inputs must produce different digests")
	}
}
