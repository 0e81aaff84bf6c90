package hashing

import "testing"

func TestContentHashDeterministic(t *testing.T) {
	a := ContentHash([]byte("package main\n"))
	b := ContentHash([]byte("package main\n"))
	if a != b {
		t.Errorf("same input hashed differently: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
	if c := ContentHash([]byte("package main")); c == a {
		t.Error("different inputs produced the same hash")
	}
}

func TestShortIDPartSeparation(t *testing.T) {
	// Concatenation-equal part lists must still produce distinct ids.
	if ShortID("ab", "c") == ShortID("a", "bc") {
		t.Error("part boundaries not encoded")
	}
	if ShortID("unit", "a.go") != ShortID("unit", "a.go") {
		t.Error("ShortID not deterministic")
	}
	if len(ShortID("x")) != 32 {
		t.Errorf("id length = %d, want 32 hex chars", len(ShortID("x")))
	}
}

func TestBucket(t *testing.T) {
	if got := Bucket("anything", 0); got != 0 {
		t.Errorf("Bucket with zero buckets = %d, want 0", got)
	}
	seen := make(map[int]bool)
	for _, s := range []string{"alpha", "beta", "gamma", "delta", "epsilon"} {
		b := Bucket(s, 16)
		if b < 0 || b >= 16 {
			t.Fatalf("Bucket(%q) = %d out of range", s, b)
		}
		if Bucket(s, 16) != b {
			t.Errorf("Bucket(%q) not deterministic", s)
		}
		seen[b] = true
	}
	if len(seen) < 2 {
		t.Error("all inputs collapsed into one bucket")
	}
}
