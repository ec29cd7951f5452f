package core

import "testing"

func TestSha256Deterministic(t *testing.T) {
	type payload struct {
		A int
		B string
	}
	p := payload{A: 1, B: "x"}

	h1 := Sha256(p)
	h2 := Sha256(p)
	if h1 != h2 {
		t.Fatalf("Sha256 not deterministic: %s != %s", h1, h2)
	}
	if len(h1) != 64 {
		t.Fatalf("expected a 64-char hex digest, got %d chars", len(h1))
	}
}

func TestSha256DistinguishesContent(t *testing.T) {
	type payload struct{ A int }
	if Sha256(payload{A: 1}) == Sha256(payload{A: 2}) {
		t.Fatal("distinct payloads hashed to the same digest")
	}
}

func TestSumHashCommutative(t *testing.T) {
	a := Sha256("a")
	b := Sha256("b")
	if SumHash(a, b) != SumHash(b, a) {
		t.Fatal("SumHash is not commutative")
	}
}

func TestSumHashDistinguishesPairs(t *testing.T) {
	a, b, c := Sha256("a"), Sha256("b"), Sha256("c")
	if SumHash(a, b) == SumHash(a, c) {
		t.Fatal("distinct pairs produced the same combined hash")
	}
}
