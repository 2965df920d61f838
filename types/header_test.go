package types

import "testing"

func TestHeader_HashIsStableAndCached(t *testing.T) {
	h := NewHeader(Hash{}, 0, []byte("genesis"))

	h1 := h.Hash()
	h2 := h.Hash()
	if h1 != h2 {
		t.Fatalf("hash not stable across calls: %s vs %s", h1, h2)
	}
}

func TestHeader_HashDistinguishesPayload(t *testing.T) {
	a := NewHeader(Hash{}, 1, []byte("a"))
	b := NewHeader(Hash{}, 1, []byte("b"))
	if a.Hash() == b.Hash() {
		t.Fatal("distinct payloads produced the same hash")
	}
}

func TestHeader_HashDistinguishesSequence(t *testing.T) {
	a := NewHeader(Hash{}, 1, []byte("x"))
	b := NewHeader(Hash{}, 2, []byte("x"))
	if a.Hash() == b.Hash() {
		t.Fatal("distinct sequences produced the same hash")
	}
}

func TestHeader_HashDistinguishesParent(t *testing.T) {
	a := NewHeader(HexToHash("0x01"), 1, []byte("x"))
	b := NewHeader(HexToHash("0x02"), 1, []byte("x"))
	if a.Hash() == b.Hash() {
		t.Fatal("distinct previous hashes produced the same hash")
	}
}

func TestHeader_IsGenesis(t *testing.T) {
	genesis := NewHeader(Hash{}, 0, nil)
	if !genesis.IsGenesis() {
		t.Fatal("header with zero previous hash should be genesis")
	}

	child := NewHeader(genesis.Hash(), 1, nil)
	if child.IsGenesis() {
		t.Fatal("header with non-zero previous hash should not be genesis")
	}
}
