package types

import (
	"encoding/binary"
	"sync/atomic"

	"golang.org/x/crypto/blake2b"
)

// Header is the unit the chain processor reasons about. Everything beyond
// PreviousHash, Sequence, and Payload is opaque to the engine.
type Header struct {
	PreviousHash Hash
	Sequence     uint64
	Payload      []byte

	hash atomic.Pointer[Hash]
}

// NewHeader constructs a Header. The hash is computed lazily on first call
// to Hash.
func NewHeader(previousHash Hash, sequence uint64, payload []byte) *Header {
	return &Header{
		PreviousHash: previousHash,
		Sequence:     sequence,
		Payload:      payload,
	}
}

// Hash returns the header's identity, computed as blake2b-256 over the
// previous hash, sequence, and payload. The result is cached after the
// first call.
func (h *Header) Hash() Hash {
	if cached := h.hash.Load(); cached != nil {
		return *cached
	}
	hash := computeHeaderHash(h)
	h.hash.Store(&hash)
	return hash
}

func computeHeaderHash(h *Header) Hash {
	digest, err := blake2b.New256(nil)
	if err != nil {
		panic(err)
	}
	digest.Write(h.PreviousHash.Bytes())
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], h.Sequence)
	digest.Write(seq[:])
	digest.Write(h.Payload)
	return BytesToHash(digest.Sum(nil))
}

// IsGenesis reports whether h has no parent, i.e. PreviousHash is the zero
// sentinel.
func (h *Header) IsGenesis() bool {
	return h.PreviousHash.IsZero()
}
