package chain

import "github.com/cyberomanov/ironfish/types"

// ForkResult is the outcome of a fork search between two header positions.
type ForkResult struct {
	// Fork is the lowest common ancestor of the two positions. Nil means
	// the positions belong to disjoint trees.
	Fork *types.Header

	// IsLinear is true iff Fork equals one of the two input positions,
	// i.e. one position is a direct ancestor of the other and no
	// reorganization is required.
	IsLinear bool
}

// ForkFinder locates the lowest common ancestor of two header positions.
type ForkFinder interface {
	FindFork(a, b *types.Header) ForkResult
}

// AncestryForkFinder implements ForkFinder by walking parent pointers
// through a Store: first bringing both headers to the same sequence, then
// walking both back in lockstep until their hashes match.
type AncestryForkFinder struct {
	store Store
}

// NewAncestryForkFinder returns a ForkFinder backed by store.
func NewAncestryForkFinder(store Store) *AncestryForkFinder {
	return &AncestryForkFinder{store: store}
}

// FindFork implements ForkFinder.
func (f *AncestryForkFinder) FindFork(a, b *types.Header) ForkResult {
	if a == nil || b == nil {
		return ForkResult{}
	}

	x, y := a, b

	for x.Sequence > y.Sequence {
		parent, ok := f.store.GetHeader(x.PreviousHash)
		if !ok {
			return ForkResult{}
		}
		x = parent
	}
	for y.Sequence > x.Sequence {
		parent, ok := f.store.GetHeader(y.PreviousHash)
		if !ok {
			return ForkResult{}
		}
		y = parent
	}

	for x.Hash() != y.Hash() {
		if x.Sequence == 0 {
			return ForkResult{}
		}
		xParent, ok := f.store.GetHeader(x.PreviousHash)
		if !ok {
			return ForkResult{}
		}
		yParent, ok := f.store.GetHeader(y.PreviousHash)
		if !ok {
			return ForkResult{}
		}
		x, y = xParent, yParent
	}

	return ForkResult{
		Fork:     x,
		IsLinear: x.Hash() == a.Hash() || x.Hash() == b.Hash(),
	}
}
