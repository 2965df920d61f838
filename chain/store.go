// Package chain implements the chain-following reorganization engine: given
// a Store that exposes a mutable header DAG, Processor turns head movements
// into a linearized stream of add/remove events.
package chain

import "github.com/cyberomanov/ironfish/types"

// Store is the read-only view of the canonical block header chain the
// Processor consumes. Implementations must return a self-consistent header
// from Head on every call but are free to let the canonical chain move
// between calls; Processor is built to absorb that.
type Store interface {
	// Genesis returns the chain's genesis header. Constant for the
	// lifetime of the Store.
	Genesis() *types.Header

	// Head returns the currently canonical tip.
	Head() *types.Header

	// GetHeader looks up a header by hash.
	GetHeader(hash types.Hash) (*types.Header, bool)

	// IterateFrom walks backward along parent pointers from start toward
	// stop, which must be an ancestor of start. Yields start first, stop
	// last.
	IterateFrom(start, stop *types.Header, inclusive bool) HeaderIterator

	// IterateTo walks forward along the canonical chain from start to
	// stop, which must be a descendant of start on the branch that is
	// canonical at the time of the call. Yields start first, stop last.
	IterateTo(start, stop *types.Header, inclusive bool) HeaderIterator
}

// HeaderIterator is a lazy, finite sequence of headers. Callers drive it
// with Next and read the current element with Header, following the
// bufio.Scanner convention: Next returns false both at normal exhaustion
// and on error, and Err distinguishes the two.
type HeaderIterator interface {
	// Next advances the iterator. It returns false when iteration is
	// exhausted or has failed; callers must check Err to tell which.
	Next() bool

	// Header returns the header at the iterator's current position. Valid
	// only after a call to Next that returned true.
	Header() *types.Header

	// Err returns the first error encountered during iteration, if any.
	Err() error
}
