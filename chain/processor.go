package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cyberomanov/ironfish/log"
	"github.com/cyberomanov/ironfish/metrics"
	"github.com/cyberomanov/ironfish/types"
)

// Error taxonomy. ErrStoreInconsistent is fatal: the cursor's universe is
// broken and the cursor is left untouched. ErrReorgTooDeep is returned
// before any event of the offending reorg is emitted. Handler failures are
// wrapped and returned as-is rather than a sentinel, since the caller needs
// the underlying cause.
var (
	ErrStoreInconsistent = errors.New("chain: store inconsistent")
	ErrReorgTooDeep      = errors.New("chain: reorg exceeds configured max depth")
)

// EventKind distinguishes the two event types the Processor emits.
type EventKind int

const (
	EventAdd EventKind = iota
	EventRemove
)

func (k EventKind) String() string {
	if k == EventAdd {
		return "add"
	}
	return "remove"
}

// Event pairs a kind with the header it concerns.
type Event struct {
	Kind   EventKind
	Header *types.Header
}

// Handler receives one event's header and returns when it has durably
// applied (or failed to apply) the corresponding state change. The
// Processor waits for completion before producing the next event.
type Handler func(ctx context.Context, h *types.Header) error

// Cursor is the Processor's recorded position on the canonical chain.
type Cursor struct {
	Seeded   bool
	Hash     types.Hash
	Sequence uint64
}

func (c Cursor) equal(o Cursor) bool {
	return c.Seeded == o.Seeded && c.Hash == o.Hash && c.Sequence == o.Sequence
}

// ReorgRecord describes one completed or partially-completed reorganization,
// kept for operator visibility.
type ReorgRecord struct {
	OldHead   types.Hash
	NewHead   types.Hash
	ForkHash  types.Hash
	Depth     uint64
	Timestamp int64
}

// ProcessorConfig configures a Processor.
type ProcessorConfig struct {
	// Logger receives reorg-lifecycle and event-trace log lines. Nil means
	// log.Default().Module("chain").
	Logger *log.Logger

	// Metrics receives event/reorg counters. Nil disables metrics.
	Metrics *metrics.Set

	// CursorHash seeds the cursor at construction. Nil means Unseeded: the
	// first Advance call bootstraps from genesis.
	CursorHash *types.Hash

	// MaxReorgDepth caps how many headers a single Advance call will unwind.
	// Zero means unlimited.
	MaxReorgDepth uint64
}

// DefaultProcessorConfig returns a config with no cursor seed, no metrics,
// the default logger, and an unlimited reorg depth.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{}
}

// AdvanceResult is returned from Advance.
type AdvanceResult struct {
	// CursorChanged reports whether the cursor moved relative to its value
	// when Advance was called.
	CursorChanged bool
}

// Processor maintains a cursor over a Store and, on each Advance call,
// emits a causally correct sequence of Remove-then-Add events reconciling
// the cursor with the Store's current head. Advance is not reentrant;
// concurrent callers are serialized behind an internal mutex, but parallel
// reconciliation requires separate Processor instances over the same Store.
type Processor struct {
	mu sync.Mutex

	store      Store
	forkFinder ForkFinder
	logger     *log.Logger
	metrics    *metrics.Set

	maxReorgDepth uint64

	cursor Cursor

	onAdd    []Handler
	onRemove []Handler

	reorgHistory      []ReorgRecord
	maxReorgDepthSeen uint64
}

// NewProcessor constructs a Processor over store. If store also implements
// ForkFinder it is used directly; otherwise an AncestryForkFinder wrapping
// store is built.
func NewProcessor(store Store, cfg ProcessorConfig) *Processor {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default().Module("chain")
	}

	var finder ForkFinder
	if ff, ok := store.(ForkFinder); ok {
		finder = ff
	} else {
		finder = NewAncestryForkFinder(store)
	}

	p := &Processor{
		store:         store,
		forkFinder:    finder,
		logger:        logger,
		metrics:       cfg.Metrics,
		maxReorgDepth: cfg.MaxReorgDepth,
	}
	if cfg.CursorHash != nil {
		genesis := store.Genesis()
		h, ok := store.GetHeader(*cfg.CursorHash)
		if !ok {
			// Caller claimed to have observed a hash the store doesn't
			// know about; treat as Unseeded rather than guessing a
			// sequence number.
			_ = genesis
			return p
		}
		p.cursor = Cursor{Seeded: true, Hash: h.Hash(), Sequence: h.Sequence}
	}
	return p
}

// OnAdd registers a handler invoked for every Add event, in registration
// order.
func (p *Processor) OnAdd(h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onAdd = append(p.onAdd, h)
}

// OnRemove registers a handler invoked for every Remove event, in
// registration order.
func (p *Processor) OnRemove(h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onRemove = append(p.onRemove, h)
}

// Cursor returns the Processor's current cursor.
func (p *Processor) Cursor() Cursor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// ReorgHistory returns the most recent reorgs, oldest first, up to limit.
func (p *Processor) ReorgHistory(limit int) []ReorgRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	if limit <= 0 || len(p.reorgHistory) == 0 {
		return nil
	}
	total := len(p.reorgHistory)
	start := 0
	if total > limit {
		start = total - limit
	}
	out := make([]ReorgRecord, total-start)
	copy(out, p.reorgHistory[start:])
	return out
}

// MaxReorgDepthSeen returns the deepest unwind this Processor has ever
// performed.
func (p *Processor) MaxReorgDepthSeen() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxReorgDepthSeen
}

// Advance performs one reconciliation pass against the Store's current
// head. It is not reentrant; concurrent calls on the same Processor block
// on an internal mutex rather than racing.
func (p *Processor) Advance(ctx context.Context) (AdvanceResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.metrics != nil {
		timer := metrics.NewTimer(p.metrics.AdvanceDuration)
		defer timer.Stop()
		p.metrics.Advances.Inc()
	}

	oldCursor := p.cursor

	if !p.cursor.Seeded {
		select {
		case <-ctx.Done():
			return AdvanceResult{CursorChanged: false}, nil
		default:
		}

		genesis := p.store.Genesis()
		if err := p.emit(ctx, EventAdd, genesis); err != nil {
			return AdvanceResult{CursorChanged: false}, err
		}
		p.cursor = Cursor{Seeded: true, Hash: genesis.Hash(), Sequence: genesis.Sequence}
	}

	target := p.store.Head()

	if target.Hash() == p.cursor.Hash {
		return AdvanceResult{CursorChanged: !oldCursor.equal(p.cursor)}, nil
	}

	current, ok := p.store.GetHeader(p.cursor.Hash)
	if !ok {
		return AdvanceResult{CursorChanged: !oldCursor.equal(p.cursor)}, fmt.Errorf("%w: cursor hash %s not found", ErrStoreInconsistent, p.cursor.Hash)
	}

	result := p.forkFinder.FindFork(current, target)
	if result.Fork == nil {
		p.logger.Warn("disjoint fork: no common ancestor", "cursor", current.Hash(), "target", target.Hash())
		return AdvanceResult{CursorChanged: !oldCursor.equal(p.cursor)}, nil
	}
	fork := result.Fork

	if !result.IsLinear {
		depth := current.Sequence - fork.Sequence
		if p.maxReorgDepth > 0 && depth > p.maxReorgDepth {
			return AdvanceResult{}, fmt.Errorf("%w: depth %d exceeds limit %d", ErrReorgTooDeep, depth, p.maxReorgDepth)
		}

		p.logger.Warn("reorg begin", "from", current.Hash(), "to", target.Hash(), "fork", fork.Hash(), "depth", depth)

		it := p.store.IterateFrom(current, fork, true)
		for it.Next() {
			h := it.Header()
			if h.Hash() == fork.Hash() {
				continue
			}

			select {
			case <-ctx.Done():
				return AdvanceResult{CursorChanged: !oldCursor.equal(p.cursor)}, nil
			default:
			}

			if err := p.emit(ctx, EventRemove, h); err != nil {
				return AdvanceResult{CursorChanged: !oldCursor.equal(p.cursor)}, err
			}
			p.cursor = Cursor{Seeded: true, Hash: h.PreviousHash, Sequence: h.Sequence - 1}
		}
		if it.Err() != nil {
			return AdvanceResult{CursorChanged: !oldCursor.equal(p.cursor)}, fmt.Errorf("%w: %v", ErrStoreInconsistent, it.Err())
		}

		p.recordReorg(current.Hash(), target.Hash(), fork.Hash(), depth)
		p.logger.Info("reorg complete", "fork", fork.Hash(), "new_head", target.Hash(), "depth", depth)
	}

	it := p.store.IterateTo(fork, target, true)
	for it.Next() {
		h := it.Header()
		if h.Hash() == fork.Hash() {
			continue
		}

		select {
		case <-ctx.Done():
			return AdvanceResult{CursorChanged: !oldCursor.equal(p.cursor)}, nil
		default:
		}

		if err := p.emit(ctx, EventAdd, h); err != nil {
			return AdvanceResult{CursorChanged: !oldCursor.equal(p.cursor)}, err
		}
		p.cursor = Cursor{Seeded: true, Hash: h.Hash(), Sequence: h.Sequence}
	}
	if it.Err() != nil {
		return AdvanceResult{CursorChanged: !oldCursor.equal(p.cursor)}, fmt.Errorf("%w: %v", ErrStoreInconsistent, it.Err())
	}

	if p.metrics != nil {
		p.metrics.CursorSequence.Set(int64(p.cursor.Sequence))
	}

	return AdvanceResult{CursorChanged: !oldCursor.equal(p.cursor)}, nil
}

// emit delivers h to every handler registered for kind, in order, and
// short-circuits on the first failure (the recommended but unmandated
// policy for handler failures, per the engine's error-handling design).
func (p *Processor) emit(ctx context.Context, kind EventKind, h *types.Header) error {
	handlers := p.onAdd
	if kind == EventRemove {
		handlers = p.onRemove
	}

	p.logger.Debug("emit", "kind", kind, "hash", h.Hash(), "sequence", h.Sequence)

	for _, handler := range handlers {
		if err := handler(ctx, h); err != nil {
			return fmt.Errorf("chain: %s handler failed for %s: %w", kind, h.Hash(), err)
		}
	}

	if p.metrics != nil {
		if kind == EventAdd {
			p.metrics.EventsAdded.Inc()
		} else {
			p.metrics.EventsRemoved.Inc()
		}
	}
	return nil
}

func (p *Processor) recordReorg(oldHead, newHead, fork types.Hash, depth uint64) {
	p.reorgHistory = append(p.reorgHistory, ReorgRecord{
		OldHead:   oldHead,
		NewHead:   newHead,
		ForkHash:  fork,
		Depth:     depth,
		Timestamp: time.Now().Unix(),
	})
	if depth > p.maxReorgDepthSeen {
		p.maxReorgDepthSeen = depth
	}
	if p.metrics != nil {
		p.metrics.Reorgs.Inc()
		p.metrics.LastReorgDepth.Set(int64(depth))
	}
}
