package search

import (
	"sync"
	"sync/atomic"
)

// Aggregator collects matches for one traversal. Append may be called from
// any worker; Snapshot and Count may be called at any time for progress.
type Aggregator struct {
	mu       sync.RWMutex
	items    []Item
	seen     map[string]struct{}
	dedupe   bool
	count    atomic.Int64
	progress chan<- Progress
}

// AggregatorOption customizes an Aggregator
type AggregatorOption func(*Aggregator)

// WithDedupe drops items whose id was already collected
func WithDedupe() AggregatorOption {
	return func(a *Aggregator) {
		a.dedupe = true
		a.seen = make(map[string]struct{})
	}
}

// WithProgress sets the channel Report sends to. Sends never block; a full
// channel just misses that update.
func WithProgress(ch chan<- Progress) AggregatorOption {
	return func(a *Aggregator) {
		a.progress = ch
	}
}

// NewAggregator creates an empty result collector
func NewAggregator(opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Append adds item and reports whether it was kept
func (a *Aggregator) Append(item Item) bool {
	a.mu.Lock()
	if a.dedupe {
		if _, dup := a.seen[item.ID]; dup {
			a.mu.Unlock()
			return false
		}
		a.seen[item.ID] = struct{}{}
	}
	a.items = append(a.items, item)
	a.count.Add(1)
	a.mu.Unlock()
	return true
}

// Snapshot returns a copy of the matches collected so far
func (a *Aggregator) Snapshot() []Item {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]Item, len(a.items))
	copy(out, a.items)
	return out
}

// Count returns the number of matches without taking the lock
func (a *Aggregator) Count() int {
	return int(a.count.Load())
}

// Report forwards a complete progress snapshot. Append never reports on its
// own because it only knows the match count.
func (a *Aggregator) Report(p Progress) {
	if a.progress == nil {
		return
	}
	select {
	case a.progress <- p:
	default:
	}
}
