package search

import (
	"sync"
)

// Decision is the ErrorPolicy verdict for one failed container
type Decision int

const (
	Skip Decision = iota
	Abort
)

func (d Decision) String() string {
	if d == Abort {
		return "abort"
	}
	return "skip"
}

// ErrorPolicy decides, per failed container fetch, whether the traversal
// carries on without that subtree or stops altogether.
// Implementations must be safe for concurrent use.
type ErrorPolicy interface {
	OnFetchError(container ContainerRef, err error) Decision
}

// SuccessObserver is implemented by policies that track failure streaks
type SuccessObserver interface {
	OnFetchSuccess(container ContainerRef)
}

// TraversalScoped is implemented by policies that keep state while a
// traversal runs. The engine asks for a fresh copy at the start of every
// Search, so nothing leaks from one call into the next.
type TraversalScoped interface {
	NewTraversal() ErrorPolicy
}

// forTraversal returns the policy instance one traversal should use
func forTraversal(p ErrorPolicy) ErrorPolicy {
	if s, ok := p.(TraversalScoped); ok {
		return s.NewTraversal()
	}
	return p
}

type skipAll struct{}

// SkipAll always skips and keeps going
func SkipAll() ErrorPolicy { return skipAll{} }

func (skipAll) OnFetchError(ContainerRef, error) Decision { return Skip }

type classifying struct{}

// Classifying aborts on fatal errors, which would likely recur on every
// remaining container, and skips everything else
func Classifying() ErrorPolicy { return classifying{} }

func (classifying) OnFetchError(_ ContainerRef, err error) Decision {
	if IsFatal(err) {
		return Abort
	}
	return Skip
}

// ConsecutiveFailurePolicy escalates to Abort after a streak of failures so a
// systemic outage does not look like per-folder noise
type ConsecutiveFailurePolicy struct {
	inner ErrorPolicy
	limit int

	mu     sync.Mutex
	streak int
}

// WithMaxConsecutive wraps inner. A limit <= 0 disables escalation.
func WithMaxConsecutive(inner ErrorPolicy, limit int) *ConsecutiveFailurePolicy {
	if inner == nil {
		inner = SkipAll()
	}
	return &ConsecutiveFailurePolicy{inner: inner, limit: limit}
}

func (p *ConsecutiveFailurePolicy) OnFetchError(container ContainerRef, err error) Decision {
	p.mu.Lock()
	p.streak++
	streak := p.streak
	p.mu.Unlock()

	if d := p.inner.OnFetchError(container, err); d == Abort {
		return Abort
	}
	if p.limit > 0 && streak >= p.limit {
		return Abort
	}
	return Skip
}

func (p *ConsecutiveFailurePolicy) OnFetchSuccess(container ContainerRef) {
	p.mu.Lock()
	p.streak = 0
	p.mu.Unlock()

	if obs, ok := p.inner.(SuccessObserver); ok {
		obs.OnFetchSuccess(container)
	}
}

// NewTraversal returns a copy with an empty streak
func (p *ConsecutiveFailurePolicy) NewTraversal() ErrorPolicy {
	return &ConsecutiveFailurePolicy{inner: forTraversal(p.inner), limit: p.limit}
}

// PolicyFromMode maps a config mode onto a policy
func PolicyFromMode(mode string, maxConsecutive int) ErrorPolicy {
	var base ErrorPolicy
	switch mode {
	case "skip":
		base = SkipAll()
	default:
		base = Classifying()
	}
	if maxConsecutive > 0 {
		return WithMaxConsecutive(base, maxConsecutive)
	}
	return base
}
