package search

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
)

// Engine walks a remote container tree and collects matching leaves. It holds
// no state between Search calls; every call is its own traversal generation.
type Engine struct {
	fetcher  *PageFetcher
	workers  int
	policy   ErrorPolicy
	timeout  time.Duration
	dedupe   bool
	exclude  []string
	progress chan<- Progress
	logger   zerolog.Logger
}

// EngineOption customizes an Engine
type EngineOption func(*Engine)

// WithWorkers bounds the number of concurrent container fetches. One worker
// gives a strict depth-first visiting order.
func WithWorkers(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithErrorPolicy sets the per-container failure policy
func WithErrorPolicy(p ErrorPolicy) EngineOption {
	return func(e *Engine) {
		if p != nil {
			e.policy = p
		}
	}
}

// WithTimeout applies a budget to the whole traversal, not single fetches
func WithTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithResultDedupe drops leaves whose id was already collected
func WithResultDedupe(on bool) EngineOption {
	return func(e *Engine) {
		e.dedupe = on
	}
}

// WithExcludePatterns prunes containers and drops leaves whose names match
// any gitignore-style pattern
func WithExcludePatterns(patterns ...string) EngineOption {
	return func(e *Engine) {
		e.exclude = append(e.exclude, patterns...)
	}
}

// WithProgressChannel receives incremental progress. Sends never block.
func WithProgressChannel(ch chan<- Progress) EngineOption {
	return func(e *Engine) {
		e.progress = ch
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates a traversal engine around fetcher with a worker count
// based on available CPU cores
func NewEngine(fetcher *PageFetcher, opts ...EngineOption) *Engine {
	// I/O bound: CPU cores * 2, at least 4, at most 32
	workers := min(max(runtime.NumCPU()*2, 4), 32)

	e := &Engine{
		fetcher: fetcher,
		workers: workers,
		policy:  Classifying(),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// traversal is the state of one Search call
type traversal struct {
	engine *Engine
	policy ErrorPolicy
	query  SearchQuery
	queue  *workQueue
	agg    *Aggregator
	filter *nameFilter
	stats  *traversalStats
	log    zerolog.Logger
	cancel context.CancelFunc

	interrupted atomic.Int64

	mu           sync.Mutex
	skipped      []SkippedContainer
	abortErr     error
	interruptErr error
}

// Search crawls the tree below q.Root. It never panics on store failures:
// per-container errors end up in Result.Skipped, an abort or cancellation in
// Result.Err, and partial matches are always returned.
func (e *Engine) Search(ctx context.Context, q SearchQuery) *Result {
	gen := uuid.New()
	res := &Result{Generation: gen, Query: q}

	if err := q.validate(); err != nil {
		res.Err = err
		return res
	}
	if q.Leaf == nil {
		q.Leaf = IsImage
		res.Query.Leaf = IsImage
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if e.timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, e.timeout)
		defer cancelTimeout()
	}

	aggOpts := []AggregatorOption{WithProgress(e.progress)}
	if e.dedupe {
		aggOpts = append(aggOpts, WithDedupe())
	}

	t := &traversal{
		engine: e,
		policy: forTraversal(e.policy),
		query:  q,
		queue:  newWorkQueue(),
		agg:    NewAggregator(aggOpts...),
		filter: newNameFilter(e.exclude),
		stats:  newTraversalStats(),
		cancel: cancel,
		log: e.logger.With().
			Str("generation", gen.String()).
			Str("root", string(q.Root)).
			Logger(),
	}

	stop := context.AfterFunc(runCtx, t.queue.close)
	defer stop()

	t.log.Debug().
		Str("fragment", q.Fragment).
		Int("workers", e.workers).
		Int("page_size", e.fetcher.PageSize()).
		Msg("starting traversal")

	t.queue.push(q.Root)

	p := pool.New().WithMaxGoroutines(e.workers).WithContext(runCtx)
	for range e.workers {
		p.Go(t.work)
	}
	_ = p.Wait() // workers report through the traversal state, never via errors

	t.finish(runCtx, res)
	return res
}

func (t *traversal) work(ctx context.Context) error {
	for {
		ref, ok := t.queue.pop()
		if !ok {
			return nil
		}
		t.visit(ctx, ref)
		t.queue.done()
	}
}

// visit drains every page of one container, classifies the children and
// hands failures to the error policy
func (t *traversal) visit(ctx context.Context, ref ContainerRef) {
	if err := ctx.Err(); err != nil {
		t.interrupt(ctx, err)
		return
	}

	pred := BuildPredicate(ref, t.query.Fragment)
	items, pages, err := t.engine.fetcher.Drain(ctx, pred)
	t.stats.pagesFetched.Add(int64(pages))

	// children enumerated before a failure are still real
	t.process(items)

	if err != nil {
		if IsCancellation(err) {
			t.interrupt(ctx, err)
			return
		}
		t.stats.errors.Add(1)
		t.fail(ref, err)
		return
	}

	t.stats.containersVisited.Add(1)
	containersVisited.Inc()
	if obs, ok := t.policy.(SuccessObserver); ok {
		obs.OnFetchSuccess(ref)
	}

	t.agg.Report(Progress{
		Matches:           t.agg.Count(),
		ContainersVisited: t.stats.containersVisited.Load(),
		Skipped:           t.skippedCount(),
	})
}

func (t *traversal) process(items []Item) {
	t.stats.itemsSeen.Add(int64(len(items)))

	for _, item := range items {
		if t.filter.excluded(item) {
			continue
		}
		if item.IsContainer() {
			t.queue.push(ContainerRef(item.ID))
			continue
		}
		// second, case-insensitive layer on top of the store's contains
		if !matchesFragment(item.Name, t.query.Fragment) || !t.query.Leaf(item) {
			continue
		}
		if t.agg.Append(item) {
			matchesFound.Inc()
		}
	}
}

func (t *traversal) fail(ref ContainerRef, err error) {
	if t.policy.OnFetchError(ref, err) == Abort {
		t.mu.Lock()
		first := t.abortErr == nil
		if first {
			t.abortErr = fmt.Errorf("%w: %w", ErrAborted, err)
		}
		t.mu.Unlock()

		if first {
			t.log.Error().Err(err).Str("container", string(ref)).Msg("aborting traversal")
		}
		t.queue.close()
		t.cancel()
		return
	}

	t.mu.Lock()
	t.skipped = append(t.skipped, SkippedContainer{Container: ref, Cause: err})
	t.mu.Unlock()
	containersSkipped.Inc()

	t.log.Warn().Err(err).Str("container", string(ref)).Msg("skipping container, its subtree stays unexplored")
}

// interrupt records a container cut short by cancellation or timeout. It is
// pending, not skipped. A fetch that gives up on the deadline before the
// context expires ends the traversal, since every later fetch would too.
func (t *traversal) interrupt(ctx context.Context, err error) {
	t.interrupted.Add(1)

	t.mu.Lock()
	if t.interruptErr == nil {
		t.interruptErr = err
	}
	t.mu.Unlock()

	if ctx.Err() == nil {
		t.log.Debug().Err(err).Msg("fetch gave up before the deadline, stopping traversal")
		t.queue.close()
		t.cancel()
	}
}

func (t *traversal) skippedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.skipped)
}

func (t *traversal) finish(runCtx context.Context, res *Result) {
	t.mu.Lock()
	res.Skipped = append([]SkippedContainer(nil), t.skipped...)
	res.Err = t.abortErr
	interruptErr := t.interruptErr
	t.mu.Unlock()

	res.Items = t.agg.Snapshot()
	res.Pending = t.queue.pending() + int(t.interrupted.Load())

	// a context that expires after the queue drained did not cut anything short
	if res.Err == nil && res.Pending > 0 {
		res.Err = interruptErr
		if res.Err == nil {
			res.Err = runCtx.Err()
		}
	}
	res.Complete = res.Err == nil && len(res.Skipped) == 0 && res.Pending == 0
	res.Stats = t.stats.snapshot(len(res.Items))

	observeTraversal(res)
	t.logSummary(res)
}

// logSummary logs traversal performance metrics
func (t *traversal) logSummary(res *Result) {
	ev := t.log.Info()
	if !res.Complete {
		ev = t.log.Warn()
	}

	duration := res.Stats.Duration
	ev = ev.
		Int64("containers", res.Stats.ContainersVisited).
		Int("discovered", t.queue.discovered()).
		Int64("pages", res.Stats.PagesFetched).
		Int64("items", res.Stats.ItemsSeen).
		Int64("matches", res.Stats.Matches).
		Int("skipped", len(res.Skipped)).
		Int("pending", res.Pending).
		Dur("duration", duration).
		Bool("complete", res.Complete)

	if secs := duration.Seconds(); secs > 0 {
		ev = ev.Float64("containers_per_sec", float64(res.Stats.ContainersVisited)/secs)
	}
	if res.Err != nil {
		ev = ev.Err(res.Err)
	}
	ev.Msg("traversal finished")
}
