package search

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dsearch_pages_fetched_total",
			Help: "Total number of list pages fetched from the store",
		},
		[]string{"store"},
	)

	fetchRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dsearch_fetch_retries_total",
			Help: "Total number of retried list requests",
		},
		[]string{"store"},
	)

	fetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dsearch_fetch_errors_total",
			Help: "Total number of list requests that failed after retries",
		},
		[]string{"store", "class"},
	)

	containersVisited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dsearch_containers_visited_total",
			Help: "Total number of containers whose children were listed",
		},
	)

	containersSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dsearch_containers_skipped_total",
			Help: "Total number of containers abandoned by the error policy",
		},
	)

	matchesFound = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dsearch_matches_total",
			Help: "Total number of matching leaves collected",
		},
	)

	traversalDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dsearch_traversal_duration_seconds",
			Help:    "Duration of whole traversals",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		},
		[]string{"outcome"},
	)
)

// traversalStats tracks counters while workers run
type traversalStats struct {
	containersVisited atomic.Int64
	pagesFetched      atomic.Int64
	itemsSeen         atomic.Int64
	errors            atomic.Int64
	start             time.Time
}

func newTraversalStats() *traversalStats {
	return &traversalStats{start: time.Now()}
}

func (s *traversalStats) snapshot(matches int) Stats {
	return Stats{
		ContainersVisited: s.containersVisited.Load(),
		PagesFetched:      s.pagesFetched.Load(),
		ItemsSeen:         s.itemsSeen.Load(),
		Matches:           int64(matches),
		Errors:            s.errors.Load(),
		Duration:          time.Since(s.start),
	}
}

func observeTraversal(r *Result) {
	outcome := "complete"
	switch {
	case r.Err != nil && IsCancellation(r.Err):
		outcome = "cancelled"
	case r.Err != nil:
		outcome = "aborted"
	case !r.Complete:
		outcome = "partial"
	}
	traversalDuration.WithLabelValues(outcome).Observe(r.Stats.Duration.Seconds())
}
