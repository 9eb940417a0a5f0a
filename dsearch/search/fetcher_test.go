package search

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) FetcherOption {
	return WithRetry(RetryConfig{MaxAttempts: attempts, InitialWait: time.Millisecond, MaxWait: 2 * time.Millisecond})
}

// pagedLister serves pages of a fixed size keyed by cursor "p<n>"
func pagedLister(total, size int) ListerFunc {
	return func(_ context.Context, pred Predicate, _ int, cursor string) (Page, error) {
		start := 0
		if cursor != "" {
			if _, err := fmt.Sscanf(cursor, "p%d", &start); err != nil {
				return Page{}, Fatal(pred.Parent, err)
			}
		}
		end := min(start+size, total)

		page := Page{}
		for i := start; i < end; i++ {
			page.Items = append(page.Items, Item{ID: fmt.Sprintf("item-%d", i), Name: fmt.Sprintf("img-%d.png", i)})
		}
		if end < total {
			page.NextCursor = fmt.Sprintf("p%d", end)
		}
		return page, nil
	}
}

func TestPageFetcher_DrainFollowsCursors(t *testing.T) {
	f := NewPageFetcher(pagedLister(25, 10))

	items, pages, err := f.Drain(context.Background(), BuildPredicate("root", "img"))

	require.NoError(t, err)
	assert.Equal(t, 3, pages)
	require.Len(t, items, 25)
	assert.Equal(t, "item-0", items[0].ID)
	assert.Equal(t, "item-24", items[24].ID)
}

func TestPageFetcher_PageSize(t *testing.T) {
	var got atomic.Int64
	lister := ListerFunc(func(_ context.Context, _ Predicate, size int, _ string) (Page, error) {
		got.Store(int64(size))
		return Page{}, nil
	})

	tests := []struct {
		name string
		opt  FetcherOption
		want int
	}{
		{"default is the cap", nil, MaxPageSize},
		{"smaller page", WithPageSize(50), 50},
		{"capped", WithPageSize(5000), MaxPageSize},
		{"zero ignored", WithPageSize(0), MaxPageSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []FetcherOption
			if tt.opt != nil {
				opts = append(opts, tt.opt)
			}
			f := NewPageFetcher(lister, opts...)

			_, err := f.Fetch(context.Background(), BuildPredicate("root", "x"), "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.PageSize())
			assert.EqualValues(t, tt.want, got.Load())
		})
	}
}

func TestPageFetcher_RetriesTransientFailures(t *testing.T) {
	var attempts atomic.Int32
	lister := ListerFunc(func(_ context.Context, pred Predicate, _ int, _ string) (Page, error) {
		if attempts.Add(1) < 3 {
			return Page{}, Transient(pred.Parent, errors.New("503"))
		}
		return Page{Items: []Item{{ID: "1", Name: "ok.png"}}}, nil
	})

	page, err := NewPageFetcher(lister, fastRetry(3)).Fetch(context.Background(), BuildPredicate("root", "ok"), "")

	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.EqualValues(t, 3, attempts.Load())
}

func TestPageFetcher_GivesUpAfterMaxAttempts(t *testing.T) {
	var attempts atomic.Int32
	lister := ListerFunc(func(_ context.Context, _ Predicate, _ int, _ string) (Page, error) {
		attempts.Add(1)
		return Page{}, errors.New("dial tcp: connection refused")
	})

	_, err := NewPageFetcher(lister, fastRetry(4)).Fetch(context.Background(), BuildPredicate("root", "x"), "")

	require.Error(t, err)
	assert.True(t, IsTransient(err), "unclassified network errors are transient")
	assert.EqualValues(t, 4, attempts.Load())
}

func TestPageFetcher_FatalIsNotRetried(t *testing.T) {
	var attempts atomic.Int32
	lister := ListerFunc(func(_ context.Context, pred Predicate, _ int, _ string) (Page, error) {
		attempts.Add(1)
		return Page{}, Fatal(pred.Parent, errors.New("insufficient permissions"))
	})

	_, err := NewPageFetcher(lister, fastRetry(5)).Fetch(context.Background(), BuildPredicate("root", "x"), "")

	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.EqualValues(t, 1, attempts.Load())

	var fe *FatalFetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, ContainerRef("root"), fe.Container)
}

func TestPageFetcher_CursorLoopIsFatal(t *testing.T) {
	lister := ListerFunc(func(_ context.Context, _ Predicate, _ int, cursor string) (Page, error) {
		return Page{Items: []Item{{ID: "x" + cursor}}, NextCursor: "same"}, nil
	})

	items, pages, err := NewPageFetcher(lister).Drain(context.Background(), BuildPredicate("root", "x"))

	require.ErrorIs(t, err, ErrCursorLoop)
	assert.True(t, IsFatal(err))
	assert.Equal(t, 2, pages)
	assert.Len(t, items, 2, "pages fetched before the loop are returned")
}

func TestPageFetcher_DrainKeepsItemsBeforeFailure(t *testing.T) {
	lister := ListerFunc(func(_ context.Context, pred Predicate, _ int, cursor string) (Page, error) {
		if cursor == "" {
			return Page{Items: []Item{{ID: "first"}}, NextCursor: "next"}, nil
		}
		return Page{}, Fatal(pred.Parent, errors.New("gone"))
	})

	items, pages, err := NewPageFetcher(lister).Drain(context.Background(), BuildPredicate("root", "x"))

	require.Error(t, err)
	assert.Equal(t, 1, pages)
	assert.Equal(t, []Item{{ID: "first"}}, items)
}

func TestPageFetcher_Cancellation(t *testing.T) {
	var attempts atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	lister := ListerFunc(func(ctx context.Context, pred Predicate, _ int, _ string) (Page, error) {
		attempts.Add(1)
		cancel()
		return Page{}, Transient(pred.Parent, errors.New("timeout"))
	})

	_, err := NewPageFetcher(lister, fastRetry(10)).Fetch(ctx, BuildPredicate("root", "x"), "")

	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, IsCancellation(err))
	assert.EqualValues(t, 1, attempts.Load())
}

func TestPageFetcher_RateLimit(t *testing.T) {
	f := NewPageFetcher(pagedLister(30, 10), WithRateLimit(1000, 1))

	items, pages, err := f.Drain(context.Background(), BuildPredicate("root", "img"))
	require.NoError(t, err)
	assert.Equal(t, 3, pages)
	assert.Len(t, items, 30)

	t.Run("limiter honours context", func(t *testing.T) {
		slow := NewPageFetcher(pagedLister(1, 1), WithRateLimit(0.001, 1))
		_, err := slow.Fetch(context.Background(), BuildPredicate("root", "x"), "")
		require.NoError(t, err) // burst token

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err = slow.Fetch(ctx, BuildPredicate("root", "x"), "")
		require.Error(t, err)
		// the limiter gives up before the deadline passes; it still counts as a timeout
		assert.True(t, IsCancellation(err))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.False(t, IsTransient(err))
	})
}
