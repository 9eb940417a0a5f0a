package search

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregator_ConcurrentAppend(t *testing.T) {
	agg := NewAggregator()

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := range 100 {
				agg.Append(Item{ID: fmt.Sprintf("%d-%d", w, i)})
				_ = agg.Count()
				_ = agg.Snapshot()
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 800, agg.Count())
	assert.Len(t, agg.Snapshot(), 800)
}

func TestAggregator_SnapshotIsACopy(t *testing.T) {
	agg := NewAggregator()
	agg.Append(Item{ID: "a", Name: "a.png"})

	snap := agg.Snapshot()
	snap[0].Name = "changed"
	agg.Append(Item{ID: "b"})

	require.Len(t, snap, 1)
	assert.Equal(t, "a.png", agg.Snapshot()[0].Name)
}

func TestAggregator_Dedupe(t *testing.T) {
	plain := NewAggregator()
	assert.True(t, plain.Append(Item{ID: "x"}))
	assert.True(t, plain.Append(Item{ID: "x"}))
	assert.Equal(t, 2, plain.Count())

	deduped := NewAggregator(WithDedupe())
	assert.True(t, deduped.Append(Item{ID: "x"}))
	assert.False(t, deduped.Append(Item{ID: "x"}))
	assert.True(t, deduped.Append(Item{ID: "y"}))
	assert.Equal(t, 2, deduped.Count())
}

func TestAggregator_Progress(t *testing.T) {
	ch := make(chan Progress, 1)
	agg := NewAggregator(WithProgress(ch))

	agg.Append(Item{ID: "1"})
	agg.Append(Item{ID: "2"})
	assert.Empty(t, ch, "appends carry no folder counts and are not reported")

	agg.Report(Progress{Matches: 2, ContainersVisited: 1})
	agg.Report(Progress{Matches: 2, ContainersVisited: 2}) // buffer full, update dropped

	p := <-ch
	assert.Equal(t, Progress{Matches: 2, ContainersVisited: 1}, p)
	assert.Empty(t, ch)

	NewAggregator().Report(Progress{Matches: 1}) // no channel
}
