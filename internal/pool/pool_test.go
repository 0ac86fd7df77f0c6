package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/lepinkainen/libris/internal/acquire"
	liberrors "github.com/lepinkainen/libris/internal/errors"
	"github.com/lepinkainen/libris/internal/worklist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeItems(n int) []worklist.Item {
	items := make([]worklist.Item, n)
	for i := range items {
		items[i] = worklist.Item{Row: i + 1, Entry: worklist.Entry{Title: fmt.Sprintf("Book %d", i), Author: "A"}}
	}
	return items
}

func TestPartitionCoverage(t *testing.T) {
	for _, m := range []int{0, 1, 5, 12, 13} {
		for _, n := range []int{1, 2, 4, 7, 20} {
			t.Run(fmt.Sprintf("m=%d,n=%d", m, n), func(t *testing.T) {
				indices := make([]int, m)
				for i := range indices {
					indices[i] = i
				}

				parts := Partition(indices, n)
				require.Len(t, parts, n)

				var seen []int
				for k, part := range parts {
					for j, idx := range part {
						assert.Equal(t, k+j*n, idx, "partition %d is interleaved", k)
					}
					seen = append(seen, part...)
				}
				sort.Ints(seen)
				assert.Equal(t, indices, append([]int{}, seen...))
			})
		}
	}
}

func TestPartitionNonPositiveWorkers(t *testing.T) {
	parts := Partition([]string{"a", "b"}, 0)
	assert.Equal(t, [][]string{{"a", "b"}}, parts)
}

type recordingProcessor struct {
	mu      sync.Mutex
	seen    map[string]int
	failIDs map[string]bool
	okIDs   map[string]bool
}

func (r *recordingProcessor) Process(_ context.Context, item worklist.Item) acquire.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen == nil {
		r.seen = map[string]int{}
	}
	r.seen[item.ID()]++

	result := acquire.Result{BookID: item.ID(), Title: item.Entry.Title, Status: acquire.Exhausted}
	if r.okIDs[item.ID()] {
		result.Status = acquire.Success
		result.Source = "libgen"
	}
	if r.failIDs[item.ID()] {
		result.Err = liberrors.NewLedgerWriteError(item.ID(), "/x", errors.New("locked"))
	}
	return result
}

func TestPoolProcessesEveryItemOnce(t *testing.T) {
	items := makeItems(10)
	proc := &recordingProcessor{
		okIDs:   map[string]bool{items[0].ID(): true, items[3].ID(): true},
		failIDs: map[string]bool{items[5].ID(): true},
	}

	p := New(proc, 3, slog.Default())
	require.NoError(t, p.Start(context.Background(), items))
	summary, err := p.Wait()
	require.NoError(t, err)

	assert.Len(t, proc.seen, 10)
	for id, n := range proc.seen {
		assert.Equal(t, 1, n, "item %s processed once", id)
	}

	assert.Equal(t, 10, summary.Total)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 8, summary.Exhausted)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 3, summary.Workers)

	require.Len(t, summary.Results, 10)
	for i, result := range summary.Results {
		assert.Equal(t, items[i].ID(), result.BookID, "results keep worklist order")
	}

	_, err = uuid.Parse(summary.RunID)
	assert.NoError(t, err)
	assert.False(t, summary.FinishedAt.Before(summary.StartedAt))
}

func TestPoolMoreWorkersThanItems(t *testing.T) {
	items := makeItems(2)
	proc := &recordingProcessor{}

	p := New(proc, 8, nil)
	require.NoError(t, p.Start(context.Background(), items))
	summary, err := p.Wait()
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
}

func TestPoolStartTwice(t *testing.T) {
	p := New(&recordingProcessor{}, 2, slog.Default())
	require.NoError(t, p.Start(context.Background(), makeItems(1)))
	assert.ErrorIs(t, p.Start(context.Background(), makeItems(1)), ErrAlreadyStarted)
	_, err := p.Wait()
	require.NoError(t, err)
}

func TestPoolWaitBeforeStart(t *testing.T) {
	_, err := New(&recordingProcessor{}, 2, slog.Default()).Wait()
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestPoolCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	proc := &recordingProcessor{}
	p := New(proc, 2, slog.Default())
	require.NoError(t, p.Start(ctx, makeItems(4)))
	summary, err := p.Wait()

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, summary.Total)
	assert.Empty(t, proc.seen)
}
