package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/lepinkainen/libris/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLedger(t *testing.T, env *testutil.TestEnv) *Ledger {
	t.Helper()
	l, err := Open(context.Background(), env.Path("books.db"), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestIsDownloadedRequiresFileOnDisk(t *testing.T) {
	env := testutil.NewTestEnv(t)
	l := openTestLedger(t, env)
	ctx := context.Background()

	ok, err := l.IsDownloaded(ctx, "1DuneFrank Herbert")
	require.NoError(t, err)
	assert.False(t, ok, "no record yet")

	path := env.Path("books", "Dune.epub")
	require.NoError(t, l.Record(ctx, Record{BookID: "1DuneFrank Herbert", Link: "http://m/Dune.epub", Filepath: path}))

	ok, err = l.IsDownloaded(ctx, "1DuneFrank Herbert")
	require.NoError(t, err)
	assert.False(t, ok, "record exists but file is missing")

	env.WriteFileString("books/Dune.epub", "epub")

	ok, err = l.IsDownloaded(ctx, "1DuneFrank Herbert")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRecordLatestWins(t *testing.T) {
	env := testutil.NewTestEnv(t)
	l := openTestLedger(t, env)
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, Record{BookID: "b", Link: "old", Filepath: "/old"}))
	require.NoError(t, l.Record(ctx, Record{BookID: "b", Link: "new", Filepath: "/new"}))

	records, err := l.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "new", records[0].Link)
	assert.Equal(t, "/new", records[0].Filepath)
	assert.False(t, records[0].RecordedAt.IsZero())
}

func TestEnsureRecordedIsIdempotent(t *testing.T) {
	env := testutil.NewTestEnv(t)
	l := openTestLedger(t, env)
	ctx := context.Background()

	inserted, err := l.EnsureRecorded(ctx, Record{BookID: "b", Link: "first", Filepath: "/first"})
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = l.EnsureRecorded(ctx, Record{BookID: "b", Link: "second", Filepath: "/second"})
	require.NoError(t, err)
	assert.False(t, inserted)

	rec, err := l.Lookup(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "first", rec.Link)
}

func TestLookupNotFound(t *testing.T) {
	env := testutil.NewTestEnv(t)
	l := openTestLedger(t, env)

	_, err := l.Lookup(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStale(t *testing.T) {
	env := testutil.NewTestEnv(t)
	l := openTestLedger(t, env)
	ctx := context.Background()

	env.WriteFileString("present.pdf", "x")
	require.NoError(t, l.Record(ctx, Record{BookID: "present", Filepath: env.Path("present.pdf")}))
	require.NoError(t, l.Record(ctx, Record{BookID: "gone", Filepath: env.Path("gone.pdf")}))

	stale, err := l.Stale(ctx)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "gone", stale[0].BookID)
}

func TestOpenUpgradesLegacyLedger(t *testing.T) {
	env := testutil.NewTestEnv(t)
	path := env.Path("books.db")

	legacy, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = legacy.Exec("create table downloaded (book_id text, link text, filepath text)")
	require.NoError(t, err)
	for _, row := range [][]string{
		{"a", "a-old", "/a-old"},
		{"b", "b-only", "/b"},
		{"a", "a-new", "/a-new"},
	} {
		_, err = legacy.Exec("insert into downloaded values (?, ?, ?)", row[0], row[1], row[2])
		require.NoError(t, err)
	}
	require.NoError(t, legacy.Close())

	l, err := Open(context.Background(), path, slog.Default())
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	records, err := l.List(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	a, err := l.Lookup(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "a-new", a.Link)
	assert.True(t, a.RecordedAt.IsZero())

	// the unique index now rejects duplicates at the storage layer
	inserted, err := l.EnsureRecorded(context.Background(), Record{BookID: "a", Link: "x"})
	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestOpenTwiceKeepsData(t *testing.T) {
	env := testutil.NewTestEnv(t)
	path := env.Path("books.db")
	ctx := context.Background()

	first, err := Open(ctx, path, slog.Default())
	require.NoError(t, err)
	require.NoError(t, first.Record(ctx, Record{BookID: "b", Link: "l", Filepath: "/f", RecordedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}))
	require.NoError(t, first.Close())

	second, err := Open(ctx, path, slog.Default())
	require.NoError(t, err)
	defer func() { _ = second.Close() }()

	rec, err := second.Lookup(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), rec.RecordedAt)
}

func TestConcurrentRecordsKeepOneRowPerBook(t *testing.T) {
	env := testutil.NewTestEnv(t)
	l := openTestLedger(t, env)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				assert.NoError(t, l.Record(ctx, Record{BookID: fmt.Sprintf("book-%d", j), Link: fmt.Sprintf("w%d", i)}))
			}
		}(i)
	}
	wg.Wait()

	records, err := l.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 10)
}
