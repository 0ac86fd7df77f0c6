package source

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"testing"

	"github.com/lepinkainen/libris/internal/ledger"
	"github.com/lepinkainen/libris/internal/metadata"
	"github.com/lepinkainen/libris/internal/testutil"
	"github.com/lepinkainen/libris/internal/worklist"
	"github.com/stretchr/testify/require"
)

var dune = worklist.Item{Row: 1, Entry: worklist.Entry{Title: "Dune", Author: "Frank Herbert"}}

const duneISBN = "9780441013593"

type fakeResolver struct {
	mu      sync.Mutex
	isbns   map[string]string
	queries []string
}

func (f *fakeResolver) Resolve(_ context.Context, query string) (*metadata.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	isbn, ok := f.isbns[query]
	if !ok {
		return nil, metadata.ErrNoMatch
	}
	return &metadata.Identity{ISBN: isbn, Title: query}, nil
}

func (f *fakeResolver) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

// hits counts requests per method and path.
type hits struct {
	mu     sync.Mutex
	counts map[string]int
}

func (h *hits) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		if h.counts == nil {
			h.counts = map[string]int{}
		}
		h.counts[r.Method+" "+r.URL.Path]++
		h.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (h *hits) get(key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counts[key]
}

type testBed struct {
	env    *testutil.TestEnv
	ledger *ledger.Ledger
	deps   Deps
}

func newTestBed(t *testing.T, resolver Resolver) *testBed {
	t.Helper()

	env := testutil.NewTestEnv(t)
	l, err := ledger.Open(context.Background(), env.Path("books.db"), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	return &testBed{
		env:    env,
		ledger: l,
		deps: Deps{
			Ledger:      l,
			Resolver:    resolver,
			DownloadDir: env.MkdirAll("books"),
			HTTPClient:  &http.Client{},
			Logger:      slog.Default(),
		},
	}
}

func (b *testBed) records(t *testing.T) []ledger.Record {
	t.Helper()
	records, err := b.ledger.List(context.Background())
	require.NoError(t, err)
	return records
}

// failingLedger accepts reads but refuses writes.
type failingLedger struct {
	*ledger.Ledger
}

var errDiskFull = errors.New("database or disk is full")

func (f failingLedger) Record(context.Context, ledger.Record) error {
	return errDiskFull
}

func (f failingLedger) EnsureRecorded(context.Context, ledger.Record) (bool, error) {
	return false, errDiskFull
}

// serveBook serves a downloadable file, optionally with a Content-Disposition name.
func serveBook(filename, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if filename != "" {
			w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write([]byte(body))
	}
}
