package source

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	liberrors "github.com/lepinkainen/libris/internal/errors"
	"github.com/lepinkainen/libris/internal/fileutil"
	"github.com/lepinkainen/libris/internal/ledger"
)

// transfer is the download step shared by every source.
type transfer struct {
	fetcher
	ledger    Ledger
	dir       string
	normalize func(string) string
	logger    *slog.Logger
}

func newTransfer(name string, deps Deps, normalize func(string) string) transfer {
	return transfer{
		fetcher:   fetcher{name: name, client: deps.client(), userAgent: deps.UserAgent},
		ledger:    deps.Ledger,
		dir:       deps.DownloadDir,
		normalize: normalize,
		logger:    deps.logger(name),
	}
}

// download tries candidates in order and stops at the first one that ends up
// on disk and in the ledger. A book the ledger already has on disk succeeds
// without any network traffic.
func (t *transfer) download(ctx context.Context, bookID string, candidates []string) (*Outcome, error) {
	logger := t.logger.With("book_id", bookID)

	done, err := t.ledger.IsDownloaded(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if done {
		out := &Outcome{AlreadyPresent: true}
		if rec, err := t.ledger.Lookup(ctx, bookID); err == nil {
			out.Link, out.Filepath = rec.Link, rec.Filepath
		}
		logger.Debug("Already downloaded", "path", out.Filepath)
		return out, nil
	}

	for _, link := range candidates {
		out, err := t.tryCandidate(ctx, logger, bookID, link)
		if err != nil {
			return nil, err
		}
		if out != nil {
			return out, nil
		}
	}

	logger.Error("Downloading item unsuccessful", "candidates", len(candidates))
	return nil, ErrNoDownload
}

// tryCandidate returns a nil Outcome and nil error when the candidate failed
// and the next one should be tried.
func (t *transfer) tryCandidate(ctx context.Context, logger *slog.Logger, bookID, link string) (*Outcome, error) {
	logger = logger.With("link", link)

	head, err := t.do(ctx, http.MethodHead, link)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Debug("Probe failed", "error", err)
		return nil, nil
	}
	_ = head.Body.Close()
	if !isSuccess(head.StatusCode) {
		logger.Debug("Probe rejected", "status", head.StatusCode)
		return nil, nil
	}

	name := fileutil.FilenameFromResponse(head.Header, link)
	if t.normalize != nil {
		name = t.normalize(name)
	}
	if name == "" {
		logger.Debug("No usable filename for candidate")
		return nil, nil
	}
	path := filepath.Join(t.dir, name)
	rec := ledger.Record{BookID: bookID, Link: link, Filepath: path}

	if fileutil.FileExists(path) {
		logger.Info("File already exists", "path", path)
		inserted, err := t.ledger.EnsureRecorded(ctx, rec)
		if err != nil {
			return nil, liberrors.NewLedgerWriteError(bookID, path, err)
		}
		return &Outcome{Link: link, Filepath: path, AlreadyPresent: true, Recorded: inserted}, nil
	}

	resp, err := t.do(ctx, http.MethodGet, link)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Debug("Fetch failed", "error", err)
		return nil, nil
	}
	defer func() { _ = resp.Body.Close() }()
	if !isSuccess(resp.StatusCode) {
		_, _ = io.Copy(io.Discard, resp.Body)
		logger.Debug("Fetch rejected", "status", resp.StatusCode)
		return nil, nil
	}

	if _, err := fileutil.WriteFileAtomic(path, resp.Body); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Error("Failed to save book", "path", path, "error", err)
		return nil, nil
	}
	logger.Info("Saved book", "path", path)

	if err := t.ledger.Record(ctx, rec); err != nil {
		return nil, liberrors.NewLedgerWriteError(bookID, path, err)
	}
	return &Outcome{Link: link, Filepath: path, Recorded: true}, nil
}
