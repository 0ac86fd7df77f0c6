// Package source implements the catalog sites books are downloaded from.
// Every site resolves a book into an ordered list of direct download links
// and hands them to a shared transfer step that probes, names, writes and
// records the file.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	liberrors "github.com/lepinkainen/libris/internal/errors"
	"github.com/lepinkainen/libris/internal/ledger"
	"github.com/lepinkainen/libris/internal/metadata"
	"github.com/lepinkainen/libris/internal/worklist"
)

// ErrNoDownload is returned by Download when every candidate failed.
var ErrNoDownload = errors.New("no candidate could be downloaded")

// Source is one catalog site.
type Source interface {
	Name() string
	// ResolveCandidates turns a site-specific reference (an MD5 for Libgen,
	// a book page path for the scraped sites) into direct download links.
	ResolveCandidates(ctx context.Context, ref string) ([]string, error)
	// Download fetches the first candidate that works into the download
	// directory and records it in the ledger.
	Download(ctx context.Context, bookID string, candidates []string) (*Outcome, error)
	// Attempt runs the whole site flow for one book with a confirmed identity.
	Attempt(ctx context.Context, item worklist.Item, id *metadata.Identity) (bool, error)
}

// Outcome describes a successful Download.
type Outcome struct {
	Link     string
	Filepath string
	// AlreadyPresent is set when nothing was fetched because the file was
	// already on disk.
	AlreadyPresent bool
	// Recorded is set when this call wrote a ledger row.
	Recorded bool
}

// Ledger is the subset of the download ledger the sources need.
type Ledger interface {
	IsDownloaded(ctx context.Context, bookID string) (bool, error)
	Lookup(ctx context.Context, bookID string) (*ledger.Record, error)
	Record(ctx context.Context, rec ledger.Record) error
	EnsureRecorded(ctx context.Context, rec ledger.Record) (bool, error)
}

// Resolver confirms the identity of a search result.
type Resolver interface {
	Resolve(ctx context.Context, query string) (*metadata.Identity, error)
}

// Deps are the collaborators shared by every source.
type Deps struct {
	Ledger      Ledger
	Resolver    Resolver
	DownloadDir string
	// HTTPClient overrides the per-source client. When nil each source gets
	// its own client with Timeout.
	HTTPClient *http.Client
	Timeout    time.Duration
	UserAgent  string
	Logger     *slog.Logger
}

func (d Deps) client() *http.Client {
	if d.HTTPClient != nil {
		return d.HTTPClient
	}
	return &http.Client{Timeout: d.Timeout}
}

func (d Deps) logger(name string) *slog.Logger {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("source", name)
}

// fetcher issues the page and API requests of one source.
type fetcher struct {
	name      string
	client    *http.Client
	userAgent string
}

func (f *fetcher) do(ctx context.Context, method, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("building %s request for %s: %w", method, target, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	return f.client.Do(req)
}

// get performs a GET and turns a non-2xx status into a SourceUnavailableError.
// The caller closes the body.
func (f *fetcher) get(ctx context.Context, target string) (*http.Response, error) {
	resp, err := f.do(ctx, http.MethodGet, target)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &liberrors.SourceUnavailableError{Source: f.name, URL: target, Reason: err.Error()}
	}
	if !isSuccess(resp.StatusCode) {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		return nil, liberrors.NewSourceUnavailableError(f.name, target, resp.StatusCode)
	}
	return resp, nil
}

func (f *fetcher) getDocument(ctx context.Context, target string) (*goquery.Document, error) {
	resp, err := f.get(ctx, target)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", target, err)
	}
	return doc, nil
}

func (f *fetcher) getJSON(ctx context.Context, target string, v any) error {
	resp, err := f.get(ctx, target)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &liberrors.SourceUnavailableError{Source: f.name, URL: target, Reason: "invalid JSON: " + err.Error()}
	}
	return nil
}

func isSuccess(status int) bool {
	return status >= 200 && status <= 299
}

// resolveURL makes href absolute relative to base. Unparseable hrefs are
// returned unchanged.
func resolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	h, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(h).String()
}

// SearchResult is one hit on a scraped catalog search page.
type SearchResult struct {
	Title   string
	Href    string
	Authors []string
	// ISBN is only filled by sites that publish it on the result row.
	ISBN string
}

// confirm reports whether query resolves to isbn through the resolver.
func confirm(ctx context.Context, resolver Resolver, logger *slog.Logger, query, isbn string) bool {
	if resolver == nil {
		return false
	}
	id, err := resolver.Resolve(ctx, query)
	if err != nil {
		logger.Debug("Could not confirm search result", "query", query, "error", err)
		return false
	}
	if id.ISBN != isbn {
		logger.Debug("Rejected search result, ISBN mismatch", "query", query, "want", isbn, "got", id.ISBN)
		return false
	}
	return true
}
