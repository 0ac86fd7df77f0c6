package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/lepinkainen/libris/internal/config"
	liberrors "github.com/lepinkainen/libris/internal/errors"
	"github.com/lepinkainen/libris/internal/fileutil"
	"github.com/lepinkainen/libris/internal/metadata"
	"github.com/lepinkainen/libris/internal/worklist"
)

// PdfDrive scrapes pdfdrive search and book pages.
type PdfDrive struct {
	transfer
	baseURL  string
	resolver Resolver
}

// NewPdfDrive creates the PdfDrive source.
func NewPdfDrive(cfg config.SiteConfig, deps Deps) *PdfDrive {
	return &PdfDrive{
		transfer: newTransfer("pdfdrive", deps, fileutil.NormalizeColons),
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		resolver: deps.Resolver,
	}
}

func (p *PdfDrive) Name() string { return "pdfdrive" }

// Search returns the results of a site search. exact asks the site for exact
// matches only. Result blocks without a link or title are skipped.
func (p *PdfDrive) Search(ctx context.Context, query string, exact bool) ([]SearchResult, error) {
	target := fmt.Sprintf("%s/search?q=%s", p.baseURL, url.QueryEscape(query))
	if exact {
		target += "&em=1"
	}

	doc, err := p.getDocument(ctx, target)
	if err != nil {
		return nil, err
	}

	var results []SearchResult
	doc.Find("div.file-left").Each(func(_ int, s *goquery.Selection) {
		a := s.Find("a").First()
		href, ok := a.Attr("href")
		if !ok || href == "" {
			return
		}
		title, ok := a.Find("img").Attr("title")
		if !ok {
			return
		}
		results = append(results, SearchResult{Title: strings.TrimSpace(title), Href: href})
	})
	return results, nil
}

// ResolveCandidates reads the preview button of a book page and builds the
// download link from its id and session.
func (p *PdfDrive) ResolveCandidates(ctx context.Context, pagePath string) ([]string, error) {
	page := resolveURL(p.baseURL+"/", pagePath)
	doc, err := p.getDocument(ctx, page)
	if err != nil {
		return nil, err
	}

	button := doc.Find("#previewButtonMain").First()
	dataID, ok := button.Attr("data-id")
	if !ok || dataID == "" {
		return nil, liberrors.NewMissingElementError(p.name, page, "#previewButtonMain[data-id]")
	}
	preview, _ := button.Attr("data-preview")
	_, session, found := strings.Cut(preview, "session=")
	if !found || session == "" {
		return nil, liberrors.NewMissingElementError(p.name, page, "#previewButtonMain[data-preview]")
	}
	session, _, _ = strings.Cut(session, "session=")

	return []string{fmt.Sprintf("%s/download.pdf?id=%s&h=%s", p.baseURL, dataID, session)}, nil
}

func (p *PdfDrive) Download(ctx context.Context, bookID string, candidates []string) (*Outcome, error) {
	return p.download(ctx, bookID, candidates)
}

// Attempt searches in exact mode first and takes the first hit as is. If that
// gives nothing, a broad search is run and each hit is only taken once its
// title resolves to the book's ISBN.
func (p *PdfDrive) Attempt(ctx context.Context, item worklist.Item, id *metadata.Identity) (bool, error) {
	query := item.Query()

	exact, err := p.Search(ctx, query, true)
	if err != nil {
		return false, err
	}
	if len(exact) > 0 {
		ok, err := downloadFromPage(ctx, p, p.logger, item.ID(), exact[0].Href)
		if err != nil || ok {
			return ok, err
		}
	}

	broad, err := p.Search(ctx, query, false)
	if err != nil {
		return false, err
	}
	for _, result := range broad {
		if !confirm(ctx, p.resolver, p.logger, result.Title, id.ISBN) {
			continue
		}
		ok, err := downloadFromPage(ctx, p, p.logger, item.ID(), result.Href)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// downloadFromPage downloads the book behind a search result page. Only ledger
// and context errors are returned; anything else means the page did not work.
func downloadFromPage(ctx context.Context, src Source, logger *slog.Logger, bookID, href string) (bool, error) {
	candidates, err := src.ResolveCandidates(ctx, href)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if liberrors.IsSourceUnavailableError(err) {
			logger.Warn("Book page unavailable", "href", href, "error", err)
		} else {
			logger.Debug("Book page unusable", "href", href, "error", err)
		}
		return false, nil
	}

	out, err := src.Download(ctx, bookID, candidates)
	if err != nil {
		if liberrors.IsLedgerWriteError(err) || ctx.Err() != nil {
			return false, err
		}
		return false, nil
	}
	return out != nil, nil
}
