package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/lepinkainen/libris/internal/config"
	liberrors "github.com/lepinkainen/libris/internal/errors"
	"github.com/lepinkainen/libris/internal/fileutil"
	"github.com/lepinkainen/libris/internal/metadata"
	"github.com/lepinkainen/libris/internal/worklist"
)

// Zlib scrapes z-library search and book pages. The site only allows a few
// downloads per IP per day, so it is normally left out of the cascade.
type Zlib struct {
	transfer
	baseURL  string
	resolver Resolver
}

// NewZlib creates the Zlib source.
func NewZlib(cfg config.SiteConfig, deps Deps) *Zlib {
	return &Zlib{
		transfer: newTransfer("zlib", deps, fileutil.NormalizeColons),
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		resolver: deps.Resolver,
	}
}

func (z *Zlib) Name() string { return "zlib" }

// Search returns the book rows of a site search.
func (z *Zlib) Search(ctx context.Context, query string) ([]SearchResult, error) {
	target := fmt.Sprintf("%s/s/%s", z.baseURL, url.PathEscape(query))

	doc, err := z.getDocument(ctx, target)
	if err != nil {
		return nil, err
	}

	var results []SearchResult
	doc.Find("tr.bookRow").Each(func(_ int, row *goquery.Selection) {
		a := row.Find("h3 a").First()
		href, ok := a.Attr("href")
		if !ok || href == "" {
			return
		}

		result := SearchResult{Title: strings.TrimSpace(a.Text()), Href: href}
		row.Find("div.authors a").Each(func(_ int, author *goquery.Selection) {
			if name := strings.TrimSpace(author.Text()); name != "" {
				result.Authors = append(result.Authors, name)
			}
		})
		result.ISBN, _ = row.Find("div.checkBookDownloaded").Attr("data-isbn")
		result.ISBN = strings.TrimSpace(result.ISBN)

		results = append(results, result)
	})
	return results, nil
}

// ResolveCandidates reads the download link from a book page.
func (z *Zlib) ResolveCandidates(ctx context.Context, pagePath string) ([]string, error) {
	page := resolveURL(z.baseURL+"/", pagePath)
	doc, err := z.getDocument(ctx, page)
	if err != nil {
		return nil, err
	}

	href, ok := doc.Find("a.addDownloadedBook").First().Attr("href")
	if !ok || href == "" {
		return nil, liberrors.NewMissingElementError(z.name, page, "a.addDownloadedBook")
	}
	return []string{resolveURL(z.baseURL+"/", href)}, nil
}

func (z *Zlib) Download(ctx context.Context, bookID string, candidates []string) (*Outcome, error) {
	return z.download(ctx, bookID, candidates)
}

// Attempt takes a row whose published ISBN matches outright, and otherwise
// confirms rows through the metadata resolver using title and first author.
func (z *Zlib) Attempt(ctx context.Context, item worklist.Item, id *metadata.Identity) (bool, error) {
	results, err := z.Search(ctx, item.Query())
	if err != nil {
		return false, err
	}

	for _, result := range results {
		matched := result.ISBN != "" && result.ISBN == id.ISBN
		if !matched {
			query := result.Title
			if len(result.Authors) > 0 {
				query += " " + result.Authors[0]
			}
			matched = confirm(ctx, z.resolver, z.logger, query, id.ISBN)
		}
		if !matched {
			continue
		}

		ok, err := downloadFromPage(ctx, z, z.logger, item.ID(), result.Href)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}
