package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/lepinkainen/libris/internal/config"
	"github.com/lepinkainen/libris/internal/metadata"
	"github.com/lepinkainen/libris/internal/worklist"
)

// DefaultLibgenMirrors are the mirror page prefixes tried for an MD5.
var DefaultLibgenMirrors = []string{"http://library.lol/main/"}

// Libgen looks books up by ISBN in the Library Genesis JSON API and
// downloads them from mirror pages.
type Libgen struct {
	transfer
	apiURL  string
	mirrors []string
}

// NewLibgen creates the Libgen source.
func NewLibgen(cfg config.LibgenConfig, deps Deps) *Libgen {
	mirrors := cfg.Mirrors
	if len(mirrors) == 0 {
		mirrors = DefaultLibgenMirrors
	}
	return &Libgen{
		transfer: newTransfer("libgen", deps, nil),
		apiURL:   strings.TrimRight(cfg.APIURL, "/"),
		mirrors:  mirrors,
	}
}

func (l *Libgen) Name() string { return "libgen" }

// LookupIDs returns the catalog IDs of every edition with the given ISBN.
func (l *Libgen) LookupIDs(ctx context.Context, isbn string) ([]string, error) {
	var rows []struct {
		ID json.Number `json:"id"`
	}
	target := fmt.Sprintf("%s/json.php?isbn=%s&fields=ID", l.apiURL, url.QueryEscape(isbn))
	if err := l.getJSON(ctx, target, &rows); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.ID != "" {
			ids = append(ids, row.ID.String())
		}
	}
	return ids, nil
}

// MD5 returns the file checksum for a catalog ID.
func (l *Libgen) MD5(ctx context.Context, id string) (string, error) {
	var rows []struct {
		MD5 string `json:"md5"`
	}
	target := fmt.Sprintf("%s/json.php?ids=%s&fields=md5", l.apiURL, url.QueryEscape(id))
	if err := l.getJSON(ctx, target, &rows); err != nil {
		return "", err
	}
	if len(rows) == 0 || rows[0].MD5 == "" {
		return "", fmt.Errorf("libgen has no md5 for id %s", id)
	}
	return rows[0].MD5, nil
}

// ResolveCandidates collects the links in the download box of every mirror
// page for md5. Mirrors that fail are skipped.
func (l *Libgen) ResolveCandidates(ctx context.Context, md5 string) ([]string, error) {
	var (
		candidates []string
		lastErr    error
		reached    bool
	)
	for _, mirror := range l.mirrors {
		page := mirror + md5
		doc, err := l.getDocument(ctx, page)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			l.logger.Debug("Mirror unavailable", "mirror", mirror, "error", err)
			lastErr = err
			continue
		}
		reached = true

		doc.Find("#download a").Each(func(_ int, a *goquery.Selection) {
			if href, ok := a.Attr("href"); ok && strings.TrimSpace(href) != "" {
				candidates = append(candidates, resolveURL(page, href))
			}
		})
	}

	if !reached && lastErr != nil {
		return nil, lastErr
	}
	return candidates, nil
}

func (l *Libgen) Download(ctx context.Context, bookID string, candidates []string) (*Outcome, error) {
	return l.download(ctx, bookID, candidates)
}

// Attempt needs no secondary confirmation: the catalog lookup is by ISBN.
func (l *Libgen) Attempt(ctx context.Context, item worklist.Item, id *metadata.Identity) (bool, error) {
	ids, err := l.LookupIDs(ctx, id.ISBN)
	if err != nil {
		return false, err
	}
	if len(ids) == 0 {
		l.logger.Debug("No libgen entry for ISBN", "isbn", id.ISBN)
		return false, nil
	}

	md5, err := l.MD5(ctx, ids[0])
	if err != nil {
		return false, err
	}

	candidates, err := l.ResolveCandidates(ctx, md5)
	if err != nil {
		return false, err
	}

	out, err := l.Download(ctx, item.ID(), candidates)
	if err != nil {
		return false, err
	}
	return out != nil, nil
}
