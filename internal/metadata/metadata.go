// Package metadata resolves a free-text book query into a canonical identity
// using the Google Books volumes API.
package metadata

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

	"github.com/lepinkainen/libris/internal/cache"
)

// DefaultBaseURL is the Google Books API root.
const DefaultBaseURL = "https://www.googleapis.com/books/v1"

// ErrNoMatch is returned (wrapped) for every lookup that produced no usable ISBN.
var ErrNoMatch = errors.New("no metadata match")

// Identity is the canonical description of a book as reported by Google Books.
type Identity struct {
	ISBN     string
	Title    string
	Authors  []string
	VolumeID string
	Raw      json.RawMessage
}

// Options configures a Resolver.
type Options struct {
	BaseURL     string
	APIKey      string
	HTTPClient  *http.Client
	Cache       *cache.CacheDB
	TTL         time.Duration
	NegativeTTL time.Duration
	Logger      *slog.Logger
}

// Resolver looks books up on Google Books. It is safe for concurrent use.
type Resolver struct {
	baseURL     string
	apiKey      string
	client      *http.Client
	cache       *cache.CacheDB
	ttl         time.Duration
	negativeTTL time.Duration
	logger      *slog.Logger
}

// NewResolver builds a Resolver, filling unset options with defaults.
func NewResolver(opts Options) *Resolver {
	r := &Resolver{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		apiKey:      opts.APIKey,
		client:      opts.HTTPClient,
		cache:       opts.Cache,
		ttl:         opts.TTL,
		negativeTTL: opts.NegativeTTL,
		logger:      opts.Logger,
	}
	if r.baseURL == "" {
		r.baseURL = DefaultBaseURL
	}
	if r.client == nil {
		r.client = &http.Client{}
	}
	if r.ttl <= 0 {
		r.ttl = cache.DefaultCacheTTL
	}
	if r.negativeTTL <= 0 {
		r.negativeTTL = cache.NegativeCacheTTL
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

type volumesResponse struct {
	TotalItems *int     `json:"totalItems"`
	Items      []volume `json:"items"`
}

type volume struct {
	ID         string `json:"id"`
	VolumeInfo struct {
		Title               string               `json:"title"`
		Authors             []string             `json:"authors"`
		IndustryIdentifiers []industryIdentifier `json:"industryIdentifiers"`
	} `json:"volumeInfo"`
}

type industryIdentifier struct {
	Type       string `json:"type"`
	Identifier string `json:"identifier"`
}

// cachedLookup is what the cache stores: the raw service payload, so a cache
// hit goes through exactly the same extraction as a fresh response.
type cachedLookup struct {
	Payload json.RawMessage `json:"payload"`
}

// Resolve queries the volumes API by title and returns the identity of the
// first result. Every soft miss, including transport failures and non-2xx
// statuses, yields an error wrapping ErrNoMatch.
func (r *Resolver) Resolve(ctx context.Context, query string) (*Identity, error) {
	key := cacheKey(query)

	selector := cache.SelectNegativeCacheTTL(r.ttl, r.negativeTTL, func(l cachedLookup) bool {
		_, err := identityFromPayload(l.Payload)
		return err != nil
	})

	lookup, fromCache, err := cache.GetOrFetchWithTTL(r.cache, cache.GoogleBooksTable, key, func() (cachedLookup, error) {
		payload, err := r.fetch(ctx, query)
		if err != nil {
			return cachedLookup{}, err
		}
		return cachedLookup{Payload: payload}, nil
	}, selector)
	if err != nil {
		r.logger.Debug("Metadata lookup failed", "query", query, "error", err)
		return nil, fmt.Errorf("%w for %q: %v", ErrNoMatch, query, err)
	}

	identity, err := identityFromPayload(lookup.Payload)
	if err != nil {
		r.logger.Debug("No metadata match", "query", query, "reason", err, "cached", fromCache)
		return nil, fmt.Errorf("%w for %q: %v", ErrNoMatch, query, err)
	}

	r.logger.Debug("Resolved metadata", "query", query, "isbn", identity.ISBN, "title", identity.Title, "cached", fromCache)
	return identity, nil
}

func (r *Resolver) fetch(ctx context.Context, query string) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/volumes?q=intitle:%s", r.baseURL, url.QueryEscape(query))
	if r.apiKey != "" {
		endpoint = fmt.Sprintf("%s&key=%s", endpoint, url.QueryEscape(r.apiKey))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google Books API request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("google Books API returned status code %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading Google Books response: %w", err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("google Books API returned invalid JSON")
	}

	return body, nil
}

// identityFromPayload picks the first volume's ISBN_13, falling back to its ISBN_10.
func identityFromPayload(payload json.RawMessage) (*Identity, error) {
	var resp volumesResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if resp.TotalItems == nil {
		return nil, errors.New("response has no totalItems")
	}
	if *resp.TotalItems == 0 {
		return nil, errors.New("no results")
	}
	if len(resp.Items) == 0 {
		return nil, errors.New("response has no items")
	}

	first := resp.Items[0]
	ids := first.VolumeInfo.IndustryIdentifiers
	if len(ids) == 0 {
		return nil, errors.New("first result has no industry identifiers")
	}

	isbn, ok := findIdentifier(ids, "ISBN_13")
	if !ok {
		isbn, ok = findIdentifier(ids, "ISBN_10")
	}
	if !ok {
		return nil, errors.New("first result has no ISBN")
	}
	if isbn == "" {
		return nil, errors.New("first result has an empty ISBN")
	}

	return &Identity{
		ISBN:     isbn,
		Title:    first.VolumeInfo.Title,
		Authors:  first.VolumeInfo.Authors,
		VolumeID: first.ID,
		Raw:      payload,
	}, nil
}

// findIdentifier returns the first identifier of kind, even when it is empty.
func findIdentifier(ids []industryIdentifier, kind string) (string, bool) {
	for _, id := range ids {
		if id.Type == kind {
			return strings.TrimSpace(id.Identifier), true
		}
	}
	return "", false
}

func cacheKey(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}
