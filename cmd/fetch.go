package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/lepinkainen/libris/internal/acquire"
	"github.com/lepinkainen/libris/internal/cache"
	"github.com/lepinkainen/libris/internal/config"
	"github.com/lepinkainen/libris/internal/ledger"
	"github.com/lepinkainen/libris/internal/metadata"
	"github.com/lepinkainen/libris/internal/pool"
	"github.com/lepinkainen/libris/internal/report"
	"github.com/lepinkainen/libris/internal/source"
	"github.com/lepinkainen/libris/internal/worklist"
)

var runFetch = fetchBooks

// FetchCmd represents the fetch command
type FetchCmd struct {
	Worklist   string `arg:"" optional:"" help:"Path to the worklist TSV file (worklist.file)"`
	Report     string `short:"r" help:"Write a YAML run report to this path (report.file)"`
	Zlib       bool   `help:"Include zlib in the source cascade"`
	NoPdfDrive bool   `help:"Leave PdfDrive out of the source cascade"`
}

func (f *FetchCmd) Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	summary, err := runFetch(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if summary.Errors > 0 {
		return fmt.Errorf("%d of %d books could not be recorded in the ledger", summary.Errors, summary.Total)
	}
	return nil
}

// fetchBooks wires the ledger, cache, metadata resolver and sources together
// and runs the worklist through the pool.
func fetchBooks(ctx context.Context, cfg *config.Config, logger *slog.Logger) (pool.Summary, error) {
	items, err := worklist.Load(cfg.WorklistFile)
	if err != nil {
		return pool.Summary{}, err
	}

	if err := os.MkdirAll(cfg.DownloadDir, 0o755); err != nil {
		return pool.Summary{}, fmt.Errorf("failed to create download directory: %w", err)
	}

	books, err := ledger.Open(ctx, cfg.LedgerDBFile, logger)
	if err != nil {
		return pool.Summary{}, err
	}
	defer func() { _ = books.Close() }()

	// Lookups still work without a cache, they just hit the network every time
	var cacheDB *cache.CacheDB
	if cfg.CacheDBFile != "" {
		cacheDB, err = cache.Open(cfg.CacheDBFile, logger)
		if err != nil {
			logger.Warn("Metadata cache unavailable, continuing without it", "error", err)
			cacheDB = nil
		} else {
			defer func() { _ = cacheDB.Close() }()
		}
	}

	resolver := metadata.NewResolver(metadata.Options{
		BaseURL:     cfg.MetadataBaseURL,
		APIKey:      cfg.MetadataAPIKey,
		HTTPClient:  &http.Client{Timeout: cfg.HTTPTimeout},
		Cache:       cacheDB,
		TTL:         cfg.CacheTTL,
		NegativeTTL: cfg.NegativeCacheTTL,
		Logger:      logger,
	})

	orchestrator := acquire.New(resolver, acquire.Cascade(cfg, source.Deps{
		Ledger:      books,
		Resolver:    resolver,
		DownloadDir: cfg.DownloadDir,
		Timeout:     cfg.HTTPTimeout,
		UserAgent:   cfg.UserAgent,
		Logger:      logger,
	}), logger)

	p := pool.New(orchestrator, cfg.Workers, logger)
	if err := p.Start(ctx, items); err != nil {
		return pool.Summary{}, err
	}
	summary, runErr := p.Wait()

	if cfg.ReportFile != "" {
		if err := report.Write(cfg.ReportFile, report.FromSummary(summary)); err != nil {
			return summary, err
		}
		logger.Info("Report written", "path", cfg.ReportFile)
	}

	return summary, runErr
}
