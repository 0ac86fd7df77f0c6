package cache

import (
	"fmt"
	"log/slog"

	"github.com/lepinkainen/libris/internal/config"
)

// validSources maps the names accepted on the command line to cache tables.
var validSources = map[string]string{
	"googlebooks": GoogleBooksTable,
}

// InvalidateCacheCmd represents the cache invalidate subcommand
type InvalidateCacheCmd struct {
	Source      string `arg:"" help:"Cache source to invalidate: googlebooks" required:""`
	ExpiredOnly bool   `help:"Only remove entries whose TTL has run out"`
}

func (i *InvalidateCacheCmd) Run(cfg *config.Config, logger *slog.Logger) error {
	logger.Info("Invalidating cache", "source", i.Source, "database", cfg.CacheDBFile)

	tableName, ok := validSources[i.Source]
	if !ok {
		return fmt.Errorf("invalid cache source '%s'; valid sources are: googlebooks", i.Source)
	}

	cacheInstance, err := Open(cfg.CacheDBFile, logger)
	if err != nil {
		return fmt.Errorf("failed to open cache database: %w", err)
	}
	defer func() { _ = cacheInstance.Close() }()

	var rowsDeleted int64
	if i.ExpiredOnly {
		rowsDeleted, err = cacheInstance.ClearExpired(tableName)
	} else {
		rowsDeleted, err = cacheInstance.InvalidateSource(tableName)
	}
	if err != nil {
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}

	logger.Info("Cache invalidated", "source", i.Source, "rows_deleted", rowsDeleted)
	return nil
}
