package cmd

import (
	"context"
	"io"
	"log/slog"

	"github.com/lepinkainen/libris/internal/config"
	"github.com/lepinkainen/libris/internal/ledger"
	"github.com/lepinkainen/libris/internal/report"
)

// LedgerCmd represents the ledger command and its subcommands
type LedgerCmd struct {
	List  LedgerListCmd  `cmd:"" help:"Print every downloaded book as YAML"`
	Stale LedgerStaleCmd `cmd:"" help:"Print downloaded books whose files are gone"`
}

// LedgerListCmd represents the ledger list subcommand
type LedgerListCmd struct{}

// LedgerStaleCmd represents the ledger stale subcommand
type LedgerStaleCmd struct{}

func (l *LedgerListCmd) Run(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) error {
	return dumpLedger(ctx, cfg, logger, out, (*ledger.Ledger).List)
}

func (l *LedgerStaleCmd) Run(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) error {
	return dumpLedger(ctx, cfg, logger, out, (*ledger.Ledger).Stale)
}

func dumpLedger(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	out io.Writer,
	query func(*ledger.Ledger, context.Context) ([]ledger.Record, error),
) error {
	books, err := ledger.Open(ctx, cfg.LedgerDBFile, logger)
	if err != nil {
		return err
	}
	defer func() { _ = books.Close() }()

	records, err := query(books, ctx)
	if err != nil {
		return err
	}
	logger.Debug("Ledger read", "records", len(records))
	return report.EncodeRecords(out, records)
}
