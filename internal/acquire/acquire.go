// Package acquire runs the per-book cascade: confirm the book's identity,
// then try each enabled source in priority order until one succeeds.
package acquire

import (
	"context"
	"errors"
	"log/slog"

	"github.com/lepinkainen/libris/internal/config"
	liberrors "github.com/lepinkainen/libris/internal/errors"
	"github.com/lepinkainen/libris/internal/metadata"
	"github.com/lepinkainen/libris/internal/source"
	"github.com/lepinkainen/libris/internal/worklist"
)

// State is a step of the per-book state machine.
type State int

const (
	ResolvingMetadata State = iota
	TryingSource
	Done
)

func (s State) String() string {
	switch s {
	case ResolvingMetadata:
		return "resolving_metadata"
	case TryingSource:
		return "trying_source"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// Status is how a book ended up.
type Status int

const (
	Exhausted Status = iota
	Success
)

func (s Status) String() string {
	if s == Success {
		return "success"
	}
	return "exhausted"
}

// Resolver confirms a book's identity.
type Resolver interface {
	Resolve(ctx context.Context, query string) (*metadata.Identity, error)
}

// Stage is one step of the cascade.
type Stage struct {
	Source  source.Source
	Enabled bool
}

// Result is the outcome of processing one book.
type Result struct {
	BookID string
	Title  string
	Author string
	Status Status
	// Source is the name of the source that succeeded, if any.
	Source string
	ISBN   string
	// Err carries errors that must not be lost, such as a download that
	// could not be recorded in the ledger.
	Err error
}

// Orchestrator processes books one at a time. It holds no per-book state, so
// one Orchestrator can serve every worker.
type Orchestrator struct {
	resolver Resolver
	cascade  []Stage
	logger   *slog.Logger
}

// New creates an Orchestrator that tries the enabled stages in order.
func New(resolver Resolver, cascade []Stage, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{resolver: resolver, cascade: cascade, logger: logger}
}

// Cascade builds the fixed source order (libgen, zlib, pdfdrive) with each
// stage's enable flag taken from cfg.
func Cascade(cfg *config.Config, deps source.Deps) []Stage {
	return []Stage{
		{Source: source.NewLibgen(cfg.Libgen, deps), Enabled: cfg.Libgen.Enabled},
		{Source: source.NewZlib(cfg.Zlib, deps), Enabled: cfg.Zlib.Enabled},
		{Source: source.NewPdfDrive(cfg.PdfDrive, deps), Enabled: cfg.PdfDrive.Enabled},
	}
}

// Process runs the state machine for item. It never fails as a whole: every
// problem is logged and ends the book as Exhausted, with ledger write errors
// also kept in Result.Err.
func (o *Orchestrator) Process(ctx context.Context, item worklist.Item) Result {
	result := Result{BookID: item.ID(), Title: item.Entry.Title, Author: item.Entry.Author, Status: Exhausted}
	logger := o.logger.With("book_id", result.BookID)

	state := ResolvingMetadata
	var identity *metadata.Identity
	stage := 0

	for state != Done {
		if err := ctx.Err(); err != nil {
			result.Err = err
			return result
		}

		switch state {
		case ResolvingMetadata:
			id, err := o.resolver.Resolve(ctx, item.Query())
			if err != nil {
				logger.Info("No confirmed identity, skipping", "query", item.Query(), "error", err)
				state = Done
				continue
			}
			identity = id
			result.ISBN = id.ISBN
			state = TryingSource

		case TryingSource:
			if stage >= len(o.cascade) {
				logger.Error("All sources exhausted", "isbn", identity.ISBN)
				state = Done
				continue
			}
			current := o.cascade[stage]
			stage++
			if !current.Enabled {
				continue
			}

			ok, err := current.Source.Attempt(ctx, item, identity)
			if err != nil {
				logger.Warn("Source attempt failed", "source", current.Source.Name(), "error", err)
				if liberrors.IsLedgerWriteError(err) {
					result.Err = errors.Join(result.Err, err)
				}
			}
			if ok {
				result.Status = Success
				result.Source = current.Source.Name()
				logger.Info("Book acquired", "source", result.Source, "isbn", identity.ISBN)
				state = Done
			}
		}
	}

	return result
}
