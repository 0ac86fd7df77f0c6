// Package report renders run summaries and ledger listings as YAML.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/lepinkainen/libris/internal/fileutil"
	"github.com/lepinkainen/libris/internal/ledger"
	"github.com/lepinkainen/libris/internal/pool"
	"gopkg.in/yaml.v3"
)

// Report is the YAML document written after a fetch run.
type Report struct {
	RunID      string    `yaml:"run_id"`
	StartedAt  time.Time `yaml:"started_at"`
	FinishedAt time.Time `yaml:"finished_at"`
	Duration   string    `yaml:"duration"`
	Workers    int       `yaml:"workers"`
	Total      int       `yaml:"total"`
	Succeeded  int       `yaml:"succeeded"`
	Exhausted  int       `yaml:"exhausted"`
	Errors     int       `yaml:"errors"`
	Books      []Book    `yaml:"books,omitempty"`
}

// Book is one worklist item's outcome.
type Book struct {
	BookID string `yaml:"book_id"`
	Title  string `yaml:"title"`
	Author string `yaml:"author,omitempty"`
	Status string `yaml:"status"`
	Source string `yaml:"source,omitempty"`
	ISBN   string `yaml:"isbn,omitempty"`
	Error  string `yaml:"error,omitempty"`
}

// FromSummary converts a pool summary into a Report.
func FromSummary(s pool.Summary) Report {
	r := Report{
		RunID:      s.RunID,
		StartedAt:  s.StartedAt.UTC(),
		FinishedAt: s.FinishedAt.UTC(),
		Duration:   s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond).String(),
		Workers:    s.Workers,
		Total:      s.Total,
		Succeeded:  s.Succeeded,
		Exhausted:  s.Exhausted,
		Errors:     s.Errors,
	}
	for _, result := range s.Results {
		book := Book{
			BookID: result.BookID,
			Title:  result.Title,
			Author: result.Author,
			Status: result.Status.String(),
			Source: result.Source,
			ISBN:   result.ISBN,
		}
		if result.Err != nil {
			book.Error = result.Err.Error()
		}
		r.Books = append(r.Books, book)
	}
	return r
}

// Write stores r as YAML at path, replacing any earlier report.
func Write(path string, r Report) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if _, err := fileutil.WriteFileWithOverwrite(path, data, 0644, true); err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}
	return nil
}

// EncodeRecords writes ledger records to w as a YAML list.
func EncodeRecords(w io.Writer, records []ledger.Record) error {
	if records == nil {
		records = []ledger.Record{}
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}
	return enc.Close()
}
