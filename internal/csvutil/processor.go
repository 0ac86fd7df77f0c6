package csvutil

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// ProcessorOptions configures delimited-file processing behavior.
type ProcessorOptions struct {
	// Comma is the field delimiter. Zero means ','.
	Comma rune

	// MaxFields truncates every record to its first MaxFields fields. 0 keeps all.
	MaxFields int

	// SkipInvalid controls whether to skip invalid records or return an error.
	SkipInvalid bool
}

// RowParser converts one record into zero or more items. row is the zero-based
// record index in the file, counting the header as row 0.
type RowParser[T any] func(row int, record []string) ([]T, error)

// ProcessFile opens filename and runs ProcessReader over it.
func ProcessFile[T any](filename string, parser RowParser[T], opts ProcessorOptions) ([]T, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if fi, err := f.Stat(); err != nil || fi.Size() == 0 {
		return nil, fmt.Errorf("file %s is empty or cannot be read", filename)
	}

	return ProcessReader(f, parser, opts)
}

// ProcessReader skips the header record and parses the rest with parser.
// Records may have a varying number of fields.
func ProcessReader[T any](r io.Reader, parser RowParser[T], opts ProcessorOptions) ([]T, error) {
	reader := csv.NewReader(r)
	if opts.Comma != 0 {
		reader.Comma = opts.Comma
	}
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	var items []T
	for row := 1; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			slog.Warn("Error reading record", "row", row, "error", err)
			continue
		}

		if opts.MaxFields > 0 && len(record) > opts.MaxFields {
			record = record[:opts.MaxFields]
		}

		parsed, err := parser(row, record)
		if err != nil {
			if opts.SkipInvalid {
				slog.Warn("Skipping invalid record", "row", row, "error", err)
				continue
			}
			return nil, fmt.Errorf("invalid record at row %d: %w", row, err)
		}

		items = append(items, parsed...)
	}

	return items, nil
}
