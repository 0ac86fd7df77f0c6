package errors

import (
	stdErrors "errors"
	"fmt"
)

// LedgerWriteError is returned when a completed download could not be recorded.
// The file is on disk but the ledger does not know about it yet.
type LedgerWriteError struct {
	BookID   string
	Filepath string
	Err      error
}

func (e *LedgerWriteError) Error() string {
	return fmt.Sprintf("recording download of %q at %s: %v", e.BookID, e.Filepath, e.Err)
}

func (e *LedgerWriteError) Unwrap() error {
	return e.Err
}

// NewLedgerWriteError wraps err with the book it failed to record.
func NewLedgerWriteError(bookID, filepath string, err error) *LedgerWriteError {
	return &LedgerWriteError{BookID: bookID, Filepath: filepath, Err: err}
}

// IsLedgerWriteError reports whether err is a LedgerWriteError (even when wrapped).
func IsLedgerWriteError(err error) bool {
	var ledgerErr *LedgerWriteError
	return stdErrors.As(err, &ledgerErr)
}
