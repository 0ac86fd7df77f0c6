package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"
)

func TestSourceUnavailableError_Messages(t *testing.T) {
	tests := []struct {
		name     string
		err      *SourceUnavailableError
		expected string
	}{
		{
			name:     "status only",
			err:      NewSourceUnavailableError("libgen", "http://libgen.test/json.php", 503),
			expected: "libgen unavailable (HTTP 503) at http://libgen.test/json.php",
		},
		{
			name:     "missing element",
			err:      NewMissingElementError("pdfdrive", "https://pdfdrive.test/book", "#previewButtonMain"),
			expected: "pdfdrive unavailable at https://pdfdrive.test/book: missing #previewButtonMain",
		},
		{
			name:     "status and reason",
			err:      &SourceUnavailableError{Source: "zlib", URL: "https://z.test", StatusCode: 429, Reason: "quota"},
			expected: "zlib unavailable (HTTP 429) at https://z.test: quota",
		},
		{
			name:     "bare",
			err:      &SourceUnavailableError{Source: "zlib", URL: "https://z.test"},
			expected: "zlib unavailable at https://z.test",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.expected {
				t.Fatalf("Error message = %q, want %q", tt.err.Error(), tt.expected)
			}
		})
	}
}

func TestIsSourceUnavailableError_Wrapped(t *testing.T) {
	err := fmt.Errorf("resolving candidates: %w", NewSourceUnavailableError("libgen", "http://x", 500))

	if !IsSourceUnavailableError(err) {
		t.Fatalf("IsSourceUnavailableError returned false for wrapped SourceUnavailableError")
	}
	if IsSourceUnavailableError(stdErrors.New("other")) {
		t.Fatalf("IsSourceUnavailableError returned true for unrelated error")
	}
}

func TestLedgerWriteError(t *testing.T) {
	cause := stdErrors.New("database is locked")
	err := NewLedgerWriteError("3DuneFrank Herbert", "/books/Dune.epub", cause)

	expected := `recording download of "3DuneFrank Herbert" at /books/Dune.epub: database is locked`
	if err.Error() != expected {
		t.Fatalf("Error message = %q, want %q", err.Error(), expected)
	}

	if !stdErrors.Is(err, cause) {
		t.Fatalf("LedgerWriteError does not unwrap to its cause")
	}

	wrapped := stdErrors.Join(err, stdErrors.New("additional context"))
	if !IsLedgerWriteError(wrapped) {
		t.Fatalf("IsLedgerWriteError returned false for wrapped LedgerWriteError")
	}
}
