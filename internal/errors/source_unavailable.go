package errors

import (
	stdErrors "errors"
	"fmt"
)

// SourceUnavailableError represents a catalog site that could not serve a request:
// a non-success HTTP status or a page missing the element we scrape.
type SourceUnavailableError struct {
	Source     string
	URL        string
	StatusCode int    // 0 when the page loaded but was missing content
	Reason     string // Human-readable detail, optional
}

func (e *SourceUnavailableError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Reason != "":
		return fmt.Sprintf("%s unavailable (HTTP %d) at %s: %s", e.Source, e.StatusCode, e.URL, e.Reason)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s unavailable (HTTP %d) at %s", e.Source, e.StatusCode, e.URL)
	case e.Reason != "":
		return fmt.Sprintf("%s unavailable at %s: %s", e.Source, e.URL, e.Reason)
	}
	return fmt.Sprintf("%s unavailable at %s", e.Source, e.URL)
}

// NewSourceUnavailableError creates an error for a non-success HTTP status.
func NewSourceUnavailableError(source, url string, statusCode int) *SourceUnavailableError {
	return &SourceUnavailableError{Source: source, URL: url, StatusCode: statusCode}
}

// NewMissingElementError creates an error for a page that lacked an expected element.
func NewMissingElementError(source, url, element string) *SourceUnavailableError {
	return &SourceUnavailableError{Source: source, URL: url, Reason: "missing " + element}
}

// IsSourceUnavailableError checks if error is a SourceUnavailableError
func IsSourceUnavailableError(err error) bool {
	var unavailable *SourceUnavailableError
	return stdErrors.As(err, &unavailable)
}
