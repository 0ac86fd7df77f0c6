// Package fileutil holds the file naming and writing helpers shared by the
// book sources and the report writer.
package fileutil

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// pdfdriveDownloadMarker identifies a PdfDrive download endpoint. Its last path
// segment is a query, not a usable file name.
const pdfdriveDownloadMarker = "download.pdf?id="

// FilenameFromResponse derives the local file name for a download. The
// Content-Disposition filename wins; otherwise the last "/" segment of link is
// used. Returns "" when no safe name can be derived.
func FilenameFromResponse(header http.Header, link string) string {
	name := dispositionFilename(header.Get("Content-Disposition"))
	if name == "" {
		name = link[strings.LastIndex(link, "/")+1:]
	}

	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}

	if strings.Contains(name, pdfdriveDownloadMarker) {
		return ""
	}
	name = strings.ReplaceAll(name, "?", "")

	return SanitizeFilename(name)
}

// dispositionFilename returns the filename parameter of a Content-Disposition
// header, or "" when there is none.
func dispositionFilename(cd string) string {
	if cd == "" {
		return ""
	}
	// mime folds an RFC 2231 filename* parameter into "filename"
	if _, params, err := mime.ParseMediaType(cd); err == nil {
		return params["filename"]
	}

	// Mirrors often send unquoted names with spaces or parentheses, which
	// mime rejects. Take the raw value up to the next ";".
	lower := strings.ToLower(cd)
	for _, key := range []string{"filename*=", "filename="} {
		idx := strings.Index(lower, key)
		if idx < 0 {
			continue
		}
		value := cd[idx+len(key):]
		if end := strings.IndexByte(value, ';'); end >= 0 {
			value = value[:end]
		}
		value = strings.Trim(strings.TrimSpace(value), `"`)
		if key == "filename*=" {
			// charset'language'percent-encoded; decoded later with the rest
			if _, encoded, ok := strings.Cut(value, "''"); ok {
				value = encoded
			}
		}
		if value != "" {
			return value
		}
	}
	return ""
}

// SanitizeFilename neutralises path separators so the name stays inside the
// download directory.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "/", "-")
	name = strings.ReplaceAll(name, "\\", "-")
	name = strings.TrimSpace(name)
	if name == "." || name == ".." {
		return ""
	}
	return name
}

// NormalizeColons replaces colons with " - " and collapses the double spaces
// that leaves behind.
func NormalizeColons(name string) string {
	name = strings.ReplaceAll(name, ":", " - ")
	for strings.Contains(name, "  ") {
		name = strings.ReplaceAll(name, "  ", " ")
	}
	return name
}

// FileExists checks if a file exists at the given path
func FileExists(filePath string) bool {
	info, err := os.Stat(filePath)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// WriteFileAtomic streams r into a temporary file next to filePath and renames
// it into place once fully written. The temporary file is removed on failure,
// so filePath either holds the complete content or is left untouched.
func WriteFileAtomic(filePath string, r io.Reader) (int64, error) {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(filePath)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	written, err := io.Copy(tmp, r)
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return written, fmt.Errorf("failed to write %s: %w", filePath, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return written, fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, filePath); err != nil {
		_ = os.Remove(tmpName)
		return written, fmt.Errorf("failed to move %s into place: %w", filePath, err)
	}

	return written, nil
}

// WriteFileWithOverwrite writes data to a file, respecting the overwrite flag
// Returns true if the file was written, false if it was skipped
func WriteFileWithOverwrite(filePath string, data []byte, perm os.FileMode, overwrite bool) (bool, error) {
	if FileExists(filePath) && !overwrite {
		return false, nil
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, err
	}

	if err := os.WriteFile(filePath, data, perm); err != nil {
		return false, err
	}

	return true, nil
}
