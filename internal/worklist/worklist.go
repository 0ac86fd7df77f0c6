// Package worklist reads the desired-books list exported from the reading
// spreadsheet as a tab-separated file.
package worklist

import (
	"fmt"
	"io"
	"strings"

	"github.com/lepinkainen/libris/internal/csvutil"
)

// columns is the number of leading spreadsheet columns the worklist consumes.
const columns = 9

// Entry is one book as listed in the worklist.
type Entry struct {
	Title      string
	Author     string
	Downloaded bool
	Type       string
	Genre      string
	SubGenre   string
	Topic      string
	Link       string
	Read       bool
	// StatusCell is the spreadsheet cell holding the downloaded flag, e.g. "C5".
	StatusCell string
}

// Item is an Entry together with the worklist row it came from.
type Item struct {
	Row   int
	Entry Entry
}

// ID returns the ledger key for the item. It is only stable for one export of
// the worklist, since it embeds the row number.
func (i Item) ID() string {
	return fmt.Sprintf("%d%s%s", i.Row, i.Entry.Title, i.Entry.Author)
}

// Query is the free-text metadata query for the item.
func (i Item) Query() string {
	return i.Entry.Title + " " + i.Entry.Author
}

// Load reads the worklist file and returns every item still to be downloaded.
func Load(path string) ([]Item, error) {
	return csvutil.ProcessFile(path, parseRow, csvutil.ProcessorOptions{Comma: '\t', MaxFields: columns})
}

// Parse is Load for an already open reader.
func Parse(r io.Reader) ([]Item, error) {
	return csvutil.ProcessReader(r, parseRow, csvutil.ProcessorOptions{Comma: '\t', MaxFields: columns})
}

// parseRow expands a worklist row into one item per listed title. Rows without
// a title and rows already marked downloaded produce nothing.
func parseRow(row int, record []string) ([]Item, error) {
	fields := make([]string, columns)
	copy(fields, record)

	if fields[0] == "" {
		return nil, nil
	}

	titles := []string{fields[0]}
	if strings.Contains(fields[0], ",") {
		titles = titles[:0]
		for _, t := range strings.Split(fields[0], ",") {
			titles = append(titles, strings.TrimSpace(t))
		}
	}

	downloaded := isYes(fields[2])
	if downloaded {
		return nil, nil
	}

	items := make([]Item, 0, len(titles))
	for _, title := range titles {
		items = append(items, Item{
			Row: row,
			Entry: Entry{
				Title:      title,
				Author:     fields[1],
				Downloaded: downloaded,
				Type:       fields[3],
				Genre:      fields[4],
				SubGenre:   fields[5],
				Topic:      fields[6],
				Link:       fields[7],
				Read:       isYes(fields[8]),
				StatusCell: fmt.Sprintf("C%d", row+1),
			},
		})
	}
	return items, nil
}

func isYes(s string) bool {
	return strings.TrimSpace(s) == "Y"
}
