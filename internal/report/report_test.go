package report

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/lepinkainen/libris/internal/acquire"
	"github.com/lepinkainen/libris/internal/ledger"
	"github.com/lepinkainen/libris/internal/pool"
	"github.com/lepinkainen/libris/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestWriteReport(t *testing.T) {
	env := testutil.NewTestEnv(t)
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	summary := pool.Summary{
		RunID:      "0b7c6a0e-6a43-4f51-9d1c-3f0e5b9d2a11",
		StartedAt:  start,
		FinishedAt: start.Add(90 * time.Second),
		Workers:    2,
		Total:      2,
		Succeeded:  1,
		Exhausted:  1,
		Errors:     1,
		Results: []acquire.Result{
			{BookID: "1DuneFrank Herbert", Title: "Dune", Author: "Frank Herbert", Status: acquire.Success, Source: "libgen", ISBN: "9780441013593"},
			{BookID: "2EmmaJane Austen", Title: "Emma", Author: "Jane Austen", Status: acquire.Exhausted, Err: errors.New("ledger locked")},
		},
	}

	path := env.Path("reports", "run.yaml")
	require.NoError(t, Write(path, FromSummary(summary)))

	var got Report
	require.NoError(t, yaml.Unmarshal([]byte(env.ReadFileString("reports/run.yaml")), &got))

	assert.Equal(t, summary.RunID, got.RunID)
	assert.Equal(t, "1m30s", got.Duration)
	assert.Equal(t, 1, got.Errors)
	require.Len(t, got.Books, 2)
	assert.Equal(t, "success", got.Books[0].Status)
	assert.Equal(t, "libgen", got.Books[0].Source)
	assert.Equal(t, "exhausted", got.Books[1].Status)
	assert.Equal(t, "ledger locked", got.Books[1].Error)
	assert.True(t, start.Equal(got.StartedAt))
}

func TestEncodeRecords(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeRecords(&buf, []ledger.Record{
		{BookID: "1DuneFrank Herbert", Link: "http://m/Dune.epub", Filepath: "/books/Dune.epub"},
	}))

	out := buf.String()
	assert.Contains(t, out, "book_id: 1DuneFrank Herbert")
	assert.Contains(t, out, "filepath: /books/Dune.epub")
	assert.NotContains(t, out, "recorded_at", "zero timestamps are omitted")
}

func TestEncodeRecordsEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeRecords(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())
}
