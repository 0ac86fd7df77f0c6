package worklist

import (
	"strings"
	"testing"

	"github.com/lepinkainen/libris/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const header = "Title\tAuthor\tDownloaded\tType\tGenre\tSub-genre\tTopic\tLink\tRead\tNotes\n"

func TestParseWorklist(t *testing.T) {
	input := header +
		"Dune\tFrank Herbert\tN\tebook\tscifi\t\t\t \tN\n" +
		"Neuromancer\tWilliam Gibson\tY\tebook\tscifi\t\t\t\tY\n" +
		"\tNobody\tN\t\t\t\t\t\t\n" +
		"Emma, Persuasion\tJane Austen\tN\tebook\tclassic\tromance\t\thttp://x\tY\textra column\n"

	items, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, items, 3)

	dune := items[0]
	assert.Equal(t, 1, dune.Row)
	assert.Equal(t, "Dune", dune.Entry.Title)
	assert.Equal(t, "Frank Herbert", dune.Entry.Author)
	assert.False(t, dune.Entry.Downloaded)
	assert.Equal(t, "ebook", dune.Entry.Type)
	assert.Equal(t, "scifi", dune.Entry.Genre)
	assert.Equal(t, "C2", dune.Entry.StatusCell)
	assert.Equal(t, "1DuneFrank Herbert", dune.ID())
	assert.Equal(t, "Dune Frank Herbert", dune.Query())

	assert.Equal(t, "Emma", items[1].Entry.Title)
	assert.Equal(t, "Persuasion", items[2].Entry.Title)
	assert.Equal(t, 4, items[1].Row)
	assert.Equal(t, items[1].Row, items[2].Row)
	assert.Equal(t, "C5", items[2].Entry.StatusCell)
	assert.True(t, items[2].Entry.Read)
	assert.Equal(t, "romance", items[2].Entry.SubGenre)
	assert.Equal(t, "http://x", items[2].Entry.Link)
	assert.NotEqual(t, items[1].ID(), items[2].ID())
}

func TestParseShortRowsArePadded(t *testing.T) {
	items, err := Parse(strings.NewReader(header + "Solaris\tStanislaw Lem\n"))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Solaris", items[0].Entry.Title)
	assert.Empty(t, items[0].Entry.Link)
	assert.False(t, items[0].Entry.Read)
}

func TestLoadFromFile(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.WriteFileString("books.tsv", header+"Dune\tFrank Herbert\tN\t\t\t\t\t\t\n")

	items, err := Load(env.Path("books.tsv"))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "1DuneFrank Herbert", items[0].ID())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/books.tsv")
	require.Error(t, err)
}
