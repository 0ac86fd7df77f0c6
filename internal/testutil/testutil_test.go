package testutil

import (
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestEnvWriteAndRead(t *testing.T) {
	env := NewTestEnv(t)

	env.WriteFileString("nested/dir/file.txt", "hello")

	assert.True(t, env.FileExists("nested/dir/file.txt"))
	assert.False(t, env.FileExists("nested/dir"))
	assert.Equal(t, "hello", env.ReadFileString("nested/dir/file.txt"))
	assert.Equal(t, []string{"file.txt"}, env.ListFiles("nested/dir"))
}

func TestTestEnvMkdirAll(t *testing.T) {
	env := NewTestEnv(t)

	dir := env.MkdirAll("books")
	assert.DirExists(t, dir)
	assert.Equal(t, env.Path("books"), dir)
}

func TestNewIPv4TestServer(t *testing.T) {
	server := NewIPv4TestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}))

	assert.Contains(t, server.URL, "127.0.0.1")

	resp, err := server.Client().Get(server.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
}
