package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMainRunsCommandLine(t *testing.T) {
	orig := execute
	t.Cleanup(func() { execute = orig })

	runs := 0
	execute = func() { runs++ }

	main()

	assert.Equal(t, 1, runs, "main should hand over to the command line exactly once")
}
