package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute())
	return out.String()
}

func TestVersion(t *testing.T) {
	assert.Contains(t, execute(t, "version"), "rpp v"+version)
}

func TestList(t *testing.T) {
	out := execute(t, "list")
	for _, name := range []string{"browser", "clock", "rest", "telegram", "tui"} {
		assert.Contains(t, out, "- "+name)
	}
}

func TestRun_InvalidMode(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"run", "--config", "", "--mode", "batch"})
	assert.ErrorContains(t, root.Execute(), "invalid mode")
}
