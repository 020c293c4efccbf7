package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInlineQueriesAreMarked(t *testing.T) {
	l := newLinter()
	require.NoError(t, l.lintPath(filepath.Join("..", "..", "sqlinline")))
	assert.Empty(t, l.violations)
	assert.NotEmpty(t, l.markers)
}

func TestLintReportsMissingAndDuplicateMarkers(t *testing.T) {
	dir := t.TempDir()
	src := "package q\n\n" +
		"const A = `--sql 11111111-2222-3333-4444-555555555555\nselect 1;\n`\n" +
		"const B = `--sql 11111111-2222-3333-4444-555555555555\nselect 2;\n`\n" +
		"const C = `\nselect 3\nfrom users;\n`\n" +
		"const Label = \"update available\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "q.go"), []byte(src), 0o644))

	l := newLinter()
	require.NoError(t, l.lintPath(dir))
	require.Len(t, l.violations, 2)
	assert.Equal(t, "B", l.violations[0].name)
	assert.Contains(t, l.violations[0].message, "already used by A")
	assert.Equal(t, "C", l.violations[1].name)
}
