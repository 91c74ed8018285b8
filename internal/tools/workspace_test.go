package tools

import (
	"context"
	"testing"

	"github.com/roasbeef/lethe/internal/workspace"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) (*workspace.Dir, map[string]func(
	args map[string]any) (string, error)) {

	t.Helper()

	ws, err := workspace.New(t.TempDir())
	require.NoError(t, err)

	reg := WorkspaceTools(ws)
	run := make(map[string]func(map[string]any) (string, error))
	for name, tool := range reg {
		tool := tool
		run[name] = func(args map[string]any) (string, error) {
			return tool.Run(context.Background(), args)
		}
	}

	return ws, run
}

func TestWorkspaceToolNames(t *testing.T) {
	t.Parallel()

	ws, err := workspace.New(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, []string{
		"edit_file", "grep_search", "list_directory", "read_file",
		"write_file",
	}, WorkspaceTools(ws).Names())
}

func TestReadFileNumbersLines(t *testing.T) {
	t.Parallel()

	ws, run := newTestRegistry(t)
	require.NoError(t, ws.Write("notes.md", "alpha\nbeta\ngamma\n"))

	out, err := run["read_file"](map[string]any{
		"file_path": "notes.md",
	})
	require.NoError(t, err)
	require.Contains(t, out, "1\talpha")
	require.Contains(t, out, "3\tgamma")

	// Offset and limit select a window.
	out, err = run["read_file"](map[string]any{
		"file_path": "notes.md",
		"offset":    float64(1),
		"limit":     float64(1),
	})
	require.NoError(t, err)
	require.Contains(t, out, "beta")
	require.NotContains(t, out, "alpha")
	require.NotContains(t, out, "gamma")
}

func TestReadFileMissing(t *testing.T) {
	t.Parallel()

	_, run := newTestRegistry(t)
	_, err := run["read_file"](map[string]any{"file_path": "nope.md"})
	require.Error(t, err)
}

func TestWriteFileCreatesParents(t *testing.T) {
	t.Parallel()

	ws, run := newTestRegistry(t)

	out, err := run["write_file"](map[string]any{
		"file_path": "sub/dir/state.md",
		"content":   "hello",
	})
	require.NoError(t, err)
	require.Contains(t, out, "Wrote 5 bytes")

	got, err := ws.Read("sub/dir/state.md")
	require.NoError(t, err)
	require.Equal(t, "hello", got)
}

func TestPathEscapeRejected(t *testing.T) {
	t.Parallel()

	_, run := newTestRegistry(t)

	for _, path := range []string{
		"../outside.md",
		"sub/../../outside.md",
		"/etc/passwd",
	} {
		_, err := run["read_file"](map[string]any{"file_path": path})
		require.ErrorContains(t, err, "outside the workspace",
			"path %q", path)
	}
}

func TestEditFile(t *testing.T) {
	t.Parallel()

	ws, run := newTestRegistry(t)
	require.NoError(t, ws.Write("f.md", "aaa bbb aaa"))

	// Ambiguous match without replace_all is rejected.
	_, err := run["edit_file"](map[string]any{
		"file_path":  "f.md",
		"old_string": "aaa",
		"new_string": "zzz",
	})
	require.ErrorContains(t, err, "matches 2 times")

	out, err := run["edit_file"](map[string]any{
		"file_path":   "f.md",
		"old_string":  "aaa",
		"new_string":  "zzz",
		"replace_all": true,
	})
	require.NoError(t, err)
	require.Contains(t, out, "2 replacement(s)")

	got, err := ws.Read("f.md")
	require.NoError(t, err)
	require.Equal(t, "zzz bbb zzz", got)

	_, err = run["edit_file"](map[string]any{
		"file_path":  "f.md",
		"old_string": "missing",
		"new_string": "x",
	})
	require.ErrorContains(t, err, "not found")
}

func TestListDirectory(t *testing.T) {
	t.Parallel()

	ws, run := newTestRegistry(t)
	require.NoError(t, ws.Write("b.md", "x"))
	require.NoError(t, ws.Write("a.md", "x"))
	require.NoError(t, ws.Write(".hidden", "x"))
	require.NoError(t, ws.Write("sub/inner.md", "x"))

	out, err := run["list_directory"](map[string]any{})
	require.NoError(t, err)
	require.Equal(t, "a.md\nb.md\nsub/", out)

	out, err = run["list_directory"](map[string]any{
		"show_hidden": true,
	})
	require.NoError(t, err)
	require.Contains(t, out, ".hidden")

	out, err = run["list_directory"](map[string]any{"path": "sub"})
	require.NoError(t, err)
	require.Equal(t, "inner.md", out)
}

func TestGrepSearch(t *testing.T) {
	t.Parallel()

	ws, run := newTestRegistry(t)
	require.NoError(t, ws.Write("a.md", "needle here\nplain line\n"))
	require.NoError(t, ws.Write("sub/b.txt", "another needle\n"))

	out, err := run["grep_search"](map[string]any{"pattern": "needle"})
	require.NoError(t, err)
	require.Contains(t, out, "a.md:1: needle here")
	require.Contains(t, out, "sub/b.txt:1: another needle")

	// File glob filter narrows the walk.
	out, err = run["grep_search"](map[string]any{
		"pattern":      "needle",
		"file_pattern": "*.txt",
	})
	require.NoError(t, err)
	require.NotContains(t, out, "a.md")
	require.Contains(t, out, "b.txt")

	out, err = run["grep_search"](map[string]any{"pattern": "absent"})
	require.NoError(t, err)
	require.Equal(t, "No matches found.", out)

	_, err = run["grep_search"](map[string]any{"pattern": "(["})
	require.ErrorContains(t, err, "invalid pattern")
}
