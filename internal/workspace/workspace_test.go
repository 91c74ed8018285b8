package workspace

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestDir(t *testing.T) *Dir {
	t.Helper()
	d, err := New(t.TempDir())
	require.NoError(t, err)
	return d
}

func TestWriteReadRoundTrip(t *testing.T) {
	t.Parallel()

	d := newTestDir(t)

	require.NoError(t, d.Write("state.md", "baseline"))
	got, err := d.Read("state.md")
	require.NoError(t, err)
	require.Equal(t, "baseline", got)

	// Overwrite replaces wholesale.
	require.NoError(t, d.Write("state.md", "v2"))
	require.Equal(t, "v2", d.ReadOr("state.md", "fallback"))
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	d := newTestDir(t)
	require.NoError(t, d.Write("f.md", "data"))

	entries, err := os.ReadDir(d.Root())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "f.md", entries[0].Name())
}

func TestReadOrFallback(t *testing.T) {
	t.Parallel()

	d := newTestDir(t)
	require.Equal(t, "(none)", d.ReadOr("missing.md", "(none)"))
}

func TestAppend(t *testing.T) {
	t.Parallel()

	d := newTestDir(t)

	require.NoError(t, d.Append("log.md", "line one\n"))
	require.NoError(t, d.Append("log.md", "line two\n"))

	got, err := d.Read("log.md")
	require.NoError(t, err)
	require.Equal(t, "line one\nline two\n", got)
}

func TestCompactLogBelowThresholdIsNoop(t *testing.T) {
	t.Parallel()

	d := newTestDir(t)
	require.NoError(t, d.Write("tags.md", "short\n"))

	pruned, err := d.CompactLog("tags.md", "Emotional tags", 1000, 10)
	require.NoError(t, err)
	require.Zero(t, pruned)

	got, err := d.Read("tags.md")
	require.NoError(t, err)
	require.Equal(t, "short\n", got)
}

func TestCompactLogMissingFileIsNoop(t *testing.T) {
	t.Parallel()

	d := newTestDir(t)
	pruned, err := d.CompactLog("missing.md", "Emotional tags", 10, 5)
	require.NoError(t, err)
	require.Zero(t, pruned)
}

func TestCompactLogTruncatesWithHeader(t *testing.T) {
	t.Parallel()

	d := newTestDir(t)

	var b strings.Builder
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&b, "- tag entry %02d\n", i)
	}
	require.NoError(t, d.Write("tags.md", b.String()))

	pruned, err := d.CompactLog("tags.md", "Emotional tags", 100, 10)
	require.NoError(t, err)
	require.Equal(t, 40, pruned)

	got, err := d.Read("tags.md")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(got, "\n"), "\n")
	require.Len(t, lines, 12)
	require.True(t, strings.HasPrefix(
		lines[0], "# Emotional tags (compacted at ",
	))
	require.Equal(t, "- pruned_lines: 40", lines[1])
	require.Equal(t, "- tag entry 40", lines[2])
	require.Equal(t, "- tag entry 49", lines[11])
}

// TestCompactLogIdempotent verifies that recompacting a compacted log keeps
// exactly one header at the top and does not touch a file below the
// threshold.
func TestCompactLogIdempotent(t *testing.T) {
	t.Parallel()

	d := newTestDir(t)

	var b strings.Builder
	for i := 0; i < 100; i++ {
		fmt.Fprintf(&b, "- tag entry number %03d\n", i)
	}
	require.NoError(t, d.Write("tags.md", b.String()))

	_, err := d.CompactLog("tags.md", "Emotional tags", 200, 5)
	require.NoError(t, err)
	first, err := d.Read("tags.md")
	require.NoError(t, err)

	// Below threshold now: a second compaction is a no-op.
	pruned, err := d.CompactLog("tags.md", "Emotional tags", 100000, 5)
	require.NoError(t, err)
	require.Zero(t, pruned)
	second, err := d.Read("tags.md")
	require.NoError(t, err)
	require.Equal(t, first, second)

	// Force a recompaction: the old header is replaced, not stacked.
	pruned, err = d.CompactLog("tags.md", "Emotional tags", 10, 3)
	require.NoError(t, err)
	require.Equal(t, 2, pruned)

	got, err := d.Read("tags.md")
	require.NoError(t, err)
	require.Equal(t, 1, strings.Count(got, "# Emotional tags (compacted"))
	require.Equal(t, 1, strings.Count(got, "- pruned_lines:"))

	lines := strings.Split(strings.TrimRight(got, "\n"), "\n")
	require.Equal(t, "- tag entry number 097", lines[2])
	require.Equal(t, "- tag entry number 099", lines[4])
}
