// Package workspace is the file adapter for actor-owned state under a
// configured directory: reads with fallback, atomic writes, appends, and
// bounded log compaction.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/roasbeef/lethe/internal/build"
)

var log = build.NewSubLogger("WKSP")

// Dir provides file access rooted at a workspace directory. All operations
// use absolute paths derived from the root; callers pass bare file names.
type Dir struct {
	root string
}

// New creates the workspace directory if needed and returns the adapter.
func New(root string) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0700); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	return &Dir{root: abs}, nil
}

// Root returns the absolute workspace path.
func (d *Dir) Root() string {
	return d.root
}

// Path returns the absolute path of a workspace file.
func (d *Dir) Path(name string) string {
	return filepath.Join(d.root, name)
}

// Read returns the file contents.
func (d *Dir) Read(name string) (string, error) {
	data, err := os.ReadFile(d.Path(name))
	if err != nil {
		return "", err
	}

	return string(data), nil
}

// ReadOr returns the file contents, or the fallback when the file does not
// exist yet.
func (d *Dir) ReadOr(name, fallback string) string {
	data, err := d.Read(name)
	if err != nil {
		return fallback
	}

	return data
}

// Write replaces the file contents atomically: the data is written to a
// temp sibling first and renamed into place, so readers never observe a
// partial file. Parent directories are created as needed.
func (d *Dir) Write(name, content string) error {
	target := d.Path(name)

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(name)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename into place: %w", err)
	}

	return nil
}

// Append adds text to the end of the file, creating it if needed.
func (d *Dir) Append(name, text string) error {
	f, err := os.OpenFile(
		d.Path(name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600,
	)
	if err != nil {
		return fmt.Errorf("open for append: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(text); err != nil {
		return fmt.Errorf("append: %w", err)
	}

	return nil
}

// CompactLog bounds an append-only log: when the file exceeds maxBytes it is
// truncated to its last keepLines lines, prefixed with a compaction header
// carrying the label, an ISO timestamp, and the pruned line count. Earlier
// compaction headers are dropped so the header appears at most once, at the
// top. Returns the number of pruned lines, zero when no compaction ran.
func (d *Dir) CompactLog(name, label string, maxBytes,
	keepLines int) (int, error) {

	data, err := d.Read(name)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(data) <= maxBytes {
		return 0, nil
	}

	headerPrefix := "# " + label + " (compacted at "

	var content []string
	for _, line := range strings.Split(
		strings.TrimRight(data, "\n"), "\n",
	) {
		if strings.HasPrefix(line, headerPrefix) ||
			strings.HasPrefix(line, "- pruned_lines:") {

			continue
		}
		content = append(content, line)
	}

	kept := content
	if len(kept) > keepLines {
		kept = kept[len(kept)-keepLines:]
	}
	pruned := len(content) - len(kept)

	var b strings.Builder
	fmt.Fprintf(&b, "# %s (compacted at %s)\n", label,
		time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- pruned_lines: %d\n", pruned)
	b.WriteString(strings.Join(kept, "\n"))
	b.WriteString("\n")

	if err := d.Write(name, b.String()); err != nil {
		return 0, err
	}

	log.DebugS(context.Background(), "Compacted log",
		"file", name,
		"pruned_lines", pruned,
		"kept_lines", len(kept))

	return pruned, nil
}
