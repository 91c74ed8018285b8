// Package tools builds the concrete tool registries offered to actors:
// filesystem access confined to the workspace directory, and recall tools
// over the message store.
package tools

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/roasbeef/lethe/internal/llm"
	"github.com/roasbeef/lethe/internal/workspace"
)

const (
	// defaultReadLimit bounds how many lines read_file returns when the
	// caller gives no limit.
	defaultReadLimit = 2000

	// maxGrepMatches caps grep_search output.
	maxGrepMatches = 200
)

// WorkspaceTools returns the file tool set rooted at the workspace. Every
// path argument is resolved inside the workspace root; escapes are rejected.
func WorkspaceTools(ws *workspace.Dir) llm.Registry {
	return llm.NewRegistry(
		readFileTool(ws),
		writeFileTool(ws),
		editFileTool(ws),
		listDirectoryTool(ws),
		grepSearchTool(ws),
	)
}

// resolvePath confines a tool-supplied path to the workspace. Absolute paths
// are accepted only when they already point inside the root.
func resolvePath(ws *workspace.Dir, path string) (string, error) {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = ws.Path(path)
	}
	abs = filepath.Clean(abs)

	root := ws.Root()
	if abs != root && !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside the workspace", path)
	}

	return abs, nil
}

func readFileTool(ws *workspace.Dir) llm.Tool {
	return llm.Tool{
		Name: "read_file",
		Description: "Read a file from the workspace with line " +
			"numbers",
		InputSchema: llm.ObjectSchema(map[string]any{
			"file_path": map[string]any{
				"type":        "string",
				"description": "Path to read, relative to the workspace",
			},
			"offset": map[string]any{
				"type":        "integer",
				"description": "Starting line (0-indexed)",
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "Max lines to read",
			},
		}, "file_path"),
		Run: func(ctx context.Context,
			args map[string]any) (string, error) {

			path, err := llm.StringArg(args, "file_path")
			if err != nil {
				return "", err
			}
			offset, err := llm.OptionalNumberArg(args, "offset", 0)
			if err != nil {
				return "", err
			}
			limit, err := llm.OptionalNumberArg(
				args, "limit", defaultReadLimit,
			)
			if err != nil {
				return "", err
			}

			abs, err := resolvePath(ws, path)
			if err != nil {
				return "", err
			}
			data, err := os.ReadFile(abs)
			if err != nil {
				return "", err
			}

			lines := strings.Split(
				strings.TrimRight(string(data), "\n"), "\n",
			)
			start := int(offset)
			if start >= len(lines) {
				return "(no lines in range)", nil
			}
			end := start + int(limit)
			if end > len(lines) {
				end = len(lines)
			}

			var b strings.Builder
			for i := start; i < end; i++ {
				fmt.Fprintf(&b, "%6d\t%s\n", i+1, lines[i])
			}

			return strings.TrimRight(b.String(), "\n"), nil
		},
	}
}

func writeFileTool(ws *workspace.Dir) llm.Tool {
	return llm.Tool{
		Name: "write_file",
		Description: "Write content to a workspace file (creates " +
			"parent dirs if needed)",
		InputSchema: llm.ObjectSchema(map[string]any{
			"file_path": map[string]any{
				"type":        "string",
				"description": "Path to write, relative to the workspace",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Content to write",
			},
		}, "file_path", "content"),
		Run: func(ctx context.Context,
			args map[string]any) (string, error) {

			path, err := llm.StringArg(args, "file_path")
			if err != nil {
				return "", err
			}
			content, err := llm.StringArg(args, "content")
			if err != nil {
				return "", err
			}

			abs, err := resolvePath(ws, path)
			if err != nil {
				return "", err
			}
			rel, err := filepath.Rel(ws.Root(), abs)
			if err != nil {
				return "", err
			}
			if err := ws.Write(rel, content); err != nil {
				return "", err
			}

			log.DebugS(ctx, "Tool wrote file",
				"path", rel,
				"bytes", len(content))

			return fmt.Sprintf("Wrote %d bytes to %s",
				len(content), rel), nil
		},
	}
}

func editFileTool(ws *workspace.Dir) llm.Tool {
	return llm.Tool{
		Name:        "edit_file",
		Description: "Edit a workspace file by replacing text",
		InputSchema: llm.ObjectSchema(map[string]any{
			"file_path": map[string]any{
				"type":        "string",
				"description": "Path to edit, relative to the workspace",
			},
			"old_string": map[string]any{
				"type":        "string",
				"description": "Text to find",
			},
			"new_string": map[string]any{
				"type":        "string",
				"description": "Replacement text",
			},
			"replace_all": map[string]any{
				"type":        "boolean",
				"description": "Replace all occurrences",
			},
		}, "file_path", "old_string", "new_string"),
		Run: func(ctx context.Context,
			args map[string]any) (string, error) {

			path, err := llm.StringArg(args, "file_path")
			if err != nil {
				return "", err
			}
			oldStr, err := llm.StringArg(args, "old_string")
			if err != nil {
				return "", err
			}
			newStr, err := llm.StringArg(args, "new_string")
			if err != nil {
				return "", err
			}
			replaceAll, err := llm.OptionalBoolArg(
				args, "replace_all", false,
			)
			if err != nil {
				return "", err
			}

			abs, err := resolvePath(ws, path)
			if err != nil {
				return "", err
			}
			rel, err := filepath.Rel(ws.Root(), abs)
			if err != nil {
				return "", err
			}

			data, err := ws.Read(rel)
			if err != nil {
				return "", err
			}

			count := strings.Count(data, oldStr)
			switch {
			case count == 0:
				return "", fmt.Errorf("old_string not found "+
					"in %s", rel)

			case count > 1 && !replaceAll:
				return "", fmt.Errorf("old_string matches %d "+
					"times in %s; pass replace_all or "+
					"disambiguate", count, rel)
			}

			replaced := count
			if !replaceAll {
				replaced = 1
			}
			updated := strings.Replace(
				data, oldStr, newStr, replaced,
			)
			if err := ws.Write(rel, updated); err != nil {
				return "", err
			}

			return fmt.Sprintf("Edited %s (%d replacement(s))",
				rel, replaced), nil
		},
	}
}

func listDirectoryTool(ws *workspace.Dir) llm.Tool {
	return llm.Tool{
		Name:        "list_directory",
		Description: "List workspace directory contents",
		InputSchema: llm.ObjectSchema(map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Directory path, relative to the workspace",
			},
			"show_hidden": map[string]any{
				"type":        "boolean",
				"description": "Include hidden files",
			},
		}),
		Run: func(ctx context.Context,
			args map[string]any) (string, error) {

			path, err := llm.OptionalStringArg(args, "path", ".")
			if err != nil {
				return "", err
			}
			showHidden, err := llm.OptionalBoolArg(
				args, "show_hidden", false,
			)
			if err != nil {
				return "", err
			}

			abs, err := resolvePath(ws, path)
			if err != nil {
				return "", err
			}
			entries, err := os.ReadDir(abs)
			if err != nil {
				return "", err
			}

			var names []string
			for _, e := range entries {
				name := e.Name()
				if !showHidden &&
					strings.HasPrefix(name, ".") {

					continue
				}
				if e.IsDir() {
					name += "/"
				}
				names = append(names, name)
			}
			if len(names) == 0 {
				return "(empty)", nil
			}
			sort.Strings(names)

			return strings.Join(names, "\n"), nil
		},
	}
}

func grepSearchTool(ws *workspace.Dir) llm.Tool {
	return llm.Tool{
		Name:        "grep_search",
		Description: "Search for a regex pattern in workspace files",
		InputSchema: llm.ObjectSchema(map[string]any{
			"pattern": map[string]any{
				"type":        "string",
				"description": "Regex pattern",
			},
			"path": map[string]any{
				"type":        "string",
				"description": "Directory to search, relative to the workspace",
			},
			"file_pattern": map[string]any{
				"type":        "string",
				"description": "File glob filter (e.g. *.md)",
			},
		}, "pattern"),
		Run: func(ctx context.Context,
			args map[string]any) (string, error) {

			pattern, err := llm.StringArg(args, "pattern")
			if err != nil {
				return "", err
			}
			path, err := llm.OptionalStringArg(args, "path", ".")
			if err != nil {
				return "", err
			}
			filePattern, err := llm.OptionalStringArg(
				args, "file_pattern", "",
			)
			if err != nil {
				return "", err
			}

			re, err := regexp.Compile(pattern)
			if err != nil {
				return "", fmt.Errorf("invalid pattern: %w",
					err)
			}
			abs, err := resolvePath(ws, path)
			if err != nil {
				return "", err
			}

			matches, err := grepDir(ws, abs, re, filePattern)
			if err != nil {
				return "", err
			}
			if len(matches) == 0 {
				return "No matches found.", nil
			}

			out := strings.Join(matches, "\n")
			if len(matches) == maxGrepMatches {
				out += "\n(results truncated)"
			}

			return out, nil
		},
	}
}

// grepDir walks dir and returns "path:line: text" matches, capped at
// maxGrepMatches.
func grepDir(ws *workspace.Dir, dir string, re *regexp.Regexp,
	filePattern string) ([]string, error) {

	var matches []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry,
		err error) error {

		if err != nil {
			return err
		}
		if d.IsDir() || len(matches) >= maxGrepMatches {
			return nil
		}
		if filePattern != "" {
			ok, err := filepath.Match(filePattern, d.Name())
			if err != nil || !ok {
				return err
			}
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(ws.Root(), path)
		if err != nil {
			return err
		}

		for i, line := range strings.Split(string(data), "\n") {
			if len(matches) >= maxGrepMatches {
				return nil
			}
			if re.MatchString(line) {
				matches = append(matches, fmt.Sprintf(
					"%s:%d: %s", rel, i+1, line,
				))
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return matches, nil
}
