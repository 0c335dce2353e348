package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Result reports the outcome of one executed command.
type Result struct {
	OK      bool
	Message string
	Content string
	Path    string
}

// Executor performs validated file operations inside a project root.
// OpenInEditor, when set, is invoked after a successful write to a
// recognized source file.
type Executor struct {
	Root         string
	OpenInEditor func(path string)
}

// codeExtensions are the file types handed to the editor callback after a
// successful write.
var codeExtensions = map[string]bool{
	".py": true, ".js": true, ".jsx": true, ".ts": true, ".tsx": true,
	".html": true, ".htm": true, ".css": true, ".json": true,
	".xml": true, ".yaml": true, ".yml": true, ".md": true, ".txt": true,
	".sql": true, ".sh": true, ".bash": true,
	".cpp": true, ".c": true, ".h": true, ".hpp": true,
	".java": true, ".go": true, ".rs": true, ".rb": true, ".php": true,
}

// IsCodeFile reports whether a path has a recognized source extension.
func IsCodeFile(path string) bool {
	return codeExtensions[strings.ToLower(filepath.Ext(path))]
}

// Execute runs a single parsed agent command.
//
// Supported actions:
//   - read: {action: "read", path: "rel/or/abs"} -> returns file content
//   - write / create / write_file: {action: "write", path: "", content: "", overwrite: bool}
//
// Failures are reported in the Result, never as panics or partial writes.
func (x *Executor) Execute(cmd Command) Result {
	action := strings.ToLower(strings.TrimSpace(cmd.Action))
	switch action {
	case "read", "write", "create", "write_file":
	default:
		return Result{OK: false, Message: fmt.Sprintf("unsupported action: %s", action)}
	}

	path, err := resolvePath(defaultRoot(x.Root), cmd.Path)
	if err != nil {
		return Result{OK: false, Message: fmt.Sprintf("path error: %v", err)}
	}

	if action == "read" {
		return x.read(path)
	}
	return x.write(path, cmd.Content, cmd.Overwrite)
}

// ExecuteAll runs each command in order and returns the paired results.
func (x *Executor) ExecuteAll(cmds []Command) []Result {
	results := make([]Result, len(cmds))
	for i, cmd := range cmds {
		results[i] = x.Execute(cmd)
	}
	return results
}

func (x *Executor) read(path string) Result {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return Result{OK: false, Message: "file not found"}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{OK: false, Message: fmt.Sprintf("read error: %v", err)}
	}
	content := string(data)
	if !utf8.ValidString(content) {
		// Lossy decode: invalid bytes become replacement runes.
		content = strings.ToValidUTF8(content, "�")
	}
	return Result{OK: true, Message: "read", Content: content, Path: path}
}

// write performs an atomic write: content goes to a temp file in the
// destination directory, is fsynced, then renamed over the target. A
// crash mid-write leaves either the old file or the new one, never a
// truncated mix.
func (x *Executor) write(path, content string, overwrite bool) Result {
	content = FilterAttachmentPaths(content)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Result{OK: false, Message: fmt.Sprintf("write error: %v", err)}
	}

	var oldContent string
	if data, err := os.ReadFile(path); err == nil {
		if !overwrite {
			return Result{OK: false, Message: "file exists and overwrite not allowed"}
		}
		oldContent = string(data)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp_write_*")
	if err != nil {
		return Result{OK: false, Message: fmt.Sprintf("write error: %v", err)}
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return Result{OK: false, Message: fmt.Sprintf("write error: %v", err)}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return Result{OK: false, Message: fmt.Sprintf("write error: %v", err)}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return Result{OK: false, Message: fmt.Sprintf("write error: %v", err)}
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return Result{OK: false, Message: fmt.Sprintf("write error: %v", err)}
	}

	message := "written"
	if oldContent != "" && oldContent != content {
		added, removed := countLineChanges(oldContent, content)
		message = fmt.Sprintf("written (+%d/-%d lines)", added, removed)
	}

	if x.OpenInEditor != nil && IsCodeFile(path) {
		x.OpenInEditor(path)
	}

	return Result{OK: true, Message: message, Path: path}
}

// countLineChanges computes added and removed line counts between two
// versions of a file.
func countLineChanges(oldContent, newContent string) (added, removed int) {
	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(oldContent, newContent)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)
	for _, d := range diffs {
		n := strings.Count(d.Text, "\n")
		if n == 0 && d.Text != "" {
			n = 1
		}
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += n
		case diffmatchpatch.DiffDelete:
			removed += n
		}
	}
	return added, removed
}

// SummarizeResults folds command results into the short transcript
// summary shown in place of the raw command blocks. Read results include
// a truncated preview of the file content.
func SummarizeResults(cmds []Command, results []Result) string {
	if len(cmds) == 0 {
		return ""
	}
	const maxPreview = 500

	var b strings.Builder
	b.WriteString("[File operations executed]")
	for i, cmd := range cmds {
		res := results[i]
		fmt.Fprintf(&b, "\n  - %s: %s", strings.ToLower(strings.TrimSpace(cmd.Action)), res.Message)
		if res.OK && strings.ToLower(strings.TrimSpace(cmd.Action)) == "read" && res.Content != "" {
			preview := res.Content
			if len(preview) > maxPreview {
				preview = truncateRunes(preview, maxPreview) + "\n... (truncated)"
			}
			fmt.Fprintf(&b, "\n--- %s ---\n%s\n--- end ---", cmd.Path, preview)
		}
	}
	return b.String()
}

// truncateRunes cuts s to at most max bytes without splitting a rune.
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
