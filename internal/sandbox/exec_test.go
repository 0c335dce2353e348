package sandbox

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"
)

func testExecutor(t *testing.T) (*Executor, string) {
	t.Helper()
	root := t.TempDir()
	return &Executor{Root: root}, root
}

func TestExecuteReadWriteRoundTrip(t *testing.T) {
	x, root := testExecutor(t)

	res := x.Execute(Command{Action: "write", Path: "src/hello.txt", Content: "hello world"})
	if !res.OK || res.Message != "written" {
		t.Fatalf("write = %+v", res)
	}
	if res.Path != filepath.Join(mustResolve(t, root), "src", "hello.txt") {
		t.Errorf("path = %q", res.Path)
	}

	res = x.Execute(Command{Action: "read", Path: "src/hello.txt"})
	if !res.OK || res.Message != "read" || res.Content != "hello world" {
		t.Errorf("read = %+v", res)
	}
}

func mustResolve(t *testing.T, path string) string {
	t.Helper()
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		t.Fatalf("eval symlinks: %v", err)
	}
	return resolved
}

func TestExecuteRejectsEscapes(t *testing.T) {
	x, _ := testExecutor(t)

	cases := []string{
		"../outside.txt",
		"a/../../outside.txt",
		"/etc/passwd",
		"",
	}
	for _, p := range cases {
		res := x.Execute(Command{Action: "read", Path: p})
		if res.OK {
			t.Errorf("path %q: escape allowed", p)
		}
		if !strings.HasPrefix(res.Message, "path error:") {
			t.Errorf("path %q: message = %q", p, res.Message)
		}
	}
}

func TestExecuteRejectsSymlinkEscape(t *testing.T) {
	x, root := testExecutor(t)
	outside := t.TempDir()
	target := filepath.Join(outside, "secret.txt")
	if err := os.WriteFile(target, []byte("secret"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(target, filepath.Join(root, "link.txt")); err != nil {
		t.Skipf("symlink: %v", err)
	}

	res := x.Execute(Command{Action: "read", Path: "link.txt"})
	if res.OK {
		t.Errorf("symlink escape allowed: %+v", res)
	}
}

func TestExecuteRejectsWriteThroughSymlinkedDir(t *testing.T) {
	x, root := testExecutor(t)
	outside := t.TempDir()
	if err := os.Symlink(outside, filepath.Join(root, "link")); err != nil {
		t.Skipf("symlink: %v", err)
	}

	// The target does not exist yet; its parent is a link out of the root.
	res := x.Execute(Command{Action: "write", Path: "link/new.txt", Content: "escaped"})
	if res.OK {
		t.Fatalf("write through linked directory allowed: %+v", res)
	}
	if !strings.HasPrefix(res.Message, "path error:") {
		t.Errorf("message = %q", res.Message)
	}
	if _, err := os.Stat(filepath.Join(outside, "new.txt")); !os.IsNotExist(err) {
		t.Error("file was created outside the root")
	}
}

func TestExecuteReadMissingFile(t *testing.T) {
	x, _ := testExecutor(t)
	res := x.Execute(Command{Action: "read", Path: "nope.txt"})
	if res.OK || res.Message != "file not found" {
		t.Errorf("read = %+v", res)
	}
}

func TestExecuteReadLossyDecode(t *testing.T) {
	x, root := testExecutor(t)
	if err := os.WriteFile(filepath.Join(root, "bin.txt"), []byte{'o', 'k', 0xff, 0xfe, '!'}, 0o644); err != nil {
		t.Fatal(err)
	}
	res := x.Execute(Command{Action: "read", Path: "bin.txt"})
	if !res.OK {
		t.Fatalf("read = %+v", res)
	}
	if !strings.HasPrefix(res.Content, "ok") || !strings.HasSuffix(res.Content, "!") {
		t.Errorf("content = %q", res.Content)
	}
	if !strings.Contains(res.Content, "�") {
		t.Errorf("invalid bytes should become replacement runes, got %q", res.Content)
	}
}

func TestExecuteWriteOverwriteGuard(t *testing.T) {
	x, _ := testExecutor(t)

	if res := x.Execute(Command{Action: "create", Path: "f.txt", Content: "v1"}); !res.OK {
		t.Fatalf("create = %+v", res)
	}
	res := x.Execute(Command{Action: "write", Path: "f.txt", Content: "v2"})
	if res.OK || res.Message != "file exists and overwrite not allowed" {
		t.Errorf("guarded write = %+v", res)
	}
	if got := x.Execute(Command{Action: "read", Path: "f.txt"}); got.Content != "v1" {
		t.Errorf("original content lost: %q", got.Content)
	}

	res = x.Execute(Command{Action: "write", Path: "f.txt", Content: "v2\nextra", Overwrite: true})
	if !res.OK {
		t.Fatalf("overwrite = %+v", res)
	}
	if !strings.HasPrefix(res.Message, "written (+") {
		t.Errorf("overwrite message = %q", res.Message)
	}
	if got := x.Execute(Command{Action: "read", Path: "f.txt"}); got.Content != "v2\nextra" {
		t.Errorf("content = %q", got.Content)
	}
}

func TestExecuteWriteLeavesNoTempFiles(t *testing.T) {
	x, root := testExecutor(t)
	if res := x.Execute(Command{Action: "write", Path: "deep/nested/f.txt", Content: "data"}); !res.OK {
		t.Fatalf("write = %+v", res)
	}
	entries, err := os.ReadDir(filepath.Join(root, "deep", "nested"))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp_write_") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestExecuteWriteScrubsAttachmentPaths(t *testing.T) {
	x, _ := testExecutor(t)
	content := "real line\n/tmp/ai-chat-attachment-1.txt\nmore"
	if res := x.Execute(Command{Action: "write", Path: "out.txt", Content: content}); !res.OK {
		t.Fatalf("write = %+v", res)
	}
	got := x.Execute(Command{Action: "read", Path: "out.txt"})
	if got.Content != "real line\nmore" {
		t.Errorf("content = %q", got.Content)
	}
}

func TestExecuteUnsupportedAction(t *testing.T) {
	x, _ := testExecutor(t)
	res := x.Execute(Command{Action: "delete", Path: "f.txt"})
	if res.OK || res.Message != "unsupported action: delete" {
		t.Errorf("result = %+v", res)
	}
}

func TestExecuteWriteNotifiesEditorForCodeFiles(t *testing.T) {
	x, _ := testExecutor(t)
	var opened []string
	x.OpenInEditor = func(path string) { opened = append(opened, path) }

	if res := x.Execute(Command{Action: "write", Path: "app.go", Content: "package app"}); !res.OK {
		t.Fatal(res.Message)
	}
	if res := x.Execute(Command{Action: "write", Path: "data.bin", Content: "x"}); !res.OK {
		t.Fatal(res.Message)
	}
	if len(opened) != 1 || !strings.HasSuffix(opened[0], "app.go") {
		t.Errorf("opened = %v", opened)
	}
}

func TestIsCodeFile(t *testing.T) {
	if !IsCodeFile("x/y/main.GO") || !IsCodeFile("script.py") || !IsCodeFile("README.md") {
		t.Error("code files not recognized")
	}
	if IsCodeFile("image.png") || IsCodeFile("archive.tar.gz") || IsCodeFile("noext") {
		t.Error("non-code files recognized")
	}
}

func TestSummarizeResults(t *testing.T) {
	cmds := []Command{
		{Action: "read", Path: "a.txt"},
		{Action: "write", Path: "b.txt"},
	}
	results := []Result{
		{OK: true, Message: "read", Content: strings.Repeat("z", 600)},
		{OK: false, Message: "file exists and overwrite not allowed"},
	}
	got := SummarizeResults(cmds, results)
	if !strings.HasPrefix(got, "[File operations executed]") {
		t.Errorf("summary = %q", got)
	}
	if !strings.Contains(got, "read: read") || !strings.Contains(got, "write: file exists and overwrite not allowed") {
		t.Errorf("summary = %q", got)
	}
	if !strings.Contains(got, "... (truncated)") {
		t.Error("long read preview should be truncated")
	}
	if SummarizeResults(nil, nil) != "" {
		t.Error("empty commands should summarize to empty string")
	}
}

func TestSummarizeResultsPreviewKeepsRunesIntact(t *testing.T) {
	// Byte 500 lands inside a multibyte rune.
	content := strings.Repeat("z", 499) + strings.Repeat("日", 10)
	cmds := []Command{{Action: "read", Path: "a.txt"}}
	results := []Result{{OK: true, Message: "read", Content: content}}
	got := SummarizeResults(cmds, results)
	if !utf8.ValidString(got) {
		t.Error("summary contains invalid UTF-8")
	}
	if !strings.Contains(got, "... (truncated)") {
		t.Error("preview not truncated")
	}
}
