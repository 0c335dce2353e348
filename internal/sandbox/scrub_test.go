package sandbox

import (
	"strings"
	"testing"
)

func TestFilterAttachmentPaths(t *testing.T) {
	text := strings.Join([]string{
		"keep this line",
		"/tmp/ai-chat-attachment-8231.txt",
		"@/tmp/ai-chat-attachment-99.png",
		"/tmp/attachment-x",
		"--- Content from referenced files ---",
		"also keep",
		"--- End of content ---",
	}, "\n")
	got := FilterAttachmentPaths(text)
	want := "keep this line\nalso keep"
	if got != want {
		t.Errorf("filtered = %q, want %q", got, want)
	}
}

func TestFilterAttachmentPathsKeepsLongTmpLines(t *testing.T) {
	long := "/tmp/attachment-" + strings.Repeat("x", 100) + " is discussed at length in this sentence about file handling"
	got := FilterAttachmentPaths(long)
	if got != long {
		t.Errorf("long line should survive, got %q", got)
	}
}

func TestFilterAttachmentPathsNoChanges(t *testing.T) {
	text := "ordinary text\nwith lines\nand /var/tmp mention"
	if got := FilterAttachmentPaths(text); got != text {
		t.Errorf("text mutated: %q", got)
	}
}
