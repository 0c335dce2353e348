package sandbox

import "strings"

// Content markers inserted around inlined attachment content; they carry
// no meaning once the attachment is gone.
const (
	attachmentStartMarker = "--- Content from referenced files ---"
	attachmentEndMarker   = "--- End of content ---"
)

// isTempAttachmentLine reports whether a line looks like a temporary
// attachment path that should never reach a provider or a written file.
func isTempAttachmentLine(line string) bool {
	stripped := strings.TrimSpace(line)
	lower := strings.ToLower(stripped)
	if strings.HasPrefix(lower, "@") {
		lower = lower[1:]
	}
	if strings.Contains(lower, "/tmp/") && strings.Contains(lower, "ai-chat-attachment") {
		return true
	}
	if strings.Contains(lower, "/tmp/") && strings.Contains(lower, "attachment") && len(stripped) < 100 {
		return true
	}
	return false
}

// FilterAttachmentPaths removes temporary attachment paths and their
// content markers from text, so the agent never echoes scratch-file paths
// into replies or written files.
func FilterAttachmentPaths(text string) string {
	lines := strings.Split(text, "\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		if isTempAttachmentLine(line) {
			continue
		}
		if strings.Contains(line, attachmentStartMarker) || strings.Contains(line, attachmentEndMarker) {
			continue
		}
		filtered = append(filtered, line)
	}
	return strings.Join(filtered, "\n")
}
