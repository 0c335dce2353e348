package sandbox

import "testing"

func TestParseCommandsFencedBlock(t *testing.T) {
	text := "Here you go.\n```agent\n{\"action\": \"read\", \"path\": \"main.go\"}\n```\nDone."
	cmds := ParseCommands(text)
	if len(cmds) != 1 {
		t.Fatalf("got %d commands", len(cmds))
	}
	if cmds[0].Action != "read" || cmds[0].Path != "main.go" {
		t.Errorf("command = %+v", cmds[0])
	}
}

func TestParseCommandsAllFenceLanguages(t *testing.T) {
	for _, lang := range []string{"agent", "cmd", "json", "action", "AGENT", "Json"} {
		text := "```" + lang + "\n{\"action\": \"write\", \"path\": \"a.txt\", \"content\": \"x\", \"overwrite\": true}\n```"
		cmds := ParseCommands(text)
		if len(cmds) != 1 {
			t.Errorf("lang %q: got %d commands", lang, len(cmds))
			continue
		}
		if !cmds[0].Overwrite || cmds[0].Content != "x" {
			t.Errorf("lang %q: command = %+v", lang, cmds[0])
		}
	}
}

func TestParseCommandsCommentBlock(t *testing.T) {
	text := "Saving now.\n<!--AGENT-CMD\n{\"action\": \"create\", \"path\": \"notes/new.md\", \"content\": \"hello\"}\n-->"
	cmds := ParseCommands(text)
	if len(cmds) != 1 {
		t.Fatalf("got %d commands", len(cmds))
	}
	if cmds[0].Action != "create" || cmds[0].Path != "notes/new.md" {
		t.Errorf("command = %+v", cmds[0])
	}
}

func TestParseCommandsCommentWithLeadingSpace(t *testing.T) {
	text := "<!-- AGENT-CMD\n{\"action\": \"read\", \"path\": \"x\"}\n-->"
	if cmds := ParseCommands(text); len(cmds) != 1 {
		t.Errorf("got %d commands", len(cmds))
	}
}

func TestParseCommandsSkipsMalformed(t *testing.T) {
	cases := []string{
		"```json\nnot json at all\n```",
		"```json\n[1, 2, 3]\n```",
		"```json\n{\"path\": \"x\"}\n```",
		"```json\n{\"action\": \"\"}\n```",
		"```python\n{\"action\": \"read\", \"path\": \"x\"}\n```",
		"plain prose with no blocks",
		"",
	}
	for _, text := range cases {
		if cmds := ParseCommands(text); len(cmds) != 0 {
			t.Errorf("text %q: got %d commands, want 0", text, len(cmds))
		}
	}
}

func TestParseCommandsIgnoresUnrelatedFences(t *testing.T) {
	text := "```agent\n{\"action\": \"write\", \"path\": \"f.py\", \"content\": \"x\"}\n```\n" +
		"Here is the function:\n```python\ndef add(a, b):\n    return a + b\n```"
	cmds := ParseCommands(text)
	if len(cmds) != 1 {
		t.Fatalf("got %d commands, want 1", len(cmds))
	}
	if cmds[0].Path != "f.py" {
		t.Errorf("command = %+v", cmds[0])
	}
}

func TestParseCommandsMultiple(t *testing.T) {
	text := "```agent\n{\"action\": \"read\", \"path\": \"a\"}\n```\n" +
		"```cmd\n{\"action\": \"write\", \"path\": \"b\", \"content\": \"c\"}\n```\n" +
		"<!--AGENT-CMD\n{\"action\": \"read\", \"path\": \"c\"}\n-->"
	cmds := ParseCommands(text)
	if len(cmds) != 3 {
		t.Fatalf("got %d commands", len(cmds))
	}
	// Fenced blocks are collected before comment blocks.
	if cmds[0].Path != "a" || cmds[1].Path != "b" || cmds[2].Path != "c" {
		t.Errorf("order = %q, %q, %q", cmds[0].Path, cmds[1].Path, cmds[2].Path)
	}
}

func TestParseCommandsIdempotentOnSummary(t *testing.T) {
	// Summaries built from results contain no fenced command blocks, so
	// re-parsing a summary must yield nothing.
	text := "```agent\n{\"action\": \"read\", \"path\": \"a.txt\"}\n```"
	cmds := ParseCommands(text)
	results := []Result{{OK: true, Message: "read", Content: "data"}}
	summary := SummarizeResults(cmds, results)
	if again := ParseCommands(summary); len(again) != 0 {
		t.Errorf("summary re-parse produced %d commands", len(again))
	}
}
