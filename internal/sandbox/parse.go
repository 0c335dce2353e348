// Package sandbox implements the agent command protocol: extracting JSON
// commands from assistant text and executing validated file operations
// inside a single project root.
package sandbox

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Command is a single parsed agent command.
type Command struct {
	Action    string
	Path      string
	Content   string
	Overwrite bool
}

var (
	fenceRe   = regexp.MustCompile("(?is)```(?:agent|cmd|json|action)\\n(.*?)\\n```")
	commentRe = regexp.MustCompile(`(?is)<!--\s*AGENT-CMD\n(.*?)\n-->`)
)

// ParseCommands extracts JSON agent commands from assistant text.
//
// Supported patterns:
//   - ```agent ... ``` fenced blocks (languages: agent, cmd, json, action)
//   - <!--AGENT-CMD ... --> HTML-style comment blocks
//
// Each JSON object must include a non-empty "action" key. Blocks that are
// not valid JSON objects, or lack an action, are silently skipped so prose
// code examples never trigger file operations.
func ParseCommands(text string) []Command {
	var commands []Command
	if text == "" {
		return commands
	}

	for _, re := range []*regexp.Regexp{fenceRe, commentRe} {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			raw := strings.TrimSpace(m[1])
			var obj map[string]any
			if err := json.Unmarshal([]byte(raw), &obj); err != nil {
				continue
			}
			action, _ := obj["action"].(string)
			if strings.TrimSpace(action) == "" {
				continue
			}
			cmd := Command{Action: action}
			if p, ok := obj["path"].(string); ok {
				cmd.Path = p
			}
			if c, ok := obj["content"].(string); ok {
				cmd.Content = c
			}
			if b, ok := obj["overwrite"].(bool); ok {
				cmd.Overwrite = b
			}
			commands = append(commands, cmd)
		}
	}

	return commands
}
