package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// Reasoning effort tiers. The dispatcher maps these onto sampling
// temperature bounds.
const (
	EffortLow      = 0
	EffortStandard = 1
	EffortHigh     = 2
)

// Preferences holds user-configurable behavior settings.
// Persisted to ~/.config/chatd/config.json.
type Preferences struct {
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`

	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`

	ReasoningEffort      int `json:"reasoning_effort"`
	AgentReasoningEffort int `json:"agent_reasoning_effort"`

	// Agent settings
	ProjectRoot   string `json:"project_root,omitempty"`
	OpenInEditor  bool   `json:"open_in_editor"`
	EditorCommand string `json:"editor_command,omitempty"`

	// Event loop cadence in milliseconds.
	PollIntervalMs int `json:"poll_interval_ms"`

	// API keys
	GroqAPIKey      string `json:"groq_api_key,omitempty"`
	OpenAIAPIKey    string `json:"openai_api_key,omitempty"`
	AnthropicAPIKey string `json:"anthropic_api_key,omitempty"`
	GeminiAPIKey    string `json:"gemini_api_key,omitempty"`
	XAIAPIKey       string `json:"xai_api_key,omitempty"`
}

// PrefEntry holds a single key-value preference entry for display.
type PrefEntry struct {
	Key   string
	Value string
}

// ConfigGroup holds a named group of preference entries for display.
type ConfigGroup struct {
	Name    string
	Entries []PrefEntry
}

// ConfigGroupDef defines a single group with a name and its keys.
type ConfigGroupDef struct {
	Name string
	Keys []string
}

// ConfigGroupDefs defines the preference key groupings and their display order.
var ConfigGroupDefs = []ConfigGroupDef{
	{
		Name: "models",
		Keys: []string{"provider", "model", "groq.api_key", "openai.api_key", "anthropic.api_key", "gemini.api_key", "xai.api_key"},
	},
	{
		Name: "chat",
		Keys: []string{"chat.temperature", "chat.max_tokens", "chat.reasoning_effort"},
	},
	{
		Name: "agent",
		Keys: []string{"agent.project_root", "agent.reasoning_effort", "agent.open_in_editor", "agent.editor_command"},
	},
	{
		Name: "engine",
		Keys: []string{"poll.interval_ms"},
	},
}

// ConfigGroupNames returns the list of valid group names.
func ConfigGroupNames() []string {
	names := make([]string, len(ConfigGroupDefs))
	for i, g := range ConfigGroupDefs {
		names[i] = g.Name
	}
	return names
}

// ValidConfigKeys returns all config keys accepted by Set().
func ValidConfigKeys() []string {
	var keys []string
	for _, g := range ConfigGroupDefs {
		keys = append(keys, g.Keys...)
	}
	return keys
}

// DefaultPreferences returns the default set of preferences.
func DefaultPreferences() Preferences {
	return Preferences{
		Provider:             "groq",
		Model:                "",
		Temperature:          0.7,
		MaxTokens:            1024,
		ReasoningEffort:      EffortStandard,
		AgentReasoningEffort: EffortStandard,
		OpenInEditor:         true,
		PollIntervalMs:       120,
	}
}

// LoadPreferences reads preferences from ~/.config/chatd/config.json.
func LoadPreferences() Preferences {
	dir := ConfigDir()
	if dir == "" {
		return DefaultPreferences()
	}

	configPath := filepath.Join(dir, "config.json")
	p := DefaultPreferences()

	if data, err := os.ReadFile(configPath); err == nil {
		if err := json.Unmarshal(data, &p); err != nil {
			fmt.Fprintf(os.Stderr, "config: parse %s: %v\n", configPath, err)
		}
		warnInsecurePermissions(configPath)
	}

	if sanitizePreferences(&p) {
		// Persist cleaned values so null bytes don't accumulate across restarts.
		if err := SavePreferences(p); err != nil {
			fmt.Fprintf(os.Stderr, "config: save sanitized config: %v\n", err)
		}
	}

	return p
}

// SavePreferences writes preferences to ~/.config/chatd/config.json.
func SavePreferences(p Preferences) error {
	dir := ConfigDir()
	if dir == "" {
		return fmt.Errorf("could not determine config directory")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0o600)
}

// warnInsecurePermissions prints a warning to stderr if the config file is
// readable by group or others. On Windows, file permission bits don't map
// to ACLs, so the check is skipped.
func warnInsecurePermissions(path string) {
	if runtime.GOOS == "windows" {
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if info.Mode().Perm()&0o077 != 0 {
		fmt.Fprintf(os.Stderr, "WARNING: %s is readable by others (mode %o). Run: chmod 600 %s\n",
			path, info.Mode().Perm(), path)
	}
}

// Grouped returns all preferences organized into named groups.
// Values are display-ready: API keys are masked.
func (p Preferences) Grouped() []ConfigGroup {
	var groups []ConfigGroup
	for _, def := range ConfigGroupDefs {
		var entries []PrefEntry
		for _, key := range def.Keys {
			entries = append(entries, PrefEntry{
				Key:   key,
				Value: AnnotateValue(p.Get(key)),
			})
		}
		groups = append(groups, ConfigGroup{Name: def.Name, Entries: entries})
	}
	return groups
}

// GroupByName returns entries for a single config group, or nil if not found.
func (p Preferences) GroupByName(name string) *ConfigGroup {
	for _, g := range p.Grouped() {
		if g.Name == name {
			return &g
		}
	}
	return nil
}

// Get returns the display value for a single preference key.
func (p Preferences) Get(key string) string {
	switch key {
	case "provider":
		return p.Provider
	case "model":
		return p.Model
	case "chat.temperature":
		return strconv.FormatFloat(p.Temperature, 'g', -1, 64)
	case "chat.max_tokens":
		return strconv.Itoa(p.MaxTokens)
	case "chat.reasoning_effort":
		return EffortName(p.ReasoningEffort)
	case "agent.project_root":
		return p.ProjectRoot
	case "agent.reasoning_effort":
		return EffortName(p.AgentReasoningEffort)
	case "agent.open_in_editor":
		return strconv.FormatBool(p.OpenInEditor)
	case "agent.editor_command":
		return p.EditorCommand
	case "poll.interval_ms":
		return strconv.Itoa(p.PollIntervalMs)
	case "groq.api_key":
		return resolveKeyDisplay(p.GroqAPIKey, "GROQ_API_KEY")
	case "openai.api_key":
		return resolveKeyDisplay(p.OpenAIAPIKey, "OPENAI_API_KEY")
	case "anthropic.api_key":
		return resolveKeyDisplay(p.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	case "gemini.api_key":
		return resolveKeyDisplay(p.GeminiAPIKey, "GEMINI_API_KEY")
	case "xai.api_key":
		return resolveKeyDisplay(p.XAIAPIKey, "XAI_API_KEY")
	default:
		return ""
	}
}

// Set updates a single preference key to the given value.
func (p *Preferences) Set(key, value string) error {
	value = SanitizeValue(value)
	switch key {
	case "provider":
		name := strings.ToLower(value)
		for _, known := range KnownProviders {
			if name == known {
				p.Provider = name
				return nil
			}
		}
		return fmt.Errorf("unknown provider: %s (supported: %s)", value, strings.Join(KnownProviders, ", "))
	case "model":
		p.Model = value
	case "chat.temperature":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f < 0 || f > 2 {
			return fmt.Errorf("invalid temperature: %s (use a number between 0 and 2)", value)
		}
		p.Temperature = f
	case "chat.max_tokens":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("invalid max_tokens: %s (use a positive integer)", value)
		}
		p.MaxTokens = n
	case "chat.reasoning_effort":
		e, err := ParseEffort(value)
		if err != nil {
			return err
		}
		p.ReasoningEffort = e
	case "agent.project_root":
		p.ProjectRoot = value
	case "agent.reasoning_effort":
		e, err := ParseEffort(value)
		if err != nil {
			return err
		}
		p.AgentReasoningEffort = e
	case "agent.open_in_editor":
		b, err := ParseBoolish(value)
		if err != nil {
			return err
		}
		p.OpenInEditor = b
	case "agent.editor_command":
		p.EditorCommand = value
	case "poll.interval_ms":
		n, err := strconv.Atoi(value)
		if err != nil || n < 10 {
			return fmt.Errorf("invalid poll interval: %s (use an integer >= 10)", value)
		}
		p.PollIntervalMs = n
	case "groq.api_key":
		p.GroqAPIKey = value
	case "openai.api_key":
		p.OpenAIAPIKey = value
	case "anthropic.api_key":
		p.AnthropicAPIKey = value
	case "gemini.api_key":
		p.GeminiAPIKey = value
	case "xai.api_key":
		p.XAIAPIKey = value
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return nil
}

// SanitizeValue strips null bytes, ASCII control characters (< 32 except
// \n and \t), and DEL (0x7F) from a string value and trims surrounding
// whitespace. API keys should never contain control characters — these
// typically sneak in through clipboard paste artifacts.
func SanitizeValue(s string) string {
	return strings.Map(func(r rune) rune {
		if (r < 32 && r != '\n' && r != '\t') || r == 0x7F {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}

// sanitizePreferences strips control characters from all string fields in
// an already-loaded Preferences struct. Returns true if any field was modified.
func sanitizePreferences(p *Preferences) bool {
	changed := false
	sanitize := func(s *string) {
		cleaned := SanitizeValue(*s)
		if cleaned != *s {
			*s = cleaned
			changed = true
		}
	}
	sanitize(&p.Provider)
	sanitize(&p.Model)
	sanitize(&p.ProjectRoot)
	sanitize(&p.EditorCommand)
	sanitize(&p.GroqAPIKey)
	sanitize(&p.OpenAIAPIKey)
	sanitize(&p.AnthropicAPIKey)
	sanitize(&p.GeminiAPIKey)
	sanitize(&p.XAIAPIKey)
	return changed
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// resolveKeyDisplay returns a masked key for display. If the preference is
// empty but the env var is set, shows the masked env value with "(from env)".
func resolveKeyDisplay(prefKey, envVar string) string {
	if prefKey != "" {
		return MaskKey(prefKey)
	}
	if envVal := strings.TrimSpace(os.Getenv(envVar)); envVal != "" {
		return MaskKey(envVal) + " (from env)"
	}
	return ""
}

// MaskKey masks an API key for display, showing only the last 4 characters.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

// ParseBoolish parses a boolean-like string value.
func ParseBoolish(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "on", "yes", "1":
		return true, nil
	case "false", "off", "no", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value: %s (use true/false, on/off, yes/no)", s)
	}
}

// ParseEffort parses a reasoning effort tier by name or number.
func ParseEffort(s string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "0":
		return EffortLow, nil
	case "standard", "medium", "1":
		return EffortStandard, nil
	case "high", "2":
		return EffortHigh, nil
	default:
		return 0, fmt.Errorf("invalid reasoning effort: %s (use low, standard, or high)", s)
	}
}

// EffortName returns the display name for a reasoning effort tier.
func EffortName(e int) string {
	switch e {
	case EffortLow:
		return "low"
	case EffortHigh:
		return "high"
	default:
		return "standard"
	}
}

// AnnotateValue returns a display string for a config value.
// Shows "(not set)" for empty values, otherwise shows the raw value.
func AnnotateValue(value string) string {
	if value == "" {
		return "(not set)"
	}
	return value
}

// ConfigFilePath returns the absolute path to config.json.
func ConfigFilePath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.json")
}

// ---------------------------------------------------------------------------
// Config actions — adapter-agnostic business logic
// ---------------------------------------------------------------------------

// ExecuteConfigAction handles /config subcommands and returns a plain-text
// response. The caller applies its own formatting.
func ExecuteConfigAction(prefs *Preferences, args []string) (string, error) {
	sub := "show"
	if len(args) > 0 {
		sub = strings.ToLower(args[0])
	}

	switch sub {
	case "show":
		return FormatConfigGroups(prefs.Grouped()), nil

	case "models", "chat", "agent", "engine":
		group := prefs.GroupByName(sub)
		if group == nil {
			return "", fmt.Errorf("unknown config group: %s", sub)
		}
		return FormatConfigGroups([]ConfigGroup{*group}), nil

	case "set":
		if len(args) < 3 {
			return "", fmt.Errorf("usage: /config set <key> <value>")
		}
		key := args[1]
		value := strings.Join(args[2:], " ")
		if err := prefs.Set(key, value); err != nil {
			return "", err
		}
		if err := SavePreferences(*prefs); err != nil {
			return "", fmt.Errorf("failed to save: %w", err)
		}
		return fmt.Sprintf("Set %s = %s", key, prefs.Get(key)), nil

	case "reset":
		*prefs = DefaultPreferences()
		if err := SavePreferences(*prefs); err != nil {
			return "", fmt.Errorf("failed to save: %w", err)
		}
		return "Preferences reset to defaults.", nil

	default:
		return "", fmt.Errorf("usage: /config [show|models|chat|agent|engine|set <key> <value>|reset]")
	}
}

// FormatConfigGroups renders config groups as plain text (no ANSI styling).
func FormatConfigGroups(groups []ConfigGroup) string {
	var lines []string
	for i, g := range groups {
		if i > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, strings.ToUpper(g.Name[:1])+g.Name[1:]+":")
		for _, e := range g.Entries {
			lines = append(lines, fmt.Sprintf("  %-24s %s", e.Key, e.Value))
		}
	}
	lines = append(lines, "")
	lines = append(lines, "  Use /config set <key> <value> to change")
	return strings.Join(lines, "\n")
}
