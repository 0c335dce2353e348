package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ProviderEnvVars maps provider names to their environment variable names.
var ProviderEnvVars = map[string]string{
	"groq":      "GROQ_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"gemini":    "GEMINI_API_KEY",
	"xai":       "XAI_API_KEY",
}

// KnownProviders lists valid provider names for validation.
var KnownProviders = []string{"groq", "openai", "anthropic", "gemini", "xai"}

// configDirOverride is set by tests to redirect ConfigDir.
var configDirOverride string

// ConfigDir returns the config directory for chatd.
func ConfigDir() string {
	if configDirOverride != "" {
		return configDirOverride
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "chatd")
}

// DataDir returns ~/.local/share/chatd, creating it if needed.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".local", "share", "chatd")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

// LoadProviderAPIKey resolves an API key for the given provider using:
//  1. Environment variable (e.g. GROQ_API_KEY, ANTHROPIC_API_KEY)
//  2. Preferences (e.g. groq.api_key set via /config)
func LoadProviderAPIKey(prefs Preferences, providerName string) (string, error) {
	// 1. Check environment variable
	if envVar, ok := ProviderEnvVars[providerName]; ok {
		if key := strings.TrimSpace(os.Getenv(envVar)); key != "" {
			return key, nil
		}
	}

	// 2. Check preferences
	switch providerName {
	case "groq":
		if key := strings.TrimSpace(prefs.GroqAPIKey); key != "" {
			return key, nil
		}
	case "openai":
		if key := strings.TrimSpace(prefs.OpenAIAPIKey); key != "" {
			return key, nil
		}
	case "anthropic":
		if key := strings.TrimSpace(prefs.AnthropicAPIKey); key != "" {
			return key, nil
		}
	case "gemini":
		if key := strings.TrimSpace(prefs.GeminiAPIKey); key != "" {
			return key, nil
		}
	case "xai":
		if key := strings.TrimSpace(prefs.XAIAPIKey); key != "" {
			return key, nil
		}
	}

	return "", fmt.Errorf("no API key found for %s: set %s or use /config set %s.api_key <key>",
		providerName, ProviderEnvVars[providerName], providerName)
}

// ResolveAPIKeySource returns the source of the API key for display purposes.
// Returns "env", "config", or "" if not found.
func ResolveAPIKeySource(prefs Preferences, providerName string) string {
	if envVar, ok := ProviderEnvVars[providerName]; ok {
		if key := strings.TrimSpace(os.Getenv(envVar)); key != "" {
			return "env"
		}
	}
	switch providerName {
	case "groq":
		if prefs.GroqAPIKey != "" {
			return "config"
		}
	case "openai":
		if prefs.OpenAIAPIKey != "" {
			return "config"
		}
	case "anthropic":
		if prefs.AnthropicAPIKey != "" {
			return "config"
		}
	case "gemini":
		if prefs.GeminiAPIKey != "" {
			return "config"
		}
	case "xai":
		if prefs.XAIAPIKey != "" {
			return "config"
		}
	}
	return ""
}
