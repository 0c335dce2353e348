package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/batalabs/chatd/internal/domain"
)

// DefaultPricingMap returns the built-in pricing for known models.
func DefaultPricingMap() map[string]domain.ModelPricing {
	return map[string]domain.ModelPricing{
		// Groq
		"llama-3.3-70b-versatile": {InputPerMillion: 0.59, OutputPerMillion: 0.79},
		"llama-3.1-8b-instant":    {InputPerMillion: 0.05, OutputPerMillion: 0.08},
		"mixtral-8x7b-32768":      {InputPerMillion: 0.24, OutputPerMillion: 0.24},
		// OpenAI
		"gpt-4o":      {InputPerMillion: 2.50, OutputPerMillion: 10.0},
		"gpt-4o-mini": {InputPerMillion: 0.15, OutputPerMillion: 0.60},
		"o3":          {InputPerMillion: 10.0, OutputPerMillion: 40.0},
		"o4-mini":     {InputPerMillion: 1.10, OutputPerMillion: 4.40},
		// Anthropic
		"claude-sonnet-4-20250514":  {InputPerMillion: 3.0, OutputPerMillion: 15.0},
		"claude-3-5-haiku-20241022": {InputPerMillion: 0.80, OutputPerMillion: 4.0},
		// Gemini
		"gemini-2.0-flash": {InputPerMillion: 0.10, OutputPerMillion: 0.40},
		"gemini-1.5-pro":   {InputPerMillion: 1.25, OutputPerMillion: 5.0},
		// xAI
		"grok-3":      {InputPerMillion: 3.0, OutputPerMillion: 15.0},
		"grok-3-mini": {InputPerMillion: 0.30, OutputPerMillion: 0.50},
	}
}

// LoadPricing reads pricing from ~/.config/chatd/pricing.json.
// Missing entries are filled from defaults; the merged result is written back
// so newly added models appear in the file for the user to edit.
func LoadPricing() map[string]domain.ModelPricing {
	defaults := DefaultPricingMap()

	dir := ConfigDir()
	if dir == "" {
		return defaults
	}

	data, err := os.ReadFile(filepath.Join(dir, "pricing.json"))
	if err != nil {
		// First run or missing file — write defaults.
		if err := SavePricing(defaults); err != nil {
			fmt.Fprintf(os.Stderr, "config: save default pricing: %v\n", err)
		}
		return defaults
	}

	loaded := make(map[string]domain.ModelPricing)
	if err := json.Unmarshal(data, &loaded); err != nil {
		return defaults
	}

	// Merge: user values win, but add any new defaults they don't have.
	changed := false
	for k, v := range defaults {
		if _, ok := loaded[k]; !ok {
			loaded[k] = v
			changed = true
		}
	}
	if changed {
		if err := SavePricing(loaded); err != nil {
			fmt.Fprintf(os.Stderr, "config: save merged pricing: %v\n", err)
		}
	}
	return loaded
}

// SavePricing writes pricing to ~/.config/chatd/pricing.json.
func SavePricing(m map[string]domain.ModelPricing) error {
	dir := ConfigDir()
	if dir == "" {
		return fmt.Errorf("could not determine config directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling pricing: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "pricing.json"), data, 0o644)
}

// EstimateCost computes the dollar cost of a call given pricing and token
// counts. Returns 0 when the model has no pricing entry.
func EstimateCost(pricing map[string]domain.ModelPricing, model string, promptTokens, completionTokens int) float64 {
	p, ok := pricing[model]
	if !ok {
		return 0
	}
	return float64(promptTokens)/1e6*p.InputPerMillion + float64(completionTokens)/1e6*p.OutputPerMillion
}
