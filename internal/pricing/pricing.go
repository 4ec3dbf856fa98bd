// Package pricing estimates what semantic scoring calls cost.
package pricing

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Rate is the price in USD per 1K tokens.
type Rate struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// Table maps provider -> model -> rate.
type Table struct {
	Providers map[string]map[string]Rate
}

// Default carries the rates the grading scripts shipped with.
func Default() *Table {
	return &Table{Providers: map[string]map[string]Rate{
		"openai": {
			"gpt-4o":      {Input: 0.0025, Output: 0.01},
			"gpt-4o-mini": {Input: 0.00015, Output: 0.0006},
			"gpt-4":       {Input: 0.03, Output: 0.06},
		},
		"anthropic": {
			"claude-sonnet-4-20250514": {Input: 0.003, Output: 0.015},
			"claude-3-5-haiku-latest":  {Input: 0.0008, Output: 0.004},
		},
	}}
}

// Load reads a YAML pricing file. An empty path yields the default table.
func Load(path string) (*Table, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pricing file: %w", err)
	}
	var providers map[string]map[string]Rate
	if err := yaml.Unmarshal(data, &providers); err != nil {
		return nil, fmt.Errorf("parsing pricing file: %w", err)
	}
	return &Table{Providers: providers}, nil
}

// Rate looks up a model's rate.
func (t *Table) Rate(provider, model string) (Rate, bool) {
	if t == nil || t.Providers == nil {
		return Rate{}, false
	}
	r, ok := t.Providers[provider][model]
	return r, ok
}

// Cost prices one call. Unknown models cost nothing.
func (t *Table) Cost(provider, model string, inputTokens, outputTokens int) float64 {
	r, ok := t.Rate(provider, model)
	if !ok {
		return 0
	}
	return (float64(inputTokens)/1000.0)*r.Input + (float64(outputTokens)/1000.0)*r.Output
}
