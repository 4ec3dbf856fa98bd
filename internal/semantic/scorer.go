// Package semantic scores rubric criteria with an external language model
// and blends the verdicts with unit test results for hybrid criteria.
package semantic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
)

// Request is one scoring call.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Response carries the raw model text and token usage.
type Response struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// Scorer sends a scoring prompt to a model provider.
type Scorer interface {
	Score(ctx context.Context, req Request) (*Response, error)
	Provider() string
	Model() string
}

// ErrNoCredentials means no provider credentials are configured. The
// pipeline skips semantic scoring rather than failing.
var ErrNoCredentials = errors.New("no semantic scorer credentials configured")

// ServiceError is a network, protocol or parse failure for one criterion.
type ServiceError struct {
	CriterionID string
	Err         error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("semantic evaluation of %s: %v", e.CriterionID, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
)

type Config struct {
	Provider   string
	Model      string
	BaseURL    string
	APIKey     string
	AWSRegion  string
	AWSProfile string
	HTTPClient *http.Client
}

// NewScorer builds the scorer for cfg.Provider (default openai). The API key
// falls back to the provider's usual environment variable.
func NewScorer(ctx context.Context, cfg Config) (Scorer, error) {
	switch cfg.Provider {
	case "", ProviderOpenAI:
		key := firstNonEmpty(cfg.APIKey, os.Getenv("OPENAI_API_KEY"))
		if key == "" {
			return nil, ErrNoCredentials
		}
		s := NewOpenAIScorer(cfg.BaseURL, key, cfg.Model)
		if cfg.HTTPClient != nil {
			s.Client = cfg.HTTPClient
		}
		return s, nil
	case ProviderAnthropic:
		key := firstNonEmpty(cfg.APIKey, os.Getenv("ANTHROPIC_API_KEY"))
		if key == "" {
			return nil, ErrNoCredentials
		}
		cfg.APIKey = key
		return NewAnthropicScorer(ctx, cfg), nil
	case ProviderBedrock:
		return NewAnthropicScorer(ctx, cfg), nil
	}
	return nil, fmt.Errorf("unknown semantic provider %q", cfg.Provider)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
