// Package llm holds the text-generation collaborators the question pipeline
// talks to. Every client reduces a provider response to a Completion.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Provider names accepted by New.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderMock      = "mock"
)

// Completion is a provider response reduced to what the pipeline needs.
// Normal is false when the provider stopped for any reason other than a
// natural end of output (safety filter, length cut-off, refusal).
type Completion struct {
	Text         string
	FinishReason string
	Normal       bool
	PromptTokens int
	OutputTokens int
}

// Generator is a single-shot text-generation call.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*Completion, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (*Completion, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (*Completion, error) {
	return f(ctx, prompt)
}

// Config selects and configures a Generator.
type Config struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// New creates the Generator named by cfg.Provider.
func New(cfg Config) (Generator, error) {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}

	var (
		g   Generator
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderOpenAI:
		g = NewOpenAI(cfg)
	case ProviderAnthropic:
		g, err = NewAnthropic(cfg)
	case ProviderMock:
		g = NewMock()
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	if cfg.Timeout > 0 {
		g = withTimeout(g, cfg.Timeout)
	}
	slog.Debug("LLM generator configured", "provider", cfg.Provider, "model", cfg.Model, "base_url", cfg.BaseURL)
	return g, nil
}

func withTimeout(g Generator, d time.Duration) Generator {
	return GeneratorFunc(func(ctx context.Context, prompt string) (*Completion, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return g.Generate(ctx, prompt)
	})
}
