package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
)

// AnthropicClient calls the Anthropic Messages API.
type AnthropicClient struct {
	client      *anthropic.Client
	model       string
	temperature float64
	maxTokens   int64
}

// NewAnthropic creates an Anthropic client. The API key falls back to the
// SDK's ANTHROPIC_API_KEY environment lookup when cfg.APIKey is empty.
func NewAnthropic(cfg Config) (*AnthropicClient, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("anthropic provider requires a model name")
	}
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicClient{
		client:      &client,
		model:       cfg.Model,
		temperature: float64(cfg.Temperature),
		maxTokens:   int64(cfg.MaxTokens),
	}, nil
}

// Generate sends prompt as a single user message.
func (c *AnthropicClient) Generate(ctx context.Context, prompt string) (*Completion, error) {
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		Temperature: param.NewOpt(c.temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call: %w", err)
	}

	var text string
	for _, block := range message.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	slog.Debug("LLM response", "stop_reason", message.StopReason, "raw", text)

	return &Completion{
		Text:         text,
		FinishReason: string(message.StopReason),
		Normal:       anthropicNormal(message.StopReason),
		PromptTokens: int(message.Usage.InputTokens),
		OutputTokens: int(message.Usage.OutputTokens),
	}, nil
}

// anthropicNormal reports whether the model finished on its own rather than
// being cut off or refusing.
func anthropicNormal(r anthropic.StopReason) bool {
	return r == anthropic.StopReasonEndTurn || r == anthropic.StopReasonStopSequence
}
