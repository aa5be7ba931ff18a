package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = anthropic.ModelClaude3_7SonnetLatest

// anthropicGenerator calls the Messages API through the official SDK.
type anthropicGenerator struct {
	cfg    Config
	client anthropic.Client
}

// NewAnthropic returns a Generator backed by the Anthropic Messages API.
func NewAnthropic(cfg Config) Generator {
	cfg = cfg.withDefaults()
	if cfg.Model == "" {
		cfg.Model = string(defaultAnthropicModel)
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(cfg.Timeout),
		// Retries are handled by WithRetry.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &anthropicGenerator{cfg: cfg, client: anthropic.NewClient(opts...)}
}

func (g *anthropicGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	msg, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(g.cfg.Model),
		MaxTokens: int64(g.cfg.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			switch {
			case apiErr.StatusCode == http.StatusTooManyRequests:
				return "", fmt.Errorf("anthropic: %w", transient(ErrRateLimit))
			case apiErr.StatusCode >= 500:
				return "", fmt.Errorf("anthropic: %w", transient(err))
			}
			return "", fmt.Errorf("anthropic: %w", err)
		}
		if ctx.Err() != nil {
			return "", fmt.Errorf("anthropic: %w", err)
		}
		return "", fmt.Errorf("anthropic: %w", transient(err))
	}

	var b strings.Builder
	for _, block := range msg.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			b.WriteString(v.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("anthropic: %w", ErrEmptyReply)
	}
	return b.String(), nil
}
