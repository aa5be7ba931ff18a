// Package provider is the boundary to the generative model.
//
// The core treats a model as a black box: one prompt in, one reply out.
// Backends differ only in wire format; retries, timeouts and error
// classification are shared.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrRateLimit is returned when the upstream API reports throttling
// (HTTP 429). It is retried with backoff.
var ErrRateLimit = errors.New("provider: upstream rate limit exceeded")

// ErrEmptyReply is returned when the model answered without any text.
var ErrEmptyReply = errors.New("provider: empty reply")

// Generator turns a prompt into a raw reply.
//
// Implementations must be safe for concurrent use.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxTokens  = 400
	defaultMaxRetries = 2
)

// Config selects and configures a backend.
type Config struct {
	// Name is one of "openai", "gemini", "anthropic", "ollama", "echo".
	Name string
	// APIKey authenticates against the API. Not needed for echo.
	APIKey string
	// Model overrides the backend's default model.
	Model string
	// BaseURL overrides the API endpoint (OpenAI-compatible servers,
	// proxies, tests).
	BaseURL string
	// Timeout bounds a single attempt. Default: 30s.
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt on
	// transient failures. Default: 2. Negative disables retries.
	MaxRetries int
	// MaxTokens caps the reply length. Default: 400.
	MaxTokens int
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = defaultMaxTokens
	}
	return c
}

// New returns the configured backend wrapped with retries.
func New(cfg Config) (Generator, error) {
	cfg = cfg.withDefaults()

	var g Generator
	switch strings.ToLower(cfg.Name) {
	case "openai":
		g = NewOpenAI(cfg)
	case "gemini":
		g = NewGemini(cfg)
	case "anthropic":
		g = NewAnthropic(cfg)
	case "ollama":
		return WithRetry(NewOllama(cfg), cfg.MaxRetries), nil
	case "echo", "":
		return Echo{}, nil
	default:
		return nil, fmt.Errorf("unknown provider %q (valid: openai, gemini, anthropic, ollama, echo)", cfg.Name)
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("provider %s: api key is required", cfg.Name)
	}
	return WithRetry(g, cfg.MaxRetries), nil
}
