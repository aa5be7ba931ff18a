package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
)

const defaultOllamaModel = "llama3.2"

// ollamaGenerator talks to a local Ollama instance. No API key.
type ollamaGenerator struct {
	cfg    Config
	client *http.Client
}

// NewOllama returns a Generator backed by Ollama's /api/generate.
// The base URL defaults to $OLLAMA_HOST, then http://localhost:11434.
func NewOllama(cfg Config) Generator {
	cfg = cfg.withDefaults()
	if cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv("OLLAMA_HOST")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = defaultOllamaModel
	}
	return &ollamaGenerator{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type ollamaRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	Stream  bool   `json:"stream"`
	Options struct {
		NumPredict int `json:"num_predict,omitempty"`
	} `json:"options"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

func (g *ollamaGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	body := ollamaRequest{Model: g.cfg.Model, Prompt: prompt}
	body.Options.NumPredict = g.cfg.MaxTokens

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("ollama: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(g.cfg.BaseURL, "/")+"/api/generate", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("ollama: create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	raw, err := doHTTP(g.client, req)
	if err != nil {
		return "", fmt.Errorf("ollama: %w", err)
	}

	var resp ollamaResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("ollama: decode response: %w", err)
	}
	if resp.Error != "" {
		return "", fmt.Errorf("ollama: %s", resp.Error)
	}
	if resp.Response == "" {
		return "", fmt.Errorf("ollama: %w", ErrEmptyReply)
	}
	return resp.Response, nil
}
