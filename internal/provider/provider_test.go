package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetries(t *testing.T) {
	t.Helper()
	prev := retryBase
	retryBase = time.Millisecond
	t.Cleanup(func() { retryBase = prev })
}

func TestOpenAI_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req oaiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req.Model)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "the prompt", req.Messages[0].Content)

		io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"hola\n\nqué tal"}}]}`)
	}))
	defer srv.Close()

	g := NewOpenAI(Config{APIKey: "sk-test", Model: "gpt-test", BaseURL: srv.URL})
	out, err := g.Generate(context.Background(), "the prompt")
	require.NoError(t, err)
	assert.Equal(t, "hola\n\nqué tal", out)
}

func TestOpenAI_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	_, err := NewOpenAI(Config{APIKey: "k", BaseURL: srv.URL}).Generate(context.Background(), "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad key")
	assert.False(t, IsTransient(err))
}

func TestOpenAI_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	_, err := NewOpenAI(Config{APIKey: "k", BaseURL: srv.URL}).Generate(context.Background(), "p")
	assert.ErrorIs(t, err, ErrEmptyReply)
}

func TestWithRetry_RetriesRateLimit(t *testing.T) {
	fastRetries(t)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		io.WriteString(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	}))
	defer srv.Close()

	g, err := New(Config{Name: "openai", APIKey: "k", BaseURL: srv.URL, MaxRetries: 3})
	require.NoError(t, err)
	out, err := g.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWithRetry_GivesUp(t *testing.T) {
	fastRetries(t)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	g, err := New(Config{Name: "openai", APIKey: "k", BaseURL: srv.URL, MaxRetries: 2})
	require.NoError(t, err)
	_, err = g.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestWithRetry_PermanentNotRetried(t *testing.T) {
	fastRetries(t)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	g, err := New(Config{Name: "openai", APIKey: "k", BaseURL: srv.URL, MaxRetries: 2})
	require.NoError(t, err)
	_, err = g.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGemini_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "g-key", r.URL.Query().Get("key"))

		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		assert.Equal(t, "the prompt", req.Contents[0].Parts[0].Text)

		io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"hola"},{"text":"\n\nbye"}]}}]}`)
	}))
	defer srv.Close()

	g := NewGemini(Config{APIKey: "g-key", Model: "gemini-test", BaseURL: srv.URL})
	out, err := g.Generate(context.Background(), "the prompt")
	require.NoError(t, err)
	assert.Equal(t, "hola\n\nbye", out)
}

func TestGemini_NoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"candidates":[]}`)
	}))
	defer srv.Close()

	_, err := NewGemini(Config{APIKey: "k", BaseURL: srv.URL}).Generate(context.Background(), "p")
	assert.True(t, errors.Is(err, ErrEmptyReply))
}

func TestEcho(t *testing.T) {
	out, err := Echo{}.Generate(context.Background(), "stuff\n\n## New message from the user\nte odio\n\nReply as the ex:")
	require.NoError(t, err)
	assert.True(t, strings.Contains(out, `"te odio"`))
	assert.Contains(t, out, "\n\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Echo{}.Generate(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew(t *testing.T) {
	g, err := New(Config{})
	require.NoError(t, err)
	assert.IsType(t, Echo{}, g)

	_, err = New(Config{Name: "llama"})
	assert.Error(t, err)

	_, err = New(Config{Name: "gemini"})
	assert.ErrorContains(t, err, "api key")

	_, err = New(Config{Name: "anthropic", APIKey: "k"})
	assert.NoError(t, err)
}

func TestOllama_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)

		var req ollamaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama-test", req.Model)
		assert.False(t, req.Stream)
		assert.Equal(t, "the prompt", req.Prompt)

		io.WriteString(w, `{"response":"ya\n\nno sé","done":true}`)
	}))
	defer srv.Close()

	g := NewOllama(Config{Model: "llama-test", BaseURL: srv.URL + "/"})
	out, err := g.Generate(context.Background(), "the prompt")
	require.NoError(t, err)
	assert.Equal(t, "ya\n\nno sé", out)
}

func TestOllama_NoKeyNeeded(t *testing.T) {
	fastRetries(t)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, `{"response":"ok"}`)
	}))
	defer srv.Close()

	g, err := New(Config{Name: "ollama", BaseURL: srv.URL})
	require.NoError(t, err)
	out, err := g.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(2), calls.Load())
}
