package provider

import (
	"context"
	"strings"
)

// Echo is an offline backend that answers from the last line of the
// prompt's user message. It keeps demos and tests free of network access.
type Echo struct{}

// Generate returns a short canned reply quoting the user's message.
func (Echo) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	msg := userMessage(prompt)
	if msg == "" {
		return "...", nil
	}
	return "hey\n\n\"" + msg + "\"?\n\nidk what to say to that", nil
}

func userMessage(prompt string) string {
	const marker = "## New message from the user\n"
	i := strings.LastIndex(prompt, marker)
	if i < 0 {
		return strings.TrimSpace(prompt)
	}
	rest := prompt[i+len(marker):]
	if j := strings.LastIndex(rest, "\n\nReply as the ex:"); j >= 0 {
		rest = rest[:j]
	}
	return strings.TrimSpace(rest)
}
