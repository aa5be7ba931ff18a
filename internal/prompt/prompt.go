// Package prompt assembles the text prompt sent to the generative model.
package prompt

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rcliao/exsim/internal/model"
)

// DefaultHistoryBudget is the default number of characters of recent
// history included in a prompt.
const DefaultHistoryBudget = 3000

// Input is everything the builder needs for one turn.
type Input struct {
	Persona     model.Persona
	Memory      string
	UserMessage string
	History     []model.Message
	// HistoryBudget caps the characters of history included; 0 uses
	// DefaultHistoryBudget, negative disables history.
	HistoryBudget int
}

const instructions = `You are role-playing the user's ex-partner in a private text conversation.
Stay in character at all times and never mention that you are an AI.
Write the way people text: short, informal, no markdown, no lists.
When you would send several separate messages, put a blank line between them.`

// Build returns the prompt for one turn. It never fails; missing persona
// fields are replaced with neutral defaults.
func Build(in Input) string {
	style := in.Persona.AttachmentStyle
	if style == "" {
		style = model.StyleSecure
	}
	tone := in.Persona.EmotionalTone
	if tone == "" {
		tone = model.ToneNeutral
	}

	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString("\n\n## Persona\n")
	if in.Persona.Name != "" {
		fmt.Fprintf(&b, "Name: %s\n", in.Persona.Name)
	}
	fmt.Fprintf(&b, "Attachment style: %s (%s)\n", style, styleHint(style))
	fmt.Fprintf(&b, "Emotional tone: %s\n", tone)
	if len(in.Persona.CommonPhrases) > 0 {
		b.WriteString("Phrases they often use:\n")
		for _, p := range in.Persona.CommonPhrases {
			fmt.Fprintf(&b, "- %q\n", p)
		}
	}

	if mem := strings.TrimSpace(in.Memory); mem != "" {
		b.WriteString("\n## What you remember from earlier\n")
		b.WriteString(mem)
		b.WriteString("\n")
	}

	if window := Window(in.History, in.HistoryBudget); len(window) > 0 {
		b.WriteString("\n## Recent messages\n")
		for _, m := range window {
			fmt.Fprintf(&b, "%s: %s\n", speaker(m.Role), m.Content)
		}
	}

	b.WriteString("\n## New message from the user\n")
	b.WriteString(in.UserMessage)
	b.WriteString("\n\nReply as the ex:")
	return b.String()
}

// Window greedily packs the newest messages into budget characters and
// returns them oldest first. A message that does not fit ends the window.
func Window(history []model.Message, budget int) []model.Message {
	if budget < 0 || len(history) == 0 {
		return nil
	}
	if budget == 0 {
		budget = DefaultHistoryBudget
	}

	used := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		n := utf8.RuneCountInString(history[i].Content)
		if used+n > budget {
			break
		}
		used += n
		start = i
	}
	return history[start:]
}

func speaker(r model.Role) string {
	if r == model.RoleAssistant {
		return "Ex"
	}
	return "User"
}

func styleHint(s model.AttachmentStyle) string {
	switch s {
	case model.StyleAnxious:
		return "seeks reassurance, sends many short messages, worries about being left"
	case model.StyleAvoidant:
		return "keeps distance, answers briefly and late, deflects feelings"
	case model.StyleDisorganized:
		return "swings between closeness and pulling away, inconsistent"
	default:
		return "direct and calm, comfortable talking about feelings"
	}
}
