package prompt

import (
	"strings"
	"testing"

	"github.com/rcliao/exsim/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_IncludesAllParts(t *testing.T) {
	out := Build(Input{
		Persona: model.Persona{
			Name:            "Dani",
			AttachmentStyle: model.StyleAnxious,
			EmotionalTone:   model.ToneHurt,
			CommonPhrases:   []string{"te extraño", "ya no sé"},
		},
		Memory:      "\nUser: hola\nEx: hola...",
		UserMessage: "¿podemos hablar?",
		History: []model.Message{
			{Role: model.RoleUser, Content: "hola"},
			{Role: model.RoleAssistant, Content: "hola..."},
		},
	})

	assert.Contains(t, out, "Name: Dani")
	assert.Contains(t, out, "Attachment style: anxious")
	assert.Contains(t, out, "Emotional tone: hurt")
	assert.Contains(t, out, `- "te extraño"`)
	assert.Contains(t, out, "## What you remember from earlier\nUser: hola\nEx: hola...")
	assert.Contains(t, out, "User: hola\nEx: hola...\n")
	assert.True(t, strings.HasSuffix(out, "¿podemos hablar?\n\nReply as the ex:"))
}

func TestBuild_NeutralDefaults(t *testing.T) {
	out := Build(Input{UserMessage: "hey"})
	assert.Contains(t, out, "Attachment style: secure")
	assert.Contains(t, out, "Emotional tone: neutral")
	assert.NotContains(t, out, "## What you remember")
	assert.NotContains(t, out, "## Recent messages")
	assert.NotContains(t, out, "Phrases they often use")
}

func TestBuild_Pure(t *testing.T) {
	in := Input{Persona: model.Persona{AttachmentStyle: model.StyleAvoidant}, UserMessage: "x"}
	assert.Equal(t, Build(in), Build(in))
}

func TestWindow_PacksNewestFirst(t *testing.T) {
	history := []model.Message{
		{Content: strings.Repeat("a", 50)},
		{Content: strings.Repeat("b", 30)},
		{Content: strings.Repeat("c", 30)},
	}
	got := Window(history, 70)
	require.Len(t, got, 2)
	assert.Equal(t, history[1:], got)

	assert.Len(t, Window(history, 0), 3)
	assert.Nil(t, Window(history, -1))
	assert.Empty(t, Window(history, 10))
}
