package model

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePersona_YAML(t *testing.T) {
	data := []byte(`
name: Dani
attachment_style: Anxious
emotional_tone: hurt
common_phrases:
  - "te extraño"
  - "ya no sé"
`)
	p, err := ParsePersona(data)
	require.NoError(t, err)
	assert.Equal(t, "Dani", p.Name)
	assert.Equal(t, StyleAnxious, p.AttachmentStyle)
	assert.Equal(t, ToneHurt, p.EmotionalTone)
	assert.Equal(t, []string{"te extraño", "ya no sé"}, p.CommonPhrases)
}

func TestParsePersona_JSON(t *testing.T) {
	p, err := ParsePersona([]byte(`{"attachment_style":"avoidant","emotional_tone":"cold"}`))
	require.NoError(t, err)
	assert.Equal(t, StyleAvoidant, p.AttachmentStyle)
	assert.Equal(t, ToneCold, p.EmotionalTone)
}

func TestParsePersona_RejectsUnknownStyle(t *testing.T) {
	_, err := ParsePersona([]byte(`{"attachment_style":"clingy"}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidPersona))
}

func TestPersonaValidate_EmptyPhrase(t *testing.T) {
	err := Persona{CommonPhrases: []string{"ok", "  "}}.Validate()
	assert.ErrorIs(t, err, ErrInvalidPersona)
}

func TestPersonaValidate_EmptyFieldsAllowed(t *testing.T) {
	assert.NoError(t, Persona{}.Validate())
}

func TestMessageUnmarshal_LegacyFragmentContent(t *testing.T) {
	var m Message
	err := json.Unmarshal([]byte(`{"id":"m1","role":"assistant","content":{"text":"hola","delay":1200}}`), &m)
	require.NoError(t, err)
	assert.Equal(t, "m1", m.ID)
	assert.Equal(t, RoleAssistant, m.Role)
	assert.Equal(t, "hola", m.Content)
}

func TestMessageUnmarshal_StringContent(t *testing.T) {
	var m Message
	err := json.Unmarshal([]byte(`{"id":"m2","role":"user","content":"hey","seen":true}`), &m)
	require.NoError(t, err)
	assert.Equal(t, "hey", m.Content)
	assert.True(t, m.Seen)
}

func TestMessageUnmarshal_NullContent(t *testing.T) {
	var m Message
	require.NoError(t, json.Unmarshal([]byte(`{"id":"m3","content":null}`), &m))
	assert.Equal(t, "", m.Content)
}

func TestJoinFragments(t *testing.T) {
	frags := []Fragment{{Text: "a", Sep: "\n\n"}, {Text: " b "}}
	assert.Equal(t, "a\n\n b ", JoinFragments(frags))
	assert.Equal(t, "b", frags[1].Content())
}
