// Package model defines the core conversation data types.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AttachmentStyle drives pacing and fragment granularity of a persona.
type AttachmentStyle string

const (
	StyleAnxious      AttachmentStyle = "anxious"
	StyleAvoidant     AttachmentStyle = "avoidant"
	StyleSecure       AttachmentStyle = "secure"
	StyleDisorganized AttachmentStyle = "disorganized"
)

// EmotionalTone is the overall register the persona writes in.
type EmotionalTone string

const (
	ToneWarm      EmotionalTone = "warm"
	ToneCold      EmotionalTone = "cold"
	ToneHurt      EmotionalTone = "hurt"
	ToneAngry     EmotionalTone = "angry"
	TonePlayful   EmotionalTone = "playful"
	ToneNostalgic EmotionalTone = "nostalgic"
	ToneNeutral   EmotionalTone = "neutral"
)

// ValidStyles are the allowed attachment styles.
var ValidStyles = map[AttachmentStyle]bool{
	StyleAnxious:      true,
	StyleAvoidant:     true,
	StyleSecure:       true,
	StyleDisorganized: true,
}

// ValidTones are the allowed emotional tones.
var ValidTones = map[EmotionalTone]bool{
	ToneWarm:      true,
	ToneCold:      true,
	ToneHurt:      true,
	ToneAngry:     true,
	TonePlayful:   true,
	ToneNostalgic: true,
	ToneNeutral:   true,
}

// Persona is the behavioral profile of a simulated contact.
type Persona struct {
	Name            string          `json:"name,omitempty" yaml:"name,omitempty"`
	AttachmentStyle AttachmentStyle `json:"attachment_style" yaml:"attachment_style"`
	EmotionalTone   EmotionalTone   `json:"emotional_tone" yaml:"emotional_tone"`
	CommonPhrases   []string        `json:"common_phrases,omitempty" yaml:"common_phrases,omitempty"`
}

// Validate checks that enumerated fields hold known values.
// Empty style and tone are allowed; consumers substitute neutral defaults.
func (p Persona) Validate() error {
	if p.AttachmentStyle != "" && !ValidStyles[p.AttachmentStyle] {
		return fmt.Errorf("%w: attachment style %q (valid: anxious, avoidant, secure, disorganized)", ErrInvalidPersona, p.AttachmentStyle)
	}
	if p.EmotionalTone != "" && !ValidTones[p.EmotionalTone] {
		return fmt.Errorf("%w: emotional tone %q", ErrInvalidPersona, p.EmotionalTone)
	}
	for i, phrase := range p.CommonPhrases {
		if strings.TrimSpace(phrase) == "" {
			return fmt.Errorf("%w: common phrase %d is empty", ErrInvalidPersona, i)
		}
	}
	return nil
}

// ParsePersona decodes a persona from JSON or YAML and validates it.
// YAML is a superset of JSON, so a single decoder covers both.
func ParsePersona(data []byte) (Persona, error) {
	var p Persona
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Persona{}, fmt.Errorf("%w: %v", ErrInvalidPersona, err)
	}
	p.AttachmentStyle = AttachmentStyle(strings.ToLower(strings.TrimSpace(string(p.AttachmentStyle))))
	p.EmotionalTone = EmotionalTone(strings.ToLower(strings.TrimSpace(string(p.EmotionalTone))))
	if err := p.Validate(); err != nil {
		return Persona{}, err
	}
	return p, nil
}

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single persisted chat bubble.
type Message struct {
	ID        string    `json:"id"`
	ProfileID string    `json:"profile_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Seen      bool      `json:"seen,omitempty"`
}

// UnmarshalJSON accepts legacy assistant rows whose content was stored as a
// {"text": ..., "delay": ...} object and keeps only the text.
func (m *Message) UnmarshalJSON(data []byte) error {
	type plain Message
	var raw struct {
		plain
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Message(raw.plain)
	m.Content = ""
	if len(raw.Content) == 0 || string(raw.Content) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw.Content, &m.Content); err == nil {
		return nil
	}
	var legacy struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw.Content, &legacy); err != nil {
		return fmt.Errorf("message %s: content is neither string nor fragment object", m.ID)
	}
	m.Content = legacy.Text
	return nil
}

// ConversationState is everything persisted for one profile.
type ConversationState struct {
	ProfileID string    `json:"profile_id"`
	Persona   Persona   `json:"persona"`
	Messages  []Message `json:"messages"`
	Memory    string    `json:"memory"`
}

// Fragment is one chat bubble cut from a raw model reply. Fragments are
// never persisted; delivery turns them into Messages.
type Fragment struct {
	// Text is the raw substring of the reply.
	Text string `json:"text"`
	// Sep is the separator that followed Text in the reply ("" for the last).
	Sep string `json:"sep,omitempty"`
	// Delay is the gap after this fragment before the next one is delivered.
	Delay time.Duration `json:"delay"`
}

// Content is the text shown in the bubble.
func (f Fragment) Content() string {
	return strings.TrimSpace(f.Text)
}

// JoinFragments reconstructs the raw reply from its fragments.
func JoinFragments(frags []Fragment) string {
	var b strings.Builder
	for _, f := range frags {
		b.WriteString(f.Text)
		b.WriteString(f.Sep)
	}
	return b.String()
}
