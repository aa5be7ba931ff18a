// Package store provides the conversation storage interface and SQLite implementation.
package store

import (
	"context"

	"github.com/rcliao/exsim/internal/model"
)

// SearchParams holds parameters for searching messages.
type SearchParams struct {
	ProfileID string
	Query     string
	Limit     int
}

// ProfileSummary is one row of a profile listing.
type ProfileSummary struct {
	ID        string        `json:"id"`
	Persona   model.Persona `json:"persona"`
	Messages  int           `json:"messages"`
	MemoryLen int           `json:"memory_len"`
	UpdatedAt string        `json:"updated_at"`
}

// ConversationStore persists per-profile conversation state.
//
// Message appends and memory updates are read-modify-write operations
// against the current persisted state, so concurrent deliveries never
// clobber each other.
type ConversationStore interface {
	// Get loads the full state of a profile.
	Get(ctx context.Context, profileID string) (*model.ConversationState, error)

	// Put replaces the full state of a profile, creating it if needed.
	Put(ctx context.Context, profileID string, state model.ConversationState) error

	// PutPersona creates the profile or replaces its persona, keeping
	// messages and memory.
	PutPersona(ctx context.Context, profileID string, p model.Persona) error

	// AppendMessage appends one message. Empty ID and zero Timestamp are
	// filled in. Returns the stored message.
	AppendMessage(ctx context.Context, m model.Message) (model.Message, error)

	// MarkSeen flips an assistant message's seen flag.
	MarkSeen(ctx context.Context, profileID, messageID string) error

	// UpdateMemory applies fn to the current memory inside a transaction
	// and returns the stored result.
	UpdateMemory(ctx context.Context, profileID string, fn func(old string) string) (string, error)

	// Delete removes a profile with its messages and memory.
	Delete(ctx context.Context, profileID string) error

	// Close closes the store.
	Close() error
}
