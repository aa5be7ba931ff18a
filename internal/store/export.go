package store

import (
	"context"

	"github.com/rcliao/exsim/internal/model"
)

// ExportAll returns the full state of every profile, or of one profile when
// profileID is set.
func (s *SQLiteStore) ExportAll(ctx context.Context, profileID string) ([]model.ConversationState, error) {
	if profileID != "" {
		st, err := s.Get(ctx, profileID)
		if err != nil {
			return nil, err
		}
		return []model.ConversationState{*st}, nil
	}

	profiles, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.ConversationState, 0, len(profiles))
	for _, p := range profiles {
		st, err := s.Get(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, nil
}

// Import stores exported states, replacing profiles with the same ID.
func (s *SQLiteStore) Import(ctx context.Context, states []model.ConversationState) (int, error) {
	imported := 0
	for _, st := range states {
		if err := s.Put(ctx, st.ProfileID, st); err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}
