package store

import (
	"context"
	"os"
)

// Stats holds database statistics.
type Stats struct {
	DBPath         string         `json:"db_path"`
	DBSizeBytes    int64          `json:"db_size_bytes"`
	Profiles       int            `json:"profiles"`
	TotalMessages  int            `json:"total_messages"`
	UnseenMessages int            `json:"unseen_messages"`
	PerProfile     []ProfileStats `json:"per_profile"`
}

// ProfileStats holds per-profile counts.
type ProfileStats struct {
	ProfileID string `json:"profile_id"`
	User      int    `json:"user"`
	Assistant int    `json:"assistant"`
}

// Stats returns database statistics.
func (s *SQLiteStore) Stats(ctx context.Context, dbPath string) (*Stats, error) {
	st := &Stats{DBPath: dbPath}

	// DB file size
	if info, err := os.Stat(dbPath); err == nil {
		st.DBSizeBytes = info.Size()
	}

	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM profiles`).Scan(&st.Profiles)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&st.TotalMessages)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE role = 'assistant' AND seen = 0`).Scan(&st.UnseenMessages)

	rows, err := s.db.QueryContext(ctx, `
		SELECT profile_id,
		       SUM(CASE WHEN role = 'user' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN role = 'assistant' THEN 1 ELSE 0 END)
		FROM messages GROUP BY profile_id ORDER BY COUNT(*) DESC`)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	for rows.Next() {
		var ps ProfileStats
		rows.Scan(&ps.ProfileID, &ps.User, &ps.Assistant)
		st.PerProfile = append(st.PerProfile, ps)
	}

	return st, nil
}
