package store

import (
	"context"
	"strings"

	"github.com/rcliao/exsim/internal/model"
)

// Search finds messages whose content matches every word of the query,
// using the FTS5 index. Newest matches come first.
func (s *SQLiteStore) Search(ctx context.Context, p SearchParams) ([]model.Message, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	match := ftsQuery(p.Query)
	if match == "" {
		return []model.Message{}, nil
	}

	where := []string{"messages_fts MATCH ?"}
	args := []interface{}{match}
	if p.ProfileID != "" {
		where = append(where, "m.profile_id = ?")
		args = append(args, p.ProfileID)
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.profile_id, m.role, m.content, m.created_at, m.seen
		FROM messages_fts
		JOIN messages m ON m.rowid = messages_fts.rowid
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY m.rowid DESC
		LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []model.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

// ftsQuery quotes each word so user input is never parsed as FTS5 syntax.
func ftsQuery(q string) string {
	var terms []string
	for _, w := range strings.Fields(q) {
		terms = append(terms, `"`+strings.ReplaceAll(w, `"`, `""`)+`"`)
	}
	return strings.Join(terms, " ")
}
