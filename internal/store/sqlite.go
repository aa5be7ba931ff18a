package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/rcliao/exsim/internal/model"
)

// SQLiteStore implements ConversationStore using SQLite.
type SQLiteStore struct {
	db *sql.DB

	mu      sync.Mutex
	entropy *rand.Rand
}

var _ ConversationStore = (*SQLiteStore)(nil)

var errEmptyProfileID = errors.New("profile id is required")

// Fixed-width so timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer at a time; deliveries for several profiles share the handle.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) newID(t time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS profiles (
		id          TEXT PRIMARY KEY,
		persona     TEXT NOT NULL,
		memory      TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id          TEXT PRIMARY KEY,
		profile_id  TEXT NOT NULL REFERENCES profiles(id),
		role        TEXT NOT NULL,
		content     TEXT NOT NULL,
		created_at  TEXT NOT NULL,
		seen        INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_messages_profile ON messages(profile_id);

	CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
		content,
		content=messages,
		content_rowid=rowid
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// FTS5 triggers for automatic sync
	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
			INSERT INTO messages_fts(rowid, content) VALUES (new.rowid, new.content);
		END`,
		`CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
			INSERT INTO messages_fts(messages_fts, rowid, content) VALUES('delete', old.rowid, old.content);
		END`,
		`CREATE TRIGGER IF NOT EXISTS messages_au AFTER UPDATE OF content ON messages BEGIN
			INSERT INTO messages_fts(messages_fts, rowid, content) VALUES('delete', old.rowid, old.content);
			INSERT INTO messages_fts(rowid, content) VALUES (new.rowid, new.content);
		END`,
	}
	for _, t := range triggers {
		if _, err := s.db.Exec(t); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, profileID string) (*model.ConversationState, error) {
	var personaJSON, memory string
	err := s.db.QueryRowContext(ctx,
		`SELECT persona, memory FROM profiles WHERE id = ?`, profileID).Scan(&personaJSON, &memory)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", model.ErrProfileNotFound, profileID)
	}
	if err != nil {
		return nil, err
	}

	persona, err := model.ParsePersona([]byte(personaJSON))
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", profileID, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, profile_id, role, content, created_at, seen
		 FROM messages WHERE profile_id = ? ORDER BY rowid`, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []model.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &model.ConversationState{
		ProfileID: profileID,
		Persona:   persona,
		Messages:  messages,
		Memory:    memory,
	}, nil
}

func (s *SQLiteStore) Put(ctx context.Context, profileID string, state model.ConversationState) error {
	if profileID == "" {
		return errEmptyProfileID
	}
	if err := state.Persona.Validate(); err != nil {
		return err
	}
	personaJSON, err := json.Marshal(state.Persona)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(timeFormat)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO profiles (id, persona, memory, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET persona = excluded.persona, memory = excluded.memory, updated_at = excluded.updated_at`,
		profileID, string(personaJSON), state.Memory, now, now)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE profile_id = ?`, profileID); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	for _, m := range state.Messages {
		m.ProfileID = profileID
		if _, err := s.insertMessage(ctx, tx, m); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) PutPersona(ctx context.Context, profileID string, p model.Persona) error {
	if profileID == "" {
		return errEmptyProfileID
	}
	if err := p.Validate(); err != nil {
		return err
	}
	personaJSON, err := json.Marshal(p)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(timeFormat)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO profiles (id, persona, memory, created_at, updated_at) VALUES (?, ?, '', ?, ?)
		 ON CONFLICT(id) DO UPDATE SET persona = excluded.persona, updated_at = excluded.updated_at`,
		profileID, string(personaJSON), now, now)
	if err != nil {
		return fmt.Errorf("upsert persona: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, m model.Message) (model.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return m, err
	}
	defer tx.Rollback()

	if err := profileExists(ctx, tx, m.ProfileID); err != nil {
		return m, err
	}
	m, err = s.insertMessage(ctx, tx, m)
	if err != nil {
		return m, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE profiles SET updated_at = ? WHERE id = ?`,
		m.Timestamp.UTC().Format(timeFormat), m.ProfileID); err != nil {
		return m, err
	}
	return m, tx.Commit()
}

func (s *SQLiteStore) insertMessage(ctx context.Context, tx *sql.Tx, m model.Message) (model.Message, error) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	if m.ID == "" {
		m.ID = s.newID(m.Timestamp)
	}
	if m.Role == "" {
		m.Role = model.RoleUser
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO messages (id, profile_id, role, content, created_at, seen) VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.ProfileID, string(m.Role), m.Content, m.Timestamp.UTC().Format(timeFormat), boolInt(m.Seen))
	if err != nil {
		return m, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

func (s *SQLiteStore) MarkSeen(ctx context.Context, profileID, messageID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET seen = 1 WHERE id = ? AND profile_id = ?`, messageID, profileID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s/%s", model.ErrMessageNotFound, profileID, messageID)
	}
	return nil
}

func (s *SQLiteStore) UpdateMemory(ctx context.Context, profileID string, fn func(old string) string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var old string
	err = tx.QueryRowContext(ctx, `SELECT memory FROM profiles WHERE id = ?`, profileID).Scan(&old)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", model.ErrProfileNotFound, profileID)
	}
	if err != nil {
		return "", err
	}

	updated := fn(old)
	_, err = tx.ExecContext(ctx, `UPDATE profiles SET memory = ?, updated_at = ? WHERE id = ?`,
		updated, time.Now().UTC().Format(timeFormat), profileID)
	if err != nil {
		return "", err
	}
	return updated, tx.Commit()
}

func (s *SQLiteStore) Delete(ctx context.Context, profileID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := profileExists(ctx, tx, profileID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE profile_id = ?`, profileID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM profiles WHERE id = ?`, profileID); err != nil {
		return err
	}
	return tx.Commit()
}

// List returns all profiles, most recently active first.
func (s *SQLiteStore) List(ctx context.Context) ([]ProfileSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.persona, length(p.memory), p.updated_at,
		       (SELECT COUNT(*) FROM messages m WHERE m.profile_id = p.id)
		FROM profiles p ORDER BY p.updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProfileSummary
	for rows.Next() {
		var ps ProfileSummary
		var personaJSON string
		if err := rows.Scan(&ps.ID, &personaJSON, &ps.MemoryLen, &ps.UpdatedAt, &ps.Messages); err != nil {
			return nil, err
		}
		json.Unmarshal([]byte(personaJSON), &ps.Persona)
		out = append(out, ps)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func profileExists(ctx context.Context, tx *sql.Tx, profileID string) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM profiles WHERE id = ?`, profileID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", model.ErrProfileNotFound, profileID)
	}
	return err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row scanner) (model.Message, error) {
	var m model.Message
	var role, createdAt string
	var seen int

	if err := row.Scan(&m.ID, &m.ProfileID, &role, &m.Content, &createdAt, &seen); err != nil {
		return m, err
	}
	m.Role = model.Role(role)
	m.Timestamp, _ = time.Parse(time.RFC3339Nano, createdAt)
	m.Seen = seen != 0
	return m, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
