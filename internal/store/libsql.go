package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/atessari/diaforge/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "open libsql: %v", err).WithCause(err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// --- Sessions ---

func (s *LibSQLStore) CreateSession(ctx context.Context, sess *Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, kind, status, source, image_path, renders, repairs, error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, string(sess.Kind), string(sess.Status), sess.Source, sess.ImagePath,
		sess.Renders, sess.Repairs, nullableText(sess.Error), timeOrNow(sess.CreatedAt), timeOrNow(sess.UpdatedAt),
	)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "create session: %v", err).WithCause(err)
	}
	return nil
}

func (s *LibSQLStore) GetSession(ctx context.Context, id string) (*Session, error) {
	sess := &Session{}
	var kind, status string
	var source, imagePath, errJSON sql.NullString
	var completedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, kind, status, source, image_path, renders, repairs, error, created_at, updated_at, completed_at
		 FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &kind, &status, &source, &imagePath, &sess.Renders, &sess.Repairs,
		&errJSON, &sess.CreatedAt, &sess.UpdatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "session %s not found", id)
	}
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "get session: %v", err).WithCause(err)
	}
	sess.Kind = schema.SessionKind(kind)
	sess.Status = schema.SessionStatus(status)
	sess.Source = source.String
	sess.ImagePath = imagePath.String
	if errJSON.Valid && errJSON.String != "" {
		sess.Error = []byte(errJSON.String)
	}
	if completedAt.Valid {
		t := completedAt.Time
		sess.CompletedAt = &t
	}
	return sess, nil
}

func (s *LibSQLStore) UpdateSession(ctx context.Context, id string, update SessionUpdate) error {
	var sets []string
	var args []any

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.Source != nil {
		sets = append(sets, "source = ?")
		args = append(args, *update.Source)
	}
	if update.ImagePath != nil {
		sets = append(sets, "image_path = ?")
		args = append(args, *update.ImagePath)
	}
	if update.Renders != nil {
		sets = append(sets, "renders = ?")
		args = append(args, *update.Renders)
	}
	if update.Repairs != nil {
		sets = append(sets, "repairs = ?")
		args = append(args, *update.Repairs)
	}
	if update.Error != nil {
		sets = append(sets, "error = ?")
		args = append(args, string(update.Error))
	}
	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, *update.CompletedAt)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC())
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "update session: %v", err).WithCause(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return schema.NewErrorf(schema.ErrCodeNotFound, "session %s not found", id)
	}
	return nil
}

func (s *LibSQLStore) ListSessions(ctx context.Context, filter SessionFilter) ([]*Session, error) {
	query := `SELECT id, kind, status, source, image_path, renders, repairs, error, created_at, updated_at, completed_at FROM sessions`
	var conds []string
	var args []any
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "list sessions: %v", err).WithCause(err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess := &Session{}
		var kind, status string
		var source, imagePath, errJSON sql.NullString
		var completedAt sql.NullTime
		if err := rows.Scan(&sess.ID, &kind, &status, &source, &imagePath, &sess.Renders,
			&sess.Repairs, &errJSON, &sess.CreatedAt, &sess.UpdatedAt, &completedAt); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStore, "scan session: %v", err).WithCause(err)
		}
		sess.Kind = schema.SessionKind(kind)
		sess.Status = schema.SessionStatus(status)
		sess.Source = source.String
		sess.ImagePath = imagePath.String
		if errJSON.Valid && errJSON.String != "" {
			sess.Error = []byte(errJSON.String)
		}
		if completedAt.Valid {
			t := completedAt.Time
			sess.CompletedAt = &t
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *LibSQLStore) PruneSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	terminal := []any{
		string(schema.SessionStatusSucceeded),
		string(schema.SessionStatusExhausted),
		string(schema.SessionStatusFailed),
	}
	args := append([]any{}, terminal...)
	args = append(args, cutoff)

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM events WHERE session_id IN
		 (SELECT id FROM sessions WHERE status IN (?, ?, ?) AND completed_at < ?)`, args...); err != nil {
		return 0, schema.NewErrorf(schema.ErrCodeStore, "prune events: %v", err).WithCause(err)
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE status IN (?, ?, ?) AND completed_at < ?`, args...)
	if err != nil {
		return 0, schema.NewErrorf(schema.ErrCodeStore, "prune sessions: %v", err).WithCause(err)
	}
	return res.RowsAffected()
}

// --- Events ---

func (s *LibSQLStore) AppendEvent(ctx context.Context, event *Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (session_id, event_type, payload, timestamp) VALUES (?, ?, ?, ?)`,
		event.SessionID, event.Type, nullableText(event.Payload), timeOrNow(event.Timestamp),
	)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "append event: %v", err).WithCause(err)
	}
	return nil
}

func (s *LibSQLStore) GetEvents(ctx context.Context, sessionID string) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, event_type, payload, timestamp FROM events WHERE session_id = ? ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "get events: %v", err).WithCause(err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Type, &payload, &e.Timestamp); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStore, "scan event: %v", err).WithCause(err)
		}
		if payload.Valid && payload.String != "" {
			e.Payload = []byte(payload.String)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- helpers ---

func nullableText(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
