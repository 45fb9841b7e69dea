package topics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed StateStore.
//
// Notes:
// - One row per (chat_id, thread_id); a partial unique index keeps a
//   bound context on at most one thread per chat.
// - WAL is enabled so the CLI can read while the bridge writes.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	p := filepath.Clean(strings.TrimSpace(path))
	if p == "" {
		return nil, errors.New("missing db path")
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) GetThread(ctx context.Context, chatID, threadID int64) (*ThreadSnapshot, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if chatID == 0 || threadID == 0 {
		return nil, errors.New("invalid request")
	}

	var (
		snap    ThreadSnapshot
		project string
		branch  string
	)
	err := s.db.QueryRowContext(ctx, `
SELECT chat_id, thread_id, project, branch, topic_title, default_engine
FROM topic_threads
WHERE chat_id = ? AND thread_id = ?
`, chatID, threadID).Scan(
		&snap.ChatID,
		&snap.ThreadID,
		&project,
		&branch,
		&snap.TopicTitle,
		&snap.DefaultEngine,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if project != "" {
		snap.Context = &RunContext{Project: project, Branch: branch}
	}
	snap.Sessions, err = s.loadSessions(ctx, chatID, threadID)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *Store) ListThreads(ctx context.Context, chatID int64) ([]ThreadSnapshot, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}

	q := `
SELECT chat_id, thread_id, project, branch, topic_title, default_engine
FROM topic_threads
`
	args := []any{}
	if chatID != 0 {
		q += "WHERE chat_id = ?\n"
		args = append(args, chatID)
	}
	q += "ORDER BY chat_id ASC, thread_id ASC"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ThreadSnapshot, 0, 16)
	for rows.Next() {
		var (
			snap    ThreadSnapshot
			project string
			branch  string
		)
		if err := rows.Scan(
			&snap.ChatID,
			&snap.ThreadID,
			&project,
			&branch,
			&snap.TopicTitle,
			&snap.DefaultEngine,
		); err != nil {
			return nil, err
		}
		if project != "" {
			snap.Context = &RunContext{Project: project, Branch: branch}
		}
		snap.Sessions = map[string]string{}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.mergeSessions(ctx, chatID, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) FindThreadForContext(ctx context.Context, chatID int64, rc RunContext) (int64, bool, error) {
	if s == nil || s.db == nil {
		return 0, false, errors.New("store not initialized")
	}
	project := strings.ToLower(strings.TrimSpace(rc.Project))
	if chatID == 0 || project == "" {
		return 0, false, errors.New("invalid request")
	}

	var threadID int64
	err := s.db.QueryRowContext(ctx, `
SELECT thread_id
FROM topic_threads
WHERE chat_id = ? AND project = ? AND branch = ?
`, chatID, project, NormalizeBranch(rc.Branch)).Scan(&threadID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return threadID, true, nil
}

// SetContext binds a context to a thread, creating the row when the
// thread is new. Rebinding the same thread replaces its context; the
// unique context index rejects binding a context already held by a
// different thread in the same chat.
func (s *Store) SetContext(ctx context.Context, chatID, threadID int64, rc RunContext, topicTitle string) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	project := strings.ToLower(strings.TrimSpace(rc.Project))
	if chatID == 0 || threadID == 0 {
		return errors.New("invalid request")
	}
	if project == "" {
		return errors.New("missing project")
	}

	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO topic_threads(chat_id, thread_id, project, branch, topic_title, default_engine, created_at_unix_ms, updated_at_unix_ms)
VALUES(?, ?, ?, ?, ?, '', ?, ?)
ON CONFLICT(chat_id, thread_id) DO UPDATE SET
  project = excluded.project,
  branch = excluded.branch,
  topic_title = excluded.topic_title,
  updated_at_unix_ms = excluded.updated_at_unix_ms
`, chatID, threadID, project, NormalizeBranch(rc.Branch), strings.TrimSpace(topicTitle), now, now)
	return err
}

// SetDefaultEngine records the engine new runs in this thread default
// to. It fails with sql.ErrNoRows for an unknown thread.
func (s *Store) SetDefaultEngine(ctx context.Context, chatID, threadID int64, engine string) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	if chatID == 0 || threadID == 0 {
		return errors.New("invalid request")
	}

	res, err := s.db.ExecContext(ctx, `
UPDATE topic_threads
SET default_engine = ?, updated_at_unix_ms = ?
WHERE chat_id = ? AND thread_id = ?
`, strings.TrimSpace(engine), time.Now().UnixMilli(), chatID, threadID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetSession stores an engine's resume token for a thread. An empty
// session id clears the engine's entry. The thread row must exist.
func (s *Store) SetSession(ctx context.Context, chatID, threadID int64, engine, sessionID string) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	engine = strings.TrimSpace(engine)
	if chatID == 0 || threadID == 0 || engine == "" {
		return errors.New("invalid request")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `
SELECT COUNT(1) FROM topic_threads WHERE chat_id = ? AND thread_id = ?
`, chatID, threadID).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return sql.ErrNoRows
	}

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		if _, err := tx.ExecContext(ctx, `
DELETE FROM topic_sessions WHERE chat_id = ? AND thread_id = ? AND engine = ?
`, chatID, threadID, engine); err != nil {
			return err
		}
		return tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO topic_sessions(chat_id, thread_id, engine, session_id, updated_at_unix_ms)
VALUES(?, ?, ?, ?, ?)
ON CONFLICT(chat_id, thread_id, engine) DO UPDATE SET
  session_id = excluded.session_id,
  updated_at_unix_ms = excluded.updated_at_unix_ms
`, chatID, threadID, engine, sessionID, time.Now().UnixMilli()); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteThread removes a binding and its sessions. Deleting an unknown
// thread is not an error; reconciliation drops bindings that may have
// already been cleaned up.
func (s *Store) DeleteThread(ctx context.Context, chatID, threadID int64) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	if chatID == 0 || threadID == 0 {
		return errors.New("invalid request")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM topic_sessions WHERE chat_id = ? AND thread_id = ?`, chatID, threadID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM topic_threads WHERE chat_id = ? AND thread_id = ?`, chatID, threadID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) loadSessions(ctx context.Context, chatID, threadID int64) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT engine, session_id
FROM topic_sessions
WHERE chat_id = ? AND thread_id = ?
`, chatID, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := map[string]string{}
	for rows.Next() {
		var engine, sessionID string
		if err := rows.Scan(&engine, &sessionID); err != nil {
			return nil, err
		}
		sessions[engine] = sessionID
	}
	return sessions, rows.Err()
}

// mergeSessions fills the Sessions maps for a ListThreads result with
// one query instead of one per thread.
func (s *Store) mergeSessions(ctx context.Context, chatID int64, snaps []ThreadSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	q := `SELECT chat_id, thread_id, engine, session_id FROM topic_sessions`
	args := []any{}
	if chatID != 0 {
		q += ` WHERE chat_id = ?`
		args = append(args, chatID)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	type threadKey struct{ chat, thread int64 }
	byKey := make(map[threadKey]*ThreadSnapshot, len(snaps))
	for i := range snaps {
		byKey[threadKey{snaps[i].ChatID, snaps[i].ThreadID}] = &snaps[i]
	}
	for rows.Next() {
		var (
			chat, thread      int64
			engine, sessionID string
		)
		if err := rows.Scan(&chat, &thread, &engine, &sessionID); err != nil {
			return err
		}
		if snap, ok := byKey[threadKey{chat, thread}]; ok {
			snap.Sessions[engine] = sessionID
		}
	}
	return rows.Err()
}

func initSchema(db *sql.DB) error {
	if db == nil {
		return errors.New("nil db")
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return fmt.Errorf("pragma journal_mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=3000;`); err != nil {
		return fmt.Errorf("pragma busy_timeout: %w", err)
	}
	return migrateSchema(db)
}

func migrateSchema(db *sql.DB) error {
	if db == nil {
		return errors.New("nil db")
	}
	const targetVersion = 1

	var v int
	if err := db.QueryRow(`PRAGMA user_version;`).Scan(&v); err != nil {
		return fmt.Errorf("pragma user_version: %w", err)
	}
	if v >= targetVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS topic_threads (
  chat_id INTEGER NOT NULL,
  thread_id INTEGER NOT NULL,
  project TEXT NOT NULL DEFAULT '',
  branch TEXT NOT NULL DEFAULT '',
  topic_title TEXT NOT NULL DEFAULT '',
  default_engine TEXT NOT NULL DEFAULT '',
  created_at_unix_ms INTEGER NOT NULL,
  updated_at_unix_ms INTEGER NOT NULL,
  PRIMARY KEY (chat_id, thread_id)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_topic_threads_context
  ON topic_threads(chat_id, project, branch) WHERE project <> '';
CREATE TABLE IF NOT EXISTS topic_sessions (
  chat_id INTEGER NOT NULL,
  thread_id INTEGER NOT NULL,
  engine TEXT NOT NULL,
  session_id TEXT NOT NULL DEFAULT '',
  updated_at_unix_ms INTEGER NOT NULL,
  PRIMARY KEY (chat_id, thread_id, engine)
);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version=%d;`, targetVersion)); err != nil {
		return err
	}
	return tx.Commit()
}
