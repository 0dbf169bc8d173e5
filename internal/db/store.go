package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// The store is session-scoped: it lives in memory and powers full-text
// search over captured events. Nothing survives a restart.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    integration TEXT NOT NULL,
    profile     TEXT NOT NULL DEFAULT '',
    started_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    ended_at    TIMESTAMP
);

CREATE TABLE IF NOT EXISTS events (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id  INTEGER NOT NULL REFERENCES sessions(id),
    timestamp   TEXT NOT NULL,
    step        TEXT NOT NULL,
    status      TEXT NOT NULL,
    exchange_id TEXT NOT NULL,
    headers     TEXT,
    body        TEXT NOT NULL DEFAULT '',
    captured_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id);

CREATE VIRTUAL TABLE IF NOT EXISTS events_fts USING fts5(
    step, status, body, exchange_id,
    content='events', content_rowid='id'
);

CREATE TRIGGER IF NOT EXISTS events_fts_insert AFTER INSERT ON events BEGIN
    INSERT INTO events_fts(rowid, step, status, body, exchange_id)
    VALUES (new.id, new.step, new.status, new.body, new.exchange_id);
END;
`

// Store defines the interface for event persistence
type Store interface {
	CreateSession(ctx context.Context, integration, profile string) (int64, error)
	EndSession(ctx context.Context, sessionID int64) error
	ListSessions(ctx context.Context, limit int64) ([]Session, error)
	InsertEvent(ctx context.Context, ev *EventRecord) (int64, error)
	ListEventsBySession(ctx context.Context, sessionID, limit, offset int64) ([]Event, error)
	SearchEvents(ctx context.Context, query string, limit, offset int64) ([]Event, error)
	SearchEventsInSession(ctx context.Context, query string, sessionID, limit, offset int64) ([]Event, error)
	Close() error
}

// Session is one tracing run against one integration.
type Session struct {
	ID          int64
	Integration string
	Profile     string
	StartedAt   time.Time
	EndedAt     sql.NullTime
	EventCount  int64
}

// EventRecord represents an exchange event to be inserted
type EventRecord struct {
	SessionID  int64
	Timestamp  string
	Step       string
	Status     string
	ExchangeID string
	Headers    map[string]string
	Body       string
}

// Event is a stored exchange event read back from the database.
type Event struct {
	ID         int64
	SessionID  int64
	Timestamp  string
	Step       string
	Status     string
	ExchangeID string
	Headers    map[string]string
	Body       string
	CapturedAt time.Time
}

// SQLiteStore implements Store using an in-memory SQLite database
type SQLiteStore struct {
	db *sql.DB
}

// NewStore creates the in-memory store and initializes the schema.
func NewStore() (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every pooled connection would get its own private memory database;
	// pin the pool to a single connection so all queries see one store.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to set pragmas: %w", err), db.Close())
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to initialize schema: %w", err), db.Close())
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreateSession(ctx context.Context, integration, profile string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (integration, profile) VALUES (?, ?)`,
		integration, profile,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) EndSession(ctx context.Context, sessionID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = CURRENT_TIMESTAMP WHERE id = ?`,
		sessionID,
	)
	return err
}

func (s *SQLiteStore) ListSessions(ctx context.Context, limit int64) (_ []Session, err error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT s.id, s.integration, s.profile, s.started_at, s.ended_at,
       (SELECT COUNT(*) FROM events e WHERE e.session_id = s.id)
FROM sessions s
ORDER BY s.started_at DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { err = errors.Join(err, rows.Close()) }()

	var sessions []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.Integration, &sess.Profile,
			&sess.StartedAt, &sess.EndedAt, &sess.EventCount); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *SQLiteStore) InsertEvent(ctx context.Context, ev *EventRecord) (int64, error) {
	var headersJSON sql.NullString
	if len(ev.Headers) > 0 {
		data, err := json.Marshal(ev.Headers)
		if err == nil {
			headersJSON = sql.NullString{String: string(data), Valid: true}
		}
	}

	res, err := s.db.ExecContext(ctx, `
INSERT INTO events (session_id, timestamp, step, status, exchange_id, headers, body)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.SessionID, ev.Timestamp, ev.Step, ev.Status, ev.ExchangeID, headersJSON, ev.Body,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const eventColumns = `e.id, e.session_id, e.timestamp, e.step, e.status,
       e.exchange_id, e.headers, e.body, e.captured_at`

func (s *SQLiteStore) ListEventsBySession(ctx context.Context, sessionID, limit, offset int64) ([]Event, error) {
	query := `
SELECT ` + eventColumns + `
FROM events e
WHERE e.session_id = ?
ORDER BY e.id ASC
LIMIT ? OFFSET ?`
	return s.scanEvents(ctx, query, sessionID, limit, offset)
}

func (s *SQLiteStore) SearchEvents(ctx context.Context, query string, limit, offset int64) ([]Event, error) {
	searchQuery := `
SELECT ` + eventColumns + `
FROM events e
JOIN events_fts fts ON e.id = fts.rowid
WHERE events_fts MATCH ?
ORDER BY e.id DESC
LIMIT ? OFFSET ?`
	return s.scanEvents(ctx, searchQuery, query, limit, offset)
}

func (s *SQLiteStore) SearchEventsInSession(ctx context.Context, query string, sessionID, limit, offset int64) ([]Event, error) {
	searchQuery := `
SELECT ` + eventColumns + `
FROM events e
JOIN events_fts fts ON e.id = fts.rowid
WHERE events_fts MATCH ? AND e.session_id = ?
ORDER BY e.id DESC
LIMIT ? OFFSET ?`
	return s.scanEvents(ctx, searchQuery, query, sessionID, limit, offset)
}

func (s *SQLiteStore) scanEvents(ctx context.Context, query string, args ...any) (_ []Event, err error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { err = errors.Join(err, rows.Close()) }()

	var events []Event
	for rows.Next() {
		var ev Event
		var headers sql.NullString
		if err := rows.Scan(
			&ev.ID, &ev.SessionID, &ev.Timestamp, &ev.Step, &ev.Status,
			&ev.ExchangeID, &headers, &ev.Body, &ev.CapturedAt,
		); err != nil {
			return nil, err
		}
		if headers.Valid {
			// Corrupt header JSON degrades to no headers
			_ = json.Unmarshal([]byte(headers.String), &ev.Headers)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
