package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/kolson/planner/backend/internal/model/brief"
	"github.com/kolson/planner/backend/internal/model/chat"
)

// Fixed-width so that lexical order in SQLite matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
}

// NewSQLiteStore opens (or creates) the database named by dsn and applies migrations.
// dsn is a file path, a "file:" URI, or ":memory:".
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("open db: empty dsn")
	}

	memory := dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
	db, err := sql.Open("sqlite", buildDSN(dsn, memory))
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Each connection to an in-memory database is a separate database.
	if memory {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		now:     func() time.Time { return time.Now().UTC() },
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func buildDSN(dsn string, memory bool) string {
	if memory || strings.Contains(dsn, "?") {
		return dsn
	}
	return dsn + "?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)"
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id          TEXT PRIMARY KEY,
		visitor_id  TEXT NOT NULL UNIQUE,
		email       TEXT,
		name        TEXT,
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id          TEXT PRIMARY KEY,
		session_id  TEXT NOT NULL REFERENCES sessions(id),
		role        TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
		content     TEXT NOT NULL,
		created_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);

	CREATE TABLE IF NOT EXISTS project_briefs (
		id                TEXT PRIMARY KEY,
		session_id        TEXT NOT NULL UNIQUE REFERENCES sessions(id),
		summary           TEXT,
		goals             TEXT NOT NULL DEFAULT '[]',
		features          TEXT NOT NULL DEFAULT '[]',
		target_audience   TEXT,
		tech_preferences  TEXT,
		timeline          TEXT,
		budget_signals    TEXT,
		industry          TEXT,
		status            TEXT NOT NULL DEFAULT 'exploring',
		share_id          TEXT UNIQUE,
		created_at        TEXT NOT NULL,
		updated_at        TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	if _, err := s.db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) newMessageID(ts time.Time) string {
	s.entropyMu.Lock()
	defer s.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(ts), s.entropy).String()
}

// UpsertSession creates the session for visitorID or touches the existing one.
func (s *SQLiteStore) UpsertSession(ctx context.Context, visitorID string) (*chat.Session, error) {
	now := s.now().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, visitor_id, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(visitor_id) DO UPDATE SET updated_at = excluded.updated_at`,
		uuid.NewString(), visitorID, now, now)
	if err != nil {
		return nil, fmt.Errorf("upsert session: %w", err)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, visitor_id, email, name, created_at, updated_at FROM sessions WHERE visitor_id = ?`, visitorID)
	return scanSession(row)
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*chat.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, visitor_id, email, name, created_at, updated_at FROM sessions WHERE id = ?`, sessionID)
	return scanSession(row)
}

// UpdateContact stores whichever contact fields are non-empty.
func (s *SQLiteStore) UpdateContact(ctx context.Context, sessionID string, contact chat.ContactUpdate) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET
			email = COALESCE(NULLIF(?, ''), email),
			name = COALESCE(NULLIF(?, ''), name),
			updated_at = ?
		 WHERE id = ?`,
		contact.Email, contact.Name, s.now().Format(timeLayout), sessionID)
	if err != nil {
		return fmt.Errorf("update contact: %w", err)
	}
	return requireAffected(res)
}

// AppendMessage assigns ID and timestamp when missing and inserts the message.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *chat.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	if msg.ID == "" {
		msg.ID = s.newMessageID(msg.CreatedAt)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, string(msg.Role), msg.Content, msg.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// RecentMessages returns the newest limit messages in ascending creation order.
func (s *SQLiteStore) RecentMessages(ctx context.Context, sessionID string, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, created_at FROM messages
		 WHERE session_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []chat.Message
	for rows.Next() {
		var msg chat.Message
		var role, createdAt string
		if err := rows.Scan(&msg.ID, &msg.SessionID, &role, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Role = chat.Role(role)
		msg.CreatedAt = parseTime(createdAt)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// UpsertBrief replaces every content field and the status of the session's brief.
// A brief already marked shared keeps that status.
func (s *SQLiteStore) UpsertBrief(ctx context.Context, sessionID string, fields brief.Fields, status brief.Status) error {
	goals, err := encodeList(fields.Goals)
	if err != nil {
		return err
	}
	features, err := encodeList(fields.Features)
	if err != nil {
		return err
	}

	now := s.now().Format(timeLayout)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO project_briefs (
			id, session_id, summary, goals, features, target_audience, tech_preferences,
			timeline, budget_signals, industry, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			summary = excluded.summary,
			goals = excluded.goals,
			features = excluded.features,
			target_audience = excluded.target_audience,
			tech_preferences = excluded.tech_preferences,
			timeline = excluded.timeline,
			budget_signals = excluded.budget_signals,
			industry = excluded.industry,
			status = CASE WHEN project_briefs.status = 'shared' THEN 'shared' ELSE excluded.status END,
			updated_at = excluded.updated_at`,
		uuid.NewString(), sessionID,
		nullString(fields.Summary), goals, features,
		nullString(fields.TargetAudience), nullString(fields.TechPreferences),
		nullString(fields.Timeline), nullString(fields.BudgetSignals), nullString(fields.Industry),
		string(status), now, now)
	if err != nil {
		return fmt.Errorf("upsert brief: %w", err)
	}
	return nil
}

// EnsureBrief creates an empty exploring brief unless one already exists.
func (s *SQLiteStore) EnsureBrief(ctx context.Context, sessionID string) error {
	now := s.now().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO project_briefs (id, session_id, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO NOTHING`,
		uuid.NewString(), sessionID, string(brief.StatusExploring), now, now)
	if err != nil {
		return fmt.Errorf("ensure brief: %w", err)
	}
	return nil
}

// MarkShared sets the brief status to shared, creating an empty brief if needed.
func (s *SQLiteStore) MarkShared(ctx context.Context, sessionID string) error {
	now := s.now().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO project_briefs (id, session_id, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`,
		uuid.NewString(), sessionID, string(brief.StatusShared), now, now)
	if err != nil {
		return fmt.Errorf("mark brief shared: %w", err)
	}
	return nil
}

// AssignShareID gives the brief a share token once and returns the stored token.
func (s *SQLiteStore) AssignShareID(ctx context.Context, sessionID string) (string, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE project_briefs SET share_id = ? WHERE session_id = ? AND share_id IS NULL`,
		brief.NewShareID(), sessionID)
	if err != nil {
		return "", fmt.Errorf("assign share id: %w", err)
	}

	var shareID sql.NullString
	err = s.db.QueryRowContext(ctx,
		`SELECT share_id FROM project_briefs WHERE session_id = ?`, sessionID).Scan(&shareID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read share id: %w", err)
	}
	return shareID.String, nil
}

const briefColumns = `session_id, summary, goals, features, target_audience, tech_preferences,
	timeline, budget_signals, industry, status, share_id, created_at, updated_at`

// GetBriefBySession returns the session's brief.
func (s *SQLiteStore) GetBriefBySession(ctx context.Context, sessionID string) (*brief.Brief, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+briefColumns+` FROM project_briefs WHERE session_id = ?`, sessionID)
	return scanBrief(row)
}

// GetBriefByShareID returns the brief published under shareID.
func (s *SQLiteStore) GetBriefByShareID(ctx context.Context, shareID string) (*brief.Brief, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+briefColumns+` FROM project_briefs WHERE share_id = ?`, shareID)
	return scanBrief(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*chat.Session, error) {
	var session chat.Session
	var email, name sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&session.ID, &session.VisitorID, &email, &name, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	session.Email = email.String
	session.Name = name.String
	session.CreatedAt = parseTime(createdAt)
	session.UpdatedAt = parseTime(updatedAt)
	return &session, nil
}

func scanBrief(row rowScanner) (*brief.Brief, error) {
	var b brief.Brief
	var summary, audience, tech, timeline, budget, industry, shareID sql.NullString
	var goals, features, status, createdAt, updatedAt string
	err := row.Scan(&b.SessionID, &summary, &goals, &features, &audience, &tech,
		&timeline, &budget, &industry, &status, &shareID, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan brief: %w", err)
	}

	b.Summary = stringPtr(summary)
	b.TargetAudience = stringPtr(audience)
	b.TechPreferences = stringPtr(tech)
	b.Timeline = stringPtr(timeline)
	b.BudgetSignals = stringPtr(budget)
	b.Industry = stringPtr(industry)
	if b.Goals, err = decodeList(goals); err != nil {
		return nil, err
	}
	if b.Features, err = decodeList(features); err != nil {
		return nil, err
	}
	b.Status = brief.Status(status)
	b.ShareID = shareID.String
	b.CreatedAt = parseTime(createdAt)
	b.UpdatedAt = parseTime(updatedAt)
	return &b, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func encodeList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("encode list: %w", err)
	}
	return string(raw), nil
}

func decodeList(raw string) ([]string, error) {
	items := []string{}
	if raw == "" {
		return items, nil
	}
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	return items, nil
}

func nullString(val *string) sql.NullString {
	if val == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *val, Valid: true}
}

func stringPtr(val sql.NullString) *string {
	if !val.Valid {
		return nil
	}
	s := val.String
	return &s
}

func parseTime(raw string) time.Time {
	t, _ := time.Parse(timeLayout, raw)
	return t
}
