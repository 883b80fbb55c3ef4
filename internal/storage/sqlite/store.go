// Package sqlite persists sessions, conversation turns, and evaluation
// outcomes, and serves conversation history and customer profiles back to
// the pipeline.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/levhaolam/support-engine/internal/domain"
)

// Store is the SQLite implementation of the pipeline's Store and
// ContextProvider, plus the outstanding-rule source for the detector.
type Store struct {
	db *sqlx.DB
}

var (
	_ domain.Store           = (*Store)(nil)
	_ domain.ContextProvider = (*Store)(nil)
)

var pragmas = []string{
	`PRAGMA journal_mode=WAL`,
	`PRAGMA busy_timeout=5000`,
	`PRAGMA foreign_keys=ON`,
}

// New opens (or creates) the database at path and initializes the schema.
func New(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute pragma: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

// DB returns the underlying sqlx.DB, for tests and migrations.
func (s *Store) DB() *sqlx.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
session_id TEXT PRIMARY KEY,
conversation_id TEXT,
channel TEXT NOT NULL DEFAULT 'widget',
customer_email TEXT,
customer_name TEXT,
primary_category TEXT,
secondary_category TEXT,
urgency TEXT,
status TEXT NOT NULL DEFAULT 'active',
eval_decision TEXT,
is_outstanding INTEGER NOT NULL DEFAULT 0,
outstanding_trigger TEXT,
first_response_time_ms INTEGER,
created_at TIMESTAMP NOT NULL,
updated_at TIMESTAMP NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS messages (
id INTEGER PRIMARY KEY AUTOINCREMENT,
session_id TEXT NOT NULL,
role TEXT NOT NULL,
content TEXT NOT NULL,
model_used TEXT,
processing_time_ms INTEGER,
created_at TIMESTAMP NOT NULL,
FOREIGN KEY (session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
)`,
		`CREATE TABLE IF NOT EXISTS eval_results (
id INTEGER PRIMARY KEY AUTOINCREMENT,
session_id TEXT NOT NULL,
category TEXT,
secondary_category TEXT,
decision TEXT NOT NULL,
confidence TEXT,
override_reason TEXT,
checks TEXT,
is_outstanding INTEGER NOT NULL DEFAULT 0,
outstanding_trigger TEXT,
attempts INTEGER NOT NULL DEFAULT 1,
created_at TIMESTAMP NOT NULL,
FOREIGN KEY (session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
)`,
		`CREATE TABLE IF NOT EXISTS customers (
email TEXT PRIMARY KEY,
name TEXT,
subscription_ref TEXT,
joined_at TIMESTAMP
)`,
		`CREATE TABLE IF NOT EXISTS answerer_instructions (
category TEXT PRIMARY KEY,
outstanding_rules TEXT
)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, id)`,
		`CREATE INDEX IF NOT EXISTS idx_eval_results_session ON eval_results(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_email ON sessions(customer_email)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}
	return nil
}

// SaveSession upserts the session row on session_id. Identity fields are only
// overwritten by non-empty values so a later degraded run cannot blank out
// what an earlier run learned.
func (s *Store) SaveSession(ctx context.Context, rec domain.SessionRecord) error {
	now := time.Now()
	query := `INSERT INTO sessions (
session_id, conversation_id, channel, customer_email, customer_name,
primary_category, secondary_category, urgency, status, eval_decision,
first_response_time_ms, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET
conversation_id = COALESCE(NULLIF(excluded.conversation_id, ''), conversation_id),
channel = excluded.channel,
customer_email = COALESCE(NULLIF(excluded.customer_email, ''), customer_email),
customer_name = COALESCE(NULLIF(excluded.customer_name, ''), customer_name),
primary_category = excluded.primary_category,
secondary_category = excluded.secondary_category,
urgency = excluded.urgency,
status = excluded.status,
eval_decision = excluded.eval_decision,
updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		rec.SessionID, rec.ConversationID, rec.Channel, rec.CustomerEmail, rec.CustomerName,
		string(rec.PrimaryCategory), string(rec.SecondaryCategory), string(rec.Urgency),
		rec.Status, string(rec.EvalDecision), rec.FirstResponseTimeMS, now, now)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// SaveMessage appends one conversation turn.
func (s *Store) SaveMessage(ctx context.Context, rec domain.MessageRecord) error {
	query := `INSERT INTO messages (session_id, role, content, model_used, processing_time_ms, created_at)
VALUES (?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		rec.SessionID, rec.Role, rec.Content, rec.ModelUsed, rec.ProcessingTimeMS, time.Now())
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

// SaveEvalResult appends the evaluation outcome for a processed message.
func (s *Store) SaveEvalResult(ctx context.Context, rec domain.EvalRecord) error {
	checks, err := json.Marshal(rec.Checks)
	if err != nil {
		return fmt.Errorf("marshal checks: %w", err)
	}

	query := `INSERT INTO eval_results (
session_id, category, secondary_category, decision, confidence,
override_reason, checks, is_outstanding, outstanding_trigger, attempts, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		rec.SessionID, string(rec.Category), string(rec.SecondaryCategory),
		string(rec.Decision), string(rec.Confidence), rec.OverrideReason,
		string(checks), rec.IsOutstanding, rec.OutstandingTrigger, rec.Attempts, time.Now())
	if err != nil {
		return fmt.Errorf("save eval result: %w", err)
	}
	return nil
}

// UpdateOutstanding records the outstanding determination on the session row.
func (s *Store) UpdateOutstanding(ctx context.Context, sessionID string, isOutstanding bool, trigger string, decision domain.Decision) error {
	query := `UPDATE sessions
SET is_outstanding = ?, outstanding_trigger = ?, eval_decision = ?, updated_at = ?
WHERE session_id = ?`

	_, err := s.db.ExecContext(ctx, query, isOutstanding, trigger, string(decision), time.Now(), sessionID)
	if err != nil {
		return fmt.Errorf("update outstanding: %w", err)
	}
	return nil
}

// History returns prior turns for a session in chronological order.
func (s *Store) History(ctx context.Context, sessionID string) ([]domain.HistoryTurn, error) {
	query := `SELECT role, content, created_at FROM messages
WHERE session_id = ? ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var turns []domain.HistoryTurn
	for rows.Next() {
		var t domain.HistoryTurn
		if err := rows.Scan(&t.Role, &t.Content, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("scan history turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// Profile returns the stored customer profile for an email, or nil when the
// customer is unknown.
func (s *Store) Profile(ctx context.Context, email string) (*domain.CustomerProfile, error) {
	query := `SELECT email, name, subscription_ref, joined_at FROM customers WHERE email = ?`

	var p domain.CustomerProfile
	var name, ref sql.NullString
	var joined sql.NullTime
	err := s.db.QueryRowContext(ctx, query, email).Scan(&p.Email, &name, &ref, &joined)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}

	p.Name = name.String
	p.SubscriptionRef = ref.String
	p.JoinedAt = joined.Time
	return &p, nil
}

// UpsertCustomer inserts or refreshes a customer profile row.
func (s *Store) UpsertCustomer(ctx context.Context, p domain.CustomerProfile) error {
	query := `INSERT INTO customers (email, name, subscription_ref, joined_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(email) DO UPDATE SET
name = COALESCE(NULLIF(excluded.name, ''), name),
subscription_ref = COALESCE(NULLIF(excluded.subscription_ref, ''), subscription_ref)`

	if _, err := s.db.ExecContext(ctx, query, p.Email, p.Name, p.SubscriptionRef, p.JoinedAt); err != nil {
		return fmt.Errorf("upsert customer: %w", err)
	}
	return nil
}

// OutstandingRules loads the detector rule text: the global row plus the
// category-specific row. Missing rows come back empty.
func (s *Store) OutstandingRules(ctx context.Context, category domain.Category) (global, specific string, err error) {
	get := func(key string) (string, error) {
		var rules sql.NullString
		err := s.db.QueryRowContext(ctx,
			`SELECT outstanding_rules FROM answerer_instructions WHERE category = ?`, key).Scan(&rules)
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		if err != nil {
			return "", err
		}
		return rules.String, nil
	}

	if global, err = get("global"); err != nil {
		return "", "", fmt.Errorf("query global rules: %w", err)
	}
	if specific, err = get(string(category)); err != nil {
		return "", "", fmt.Errorf("query category rules: %w", err)
	}
	return global, specific, nil
}

// SetOutstandingRules writes detector rule text for a category ("global" for
// the shared row), used by tests and operational seeding.
func (s *Store) SetOutstandingRules(ctx context.Context, category, rules string) error {
	query := `INSERT INTO answerer_instructions (category, outstanding_rules)
VALUES (?, ?)
ON CONFLICT(category) DO UPDATE SET outstanding_rules = excluded.outstanding_rules`

	if _, err := s.db.ExecContext(ctx, query, category, rules); err != nil {
		return fmt.Errorf("set outstanding rules: %w", err)
	}
	return nil
}
