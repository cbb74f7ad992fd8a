package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pnguyenfetchai/study-assistant/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS session_slots (
			agent TEXT NOT NULL,
			key TEXT NOT NULL,
			sender TEXT NOT NULL DEFAULT '',
			message_id TEXT NOT NULL DEFAULT '',
			last_request TEXT NOT NULL DEFAULT '',
			last_response TEXT NOT NULL DEFAULT '',
			waiting_for_init INTEGER NOT NULL DEFAULT 0,
			cred_token TEXT NOT NULL DEFAULT '',
			cred_domain TEXT NOT NULL DEFAULT '',
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (agent, key)
		)`,
		`CREATE TABLE IF NOT EXISTS results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_addr TEXT NOT NULL,
			kind TEXT NOT NULL,
			data TEXT NOT NULL,
			content_type TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_results_user ON results(user_addr, created_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// PutSlot upserts the slot. A second Put for the same (agent, key)
// overwrites, never queues.
func (s *SQLiteStore) PutSlot(ctx context.Context, slot *domain.SessionSlot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_slots
			(agent, key, sender, message_id, last_request, last_response, waiting_for_init, cred_token, cred_domain, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent, key) DO UPDATE SET
			sender = excluded.sender,
			message_id = excluded.message_id,
			last_request = excluded.last_request,
			last_response = excluded.last_response,
			waiting_for_init = excluded.waiting_for_init,
			cred_token = excluded.cred_token,
			cred_domain = excluded.cred_domain,
			updated_at = excluded.updated_at`,
		slot.Agent, slot.Key, slot.Sender, slot.MessageID, slot.LastRequest, slot.LastResponse,
		boolToInt(slot.WaitingForInit), slot.CredToken, slot.CredDomain, time.Now())
	if err != nil {
		return fmt.Errorf("failed to put slot: %w", err)
	}
	return nil
}

// GetSlot returns the slot, or nil if none exists.
func (s *SQLiteStore) GetSlot(ctx context.Context, agent, key string) (*domain.SessionSlot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT agent, key, sender, message_id, last_request, last_response, waiting_for_init, cred_token, cred_domain, updated_at
		FROM session_slots WHERE agent = ? AND key = ?`, agent, key)

	var slot domain.SessionSlot
	var waiting int
	err := row.Scan(&slot.Agent, &slot.Key, &slot.Sender, &slot.MessageID, &slot.LastRequest,
		&slot.LastResponse, &waiting, &slot.CredToken, &slot.CredDomain, &slot.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slot: %w", err)
	}
	slot.WaitingForInit = waiting != 0
	return &slot, nil
}

// ClearSlot deletes one slot.
func (s *SQLiteStore) ClearSlot(ctx context.Context, agent, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_slots WHERE agent = ? AND key = ?`, agent, key); err != nil {
		return fmt.Errorf("failed to clear slot: %w", err)
	}
	return nil
}

// ClearAgent deletes all slots for an agent (explicit session reset).
func (s *SQLiteStore) ClearAgent(ctx context.Context, agent string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_slots WHERE agent = ?`, agent); err != nil {
		return fmt.Errorf("failed to clear agent slots: %w", err)
	}
	return nil
}

// PutResult records a terminal artifact for the ingress to pick up.
func (s *SQLiteStore) PutResult(ctx context.Context, result *domain.Result) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO results (user_addr, kind, data, content_type, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		result.UserAddr, result.Kind, result.Data, result.ContentType, time.Now())
	if err != nil {
		return fmt.Errorf("failed to put result: %w", err)
	}
	return nil
}

// LatestResult returns the newest result for the user created after the
// given time, or nil if none has appeared yet.
func (s *SQLiteStore) LatestResult(ctx context.Context, userAddr string, after time.Time) (*domain.Result, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_addr, kind, data, content_type, created_at
		FROM results WHERE user_addr = ? AND created_at >= ?
		ORDER BY created_at DESC, id DESC LIMIT 1`, userAddr, after)

	var r domain.Result
	err := row.Scan(&r.UserAddr, &r.Kind, &r.Data, &r.ContentType, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	return &r, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
