package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"market-news-alerts/internal/model"
)

// sqliteAudit is the local-mode audit store. The same decisions are reached
// whether evaluated against a server-side Postgres or a client-side SQLite
// file; only the reporting backend differs.
type sqliteAudit struct {
	db *sql.DB
}

// NewSQLiteAudit opens (or creates) a SQLite-backed audit store.
func NewSQLiteAudit(dsn string) (AuditStore, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:alertd.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteAudit{db: db}, nil
}

func (s *sqliteAudit) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alert_decisions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			allowed INTEGER NOT NULL,
			reason TEXT NOT NULL,
			evaluated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_evaluated_at ON alert_decisions(evaluated_at)`,
		`CREATE TABLE IF NOT EXISTS delivery_records (
			alert_id TEXT PRIMARY KEY,
			delivered INTEGER NOT NULL,
			attempts INTEGER NOT NULL,
			last_attempt_at TEXT NOT NULL,
			recipient_count INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init sqlite schema: %w", err)
		}
	}
	return nil
}

func (s *sqliteAudit) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *sqliteAudit) SaveDecision(ctx context.Context, decision model.AlertDecision) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alert_decisions (event_id, user_id, allowed, reason, evaluated_at)
		VALUES (?, ?, ?, ?, ?)`,
		decision.EventID,
		decision.UserID,
		decision.Allowed,
		string(decision.Reason),
		decision.EvaluatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteAudit) SaveDelivery(ctx context.Context, record model.DeliveryRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO delivery_records (alert_id, delivered, attempts, last_attempt_at, recipient_count)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (alert_id) DO UPDATE SET
			delivered = excluded.delivered,
			attempts = excluded.attempts,
			last_attempt_at = excluded.last_attempt_at,
			recipient_count = excluded.recipient_count`,
		record.AlertID,
		record.Delivered,
		record.Attempts,
		record.LastAttemptAt.UTC().Format(time.RFC3339Nano),
		record.RecipientCount,
	)
	return err
}

func (s *sqliteAudit) ListRecentDecisions(ctx context.Context, limit int) ([]model.AlertDecision, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, user_id, allowed, reason, evaluated_at
		FROM alert_decisions ORDER BY evaluated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent decisions: %w", err)
	}
	defer rows.Close()
	return scanSQLiteDecisions(rows)
}

func (s *sqliteAudit) ListDecisionsBetween(ctx context.Context, from, to time.Time) ([]model.AlertDecision, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, user_id, allowed, reason, evaluated_at
		FROM alert_decisions
		WHERE evaluated_at >= ? AND evaluated_at < ?
		ORDER BY evaluated_at`,
		from.UTC().Format(time.RFC3339Nano),
		to.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("list decisions between: %w", err)
	}
	defer rows.Close()
	return scanSQLiteDecisions(rows)
}

func (s *sqliteAudit) DeleteDecisionsBefore(ctx context.Context, olderThan time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM alert_decisions WHERE evaluated_at < ?`,
		olderThan.UTC().Format(time.RFC3339Nano))
	return err
}

func scanSQLiteDecisions(rows *sql.Rows) ([]model.AlertDecision, error) {
	decisions := make([]model.AlertDecision, 0)
	for rows.Next() {
		var (
			decision    model.AlertDecision
			reason      string
			evaluatedAt string
		)
		if err := rows.Scan(
			&decision.EventID,
			&decision.UserID,
			&decision.Allowed,
			&reason,
			&evaluatedAt,
		); err != nil {
			return nil, err
		}
		ts, err := time.Parse(time.RFC3339Nano, evaluatedAt)
		if err != nil {
			return nil, fmt.Errorf("parse evaluated_at: %w", err)
		}
		decision.Reason = model.ReasonCode(reason)
		decision.EvaluatedAt = ts
		decisions = append(decisions, decision)
	}
	return decisions, rows.Err()
}

var _ AuditStore = (*sqliteAudit)(nil)
