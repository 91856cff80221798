package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"market-news-alerts/internal/model"
	"market-news-alerts/internal/prefs"
)

const (
	createPreferencesSQL = `CREATE TABLE IF NOT EXISTS alert_preferences (
        user_id    TEXT PRIMARY KEY,
        pref       JSONB NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );`

	createDecisionsSQL = `CREATE TABLE IF NOT EXISTS alert_decisions (
        id           BIGSERIAL PRIMARY KEY,
        event_id     TEXT NOT NULL,
        user_id      TEXT NOT NULL,
        allowed      BOOLEAN NOT NULL,
        reason       TEXT NOT NULL,
        evaluated_at TIMESTAMPTZ NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_decisions_evaluated_at ON alert_decisions(evaluated_at);
    CREATE INDEX IF NOT EXISTS idx_decisions_user ON alert_decisions(user_id, evaluated_at);`

	createDeliveriesSQL = `CREATE TABLE IF NOT EXISTS delivery_records (
        alert_id        TEXT PRIMARY KEY,
        delivered       BOOLEAN NOT NULL,
        attempts        INTEGER NOT NULL,
        last_attempt_at TIMESTAMPTZ NOT NULL,
        recipient_count INTEGER NOT NULL
    );`

	getPreferenceSQL = `SELECT pref FROM alert_preferences WHERE user_id = $1;`

	upsertPreferenceSQL = `INSERT INTO alert_preferences (user_id, pref, updated_at)
    VALUES ($1, $2, now())
    ON CONFLICT (user_id) DO UPDATE
    SET pref = EXCLUDED.pref, updated_at = now();`

	listUsersSQL = `SELECT user_id FROM alert_preferences ORDER BY user_id;`

	insertDecisionSQL = `INSERT INTO alert_decisions (
        event_id, user_id, allowed, reason, evaluated_at
    ) VALUES ($1,$2,$3,$4,$5);`

	insertDeliverySQL = `INSERT INTO delivery_records (
        alert_id, delivered, attempts, last_attempt_at, recipient_count
    ) VALUES ($1,$2,$3,$4,$5)
    ON CONFLICT (alert_id) DO UPDATE
    SET delivered       = EXCLUDED.delivered,
        attempts        = EXCLUDED.attempts,
        last_attempt_at = EXCLUDED.last_attempt_at,
        recipient_count = EXCLUDED.recipient_count;`

	listRecentDecisionsSQL = `SELECT event_id, user_id, allowed, reason, evaluated_at
    FROM alert_decisions
    ORDER BY evaluated_at DESC
    LIMIT $1;`

	listDecisionsBetweenSQL = `SELECT event_id, user_id, allowed, reason, evaluated_at
    FROM alert_decisions
    WHERE evaluated_at >= $1
      AND evaluated_at < $2
    ORDER BY evaluated_at;`

	deleteDecisionsBeforeSQL = `DELETE FROM alert_decisions WHERE evaluated_at < $1;`
)

// Repository persists preferences, decisions, and delivery records in
// PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgx pool into a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Init creates the schema if absent.
func (r *Repository) Init(ctx context.Context) error {
	pool, err := r.getPool()
	if err != nil {
		return err
	}
	for _, stmt := range []string{createPreferencesSQL, createDecisionsSQL, createDeliveriesSQL} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Close releases the underlying pool resources.
func (r *Repository) Close() error {
	if r == nil || r.pool == nil {
		return nil
	}
	r.pool.Close()
	return nil
}

// Get returns the stored preference or onboarding defaults when absent.
func (r *Repository) Get(ctx context.Context, userID string) (model.AlertPreference, error) {
	pool, err := r.getPool()
	if err != nil {
		return model.AlertPreference{}, err
	}

	var raw []byte
	err = pool.QueryRow(ctx, getPreferenceSQL, userID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.DefaultPreference(), nil
	}
	if err != nil {
		return model.AlertPreference{}, fmt.Errorf("get preference: %w", err)
	}

	var pref model.AlertPreference
	if err := json.Unmarshal(raw, &pref); err != nil {
		return model.AlertPreference{}, fmt.Errorf("decode preference: %w", err)
	}
	return pref, nil
}

// Put validates and upserts a preference record.
func (r *Repository) Put(ctx context.Context, userID string, pref model.AlertPreference) error {
	if userID == "" {
		return &model.ValidationError{Field: "userId", Reason: "must not be empty"}
	}
	if err := pref.Validate(); err != nil {
		return err
	}
	pool, err := r.getPool()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(pref)
	if err != nil {
		return fmt.Errorf("encode preference: %w", err)
	}
	if _, err := pool.Exec(ctx, upsertPreferenceSQL, userID, raw); err != nil {
		return fmt.Errorf("upsert preference: %w", err)
	}
	return nil
}

// Users lists every user with a stored preference record.
func (r *Repository) Users(ctx context.Context) ([]string, error) {
	pool, err := r.getPool()
	if err != nil {
		return nil, err
	}
	rows, queryErr := pool.Query(ctx, listUsersSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list users: %w", queryErr)
	}
	defer rows.Close()

	users := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

// SaveDecision appends a decision to the audit log.
func (r *Repository) SaveDecision(ctx context.Context, decision model.AlertDecision) error {
	pool, err := r.getPool()
	if err != nil {
		return err
	}
	_, execErr := pool.Exec(ctx, insertDecisionSQL,
		decision.EventID,
		decision.UserID,
		decision.Allowed,
		string(decision.Reason),
		decision.EvaluatedAt,
	)
	if execErr != nil {
		return fmt.Errorf("insert decision: %w", execErr)
	}
	return nil
}

// SaveDelivery upserts a delivery record.
func (r *Repository) SaveDelivery(ctx context.Context, record model.DeliveryRecord) error {
	pool, err := r.getPool()
	if err != nil {
		return err
	}
	_, execErr := pool.Exec(ctx, insertDeliverySQL,
		record.AlertID,
		record.Delivered,
		record.Attempts,
		record.LastAttemptAt,
		record.RecipientCount,
	)
	if execErr != nil {
		return fmt.Errorf("insert delivery record: %w", execErr)
	}
	return nil
}

// ListRecentDecisions lists the most recent decisions, newest first.
func (r *Repository) ListRecentDecisions(ctx context.Context, limit int) ([]model.AlertDecision, error) {
	pool, err := r.getPool()
	if err != nil {
		return nil, err
	}
	rows, queryErr := pool.Query(ctx, listRecentDecisionsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent decisions: %w", queryErr)
	}
	defer rows.Close()
	return scanDecisions(rows)
}

// ListDecisionsBetween lists decisions within a time window, oldest first.
func (r *Repository) ListDecisionsBetween(ctx context.Context, from, to time.Time) ([]model.AlertDecision, error) {
	pool, err := r.getPool()
	if err != nil {
		return nil, err
	}
	rows, queryErr := pool.Query(ctx, listDecisionsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list decisions between: %w", queryErr)
	}
	defer rows.Close()
	return scanDecisions(rows)
}

// DeleteDecisionsBefore prunes decisions past the retention window.
func (r *Repository) DeleteDecisionsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := r.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteDecisionsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete decisions before: %w", execErr)
	}
	return nil
}

func (r *Repository) getPool() (*pgxpool.Pool, error) {
	if r == nil || r.pool == nil {
		return nil, ErrNotConfigured
	}
	return r.pool, nil
}

func scanDecisions(rows pgx.Rows) ([]model.AlertDecision, error) {
	decisions := make([]model.AlertDecision, 0)
	for rows.Next() {
		var (
			decision model.AlertDecision
			reason   string
		)
		if err := rows.Scan(
			&decision.EventID,
			&decision.UserID,
			&decision.Allowed,
			&reason,
			&decision.EvaluatedAt,
		); err != nil {
			return nil, err
		}
		decision.Reason = model.ReasonCode(reason)
		decisions = append(decisions, decision)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return decisions, nil
}

var (
	_ AuditStore  = (*Repository)(nil)
	_ prefs.Store = (*Repository)(nil)
)
