package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"market-news-alerts/internal/config"
	"market-news-alerts/internal/model"
)

var (
	// ErrNotConfigured indicates the storage backend was not initialised.
	ErrNotConfigured = errors.New("storage: not configured")
)

// AuditStore persists decisions and delivery records for the reporting
// surfaces (show, export, alert-history screens).
type AuditStore interface {
	Init(ctx context.Context) error
	Close() error
	SaveDecision(ctx context.Context, decision model.AlertDecision) error
	SaveDelivery(ctx context.Context, record model.DeliveryRecord) error
	ListRecentDecisions(ctx context.Context, limit int) ([]model.AlertDecision, error)
	ListDecisionsBetween(ctx context.Context, from, to time.Time) ([]model.AlertDecision, error)
	DeleteDecisionsBefore(ctx context.Context, olderThan time.Time) error
}

// NewAuditStore selects a backend from config. A nil store with nil error
// means persistence is disabled.
func NewAuditStore(ctx context.Context, cfg config.DatabaseConfig) (AuditStore, error) {
	switch strings.ToLower(cfg.Driver) {
	case "":
		return nil, nil
	case "sqlite":
		return NewSQLiteAudit(cfg.DSN)
	case "postgres", "postgresql":
		pool, err := NewPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewRepository(pool), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}
