// Package postgres implements the store repositories on database/sql with
// the lib/pq driver. The handle is constructed once at process start and
// closed at shutdown; nothing in here is global.
package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-errors/errors"
	_ "github.com/lib/pq"
)

const (
	// cycleLockKey is the advisory lock making the single-writer cycle
	// assumption explicit when several scheduler instances share the
	// database.
	cycleLockKey = int64(0x626c6b77) // "blkw"

	defaultQueryTimeout = 30 * time.Second
)

type DB struct {
	*sql.DB
}

type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func New(cfg Config) (*DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, errors.Errorf("open db: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Errorf("ping db: %w", err)
	}
	return &DB{db}, nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}

// TryAcquireCycleLock takes the session-level advisory lock guarding the
// processing cycle. It never blocks: false means another instance holds it.
func (db *DB) TryAcquireCycleLock(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()
	var acquired bool
	err := db.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, cycleLockKey).Scan(&acquired)
	if err != nil {
		return false, errors.Errorf("try advisory lock: %w", err)
	}
	return acquired, nil
}

func (db *DB) ReleaseCycleLock(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()
	if _, err := db.ExecContext(ctx, `SELECT pg_advisory_unlock($1)`, cycleLockKey); err != nil {
		return errors.Errorf("release advisory lock: %w", err)
	}
	return nil
}

// Migrate creates the schema if it does not exist yet. The service owns two
// tables only, so migrations are applied idempotently inline rather than
// through an external tool.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.Errorf("apply migration: %w", err)
		}
	}
	return nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS block_watches (
		id UUID PRIMARY KEY,
		owner TEXT NOT NULL,
		network TEXT NOT NULL,
		target_height BIGINT NOT NULL,
		current_height BIGINT NOT NULL DEFAULT 0,
		estimated_at TIMESTAMPTZ NOT NULL,
		timezone TEXT NOT NULL DEFAULT 'UTC',
		title TEXT NOT NULL DEFAULT '',
		webhook_url TEXT,
		email TEXT,
		reached_notified_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id UUID PRIMARY KEY,
		watch_id UUID NOT NULL REFERENCES block_watches(id) ON DELETE CASCADE,
		tier TEXT NOT NULL,
		scheduled_for TIMESTAMPTZ NOT NULL,
		sent BOOLEAN NOT NULL DEFAULT false,
		sent_at TIMESTAMPTZ,
		UNIQUE (watch_id, tier)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_due
		ON notifications (scheduled_for) WHERE NOT sent`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_watch
		ON notifications (watch_id)`,
	`CREATE INDEX IF NOT EXISTS idx_block_watches_unreached
		ON block_watches (id) WHERE reached_notified_at IS NULL`,
}
