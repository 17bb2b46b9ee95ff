// Copyright © 2025 jackelyj <dreamerlyj@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
//

package idempotency

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/innovationmech/atelier/pkg/workflow"
)

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresConfig configures the PostgreSQL store.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn" json:"-"`
	Table           string        `mapstructure:"table" json:"table"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" json:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate" json:"auto_migrate"`
}

// DefaultPostgresConfig returns defaults for the PostgreSQL store.
func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		Table:           "workflow_instances",
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		AutoMigrate:     true,
	}
}

// Validate validates the configuration.
func (c *PostgresConfig) Validate() error {
	if c.DSN == "" {
		return errors.New("postgres dsn is required")
	}
	if !tableNamePattern.MatchString(c.Table) {
		return fmt.Errorf("invalid table name %q", c.Table)
	}
	return nil
}

// PostgresStore keeps instances in a single table keyed by idempotency key.
// Admission relies on the primary key: INSERT ... ON CONFLICT DO NOTHING.
type PostgresStore struct {
	db    *sql.DB
	table string
}

// NewPostgresStore opens the database, verifies it and creates the table when
// AutoMigrate is set.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	store := NewPostgresStoreWithDB(db, cfg.Table)
	if cfg.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return store, nil
}

// NewPostgresStoreWithDB wraps an open database handle.
func NewPostgresStoreWithDB(db *sql.DB, table string) *PostgresStore {
	if table == "" {
		table = "workflow_instances"
	}
	return &PostgresStore{db: db, table: table}
}

// Migrate creates the instances table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	idempotency_key TEXT PRIMARY KEY,
	instance_id TEXT NOT NULL,
	workflow TEXT NOT NULL,
	status TEXT NOT NULL,
	payload JSONB NOT NULL,
	version BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS %s_status_updated_idx ON %s (status, updated_at);`, s.table, s.table, s.table)

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to migrate %s: %w", s.table, err)
	}
	return nil
}

// Reserve implements Store.
func (s *PostgresStore) Reserve(ctx context.Context, inst *workflow.Instance) (Reservation, error) {
	if err := validate(inst); err != nil {
		return Reservation{}, err
	}

	candidate := *inst
	candidate.Version = 1
	payload, err := json.Marshal(&candidate)
	if err != nil {
		return Reservation{}, fmt.Errorf("failed to serialize instance: %w", err)
	}

	query := fmt.Sprintf(`INSERT INTO %s (idempotency_key, instance_id, workflow, status, payload, version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, 1, $6, $7)
ON CONFLICT (idempotency_key) DO NOTHING`, s.table)

	result, err := s.db.ExecContext(ctx, query,
		inst.IdempotencyKey, inst.ID, inst.Workflow, inst.Status.String(), payload, inst.CreatedAt, inst.UpdatedAt)
	if err != nil {
		return Reservation{}, fmt.Errorf("failed to reserve key: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return Reservation{}, fmt.Errorf("failed to reserve key: %w", err)
	}
	if affected == 1 {
		inst.Version = 1
		return Reservation{New: true, Instance: inst}, nil
	}

	existing, err := s.Get(ctx, inst.IdempotencyKey)
	if err != nil {
		return Reservation{}, err
	}
	return Reservation{Instance: existing}, nil
}

// Save implements Store.
func (s *PostgresStore) Save(ctx context.Context, inst *workflow.Instance) error {
	if err := validate(inst); err != nil {
		return err
	}

	next := *inst
	next.Version = inst.Version + 1
	payload, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("failed to serialize instance: %w", err)
	}

	query := fmt.Sprintf(`UPDATE %s SET status = $1, payload = $2, version = $3, updated_at = $4
WHERE idempotency_key = $5 AND version = $6`, s.table)

	result, err := s.db.ExecContext(ctx, query,
		inst.Status.String(), payload, next.Version, inst.UpdatedAt, inst.IdempotencyKey, inst.Version)
	if err != nil {
		return fmt.Errorf("failed to save instance: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save instance: %w", err)
	}
	if affected == 0 {
		if _, err := s.Get(ctx, inst.IdempotencyKey); err != nil {
			return err
		}
		return ErrVersionConflict
	}
	inst.Version = next.Version
	return nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, key string) (*workflow.Instance, error) {
	query := fmt.Sprintf(`SELECT payload, version FROM %s WHERE idempotency_key = $1`, s.table)

	var (
		payload []byte
		version int64
	)
	err := s.db.QueryRowContext(ctx, query, key).Scan(&payload, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load instance: %w", err)
	}

	var inst workflow.Instance
	if err := json.Unmarshal(payload, &inst); err != nil {
		return nil, fmt.Errorf("failed to decode instance: %w", err)
	}
	inst.Version = version
	return &inst, nil
}

// Cleanup implements Store.
func (s *PostgresStore) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE updated_at < $1 AND status IN ($2, $3, $4)`, s.table)

	result, err := s.db.ExecContext(ctx, query, olderThan,
		workflow.StatusSucceeded.String(), workflow.StatusFailed.String(), workflow.StatusCompensated.String())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup instances: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
