package migration

import (
	"context"

	"github.com/jmoiron/sqlx"

	"gofactor/internal"
	"gofactor/internal/errors"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations
type MigrationRunner struct {
	version string
	logger  *internal.Logger
}

// NewRunner creates a new migration runner
func NewRunner(logger *internal.Logger) *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
		logger:  logger.OrDefault().WithComponent("migration"),
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in order. Every statement is
// idempotent, so running twice is safe.
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createFactorRunsTable(ctx, db); err != nil {
		return errors.DatabaseError("failed to create factor_runs table", err)
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.DatabaseError("failed to create indexes", err)
	}

	r.logger.Info("schema version %s applied", r.version)
	return nil
}

func (r *MigrationRunner) createFactorRunsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS factor_runs (
			run_id UUID PRIMARY KEY,
			fingerprint VARCHAR(64) NOT NULL,
			dataset_hash VARCHAR(64) NOT NULL,
			config_hash VARCHAR(64) NOT NULL,
			seed BIGINT NOT NULL,
			path VARCHAR(8) NOT NULL CHECK (path IN ('cm', 'sf')),
			mode VARCHAR(16) NOT NULL,
			code_version VARCHAR(64) NOT NULL,
			manifest JSONB NOT NULL,
			selection JSONB NOT NULL,
			report JSONB,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_factor_runs_fingerprint ON factor_runs(fingerprint)",
		"CREATE INDEX IF NOT EXISTS idx_factor_runs_dataset ON factor_runs(dataset_hash)",
		"CREATE INDEX IF NOT EXISTS idx_factor_runs_created_at ON factor_runs(created_at DESC)",
	}

	for _, idxSQL := range indexes {
		if _, err := db.ExecContext(ctx, idxSQL); err != nil {
			// Log but don't fail on index creation errors
			r.logger.Warn("failed to create index: %v", err)
		}
	}
	return nil
}
