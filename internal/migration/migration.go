package migration

import (
	"context"

	"ligandscreen/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.1.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Statements returns the DDL executed by Run, in order
func (r *MigrationRunner) Statements() []string {
	return []string{
		createScreeningRunsTable,
		addCancelledColumn,
		addTruncatedFromColumn,
		createCreatedAtIndex,
		createTopAffinityIndex,
	}
}

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, createScreeningRunsTable); err != nil {
		return errors.Wrap(err, "failed to create screening_runs table")
	}

	for _, stmt := range []string{addCancelledColumn, addTruncatedFromColumn} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to add screening_runs columns")
		}
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create indexes")
	}

	return nil
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range []string{createCreatedAtIndex, createTopAffinityIndex} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

const createScreeningRunsTable = `
	CREATE TABLE IF NOT EXISTS screening_runs (
		id TEXT PRIMARY KEY,
		total_screened INTEGER NOT NULL,
		attempted INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		passed_threshold INTEGER NOT NULL,
		top_candidates JSONB NOT NULL DEFAULT '[]'::jsonb,
		processing_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
		top_rationale TEXT,
		summary JSONB,
		params JSONB NOT NULL,
		target JSONB NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)
`

// Older schemas predate partial-run tracking.
const addCancelledColumn = `
	ALTER TABLE screening_runs ADD COLUMN IF NOT EXISTS cancelled BOOLEAN NOT NULL DEFAULT false
`

const addTruncatedFromColumn = `
	ALTER TABLE screening_runs ADD COLUMN IF NOT EXISTS truncated_from INTEGER NOT NULL DEFAULT 0
`

const createCreatedAtIndex = `
	CREATE INDEX IF NOT EXISTS idx_screening_runs_created_at ON screening_runs (created_at DESC)
`

const createTopAffinityIndex = `
	CREATE INDEX IF NOT EXISTS idx_screening_runs_top_affinity
	ON screening_runs (((top_candidates -> 0 ->> 'affinity')::double precision) DESC NULLS LAST)
`
