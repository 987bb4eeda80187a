package state

import (
	"context"
	"database/sql"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/hostsel/hostsel/dbutil"
)

// schema is idempotent; Migrate runs all of it every time.
//
// allocation_history holds whole runs as JSON and is what the tools read.
// allocations flattens the current run to one row per participant and slot
// for ad hoc SQL.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS participants (
		participant_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		preferences JSONB NOT NULL DEFAULT '[]',
		is_submitted BOOLEAN NOT NULL DEFAULT FALSE,
		submitted_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		settings_id INTEGER PRIMARY KEY CHECK (settings_id = 1),
		optimistic_lock BIGINT NOT NULL DEFAULT 0,
		model_data JSONB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS allocation_history (
		run_id UUID PRIMARY KEY,
		generated_at TIMESTAMPTZ NOT NULL,
		allocated INTEGER NOT NULL,
		unallocated INTEGER NOT NULL,
		model_data JSONB NOT NULL
	)`,
	// seq orders runs stamped in the same second.  cleared marks runs a
	// reset or clear dropped; they stay in history but are never current.
	`ALTER TABLE allocation_history ADD COLUMN IF NOT EXISTS seq BIGSERIAL`,
	`ALTER TABLE allocation_history ADD COLUMN IF NOT EXISTS cleared BOOLEAN NOT NULL DEFAULT FALSE`,
	`DROP INDEX IF EXISTS allocation_history_generated_at`,
	`CREATE INDEX IF NOT EXISTS allocation_history_newest ON allocation_history (generated_at DESC, seq DESC)`,
	`CREATE TABLE IF NOT EXISTS allocations (
		participant_id TEXT NOT NULL,
		time_slot INTEGER NOT NULL,
		instructor TEXT NOT NULL,
		run_id UUID NOT NULL REFERENCES allocation_history (run_id) ON DELETE CASCADE,
		PRIMARY KEY (participant_id, time_slot)
	)`,
	`CREATE INDEX IF NOT EXISTS allocations_instructor ON allocations (instructor, time_slot)`,
}

// Migrate creates any missing tables.
func Migrate(ctx context.Context, db *sql.DB) error {
	tx, err := dbutil.NewTx(ctx, db, nil)
	if err != nil {
		return fmt.Errorf("can't begin migration: %w", err)
	}
	defer tx.MaybeRollback()

	if err := tx.ExecAll(ctx, schema...); err != nil {
		return fmt.Errorf("can't migrate: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("can't commit migration: %w", err)
	}
	log.Infof("schema up to date (%d statements)", len(schema))
	return nil
}
