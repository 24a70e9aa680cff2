// Package audit mirrors a one-row summary of each sync run into the legacy
// enterprise database, where the reporting side still lives.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Summary is the outcome of one reconciliation run.
type Summary struct {
	RunAt     time.Time
	Schema    string
	Table     string
	Succeeded int
	Failed    int
	Deleted   int
	Skipped   int
}

// Recorder writes run summaries to the GIS_SYNC_AUDIT table.
type Recorder struct {
	db  *sql.DB
	log *zap.Logger
}

// NewRecorder returns a recorder over an enterprise connection.
func NewRecorder(db *sql.DB, log *zap.Logger) *Recorder {
	return &Recorder{db: db, log: log}
}

// Record inserts one audit row. Callers treat a failure here as non-fatal:
// the sync itself already happened.
func (r *Recorder) Record(ctx context.Context, s Summary) error {
	const q = `
		INSERT INTO GIS_SYNC_AUDIT (
			RUN_AT, TARGET_SCHEMA, TARGET_TABLE, SUCCEEDED, FAILED, DELETED, SKIPPED
		) VALUES (
			:1, :2, :3, :4, :5, :6, :7
		)`

	if _, err := r.db.ExecContext(ctx, q,
		s.RunAt, s.Schema, s.Table, s.Succeeded, s.Failed, s.Deleted, s.Skipped); err != nil {
		return fmt.Errorf("record sync audit for %s.%s: %w", s.Schema, s.Table, err)
	}
	r.log.Info("recorded sync audit",
		zap.String("schema", s.Schema), zap.String("table", s.Table))
	return nil
}
