// Package journal stores serialization runs and their per-field failures in
// SQLite, so a batch can collect every diagnostic and query them later.
//
// Build modes:
//   - Default: pure Go modernc.org/sqlite
//   - -tags cgo_sqlite: mattn/go-sqlite3 (requires CGO_ENABLED=1)
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/delimcodec/core/codec"
	"github.com/FocuswithJustin/delimcodec/core/errors"
	"github.com/FocuswithJustin/delimcodec/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	layout      TEXT NOT NULL,
	source      TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	finished_at TEXT,
	value_count INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS outcomes (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	field         TEXT NOT NULL,
	value_index   INTEGER NOT NULL,
	kind          TEXT NOT NULL,
	message       TEXT NOT NULL,
	expected      INTEGER,
	actual        INTEGER,
	position_bits INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS outcomes_run ON outcomes(run_id, value_index);
`

// DriverType reports the SQLite implementation compiled in: "purego" or
// "cgo".
func DriverType() string {
	return driverType
}

// Journal is a diagnostics store. It is safe for concurrent use.
type Journal struct {
	db *sql.DB
}

// Open opens or creates the journal at path. ":memory:" opens a private
// in-memory journal.
func Open(path string) (*Journal, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// A single connection keeps in-memory databases and pragmas shared.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA foreign_keys = ON", schema} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init journal: %w", err)
		}
	}
	return &Journal{db: db}, nil
}

// Close closes the journal.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Run is one serialization run.
type Run struct {
	ID         string
	Layout     string
	Source     string
	StartedAt  time.Time
	FinishedAt time.Time // zero while the run is open
	Values     int
	Failures   int
}

// Outcome is one recorded field failure.
type Outcome struct {
	RunID        string
	Field        string
	Index        int // position of the value in its batch
	Kind         string
	Message      string
	Expected     int // -1 when not applicable
	Actual       int // -1 when not applicable
	PositionBits int64
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// StartRun opens a new run and returns it.
func (j *Journal) StartRun(ctx context.Context, layout, source string) (*Run, error) {
	run := &Run{ID: uuid.NewString(), Layout: layout, Source: source}
	started := now()
	if _, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (id, layout, source, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, layout, source, started); err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}
	run.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	logging.JournalEvent("run_started", run.ID, "layout", layout, "source", source)
	return run, nil
}

// Record stores one outcome.
func (j *Journal) Record(ctx context.Context, o Outcome) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO outcomes (run_id, field, value_index, kind, message, expected, actual, position_bits)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.RunID, o.Field, o.Index, o.Kind, o.Message, nullInt(o.Expected), nullInt(o.Actual), o.PositionBits)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	return nil
}

// RecordDiagnostics stores every diagnostic collected while serializing
// the value at index.
func (j *Journal) RecordDiagnostics(ctx context.Context, runID string, index int, diags []codec.Diagnostic) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record diagnostics: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO outcomes (run_id, field, value_index, kind, message, expected, actual, position_bits)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("record diagnostics: %w", err)
	}
	defer stmt.Close()

	for _, d := range diags {
		o := OutcomeOf(runID, index, d)
		if _, err := stmt.ExecContext(ctx, o.RunID, o.Field, o.Index, o.Kind, o.Message,
			nullInt(o.Expected), nullInt(o.Actual), o.PositionBits); err != nil {
			return fmt.Errorf("record diagnostics: %w", err)
		}
	}
	return tx.Commit()
}

// OutcomeOf converts a codec diagnostic.
func OutcomeOf(runID string, index int, d codec.Diagnostic) Outcome {
	o := Outcome{
		RunID:        runID,
		Field:        d.Field,
		Index:        index,
		Kind:         d.Kind.String(),
		Message:      d.Err.Error(),
		Expected:     -1,
		Actual:       -1,
		PositionBits: d.Position.Bits,
	}
	var se *errors.InsufficientSpaceError
	if errors.As(d.Err, &se) {
		o.Expected, o.Actual = se.Expected, se.Actual
	}
	return o
}

// FinishRun closes a run, recording how many values it processed.
func (j *Journal) FinishRun(ctx context.Context, runID string, values int) error {
	res, err := j.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, value_count = ? WHERE id = ?`, now(), values, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFound("run", runID)
	}
	logging.JournalEvent("run_finished", runID, "values", values)
	return nil
}

const runColumns = `r.id, r.layout, r.source, r.started_at, COALESCE(r.finished_at, ''), r.value_count,
	(SELECT COUNT(*) FROM outcomes o WHERE o.run_id = r.id)`

// Run returns one run.
func (j *Journal) Run(ctx context.Context, id string) (*Run, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs r WHERE r.id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("run", id)
	}
	return run, err
}

// Runs returns the most recent runs first, at most limit of them (all when
// limit <= 0).
func (j *Journal) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs r ORDER BY r.started_at DESC, r.rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

// Outcomes returns the outcomes of a run in value order.
func (j *Journal) Outcomes(ctx context.Context, runID string) ([]Outcome, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT run_id, field, value_index, kind, message, COALESCE(expected, -1), COALESCE(actual, -1), position_bits
		 FROM outcomes WHERE run_id = ? ORDER BY value_index, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var o Outcome
		if err := rows.Scan(&o.RunID, &o.Field, &o.Index, &o.Kind, &o.Message, &o.Expected, &o.Actual, &o.PositionBits); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var (
		run              Run
		started, finish string
	)
	if err := s.Scan(&run.ID, &run.Layout, &run.Source, &started, &finish, &run.Values, &run.Failures); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	run.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	if finish != "" {
		run.FinishedAt, _ = time.Parse(time.RFC3339Nano, finish)
	}
	return &run, nil
}

func nullInt(v int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: v >= 0}
}
