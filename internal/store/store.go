package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/devicesweep/internal/results"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrRunNotFound is returned by LoadRun for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Schema creates the two tables a sweep writes to. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS sweep_runs (
    id            TEXT PRIMARY KEY,
    driver        TEXT NOT NULL,
    target        TEXT NOT NULL,
    started_at    TIMESTAMPTZ NOT NULL,
    finished_at   TIMESTAMPTZ,
    passed        INTEGER NOT NULL,
    failed        INTEGER NOT NULL,
    errored       INTEGER NOT NULL,
    device_errors JSONB NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS sweep_outcomes (
    run_id       TEXT NOT NULL REFERENCES sweep_runs(id) ON DELETE CASCADE,
    device       TEXT NOT NULL,
    scenario     TEXT NOT NULL,
    status       TEXT NOT NULL,
    message      TEXT NOT NULL,
    screenshot   TEXT NOT NULL,
    redirect_url TEXT NOT NULL,
    matched      TEXT NOT NULL,
    kind         TEXT NOT NULL,
    started_at   TIMESTAMPTZ,
    duration_ms  BIGINT NOT NULL,
    PRIMARY KEY (run_id, device, scenario)
);
`

const (
	sqlUpsertRun = `
        INSERT INTO sweep_runs (id, driver, target, started_at, finished_at, passed, failed, errored, device_errors)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (id) DO UPDATE SET
            finished_at = EXCLUDED.finished_at,
            passed = EXCLUDED.passed,
            failed = EXCLUDED.failed,
            errored = EXCLUDED.errored,
            device_errors = EXCLUDED.device_errors;
    `
	sqlDeleteOutcomes = `DELETE FROM sweep_outcomes WHERE run_id = $1;`
	sqlSelectRun      = `
        SELECT driver, target, started_at, finished_at, device_errors
        FROM sweep_runs
        WHERE id = $1;
    `
	sqlSelectOutcomes = `
        SELECT device, scenario, status, message, screenshot, redirect_url, matched, kind, started_at, duration_ms
        FROM sweep_outcomes
        WHERE run_id = $1
        ORDER BY device ASC, scenario ASC;
    `
)

var outcomeColumns = []string{"run_id", "device", "scenario", "status", "message", "screenshot", "redirect_url", "matched", "kind", "started_at", "duration_ms"}

// Store persists sweep results to PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// SaveRun writes the run row and all of its outcomes in one transaction.
// Saving the same run twice replaces its outcomes.
func (s *Store) SaveRun(ctx context.Context, res *results.Results) error {
	run := res.Run()
	if run.ID == "" {
		return errors.New("run id is required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Rollback after Commit reports ErrTxClosed, which is expected.
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	deviceErrs := make(map[string]string)
	for _, d := range res.Devices() {
		if msg, ok := res.DeviceError(d); ok {
			deviceErrs[d] = msg
		}
	}
	deviceErrsJSON, err := json.Marshal(deviceErrs)
	if err != nil {
		return fmt.Errorf("failed to encode device errors: %w", err)
	}

	sum := res.Summary()
	if _, err := tx.Exec(ctx, sqlUpsertRun,
		run.ID, run.Driver, run.Target,
		run.StartedAt.UTC(), nullableTime(run.FinishedAt),
		sum.Passed, sum.Failed, sum.Errored,
		deviceErrsJSON,
	); err != nil {
		return fmt.Errorf("failed to upsert run %s: %w", run.ID, err)
	}

	if _, err := tx.Exec(ctx, sqlDeleteOutcomes, run.ID); err != nil {
		return fmt.Errorf("failed to clear outcomes of run %s: %w", run.ID, err)
	}

	outcomes := res.Outcomes()
	if len(outcomes) > 0 {
		if err := s.persistOutcomes(ctx, tx, run.ID, outcomes); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info("Persisted sweep run.", zap.String("run_id", run.ID), zap.Int("outcomes", len(outcomes)))
	return nil
}

func (s *Store) persistOutcomes(ctx context.Context, tx pgx.Tx, runID string, outcomes []results.TestOutcome) error {
	rows := make([][]interface{}, len(outcomes))
	for i, o := range outcomes {
		rows[i] = []interface{}{
			runID, o.DeviceID, o.ScenarioID,
			string(o.Status), o.Message,
			o.Screenshot, o.RedirectURL, o.Matched, o.Kind,
			nullableTime(o.StartedAt), o.Duration.Milliseconds(),
		}
	}

	copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{"sweep_outcomes"}, outcomeColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy outcomes: %w", err)
	}
	if int(copyCount) != len(outcomes) {
		return fmt.Errorf("mismatch in copied outcomes count: expected %d, got %d", len(outcomes), copyCount)
	}
	return nil
}

// LoadRun rebuilds the results of a stored run.
func (s *Store) LoadRun(ctx context.Context, runID string) (*results.Results, error) {
	run := results.Run{ID: runID}
	var finishedAt *time.Time
	var deviceErrsJSON []byte
	err := s.pool.QueryRow(ctx, sqlSelectRun, runID).
		Scan(&run.Driver, &run.Target, &run.StartedAt, &finishedAt, &deviceErrsJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run %s: %w", runID, err)
	}
	if finishedAt != nil {
		run.FinishedAt = *finishedAt
	}

	res := results.New(run)
	outcomes, err := s.GetOutcomes(ctx, runID)
	if err != nil {
		return nil, err
	}
	for _, o := range outcomes {
		if err := res.Record(o); err != nil {
			return nil, fmt.Errorf("stored outcome is invalid: %w", err)
		}
	}

	if len(deviceErrsJSON) > 0 {
		deviceErrs := make(map[string]string)
		if err := json.Unmarshal(deviceErrsJSON, &deviceErrs); err != nil {
			return nil, fmt.Errorf("failed to decode device errors of run %s: %w", runID, err)
		}
		for d, msg := range deviceErrs {
			res.RecordDeviceError(d, errors.New(msg))
		}
	}
	return res, nil
}

// GetOutcomes returns a run's outcomes ordered by device then scenario.
func (s *Store) GetOutcomes(ctx context.Context, runID string) ([]results.TestOutcome, error) {
	rows, err := s.pool.Query(ctx, sqlSelectOutcomes, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []results.TestOutcome
	for rows.Next() {
		var o results.TestOutcome
		var status string
		var startedAt *time.Time
		var durationMs int64

		if err := rows.Scan(
			&o.DeviceID, &o.ScenarioID, &status, &o.Message,
			&o.Screenshot, &o.RedirectURL, &o.Matched, &o.Kind,
			&startedAt, &durationMs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan outcome row: %w", err)
		}
		o.Status = results.Status(status)
		if startedAt != nil {
			o.StartedAt = startedAt.UTC()
		}
		o.Duration = time.Duration(durationMs) * time.Millisecond
		outcomes = append(outcomes, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return outcomes, nil
}

// nullableTime maps the zero time to SQL NULL and everything else to UTC.
func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
