package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/devicesweep/internal/results"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

var started = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T, logger *zap.Logger) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing().WillReturnError(nil)
	s, err := New(context.Background(), mockPool, logger)
	require.NoError(t, err)
	return s, mockPool
}

func sampleRun(t *testing.T) *results.Results {
	t.Helper()
	res := results.New(results.Run{ID: "run-1", Driver: "playwright", Target: "https://mint.example.com/signup", StartedAt: started})
	require.NoError(t, res.Record(results.TestOutcome{
		DeviceID: "iphone-x", ScenarioID: "invalid_email", Status: results.StatusPass,
		Message: "expected error shown", Matched: "valid email", Kind: "error_text",
		Screenshot: "output/screenshots/iphone-x-invalid_email.png",
		StartedAt:  started, Duration: 1500 * time.Millisecond,
	}))
	require.NoError(t, res.Record(results.TestOutcome{
		DeviceID: "iphone-x", ScenarioID: "valid_email", Status: results.StatusFail,
		Message: "no success signal", Kind: "timed_out",
		StartedAt: started.Add(2 * time.Second), Duration: 10 * time.Second,
	}))
	res.RecordDeviceError("galaxy-s5", errors.New("unknown device"))
	res.Finish(started.Add(time.Minute))
	return res
}

// -- Test Cases --

func TestNewStore(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = New(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr, "Error from ping should be propagated")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestMigrate(t *testing.T) {
	s, mockPool := newMockStore(t, zap.NewNop())
	mockPool.ExpectExec(flexibleSQLMatcher(Schema)).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestSaveRun(t *testing.T) {
	ctx := context.Background()

	t.Run("should persist a run and its outcomes without rollback errors", func(t *testing.T) {
		observedZapCore, observedLogs := observer.New(zapcore.ErrorLevel)
		s, mockPool := newMockStore(t, zap.New(observedZapCore))

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertRun)).
			WithArgs(
				"run-1", "playwright", "https://mint.example.com/signup",
				started, started.Add(time.Minute),
				1, 1, 0,
				[]byte(`{"galaxy-s5":"unknown device"}`),
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlDeleteOutcomes)).
			WithArgs("run-1").
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mockPool.ExpectCopyFrom(pgx.Identifier{"sweep_outcomes"}, outcomeColumns).
			WillReturnResult(2)
		// Commit, then the deferred Rollback which reports ErrTxClosed.
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.SaveRun(ctx, sampleRun(t)))
		assert.NoError(t, mockPool.ExpectationsWereMet())
		assert.Empty(t, observedLogs.All(), "Expected no errors logged on successful commit")
	})

	t.Run("should skip the copy when there are no outcomes", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		res := results.New(results.Run{ID: "empty", StartedAt: started})

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertRun)).
			WithArgs("empty", "", "", started, nil, 0, 0, 0, []byte(`{}`)).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlDeleteOutcomes)).
			WithArgs("empty").
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.SaveRun(ctx, res))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should require a run id", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		err := s.SaveRun(ctx, results.New(results.Run{}))
		require.Error(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should handle transaction begin failure", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())

		beginErr := errors.New("cannot begin tx")
		mockPool.ExpectBegin().WillReturnError(beginErr)

		err := s.SaveRun(ctx, sampleRun(t))
		require.Error(t, err)
		assert.ErrorIs(t, err, beginErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should rollback if the copy fails", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())

		copyErr := errors.New("copy from failed")
		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertRun)).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlDeleteOutcomes)).
			WithArgs("run-1").
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mockPool.ExpectCopyFrom(pgx.Identifier{"sweep_outcomes"}, outcomeColumns).
			WillReturnError(copyErr)
		mockPool.ExpectRollback()

		err := s.SaveRun(ctx, sampleRun(t))
		require.Error(t, err)
		assert.ErrorIs(t, err, copyErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should report a short copy", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertRun)).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlDeleteOutcomes)).
			WithArgs("run-1").
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mockPool.ExpectCopyFrom(pgx.Identifier{"sweep_outcomes"}, outcomeColumns).
			WillReturnResult(1)
		mockPool.ExpectRollback()

		err := s.SaveRun(ctx, sampleRun(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expected 2, got 1")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should log a failed rollback", func(t *testing.T) {
		observedZapCore, observedLogs := observer.New(zapcore.ErrorLevel)
		s, mockPool := newMockStore(t, zap.New(observedZapCore))

		upsertErr := errors.New("relation sweep_runs does not exist")
		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertRun)).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(upsertErr)
		mockPool.ExpectRollback().WillReturnError(errors.New("connection reset"))

		err := s.SaveRun(ctx, sampleRun(t))
		require.Error(t, err)
		assert.ErrorIs(t, err, upsertErr)
		require.Equal(t, 1, observedLogs.FilterMessage("Failed to rollback transaction").Len())
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestGetOutcomes(t *testing.T) {
	ctx := context.Background()

	t.Run("should retrieve outcomes successfully", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())

		ts := started
		rows := pgxmock.NewRows([]string{"device", "scenario", "status", "message", "screenshot", "redirect_url", "matched", "kind", "started_at", "duration_ms"}).
			AddRow("iphone-x", "valid_email", "pass", "redirected to https://x/y", "", "https://x/y", "", "redirected", &ts, int64(2500)).
			AddRow("pixel-2", "valid_email", "error", "panic: boom", "", "", "", "", (*time.Time)(nil), int64(0))

		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectOutcomes)).
			WithArgs("run-1").
			WillReturnRows(rows)

		outcomes, err := s.GetOutcomes(ctx, "run-1")
		require.NoError(t, err)
		require.Len(t, outcomes, 2)

		assert.Equal(t, results.StatusPass, outcomes[0].Status)
		assert.Equal(t, "https://x/y", outcomes[0].RedirectURL)
		assert.Equal(t, 2500*time.Millisecond, outcomes[0].Duration)
		assert.True(t, outcomes[0].StartedAt.Equal(started))
		assert.True(t, outcomes[1].StartedAt.IsZero())
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should propagate query errors", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())

		queryErr := errors.New("timeout")
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectOutcomes)).
			WithArgs("run-1").
			WillReturnError(queryErr)

		_, err := s.GetOutcomes(ctx, "run-1")
		assert.ErrorIs(t, err, queryErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestLoadRun(t *testing.T) {
	ctx := context.Background()

	t.Run("should rebuild results", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())

		finished := started.Add(time.Minute)
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectRun)).
			WithArgs("run-1").
			WillReturnRows(pgxmock.NewRows([]string{"driver", "target", "started_at", "finished_at", "device_errors"}).
				AddRow("chromedp", "https://mint.example.com/signup", started, &finished, []byte(`{"galaxy-s5":"unknown device"}`)))

		ts := started
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectOutcomes)).
			WithArgs("run-1").
			WillReturnRows(pgxmock.NewRows([]string{"device", "scenario", "status", "message", "screenshot", "redirect_url", "matched", "kind", "started_at", "duration_ms"}).
				AddRow("iphone-x", "invalid_email", "pass", "expected error shown", "", "", "valid email", "error_text", &ts, int64(1000)))

		res, err := s.LoadRun(ctx, "run-1")
		require.NoError(t, err)

		run := res.Run()
		assert.Equal(t, "run-1", run.ID)
		assert.Equal(t, "chromedp", run.Driver)
		assert.True(t, run.FinishedAt.Equal(finished))

		o, ok := res.Outcome("iphone-x", "invalid_email")
		require.True(t, ok)
		assert.Equal(t, "valid email", o.Matched)

		msg, ok := res.DeviceError("galaxy-s5")
		require.True(t, ok)
		assert.Equal(t, "unknown device", msg)
		assert.Equal(t, results.Summary{Total: 1, Passed: 1, DeviceErrors: 1}, res.Summary())
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should report an unknown run", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())

		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectRun)).
			WithArgs("missing").
			WillReturnError(pgx.ErrNoRows)

		_, err := s.LoadRun(ctx, "missing")
		assert.ErrorIs(t, err, ErrRunNotFound)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}
