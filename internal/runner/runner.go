// File: internal/runner/runner.go
// Description: Sweeps every scenario across every device, one browsing
// context at a time, and records exactly one outcome per pair.

package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/devicesweep/internal/artifacts"
	"github.com/xkilldash9x/devicesweep/internal/browser"
	"github.com/xkilldash9x/devicesweep/internal/config"
	"github.com/xkilldash9x/devicesweep/internal/device"
	"github.com/xkilldash9x/devicesweep/internal/interactor"
	"github.com/xkilldash9x/devicesweep/internal/observability"
	"github.com/xkilldash9x/devicesweep/internal/results"
	"github.com/xkilldash9x/devicesweep/internal/scenario"
)

// ErrNoCandidates is recorded when a required step finds none of its candidates.
var ErrNoCandidates = errors.New("no candidate matched")

// Options holds everything the runner needs besides the driver and plan.
type Options struct {
	TargetURL   string
	Timing      config.TimingConfig
	Screenshots string
	RecordVideo bool
	Layout      artifacts.Layout
}

// OptionsFromConfig extracts runner options from the application config.
func OptionsFromConfig(cfg config.Interface) Options {
	out := cfg.Output()
	return Options{
		TargetURL:   cfg.Target().URL,
		Timing:      cfg.Timing(),
		Screenshots: out.Screenshots,
		RecordVideo: out.RecordVideo,
		Layout:      artifacts.Layout{ScreenshotDir: out.ScreenshotDir(), VideoDir: out.VideoDir()},
	}
}

// Runner drives the device by scenario sweep.
type Runner struct {
	driver browser.Driver
	plan   *scenario.Plan
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithClock replaces time.Now for placeholder expansion and timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// New creates a Runner.
func New(driver browser.Driver, plan *scenario.Plan, opts Options, logger *zap.Logger, options ...Option) (*Runner, error) {
	if driver == nil || plan == nil || logger == nil {
		return nil, fmt.Errorf("cannot initialize runner with nil dependencies")
	}
	if opts.TargetURL == "" {
		return nil, fmt.Errorf("runner needs a target url")
	}
	if opts.Screenshots == "" {
		opts.Screenshots = config.ScreenshotsNoteworthy
	}
	r := &Runner{
		driver: driver,
		plan:   plan,
		opts:   opts,
		logger: logger.Named("runner"),
		now:    time.Now,
	}
	for _, o := range options {
		o(r)
	}
	return r, nil
}

// Run starts the driver, sweeps the devices in order, and shuts the driver
// down. The returned Results are complete for every device that was reached;
// when ctx is canceled mid-sweep they are returned together with ctx's error.
func (r *Runner) Run(ctx context.Context, devices []device.Entry, run results.Run) (*results.Results, error) {
	if run.StartedAt.IsZero() {
		run.StartedAt = r.now()
	}
	if run.Driver == "" {
		run.Driver = r.driver.Name()
	}
	if run.Target == "" {
		run.Target = r.opts.TargetURL
	}
	res := results.New(run)
	logger := r.logger.With(observability.RunID(run.ID))

	if err := r.opts.Layout.Prepare(); err != nil {
		return res, err
	}
	if err := r.driver.Start(ctx); err != nil {
		return res, fmt.Errorf("failed to start %s driver: %w", r.driver.Name(), err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(browser.Detach(ctx), r.closeTimeout())
		defer cancel()
		if err := r.driver.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Driver shutdown failed.", zap.Error(err))
		}
	}()

	logger.Info("Starting sweep.",
		zap.String("driver", run.Driver),
		zap.Int("devices", len(devices)),
		zap.Int("scenarios", len(r.plan.Scenarios)),
	)

	for _, entry := range devices {
		if err := ctx.Err(); err != nil {
			logger.Warn("Sweep interrupted.", zap.Error(err))
			res.Finish(r.now())
			return res, err
		}
		r.sweepDevice(ctx, entry, res, logger.With(observability.Device(entry.Name)))
	}

	res.Finish(r.now())
	s := res.Summary()
	logger.Info("Sweep finished.",
		zap.Int("passed", s.Passed),
		zap.Int("failed", s.Failed),
		zap.Int("errored", s.Errored),
		zap.Int("device_errors", s.DeviceErrors),
	)
	return res, ctx.Err()
}

func (r *Runner) closeTimeout() time.Duration {
	if r.opts.Timing.CloseTimeout > 0 {
		return r.opts.Timing.CloseTimeout
	}
	return 15 * time.Second
}

// sweepDevice runs every scenario on one device. The context is closed on
// every path so its recording is flushed even when a scenario blows up.
func (r *Runner) sweepDevice(ctx context.Context, entry device.Entry, res *results.Results, logger *zap.Logger) {
	if entry.Err != nil {
		logger.Error("Device unavailable.", zap.Error(entry.Err))
		res.RecordDeviceError(entry.Name, entry.Err)
		return
	}

	opts := browser.DeviceOptions{
		NavigationTimeout: r.opts.Timing.NavigationTimeout,
		ActionTimeout:     r.opts.Timing.ActionTimeout,
	}
	if r.opts.RecordVideo && r.driver.SupportsVideo() {
		opts.VideoDir = r.opts.Layout.VideoDir
	}

	session, err := r.driver.NewDevice(ctx, entry.Profile, opts)
	if err != nil {
		logger.Error("Failed to open device context.", zap.Error(err))
		res.RecordDeviceError(entry.Name, fmt.Errorf("failed to open device context: %w", err))
		return
	}
	logger.Info("Device context opened.", zap.String("session_id", session.ID()))
	defer r.closeDevice(ctx, entry.Name, session, res, logger)

	for _, sc := range r.plan.Scenarios {
		if ctx.Err() != nil {
			return
		}
		out := r.runScenario(ctx, session, entry.Name, sc, logger.With(observability.Scenario(sc.ID)))
		if err := res.Record(out); err != nil {
			logger.Error("Failed to record outcome.", zap.Error(err))
		}
	}
}

func (r *Runner) closeDevice(ctx context.Context, name string, session browser.DeviceSession, res *results.Results, logger *zap.Logger) {
	closeCtx, cancel := context.WithTimeout(browser.Detach(ctx), r.closeTimeout())
	defer cancel()

	arts, err := session.Close(closeCtx)
	if err != nil {
		logger.Error("Failed to close device context.", zap.Error(err))
		res.RecordDeviceError(name, fmt.Errorf("failed to close device context: %w", err))
	}
	if arts.VideoPath == "" {
		return
	}
	path, err := r.opts.Layout.FinalizeVideo(arts.VideoPath, name, r.now())
	if err != nil {
		logger.Warn("Failed to finalize recording.", zap.String("video", arts.VideoPath), zap.Error(err))
		return
	}
	logger.Info("Recording saved.", zap.String("video", path))
}

// runScenario produces the one outcome for (device, sc). Panics and action
// errors become StatusError; nothing escapes.
func (r *Runner) runScenario(ctx context.Context, page interactor.Page, deviceName string, sc scenario.Scenario, logger *zap.Logger) (out results.TestOutcome) {
	start := r.now()
	out = results.TestOutcome{DeviceID: deviceName, ScenarioID: sc.ID, StartedAt: start}

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("Panic recovered during scenario.",
				zap.Any("panic_value", rec),
				zap.Stack("stack"),
			)
			out.Status = results.StatusError
			out.Message = fmt.Sprintf("panic: %v", rec)
			out.Kind = ""
			out.Screenshot = r.capture(ctx, page, deviceName, sc.ID, true, logger)
		}
		out.Duration = r.now().Sub(start)
	}()

	observed, err := r.drive(ctx, page, deviceName, sc, logger)
	if err != nil {
		logger.Warn("Scenario errored.", zap.Error(err))
		out.Status = results.StatusError
		out.Message = err.Error()
		out.Screenshot = r.capture(ctx, page, deviceName, sc.ID, true, logger)
		return out
	}

	verdict := Judge(sc, observed)
	out.Status = verdict.Status
	out.Message = verdict.Message
	out.Kind = string(observed.Kind)
	out.Matched = observed.Matched
	if observed.Kind == interactor.KindRedirected {
		out.RedirectURL = observed.URL
	}
	noteworthy := verdict.Noteworthy || verdict.Status != results.StatusPass
	out.Screenshot = r.capture(ctx, page, deviceName, sc.ID, noteworthy, logger)

	logger.Info("Scenario judged.",
		zap.String("status", string(out.Status)),
		zap.Stringer("outcome", observed),
	)
	return out
}

// capture takes a screenshot according to the policy and returns its path,
// or "" when none was taken. Failures are logged and otherwise ignored.
func (r *Runner) capture(ctx context.Context, page interactor.Page, deviceName, scenarioID string, noteworthy bool, logger *zap.Logger) string {
	switch r.opts.Screenshots {
	case config.ScreenshotsNever:
		return ""
	case config.ScreenshotsNoteworthy:
		if !noteworthy {
			return ""
		}
	}
	if ctx.Err() != nil {
		return ""
	}

	path := r.opts.Layout.ScreenshotPath(deviceName, scenarioID)
	shotCtx, cancel := context.WithTimeout(ctx, r.screenshotTimeout())
	defer cancel()
	if err := page.Screenshot(shotCtx, path); err != nil {
		logger.Warn("Screenshot failed.", zap.String("path", path), zap.Error(err))
		return ""
	}
	return path
}

func (r *Runner) screenshotTimeout() time.Duration {
	if r.opts.Timing.NavigationTimeout > 0 {
		return r.opts.Timing.NavigationTimeout
	}
	return 30 * time.Second
}
