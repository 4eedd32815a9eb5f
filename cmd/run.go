// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/devicesweep/internal/artifacts"
	"github.com/xkilldash9x/devicesweep/internal/browser"
	"github.com/xkilldash9x/devicesweep/internal/config"
	"github.com/xkilldash9x/devicesweep/internal/device"
	"github.com/xkilldash9x/devicesweep/internal/observability"
	"github.com/xkilldash9x/devicesweep/internal/reporting"
	"github.com/xkilldash9x/devicesweep/internal/results"
	"github.com/xkilldash9x/devicesweep/internal/runner"
	"github.com/xkilldash9x/devicesweep/internal/scenario"
)

// driverFactory creates the browser driver named in the config.
type driverFactory func(cfg config.BrowserConfig, logger *zap.Logger) (browser.Driver, error)

// sweepRequest narrows the configured sweep for one invocation.
type sweepRequest struct {
	runID     string
	devices   []string
	scenarios []string
}

func newRunCmd(newDriver driverFactory, stores storeProvider) *cobra.Command {
	var req sweepRequest

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run every scenario on every configured device",
		Long: `Opens one isolated browser context per device, runs each scenario through the
configured flow, and records one outcome per (device, scenario) pair in the results file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runSweep(ctx, logger, cfg, req, newDriver, stores)
		},
	}

	f := runCmd.Flags()
	f.String("driver", "", "browser driver: playwright or chromedp")
	f.String("target", "", "override target.url")
	f.StringP("output", "o", "", "output directory for results, screenshots and videos")
	f.StringSlice("format", nil, "extra reports: json, sarif, text")
	f.String("screenshots", "", "screenshot policy: noteworthy, always, never")
	f.Bool("video", false, "record one video per device (playwright only)")
	f.Bool("headful", false, "show the browser window")
	f.Bool("fail-on-failure", false, "exit with status 2 unless every outcome passed")
	f.StringArrayVar(&req.devices, "device", nil, "only sweep this device (repeatable)")
	f.StringArrayVar(&req.scenarios, "scenario", nil, "only run this scenario id (repeatable)")
	f.StringVar(&req.runID, "run-id", "", "identifier for this run (default: random UUID)")

	bindsTo(f, "driver", "browser.driver")
	bindsTo(f, "target", "target.url")
	bindsTo(f, "output", "output.dir")
	bindsTo(f, "format", "output.formats")
	bindsTo(f, "screenshots", "output.screenshots")
	bindsTo(f, "video", "output.record_video")
	bindsTo(f, "fail-on-failure", "output.fail_on_failure")

	return runCmd
}

// runSweep contains the core, testable logic of the run command.
func runSweep(
	ctx context.Context,
	logger *zap.Logger,
	cfg config.Interface,
	req sweepRequest,
	newDriver driverFactory,
	stores storeProvider,
) error {
	plan, err := scenario.FromConfig(cfg)
	if err != nil {
		return fmt.Errorf("invalid sweep plan: %w", err)
	}
	if plan.Scenarios, err = scenario.Filter(plan.Scenarios, req.scenarios); err != nil {
		return err
	}

	entries, err := device.Resolve(cfg.Devices())
	if err != nil {
		return fmt.Errorf("invalid device list: %w", err)
	}
	entries = device.Filter(entries, req.devices)
	if len(entries) == 0 {
		return fmt.Errorf("no configured device matches %v", req.devices)
	}
	if err := checkArtifactNames(entries, plan.Scenarios); err != nil {
		return err
	}

	driver, err := newDriver(cfg.Browser(), logger)
	if err != nil {
		return fmt.Errorf("failed to create browser driver: %w", err)
	}
	r, err := runner.New(driver, plan, runner.OptionsFromConfig(cfg), logger)
	if err != nil {
		return err
	}

	runID := req.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	res, runErr := r.Run(ctx, entries, results.Run{ID: runID})
	if res == nil {
		return runErr
	}

	// Whatever was reached is saved, interrupted or not.
	resultsPath := cfg.Output().ResultsPath()
	if err := res.Save(resultsPath); err != nil {
		return errors.Join(runErr, fmt.Errorf("failed to save results: %w", err))
	}
	logger.Info("Results written.", zap.String("path", resultsPath), observability.RunID(runID))

	if err := writeReports(logger, res, cfg.Output()); err != nil {
		return errors.Join(runErr, err)
	}

	if cfg.Database().URL != "" {
		if err := persistRun(ctx, cfg, res, stores); err != nil {
			return errors.Join(runErr, err)
		}
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			logger.Warn("Sweep aborted; partial results were saved.", observability.RunID(runID))
		}
		return runErr
	}

	s := res.Summary()
	if cfg.Output().FailOnFailure && !s.OK() {
		return &ExitError{
			Code: 2,
			Msg:  fmt.Sprintf("sweep finished with %d failed, %d errored outcomes and %d device errors", s.Failed, s.Errored, s.DeviceErrors),
		}
	}
	return nil
}

// writeReports emits one report per configured format.
// checkArtifactNames fails before any browser starts when two pairs would
// overwrite each other's screenshots.
func checkArtifactNames(entries []device.Entry, scenarios []scenario.Scenario) error {
	devices := make([]string, len(entries))
	for i, e := range entries {
		devices[i] = e.Name
	}
	ids := make([]string, len(scenarios))
	for i, sc := range scenarios {
		ids[i] = sc.ID
	}
	return artifacts.CheckNames(devices, ids)
}

func writeReports(logger *zap.Logger, res *results.Results, out config.OutputConfig) error {
	for _, format := range out.Formats {
		path := reporting.DefaultPath(format, out.Dir)
		if err := writeReport(logger, res, format, path); err != nil {
			return err
		}
	}
	return nil
}

// writeReport handles writing one report using the reporting module.
func writeReport(logger *zap.Logger, res *results.Results, format, path string) error {
	reporter, err := reporting.New(format, path, Version)
	if err != nil {
		return fmt.Errorf("failed to initialize reporter: %w", err)
	}
	if err := reporter.Write(res); err != nil {
		_ = reporter.Close()
		return fmt.Errorf("failed to write %s report: %w", format, err)
	}
	if err := reporter.Close(); err != nil {
		return fmt.Errorf("failed to finalize %s report: %w", format, err)
	}
	if path != "stdout" {
		logger.Info("Report written.", zap.String("format", format), zap.String("path", path))
	}
	return nil
}

func persistRun(ctx context.Context, cfg config.Interface, res *results.Results, stores storeProvider) error {
	// Persist even when the sweep itself was interrupted.
	ctx = browser.Detach(ctx)
	st, cleanup, err := stores.Create(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}
	if err := st.SaveRun(ctx, res); err != nil {
		return fmt.Errorf("failed to persist run: %w", err)
	}
	return nil
}
