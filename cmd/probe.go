// File: cmd/probe.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/devicesweep/internal/browser"
	"github.com/xkilldash9x/devicesweep/internal/config"
	"github.com/xkilldash9x/devicesweep/internal/device"
	"github.com/xkilldash9x/devicesweep/internal/interactor"
	"github.com/xkilldash9x/devicesweep/internal/observability"
)

type probeRequest struct {
	url        string
	locators   []string
	deviceName string
	timeout    time.Duration
	readText   bool
}

func newProbeCmd(newDriver driverFactory) *cobra.Command {
	var req probeRequest

	probeCmd := &cobra.Command{
		Use:   "probe URL",
		Short: "Show which of a list of locator candidates resolves on a page",
		Example: `  devicesweep probe https://mint.example.com/signup \
    --locator 'css=input[type=email]' --locator 'label=Email' --locator 'placeholder=you@example.com'`,
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{skipValidation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			req.url = args[0]
			return runProbe(ctx, observability.GetLogger(), cfg, req, newDriver, cmd.OutOrStdout())
		},
	}

	probeCmd.Flags().StringArrayVarP(&req.locators, "locator", "l", nil, "candidate locator, tried in order (repeatable, required)")
	_ = probeCmd.MarkFlagRequired("locator")
	probeCmd.Flags().StringVar(&req.deviceName, "device", "", "configured device to emulate (default: the first one)")
	probeCmd.Flags().DurationVar(&req.timeout, "timeout", 0, "per-candidate visibility wait (default: timing.candidate_timeout)")
	probeCmd.Flags().BoolVar(&req.readText, "text", false, "print the resolved element's text")
	probeCmd.Flags().String("driver", "", "browser driver: playwright or chromedp")
	probeCmd.Flags().Bool("headful", false, "show the browser window")
	bindsTo(probeCmd.Flags(), "driver", "browser.driver")

	return probeCmd
}

// runProbe opens a single device context, loads url and resolves the candidates.
func runProbe(
	ctx context.Context,
	logger *zap.Logger,
	cfg config.Interface,
	req probeRequest,
	newDriver driverFactory,
	out io.Writer,
) error {
	candidates, err := interactor.ParseLocators(req.locators)
	if err != nil {
		return err
	}
	profile, err := pickDevice(cfg.Devices(), req.deviceName)
	if err != nil {
		return err
	}
	timing := cfg.Timing()
	if req.timeout <= 0 {
		req.timeout = timing.CandidateTimeout
	}

	driver, err := newDriver(cfg.Browser(), logger)
	if err != nil {
		return fmt.Errorf("failed to create browser driver: %w", err)
	}
	if err := driver.Start(ctx); err != nil {
		return fmt.Errorf("failed to start %s driver: %w", driver.Name(), err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(browser.Detach(ctx), timing.CloseTimeout+time.Second)
		defer cancel()
		if err := driver.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Driver shutdown failed.", zap.Error(err))
		}
	}()

	session, err := driver.NewDevice(ctx, profile, browser.DeviceOptions{
		NavigationTimeout: timing.NavigationTimeout,
		ActionTimeout:     timing.ActionTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to open device context: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(browser.Detach(ctx), timing.CloseTimeout+time.Second)
		defer cancel()
		if _, err := session.Close(closeCtx); err != nil {
			logger.Warn("Failed to close device context.", zap.Error(err))
		}
	}()

	navCtx, cancel := context.WithTimeout(ctx, timing.NavigationTimeout)
	err = session.Navigate(navCtx, req.url)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", req.url, err)
	}

	action := interactor.Exists()
	if req.readText {
		action = interactor.ReadText()
	}
	in := interactor.New(session, interactor.Options{CandidateTimeout: req.timeout, ActionTimeout: timing.ActionTimeout}, logger)
	res, err := in.ResolveAndAct(ctx, candidates, action, req.timeout)
	printResolution(out, profile.Name, res)
	if err != nil {
		return err
	}
	if !res.Succeeded {
		return errors.New("no candidate matched")
	}
	return nil
}

func printResolution(out io.Writer, deviceName string, res interactor.Resolution) {
	fmt.Fprintf(out, "device: %s\n", deviceName)
	for _, m := range res.Misses {
		fmt.Fprintf(out, "  miss   %s (%v)\n", m.Locator, m.Err)
	}
	if !res.Succeeded {
		fmt.Fprintln(out, "  no candidate matched")
		return
	}
	fmt.Fprintf(out, "  match  %s (candidate %d)\n", res.Locator, res.Index+1)
	if res.Result != "" {
		fmt.Fprintf(out, "  text   %q\n", res.Result)
	}
}

// pickDevice returns the named configured device, or the first resolvable one.
func pickDevice(cfgs []config.DeviceConfig, name string) (device.Profile, error) {
	entries, err := device.Resolve(cfgs)
	if err != nil {
		return device.Profile{}, err
	}
	if name != "" {
		entries = device.Filter(entries, []string{name})
		if len(entries) == 0 {
			// Not configured; fall back to the builtin catalog.
			return device.Builtin(name)
		}
	}
	for _, e := range entries {
		if e.Err == nil {
			return e.Profile, nil
		}
	}
	return device.Profile{}, fmt.Errorf("no usable device configured")
}
