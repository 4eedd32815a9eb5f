// File: internal/runner/steps.go
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/devicesweep/internal/interactor"
	"github.com/xkilldash9x/devicesweep/internal/observability"
	"github.com/xkilldash9x/devicesweep/internal/scenario"
)

// drive resets the page, walks the step flow with the scenario's input, and
// waits for the page to react to the last step.
func (r *Runner) drive(ctx context.Context, page interactor.Page, deviceName string, sc scenario.Scenario, logger *zap.Logger) (interactor.Outcome, error) {
	timing := r.opts.Timing
	in := interactor.New(page, interactor.Options{
		CandidateTimeout: timing.CandidateTimeout,
		ActionTimeout:    timing.ActionTimeout,
	}, logger)

	if err := r.navigate(ctx, page, r.opts.TargetURL); err != nil {
		return interactor.Outcome{}, fmt.Errorf("failed to load start page: %w", err)
	}
	if err := sleep(ctx, timing.SettleDelay); err != nil {
		return interactor.Outcome{}, err
	}

	now := r.now()
	vars := scenario.Vars{
		Input:    sc.ResolveInput(deviceName, now),
		Device:   deviceName,
		Scenario: sc.ID,
		Now:      now,
	}

	// origin is the URL just before the last step ran; a redirect is judged against it.
	var origin string
	for i, step := range r.plan.Steps {
		if i > 0 {
			if err := sleep(ctx, timing.StepDelay); err != nil {
				return interactor.Outcome{}, err
			}
		}
		u, err := page.URL(ctx)
		if err != nil {
			return interactor.Outcome{}, fmt.Errorf("step %q: failed to read url: %w", step.Name, err)
		}
		origin = u

		if err := r.runStep(ctx, in, step, vars, logger.With(observability.Step(step.Name))); err != nil {
			return interactor.Outcome{}, err
		}
	}

	timeout := sc.Timeout
	if timeout <= 0 {
		timeout = timing.OutcomeTimeout
	}
	return in.WaitForOutcome(ctx, interactor.OutcomeOptions{
		OriginURL:       origin,
		SuccessPatterns: r.plan.Patterns.Success,
		ErrorPatterns:   r.plan.Patterns.Error,
		Timeout:         timeout,
		PollInterval:    timing.PollInterval,
	})
}

func (r *Runner) navigate(ctx context.Context, page interactor.Page, url string) error {
	navCtx := ctx
	if d := r.opts.Timing.NavigationTimeout; d > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	return page.Navigate(navCtx, url)
}

func (r *Runner) runStep(ctx context.Context, in *interactor.Interactor, step scenario.Step, vars scenario.Vars, logger *zap.Logger) error {
	value := scenario.Expand(step.Value, vars)

	var action interactor.Action
	switch step.Action {
	case scenario.StepNavigate:
		url := value
		if url == "" {
			url = r.opts.TargetURL
		}
		if err := r.navigate(ctx, in.Page(), url); err != nil {
			return fmt.Errorf("step %q: navigate: %w", step.Name, err)
		}
		return nil
	case scenario.StepFill:
		action = interactor.Fill(value)
	case scenario.StepClick:
		action = interactor.Click()
	case scenario.StepWaitText:
		action = interactor.Exists()
	default:
		return fmt.Errorf("step %q: unknown action %q", step.Name, step.Action)
	}

	res, err := in.ResolveAndAct(ctx, step.Candidates, action, step.Timeout)
	if err != nil {
		return fmt.Errorf("step %q: %w", step.Name, err)
	}
	if !res.Succeeded {
		if step.Optional {
			logger.Debug("Optional step skipped; no candidate matched.", zap.Int("candidates", len(step.Candidates)))
			return nil
		}
		return fmt.Errorf("step %q: %w (tried %s)", step.Name, ErrNoCandidates, describe(step.Candidates))
	}

	if step.Action == scenario.StepWaitText && value != "" {
		text, err := in.WaitForText(ctx, res.Locator, value, step.Timeout, r.opts.Timing.PollInterval)
		if err != nil {
			if step.Optional && errors.Is(err, interactor.ErrTextNotShown) {
				logger.Debug("Optional step skipped; text not shown.", zap.String("text", text), zap.String("want", value))
				return nil
			}
			return fmt.Errorf("step %q: %w", step.Name, err)
		}
	}
	logger.Debug("Step done.", observability.Locator(res.Locator.String()))
	return nil
}

func describe(locs []interactor.Locator) string {
	parts := make([]string, len(locs))
	for i, l := range locs {
		parts[i] = l.String()
	}
	return strings.Join(parts, ", ")
}

// sleep waits d unless ctx ends first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
