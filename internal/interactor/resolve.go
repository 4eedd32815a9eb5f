// internal/interactor/resolve.go
package interactor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Action is the single operation performed on a resolved element.
type Action struct {
	Name string
	Do   func(ctx context.Context, el Element) (string, error)
}

// Fill replaces the element's value.
func Fill(value string) Action {
	return Action{Name: "fill", Do: func(ctx context.Context, el Element) (string, error) {
		return "", el.Fill(ctx, value)
	}}
}

// Click clicks the element.
func Click() Action {
	return Action{Name: "click", Do: func(ctx context.Context, el Element) (string, error) {
		return "", el.Click(ctx)
	}}
}

// ReadText returns the element's text content as the Resolution result.
func ReadText() Action {
	return Action{Name: "read_text", Do: func(ctx context.Context, el Element) (string, error) {
		return el.Text(ctx)
	}}
}

// Exists performs no side effect; resolving is the whole point.
func Exists() Action {
	return Action{Name: "exists", Do: func(context.Context, Element) (string, error) {
		return "", nil
	}}
}

// Miss records why a candidate was skipped.
type Miss struct {
	Locator Locator
	Err     error
}

// Resolution reports which candidate, if any, was acted upon.
type Resolution struct {
	Succeeded bool
	// Index is the position of the winning candidate, or -1.
	Index   int
	Locator Locator
	Result  string
	Misses  []Miss
}

// ActionError is returned when a candidate resolved but the action on it failed.
// No later candidate is tried once an action has been attempted.
type ActionError struct {
	Action  string
	Locator Locator
	Index   int
	Err     error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s on %s failed: %v", e.Action, e.Locator, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// Options tunes an Interactor.
type Options struct {
	// CandidateTimeout bounds each candidate's visibility wait when a call passes zero.
	CandidateTimeout time.Duration
	// ActionTimeout bounds the action on the resolved element.
	ActionTimeout time.Duration
}

// Interactor performs fallback-resolved actions and outcome waits on one page.
// It never runs two interactions concurrently.
type Interactor struct {
	page   Page
	opts   Options
	logger *zap.Logger
}

// New creates an Interactor bound to page.
func New(page Page, opts Options, logger *zap.Logger) *Interactor {
	if opts.CandidateTimeout <= 0 {
		opts.CandidateTimeout = 3 * time.Second
	}
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interactor{page: page, opts: opts, logger: logger.Named("interactor")}
}

// Page returns the page the interactor drives.
func (i *Interactor) Page() Page { return i.page }

// ResolveAndAct tries candidates in declared order, waiting up to
// perCandidateTimeout (or the configured default when zero) for each to become
// visible, and performs action on the first visible one.
//
// Not finding any candidate is reported through Resolution.Succeeded, never as an
// error. An error is returned only when the context is done or the action itself
// failed (*ActionError).
func (i *Interactor) ResolveAndAct(ctx context.Context, candidates []Locator, action Action, perCandidateTimeout time.Duration) (Resolution, error) {
	if perCandidateTimeout <= 0 {
		perCandidateTimeout = i.opts.CandidateTimeout
	}
	res := Resolution{Index: -1}

	for idx, loc := range candidates {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("resolve canceled: %w", err)
		}

		el := i.page.Locate(loc)
		waitCtx, cancel := context.WithTimeout(ctx, perCandidateTimeout)
		err := el.WaitVisible(waitCtx, perCandidateTimeout)
		cancel()
		if err != nil {
			// The parent context ending is not a miss; stop here.
			if ctx.Err() != nil {
				return res, fmt.Errorf("resolve canceled: %w", ctx.Err())
			}
			i.logger.Debug("Candidate not visible.", zap.Int("index", idx), zap.Stringer("locator", loc), zap.Error(err))
			res.Misses = append(res.Misses, Miss{Locator: loc, Err: err})
			continue
		}

		res.Index = idx
		res.Locator = loc

		opCtx, opCancel := context.WithTimeout(ctx, i.opts.ActionTimeout)
		result, err := action.Do(opCtx, el)
		timedOut := errors.Is(opCtx.Err(), context.DeadlineExceeded)
		opCancel()
		if err != nil {
			if timedOut && ctx.Err() == nil {
				err = fmt.Errorf("timed out after %v: %w", i.opts.ActionTimeout, err)
			}
			return res, &ActionError{Action: action.Name, Locator: loc, Index: idx, Err: err}
		}

		res.Succeeded = true
		res.Result = result
		i.logger.Debug("Candidate resolved.", zap.Int("index", idx), zap.Stringer("locator", loc), zap.String("action", action.Name))
		return res, nil
	}

	return res, nil
}

// ResolveAndAct is the functional form of Interactor.ResolveAndAct with default options.
func ResolveAndAct(ctx context.Context, page Page, candidates []Locator, action Action, perCandidateTimeout time.Duration) (Resolution, error) {
	return New(page, Options{CandidateTimeout: perCandidateTimeout}, nil).ResolveAndAct(ctx, candidates, action, perCandidateTimeout)
}
