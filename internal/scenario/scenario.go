// internal/scenario/scenario.go
package scenario

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/xkilldash9x/devicesweep/internal/artifacts"
	"github.com/xkilldash9x/devicesweep/internal/config"
	"github.com/xkilldash9x/devicesweep/internal/interactor"
)

// ReservedID is the results key used for device-level failures.
const ReservedID = "error"

var (
	ErrDuplicateID   = errors.New("duplicate scenario id")
	ErrReservedID    = errors.New("reserved scenario id")
	ErrUnknownExpect = errors.New("unknown expectation")
	ErrUnknownID     = errors.New("unknown scenario id")
)

// Expect is the outcome kind a scenario anticipates.
type Expect string

const (
	ExpectError   Expect = "error"
	ExpectSuccess Expect = "success"
)

// Scenario is one declared input and its expected outcome, replayed on every
// device. Values are never modified after Parse.
type Scenario struct {
	ID     string
	Input  string
	Expect Expect
	// ExpectedText, when set, must appear in the matched error text.
	ExpectedText string
	// Timeout overrides the outcome wait for this scenario when non-zero.
	Timeout time.Duration
}

// ExpectsError reports whether the scenario is a negative test.
func (s Scenario) ExpectsError() bool { return s.Expect == ExpectError }

// Parse converts and validates the configured scenario table.
func Parse(cfgs []config.ScenarioConfig) ([]Scenario, error) {
	seen := make(map[string]struct{}, len(cfgs))
	fileNames := make(map[string]string, len(cfgs))
	out := make([]Scenario, 0, len(cfgs))
	for i, c := range cfgs {
		id := strings.TrimSpace(c.ID)
		if id == "" {
			return nil, fmt.Errorf("scenario %d: id is required", i)
		}
		if id == ReservedID {
			return nil, fmt.Errorf("scenario %d: %w: %q", i, ErrReservedID, id)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateID, id)
		}
		seen[id] = struct{}{}
		safe := artifacts.FileKey(id)
		if other, taken := fileNames[safe]; taken {
			return nil, fmt.Errorf("scenario %q: %w with scenario %q (%s)", id, artifacts.ErrNameCollision, other, safe)
		}
		fileNames[safe] = id

		expect := Expect(strings.ToLower(strings.TrimSpace(c.Expect)))
		switch expect {
		case ExpectError, ExpectSuccess:
		case "":
			expect = ExpectError
		default:
			return nil, fmt.Errorf("scenario %q: %w %q", id, ErrUnknownExpect, c.Expect)
		}
		if c.Timeout < 0 {
			return nil, fmt.Errorf("scenario %q: timeout must not be negative", id)
		}

		out = append(out, Scenario{
			ID:           id,
			Input:        c.Input,
			Expect:       expect,
			ExpectedText: c.ExpectedText,
			Timeout:      c.Timeout,
		})
	}
	return out, nil
}

// Filter keeps the scenarios named in ids, in table order. An empty filter
// keeps everything; an id not in the table is an error.
func Filter(scenarios []Scenario, ids []string) ([]Scenario, error) {
	if len(ids) == 0 {
		return scenarios, nil
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = false
	}
	var out []Scenario
	for _, s := range scenarios {
		if _, ok := want[s.ID]; ok {
			want[s.ID] = true
			out = append(out, s)
		}
	}
	for id, found := range want {
		if !found {
			return nil, fmt.Errorf("%w: %q", ErrUnknownID, id)
		}
	}
	return out, nil
}

// Patterns are the compiled outcome classifiers.
type Patterns struct {
	Success []*regexp.Regexp
	Error   []*regexp.Regexp
}

// CompilePatterns compiles the configured outcome patterns. At least one
// pattern of either kind is required for the text probe to be useful.
func CompilePatterns(cfg config.OutcomeConfig) (Patterns, error) {
	success, err := interactor.CompilePatterns(cfg.SuccessPatterns)
	if err != nil {
		return Patterns{}, fmt.Errorf("outcome.success_patterns: %w", err)
	}
	errs, err := interactor.CompilePatterns(cfg.ErrorPatterns)
	if err != nil {
		return Patterns{}, fmt.Errorf("outcome.error_patterns: %w", err)
	}
	if len(success) == 0 && len(errs) == 0 {
		return Patterns{}, fmt.Errorf("outcome: no success or error patterns configured")
	}
	return Patterns{Success: success, Error: errs}, nil
}

// Plan is everything a sweep replays on each device.
type Plan struct {
	Scenarios []Scenario
	Steps     []Step
	Patterns  Patterns
}

// FromConfig builds and validates a Plan.
func FromConfig(cfg config.Interface) (*Plan, error) {
	scenarios, err := Parse(cfg.Scenarios())
	if err != nil {
		return nil, err
	}
	steps, err := ParseSteps(cfg.Flow())
	if err != nil {
		return nil, err
	}
	patterns, err := CompilePatterns(cfg.Outcome())
	if err != nil {
		return nil, err
	}
	poll := cfg.Timing().PollInterval
	for _, sc := range scenarios {
		if sc.Timeout > 0 && sc.Timeout <= poll {
			return nil, fmt.Errorf("scenario %q: timeout %v must be longer than timing.poll_interval %v", sc.ID, sc.Timeout, poll)
		}
	}
	return &Plan{Scenarios: scenarios, Steps: steps, Patterns: patterns}, nil
}
