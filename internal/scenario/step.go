// internal/scenario/step.go
package scenario

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xkilldash9x/devicesweep/internal/config"
	"github.com/xkilldash9x/devicesweep/internal/interactor"
)

// StepAction names what a flow step does.
type StepAction string

const (
	StepNavigate StepAction = "navigate"
	StepFill     StepAction = "fill"
	StepClick    StepAction = "click"
	StepWaitText StepAction = "wait_text"
)

// Step is one declarative action of the form flow.
type Step struct {
	Name       string
	Action     StepAction
	Candidates []interactor.Locator
	// Value is a template: the fill value, the navigate URL, or the text a
	// wait_text step expects.
	Value    string
	Optional bool
	// Timeout overrides the per-candidate visibility wait when non-zero. A
	// wait_text step also gets it to see Value appear.
	Timeout time.Duration
}

// ParseSteps converts and validates the configured flow.
func ParseSteps(cfgs []config.StepConfig) ([]Step, error) {
	out := make([]Step, 0, len(cfgs))
	for i, c := range cfgs {
		name := c.Name
		if name == "" {
			name = fmt.Sprintf("step-%d", i)
		}
		action := StepAction(strings.ToLower(strings.TrimSpace(c.Action)))

		locs, err := interactor.ParseLocators(c.Candidates)
		if err != nil {
			return nil, fmt.Errorf("flow step %q: %w", name, err)
		}

		switch action {
		case StepNavigate:
			if len(locs) > 0 {
				return nil, fmt.Errorf("flow step %q: navigate takes no candidates", name)
			}
		case StepFill, StepClick, StepWaitText:
			if len(locs) == 0 {
				return nil, fmt.Errorf("flow step %q: %s needs at least one candidate", name, action)
			}
		default:
			return nil, fmt.Errorf("flow step %q: unknown action %q", name, c.Action)
		}
		if c.Timeout < 0 {
			return nil, fmt.Errorf("flow step %q: timeout must not be negative", name)
		}

		out = append(out, Step{
			Name:       name,
			Action:     action,
			Candidates: locs,
			Value:      c.Value,
			Optional:   c.Optional,
			Timeout:    c.Timeout,
		})
	}
	return out, nil
}

// Vars are the values available to templates.
type Vars struct {
	Input    string
	Device   string
	Scenario string
	Now      time.Time
}

// Expand substitutes {input}, {timestamp} (unix milliseconds), {unix},
// {device}, {scenario} and {uuid} in tmpl. Each {uuid} gets a fresh value.
func Expand(tmpl string, vars Vars) string {
	if !strings.Contains(tmpl, "{") {
		return tmpl
	}
	now := vars.Now
	if now.IsZero() {
		now = time.Now()
	}
	r := strings.NewReplacer(
		"{input}", vars.Input,
		"{timestamp}", strconv.FormatInt(now.UnixMilli(), 10),
		"{unix}", strconv.FormatInt(now.Unix(), 10),
		"{device}", vars.Device,
		"{scenario}", vars.Scenario,
	)
	out := r.Replace(tmpl)
	for strings.Contains(out, "{uuid}") {
		out = strings.Replace(out, "{uuid}", uuid.NewString(), 1)
	}
	return out
}

// ResolveInput expands the scenario's input template. The input itself may
// use every placeholder except {input}.
func (s Scenario) ResolveInput(device string, now time.Time) string {
	return Expand(s.Input, Vars{Device: device, Scenario: s.ID, Now: now})
}
