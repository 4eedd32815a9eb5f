// internal/scenario/scenario_test.go
package scenario_test

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/devicesweep/internal/artifacts"
	"github.com/xkilldash9x/devicesweep/internal/config"
	"github.com/xkilldash9x/devicesweep/internal/interactor"
	"github.com/xkilldash9x/devicesweep/internal/scenario"
)

func TestParse(t *testing.T) {
	got, err := scenario.Parse([]config.ScenarioConfig{
		{ID: "invalid_email", Input: "notanemail", Expect: "error", ExpectedText: "valid email", Timeout: 6 * time.Second},
		{ID: " valid_email ", Input: "qa+{timestamp}@example.com", Expect: "SUCCESS"},
		{ID: "blank", Input: ""},
	})
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, scenario.Scenario{
		ID: "invalid_email", Input: "notanemail", Expect: scenario.ExpectError,
		ExpectedText: "valid email", Timeout: 6 * time.Second,
	}, got[0])
	assert.Equal(t, "valid_email", got[1].ID)
	assert.Equal(t, scenario.ExpectSuccess, got[1].Expect)
	assert.False(t, got[1].ExpectsError())
	assert.True(t, got[2].ExpectsError(), "expectation defaults to error")
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		cfgs []config.ScenarioConfig
		want error
	}{
		{"duplicate", []config.ScenarioConfig{{ID: "a"}, {ID: "a"}}, scenario.ErrDuplicateID},
		{"reserved", []config.ScenarioConfig{{ID: "error"}}, scenario.ErrReservedID},
		{"expect", []config.ScenarioConfig{{ID: "a", Expect: "maybe"}}, scenario.ErrUnknownExpect},
		{"file name", []config.ScenarioConfig{{ID: "bad email"}, {ID: "bad_email"}}, artifacts.ErrNameCollision},
		{"file name case", []config.ScenarioConfig{{ID: "Blank"}, {ID: "blank"}}, artifacts.ErrNameCollision},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := scenario.Parse(tt.cfgs)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := scenario.Parse([]config.ScenarioConfig{{ID: ""}})
	assert.Error(t, err)
	_, err = scenario.Parse([]config.ScenarioConfig{{ID: "a", Timeout: -time.Second}})
	assert.Error(t, err)
}

func TestFilter(t *testing.T) {
	all := []scenario.Scenario{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	got, err := scenario.Filter(all, nil)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = scenario.Filter(all, []string{"c", "a"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID, "table order is kept")
	assert.Equal(t, "c", got[1].ID)

	_, err = scenario.Filter(all, []string{"z"})
	assert.ErrorIs(t, err, scenario.ErrUnknownID)
}

func TestParseSteps(t *testing.T) {
	steps, err := scenario.ParseSteps([]config.StepConfig{
		{Name: "home", Action: "navigate", Value: "https://mint.example.com"},
		{Name: "email", Action: "Fill", Value: "{input}", Candidates: []string{"label=Email", "#email"}, Timeout: time.Second},
		{Action: "click", Candidates: []string{`role=button[name="Submit"]`}, Optional: true},
		{Name: "banner", Action: "wait_text", Value: "Welcome", Candidates: []string{"css=.banner"}},
	})
	require.NoError(t, err)
	require.Len(t, steps, 4)

	assert.Equal(t, scenario.StepNavigate, steps[0].Action)
	assert.Empty(t, steps[0].Candidates)

	assert.Equal(t, scenario.StepFill, steps[1].Action)
	assert.Equal(t, []interactor.Locator{
		{Strategy: interactor.StrategyLabel, Value: "Email"},
		{Strategy: interactor.StrategyCSS, Value: "#email"},
	}, steps[1].Candidates)
	assert.Equal(t, time.Second, steps[1].Timeout)

	assert.Equal(t, "step-2", steps[2].Name)
	assert.True(t, steps[2].Optional)
	assert.Equal(t, "Submit", steps[2].Candidates[0].Name)
}

func TestParseSteps_Rejects(t *testing.T) {
	for name, cfg := range map[string]config.StepConfig{
		"unknown action":        {Name: "x", Action: "hover", Candidates: []string{"id=a"}},
		"click without targets": {Name: "x", Action: "click"},
		"navigate with targets": {Name: "x", Action: "navigate", Candidates: []string{"id=a"}},
		"bad locator":           {Name: "x", Action: "click", Candidates: []string{"id="}},
		"negative timeout":      {Name: "x", Action: "click", Candidates: []string{"id=a"}, Timeout: -1},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := scenario.ParseSteps([]config.StepConfig{cfg})
			assert.Error(t, err)
		})
	}
}

func TestExpand(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	vars := scenario.Vars{Input: "notanemail", Device: "pixel-2", Scenario: "invalid_email", Now: now}

	assert.Equal(t, "notanemail", scenario.Expand("{input}", vars))
	assert.Equal(t, "qa+1700000000123@example.com", scenario.Expand("qa+{timestamp}@example.com", vars))
	assert.Equal(t, "1700000000-pixel-2-invalid_email", scenario.Expand("{unix}-{device}-{scenario}", vars))
	assert.Equal(t, "no placeholders", scenario.Expand("no placeholders", vars))
	assert.Equal(t, "{unknown}", scenario.Expand("{unknown}", vars))

	ids := regexp.MustCompile(`^([0-9a-f-]{36})/([0-9a-f-]{36})$`).FindStringSubmatch(scenario.Expand("{uuid}/{uuid}", vars))
	require.Len(t, ids, 3)
	assert.NotEqual(t, ids[1], ids[2], "each {uuid} is fresh")
}

func TestResolveInput(t *testing.T) {
	s := scenario.Scenario{ID: "valid_email", Input: "qa+{device}.{timestamp}@example.com"}
	got := s.ResolveInput("iphone-x", time.UnixMilli(42))
	assert.Equal(t, "qa+iphone-x.42@example.com", got)

	// Two runs a moment apart never collide.
	a := s.ResolveInput("iphone-x", time.UnixMilli(1000))
	b := s.ResolveInput("iphone-x", time.UnixMilli(1001))
	assert.NotEqual(t, a, b)
}

func TestCompilePatterns(t *testing.T) {
	p, err := scenario.CompilePatterns(config.OutcomeConfig{
		SuccessPatterns: []string{`(?i)check your inbox`},
		ErrorPatterns:   []string{`(?i)valid email`, `required`},
	})
	require.NoError(t, err)
	assert.Len(t, p.Success, 1)
	assert.Len(t, p.Error, 2)

	_, err = scenario.CompilePatterns(config.OutcomeConfig{ErrorPatterns: []string{`[`}})
	assert.ErrorContains(t, err, "outcome.error_patterns")

	_, err = scenario.CompilePatterns(config.OutcomeConfig{})
	assert.Error(t, err)
}

func TestFromConfig_Defaults(t *testing.T) {
	cfg := config.NewDefaultConfig()

	plan, err := scenario.FromConfig(cfg)
	require.NoError(t, err)
	assert.Len(t, plan.Scenarios, 4)
	assert.Len(t, plan.Steps, 3)
	assert.NotEmpty(t, plan.Patterns.Error)
	assert.NotEmpty(t, plan.Patterns.Success)

	assert.Equal(t, "invalid_email", plan.Scenarios[0].ID)
	assert.Equal(t, 6*time.Second, plan.Scenarios[0].Timeout)
	assert.Equal(t, scenario.ExpectSuccess, plan.Scenarios[3].Expect)
}

func TestFromConfig_TimeoutWithinPollInterval(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.ScenariosCfg[0].Timeout = cfg.TimingCfg.PollInterval

	_, err := scenario.FromConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timing.poll_interval")
	assert.Contains(t, err.Error(), cfg.ScenariosCfg[0].ID)

	cfg.ScenariosCfg[0].Timeout = 2 * cfg.TimingCfg.PollInterval
	_, err = scenario.FromConfig(cfg)
	assert.NoError(t, err)
}
