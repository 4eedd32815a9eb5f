// File: internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Target() TargetConfig
	Timing() TimingConfig
	Output() OutputConfig
	Database() DatabaseConfig
	Devices() []DeviceConfig
	Flow() []StepConfig
	Outcome() OutcomeConfig
	Scenarios() []ScenarioConfig

	// Setters used by CLI flag overrides.
	SetBrowserDriver(string)
	SetBrowserHeadless(bool)
	SetOutputDir(string)
	SetOutputFormats([]string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg    LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	BrowserCfg   BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	TargetCfg    TargetConfig     `mapstructure:"target" yaml:"target"`
	TimingCfg    TimingConfig     `mapstructure:"timing" yaml:"timing"`
	OutputCfg    OutputConfig     `mapstructure:"output" yaml:"output"`
	DatabaseCfg  DatabaseConfig   `mapstructure:"database" yaml:"database"`
	DevicesCfg   []DeviceConfig   `mapstructure:"devices" yaml:"devices"`
	FlowCfg      []StepConfig     `mapstructure:"flow" yaml:"flow"`
	OutcomeCfg   OutcomeConfig    `mapstructure:"outcome" yaml:"outcome"`
	ScenariosCfg []ScenarioConfig `mapstructure:"scenarios" yaml:"scenarios"`
}

func (c *Config) Logger() LoggerConfig        { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig      { return c.BrowserCfg }
func (c *Config) Target() TargetConfig        { return c.TargetCfg }
func (c *Config) Timing() TimingConfig        { return c.TimingCfg }
func (c *Config) Output() OutputConfig        { return c.OutputCfg }
func (c *Config) Database() DatabaseConfig    { return c.DatabaseCfg }
func (c *Config) Devices() []DeviceConfig     { return c.DevicesCfg }
func (c *Config) Flow() []StepConfig          { return c.FlowCfg }
func (c *Config) Outcome() OutcomeConfig      { return c.OutcomeCfg }
func (c *Config) Scenarios() []ScenarioConfig { return c.ScenariosCfg }

func (c *Config) SetBrowserDriver(d string)         { c.BrowserCfg.Driver = d }
func (c *Config) SetBrowserHeadless(b bool)         { c.BrowserCfg.Headless = b }
func (c *Config) SetOutputDir(dir string)           { c.OutputCfg.Dir = dir }
func (c *Config) SetOutputFormats(formats []string) { c.OutputCfg.Formats = formats }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig selects and tunes the browser driver.
type BrowserConfig struct {
	// Driver is either "playwright" or "chromedp".
	Driver          string        `mapstructure:"driver" yaml:"driver"`
	Headless        bool          `mapstructure:"headless" yaml:"headless"`
	Args            []string      `mapstructure:"args" yaml:"args"`
	ExecutablePath  string        `mapstructure:"executable_path" yaml:"executable_path"`
	LaunchTimeout   time.Duration `mapstructure:"launch_timeout" yaml:"launch_timeout"`
	InstallBrowsers bool          `mapstructure:"install_browsers" yaml:"install_browsers"`
	InstallTimeout  time.Duration `mapstructure:"install_timeout" yaml:"install_timeout"`
}

// TargetConfig describes the site under test.
type TargetConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// TimingConfig holds every bounded wait and the few fixed delays the target's
// animations require.
type TimingConfig struct {
	CandidateTimeout  time.Duration `mapstructure:"candidate_timeout" yaml:"candidate_timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	OutcomeTimeout    time.Duration `mapstructure:"outcome_timeout" yaml:"outcome_timeout"`
	PollInterval      time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	SettleDelay       time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	StepDelay         time.Duration `mapstructure:"step_delay" yaml:"step_delay"`
	CloseTimeout      time.Duration `mapstructure:"close_timeout" yaml:"close_timeout"`
}

// OutputConfig controls where artifacts and reports are written.
type OutputConfig struct {
	Dir           string   `mapstructure:"dir" yaml:"dir"`
	ResultsFile   string   `mapstructure:"results_file" yaml:"results_file"`
	RecordVideo   bool     `mapstructure:"record_video" yaml:"record_video"`
	Screenshots   string   `mapstructure:"screenshots" yaml:"screenshots"`
	Formats       []string `mapstructure:"formats" yaml:"formats"`
	FailOnFailure bool     `mapstructure:"fail_on_failure" yaml:"fail_on_failure"`
}

// ScreenshotDir is the directory scenario screenshots are written to.
func (o OutputConfig) ScreenshotDir() string { return filepath.Join(o.Dir, "screenshots") }

// VideoDir is the directory device recordings are written to.
func (o OutputConfig) VideoDir() string { return filepath.Join(o.Dir, "videos") }

// ResultsPath is the full path of the results file.
func (o OutputConfig) ResultsPath() string {
	if filepath.IsAbs(o.ResultsFile) {
		return o.ResultsFile
	}
	return filepath.Join(o.Dir, o.ResultsFile)
}

// DatabaseConfig holds the database connection details. Persistence is
// skipped when URL is empty.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// DeviceConfig declares one emulated device. Builtin names a catalog entry
// whose fields are overridden by any non-zero field given here.
type DeviceConfig struct {
	Name        string  `mapstructure:"name" yaml:"name"`
	Builtin     string  `mapstructure:"builtin" yaml:"builtin"`
	UserAgent   string  `mapstructure:"user_agent" yaml:"user_agent"`
	Width       int64   `mapstructure:"width" yaml:"width"`
	Height      int64   `mapstructure:"height" yaml:"height"`
	ScaleFactor float64 `mapstructure:"scale_factor" yaml:"scale_factor"`
	Mobile      bool    `mapstructure:"mobile" yaml:"mobile"`
	Touch       bool    `mapstructure:"touch" yaml:"touch"`
	Landscape   bool    `mapstructure:"landscape" yaml:"landscape"`
	Locale      string  `mapstructure:"locale" yaml:"locale"`
	Timezone    string  `mapstructure:"timezone" yaml:"timezone"`
}

// StepConfig is one declarative step of the form flow.
type StepConfig struct {
	Name       string        `mapstructure:"name" yaml:"name"`
	Action     string        `mapstructure:"action" yaml:"action"`
	Candidates []string      `mapstructure:"candidates" yaml:"candidates"`
	Value      string        `mapstructure:"value" yaml:"value"`
	Optional   bool          `mapstructure:"optional" yaml:"optional"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// OutcomeConfig lists the regular expressions that classify the page after submit.
type OutcomeConfig struct {
	SuccessPatterns []string `mapstructure:"success_patterns" yaml:"success_patterns"`
	ErrorPatterns   []string `mapstructure:"error_patterns" yaml:"error_patterns"`
}

// ScenarioConfig declares one input and its expected outcome.
type ScenarioConfig struct {
	ID           string        `mapstructure:"id" yaml:"id"`
	Input        string        `mapstructure:"input" yaml:"input"`
	Expect       string        `mapstructure:"expect" yaml:"expect"`
	ExpectedText string        `mapstructure:"expected_text" yaml:"expected_text"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// NewDefaultConfig creates a configuration populated purely from defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "devicesweep")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.driver", "playwright")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.args", []string{"--disable-gpu", "--no-sandbox", "--disable-dev-shm-usage"})
	v.SetDefault("browser.launch_timeout", "60s")
	v.SetDefault("browser.install_browsers", true)
	v.SetDefault("browser.install_timeout", "5m")

	// -- Timing --
	v.SetDefault("timing.candidate_timeout", "3s")
	v.SetDefault("timing.navigation_timeout", "30s")
	v.SetDefault("timing.outcome_timeout", "10s")
	v.SetDefault("timing.poll_interval", "250ms")
	v.SetDefault("timing.action_timeout", "5s")
	v.SetDefault("timing.settle_delay", "1s")
	v.SetDefault("timing.step_delay", "300ms")
	v.SetDefault("timing.close_timeout", "15s")

	// -- Output --
	v.SetDefault("output.dir", "output")
	v.SetDefault("output.results_file", "results.json")
	v.SetDefault("output.record_video", true)
	v.SetDefault("output.screenshots", ScreenshotsNoteworthy)
	v.SetDefault("output.formats", []string{"text"})
	v.SetDefault("output.fail_on_failure", false)

	// -- Devices --
	v.SetDefault("devices", []map[string]any{
		{"name": "iphone-x", "builtin": "iPhone X"},
		{"name": "pixel-2", "builtin": "Pixel 2"},
		{"name": "galaxy-s5", "builtin": "Galaxy S5"},
	})

	// -- Flow --
	v.SetDefault("flow", []map[string]any{
		{
			"name":       "open_form",
			"action":     "click",
			"optional":   true,
			"candidates": []string{`role=button[name="Mint"]`, "text=Get Started", "css=a[href*='mint']"},
		},
		{
			"name":       "email",
			"action":     "fill",
			"value":      "{input}",
			"candidates": []string{"label=Email", "placeholder=Email", "id=email", "css=input[type='email']", "css=input[name='email']"},
		},
		{
			"name":       "submit",
			"action":     "click",
			"candidates": []string{`role=button[name="Submit"]`, "css=button[type='submit']", "text=Continue"},
		},
	})

	// -- Outcome --
	v.SetDefault("outcome.error_patterns", []string{
		`(?i)(please )?enter a valid email`,
		`(?i)invalid email`,
		`(?i)(this field|email) is required`,
		`(?i)something went wrong`,
	})
	v.SetDefault("outcome.success_patterns", []string{
		`(?i)check your (inbox|email)`,
		`(?i)success`,
		`(?i)passport (is )?ready`,
	})

	// -- Scenarios --
	v.SetDefault("scenarios", []map[string]any{
		{"id": "invalid_email", "input": "notanemail", "expect": "error", "expected_text": "valid email", "timeout": "6s"},
		{"id": "missing_domain", "input": "user@", "expect": "error", "timeout": "6s"},
		{"id": "empty_email", "input": "", "expect": "error", "timeout": "6s"},
		{"id": "valid_email", "input": "qa+{timestamp}@example.com", "expect": "success", "timeout": "10s"},
	})
}

// Screenshot policies.
const (
	ScreenshotsNoteworthy = "noteworthy"
	ScreenshotsAlways     = "always"
	ScreenshotsNever      = "never"
)

// NewConfigFromViper creates a new configuration instance from a viper object
// and validates it.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	cfg, err := Decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Decode unmarshals v without validating the result.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Secrets are only ever read from the environment.
	_ = v.BindEnv("database.url", "DEVICESWEEP_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	dir, err := homedir.Expand(cfg.OutputCfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand output.dir: %w", err)
	}
	cfg.OutputCfg.Dir = dir
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.TargetCfg.URL == "" {
		return fmt.Errorf("target.url is a required configuration field")
	}
	switch c.BrowserCfg.Driver {
	case "playwright", "chromedp":
	default:
		return fmt.Errorf("browser.driver must be one of playwright, chromedp (got %q)", c.BrowserCfg.Driver)
	}
	if err := c.TimingCfg.Validate(); err != nil {
		return fmt.Errorf("timing configuration invalid: %w", err)
	}
	switch c.OutputCfg.Screenshots {
	case ScreenshotsNoteworthy, ScreenshotsAlways, ScreenshotsNever:
	default:
		return fmt.Errorf("output.screenshots must be one of noteworthy, always, never")
	}
	if c.OutputCfg.Dir == "" {
		return fmt.Errorf("output.dir must not be empty")
	}
	if len(c.DevicesCfg) == 0 {
		return fmt.Errorf("at least one device must be configured")
	}
	if len(c.FlowCfg) == 0 {
		return fmt.Errorf("flow must contain at least one step")
	}
	if len(c.ScenariosCfg) == 0 {
		return fmt.Errorf("at least one scenario must be configured")
	}
	return nil
}

// Validate checks that every bounded wait is positive and that the poll
// interval fits inside the outcome wait.
func (t *TimingConfig) Validate() error {
	bounded := map[string]time.Duration{
		"candidate_timeout":  t.CandidateTimeout,
		"navigation_timeout": t.NavigationTimeout,
		"outcome_timeout":    t.OutcomeTimeout,
		"poll_interval":      t.PollInterval,
		"action_timeout":     t.ActionTimeout,
	}
	for name, d := range bounded {
		if d <= 0 {
			return fmt.Errorf("%s must be a positive duration", name)
		}
	}
	if t.PollInterval >= t.OutcomeTimeout {
		return fmt.Errorf("poll_interval (%v) must be shorter than outcome_timeout (%v)", t.PollInterval, t.OutcomeTimeout)
	}
	if t.SettleDelay < 0 || t.StepDelay < 0 {
		return fmt.Errorf("settle_delay and step_delay must not be negative")
	}
	return nil
}
