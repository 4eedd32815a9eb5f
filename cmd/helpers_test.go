// File: cmd/helpers_test.go
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/devicesweep/internal/browser"
	"github.com/xkilldash9x/devicesweep/internal/config"
	"github.com/xkilldash9x/devicesweep/internal/device"
	"github.com/xkilldash9x/devicesweep/internal/mocks"
	"github.com/xkilldash9x/devicesweep/internal/results"
)

const testTarget = "https://mint.example.com/signup"

// newTestConfig returns the default configuration pointed at a temp output
// directory, with timings short enough for scripted pages.
func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.TargetCfg.URL = testTarget
	cfg.OutputCfg.Dir = t.TempDir()
	cfg.OutputCfg.Formats = nil
	cfg.TimingCfg = config.TimingConfig{
		CandidateTimeout:  50 * time.Millisecond,
		NavigationTimeout: time.Second,
		OutcomeTimeout:    300 * time.Millisecond,
		PollInterval:      5 * time.Millisecond,
		ActionTimeout:     time.Second,
		CloseTimeout:      time.Second,
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

// scriptMintForm makes page behave like the signup form: a well-formed email
// redirects to the passport page, anything else shows the validation banner.
func scriptMintForm(page *mocks.FakePage) {
	var typed string
	page.Add("label=Email", &mocks.FakeElement{OnFill: func(v string) { typed = v }})
	page.Add(`role=button[name="Submit"]`, &mocks.FakeElement{OnClick: func() {
		at := strings.Index(typed, "@")
		if at > 0 && strings.Contains(typed[at:], ".") {
			page.SetURL("https://mint.example.com/passport/42")
			return
		}
		page.SetText("Mint your passport\nPlease enter a valid email address")
	}})
	page.OnNavigate = func(string) {
		page.SetText("Mint your passport")
		typed = ""
	}
}

// fakeDriverFactory hands out drv regardless of the browser config.
func fakeDriverFactory(drv browser.Driver) driverFactory {
	return func(config.BrowserConfig, *zap.Logger) (browser.Driver, error) {
		return drv, nil
	}
}

func newMintDriver() *mocks.FakeDriver {
	return &mocks.FakeDriver{
		NewPage: func(device.Profile) *mocks.FakePage {
			page := mocks.NewFakePage("about:blank")
			scriptMintForm(page)
			return page
		},
	}
}

// -- Store mocks --

type mockStore struct {
	mock.Mock
}

func (m *mockStore) SaveRun(ctx context.Context, res *results.Results) error {
	return m.Called(ctx, res).Error(0)
}

func (m *mockStore) LoadRun(ctx context.Context, runID string) (*results.Results, error) {
	args := m.Called(ctx, runID)
	if r := args.Get(0); r != nil {
		return r.(*results.Results), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockStoreProvider struct {
	mock.Mock
}

func (m *mockStoreProvider) Create(ctx context.Context, cfg config.Interface) (runStore, func(), error) {
	args := m.Called(ctx, cfg)
	var st runStore
	if s := args.Get(0); s != nil {
		st = s.(runStore)
	}
	var cleanup func()
	if c := args.Get(1); c != nil {
		cleanup = c.(func())
	}
	return st, cleanup, args.Error(2)
}

// -- Command helpers --

// executeCommandNoPreRun is for testing argument and flag validation without
// triggering config loading in PersistentPreRunE.
func executeCommandNoPreRun(t *testing.T, args ...string) (string, error) {
	t.Helper()
	testRootCmd, _ := newRootCmd()

	buf := new(bytes.Buffer)
	testRootCmd.PersistentPreRunE = nil
	testRootCmd.SetOut(buf)
	testRootCmd.SetErr(buf)
	testRootCmd.SetArgs(args)
	err := testRootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

// executeCommand runs the full command tree, config loading included.
func executeCommand(t *testing.T, args ...string) (string, config.Interface, error) {
	t.Helper()
	testRootCmd, appCfg := newRootCmd()

	buf := new(bytes.Buffer)
	testRootCmd.SetOut(buf)
	testRootCmd.SetErr(buf)
	testRootCmd.SetArgs(args)
	err := testRootCmd.ExecuteContext(context.Background())
	return buf.String(), *appCfg, err
}

// createTempConfig writes content to a config file in a fresh temp dir.
func createTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "devicesweep.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
