// internal/browser/manager.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/devicesweep/internal/config"
	"github.com/xkilldash9x/devicesweep/internal/device"
	"github.com/xkilldash9x/devicesweep/internal/interactor"
)

// Manager handles the browser process lifecycle and device context creation using Playwright.
type Manager struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	logger  *zap.Logger
	cfg     config.BrowserConfig

	sessions map[string]*Session
	mu       sync.Mutex

	initOnce sync.Once
	initErr  error
}

var _ Driver = (*Manager)(nil)

const defaultInstallTimeout = 5 * time.Minute

// NewManager creates a new playwright driver. The browser is launched by Start.
func NewManager(cfg config.BrowserConfig, logger *zap.Logger) *Manager {
	return &Manager{
		logger:   logger.Named("playwright"),
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Name() string        { return "playwright" }
func (m *Manager) SupportsVideo() bool { return true }

// Start installs browsers if configured, starts the Playwright driver and launches Chromium.
func (m *Manager) Start(ctx context.Context) error {
	m.initOnce.Do(func() {
		m.logger.Info("Initializing Playwright and launching browser...")

		if m.cfg.InstallBrowsers {
			if err := m.ensureInstallation(ctx); err != nil {
				m.initErr = err
				return
			}
		}

		pw, err := playwright.Run()
		if err != nil {
			m.initErr = fmt.Errorf("failed to start playwright driver: %w", err)
			return
		}
		m.pw = pw

		browser, err := pw.Chromium.Launch(m.prepareLaunchOptions())
		if err != nil {
			_ = pw.Stop()
			m.initErr = fmt.Errorf("failed to launch browser instance: %w", err)
			return
		}
		m.browser = browser

		m.logger.Info("Browser launched.", zap.String("browser_version", browser.Version()))
	})
	return m.initErr
}

func (m *Manager) ensureInstallation(ctx context.Context) error {
	m.logger.Info("Verifying Playwright browser installation...")
	timeout := m.cfg.InstallTimeout
	if timeout <= 0 {
		timeout = defaultInstallTimeout
	}
	installCtx, installCancel := context.WithTimeout(ctx, timeout)
	defer installCancel()

	// Install blocks without a context, so it runs aside and is abandoned on timeout.
	installErrChan := make(chan error, 1)
	go func() {
		options := &playwright.RunOptions{
			Browsers: []string{"chromium"},
		}
		if err := playwright.Install(options); err != nil {
			installErrChan <- fmt.Errorf("failed to install playwright browsers: %w", err)
			return
		}
		installErrChan <- nil
	}()

	select {
	case err := <-installErrChan:
		return err
	case <-installCtx.Done():
		return fmt.Errorf("timeout waiting for Playwright installation: %w", installCtx.Err())
	}
}

func (m *Manager) prepareLaunchOptions() playwright.BrowserTypeLaunchOptions {
	launchTimeout := m.cfg.LaunchTimeout
	if launchTimeout <= 0 {
		launchTimeout = 60 * time.Second
	}
	options := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(m.cfg.Headless),
		Args:     m.cfg.Args,
		Timeout:  playwright.Float(float64(launchTimeout.Milliseconds())),
	}
	if m.cfg.ExecutablePath != "" {
		options.ExecutablePath = playwright.String(m.cfg.ExecutablePath)
	}
	return options
}

// NewDevice opens an isolated browser context emulating profile.
func (m *Manager) NewDevice(ctx context.Context, profile device.Profile, opts DeviceOptions) (DeviceSession, error) {
	if err := m.Start(ctx); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	contextOptions := contextOptionsFor(profile, opts)
	bctx, err := m.browser.NewContext(contextOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context for %s: %w", profile.Name, err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("failed to open page for %s: %w", profile.Name, err)
	}
	if opts.ActionTimeout > 0 {
		page.SetDefaultTimeout(float64(opts.ActionTimeout.Milliseconds()))
	}
	if opts.NavigationTimeout > 0 {
		page.SetDefaultNavigationTimeout(float64(opts.NavigationTimeout.Milliseconds()))
	}

	s := &Session{
		id:         uuid.NewString(),
		bctx:       bctx,
		page:       page,
		navTimeout: opts.NavigationTimeout,
		actTimeout: opts.ActionTimeout,
		recording:  contextOptions.RecordVideo != nil,
	}
	s.logger = m.logger.With(zap.String("session_id", s.id), zap.String("device", profile.Name))
	s.onClose = func() {
		m.mu.Lock()
		delete(m.sessions, s.id)
		m.mu.Unlock()
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	s.logger.Debug("Device context opened.", zap.Bool("recording", s.recording))
	return s, nil
}

func contextOptionsFor(profile device.Profile, opts DeviceOptions) playwright.BrowserNewContextOptions {
	viewport := &playwright.Size{Width: int(profile.Width), Height: int(profile.Height)}
	options := playwright.BrowserNewContextOptions{
		Viewport:          viewport,
		DeviceScaleFactor: playwright.Float(profile.ScaleFactor),
		IsMobile:          playwright.Bool(profile.Mobile),
		HasTouch:          playwright.Bool(profile.Touch),
	}
	if profile.UserAgent != "" {
		options.UserAgent = playwright.String(profile.UserAgent)
	}
	if profile.Locale != "" {
		options.Locale = playwright.String(profile.Locale)
	}
	if profile.Timezone != "" {
		options.TimezoneId = playwright.String(profile.Timezone)
	}
	if opts.VideoDir != "" {
		options.RecordVideo = &playwright.RecordVideo{Dir: opts.VideoDir, Size: viewport}
	}
	return options
}

// Shutdown closes any open device contexts, then the browser and the driver.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down browser manager.")
	if m.pw == nil {
		return nil
	}

	m.mu.Lock()
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.Unlock()

	for _, s := range open {
		if _, err := s.Close(ctx); err != nil {
			m.logger.Warn("Error during session close in shutdown.", zap.String("session_id", s.ID()), zap.Error(err))
		}
	}

	var shutdownErr error
	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			m.logger.Error("Failed to close browser instance.", zap.Error(err))
			shutdownErr = fmt.Errorf("failed to close browser: %w", err)
		}
	}
	if err := m.pw.Stop(); err != nil {
		m.logger.Error("Failed to stop Playwright driver.", zap.Error(err))
		if shutdownErr == nil {
			shutdownErr = fmt.Errorf("failed to stop playwright driver: %w", err)
		}
	}
	return shutdownErr
}

// Session is a Playwright browser context and its single page.
type Session struct {
	id         string
	bctx       playwright.BrowserContext
	page       playwright.Page
	logger     *zap.Logger
	navTimeout time.Duration
	actTimeout time.Duration
	recording  bool
	onClose    func()

	mu       sync.Mutex
	isClosed bool
}

var _ DeviceSession = (*Session)(nil)

func (s *Session) ID() string { return s.id }

func (s *Session) Locate(loc interactor.Locator) interactor.Element {
	return &pwElement{loc: loc, locator: s.locator(loc), fallback: s.actTimeout}
}

// locator maps a strategy onto Playwright's native locators, always narrowed to the first match.
func (s *Session) locator(loc interactor.Locator) playwright.Locator {
	switch loc.Strategy {
	case interactor.StrategyRole:
		options := playwright.PageGetByRoleOptions{}
		if loc.Name != "" {
			options.Name = loc.Name
		}
		return s.page.GetByRole(playwright.AriaRole(loc.Value), options).First()
	case interactor.StrategyText:
		return s.page.GetByText(loc.Value).First()
	case interactor.StrategyLabel:
		return s.page.GetByLabel(loc.Value).First()
	case interactor.StrategyPlaceholder:
		return s.page.GetByPlaceholder(loc.Value).First()
	case interactor.StrategyID:
		return s.page.Locator(idSelector(loc.Value)).First()
	case interactor.StrategyXPath:
		return s.page.Locator("xpath=" + loc.Value).First()
	default:
		return s.page.Locator(loc.Value).First()
	}
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Debug("Navigating.", zap.String("url", url))
	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   timeoutMillis(ctx, s.navTimeout),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return fmt.Errorf("navigation to %s timed out: %w", url, err)
		}
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

func (s *Session) URL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.page.URL(), nil
}

func (s *Session) VisibleText(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.page.Locator("body").InnerText(playwright.LocatorInnerTextOptions{
		Timeout: timeoutMillis(ctx, s.actTimeout),
	})
}

func (s *Session) Screenshot(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
		Timeout:  timeoutMillis(ctx, s.actTimeout),
	})
	if err != nil {
		return fmt.Errorf("screenshot failed: %w", err)
	}
	return nil
}

// Close closes the browser context, which finalises the recorded video.
func (s *Session) Close(ctx context.Context) (Artifacts, error) {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return Artifacts{}, nil
	}
	s.isClosed = true
	s.mu.Unlock()

	if s.onClose != nil {
		defer s.onClose()
	}

	var video playwright.Video
	if s.recording {
		video = s.page.Video()
	}

	if err := s.bctx.Close(); err != nil {
		return Artifacts{}, fmt.Errorf("failed to close browser context: %w", err)
	}

	var artifacts Artifacts
	if video != nil {
		path, err := video.Path()
		if err != nil {
			return artifacts, fmt.Errorf("failed to resolve video path: %w", err)
		}
		artifacts.VideoPath = path
	}
	s.logger.Debug("Device context closed.", zap.String("video", artifacts.VideoPath))
	return artifacts, nil
}

type pwElement struct {
	loc      interactor.Locator
	locator  playwright.Locator
	fallback time.Duration
}

func (e *pwElement) WaitVisible(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.locator.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: timeoutMillis(ctx, timeout),
	})
}

func (e *pwElement) Fill(ctx context.Context, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.locator.Fill(value, playwright.LocatorFillOptions{Timeout: timeoutMillis(ctx, e.fallback)})
}

func (e *pwElement) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.locator.Click(playwright.LocatorClickOptions{Timeout: timeoutMillis(ctx, e.fallback)})
}

func (e *pwElement) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return e.locator.InnerText(playwright.LocatorInnerTextOptions{Timeout: timeoutMillis(ctx, e.fallback)})
}
