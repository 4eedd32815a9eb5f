// internal/browser/session.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/devicesweep/internal/config"
	"github.com/xkilldash9x/devicesweep/internal/device"
	"github.com/xkilldash9x/devicesweep/internal/interactor"
)

// ChromeManager drives Chromium over CDP with chromedp. Each device gets its
// own browser context in a single shared browser process. It cannot record video.
type ChromeManager struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	initOnce sync.Once
	initErr  error
}

var _ Driver = (*ChromeManager)(nil)

// NewChromeManager creates a chromedp driver. The browser is launched by Start.
func NewChromeManager(cfg config.BrowserConfig, logger *zap.Logger) *ChromeManager {
	return &ChromeManager{cfg: cfg, logger: logger.Named("chromedp")}
}

func (m *ChromeManager) Name() string        { return "chromedp" }
func (m *ChromeManager) SupportsVideo() bool { return false }

// allocatorOptions merges the configured flags onto chromedp's defaults.
func (m *ChromeManager) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if !m.cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if m.cfg.ExecutablePath != "" {
		opts = append(opts, chromedp.ExecPath(m.cfg.ExecutablePath))
	}
	for _, arg := range m.cfg.Args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if name == "" {
			continue
		}
		if hasValue {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}
	return opts
}

// Start launches the browser process. The browser lives on a background
// context so it outlives the caller's ctx; Shutdown ends it.
func (m *ChromeManager) Start(ctx context.Context) error {
	m.initOnce.Do(func() {
		m.logger.Info("Launching Chromium over CDP...")
		allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), m.allocatorOptions()...)
		browserCtx, browserCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(m.logger.Sugar().Debugf))

		timeout := m.cfg.LaunchTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		launchCtx, launchCancel := context.WithTimeout(ctx, timeout)
		defer launchCancel()

		// The first Run starts the process; it cannot take a deadline without
		// binding the browser's lifetime to it, so it is raced instead.
		launched := make(chan error, 1)
		go func() { launched <- chromedp.Run(browserCtx) }()

		select {
		case err := <-launched:
			if err != nil {
				browserCancel()
				allocCancel()
				m.initErr = fmt.Errorf("failed to launch browser instance: %w", err)
				return
			}
		case <-launchCtx.Done():
			browserCancel()
			allocCancel()
			m.initErr = fmt.Errorf("timeout waiting for browser launch: %w", launchCtx.Err())
			return
		}

		m.allocCancel = allocCancel
		m.browserCtx = browserCtx
		m.browserCancel = browserCancel
		m.logger.Info("Browser launched.")
	})
	return m.initErr
}

// NewDevice opens a tab in a fresh browser context and applies the device emulation.
func (m *ChromeManager) NewDevice(ctx context.Context, profile device.Profile, opts DeviceOptions) (DeviceSession, error) {
	if err := m.Start(ctx); err != nil {
		return nil, err
	}
	if opts.VideoDir != "" {
		m.logger.Debug("Video recording is not available with chromedp; ignoring.", zap.String("device", profile.Name))
	}

	tabCtx, tabCancel := chromedp.NewContext(m.browserCtx, chromedp.WithNewBrowserContext())
	s := &ChromeSession{
		id:         uuid.NewString(),
		ctx:        tabCtx,
		cancel:     tabCancel,
		navTimeout: opts.NavigationTimeout,
	}
	s.logger = m.logger.With(zap.String("session_id", s.id), zap.String("device", profile.Name))

	if err := s.run(ctx, emulationTasks(profile)); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to apply device emulation for %s: %w", profile.Name, err)
	}
	s.logger.Debug("Device tab opened.")
	return s, nil
}

func emulationTasks(profile device.Profile) chromedp.Tasks {
	tasks := chromedp.Tasks{chromedp.Emulate(profile.Info())}
	if profile.Locale != "" {
		tasks = append(tasks, emulation.SetLocaleOverride().WithLocale(profile.Locale))
	}
	if profile.Timezone != "" {
		tasks = append(tasks, emulation.SetTimezoneOverride(profile.Timezone))
	}
	return tasks
}

// Shutdown closes the browser process.
func (m *ChromeManager) Shutdown(ctx context.Context) error {
	if m.browserCtx == nil {
		return nil
	}
	m.logger.Info("Shutting down browser.")

	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(m.browserCtx) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = fmt.Errorf("timeout closing browser: %w", ctx.Err())
	}
	m.browserCancel()
	m.allocCancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// ChromeSession is one chromedp tab emulating a device.
type ChromeSession struct {
	id         string
	ctx        context.Context
	cancel     context.CancelFunc
	logger     *zap.Logger
	navTimeout time.Duration

	mu       sync.Mutex
	isClosed bool
}

var _ DeviceSession = (*ChromeSession)(nil)

func (s *ChromeSession) ID() string { return s.id }

// run executes actions on the tab, bounded by the operational ctx.
func (s *ChromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	combined, cancel := CombineContext(s.ctx, ctx)
	defer cancel()

	err := chromedp.Run(combined, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *ChromeSession) Navigate(ctx context.Context, url string) error {
	timeout := s.navTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	navCtx, navCancel := context.WithTimeout(ctx, timeout)
	defer navCancel()

	s.logger.Debug("Navigating.", zap.String("url", url))
	if err := s.run(navCtx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		if errors.Is(navCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("navigation to %s timed out after %v: %w", url, timeout, err)
		}
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

func (s *ChromeSession) URL(ctx context.Context) (string, error) {
	var url string
	if err := s.run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

const visibleTextScript = `document.body ? document.body.innerText : ""`

func (s *ChromeSession) VisibleText(ctx context.Context) (string, error) {
	var text string
	if err := s.run(ctx, chromedp.Evaluate(visibleTextScript, &text)); err != nil {
		return "", err
	}
	return text, nil
}

func (s *ChromeSession) Screenshot(ctx context.Context, path string) error {
	var buf []byte
	// Quality 100 makes FullScreenshot encode PNG.
	if err := s.run(ctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return fmt.Errorf("screenshot failed: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("failed to write screenshot: %w", err)
	}
	return nil
}

func (s *ChromeSession) Locate(loc interactor.Locator) interactor.Element {
	sel, by := chromeSelector(loc)
	return &cdpElement{s: s, loc: loc, sel: sel, by: by}
}

// Close closes the tab and its browser context.
func (s *ChromeSession) Close(ctx context.Context) (Artifacts, error) {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return Artifacts{}, nil
	}
	s.isClosed = true
	s.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(s.ctx) }()

	select {
	case err := <-done:
		s.cancel()
		if err != nil && !errors.Is(err, context.Canceled) {
			return Artifacts{}, fmt.Errorf("failed to close tab: %w", err)
		}
	case <-ctx.Done():
		s.cancel()
		return Artifacts{}, fmt.Errorf("timeout closing tab: %w", ctx.Err())
	}
	s.logger.Debug("Device tab closed.")
	return Artifacts{}, nil
}

type cdpElement struct {
	s   *ChromeSession
	loc interactor.Locator
	sel string
	by  chromedp.QueryOption
}

func (e *cdpElement) WaitVisible(ctx context.Context, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := e.s.run(waitCtx, chromedp.WaitVisible(e.sel, e.by)); err != nil {
		return fmt.Errorf("%s not visible: %w", e.loc, err)
	}
	return nil
}

func (e *cdpElement) Fill(ctx context.Context, value string) error {
	actions := []chromedp.Action{chromedp.Clear(e.sel, e.by)}
	if value != "" {
		actions = append(actions, chromedp.SendKeys(e.sel, value, e.by))
	}
	return e.s.run(ctx, actions...)
}

func (e *cdpElement) Click(ctx context.Context) error {
	return e.s.run(ctx, chromedp.Click(e.sel, e.by, chromedp.NodeVisible))
}

func (e *cdpElement) Text(ctx context.Context) (string, error) {
	var text string
	if err := e.s.run(ctx, chromedp.Text(e.sel, &text, e.by)); err != nil {
		return "", err
	}
	return text, nil
}
