// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/devicesweep/internal/browser"
	"github.com/xkilldash9x/devicesweep/internal/device"
)

// -- Driver Mock --

// MockDriver mocks browser.Driver for tests that assert on calls.
type MockDriver struct {
	mock.Mock
}

var _ browser.Driver = (*MockDriver)(nil)

func (m *MockDriver) Name() string {
	return m.Called().String(0)
}

func (m *MockDriver) SupportsVideo() bool {
	return m.Called().Bool(0)
}

func (m *MockDriver) Start(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockDriver) NewDevice(ctx context.Context, profile device.Profile, opts browser.DeviceOptions) (browser.DeviceSession, error) {
	args := m.Called(ctx, profile, opts)
	if s := args.Get(0); s != nil {
		return s.(browser.DeviceSession), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDriver) Shutdown(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// -- Fake Driver --

// FakeDriver hands out FakeSessions built by NewPage. It records the order in
// which device contexts are opened and closed.
type FakeDriver struct {
	// NewPage builds the page for a device. Required.
	NewPage func(profile device.Profile) *FakePage
	// DeviceErrs fails NewDevice for the named devices.
	DeviceErrs map[string]error
	Video      bool

	mu     sync.Mutex
	seq    int
	events []string
}

var _ browser.Driver = (*FakeDriver)(nil)

func (d *FakeDriver) Name() string                   { return "fake" }
func (d *FakeDriver) SupportsVideo() bool            { return d.Video }
func (d *FakeDriver) Start(context.Context) error    { return nil }
func (d *FakeDriver) Shutdown(context.Context) error { return nil }

func (d *FakeDriver) NewDevice(ctx context.Context, profile device.Profile, opts browser.DeviceOptions) (browser.DeviceSession, error) {
	if err := d.DeviceErrs[profile.Name]; err != nil {
		d.record("fail:" + profile.Name)
		return nil, err
	}
	d.mu.Lock()
	d.seq++
	id := fmt.Sprintf("fake-%d", d.seq)
	d.mu.Unlock()

	d.record("open:" + profile.Name)
	return &FakeSession{FakePage: d.NewPage(profile), id: id, device: profile.Name, videoDir: opts.VideoDir, driver: d}, nil
}

// Events lists "open:<device>", "close:<device>" and "fail:<device>" in order.
func (d *FakeDriver) Events() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.events...)
}

func (d *FakeDriver) record(event string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
}

// FakeSession is a FakePage with a device context lifecycle.
type FakeSession struct {
	*FakePage
	id       string
	device   string
	videoDir string
	driver   *FakeDriver
}

var _ browser.DeviceSession = (*FakeSession)(nil)

func (s *FakeSession) ID() string { return s.id }

// Close writes a placeholder recording when a video directory was requested.
func (s *FakeSession) Close(ctx context.Context) (browser.Artifacts, error) {
	s.driver.record("close:" + s.device)
	if s.videoDir == "" {
		return browser.Artifacts{}, nil
	}
	path := filepath.Join(s.videoDir, s.id+".webm")
	if err := os.WriteFile(path, []byte("webm"), 0o644); err != nil {
		return browser.Artifacts{}, err
	}
	return browser.Artifacts{VideoPath: path}, nil
}
