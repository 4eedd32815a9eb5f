// internal/browser/driver.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/devicesweep/internal/config"
	"github.com/xkilldash9x/devicesweep/internal/device"
	"github.com/xkilldash9x/devicesweep/internal/interactor"
)

// ErrUnsupported is returned for driver names that have no implementation.
var ErrUnsupported = errors.New("unsupported browser driver")

// DeviceOptions configures one device's browsing context.
type DeviceOptions struct {
	// VideoDir enables recording into this directory when the driver supports it.
	VideoDir          string
	NavigationTimeout time.Duration
	ActionTimeout     time.Duration
}

// Artifacts are produced when a device context closes.
type Artifacts struct {
	// VideoPath is the recorded video, empty when nothing was recorded.
	VideoPath string
}

// DeviceSession is one isolated browsing context emulating a single device.
type DeviceSession interface {
	interactor.Page
	ID() string
	// Close releases the context. Recorded video is only complete after Close returns.
	Close(ctx context.Context) (Artifacts, error)
}

// Driver owns a browser process and hands out per-device contexts.
type Driver interface {
	Name() string
	SupportsVideo() bool
	Start(ctx context.Context) error
	NewDevice(ctx context.Context, profile device.Profile, opts DeviceOptions) (DeviceSession, error)
	Shutdown(ctx context.Context) error
}

// NewDriver selects the driver named in cfg.
func NewDriver(cfg config.BrowserConfig, logger *zap.Logger) (Driver, error) {
	switch cfg.Driver {
	case "", "playwright":
		return NewManager(cfg, logger), nil
	case "chromedp":
		return NewChromeManager(cfg, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, cfg.Driver)
	}
}

// timeoutMillis converts the tighter of ctx's remaining time and fallback into
// the float milliseconds playwright expects. nil leaves playwright's default in place.
func timeoutMillis(ctx context.Context, fallback time.Duration) *float64 {
	d := fallback
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); d <= 0 || remaining < d {
			d = remaining
		}
		if d < time.Millisecond {
			d = time.Millisecond
		}
	} else if d <= 0 {
		return nil
	}
	ms := float64(d.Milliseconds())
	return &ms
}
