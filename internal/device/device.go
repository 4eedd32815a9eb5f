// internal/device/device.go
package device

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/chromedp/chromedp"
	cdpdevice "github.com/chromedp/chromedp/device"

	"github.com/xkilldash9x/devicesweep/internal/artifacts"
	"github.com/xkilldash9x/devicesweep/internal/config"
)

// ErrUnknownDevice is returned when a configured builtin name has no catalog entry.
var ErrUnknownDevice = errors.New("unknown device")

// Profile holds the emulation parameters that make a browser context behave
// like a given phone or tablet. It is a plain value object.
type Profile struct {
	Name        string  `json:"name"`
	UserAgent   string  `json:"userAgent"`
	Width       int64   `json:"width"`
	Height      int64   `json:"height"`
	ScaleFactor float64 `json:"scaleFactor"`
	Mobile      bool    `json:"mobile"`
	Touch       bool    `json:"touch"`
	Landscape   bool    `json:"landscape"`
	Locale      string  `json:"locale,omitempty"`
	Timezone    string  `json:"timezone,omitempty"`
}

// Info converts the profile for chromedp.Emulate.
func (p Profile) Info() cdpdevice.Info {
	return cdpdevice.Info{
		Name:      p.Name,
		UserAgent: p.UserAgent,
		Width:     p.Width,
		Height:    p.Height,
		Scale:     p.ScaleFactor,
		Landscape: p.Landscape,
		Mobile:    p.Mobile,
		Touch:     p.Touch,
	}
}

// Slug is the filesystem and results-key friendly form of the device name.
func (p Profile) Slug() string { return Slugify(p.Name) }

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases s and collapses runs of other characters into "-".
func Slugify(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

// catalog is keyed by Slugify(name) so lookups are case and punctuation insensitive.
var catalog = map[string]chromedp.Device{}

func init() {
	for _, d := range []chromedp.Device{
		cdpdevice.IPhoneSE,
		cdpdevice.IPhone7,
		cdpdevice.IPhone8,
		cdpdevice.IPhone8Plus,
		cdpdevice.IPhoneX,
		cdpdevice.IPhoneXR,
		cdpdevice.IPhone11,
		cdpdevice.IPhone11Pro,
		cdpdevice.IPad,
		cdpdevice.IPadMini,
		cdpdevice.IPadPro,
		cdpdevice.Pixel2,
		cdpdevice.Pixel2XL,
		cdpdevice.GalaxyS5,
		cdpdevice.GalaxyS8,
		cdpdevice.GalaxyS9,
		cdpdevice.Nexus5,
		cdpdevice.Nexus7,
	} {
		catalog[Slugify(d.Device().Name)] = d
	}
}

// Builtin returns the catalog profile with the given name.
func Builtin(name string) (Profile, error) {
	d, ok := catalog[Slugify(name)]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownDevice, name)
	}
	info := d.Device()
	return Profile{
		Name:        info.Name,
		UserAgent:   info.UserAgent,
		Width:       info.Width,
		Height:      info.Height,
		ScaleFactor: info.Scale,
		Mobile:      info.Mobile,
		Touch:       info.Touch,
		Landscape:   info.Landscape,
	}, nil
}

// BuiltinNames lists the catalog in sorted order.
func BuiltinNames() []string {
	names := make([]string, 0, len(catalog))
	for _, d := range catalog {
		names = append(names, d.Device().Name)
	}
	sort.Strings(names)
	return names
}

// FromConfig resolves one configured device. Fields set in cfg override the
// builtin it names.
func FromConfig(cfg config.DeviceConfig) (Profile, error) {
	var p Profile
	if cfg.Builtin != "" {
		b, err := Builtin(cfg.Builtin)
		if err != nil {
			return Profile{}, err
		}
		p = b
	}
	if cfg.Name != "" {
		p.Name = cfg.Name
	}
	if cfg.UserAgent != "" {
		p.UserAgent = cfg.UserAgent
	}
	if cfg.Width > 0 {
		p.Width = cfg.Width
	}
	if cfg.Height > 0 {
		p.Height = cfg.Height
	}
	if cfg.ScaleFactor > 0 {
		p.ScaleFactor = cfg.ScaleFactor
	}
	p.Mobile = p.Mobile || cfg.Mobile
	p.Touch = p.Touch || cfg.Touch
	p.Landscape = p.Landscape || cfg.Landscape
	if cfg.Locale != "" {
		p.Locale = cfg.Locale
	}
	if cfg.Timezone != "" {
		p.Timezone = cfg.Timezone
	}

	if p.Name == "" {
		return Profile{}, fmt.Errorf("device has neither a name nor a builtin")
	}
	if p.Width <= 0 || p.Height <= 0 {
		return Profile{}, fmt.Errorf("device %q: viewport must be positive (got %dx%d)", p.Name, p.Width, p.Height)
	}
	if p.ScaleFactor <= 0 {
		p.ScaleFactor = 1
	}
	return p, nil
}

// Entry is one configured device: either a resolved profile or the reason it
// could not be resolved. Unresolvable devices are reported per device rather
// than failing the whole sweep.
type Entry struct {
	Name    string
	Profile Profile
	Err     error
}

// Resolve converts configured devices in order. Names must be unique, also
// once made safe for artifact file names.
func Resolve(cfgs []config.DeviceConfig) ([]Entry, error) {
	seen := make(map[string]struct{}, len(cfgs))
	fileNames := make(map[string]string, len(cfgs))
	entries := make([]Entry, 0, len(cfgs))
	for i, c := range cfgs {
		name := c.Name
		if name == "" {
			name = c.Builtin
		}
		if name == "" {
			return nil, fmt.Errorf("device %d has neither a name nor a builtin", i)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate device name %q", name)
		}
		seen[name] = struct{}{}
		safe := artifacts.FileKey(name)
		if other, taken := fileNames[safe]; taken {
			return nil, fmt.Errorf("device %q: %w with device %q (%s)", name, artifacts.ErrNameCollision, other, safe)
		}
		fileNames[safe] = name

		p, err := FromConfig(c)
		entries = append(entries, Entry{Name: name, Profile: p, Err: err})
	}
	return entries, nil
}

// Filter keeps the entries whose name matches one of names. An empty filter keeps everything.
func Filter(entries []Entry, names []string) []Entry {
	if len(names) == 0 {
		return entries
	}
	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[Slugify(n)] = struct{}{}
	}
	var out []Entry
	for _, e := range entries {
		if _, ok := want[Slugify(e.Name)]; ok {
			out = append(out, e)
		}
	}
	return out
}
