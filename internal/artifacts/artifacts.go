// internal/artifacts/artifacts.go
package artifacts

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// ErrNameCollision reports two names that map to the same artifact file.
var ErrNameCollision = errors.New("artifact file name collides")

// DateLayout is the date stamp used in video file names.
const DateLayout = "2006-01-02"

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// SafeName makes s usable as a single path element.
func SafeName(s string) string {
	s = strings.Trim(unsafeName.ReplaceAllString(strings.TrimSpace(s), "_"), "_")
	if s == "" {
		return "unnamed"
	}
	return s
}

// FileKey is SafeName folded to lower case. Names with equal keys share files
// on case-insensitive filesystems.
func FileKey(s string) string {
	return strings.ToLower(SafeName(s))
}

// Layout names and places screenshots and videos under a root directory.
type Layout struct {
	ScreenshotDir string
	VideoDir      string
}

// Prepare creates both directories.
func (l Layout) Prepare() error {
	for _, dir := range []string{l.ScreenshotDir, l.VideoDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create artifact directory %s: %w", dir, err)
		}
	}
	return nil
}

// ScreenshotPath is {device}-{scenario}.png.
func (l Layout) ScreenshotPath(device, scenario string) string {
	return filepath.Join(l.ScreenshotDir, SafeName(device)+"-"+SafeName(scenario)+".png")
}

// CheckNames reports the first pair of (device, scenario) combinations whose
// screenshots would share a file, such as a-b/c and a/b-c.
func CheckNames(devices, scenarios []string) error {
	owners := make(map[string]string, len(devices)*len(scenarios))
	for _, d := range devices {
		for _, sc := range scenarios {
			name := SafeName(d) + "-" + SafeName(sc)
			key := strings.ToLower(name)
			pair := d + "/" + sc
			if other, taken := owners[key]; taken {
				return fmt.Errorf("%w: %s and %s both write %s.png", ErrNameCollision, other, pair, name)
			}
			owners[key] = pair
		}
	}
	return nil
}

// VideoPath is {device}-{date}.webm. When that name is taken a numeric
// suffix keeps earlier recordings from the same day.
func (l Layout) VideoPath(device string, at time.Time) string {
	base := SafeName(device) + "-" + at.Format(DateLayout)
	path := filepath.Join(l.VideoDir, base+".webm")
	for n := 2; exists(path); n++ {
		path = filepath.Join(l.VideoDir, fmt.Sprintf("%s-%d.webm", base, n))
	}
	return path
}

// FinalizeVideo moves a recording written under a driver-chosen name to its
// {device}-{date}.webm name and returns the new path.
func (l Layout) FinalizeVideo(src, device string, at time.Time) (string, error) {
	if src == "" {
		return "", errors.New("no recording to finalize")
	}
	if _, err := os.Stat(src); err != nil {
		return "", fmt.Errorf("recording not found: %w", err)
	}
	if err := os.MkdirAll(l.VideoDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create video directory: %w", err)
	}
	dst := l.VideoPath(device, at)
	if err := move(src, dst); err != nil {
		return "", fmt.Errorf("failed to move recording %s: %w", src, err)
	}
	return dst, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// move renames src to dst, falling back to copy and delete across devices.
func move(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	in.Close()
	return os.Remove(src)
}
