// internal/artifacts/artifacts_test.go
package artifacts

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeName(t *testing.T) {
	assert.Equal(t, "iPhone_X", SafeName("iPhone X"))
	assert.Equal(t, "invalid_email", SafeName("invalid_email"))
	assert.Equal(t, "a_b", SafeName("a/../b"))
	assert.Equal(t, "unnamed", SafeName("  "))
	assert.Equal(t, "unnamed", SafeName("../"))
}

func TestScreenshotPath(t *testing.T) {
	l := Layout{ScreenshotDir: "out/screenshots"}
	assert.Equal(t, filepath.Join("out/screenshots", "pixel-2-invalid_email.png"), l.ScreenshotPath("pixel-2", "invalid_email"))
	assert.Equal(t, filepath.Join("out/screenshots", "Galaxy_S5-empty.png"), l.ScreenshotPath("Galaxy S5", "empty"))
}

func TestCheckNames(t *testing.T) {
	assert.NoError(t, CheckNames([]string{"iphone-x", "Pixel 2"}, []string{"invalid_email", "empty"}))

	err := CheckNames([]string{"pixel", "pixel-2"}, []string{"blank", "2-blank"})
	require.ErrorIs(t, err, ErrNameCollision)
	assert.Contains(t, err.Error(), "pixel-2-blank.png")
	assert.Contains(t, err.Error(), "pixel/2-blank")
	assert.Contains(t, err.Error(), "pixel-2/blank")

	assert.ErrorIs(t, CheckNames([]string{"Galaxy S5", "Galaxy_S5"}, []string{"a"}), ErrNameCollision)
	assert.ErrorIs(t, CheckNames([]string{"pixel"}, []string{"Blank", "blank"}), ErrNameCollision, "case-insensitive filesystems")
}

func TestFileKey(t *testing.T) {
	assert.Equal(t, FileKey("iPhone X"), FileKey("iphone_x"))
	assert.NotEqual(t, FileKey("iphone-x"), FileKey("iphone_x"))
}

func TestFinalizeVideo(t *testing.T) {
	root := t.TempDir()
	l := Layout{ScreenshotDir: filepath.Join(root, "screenshots"), VideoDir: filepath.Join(root, "videos")}
	require.NoError(t, l.Prepare())

	day := time.Date(2026, 10, 19, 15, 4, 5, 0, time.UTC)
	src := filepath.Join(l.VideoDir, "3f2a9c.webm")
	require.NoError(t, os.WriteFile(src, []byte("first"), 0o644))

	dst, err := l.FinalizeVideo(src, "iphone-x", day)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(l.VideoDir, "iphone-x-2026-10-19.webm"), dst)
	assert.NoFileExists(t, src)

	// A second recording on the same day keeps the first.
	src2 := filepath.Join(l.VideoDir, "77aa01.webm")
	require.NoError(t, os.WriteFile(src2, []byte("second"), 0o644))
	dst2, err := l.FinalizeVideo(src2, "iphone-x", day)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(l.VideoDir, "iphone-x-2026-10-19-2.webm"), dst2)

	first, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "first", string(first))
}

func TestFinalizeVideo_Errors(t *testing.T) {
	l := Layout{VideoDir: t.TempDir()}
	_, err := l.FinalizeVideo("", "iphone-x", time.Now())
	assert.Error(t, err)

	_, err = l.FinalizeVideo(filepath.Join(l.VideoDir, "missing.webm"), "iphone-x", time.Now())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPrepare_SkipsEmpty(t *testing.T) {
	assert.NoError(t, Layout{}.Prepare())
}
