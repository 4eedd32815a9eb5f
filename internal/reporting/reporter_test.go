// internal/reporting/reporter_test.go
package reporting_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/devicesweep/internal/reporting"
	"github.com/xkilldash9x/devicesweep/internal/results"
)

// TestNew_Stdout checks every format against explicit and implicit stdout.
func TestNew_Stdout(t *testing.T) {
	for _, format := range reporting.Formats {
		t.Run(format, func(t *testing.T) {
			for _, path := range []string{"stdout", ""} {
				r, err := reporting.New(format, path, testToolVersion)
				require.NoError(t, err)
				require.NotNil(t, r)
				// Close on the stdout wrapper is a no-op and nothing was written.
				assert.NoError(t, r.Close())
			}
		})
	}
}

func TestNew_SARIF_File(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "results.sarif")

	r, err := reporting.New("sarif", out, testToolVersion)
	require.NoError(t, err)

	// Created by New, parent directory included.
	_, err = os.Stat(out)
	require.NoError(t, err, "Output file should have been created")

	require.NoError(t, r.Write(sampleResults(t)))
	require.NoError(t, r.Close())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"version": "2.1.0"`)
	assert.Contains(t, string(data), "DEVICESWEEP-INVALID_EMAIL")
}

func TestNew_JSON_File(t *testing.T) {
	out := filepath.Join(t.TempDir(), "report.json")

	r, err := reporting.New("json", out, testToolVersion)
	require.NoError(t, err)
	res := sampleResults(t)
	require.NoError(t, r.Write(res))
	require.NoError(t, r.Close())

	loaded, err := results.Load(out)
	require.NoError(t, err)
	assert.Equal(t, res.Summary(), loaded.Summary())
	msg, ok := loaded.DeviceError("galaxy-fold")
	assert.True(t, ok)
	assert.Equal(t, assert.AnError.Error(), msg)
}

func TestNew_UnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "report.xml")

	r, err := reporting.New("invalid-format", out, testToolVersion)
	require.Error(t, err)
	assert.Nil(t, r)
	assert.Contains(t, err.Error(), "unsupported output format: invalid-format")

	// The format is checked before anything is created.
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestNew_UncreatableFile(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	// A regular file in the parent chain.
	r, err := reporting.New("sarif", filepath.Join(blocker, "out.sarif"), testToolVersion)
	require.Error(t, err)
	assert.Nil(t, r)
}

func TestDefaultPath(t *testing.T) {
	assert.Equal(t, filepath.Join("output", "results.sarif"), reporting.DefaultPath("sarif", "output"))
	assert.Equal(t, "stdout", reporting.DefaultPath("json", "output"))
	assert.Equal(t, "stdout", reporting.DefaultPath("text", "output"))
}

func TestJSONReporter_Errors(t *testing.T) {
	w := newMockWriter()
	w.FailWrite = true
	r := reporting.NewJSONReporter(w)
	require.NoError(t, r.Write(sampleResults(t)))
	err := r.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to encode results")
	assert.True(t, w.Closed)

	w = newMockWriter()
	w.FailClose = true
	r = reporting.NewJSONReporter(w)
	err = r.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to close output writer")
	assert.Empty(t, w.Buffer.String(), "nothing is written without results")
}
