// internal/reporting/helpers_test.go
package reporting_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/devicesweep/internal/results"
)

const testToolVersion = "v1.0.0-test"

// MockWriteCloser allows capturing output and simulating I/O errors.
type MockWriteCloser struct {
	Buffer    *bytes.Buffer
	FailWrite bool
	FailClose bool
	Closed    bool
}

// Write writes to the internal buffer, simulating a write error if configured.
func (m *MockWriteCloser) Write(p []byte) (n int, err error) {
	if m.FailWrite {
		return 0, errors.New("simulated write error")
	}
	return m.Buffer.Write(p)
}

// Close simulates a closing error if configured.
func (m *MockWriteCloser) Close() error {
	m.Closed = true
	if m.FailClose {
		return errors.New("simulated close error")
	}
	return nil
}

func newMockWriter() *MockWriteCloser {
	return &MockWriteCloser{Buffer: new(bytes.Buffer)}
}

var sweepStart = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

// sampleResults builds a sweep over three devices: one clean, one with a
// failure and an error, one that never opened.
func sampleResults(t *testing.T) *results.Results {
	t.Helper()
	res := results.New(results.Run{
		ID:        "run-7",
		Driver:    "playwright",
		Target:    "https://mint.example.com/signup",
		StartedAt: sweepStart,
	})

	outcomes := []results.TestOutcome{
		{DeviceID: "iphone-x", ScenarioID: "invalid_email", Status: results.StatusPass, Message: "expected error shown: enter a valid email", Kind: "error_text"},
		{DeviceID: "iphone-x", ScenarioID: "valid_email", Status: results.StatusPass, Message: "redirected to https://mint.example.com/passport/42", Kind: "redirected"},
		{DeviceID: "pixel-2", ScenarioID: "invalid_email", Status: results.StatusFail, Message: "expected an error, page redirected", Kind: "redirected", Screenshot: "output/screenshots/pixel-2-invalid_email.png"},
		{DeviceID: "pixel-2", ScenarioID: "valid_email", Status: results.StatusError, Message: `step "email": no candidate matched`},
	}
	for _, o := range outcomes {
		o.StartedAt = sweepStart
		o.Duration = 2 * time.Second
		require.NoError(t, res.Record(o))
	}
	res.RecordDeviceError("galaxy-fold", assert.AnError)
	res.Finish(sweepStart.Add(time.Minute))
	return res
}
