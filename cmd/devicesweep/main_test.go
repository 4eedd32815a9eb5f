// File: cmd/devicesweep/main_test.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/devicesweep/cmd"
)

// resetMocks restores the original function implementations.
func resetMocks() {
	osWriteFile = os.WriteFile
	osExit = os.Exit
	execute = cmd.Execute
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, 0},
		{"generic failure", errors.New("boom"), 1},
		{"failing outcomes", &cmd.ExitError{Code: 2, Msg: "1 failed"}, 2},
		{"wrapped exit error", fmt.Errorf("run: %w", &cmd.ExitError{Code: 2}), 2},
		{"interrupted", fmt.Errorf("sweep: %w", context.Canceled), 130},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestMain_ExitsWithCommandStatus(t *testing.T) {
	defer resetMocks()

	var code int
	osExit = func(c int) { code = c }
	execute = func(context.Context) error { return &cmd.ExitError{Code: 2} }

	main()
	assert.Equal(t, 2, code)
}

func TestHandlePanic(t *testing.T) {
	t.Run("writes the panic log", func(t *testing.T) {
		defer resetMocks()

		var written string
		var path string
		osWriteFile = func(name string, data []byte, perm os.FileMode) error {
			path, written = name, string(data)
			return nil
		}
		code := -1
		osExit = func(c int) { code = c }

		func() {
			defer handlePanic()
			panic("driver exploded")
		}()

		assert.Equal(t, 1, code)
		assert.Equal(t, panicLogFile, path)
		assert.Contains(t, written, "panic: driver exploded")
		assert.Contains(t, written, "goroutine")
	})

	t.Run("falls back to stderr when the log cannot be written", func(t *testing.T) {
		defer resetMocks()

		osWriteFile = func(string, []byte, os.FileMode) error { return errors.New("read-only fs") }
		code := -1
		osExit = func(c int) { code = c }

		func() {
			defer handlePanic()
			panic("again")
		}()
		assert.Equal(t, 1, code)
	})

	t.Run("real file", func(t *testing.T) {
		defer resetMocks()

		dir := t.TempDir()
		osWriteFile = func(name string, data []byte, perm os.FileMode) error {
			return os.WriteFile(filepath.Join(dir, name), data, perm)
		}
		osExit = func(int) {}

		func() {
			defer handlePanic()
			panic(errors.New("wrapped"))
		}()

		data, err := os.ReadFile(filepath.Join(dir, panicLogFile))
		require.NoError(t, err)
		assert.Contains(t, string(data), "panic: wrapped")
	})
}
