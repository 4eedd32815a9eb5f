// File: cmd/devicesweep/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/xkilldash9x/devicesweep/cmd"
	"github.com/xkilldash9x/devicesweep/internal/observability"
)

const panicLogFile = "panic.log"

// Function variables for mocking in tests.
var (
	osWriteFile = os.WriteFile
	osExit      = os.Exit
	execute     = cmd.Execute
)

// main is the entry point of the application.
func main() {
	defer handlePanic()

	// SIGINT/SIGTERM cancel the sweep; the current device context is still closed
	// and partial results are saved.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	code := exitCode(execute(ctx))
	observability.Sync()
	if code != 0 {
		osExit(code)
	}
}

// exitCode maps a command error onto the process status: 2 for a sweep that
// ran but did not pass under --fail-on-failure, 130 for an interrupted sweep,
// 1 for everything else.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *cmd.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if errors.Is(err, context.Canceled) {
		return 130
	}
	return 1
}

// handlePanic writes the panic and its stack to panic.log and exits non-zero.
func handlePanic() {
	if r := recover(); r != nil {
		// Ensure logs are flushed before proceeding.
		observability.Sync()

		stackTrace := debug.Stack()
		panicMessage := fmt.Sprintf("panic: %v\n\n%s", r, stackTrace)

		if err := osWriteFile(panicLogFile, []byte(panicMessage), 0o644); err != nil {
			// If logging fails, print to stderr as a fallback.
			fmt.Fprintf(os.Stderr, "CRITICAL: Failed to write panic log: %v\n", err)
			fmt.Fprintf(os.Stderr, "Panic details:\n%s\n", panicMessage)
			osExit(1)
			return // Return facilitates testing when osExit is mocked.
		}

		fmt.Fprintf(os.Stderr, "\ndevicesweep crashed: %v\nDetails logged to %s\n", r, panicLogFile)
		osExit(1)
	}
}
