// Package internal contains internal implementation details.
package internal

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bassosimone/tunbench"
)

// RecordingLogger is a [tunbench.Logger] that remembers the warnings
// and discards everything else.
type RecordingLogger struct {
	tunbench.NullLogger

	// mu provides mutual exclusion.
	mu sync.Mutex

	// warnings contains the formatted warnings.
	warnings []string
}

// Warn implements tunbench.Logger
func (rl *RecordingLogger) Warn(message string) {
	rl.mu.Lock()
	rl.warnings = append(rl.warnings, message)
	rl.mu.Unlock()
}

// Warnf implements tunbench.Logger
func (rl *RecordingLogger) Warnf(format string, v ...any) {
	rl.Warn(fmt.Sprintf(format, v...))
}

// Warnings returns a copy of the warnings emitted so far.
func (rl *RecordingLogger) Warnings() []string {
	defer rl.mu.Unlock()
	rl.mu.Lock()
	return append([]string{}, rl.warnings...)
}

var _ tunbench.Logger = &RecordingLogger{}

// FakeExecutor is a [tunbench.Executor] returning canned outputs. The
// zero value is ready to use.
type FakeExecutor struct {
	// Outputs maps a command line prefix to its output.
	Outputs map[string]string

	// Errors maps a command line prefix to the error to return.
	Errors map[string]error

	// mu provides mutual exclusion.
	mu sync.Mutex

	// calls contains "endpoint: cmdline" for each call.
	calls []string
}

// Run implements tunbench.Executor
func (fe *FakeExecutor) Run(ctx context.Context, endpoint, cmdline string) (string, error) {
	fe.mu.Lock()
	fe.calls = append(fe.calls, endpoint+": "+cmdline)
	fe.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	for prefix, err := range fe.Errors {
		if strings.HasPrefix(cmdline, prefix) {
			return "", err
		}
	}
	for prefix, output := range fe.Outputs {
		if strings.HasPrefix(cmdline, prefix) {
			return output, nil
		}
	}
	return "", nil
}

// Calls returns a copy of the calls made so far.
func (fe *FakeExecutor) Calls() []string {
	defer fe.mu.Unlock()
	fe.mu.Lock()
	return append([]string{}, fe.calls...)
}

var _ tunbench.Executor = &FakeExecutor{}
