package tunbench

//
// Shell used to drive system utilities
//

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/google/shlex"
)

// Shell runs system commands on behalf of the emulator.
type Shell interface {
	// Run splits the command line and runs it.
	Run(ctx context.Context, cmdline string) error

	// Runv runs the given argv.
	Runv(ctx context.Context, argv []string) error

	// Outputv runs the given argv and returns its combined output.
	Outputv(ctx context.Context, argv []string) (string, error)
}

// ErrNoCommandToExecute means that the command line is empty.
var ErrNoCommandToExecute = errors.New("tunbench: no command to execute")

// ShellRunf formats a command line and runs it.
func ShellRunf(ctx context.Context, sh Shell, format string, v ...any) error {
	return sh.Run(ctx, fmt.Sprintf(format, v...))
}

// LinuxShell is the [Shell] executing commands on the host. The
// zero value is invalid; fill the fields marked as MANDATORY.
type LinuxShell struct {
	// Logger is the MANDATORY logger.
	Logger Logger
}

var _ Shell = &LinuxShell{}

// Run implements Shell.
func (sh *LinuxShell) Run(ctx context.Context, cmdline string) error {
	argv, err := shlex.Split(cmdline)
	if err != nil {
		return err
	}
	return sh.Runv(ctx, argv)
}

// Runv implements Shell.
func (sh *LinuxShell) Runv(ctx context.Context, argv []string) error {
	_, err := sh.Outputv(ctx, argv)
	return err
}

// Outputv implements Shell.
func (sh *LinuxShell) Outputv(ctx context.Context, argv []string) (string, error) {
	if len(argv) < 1 {
		return "", ErrNoCommandToExecute
	}
	sh.Logger.Debugf("+ %s", quotedCommandLine(argv))
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(buf.String()); msg != "" {
			return buf.String(), fmt.Errorf("%s: %s", err.Error(), msg)
		}
		return buf.String(), err
	}
	return buf.String(), nil
}

// NopShell is a [Shell] that only logs the commands it would run,
// which is useful for dry runs.
type NopShell struct {
	// Logger is the MANDATORY logger.
	Logger Logger
}

var _ Shell = &NopShell{}

// Run implements Shell.
func (sh *NopShell) Run(ctx context.Context, cmdline string) error {
	argv, err := shlex.Split(cmdline)
	if err != nil {
		return err
	}
	return sh.Runv(ctx, argv)
}

// Runv implements Shell.
func (sh *NopShell) Runv(ctx context.Context, argv []string) error {
	_, err := sh.Outputv(ctx, argv)
	return err
}

// Outputv implements Shell.
func (sh *NopShell) Outputv(ctx context.Context, argv []string) (string, error) {
	if len(argv) < 1 {
		return "", ErrNoCommandToExecute
	}
	sh.Logger.Infof("+ %s", quotedCommandLine(argv))
	return "", nil
}

// quotedCommandLine returns a printable command line.
func quotedCommandLine(argv []string) string {
	v := make([]string, 0, len(argv))
	for _, a := range argv {
		v = append(v, maybeQuoteArg(a))
	}
	return strings.Join(v, " ")
}

// maybeQuoteArg quotes a command line argument if needed.
func maybeQuoteArg(a string) string {
	if a == "" || strings.ContainsAny(a, " \t\n'\"$&|;<>*?()`\\") {
		return shellQuote(a)
	}
	return a
}

// shellQuote quotes a string for POSIX sh using single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
