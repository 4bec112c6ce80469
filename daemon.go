package tunbench

//
// Tunnel daemon control
//

import (
	"context"
	"fmt"
	"path"
	"time"
)

// DaemonControl is the collaborator that manages tunnel daemons on
// named endpoints.
type DaemonControl interface {
	// RemoveConfig removes a configuration file. A missing file is not an error.
	RemoveConfig(ctx context.Context, endpoint, filename string) error

	// WriteConfig replaces the content of a configuration file.
	WriteConfig(ctx context.Context, endpoint, filename, text string) error

	// StartService (re)starts a system service.
	StartService(ctx context.Context, endpoint, service string) error

	// StopService stops a system service.
	StopService(ctx context.Context, endpoint, service string) error

	// StartDial brings up a pppd peer.
	StartDial(ctx context.Context, endpoint, peer string) error

	// StopDial brings down a pppd peer.
	StopDial(ctx context.Context, endpoint, peer string) error
}

// ShellDaemonControl implements [DaemonControl] by running shell
// commands through an [Executor]. Fill the fields marked as MANDATORY.
type ShellDaemonControl struct {
	// CallTimeout is the OPTIONAL timeout of each command. When
	// zero, we use [DefaultCallTimeout].
	CallTimeout time.Duration

	// Executor is the MANDATORY executor.
	Executor Executor

	// Logger is the MANDATORY logger.
	Logger Logger
}

var _ DaemonControl = &ShellDaemonControl{}

// RemoveConfig implements DaemonControl.
func (dc *ShellDaemonControl) RemoveConfig(ctx context.Context, endpoint, filename string) error {
	return dc.run(ctx, endpoint, "rm -f "+shellQuote(filename))
}

// WriteConfig implements DaemonControl.
func (dc *ShellDaemonControl) WriteConfig(ctx context.Context, endpoint, filename, text string) error {
	cmdline := fmt.Sprintf(
		"mkdir -p %s && printf '%%s' %s > %s",
		shellQuote(path.Dir(filename)),
		shellQuote(text),
		shellQuote(filename),
	)
	return dc.run(ctx, endpoint, cmdline)
}

// StartService implements DaemonControl.
func (dc *ShellDaemonControl) StartService(ctx context.Context, endpoint, service string) error {
	return dc.run(ctx, endpoint, "service "+shellQuote(service)+" restart")
}

// StopService implements DaemonControl.
func (dc *ShellDaemonControl) StopService(ctx context.Context, endpoint, service string) error {
	return dc.run(ctx, endpoint, "service "+shellQuote(service)+" stop")
}

// StartDial implements DaemonControl.
func (dc *ShellDaemonControl) StartDial(ctx context.Context, endpoint, peer string) error {
	return dc.run(ctx, endpoint, "pon "+shellQuote(peer))
}

// StopDial implements DaemonControl.
func (dc *ShellDaemonControl) StopDial(ctx context.Context, endpoint, peer string) error {
	return dc.run(ctx, endpoint, "poff "+shellQuote(peer))
}

// run runs the command line honouring the call timeout.
func (dc *ShellDaemonControl) run(ctx context.Context, endpoint, cmdline string) error {
	timeout := dc.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	_, err := runWithTimeout(ctx, dc.Executor, timeout, endpoint, cmdline)
	if err != nil {
		dc.Logger.Warnf("tunbench: %s: %s: %s", endpoint, cmdline, err.Error())
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	return nil
}

// runWithTimeout runs a command through the executor, bounding its
// runtime when timeout is positive.
func runWithTimeout(
	ctx context.Context,
	executor Executor,
	timeout time.Duration,
	endpoint, cmdline string,
) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return executor.Run(ctx, endpoint, cmdline)
}
