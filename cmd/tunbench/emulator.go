package main

//
// Helpers to switch between dry runs and real runs
//

import (
	"time"

	"github.com/apex/log"
	"github.com/bassosimone/tunbench"
)

// newShell returns the shell to use. When dryRun is true the shell
// only logs the commands.
func newShell(dryRun bool) tunbench.Shell {
	switch dryRun {
	case true:
		return &tunbench.NopShell{Logger: log.Log}
	default:
		return &tunbench.LinuxShell{Logger: log.Log}
	}
}

// newEmulator creates the emulator and the executor running commands
// inside the emulated nodes.
//
// Arguments:
//
// - dryRun is true when we should only log commands;
//
// - prefix is the namespace and device prefix.
func newEmulator(dryRun bool, prefix string) (*tunbench.NetnsEmulator, tunbench.Executor, error) {
	sh := newShell(dryRun)
	emulator, err := tunbench.NewNetnsEmulator(log.Log, sh, prefix)
	if err != nil {
		return nil, nil, err
	}
	executor := &tunbench.NetnsExecutor{
		Prefix: prefix,
		Shell:  sh,
	}
	return emulator, executor, nil
}

// newDaemons returns the daemon control running on top of the executor.
func newDaemons(executor tunbench.Executor, callTimeout time.Duration) tunbench.DaemonControl {
	return &tunbench.ShellDaemonControl{
		CallTimeout: callTimeout,
		Executor:    executor,
		Logger:      log.Log,
	}
}
