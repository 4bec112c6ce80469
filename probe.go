package tunbench

//
// Shared probe environment
//

import (
	"context"
	"time"
)

// DefaultCallTimeout is the default timeout of each external call.
const DefaultCallTimeout = 60 * time.Second

// ProbeEnv contains what probes need to reach the endpoints. Fill the
// fields marked as MANDATORY.
type ProbeEnv struct {
	// CallTimeout is the OPTIONAL timeout of each external call. When
	// zero, we use [DefaultCallTimeout].
	CallTimeout time.Duration

	// Executor is the MANDATORY executor.
	Executor Executor

	// Logger is the MANDATORY logger.
	Logger Logger
}

// callTimeout returns the timeout to use for each call.
func (env *ProbeEnv) callTimeout() time.Duration {
	if env.CallTimeout <= 0 {
		return DefaultCallTimeout
	}
	return env.CallTimeout
}

// run runs a command on the endpoint bounded by the call timeout.
func (env *ProbeEnv) run(ctx context.Context, endpoint, cmdline string) (string, error) {
	return env.runWithTimeout(ctx, env.callTimeout(), endpoint, cmdline)
}

// runWithTimeout runs a command on the endpoint bounded by timeout.
func (env *ProbeEnv) runWithTimeout(ctx context.Context, timeout time.Duration, endpoint, cmdline string) (string, error) {
	env.Logger.Debugf("tunbench: %s: + %s", endpoint, cmdline)
	return runWithTimeout(ctx, env.Executor, timeout, endpoint, cmdline)
}
