package tunbench

//
// Bulk transfer probe (HTTP download)
//

import (
	"context"
	"fmt"
	"time"

	"github.com/bassosimone/tunbench/optional"
)

// Defaults for the [BulkTransferProbe].
const (
	DefaultBulkSizeMB          = 500
	DefaultBulkPort            = 8080
	DefaultBulkWarmUp          = 2 * time.Second
	DefaultBulkTransferTimeout = 10 * time.Minute
)

// bulkFilePath is the file served by the remote endpoint.
const bulkFilePath = "/tmp/largefile"

// BulkTransferProbe measures the time to download a large file served
// over HTTP by the remote endpoint. The measured time is the wall clock
// of the whole download command, so it includes process startup.
type BulkTransferProbe struct {
	// SizeMB is the file size in MiB.
	SizeMB int

	// Port is the HTTP server port.
	Port int

	// TransferTimeout bounds the download.
	TransferTimeout time.Duration

	// WarmUp is the time we wait for the server to be listening.
	WarmUp time.Duration
}

func (p *BulkTransferProbe) sizeMB() int {
	if p.SizeMB <= 0 {
		return DefaultBulkSizeMB
	}
	return p.SizeMB
}

func (p *BulkTransferProbe) port() int {
	if p.Port <= 0 {
		return DefaultBulkPort
	}
	return p.Port
}

func (p *BulkTransferProbe) transferTimeout() time.Duration {
	if p.TransferTimeout <= 0 {
		return DefaultBulkTransferTimeout
	}
	return p.TransferTimeout
}

// CreateCommand returns the command creating the file.
func (p *BulkTransferProbe) CreateCommand() string {
	return fmt.Sprintf("dd if=/dev/zero of=%s bs=1M count=%d", bulkFilePath, p.sizeMB())
}

// ServeCommand returns the command serving the file in background.
func (p *BulkTransferProbe) ServeCommand() string {
	return fmt.Sprintf("nohup python3 -m http.server %d --directory /tmp >/dev/null 2>&1 &", p.port())
}

// FetchCommand returns the command downloading the file.
func (p *BulkTransferProbe) FetchCommand(address string) string {
	return fmt.Sprintf("wget -q -O /dev/null http://%s:%d/largefile", address, p.port())
}

// CleanupCommands returns the commands removing the file and stopping the server.
func (p *BulkTransferProbe) CleanupCommands() []string {
	return []string{
		"rm -f " + bulkFilePath,
		fmt.Sprintf("pkill -f 'http.server %d'", p.port()),
	}
}

// Measure serves the file on remote and downloads it from local. The
// cleanup commands always run once the file has been created.
func (p *BulkTransferProbe) Measure(ctx context.Context, env *ProbeEnv, local, remote Endpoint) optional.Value[float64] {
	if _, err := env.run(ctx, remote.Name, p.CreateCommand()); err != nil {
		env.Logger.Warnf("tunbench: bulk: %s: cannot create file: %s", remote.Name, err.Error())
		return optional.None[float64]()
	}
	defer p.cleanup(ctx, env, remote)

	if _, err := env.run(ctx, remote.Name, p.ServeCommand()); err != nil {
		env.Logger.Warnf("tunbench: bulk: %s: cannot start server: %s", remote.Name, err.Error())
		return optional.None[float64]()
	}
	if err := sleepContext(ctx, p.WarmUp); err != nil {
		return optional.None[float64]()
	}

	t0 := time.Now()
	if _, err := env.runWithTimeout(ctx, p.transferTimeout(), local.Name, p.FetchCommand(remote.Address)); err != nil {
		env.Logger.Warnf("tunbench: bulk: %s: %s", local.Name, err.Error())
		return optional.None[float64]()
	}
	return optional.Some(time.Since(t0).Seconds())
}

// cleanup removes the file and stops the server ignoring errors.
func (p *BulkTransferProbe) cleanup(ctx context.Context, env *ProbeEnv, remote Endpoint) {
	// use a fresh context so we clean up also when ctx is done
	ctx = context.WithoutCancel(ctx)
	for _, cmdline := range p.CleanupCommands() {
		if _, err := env.run(ctx, remote.Name, cmdline); err != nil {
			env.Logger.Debugf("tunbench: bulk: %s: %s: %s", remote.Name, cmdline, err.Error())
		}
	}
}
