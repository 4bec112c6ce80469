package tunbench

//
// Throughput probe (iperf3)
//

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bassosimone/tunbench/optional"
)

// Defaults for the [ThroughputProbe].
const (
	DefaultIperfDuration = 10 * time.Second
	DefaultIperfPort     = 5201
	DefaultIperfWarmUp   = 2 * time.Second
)

// ThroughputProbe measures the TCP sender rate using iperf3.
type ThroughputProbe struct {
	// Duration is the duration of the client transfer.
	Duration time.Duration

	// Port is the iperf3 server port.
	Port int

	// WarmUp is the time we wait for the server to be listening.
	WarmUp time.Duration
}

// regexpIperfRate matches the rate in an iperf3 summary line.
var regexpIperfRate = regexp.MustCompile(`([\d.]+)\s+([KMG]?)bits/sec`)

// port returns the port to use.
func (p *ThroughputProbe) port() int {
	if p.Port <= 0 {
		return DefaultIperfPort
	}
	return p.Port
}

// duration returns the duration to use.
func (p *ThroughputProbe) duration() time.Duration {
	if p.Duration <= 0 {
		return DefaultIperfDuration
	}
	return p.Duration
}

// ServerCommand returns the command starting a one-shot server.
func (p *ThroughputProbe) ServerCommand() string {
	return fmt.Sprintf("iperf3 -s -1 -D -p %d", p.port())
}

// StopServerCommand returns the command stopping a leftover server.
func (p *ThroughputProbe) StopServerCommand() string {
	return fmt.Sprintf("pkill -f '%s'", p.ServerCommand())
}

// ClientCommand returns the command running the timed client transfer.
func (p *ThroughputProbe) ClientCommand(address string) string {
	seconds := int(p.duration().Round(time.Second) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return fmt.Sprintf("iperf3 -c %s -p %d -t %d", address, p.port(), seconds)
}

// Measure runs the iperf3 server on remote and the client on local. The
// server exits after serving one client, so we only stop it when the
// client did not run to completion.
func (p *ThroughputProbe) Measure(ctx context.Context, env *ProbeEnv, local, remote Endpoint) optional.Value[float64] {
	if _, err := env.run(ctx, remote.Name, p.ServerCommand()); err != nil {
		env.Logger.Warnf("tunbench: throughput: %s: cannot start server: %s", remote.Name, err.Error())
		return optional.None[float64]()
	}
	if err := sleepContext(ctx, p.WarmUp); err != nil {
		p.stopServer(ctx, env, remote)
		return optional.None[float64]()
	}
	output, err := env.runWithTimeout(ctx, env.callTimeout()+p.duration(), local.Name, p.ClientCommand(remote.Address))
	if err != nil {
		env.Logger.Warnf("tunbench: throughput: %s: %s", local.Name, err.Error())
		p.stopServer(ctx, env, remote)
		return optional.None[float64]()
	}
	value := ParseThroughput(output)
	if value.Empty() {
		env.Logger.Warnf("tunbench: throughput: %s: cannot parse output: %q", local.Name, output)
	}
	return value
}

// stopServer stops the server ignoring errors.
func (p *ThroughputProbe) stopServer(ctx context.Context, env *ProbeEnv, remote Endpoint) {
	// use a fresh context so we clean up also when ctx is done
	ctx = context.WithoutCancel(ctx)
	if _, err := env.run(ctx, remote.Name, p.StopServerCommand()); err != nil {
		env.Logger.Debugf("tunbench: throughput: %s: %s", remote.Name, err.Error())
	}
}

// ParseThroughput extracts the sender rate in Mbit/s from iperf3 output.
func ParseThroughput(output string) optional.Value[float64] {
	for _, line := range strings.Split(output, "\n") {
		if !strings.Contains(strings.ToLower(line), "sender") {
			continue
		}
		m := regexpIperfRate.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		value, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		return optional.Some(NormalizeThroughput(value, m[2]+"bits/sec"))
	}
	return optional.None[float64]()
}

// NormalizeThroughput converts a rate with the given unit to Mbit/s.
func NormalizeThroughput(value float64, unit string) float64 {
	switch unit {
	case "Gbits/sec":
		return value * 1000
	case "Kbits/sec":
		return value / 1000
	case "bits/sec":
		return value / 1e06
	default:
		return value
	}
}
