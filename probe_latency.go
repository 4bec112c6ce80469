package tunbench

//
// Latency probe (ping)
//

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/bassosimone/tunbench/optional"
	"github.com/montanaflynn/stats"
)

// DefaultPingCount is the default number of echo requests.
const DefaultPingCount = 10

// LatencyProbe measures RTT, jitter and packet loss using ping.
type LatencyProbe struct {
	// Count is the number of echo requests to send.
	Count int
}

// LatencyResult is the result of a [LatencyProbe].
type LatencyResult struct {
	Avg        optional.Value[float64]
	Min        optional.Value[float64]
	Max        optional.Value[float64]
	Mdev       optional.Value[float64]
	Jitter     optional.Value[float64]
	PacketLoss optional.Value[float64]
}

var (
	// regexpPingTime matches the RTT of each reply.
	regexpPingTime = regexp.MustCompile(`time=([\d.]+) ms`)

	// regexpPingLoss matches the packet loss summary.
	regexpPingLoss = regexp.MustCompile(`([\d.]+)% packet loss`)
)

// Command returns the command line pinging the given address.
func (p *LatencyProbe) Command(address string) string {
	count := p.Count
	if count <= 0 {
		count = DefaultPingCount
	}
	return fmt.Sprintf("ping -c %d %s", count, address)
}

// Measure pings remote from local.
func (p *LatencyProbe) Measure(ctx context.Context, env *ProbeEnv, local, remote Endpoint) *LatencyResult {
	output, err := env.run(ctx, local.Name, p.Command(remote.Address))
	if err != nil && output == "" {
		env.Logger.Warnf("tunbench: latency: %s: %s", local.Name, err.Error())
		return ParseLatency("")
	}
	// ping exits with nonzero status on losses but the output is still good
	result := ParseLatency(output)
	if result.Avg.Empty() {
		env.Logger.Warnf("tunbench: latency: %s: no RTT samples in output: %q", local.Name, output)
	}
	return result
}

// ParseLatency parses the ping output and computes the statistics.
func ParseLatency(output string) *LatencyResult {
	var samples []float64
	for _, m := range regexpPingTime.FindAllStringSubmatch(output, -1) {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			samples = append(samples, v)
		}
	}
	result := ComputeLatencyStats(samples)
	if m := regexpPingLoss.FindStringSubmatch(output); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			result.PacketLoss = optional.Some(v)
		}
	}
	return result
}

// ComputeLatencyStats computes avg, min, max, population standard
// deviation and jitter of the RTT samples. With no samples all fields are
// empty; with a single sample the jitter is empty.
func ComputeLatencyStats(samples []float64) *LatencyResult {
	none := optional.None[float64]()
	result := &LatencyResult{
		Avg:        none,
		Min:        none,
		Max:        none,
		Mdev:       none,
		Jitter:     none,
		PacketLoss: none,
	}
	if len(samples) <= 0 {
		return result
	}
	data := stats.Float64Data(samples)
	result.Avg = optionalStat(data.Mean())
	result.Min = optionalStat(data.Min())
	result.Max = optionalStat(data.Max())
	result.Mdev = optionalStat(data.StandardDeviationPopulation())
	if len(samples) >= 2 {
		diffs := make(stats.Float64Data, 0, len(samples)-1)
		for idx := 1; idx < len(samples); idx++ {
			d := samples[idx] - samples[idx-1]
			if d < 0 {
				d = -d
			}
			diffs = append(diffs, d)
		}
		result.Jitter = optionalStat(diffs.Mean())
	}
	return result
}

// optionalStat converts a stats result into an optional value.
func optionalStat(value float64, err error) optional.Value[float64] {
	if err != nil {
		return optional.None[float64]()
	}
	return optional.Some(value)
}
