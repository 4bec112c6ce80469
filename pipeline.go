package tunbench

//
// Measurement pipeline
//

import "context"

// Pipeline runs the probes in a fixed order against a tunnel session.
// The zero value is invalid; fill the fields marked as MANDATORY.
//
// Probes run sequentially because the throughput and bulk transfer
// probes both install transient servers on the remote endpoint.
type Pipeline struct {
	// Bulk is the MANDATORY bulk transfer probe.
	Bulk *BulkTransferProbe

	// Env is the MANDATORY probe environment.
	Env *ProbeEnv

	// Latency is the MANDATORY latency probe.
	Latency *LatencyProbe

	// Resource is the MANDATORY resource probe.
	Resource *ResourceProbe

	// Throughput is the MANDATORY throughput probe.
	Throughput *ThroughputProbe
}

// NewPipeline creates a [Pipeline] with default probes.
func NewPipeline(env *ProbeEnv) *Pipeline {
	return &Pipeline{
		Bulk: &BulkTransferProbe{
			SizeMB:          DefaultBulkSizeMB,
			Port:            DefaultBulkPort,
			TransferTimeout: DefaultBulkTransferTimeout,
			WarmUp:          DefaultBulkWarmUp,
		},
		Env:      env,
		Latency:  &LatencyProbe{Count: DefaultPingCount},
		Resource: &ResourceProbe{},
		Throughput: &ThroughputProbe{
			Duration: DefaultIperfDuration,
			Port:     DefaultIperfPort,
			WarmUp:   DefaultIperfWarmUp,
		},
	}
}

// Measure runs all the probes and fills the corresponding fields of m.
// A probe failure leaves its fields empty and never stops the pipeline.
func (p *Pipeline) Measure(ctx context.Context, local, remote Endpoint, m *Measurement) {
	env := p.Env

	lat := p.Latency.Measure(ctx, env, local, remote)
	m.LatencyAvg = lat.Avg
	m.LatencyMin = lat.Min
	m.LatencyMax = lat.Max
	m.LatencyMdev = lat.Mdev
	m.Jitter = lat.Jitter
	m.PacketLoss = lat.PacketLoss

	m.Throughput = p.Throughput.Measure(ctx, env, local, remote)
	m.FileTransferTime = p.Bulk.Measure(ctx, env, local, remote)

	lr := p.Resource.Measure(ctx, env, local)
	m.CPUUsageLocal = lr.CPU
	m.MemUsageLocal = lr.Mem

	rr := p.Resource.Measure(ctx, env, remote)
	m.CPUUsageRemote = rr.CPU
	m.MemUsageRemote = rr.Mem
}
