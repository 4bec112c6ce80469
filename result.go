package tunbench

//
// Result records
//

import (
	"context"
	"errors"
	"strconv"

	"github.com/bassosimone/tunbench/optional"
)

// Measurement is the flat record produced for each (run, protocol)
// pair. Every numeric field may be empty when the corresponding probe
// did not produce a value.
type Measurement struct {
	// Protocol is the tunnel protocol.
	Protocol ProtocolName

	// Run is the one-based run index.
	Run int

	// SessionID identifies the tunnel session that produced the record.
	SessionID string

	// ConnectionTime is the tunnel setup time in seconds.
	ConnectionTime optional.Value[float64]

	// LatencyAvg is the mean RTT in milliseconds.
	LatencyAvg optional.Value[float64]

	// LatencyMin is the minimum RTT in milliseconds.
	LatencyMin optional.Value[float64]

	// LatencyMax is the maximum RTT in milliseconds.
	LatencyMax optional.Value[float64]

	// LatencyMdev is the standard deviation of the RTT in milliseconds.
	LatencyMdev optional.Value[float64]

	// PacketLoss is the packet loss percentage.
	PacketLoss optional.Value[float64]

	// Jitter is the mean absolute difference of consecutive RTTs in milliseconds.
	Jitter optional.Value[float64]

	// Throughput is the sender rate in Mbit/s.
	Throughput optional.Value[float64]

	// FileTransferTime is the bulk transfer time in seconds.
	FileTransferTime optional.Value[float64]

	// CPUUsageLocal is the CPU usage percentage of the local endpoint.
	CPUUsageLocal optional.Value[float64]

	// MemUsageLocal is the memory usage percentage of the local endpoint.
	MemUsageLocal optional.Value[float64]

	// CPUUsageRemote is the CPU usage percentage of the remote endpoint.
	CPUUsageRemote optional.Value[float64]

	// MemUsageRemote is the memory usage percentage of the remote endpoint.
	MemUsageRemote optional.Value[float64]
}

// NewMeasurement creates an empty [Measurement].
func NewMeasurement(protocol ProtocolName, run int, sessionID string) *Measurement {
	none := optional.None[float64]()
	return &Measurement{
		Protocol:         protocol,
		Run:              run,
		SessionID:        sessionID,
		ConnectionTime:   none,
		LatencyAvg:       none,
		LatencyMin:       none,
		LatencyMax:       none,
		LatencyMdev:      none,
		PacketLoss:       none,
		Jitter:           none,
		Throughput:       none,
		FileTransferTime: none,
		CPUUsageLocal:    none,
		MemUsageLocal:    none,
		CPUUsageRemote:   none,
		MemUsageRemote:   none,
	}
}

// ResultHeader is the fixed header of persisted results.
var ResultHeader = []string{
	"protocol",
	"connection_time",
	"latency_avg",
	"latency_min",
	"latency_max",
	"latency_mdev",
	"packet_loss",
	"jitter",
	"throughput",
	"file_transfer_time",
	"cpu_usage_h1",
	"mem_usage_h1",
	"cpu_usage_h2",
	"mem_usage_h2",
}

// values returns the numeric fields in [ResultHeader] order (skipping protocol).
func (m *Measurement) values() []optional.Value[float64] {
	return []optional.Value[float64]{
		m.ConnectionTime,
		m.LatencyAvg,
		m.LatencyMin,
		m.LatencyMax,
		m.LatencyMdev,
		m.PacketLoss,
		m.Jitter,
		m.Throughput,
		m.FileTransferTime,
		m.CPUUsageLocal,
		m.MemUsageLocal,
		m.CPUUsageRemote,
		m.MemUsageRemote,
	}
}

// fields returns pointers to the numeric fields in [ResultHeader] order.
func (m *Measurement) fields() []*optional.Value[float64] {
	return []*optional.Value[float64]{
		&m.ConnectionTime,
		&m.LatencyAvg,
		&m.LatencyMin,
		&m.LatencyMax,
		&m.LatencyMdev,
		&m.PacketLoss,
		&m.Jitter,
		&m.Throughput,
		&m.FileTransferTime,
		&m.CPUUsageLocal,
		&m.MemUsageLocal,
		&m.CPUUsageRemote,
		&m.MemUsageRemote,
	}
}

// Record returns the measurement as a row matching [ResultHeader]. Empty
// values become empty strings.
func (m *Measurement) Record() []string {
	out := []string{string(m.Protocol)}
	for _, v := range m.values() {
		out = append(out, formatOptional(v))
	}
	return out
}

// Column returns the named numeric column of [ResultHeader].
func (m *Measurement) Column(name string) (optional.Value[float64], bool) {
	for idx, v := range m.values() {
		if ResultHeader[idx+1] == name {
			return v, true
		}
	}
	return optional.None[float64](), false
}

// formatOptional formats an optional float using the shortest representation.
func formatOptional(v optional.Value[float64]) string {
	if v.Empty() {
		return ""
	}
	return strconv.FormatFloat(v.Unwrap(), 'f', -1, 64)
}

// parseOptional parses a possibly empty float field.
func parseOptional(s string) (optional.Value[float64], error) {
	if s == "" {
		return optional.None[float64](), nil
	}
	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return optional.None[float64](), err
	}
	return optional.Some(value), nil
}

// ResultSink is an append-only destination of [Measurement] records.
type ResultSink interface {
	// Append appends the measurement.
	Append(ctx context.Context, m *Measurement) error
}

// ErrSink indicates that a record could not be persisted.
var ErrSink = errors.New("tunbench: cannot persist result")

// MultiSink appends to several sinks and joins their errors.
type MultiSink []ResultSink

var _ ResultSink = MultiSink{}

// Append implements ResultSink.
func (ms MultiSink) Append(ctx context.Context, m *Measurement) error {
	var errs []error
	for _, s := range ms {
		if err := s.Append(ctx, m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
