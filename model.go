package tunbench

//
// Data model
//

import (
	"context"
	"time"

	"github.com/google/gopacket"
)

// Logger is the logger we're using.
type Logger interface {
	// Debugf formats and emits a debug message.
	Debugf(format string, v ...any)

	// Debug emits a debug message.
	Debug(message string)

	// Infof formats and emits an informational message.
	Infof(format string, v ...any)

	// Info emits an informational message.
	Info(message string)

	// Warnf formats and emits a warning message.
	Warnf(format string, v ...any)

	// Warn emits a warning message.
	Warn(message string)
}

// LinkParams contains the impairment applied to a [Link].
type LinkParams struct {
	// BandwidthMbps is the link capacity in Mbit/s.
	BandwidthMbps float64

	// Delay is the one-way delay added by the link.
	Delay time.Duration

	// LossPercent is the packet loss percentage in [0, 100].
	LossPercent float64
}

// LinkConfigurer reconfigures live links. The fluctuation engine
// only depends on this subset of the [Emulator].
type LinkConfigurer interface {
	// ConfigureLink applies the given params to both ends of the link.
	ConfigureLink(ctx context.Context, link *Link, params LinkParams) error
}

// Emulator is the network emulator that actually instantiates the
// [Topology] and shapes the traffic flowing through its links.
type Emulator interface {
	// An Emulator reconfigures live links.
	LinkConfigurer

	// Instantiate creates hosts, switches and links for the topology.
	Instantiate(ctx context.Context, topology *Topology) error

	// Start brings up the instantiated network.
	Start(ctx context.Context) error

	// Stop tears down the network and releases all the resources. This
	// method is best effort and continues regardless of errors.
	Stop(ctx context.Context) error

	// NodeAddress returns the IP address assigned to the named node.
	NodeAddress(name string) (string, error)

	// OpenCapture returns a source of the packets crossing the named link.
	OpenCapture(linkName string) (PacketSource, error)
}

// PacketSource is a source of captured packets.
type PacketSource interface {
	// A PacketSource reads packet data.
	gopacket.PacketDataSource

	// Close stops capturing.
	Close()
}

// Executor is the probe collaborator: it runs command lines on
// emulated endpoints and returns their combined output.
type Executor interface {
	// Run runs the command line on the named endpoint.
	Run(ctx context.Context, endpoint string, cmdline string) (string, error)
}

// Endpoint is a tunnel endpoint.
type Endpoint struct {
	// Name is the node name inside the topology.
	Name string

	// Address is the node IP address.
	Address string
}
