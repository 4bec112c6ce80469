package tunbench

//
// Run orchestrator
//

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/bassosimone/tunbench/optional"
)

// Defaults used by the [Orchestrator].
const (
	DefaultLocalNode      = "h1"
	DefaultRemoteNode     = "h2"
	DefaultRuns           = 5
	DefaultPause          = 5 * time.Second
	DefaultInstallTimeout = 10 * time.Minute
)

// InstallCommand installs the tunnel daemons and probes on an endpoint.
const InstallCommand = "apt-get update && apt-get install -y xl2tpd pptpd iperf3"

// Progress receives a notification after each recorded session.
type Progress interface {
	Add(num int) error
}

// Orchestrator drives the benchmark. The zero value is invalid; fill
// the fields marked as MANDATORY.
type Orchestrator struct {
	// CaptureDir is the OPTIONAL directory where we save a PCAP per
	// session. When empty, we do not capture.
	CaptureDir string

	// CaptureLink is the OPTIONAL link to capture from. When empty,
	// we capture on the access link of the local endpoint.
	CaptureLink string

	// Emulator is the MANDATORY emulator.
	Emulator Emulator

	// Fluctuation is the OPTIONAL fluctuation config. When nil, the
	// link params do not change during the benchmark.
	Fluctuation *FluctuationConfig

	// Install OPTIONALLY installs the required packages on the endpoints.
	Install bool

	// Local is the OPTIONAL client node name (default: [DefaultLocalNode]).
	Local string

	// Logger is the MANDATORY logger.
	Logger Logger

	// Pause is the OPTIONAL pause between two sessions.
	Pause time.Duration

	// Pipeline is the MANDATORY measurement pipeline.
	Pipeline *Pipeline

	// Progress is the OPTIONAL progress reporter.
	Progress Progress

	// Protocols contains the OPTIONAL protocols (default: [AllProtocols]).
	Protocols []ProtocolName

	// Remote is the OPTIONAL server node name (default: [DefaultRemoteNode]).
	Remote string

	// Runs is the OPTIONAL number of runs (default: [DefaultRuns]).
	Runs int

	// Sink is the MANDATORY result sink.
	Sink ResultSink

	// Topology is the MANDATORY topology config.
	Topology *TopologyConfig

	// Tunnel is the MANDATORY tunnel config.
	Tunnel *TunnelConfig
}

// Run executes the benchmark. Topology and protocol errors are returned
// before touching any endpoint. Failures of a single session leave empty
// fields in its record and never stop the following sessions. Sink
// errors are collected and returned, wrapping [ErrSink], at the end.
func (o *Orchestrator) Run(ctx context.Context) error {
	topology, err := BuildTopology(o.Topology)
	if err != nil {
		return err
	}
	tunnels, err := o.newTunnels()
	if err != nil {
		return err
	}

	// stop also when instantiating fails midway to remove what was created
	defer o.stopEmulator(ctx)
	if err := o.Emulator.Instantiate(ctx, topology); err != nil {
		return err
	}
	if err := o.Emulator.Start(ctx); err != nil {
		return err
	}

	local, remote, err := o.endpoints()
	if err != nil {
		return err
	}

	if o.Install {
		o.install(ctx, local, remote)
	}

	if o.Fluctuation != nil {
		writer, err := topology.ClaimWriter()
		if err != nil {
			return err
		}
		handle := StartFluctuation(ctx, writer, o.Emulator, o.Fluctuation)
		defer handle.Stop()
	}

	runs := o.Runs
	if runs <= 0 {
		runs = DefaultRuns
	}
	total := runs * len(tunnels)
	var sinkErrs []error
	for run := 1; run <= runs; run++ {
		for idx, tunnel := range tunnels {
			if err := ctx.Err(); err != nil {
				return errors.Join(append(sinkErrs, err)...)
			}
			seq := (run-1)*len(tunnels) + idx + 1
			o.Logger.Infof("tunbench: starting run %d for %s (%d/%d)", run, tunnel.Protocol(), seq, total)
			m := o.session(ctx, topology, run, tunnel, local, remote)
			if err := o.Sink.Append(ctx, m); err != nil {
				o.Logger.Warnf("tunbench: run %d for %s: %s", run, tunnel.Protocol(), err.Error())
				sinkErrs = append(sinkErrs, err)
			} else {
				o.Logger.Infof("tunbench: run %d for %s done and saved", run, tunnel.Protocol())
			}
			if o.Progress != nil {
				_ = o.Progress.Add(1)
			}
			if seq < total {
				if err := sleepContext(ctx, o.Pause); err != nil {
					return errors.Join(append(sinkErrs, err)...)
				}
			}
		}
	}
	return errors.Join(sinkErrs...)
}

// newTunnels creates a tunnel for each configured protocol.
func (o *Orchestrator) newTunnels() ([]Tunnel, error) {
	protocols := o.Protocols
	if len(protocols) <= 0 {
		protocols = AllProtocols
	}
	var tunnels []Tunnel
	for _, name := range protocols {
		tunnel, err := NewTunnel(name, o.Tunnel)
		if err != nil {
			return nil, err
		}
		tunnels = append(tunnels, tunnel)
	}
	return tunnels, nil
}

// stopEmulator stops the emulator even when the context is done.
func (o *Orchestrator) stopEmulator(ctx context.Context) {
	if err := o.Emulator.Stop(context.WithoutCancel(ctx)); err != nil {
		o.Logger.Warnf("tunbench: stopping the emulator: %s", err.Error())
	}
}

// endpoints resolves the local and remote endpoints.
func (o *Orchestrator) endpoints() (Endpoint, Endpoint, error) {
	localName, remoteName := o.Local, o.Remote
	if localName == "" {
		localName = DefaultLocalNode
	}
	if remoteName == "" {
		remoteName = DefaultRemoteNode
	}
	localAddr, err := o.Emulator.NodeAddress(localName)
	if err != nil {
		return Endpoint{}, Endpoint{}, err
	}
	remoteAddr, err := o.Emulator.NodeAddress(remoteName)
	if err != nil {
		return Endpoint{}, Endpoint{}, err
	}
	local := Endpoint{Name: localName, Address: localAddr}
	remote := Endpoint{Name: remoteName, Address: remoteAddr}
	return local, remote, nil
}

// install installs the packages on both endpoints. Failures are logged.
func (o *Orchestrator) install(ctx context.Context, endpoints ...Endpoint) {
	env := o.Pipeline.Env
	for _, ep := range endpoints {
		o.Logger.Infof("tunbench: %s: installing packages", ep.Name)
		if _, err := env.runWithTimeout(ctx, DefaultInstallTimeout, ep.Name, InstallCommand); err != nil {
			o.Logger.Warnf("tunbench: %s: installing packages: %s", ep.Name, err.Error())
		}
	}
}

// session drives one session through all its states and returns the record.
func (o *Orchestrator) session(ctx context.Context, topology *Topology, run int, tunnel Tunnel, local, remote Endpoint) *Measurement {
	session := NewTunnelSession(tunnel.Protocol(), local, remote)
	m := NewMeasurement(tunnel.Protocol(), run, session.ID)

	if dumper := o.maybeCapture(topology, run, session); dumper != nil {
		defer dumper.Close()
	}

	session.advance(SessionConfigured, tunnel.Configure(ctx, local, remote))

	elapsed, err := tunnel.Connect(ctx, local, remote)
	if err == nil {
		session.ConnectionTime = elapsed
		m.ConnectionTime = optional.Some(elapsed.Seconds())
	}
	session.advance(SessionConnected, err)

	o.Pipeline.Measure(ctx, local, remote, m)
	session.advance(SessionMeasured, nil)

	// teardown must happen even when ctx is done
	session.advance(SessionTornDown, tunnel.Teardown(context.WithoutCancel(ctx), local, remote))

	session.advance(SessionRecorded, nil)
	for _, err := range session.Errors {
		o.Logger.Warnf("tunbench: session %s: %s", session.ID, err.Error())
	}
	return m
}

// maybeCapture starts capturing packets for the session if configured.
func (o *Orchestrator) maybeCapture(topology *Topology, run int, session *TunnelSession) *PCAPDumper {
	if o.CaptureDir == "" {
		return nil
	}
	linkName := o.CaptureLink
	if linkName == "" {
		node, err := topology.Node(session.Local.Name)
		if err != nil {
			o.Logger.Warnf("tunbench: cannot capture: %s", err.Error())
			return nil
		}
		linkName = node.Name + "-" + node.Switch
	}
	source, err := o.Emulator.OpenCapture(linkName)
	if err != nil {
		o.Logger.Warnf("tunbench: cannot capture on %s: %s", linkName, err.Error())
		return nil
	}
	filename := filepath.Join(o.CaptureDir, fmt.Sprintf("%s-%d-%s.pcap", session.Protocol, run, session.ID))
	return NewPCAPDumper(filename, source, o.Logger)
}
