package tunbench

//
// Emulator based on Linux network namespaces, bridges, and tc-netem
//

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"sync"
)

// DefaultNetnsPrefix is the default prefix of namespaces and devices.
const DefaultNetnsPrefix = "tb"

// regexpPrefix identifies valid prefixes (devices names are limited to 15 chars).
var regexpPrefix = regexp.MustCompile("^[a-z][a-z0-9]{0,5}$")

// NetnsEmulator is an [Emulator] where each node is a network namespace,
// each switch is a Linux bridge, each link is a veth pair and impairments
// are applied with tc-netem on both ends of each link. The zero value is
// invalid; please, use [NewNetnsEmulator].
type NetnsEmulator struct {
	// logger is the logger to use.
	logger Logger

	// mu protects topology.
	mu sync.Mutex

	// prefix is the prefix of namespaces and devices.
	prefix string

	// shell runs the commands.
	shell Shell

	// topology is the instantiated topology.
	topology *Topology
}

var _ Emulator = &NetnsEmulator{}

// ErrNotInstantiated indicates that the emulator has no topology yet.
var ErrNotInstantiated = errors.New("tunbench: emulator not instantiated")

// ErrNoSuchLink indicates that a link does not exist.
var ErrNoSuchLink = errors.New("tunbench: no such link")

// NewNetnsEmulator creates a new [NetnsEmulator]. Use [NopShell] for
// dry runs and [LinuxShell] to actually create the network.
func NewNetnsEmulator(logger Logger, sh Shell, prefix string) (*NetnsEmulator, error) {
	if prefix == "" {
		prefix = DefaultNetnsPrefix
	}
	if !regexpPrefix.MatchString(prefix) {
		return nil, fmt.Errorf("tunbench: invalid netns prefix %q", prefix)
	}
	e := &NetnsEmulator{
		logger:   logger,
		mu:       sync.Mutex{},
		prefix:   prefix,
		shell:    sh,
		topology: nil,
	}
	return e, nil
}

// netnsDevice is one end of a veth pair.
type netnsDevice struct {
	// Netns is the namespace name or empty for the root namespace.
	Netns string

	// Name is the device name.
	Name string
}

// NetnsName returns the namespace name used for the given node.
func NetnsName(prefix, node string) string {
	return prefix + "-" + node
}

// bridgeName returns the name of the bridge for the idx-th switch.
func (e *NetnsEmulator) bridgeName(idx int) string {
	return fmt.Sprintf("%sbr%d", e.prefix, idx)
}

// linkDevices returns the two devices implementing the idx-th link.
func (e *NetnsEmulator) linkDevices(idx int, lnk *Link) (netnsDevice, netnsDevice) {
	a := netnsDevice{Name: fmt.Sprintf("%sv%da", e.prefix, idx)}
	b := netnsDevice{Name: fmt.Sprintf("%sv%db", e.prefix, idx)}
	if !lnk.Backbone {
		a.Netns = NetnsName(e.prefix, lnk.A)
	}
	return a, b
}

// Instantiate implements Emulator.
func (e *NetnsEmulator) Instantiate(ctx context.Context, topology *Topology) error {
	e.mu.Lock()
	e.topology = topology
	e.mu.Unlock()

	bridges := map[string]string{}
	for idx, sw := range topology.Switches() {
		br := e.bridgeName(idx)
		bridges[sw.Name] = br
		if err := ShellRunf(ctx, e.shell, "ip link add %s type bridge", br); err != nil {
			return err
		}
	}

	for _, node := range topology.Nodes() {
		ns := NetnsName(e.prefix, node.Name)
		if err := ShellRunf(ctx, e.shell, "ip netns add %s", ns); err != nil {
			return err
		}
		if err := ShellRunf(ctx, e.shell, "ip netns exec %s ip link set lo up", ns); err != nil {
			return err
		}
	}

	for idx, lnk := range topology.Links() {
		a, b := e.linkDevices(idx, lnk)
		if err := ShellRunf(ctx, e.shell, "ip link add %s type veth peer name %s", a.Name, b.Name); err != nil {
			return err
		}
		if lnk.Backbone {
			if err := e.attach(ctx, a.Name, bridges[lnk.A]); err != nil {
				return err
			}
		} else {
			node, err := topology.Node(lnk.A)
			if err != nil {
				return err
			}
			if err := e.plugHost(ctx, a, node.Address, topology.Netmask); err != nil {
				return err
			}
		}
		if err := e.attach(ctx, b.Name, bridges[lnk.B]); err != nil {
			return err
		}
		if err := e.ConfigureLink(ctx, lnk, lnk.Params()); err != nil {
			return err
		}
	}

	e.logger.Infof("tunbench: netns: instantiated %d nodes, %d switches, %d links",
		len(topology.Nodes()), len(topology.Switches()), len(topology.Links()))
	return nil
}

// attach enslaves a device to a bridge and brings it up.
func (e *NetnsEmulator) attach(ctx context.Context, dev, bridge string) error {
	if err := ShellRunf(ctx, e.shell, "ip link set %s master %s", dev, bridge); err != nil {
		return err
	}
	return ShellRunf(ctx, e.shell, "ip link set %s up", dev)
}

// plugHost moves a device into the host namespace and assigns the address.
func (e *NetnsEmulator) plugHost(ctx context.Context, dev netnsDevice, address string, netmask int) error {
	if err := ShellRunf(ctx, e.shell, "ip link set %s netns %s", dev.Name, dev.Netns); err != nil {
		return err
	}
	if err := ShellRunf(ctx, e.shell, "ip netns exec %s ip addr add %s/%d dev %s",
		dev.Netns, address, netmask, dev.Name); err != nil {
		return err
	}
	return ShellRunf(ctx, e.shell, "ip netns exec %s ip link set %s up", dev.Netns, dev.Name)
}

// Start implements Emulator.
func (e *NetnsEmulator) Start(ctx context.Context) error {
	topology, err := e.current()
	if err != nil {
		return err
	}
	for idx := range topology.Switches() {
		if err := ShellRunf(ctx, e.shell, "ip link set %s up", e.bridgeName(idx)); err != nil {
			return err
		}
	}
	return nil
}

// Stop implements Emulator.
func (e *NetnsEmulator) Stop(ctx context.Context) error {
	topology, err := e.current()
	if err != nil {
		return err
	}
	return e.Destroy(ctx, topology)
}

// Destroy removes namespaces, veth pairs and bridges that an emulator
// with the same prefix would create for the given topology. It continues
// regardless of errors so we clean it up all.
func (e *NetnsEmulator) Destroy(ctx context.Context, topology *Topology) error {
	var errs []error
	for idx, lnk := range topology.Links() {
		if !lnk.Backbone {
			continue // deleting the namespace deletes the pair
		}
		a, _ := e.linkDevices(idx, lnk)
		errs = append(errs, ShellRunf(ctx, e.shell, "ip link del %s", a.Name))
	}
	for _, node := range topology.Nodes() {
		errs = append(errs, ShellRunf(ctx, e.shell, "ip netns del %s", NetnsName(e.prefix, node.Name)))
	}
	for idx := range topology.Switches() {
		errs = append(errs, ShellRunf(ctx, e.shell, "ip link del %s", e.bridgeName(idx)))
	}
	return errors.Join(errs...)
}

// NodeAddress implements Emulator.
func (e *NetnsEmulator) NodeAddress(name string) (string, error) {
	topology, err := e.current()
	if err != nil {
		return "", err
	}
	node, err := topology.Node(name)
	if err != nil {
		return "", err
	}
	return node.Address, nil
}

// ConfigureLink implements Emulator.
func (e *NetnsEmulator) ConfigureLink(ctx context.Context, lnk *Link, params LinkParams) error {
	idx, err := e.linkIndex(lnk.Name)
	if err != nil {
		return err
	}
	a, b := e.linkDevices(idx, lnk)
	for _, dev := range []netnsDevice{a, b} {
		if err := e.shell.Runv(ctx, netemArgv(dev, params)); err != nil {
			return err
		}
	}
	e.logger.Debugf("tunbench: netns: %s: bw=%gMbit delay=%s loss=%g%%",
		lnk.Name, params.BandwidthMbps, params.Delay, params.LossPercent)
	return nil
}

// netemArgv returns the tc command applying params to the device.
func netemArgv(dev netnsDevice, params LinkParams) []string {
	argv := []string{}
	if dev.Netns != "" {
		argv = append(argv, "ip", "netns", "exec", dev.Netns)
	}
	argv = append(argv,
		"tc", "qdisc", "replace", "dev", dev.Name, "root", "netem",
		"delay", strconv.FormatInt(params.Delay.Microseconds(), 10)+"us",
		"loss", strconv.FormatFloat(params.LossPercent, 'f', -1, 64)+"%",
		"rate", strconv.FormatFloat(params.BandwidthMbps, 'f', -1, 64)+"mbit",
	)
	return argv
}

// OpenCapture implements Emulator. We capture on the end of the link
// living in the root namespace.
func (e *NetnsEmulator) OpenCapture(linkName string) (PacketSource, error) {
	idx, err := e.linkIndex(linkName)
	if err != nil {
		return nil, err
	}
	topology, _ := e.current()
	_, b := e.linkDevices(idx, topology.Links()[idx])
	return openEthernetCapture(b.Name)
}

// linkIndex returns the index of the named link.
func (e *NetnsEmulator) linkIndex(name string) (int, error) {
	topology, err := e.current()
	if err != nil {
		return 0, err
	}
	for idx, lnk := range topology.Links() {
		if lnk.Name == name {
			return idx, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrNoSuchLink, name)
}

// current returns the instantiated topology.
func (e *NetnsEmulator) current() (*Topology, error) {
	defer e.mu.Unlock()
	e.mu.Lock()
	if e.topology == nil {
		return nil, ErrNotInstantiated
	}
	return e.topology, nil
}

// NetnsExecutor is the [Executor] running command lines inside the
// namespace of each node. Fill the fields marked as MANDATORY.
type NetnsExecutor struct {
	// Prefix is the MANDATORY namespace prefix.
	Prefix string

	// Shell is the MANDATORY shell.
	Shell Shell
}

var _ Executor = &NetnsExecutor{}

// Run implements Executor.
func (ne *NetnsExecutor) Run(ctx context.Context, endpoint, cmdline string) (string, error) {
	argv := []string{"ip", "netns", "exec", NetnsName(ne.Prefix, endpoint), "sh", "-c", cmdline}
	return ne.Shell.Outputv(ctx, argv)
}
