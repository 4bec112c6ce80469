package tunbench

//
// Network topology model
//

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// LinkConfig describes the initial characteristics of a [Link].
type LinkConfig struct {
	// BandwidthMbps is the link capacity in Mbit/s.
	BandwidthMbps float64 `yaml:"bandwidth_mbps"`

	// Delay is the one-way delay.
	Delay time.Duration `yaml:"delay"`

	// LossPercent is the packet loss percentage.
	LossPercent float64 `yaml:"loss_percent"`
}

// Params converts the config to [LinkParams].
func (lc *LinkConfig) Params() LinkParams {
	return LinkParams{
		BandwidthMbps: lc.BandwidthMbps,
		Delay:         lc.Delay,
		LossPercent:   lc.LossPercent,
	}
}

// SwitchConfig describes a forwarding point.
type SwitchConfig struct {
	// Name is the unique switch name.
	Name string `yaml:"name"`

	// Router is true when this switch is part of the backbone core.
	Router bool `yaml:"router,omitempty"`
}

// HostConfig describes a host and its access link.
type HostConfig struct {
	// Name is the unique host name.
	Name string `yaml:"name"`

	// Address is the host IPv4 address.
	Address string `yaml:"address"`

	// Switch is the name of the switch the host attaches to.
	Switch string `yaml:"switch"`

	// Link describes the access link between host and switch.
	Link LinkConfig `yaml:"link"`
}

// BackboneConfig describes a link between two switches.
type BackboneConfig struct {
	// A is the first switch.
	A string `yaml:"a"`

	// B is the second switch.
	B string `yaml:"b"`

	// Link describes the link characteristics.
	Link LinkConfig `yaml:"link"`
}

// TopologyConfig contains the literal description of a topology.
type TopologyConfig struct {
	// Netmask is the prefix length assigned to host addresses.
	Netmask int `yaml:"netmask"`

	// Switches contains switches and routers.
	Switches []SwitchConfig `yaml:"switches"`

	// Hosts contains the hosts.
	Hosts []HostConfig `yaml:"hosts"`

	// Backbone contains the inter-switch links.
	Backbone []BackboneConfig `yaml:"backbone"`
}

// DefaultTopologyConfig returns the topology used by the benchmark: four
// edge switches, two routers in the core and six hosts.
func DefaultTopologyConfig() *TopologyConfig {
	ms := time.Millisecond
	return &TopologyConfig{
		Netmask: 8,
		Switches: []SwitchConfig{
			{Name: "s1"},
			{Name: "s2"},
			{Name: "s3"},
			{Name: "s4"},
			{Name: "r1", Router: true},
			{Name: "r2", Router: true},
		},
		Hosts: []HostConfig{
			{Name: "h1", Address: "10.0.1.1", Switch: "s1", Link: LinkConfig{100, 10 * ms, 0}},
			{Name: "h2", Address: "10.0.1.2", Switch: "s1", Link: LinkConfig{100, 20 * ms, 0}},
			{Name: "h3", Address: "10.0.2.1", Switch: "s2", Link: LinkConfig{100, 30 * ms, 0}},
			{Name: "h4", Address: "10.0.2.2", Switch: "s2", Link: LinkConfig{50, 40 * ms, 1}},
			{Name: "h5", Address: "10.0.3.1", Switch: "s3", Link: LinkConfig{500, 50 * ms, 2}},
			{Name: "h6", Address: "10.0.3.2", Switch: "s4", Link: LinkConfig{200, 60 * ms, 1}},
		},
		Backbone: []BackboneConfig{
			{A: "s1", B: "r1", Link: LinkConfig{1000, 5 * ms, 0}},
			{A: "s2", B: "r2", Link: LinkConfig{1000, 5 * ms, 0}},
			{A: "s3", B: "r2", Link: LinkConfig{1000, 5 * ms, 0}},
			{A: "s4", B: "r1", Link: LinkConfig{1000, 10 * ms, 0}},
			{A: "r1", B: "r2", Link: LinkConfig{1000, 5 * ms, 0}},
		},
	}
}

// Node is a host-like endpoint of the topology.
type Node struct {
	// Name is the node name.
	Name string

	// Address is the node IPv4 address.
	Address string

	// Switch is the switch this node attaches to.
	Switch string
}

// Switch is a pure forwarding point.
type Switch struct {
	// Name is the switch name.
	Name string

	// Router is true for backbone routers.
	Router bool
}

// Link connects a node to a switch or two switches. The zero value is
// invalid; links are created by [BuildTopology].
//
// Only LinkParams change after creation, and only through the
// [LinkWriter] of the owning [Topology].
type Link struct {
	// Name is the unique link name (e.g., "h1-s1").
	Name string

	// A is the name of the first end (a node or a switch).
	A string

	// B is the name of the second end (always a switch).
	B string

	// Backbone is true for inter-switch links.
	Backbone bool

	// mu provides mutual exclusion for params.
	mu sync.Mutex

	// params contains the current params.
	params LinkParams
}

// Params returns the current link params.
func (lnk *Link) Params() LinkParams {
	defer lnk.mu.Unlock()
	lnk.mu.Lock()
	return lnk.params
}

// Topology is the emulated topology. The zero value is invalid; please,
// construct using [BuildTopology].
type Topology struct {
	// Netmask is the prefix length of node addresses.
	Netmask int

	// claimed is true once the writer has been handed out.
	claimed bool

	// links contains the links in declaration order.
	links []*Link

	// mu protects claimed.
	mu sync.Mutex

	// nodes maps node names to nodes.
	nodes map[string]*Node

	// nodeOrder contains node names in declaration order.
	nodeOrder []string

	// switches contains the switches in declaration order.
	switches []*Switch
}

// ErrInvalidTopology indicates that a [TopologyConfig] is malformed.
var ErrInvalidTopology = errors.New("tunbench: invalid topology")

// ErrDuplicateAddr indicates that an address has already been added to a topology.
var ErrDuplicateAddr = errors.New("tunbench: address has already been added")

// ErrNoSuchNode indicates that a node does not exist.
var ErrNoSuchNode = errors.New("tunbench: no such node")

// ErrWriterClaimed indicates that the [LinkWriter] of a [Topology] is already in use.
var ErrWriterClaimed = errors.New("tunbench: link writer already claimed")

// BuildTopology validates the config and assembles the [Topology]. All
// the returned errors wrap [ErrInvalidTopology].
func BuildTopology(config *TopologyConfig) (*Topology, error) {
	t := &Topology{
		Netmask:   config.Netmask,
		claimed:   false,
		links:     []*Link{},
		mu:        sync.Mutex{},
		nodes:     map[string]*Node{},
		nodeOrder: []string{},
		switches:  []*Switch{},
	}
	if config.Netmask < 1 || config.Netmask > 32 {
		return nil, fmt.Errorf("%w: invalid netmask /%d", ErrInvalidTopology, config.Netmask)
	}

	names := map[string]bool{}
	switches := map[string]bool{}
	for _, sc := range config.Switches {
		if sc.Name == "" || names[sc.Name] {
			return nil, fmt.Errorf("%w: empty or duplicate name %q", ErrInvalidTopology, sc.Name)
		}
		names[sc.Name] = true
		switches[sc.Name] = true
		t.switches = append(t.switches, &Switch{Name: sc.Name, Router: sc.Router})
	}

	addresses := map[string]int{}
	for _, hc := range config.Hosts {
		if hc.Name == "" || names[hc.Name] {
			return nil, fmt.Errorf("%w: empty or duplicate name %q", ErrInvalidTopology, hc.Name)
		}
		names[hc.Name] = true
		ip := net.ParseIP(hc.Address)
		if ip == nil || ip.To4() == nil {
			return nil, fmt.Errorf("%w: %s: invalid IPv4 address %q", ErrInvalidTopology, hc.Name, hc.Address)
		}
		if addresses[hc.Address] > 0 {
			return nil, fmt.Errorf("%w: %w: %s", ErrInvalidTopology, ErrDuplicateAddr, hc.Address)
		}
		addresses[hc.Address]++
		if !switches[hc.Switch] {
			return nil, fmt.Errorf("%w: %s: unknown switch %q", ErrInvalidTopology, hc.Name, hc.Switch)
		}
		if err := validateLinkConfig(&hc.Link); err != nil {
			return nil, fmt.Errorf("%w: %s: %s", ErrInvalidTopology, hc.Name, err.Error())
		}
		t.nodes[hc.Name] = &Node{Name: hc.Name, Address: hc.Address, Switch: hc.Switch}
		t.nodeOrder = append(t.nodeOrder, hc.Name)
		t.links = append(t.links, newLink(hc.Name, hc.Switch, false, &hc.Link))
	}

	linkNames := map[string]bool{}
	for _, bc := range config.Backbone {
		if !switches[bc.A] || !switches[bc.B] {
			return nil, fmt.Errorf("%w: backbone %s-%s: unknown switch", ErrInvalidTopology, bc.A, bc.B)
		}
		if bc.A == bc.B {
			return nil, fmt.Errorf("%w: backbone %s-%s: loop", ErrInvalidTopology, bc.A, bc.B)
		}
		lnk := newLink(bc.A, bc.B, true, &bc.Link)
		if linkNames[lnk.Name] {
			return nil, fmt.Errorf("%w: duplicate backbone link %s", ErrInvalidTopology, lnk.Name)
		}
		linkNames[lnk.Name] = true
		if err := validateLinkConfig(&bc.Link); err != nil {
			return nil, fmt.Errorf("%w: %s: %s", ErrInvalidTopology, lnk.Name, err.Error())
		}
		t.links = append(t.links, lnk)
	}

	return t, nil
}

// newLink creates a new [Link].
func newLink(a, b string, backbone bool, lc *LinkConfig) *Link {
	return &Link{
		Name:     a + "-" + b,
		A:        a,
		B:        b,
		Backbone: backbone,
		mu:       sync.Mutex{},
		params:   lc.Params(),
	}
}

// validateLinkConfig checks whether link characteristics make sense.
func validateLinkConfig(lc *LinkConfig) error {
	if lc.BandwidthMbps <= 0 {
		return errors.New("bandwidth must be positive")
	}
	if lc.Delay < 0 {
		return errors.New("delay must not be negative")
	}
	if lc.LossPercent < 0 || lc.LossPercent > 100 {
		return errors.New("loss must be within [0, 100]")
	}
	return nil
}

// Node returns the named node or an error wrapping [ErrNoSuchNode].
func (t *Topology) Node(name string) (*Node, error) {
	node := t.nodes[name]
	if node == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchNode, name)
	}
	return node, nil
}

// Nodes returns the nodes in declaration order.
func (t *Topology) Nodes() []*Node {
	out := make([]*Node, 0, len(t.nodeOrder))
	for _, name := range t.nodeOrder {
		out = append(out, t.nodes[name])
	}
	return out
}

// Switches returns switches and routers in declaration order.
func (t *Topology) Switches() []*Switch {
	return append([]*Switch{}, t.switches...)
}

// Links returns access links followed by backbone links.
func (t *Topology) Links() []*Link {
	return append([]*Link{}, t.links...)
}

// Link returns the named link or nil.
func (t *Topology) Link(name string) *Link {
	for _, lnk := range t.links {
		if lnk.Name == name {
			return lnk
		}
	}
	return nil
}

// LinkWriter is the only way to mutate [LinkParams]. Each [Topology]
// hands out a single writer through [Topology.ClaimWriter].
type LinkWriter struct {
	topology *Topology
}

// ClaimWriter returns the [LinkWriter] of this topology. Every call
// after the first one fails with [ErrWriterClaimed].
func (t *Topology) ClaimWriter() (*LinkWriter, error) {
	defer t.mu.Unlock()
	t.mu.Lock()
	if t.claimed {
		return nil, ErrWriterClaimed
	}
	t.claimed = true
	return &LinkWriter{topology: t}, nil
}

// Links returns the links this writer may mutate.
func (w *LinkWriter) Links() []*Link {
	return w.topology.Links()
}

// SetParams replaces the params of the given link.
func (w *LinkWriter) SetParams(lnk *Link, params LinkParams) {
	lnk.mu.Lock()
	lnk.params = params
	lnk.mu.Unlock()
}
