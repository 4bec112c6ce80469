package tunbench

//
// Tunnel lifecycle
//

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// ProtocolName is the name of a tunnel protocol.
type ProtocolName string

// ProtocolL2TP is the L2TP tunnel protocol.
const ProtocolL2TP = ProtocolName("L2TP")

// ProtocolPPTP is the PPTP tunnel protocol.
const ProtocolPPTP = ProtocolName("PPTP")

// AllProtocols contains all the supported protocols in benchmark order.
var AllProtocols = []ProtocolName{ProtocolL2TP, ProtocolPPTP}

// ErrUnknownProtocol indicates that a protocol name is not supported.
var ErrUnknownProtocol = errors.New("tunbench: unknown tunnel protocol")

// ParseProtocol maps a case-insensitive name to a [ProtocolName].
func ParseProtocol(name string) (ProtocolName, error) {
	switch p := ProtocolName(strings.ToUpper(strings.TrimSpace(name))); p {
	case ProtocolL2TP, ProtocolPPTP:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProtocol, name)
	}
}

// Tunnel is the protocol-agnostic tunnel lifecycle.
type Tunnel interface {
	// Protocol returns the protocol implemented by this tunnel.
	Protocol() ProtocolName

	// Configure removes any previous configuration on both endpoints and
	// installs a fresh one. Calling it twice yields the same state.
	Configure(ctx context.Context, local, remote Endpoint) error

	// Connect starts the daemons on both endpoints and returns the
	// connection time, measured from the beginning of the dial pre-delay.
	Connect(ctx context.Context, local, remote Endpoint) (time.Duration, error)

	// Teardown stops the daemons on both endpoints.
	Teardown(ctx context.Context, local, remote Endpoint) error
}

// TunnelConfig contains config for [NewTunnel]. Make sure you
// initialize all the fields marked as MANDATORY.
type TunnelConfig struct {
	// Daemons is the MANDATORY daemon collaborator.
	Daemons DaemonControl

	// DialJitterMax is the OPTIONAL upper bound of the dial pre-delay.
	DialJitterMax time.Duration

	// DialJitterMin is the OPTIONAL lower bound of the dial pre-delay.
	DialJitterMin time.Duration

	// Logger is the MANDATORY logger.
	Logger Logger

	// Rand is the OPTIONAL random number generator.
	Rand *rand.Rand

	// SettlePeriod is the OPTIONAL time we wait after starting the
	// daemons before sampling the connection time.
	SettlePeriod time.Duration
}

// Defaults used when the corresponding [TunnelConfig] field is zero.
const (
	DefaultDialJitterMin = 100 * time.Millisecond
	DefaultDialJitterMax = 2 * time.Second
	DefaultSettlePeriod  = 5 * time.Second
)

// NewTunnel creates the [Tunnel] for the given protocol. An unknown
// protocol yields an error wrapping [ErrUnknownProtocol].
func NewTunnel(name ProtocolName, config *TunnelConfig) (Tunnel, error) {
	dialer := newTunnelDialer(config)
	switch name {
	case ProtocolL2TP:
		return &L2TPTunnel{daemons: config.Daemons, dialer: dialer, logger: config.Logger}, nil
	case ProtocolPPTP:
		return &PPTPTunnel{daemons: config.Daemons, dialer: dialer, logger: config.Logger}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProtocol, string(name))
	}
}

// tunnelDialer implements the timing of connection establishment
// shared by all protocols.
type tunnelDialer struct {
	jitterMax time.Duration
	jitterMin time.Duration
	mu        sync.Mutex
	rnd       *rand.Rand
	settle    time.Duration
}

// newTunnelDialer creates a [tunnelDialer] applying defaults.
func newTunnelDialer(config *TunnelConfig) *tunnelDialer {
	td := &tunnelDialer{
		jitterMax: config.DialJitterMax,
		jitterMin: config.DialJitterMin,
		mu:        sync.Mutex{},
		rnd:       config.Rand,
		settle:    config.SettlePeriod,
	}
	if td.jitterMin <= 0 && td.jitterMax <= 0 {
		td.jitterMin, td.jitterMax = DefaultDialJitterMin, DefaultDialJitterMax
	}
	if td.jitterMax < td.jitterMin {
		td.jitterMax = td.jitterMin
	}
	if td.settle <= 0 {
		td.settle = DefaultSettlePeriod
	}
	if td.rnd == nil {
		td.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return td
}

// jitter samples the dial pre-delay.
func (td *tunnelDialer) jitter() time.Duration {
	defer td.mu.Unlock()
	td.mu.Lock()
	span := td.jitterMax - td.jitterMin
	if span <= 0 {
		return td.jitterMin
	}
	return td.jitterMin + time.Duration(td.rnd.Int63n(int64(span)+1))
}

// dial waits for the pre-delay, calls start, waits for the settle
// period and returns the time elapsed since the pre-delay began.
func (td *tunnelDialer) dial(ctx context.Context, start func(ctx context.Context) error) (time.Duration, error) {
	t0 := time.Now()
	if err := sleepContext(ctx, td.jitter()); err != nil {
		return 0, err
	}
	if err := start(ctx); err != nil {
		return 0, err
	}
	if err := sleepContext(ctx, td.settle); err != nil {
		return 0, err
	}
	return time.Since(t0), nil
}

// sleepContext sleeps for the given duration unless the context is done first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
