package tunbench

//
// L2TP tunnel (xl2tpd)
//

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// L2TP daemon settings.
const (
	L2TPConfigPath = "/etc/xl2tpd/xl2tpd.conf"
	L2TPService    = "xl2tpd"
	L2TPLocalIP    = "192.168.1.1"
	L2TPIPRange    = "192.168.1.2-192.168.1.10"
)

// L2TPTunnel is the L2TP [Tunnel]. The local endpoint acts as the LAC
// (client) and the remote endpoint acts as the LNS (server). Use
// [NewTunnel] to construct.
type L2TPTunnel struct {
	daemons DaemonControl
	dialer  *tunnelDialer
	logger  Logger
}

var _ Tunnel = &L2TPTunnel{}

// Protocol implements Tunnel.
func (t *L2TPTunnel) Protocol() ProtocolName {
	return ProtocolL2TP
}

// Configure implements Tunnel.
func (t *L2TPTunnel) Configure(ctx context.Context, local, remote Endpoint) error {
	t.logger.Infof("tunbench: l2tp: configure %s (lac) -> %s (lns)", local.Name, remote.Name)
	if err := t.daemons.RemoveConfig(ctx, local.Name, L2TPConfigPath); err != nil {
		return err
	}
	if err := t.daemons.RemoveConfig(ctx, remote.Name, L2TPConfigPath); err != nil {
		return err
	}
	if err := t.daemons.WriteConfig(ctx, local.Name, L2TPConfigPath, renderL2TPClientConfig(remote)); err != nil {
		return err
	}
	return t.daemons.WriteConfig(ctx, remote.Name, L2TPConfigPath, renderL2TPServerConfig())
}

// Connect implements Tunnel.
func (t *L2TPTunnel) Connect(ctx context.Context, local, remote Endpoint) (time.Duration, error) {
	return t.dialer.dial(ctx, func(ctx context.Context) error {
		return errors.Join(
			t.daemons.StartService(ctx, local.Name, L2TPService),
			t.daemons.StartService(ctx, remote.Name, L2TPService),
		)
	})
}

// Teardown implements Tunnel.
func (t *L2TPTunnel) Teardown(ctx context.Context, local, remote Endpoint) error {
	t.logger.Infof("tunbench: l2tp: teardown %s <-> %s", local.Name, remote.Name)
	return errors.Join(
		t.daemons.StopService(ctx, local.Name, L2TPService),
		t.daemons.StopService(ctx, remote.Name, L2TPService),
	)
}

// renderL2TPClientConfig renders the LAC configuration.
func renderL2TPClientConfig(remote Endpoint) string {
	return fmt.Sprintf(`[lac %s]
lns = %s
ppp debug = yes
pppoptfile = /etc/ppp/options.l2tpd.client
length bit = yes
`, remote.Name, remote.Address)
}

// renderL2TPServerConfig renders the LNS configuration.
func renderL2TPServerConfig() string {
	return fmt.Sprintf(`[lns default]
ip range = %s
local ip = %s
require chap = yes
refuse pap = yes
require authentication = yes
ppp debug = yes
pppoptfile = /etc/ppp/options.l2tpd.server
length bit = yes
`, L2TPIPRange, L2TPLocalIP)
}
