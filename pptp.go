package tunbench

//
// PPTP tunnel (pptp client + pptpd)
//

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// PPTP daemon settings.
const (
	PPTPClientConfigPath = "/etc/ppp/peers/pptpclient"
	PPTPServerConfigPath = "/etc/pptpd.conf"
	PPTPPeer             = "pptpclient"
	PPTPService          = "pptpd"
	PPTPLocalIP          = "192.168.2.1"
	PPTPRemoteIPRange    = "192.168.2.2-192.168.2.10"
)

// PPTPTunnel is the PPTP [Tunnel]. The local endpoint dials through
// pppd and the remote endpoint runs pptpd. Use [NewTunnel] to construct.
type PPTPTunnel struct {
	daemons DaemonControl
	dialer  *tunnelDialer
	logger  Logger
}

var _ Tunnel = &PPTPTunnel{}

// Protocol implements Tunnel.
func (t *PPTPTunnel) Protocol() ProtocolName {
	return ProtocolPPTP
}

// Configure implements Tunnel.
func (t *PPTPTunnel) Configure(ctx context.Context, local, remote Endpoint) error {
	t.logger.Infof("tunbench: pptp: configure %s (client) -> %s (server)", local.Name, remote.Name)
	if err := t.daemons.RemoveConfig(ctx, local.Name, PPTPClientConfigPath); err != nil {
		return err
	}
	if err := t.daemons.RemoveConfig(ctx, remote.Name, PPTPServerConfigPath); err != nil {
		return err
	}
	if err := t.daemons.WriteConfig(ctx, local.Name, PPTPClientConfigPath, renderPPTPClientConfig(local, remote)); err != nil {
		return err
	}
	return t.daemons.WriteConfig(ctx, remote.Name, PPTPServerConfigPath, renderPPTPServerConfig())
}

// Connect implements Tunnel.
func (t *PPTPTunnel) Connect(ctx context.Context, local, remote Endpoint) (time.Duration, error) {
	return t.dialer.dial(ctx, func(ctx context.Context) error {
		return errors.Join(
			t.daemons.StartDial(ctx, local.Name, PPTPPeer),
			t.daemons.StartService(ctx, remote.Name, PPTPService),
		)
	})
}

// Teardown implements Tunnel.
func (t *PPTPTunnel) Teardown(ctx context.Context, local, remote Endpoint) error {
	t.logger.Infof("tunbench: pptp: teardown %s <-> %s", local.Name, remote.Name)
	return errors.Join(
		t.daemons.StopDial(ctx, local.Name, PPTPPeer),
		t.daemons.StopService(ctx, remote.Name, PPTPService),
	)
}

// renderPPTPClientConfig renders the pppd peer file.
func renderPPTPClientConfig(local, remote Endpoint) string {
	return fmt.Sprintf(`pty "pptp %s --nolaunchpppd"
name %s
password secret
remotename PPTP
require-mppe
`, remote.Address, local.Name)
}

// renderPPTPServerConfig renders pptpd.conf.
func renderPPTPServerConfig() string {
	return fmt.Sprintf(`option /etc/ppp/pptpd-options
logwtmp
localip %s
remoteip %s
`, PPTPLocalIP, PPTPRemoteIPRange)
}
