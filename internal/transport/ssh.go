package transport

import (
	"context"
	"fmt"
	"net"

	"pxflut/internal/metrics"
	"pxflut/tunnel"
	"pxflut/util"
)

// SSHSource receives clients through a remote port forward on an SSH
// gateway.  The listener reconnects on its own when the gateway drops.
type SSHSource struct {
	Config  *tunnel.ReverseConfig
	Logger  *util.Logger
	Metrics *metrics.Collector
}

// Listen connects to the gateway and requests the forward.
func (s *SSHSource) Listen(ctx context.Context) (net.Listener, error) {
	s.Logger.Verbose("establishing reverse tunnel via %s@%s:%d",
		s.Config.SSH.User, s.Config.SSH.Host, s.Config.SSH.Port)
	ln, err := tunnel.Listen(ctx, s.Config, s.Logger, s.Metrics)
	if err != nil {
		return nil, fmt.Errorf("reverse tunnel: %w", err)
	}
	return ln, nil
}

func (s *SSHSource) String() string {
	return fmt.Sprintf("ssh %s@%s -R %s", s.Config.SSH.User,
		util.FormatAddr(s.Config.SSH.Host, s.Config.SSH.Port),
		util.FormatAddr(s.Config.RemoteBindAddress, s.Config.RemotePort))
}
