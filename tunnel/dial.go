package tunnel

// dial.go - SSH dialling and handshake error classification.

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	perrors "pxflut/internal/errors"
	"pxflut/util"
)

// dialSSH establishes an authenticated SSH connection to the gateway.
func dialSSH(ctx context.Context, cfg *SSHConfig, logger *util.Logger) (*ssh.Client, error) {
	authMethods, err := BuildAuthMethods(cfg)
	if err != nil {
		return nil, perrors.WrapSSH("auth", cfg.Host, cfg.Port, err)
	}

	hkCb, err := hostKeyCallback(cfg)
	if err != nil {
		return nil, perrors.WrapSSH("hostkey", cfg.Host, cfg.Port, err)
	}

	sshCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            authMethods,
		HostKeyCallback: hkCb,
		Timeout:         cfg.ConnTimeout,
		// Public tunnel services print the public address in the
		// pre-auth banner.
		BannerCallback: func(message string) error {
			logger.Info("%s", strings.TrimSpace(message))
			return nil
		},
	}

	addr := util.FormatAddr(cfg.Host, cfg.Port)
	logger.Debug("reverse tunnel: dialing SSH %s as %s", addr, cfg.User)

	dialer := net.Dialer{Timeout: cfg.ConnTimeout}
	tcpConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, perrors.Wrap("dial", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, addr, sshCfg)
	if err != nil {
		tcpConn.Close()
		return nil, perrors.WrapSSH("handshake", cfg.Host, cfg.Port, classifyHandshake(err))
	}

	client := ssh.NewClient(sshConn, chans, reqs)
	return client, nil
}

// classifyHandshake maps handshake failures that retrying cannot fix
// onto sentinel errors.
func classifyHandshake(err error) error {
	var keyErr *knownhosts.KeyError
	switch {
	case errors.As(err, &keyErr):
		return fmt.Errorf("%w: %v", perrors.ErrHostKeyMismatch, err)
	case strings.Contains(err.Error(), "unable to authenticate"):
		return fmt.Errorf("%w: %v", perrors.ErrAuthFailed, err)
	}
	return err
}

// isPermanent reports whether a connect error should stop reconnecting.
func isPermanent(err error) bool {
	return errors.Is(err, perrors.ErrAuthFailed) || errors.Is(err, perrors.ErrHostKeyMismatch)
}
