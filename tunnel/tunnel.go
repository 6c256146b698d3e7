// Package tunnel publishes the pixel server on a remote SSH gateway,
// the Go equivalent of "ssh -R remote_port:localhost:1337 gateway".
//
// Instead of bridging forwarded connections to a local TCP port, the
// [ReverseListener] hands them straight to the server's accept loop as
// a regular net.Listener, so clients arriving through the gateway get
// the same sessions as direct TCP clients.
package tunnel

import (
	"time"

	"pxflut/internal/retry"
)

// SSHConfig holds everything needed to dial an SSH gateway.
type SSHConfig struct {
	User          string
	Host          string
	Port          int
	KeyPath       string
	PromptPass    bool
	UseAgent      bool
	StrictHostKey bool
	KnownHosts    string
	ConnTimeout   time.Duration

	// AllowKeyboardInteractive adds keyboard-interactive with empty
	// answers as a last auth method.  Public tunnel services
	// (serveo.net, localhost.run) authenticate this way.
	AllowKeyboardInteractive bool

	// Prompt reads key passphrases and the password.  nil uses
	// [TerminalPrompt].
	Prompt Prompter
}

// ReverseConfig describes the remote listener to request.
type ReverseConfig struct {
	SSH *SSHConfig

	// RemoteBindAddress is the address to bind on the gateway ("" lets
	// the server decide).  RemotePort 0 asks the server to pick a port.
	RemoteBindAddress string
	RemotePort        int

	// KeepAliveInterval enables keepalive@openssh.com probes.  A probe
	// that fails or goes unanswered for one interval drops the tunnel
	// and triggers a reconnect.  0 disables keepalive.
	KeepAliveInterval time.Duration

	// Reconnect is the policy for re-establishing a lost tunnel.  nil
	// retries forever with exponential backoff capped at one minute.
	Reconnect *retry.Backoff
}

func (c *ReverseConfig) applyDefaults() {
	if c.SSH.Port == 0 {
		c.SSH.Port = 22
	}
	if c.SSH.ConnTimeout == 0 {
		c.SSH.ConnTimeout = 30 * time.Second
	}
	if c.Reconnect == nil {
		c.Reconnect = &retry.Backoff{
			InitialDelay: time.Second,
			MaxDelay:     time.Minute,
			Multiplier:   2,
			Jitter:       true,
		}
	}
}
