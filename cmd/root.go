// Package cmd wires up the CLI flags and starts the pixel server.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	flag "github.com/spf13/pflag"

	"pxflut/config"
	"pxflut/internal/core"
	"pxflut/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X pxflut/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// options are the flags that steer the CLI itself rather than the server.
type options struct {
	configPath string
	verbosity  int
	quiet      bool
	dryRun     bool
	version    bool
	help       bool
}

// Execute parses args and runs the server until ctx is cancelled.
//
// Settings are layered defaults < --config file < PXFLUT_* environment
// < flags.  The flags are parsed twice: once to find --config, and
// again on top of the loaded file and environment.
func Execute(ctx context.Context, args []string) error {
	return execute(ctx, args, os.Stdout, os.Stderr)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var opts options
	fs := newFlagSet(config.Default(), &opts, stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if opts.help {
		printUsage(fs, stderr)
		return nil
	}
	if opts.version {
		fmt.Fprintf(stdout, "pxflut %s\n", version)
		return nil
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected argument %q (use --help for usage)", fs.Arg(0))
	}

	cfg := config.Default()
	if opts.configPath != "" {
		if err := config.LoadFile(opts.configPath, cfg); err != nil {
			return err
		}
	}
	config.LoadFromEnv(cfg)

	fs = newFlagSet(cfg, &opts, stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	switch {
	case opts.quiet:
		cfg.Verbose = 0
	case fs.Changed("verbose"):
		cfg.Verbose = 1 + opts.verbosity
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.ApplyTunnelSpec(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if opts.dryRun {
		fmt.Fprintln(stdout, "configuration OK")
		return nil
	}

	// ── build and run ────────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)
	srv, err := core.Build(cfg, logger)
	if err != nil {
		return err
	}
	logger.Info("pxflut %s: %dx%d canvas", version, cfg.Width, cfg.Height)
	return srv.Run(ctx)
}

// newFlagSet binds every flag to cfg, using cfg's current values as
// the defaults.
func newFlagSet(cfg *config.Config, opts *options, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("pxflut", flag.ContinueOnError)
	fs.SetOutput(stderr)

	// ── canvas ───────────────────────────────────────────────────
	fs.IntVar(&cfg.Width, "width", cfg.Width, "Canvas width in pixels")
	fs.IntVar(&cfg.Height, "height", cfg.Height, "Canvas height in pixels")
	fs.StringVar(&cfg.Background, "background", cfg.Background, "Initial canvas color (rrggbb)")

	// ── pixel protocol ───────────────────────────────────────────
	fs.StringVarP(&cfg.Listen, "listen", "l", cfg.Listen, `TCP listen address ("" disables)`)
	fs.IntVar(&cfg.MaxLineLength, "max-line", cfg.MaxLineLength, "Longest accepted protocol line in bytes")
	fs.DurationVar(&cfg.IdleTimeout, "idle-timeout", cfg.IdleTimeout, "Disconnect silent clients after this long (0 = never)")
	fs.BoolVar(&cfg.ReplyErrors, "reply-errors", cfg.ReplyErrors, `Answer malformed lines with "ERR <reason>"`)
	fs.IntVar(&cfg.MaxCanvasFailures, "max-canvas-failures", cfg.MaxCanvasFailures, "Consecutive canvas errors that end a session")

	// ── telemetry ────────────────────────────────────────────────
	fs.StringVar(&cfg.HTTPAddr, "http", cfg.HTTPAddr, "Serve metrics, stats, canvas.png and the live feed on this address")
	fs.IntVar(&cfg.FeedBuffer, "feed-buffer", cfg.FeedBuffer, "Updates queued per live-feed viewer")

	// ── SSH reverse tunnel ───────────────────────────────────────
	fs.StringVarP(&cfg.ReverseTunnelSpec, "reverse-tunnel", "R", cfg.ReverseTunnelSpec, "Also accept clients via [user@]gateway[:port]")
	fs.IntVar(&cfg.RemotePort, "remote-port", cfg.RemotePort, "Port to open on the gateway (0 = gateway picks)")
	fs.StringVar(&cfg.RemoteBindAddress, "remote-bind-address", cfg.RemoteBindAddress, "Address to bind on the gateway")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", cfg.SSHKeyPath, "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", cfg.SSHPassword, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", cfg.UseSSHAgent, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", cfg.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")
	fs.IntVar(&cfg.KeepAliveInterval, "keep-alive", cfg.KeepAliveInterval, "SSH keepalive interval in seconds (0 = off)")
	fs.IntVar(&cfg.MaxReconnectAttempts, "max-reconnects", cfg.MaxReconnectAttempts, "Give up the tunnel after this many attempts (0 = never)")

	// ── output / CLI ─────────────────────────────────────────────
	fs.CountVarP(&opts.verbosity, "verbose", "v", "Increase verbosity (repeatable)")
	fs.BoolVarP(&opts.quiet, "quiet", "q", false, "Only log errors")
	fs.StringVarP(&opts.configPath, "config", "c", opts.configPath, "TOML configuration file")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "Validate the configuration and exit")
	fs.BoolVar(&opts.version, "version", false, "Print version and exit")
	fs.BoolVarP(&opts.help, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs, stderr) }
	return fs
}

func printUsage(fs *flag.FlagSet, w io.Writer) {
	fmt.Fprintf(w, `pxflut – shared Pixelflut canvas server v%s

Clients draw on one canvas over a line protocol:
  HELP | SIZE | PX <x> <y> | PX <x> <y> <rrggbb[aa]>

Usage:
  pxflut [options]

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(w, `
Examples:
  pxflut                                      Serve a 1024x768 canvas on :1337
  pxflut --width 1920 --height 1080 --http :8080
  pxflut -l "" -R pixel@gateway.example.net --remote-port 1337
  echo "PX 10 10 ff0000" | nc localhost 1337

Every flag can also be set as PXFLUT_<NAME> or in the --config file.
`)
}
