package tunnel

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/term"
)

// Prompter asks the operator for a secret such as a key passphrase.
type Prompter func(prompt string) ([]byte, error)

// defaultKeyNames are tried under ~/.ssh when no key is configured.
var defaultKeyNames = []string{"id_ed25519", "id_ecdsa", "id_rsa"}

// TerminalPrompt reads a secret from the controlling terminal without
// echo.  A server started under a supervisor has no terminal, so it
// fails instead of blocking.
func TerminalPrompt(prompt string) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	return secret, err
}

// BuildAuthMethods returns the auth methods to offer the gateway, in
// order: configured key, agent, password, then (if none of those were
// requested) the agent and unencrypted keys under ~/.ssh, and finally
// empty keyboard-interactive when allowed.
func BuildAuthMethods(cfg *SSHConfig) ([]ssh.AuthMethod, error) {
	prompt := cfg.Prompt
	if prompt == nil {
		prompt = TerminalPrompt
	}

	var methods []ssh.AuthMethod
	if cfg.KeyPath != "" {
		signer, err := loadKey(cfg.KeyPath, prompt)
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", cfg.KeyPath, err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if cfg.UseAgent {
		m, err := agentAuth()
		if err != nil {
			return nil, fmt.Errorf("ssh-agent: %w", err)
		}
		methods = append(methods, m)
	}
	if cfg.PromptPass {
		pass, err := prompt(fmt.Sprintf("Password for %s@%s: ", cfg.User, cfg.Host))
		if err != nil {
			return nil, fmt.Errorf("--ssh-password: %w", err)
		}
		methods = append(methods, ssh.Password(string(pass)))
	}
	if len(methods) == 0 {
		methods = discoverAuthMethods()
	}
	if cfg.AllowKeyboardInteractive {
		methods = append(methods, ssh.KeyboardInteractive(emptyChallenge))
	}

	if len(methods) == 0 {
		return nil, errors.New("no SSH authentication methods available: " +
			"use --ssh-key, --ssh-password, or --ssh-agent")
	}
	return methods, nil
}

// emptyChallenge answers every keyboard-interactive question with "".
// Public tunnel services (serveo.net, localhost.run) accept this.
func emptyChallenge(_, _ string, questions []string, _ []bool) ([]string, error) {
	return make([]string, len(questions)), nil
}

// loadKey parses the private key at path.  An encrypted key is
// decrypted with a passphrase from prompt; a nil prompt rejects it.
func loadKey(path string, prompt Prompter) (ssh.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(data)
	var missing *ssh.PassphraseMissingError
	switch {
	case err == nil:
		return signer, nil
	case !errors.As(err, &missing):
		return nil, fmt.Errorf("parsing key: %w", err)
	case prompt == nil:
		return nil, errors.New("key is encrypted")
	}

	pass, err := prompt(fmt.Sprintf("Passphrase for %s: ", path))
	if err != nil {
		return nil, fmt.Errorf("key is encrypted: %w", err)
	}
	signer, err = ssh.ParsePrivateKeyWithPassphrase(data, pass)
	if err != nil {
		return nil, fmt.Errorf("decrypting key: %w", err)
	}
	return signer, nil
}

func agentAuth() (ssh.AuthMethod, error) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, errors.New("SSH_AUTH_SOCK is not set")
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, fmt.Errorf("connecting to agent at %s: %w", sock, err)
	}
	return ssh.PublicKeysCallback(agent.NewClient(conn).Signers), nil
}

// discoverAuthMethods offers the agent, if one is running, and every
// unencrypted default key.  Nothing prompts: reconnects must not block
// on a terminal.
func discoverAuthMethods() []ssh.AuthMethod {
	var out []ssh.AuthMethod
	if m, err := agentAuth(); err == nil {
		out = append(out, m)
	}
	dir, err := sshDir()
	if err != nil {
		return out
	}
	var signers []ssh.Signer
	for _, name := range defaultKeyNames {
		if s, err := loadKey(filepath.Join(dir, name), nil); err == nil {
			signers = append(signers, s)
		}
	}
	if len(signers) > 0 {
		out = append(out, ssh.PublicKeys(signers...))
	}
	return out
}

func sshDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locating home directory: %w", err)
	}
	return filepath.Join(home, ".ssh"), nil
}

// hostKeyCallback checks the gateway against known_hosts when
// StrictHostKey is set and accepts any key otherwise.
func hostKeyCallback(cfg *SSHConfig) (ssh.HostKeyCallback, error) {
	if !cfg.StrictHostKey {
		//nolint:gosec // user opted out of host key checking
		return ssh.InsecureIgnoreHostKey(), nil
	}
	path := cfg.KnownHosts
	if path == "" {
		dir, err := sshDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "known_hosts")
	}
	cb, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("loading known_hosts from %s: %w", path, err)
	}
	return cb, nil
}
