package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	perrors "pxflut/internal/errors"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := execute(context.Background(), args, &out, io.Discard)
	return out.String(), err
}

// TestExecute_Version verifies --version prints a version string.
func TestExecute_Version(t *testing.T) {
	out, err := run(t, "--version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(out, "pxflut ") {
		t.Errorf("output = %q", out)
	}
}

// TestExecute_Help verifies --help returns without error.
func TestExecute_Help(t *testing.T) {
	for _, arg := range []string{"--help", "-h"} {
		t.Run(arg, func(t *testing.T) {
			if _, err := run(t, arg); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

// TestExecute_DryRun verifies --dry-run validates and exits cleanly.
func TestExecute_DryRun(t *testing.T) {
	out, err := run(t, "--width", "64", "--height", "64", "--http", "127.0.0.1:8080", "--dry-run")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "configuration OK") {
		t.Errorf("output = %q", out)
	}
}

// TestExecute_DryRunInvalid verifies --dry-run still catches bad configs.
func TestExecute_DryRunInvalid(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		field string
	}{
		{"zero width", []string{"--width", "0"}, "width"},
		{"no listener", []string{"--listen", ""}, "listen"},
		{"remote port alone", []string{"--remote-port", "9000"}, "remote-port"},
		{"bad tunnel", []string{"-R", "a@b@c"}, "reverse-tunnel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, append(tt.args, "--dry-run")...)
			var ce *perrors.ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("err = %v, want *ConfigError", err)
			}
			if ce.Field != tt.field {
				t.Errorf("Field = %q, want %q", ce.Field, tt.field)
			}
		})
	}
}

// TestExecute_InvalidFlags verifies unknown flags produce an error.
func TestExecute_InvalidFlags(t *testing.T) {
	if _, err := run(t, "--nonexistent-flag"); err == nil {
		t.Fatal("expected error for unknown flag")
	}
}

func TestExecute_PositionalRejected(t *testing.T) {
	if _, err := run(t, "localhost", "--dry-run"); err == nil {
		t.Fatal("expected error for positional argument")
	}
}

// TestExecute_Precedence checks flags > env > file > defaults.
func TestExecute_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pxflut.toml")
	if err := os.WriteFile(path, []byte("width = 100\nheight = 100\nbackground = \"zzzzzz\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	// The file's bad background is reported.
	if _, err := run(t, "--config", path, "--dry-run"); err == nil {
		t.Fatal("expected background error from file")
	}

	// The environment overrides the file.
	t.Setenv("PXFLUT_BACKGROUND", "ffffff")
	t.Setenv("PXFLUT_WIDTH", "0") // ignored: not a positive number
	if _, err := run(t, "--config", path, "--dry-run"); err != nil {
		t.Fatalf("env should override file: %v", err)
	}

	// A flag overrides the environment.
	_, err := run(t, "--config", path, "--background", "nothex", "--dry-run")
	var ce *perrors.ConfigError
	if !errors.As(err, &ce) || ce.Field != "background" {
		t.Fatalf("flag should override env: %v", err)
	}
}

func TestExecute_MissingConfigFile(t *testing.T) {
	_, err := run(t, "--config", filepath.Join(t.TempDir(), "absent.toml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

// TestExecute_RunsUntilCancelled starts a real server on a free port.
func TestExecute_RunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(200*time.Millisecond, cancel)
	err := execute(ctx, []string{"--listen", "127.0.0.1:0", "-q", "--width", "4", "--height", "4"}, io.Discard, io.Discard)
	if err != nil {
		t.Errorf("Execute with cancelled context = %v", err)
	}
}
