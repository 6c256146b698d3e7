package transport

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	perrors "pxflut/internal/errors"
	"pxflut/tunnel"
	"pxflut/util"
)

func TestTCPSource_Listen(t *testing.T) {
	src := &TCPSource{Address: "127.0.0.1:0", KeepAlive: 30 * time.Second}
	ln, err := src.Listen(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	go func() {
		c, err := net.Dial("tcp", ln.Addr().String())
		if err == nil {
			c.Close()
		}
	}()

	conn, err := ln.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	conn.Close()
}

func TestTCPSource_AddressInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	src := &TCPSource{Address: ln.Addr().String()}
	_, err = src.Listen(context.Background())
	var ne *perrors.NetworkError
	if !errors.As(err, &ne) || ne.Op != "listen" {
		t.Fatalf("err = %v, want listen NetworkError", err)
	}
}

func TestTCPSource_String(t *testing.T) {
	if got := (&TCPSource{Address: ":1337"}).String(); got != "tcp :1337" {
		t.Errorf("String = %q", got)
	}
}

func TestSSHSource_String(t *testing.T) {
	src := &SSHSource{Config: &tunnel.ReverseConfig{
		SSH:        &tunnel.SSHConfig{User: "pixel", Host: "gw.example.com", Port: 22},
		RemotePort: 1337,
	}}
	if got, want := src.String(), "ssh pixel@gw.example.com:22 -R :1337"; got != want {
		t.Errorf("String = %q, want %q", got, want)
	}
}

func TestSSHSource_ListenFailure(t *testing.T) {
	port, err := util.FindFreePort()
	if err != nil {
		t.Fatal(err)
	}
	src := &SSHSource{
		Config: &tunnel.ReverseConfig{SSH: &tunnel.SSHConfig{
			User: "pixel", Host: "127.0.0.1", Port: port, KeyPath: "/nonexistent/key",
		}},
		Logger: util.NewLogger(0),
	}
	if _, err := src.Listen(context.Background()); err == nil {
		t.Fatal("expected error")
	} else if !strings.HasPrefix(err.Error(), "reverse tunnel") {
		t.Errorf("err = %v", err)
	}
}
