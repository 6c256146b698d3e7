package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"pxflut/internal/canvas"
	"pxflut/internal/feed"
	"pxflut/internal/metrics"
	"pxflut/internal/pixel"
	"pxflut/internal/protocol"
	"pxflut/util"
)

type fixture struct {
	grid *canvas.Grid
	cv   canvas.Canvas
	m    *metrics.Collector
	hub  *feed.Hub
	srv  *Server
	ts   *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		grid: canvas.NewGrid(4, 3, pixel.Black),
		m:    metrics.New(),
		hub:  feed.New(64),
	}
	f.cv = canvas.Observe(f.grid, func(x, y int, c pixel.Color) {
		f.m.PixelWritten()
		f.hub.Observer(x, y, c)
	})
	logger := util.NewLogger(0)
	logger.SetOutput(io.Discard)
	srv, err := New("127.0.0.1:0", f.cv, f.m, f.hub, logger)
	if err != nil {
		t.Fatal(err)
	}
	f.srv = srv
	f.ts = httptest.NewServer(srv.Handler())
	t.Cleanup(f.ts.Close)
	return f
}

func (f *fixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(f.ts.URL + path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	if resp := f.get(t, "/healthz"); resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	f.m.ConnectionOpened()
	f.m.CommandProcessed(protocol.KindSize)
	canvas.Apply(f.cv, 1, 1, pixel.RGB(1, 2, 3)) //nolint:errcheck

	resp := f.get(t, "/stats")
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var st Stats
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.Width != 4 || st.Height != 3 {
		t.Errorf("size = %dx%d", st.Width, st.Height)
	}
	if st.ConnectionsActive != 1 || st.PixelsWritten != 1 {
		t.Errorf("stats = %+v", st)
	}
	if st.Commands["size"] != 1 {
		t.Errorf("commands = %v", st.Commands)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.m.CommandProcessed(protocol.KindSetPixel)

	body, _ := io.ReadAll(f.get(t, "/metrics").Body)
	for _, want := range []string{
		`pxflut_commands_total{kind="set"} 1`,
		"pxflut_connections_active 0",
		"go_goroutines",
	} {
		if !bytes.Contains(body, []byte(want)) {
			t.Errorf("/metrics missing %q", want)
		}
	}
}

func TestCanvasPNG(t *testing.T) {
	f := newFixture(t)
	f.grid.Set(2, 1, pixel.RGB(0xff, 0x80, 0x00)) //nolint:errcheck

	tests := []struct {
		query  string
		status int
		w, h   int
	}{
		{"", http.StatusOK, 4, 3},
		{"?scale=1", http.StatusOK, 4, 3},
		{"?scale=4", http.StatusOK, 16, 12},
		{"?scale=0", http.StatusBadRequest, 0, 0},
		{"?scale=17", http.StatusBadRequest, 0, 0},
		{"?scale=x", http.StatusBadRequest, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			resp := f.get(t, "/canvas.png"+tt.query)
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if tt.status != http.StatusOK {
				return
			}
			img, err := png.Decode(resp.Body)
			if err != nil {
				t.Fatal(err)
			}
			b := img.Bounds()
			if b.Dx() != tt.w || b.Dy() != tt.h {
				t.Fatalf("bounds = %v, want %dx%d", b, tt.w, tt.h)
			}
			scale := tt.w / 4
			r, g, bl, _ := img.At(2*scale, 1*scale).RGBA()
			if r>>8 != 0xff || g>>8 != 0x80 || bl>>8 != 0 {
				t.Errorf("pixel = %x %x %x", r>>8, g>>8, bl>>8)
			}
		})
	}
}

func TestCanvasPNG_NotRenderable(t *testing.T) {
	f := newFixture(t)
	// Embedding the interface hides the Snapshot method.
	f.srv.Canvas = struct{ canvas.Canvas }{f.grid}
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/canvas.png")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotImplemented {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestFeed(t *testing.T) {
	f := newFixture(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(f.ts.URL)+"/feed", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck

	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if string(msg) != "SIZE 4 3\n" {
		t.Fatalf("hello = %q", msg)
	}

	// The subscription exists once the hello has been sent.
	if n := f.hub.Subscribers(); n != 1 {
		t.Fatalf("Subscribers = %d", n)
	}
	canvas.Apply(f.cv, 0, 2, pixel.RGB(0xaa, 0xbb, 0xcc)) //nolint:errcheck
	canvas.Apply(f.cv, 3, 0, pixel.RGB(1, 2, 3))          //nolint:errcheck

	var got string
	for strings.Count(got, "\n") < 2 {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatal(err)
		}
		got += string(msg)
	}
	if want := "PX 0 2 aabbcc\nPX 3 0 010203\n"; got != want {
		t.Errorf("feed = %q, want %q", got, want)
	}
}

func TestFeed_ViewerLeaves(t *testing.T) {
	f := newFixture(t)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(f.ts.URL)+"/feed", nil)
	if err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatal(err)
	}
	conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for f.hub.Subscribers() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription not released")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestScale(t *testing.T) {
	g := canvas.NewGrid(2, 1, pixel.Black)
	g.Set(1, 0, pixel.RGB(0xff, 0xff, 0xff)) //nolint:errcheck
	img := g.Snapshot()

	if Scale(img, 1) != img {
		t.Error("scale 1 should return the source")
	}
	out := Scale(img, 3)
	if b := out.Bounds(); b.Dx() != 6 || b.Dy() != 3 {
		t.Fatalf("bounds = %v", b)
	}
	for x := 0; x < 6; x++ {
		r, _, _, _ := out.At(x, 2).RGBA()
		white := x >= 3
		if (r>>8 == 0xff) != white {
			t.Errorf("x=%d r=%x", x, r>>8)
		}
	}
}

func TestRun_Shutdown(t *testing.T) {
	f := newFixture(t)
	ready := make(chan net.Addr, 1)
	f.srv.Ready = func(a net.Addr) { ready <- a }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.srv.Run(ctx) }()

	var addr net.Addr
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("Run: %v", err)
	}
	resp, err := http.Get("http://" + addr.String() + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
