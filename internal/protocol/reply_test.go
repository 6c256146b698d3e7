package protocol

import (
	"errors"
	"strings"
	"testing"

	"pxflut/internal/pixel"
)

func TestAppendSize(t *testing.T) {
	if got := string(AppendSize(nil, 1024, 768)); got != "SIZE 1024 768\n" {
		t.Errorf("got %q", got)
	}
}

func TestAppendPixel(t *testing.T) {
	got := string(AppendPixel(nil, 1024, 768, pixel.RGB(0x00, 0xff, 0x00)))
	if got != "PX 1024 768 00ff00\n" {
		t.Errorf("got %q", got)
	}
	// Alpha never leaks into a read reply.
	got = string(AppendPixel(nil, 1, 2, pixel.RGBA(1, 2, 3, 4)))
	if got != "PX 1 2 010203\n" {
		t.Errorf("got %q", got)
	}
}

func TestAppendHelp(t *testing.T) {
	got := string(AppendHelp(nil))
	if !strings.HasPrefix(got, "HELP ") || strings.Count(got, "\n") != 1 {
		t.Errorf("help reply must be a single HELP line, got %q", got)
	}
}

func TestAppendError(t *testing.T) {
	_, err := Parse([]byte("PX abc"))
	if got := string(AppendError(nil, err)); got != "ERR wrong number of arguments\n" {
		t.Errorf("got %q", got)
	}
	if got := string(AppendError(nil, errors.New("boom"))); got != "ERR boom\n" {
		t.Errorf("got %q", got)
	}
}

// Appending to an existing buffer keeps what is already there.
func TestAppend_Chained(t *testing.T) {
	buf := AppendSize(nil, 1, 1)
	buf = AppendPixel(buf, 0, 0, pixel.Black)
	if got := string(buf); got != "SIZE 1 1\nPX 0 0 000000\n" {
		t.Errorf("got %q", got)
	}
}
