package session

import (
	"strings"
	"testing"
)

type frame struct {
	line    string
	tooLong bool
}

func feedAll(f *Framer, chunks ...string) []frame {
	var got []frame
	for _, c := range chunks {
		f.Feed([]byte(c), func(line []byte, tooLong bool) {
			got = append(got, frame{string(line), tooLong})
		})
	}
	return got
}

func TestFramer(t *testing.T) {
	tests := []struct {
		name    string
		max     int
		chunks  []string
		want    []frame
		pending int
	}{
		{"single", 0, []string{"SIZE\n"}, []frame{{"SIZE", false}}, 0},
		{"pipelined", 0, []string{"PX 0 0 ff0000\nPX 1 0 00ff00\nPX 0 0\n"},
			[]frame{{"PX 0 0 ff0000", false}, {"PX 1 0 00ff00", false}, {"PX 0 0", false}}, 0},
		{"split across reads", 0, []string{"PX 1", "0 2", "0 ffffff\nSI", "ZE\n"},
			[]frame{{"PX 10 20 ffffff", false}, {"SIZE", false}}, 0},
		{"partial kept", 0, []string{"HELP\nPX 1 2"}, []frame{{"HELP", false}}, 6},
		{"empty lines", 0, []string{"\n\n"}, []frame{{"", false}, {"", false}}, 0},
		{"crlf left to parser", 0, []string{"SIZE\r\n"}, []frame{{"SIZE\r", false}}, 0},
		{"exactly max", 4, []string{"SIZE\n"}, []frame{{"SIZE", false}}, 0},
		{"too long in one read", 4, []string{"HELPX\nSIZE\n"},
			[]frame{{"", true}, {"SIZE", false}}, 0},
		{"too long across reads", 4, []string{"HE", "LPXXXX", "XXXX", "X\nSIZE\n"},
			[]frame{{"", true}, {"SIZE", false}}, 0},
		{"too long without newline", 4, []string{"XXXXXXXX"}, []frame{{"", true}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFramer(tt.max)
			got := feedAll(f, tt.chunks...)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d lines %v, want %v", len(got), got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("line %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
			if f.Pending() != tt.pending {
				t.Errorf("Pending = %d, want %d", f.Pending(), tt.pending)
			}
		})
	}
}

func TestFramer_DiscardReportsOnce(t *testing.T) {
	f := NewFramer(8)
	got := feedAll(f, strings.Repeat("X", 100), strings.Repeat("Y", 100), "\nHELP\n")
	want := []frame{{"", true}, {"HELP", false}}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestFramer_Reset(t *testing.T) {
	f := NewFramer(0)
	feedAll(f, "PX 1 2 ")
	f.Reset()
	got := feedAll(f, "SIZE\n")
	if len(got) != 1 || got[0].line != "SIZE" {
		t.Errorf("got %v after Reset", got)
	}
}
