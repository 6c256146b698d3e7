package util

import (
	"io"
	"testing"
)

// Sessions take a read buffer each; parallel Get/Put mirrors many
// clients connecting at once.
func BenchmarkBufPool_Parallel(b *testing.B) {
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			buf := GetBuf()
			(*buf)[0] = 'P'
			PutBuf(buf)
		}
	})
}

func BenchmarkLogger_With(b *testing.B) {
	l := NewLogger(2)
	l.SetOutput(io.Discard)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = l.With("session", "0f8c").With("remote", "10.0.0.1:5000")
	}
}

// Debug lines on the parse-error path must be cheap when filtered out.
func BenchmarkLogger_FilteredDebug(b *testing.B) {
	l := NewLogger(1).With("session", "0f8c")
	l.SetOutput(io.Discard)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		l.Debug("parse error: %v", "unknown command")
	}
}

func BenchmarkLogger_Verbose(b *testing.B) {
	l := NewLogger(2).With("session", "0f8c")
	l.SetOutput(io.Discard)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		l.Verbose("connection closed after %d commands", i)
	}
}
