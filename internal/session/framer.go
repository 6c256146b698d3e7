package session

import "bytes"

// Framer splits a byte stream into newline-terminated lines.  Bytes
// after the last newline are kept until more data arrives, so a command
// split across reads is reassembled and a trailing partial line is
// never executed.
type Framer struct {
	max        int
	buf        []byte
	discarding bool
}

// NewFramer returns a framer rejecting lines longer than max bytes.
// max <= 0 disables the limit.
func NewFramer(max int) *Framer {
	return &Framer{max: max}
}

// Feed consumes p and calls fn, in order, for every complete line it
// finishes.  line excludes the newline and is only valid during the
// call.  A line that outgrows the limit is reported once with tooLong
// set and its remaining bytes are dropped up to the next newline.
func (f *Framer) Feed(p []byte, fn func(line []byte, tooLong bool)) {
	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		seg := p
		if i >= 0 {
			seg = p[:i]
		}

		if !f.discarding {
			switch {
			case f.max > 0 && len(f.buf)+len(seg) > f.max:
				f.discarding = true
				f.buf = f.buf[:0]
				fn(nil, true)
			case i < 0:
				f.buf = append(f.buf, seg...)
			case len(f.buf) == 0:
				fn(seg, false)
			default:
				f.buf = append(f.buf, seg...)
				fn(f.buf, false)
				f.buf = f.buf[:0]
			}
		}

		if i < 0 {
			return
		}
		f.discarding = false
		p = p[i+1:]
	}
}

// Pending returns the number of buffered bytes of the unfinished line.
func (f *Framer) Pending() int { return len(f.buf) }

// Reset drops any partial line.
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
	f.discarding = false
}
