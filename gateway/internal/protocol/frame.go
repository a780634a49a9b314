package protocol

import (
	"bytes"
	"strings"
)

// MaxFrameLen bounds an unterminated frame. Device lines are short; a run
// this long without a newline is line noise and is discarded.
const MaxFrameLen = 512

// FrameReader accumulates serial bytes and splits them into frames.
// It is not safe for concurrent use; the reader loop owns it.
type FrameReader struct {
	buf       []byte
	overflows int
}

// Feed appends p and returns every frame completed by it, in order.
// Frames that are empty after trimming are discarded.
func (f *FrameReader) Feed(p []byte) []string {
	var frames []string
	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			f.buf = append(f.buf, p...)
			if len(f.buf) > MaxFrameLen {
				f.buf = f.buf[:0]
				f.overflows++
			}
			break
		}
		f.buf = append(f.buf, p[:i]...)
		p = p[i+1:]

		line := strings.TrimSpace(string(bytes.TrimRight(f.buf, "\r")))
		f.buf = f.buf[:0]
		if line != "" {
			frames = append(frames, line)
		}
	}
	return frames
}

// Reset discards any partial frame.
func (f *FrameReader) Reset() {
	f.buf = f.buf[:0]
}

// Buffered returns the number of bytes waiting for a terminator.
func (f *FrameReader) Buffered() int { return len(f.buf) }

// Overflows returns how many unterminated runs were discarded.
func (f *FrameReader) Overflows() int { return f.overflows }
