// File: protocol/framer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Incremental line framing over a non-blocking byte stream. Bytes are fed as
// they arrive; complete lines are yielded in arrival order and any trailing
// partial line stays buffered until more bytes arrive.

package protocol

import (
	"bytes"
	"unicode/utf8"

	"github.com/momentics/hioload-lines/api"
	"golang.org/x/text/encoding/unicode"
)

// DefaultMaxLineSize bounds a single request line.
const DefaultMaxLineSize = 64 * 1024

// Framer accumulates inbound bytes and splits them into lines.
type Framer struct {
	buf  []byte
	off  int // start of unconsumed data
	scan int // bytes past off already searched for a terminator
	max  int
}

// NewFramer creates a framer rejecting lines longer than maxLine bytes.
func NewFramer(maxLine int) *Framer {
	if maxLine <= 0 {
		maxLine = DefaultMaxLineSize
	}
	return &Framer{max: maxLine}
}

// Feed appends freshly read bytes.
func (f *Framer) Feed(p []byte) {
	if f.off > 0 && f.off == len(f.buf) {
		f.buf = f.buf[:0]
		f.off = 0
	} else if f.off > 0 && f.off >= cap(f.buf)/2 {
		n := copy(f.buf, f.buf[f.off:])
		f.buf = f.buf[:n]
		f.off = 0
	}
	f.buf = append(f.buf, p...)
}

// Next returns the next complete line without its terminator.
// ok is false when only a partial line (or nothing) is buffered.
// api.ErrLineTooLong is returned once the line limit is exceeded.
func (f *Framer) Next() (line string, ok bool, err error) {
	data := f.buf[f.off:]
	i := bytes.IndexByte(data[f.scan:], Terminator)
	if i < 0 {
		f.scan = len(data)
		if len(data) > f.max {
			return "", false, api.ErrLineTooLong
		}
		return "", false, nil
	}
	i += f.scan
	f.scan = 0
	if i > f.max {
		return "", false, api.ErrLineTooLong
	}
	raw := data[:i]
	f.off += i + 1
	if n := len(raw); n > 0 && raw[n-1] == '\r' {
		raw = raw[:n-1]
	}
	return decodeLine(raw), true, nil
}

// Buffered returns the number of bytes held for an incomplete line.
func (f *Framer) Buffered() int {
	return len(f.buf) - f.off
}

// Discard drops everything buffered.
func (f *Framer) Discard() {
	f.buf = f.buf[:0]
	f.off = 0
	f.scan = 0
}

// Release frees the backing buffer.
func (f *Framer) Release() {
	f.buf = nil
	f.off = 0
	f.scan = 0
}

// decodeLine converts bytes to a string, replacing malformed UTF-8 with U+FFFD.
func decodeLine(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	out, err := unicode.UTF8.NewDecoder().Bytes(raw)
	if err != nil {
		return string(bytes.ToValidUTF8(raw, []byte(string(utf8.RuneError))))
	}
	return string(out)
}
