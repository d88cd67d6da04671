package wire

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// MaxLineSize bounds a single header line. Longer lines end the stream
// with bufio.ErrTooLong.
const MaxLineSize = 64 * 1024

// Parser splits a platform byte stream into Frames. Bare lines outside a
// frame are skipped; the first one is kept as the bridge banner.
type Parser struct {
	scanner *bufio.Scanner
	banner  string
	seen    bool
}

func NewParser(r io.Reader) *Parser {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 4096), MaxLineSize)
	return &Parser{scanner: s}
}

// Next returns the next frame, or false once the stream is exhausted. A
// trailing frame without its blank terminator is still returned.
func (p *Parser) Next() (Frame, bool) {
	var f Frame
	for p.scanner.Scan() {
		line := strings.TrimSuffix(p.scanner.Text(), "\r")
		if line == "" {
			if len(f.headers) == 0 {
				continue
			}
			return f, true
		}

		key, value, ok := strings.Cut(line, ": ")
		switch {
		case ok:
			f.headers = append(f.headers, Header{Key: key, Value: value})
		case len(f.headers) > 0:
			// kept with an empty key so decoding can still see the frame
			f.headers = append(f.headers, Header{Value: line})
		case !p.seen:
			p.banner = line
		}
		p.seen = true
	}
	return f, len(f.headers) > 0
}

// Banner returns the greeting line the bridge sent before its first frame.
func (p *Parser) Banner() string {
	return p.banner
}

// Err returns the first non-EOF read error.
func (p *Parser) Err() error {
	return p.scanner.Err()
}

// ParseAll reads every frame from the stream.
func (p *Parser) ParseAll() []Frame {
	var frames []Frame
	for f, ok := p.Next(); ok; f, ok = p.Next() {
		frames = append(frames, f)
	}
	return frames
}

// ParseBytes parses all frames in data.
func ParseBytes(data []byte) []Frame {
	return NewParser(bytes.NewReader(data)).ParseAll()
}
