package parser

// stream.go wraps the raw object stream before it reaches the CSV reader:
//
//   - skipBOM drops a leading UTF-8 byte order mark (Excel exports carry one)
//   - utf8Sanitizer replaces bytes that are not valid UTF-8 with '?'
//   - CountingReader tracks bytes consumed for metrics
//
// Every wrapper is streaming; memory stays O(buffer) regardless of file size.

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Prepare applies BOM skipping and UTF-8 sanitising, in that order.
func Prepare(r io.Reader) io.Reader {
	return &utf8Sanitizer{r: skipBOM(r)}
}

func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

// utf8Sanitizer rewrites invalid bytes in place. Replacement is a single '?'
// so the byte count never grows; an incomplete rune at the end of a read is
// carried into the next one instead of being treated as invalid.
type utf8Sanitizer struct {
	r       io.Reader
	pending []byte
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	offset := copy(p, s.pending)
	s.pending = s.pending[:copy(s.pending, s.pending[offset:])]

	n, err := s.r.Read(p[offset:])
	n += offset
	atEOF := err == io.EOF

	for i := 0; i < n; {
		if p[i] < utf8.RuneSelf {
			i++
			continue
		}
		r, size := utf8.DecodeRune(p[i:n])
		if r == utf8.RuneError && size == 1 {
			if !atEOF && !utf8.FullRune(p[i:n]) {
				s.pending = append(s.pending, p[i:n]...)
				return i, err
			}
			p[i] = '?'
		}
		i += size
	}
	return n, err
}

// CountingReader counts bytes read through it. Not safe for concurrent use;
// one file run owns one counter.
type CountingReader struct {
	r         io.Reader
	BytesRead int64
}

// NewCountingReader wraps r.
func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{r: r}
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.BytesRead += int64(n)
	return n, err
}
