package batch

// encoding.go turns raw export bytes into clean UTF-8 without buffering the
// whole file:
//
//   - bomSkipper drops a leading UTF-8 byte order mark
//   - sanitizer replaces invalid UTF-8 bytes with '?'
//   - sizeLimiter fails once more than the allowed bytes have been read
//
// Exports that are not UTF-8 (Excel on Windows defaults to windows-1252) are
// decoded with golang.org/x/text instead of being sanitized.

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// bomSkipper removes a UTF-8 BOM from the start of the stream.
type bomSkipper struct {
	r       *bufio.Reader
	checked bool
}

func newBOMSkipper(r io.Reader) *bomSkipper {
	return &bomSkipper{r: bufio.NewReader(r)}
}

func (b *bomSkipper) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true
		head, _ := b.r.Peek(len(utf8BOM))
		if bytes.Equal(head, utf8BOM) {
			b.r.Discard(len(utf8BOM))
		}
	}
	return b.r.Read(p)
}

// sanitizer replaces invalid UTF-8 bytes with '?'. A multi-byte sequence
// split across two reads is carried over rather than replaced.
type sanitizer struct {
	r       io.Reader
	pending []byte
}

func newSanitizer(r io.Reader) *sanitizer {
	return &sanitizer{r: r, pending: make([]byte, 0, utf8.UTFMax)}
}

func (s *sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	offset := copy(p, s.pending)
	s.pending = s.pending[:0]

	n, err := s.r.Read(p[offset:])
	n += offset
	if n == 0 {
		return 0, err
	}

	if asciiOnly(p[:n]) {
		return n, err
	}
	return s.clean(p[:n], err == io.EOF), err
}

// clean rewrites data in place and returns the number of bytes kept.
func (s *sanitizer) clean(data []byte, atEOF bool) int {
	write := 0
	for read := 0; read < len(data); {
		r, size := utf8.DecodeRune(data[read:])

		if r == utf8.RuneError && size == 1 {
			if !atEOF && partialRune(data[read:]) {
				s.pending = append(s.pending, data[read:]...)
				return write
			}
			data[write] = '?'
			write++
			read++
			continue
		}

		copy(data[write:], data[read:read+size])
		write += size
		read += size
	}
	return write
}

func asciiOnly(data []byte) bool {
	for _, b := range data {
		if b >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// partialRune reports whether data is the valid beginning of a multi-byte
// rune that was cut off by the end of the buffer.
func partialRune(data []byte) bool {
	if len(data) >= utf8.UTFMax {
		return false
	}
	want := 0
	switch b := data[0]; {
	case b&0xE0 == 0xC0:
		want = 2
	case b&0xF0 == 0xE0:
		want = 3
	case b&0xF8 == 0xF0:
		want = 4
	default:
		return false
	}
	if len(data) >= want {
		return false
	}
	for _, c := range data[1:] {
		if c&0xC0 != 0x80 {
			return false
		}
	}
	return true
}

// sizeLimiter counts bytes read and fails with ErrFileTooLarge past max.
type sizeLimiter struct {
	r    io.Reader
	max  int64
	read int64
}

func (l *sizeLimiter) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.read += int64(n)
	if l.max > 0 && l.read > l.max {
		return n, fmt.Errorf("%w: more than %d bytes", ErrFileTooLarge, l.max)
	}
	return n, err
}

// decodeReader wraps r so that it yields UTF-8 text. An empty name or any
// UTF-8 alias is sanitized; other names are resolved through the WHATWG
// encoding index (e.g. "windows-1252", "latin1", "utf-16le").
func decodeReader(r io.Reader, name string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return newSanitizer(newBOMSkipper(r)), nil
	}

	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", name, err)
	}
	return transform.NewReader(r, decoderFor(enc)), nil
}

// decoderFor honors a UTF-8 or UTF-16 BOM ahead of the declared encoding.
func decoderFor(enc encoding.Encoding) transform.Transformer {
	return unicode.BOMOverride(enc.NewDecoder())
}
