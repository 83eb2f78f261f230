package batch

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func TestBOMSkipper(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{"with BOM", append([]byte{0xEF, 0xBB, 0xBF}, "id,name"...), "id,name"},
		{"without BOM", []byte("id,name"), "id,name"},
		{"empty", []byte{}, ""},
		{"only BOM", []byte{0xEF, 0xBB, 0xBF}, ""},
		{"partial BOM kept", []byte{0xEF, 0xBB, 'a'}, string([]byte{0xEF, 0xBB, 'a'})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(newBOMSkipper(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestSanitizer(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{"ascii", []byte("a,b"), "a,b"},
		{"valid multibyte", []byte("Zoë,Café"), "Zoë,Café"},
		{"invalid byte replaced", []byte{'h', 'e', 0x80, 'l', 'o'}, "he?lo"},
		{"truncated rune at EOF", []byte{'a', 0xC3}, "a?"},
		{"empty", []byte{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(newSanitizer(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestSanitizer_RuneSplitAcrossReads(t *testing.T) {
	input := []byte(strings.Repeat("é", 50))

	// OneByteReader hands over one byte per call, splitting every rune.
	got, err := io.ReadAll(newSanitizer(iotest.OneByteReader(bytes.NewReader(input))))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != string(input) {
		t.Errorf("got %q, want %q", got, input)
	}
}

func TestSizeLimiter(t *testing.T) {
	l := &sizeLimiter{r: strings.NewReader(strings.Repeat("x", 100)), max: 10}

	_, err := io.ReadAll(l)
	if !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("expected ErrFileTooLarge, got %v", err)
	}

	l = &sizeLimiter{r: strings.NewReader("abc"), max: 10}
	if _, err := io.ReadAll(l); err != nil {
		t.Errorf("under the limit: unexpected error %v", err)
	}
}

func TestDecodeReader(t *testing.T) {
	tests := []struct {
		name     string
		encoding string
		input    []byte
		expected string
	}{
		{"default utf-8 strips BOM", "", append([]byte{0xEF, 0xBB, 0xBF}, "Café"...), "Café"},
		{"windows-1252", "windows-1252", []byte("Caf\xe9 \x93q\x94"), "Café “q”"},
		{"latin1 alias", "latin1", []byte("Caf\xe9"), "Café"},
		{"utf-8 BOM overrides declared encoding", "windows-1252", append([]byte{0xEF, 0xBB, 0xBF}, "Café"...), "Café"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := decodeReader(bytes.NewReader(tt.input), tt.encoding)
			if err != nil {
				t.Fatalf("decodeReader: %v", err)
			}
			got, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if string(got) != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}

	if _, err := decodeReader(strings.NewReader(""), "klingon"); err == nil {
		t.Error("expected error for unknown encoding")
	}
}
