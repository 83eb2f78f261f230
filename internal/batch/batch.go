// Package batch reads exported files into core.Batch values.
//
// Supported inputs are CSV (any encoding golang.org/x/text knows, UTF-8 by
// default) and Excel workbooks (.xlsx, .xlsm). The first non-blank line is
// the header; blank rows are dropped. Every cell is kept as text.
package batch

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/JonMunkholm/TabSync/internal/core"
)

// DefaultMaxFileSize is the largest export read when Options.MaxSize is 0.
const DefaultMaxFileSize = 100 * 1024 * 1024

var (
	ErrFileTooLarge    = errors.New("file too large")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrEmptyFile       = errors.New("empty file")
	ErrInvalidCSV      = errors.New("invalid csv")
	ErrInvalidXLSX     = errors.New("invalid xlsx")
)

// Options controls how a file is read.
type Options struct {
	// Encoding of CSV input, e.g. "windows-1252". Empty means UTF-8.
	Encoding string

	// Sheet selects the workbook sheet. Empty means the first sheet.
	Sheet string

	// MaxSize caps the bytes read. Zero means DefaultMaxFileSize; negative
	// disables the cap.
	MaxSize int64
}

func (o Options) maxSize() int64 {
	switch {
	case o.MaxSize == 0:
		return DefaultMaxFileSize
	case o.MaxSize < 0:
		return 0
	}
	return o.MaxSize
}

// Kind is the file format of an export.
type Kind string

const (
	KindCSV  Kind = "csv"
	KindXLSX Kind = "xlsx"
)

// KindOf returns the format implied by a file name's extension.
func KindOf(name string) (Kind, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		return KindCSV, nil
	case ".xlsx", ".xlsm":
		return KindXLSX, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedType, filepath.Ext(name))
}

// DatasetName derives a dataset name from a file name: the base name
// without its extension. "exports/Draft.csv" becomes "Draft".
func DatasetName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
}

// Read parses r according to the extension of name.
func Read(r io.Reader, name string, opts Options) (core.Batch, error) {
	kind, err := KindOf(name)
	if err != nil {
		return core.Batch{}, err
	}

	limited := &sizeLimiter{r: r, max: opts.maxSize()}

	switch kind {
	case KindXLSX:
		return ReadXLSX(limited, opts.Sheet)
	default:
		return ReadCSV(limited, opts.Encoding)
	}
}

// ReadFile opens path on fs and reads it. Files over the size cap are
// rejected before they are opened.
func ReadFile(fs afero.Fs, path string, opts Options) (core.Batch, error) {
	info, err := fs.Stat(path)
	if err != nil {
		return core.Batch{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if max := opts.maxSize(); max > 0 && info.Size() > max {
		return core.Batch{}, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrFileTooLarge, filepath.Base(path), info.Size(), max)
	}

	f, err := fs.Open(path)
	if err != nil {
		return core.Batch{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	b, err := Read(f, path, opts)
	if err != nil {
		return core.Batch{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return b, nil
}

// fromRecords builds a batch from raw records. Leading blank records are
// skipped, the next record is the header, and blank data rows are dropped.
func fromRecords(records [][]string) (core.Batch, error) {
	start := 0
	for start < len(records) && isBlank(records[start]) {
		start++
	}
	if start == len(records) {
		return core.Batch{}, ErrEmptyFile
	}

	header := cleanHeader(records[start])

	var rows [][]string
	for _, rec := range records[start+1:] {
		if isBlank(rec) {
			continue
		}
		rows = append(rows, rec)
	}
	return core.NewBatch(header, rows), nil
}

// cleanHeader trims header cells, names empty ones "Unnamed: <i>" and
// suffixes repeats with ".1", ".2", ...
func cleanHeader(raw []string) []string {
	header := make([]string, len(raw))
	seen := make(map[string]int, len(raw))
	for i, h := range raw {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" {
			h = fmt.Sprintf("Unnamed: %d", i)
		}
		if n, dup := seen[h]; dup {
			// A suffixed name may itself be taken, as in "A, A.1, A".
			base, name := h, h
			for dup {
				n++
				name = fmt.Sprintf("%s.%d", base, n)
				_, dup = seen[name]
			}
			seen[base] = n
			h = name
		}
		seen[h] = 0
		header[i] = h
	}
	return header
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
