package batch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/JonMunkholm/TabSync/internal/core"
)

// ReadCSV parses a CSV export. encoding names the text encoding; empty means
// UTF-8, with a BOM skipped and invalid bytes replaced.
func ReadCSV(r io.Reader, encoding string) (core.Batch, error) {
	text, err := decodeReader(r, encoding)
	if err != nil {
		return core.Batch{}, err
	}

	cr := csv.NewReader(text)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var records [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if errors.Is(err, ErrFileTooLarge) {
				return core.Batch{}, err
			}
			return core.Batch{}, fmt.Errorf("%w: %w", ErrInvalidCSV, err)
		}
		records = append(records, rec)
	}

	return fromRecords(records)
}

// WriteCSV writes ds as UTF-8 CSV: its header, then every row projected
// onto it.
func WriteCSV(w io.Writer, ds core.Dataset) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(ds.Records()); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}
