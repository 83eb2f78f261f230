package batch

import (
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/TabSync/internal/core"
)

// ReadXLSX parses one sheet of an Excel workbook. An empty sheet name selects
// the first sheet. Cells are read with their display formatting, so numbers
// come back as they appear in Excel.
func ReadXLSX(r io.Reader, sheet string) (core.Batch, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		if errors.Is(err, ErrFileTooLarge) {
			return core.Batch{}, err
		}
		return core.Batch{}, fmt.Errorf("%w: %w", ErrInvalidXLSX, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return core.Batch{}, ErrEmptyFile
	}
	if sheet == "" {
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return core.Batch{}, fmt.Errorf("%w: sheet %q: %w", ErrInvalidXLSX, sheet, err)
	}
	return fromRecords(rows)
}
