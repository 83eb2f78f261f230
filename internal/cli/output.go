package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

// Format is an output format for command results.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat validates s. Empty picks table when w is a terminal and JSON
// otherwise.
func ParseFormat(s string, w io.Writer) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	case "":
		if isTerminal(w) {
			return FormatTable, nil
		}
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (want table, json or yaml)", s)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// table is tabular output. Structured formats print data instead.
type table struct {
	headers []string
	rows    [][]string
}

// render writes data in format f, using t for the table format.
func render(w io.Writer, f Format, data any, t table) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	}

	tw := tablewriter.NewTable(w)
	headers := make([]any, len(t.headers))
	for i, h := range t.headers {
		headers[i] = h
	}
	tw.Header(headers...)
	for _, row := range t.rows {
		cells := make([]any, len(row))
		for i, c := range row {
			cells[i] = c
		}
		if err := tw.Append(cells...); err != nil {
			return err
		}
	}
	return tw.Render()
}
