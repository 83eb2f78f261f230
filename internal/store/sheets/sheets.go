// Package sheets stores datasets as tabs of a Google spreadsheet.
//
// Each dataset is one tab. Row 1 holds the header and every following row
// one record. Writes replace the tab from A1 and clear any rows left over
// from a longer previous write.
package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/JonMunkholm/TabSync/internal/core"
	"github.com/JonMunkholm/TabSync/internal/logging"
)

// LastColumn bounds every range read or cleared.
const LastColumn = "ZZ"

// ErrNoCredentials is returned when neither inline nor file credentials are set.
var ErrNoCredentials = errors.New("sheets: no credentials configured")

// tab describes one sheet of the spreadsheet.
type tab struct {
	title    string
	rowCount int64
}

// api is the subset of the Sheets service the store needs.
type api interface {
	get(ctx context.Context, rng string) ([][]any, error)
	update(ctx context.Context, rng string, values [][]any) error
	append(ctx context.Context, rng string, values [][]any) error
	clear(ctx context.Context, rng string) error
	tabs(ctx context.Context) ([]tab, error)
	addTab(ctx context.Context, title string) error
}

// Store is a core.TabularStore backed by one spreadsheet.
type Store struct {
	api api
}

// Credentials locates a service account key. JSON wins over Path.
type Credentials struct {
	JSON string
	Path string
}

// New connects to the spreadsheet sheetID.
func New(ctx context.Context, sheetID string, creds Credentials) (*Store, error) {
	if sheetID == "" {
		return nil, errors.New("sheets: spreadsheet ID is required")
	}

	key, err := creds.load()
	if err != nil {
		return nil, err
	}

	svc, err := sheets.NewService(ctx,
		option.WithCredentialsJSON(key),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("sheets: create service: %w", err)
	}

	return &Store{api: &service{svc: svc, id: sheetID}}, nil
}

// load returns the key bytes. Inline keys pasted into env files often carry
// raw line breaks inside private_key; those are escaped on retry.
func (c Credentials) load() ([]byte, error) {
	if c.JSON != "" {
		raw := []byte(c.JSON)
		if json.Valid(raw) {
			return raw, nil
		}
		fixed := []byte(strings.ReplaceAll(c.JSON, "\n", `\n`))
		if json.Valid(fixed) {
			return fixed, nil
		}
		return nil, errors.New("sheets: GOOGLE_CREDENTIALS_JSON is not valid JSON")
	}

	if c.Path != "" {
		raw, err := os.ReadFile(c.Path)
		if err != nil {
			return nil, fmt.Errorf("sheets: read credentials: %w", err)
		}
		return raw, nil
	}

	return nil, ErrNoCredentials
}

// Ping verifies the spreadsheet is reachable.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.api.tabs(ctx)
	return err
}

// Close is a no-op; the HTTP client needs no teardown.
func (s *Store) Close() {}

// Datasets lists the tab titles.
func (s *Store) Datasets(ctx context.Context) ([]string, error) {
	tabs, err := s.api.tabs(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(tabs))
	for i, t := range tabs {
		names[i] = t.title
	}
	return names, nil
}

// ReadDataset reads the tab. A missing or blank tab is an empty dataset.
func (s *Store) ReadDataset(ctx context.Context, name string) (core.Dataset, error) {
	values, err := s.api.get(ctx, rangeOf(name, "A", LastColumn))
	if isMissingTab(err) {
		return core.NewDataset(name, nil, nil), nil
	}
	if err != nil {
		return core.Dataset{}, fmt.Errorf("read tab %q: %w", name, err)
	}
	return toDataset(name, values), nil
}

// WriteDataset replaces the tab's contents, creating the tab if needed.
func (s *Store) WriteDataset(ctx context.Context, name string, ds core.Dataset) error {
	if _, err := s.ensureTab(ctx, name); err != nil {
		return err
	}

	values := toValues(ds.Records())
	if err := s.api.update(ctx, rangeOf(name, "A1", ""), values); err != nil {
		return fmt.Errorf("write tab %q: %w", name, err)
	}

	s.clearTail(ctx, name, int64(len(values)))
	return nil
}

// AppendRows adds rows below the tab's data, writing columns as the header
// when the tab is new or blank.
func (s *Store) AppendRows(ctx context.Context, name string, columns []string, rows []core.Row) error {
	created, err := s.ensureTab(ctx, name)
	if err != nil {
		return err
	}

	header := columns
	if !created {
		first, err := s.api.get(ctx, rangeOf(name, "1", "1"))
		if err != nil && !isMissingTab(err) {
			return fmt.Errorf("read header of %q: %w", name, err)
		}
		if existing := headerOf(first); len(existing) > 0 {
			header = existing
		} else {
			created = true
		}
	}

	if created {
		if err := s.api.update(ctx, rangeOf(name, "A1", ""), toValues([][]string{columns})); err != nil {
			return fmt.Errorf("write header of %q: %w", name, err)
		}
	}

	if len(rows) == 0 {
		return nil
	}

	records := make([][]string, len(rows))
	for i, r := range rows {
		records[i] = r.Values(header)
	}
	if err := s.api.append(ctx, rangeOf(name, "A1", ""), toValues(records)); err != nil {
		return fmt.Errorf("append to tab %q: %w", name, err)
	}
	return nil
}

// ensureTab adds the tab if the spreadsheet lacks it and reports whether it
// was created.
func (s *Store) ensureTab(ctx context.Context, name string) (bool, error) {
	tabs, err := s.api.tabs(ctx)
	if err != nil {
		return false, fmt.Errorf("list tabs: %w", err)
	}
	for _, t := range tabs {
		if t.title == name {
			return false, nil
		}
	}
	if err := s.api.addTab(ctx, name); err != nil {
		return false, fmt.Errorf("add tab %q: %w", name, err)
	}
	return true, nil
}

// clearTail blanks rows below written. Failure leaves stale rows behind
// but the write itself succeeded, so it is only logged.
func (s *Store) clearTail(ctx context.Context, name string, written int64) {
	logger := logging.WithFields(ctx, "tab", name)

	tabs, err := s.api.tabs(ctx)
	if err != nil {
		logger.Warn("could not read tab size after write", "error", err)
		return
	}

	var rowCount int64
	for _, t := range tabs {
		if t.title == name {
			rowCount = t.rowCount
			break
		}
	}
	if written >= rowCount {
		return
	}

	rng := rangeOf(name, fmt.Sprintf("A%d", written+1), fmt.Sprintf("%s%d", LastColumn, rowCount))
	if err := s.api.clear(ctx, rng); err != nil {
		logger.Warn("could not clear stale rows", "range", rng, "error", err)
	}
}

// quoteTab quotes a tab title for A1 notation.
func quoteTab(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// rangeOf builds "'Tab'!from:to", or "'Tab'!from" when to is empty.
func rangeOf(name, from, to string) string {
	r := quoteTab(name) + "!" + from
	if to != "" {
		r += ":" + to
	}
	return r
}

// isMissingTab reports whether err is the API's answer to a range naming a
// tab that does not exist.
func isMissingTab(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	return gerr.Code == http.StatusBadRequest && strings.Contains(gerr.Message, "Unable to parse range")
}

// toDataset turns a value grid into a dataset. Row 1 is the header; short
// rows are padded and cells beyond the header are dropped.
func toDataset(name string, values [][]any) core.Dataset {
	header := headerOf(values)
	if len(header) == 0 {
		return core.NewDataset(name, nil, nil)
	}

	rows := make([]core.Row, 0, len(values)-1)
	for _, v := range values[1:] {
		rows = append(rows, core.NewRow(header, cellsOf(v)))
	}
	return core.NewDataset(name, header, rows)
}

func headerOf(values [][]any) []string {
	if len(values) == 0 {
		return nil
	}
	return cellsOf(values[0])
}

func cellsOf(row []any) []string {
	out := make([]string, len(row))
	for i, v := range row {
		switch t := v.(type) {
		case nil:
		case string:
			out[i] = t
		default:
			out[i] = fmt.Sprint(t)
		}
	}
	return out
}

func toValues(records [][]string) [][]any {
	out := make([][]any, len(records))
	for i, rec := range records {
		row := make([]any, len(rec))
		for j, v := range rec {
			row[j] = v
		}
		out[i] = row
	}
	return out
}

// service adapts *sheets.Service to api.
type service struct {
	svc *sheets.Service
	id  string
}

func (s *service) get(ctx context.Context, rng string) ([][]any, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.id, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (s *service) update(ctx context.Context, rng string, values [][]any) error {
	_, err := s.svc.Spreadsheets.Values.Update(s.id, rng, &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

func (s *service) append(ctx context.Context, rng string, values [][]any) error {
	_, err := s.svc.Spreadsheets.Values.Append(s.id, rng, &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}

func (s *service) clear(ctx context.Context, rng string) error {
	_, err := s.svc.Spreadsheets.Values.Clear(s.id, rng, &sheets.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

func (s *service) tabs(ctx context.Context) ([]tab, error) {
	ss, err := s.svc.Spreadsheets.Get(s.id).
		Fields(googleapi.Field("sheets.properties")).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}

	out := make([]tab, 0, len(ss.Sheets))
	for _, sh := range ss.Sheets {
		if sh.Properties == nil {
			continue
		}
		t := tab{title: sh.Properties.Title}
		if sh.Properties.GridProperties != nil {
			t.rowCount = sh.Properties.GridProperties.RowCount
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *service) addTab(ctx context.Context, title string) error {
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: title},
			},
		}},
	}
	_, err := s.svc.Spreadsheets.BatchUpdate(s.id, req).Context(ctx).Do()
	return err
}
