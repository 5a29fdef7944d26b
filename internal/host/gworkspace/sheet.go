package gworkspace

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/api/sheets/v4"
)

// Sheet is one tab of a spreadsheet.
type Sheet struct {
	svc           *sheets.Service
	spreadsheetID string
	name          string

	mu      sync.Mutex
	sheetID *int64
}

func NewSheet(svc *sheets.Service, spreadsheetID, name string) *Sheet {
	return &Sheet{svc: svc, spreadsheetID: spreadsheetID, name: name}
}

// ColumnLetter converts a 1-based column to A1 letters.
func ColumnLetter(col int) string {
	var b []byte
	for col > 0 {
		col--
		b = append([]byte{byte('A' + col%26)}, b...)
		col /= 26
	}
	return string(b)
}

func (s *Sheet) a1(row, col, numRows, numCols int) string {
	quoted := "'" + strings.ReplaceAll(s.name, "'", "''") + "'"
	start := fmt.Sprintf("%s%d", ColumnLetter(col), row)
	if numRows == 1 && numCols == 1 {
		return quoted + "!" + start
	}
	end := fmt.Sprintf("%s%d", ColumnLetter(col+numCols-1), row+numRows-1)
	return quoted + "!" + start + ":" + end
}

func (s *Sheet) all(ctx context.Context) ([][]any, error) {
	quoted := "'" + strings.ReplaceAll(s.name, "'", "''") + "'"
	vr, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, quoted).Context(ctx).Do()
	if err != nil {
		return nil, apiErr("reading sheet", err)
	}
	return vr.Values, nil
}

func nonEmpty(v any) bool {
	return v != nil && fmt.Sprint(v) != ""
}

// LastRow returns the last row holding a value.
func (s *Sheet) LastRow(ctx context.Context) (int, error) {
	rows, err := s.all(ctx)
	if err != nil {
		return 0, err
	}
	for r := len(rows) - 1; r >= 0; r-- {
		for _, v := range rows[r] {
			if nonEmpty(v) {
				return r + 1, nil
			}
		}
	}
	return 0, nil
}

// LastColumn returns the last column holding a value in any row.
func (s *Sheet) LastColumn(ctx context.Context) (int, error) {
	rows, err := s.all(ctx)
	if err != nil {
		return 0, err
	}
	last := 0
	for _, row := range rows {
		for c := len(row) - 1; c >= last; c-- {
			if nonEmpty(row[c]) {
				last = c + 1
				break
			}
		}
	}
	return last, nil
}

// ReadRange returns a dense numRows x numCols block of formatted values.
func (s *Sheet) ReadRange(ctx context.Context, row, col, numRows, numCols int) ([][]string, error) {
	out := make([][]string, numRows)
	for i := range out {
		out[i] = make([]string, numCols)
	}
	if numRows == 0 || numCols == 0 {
		return out, nil
	}
	vr, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.a1(row, col, numRows, numCols)).Context(ctx).Do()
	if err != nil {
		return nil, apiErr("reading range", err)
	}
	for r, values := range vr.Values {
		if r >= numRows {
			break
		}
		for c, v := range values {
			if c >= numCols {
				break
			}
			if v != nil {
				out[r][c] = fmt.Sprint(v)
			}
		}
	}
	return out, nil
}

func (s *Sheet) SetValue(ctx context.Context, row, col int, value string) error {
	vr := &sheets.ValueRange{Values: [][]any{{value}}}
	_, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, s.a1(row, col, 1, 1), vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return apiErr("writing cell", err)
	}
	return nil
}

// tabID looks up the numeric id of the tab once.
func (s *Sheet) tabID(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sheetID != nil {
		return *s.sheetID, nil
	}
	ss, err := s.svc.Spreadsheets.Get(s.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, apiErr("reading spreadsheet", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == s.name {
			id := sh.Properties.SheetId
			s.sheetID = &id
			return id, nil
		}
	}
	return 0, fmt.Errorf("sheet %q not found in spreadsheet", s.name)
}

func (s *Sheet) batch(ctx context.Context, req *sheets.Request) error {
	_, err := s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{req},
	}).Context(ctx).Do()
	if err != nil {
		return apiErr("updating sheet", err)
	}
	return nil
}

func (s *Sheet) cellRange(ctx context.Context, row, col int) (*sheets.GridRange, error) {
	id, err := s.tabID(ctx)
	if err != nil {
		return nil, err
	}
	return &sheets.GridRange{
		SheetId:          id,
		StartRowIndex:    int64(row - 1),
		EndRowIndex:      int64(row),
		StartColumnIndex: int64(col - 1),
		EndColumnIndex:   int64(col),
		ForceSendFields:  []string{"SheetId", "StartRowIndex", "StartColumnIndex"},
	}, nil
}

func (s *Sheet) SetNote(ctx context.Context, row, col int, note string) error {
	rng, err := s.cellRange(ctx, row, col)
	if err != nil {
		return err
	}
	return s.batch(ctx, &sheets.Request{UpdateCells: &sheets.UpdateCellsRequest{
		Range:  rng,
		Rows:   []*sheets.RowData{{Values: []*sheets.CellData{{Note: note}}}},
		Fields: "note",
	}})
}

func (s *Sheet) SetHorizontalAlignment(ctx context.Context, row, col int, align string) error {
	rng, err := s.cellRange(ctx, row, col)
	if err != nil {
		return err
	}
	return s.batch(ctx, &sheets.Request{RepeatCell: &sheets.RepeatCellRequest{
		Range: rng,
		Cell: &sheets.CellData{UserEnteredFormat: &sheets.CellFormat{
			HorizontalAlignment: strings.ToUpper(align),
		}},
		Fields: "userEnteredFormat.horizontalAlignment",
	}})
}

func (s *Sheet) SetColumnWidth(ctx context.Context, col, width int) error {
	id, err := s.tabID(ctx)
	if err != nil {
		return err
	}
	return s.batch(ctx, &sheets.Request{UpdateDimensionProperties: &sheets.UpdateDimensionPropertiesRequest{
		Range: &sheets.DimensionRange{
			SheetId:         id,
			Dimension:       "COLUMNS",
			StartIndex:      int64(col - 1),
			EndIndex:        int64(col),
			ForceSendFields: []string{"SheetId", "StartIndex"},
		},
		Properties: &sheets.DimensionProperties{PixelSize: int64(width)},
		Fields:     "pixelSize",
	}})
}

// AppendRow appends values after the last row of the table.
func (s *Sheet) AppendRow(ctx context.Context, values []string) (int, error) {
	row := make([]any, len(values))
	for i, v := range values {
		row[i] = v
	}
	quoted := "'" + strings.ReplaceAll(s.name, "'", "''") + "'"
	resp, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, quoted, &sheets.ValueRange{Values: [][]any{row}}).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return 0, apiErr("appending row", err)
	}
	if resp.Updates == nil {
		return 0, nil
	}
	return rowOf(resp.Updates.UpdatedRange), nil
}

// rowOf extracts the first row number from an A1 range like 'Tab'!A5:C5.
func rowOf(rng string) int {
	if i := strings.LastIndex(rng, "!"); i >= 0 {
		rng = rng[i+1:]
	}
	rng, _, _ = strings.Cut(rng, ":")
	n := 0
	for _, c := range rng {
		if c >= '0' && c <= '9' {
			n = n*10 + int(c-'0')
		}
	}
	return n
}
