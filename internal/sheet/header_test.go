package sheet

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type cell struct {
	value, note, align string
}

// gridSheet is an in-memory host.Sheet.
type gridSheet struct {
	cells  map[[2]int]*cell
	widths map[int]int
	err    error
}

func newGridSheet(header ...string) *gridSheet {
	g := &gridSheet{cells: make(map[[2]int]*cell), widths: make(map[int]int)}
	for i, h := range header {
		g.SetValue(context.Background(), 1, i+1, h)
	}
	return g
}

func (g *gridSheet) at(row, col int) *cell {
	c, ok := g.cells[[2]int{row, col}]
	if !ok {
		c = &cell{}
		g.cells[[2]int{row, col}] = c
	}
	return c
}

func (g *gridSheet) LastRow(context.Context) (int, error) {
	last := 0
	for k, c := range g.cells {
		if c.value != "" && k[0] > last {
			last = k[0]
		}
	}
	return last, g.err
}

func (g *gridSheet) LastColumn(context.Context) (int, error) {
	last := 0
	for k, c := range g.cells {
		if c.value != "" && k[1] > last {
			last = k[1]
		}
	}
	return last, g.err
}

func (g *gridSheet) ReadRange(_ context.Context, row, col, numRows, numCols int) ([][]string, error) {
	if g.err != nil {
		return nil, g.err
	}
	out := make([][]string, numRows)
	for r := range out {
		out[r] = make([]string, numCols)
		for c := range out[r] {
			if v, ok := g.cells[[2]int{row + r, col + c}]; ok {
				out[r][c] = v.value
			}
		}
	}
	return out, nil
}

func (g *gridSheet) SetValue(_ context.Context, row, col int, value string) error {
	g.at(row, col).value = value
	return g.err
}

func (g *gridSheet) SetNote(_ context.Context, row, col int, note string) error {
	g.at(row, col).note = note
	return g.err
}

func (g *gridSheet) SetHorizontalAlignment(_ context.Context, row, col int, align string) error {
	g.at(row, col).align = align
	return g.err
}

func (g *gridSheet) SetColumnWidth(_ context.Context, col, width int) error {
	g.widths[col] = width
	return g.err
}

type recordingCache struct {
	status, link int
}

func (r *recordingCache) SetColumns(status, link int) error {
	r.status, r.link = status, link
	return nil
}

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Timestamp", "Timestamp"},
		{"Email Address", "Email_Address"},
		{"What happened?", "What_happened"},
		{"  Date   of  incident ", "_Date_of_incident_"},
		{"Report Status", "Report_Status"},
		{"Injury (Y/N)", "Injury_YN"},
	}
	for _, tt := range tests {
		if got := NormalizeKey(tt.in); got != tt.want {
			t.Errorf("NormalizeKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsInitialized(t *testing.T) {
	tests := []struct {
		name   string
		header []string
		want   bool
	}{
		{"empty", nil, false},
		{"one column", []string{"PDF Link"}, false},
		{"form only", []string{"Timestamp", "Name"}, false},
		{"managed tail", []string{"Timestamp", "Name", "Report Status", "PDF Link"}, true},
		{"only managed", []string{"Report Status", "PDF Link"}, true},
		{"swapped", []string{"Timestamp", "PDF Link", "Report Status"}, false},
		{"extra after", []string{"Report Status", "PDF Link", "Notes"}, false},
		{"case differs", []string{"Timestamp", "report status", "PDF Link"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(newGridSheet(tt.header...), DefaultColumns(), nil)
			got, err := m.IsInitialized(context.Background())
			if err != nil {
				t.Fatalf("IsInitialized: %v", err)
			}
			if got != tt.want {
				t.Errorf("IsInitialized(%v) = %v, want %v", tt.header, got, tt.want)
			}
		})
	}
}

func TestInitialize(t *testing.T) {
	ctx := context.Background()
	g := newGridSheet("Timestamp", "Name", "Description")
	cache := &recordingCache{}
	m := NewManager(g, DefaultColumns(), cache)

	if err := m.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	header, _ := m.Header(ctx)
	want := []string{"Timestamp", "Name", "Description", "Report Status", "PDF Link"}
	if diff := cmp.Diff(want, header); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
	for _, col := range []int{4, 5} {
		if note := g.at(1, col).note; note != RequiredNote {
			t.Errorf("note on column %d = %q", col, note)
		}
	}
	if g.widths[4] != 100 || g.widths[5] != 600 {
		t.Errorf("widths = %v, want 4:100 5:600", g.widths)
	}
	if cache.status != 4 || cache.link != 5 {
		t.Errorf("cached columns = %d,%d, want 4,5", cache.status, cache.link)
	}

	ok, _ := m.IsInitialized(ctx)
	if !ok {
		t.Error("IsInitialized false after Initialize")
	}
}

func TestEnsureInitializedRunsOnce(t *testing.T) {
	ctx := context.Background()
	g := newGridSheet("Timestamp")
	m := NewManager(g, DefaultColumns(), nil)

	did, err := m.EnsureInitialized(ctx)
	if err != nil || !did {
		t.Fatalf("first EnsureInitialized = %v, %v", did, err)
	}
	did, err = m.EnsureInitialized(ctx)
	if err != nil || did {
		t.Fatalf("second EnsureInitialized = %v, %v", did, err)
	}
	last, _ := g.LastColumn(ctx)
	if last != 3 {
		t.Errorf("LastColumn = %d, want 3", last)
	}
}

func TestCustomLabels(t *testing.T) {
	ctx := context.Background()
	cols := ManagedColumns{StatusLabel: "Status", LinkLabel: "Link"}
	m := NewManager(newGridSheet("Timestamp", "Status", "Link"), cols, nil)
	ok, err := m.IsInitialized(ctx)
	if err != nil || !ok {
		t.Errorf("IsInitialized = %v, %v, want true", ok, err)
	}
}

func TestHeaderMap(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newGridSheet("Timestamp", "Email Address", "Email-Address", "Report Status"), DefaultColumns(), nil)

	hm, err := m.HeaderMap(ctx)
	if err != nil {
		t.Fatalf("HeaderMap: %v", err)
	}
	if diff := cmp.Diff([]string{"Timestamp", "Email_Address", "EmailAddress", "Report_Status"}, hm.Keys()); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
	if len(hm.Duplicates()) != 0 {
		t.Errorf("Duplicates = %v, want none", hm.Duplicates())
	}

	dup := BuildHeaderMap([]string{"Email Address", "Email  Address", "Name"})
	if diff := cmp.Diff([]string{"Email_Address"}, dup.Duplicates()); diff != "" {
		t.Errorf("Duplicates mismatch (-want +got):\n%s", diff)
	}
	if idx := dup.Index()["Email_Address"]; idx != 2 {
		t.Errorf("Index[Email_Address] = %d, want 2 (last wins)", idx)
	}
}

func TestColumnFor(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newGridSheet("Timestamp", "Report Status", "PDF Link"), DefaultColumns(), nil)

	col, err := m.ColumnFor(ctx, "PDF Link")
	if err != nil || col != 3 {
		t.Errorf("ColumnFor(PDF Link) = %d, %v, want 3", col, err)
	}
	_, err = m.ColumnFor(ctx, "Missing")
	if !errors.Is(err, ErrColumnNotFound) {
		t.Errorf("ColumnFor(Missing) err = %v, want ErrColumnNotFound", err)
	}
}

func TestHeaderPropagatesErrors(t *testing.T) {
	g := newGridSheet("Timestamp")
	g.err = errors.New("quota")
	m := NewManager(g, DefaultColumns(), nil)
	if _, err := m.IsInitialized(context.Background()); err == nil {
		t.Error("IsInitialized succeeded with failing sheet")
	}
}
