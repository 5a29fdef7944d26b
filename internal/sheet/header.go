// Package sheet manages the header row of the form response sheet: the two
// managed columns the report pipeline writes to, and the mapping from
// header text to field keys.
package sheet

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/kalambet/increp/internal/host"
)

// ErrColumnNotFound is returned by ColumnFor when no header matches.
var ErrColumnNotFound = errors.New("header column not found")

// Default labels of the managed columns.
const (
	DefaultStatusLabel = "Report Status"
	DefaultLinkLabel   = "PDF Link"
)

// RequiredNote is attached to each managed header cell.
const RequiredNote = "This column is required by the incident reporter plugin. Do not remove this column."

const (
	statusWidth = 100
	linkWidth   = 600
)

var (
	whitespace = regexp.MustCompile(`\s+`)
	nonWord    = regexp.MustCompile(`\W+`)
)

// NormalizeKey turns header text into a field key: runs of whitespace
// become one underscore, then every non-word character is dropped.
func NormalizeKey(label string) string {
	return nonWord.ReplaceAllString(whitespace.ReplaceAllString(label, "_"), "")
}

// ManagedColumns holds the labels of the status and link columns.
type ManagedColumns struct {
	StatusLabel string
	LinkLabel   string
}

// DefaultColumns returns the stock labels.
func DefaultColumns() ManagedColumns {
	return ManagedColumns{StatusLabel: DefaultStatusLabel, LinkLabel: DefaultLinkLabel}
}

// Labels returns the labels in the order they appear in the sheet.
func (m ManagedColumns) Labels() [2]string {
	return [2]string{m.StatusLabel, m.LinkLabel}
}

// Header is one header cell and its field key.
type Header struct {
	Label string
	Key   string
}

// HeaderMap is the header row in column order.
type HeaderMap []Header

// Keys returns the field keys in column order.
func (h HeaderMap) Keys() []string {
	keys := make([]string, len(h))
	for i, hd := range h {
		keys[i] = hd.Key
	}
	return keys
}

// Index maps each key to its 1-based column. When two labels normalise to
// the same key the later column wins.
func (h HeaderMap) Index() map[string]int {
	idx := make(map[string]int, len(h))
	for i, hd := range h {
		idx[hd.Key] = i + 1
	}
	return idx
}

// Duplicates lists keys produced by more than one header, in first-seen order.
func (h HeaderMap) Duplicates() []string {
	seen := make(map[string]int, len(h))
	var dups []string
	for _, hd := range h {
		seen[hd.Key]++
		if seen[hd.Key] == 2 {
			dups = append(dups, hd.Key)
		}
	}
	return dups
}

// ColumnCache receives managed column positions after initialisation.
type ColumnCache interface {
	SetColumns(status, link int) error
}

// Manager reads and prepares the header row of one sheet.
type Manager struct {
	sheet   host.Sheet
	columns ManagedColumns
	cache   ColumnCache
}

// NewManager creates a Manager. cache may be nil.
func NewManager(sheet host.Sheet, columns ManagedColumns, cache ColumnCache) *Manager {
	return &Manager{sheet: sheet, columns: columns, cache: cache}
}

// Columns returns the managed column labels.
func (m *Manager) Columns() ManagedColumns {
	return m.columns
}

// Header returns the header row, columns 1..last column.
func (m *Manager) Header(ctx context.Context) ([]string, error) {
	last, err := m.sheet.LastColumn(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading last column: %w", err)
	}
	if last == 0 {
		return []string{}, nil
	}
	rows, err := m.sheet.ReadRange(ctx, 1, 1, 1, last)
	if err != nil {
		return nil, fmt.Errorf("reading header row: %w", err)
	}
	if len(rows) == 0 {
		return []string{}, nil
	}
	return rows[0], nil
}

// IsInitialized reports whether the last two header cells are exactly the
// status and link labels, in that order.
func (m *Manager) IsInitialized(ctx context.Context) (bool, error) {
	header, err := m.Header(ctx)
	if err != nil {
		return false, err
	}
	return hasManagedTail(header, m.columns), nil
}

func hasManagedTail(header []string, cols ManagedColumns) bool {
	n := len(header)
	if n < 2 {
		return false
	}
	return header[n-2] == cols.StatusLabel && header[n-1] == cols.LinkLabel
}

// Initialize appends the two managed headers after the last column, notes
// them as required, and sizes them. It does not check IsInitialized: a
// second call appends a second pair.
func (m *Manager) Initialize(ctx context.Context) error {
	last, err := m.sheet.LastColumn(ctx)
	if err != nil {
		return fmt.Errorf("reading last column: %w", err)
	}
	statusCol, linkCol := last+1, last+2

	if err := m.addHeader(ctx, statusCol, m.columns.StatusLabel); err != nil {
		return err
	}
	if err := m.addHeader(ctx, linkCol, m.columns.LinkLabel); err != nil {
		return err
	}
	if err := m.sheet.SetColumnWidth(ctx, statusCol, statusWidth); err != nil {
		return fmt.Errorf("sizing column %d: %w", statusCol, err)
	}
	if err := m.sheet.SetColumnWidth(ctx, linkCol, linkWidth); err != nil {
		return fmt.Errorf("sizing column %d: %w", linkCol, err)
	}

	if m.cache != nil {
		if err := m.cache.SetColumns(statusCol, linkCol); err != nil {
			return fmt.Errorf("caching managed columns: %w", err)
		}
	}
	return nil
}

func (m *Manager) addHeader(ctx context.Context, col int, label string) error {
	if err := m.sheet.SetValue(ctx, 1, col, label); err != nil {
		return fmt.Errorf("writing header %q: %w", label, err)
	}
	if err := m.sheet.SetNote(ctx, 1, col, RequiredNote); err != nil {
		return fmt.Errorf("noting header %q: %w", label, err)
	}
	return nil
}

// EnsureInitialized initialises the sheet if the managed headers are missing
// and reports whether it did.
func (m *Manager) EnsureInitialized(ctx context.Context) (bool, error) {
	ok, err := m.IsInitialized(ctx)
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil
	}
	return true, m.Initialize(ctx)
}

// HeaderMap returns every header with its normalised key.
func (m *Manager) HeaderMap(ctx context.Context) (HeaderMap, error) {
	header, err := m.Header(ctx)
	if err != nil {
		return nil, err
	}
	return BuildHeaderMap(header), nil
}

// BuildHeaderMap normalises an already-read header row.
func BuildHeaderMap(header []string) HeaderMap {
	hm := make(HeaderMap, len(header))
	for i, label := range header {
		hm[i] = Header{Label: label, Key: NormalizeKey(label)}
	}
	return hm
}

// HeaderKeys returns the normalised keys in column order.
func (m *Manager) HeaderKeys(ctx context.Context) ([]string, error) {
	hm, err := m.HeaderMap(ctx)
	if err != nil {
		return nil, err
	}
	return hm.Keys(), nil
}

// ColumnFor finds the 1-based column whose header text equals label.
func (m *Manager) ColumnFor(ctx context.Context, label string) (int, error) {
	header, err := m.Header(ctx)
	if err != nil {
		return 0, err
	}
	return ColumnIn(header, label)
}

// ColumnIn searches an already-read header row. The first match wins.
func ColumnIn(header []string, label string) (int, error) {
	for i, h := range header {
		if h == label {
			return i + 1, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrColumnNotFound, label)
}
