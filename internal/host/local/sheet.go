// Package local implements the host capabilities on top of the sqlite
// store: a response grid, a folder tree of stored files, HTML documents
// printed to PDF, and a trigger registry.
package local

import (
	"context"
	"fmt"

	"github.com/kalambet/increp/internal/storage"
)

// Sheet is one named grid in the store.
type Sheet struct {
	store *storage.Store
	name  string
}

// NewSheet returns the grid called name.
func NewSheet(store *storage.Store, name string) *Sheet {
	return &Sheet{store: store, name: name}
}

func (s *Sheet) Name() string { return s.name }

func (s *Sheet) LastRow(context.Context) (int, error) {
	return s.store.LastRow(s.name)
}

func (s *Sheet) LastColumn(context.Context) (int, error) {
	return s.store.LastColumn(s.name)
}

func (s *Sheet) ReadRange(_ context.Context, row, col, numRows, numCols int) ([][]string, error) {
	return s.store.ReadRange(s.name, row, col, numRows, numCols)
}

func (s *Sheet) SetValue(_ context.Context, row, col int, value string) error {
	return s.store.SetCellValue(s.name, row, col, value)
}

func (s *Sheet) SetNote(_ context.Context, row, col int, note string) error {
	return s.store.SetCellNote(s.name, row, col, note)
}

func (s *Sheet) SetHorizontalAlignment(_ context.Context, row, col int, align string) error {
	return s.store.SetCellAlignment(s.name, row, col, align)
}

func (s *Sheet) SetColumnWidth(_ context.Context, col, width int) error {
	return s.store.SetColumnWidth(s.name, col, width)
}

// AppendRow writes values below the last row, as a form submission does,
// and returns the new row number.
func (s *Sheet) AppendRow(_ context.Context, values []string) (int, error) {
	row, err := s.store.AppendRow(s.name, values)
	if err != nil {
		return 0, fmt.Errorf("appending to %s: %w", s.name, err)
	}
	return row, nil
}

// Cell returns the value, note and alignment of one cell.
func (s *Sheet) Cell(row, col int) (value, note, align string, err error) {
	return s.store.Cell(s.name, row, col)
}
