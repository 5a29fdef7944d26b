package storage

import (
	"database/sql"
	"fmt"
)

// The grid is a sparse cell table per sheet name. Rows and columns are
// 1-based. Cells holding only formatting (note, alignment) do not count
// towards the last row or column, matching the host spreadsheet which
// measures content extent.

// LastRow returns the highest row holding a non-empty value, or 0.
func (s *Store) LastRow(sheet string) (int, error) {
	var n sql.NullInt64
	err := s.db.QueryRow(`SELECT MAX(row) FROM cells WHERE sheet = ? AND value != ''`, sheet).Scan(&n)
	if err != nil {
		return 0, err
	}
	return int(n.Int64), nil
}

// LastColumn returns the highest column holding a non-empty value, or 0.
func (s *Store) LastColumn(sheet string) (int, error) {
	var n sql.NullInt64
	err := s.db.QueryRow(`SELECT MAX(col) FROM cells WHERE sheet = ? AND value != ''`, sheet).Scan(&n)
	if err != nil {
		return 0, err
	}
	return int(n.Int64), nil
}

// ReadRange returns a dense numRows x numCols block starting at (row, col).
// Missing cells read as empty strings.
func (s *Store) ReadRange(sheet string, row, col, numRows, numCols int) ([][]string, error) {
	if row < 1 || col < 1 {
		return nil, fmt.Errorf("range origin (%d,%d) out of bounds", row, col)
	}
	if numRows <= 0 || numCols <= 0 {
		return [][]string{}, nil
	}

	out := make([][]string, numRows)
	for i := range out {
		out[i] = make([]string, numCols)
	}

	rows, err := s.db.Query(`
		SELECT row, col, value FROM cells
		WHERE sheet = ? AND row BETWEEN ? AND ? AND col BETWEEN ? AND ?`,
		sheet, row, row+numRows-1, col, col+numCols-1,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var r, c int
		var v string
		if err := rows.Scan(&r, &c, &v); err != nil {
			return nil, err
		}
		out[r-row][c-col] = v
	}
	return out, rows.Err()
}

// SetCellValue writes one cell value, keeping its note and alignment.
func (s *Store) SetCellValue(sheet string, row, col int, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO cells (sheet, row, col, value) VALUES (?, ?, ?, ?)
		ON CONFLICT(sheet, row, col) DO UPDATE SET value = excluded.value`,
		sheet, row, col, value,
	)
	return err
}

func (s *Store) SetCellNote(sheet string, row, col int, note string) error {
	_, err := s.db.Exec(`
		INSERT INTO cells (sheet, row, col, note) VALUES (?, ?, ?, ?)
		ON CONFLICT(sheet, row, col) DO UPDATE SET note = excluded.note`,
		sheet, row, col, note,
	)
	return err
}

func (s *Store) SetCellAlignment(sheet string, row, col int, align string) error {
	_, err := s.db.Exec(`
		INSERT INTO cells (sheet, row, col, h_align) VALUES (?, ?, ?, ?)
		ON CONFLICT(sheet, row, col) DO UPDATE SET h_align = excluded.h_align`,
		sheet, row, col, align,
	)
	return err
}

// Cell returns value, note and alignment of one cell. Absent cells are empty.
func (s *Store) Cell(sheet string, row, col int) (value, note, align string, err error) {
	err = s.db.QueryRow(`SELECT value, note, h_align FROM cells WHERE sheet = ? AND row = ? AND col = ?`,
		sheet, row, col).Scan(&value, &note, &align)
	if err == sql.ErrNoRows {
		return "", "", "", nil
	}
	return value, note, align, err
}

func (s *Store) SetColumnWidth(sheet string, col, width int) error {
	_, err := s.db.Exec(`
		INSERT INTO column_widths (sheet, col, width) VALUES (?, ?, ?)
		ON CONFLICT(sheet, col) DO UPDATE SET width = excluded.width`,
		sheet, col, width,
	)
	return err
}

// ColumnWidth returns ErrNotFound when no width was ever set.
func (s *Store) ColumnWidth(sheet string, col int) (int, error) {
	var w int
	err := s.db.QueryRow(`SELECT width FROM column_widths WHERE sheet = ? AND col = ?`, sheet, col).Scan(&w)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	return w, err
}

// AppendRow writes values into the row after the last row and returns its number.
func (s *Store) AppendRow(sheet string, values []string) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning append transaction: %w", err)
	}
	defer tx.Rollback()

	var last sql.NullInt64
	if err := tx.QueryRow(`SELECT MAX(row) FROM cells WHERE sheet = ? AND value != ''`, sheet).Scan(&last); err != nil {
		return 0, err
	}
	row := int(last.Int64) + 1

	for i, v := range values {
		if v == "" {
			continue
		}
		if _, err := tx.Exec(`
			INSERT INTO cells (sheet, row, col, value) VALUES (?, ?, ?, ?)
			ON CONFLICT(sheet, row, col) DO UPDATE SET value = excluded.value`,
			sheet, row, i+1, v,
		); err != nil {
			return 0, fmt.Errorf("writing cell (%d,%d): %w", row, i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing append: %w", err)
	}
	return row, nil
}
