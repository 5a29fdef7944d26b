package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// createdLayout is RFC 3339 with fixed nanoseconds, so created_at sorts as
// text in creation order.
const createdLayout = "2006-01-02T15:04:05.000000000Z07:00"

// --- Folders ---

func (s *Store) CreateFolder(f Folder) error {
	created := f.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.Exec(`INSERT INTO folders (id, parent_id, name, created_at) VALUES (?, ?, ?, ?)`,
		f.ID, f.ParentID, f.Name, created.UTC().Format(createdLayout))
	return err
}

func (s *Store) GetFolder(id string) (Folder, error) {
	var f Folder
	var createdAt string
	err := s.db.QueryRow(`SELECT id, parent_id, name, created_at FROM folders WHERE id = ?`, id).
		Scan(&f.ID, &f.ParentID, &f.Name, &createdAt)
	if err == sql.ErrNoRows {
		return Folder{}, ErrNotFound
	}
	if err != nil {
		return Folder{}, err
	}
	if f.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return Folder{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return f, nil
}

// FoldersByName lists children of parentID with an exact name, oldest first.
func (s *Store) FoldersByName(parentID, name string) ([]Folder, error) {
	return s.queryFolders(`SELECT id, parent_id, name, created_at FROM folders
		WHERE parent_id = ? AND name = ? ORDER BY created_at ASC, id ASC`, parentID, name)
}

// ChildFolders lists all children of parentID, oldest first.
func (s *Store) ChildFolders(parentID string) ([]Folder, error) {
	return s.queryFolders(`SELECT id, parent_id, name, created_at FROM folders
		WHERE parent_id = ? ORDER BY created_at ASC, id ASC`, parentID)
}

func (s *Store) queryFolders(query string, args ...any) ([]Folder, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Folder
	for rows.Next() {
		var f Folder
		var createdAt string
		if err := rows.Scan(&f.ID, &f.ParentID, &f.Name, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		f.CreatedAt = t
		out = append(out, f)
	}
	return out, rows.Err()
}

// --- Files ---

func (s *Store) SaveFile(f File) error {
	created := f.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO files (id, folder_id, name, mime_type, content, trashed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.FolderID, f.Name, f.MimeType, f.Content, boolInt(f.Trashed), created.UTC().Format(createdLayout),
	)
	return err
}

// GetFile loads file metadata without content.
func (s *Store) GetFile(id string) (File, error) {
	var f File
	var trashed int
	var createdAt string
	err := s.db.QueryRow(`SELECT id, folder_id, name, mime_type, trashed, created_at FROM files WHERE id = ?`, id).
		Scan(&f.ID, &f.FolderID, &f.Name, &f.MimeType, &trashed, &createdAt)
	if err == sql.ErrNoRows {
		return File{}, ErrNotFound
	}
	if err != nil {
		return File{}, err
	}
	f.Trashed = trashed != 0
	if f.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return File{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return f, nil
}

// GetFileContent loads a file including its content.
func (s *Store) GetFileContent(id string) (File, error) {
	f, err := s.GetFile(id)
	if err != nil {
		return File{}, err
	}
	if err := s.db.QueryRow(`SELECT content FROM files WHERE id = ?`, id).Scan(&f.Content); err != nil {
		return File{}, err
	}
	return f, nil
}

func (s *Store) UpdateFileContent(id string, content []byte) error {
	res, err := s.db.Exec(`UPDATE files SET content = ? WHERE id = ?`, content, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (s *Store) TrashFile(id string) error {
	res, err := s.db.Exec(`UPDATE files SET trashed = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// FilesInFolder lists files of a folder, oldest first.
func (s *Store) FilesInFolder(folderID string, includeTrashed bool) ([]File, error) {
	query := `SELECT id, folder_id, name, mime_type, trashed, created_at FROM files WHERE folder_id = ?`
	if !includeTrashed {
		query += ` AND trashed = 0`
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.Query(query, folderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []File
	for rows.Next() {
		var f File
		var trashed int
		var createdAt string
		if err := rows.Scan(&f.ID, &f.FolderID, &f.Name, &f.MimeType, &trashed, &createdAt); err != nil {
			return nil, err
		}
		f.Trashed = trashed != 0
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		f.CreatedAt = t
		out = append(out, f)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
