// Package host declares the narrow capabilities the report pipeline needs
// from the office suite it runs against: a response sheet, a file store,
// a document renderer, and a trigger registry. Implementations live in
// host/local (sqlite) and host/gworkspace (Google Sheets, Drive, Docs).
package host

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a file, folder, or trigger does not exist.
var ErrNotFound = errors.New("host: not found")

// MimePDF is the mime type of exported reports.
const MimePDF = "application/pdf"

// File is a stored file as seen through the host.
type File struct {
	ID       string
	Name     string
	MimeType string
	URL      string
}

// Folder is a folder in the host's file tree.
type Folder struct {
	ID   string
	Name string
}

// Trigger is a registered event handler.
type Trigger struct {
	ID      string
	Handler string
	Event   string
}

// Replacement is one placeholder substitution in a document body.
type Replacement struct {
	Find    string
	Replace string
}

// RowReader reads the content extent and values of the response sheet.
// Rows and columns are 1-based.
type RowReader interface {
	LastRow(ctx context.Context) (int, error)
	LastColumn(ctx context.Context) (int, error)
	ReadRange(ctx context.Context, row, col, numRows, numCols int) ([][]string, error)
}

// CellWriter writes values and presentation to single cells and columns.
type CellWriter interface {
	SetValue(ctx context.Context, row, col int, value string) error
	SetNote(ctx context.Context, row, col int, note string) error
	SetHorizontalAlignment(ctx context.Context, row, col int, align string) error
	SetColumnWidth(ctx context.Context, col, width int) error
}

// Sheet is a readable and writable response sheet.
type Sheet interface {
	RowReader
	CellWriter
}

// FileStore is the hierarchical file storage service.
type FileStore interface {
	GetFile(ctx context.Context, id string) (File, error)
	CopyFile(ctx context.Context, id, name, folderID string) (File, error)
	TrashFile(ctx context.Context, id string) error
	FindFolders(ctx context.Context, parentID, name string) ([]Folder, error)
	CreateFolder(ctx context.Context, parentID, name string) (Folder, error)
}

// DocumentRenderer fills document bodies and exports them to PDF.
type DocumentRenderer interface {
	ReplaceText(ctx context.Context, docID string, repl []Replacement) error
	ExportPDF(ctx context.Context, docID, name, folderID string) (File, error)
}

// TriggerRegistry registers and removes event triggers.
type TriggerRegistry interface {
	Triggers(ctx context.Context) ([]Trigger, error)
	CreateTrigger(ctx context.Context, handler, event string) (Trigger, error)
	DeleteTrigger(ctx context.Context, id string) error
}
