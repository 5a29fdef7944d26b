package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Job is a queued unit of background work.
type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}

// Folder is a node of the local file tree. Root folders have an empty ParentID.
type Folder struct {
	ID        string
	ParentID  string
	Name      string
	CreatedAt time.Time
}

// File is a stored document or PDF. Content is only populated by GetFileContent.
type File struct {
	ID        string
	FolderID  string
	Name      string
	MimeType  string
	Content   []byte
	Trashed   bool
	CreatedAt time.Time
}

// Trigger is a registered event handler.
type Trigger struct {
	ID        string
	Handler   string
	Event     string
	CreatedAt time.Time
}
