// Package folder files reports under a per-month folder of the reports root.
package folder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/increp/internal/host"
)

// MonthName returns the three-letter English month abbreviation of t.
func MonthName(t time.Time) string {
	return t.Format("Jan")
}

// Folders is the part of the file store the resolver needs.
type Folders interface {
	FindFolders(ctx context.Context, parentID, name string) ([]host.Folder, error)
	CreateFolder(ctx context.Context, parentID, name string) (host.Folder, error)
}

// Resolver finds or creates the current month's folder under RootID.
type Resolver struct {
	folders Folders
	rootID  string
	now     func() time.Time
	logger  *slog.Logger
}

// NewResolver creates a Resolver rooted at rootID.
func NewResolver(folders Folders, rootID string) *Resolver {
	return &Resolver{folders: folders, rootID: rootID, now: time.Now, logger: slog.Default()}
}

// WithClock replaces the wall clock, for tests.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// RootID returns the reports root folder.
func (r *Resolver) RootID() string {
	return r.rootID
}

// CurrentMonthFolder returns the first existing folder named for the
// current month, creating it when there is none.
func (r *Resolver) CurrentMonthFolder(ctx context.Context) (host.Folder, error) {
	name := MonthName(r.now())

	existing, err := r.folders.FindFolders(ctx, r.rootID, name)
	if err != nil {
		return host.Folder{}, fmt.Errorf("looking up month folder %q: %w", name, err)
	}
	if len(existing) > 0 {
		return existing[0], nil
	}

	f, err := r.folders.CreateFolder(ctx, r.rootID, name)
	if err != nil {
		return host.Folder{}, fmt.Errorf("creating month folder %q: %w", name, err)
	}
	r.logger.Info("created month folder", "name", name, "id", f.ID)
	return f, nil
}
