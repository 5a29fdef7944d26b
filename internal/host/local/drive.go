package local

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/kalambet/increp/internal/host"
	"github.com/kalambet/increp/internal/storage"
)

// MimeDocument is the native document type of the local host: an HTML
// body with <<key>> placeholders in its text.
const MimeDocument = "text/html"

// DefaultRootName names the reports root created on first use.
const DefaultRootName = "Reports"

// Drive is the folder tree of stored files.
type Drive struct {
	store   *storage.Store
	baseURL string
	policy  *bluemonday.Policy
}

// NewDrive creates a Drive. Files link to baseURL/files/<id> when baseURL
// is set, and to increp://file/<id> otherwise.
func NewDrive(store *storage.Store, baseURL string) *Drive {
	policy := bluemonday.UGCPolicy()
	policy.AllowStyling()
	return &Drive{store: store, baseURL: strings.TrimRight(baseURL, "/"), policy: policy}
}

// URL returns the shareable link of a file.
func (d *Drive) URL(id string) string {
	if d.baseURL == "" {
		return "increp://file/" + id
	}
	return d.baseURL + "/files/" + id
}

func (d *Drive) toHost(f storage.File) host.File {
	return host.File{ID: f.ID, Name: f.Name, MimeType: f.MimeType, URL: d.URL(f.ID)}
}

func notFound(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return host.ErrNotFound
	}
	return err
}

func (d *Drive) GetFile(_ context.Context, id string) (host.File, error) {
	f, err := d.store.GetFile(id)
	if err != nil {
		return host.File{}, fmt.Errorf("getting file %s: %w", id, notFound(err))
	}
	return d.toHost(f), nil
}

// CopyFile duplicates a file, content included, into folderID.
func (d *Drive) CopyFile(_ context.Context, id, name, folderID string) (host.File, error) {
	src, err := d.store.GetFileContent(id)
	if err != nil {
		return host.File{}, fmt.Errorf("reading file %s: %w", id, notFound(err))
	}
	cp := storage.File{
		ID:       uuid.New().String(),
		FolderID: folderID,
		Name:     name,
		MimeType: src.MimeType,
		Content:  src.Content,
	}
	if err := d.store.SaveFile(cp); err != nil {
		return host.File{}, fmt.Errorf("saving copy of %s: %w", id, err)
	}
	return d.toHost(cp), nil
}

func (d *Drive) TrashFile(_ context.Context, id string) error {
	if err := d.store.TrashFile(id); err != nil {
		return fmt.Errorf("trashing file %s: %w", id, notFound(err))
	}
	return nil
}

func (d *Drive) FindFolders(_ context.Context, parentID, name string) ([]host.Folder, error) {
	folders, err := d.store.FoldersByName(parentID, name)
	if err != nil {
		return nil, err
	}
	out := make([]host.Folder, len(folders))
	for i, f := range folders {
		out[i] = host.Folder{ID: f.ID, Name: f.Name}
	}
	return out, nil
}

func (d *Drive) CreateFolder(_ context.Context, parentID, name string) (host.Folder, error) {
	f := storage.Folder{ID: uuid.New().String(), ParentID: parentID, Name: name}
	if err := d.store.CreateFolder(f); err != nil {
		return host.Folder{}, fmt.Errorf("creating folder %q: %w", name, err)
	}
	return host.Folder{ID: f.ID, Name: f.Name}, nil
}

// EnsureRoot returns the top level folder called name, creating it if needed.
func (d *Drive) EnsureRoot(ctx context.Context, name string) (host.Folder, error) {
	existing, err := d.FindFolders(ctx, "", name)
	if err != nil {
		return host.Folder{}, err
	}
	if len(existing) > 0 {
		return existing[0], nil
	}
	return d.CreateFolder(ctx, "", name)
}

// ImportDocument stores an HTML template. Bare <<key>> placeholders in the
// source are escaped so they survive as text, then scripts and other active
// content are stripped.
func (d *Drive) ImportDocument(_ context.Context, name, folderID string, body []byte) (host.File, error) {
	body = placeholderRE.ReplaceAll(body, []byte("&lt;&lt;$1&gt;&gt;"))
	f := storage.File{
		ID:       uuid.New().String(),
		FolderID: folderID,
		Name:     name,
		MimeType: MimeDocument,
		Content:  d.policy.SanitizeBytes(body),
	}
	if err := d.store.SaveFile(f); err != nil {
		return host.File{}, fmt.Errorf("importing %q: %w", name, err)
	}
	return d.toHost(f), nil
}

// Content returns the stored bytes of a file.
func (d *Drive) Content(_ context.Context, id string) (host.File, []byte, error) {
	f, err := d.store.GetFileContent(id)
	if err != nil {
		return host.File{}, nil, fmt.Errorf("reading file %s: %w", id, notFound(err))
	}
	return d.toHost(f), f.Content, nil
}

// ListFolder returns the live files of a folder, oldest first.
func (d *Drive) ListFolder(_ context.Context, folderID string) ([]host.File, error) {
	files, err := d.store.FilesInFolder(folderID, false)
	if err != nil {
		return nil, err
	}
	out := make([]host.File, len(files))
	for i, f := range files {
		out[i] = d.toHost(f)
	}
	return out, nil
}

// ChildFolders lists the folders directly below parentID.
func (d *Drive) ChildFolders(_ context.Context, parentID string) ([]host.Folder, error) {
	folders, err := d.store.ChildFolders(parentID)
	if err != nil {
		return nil, err
	}
	out := make([]host.Folder, len(folders))
	for i, f := range folders {
		out[i] = host.Folder{ID: f.ID, Name: f.Name}
	}
	return out, nil
}
