package gworkspace

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"google.golang.org/api/docs/v1"
	"google.golang.org/api/drive/v3"

	"github.com/kalambet/increp/internal/host"
	"github.com/kalambet/increp/internal/pdf"
)

// Drive adapts Google Drive files and folders.
type Drive struct {
	svc *drive.Service
}

func NewDrive(svc *drive.Service) *Drive {
	return &Drive{svc: svc}
}

func toHost(f *drive.File) host.File {
	return host.File{ID: f.Id, Name: f.Name, MimeType: f.MimeType, URL: f.WebViewLink}
}

// quote escapes a value for a Drive query string literal.
func quote(s string) string {
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s) + "'"
}

func (d *Drive) GetFile(ctx context.Context, id string) (host.File, error) {
	f, err := d.svc.Files.Get(id).Fields("id, name, mimeType, webViewLink").
		SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return host.File{}, apiErr("getting file "+id, err)
	}
	return toHost(f), nil
}

func (d *Drive) CopyFile(ctx context.Context, id, name, folderID string) (host.File, error) {
	f, err := d.svc.Files.Copy(id, &drive.File{Name: name, Parents: []string{folderID}}).
		Fields("id, name, mimeType, webViewLink").SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return host.File{}, apiErr("copying file "+id, err)
	}
	return toHost(f), nil
}

func (d *Drive) TrashFile(ctx context.Context, id string) error {
	_, err := d.svc.Files.Update(id, &drive.File{Trashed: true}).SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return apiErr("trashing file "+id, err)
	}
	return nil
}

// FindFolders lists live folders named name under parentID, oldest first.
func (d *Drive) FindFolders(ctx context.Context, parentID, name string) ([]host.Folder, error) {
	q := fmt.Sprintf("%s in parents and name = %s and mimeType = %s and trashed = false",
		quote(parentID), quote(name), quote(mimeFolder))
	list, err := d.svc.Files.List().Q(q).OrderBy("createdTime").Fields("files(id, name)").
		SupportsAllDrives(true).IncludeItemsFromAllDrives(true).Context(ctx).Do()
	if err != nil {
		return nil, apiErr("listing folders", err)
	}
	out := make([]host.Folder, len(list.Files))
	for i, f := range list.Files {
		out[i] = host.Folder{ID: f.Id, Name: f.Name}
	}
	return out, nil
}

func (d *Drive) CreateFolder(ctx context.Context, parentID, name string) (host.Folder, error) {
	f, err := d.svc.Files.Create(&drive.File{Name: name, MimeType: mimeFolder, Parents: []string{parentID}}).
		Fields("id, name").SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return host.Folder{}, apiErr("creating folder "+name, err)
	}
	return host.Folder{ID: f.Id, Name: f.Name}, nil
}

// Docs fills Google Docs and exports them through Drive.
type Docs struct {
	svc   *docs.Service
	drive *Drive
}

func NewDocs(svc *docs.Service, d *Drive) *Docs {
	return &Docs{svc: svc, drive: d}
}

// ReplaceText sends one case-sensitive replace-all per replacement.
func (d *Docs) ReplaceText(ctx context.Context, docID string, repl []host.Replacement) error {
	if len(repl) == 0 {
		return nil
	}
	reqs := make([]*docs.Request, len(repl))
	for i, r := range repl {
		reqs[i] = &docs.Request{ReplaceAllText: &docs.ReplaceAllTextRequest{
			ContainsText: &docs.SubstringMatchCriteria{Text: r.Find, MatchCase: true},
			ReplaceText:  r.Replace,
		}}
	}
	_, err := d.svc.Documents.BatchUpdate(docID, &docs.BatchUpdateDocumentRequest{Requests: reqs}).Context(ctx).Do()
	if err != nil {
		return apiErr("filling document "+docID, err)
	}
	return nil
}

// ExportPDF downloads the document as PDF and uploads it as name into folderID.
func (d *Docs) ExportPDF(ctx context.Context, docID, name, folderID string) (host.File, error) {
	resp, err := d.drive.svc.Files.Export(docID, host.MimePDF).Context(ctx).Download()
	if err != nil {
		return host.File{}, apiErr("exporting document "+docID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return host.File{}, fmt.Errorf("reading export of %s: %w", docID, err)
	}
	if err := pdf.Validate(body); err != nil {
		return host.File{}, fmt.Errorf("export of %s: %w", docID, err)
	}

	f, err := d.drive.svc.Files.Create(&drive.File{Name: name, MimeType: host.MimePDF, Parents: []string{folderID}}).
		Media(bytes.NewReader(body)).Fields("id, name, mimeType, webViewLink").
		SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return host.File{}, apiErr("uploading "+name, err)
	}
	return toHost(f), nil
}
