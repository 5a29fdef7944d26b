// Package sidebar implements the settings panel operations. Every operation
// returns the HTML fragment the panel re-renders.
package sidebar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"github.com/kalambet/increp/internal/email"
	"github.com/kalambet/increp/internal/host"
	"github.com/kalambet/increp/internal/settings"
)

// ErrInvalidFileType is returned when a non-document file is picked as the
// template.
var ErrInvalidFileType = errors.New("invalid file type")

var fragments = template.Must(template.New("").Parse(`
{{define "emails"}}{{range .}}<li data-email="{{.}}">{{.}}<span><i class="fa fa-close"></i></span></li>{{else}}<li>No email addresses</li>{{end}}{{end}}
{{define "template"}}{{if .}}<a href="{{.URL}}" target="_blank">{{.Name}}</a>{{else}}<span>No template selected</span>{{end}}{{end}}
{{define "filename"}}<span>{{.}}</span>{{end}}
`))

// Store is the settings store the panel edits.
type Store interface {
	Current() settings.Settings
	SetTemplateFileID(id string) error
	SetReportFilename(name string) error
	SetEmailAddresses(addrs []string) error
}

// Files looks up picked files.
type Files interface {
	GetFile(ctx context.Context, id string) (host.File, error)
}

// Panel serves the sidebar operations.
type Panel struct {
	store        Store
	files        Files
	documentMime string
}

// NewPanel creates a Panel. documentMime is the only mime type accepted as
// a template.
func NewPanel(store Store, files Files, documentMime string) *Panel {
	return &Panel{store: store, files: files, documentMime: documentMime}
}

// fileView is a template link. Host URLs may use the local increp scheme,
// which html/template would otherwise reject.
type fileView struct {
	Name string
	URL  template.URL
}

func viewOf(f host.File) *fileView {
	return &fileView{Name: f.Name, URL: template.URL(f.URL)}
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := fragments.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", name, err)
	}
	return buf.String(), nil
}

// EmailAddressDisplay lists the stored recipients.
func (p *Panel) EmailAddressDisplay() (string, error) {
	return render("emails", p.store.Current().EmailAddresses)
}

// AddEmailAddresses adds a comma separated list. Rejected entries are
// returned as problems; the accepted ones are stored regardless.
func (p *Panel) AddEmailAddresses(input string) (string, []email.Problem, error) {
	list := email.NewList(p.store, p.store.Current().EmailAddresses)
	problems, err := list.Add(input)
	if err != nil {
		return "", problems, err
	}
	out, err := p.EmailAddressDisplay()
	return out, problems, err
}

// RemoveEmailAddress drops one recipient.
func (p *Panel) RemoveEmailAddress(addr string) (string, error) {
	list := email.NewList(p.store, p.store.Current().EmailAddresses)
	if err := list.Remove(addr); err != nil {
		return "", err
	}
	return p.EmailAddressDisplay()
}

// TemplateFileDisplay links the selected template, or says none is set.
// A template that no longer exists is shown as unset.
func (p *Panel) TemplateFileDisplay(ctx context.Context) (string, error) {
	id := p.store.Current().TemplateFileID
	if id == "" {
		return render("template", nil)
	}
	f, err := p.files.GetFile(ctx, id)
	if errors.Is(err, host.ErrNotFound) {
		return render("template", nil)
	}
	if err != nil {
		return "", err
	}
	return render("template", viewOf(f))
}

// LoadSelectedFile makes fileID the template if it is a native document.
func (p *Panel) LoadSelectedFile(ctx context.Context, fileID string) (string, error) {
	f, err := p.files.GetFile(ctx, fileID)
	if err != nil {
		return "", fmt.Errorf("looking up %s: %w", fileID, err)
	}
	if f.MimeType != p.documentMime {
		return "", fmt.Errorf("%w: %s is %s, select a document", ErrInvalidFileType, f.Name, f.MimeType)
	}
	if err := p.store.SetTemplateFileID(f.ID); err != nil {
		return "", err
	}
	return render("template", viewOf(f))
}

// ReportFilenameDisplay shows the filename template.
func (p *Panel) ReportFilenameDisplay() (string, error) {
	return render("filename", p.store.Current().ReportFilename)
}

// SetReportFilename stores a new filename template. Blank input restores
// the default.
func (p *Panel) SetReportFilename(name string) (string, error) {
	if err := p.store.SetReportFilename(strings.TrimSpace(name)); err != nil {
		return "", err
	}
	return p.ReportFilenameDisplay()
}
