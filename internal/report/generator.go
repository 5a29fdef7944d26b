// Package report turns unsent form responses into PDF reports.
//
// A run reads the whole response sheet, skips rows already marked sent and,
// for every other row, fills a copy of the template document, exports it to
// PDF in the current month's folder, trashes the copy and writes the link
// and "sent" status back to the row. Each row is written as soon as its PDF
// exists, so an aborted run can simply be repeated.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/increp/internal/host"
	"github.com/kalambet/increp/internal/incident"
	"github.com/kalambet/increp/internal/settings"
	"github.com/kalambet/increp/internal/sheet"
)

var (
	// ErrNoTemplate means no template document has been selected.
	ErrNoTemplate = errors.New("no report template selected")
	// ErrTemplateNotFound means the selected template no longer exists.
	ErrTemplateNotFound = errors.New("report template not found")
)

// FirstDataRow is the first row below the header.
const FirstDataRow = 2

// Headers prepares and reads the header row.
type Headers interface {
	Columns() sheet.ManagedColumns
	EnsureInitialized(ctx context.Context) (bool, error)
	Header(ctx context.Context) ([]string, error)
}

// FolderResolver supplies the destination folder.
type FolderResolver interface {
	CurrentMonthFolder(ctx context.Context) (host.Folder, error)
}

// Files is the part of the file store the generator needs.
type Files interface {
	GetFile(ctx context.Context, id string) (host.File, error)
	CopyFile(ctx context.Context, id, name, folderID string) (host.File, error)
	TrashFile(ctx context.Context, id string) error
}

// SettingsSource returns the current settings snapshot.
type SettingsSource interface {
	Current() settings.Settings
}

// Artifact is a produced report.
type Artifact struct {
	Row        int
	DocumentID string
	PDF        host.File
}

// Notifier is told about every produced report.
type Notifier interface {
	ReportReady(ctx context.Context, a Artifact, recipients []string) error
}

// RowResult describes one processed row.
type RowResult struct {
	Row  int    `json:"row"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Summary describes one run.
type Summary struct {
	Processed int         `json:"processed"`
	Skipped   int         `json:"skipped"`
	Rows      []RowResult `json:"rows"`
}

// Generator runs the report pipeline over one response sheet.
type Generator struct {
	sheet    host.Sheet
	headers  Headers
	files    Files
	docs     host.DocumentRenderer
	folders  FolderResolver
	settings SettingsSource
	notifier Notifier
	now      func() time.Time
	logger   *slog.Logger
}

// Deps groups the collaborators of a Generator.
type Deps struct {
	Sheet    host.Sheet
	Headers  Headers
	Files    Files
	Docs     host.DocumentRenderer
	Folders  FolderResolver
	Settings SettingsSource
	// Notifier is optional.
	Notifier Notifier
}

// NewGenerator creates a Generator.
func NewGenerator(d Deps) *Generator {
	return &Generator{
		sheet:    d.Sheet,
		headers:  d.Headers,
		files:    d.Files,
		docs:     d.Docs,
		folders:  d.Folders,
		settings: d.Settings,
		notifier: d.Notifier,
		now:      time.Now,
		logger:   slog.Default(),
	}
}

// WithClock replaces the clock used to name document copies.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// GenerateReports produces a report for every unsent row. The first failing
// row aborts the run; rows before it stay marked sent.
func (g *Generator) GenerateReports(ctx context.Context) (Summary, error) {
	sum := Summary{Rows: []RowResult{}}
	cfg := g.settings.Current()

	if cfg.TemplateFileID == "" {
		return sum, ErrNoTemplate
	}
	tmpl, err := g.files.GetFile(ctx, cfg.TemplateFileID)
	if errors.Is(err, host.ErrNotFound) {
		return sum, fmt.Errorf("%w: %s", ErrTemplateNotFound, cfg.TemplateFileID)
	}
	if err != nil {
		return sum, fmt.Errorf("loading template: %w", err)
	}

	initialized, err := g.headers.EnsureInitialized(ctx)
	if err != nil {
		return sum, fmt.Errorf("initializing headers: %w", err)
	}
	if initialized {
		g.logger.Info("added report columns to response sheet")
	}

	header, err := g.headers.Header(ctx)
	if err != nil {
		return sum, err
	}
	hm := sheet.BuildHeaderMap(header)
	if dups := hm.Duplicates(); len(dups) > 0 {
		g.logger.Warn("header keys collide, later columns win", "keys", dups)
	}

	cols := g.headers.Columns()
	statusCol, err := sheet.ColumnIn(header, cols.StatusLabel)
	if err != nil {
		return sum, err
	}
	linkCol, err := sheet.ColumnIn(header, cols.LinkLabel)
	if err != nil {
		return sum, err
	}

	lastRow, err := g.sheet.LastRow(ctx)
	if err != nil {
		return sum, fmt.Errorf("reading last row: %w", err)
	}
	if lastRow < FirstDataRow {
		return sum, nil
	}
	rows, err := g.sheet.ReadRange(ctx, FirstDataRow, 1, lastRow-FirstDataRow+1, len(header))
	if err != nil {
		return sum, fmt.Errorf("reading responses: %w", err)
	}

	run := &run{g: g, tmpl: tmpl, cfg: cfg, statusCol: statusCol, linkCol: linkCol}
	keys := hm.Keys()
	for i, values := range rows {
		rec := incident.New(FirstDataRow+i, values, keys)
		if rec.IsSent(cols.StatusLabel) {
			sum.Skipped++
			continue
		}
		res, err := run.process(ctx, rec)
		if err != nil {
			return sum, fmt.Errorf("row %d: %w", rec.Row, err)
		}
		sum.Processed++
		sum.Rows = append(sum.Rows, res)
	}

	g.logger.Info("report run finished", "processed", sum.Processed, "skipped", sum.Skipped)
	return sum, nil
}

// run carries per-run state. The month folder is resolved on first use and
// reused for every later row.
type run struct {
	g         *Generator
	tmpl      host.File
	cfg       settings.Settings
	statusCol int
	linkCol   int
	folder    *host.Folder
}

func (r *run) destination(ctx context.Context) (host.Folder, error) {
	if r.folder != nil {
		return *r.folder, nil
	}
	f, err := r.g.folders.CurrentMonthFolder(ctx)
	if err != nil {
		return host.Folder{}, err
	}
	r.folder = &f
	return f, nil
}

func (r *run) process(ctx context.Context, rec *incident.Record) (RowResult, error) {
	g := r.g
	dest, err := r.destination(ctx)
	if err != nil {
		return RowResult{}, err
	}

	name := rec.Filename(r.cfg.ReportFilename)
	art, err := r.render(ctx, rec, dest, name)
	if err != nil {
		return RowResult{}, err
	}
	rec.PDFURL = art.PDF.URL

	if err := g.sheet.SetValue(ctx, rec.Row, r.linkCol, rec.PDFURL); err != nil {
		return RowResult{}, fmt.Errorf("writing link: %w", err)
	}
	if err := g.sheet.SetValue(ctx, rec.Row, r.statusCol, incident.SentValue); err != nil {
		return RowResult{}, fmt.Errorf("writing status: %w", err)
	}
	if err := g.sheet.SetHorizontalAlignment(ctx, rec.Row, r.statusCol, "center"); err != nil {
		return RowResult{}, fmt.Errorf("aligning status: %w", err)
	}
	g.logger.Info("report created", "row", rec.Row, "name", name, "folder", dest.Name)

	if g.notifier != nil && len(r.cfg.EmailAddresses) > 0 {
		if err := g.notifier.ReportReady(ctx, art, r.cfg.EmailAddresses); err != nil {
			g.logger.Warn("report notification failed", "row", rec.Row, "error", err)
		}
	}
	return RowResult{Row: rec.Row, Name: art.PDF.Name, URL: rec.PDFURL}, nil
}

// render fills a throwaway copy of the template and exports it. The copy is
// trashed whether or not the export worked.
func (r *run) render(ctx context.Context, rec *incident.Record, dest host.Folder, pdfName string) (Artifact, error) {
	g := r.g
	copyName := fmt.Sprintf("%s %d", r.tmpl.Name, g.now().UnixMilli())
	doc, err := g.files.CopyFile(ctx, r.tmpl.ID, copyName, dest.ID)
	if err != nil {
		return Artifact{}, fmt.Errorf("copying template: %w", err)
	}
	defer func() {
		if err := g.files.TrashFile(ctx, doc.ID); err != nil {
			g.logger.Warn("trashing document copy failed", "id", doc.ID, "error", err)
		}
	}()

	if err := g.docs.ReplaceText(ctx, doc.ID, rec.Placeholders()); err != nil {
		return Artifact{}, fmt.Errorf("filling template: %w", err)
	}
	pdf, err := g.docs.ExportPDF(ctx, doc.ID, pdfName, dest.ID)
	if err != nil {
		return Artifact{}, fmt.Errorf("exporting pdf: %w", err)
	}
	return Artifact{Row: rec.Row, DocumentID: doc.ID, PDF: pdf}, nil
}
