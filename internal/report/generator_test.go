package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kalambet/increp/internal/folder"
	"github.com/kalambet/increp/internal/host"
	"github.com/kalambet/increp/internal/host/local"
	"github.com/kalambet/increp/internal/settings"
	"github.com/kalambet/increp/internal/sheet"
	"github.com/kalambet/increp/internal/storage"
)

// countingExporter fakes PDF printing. failOn makes the nth call fail.
type countingExporter struct {
	calls  int
	failOn int
	last   string
}

func (c *countingExporter) HTMLToPDF(_ context.Context, body []byte) ([]byte, error) {
	c.calls++
	c.last = string(body)
	if c.calls == c.failOn {
		return nil, errors.New("export quota exceeded")
	}
	return []byte("%PDF-1.4\n%fake\n"), nil
}

type recordingNotifier struct {
	artifacts  []Artifact
	recipients [][]string
	err        error
}

func (r *recordingNotifier) ReportReady(_ context.Context, a Artifact, to []string) error {
	r.artifacts = append(r.artifacts, a)
	r.recipients = append(r.recipients, to)
	return r.err
}

type fixture struct {
	store    *storage.Store
	sheet    *local.Sheet
	drive    *local.Drive
	exporter *countingExporter
	settings *settings.Store
	root     host.Folder
	gen      *Generator
}

var march = time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)

func newFixture(t *testing.T, header ...string) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	f := &fixture{store: store, exporter: &countingExporter{}}
	f.sheet = local.NewSheet(store, "Form Responses 1")
	f.drive = local.NewDrive(store, "")
	docs := local.NewDocuments(store, f.drive, f.exporter)

	if f.settings, err = settings.Open(store); err != nil {
		t.Fatalf("settings.Open: %v", err)
	}
	if f.root, err = f.drive.EnsureRoot(ctx, local.DefaultRootName); err != nil {
		t.Fatalf("EnsureRoot: %v", err)
	}

	for i, h := range header {
		f.sheet.SetValue(ctx, 1, i+1, h)
	}

	f.gen = NewGenerator(Deps{
		Sheet:    f.sheet,
		Headers:  sheet.NewManager(f.sheet, sheet.DefaultColumns(), f.settings),
		Files:    f.drive,
		Docs:     docs,
		Folders:  folder.NewResolver(f.drive, f.root.ID).WithClock(func() time.Time { return march }),
		Settings: f.settings,
	}).WithClock(func() time.Time { return march })
	return f
}

func (f *fixture) withTemplate(t *testing.T, body string) host.File {
	t.Helper()
	tmpl, err := f.drive.ImportDocument(context.Background(), "Incident Template", "", []byte(body))
	if err != nil {
		t.Fatalf("ImportDocument: %v", err)
	}
	if err := f.settings.SetTemplateFileID(tmpl.ID); err != nil {
		t.Fatalf("SetTemplateFileID: %v", err)
	}
	return tmpl
}

func (f *fixture) addRow(t *testing.T, values ...string) int {
	t.Helper()
	row, err := f.sheet.AppendRow(context.Background(), values)
	if err != nil {
		t.Fatalf("AppendRow: %v", err)
	}
	return row
}

func (f *fixture) header(t *testing.T) []string {
	t.Helper()
	last, _ := f.sheet.LastColumn(context.Background())
	rows, err := f.sheet.ReadRange(context.Background(), 1, 1, 1, last)
	if err != nil {
		t.Fatalf("ReadRange: %v", err)
	}
	return rows[0]
}

func (f *fixture) monthFolders(t *testing.T) []host.Folder {
	t.Helper()
	folders, err := f.drive.ChildFolders(context.Background(), f.root.ID)
	if err != nil {
		t.Fatalf("ChildFolders: %v", err)
	}
	return folders
}

func TestGenerateReportsEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "Time", "Name", "Description")
	f.withTemplate(t, "<h1>Incident</h1><p><<Name>>: <<Description>></p>")
	f.addRow(t, "2024-01-01", "Jane", "Fell")

	sum, err := f.gen.GenerateReports(ctx)
	if err != nil {
		t.Fatalf("GenerateReports: %v", err)
	}
	if sum.Processed != 1 || sum.Skipped != 0 {
		t.Errorf("Summary = %+v", sum)
	}

	wantHeader := []string{"Time", "Name", "Description", "Report Status", "PDF Link"}
	if diff := cmp.Diff(wantHeader, f.header(t)); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}

	status, _, align, _ := f.sheet.Cell(2, 4)
	if status != "sent" || align != "center" {
		t.Errorf("status cell = %q (%q), want sent (center)", status, align)
	}
	link, _, _, _ := f.sheet.Cell(2, 5)
	if link == "" || link != sum.Rows[0].URL {
		t.Errorf("link cell = %q, summary url = %q", link, sum.Rows[0].URL)
	}

	folders := f.monthFolders(t)
	if len(folders) != 1 || folders[0].Name != "Mar" {
		t.Fatalf("month folders = %+v, want one Mar", folders)
	}
	files, _ := f.drive.ListFolder(ctx, folders[0].ID)
	if len(files) != 1 || files[0].MimeType != host.MimePDF {
		t.Fatalf("live files = %+v, want one pdf", files)
	}
	if files[0].Name != "Incident Report 2024-01-01" {
		t.Errorf("pdf name = %q", files[0].Name)
	}

	if !strings.Contains(f.exporter.last, "Jane: Fell") {
		t.Errorf("exported html missing filled placeholders: %s", f.exporter.last)
	}
}

func TestGenerateReportsTrashesCopy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "Time", "Name")
	f.withTemplate(t, "<p><<Name>></p>")
	f.addRow(t, "t1", "Jane")

	if _, err := f.gen.GenerateReports(ctx); err != nil {
		t.Fatalf("GenerateReports: %v", err)
	}
	folderID := f.monthFolders(t)[0].ID
	all, _ := f.store.FilesInFolder(folderID, true)
	if len(all) != 2 {
		t.Fatalf("files incl. trashed = %d, want 2", len(all))
	}
	for _, file := range all {
		if file.MimeType == local.MimeDocument {
			if !file.Trashed {
				t.Error("document copy not trashed")
			}
			if file.Name != "Incident Template 1710406800000" {
				t.Errorf("copy name = %q", file.Name)
			}
		}
	}
}

func TestGenerateReportsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "Time", "Name")
	f.withTemplate(t, "<p><<Name>></p>")
	f.addRow(t, "t1", "Jane")
	f.addRow(t, "t2", "Joe")

	if _, err := f.gen.GenerateReports(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}
	calls := f.exporter.calls

	sum, err := f.gen.GenerateReports(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if sum.Processed != 0 || sum.Skipped != 2 {
		t.Errorf("second Summary = %+v", sum)
	}
	if f.exporter.calls != calls {
		t.Errorf("second run exported %d more pdfs", f.exporter.calls-calls)
	}
	if len(f.monthFolders(t)) != 1 {
		t.Errorf("month folders = %d, want 1", len(f.monthFolders(t)))
	}
	if last, _ := f.sheet.LastColumn(ctx); last != 4 {
		t.Errorf("LastColumn = %d, want 4", last)
	}
}

func TestGenerateReportsSkipsSentRows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "Time", "Name", "Report Status", "PDF Link")
	f.withTemplate(t, "<p><<Name>></p>")
	f.addRow(t, "t1", "Jane", "sent", "")
	f.addRow(t, "t2", "Joe")

	sum, err := f.gen.GenerateReports(ctx)
	if err != nil {
		t.Fatalf("GenerateReports: %v", err)
	}
	if sum.Processed != 1 || sum.Skipped != 1 || sum.Rows[0].Row != 3 {
		t.Errorf("Summary = %+v", sum)
	}
	if link, _, _, _ := f.sheet.Cell(2, 4); link != "" {
		t.Errorf("sent row link rewritten to %q", link)
	}
	if f.exporter.calls != 1 {
		t.Errorf("exports = %d, want 1", f.exporter.calls)
	}
}

func TestGenerateReportsNoUnsentRowsResolvesNoFolder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "Time", "Name", "Report Status", "PDF Link")
	f.withTemplate(t, "<p><<Name>></p>")
	f.addRow(t, "t1", "Jane", "sent", "increp://file/x")

	if _, err := f.gen.GenerateReports(ctx); err != nil {
		t.Fatalf("GenerateReports: %v", err)
	}
	if n := len(f.monthFolders(t)); n != 0 {
		t.Errorf("month folders = %d, want 0", n)
	}
}

func TestGenerateReportsOneFolderPerRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "Time", "Name")
	f.withTemplate(t, "<p><<Name>></p>")
	for _, n := range []string{"A", "B", "C"} {
		f.addRow(t, "t", n)
	}

	sum, err := f.gen.GenerateReports(ctx)
	if err != nil {
		t.Fatalf("GenerateReports: %v", err)
	}
	if sum.Processed != 3 {
		t.Errorf("Processed = %d, want 3", sum.Processed)
	}
	folders := f.monthFolders(t)
	if len(folders) != 1 {
		t.Fatalf("month folders = %d, want 1", len(folders))
	}
	files, _ := f.drive.ListFolder(ctx, folders[0].ID)
	if len(files) != 3 {
		t.Errorf("pdfs = %d, want 3", len(files))
	}
}

func TestGenerateReportsAbortKeepsEarlierRows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "Time", "Name")
	f.withTemplate(t, "<p><<Name>></p>")
	f.addRow(t, "t1", "Jane")
	f.addRow(t, "t2", "Joe")
	f.addRow(t, "t3", "Ann")
	f.exporter.failOn = 2

	sum, err := f.gen.GenerateReports(ctx)
	if err == nil || !strings.Contains(err.Error(), "row 3") {
		t.Fatalf("err = %v, want failure on row 3", err)
	}
	if sum.Processed != 1 {
		t.Errorf("Processed = %d, want 1", sum.Processed)
	}
	for row, want := range map[int]string{2: "sent", 3: "", 4: ""} {
		if got, _, _, _ := f.sheet.Cell(row, 3); got != want {
			t.Errorf("row %d status = %q, want %q", row, got, want)
		}
	}

	folderID := f.monthFolders(t)[0].ID
	all, _ := f.store.FilesInFolder(folderID, true)
	for _, file := range all {
		if file.MimeType == local.MimeDocument && !file.Trashed {
			t.Errorf("copy %s left untrashed after failed export", file.Name)
		}
	}

	f.exporter.failOn = 0
	sum, err = f.gen.GenerateReports(ctx)
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if sum.Processed != 2 || sum.Skipped != 1 {
		t.Errorf("rerun Summary = %+v", sum)
	}
}

func TestGenerateReportsRequiresTemplate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "Time", "Name")
	f.addRow(t, "t1", "Jane")

	_, err := f.gen.GenerateReports(ctx)
	if !errors.Is(err, ErrNoTemplate) {
		t.Fatalf("err = %v, want ErrNoTemplate", err)
	}
	if last, _ := f.sheet.LastColumn(ctx); last != 2 {
		t.Errorf("header touched before template check: LastColumn = %d", last)
	}

	f.settings.SetTemplateFileID("deleted-doc")
	_, err = f.gen.GenerateReports(ctx)
	if !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("err = %v, want ErrTemplateNotFound", err)
	}
}

func TestGenerateReportsFilenameTemplate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "Time", "Name")
	f.withTemplate(t, "<p><<Name>></p>")
	f.settings.SetReportFilename("**Name**-**missing**.report")
	f.addRow(t, "t1", "Jane")

	sum, err := f.gen.GenerateReports(ctx)
	if err != nil {
		t.Fatalf("GenerateReports: %v", err)
	}
	if got := sum.Rows[0].Name; got != "Jane-**missing**.report" {
		t.Errorf("pdf name = %q, want the computed name unchanged", got)
	}
}

func TestGenerateReportsNotifies(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "Time", "Name")
	f.withTemplate(t, "<p><<Name>></p>")
	f.settings.SetEmailAddresses([]string{"a@x.com"})
	f.addRow(t, "t1", "Jane")
	f.addRow(t, "t2", "Joe")

	n := &recordingNotifier{err: errors.New("smtp down")}
	f.gen.notifier = n

	sum, err := f.gen.GenerateReports(ctx)
	if err != nil {
		t.Fatalf("GenerateReports: %v", err)
	}
	if sum.Processed != 2 {
		t.Errorf("Processed = %d, want 2 despite notifier errors", sum.Processed)
	}
	if len(n.artifacts) != 2 || n.artifacts[0].Row != 2 {
		t.Errorf("notified %+v", n.artifacts)
	}
	if diff := cmp.Diff([]string{"a@x.com"}, n.recipients[0]); diff != "" {
		t.Errorf("recipients mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateReportsEmptySheet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "Time", "Name")
	f.withTemplate(t, "<p><<Name>></p>")

	sum, err := f.gen.GenerateReports(ctx)
	if err != nil {
		t.Fatalf("GenerateReports: %v", err)
	}
	if sum.Processed != 0 || sum.Skipped != 0 {
		t.Errorf("Summary = %+v", sum)
	}
	if cur := f.settings.Current(); cur.StatusColumn != 3 || cur.LinkColumn != 4 {
		t.Errorf("cached columns = %d,%d, want 3,4", cur.StatusColumn, cur.LinkColumn)
	}
}

func TestGenerateReportsWhileSettingsChange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "Time", "Name")
	f.withTemplate(t, "<p><<Name>></p>")
	for i := 0; i < 5; i++ {
		f.addRow(t, fmt.Sprintf("t%d", i), "Jane")
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			f.settings.SetEmailAddresses([]string{fmt.Sprintf("r%d@x.com", i)})
		}
	}()
	sum, err := f.gen.GenerateReports(ctx)
	wg.Wait()

	if err != nil {
		t.Fatalf("GenerateReports: %v", err)
	}
	if sum.Processed != 5 {
		t.Errorf("Processed = %d, want 5", sum.Processed)
	}
}
