package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kalambet/increp/internal/host/local"
	"github.com/kalambet/increp/internal/report"
	"github.com/kalambet/increp/internal/settings"
	"github.com/kalambet/increp/internal/sidebar"
	"github.com/kalambet/increp/internal/storage"
	"github.com/kalambet/increp/internal/trigger"
	"github.com/kalambet/increp/internal/worker"
)

const testToken = "test-token-12345"

type fixture struct {
	handler  http.Handler
	store    *storage.Store
	settings *settings.Store
	drive    *local.Drive
	sheet    *local.Sheet
	trigger  *trigger.Manager
	results  *fakeResults
}

type fakeResults map[string]report.Summary

func (f fakeResults) Result(id string) (report.Summary, bool) {
	s, ok := f[id]
	return s, ok
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	st, err := settings.Open(store)
	if err != nil {
		t.Fatalf("settings.Open: %v", err)
	}
	drive := local.NewDrive(store, "http://reports.test")
	sh := local.NewSheet(store, "Form Responses 1")
	trig := trigger.NewManager(local.NewTriggers(store), st, nil, st.Current().Trigger)
	queue := worker.NewQueue(store)
	results := fakeResults{}

	h := NewAppHandler(AppDeps{
		Token:       testToken,
		Sidebar:     sidebar.NewPanel(st, drive, local.MimeDocument),
		Queue:       queue,
		Jobs:        store,
		Results:     results,
		Trigger:     trig,
		Submissions: worker.NewDispatcher(trig, queue),
		Rows:        sh,
		Files:       drive,
	})
	return &fixture{handler: h, store: store, settings: st, drive: drive, sheet: sh, trigger: trig, results: &results}
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func (f *fixture) do(t *testing.T, method, url, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, authReq(method, url, body, testToken))
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestHealthNeedsNoToken(t *testing.T) {
	f := newFixture(t)
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t)
	for _, token := range []string{"", "wrong"} {
		rr := httptest.NewRecorder()
		f.handler.ServeHTTP(rr, authReq(http.MethodGet, "/sidebar/emails", "", token))
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("token %q: status = %d, want 401", token, rr.Code)
		}
	}
}

func TestEmails_AddReportsProblems(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/sidebar/emails", `{"input":"a@x.com, bad, a@x.com, b@y.org"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	resp := decode[fragmentResponse](t, rr)
	if !strings.Contains(resp.HTML, `data-email="a@x.com"`) || !strings.Contains(resp.HTML, `data-email="b@y.org"`) {
		t.Errorf("html = %s", resp.HTML)
	}
	want := []problemView{{Kind: "invalid", Address: "bad", Title: "Invalid email", Message: "bad is not a valid email address"}}
	if diff := cmp.Diff(want, resp.Problems); diff != "" {
		t.Errorf("problems mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a@x.com", "b@y.org"}, f.settings.Current().EmailAddresses); diff != "" {
		t.Errorf("stored mismatch (-want +got):\n%s", diff)
	}

	rr = f.do(t, http.MethodPost, "/sidebar/emails", `{"input":"a@x.com"}`)
	resp = decode[fragmentResponse](t, rr)
	if len(resp.Problems) != 1 || resp.Problems[0].Title != "Duplicate email" {
		t.Errorf("problems = %+v", resp.Problems)
	}

	rr = f.do(t, http.MethodDelete, "/sidebar/emails/a@x.com", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rr.Code)
	}
	if diff := cmp.Diff([]string{"b@y.org"}, f.settings.Current().EmailAddresses); diff != "" {
		t.Errorf("after delete (-want +got):\n%s", diff)
	}
}

func TestEmails_BadBody(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodPost, "/sidebar/emails", `{`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestTemplate_SelectAndDisplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root, err := f.drive.EnsureRoot(ctx, local.DefaultRootName)
	if err != nil {
		t.Fatalf("EnsureRoot: %v", err)
	}
	doc, err := f.drive.ImportDocument(ctx, "Incident Template", root.ID, []byte("<p><<Name>></p>"))
	if err != nil {
		t.Fatalf("ImportDocument: %v", err)
	}

	rr := f.do(t, http.MethodGet, "/sidebar/template", "")
	if resp := decode[fragmentResponse](t, rr); !strings.Contains(resp.HTML, "No template selected") {
		t.Errorf("initial html = %s", resp.HTML)
	}

	rr = f.do(t, http.MethodPut, "/sidebar/template", `{"file_id":"`+doc.ID+`"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	if resp := decode[fragmentResponse](t, rr); !strings.Contains(resp.HTML, "Incident Template") {
		t.Errorf("html = %s", resp.HTML)
	}
	if got := f.settings.Current().TemplateFileID; got != doc.ID {
		t.Errorf("TemplateFileID = %q, want %q", got, doc.ID)
	}

	rr = f.do(t, http.MethodPut, "/sidebar/template", `{"file_id":"missing"}`)
	if rr.Code != http.StatusNotFound {
		t.Errorf("missing file status = %d, want 404", rr.Code)
	}
	rr = f.do(t, http.MethodPut, "/sidebar/template", `{}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("empty file_id status = %d, want 400", rr.Code)
	}
}

func TestTemplate_RejectsNonDocument(t *testing.T) {
	f := newFixture(t)
	if err := f.store.SaveFile(storage.File{ID: "pdf1", Name: "old.pdf", MimeType: "application/pdf", Content: []byte("%PDF")}); err != nil {
		t.Fatal(err)
	}
	rr := f.do(t, http.MethodPut, "/sidebar/template", `{"file_id":"pdf1"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400; body = %s", rr.Code, rr.Body.String())
	}
	if f.settings.Current().TemplateFileID != "" {
		t.Error("non-document stored as template")
	}
}

func TestFilename(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/sidebar/filename", "")
	if resp := decode[fragmentResponse](t, rr); resp.HTML != "<span>"+settings.DefaultReportFilename+"</span>" {
		t.Errorf("default html = %s", resp.HTML)
	}

	rr = f.do(t, http.MethodPut, "/sidebar/filename", `{"filename":"  **Name** & co  "}`)
	if resp := decode[fragmentResponse](t, rr); resp.HTML != "<span>**Name** &amp; co</span>" {
		t.Errorf("html = %s", resp.HTML)
	}
	if got := f.settings.Current().ReportFilename; got != "**Name** & co" {
		t.Errorf("ReportFilename = %q", got)
	}
}

func TestGenerate_QueuesAndCoalesces(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/reports/generate", "")
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rr.Code)
	}
	first := decode[jobResponse](t, rr)
	if first.ID == "" || first.Created == nil || !*first.Created {
		t.Errorf("first = %+v", first)
	}

	second := decode[jobResponse](t, f.do(t, http.MethodPost, "/reports/generate", ""))
	if second.ID != first.ID || *second.Created {
		t.Errorf("second = %+v, want coalesced into %s", second, first.ID)
	}

	(*f.results)[first.ID] = report.Summary{Processed: 3}
	status := decode[jobResponse](t, f.do(t, http.MethodGet, "/reports/jobs/"+first.ID, ""))
	if status.Status != "pending" || status.Summary == nil || status.Summary.Processed != 3 {
		t.Errorf("status = %+v", status)
	}

	rr = f.do(t, http.MethodGet, "/reports/jobs/nope", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("missing job status = %d, want 404", rr.Code)
	}
}

func TestTrigger_SwitchModes(t *testing.T) {
	f := newFixture(t)
	f.trigger.ActivateCurrentTrigger(context.Background())

	got := decode[triggerResponse](t, f.do(t, http.MethodGet, "/trigger", ""))
	if got != (triggerResponse{Mode: settings.Automatic, Active: true}) {
		t.Errorf("initial = %+v", got)
	}

	got = decode[triggerResponse](t, f.do(t, http.MethodPut, "/trigger", `{"mode":"manual"}`))
	if got != (triggerResponse{Mode: settings.Manual, Active: false}) {
		t.Errorf("after manual = %+v", got)
	}
	if f.settings.Current().Trigger != settings.Manual {
		t.Errorf("stored mode = %q", f.settings.Current().Trigger)
	}

	rr := f.do(t, http.MethodPut, "/trigger", `{"mode":"sometimes"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad mode status = %d, want 400", rr.Code)
	}
}

func TestSubmission_AppendsAndDispatches(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/submissions", `{"values":["2024-03-14","Jane"]}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	resp := decode[map[string]any](t, rr)
	if resp["status"] != "ignored" || resp["row"] != float64(1) {
		t.Errorf("without trigger = %v", resp)
	}

	f.trigger.ActivateCurrentTrigger(context.Background())
	resp = decode[map[string]any](t, f.do(t, http.MethodPost, "/submissions", `{"values":["2024-03-15","Joe"]}`))
	if resp["status"] != "queued" || resp["job_id"] == "" || resp["row"] != float64(2) {
		t.Errorf("with trigger = %v", resp)
	}
	if v, _, _, _ := f.sheet.Cell(2, 2); v != "Joe" {
		t.Errorf("cell B2 = %q, want Joe", v)
	}
}

func TestFiles_ServedWithoutToken(t *testing.T) {
	f := newFixture(t)
	if err := f.store.SaveFile(storage.File{ID: "r1", Name: "Jane.pdf", MimeType: "application/pdf", Content: []byte("%PDF-1.4")}); err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/files/r1", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); cd != `inline; filename=Jane.pdf` {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if rr.Body.String() != "%PDF-1.4" {
		t.Errorf("body = %q", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	f.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/files/missing", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("missing status = %d, want 404", rr.Code)
	}
}

func TestAuth_EmptyTokenLocksRoutes(t *testing.T) {
	h := BearerAuth("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached without a configured token")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/", "", ""))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "INCREP_API_TOKEN") {
		t.Errorf("body = %s", rr.Body.String())
	}
}
