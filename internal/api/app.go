package api

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/increp/internal/email"
	"github.com/kalambet/increp/internal/host"
	"github.com/kalambet/increp/internal/report"
	"github.com/kalambet/increp/internal/settings"
	"github.com/kalambet/increp/internal/sidebar"
	"github.com/kalambet/increp/internal/storage"
)

// Sidebar is the settings panel.
type Sidebar interface {
	EmailAddressDisplay() (string, error)
	AddEmailAddresses(input string) (string, []email.Problem, error)
	RemoveEmailAddress(addr string) (string, error)
	TemplateFileDisplay(ctx context.Context) (string, error)
	LoadSelectedFile(ctx context.Context, fileID string) (string, error)
	ReportFilenameDisplay() (string, error)
	SetReportFilename(name string) (string, error)
}

// JobQueue enqueues generation passes.
type JobQueue interface {
	Enqueue(reason string) (string, bool, error)
}

// JobLookup reads queued jobs.
type JobLookup interface {
	GetJob(id string) (storage.Job, error)
}

// ResultLookup returns the summary of a finished pass.
type ResultLookup interface {
	Result(id string) (report.Summary, bool)
}

// TriggerControl switches between automatic and manual generation.
type TriggerControl interface {
	Mode() settings.Mode
	SetMode(mode settings.Mode) error
	ActivateCurrentTrigger(ctx context.Context) settings.Mode
	Active(ctx context.Context) (bool, error)
}

// SubmissionHandler reacts to a new form response.
type SubmissionHandler interface {
	FormSubmitted(ctx context.Context) (string, error)
}

// RowAppender appends a form response to the sheet.
type RowAppender interface {
	AppendRow(ctx context.Context, values []string) (int, error)
}

// FileContent serves stored files.
type FileContent interface {
	Content(ctx context.Context, id string) (host.File, []byte, error)
}

type AppDeps struct {
	Token       string
	Sidebar     Sidebar
	Queue       JobQueue
	Jobs        JobLookup
	Results     ResultLookup // optional; summaries are omitted when nil
	Trigger     TriggerControl
	Submissions SubmissionHandler
	Rows        RowAppender // optional; submissions only dispatch when nil
	Files       FileContent // optional; /files is not mounted when nil
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	// Report links in the sheet are opened from a browser without a token.
	if deps.Files != nil {
		r.Get("/files/{id}", handleGetFile(deps))
	}

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/sidebar/emails", handleEmailDisplay(deps))
		r.Post("/sidebar/emails", handleAddEmails(deps))
		r.Delete("/sidebar/emails/{address}", handleRemoveEmail(deps))
		r.Get("/sidebar/template", handleTemplateDisplay(deps))
		r.Put("/sidebar/template", handleSelectTemplate(deps))
		r.Get("/sidebar/filename", handleFilenameDisplay(deps))
		r.Put("/sidebar/filename", handleSetFilename(deps))

		r.Post("/reports/generate", handleGenerate(deps))
		r.Get("/reports/jobs/{id}", handleGetJob(deps))

		r.Get("/trigger", handleGetTrigger(deps))
		r.Put("/trigger", handleSetTrigger(deps))

		r.Post("/submissions", handleSubmission(deps))
	})

	return r
}

type fragmentResponse struct {
	HTML     string        `json:"html"`
	Problems []problemView `json:"problems,omitempty"`
}

type problemView struct {
	Kind    string `json:"kind"`
	Address string `json:"address"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

func fragment(w http.ResponseWriter, html string, err error) {
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, fragmentResponse{HTML: html})
}

func handleEmailDisplay(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		html, err := deps.Sidebar.EmailAddressDisplay()
		fragment(w, html, err)
	}
}

func handleAddEmails(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input string `json:"input"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		html, problems, err := deps.Sidebar.AddEmailAddresses(req.Input)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save email addresses: %v", err)
			return
		}
		resp := fragmentResponse{HTML: html}
		for _, p := range problems {
			resp.Problems = append(resp.Problems, problemView{
				Kind:    string(p.Kind),
				Address: p.Address,
				Title:   p.Title(),
				Message: p.Error(),
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleRemoveEmail(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		html, err := deps.Sidebar.RemoveEmailAddress(chi.URLParam(r, "address"))
		fragment(w, html, err)
	}
}

func handleTemplateDisplay(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		html, err := deps.Sidebar.TemplateFileDisplay(r.Context())
		fragment(w, html, err)
	}
}

func handleSelectTemplate(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			FileID string `json:"file_id"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if req.FileID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "file_id is required")
			return
		}
		html, err := deps.Sidebar.LoadSelectedFile(r.Context(), req.FileID)
		switch {
		case errors.Is(err, sidebar.ErrInvalidFileType):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		case errors.Is(err, host.ErrNotFound):
			httpError(w, http.StatusNotFound, "not_found", "file not found")
		default:
			fragment(w, html, err)
		}
	}
}

func handleFilenameDisplay(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		html, err := deps.Sidebar.ReportFilenameDisplay()
		fragment(w, html, err)
	}
}

func handleSetFilename(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Filename string `json:"filename"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		html, err := deps.Sidebar.SetReportFilename(req.Filename)
		fragment(w, html, err)
	}
}

type jobResponse struct {
	ID      string          `json:"id"`
	Status  string          `json:"status"`
	Error   string          `json:"error,omitempty"`
	Created *bool           `json:"created,omitempty"`
	Summary *report.Summary `json:"summary,omitempty"`
}

func handleGenerate(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, created, err := deps.Queue.Enqueue("manual")
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue job: %v", err)
			return
		}
		writeJSON(w, http.StatusAccepted, jobResponse{ID: id, Status: "queued", Created: &created})
	}
}

func handleGetJob(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := deps.Jobs.GetJob(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get job: %v", err)
			return
		}
		resp := jobResponse{ID: job.ID, Status: job.Status, Error: job.LastError}
		if deps.Results != nil {
			if s, ok := deps.Results.Result(job.ID); ok {
				resp.Summary = &s
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type triggerResponse struct {
	Mode   settings.Mode `json:"mode"`
	Active bool          `json:"active"`
}

func triggerState(w http.ResponseWriter, r *http.Request, deps AppDeps, mode settings.Mode) {
	active, err := deps.Trigger.Active(r.Context())
	if err != nil {
		httpError(w, http.StatusBadGateway, "api_error", "failed to list triggers: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, triggerResponse{Mode: mode, Active: active})
}

func handleGetTrigger(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		triggerState(w, r, deps, deps.Trigger.Mode())
	}
}

func handleSetTrigger(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Mode string `json:"mode"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		mode, err := settings.ParseMode(req.Mode)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err := deps.Trigger.SetMode(mode); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save trigger mode: %v", err)
			return
		}
		triggerState(w, r, deps, deps.Trigger.ActivateCurrentTrigger(r.Context()))
	}
}

func handleSubmission(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Values []string `json:"values"`
		}
		if !decodeBody(w, r, &req) {
			return
		}

		resp := map[string]any{}
		if len(req.Values) > 0 {
			if deps.Rows == nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "this host does not accept rows over the API")
				return
			}
			row, err := deps.Rows.AppendRow(r.Context(), req.Values)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to append row: %v", err)
				return
			}
			resp["row"] = row
		}

		id, err := deps.Submissions.FormSubmitted(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to dispatch submission: %v", err)
			return
		}
		if id == "" {
			resp["status"] = "ignored"
		} else {
			resp["status"] = "queued"
			resp["job_id"] = id
		}
		writeJSON(w, http.StatusAccepted, resp)
	}
}

func handleGetFile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, body, err := deps.Files.Content(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, host.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "file not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read file: %v", err)
			return
		}
		w.Header().Set("Content-Type", f.MimeType)
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": f.Name}))
		w.Write(body)
	}
}
