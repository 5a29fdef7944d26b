// Package worker runs report generation in the background: submissions and
// on-demand requests enqueue generate_reports jobs, and a single worker
// drains them one at a time.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/increp/internal/report"
	"github.com/kalambet/increp/internal/storage"
)

// JobGenerateReports is the job type for a full generation pass.
const JobGenerateReports = "generate_reports"

// JobStore abstracts the job queue operations.
type JobStore interface {
	EnqueueJob(job storage.Job) error
	PendingJobID(jobType string) (string, error)
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
}

// Generator runs one pass over the response sheet.
type Generator interface {
	GenerateReports(ctx context.Context) (report.Summary, error)
}

// Reloader re-reads persisted settings.
type Reloader interface {
	Reload() error
}

// maxResults bounds the summaries a Worker keeps for status lookups.
const maxResults = 256

type generatePayload struct {
	Reason string `json:"reason"`
}

// Queue enqueues generate_reports jobs. A pass already waiting absorbs new
// requests, since it will see every row present when it starts.
type Queue struct {
	store  JobStore
	mu     sync.Mutex
	logger *slog.Logger
}

func NewQueue(store JobStore) *Queue {
	return &Queue{store: store, logger: slog.Default()}
}

// Enqueue returns the id of the job that will serve the request and whether
// a new job was created.
func (q *Queue) Enqueue(reason string) (string, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	id, err := q.store.PendingJobID(JobGenerateReports)
	if err == nil {
		q.logger.Debug("generation already queued", "job_id", id, "reason", reason)
		return id, false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return "", false, fmt.Errorf("checking pending jobs: %w", err)
	}

	payload, err := json.Marshal(generatePayload{Reason: reason})
	if err != nil {
		return "", false, err
	}
	id = uuid.New().String()
	if err := q.store.EnqueueJob(storage.Job{ID: id, Type: JobGenerateReports, PayloadJSON: string(payload)}); err != nil {
		return "", false, fmt.Errorf("enqueueing job: %w", err)
	}
	q.logger.Info("queued report generation", "job_id", id, "reason", reason)
	return id, true, nil
}

// Worker processes generate_reports jobs from the SQLite job queue.
type Worker struct {
	store    JobStore
	gen      Generator
	settings Reloader
	poll     time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	results map[string]report.Summary
	order   []string
}

// NewWorker creates a Worker. If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, gen Generator, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:   store,
		gen:     gen,
		poll:    pollInterval,
		logger:  slog.Default(),
		results: make(map[string]report.Summary),
	}
}

// WithSettings makes every job start from freshly read settings, so changes
// written by other processes are picked up.
func (w *Worker) WithSettings(r Reloader) *Worker {
	w.settings = r
	return w
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single generate_reports job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobGenerateReports})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	var payload generatePayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		w.logger.Warn("ignoring malformed payload", "job_id", job.ID, "error", err)
	}

	if w.settings != nil {
		if err := w.settings.Reload(); err != nil {
			w.logger.Warn("job failed", "job_id", job.ID, "error", err)
			if failErr := w.store.FailJob(job.ID, "reloading settings: "+err.Error()); failErr != nil {
				w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
			}
			return true, nil
		}
	}

	summary, err := w.gen.GenerateReports(ctx)
	w.record(job.ID, summary)
	if err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "processed", summary.Processed, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	w.logger.Info("reports generated", "job_id", job.ID, "reason", payload.Reason,
		"processed", summary.Processed, "skipped", summary.Skipped)
	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

// record keeps the summary of a job, dropping the oldest beyond maxResults.
func (w *Worker) record(id string, s report.Summary) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.results[id]; !ok {
		w.order = append(w.order, id)
	}
	w.results[id] = s
	for len(w.order) > maxResults {
		delete(w.results, w.order[0])
		w.order = w.order[1:]
	}
}

// Result returns the summary of a job this worker ran.
func (w *Worker) Result(id string) (report.Summary, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.results[id]
	return s, ok
}
