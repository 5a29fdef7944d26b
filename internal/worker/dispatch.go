package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Gate reports whether submissions should start a generation pass.
type Gate interface {
	Active(ctx context.Context) (bool, error)
}

// Enqueuer queues a generation pass.
type Enqueuer interface {
	Enqueue(reason string) (string, bool, error)
}

// Dispatcher turns form submissions into queued passes while the
// submission trigger is registered.
type Dispatcher struct {
	gate   Gate
	queue  Enqueuer
	logger *slog.Logger
}

func NewDispatcher(gate Gate, queue Enqueuer) *Dispatcher {
	return &Dispatcher{gate: gate, queue: queue, logger: slog.Default()}
}

// FormSubmitted queues a pass and returns its job id. It returns an empty
// id when reports are generated manually.
func (d *Dispatcher) FormSubmitted(ctx context.Context) (string, error) {
	active, err := d.gate.Active(ctx)
	if err != nil {
		return "", fmt.Errorf("checking trigger: %w", err)
	}
	if !active {
		d.logger.Debug("submission ignored, no trigger registered")
		return "", nil
	}
	id, _, err := d.queue.Enqueue("form_submit")
	return id, err
}

// RowCounter reports the last row of the response sheet.
type RowCounter interface {
	LastRow(ctx context.Context) (int, error)
}

// Poller watches the response sheet for appended rows and reports them as
// submissions. It is used for hosts that cannot call back on submit.
type Poller struct {
	rows     RowCounter
	dispatch *Dispatcher
	interval time.Duration
	logger   *slog.Logger

	seen    int
	started bool
}

func NewPoller(rows RowCounter, dispatch *Dispatcher, interval time.Duration) *Poller {
	return &Poller{rows: rows, dispatch: dispatch, interval: interval, logger: slog.Default()}
}

// Run checks for new rows every interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		if _, err := p.Check(ctx); err != nil {
			p.logger.Warn("polling sheet failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Check compares the sheet extent with the last one seen. The first call
// only records a baseline. It returns true when rows were added.
func (p *Poller) Check(ctx context.Context) (bool, error) {
	last, err := p.rows.LastRow(ctx)
	if err != nil {
		return false, err
	}
	if !p.started {
		p.started = true
		p.seen = last
		return false, nil
	}
	if last <= p.seen {
		p.seen = last
		return false, nil
	}
	p.logger.Info("new responses detected", "from_row", p.seen+1, "to_row", last)
	if _, err := p.dispatch.FormSubmitted(ctx); err != nil {
		return true, err
	}
	p.seen = last
	return true, nil
}
