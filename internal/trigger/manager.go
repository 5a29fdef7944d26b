// Package trigger switches report generation between running on every form
// submission and running only on demand.
package trigger

import (
	"context"
	"log/slog"
	"sync"

	"github.com/kalambet/increp/internal/host"
	"github.com/kalambet/increp/internal/settings"
)

// Handler and Event identify the submission trigger in the registry.
const (
	Handler = "generateReports"
	Event   = "form_submit"
)

// Alerter surfaces non-fatal problems to the operator.
type Alerter interface {
	Alert(title, message string)
}

// LogAlerter writes alerts to a logger.
type LogAlerter struct {
	Logger *slog.Logger
}

func (a LogAlerter) Alert(title, message string) {
	l := a.Logger
	if l == nil {
		l = slog.Default()
	}
	l.Warn(title, "detail", message)
}

// ModeStore persists the selected mode.
type ModeStore interface {
	SetTrigger(m settings.Mode) error
}

// Manager owns the trigger mode and keeps the registry in step with it.
type Manager struct {
	registry host.TriggerRegistry
	store    ModeStore
	alerter  Alerter
	logger   *slog.Logger

	mu   sync.RWMutex
	mode settings.Mode
}

// NewManager creates a Manager starting in mode. An empty mode means
// automatic.
func NewManager(registry host.TriggerRegistry, store ModeStore, alerter Alerter, mode settings.Mode) *Manager {
	if mode == "" {
		mode = settings.Automatic
	}
	if alerter == nil {
		alerter = LogAlerter{}
	}
	return &Manager{registry: registry, store: store, alerter: alerter, mode: mode, logger: slog.Default()}
}

// Mode returns the selected mode.
func (m *Manager) Mode() settings.Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

// SetMode persists a new mode. It does not touch the registry.
func (m *Manager) SetMode(mode settings.Mode) error {
	if _, err := settings.ParseMode(string(mode)); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.SetTrigger(mode); err != nil {
		return err
	}
	m.mode = mode
	return nil
}

// ActivateCurrentTrigger brings the registry in line with the mode and
// returns the mode. In automatic mode a submission trigger is created
// unless one is already registered; in manual mode the first registered
// trigger is removed. Registry failures are alerted, not returned.
func (m *Manager) ActivateCurrentTrigger(ctx context.Context) settings.Mode {
	mode := m.Mode()
	triggers, err := m.registry.Triggers(ctx)
	if err != nil {
		m.alerter.Alert("Installable trigger error", "listing triggers: "+err.Error())
		return mode
	}

	if mode == settings.Automatic {
		m.enable(ctx, triggers)
	} else {
		m.disableFirst(ctx, triggers)
	}
	return mode
}

func (m *Manager) enable(ctx context.Context, existing []host.Trigger) {
	for _, t := range existing {
		if t.Handler == Handler && t.Event == Event {
			m.logger.Debug("submission trigger already registered", "id", t.ID)
			return
		}
	}
	t, err := m.registry.CreateTrigger(ctx, Handler, Event)
	if err != nil {
		m.alerter.Alert("Installable trigger error", "[enableFormResponseTrigger] "+err.Error())
		return
	}
	m.logger.Info("registered submission trigger", "id", t.ID)
}

func (m *Manager) disableFirst(ctx context.Context, existing []host.Trigger) {
	if len(existing) == 0 {
		return
	}
	if err := m.registry.DeleteTrigger(ctx, existing[0].ID); err != nil {
		m.alerter.Alert("Installable trigger error", "[deleteTrigger] "+err.Error())
		return
	}
	m.logger.Info("removed trigger", "id", existing[0].ID)
}

// Active reports whether a submission trigger is registered.
func (m *Manager) Active(ctx context.Context) (bool, error) {
	triggers, err := m.registry.Triggers(ctx)
	if err != nil {
		return false, err
	}
	for _, t := range triggers {
		if t.Handler == Handler && t.Event == Event {
			return true, nil
		}
	}
	return false, nil
}
