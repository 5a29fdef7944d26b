package local

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/kalambet/increp/internal/host"
	"github.com/kalambet/increp/internal/storage"
)

// Triggers is the trigger registry kept in the store. It is shared by both
// hosts since this process is what runs the handlers.
type Triggers struct {
	store *storage.Store
}

func NewTriggers(store *storage.Store) *Triggers {
	return &Triggers{store: store}
}

func (t *Triggers) Triggers(context.Context) ([]host.Trigger, error) {
	stored, err := t.store.ListTriggers()
	if err != nil {
		return nil, fmt.Errorf("listing triggers: %w", err)
	}
	out := make([]host.Trigger, len(stored))
	for i, s := range stored {
		out[i] = host.Trigger{ID: s.ID, Handler: s.Handler, Event: s.Event}
	}
	return out, nil
}

func (t *Triggers) CreateTrigger(_ context.Context, handler, event string) (host.Trigger, error) {
	s := storage.Trigger{ID: uuid.New().String(), Handler: handler, Event: event}
	if err := t.store.CreateTrigger(s); err != nil {
		return host.Trigger{}, fmt.Errorf("creating trigger: %w", err)
	}
	return host.Trigger{ID: s.ID, Handler: s.Handler, Event: s.Event}, nil
}

func (t *Triggers) DeleteTrigger(_ context.Context, id string) error {
	if err := t.store.DeleteTrigger(id); err != nil {
		return fmt.Errorf("deleting trigger %s: %w", id, notFound(err))
	}
	return nil
}

// Handlers returns the handlers registered for event, in registration order.
func (t *Triggers) Handlers(ctx context.Context, event string) ([]string, error) {
	all, err := t.Triggers(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, tr := range all {
		if tr.Event == event {
			out = append(out, tr.Handler)
		}
	}
	return out, nil
}
