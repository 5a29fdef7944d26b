package storage

import (
	"fmt"
	"time"
)

func (s *Store) CreateTrigger(t Trigger) error {
	created := t.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.Exec(`INSERT INTO triggers (id, handler, event, created_at) VALUES (?, ?, ?, ?)`,
		t.ID, t.Handler, t.Event, created.UTC().Format(createdLayout))
	return err
}

// ListTriggers returns registered triggers in registration order.
func (s *Store) ListTriggers() ([]Trigger, error) {
	rows, err := s.db.Query(`SELECT id, handler, event, created_at FROM triggers ORDER BY created_at ASC, rowid ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Trigger
	for rows.Next() {
		var t Trigger
		var createdAt string
		if err := rows.Scan(&t.ID, &t.Handler, &t.Event, &createdAt); err != nil {
			return nil, err
		}
		if t.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) DeleteTrigger(id string) error {
	res, err := s.db.Exec(`DELETE FROM triggers WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}
