// Package settings is the typed view over the persisted key/value settings.
//
// Components receive a Settings value when they are built. A Store reloads
// its cached value only after it writes, so readers never re-fetch keys on
// every operation.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/kalambet/increp/internal/storage"
)

// Persisted keys.
const (
	KeyTemplateFileID = "TEMPLATE_FILE_ID"
	KeyTrigger        = "REPORT_TRIGGER"
	KeyEmailAddresses = "EMAIL_ADDRESSES"
	KeyReportFilename = "REPORT_FILENAME"
	KeyStatusColumn   = "REPORT_STATUS_COLUMN"
	KeyLinkColumn     = "PDF_LINK_COLUMN"
)

// DefaultReportFilename names reports by submission time.
const DefaultReportFilename = "Incident Report **Timestamp**"

// Mode selects how report generation is triggered.
type Mode string

const (
	Automatic Mode = "automatic"
	Manual    Mode = "manual"
)

// ParseMode accepts "automatic" or "manual".
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case Automatic, Manual:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown trigger mode %q (want automatic or manual)", s)
}

// Settings is a snapshot of all persisted settings.
type Settings struct {
	TemplateFileID string
	Trigger        Mode
	EmailAddresses []string
	ReportFilename string
	// Column positions cached after header initialisation. Advisory only:
	// the pipeline re-derives positions by header search.
	StatusColumn int
	LinkColumn   int
}

// KV is the backing key/value store. GetSetting returns storage.ErrNotFound
// for unset keys.
type KV interface {
	GetSetting(key string) (string, error)
	SetSetting(key, value string) error
}

// Store reads and writes Settings through a KV.
type Store struct {
	kv     KV
	logger *slog.Logger

	mu      sync.RWMutex
	current Settings
}

// Open loads the current settings from kv.
func Open(kv KV) (*Store, error) {
	s := &Store{kv: kv, logger: slog.Default()}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Current returns the last loaded snapshot.
func (s *Store) Current() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.current
	out.EmailAddresses = append([]string(nil), s.current.EmailAddresses...)
	return out
}

// Reload re-reads every key from the backing store.
func (s *Store) Reload() error {
	var next Settings
	var err error

	if next.TemplateFileID, err = s.get(KeyTemplateFileID, ""); err != nil {
		return err
	}

	rawMode, err := s.get(KeyTrigger, string(Automatic))
	if err != nil {
		return err
	}
	if next.Trigger, err = ParseMode(rawMode); err != nil {
		s.logger.Warn("stored trigger mode invalid, using automatic", "value", rawMode)
		next.Trigger = Automatic
	}

	rawEmails, err := s.get(KeyEmailAddresses, "[]")
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(rawEmails), &next.EmailAddresses); err != nil {
		return fmt.Errorf("decoding %s: %w", KeyEmailAddresses, err)
	}

	if next.ReportFilename, err = s.get(KeyReportFilename, DefaultReportFilename); err != nil {
		return err
	}

	if next.StatusColumn, err = s.getInt(KeyStatusColumn); err != nil {
		return err
	}
	if next.LinkColumn, err = s.getInt(KeyLinkColumn); err != nil {
		return err
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
	return nil
}

func (s *Store) SetTemplateFileID(id string) error {
	return s.write(KeyTemplateFileID, id)
}

func (s *Store) SetTrigger(m Mode) error {
	if _, err := ParseMode(string(m)); err != nil {
		return err
	}
	return s.write(KeyTrigger, string(m))
}

// SetEmailAddresses replaces the stored list. Callers sanitise first.
func (s *Store) SetEmailAddresses(addrs []string) error {
	if addrs == nil {
		addrs = []string{}
	}
	b, err := json.Marshal(addrs)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", KeyEmailAddresses, err)
	}
	return s.write(KeyEmailAddresses, string(b))
}

func (s *Store) SetReportFilename(name string) error {
	return s.write(KeyReportFilename, name)
}

// SetColumns caches the managed column positions.
func (s *Store) SetColumns(status, link int) error {
	if err := s.kv.SetSetting(KeyStatusColumn, strconv.Itoa(status)); err != nil {
		return fmt.Errorf("writing %s: %w", KeyStatusColumn, err)
	}
	return s.write(KeyLinkColumn, strconv.Itoa(link))
}

func (s *Store) write(key, value string) error {
	if err := s.kv.SetSetting(key, value); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return s.Reload()
}

func (s *Store) get(key, def string) (string, error) {
	v, err := s.kv.GetSetting(key)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && v == "") {
		return def, nil
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", key, err)
	}
	return v, nil
}

func (s *Store) getInt(key string) (int, error) {
	v, err := s.get(key, "0")
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		s.logger.Warn("ignoring non-integer cached column", "key", key, "value", v)
		return 0, nil
	}
	return n, nil
}
