package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Host kinds.
const (
	HostLocal  = "local"
	HostGoogle = "google"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Log     LogConfig
	Host    HostConfig
	Google  GoogleConfig
	Sheet   SheetConfig
	Reports ReportsConfig
	Poll    PollConfig
	PDF     PDFConfig
	SMTP    SMTPConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type StorageConfig struct {
	DataDir       string
	PublicBaseURL string
}

type LogConfig struct {
	Level string
}

type HostConfig struct {
	Kind string
}

type GoogleConfig struct {
	CredentialsFile string
	SpreadsheetID   string
}

type SheetConfig struct {
	Name        string
	StatusLabel string
	LinkLabel   string
}

type ReportsConfig struct {
	RootFolderID string
}

type PollConfig struct {
	Interval string
}

type PDFConfig struct {
	BrowserBin string
	ControlURL string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func defaults() Config {
	return Config{
		Server:  ServerConfig{Port: 4100},
		Storage: StorageConfig{DataDir: defaultDataDir()},
		Log:     LogConfig{Level: "info"},
		Host:    HostConfig{Kind: HostLocal},
		Sheet: SheetConfig{
			Name:        "Form Responses 1",
			StatusLabel: "Report Status",
			LinkLabel:   "PDF Link",
		},
		Poll: PollConfig{Interval: "30s"},
		SMTP: SMTPConfig{Port: 587},
	}
}

// Load reads configuration from the YAML file at
// $XDG_CONFIG_HOME/increp/config.yaml, then applies INCREP_* environment
// overrides. Secrets are read from the environment only.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Host.Kind {
	case HostLocal:
	case HostGoogle:
		if c.Google.SpreadsheetID == "" {
			return fmt.Errorf("missing required config: google.spreadsheet_id (or INCREP_GOOGLE_SPREADSHEET_ID) when host.kind is google")
		}
		if c.Reports.RootFolderID == "" {
			return fmt.Errorf("missing required config: reports.root_folder_id when host.kind is google")
		}
	default:
		return fmt.Errorf("invalid host.kind %q (want %s or %s)", c.Host.Kind, HostLocal, HostGoogle)
	}
	if c.StatusLabelOrDefault() == c.LinkLabelOrDefault() {
		return fmt.Errorf("sheet.status_label and sheet.link_label must differ")
	}
	if _, err := c.PollInterval(); err != nil {
		return err
	}
	return nil
}

// PollInterval parses poll.interval. Zero disables polling.
func (c Config) PollInterval() (time.Duration, error) {
	if c.Poll.Interval == "" || c.Poll.Interval == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Poll.Interval)
	if err != nil {
		return 0, fmt.Errorf("invalid poll.interval %q: %w", c.Poll.Interval, err)
	}
	return d, nil
}

func (c Config) StatusLabelOrDefault() string {
	if c.Sheet.StatusLabel == "" {
		return "Report Status"
	}
	return c.Sheet.StatusLabel
}

func (c Config) LinkLabelOrDefault() string {
	if c.Sheet.LinkLabel == "" {
		return "PDF Link"
	}
	return c.Sheet.LinkLabel
}

func defaultDataDir() string {
	if runtime.GOOS == "darwin" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, "Library", "Application Support", "increp")
		}
		return "increp-data"
	}
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "increp-data"
		}
	}
	return filepath.Join(dir, "increp")
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "increp", "config.yaml")
}

// FilePath returns the config file location.
func FilePath() string {
	return configFilePath()
}
