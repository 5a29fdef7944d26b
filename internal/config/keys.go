package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "INCREP_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "INCREP_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "storage.data_dir", typ: kString, env: "INCREP_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.public_base_url", typ: kString, env: "INCREP_STORAGE_PUBLIC_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Storage.PublicBaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.PublicBaseURL },
	},
	{
		key: "log.level", typ: kString, env: "INCREP_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "host.kind", typ: kString, env: "INCREP_HOST_KIND",
		apply:   func(cfg *Config, v any) { cfg.Host.Kind = v.(string) },
		extract: func(cfg Config) any { return cfg.Host.Kind },
	},
	{
		key: "google.credentials_file", typ: kString, env: "INCREP_GOOGLE_CREDENTIALS_FILE",
		apply:   func(cfg *Config, v any) { cfg.Google.CredentialsFile = v.(string) },
		extract: func(cfg Config) any { return cfg.Google.CredentialsFile },
	},
	{
		key: "google.spreadsheet_id", typ: kString, env: "INCREP_GOOGLE_SPREADSHEET_ID",
		apply:   func(cfg *Config, v any) { cfg.Google.SpreadsheetID = v.(string) },
		extract: func(cfg Config) any { return cfg.Google.SpreadsheetID },
	},
	{
		key: "sheet.name", typ: kString, env: "INCREP_SHEET_NAME",
		apply:   func(cfg *Config, v any) { cfg.Sheet.Name = v.(string) },
		extract: func(cfg Config) any { return cfg.Sheet.Name },
	},
	{
		key: "sheet.status_label", typ: kString, env: "INCREP_SHEET_STATUS_LABEL",
		apply:   func(cfg *Config, v any) { cfg.Sheet.StatusLabel = v.(string) },
		extract: func(cfg Config) any { return cfg.Sheet.StatusLabel },
	},
	{
		key: "sheet.link_label", typ: kString, env: "INCREP_SHEET_LINK_LABEL",
		apply:   func(cfg *Config, v any) { cfg.Sheet.LinkLabel = v.(string) },
		extract: func(cfg Config) any { return cfg.Sheet.LinkLabel },
	},
	{
		key: "reports.root_folder_id", typ: kString, env: "INCREP_REPORTS_ROOT_FOLDER_ID",
		apply:   func(cfg *Config, v any) { cfg.Reports.RootFolderID = v.(string) },
		extract: func(cfg Config) any { return cfg.Reports.RootFolderID },
	},
	{
		key: "poll.interval", typ: kString, env: "INCREP_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Poll.Interval = v.(string) },
		extract: func(cfg Config) any { return cfg.Poll.Interval },
	},
	{
		key: "pdf.browser_bin", typ: kString, env: "INCREP_PDF_BROWSER_BIN",
		apply:   func(cfg *Config, v any) { cfg.PDF.BrowserBin = v.(string) },
		extract: func(cfg Config) any { return cfg.PDF.BrowserBin },
	},
	{
		key: "pdf.control_url", typ: kString, env: "INCREP_PDF_CONTROL_URL",
		apply:   func(cfg *Config, v any) { cfg.PDF.ControlURL = v.(string) },
		extract: func(cfg Config) any { return cfg.PDF.ControlURL },
	},
	{
		key: "smtp.host", typ: kString, env: "INCREP_SMTP_HOST",
		apply:   func(cfg *Config, v any) { cfg.SMTP.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.SMTP.Host },
	},
	{
		key: "smtp.port", typ: kInt, env: "INCREP_SMTP_PORT",
		apply:   func(cfg *Config, v any) { cfg.SMTP.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.SMTP.Port },
	},
	{
		key: "smtp.username", typ: kString, env: "INCREP_SMTP_USERNAME",
		apply:   func(cfg *Config, v any) { cfg.SMTP.Username = v.(string) },
		extract: func(cfg Config) any { return cfg.SMTP.Username },
	},
	{
		key: "smtp.password", typ: kString, env: "INCREP_SMTP_PASSWORD",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.SMTP.Password = v.(string) },
		extract: func(cfg Config) any { return cfg.SMTP.Password },
	},
	{
		key: "smtp.from", typ: kString, env: "INCREP_SMTP_FROM",
		apply:   func(cfg *Config, v any) { cfg.SMTP.From = v.(string) },
		extract: func(cfg Config) any { return cfg.SMTP.From },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
