package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kalambet/increp/internal/config"
	"github.com/kalambet/increp/internal/folder"
	"github.com/kalambet/increp/internal/host"
	"github.com/kalambet/increp/internal/host/gworkspace"
	"github.com/kalambet/increp/internal/host/local"
	"github.com/kalambet/increp/internal/notify"
	"github.com/kalambet/increp/internal/pdf"
	"github.com/kalambet/increp/internal/report"
	"github.com/kalambet/increp/internal/settings"
	"github.com/kalambet/increp/internal/sheet"
	"github.com/kalambet/increp/internal/sidebar"
	"github.com/kalambet/increp/internal/storage"
	"github.com/kalambet/increp/internal/trigger"
	"github.com/kalambet/increp/internal/worker"
)

// errLocalOnly is returned by commands that need the built-in file store.
var errLocalOnly = errors.New("only available with host.kind = local")

// pdfExporter renders local HTML documents to PDF.
type pdfExporter interface {
	local.Exporter
	Close() error
}

var newExporter = func(cfg config.PDFConfig) pdfExporter {
	return pdf.NewChromeExporter(cfg.BrowserBin, cfg.ControlURL)
}

// responseSheet is the sheet as the CLI and API need it.
type responseSheet interface {
	host.Sheet
	AppendRow(ctx context.Context, values []string) (int, error)
}

// app wires the report pipeline for one host.
type app struct {
	cfg          config.Config
	store        *storage.Store
	settings     *settings.Store
	sheet        responseSheet
	files        host.FileStore
	docs         host.DocumentRenderer
	documentMime string
	rootID       string

	headers   *sheet.Manager
	generator *report.Generator
	panel     *sidebar.Panel
	trigger   *trigger.Manager
	queue     *worker.Queue

	// Set only for the local host.
	drive     *local.Drive
	localDocs *local.Documents
	exporter  pdfExporter
}

// loadConfig loads config and applies its log level unless --log-level was given.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if logLevel == "" {
		setupLogging(cfg.Log.Level)
	}
	return cfg, nil
}

// openApp loads config and connects to the configured host.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg)
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	a := &app{cfg: cfg, store: store}
	if a.settings, err = settings.Open(store); err != nil {
		store.Close()
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	switch cfg.Host.Kind {
	case config.HostGoogle:
		err = a.connectGoogle(ctx)
	default:
		err = a.connectLocal(ctx)
	}
	if err != nil {
		a.Close()
		return nil, err
	}

	a.headers = sheet.NewManager(a.sheet, sheet.ManagedColumns{
		StatusLabel: cfg.StatusLabelOrDefault(),
		LinkLabel:   cfg.LinkLabelOrDefault(),
	}, a.settings)

	deps := report.Deps{
		Sheet:    a.sheet,
		Headers:  a.headers,
		Files:    a.files,
		Docs:     a.docs,
		Folders:  folder.NewResolver(a.files, a.rootID),
		Settings: a.settings,
	}
	mailCfg := notify.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	}
	if mailCfg.Enabled() {
		deps.Notifier = notify.NewMailer(mailCfg)
	}
	a.generator = report.NewGenerator(deps)

	a.panel = sidebar.NewPanel(a.settings, a.files, a.documentMime)
	a.trigger = trigger.NewManager(local.NewTriggers(store), a.settings,
		trigger.LogAlerter{Logger: slog.Default()}, a.settings.Current().Trigger)
	a.queue = worker.NewQueue(store)
	return a, nil
}

func (a *app) connectLocal(ctx context.Context) error {
	a.drive = local.NewDrive(a.store, a.cfg.Storage.PublicBaseURL)
	a.exporter = newExporter(a.cfg.PDF)
	a.localDocs = local.NewDocuments(a.store, a.drive, a.exporter)

	a.sheet = local.NewSheet(a.store, a.cfg.Sheet.Name)
	a.files = a.drive
	a.docs = a.localDocs
	a.documentMime = local.MimeDocument

	a.rootID = a.cfg.Reports.RootFolderID
	if a.rootID == "" {
		root, err := a.drive.EnsureRoot(ctx, local.DefaultRootName)
		if err != nil {
			return fmt.Errorf("preparing reports folder: %w", err)
		}
		a.rootID = root.ID
	}
	return nil
}

func (a *app) connectGoogle(ctx context.Context) error {
	h, err := gworkspace.New(ctx, gworkspace.Config{
		CredentialsFile: a.cfg.Google.CredentialsFile,
		SpreadsheetID:   a.cfg.Google.SpreadsheetID,
		SheetName:       a.cfg.Sheet.Name,
	})
	if err != nil {
		return fmt.Errorf("connecting to google workspace: %w", err)
	}
	a.sheet = h.Sheet
	a.files = h.Drive
	a.docs = h.Docs
	a.documentMime = gworkspace.MimeDocument
	a.rootID = a.cfg.Reports.RootFolderID
	return nil
}

// isLocal reports whether the built-in file store is in use.
func (a *app) isLocal() bool {
	return a.drive != nil
}

func (a *app) Close() error {
	if a.exporter != nil {
		if err := a.exporter.Close(); err != nil {
			slog.Warn("closing browser", "error", err)
		}
	}
	return a.store.Close()
}
