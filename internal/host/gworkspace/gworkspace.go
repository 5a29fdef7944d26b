// Package gworkspace implements the host capabilities against Google
// Sheets, Drive and Docs.
package gworkspace

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/docs/v1"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/kalambet/increp/internal/host"
)

// MimeDocument is the native Google Docs type, the only template type
// accepted.
const MimeDocument = "application/vnd.google-apps.document"

const mimeFolder = "application/vnd.google-apps.folder"

// Scopes requested for the service account.
var Scopes = []string{
	sheets.SpreadsheetsScope,
	drive.DriveScope,
	docs.DocumentsScope,
}

// Config selects the spreadsheet and credentials.
type Config struct {
	CredentialsFile string
	SpreadsheetID   string
	SheetName       string
}

// Host bundles the three adapters.
type Host struct {
	Sheet *Sheet
	Drive *Drive
	Docs  *Docs
}

// ClientOptions reads a service account or user credentials JSON file.
func ClientOptions(ctx context.Context, credentialsFile string) ([]option.ClientOption, error) {
	if credentialsFile == "" {
		creds, err := google.FindDefaultCredentials(ctx, Scopes...)
		if err != nil {
			return nil, fmt.Errorf("finding default google credentials: %w", err)
		}
		return []option.ClientOption{option.WithTokenSource(creds.TokenSource)}, nil
	}
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("reading google credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parsing google credentials: %w", err)
	}
	return []option.ClientOption{option.WithTokenSource(creds.TokenSource)}, nil
}

// New connects to the three services. Extra opts override the credentials,
// which tests use to point at a fake endpoint.
func New(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Host, error) {
	if cfg.SpreadsheetID == "" {
		return nil, errors.New("google.spreadsheet_id is not set")
	}
	if len(opts) == 0 {
		var err error
		if opts, err = ClientOptions(ctx, cfg.CredentialsFile); err != nil {
			return nil, err
		}
	}

	sheetsSvc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating sheets client: %w", err)
	}
	driveSvc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating drive client: %w", err)
	}
	docsSvc, err := docs.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating docs client: %w", err)
	}

	d := NewDrive(driveSvc)
	return &Host{
		Sheet: NewSheet(sheetsSvc, cfg.SpreadsheetID, cfg.SheetName),
		Drive: d,
		Docs:  NewDocs(docsSvc, d),
	}, nil
}

// apiErr maps a 404 to host.ErrNotFound.
func apiErr(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return fmt.Errorf("%s: %w", op, host.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}
