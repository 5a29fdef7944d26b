// Package pdf renders HTML documents to PDF and inspects the result.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	lpdf "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ChromeExporter prints HTML to PDF in a headless Chrome. The browser is
// started on first use and reused until Close.
type ChromeExporter struct {
	// Bin is the Chrome binary. Empty lets rod find or download one.
	Bin string
	// ControlURL connects to a running Chrome instead of launching one.
	ControlURL string

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	logger  *slog.Logger
}

// NewChromeExporter creates an exporter.
func NewChromeExporter(bin, controlURL string) *ChromeExporter {
	return &ChromeExporter{Bin: bin, ControlURL: controlURL, logger: slog.Default()}
}

func (e *ChromeExporter) connect() (*rod.Browser, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.browser != nil {
		return e.browser, nil
	}

	wsURL := e.ControlURL
	if wsURL == "" {
		l := launcher.New().Headless(true)
		if e.Bin != "" {
			l = l.Bin(e.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launching chrome: %w", err)
		}
		wsURL = u
		e.lnch = l
		e.logger.Debug("launched chrome for pdf export", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connecting to chrome: %w", err)
	}
	e.browser = b
	return b, nil
}

// HTMLToPDF renders an HTML document and returns the printed PDF.
func (e *ChromeExporter) HTMLToPDF(ctx context.Context, html []byte) ([]byte, error) {
	b, err := e.connect()
	if err != nil {
		return nil, err
	}

	page, err := b.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("opening page: %w", err)
	}
	defer page.Close()

	if err := page.SetDocumentContent(string(html)); err != nil {
		return nil, fmt.Errorf("loading document: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("waiting for document: %w", err)
	}

	r, err := page.PDF(&proto.PagePrintToPDF{PrintBackground: true})
	if err != nil {
		return nil, fmt.Errorf("printing pdf: %w", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading pdf stream: %w", err)
	}
	if err := Validate(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Close shuts down the browser if this exporter launched it.
func (e *ChromeExporter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var err error
	if e.browser != nil {
		err = e.browser.Close()
		e.browser = nil
	}
	if e.lnch != nil {
		e.lnch.Cleanup()
		e.lnch = nil
	}
	return err
}

// Validate checks that b is a well formed PDF.
func Validate(b []byte) error {
	conf := model.NewDefaultConfiguration()
	if err := api.Validate(bytes.NewReader(b), conf); err != nil {
		return fmt.Errorf("invalid pdf: %w", err)
	}
	return nil
}

// PageCount returns the number of pages in b.
func PageCount(b []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(b), model.NewDefaultConfiguration())
	if err != nil {
		return 0, fmt.Errorf("counting pages: %w", err)
	}
	return n, nil
}

// ExtractText returns the plain text of every page.
func ExtractText(b []byte) (string, error) {
	r, err := lpdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	text, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting text: %w", err)
	}
	var sb strings.Builder
	if _, err := io.Copy(&sb, text); err != nil {
		return "", fmt.Errorf("reading text: %w", err)
	}
	return sb.String(), nil
}
