package local

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/net/html"

	"github.com/kalambet/increp/internal/host"
	"github.com/kalambet/increp/internal/storage"
)

var placeholderRE = regexp.MustCompile(`<<(\w+)>>`)

// Exporter prints an HTML document to PDF.
type Exporter interface {
	HTMLToPDF(ctx context.Context, html []byte) ([]byte, error)
}

// Documents edits stored HTML documents and exports them through an Exporter.
type Documents struct {
	store    *storage.Store
	drive    *Drive
	exporter Exporter
}

func NewDocuments(store *storage.Store, drive *Drive, exporter Exporter) *Documents {
	return &Documents{store: store, drive: drive, exporter: exporter}
}

func (d *Documents) parse(docID string) (*html.Node, error) {
	f, err := d.store.GetFileContent(docID)
	if err != nil {
		return nil, fmt.Errorf("reading document %s: %w", docID, notFound(err))
	}
	if f.MimeType != MimeDocument {
		return nil, fmt.Errorf("file %s is %s, not a document", docID, f.MimeType)
	}
	root, err := html.Parse(bytes.NewReader(f.Content))
	if err != nil {
		return nil, fmt.Errorf("parsing document %s: %w", docID, err)
	}
	return root, nil
}

func walkText(n *html.Node, fn func(*html.Node)) {
	if n.Type == html.TextNode {
		fn(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(c, fn)
	}
}

// ReplaceText applies every replacement, in order, to each text node of
// the document body. Markup is never matched.
func (d *Documents) ReplaceText(_ context.Context, docID string, repl []host.Replacement) error {
	root, err := d.parse(docID)
	if err != nil {
		return err
	}
	walkText(root, func(n *html.Node) {
		for _, r := range repl {
			n.Data = strings.ReplaceAll(n.Data, r.Find, r.Replace)
		}
	})

	var buf bytes.Buffer
	if err := html.Render(&buf, root); err != nil {
		return fmt.Errorf("rendering document %s: %w", docID, err)
	}
	if err := d.store.UpdateFileContent(docID, buf.Bytes()); err != nil {
		return fmt.Errorf("saving document %s: %w", docID, err)
	}
	return nil
}

// Placeholders lists the distinct <<key>> keys in a document, in order of
// first appearance.
func (d *Documents) Placeholders(_ context.Context, docID string) ([]string, error) {
	root, err := d.parse(docID)
	if err != nil {
		return nil, err
	}
	var keys []string
	seen := make(map[string]bool)
	walkText(root, func(n *html.Node) {
		for _, m := range placeholderRE.FindAllStringSubmatch(n.Data, -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				keys = append(keys, m[1])
			}
		}
	})
	return keys, nil
}

// ExportPDF prints a document and stores the PDF as name in folderID.
func (d *Documents) ExportPDF(ctx context.Context, docID, name, folderID string) (host.File, error) {
	src, err := d.store.GetFileContent(docID)
	if err != nil {
		return host.File{}, fmt.Errorf("reading document %s: %w", docID, notFound(err))
	}
	out, err := d.exporter.HTMLToPDF(ctx, src.Content)
	if err != nil {
		return host.File{}, err
	}
	f := storage.File{
		ID:       uuid.New().String(),
		FolderID: folderID,
		Name:     name,
		MimeType: host.MimePDF,
		Content:  out,
	}
	if err := d.store.SaveFile(f); err != nil {
		return host.File{}, fmt.Errorf("saving %q: %w", name, err)
	}
	return d.drive.toHost(f), nil
}
