// Package incident holds the in-memory view of one form submission row.
package incident

import (
	"strings"

	"github.com/kalambet/increp/internal/host"
	"github.com/kalambet/increp/internal/sheet"
)

// SentValue marks a row whose report has been produced.
const SentValue = "sent"

// Status is derived from the report status cell.
type Status string

const (
	Unsent Status = "unsent"
	Sent   Status = "sent"
)

const tokenMarker = "**"

// Field is one header key and the row's value under it.
type Field struct {
	Key   string
	Value string
}

// Record is one data row. Row is the 1-based sheet row and identifies the
// record for write-back.
type Record struct {
	Row    int
	Fields []Field
	PDFURL string

	index map[string]int
}

// New zips values to keys, stopping at the shorter of the two. A key that
// appears twice keeps its first position and takes the later value.
func New(row int, values, keys []string) *Record {
	n := min(len(values), len(keys))
	r := &Record{Row: row, Fields: make([]Field, 0, n), index: make(map[string]int, n)}
	for i := 0; i < n; i++ {
		if pos, ok := r.index[keys[i]]; ok {
			r.Fields[pos].Value = values[i]
			continue
		}
		r.index[keys[i]] = len(r.Fields)
		r.Fields = append(r.Fields, Field{Key: keys[i], Value: values[i]})
	}
	return r
}

// Get returns the value under key.
func (r *Record) Get(key string) (string, bool) {
	pos, ok := r.index[key]
	if !ok {
		return "", false
	}
	return r.Fields[pos].Value, true
}

// IsSent reports whether the status column, identified by its header
// label, holds exactly "sent".
func (r *Record) IsSent(statusLabel string) bool {
	v, _ := r.Get(sheet.NormalizeKey(statusLabel))
	return v == SentValue
}

// Status derives the record status from the status column.
func (r *Record) Status(statusLabel string) Status {
	if r.IsSent(statusLabel) {
		return Sent
	}
	return Unsent
}

// Filename expands **key** tokens in tmpl with field values. Tokens naming
// no field are left as written, markers included.
func (r *Record) Filename(tmpl string) string {
	parts := strings.Split(tmpl, tokenMarker)
	var b strings.Builder
	for i, part := range parts {
		if i%2 == 0 {
			b.WriteString(part)
			continue
		}
		closed := i < len(parts)-1
		if v, ok := r.Get(part); ok && closed {
			b.WriteString(v)
			continue
		}
		b.WriteString(tokenMarker)
		b.WriteString(part)
		if closed {
			b.WriteString(tokenMarker)
		}
	}
	return b.String()
}

// Placeholders returns one <<key>> replacement per field.
func (r *Record) Placeholders() []host.Replacement {
	out := make([]host.Replacement, len(r.Fields))
	for i, f := range r.Fields {
		out[i] = host.Replacement{Find: "<<" + f.Key + ">>", Replace: f.Value}
	}
	return out
}
