package incident

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kalambet/increp/internal/host"
)

func TestNewZipsToShorter(t *testing.T) {
	r := New(3, []string{"2024-01-01", "Jane"}, []string{"Time", "Name", "Description"})
	want := []Field{{"Time", "2024-01-01"}, {"Name", "Jane"}}
	if diff := cmp.Diff(want, r.Fields); diff != "" {
		t.Errorf("Fields mismatch (-want +got):\n%s", diff)
	}

	r = New(3, []string{"a", "b", "c"}, []string{"X"})
	if len(r.Fields) != 1 {
		t.Errorf("len(Fields) = %d, want 1", len(r.Fields))
	}
	if r.Row != 3 {
		t.Errorf("Row = %d, want 3", r.Row)
	}
}

func TestNewDuplicateKeyLastWins(t *testing.T) {
	r := New(2, []string{"first", "x", "second"}, []string{"Email", "Name", "Email"})
	want := []Field{{"Email", "second"}, {"Name", "x"}}
	if diff := cmp.Diff(want, r.Fields); diff != "" {
		t.Errorf("Fields mismatch (-want +got):\n%s", diff)
	}
}

func TestIsSent(t *testing.T) {
	keys := []string{"Time", "Report_Status", "PDF_Link"}
	tests := []struct {
		status string
		want   bool
	}{
		{"sent", true},
		{"", false},
		{"Sent", false},
		{"sent ", false},
		{"pending", false},
	}
	for _, tt := range tests {
		r := New(2, []string{"t", tt.status, ""}, keys)
		if got := r.IsSent("Report Status"); got != tt.want {
			t.Errorf("IsSent with status %q = %v, want %v", tt.status, got, tt.want)
		}
	}

	r := New(2, []string{"t"}, []string{"Time"})
	if r.IsSent("Report Status") {
		t.Error("IsSent true without a status column")
	}
	if r.Status("Report Status") != Unsent {
		t.Errorf("Status = %q, want unsent", r.Status("Report Status"))
	}
}

func TestFilename(t *testing.T) {
	r := New(2, []string{"Jane", "open", "2024-01-01"}, []string{"name", "status", "Timestamp"})
	tests := []struct {
		tmpl, want string
	}{
		{"**name**-**status**.report", "Jane-open.report"},
		{"**missing**", "**missing**"},
		{"Report **name** **missing**", "Report Jane **missing**"},
		{"plain name", "plain name"},
		{"", ""},
		{"Incident Report **Timestamp**", "Incident Report 2024-01-01"},
		{"name", "name"},
		{"**name", "**name"},
		{"**name**status**", "Janestatus**"},
	}
	for _, tt := range tests {
		if got := r.Filename(tt.tmpl); got != tt.want {
			t.Errorf("Filename(%q) = %q, want %q", tt.tmpl, got, tt.want)
		}
	}
}

func TestFilenameKeepsExtensionAsWritten(t *testing.T) {
	r := New(2, []string{"Jane"}, []string{"name"})
	for tmpl, want := range map[string]string{
		"**name**":        "Jane",
		"**name**.PDF":    "Jane.PDF",
		"**name**.report": "Jane.report",
	} {
		if got := r.Filename(tmpl); got != want {
			t.Errorf("Filename(%q) = %q, want %q", tmpl, got, want)
		}
	}
}

func TestPlaceholders(t *testing.T) {
	r := New(2, []string{"Jane", "Fell"}, []string{"Name", "Description"})
	want := []host.Replacement{
		{Find: "<<Name>>", Replace: "Jane"},
		{Find: "<<Description>>", Replace: "Fell"},
	}
	if diff := cmp.Diff(want, r.Placeholders()); diff != "" {
		t.Errorf("Placeholders mismatch (-want +got):\n%s", diff)
	}
}
