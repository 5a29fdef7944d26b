package email

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type memStore struct {
	saved [][]string
	err   error
}

func (m *memStore) SetEmailAddresses(addrs []string) error {
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, addrs)
	return nil
}

func TestValid(t *testing.T) {
	valid := []string{
		"a@x.com",
		"first.last@sub.example.org",
		"user+tag@example.co",
		`"quoted name"@example.com`,
		"root@[192.168.0.1]",
	}
	invalid := []string{
		"",
		"bad-email",
		"a@b",
		"a@x.c",
		"a b@x.com",
		"a..b@x.com",
		".a@x.com",
		"a@x.com ",
		"<a@x.com>",
	}
	for _, s := range valid {
		if !Valid(s) {
			t.Errorf("Valid(%q) = false, want true", s)
		}
	}
	for _, s := range invalid {
		if Valid(s) {
			t.Errorf("Valid(%q) = true, want false", s)
		}
	}
}

func TestSplit(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"   ", nil},
		{"a@x.com", []string{"a@x.com"}},
		{"a@x.com , b@x.com,c@x.com", []string{"a@x.com", "b@x.com", "c@x.com"}},
		{" a@x.com,,b@x.com ", []string{"a@x.com", "", "b@x.com"}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, Split(tt.in)); diff != "" {
			t.Errorf("Split(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestSanitize(t *testing.T) {
	got, problems := Sanitize([]string{"a@x.com", "a@x.com", "bad-email", "b@x.com"}, nil)
	if diff := cmp.Diff([]string{"a@x.com", "b@x.com"}, got); diff != "" {
		t.Errorf("Sanitize mismatch (-want +got):\n%s", diff)
	}
	wantProblems := []Problem{{Kind: Invalid, Address: "bad-email"}}
	if diff := cmp.Diff(wantProblems, problems); diff != "" {
		t.Errorf("problems mismatch (-want +got):\n%s", diff)
	}
}

func TestSanitizeAgainstStored(t *testing.T) {
	got, problems := Sanitize([]string{"b@x.com", "a@x.com"}, []string{"a@x.com"})
	if diff := cmp.Diff([]string{"b@x.com"}, got); diff != "" {
		t.Errorf("Sanitize mismatch (-want +got):\n%s", diff)
	}
	if len(problems) != 1 || problems[0].Kind != Duplicate {
		t.Fatalf("problems = %+v, want one duplicate", problems)
	}
	if problems[0].Title() != "Duplicate email" || problems[0].Error() != "a@x.com already exists" {
		t.Errorf("problem text = %q / %q", problems[0].Title(), problems[0].Error())
	}
}

func TestListAddPartiallyApplies(t *testing.T) {
	st := &memStore{}
	l := NewList(st, []string{"a@x.com"})

	problems, err := l.Add("b@x.com, nope, a@x.com")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(problems) != 2 {
		t.Errorf("problems = %+v, want 2", problems)
	}
	if diff := cmp.Diff([]string{"a@x.com", "b@x.com"}, l.Addresses()); diff != "" {
		t.Errorf("Addresses mismatch (-want +got):\n%s", diff)
	}
	if len(st.saved) != 1 {
		t.Errorf("saves = %d, want 1", len(st.saved))
	}
}

func TestListAddNothingValidSkipsWrite(t *testing.T) {
	st := &memStore{}
	l := NewList(st, nil)
	if _, err := l.Add("nope"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(st.saved) != 0 {
		t.Errorf("saves = %d, want 0", len(st.saved))
	}
}

func TestListRemove(t *testing.T) {
	st := &memStore{}
	l := NewList(st, []string{"a@x.com", "b@x.com"})

	if err := l.Remove("a@x.com"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if diff := cmp.Diff([]string{"b@x.com"}, l.Addresses()); diff != "" {
		t.Errorf("Addresses mismatch (-want +got):\n%s", diff)
	}
	if err := l.Remove("zzz@x.com"); err != nil {
		t.Fatalf("Remove absent: %v", err)
	}
	if len(st.saved) != 1 {
		t.Errorf("saves = %d, want 1", len(st.saved))
	}
}

func TestListStoreError(t *testing.T) {
	st := &memStore{err: errors.New("locked")}
	l := NewList(st, nil)
	if _, err := l.Add("a@x.com"); err == nil {
		t.Fatal("expected store error")
	}
	if len(l.Addresses()) != 0 {
		t.Error("list changed after failed write")
	}
}
