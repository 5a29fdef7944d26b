// Package email validates and stores the report recipient list.
package email

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

var addressRE = regexp.MustCompile(`^(([^<>()\[\]\\.,;:\s@"]+(\.[^<>()\[\]\\.,;:\s@"]+)*)|(".+"))@((\[[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\])|(([a-zA-Z\-0-9]+\.)+[a-zA-Z]{2,}))$`)

var separatorRE = regexp.MustCompile(`\s*,\s*`)

// Valid reports whether s is an acceptable address.
func Valid(s string) bool {
	return addressRE.MatchString(s)
}

// Split breaks a comma separated input into entries. Whitespace around
// commas and at both ends is dropped; blank input yields nothing.
func Split(input string) []string {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil
	}
	return separatorRE.Split(input, -1)
}

// ProblemKind classifies a rejected entry.
type ProblemKind string

const (
	Invalid   ProblemKind = "invalid"
	Duplicate ProblemKind = "duplicate"
)

// Problem is one rejected entry.
type Problem struct {
	Kind    ProblemKind
	Address string
}

// Title is the alert heading.
func (p Problem) Title() string {
	if p.Kind == Duplicate {
		return "Duplicate email"
	}
	return "Invalid email"
}

func (p Problem) Error() string {
	if p.Kind == Duplicate {
		return p.Address + " already exists"
	}
	return p.Address + " is not a valid email address"
}

// Sanitize removes repeats within input, then invalid addresses, then
// addresses already in stored. Survivors keep their input order.
func Sanitize(input, stored []string) ([]string, []Problem) {
	var unique []string
	seen := make(map[string]bool, len(input))
	for _, addr := range input {
		if seen[addr] {
			continue
		}
		seen[addr] = true
		unique = append(unique, addr)
	}

	var problems []Problem
	out := []string{}
	for _, addr := range unique {
		if !Valid(addr) {
			problems = append(problems, Problem{Kind: Invalid, Address: addr})
			continue
		}
		if slices.Contains(stored, addr) {
			problems = append(problems, Problem{Kind: Duplicate, Address: addr})
			continue
		}
		out = append(out, addr)
	}
	return out, problems
}

// Store persists the recipient list.
type Store interface {
	SetEmailAddresses(addrs []string) error
}

// List is the stored recipient list.
type List struct {
	store Store
	addrs []string
}

// NewList wraps the currently stored addresses.
func NewList(store Store, current []string) *List {
	return &List{store: store, addrs: slices.Clone(current)}
}

// Addresses returns a copy of the list.
func (l *List) Addresses() []string {
	return slices.Clone(l.addrs)
}

// Add sanitises a comma separated input and appends what survives. Valid
// entries are stored even when others are rejected.
func (l *List) Add(input string) ([]Problem, error) {
	added, problems := Sanitize(Split(input), l.addrs)
	if len(added) == 0 {
		return problems, nil
	}
	next := append(slices.Clone(l.addrs), added...)
	if err := l.store.SetEmailAddresses(next); err != nil {
		return problems, fmt.Errorf("storing email addresses: %w", err)
	}
	l.addrs = next
	return problems, nil
}

// Remove drops the first occurrence of addr. Removing an absent address is
// a no-op.
func (l *List) Remove(addr string) error {
	i := slices.Index(l.addrs, addr)
	if i < 0 {
		return nil
	}
	next := slices.Delete(slices.Clone(l.addrs), i, i+1)
	if err := l.store.SetEmailAddresses(next); err != nil {
		return fmt.Errorf("storing email addresses: %w", err)
	}
	l.addrs = next
	return nil
}
