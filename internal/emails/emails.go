// Package emails finds email-like tokens in arbitrary text and keeps them in
// a lowercase, first-seen ordered set.
package emails

import (
	"regexp"
	"strings"
)

// Any suffix of two or more letters is accepted as a TLD so discovery does not
// silently drop addresses on newer or uncommon domains.
var pattern = regexp.MustCompile(`(?i)[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}`)

// Extract returns the lowercase, deduplicated emails found in text in order of
// first occurrence. Empty text yields an empty, non-nil slice.
func Extract(text string) []string {
	set := NewSet()
	set.AddText(text)
	return set.Values()
}

// Set is an insertion-ordered set of normalized addresses. It is not safe for
// concurrent use; each crawl task owns its own Set.
type Set struct {
	seen   map[string]struct{}
	values []string
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{seen: make(map[string]struct{})}
}

// Add normalizes and inserts each address, ignoring duplicates.
func (s *Set) Add(addresses ...string) {
	for _, addr := range addresses {
		addr = strings.ToLower(strings.TrimSpace(addr))
		if addr == "" {
			continue
		}
		if _, ok := s.seen[addr]; ok {
			continue
		}
		s.seen[addr] = struct{}{}
		s.values = append(s.values, addr)
	}
}

// AddText scans text and inserts every match.
func (s *Set) AddText(text string) {
	if text == "" {
		return
	}
	s.Add(pattern.FindAllString(text, -1)...)
}

// Len returns the number of distinct addresses.
func (s *Set) Len() int {
	return len(s.values)
}

// Values returns a copy of the addresses in first-seen order.
func (s *Set) Values() []string {
	out := make([]string, len(s.values))
	copy(out, s.values)
	return out
}

// Valid reports whether addr is a single complete match of the discovery pattern.
func Valid(addr string) bool {
	loc := pattern.FindStringIndex(addr)
	return loc != nil && loc[0] == 0 && loc[1] == len(addr)
}
