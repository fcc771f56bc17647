// Package settings holds the section-keyed configuration tree edited through
// the form surface. Each named section carries an immutable committed
// snapshot (the last value the server acknowledged) and a mutable draft (the
// value being edited). Dirty flags are derived by structural comparison on
// every query, never cached, so they can never go stale.
package settings

import (
	"sort"
	"strings"
	"sync"

	"github.com/aviarylabs/rangesync/pkg/differ"
)

// Store owns the committed and draft values of every configuration section.
// Draft and committed values are structurally independent: every value
// crossing the store boundary is deep-copied, so mutating a returned value
// never affects stored state.
type Store struct {
	mu       sync.RWMutex
	sections map[string]*section
}

type section struct {
	committed any
	draft     any
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{sections: make(map[string]*section)}
}

// Load seeds both committed and draft from a server response, replacing any
// existing sections.
func (s *Store) Load(initial map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sections = make(map[string]*section, len(initial))
	for name, value := range initial {
		s.sections[name] = &section{
			committed: differ.Normalize(value),
			draft:     differ.Normalize(value),
		}
	}
}

// Patch merges partial shallowly into the draft of the named section,
// creating the section if it does not exist yet. The committed value is
// never touched. The change is visible to every dirty-flag query as soon as
// Patch returns.
func (s *Store) Patch(name string, partial map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sec, ok := s.sections[name]
	if !ok {
		sec = &section{}
		s.sections[name] = sec
	}

	draft, ok := sec.draft.(map[string]any)
	if !ok {
		draft = make(map[string]any)
	}
	for key, value := range partial {
		draft[key] = differ.Normalize(value)
	}
	sec.draft = draft
}

// Replace swaps the entire draft value of the named section, creating the
// section if needed.
func (s *Store) Replace(name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sec, ok := s.sections[name]
	if !ok {
		sec = &section{}
		s.sections[name] = sec
	}
	sec.draft = differ.Normalize(value)
}

// Commit promotes the draft of the named section to committed. Used after a
// successful save.
func (s *Store) Commit(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitLocked(name)
}

// CommitSections promotes the drafts of all named sections under a single
// lock acquisition, so no dirty-flag query can observe a state where some of
// them are committed and others are not.
func (s *Store) CommitSections(names []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range names {
		s.commitLocked(name)
	}
}

// CommitValues replaces the committed values of the named sections with the
// given payload under a single lock acquisition. Used after a successful save
// with the exact tree that was sent: a section whose draft was edited while
// the save was in flight stays dirty, because only the payload that reached
// the persister is promoted.
func (s *Store) CommitValues(values map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, value := range values {
		sec, ok := s.sections[name]
		if !ok {
			sec = &section{draft: differ.Copy(value)}
			s.sections[name] = sec
		}
		sec.committed = differ.Copy(value)
	}
}

func (s *Store) commitLocked(name string) {
	sec, ok := s.sections[name]
	if !ok {
		return
	}
	sec.committed = differ.Copy(sec.draft)
}

// Draft returns a copy of the draft value of the named section.
func (s *Store) Draft(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sec, ok := s.sections[name]
	if !ok {
		return nil, false
	}
	return differ.Copy(sec.draft), true
}

// Committed returns a copy of the committed value of the named section.
func (s *Store) Committed(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sec, ok := s.sections[name]
	if !ok {
		return nil, false
	}
	return differ.Copy(sec.committed), true
}

// DraftTree returns a copy of the full draft tree keyed by section name.
func (s *Store) DraftTree() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tree := make(map[string]any, len(s.sections))
	for name, sec := range s.sections {
		tree[name] = differ.Copy(sec.draft)
	}
	return tree
}

// Sections returns all section names, sorted.
func (s *Store) Sections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.sections))
	for name := range s.sections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsDirty reports whether the draft of the named section differs
// structurally from its committed value. Unknown sections are clean.
func (s *Store) IsDirty(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sec, ok := s.sections[name]
	if !ok {
		return false
	}
	return !differ.Equal(sec.committed, sec.draft)
}

// IsDirtyPath reports whether the value at a dotted path inside the named
// section differs between draft and committed.
func (s *Store) IsDirtyPath(name, path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sec, ok := s.sections[name]
	if !ok {
		return false
	}
	return !differ.Equal(valueAtPath(sec.committed, path), valueAtPath(sec.draft, path))
}

// DirtySections returns the names of all dirty sections, sorted.
func (s *Store) DirtySections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var names []string
	for name, sec := range s.sections {
		if !differ.Equal(sec.committed, sec.draft) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// valueAtPath walks a dotted key path through nested maps. A missing key
// yields nil, which compares equal only to another missing or nil value.
func valueAtPath(v any, path string) any {
	if path == "" {
		return v
	}
	current := v
	for _, key := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[key]
	}
	return current
}
