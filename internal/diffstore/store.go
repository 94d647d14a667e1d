// Package diffstore maintains the append-only repository of candidate patches
// produced during a run. Entries are immutable and linked by explicit parent
// references, forming a DAG of patch revisions that the planner can reference,
// compare, or discard without invalidating other entries.
package diffstore

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ErrDuplicateID indicates an entry with the same ID already exists.
var ErrDuplicateID = errors.New("duplicate diff id")

// ErrUnknownParent indicates a referenced parent entry is absent from the store.
var ErrUnknownParent = errors.New("unknown parent diff id")

// ErrCycle indicates the parent graph contains a cycle.
var ErrCycle = errors.New("cycle in diff parent graph")

// ErrUnknownID indicates a requested entry does not exist.
var ErrUnknownID = errors.New("unknown diff id")

// ErrEmptyPatch indicates the patch content is empty or whitespace.
var ErrEmptyPatch = errors.New("empty patch content")

// Entry is an immutable, identified patch artifact.
type Entry struct {
	// ID is the stable identifier, assigned at creation (diff_<n>).
	ID string
	// Content is the unified git patch text. Opaque to the store beyond
	// structural validation at creation.
	Content string
	// Parents lists the entry IDs this patch was built on top of, in
	// intended precedence order.
	Parents []string
	// Notes is optional free-text rationale from the producing capability.
	Notes string
	// CreatedAt is when the entry was created.
	CreatedAt time.Time
}

// Store is an append-only mapping from ID to Entry. Entries are never mutated
// or removed. The orchestration loop is the single writer, but the store
// still locks and rejects duplicate writes defensively in case a retried
// adapter call replays a result.
type Store struct {
	mu      sync.RWMutex
	entries map[string]Entry
	order   []string
	next    int
}

// New creates an empty Store. IDs are assigned from diff_1 upward.
func New() *Store {
	return &Store{entries: make(map[string]Entry), next: 1}
}

// Create validates and inserts a new entry, returning its assigned ID.
// Parents must already exist; on any error nothing is inserted.
func (s *Store) Create(content string, parents []string, notes string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyPatch
	}
	if err := ValidatePatch(content); err != nil {
		return "", fmt.Errorf("validate patch: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range parents {
		if _, ok := s.entries[p]; !ok {
			return "", fmt.Errorf("%w: %s", ErrUnknownParent, p)
		}
	}

	id := fmt.Sprintf("diff_%d", s.next)
	if _, ok := s.entries[id]; ok {
		return "", fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}

	s.entries[id] = Entry{
		ID:        id,
		Content:   content,
		Parents:   append([]string(nil), parents...),
		Notes:     notes,
		CreatedAt: time.Now(),
	}
	s.order = append(s.order, id)
	s.next++
	return id, nil
}

// Get returns the entry for the given ID.
func (s *Store) Get(id string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return Entry{}, false
	}
	e.Parents = append([]string(nil), e.Parents...)
	return e, true
}

// Len returns the number of entries in the store.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// IDs returns all entry IDs in creation order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Newest returns the most recently created entry ID, or "" if empty.
func (s *Store) Newest() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.order) == 0 {
		return ""
	}
	return s.order[len(s.order)-1]
}

// Resolve flattens the given entries and their parent chains into one
// combined patch text. Parents are applied before children, in the order
// they were declared; when edits overlap, the later patch in the sequence
// takes precedence, so callers must pass IDs in intended precedence order.
// Resolution is deterministic for an unchanged store.
func (s *Store) Resolve(ids []string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sequence []string
	visited := make(map[string]bool)
	inStack := make(map[string]bool)

	var visit func(id string) error
	visit = func(id string) error {
		if inStack[id] {
			return fmt.Errorf("%w: at %s", ErrCycle, id)
		}
		if visited[id] {
			return nil
		}
		e, ok := s.entries[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownID, id)
		}
		inStack[id] = true
		for _, p := range e.Parents {
			if err := visit(p); err != nil {
				return err
			}
		}
		inStack[id] = false
		visited[id] = true
		sequence = append(sequence, id)
		return nil
	}

	for _, id := range ids {
		if err := visit(id); err != nil {
			return "", err
		}
	}

	parts := make([]string, 0, len(sequence))
	for _, id := range sequence {
		parts = append(parts, strings.TrimRight(s.entries[id].Content, "\n"))
	}
	if len(parts) == 0 {
		return "", nil
	}
	return strings.Join(parts, "\n") + "\n", nil
}
