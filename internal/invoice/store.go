package invoice

import "sync"

// Store keeps extraction results for the lifetime of the process.
// Identifiers are unique: Put on an existing identifier replaces the document
// and keeps its original position. Iteration follows insertion order.
type Store struct {
	mu    sync.RWMutex
	order []string
	docs  map[string]Document
}

// NewStore creates an empty Store
func NewStore() *Store {
	return &Store{
		docs: make(map[string]Document),
	}
}

// Put stores a document under id, replacing any previous one
func (s *Store) Put(id string, doc Document) {
	doc = doc.clone()
	doc.normalize()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[id]; !ok {
		s.order = append(s.order, id)
	}
	s.docs[id] = doc
}

// Get returns the document stored under id
func (s *Store) Get(id string) (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		return Document{}, false
	}
	return doc.clone(), true
}

// All returns every entry in insertion order
func (s *Store) All() []StoreEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]StoreEntry, 0, len(s.order))
	for _, id := range s.order {
		entries = append(entries, StoreEntry{ID: id, Document: s.docs[id].clone()})
	}
	return entries
}

// Len returns the number of stored documents
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Clear drops every stored document
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.order = nil
	s.docs = make(map[string]Document)
}
