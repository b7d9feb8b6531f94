package status

import (
	"sort"
	"sync"
)

// Store is the process-wide aggregator mapping file identifiers to their
// latest pipeline record. It is explicitly owned and constructor-injected so
// tests can instantiate independent stores; there is no eviction, records
// live for the lifetime of the process.
//
// Mutations for a single file are serialized through a per-key mutex; the
// lock is held only around record reads and writes, never across stage work
// or delivery waits.
type Store struct {
	mu      sync.Mutex
	entries map[string]*storeEntry
}

type storeEntry struct {
	mu     sync.Mutex
	record *Record
}

// NewStore creates an empty aggregator store.
func NewStore() *Store {
	return &Store{entries: make(map[string]*storeEntry)}
}

func (s *Store) entry(fileID string) *storeEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[fileID]
	if !ok {
		e = &storeEntry{}
		s.entries[fileID] = e
	}
	return e
}

// Get returns a copy of the record for fileID, if present.
func (s *Store) Get(fileID string) (*Record, bool) {
	s.mu.Lock()
	e, ok := s.entries[fileID]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.record == nil {
		return nil, false
	}
	return e.record.Clone(), true
}

// Upsert replaces the record for fileID.
func (s *Store) Upsert(fileID string, record *Record) {
	e := s.entry(fileID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record = record.Clone()
}

// Locked runs fn inside fileID's critical section. fn receives a working
// copy of the current record (nil when the file is unknown) and returns the
// record to persist; returning nil leaves the stored record unchanged. The
// persisted record (or the unchanged one) is returned as a copy.
func (s *Store) Locked(fileID string, fn func(current *Record) (*Record, error)) (*Record, error) {
	e := s.entry(fileID)
	e.mu.Lock()
	defer e.mu.Unlock()

	updated, err := fn(e.record.Clone())
	if err != nil {
		return e.record.Clone(), err
	}
	if updated != nil {
		e.record = updated.Clone()
	}
	return e.record.Clone(), nil
}

// List returns copies of all records ordered by file identifier.
func (s *Store) List() []*Record {
	s.mu.Lock()
	entries := make([]*storeEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	records := make([]*Record, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if e.record != nil {
			records = append(records, e.record.Clone())
		}
		e.mu.Unlock()
	}
	sort.Slice(records, func(i, j int) bool { return records[i].FileID < records[j].FileID })
	return records
}

// CountByStage aggregates record counts per current stage.
func (s *Store) CountByStage() map[Stage]int {
	counts := make(map[Stage]int)
	for _, record := range s.List() {
		counts[record.CurrentStage]++
	}
	return counts
}
