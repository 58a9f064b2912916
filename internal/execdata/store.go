package execdata

import (
	"fmt"
	"sort"
	"sync"
)

// Store holds the records of a session keyed by class id. The lock guards
// only the map; probe updates go straight to the record atomics.
type Store struct {
	mu      sync.RWMutex
	mode    Mode
	records map[uint64]*Record
}

// NewStore creates an empty store whose records use mode.
func NewStore(mode Mode) *Store {
	return &Store{mode: mode, records: make(map[uint64]*Record)}
}

// Mode returns the mode of records allocated by Get.
func (s *Store) Mode() Mode { return s.mode }

// Get returns the record for a class, allocating it on first use.
func (s *Store) Get(id uint64, name string, n int) (*Record, error) {
	s.mu.RLock()
	r, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		s.mu.Lock()
		if r, ok = s.records[id]; !ok {
			r = NewRecord(id, name, n, s.mode)
			s.records[id] = r
		}
		s.mu.Unlock()
	}
	if r.name != name || r.Len() != n {
		return nil, fmt.Errorf("%w: class %016x registered as %s[%d], requested as %s[%d]",
			ErrVersionMismatch, id, r.name, r.Len(), name, n)
	}
	return r, nil
}

// Lookup returns the record for id, if present.
func (s *Store) Lookup(id uint64) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	return r, ok
}

// Put merges r into the store. The store keeps its own copy.
func (s *Store) Put(r *Record) error {
	s.mu.Lock()
	existing, ok := s.records[r.id]
	if !ok {
		c := NewRecord(r.id, r.name, r.Len(), s.mode)
		s.records[r.id] = c
		existing = c
	}
	s.mu.Unlock()
	return existing.Merge(r)
}

// Merge folds every record of other into s.
func (s *Store) Merge(other *Store) error {
	for _, r := range other.Records() {
		if err := s.Put(r); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Records returns the records ordered by class name, then id.
func (s *Store) Records() []*Record {
	s.mu.RLock()
	out := make([]*Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].name != out[j].name {
			return out[i].name < out[j].name
		}
		return out[i].id < out[j].id
	})
	return out
}

// NameConflict lists a class name recorded under several ids, which
// happens when different versions of a class were executed.
type NameConflict struct {
	Name string
	IDs  []uint64
}

// CheckNames reports class names that appear with more than one id.
func (s *Store) CheckNames() []NameConflict {
	byName := make(map[string][]uint64)
	var names []string
	for _, r := range s.Records() {
		if _, ok := byName[r.name]; !ok {
			names = append(names, r.name)
		}
		byName[r.name] = append(byName[r.name], r.id)
	}
	var out []NameConflict
	for _, name := range names {
		if ids := byName[name]; len(ids) > 1 {
			out = append(out, NameConflict{Name: name, IDs: ids})
		}
	}
	return out
}

// Reset clears the probes of every record but keeps the records.
func (s *Store) Reset() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		r.Reset()
	}
}
