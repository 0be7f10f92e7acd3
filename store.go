package agent

import (
	"bytes"
	"sync"
)

// Store is the in-memory project snapshot.
//
// Reads never block and never observe a partially constructed Project;
// writers replace whole values per key. The zero value is usable.
type Store struct {
	projects sync.Map // string → *Project
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Get returns the project stored under key, if any.
func (s *Store) Get(key string) (*Project, bool) {
	v, ok := s.projects.Load(key)
	if !ok {
		return nil, false
	}
	return v.(*Project), true
}

// Insert stores p under key, replacing any previous value.
func (s *Store) Insert(key string, p *Project) {
	s.projects.Store(key, p)
}

// Remove deletes the project stored under key, if any.
func (s *Store) Remove(key string) {
	s.projects.Delete(key)
}

// Range calls f for every stored project until f returns false.
func (s *Store) Range(f func(key string, p *Project) bool) {
	s.projects.Range(func(k, v any) bool {
		return f(k.(string), v.(*Project))
	})
}

// Len reports the number of stored projects.
func (s *Store) Len() (n int) {
	s.projects.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// CalculateDiff compares a provider listing against the current
// snapshot.
//
// Keys in the snapshot but absent from the listing yield OpRemoved,
// listing keys absent from the snapshot yield OpCreated, and listing
// keys whose content hash differs from the stored one yield OpUpdated.
// Equal hashes, including both nil, yield nothing.
func (s *Store) CalculateDiff(listing []ProjectData) []ProjectDiff {
	listed := make(map[string]struct{}, len(listing))
	for _, d := range listing {
		listed[d.Key] = struct{}{}
	}

	var diff []ProjectDiff
	s.Range(func(key string, _ *Project) bool {
		if _, ok := listed[key]; !ok {
			diff = append(diff, ProjectDiff{Op: OpRemoved, Key: key})
		}
		return true
	})

	for _, d := range listing {
		cur, ok := s.Get(d.Key)
		switch {
		case !ok:
			diff = append(diff, ProjectDiff{Op: OpCreated, Key: d.Key})
		case !bytes.Equal(cur.ContentHash, d.ContentHash):
			diff = append(diff, ProjectDiff{Op: OpUpdated, Key: d.Key})
		}
	}
	return diff
}

// Apply publishes refresh results.
//
// Created and Updated entries with a fetched project replace the
// stored value; entries whose fetch is missing (skipped after a
// per-key failure) remove the key and are dropped from the returned
// diff. Removed entries always remove the key.
func (s *Store) Apply(diff []ProjectDiff, fetched map[string]*Project) []ProjectDiff {
	applied := diff[:0:0]
	for _, d := range diff {
		switch d.Op {
		case OpCreated, OpUpdated:
			p, ok := fetched[d.Key]
			if !ok {
				s.Remove(d.Key)
				continue
			}
			s.Insert(d.Key, p)
			applied = append(applied, d)
		case OpRemoved:
			s.Remove(d.Key)
			applied = append(applied, d)
		}
	}
	return applied
}
