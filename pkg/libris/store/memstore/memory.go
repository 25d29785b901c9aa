package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/cognicore/libris/pkg/libris/catalog"
	"github.com/cognicore/libris/pkg/libris/internalerr"
	"github.com/cognicore/libris/pkg/libris/store"
)

// Store is an in-memory implementation of store.Store for tests and dry runs.
type Store struct {
	mu      sync.RWMutex
	records []catalog.Record
	loaded  bool
	groups  map[string][]catalog.Group
	runs    []store.Run
}

// New creates a store seeded with records. With no records the store
// reports internalerr.ErrNotFound until SaveRecords is called.
func New(records ...catalog.Record) *Store {
	s := &Store{groups: make(map[string][]catalog.Group)}
	if len(records) > 0 {
		s.records = cloneRecords(records)
		s.loaded = true
	}
	return s
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// LoadRecords implements store.Store.
func (s *Store) LoadRecords(ctx context.Context) ([]catalog.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.loaded {
		return nil, internalerr.ErrNotFound
	}
	return cloneRecords(s.records), nil
}

// SaveRecords implements store.Store.
func (s *Store) SaveRecords(ctx context.Context, records []catalog.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = cloneRecords(records)
	s.loaded = true
	return nil
}

// SaveGroups implements store.Store.
func (s *Store) SaveGroups(ctx context.Context, table string, groups []catalog.Group) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.groups[table] = cloneGroups(groups)
	return nil
}

// LoadGroups implements store.GroupReader. The key arguments are applied to
// the returned groups.
func (s *Store) LoadGroups(ctx context.Context, table, idKey, labelKey string) ([]catalog.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	groups, ok := s.groups[table]
	if !ok {
		return nil, internalerr.ErrNotFound
	}
	out := cloneGroups(groups)
	for i := range out {
		out[i].IDKey = idKey
		out[i].LabelKey = labelKey
	}
	return out, nil
}

// Tables lists the tables that have saved groups.
func (s *Store) Tables() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.groups))
	for name := range s.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RecordRun implements store.RunRecorder.
func (s *Store) RecordRun(ctx context.Context, run store.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs = append(s.runs, run)
	return nil
}

// Runs returns the most recent runs first.
func (s *Store) Runs(ctx context.Context, limit int) ([]store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.Run, 0, len(s.runs))
	for i := len(s.runs) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, s.runs[i])
	}
	return out, nil
}

func cloneRecords(records []catalog.Record) []catalog.Record {
	out := make([]catalog.Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}

func cloneGroups(groups []catalog.Group) []catalog.Group {
	out := make([]catalog.Group, len(groups))
	for i, g := range groups {
		g.Books = cloneRecords(g.Books)
		out[i] = g
	}
	return out
}
