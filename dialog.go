// Package dialog is the Store Registry: a name/id-keyed map of Tables,
// generalizing defaultdatabase.go's Buckets map[int64]Bucket pattern to
// the dual name+id lookup spec.md §4.7 requires.
package dialog

import (
	"sync"
	"sync/atomic"

	"github.com/meteorhacks/dialog/dialogerr"
	"github.com/meteorhacks/dialog/schema"
	"github.com/meteorhacks/dialog/store"
	"github.com/meteorhacks/dialog/table"
)

// Store owns every Table in the process by name and by a stable numeric
// id assigned at creation.
type Store struct {
	nextID int64 // atomic

	// defaultTriggerLatenessMs seeds every table created through this
	// Store, so a server-wide config knob can apply without every
	// create_table caller having to repeat it.
	defaultTriggerLatenessMs int64

	mu      sync.RWMutex
	byName  map[string]*table.Table
	byID    map[int64]*table.Table
	idOf    map[string]int64
	nameOf  map[int64]string
}

func NewStore() *Store {
	return &Store{
		byName: make(map[string]*table.Table),
		byID:   make(map[int64]*table.Table),
		idOf:   make(map[string]int64),
		nameOf: make(map[int64]string),
	}
}

// SetDefaultTriggerLatenessMs sets the trigger lateness every
// subsequently-created table falls back to unless it overrides it.
func (s *Store) SetDefaultTriggerLatenessMs(ms int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultTriggerLatenessMs = ms
}

// AddTable creates and registers a new table under name, failing
// DuplicateTable if the name is already taken.
func (s *Store) AddTable(name string, sch *schema.Schema, mode store.Mode) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byName[name]; exists {
		return 0, dialogerr.DuplicateTable(name)
	}

	tbl, err := table.New(name, sch, mode, table.Options{
		TriggerLatenessMs: s.defaultTriggerLatenessMs,
	})
	if err != nil {
		return 0, err
	}

	id := atomic.AddInt64(&s.nextID, 1) - 1

	s.byName[name] = tbl
	s.byID[id] = tbl
	s.idOf[name] = id
	s.nameOf[id] = name

	return id, nil
}

// GetTable looks up a table by name, failing NoSuchTable if absent.
func (s *Store) GetTable(name string) (*table.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tbl, ok := s.byName[name]
	if !ok {
		return nil, dialogerr.NoSuchTable(name)
	}
	return tbl, nil
}

// GetTableByID looks up a table by its numeric id.
func (s *Store) GetTableByID(id int64) (*table.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tbl, ok := s.byID[id]
	if !ok {
		return nil, dialogerr.NoSuchTable(s.nameOf[id])
	}
	return tbl, nil
}

// RemoveTable removes a table by name. The error message is an external
// contract tests depend on verbatim: "No such table <name>".
func (s *Store) RemoveTable(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tbl, ok := s.byName[name]
	if !ok {
		return dialogerr.NoSuchTable(name)
	}

	id := s.idOf[name]
	delete(s.byName, name)
	delete(s.byID, id)
	delete(s.idOf, name)
	delete(s.nameOf, id)

	return tbl.Close()
}

// RemoveTableByID removes a table by its numeric id.
func (s *Store) RemoveTableByID(id int64) error {
	s.mu.Lock()
	name, ok := s.nameOf[id]
	s.mu.Unlock()

	if !ok {
		return dialogerr.NoSuchTable("")
	}
	return s.RemoveTable(name)
}
