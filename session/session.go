// Package session implements the stateful, per-connection RPC surface
// spec.md §6 describes: one Session per connection, owning a handler_id
// from the Thread Registry, a reference to the table it's currently
// bound to, and a private registry of open iterators over that table's
// query results.
package session

import (
	"sync"
	"sync/atomic"

	"github.com/meteorhacks/dialog"
	"github.com/meteorhacks/dialog/clock"
	"github.com/meteorhacks/dialog/dialogerr"
	"github.com/meteorhacks/dialog/schema"
	"github.com/meteorhacks/dialog/store"
	"github.com/meteorhacks/dialog/table"
	"github.com/meteorhacks/dialog/threadregistry"
)

// DefaultIteratorBatchSize is spec.md §6's 1024; dialogd's Config may
// override it per session.
const DefaultIteratorBatchSize = 1024

// DataType discriminates what an iterator yields.
type DataType int

const (
	RecordData DataType = iota
	AlertData
)

// Kind is the RPC call family that created an iterator.
type Kind int

const (
	Adhoc Kind = iota
	Predef
	Combined
	Alerts
)

// IteratorID is monotone per session.
type IteratorID int64

// Descriptor identifies an iterator across get_more calls: the data it
// carries, the handler that owns it, its id, and the call family that
// created it.
type Descriptor struct {
	DataType  DataType
	HandlerID threadregistry.HandlerID
	IteratorID IteratorID
	Kind      Kind
}

// Batch is what GetMore returns: the raw concatenated payload (records
// back-to-back, or newline-separated alert lines), how many entries it
// holds, and whether more remain.
type Batch struct {
	Descriptor Descriptor
	Data       []byte
	NumEntries uint32
	HasMore    bool
}

type iterator struct {
	desc     Descriptor
	records  table.RecordStream
	alerts   table.AlertStream
}

// Session is per-connection state: one handler_id, one current table,
// one monotone iterator id counter, and the open iterators it owns.
type Session struct {
	registry *threadregistry.Registry
	store    *dialog.Store

	handlerID   threadregistry.HandlerID
	registered  bool

	currentTable *table.Table

	nextIterID int64 // atomic

	mu        sync.Mutex
	iterators map[IteratorID]*iterator

	batchSize int
}

// New creates a Session bound to store's tables, using registry for
// handler id bookkeeping (threadregistry.Global() if the caller has no
// dedicated one) and batchSize entries per GetMore call.
func New(st *dialog.Store, registry *threadregistry.Registry, batchSize int) *Session {
	if registry == nil {
		registry = threadregistry.Global()
	}
	if batchSize <= 0 {
		batchSize = DefaultIteratorBatchSize
	}
	return &Session{
		registry:  registry,
		store:     st,
		iterators: make(map[IteratorID]*iterator),
		batchSize: batchSize,
	}
}

// RegisterHandler registers this session's worker thread with the
// Thread Registry; must be called before Append/AppendBatch.
func (s *Session) RegisterHandler() (threadregistry.HandlerID, error) {
	id, err := s.registry.Register()
	if err != nil {
		return 0, dialogerr.RegistrationFailed(err.Error())
	}
	s.handlerID = id
	s.registered = true
	return id, nil
}

// DeregisterHandler tears down the session's handler id; mandatory at
// session close per spec.md §5.
func (s *Session) DeregisterHandler() error {
	if !s.registered {
		return nil
	}
	err := s.registry.Deregister(s.handlerID)
	s.registered = false
	return err
}

// CreateTable creates and registers a new table, DuplicateTable if the
// name is taken.
func (s *Session) CreateTable(name string, sch *schema.Schema, mode store.Mode) (int64, error) {
	return s.store.AddTable(name, sch, mode)
}

// SetCurrentTable binds the session to an existing table by name,
// returning its schema, NoSuchTable if absent.
func (s *Session) SetCurrentTable(name string) (*schema.Schema, error) {
	tbl, err := s.store.GetTable(name)
	if err != nil {
		return nil, err
	}
	s.currentTable = tbl
	return tbl.Schema(), nil
}

func (s *Session) requireTable() (*table.Table, error) {
	if s.currentTable == nil {
		return nil, dialogerr.Parse("no current table set on session")
	}
	return s.currentTable, nil
}

func (s *Session) AddIndex(field string, bucketSize float64) error {
	tbl, err := s.requireTable()
	if err != nil {
		return err
	}
	return tbl.AddIndex(field, bucketSize)
}

func (s *Session) RemoveIndex(field string) error {
	tbl, err := s.requireTable()
	if err != nil {
		return err
	}
	return tbl.RemoveIndex(field)
}

func (s *Session) AddFilter(name, expr string) error {
	tbl, err := s.requireTable()
	if err != nil {
		return err
	}
	return tbl.AddFilter(name, expr)
}

func (s *Session) RemoveFilter(name string) error {
	tbl, err := s.requireTable()
	if err != nil {
		return err
	}
	return tbl.RemoveFilter(name)
}

func (s *Session) AddTrigger(name, filterName, expr string) error {
	tbl, err := s.requireTable()
	if err != nil {
		return err
	}
	return tbl.AddTrigger(name, filterName, expr)
}

func (s *Session) RemoveTrigger(name string) error {
	tbl, err := s.requireTable()
	if err != nil {
		return err
	}
	return tbl.RemoveTrigger(name)
}

func (s *Session) Append(data []byte) (int64, error) {
	tbl, err := s.requireTable()
	if err != nil {
		return 0, err
	}
	return tbl.Append(data)
}

func (s *Session) AppendBatch(batch [][]byte) (int64, error) {
	tbl, err := s.requireTable()
	if err != nil {
		return 0, err
	}
	return tbl.AppendBatch(batch)
}

func (s *Session) Read(offset int64, nRecords int) ([]byte, error) {
	tbl, err := s.requireTable()
	if err != nil {
		return nil, err
	}
	return tbl.Read(offset, nRecords)
}

func (s *Session) NumRecords() (int64, error) {
	tbl, err := s.requireTable()
	if err != nil {
		return 0, err
	}
	return tbl.NumRecords(), nil
}

// AdhocFilter compiles expr and returns an iterator handle over every
// currently-visible matching record.
func (s *Session) AdhocFilter(expr string) (Batch, error) {
	tbl, err := s.requireTable()
	if err != nil {
		return Batch{}, err
	}
	stream, err := tbl.ExecuteFilter(expr)
	if err != nil {
		return Batch{}, err
	}
	return s.newRecordIterator(Adhoc, stream)
}

// PredefFilter returns an iterator over name's postings in [t0_ms, t1_ms).
func (s *Session) PredefFilter(name string, t0Ms, t1Ms int64) (Batch, error) {
	tbl, err := s.requireTable()
	if err != nil {
		return Batch{}, err
	}
	stream, err := tbl.QueryFilter(name, clock.MillisToNanos(t0Ms), clock.MillisToNanos(t1Ms))
	if err != nil {
		return Batch{}, err
	}
	return s.newRecordIterator(Predef, stream)
}

// CombinedFilter returns an iterator over name's postings intersected
// with expr's ad-hoc matches, in [t0_ms, t1_ms).
func (s *Session) CombinedFilter(name, expr string, t0Ms, t1Ms int64) (Batch, error) {
	tbl, err := s.requireTable()
	if err != nil {
		return Batch{}, err
	}
	stream, err := tbl.QueryFilterCombined(name, expr, clock.MillisToNanos(t0Ms), clock.MillisToNanos(t1Ms))
	if err != nil {
		return Batch{}, err
	}
	return s.newRecordIterator(Combined, stream)
}

// AlertsByTime returns an iterator over alerts with timestamp in
// [t0_ms, t1_ms).
func (s *Session) AlertsByTime(t0Ms, t1Ms int64) (Batch, error) {
	tbl, err := s.requireTable()
	if err != nil {
		return Batch{}, err
	}
	stream := tbl.GetAlerts(clock.MillisToNanos(t0Ms), clock.MillisToNanos(t1Ms))
	return s.newAlertIterator(Alerts, stream)
}

func (s *Session) newRecordIterator(kind Kind, stream table.RecordStream) (Batch, error) {
	id := IteratorID(atomic.AddInt64(&s.nextIterID, 1) - 1)
	desc := Descriptor{DataType: RecordData, HandlerID: s.handlerID, IteratorID: id, Kind: kind}

	s.mu.Lock()
	if _, exists := s.iterators[id]; exists {
		s.mu.Unlock()
		return Batch{}, dialogerr.DuplicateIteratorId()
	}
	it := &iterator{desc: desc, records: stream}
	s.iterators[id] = it
	s.mu.Unlock()

	return s.drain(it)
}

func (s *Session) newAlertIterator(kind Kind, stream table.AlertStream) (Batch, error) {
	id := IteratorID(atomic.AddInt64(&s.nextIterID, 1) - 1)
	desc := Descriptor{DataType: AlertData, HandlerID: s.handlerID, IteratorID: id, Kind: kind}

	s.mu.Lock()
	if _, exists := s.iterators[id]; exists {
		s.mu.Unlock()
		return Batch{}, dialogerr.DuplicateIteratorId()
	}
	it := &iterator{desc: desc, alerts: stream}
	s.iterators[id] = it
	s.mu.Unlock()

	return s.drain(it)
}

// GetMore pulls up to batchSize further entries from the iterator named
// by desc, removing it from the session once its stream is exhausted.
func (s *Session) GetMore(desc Descriptor) (Batch, error) {
	if desc.HandlerID != s.handlerID {
		return Batch{}, dialogerr.HandlerMismatch()
	}

	s.mu.Lock()
	it, ok := s.iterators[desc.IteratorID]
	s.mu.Unlock()
	if !ok {
		return Batch{}, dialogerr.NoSuchIterator()
	}

	return s.drain(it)
}

// drain pulls up to s.batchSize entries from it, deleting it from the
// session if the underlying stream is now exhausted.
func (s *Session) drain(it *iterator) (Batch, error) {
	var data []byte
	var n uint32
	var hasMore bool

	if it.records != nil {
		for n < uint32(s.batchSize) && it.records.HasMore() {
			rec, ok := it.records.Next()
			if !ok {
				break
			}
			data = append(data, rec...)
			n++
		}
		hasMore = it.records.HasMore()
	} else {
		for n < uint32(s.batchSize) && it.alerts.HasMore() {
			a, ok := it.alerts.Next()
			if !ok {
				break
			}
			data = append(data, []byte(a.Render())...)
			n++
		}
		hasMore = it.alerts.HasMore()
	}

	if !hasMore {
		s.mu.Lock()
		delete(s.iterators, it.desc.IteratorID)
		s.mu.Unlock()
	}

	return Batch{Descriptor: it.desc, Data: data, NumEntries: n, HasMore: hasMore}, nil
}
