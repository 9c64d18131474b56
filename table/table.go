// Package table composes the Schema & Record Codec, Segment Store,
// Index Set, Filter Set, and Trigger Set into the single owning unit
// spec.md §4.3 describes: append/read plus index/filter/trigger
// lifecycle, with append's side-effect fan-out ordered strictly before
// the publish step that makes an offset visible to readers.
package table

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/meteorhacks/dialog/clock"
	"github.com/meteorhacks/dialog/dialogerr"
	"github.com/meteorhacks/dialog/filter"
	"github.com/meteorhacks/dialog/index"
	"github.com/meteorhacks/dialog/schema"
	"github.com/meteorhacks/dialog/store"
	"github.com/meteorhacks/dialog/trigger"
)

// DefaultTriggerLatenessMs is how far behind the trigger clock stays from wall
// time before evaluating a bucket, giving in-flight appends in that
// bucket time to land. Configurable per spec.md §6; table.New uses the
// package default unless Options overrides it.
const DefaultTriggerLatenessMs = 1000

type Options struct {
	Store             store.Options
	TriggerLatenessMs int64
}

// Table owns one schema's worth of records plus every secondary
// structure built over them.
type Table struct {
	name   string
	schema *schema.Schema
	seg    store.Segment

	idxMu   sync.RWMutex
	indexes map[string]*index.Index

	filters  *filter.Set
	triggers *trigger.Set

	alertsMu sync.Mutex
	alerts   []trigger.Alert

	latenessNs   int64
	triggerClock int64 // atomic: next bucket start not yet evaluated

	// persistDir is where Close saves (and New loaded) the Index Set's
	// snapshots for a durable table; empty for InMemory, which has
	// nothing to persist this to.
	persistDir string

	stopWorker chan struct{}
	workerWg   sync.WaitGroup
}

func New(name string, sch *schema.Schema, mode store.Mode, opts Options) (*Table, error) {
	storeOpts := opts.Store
	storeOpts.RecordSize = int64(sch.RecordSize())

	seg, err := store.New(mode, storeOpts)
	if err != nil {
		return nil, err
	}

	latenessMs := opts.TriggerLatenessMs
	if latenessMs <= 0 {
		latenessMs = DefaultTriggerLatenessMs
	}

	persistDir := ""
	if mode != store.InMemory {
		persistDir = storeOpts.Path
	}

	indexes, err := loadIndexSnapshots(persistDir, sch)
	if err != nil {
		seg.Close()
		return nil, err
	}

	t := &Table{
		name:       name,
		schema:     sch,
		seg:        seg,
		indexes:    indexes,
		filters:    filter.NewSet(),
		triggers:   trigger.NewSet(),
		latenessNs: latenessMs * int64(time.Millisecond),
		persistDir: persistDir,
		stopWorker: make(chan struct{}),
	}

	atomic.StoreInt64(&t.triggerClock, clock.BucketOf(clock.Now()))

	t.workerWg.Add(1)
	go t.triggerWorker()

	return t, nil
}

func (t *Table) Schema() *schema.Schema { return t.schema }
func (t *Table) Name() string           { return t.name }

// Append validates record size, stamps the timestamp if the caller left
// it zero, reserves a slot, writes the bytes, fans out to every
// attached index and filter, and only then publishes — the
// linearization point spec.md §4.3 and §5 both specify.
func (t *Table) Append(record []byte) (int64, error) {
	if err := schema.ValidateSize(t.schema, record); err != nil {
		return 0, err
	}

	if schema.Timestamp(record) == 0 {
		schema.SetTimestamp(record, clock.Now())
	}

	offset := t.seg.Reserve(int64(len(record)))
	if err := t.seg.WriteAt(offset, record); err != nil {
		return 0, err
	}

	t.fanOut(record, offset)
	t.seg.Publish(offset, int64(len(record)))

	return offset, nil
}

// AppendBatch reserves one contiguous range for the whole batch, fans
// out every record, then publishes once — no partial success.
func (t *Table) AppendBatch(records [][]byte) (int64, error) {
	if len(records) == 0 {
		return t.seg.Tail(), nil
	}

	recSize := int64(t.schema.RecordSize())
	for _, rec := range records {
		if err := schema.ValidateSize(t.schema, rec); err != nil {
			return 0, err
		}
	}

	span := int64(len(records)) * recSize
	first := t.seg.Reserve(span)

	for i, rec := range records {
		if schema.Timestamp(rec) == 0 {
			schema.SetTimestamp(rec, clock.Now())
		}

		offset := first + int64(i)*recSize
		if err := t.seg.WriteAt(offset, rec); err != nil {
			return 0, err
		}
		t.fanOut(rec, offset)
	}

	t.seg.Publish(first, span)

	return first, nil
}

// fanOut runs the per-record index/filter/trigger side effects. Trigger
// evaluation itself happens on the background worker, over filter
// postings already recorded here; fanOut only needs to get those
// postings in place before publish.
func (t *Table) fanOut(record []byte, offset int64) {
	getter := t.valueGetter(record)
	ts := schema.Timestamp(record)

	t.idxMu.RLock()
	for _, idx := range t.indexes {
		col := idx.Column
		v := schema.Decode(col, record)
		idx.Insert(v, offset)
	}
	t.idxMu.RUnlock()

	for _, f := range t.filters.Snapshot() {
		f.Evaluate(getter, ts, offset)
	}
}

// valueGetter returns a column-name -> Value lookup closure over record,
// used by filter predicates and trigger aggregates alike.
func (t *Table) valueGetter(record []byte) func(string) (schema.Value, bool) {
	return func(name string) (schema.Value, bool) {
		col, ok := t.schema.ColumnByName(name)
		if !ok {
			return schema.Value{}, false
		}
		return schema.Decode(col, record), true
	}
}

func (t *Table) Read(offset int64, n int) ([]byte, error) {
	return t.seg.Read(offset, n)
}

func (t *Table) NumRecords() int64 {
	return t.seg.NumRecords()
}

func (t *Table) AddIndex(field string, bucketSize float64) error {
	col, ok := t.schema.ColumnByName(field)
	if !ok {
		return dialogerr.NoSuchColumn(field)
	}

	t.idxMu.Lock()
	defer t.idxMu.Unlock()

	if _, exists := t.indexes[field]; exists {
		return nil // idempotent against already-indexed column
	}
	t.indexes[field] = index.New(col, bucketSize)

	return nil
}

func (t *Table) RemoveIndex(field string) error {
	t.idxMu.Lock()
	defer t.idxMu.Unlock()

	delete(t.indexes, field)
	return nil
}

func (t *Table) AddFilter(name, expr string) error {
	_, err := t.filters.Add(name, expr)
	return err
}

func (t *Table) RemoveFilter(name string) error {
	return t.filters.Remove(name)
}

func (t *Table) AddTrigger(name, filterName, expr string) error {
	_, err := t.triggers.Add(name, filterName, expr, t.filters)
	return err
}

func (t *Table) RemoveTrigger(name string) error {
	return t.triggers.Remove(name)
}

// recordAt reads one record's raw bytes at offset, for use by the
// planner's residual checks and the trigger worker's aggregate reads.
func (t *Table) recordAt(offset int64) ([]byte, bool) {
	data, err := t.seg.Read(offset, 1)
	if err != nil {
		return nil, false
	}
	return data, true
}

// columnReader returns a function reading one column's value out of the
// record at a given offset, for trigger.Trigger.Evaluate's aggregate
// pass. field is ignored (and the function always reports ok=false) for
// Count-only triggers that never call read.
func (t *Table) columnReader(field string) func(offset int64) (schema.Value, bool) {
	col, ok := t.schema.ColumnByName(field)
	if !ok {
		return func(int64) (schema.Value, bool) { return schema.Value{}, false }
	}

	return func(offset int64) (schema.Value, bool) {
		record, ok := t.recordAt(offset)
		if !ok {
			return schema.Value{}, false
		}
		return schema.Decode(col, record), true
	}
}

// Close stops the trigger worker, persists the Index Set for a durable
// table (a no-op for InMemory), and closes the Segment Store.
func (t *Table) Close() error {
	close(t.stopWorker)
	t.workerWg.Wait()

	if err := t.saveIndexSnapshots(t.persistDir); err != nil {
		t.seg.Close()
		return err
	}

	return t.seg.Close()
}
