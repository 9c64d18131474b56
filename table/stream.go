package table

import (
	"sort"

	"github.com/meteorhacks/dialog/dialogerr"
	"github.com/meteorhacks/dialog/filterexpr"
	"github.com/meteorhacks/dialog/schema"
	"github.com/meteorhacks/dialog/trigger"
)

// RecordStream is a pull-based, non-restartable cursor over fixed-width
// records, bounded by the snapshot_tail sampled at creation (spec.md
// §4.4); appends after creation are never visible to an already-open
// stream.
type RecordStream interface {
	HasMore() bool
	Next() ([]byte, bool)
}

// AlertStream is RecordStream's counterpart over the alert log.
type AlertStream interface {
	HasMore() bool
	Next() (trigger.Alert, bool)
}

type offsetStream struct {
	t       *Table
	offsets []int64
	idx     int
}

func (s *offsetStream) HasMore() bool {
	return s.idx < len(s.offsets)
}

func (s *offsetStream) Next() ([]byte, bool) {
	if s.idx >= len(s.offsets) {
		return nil, false
	}

	off := s.offsets[s.idx]
	s.idx++

	data, err := s.t.seg.Read(off, 1)
	if err != nil {
		return nil, false
	}
	return data, true
}

type alertStream struct {
	alerts []trigger.Alert
	idx    int
}

func (s *alertStream) HasMore() bool {
	return s.idx < len(s.alerts)
}

func (s *alertStream) Next() (trigger.Alert, bool) {
	if s.idx >= len(s.alerts) {
		return trigger.Alert{}, false
	}
	a := s.alerts[s.idx]
	s.idx++
	return a, true
}

// ExecuteFilter compiles expr and returns a stream over every currently
// visible record matching it — snapshot semantics, bounded by
// read_tail at call time (testable property 4).
func (t *Table) ExecuteFilter(expr string) (RecordStream, error) {
	ast, err := filterexpr.Parse(expr)
	if err != nil {
		return nil, err
	}

	snapshotTail := t.seg.Tail()
	offsets := t.planQuery(ast, snapshotTail)

	return &offsetStream{t: t, offsets: offsets}, nil
}

// QueryFilter iterates the named filter's posting buckets in [t0, t1)
// and returns a stream over the matching records (testable property 5).
func (t *Table) QueryFilter(name string, t0, t1 int64) (RecordStream, error) {
	f, ok := t.filters.Get(name)
	if !ok {
		return nil, dialogerr.NoSuchFilter(name)
	}

	offsets := f.Query(t0, t1)
	offsets = t.restrictToTimeRange(offsets, t0, t1)

	return &offsetStream{t: t, offsets: offsets}, nil
}

// QueryFilterCombined returns the intersection of the named filter's
// [t0, t1) postings and expr's ad-hoc matches (testable property 6).
func (t *Table) QueryFilterCombined(name, expr string, t0, t1 int64) (RecordStream, error) {
	f, ok := t.filters.Get(name)
	if !ok {
		return nil, dialogerr.NoSuchFilter(name)
	}

	ast, err := filterexpr.Parse(expr)
	if err != nil {
		return nil, err
	}

	predef := t.restrictToTimeRange(f.Query(t0, t1), t0, t1)

	var out []int64
	for _, off := range predef {
		record, ok := t.recordAt(off)
		if !ok {
			continue
		}
		if ast.Eval(t.valueGetter(record)) {
			out = append(out, off)
		}
	}

	return &offsetStream{t: t, offsets: out}, nil
}

// restrictToTimeRange residual-checks each offset's actual timestamp
// against [t0, t1), since filter postings are only bucket-granular
// (1-second windows) and t0/t1 need not be bucket-aligned.
func (t *Table) restrictToTimeRange(offsets []int64, t0, t1 int64) []int64 {
	out := make([]int64, 0, len(offsets))
	for _, off := range offsets {
		record, ok := t.recordAt(off)
		if !ok {
			continue
		}
		ts := schema.Timestamp(record)
		if ts >= t0 && ts < t1 {
			out = append(out, off)
		}
	}
	return out
}

// GetAlerts returns a snapshot stream over every alert with
// timestamp in [t0, t1), ordered by timestamp; the slice bound (`end`)
// is captured at call time.
func (t *Table) GetAlerts(t0, t1 int64) AlertStream {
	t.alertsMu.Lock()
	snapshot := make([]trigger.Alert, len(t.alerts))
	copy(snapshot, t.alerts)
	t.alertsMu.Unlock()

	lo := sort.Search(len(snapshot), func(i int) bool { return snapshot[i].TimestampNs >= t0 })
	hi := sort.Search(len(snapshot), func(i int) bool { return snapshot[i].TimestampNs >= t1 })

	return &alertStream{alerts: snapshot[lo:hi]}
}
