// Package filter implements named compiled predicates: a Filter
// evaluates its expression against every record at append time and
// records matching offsets under the record's 1-second time bucket, so
// query_filter can answer "every matching offset in [t0, t1)" without
// rescanning the log.
package filter

import (
	"sync"

	"github.com/meteorhacks/dialog/clock"
	"github.com/meteorhacks/dialog/dialogerr"
	"github.com/meteorhacks/dialog/filterexpr"
	"github.com/meteorhacks/dialog/schema"
)

// Filter is a named compiled predicate with a time-bucketed posting
// list. New filters are lazy: Evaluate is only ever called for records
// appended after the filter is attached to a table.
type Filter struct {
	Name string
	Expr string

	ast filterexpr.Expr

	mu      sync.RWMutex
	buckets map[int64][]int64 // bucket start (ns) -> offsets
}

// Compile parses expr and returns a ready-to-evaluate Filter. Returns
// ParseError on malformed expressions.
func Compile(name, expr string) (*Filter, error) {
	ast, err := filterexpr.Parse(expr)
	if err != nil {
		return nil, err
	}

	return &Filter{
		Name:    name,
		Expr:    expr,
		ast:     ast,
		buckets: make(map[int64][]int64),
	}, nil
}

// Evaluate tests record (via getter, a column-name -> Value lookup) and,
// if it matches, records offset under bucket_of(timestampNs).
func (f *Filter) Evaluate(getter func(string) (schema.Value, bool), timestampNs, offset int64) bool {
	if !f.ast.Eval(getter) {
		return false
	}

	bucket := clock.BucketOf(timestampNs)

	f.mu.Lock()
	f.buckets[bucket] = append(f.buckets[bucket], offset)
	f.mu.Unlock()

	return true
}

// Query returns every offset posted in [t0, t1) bucket-aligned windows,
// in ascending time-bucket order then append order within a bucket.
func (f *Filter) Query(t0, t1 int64) []int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var out []int64
	for b := clock.BucketOf(t0); b < t1; b += clock.BucketWidthNs {
		offs, ok := f.buckets[b]
		if !ok {
			continue
		}
		out = append(out, offs...)
	}

	return out
}

// Set manages a table's named filters, guarded by its own mutex so
// add/remove never contends with the append path's read-locked
// evaluation pass.
type Set struct {
	mu      sync.RWMutex
	filters map[string]*Filter
}

func NewSet() *Set {
	return &Set{filters: make(map[string]*Filter)}
}

func (s *Set) Add(name, expr string) (*Filter, error) {
	f, err := Compile(name, expr)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.filters[name] = f
	s.mu.Unlock()

	return f, nil
}

func (s *Set) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.filters[name]; !ok {
		return dialogerr.NoSuchFilter(name)
	}
	delete(s.filters, name)

	return nil
}

func (s *Set) Get(name string) (*Filter, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.filters[name]
	return f, ok
}

// Snapshot returns every attached filter, for the append-time fan-out
// pass.
func (s *Set) Snapshot() []*Filter {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Filter, 0, len(s.filters))
	for _, f := range s.filters {
		out = append(out, f)
	}
	return out
}
