// Package trigger implements aggregate-over-filter alerting: a Trigger
// names a Filter, an aggregate over one of its matching records'
// columns (or a bare COUNT), a comparator, and a threshold. A
// background worker (owned by the table package, not here) evaluates
// each trigger once per completed time bucket and appends an Alert when
// the comparator holds.
package trigger

import (
	"sync"

	"github.com/meteorhacks/dialog/dialogerr"
	"github.com/meteorhacks/dialog/filter"
	"github.com/meteorhacks/dialog/schema"
)

type Aggregate int

const (
	Count Aggregate = iota
	Sum
	Avg
	Min
	Max
)

type Comparator int

const (
	GT Comparator = iota
	GE
	LT
	LE
	EQ
	NE
)

func (c Comparator) Test(observed, threshold float64) bool {
	switch c {
	case GT:
		return observed > threshold
	case GE:
		return observed >= threshold
	case LT:
		return observed < threshold
	case LE:
		return observed <= threshold
	case EQ:
		return observed == threshold
	case NE:
		return observed != threshold
	default:
		return false
	}
}

// Trigger is a named condition attached to a Filter.
type Trigger struct {
	Name       string
	FilterName string
	Expr       string

	Aggregate      Aggregate
	AggregateField string // empty for Count
	Comparator     Comparator
	Threshold      float64
}

// Evaluate computes this trigger's aggregate over the offsets Query
// posted for bucket [bucketStart, bucketStart+1s) of its filter, using
// read to fetch each offset's value for AggregateField (ignored for
// Count). Returns (value, fired).
func (t *Trigger) Evaluate(offsets []int64, read func(offset int64) (schema.Value, bool)) (float64, bool) {
	var value float64

	switch t.Aggregate {
	case Count:
		value = float64(len(offsets))
	case Sum, Avg, Min, Max:
		var sum float64
		var n int
		var min, max float64
		first := true

		for _, off := range offsets {
			v, ok := read(off)
			if !ok {
				continue
			}
			f := v.AsFloat64()
			sum += f
			n++
			if first || f < min {
				min = f
			}
			if first || f > max {
				max = f
			}
			first = false
		}

		switch t.Aggregate {
		case Sum:
			value = sum
		case Avg:
			if n > 0 {
				value = sum / float64(n)
			}
		case Min:
			value = min
		case Max:
			value = max
		}
	}

	return value, t.Comparator.Test(value, t.Threshold)
}

// Set manages a table's named triggers.
type Set struct {
	mu       sync.RWMutex
	triggers map[string]*Trigger
}

func NewSet() *Set {
	return &Set{triggers: make(map[string]*Trigger)}
}

// Add parses expr and attaches a trigger referencing filterName, which
// must already be registered in filters.
func (s *Set) Add(name, filterName, expr string, filters *filter.Set) (*Trigger, error) {
	if _, ok := filters.Get(filterName); !ok {
		return nil, dialogerr.NoSuchFilter(filterName)
	}

	agg, field, cmp, threshold, err := Parse(expr)
	if err != nil {
		return nil, err
	}

	t := &Trigger{
		Name:           name,
		FilterName:     filterName,
		Expr:           expr,
		Aggregate:      agg,
		AggregateField: field,
		Comparator:     cmp,
		Threshold:      threshold,
	}

	s.mu.Lock()
	s.triggers[name] = t
	s.mu.Unlock()

	return t, nil
}

func (s *Set) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.triggers[name]; !ok {
		return dialogerr.NoSuchTrigger(name)
	}
	delete(s.triggers, name)

	return nil
}

// Snapshot returns every attached trigger, for the periodic evaluation
// worker.
func (s *Set) Snapshot() []*Trigger {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Trigger, 0, len(s.triggers))
	for _, t := range s.triggers {
		out = append(out, t)
	}
	return out
}
