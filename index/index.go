// Package index implements per-column postings: a map from a discretized
// key (a numeric bucket for numeric columns, the exact value for
// string/bool/char columns) to an append-only, offset-ordered list of
// record offsets. Generalizes memindex.go's MemIndex (a tree of
// *kdb.IndexElement guarded by one coarse *sync.Mutex) into the flatter
// bucketed-posting model spec.md §4.5 describes, while keeping the
// teacher's "never block disjoint writers" intent: each key gets its own
// mutex instead of sharing one across the whole index.
package index

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/meteorhacks/dialog/schema"
)

// Index is a single-column posting index. New indexes are lazy: they
// only see records inserted after they're created (spec.md §9 Open
// Question), so Index carries no backfill path by design.
type Index struct {
	Column     schema.Column
	BucketSize float64

	postings sync.Map // key string -> *postingList

	// boundsMu guards minBucket/maxBucket/hasBucket, the observed range
	// of numeric bucket keys ever inserted. LookupRange clamps against
	// these so an unbounded caller (e.g. "e > 100" with no upper bound)
	// can never walk more buckets than the index actually has.
	boundsMu  sync.Mutex
	hasBucket bool
	minBucket int64
	maxBucket int64
}

type postingList struct {
	mu      sync.Mutex
	offsets []int64
}

func New(col schema.Column, bucketSize float64) *Index {
	switch col.Type {
	case schema.Bool, schema.Char, schema.String:
		bucketSize = 0 // exact keys: bucket size does not apply
	}
	return &Index{Column: col, BucketSize: bucketSize}
}

// Discretize maps a value to its posting key: numeric columns bucket by
// BucketSize (0 or negative disables bucketing, i.e. exact numeric
// match), string/bool/char columns use the exact value.
func Discretize(v schema.Value, bucketSize float64) string {
	switch v.Type {
	case schema.Bool:
		return strconv.FormatBool(v.B)
	case schema.String:
		return v.S
	case schema.Char:
		return strconv.FormatInt(v.I, 10)
	case schema.Short, schema.Int, schema.Long:
		if bucketSize <= 0 {
			return strconv.FormatInt(v.I, 10)
		}
		bucket := int64(float64(v.I) / bucketSize)
		return strconv.FormatInt(bucket, 10)
	case schema.Float, schema.Double:
		f := v.AsFloat64()
		if bucketSize <= 0 {
			return strconv.FormatFloat(f, 'g', -1, 64)
		}
		bucket := int64(f / bucketSize)
		return strconv.FormatInt(bucket, 10)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Insert records offset under v's discretized key.
func (idx *Index) Insert(v schema.Value, offset int64) {
	key := Discretize(v, idx.BucketSize)

	raw, _ := idx.postings.LoadOrStore(key, &postingList{})
	pl := raw.(*postingList)

	pl.mu.Lock()
	pl.offsets = append(pl.offsets, offset)
	pl.mu.Unlock()

	if idx.BucketSize > 0 {
		if b, err := strconv.ParseInt(key, 10, 64); err == nil {
			idx.observeBucket(b)
		}
	}
}

func (idx *Index) observeBucket(b int64) {
	idx.boundsMu.Lock()
	defer idx.boundsMu.Unlock()

	if !idx.hasBucket {
		idx.minBucket, idx.maxBucket, idx.hasBucket = b, b, true
		return
	}
	if b < idx.minBucket {
		idx.minBucket = b
	}
	if b > idx.maxBucket {
		idx.maxBucket = b
	}
}

// Lookup returns a snapshot copy of the offsets posted under key.
func (idx *Index) Lookup(key string) []int64 {
	raw, ok := idx.postings.Load(key)
	if !ok {
		return nil
	}
	pl := raw.(*postingList)

	pl.mu.Lock()
	out := make([]int64, len(pl.offsets))
	copy(out, pl.offsets)
	pl.mu.Unlock()

	return out
}

// LookupValue discretizes v and looks up its posting list directly.
func (idx *Index) LookupValue(v schema.Value) []int64 {
	return idx.Lookup(Discretize(v, idx.BucketSize))
}

// LookupRange returns the union of postings for every key whose
// numeric value falls within [lo, hi] inclusive, for numeric columns
// only. When BucketSize is set, this walks candidate buckets directly
// (cheap: at most (hi-lo)/BucketSize buckets); with bucketing disabled
// (exact numeric keys) it instead scans the index's distinct keys once,
// since the candidate range itself may be unbounded (e.g. "e >= 1000").
func (idx *Index) LookupRange(lo, hi schema.Value) []int64 {
	loF := lo.AsFloat64()
	hiF := hi.AsFloat64()
	if loF > hiF {
		return nil
	}

	var out []int64

	if idx.BucketSize > 0 {
		idx.boundsMu.Lock()
		hasBucket, minBucket, maxBucket := idx.hasBucket, idx.minBucket, idx.maxBucket
		idx.boundsMu.Unlock()

		if !hasBucket {
			return nil
		}

		loB := int64(loF / idx.BucketSize)
		hiB := int64(hiF / idx.BucketSize)
		if loB < minBucket {
			loB = minBucket
		}
		if hiB > maxBucket {
			hiB = maxBucket
		}
		if loB > hiB {
			return nil
		}

		for b := loB; b <= hiB; b++ {
			out = append(out, idx.Lookup(strconv.FormatInt(b, 10))...)
		}
		return out
	}

	idx.postings.Range(func(k, v interface{}) bool {
		key := k.(string)
		f, err := strconv.ParseFloat(key, 64)
		if err != nil {
			return true
		}
		if f < loF || f > hiF {
			return true
		}

		pl := v.(*postingList)
		pl.mu.Lock()
		out = append(out, pl.offsets...)
		pl.mu.Unlock()

		return true
	})

	return out
}
