package table

import (
	"math"
	"sort"

	"github.com/meteorhacks/dialog/filterexpr"
	"github.com/meteorhacks/dialog/schema"
)

// planQuery evaluates expr over every offset < snapshotTail, returning
// the matching offsets in ascending order. Per spec.md §4.5, the
// planner rewrites to DNF and for each conjunct seeds postings from the
// first indexable atom it finds, residual-checking the rest; conjuncts
// with no indexable atom fall back to a bounded full scan. Plan choice
// is unconstrained by contract — this just needs to produce the same
// set of offsets a full scan would.
func (t *Table) planQuery(expr filterexpr.Expr, snapshotTail int64) []int64 {
	conjuncts := filterexpr.DNF(expr)

	seen := make(map[int64]bool)
	var out []int64

	for _, conj := range conjuncts {
		candidates, residual := t.seedCandidates(conj, snapshotTail)
		for _, off := range candidates {
			if off >= snapshotTail || seen[off] {
				continue
			}
			if t.matchesResidual(off, residual) {
				seen[off] = true
				out = append(out, off)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}

// seedCandidates picks the first indexed atom in conj to seed a
// candidate offset set, returning the remaining atoms as residual
// checks (the whole conjunct when the seed is not exact: strict
// comparisons and bucketed indexes). If no atom in conj is indexable, it falls back to a full scan
// of every offset below snapshotTail and the residual is the whole
// conjunct.
func (t *Table) seedCandidates(conj []filterexpr.Atom, snapshotTail int64) ([]int64, []filterexpr.Atom) {
	t.idxMu.RLock()
	defer t.idxMu.RUnlock()

	for i, atom := range conj {
		idx, ok := t.indexes[atom.Column]
		if !ok {
			continue
		}

		residual := make([]filterexpr.Atom, 0, len(conj)-1)
		residual = append(residual, conj[:i]...)
		residual = append(residual, conj[i+1:]...)

		// A bucketed index returns every offset in the seed's bucket, not
		// only exact matches, so the seed atom stays in the residual.
		if idx.BucketSize > 0 {
			residual = conj
		}

		switch atom.Op {
		case filterexpr.Eq:
			v := literalValue(atom)
			return idx.LookupValue(v), residual
		case filterexpr.Gte:
			lo := literalValue(atom)
			hi := schema.LongValue(math.MaxInt64)
			return idx.LookupRange(lo, hi), residual
		case filterexpr.Gt:
			// LookupRange's bound is inclusive, so the seed atom stays in
			// the residual and matchesResidual strict-checks it, excluding
			// lo itself from the result.
			lo := literalValue(atom)
			hi := schema.LongValue(math.MaxInt64)
			return idx.LookupRange(lo, hi), conj
		case filterexpr.Lte:
			lo := schema.LongValue(math.MinInt64)
			hi := literalValue(atom)
			return idx.LookupRange(lo, hi), residual
		case filterexpr.Lt:
			lo := schema.LongValue(math.MinInt64)
			hi := literalValue(atom)
			return idx.LookupRange(lo, hi), conj
		}
	}

	return t.fullScan(snapshotTail), conj
}

func literalValue(atom filterexpr.Atom) schema.Value {
	switch atom.Literal.Kind {
	case filterexpr.LiteralString:
		return schema.StringValue(atom.Literal.Str)
	case filterexpr.LiteralBool:
		return schema.BoolValue(atom.Literal.Bool)
	default:
		if atom.Literal.Num == math.Trunc(atom.Literal.Num) {
			return schema.LongValue(int64(atom.Literal.Num))
		}
		return schema.DoubleValue(atom.Literal.Num)
	}
}

func (t *Table) fullScan(snapshotTail int64) []int64 {
	recSize := int64(t.schema.RecordSize())
	n := snapshotTail / recSize

	out := make([]int64, 0, n)
	for i := int64(0); i < n; i++ {
		out = append(out, i*recSize)
	}
	return out
}

func (t *Table) matchesResidual(offset int64, residual []filterexpr.Atom) bool {
	if len(residual) == 0 {
		return true
	}

	record, ok := t.recordAt(offset)
	if !ok {
		return false
	}
	getter := t.valueGetter(record)

	for _, atom := range residual {
		v, ok := getter(atom.Column)
		if !ok || !atom.Match(v) {
			return false
		}
	}

	return true
}
