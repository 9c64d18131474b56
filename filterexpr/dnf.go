package filterexpr

// DNF rewrites an Expr into disjunctive normal form: a slice of
// conjunctions, each a slice of Atoms that must all hold. The planner
// uses this to pick, per conjunct, the most selective indexable clause
// to seed postings, re-checking the rest as residuals.
func DNF(e Expr) [][]Atom {
	switch v := e.(type) {
	case AtomExpr:
		return [][]Atom{{v.Atom}}

	case OrExpr:
		return append(DNF(v.Left), DNF(v.Right)...)

	case AndExpr:
		left := DNF(v.Left)
		right := DNF(v.Right)
		out := make([][]Atom, 0, len(left)*len(right))
		for _, l := range left {
			for _, r := range right {
				conj := make([]Atom, 0, len(l)+len(r))
				conj = append(conj, l...)
				conj = append(conj, r...)
				out = append(out, conj)
			}
		}
		return out

	default:
		return nil
	}
}
