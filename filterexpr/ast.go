// Package filterexpr implements the predicate language described only by
// contract in the system's component design: conjunctions and
// disjunctions of atomic column-operator-literal comparisons. No grammar
// or expression-evaluation library appears anywhere in the retrieval
// pack, so this is a small hand-rolled recursive-descent parser over
// text/scanner tokens.
package filterexpr

import "github.com/meteorhacks/dialog/schema"

// Op is an atomic comparison operator.
type Op int

const (
	Eq Op = iota
	Neq
	Lt
	Lte
	Gt
	Gte
)

func (o Op) String() string {
	switch o {
	case Eq:
		return "="
	case Neq:
		return "!="
	case Lt:
		return "<"
	case Lte:
		return "<="
	case Gt:
		return ">"
	case Gte:
		return ">="
	default:
		return "?"
	}
}

// Literal is a parsed constant: exactly one of the fields is valid,
// selected by Kind.
type LiteralKind int

const (
	LiteralNumber LiteralKind = iota
	LiteralString
	LiteralBool
)

type Literal struct {
	Kind LiteralKind
	Num  float64
	Str  string
	Bool bool
}

// Atom is a single column ⊗ literal comparison.
type Atom struct {
	Column  string
	Op      Op
	Literal Literal
}

// Match evaluates the atom against a decoded column value.
func (a Atom) Match(v schema.Value) bool {
	if v.Type == schema.String {
		if a.Literal.Kind != LiteralString {
			return false
		}
		return compareStrings(v.S, a.Literal.Str, a.Op)
	}

	if v.Type == schema.Bool {
		if a.Literal.Kind != LiteralBool {
			return false
		}
		return compareBools(v.B, a.Literal.Bool, a.Op)
	}

	if a.Literal.Kind != LiteralNumber {
		return false
	}
	return compareNumbers(v.AsFloat64(), a.Literal.Num, a.Op)
}

func compareStrings(a, b string, op Op) bool {
	switch op {
	case Eq:
		return a == b
	case Neq:
		return a != b
	case Lt:
		return a < b
	case Lte:
		return a <= b
	case Gt:
		return a > b
	case Gte:
		return a >= b
	}
	return false
}

func compareBools(a, b bool, op Op) bool {
	switch op {
	case Eq:
		return a == b
	case Neq:
		return a != b
	default:
		return false
	}
}

func compareNumbers(a, b float64, op Op) bool {
	switch op {
	case Eq:
		return a == b
	case Neq:
		return a != b
	case Lt:
		return a < b
	case Lte:
		return a <= b
	case Gt:
		return a > b
	case Gte:
		return a >= b
	}
	return false
}

// Expr is a parsed predicate tree.
type Expr interface {
	// Eval evaluates the predicate against a record's decoded columns.
	Eval(get func(column string) (schema.Value, bool)) bool
}

type AtomExpr struct{ Atom Atom }

func (e AtomExpr) Eval(get func(string) (schema.Value, bool)) bool {
	v, ok := get(e.Atom.Column)
	if !ok {
		return false
	}
	return e.Atom.Match(v)
}

type AndExpr struct{ Left, Right Expr }

func (e AndExpr) Eval(get func(string) (schema.Value, bool)) bool {
	return e.Left.Eval(get) && e.Right.Eval(get)
}

type OrExpr struct{ Left, Right Expr }

func (e OrExpr) Eval(get func(string) (schema.Value, bool)) bool {
	return e.Left.Eval(get) || e.Right.Eval(get)
}
