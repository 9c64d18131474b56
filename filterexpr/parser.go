package filterexpr

import (
	"strconv"
	"strings"
	"text/scanner"

	"github.com/meteorhacks/dialog/dialogerr"
)

// Parse compiles a predicate expression, e.g. "d > 5 AND e <= 100", into
// an Expr tree. AND binds tighter than OR; parentheses may group
// sub-expressions.
func Parse(src string) (Expr, error) {
	p := &parser{}
	p.s.Init(strings.NewReader(src))
	p.s.Mode = scanner.ScanIdents | scanner.ScanFloats | scanner.ScanInts | scanner.ScanStrings
	p.next()

	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.tok != scanner.EOF {
		return nil, dialogerr.Parse("unexpected trailing input in filter expression: " + src)
	}
	return expr, nil
}

type parser struct {
	s   scanner.Scanner
	tok rune
	txt string
}

func (p *parser) next() {
	p.tok = p.s.Scan()
	p.txt = p.s.TokenText()
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for p.isKeyword("OR") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = OrExpr{Left: left, Right: right}
	}

	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for p.isKeyword("AND") {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = AndExpr{Left: left, Right: right}
	}

	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.tok == '(' {
		p.next()
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.tok != ')' {
			return nil, dialogerr.Parse("expected ')' in filter expression")
		}
		p.next()
		return expr, nil
	}

	return p.parseAtom()
}

func (p *parser) parseAtom() (Expr, error) {
	if p.tok != scanner.Ident {
		return nil, dialogerr.Parse("expected column name in filter expression, got " + p.txt)
	}
	column := p.txt
	p.next()

	op, err := p.parseOp()
	if err != nil {
		return nil, err
	}

	lit, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}

	return AtomExpr{Atom: Atom{Column: column, Op: op, Literal: lit}}, nil
}

func (p *parser) parseOp() (Op, error) {
	switch p.tok {
	case '=':
		p.next()
		return Eq, nil
	case '!':
		p.next()
		if p.tok != '=' {
			return 0, dialogerr.Parse("expected '=' after '!' in filter expression")
		}
		p.next()
		return Neq, nil
	case '<':
		p.next()
		if p.tok == '=' {
			p.next()
			return Lte, nil
		}
		return Lt, nil
	case '>':
		p.next()
		if p.tok == '=' {
			p.next()
			return Gte, nil
		}
		return Gt, nil
	default:
		return 0, dialogerr.Parse("expected comparison operator in filter expression, got " + p.txt)
	}
}

func (p *parser) parseLiteral() (Literal, error) {
	switch {
	case p.tok == scanner.String:
		s, err := strconv.Unquote(p.txt)
		if err != nil {
			s = strings.Trim(p.txt, `"`)
		}
		p.next()
		return Literal{Kind: LiteralString, Str: s}, nil

	case p.tok == '-':
		p.next()
		lit, err := p.parseLiteral()
		if err != nil {
			return Literal{}, err
		}
		if lit.Kind != LiteralNumber {
			return Literal{}, dialogerr.Parse("expected numeric literal after '-'")
		}
		lit.Num = -lit.Num
		return lit, nil

	case p.tok == scanner.Int || p.tok == scanner.Float:
		n, err := strconv.ParseFloat(p.txt, 64)
		if err != nil {
			return Literal{}, dialogerr.Parse("invalid numeric literal: " + p.txt)
		}
		p.next()
		return Literal{Kind: LiteralNumber, Num: n}, nil

	case p.tok == scanner.Ident && (p.txt == "true" || p.txt == "false"):
		b := p.txt == "true"
		p.next()
		return Literal{Kind: LiteralBool, Bool: b}, nil

	default:
		return Literal{}, dialogerr.Parse("expected literal in filter expression, got " + p.txt)
	}
}

func (p *parser) isKeyword(kw string) bool {
	return p.tok == scanner.Ident && strings.EqualFold(p.txt, kw)
}
