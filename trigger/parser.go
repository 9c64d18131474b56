package trigger

import (
	"strconv"
	"strings"
	"text/scanner"

	"github.com/meteorhacks/dialog/dialogerr"
)

// Parse reads a trigger expression of the form
//
//	count > 3
//	sum(e) >= 100
//	avg(d) < 5.5
//
// COUNT takes no column; SUM/AVG/MIN/MAX require one in parens.
func Parse(expr string) (Aggregate, string, Comparator, float64, error) {
	var s scanner.Scanner
	s.Init(strings.NewReader(expr))
	s.Mode = scanner.ScanIdents | scanner.ScanInts | scanner.ScanFloats
	s.Error = func(*scanner.Scanner, string) {}

	tok := s.Scan()
	if tok != scanner.Ident {
		return 0, "", 0, 0, dialogerr.Parse("expected aggregate name in trigger expression: " + expr)
	}

	agg, err := parseAggregateName(s.TokenText())
	if err != nil {
		return 0, "", 0, 0, err
	}

	field := ""
	if agg != Count {
		if s.Peek() != '(' {
			return 0, "", 0, 0, dialogerr.Parse("expected '(' after aggregate name: " + expr)
		}
		s.Scan() // consume '('

		tok = s.Scan()
		if tok != scanner.Ident {
			return 0, "", 0, 0, dialogerr.Parse("expected column name inside aggregate: " + expr)
		}
		field = s.TokenText()

		if s.Scan() != ')' {
			return 0, "", 0, 0, dialogerr.Parse("expected ')' after aggregate column: " + expr)
		}
	}

	cmp, err := parseComparator(&s)
	if err != nil {
		return 0, "", 0, 0, err
	}

	neg := false
	tok = s.Scan()
	if tok == '-' {
		neg = true
		tok = s.Scan()
	}
	if tok != scanner.Int && tok != scanner.Float {
		return 0, "", 0, 0, dialogerr.Parse("expected numeric threshold in trigger expression: " + expr)
	}
	threshold, err := strconv.ParseFloat(s.TokenText(), 64)
	if err != nil {
		return 0, "", 0, 0, dialogerr.Parse("invalid threshold in trigger expression: " + expr)
	}
	if neg {
		threshold = -threshold
	}

	if s.Scan() != scanner.EOF {
		return 0, "", 0, 0, dialogerr.Parse("unexpected trailing tokens in trigger expression: " + expr)
	}

	return agg, field, cmp, threshold, nil
}

func parseAggregateName(name string) (Aggregate, error) {
	switch strings.ToUpper(name) {
	case "COUNT":
		return Count, nil
	case "SUM":
		return Sum, nil
	case "AVG":
		return Avg, nil
	case "MIN":
		return Min, nil
	case "MAX":
		return Max, nil
	default:
		return 0, dialogerr.Parse("unknown aggregate: " + name)
	}
}

func parseComparator(s *scanner.Scanner) (Comparator, error) {
	tok := s.Scan()
	switch tok {
	case '>':
		if s.Peek() == '=' {
			s.Scan()
			return GE, nil
		}
		return GT, nil
	case '<':
		if s.Peek() == '=' {
			s.Scan()
			return LE, nil
		}
		return LT, nil
	case '=':
		return EQ, nil
	case '!':
		if s.Peek() == '=' {
			s.Scan()
			return NE, nil
		}
		return 0, dialogerr.Parse("expected '=' after '!'")
	default:
		return 0, dialogerr.Parse("expected comparator in trigger expression")
	}
}
