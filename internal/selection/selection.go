// Package selection implements the sample-selection expression grammar:
//
//	expr   := '*' | clause | '(' expr ')' | 'not' expr | expr 'and' expr | expr 'or' expr
//	clause := 'sample:' id | 'group:' id
//
// Precedence: not > and > or, left-associative. Parse returns an AST;
// Compile turns it into a Predicate — a SQL WHERE fragment plus positional
// parameters — so the planner folds selection and aggregation into one
// round trip.
package selection

import (
	"fmt"
	"strings"

	"varda/internal/verr"
)

// Kind enumerates AST node kinds.
type Kind int

const (
	KindWildcard Kind = iota
	KindSample
	KindGroup
	KindNot
	KindAnd
	KindOr
)

// Expr is a node in the parsed selection AST.
type Expr struct {
	Kind     Kind
	ID       string // for KindSample/KindGroup
	Children []*Expr
}

// Parse tokenizes and parses a selection expression string.
func Parse(input string) (*Expr, error) {
	toks, err := tokenize(input)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, verr.New(verr.BadRequest, "selection: unexpected trailing input at token %d", p.pos)
	}
	if expr.Kind == KindNot && expr.Children[0].Kind == KindWildcard {
		return nil, verr.New(verr.BadRequest, "selection: 'not *' as a complete expression selects nothing and is invalid (InvalidSelection)")
	}
	return expr, nil
}

// --- tokenizer ---

type tokenKind int

const (
	tokWildcard tokenKind = iota
	tokSample
	tokGroup
	tokNot
	tokAnd
	tokOr
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	id   string
}

func tokenize(input string) ([]token, error) {
	var toks []token
	fields := splitRespectingParens(input)
	for _, f := range fields {
		switch {
		case f == "*":
			toks = append(toks, token{kind: tokWildcard})
		case f == "(":
			toks = append(toks, token{kind: tokLParen})
		case f == ")":
			toks = append(toks, token{kind: tokRParen})
		case strings.EqualFold(f, "not"):
			toks = append(toks, token{kind: tokNot})
		case strings.EqualFold(f, "and"):
			toks = append(toks, token{kind: tokAnd})
		case strings.EqualFold(f, "or"):
			toks = append(toks, token{kind: tokOr})
		case strings.HasPrefix(f, "sample:"):
			toks = append(toks, token{kind: tokSample, id: strings.TrimPrefix(f, "sample:")})
		case strings.HasPrefix(f, "group:"):
			toks = append(toks, token{kind: tokGroup, id: strings.TrimPrefix(f, "group:")})
		default:
			return nil, verr.New(verr.BadRequest, "selection: unrecognized token %q", f)
		}
	}
	return toks, nil
}

// splitRespectingParens tokenizes on whitespace while treating '(' and ')'
// as standalone tokens even when not whitespace-separated from a clause.
func splitRespectingParens(input string) []string {
	var out []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for _, r := range input {
		switch r {
		case '(', ')':
			flush()
			out = append(out, string(r))
		case ' ', '\t', '\n':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}

// --- recursive-descent parser, precedence: not > and > or ---

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) parseOr() (*Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != tokOr {
			return left, nil
		}
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Expr{Kind: KindOr, Children: []*Expr{left, right}}
	}
}

func (p *parser) parseAnd() (*Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != tokAnd {
			return left, nil
		}
		p.pos++
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &Expr{Kind: KindAnd, Children: []*Expr{left, right}}
	}
}

func (p *parser) parseNot() (*Expr, error) {
	t, ok := p.peek()
	if ok && t.kind == tokNot {
		p.pos++
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Expr{Kind: KindNot, Children: []*Expr{inner}}, nil
	}
	return p.parseAtom()
}

func (p *parser) parseAtom() (*Expr, error) {
	t, ok := p.peek()
	if !ok {
		return nil, verr.New(verr.BadRequest, "selection: unexpected end of expression")
	}
	switch t.kind {
	case tokWildcard:
		p.pos++
		return &Expr{Kind: KindWildcard}, nil
	case tokSample:
		p.pos++
		return &Expr{Kind: KindSample, ID: t.id}, nil
	case tokGroup:
		p.pos++
		return &Expr{Kind: KindGroup, ID: t.id}, nil
	case tokLParen:
		p.pos++
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		closing, ok := p.peek()
		if !ok || closing.kind != tokRParen {
			return nil, verr.New(verr.BadRequest, "selection: missing closing parenthesis")
		}
		p.pos++
		return inner, nil
	default:
		return nil, verr.New(verr.BadRequest, "selection: unexpected token in atom position")
	}
}

// Predicate is a SQL WHERE fragment over a samples table, plus the
// positional parameters it references. Bare sample:<id> clauses are exposed
// separately (ExplicitSampleIDs) because the frequency engine's "covered"
// computation treats them specially.
type Predicate struct {
	SQL               string
	Args              []interface{}
	ExplicitSampleIDs []string
}

// Compile turns an Expr into a Predicate over a samples table exposing
// columns id, active, coverage_profile, and a membership table
// sample_groups(sample_id, group_id).
func Compile(e *Expr) Predicate {
	var args []interface{}
	var explicit []string
	sql := compileNode(e, &args, &explicit)
	return Predicate{SQL: sql, Args: args, ExplicitSampleIDs: dedupe(explicit)}
}

func compileNode(e *Expr, args *[]interface{}, explicit *[]string) string {
	switch e.Kind {
	case KindWildcard:
		return "(active AND coverage_profile)"
	case KindSample:
		*explicit = append(*explicit, e.ID)
		*args = append(*args, e.ID)
		return fmt.Sprintf("(id = $%d)", len(*args))
	case KindGroup:
		*args = append(*args, e.ID)
		return fmt.Sprintf("(id IN (SELECT sample_id FROM sample_groups WHERE group_id = $%d))", len(*args))
	case KindNot:
		return "(NOT " + compileNode(e.Children[0], args, explicit) + ")"
	case KindAnd:
		return "(" + compileNode(e.Children[0], args, explicit) + " AND " + compileNode(e.Children[1], args, explicit) + ")"
	case KindOr:
		return "(" + compileNode(e.Children[0], args, explicit) + " OR " + compileNode(e.Children[1], args, explicit) + ")"
	default:
		return "FALSE"
	}
}

func dedupe(ids []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
