package tagexpr

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokAtom
	tokAnd
	tokOr
	tokNot
	tokLParen
	tokRParen
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of expression"
	case tokAtom:
		return "tag"
	case tokAnd:
		return "'&'"
	case tokOr:
		return "'|'"
	case tokNot:
		return "'!'"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	default:
		return "token"
	}
}

type token struct {
	kind tokenKind
	text string
	pos  int
}

// lex splits expr into tokens. Whitespace only separates tokens.
func lex(expr string) []token {
	var toks []token
	i := 0
	for i < len(expr) {
		r, size := utf8.DecodeRuneInString(expr[i:])
		if unicode.IsSpace(r) {
			i += size
			continue
		}
		switch r {
		case '&':
			toks = append(toks, token{kind: tokAnd, text: "&", pos: i})
		case '|':
			toks = append(toks, token{kind: tokOr, text: "|", pos: i})
		case '!':
			toks = append(toks, token{kind: tokNot, text: "!", pos: i})
		case '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
		case ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
		default:
			start := i
			for i < len(expr) {
				r, size = utf8.DecodeRuneInString(expr[i:])
				if unicode.IsSpace(r) || strings.ContainsRune("&|!()", r) {
					break
				}
				i += size
			}
			toks = append(toks, token{kind: tokAtom, text: expr[start:i], pos: start})
			continue
		}
		i += size
	}
	return append(toks, token{kind: tokEOF, pos: len(expr)})
}

type parser struct {
	expr string
	toks []token
	pos  int
}

// Parse compiles expr into an expression tree.
//
// Grammar, lowest precedence first:
//
//	or    = and { "|" and }
//	and   = unary { "&" unary }
//	unary = "!" unary | primary
//	primary = atom | "(" or ")"
func Parse(expr string) (Node, error) {
	p := &parser{expr: expr, toks: lex(expr)}
	if p.peek().kind == tokEOF {
		return nil, p.errorf(p.peek(), "empty expression")
	}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		if t.kind == tokRParen {
			return nil, p.errorf(t, "unbalanced ')'")
		}
		return nil, p.errorf(t, "unexpected "+t.kind.String())
	}
	return node, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// package-level expressions.
func MustParse(expr string) Node {
	n, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return n
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(t token, msg string) error {
	return &ParseError{Expr: p.expr, Pos: t.pos, Msg: msg}
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Or{L: left, R: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &And{L: left, R: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Node, error) {
	if p.peek().kind == tokNot {
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Not{X: x}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	t := p.next()
	switch t.kind {
	case tokAtom:
		return p.parseAtom(t)
	case tokLParen:
		if p.peek().kind == tokRParen {
			return nil, p.errorf(p.peek(), "empty parentheses")
		}
		x, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, p.errorf(t, "unbalanced '('")
		}
		return x, nil
	case tokEOF:
		return nil, p.errorf(t, "expected tag, found end of expression")
	default:
		return nil, p.errorf(t, "expected tag, found "+t.kind.String())
	}
}

func (p *parser) parseAtom(t token) (Node, error) {
	text := t.text
	if text == "*" {
		return &Atom{Wildcard: WildcardAny}, nil
	}
	n := strings.Count(text, "*")
	switch {
	case n == 0:
		return &Atom{Literal: text}, nil
	case n > 1:
		return nil, p.errorf(t, "at most one '*' allowed in "+text)
	case strings.HasPrefix(text, "*"):
		return &Atom{Literal: text[1:], Wildcard: WildcardSuffix}, nil
	case strings.HasSuffix(text, "*"):
		return &Atom{Literal: text[:len(text)-1], Wildcard: WildcardPrefix}, nil
	default:
		return nil, p.errorf(t, "'*' must start or end "+text)
	}
}
