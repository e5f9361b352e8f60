package tagexpr

import "strings"

// Node is an evaluable expression tree node.
type Node interface {
	// Eval reports whether the tag set satisfies the node.
	Eval(tags map[string]struct{}) bool
	// String renders the node in canonical, fully parenthesised form.
	String() string
}

// WildcardKind tells how an atom's literal is matched against a tag.
type WildcardKind int

const (
	// WildcardNone matches the literal exactly.
	WildcardNone WildcardKind = iota
	// WildcardPrefix matches tags starting with the literal ("prefix*").
	WildcardPrefix
	// WildcardSuffix matches tags ending with the literal ("*suffix").
	WildcardSuffix
	// WildcardAny matches any tag ("*").
	WildcardAny
)

// String returns the name of the wildcard kind.
func (k WildcardKind) String() string {
	switch k {
	case WildcardNone:
		return "exact"
	case WildcardPrefix:
		return "prefix"
	case WildcardSuffix:
		return "suffix"
	case WildcardAny:
		return "any"
	default:
		return "unknown"
	}
}

// Atom is a single tag pattern. Literal never contains the '*'.
type Atom struct {
	Literal  string
	Wildcard WildcardKind
}

// Match reports whether a single tag matches the atom.
func (a *Atom) Match(tag string) bool {
	switch a.Wildcard {
	case WildcardAny:
		return true
	case WildcardPrefix:
		return strings.HasPrefix(tag, a.Literal)
	case WildcardSuffix:
		return strings.HasSuffix(tag, a.Literal)
	default:
		return tag == a.Literal
	}
}

// Eval reports whether any tag in the set matches the atom.
func (a *Atom) Eval(tags map[string]struct{}) bool {
	if a.Wildcard == WildcardNone {
		_, ok := tags[a.Literal]
		return ok
	}
	for tag := range tags {
		if a.Match(tag) {
			return true
		}
	}
	return false
}

func (a *Atom) String() string {
	switch a.Wildcard {
	case WildcardAny:
		return "*"
	case WildcardPrefix:
		return a.Literal + "*"
	case WildcardSuffix:
		return "*" + a.Literal
	default:
		return a.Literal
	}
}

// Not negates its operand.
type Not struct {
	X Node
}

// Eval implements Node.
func (n *Not) Eval(tags map[string]struct{}) bool { return !n.X.Eval(tags) }

func (n *Not) String() string { return "!" + n.X.String() }

// And is satisfied when both operands are.
type And struct {
	L, R Node
}

// Eval implements Node. R is not evaluated when L is false.
func (n *And) Eval(tags map[string]struct{}) bool { return n.L.Eval(tags) && n.R.Eval(tags) }

func (n *And) String() string { return "(" + n.L.String() + "&" + n.R.String() + ")" }

// Or is satisfied when either operand is.
type Or struct {
	L, R Node
}

// Eval implements Node. R is not evaluated when L is true.
func (n *Or) Eval(tags map[string]struct{}) bool { return n.L.Eval(tags) || n.R.Eval(tags) }

func (n *Or) String() string { return "(" + n.L.String() + "|" + n.R.String() + ")" }
