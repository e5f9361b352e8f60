// Package tagexpr parses and evaluates boolean tag expressions.
//
// An expression combines tag atoms with "|" (or), "&" (and) and "!" (not),
// in increasing order of precedence, with parentheses for grouping:
//
//	(grenoble|lyon)&!admin
//	grp_*&*_admin
//	*
//
// An atom is an exact tag, a prefix pattern ("grp_*"), a suffix pattern
// ("*admin") or the bare "*" which matches any tag. Atoms are satisfied by a
// tag set when at least one tag in the set matches, so an empty tag set
// satisfies no atom and every negated atom.
//
// Usage:
//
//	node, err := tagexpr.Parse("vip&!banned")
//	if err != nil {
//		return err // *tagexpr.ParseError, errors.Is(err, tagexpr.ErrParse)
//	}
//	if node.Eval(tags) {
//		// deliver
//	}
package tagexpr
