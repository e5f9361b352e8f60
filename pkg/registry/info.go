package registry

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/expr-lang/expr"
	"golang.org/x/text/cases"
)

// SetInfo stores value under key on the connection.
func (r *Registry) SetInfo(id, key, value string) error {
	return r.withConn(id, func(c *Conn) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.info[key] = value
		return nil
	})
}

// GetInfo returns the value stored under key.
func (r *Registry) GetInfo(id, key string) (string, bool) {
	var (
		v  string
		ok bool
	)
	_ = r.withConn(id, func(c *Conn) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		v, ok = c.info[key]
		return nil
	})
	return v, ok
}

// HasInfo reports whether key is stored on the connection.
func (r *Registry) HasInfo(id, key string) bool {
	_, ok := r.GetInfo(id, key)
	return ok
}

// DeleteInfo removes key and reports whether it was present.
func (r *Registry) DeleteInfo(id, key string) bool {
	removed := false
	_ = r.withConn(id, func(c *Conn) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.info[key]; ok {
			delete(c.info, key)
			removed = true
		}
		return nil
	})
	return removed
}

// ClearInfo removes every stored key from the connection.
func (r *Registry) ClearInfo(id string) error {
	return r.withConn(id, func(c *Conn) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		clear(c.info)
		return nil
	})
}

// InfoKeys returns the sorted stored keys.
func (r *Registry) InfoKeys(id string) []string {
	var keys []string
	_ = r.withConn(id, func(c *Conn) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		keys = slices.Sorted(maps.Keys(c.info))
		return nil
	})
	return keys
}

// AllInfo returns a copy of everything stored on the connection, or nil if
// it is unknown.
func (r *Registry) AllInfo(id string) map[string]string {
	var out map[string]string
	_ = r.withConn(id, func(c *Conn) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		out = maps.Clone(c.info)
		return nil
	})
	return out
}

// Search operators.
const (
	OpEq        = "eq"
	OpNeq       = "neq"
	OpPrefix    = "prefix"
	OpSuffix    = "suffix"
	OpContains  = "contains"
	OpIEq       = "ieq"
	OpIPrefix   = "iprefix"
	OpISuffix   = "isuffix"
	OpIContains = "icontains"
	OpRegex     = "regex"
	OpExpr      = "expr"
)

// Operators lists the supported search operators.
var Operators = []string{
	OpEq, OpNeq, OpPrefix, OpSuffix, OpContains,
	OpIEq, OpIPrefix, OpISuffix, OpIContains,
	OpRegex, OpExpr,
}

type infoMatcher func(id, route, key, value string) (bool, error)

// SearchInfo returns the sorted ids of connections that store key and whose
// value satisfies op against value. For OpExpr, value is a boolean
// expression over key, value, id and route. route limits the candidates
// when not empty.
func (r *Registry) SearchInfo(key, op, value, route string) ([]string, error) {
	match, err := compileMatcher(op, value)
	if err != nil {
		return nil, err
	}

	type hit struct{ id, route, value string }
	r.mu.RLock()
	var hits []hit
	for _, c := range r.candidatesLocked(route) {
		c.mu.Lock()
		v, ok := c.info[key]
		c.mu.Unlock()
		if ok {
			hits = append(hits, hit{id: c.ID(), route: c.route, value: v})
		}
	}
	r.mu.RUnlock()

	out := make([]string, 0, len(hits))
	for _, h := range hits {
		ok, err := match(h.id, h.route, key, h.value)
		if err != nil {
			return nil, fmt.Errorf("search %s: %w", op, err)
		}
		if ok {
			out = append(out, h.id)
		}
	}
	slices.Sort(out)
	return out, nil
}

func compileMatcher(op, want string) (infoMatcher, error) {
	plain := func(fn func(v string) bool) infoMatcher {
		return func(_, _, _, v string) (bool, error) { return fn(v), nil }
	}
	fold := cases.Fold()
	folded := fold.String(want)

	switch op {
	case OpEq:
		return plain(func(v string) bool { return v == want }), nil
	case OpNeq:
		return plain(func(v string) bool { return v != want }), nil
	case OpPrefix:
		return plain(func(v string) bool { return strings.HasPrefix(v, want) }), nil
	case OpSuffix:
		return plain(func(v string) bool { return strings.HasSuffix(v, want) }), nil
	case OpContains:
		return plain(func(v string) bool { return strings.Contains(v, want) }), nil
	case OpIEq:
		return plain(func(v string) bool { return fold.String(v) == folded }), nil
	case OpIPrefix:
		return plain(func(v string) bool { return strings.HasPrefix(fold.String(v), folded) }), nil
	case OpISuffix:
		return plain(func(v string) bool { return strings.HasSuffix(fold.String(v), folded) }), nil
	case OpIContains:
		return plain(func(v string) bool { return strings.Contains(fold.String(v), folded) }), nil
	case OpRegex:
		re, err := regexp.Compile(want)
		if err != nil {
			return nil, fmt.Errorf("%w: regex: %v", ErrInvalidOperator, err)
		}
		return plain(re.MatchString), nil
	case OpExpr:
		return compileExprMatcher(want)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidOperator, op)
	}
}

func searchEnv(id, route, key, value string) map[string]any {
	return map[string]any{"id": id, "route": route, "key": key, "value": value}
}

func compileExprMatcher(src string) (infoMatcher, error) {
	program, err := expr.Compile(src, expr.Env(searchEnv("", "", "", "")), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("%w: expr: %v", ErrInvalidOperator, err)
	}
	return func(id, route, key, value string) (bool, error) {
		out, err := expr.Run(program, searchEnv(id, route, key, value))
		if err != nil {
			return false, fmt.Errorf("%w: expr: %v", ErrInvalidOperator, err)
		}
		b, _ := out.(bool)
		return b, nil
	}, nil
}
