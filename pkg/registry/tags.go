package registry

import (
	"fmt"
	"slices"

	"github.com/getmockd/wshub/pkg/tagexpr"
)

// Tag attaches tag to the connection. Tagging twice is a no-op.
func (r *Registry) Tag(id, tag string) error {
	if tag == "" {
		return ErrInvalidTag
	}
	return r.withConn(id, func(c *Conn) error {
		if r.tags.Add(c, tag) {
			r.log.Debug("tag added", "id", id, "tag", tag)
		}
		return nil
	})
}

// Untag removes tag from the connection. Removing a tag the connection does
// not hold is a no-op.
func (r *Registry) Untag(id, tag string) error {
	if tag == "" {
		return ErrInvalidTag
	}
	return r.withConn(id, func(c *Conn) error {
		r.tags.Remove(c, tag)
		return nil
	})
}

// ClearTags removes every tag from the connection.
func (r *Registry) ClearTags(id string) error {
	return r.withConn(id, func(c *Conn) error {
		r.tags.RemoveAll(c)
		return nil
	})
}

// TagsOf returns the sorted tags of the connection, or nil if it is unknown.
func (r *Registry) TagsOf(id string) []string {
	var tags []string
	_ = r.withConn(id, func(c *Conn) error {
		tags = r.tags.TagsOf(c)
		return nil
	})
	return tags
}

// AllTags returns every tag held by at least one connection, sorted.
func (r *Registry) AllTags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tags.Tags()
}

// ClientsWithTag returns the sorted ids of connections holding tag.
func (r *Registry) ClientsWithTag(tag string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return ids(r.tags.KeysWith(tag))
}

// TagCount returns the number of connections holding tag.
func (r *Registry) TagCount(tag string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tags.Count(tag)
}

// ClientsByTagExpression returns the sorted ids of connections whose tags
// satisfy expr. Every live connection is a candidate, so a negated atom
// matches untagged connections.
func (r *Registry) ClientsByTagExpression(expr string) ([]string, error) {
	conns, err := r.matchExpression(expr, "")
	if err != nil {
		return nil, err
	}
	return ids(conns), nil
}

func (r *Registry) matchExpression(expr, route string) ([]*Conn, error) {
	node, err := tagexpr.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("tag expression: %w", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	candidates := r.candidatesLocked(route)
	return r.tags.Filter(candidates, node.Eval), nil
}

// candidatesLocked returns the connections on route, or all of them when
// route is empty. The caller holds r.mu.
func (r *Registry) candidatesLocked(route string) []*Conn {
	if route != "" {
		out := make([]*Conn, 0, len(r.routes[route]))
		for c := range r.routes[route] {
			out = append(out, c)
		}
		return out
	}
	out := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

func ids(conns []*Conn) []string {
	out := make([]string, len(conns))
	for i, c := range conns {
		out[i] = c.ID()
	}
	slices.Sort(out)
	return out
}
