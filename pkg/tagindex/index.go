// Package tagindex maintains a bidirectional mapping between keys and tags.
//
// Both directions live under one lock, so a reader never sees a key listed
// under a tag the key no longer holds. A tag exists only while at least one
// key holds it.
package tagindex

import (
	"slices"
	"sync"
)

// Index maps keys to tag sets and tags to key sets. The zero value is not
// usable; construct with New.
type Index[K comparable] struct {
	byTag map[string]map[K]struct{}
	byKey map[K]map[string]struct{}
	mu    sync.RWMutex
}

// New creates an empty Index.
func New[K comparable]() *Index[K] {
	return &Index[K]{
		byTag: make(map[string]map[K]struct{}),
		byKey: make(map[K]map[string]struct{}),
	}
}

// Add gives tag to key. It reports whether the tag was newly added.
func (x *Index[K]) Add(key K, tag string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	tags := x.byKey[key]
	if tags == nil {
		tags = make(map[string]struct{})
		x.byKey[key] = tags
	}
	if _, ok := tags[tag]; ok {
		return false
	}
	tags[tag] = struct{}{}

	keys := x.byTag[tag]
	if keys == nil {
		keys = make(map[K]struct{})
		x.byTag[tag] = keys
	}
	keys[key] = struct{}{}
	return true
}

// Remove takes tag away from key. It reports whether key held the tag.
func (x *Index[K]) Remove(key K, tag string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.removeLocked(key, tag)
}

func (x *Index[K]) removeLocked(key K, tag string) bool {
	tags, ok := x.byKey[key]
	if !ok {
		return false
	}
	if _, ok := tags[tag]; !ok {
		return false
	}
	delete(tags, tag)
	if len(tags) == 0 {
		delete(x.byKey, key)
	}
	if keys, ok := x.byTag[tag]; ok {
		delete(keys, key)
		if len(keys) == 0 {
			delete(x.byTag, tag)
		}
	}
	return true
}

// RemoveAll drops every tag held by key and returns how many were removed.
func (x *Index[K]) RemoveAll(key K) int {
	x.mu.Lock()
	defer x.mu.Unlock()

	tags := x.byKey[key]
	n := 0
	for tag := range tags {
		if x.removeLocked(key, tag) {
			n++
		}
	}
	return n
}

// Has reports whether key holds tag.
func (x *Index[K]) Has(key K, tag string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.byKey[key][tag]
	return ok
}

// TagsOf returns the sorted tags held by key.
func (x *Index[K]) TagsOf(key K) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()

	tags := make([]string, 0, len(x.byKey[key]))
	for tag := range x.byKey[key] {
		tags = append(tags, tag)
	}
	slices.Sort(tags)
	return tags
}

// Tags returns every tag held by at least one key, sorted.
func (x *Index[K]) Tags() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()

	tags := make([]string, 0, len(x.byTag))
	for tag := range x.byTag {
		tags = append(tags, tag)
	}
	slices.Sort(tags)
	return tags
}

// KeysWith returns the keys holding tag, in no particular order.
func (x *Index[K]) KeysWith(tag string) []K {
	x.mu.RLock()
	defer x.mu.RUnlock()

	keys := make([]K, 0, len(x.byTag[tag]))
	for k := range x.byTag[tag] {
		keys = append(keys, k)
	}
	return keys
}

// Count returns the number of keys holding tag.
func (x *Index[K]) Count(tag string) int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.byTag[tag])
}

// Filter returns the candidates whose tag set satisfies match. The whole
// pass runs under a single read lock; match must not call back into the
// index. Candidates without tags are offered an empty set.
func (x *Index[K]) Filter(candidates []K, match func(tags map[string]struct{}) bool) []K {
	x.mu.RLock()
	defer x.mu.RUnlock()

	empty := map[string]struct{}{}
	var out []K
	for _, k := range candidates {
		tags := x.byKey[k]
		if tags == nil {
			tags = empty
		}
		if match(tags) {
			out = append(out, k)
		}
	}
	return out
}
