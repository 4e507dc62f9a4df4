package zmailbox

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

type cachedObject[P comparable, V any] struct {
	params P
	value  V
}

// objectCache is a small LRU of individually fetched items, keyed by id and
// remembering the parameters each item was fetched with.
type objectCache[P comparable, V any] struct {
	name    string
	entries *lru.Cache[string, *cachedObject[P, V]]
}

func newObjectCache[P comparable, V any](name string, size int) *objectCache[P, V] {
	entries, err := lru.New[string, *cachedObject[P, V]](max(size, 1))
	if err != nil {
		panic(err)
	}
	return &objectCache[P, V]{name: name, entries: entries}
}

// get returns the cached object for id. ok is false when nothing is cached
// or it was fetched with different parameters.
func (c *objectCache[P, V]) get(id string, params P) (v V, ok bool) {
	e, found := c.entries.Get(id)
	ok = found && e.params == params
	observeLookup(c.name, ok)
	if !ok {
		return v, false
	}
	return e.value, true
}

// peek returns the cached object regardless of parameters, without
// updating recency.
func (c *objectCache[P, V]) peek(id string) (v V, ok bool) {
	e, found := c.entries.Peek(id)
	if !found {
		return v, false
	}
	return e.value, true
}

func (c *objectCache[P, V]) put(id string, params P, v V) {
	c.entries.Add(id, &cachedObject[P, V]{params: params, value: v})
}

// replace swaps the cached object for id with fn's result, keeping its
// parameters and recency. Values handed out earlier are left alone.
func (c *objectCache[P, V]) replace(id string, fn func(V) V) {
	if e, ok := c.entries.Peek(id); ok {
		e.value = fn(e.value)
	}
}

func (c *objectCache[P, V]) remove(id string) {
	c.entries.Remove(id)
}

func (c *objectCache[P, V]) purge() {
	c.entries.Purge()
}

func (c *objectCache[P, V]) len() int {
	return c.entries.Len()
}
