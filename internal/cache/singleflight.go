package cache

import "sync"

// call tracks one in-flight computation.
type call[T any] struct {
	wg  sync.WaitGroup
	val T
	err error
}

// Group de-duplicates concurrent work keyed by token address: while one
// caller performs the external calls for an uncached token, later callers
// for the same key wait and share the result instead of repeating the work.
type Group[T any] struct {
	mu    sync.Mutex
	calls map[string]*call[T]
}

// NewGroup creates an empty single-flight group.
func NewGroup[T any]() *Group[T] {
	return &Group[T]{calls: make(map[string]*call[T])}
}

// Do runs fn for key unless an identical call is already in flight, in which
// case it waits for that call and returns its result.
func (g *Group[T]) Do(key string, fn func() (T, error)) (T, error) {
	g.mu.Lock()
	if c, ok := g.calls[key]; ok {
		g.mu.Unlock()
		c.wg.Wait()
		return c.val, c.err
	}

	c := &call[T]{}
	c.wg.Add(1)
	g.calls[key] = c
	g.mu.Unlock()

	c.val, c.err = fn()

	g.mu.Lock()
	delete(g.calls, key)
	g.mu.Unlock()
	c.wg.Done()

	return c.val, c.err
}
