// Package identity owns the process-wide identity cell and the resolver that
// maps the signed-in uid to its profile document.
package identity

import "sync"

// Cell is the single reactive holder of the current uid. Every component
// reads the uid from here; an empty string means anonymous.
type Cell struct {
	mu       sync.RWMutex
	uid      string
	next     int
	watchers map[int]func(uid string)
}

func NewCell() *Cell {
	return &Cell{watchers: make(map[int]func(string))}
}

// Current returns the current uid.
func (c *Cell) Current() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.uid
}

// Set changes the uid and, when it differs from the previous value, calls
// every watcher synchronously in no particular order.
func (c *Cell) Set(uid string) {
	c.mu.Lock()
	if c.uid == uid {
		c.mu.Unlock()
		return
	}
	c.uid = uid
	fns := make([]func(string), 0, len(c.watchers))
	for _, fn := range c.watchers {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(uid)
	}
}

// Watch registers fn for every later change. The returned func unregisters it.
func (c *Cell) Watch(fn func(uid string)) (cancel func()) {
	c.mu.Lock()
	id := c.next
	c.next++
	c.watchers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.watchers, id)
		c.mu.Unlock()
	}
}
