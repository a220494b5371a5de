// Package lock hands out non-blocking, per-resource edit permits.
//
// A permit is keyed by (kind, id). While a permit is outstanding every other
// Acquire for the same key fails immediately with ErrBusy; callers are expected
// to surface that as a retryable conflict instead of waiting.
package lock

import (
	"errors"
	"sync"
)

// ErrBusy is returned by Acquire when the key already has an outstanding permit.
var ErrBusy = errors.New("lock: resource busy")

// Kind names an entity family, e.g. "assignment".
type Kind string

type key struct {
	kind Kind
	id   string
}

// Coordinator tracks outstanding permits. The zero value is not usable; use New.
type Coordinator struct {
	mu   sync.Mutex
	held map[key]uint64
	gen  uint64
}

func New() *Coordinator {
	return &Coordinator{held: make(map[key]uint64)}
}

// Permit is proof of exclusive edit rights for one key.
type Permit struct {
	c    *Coordinator
	k    key
	gen  uint64
	once sync.Once
}

// Acquire returns a permit for (kind, id) or ErrBusy. It never blocks beyond the
// coordinator's own critical section.
func (c *Coordinator) Acquire(kind Kind, id string) (*Permit, error) {
	k := key{kind: kind, id: id}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, busy := c.held[k]; busy {
		return nil, ErrBusy
	}
	c.gen++
	c.held[k] = c.gen
	return &Permit{c: c, k: k, gen: c.gen}, nil
}

// Release gives the permit back. Calling it more than once is a no-op, and a
// permit never releases a later generation issued for the same key.
func (p *Permit) Release() {
	if p == nil {
		return
	}
	p.once.Do(func() {
		p.c.mu.Lock()
		defer p.c.mu.Unlock()
		if g, ok := p.c.held[p.k]; ok && g == p.gen {
			delete(p.c.held, p.k)
		}
	})
}

// Do runs fn while holding the permit for (kind, id). The permit is released on
// return and on panic.
func (c *Coordinator) Do(kind Kind, id string, fn func() error) error {
	p, err := c.Acquire(kind, id)
	if err != nil {
		return err
	}
	defer p.Release()
	return fn()
}

// Held reports whether (kind, id) currently has an outstanding permit.
func (c *Coordinator) Held(kind Kind, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.held[key{kind: kind, id: id}]
	return ok
}

// Outstanding is the number of permits not yet released.
func (c *Coordinator) Outstanding() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.held)
}
