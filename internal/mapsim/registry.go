// Package mapsim is a stand-in for the simulation side of the bridge: the
// order mapping service, the control endpoint and the completion notifier.
// It is used by the simulator binary and by end-to-end tests.
package mapsim

import (
	"fmt"
	"strings"
	"sync"

	"github.com/whr-sorting/simbridge/core/protocol"
)

// Entry is one registered order.
type Entry struct {
	ID        string
	Crate     int
	Total     int
	Processed int
	Priority  int
	Products  []string
}

func (e Entry) label() string {
	if e.Priority == 1 {
		return "FAST"
	}
	return "NORMAL"
}

// Registry holds the active orders in registration order.
type Registry struct {
	mu    sync.Mutex
	order []string
	byID  map[string]*Entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Entry)}
}

// Register adds or replaces an order. Product names are trimmed.
func (r *Registry) Register(a protocol.Assignment) Entry {
	products := make([]string, 0, len(a.Products))
	for _, p := range a.Products {
		products = append(products, strings.TrimSpace(p))
	}
	e := &Entry{ID: a.ShortID, Crate: a.Crate, Total: a.TotalProducts, Priority: a.Priority, Products: products}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[e.ID]; !ok {
		r.order = append(r.order, e.ID)
	}
	r.byID[e.ID] = e
	return *e
}

// Active returns the orders that still have products to process.
func (r *Registry) Active() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Entry
	for _, id := range r.order {
		e := r.byID[id]
		if e.Processed < e.Total {
			out = append(out, *e)
		}
	}
	return out
}

// Get returns a copy of the entry for id.
func (r *Registry) Get(id string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Process counts one processed product. completed is true once every
// product of the order has been processed.
func (r *Registry) Process(id string) (e Entry, completed, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byID[id]
	if !ok {
		return Entry{}, false, false
	}
	cur.Processed++
	return *cur, cur.Processed >= cur.Total, true
}

// Remove drops id and reports whether it was present.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return false
	}
	delete(r.byID, id)
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of registered orders.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// Status renders the STATUS reply.
func (r *Registry) Status() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.order) == 0 {
		return "No active orders"
	}
	lines := []string{fmt.Sprintf("Active Orders: %d", len(r.order))}
	for _, id := range r.order {
		e := r.byID[id]
		lines = append(lines, fmt.Sprintf("%s: Crate %d, %d/%d (%s) - %s", e.ID, e.Crate, e.Processed, e.Total, e.label(), strings.Join(e.Products, ", ")))
	}
	return strings.Join(lines, "\n")
}
