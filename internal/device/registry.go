package device

import (
	"sync"
	"time"
)

// Registry holds the most recent device snapshot.
//
// All public methods are thread-safe.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	order   []string
	now     func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
}

// Replace swaps in a new snapshot and reports which serials appeared and
// which disappeared relative to the previous one. FirstSeen is kept for
// serials present in both.
func (r *Registry) Replace(statuses []Status) (added, removed []string) {
	now := r.now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]*Entry, len(statuses))
	order := make([]string, 0, len(statuses))
	for _, s := range statuses {
		if _, dup := next[s.Serial]; dup {
			continue
		}
		e := &Entry{Status: s, FirstSeen: now, LastSeen: now}
		if prev, ok := r.entries[s.Serial]; ok {
			e.FirstSeen = prev.FirstSeen
		} else {
			added = append(added, s.Serial)
		}
		next[s.Serial] = e
		order = append(order, s.Serial)
	}

	for _, serial := range r.order {
		if _, ok := next[serial]; !ok {
			removed = append(removed, serial)
		}
	}

	r.entries = next
	r.order = order
	return added, removed
}

// List returns the snapshot in watcher order.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.order))
	for _, serial := range r.order {
		out = append(out, *r.entries[serial])
	}
	return out
}

// Get returns the entry for serial, or ErrDeviceNotFound.
func (r *Registry) Get(serial string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[serial]
	if !ok {
		return Entry{}, ErrDeviceNotFound
	}
	return *e, nil
}

// Stats counts the current snapshot by connection type.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := Stats{Total: len(r.entries)}
	for _, e := range r.entries {
		switch e.ConnectionType {
		case ConnectionADB:
			st.ADB++
		case ConnectionFastboot:
			st.Fastboot++
		}
	}
	return st
}
