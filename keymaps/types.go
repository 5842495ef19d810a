package keymaps

import (
	"sort"
	"sync/atomic"
)

// KeyMapping substitutes one platform key code for another
type KeyMapping struct {
	From uint16
	To   uint16
}

// View is an immutable generation of a Table
type View struct {
	m map[uint16]uint16
}

// Lookup returns the target for code, if any
func (v View) Lookup(code uint16) (uint16, bool) {
	to, ok := v.m[code]
	return to, ok
}

// Len returns the number of mappings in the view
func (v View) Len() int {
	return len(v.m)
}

// Mappings returns the view's pairs ordered by source code
func (v View) Mappings() []KeyMapping {
	out := make([]KeyMapping, 0, len(v.m))
	for from, to := range v.m {
		out = append(out, KeyMapping{From: from, To: to})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].From < out[j].From })
	return out
}

// Table holds the active key substitutions.
//
// Every write builds a new map and publishes it with a single pointer swap,
// so a reader sees either the old or the new set of mappings, never a mix.
// Published maps are never mutated.
type Table struct {
	current atomic.Pointer[map[uint16]uint16]
}

// NewTable creates a table loaded with pairs
func NewTable(pairs []KeyMapping) *Table {
	t := &Table{}
	t.Load(pairs)
	return t
}

func build(pairs []KeyMapping) map[uint16]uint16 {
	m := make(map[uint16]uint16, len(pairs))
	for _, p := range pairs {
		// later duplicates win
		m[p.From] = p.To
	}
	return m
}

// Load replaces every mapping in the table
func (t *Table) Load(pairs []KeyMapping) {
	m := build(pairs)
	t.current.Store(&m)
}

func (t *Table) load() map[uint16]uint16 {
	if p := t.current.Load(); p != nil {
		return *p
	}
	return nil
}

// Lookup returns the mapped target for code
func (t *Table) Lookup(code uint16) (uint16, bool) {
	to, ok := t.load()[code]
	return to, ok
}

// Snapshot returns the current generation for repeated consistent reads
func (t *Table) Snapshot() View {
	return View{m: t.load()}
}

// Mappings returns the current pairs ordered by source code
func (t *Table) Mappings() []KeyMapping {
	return t.Snapshot().Mappings()
}

// Len returns the number of active mappings
func (t *Table) Len() int {
	return len(t.load())
}

// Add sets a single mapping, replacing any existing target for from
func (t *Table) Add(from, to uint16) {
	t.update(func(m map[uint16]uint16) { m[from] = to })
}

// Remove deletes the mapping for from, if present
func (t *Table) Remove(from uint16) {
	t.update(func(m map[uint16]uint16) { delete(m, from) })
}

// update copies the current map, applies fn and publishes the copy. The
// compare-and-swap retries if another writer published in between.
func (t *Table) update(fn func(map[uint16]uint16)) {
	for {
		old := t.current.Load()
		var src map[uint16]uint16
		if old != nil {
			src = *old
		}
		next := make(map[uint16]uint16, len(src)+1)
		for k, v := range src {
			next[k] = v
		}
		fn(next)
		if t.current.CompareAndSwap(old, &next) {
			return
		}
	}
}
