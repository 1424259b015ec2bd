// Package crdt provides the in-memory document model the sync layer operates
// on. It is a state-based map of last-writer-wins registers: updates are
// idempotent and commutative, so they can be applied in any order and any
// number of times and every replica converges to the same state. A snapshot is
// simply an update that carries every register.
package crdt

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"
)

// TitleField is the register that holds the document title, written by the
// editor toolbar and read by the directory listing.
const TitleField = "meta.title"

type (
	register struct {
		Value string `json:"value"`
		Clock uint64 `json:"clock"`
		Peer  string `json:"peer"`
	}

	change struct {
		Key   string `json:"key"`
		Value string `json:"value"`
		Clock uint64 `json:"clock"`
		Peer  string `json:"peer"`
	}

	// Doc is a live in-memory document. All methods are safe for concurrent
	// use. Update observers run synchronously after the state change that
	// triggered them.
	Doc struct {
		mu        sync.Mutex
		peer      string
		clock     uint64
		registers map[string]register
		observers []func(update []byte)
	}
)

// NewDoc creates an empty document with a fresh peer identity.
func NewDoc() *Doc {
	return &Doc{
		peer:      ulid.Make().String(),
		registers: make(map[string]register),
	}
}

// OnUpdate registers an observer invoked with the encoded update whenever the
// document state changes, whether from ApplyUpdate or a local Set.
func (d *Doc) OnUpdate(fn func(update []byte)) {
	d.mu.Lock()
	d.observers = append(d.observers, fn)
	d.mu.Unlock()
}

// ApplyUpdate merges an encoded update into the document. Registers already at
// or past the incoming (clock, peer) position are left untouched, which makes
// re-applying an old update a no-op. Observers fire only if state changed.
func (d *Doc) ApplyUpdate(update []byte) error {
	var changes []change
	if err := json.Unmarshal(update, &changes); err != nil {
		return fmt.Errorf("decode update: %w", err)
	}

	d.mu.Lock()
	changed := false
	for _, c := range changes {
		incoming := register{Value: c.Value, Clock: c.Clock, Peer: c.Peer}
		current, ok := d.registers[c.Key]
		if !ok || wins(incoming, current) {
			d.registers[c.Key] = incoming
			changed = true
		}
		if c.Clock > d.clock {
			d.clock = c.Clock
		}
	}
	observers := d.observers
	d.mu.Unlock()

	if changed {
		for _, fn := range observers {
			fn(update)
		}
	}
	return nil
}

// Set writes a register locally, winning over any value the document has seen
// so far, and notifies observers with the corresponding single-change update.
func (d *Doc) Set(key, value string) {
	d.mu.Lock()
	current := d.registers[key]
	next := d.clock + 1
	if current.Clock >= next {
		next = current.Clock + 1
	}
	d.clock = next
	d.registers[key] = register{Value: value, Clock: next, Peer: d.peer}
	update, _ := json.Marshal([]change{{Key: key, Value: value, Clock: next, Peer: d.peer}})
	observers := d.observers
	d.mu.Unlock()

	for _, fn := range observers {
		fn(update)
	}
}

// Get returns the current value of a register.
func (d *Doc) Get(key string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.registers[key]
	return r.Value, ok
}

// Title returns the document title, or nil if none has been set.
func (d *Doc) Title() *string {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.registers[TitleField]
	if !ok {
		return nil
	}
	title := r.Value
	return &title
}

// EncodeState encodes the full document state as a single update. The
// encoding is canonical: the same state always yields the same bytes.
func (d *Doc) EncodeState() []byte {
	d.mu.Lock()
	changes := make([]change, 0, len(d.registers))
	for key, r := range d.registers {
		changes = append(changes, change{Key: key, Value: r.Value, Clock: r.Clock, Peer: r.Peer})
	}
	d.mu.Unlock()

	sort.Slice(changes, func(i, j int) bool { return changes[i].Key < changes[j].Key })
	data, _ := json.Marshal(changes)
	return data
}

// wins reports whether a should replace b under last-writer-wins ordering.
// Peer ids break clock ties so concurrent writes resolve identically on every
// replica.
func wins(a, b register) bool {
	if a.Clock != b.Clock {
		return a.Clock > b.Clock
	}
	return a.Peer > b.Peer
}
