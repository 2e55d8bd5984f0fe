// Package session keeps per-meeting in-memory state behind a per-meeting lock.
//
// Commands for one meeting run one at a time. Commands for different meetings never block
// each other. Entries are created on first use and dropped by EvictIdle once nothing has
// touched them for a while.
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Slot is the mutable view handed to With. State is nil until the caller populates it.
type Slot[S any] struct {
	State *S
}

type entry[S any] struct {
	mu       sync.Mutex
	slot     Slot[S]
	lastUsed time.Time
	refs     int // guarded by Table.mu
}

// Table maps meeting ids to state of type S.
type Table[S any] struct {
	clock clockwork.Clock

	mu      sync.Mutex
	entries map[string]*entry[S]
}

// NewTable creates an empty table. A nil clock uses the real clock.
func NewTable[S any](clock clockwork.Clock) *Table[S] {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Table[S]{
		clock:   clock,
		entries: make(map[string]*entry[S]),
	}
}

// With runs fn while holding the meeting's lock. Whatever fn leaves in slot.State is kept.
func (t *Table[S]) With(meetingID string, fn func(slot *Slot[S]) error) error {
	e := t.acquire(meetingID)
	defer t.release(e)

	e.mu.Lock()
	defer e.mu.Unlock()

	err := fn(&e.slot)
	e.lastUsed = t.clock.Now()
	return err
}

// Len returns the number of meetings with an entry.
func (t *Table[S]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// IDs returns the meeting ids with an entry, sorted.
func (t *Table[S]) IDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// EvictIdle drops entries unused for at least maxIdle. Entries for which keep returns true
// stay. onEvict, if set, sees each dropped state and must not call back into the table.
func (t *Table[S]) EvictIdle(maxIdle time.Duration, keep func(meetingID string, state *S) bool, onEvict func(meetingID string, state *S)) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	evicted := 0
	for id, e := range t.entries {
		if e.refs > 0 || !e.mu.TryLock() {
			continue
		}
		idle := now.Sub(e.lastUsed) >= maxIdle
		state := e.slot.State
		if idle && (state == nil || keep == nil || !keep(id, state)) {
			delete(t.entries, id)
			if onEvict != nil && state != nil {
				onEvict(id, state)
			}
			evicted++
		}
		e.mu.Unlock()
	}
	return evicted
}

func (t *Table[S]) acquire(meetingID string) *entry[S] {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[meetingID]
	if !ok {
		e = &entry[S]{lastUsed: t.clock.Now()}
		t.entries[meetingID] = e
	}
	e.refs++
	return e
}

func (t *Table[S]) release(e *entry[S]) {
	t.mu.Lock()
	e.refs--
	t.mu.Unlock()
}
