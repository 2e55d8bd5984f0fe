// Package cooldown rate limits nudges per (meeting, voter, target) triple.
package cooldown

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultWindow is the cooldown applied when none is configured.
const DefaultWindow = 5 * time.Minute

// Key identifies one voter's claim against one target in one meeting.
type Key struct {
	MeetingID string
	VoterID   string
	TargetID  string
}

type entry struct {
	expiresAt time.Time
	timer     clockwork.Timer
}

// Tracker holds active cooldown claims. Entries delete themselves when their window ends.
type Tracker struct {
	clock  clockwork.Clock
	window time.Duration

	mu      sync.Mutex
	entries map[Key]*entry
}

// NewTracker creates a tracker. A non-positive window falls back to DefaultWindow and a nil
// clock to the real clock.
func NewTracker(clock clockwork.Clock, window time.Duration) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Tracker{
		clock:   clock,
		window:  window,
		entries: make(map[Key]*entry),
	}
}

// Window returns the configured cooldown duration.
func (t *Tracker) Window() time.Duration { return t.window }

// CheckAndClaim claims the key for one window. When a claim is already active it returns
// false and the time left on it.
func (t *Tracker) CheckAndClaim(key Key) (bool, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	if e, ok := t.entries[key]; ok {
		if remaining := e.expiresAt.Sub(now); remaining > 0 {
			return false, remaining
		}
		// window elapsed but the expiry callback has not run yet
		e.timer.Stop()
		delete(t.entries, key)
	}

	e := &entry{expiresAt: now.Add(t.window)}
	e.timer = t.clock.AfterFunc(t.window, func() { t.expire(key, e) })
	t.entries[key] = e
	return true, 0
}

// Remaining returns the time left on an active claim, or 0.
func (t *Tracker) Remaining(key Key) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[key]
	if !ok {
		return 0
	}
	if remaining := e.expiresAt.Sub(t.clock.Now()); remaining > 0 {
		return remaining
	}
	return 0
}

// Release drops a claim early, used when the nudge it guarded failed to persist.
func (t *Tracker) Release(key Key) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.entries[key]; ok {
		e.timer.Stop()
		delete(t.entries, key)
		log.Debug().
			Str("meeting_id", key.MeetingID).
			Str("voter_id", key.VoterID).
			Str("target_id", key.TargetID).
			Msg("released cooldown claim")
	}
}

// Len returns the number of tracked claims.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Stop cancels every pending expiry.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for k, e := range t.entries {
		e.timer.Stop()
		delete(t.entries, k)
	}
}

func (t *Tracker) expire(key Key, e *entry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// a newer claim may have replaced this one
	if cur, ok := t.entries[key]; ok && cur == e {
		delete(t.entries, key)
	}
}
