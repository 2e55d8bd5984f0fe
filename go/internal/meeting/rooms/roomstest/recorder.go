// Package roomstest provides an in-memory Broadcaster for synchronizer tests.
package roomstest

import (
	"sync"

	"github.com/mcdev12/flowminder/go/internal/meeting/rooms"
)

// Sent is one recorded broadcast.
type Sent struct {
	MeetingID string
	Type      rooms.EventType
	Payload   any
}

// Recorder implements rooms.Broadcaster and keeps every broadcast in order.
type Recorder struct {
	mu   sync.Mutex
	sent []Sent
}

var _ rooms.Broadcaster = (*Recorder)(nil)

func (r *Recorder) Broadcast(meetingID string, typ rooms.EventType, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, Sent{MeetingID: meetingID, Type: typ, Payload: payload})
}

// All returns a copy of everything recorded so far.
func (r *Recorder) All() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}

// OfType returns the recorded broadcasts with the given type.
func (r *Recorder) OfType(typ rooms.EventType) []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Sent
	for _, s := range r.sent {
		if s.Type == typ {
			out = append(out, s)
		}
	}
	return out
}

// Last returns the most recent broadcast, or false when nothing was sent.
func (r *Recorder) Last() (Sent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return Sent{}, false
	}
	return r.sent[len(r.sent)-1], true
}

// Len returns the number of recorded broadcasts.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

// Reset forgets everything recorded.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}
