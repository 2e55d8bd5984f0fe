// Package rooms groups connections into per-meeting broadcast sets.
package rooms

import (
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Member is a connection handle that can receive frames.
type Member interface {
	ID() string
	// Deliver queues a frame without blocking. It returns false when the member cannot keep up.
	Deliver(frame []byte) bool
	Close()
}

// Broadcaster is the capability the synchronizers use to reach a meeting's room.
type Broadcaster interface {
	Broadcast(meetingID string, typ EventType, payload any)
}

// Registry manages room membership and fan-out.
type Registry struct {
	clock clockwork.Clock

	mu     sync.RWMutex
	rooms  map[string]map[string]Member // meeting id -> member id -> member
	joined map[string]map[string]bool   // member id -> meeting ids
}

// NewRegistry creates an empty registry. A nil clock uses the real clock.
func NewRegistry(clock clockwork.Clock) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Registry{
		clock:  clock,
		rooms:  make(map[string]map[string]Member),
		joined: make(map[string]map[string]bool),
	}
}

// Join adds m to the meeting's room. Joining twice is harmless and returns false.
func (r *Registry) Join(m Member, meetingID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	room := r.rooms[meetingID]
	if room == nil {
		room = make(map[string]Member)
		r.rooms[meetingID] = room
	}
	if _, ok := room[m.ID()]; ok {
		return false
	}
	room[m.ID()] = m
	if r.joined[m.ID()] == nil {
		r.joined[m.ID()] = make(map[string]bool)
	}
	r.joined[m.ID()][meetingID] = true

	log.Debug().
		Str("connection_id", m.ID()).
		Str("meeting_id", meetingID).
		Int("room_size", len(room)).
		Msg("joined room")
	return true
}

// Leave removes m from the meeting's room. Leaving a room never joined returns false.
func (r *Registry) Leave(m Member, meetingID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(m.ID(), meetingID)
}

// LeaveAll removes m from every room and returns the meetings it was in.
func (r *Registry) LeaveAll(m Member) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var left []string
	for meetingID := range r.joined[m.ID()] {
		if r.leaveLocked(m.ID(), meetingID) {
			left = append(left, meetingID)
		}
	}
	return left
}

// Size returns the number of members in a meeting's room.
func (r *Registry) Size(meetingID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[meetingID])
}

// Stats summarises the registry for the stats endpoint.
func (r *Registry) Stats() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	counts := make(map[string]int, len(r.rooms))
	for meetingID, room := range r.rooms {
		counts[meetingID] = len(room)
		total += len(room)
	}
	return map[string]interface{}{
		"total_members":   total,
		"active_meetings": len(r.rooms),
		"meeting_members": counts,
		"tracked_members": len(r.joined),
	}
}

// Broadcast delivers an event to every member of the meeting's room. Members that cannot
// keep up are removed from all rooms and closed.
func (r *Registry) Broadcast(meetingID string, typ EventType, payload any) {
	frame, err := Encode(meetingID, typ, payload, r.clock.Now())
	if err != nil {
		log.Error().Err(err).Str("event_type", string(typ)).Msg("failed to marshal event for broadcast")
		return
	}

	r.mu.RLock()
	targets := make([]Member, 0, len(r.rooms[meetingID]))
	for _, m := range r.rooms[meetingID] {
		targets = append(targets, m)
	}
	r.mu.RUnlock()

	for _, m := range targets {
		if !m.Deliver(frame) {
			log.Warn().
				Str("connection_id", m.ID()).
				Str("meeting_id", meetingID).
				Msg("member send buffer full, closing connection")
			r.evict(m)
		}
	}

	log.Debug().
		Str("event_type", string(typ)).
		Str("meeting_id", meetingID).
		Int("members", len(targets)).
		Msg("event broadcasted")
}

// SendTo delivers an event to a single member, whether or not it has joined the room.
func (r *Registry) SendTo(m Member, meetingID string, typ EventType, payload any) bool {
	frame, err := Encode(meetingID, typ, payload, r.clock.Now())
	if err != nil {
		log.Error().Err(err).Str("event_type", string(typ)).Msg("failed to marshal event")
		return false
	}
	if !m.Deliver(frame) {
		r.evict(m)
		return false
	}
	return true
}

func (r *Registry) evict(m Member) {
	r.LeaveAll(m)
	m.Close()
}

func (r *Registry) leaveLocked(memberID, meetingID string) bool {
	room, ok := r.rooms[meetingID]
	if !ok {
		return false
	}
	if _, ok := room[memberID]; !ok {
		return false
	}
	delete(room, memberID)
	if len(room) == 0 {
		delete(r.rooms, meetingID)
	}
	if meetings := r.joined[memberID]; meetings != nil {
		delete(meetings, meetingID)
		if len(meetings) == 0 {
			delete(r.joined, memberID)
		}
	}
	log.Debug().
		Str("connection_id", memberID).
		Str("meeting_id", meetingID).
		Msg("left room")
	return true
}
