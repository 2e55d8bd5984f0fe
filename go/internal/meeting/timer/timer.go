// Package timer owns the shared countdown of each meeting.
//
// Countdown state is in memory only and is lost on restart. The server never ticks; every
// transition broadcasts the absolute end time plus the server clock and clients interpolate.
package timer

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/flowminder/go/internal/meeting/rooms"
	"github.com/mcdev12/flowminder/go/internal/meeting/session"
	"github.com/mcdev12/flowminder/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Status is the tag of the timer state.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusPaused  Status = "paused"
)

// State is the countdown of one meeting. EndAt is meaningful while running or paused,
// Remaining only while paused.
type State struct {
	Status    Status
	EndAt     time.Time
	Remaining time.Duration
	Version   int
}

// View is the timer:state payload. Times are unix milliseconds.
type View struct {
	Status      Status `json:"status"`
	EndAt       int64  `json:"endAt"`
	RemainingMs *int64 `json:"remainingMs,omitempty"`
	ServerTime  int64  `json:"serverTime"`
	Version     int    `json:"version"`
}

// Remaining returns the time left as of the view's server time.
func (v View) Remaining() time.Duration {
	switch v.Status {
	case StatusPaused:
		if v.RemainingMs != nil {
			return time.Duration(*v.RemainingMs) * time.Millisecond
		}
	case StatusRunning:
		return max(0, time.Duration(v.EndAt-v.ServerTime)*time.Millisecond)
	}
	return 0
}

// Synchronizer serializes timer commands per meeting.
type Synchronizer struct {
	rooms    rooms.Broadcaster
	clock    clockwork.Clock
	table    *session.Table[State]
	settings SettingsStore

	retiredMu sync.Mutex
	retired   map[string]int
}

// NewSynchronizer creates a timer synchronizer. settings may be nil when timer defaults
// are not served.
func NewSynchronizer(settings SettingsStore, broadcaster rooms.Broadcaster, clock clockwork.Clock) *Synchronizer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Synchronizer{
		rooms:    broadcaster,
		clock:    clock,
		table:    session.NewTable[State](clock),
		settings: settings,
		retired:  make(map[string]int),
	}
}

// Get returns the current timer view without broadcasting.
func (s *Synchronizer) Get(meetingID string) View {
	var v View
	_ = s.table.With(meetingID, func(slot *session.Slot[State]) error {
		v = s.view(s.ensure(meetingID, slot))
		return nil
	})
	return v
}

// Start runs the timer for d from now, from any state. Non-positive durations are a no-op.
func (s *Synchronizer) Start(meetingID string, d time.Duration) models.Result {
	return s.transition(meetingID, "start", func(st *State, now time.Time) bool {
		if d <= 0 {
			return false
		}
		*st = State{Status: StatusRunning, EndAt: now.Add(d), Version: st.Version}
		return true
	})
}

// Pause freezes a running timer.
func (s *Synchronizer) Pause(meetingID string) models.Result {
	return s.transition(meetingID, "pause", func(st *State, now time.Time) bool {
		if st.Status != StatusRunning {
			return false
		}
		st.Status = StatusPaused
		st.Remaining = max(0, st.EndAt.Sub(now))
		return true
	})
}

// Resume restarts a paused timer with the time it had left.
func (s *Synchronizer) Resume(meetingID string) models.Result {
	return s.transition(meetingID, "resume", func(st *State, now time.Time) bool {
		if st.Status != StatusPaused {
			return false
		}
		*st = State{Status: StatusRunning, EndAt: now.Add(st.Remaining), Version: st.Version}
		return true
	})
}

// Cancel returns the timer to pending.
func (s *Synchronizer) Cancel(meetingID string) models.Result {
	return s.transition(meetingID, "cancel", func(st *State, _ time.Time) bool {
		if st.Status == StatusPending {
			return false
		}
		*st = State{Status: StatusPending, Version: st.Version}
		return true
	})
}

// EditEnd moves the end time, clamped to now. A pending timer starts running, a paused
// timer stays paused with its remaining time recomputed. A pending timer is left alone
// when the clamped end time is not in the future.
func (s *Synchronizer) EditEnd(meetingID string, proposedEndAt time.Time) models.Result {
	return s.transition(meetingID, "editEnd", func(st *State, now time.Time) bool {
		endAt := proposedEndAt
		if endAt.Before(now) {
			endAt = now
		}
		switch st.Status {
		case StatusPending:
			if !endAt.After(now) {
				return false
			}
			*st = State{Status: StatusRunning, EndAt: endAt, Version: st.Version}
		case StatusPaused:
			st.EndAt = endAt
			st.Remaining = endAt.Sub(now)
		default:
			st.EndAt = endAt
		}
		return true
	})
}

// EvictIdle drops pending timers nobody touched for maxIdle. Running and paused timers stay.
func (s *Synchronizer) EvictIdle(maxIdle time.Duration) int {
	return s.table.EvictIdle(maxIdle,
		func(_ string, st *State) bool { return st.Status != StatusPending },
		func(meetingID string, st *State) {
			s.retiredMu.Lock()
			s.retired[meetingID] = st.Version
			s.retiredMu.Unlock()
		})
}

func (s *Synchronizer) transition(meetingID, verb string, apply func(st *State, now time.Time) bool) models.Result {
	var res models.Result
	_ = s.table.With(meetingID, func(slot *session.Slot[State]) error {
		st := s.ensure(meetingID, slot)
		next := *st
		if !apply(&next, s.clock.Now()) {
			log.Debug().Str("meeting_id", meetingID).Str("verb", verb).Str("status", string(st.Status)).Msg("timer command is a no-op")
			res = models.NoOp(st.Version)
			return nil
		}
		next.Version++
		*st = next

		s.rooms.Broadcast(meetingID, rooms.EventTimerState, s.view(st))
		res = models.Applied(st.Version)
		return nil
	})
	return res
}

func (s *Synchronizer) ensure(meetingID string, slot *session.Slot[State]) *State {
	if slot.State == nil {
		s.retiredMu.Lock()
		version := s.retired[meetingID]
		delete(s.retired, meetingID)
		s.retiredMu.Unlock()
		slot.State = &State{Status: StatusPending, Version: version}
	}
	return slot.State
}

func (s *Synchronizer) view(st *State) View {
	v := View{
		Status:     st.Status,
		ServerTime: s.clock.Now().UnixMilli(),
		Version:    st.Version,
	}
	if st.Status != StatusPending {
		v.EndAt = st.EndAt.UnixMilli()
	}
	if st.Status == StatusPaused {
		ms := st.Remaining.Milliseconds()
		v.RemainingMs = &ms
	}
	return v
}
