// Package nudge owns the participant roster and pacing tallies of each meeting.
package nudge

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/flowminder/go/internal/errs"
	"github.com/mcdev12/flowminder/go/internal/meeting/cooldown"
	"github.com/mcdev12/flowminder/go/internal/meeting/rooms"
	"github.com/mcdev12/flowminder/go/internal/meeting/session"
	"github.com/mcdev12/flowminder/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Store is the slice of the persistence gateway the roster needs.
type Store interface {
	ListParticipants(ctx context.Context, meetingID string) ([]models.Participant, error)
	MarkParticipantJoined(ctx context.Context, meetingID, userID, displayName string) (models.Participant, error)
	MarkParticipantLeft(ctx context.Context, meetingID, userID string) (models.Participant, error)
	ApplyNudge(ctx context.Context, meetingID, targetID string, kind models.NudgeKind) (more, less int, err error)
	ResetNudges(ctx context.Context, meetingID string) error
}

// Roster is the cached roster of one meeting.
type Roster struct {
	Version      int
	Participants map[string]models.Participant
}

// Snapshot is the nudge:snapshot payload.
type Snapshot struct {
	Participants []models.Participant `json:"participants"`
}

// Tally is the nudge:update payload, absolute counts for one target.
type Tally struct {
	TargetID string `json:"targetId"`
	More     int    `json:"more"`
	Less     int    `json:"less"`
}

// Synchronizer serializes roster commands per meeting.
type Synchronizer struct {
	store     Store
	rooms     rooms.Broadcaster
	cooldowns *cooldown.Tracker
	table     *session.Table[Roster]
}

// NewSynchronizer creates a nudge synchronizer.
func NewSynchronizer(store Store, broadcaster rooms.Broadcaster, cooldowns *cooldown.Tracker, clock clockwork.Clock) *Synchronizer {
	if cooldowns == nil {
		cooldowns = cooldown.NewTracker(clock, cooldown.DefaultWindow)
	}
	return &Synchronizer{
		store:     store,
		rooms:     broadcaster,
		cooldowns: cooldowns,
		table:     session.NewTable[Roster](clock),
	}
}

// JoinMeeting marks userID as present and broadcasts the row. A non-empty displayName is
// recorded too. Joining twice simply re-sends the row.
func (s *Synchronizer) JoinMeeting(ctx context.Context, meetingID, userID, displayName string) (models.Result, error) {
	if err := requireIDs(meetingID, userID); err != nil {
		return models.Result{}, err
	}
	var res models.Result
	err := s.table.With(meetingID, func(slot *session.Slot[Roster]) error {
		p, err := s.store.MarkParticipantJoined(ctx, meetingID, userID, strings.TrimSpace(displayName))
		if err != nil {
			return errs.Persistence("nudge.join", err)
		}
		res = models.Applied(s.put(slot, p))
		s.rooms.Broadcast(meetingID, rooms.EventNudgeParticipantUpdate, p)
		return nil
	})
	return res, err
}

// LeaveMeeting marks userID as absent, keeping its counts. Leaving without having joined
// is a no-op.
func (s *Synchronizer) LeaveMeeting(ctx context.Context, meetingID, userID string) (models.Result, error) {
	if err := requireIDs(meetingID, userID); err != nil {
		return models.Result{}, err
	}
	var res models.Result
	err := s.table.With(meetingID, func(slot *session.Slot[Roster]) error {
		p, err := s.store.MarkParticipantLeft(ctx, meetingID, userID)
		if errors.Is(err, errs.ErrNotFound) {
			log.Debug().Str("meeting_id", meetingID).Str("user_id", userID).Msg("leave without join")
			res = models.NoOp(version(slot))
			return nil
		}
		if err != nil {
			return errs.Persistence("nudge.leave", err)
		}
		res = models.Applied(s.put(slot, p))
		s.rooms.Broadcast(meetingID, rooms.EventNudgeParticipantUpdate, p)
		return nil
	})
	return res, err
}

// Cast records a nudge from voter to target. The cooldown for the pair is claimed before the
// target is checked, so a vote rejected as target_not_in_meeting still starts the window.
// The claim is released only when the store itself fails.
func (s *Synchronizer) Cast(ctx context.Context, meetingID, voterID, targetID string, kind models.NudgeKind) (Tally, error) {
	if meetingID == "" {
		return Tally{}, errs.Invalid("meetingId", "is required")
	}
	if voterID == "" {
		return Tally{}, errs.Invalid("voterId", "is required")
	}
	if targetID == "" {
		return Tally{}, errs.Invalid("targetId", "is required")
	}
	if !kind.Valid() {
		return Tally{}, errs.Invalid("kind", "must be more or less")
	}

	key := cooldown.Key{MeetingID: meetingID, VoterID: voterID, TargetID: targetID}
	if ok, remaining := s.cooldowns.CheckAndClaim(key); !ok {
		return Tally{}, &errs.CooldownError{Remaining: remaining}
	}

	var tally Tally
	err := s.table.With(meetingID, func(slot *session.Slot[Roster]) error {
		more, less, err := s.store.ApplyNudge(ctx, meetingID, targetID, kind)
		if errors.Is(err, errs.ErrTargetNotInMeeting) {
			return &errs.NotFoundError{Reason: errs.ReasonTargetNotInMeeting, Err: err}
		}
		if err != nil {
			s.cooldowns.Release(key)
			return errs.Persistence("nudge.cast", err)
		}

		if r := slot.State; r != nil {
			if p, ok := r.Participants[targetID]; ok {
				p.MoreCount, p.LessCount = more, less
				r.Participants[targetID] = p
				r.Version++
			} else {
				// joined behind our back; reload on next snapshot
				slot.State = nil
			}
		}

		tally = Tally{TargetID: targetID, More: more, Less: less}
		s.rooms.Broadcast(meetingID, rooms.EventNudgeUpdate, tally)
		return nil
	})
	if err == nil {
		log.Debug().
			Str("meeting_id", meetingID).
			Str("target_id", targetID).
			Str("kind", string(kind)).
			Msg("nudge applied")
	}
	return tally, err
}

// Reset zeroes every tally in the meeting and broadcasts the full roster.
func (s *Synchronizer) Reset(ctx context.Context, meetingID string) (models.Result, error) {
	if meetingID == "" {
		return models.Result{}, errs.Invalid("meetingId", "is required")
	}
	var res models.Result
	err := s.table.With(meetingID, func(slot *session.Slot[Roster]) error {
		if err := s.store.ResetNudges(ctx, meetingID); err != nil {
			return errs.Persistence("nudge.reset", err)
		}
		if err := s.reload(ctx, meetingID, slot); err != nil {
			return err
		}
		res = models.Applied(slot.State.Version)
		s.rooms.Broadcast(meetingID, rooms.EventNudgeSnapshot, slot.State.snapshot())
		return nil
	})
	return res, err
}

// BuildSnapshot returns the roster ordered by display name, case-insensitive.
func (s *Synchronizer) BuildSnapshot(ctx context.Context, meetingID string) (Snapshot, error) {
	var snap Snapshot
	err := s.table.With(meetingID, func(slot *session.Slot[Roster]) error {
		if slot.State == nil {
			if err := s.reload(ctx, meetingID, slot); err != nil {
				return err
			}
		}
		snap = slot.State.snapshot()
		return nil
	})
	return snap, err
}

// Invalidate drops the cached roster so the next read goes to the store.
func (s *Synchronizer) Invalidate(meetingID string) {
	_ = s.table.With(meetingID, func(slot *session.Slot[Roster]) error {
		slot.State = nil
		return nil
	})
}

// EvictIdle drops rosters nobody touched for maxIdle.
func (s *Synchronizer) EvictIdle(maxIdle time.Duration) int {
	return s.table.EvictIdle(maxIdle, nil, nil)
}

func (s *Synchronizer) reload(ctx context.Context, meetingID string, slot *session.Slot[Roster]) error {
	list, err := s.store.ListParticipants(ctx, meetingID)
	if err != nil {
		return errs.Persistence("nudge.load", err)
	}
	r := &Roster{Version: version(slot) + 1, Participants: make(map[string]models.Participant, len(list))}
	for _, p := range list {
		r.Participants[p.UserID] = p
	}
	slot.State = r
	return nil
}

// put stores p in a loaded roster and returns the roster version.
func (s *Synchronizer) put(slot *session.Slot[Roster], p models.Participant) int {
	if slot.State == nil {
		return 0
	}
	slot.State.Participants[p.UserID] = p
	slot.State.Version++
	return slot.State.Version
}

func (r *Roster) snapshot() Snapshot {
	out := make([]models.Participant, 0, len(r.Participants))
	for _, p := range r.Participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].DisplayName), strings.ToLower(out[j].DisplayName)
		if a != b {
			return a < b
		}
		return out[i].UserID < out[j].UserID
	})
	return Snapshot{Participants: out}
}

func version(slot *session.Slot[Roster]) int {
	if slot.State == nil {
		return 0
	}
	return slot.State.Version
}

func requireIDs(meetingID, userID string) error {
	if meetingID == "" {
		return errs.Invalid("meetingId", "is required")
	}
	if userID == "" {
		return errs.Invalid("userId", "is required")
	}
	return nil
}
