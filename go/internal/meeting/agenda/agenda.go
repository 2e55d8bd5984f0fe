// Package agenda owns the authoritative agenda progression of each meeting.
//
// Every mutation follows persist, then mutate, then broadcast, inside the meeting's critical
// section. A failed write leaves the in-memory state exactly as it was.
package agenda

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/flowminder/go/internal/errs"
	"github.com/mcdev12/flowminder/go/internal/meeting/rooms"
	"github.com/mcdev12/flowminder/go/internal/meeting/session"
	"github.com/mcdev12/flowminder/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Store is the slice of the persistence gateway the agenda needs.
type Store interface {
	ListAgendaItems(ctx context.Context, meetingID string) ([]models.AgendaItem, error)
	SetAgendaItemProcessed(ctx context.Context, meetingID, itemID string, processedAt *time.Time) error
}

// State is the in-memory agenda of one meeting.
type State struct {
	Version      int
	Items        []models.AgendaItem
	CurrentIndex int
}

// Snapshot is the wire form of State.
type Snapshot struct {
	Items        []models.AgendaItem `json:"items"`
	CurrentIndex int                 `json:"currentIndex"`
	Version      int                 `json:"version"`
}

func (st *State) snapshot() Snapshot {
	items := make([]models.AgendaItem, len(st.Items))
	copy(items, st.Items)
	return Snapshot{Items: items, CurrentIndex: st.CurrentIndex, Version: st.Version}
}

// Synchronizer serializes agenda commands per meeting.
type Synchronizer struct {
	store Store
	rooms rooms.Broadcaster
	clock clockwork.Clock
	table *session.Table[State]

	// last version of evicted meetings, so a reload still moves the version forward
	retiredMu sync.Mutex
	retired   map[string]int
}

// NewSynchronizer creates an agenda synchronizer.
func NewSynchronizer(store Store, broadcaster rooms.Broadcaster, clock clockwork.Clock) *Synchronizer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Synchronizer{
		store:   store,
		rooms:   broadcaster,
		clock:   clock,
		table:   session.NewTable[State](clock),
		retired: make(map[string]int),
	}
}

// GetOrLoad returns the cached agenda, loading it from the store on first access.
func (s *Synchronizer) GetOrLoad(ctx context.Context, meetingID string) (Snapshot, error) {
	var snap Snapshot
	err := s.table.With(meetingID, func(slot *session.Slot[State]) error {
		if err := s.ensureLoaded(ctx, meetingID, slot); err != nil {
			return err
		}
		snap = slot.State.snapshot()
		return nil
	})
	return snap, err
}

// Advance marks the first pending item processed. With nothing left it is a no-op.
// A non-nil expectedVersion that does not match the current version yields a ConflictError.
func (s *Synchronizer) Advance(ctx context.Context, meetingID string, expectedVersion *int) (models.Result, error) {
	return s.step(ctx, meetingID, expectedVersion, true)
}

// Retreat unmarks the last processed item by agenda order. With nothing processed it is a no-op.
func (s *Synchronizer) Retreat(ctx context.Context, meetingID string, expectedVersion *int) (models.Result, error) {
	return s.step(ctx, meetingID, expectedVersion, false)
}

// ForceReload discards the cached agenda, reloads it and broadcasts a full snapshot.
func (s *Synchronizer) ForceReload(ctx context.Context, meetingID string) (Snapshot, error) {
	var snap Snapshot
	err := s.table.With(meetingID, func(slot *session.Slot[State]) error {
		var err error
		snap, err = s.reloadAndBroadcast(ctx, meetingID, slot)
		return err
	})
	if err == nil {
		log.Info().Str("meeting_id", meetingID).Int("version", snap.Version).Msg("agenda reloaded")
	}
	return snap, err
}

// ReloadAll force-reloads every agenda currently held in memory. Meetings that were never
// loaded are skipped. It returns how many agendas were reloaded and the joined load errors.
func (s *Synchronizer) ReloadAll(ctx context.Context) (int, error) {
	var (
		reloaded int
		failed   []error
	)
	for _, meetingID := range s.table.IDs() {
		err := s.table.With(meetingID, func(slot *session.Slot[State]) error {
			if slot.State == nil {
				return nil
			}
			if _, err := s.reloadAndBroadcast(ctx, meetingID, slot); err != nil {
				return err
			}
			reloaded++
			return nil
		})
		if err != nil {
			failed = append(failed, fmt.Errorf("meeting %s: %w", meetingID, err))
		}
	}
	log.Info().Int("reloaded", reloaded).Int("failed", len(failed)).Msg("agendas resynced")
	return reloaded, errors.Join(failed...)
}

// EvictIdle drops agendas nobody touched for maxIdle.
func (s *Synchronizer) EvictIdle(maxIdle time.Duration) int {
	return s.table.EvictIdle(maxIdle, nil, func(meetingID string, st *State) {
		s.retiredMu.Lock()
		s.retired[meetingID] = st.Version
		s.retiredMu.Unlock()
	})
}

func (s *Synchronizer) reloadAndBroadcast(ctx context.Context, meetingID string, slot *session.Slot[State]) (Snapshot, error) {
	if err := s.reload(ctx, meetingID, slot); err != nil {
		return Snapshot{}, err
	}
	snap := slot.State.snapshot()
	s.rooms.Broadcast(meetingID, rooms.EventAgendaSnapshot, snap)
	return snap, nil
}

func (s *Synchronizer) step(ctx context.Context, meetingID string, expectedVersion *int, forward bool) (models.Result, error) {
	var res models.Result
	err := s.table.With(meetingID, func(slot *session.Slot[State]) error {
		if err := s.ensureLoaded(ctx, meetingID, slot); err != nil {
			return err
		}
		st := slot.State
		if expectedVersion != nil && *expectedVersion != st.Version {
			return &errs.ConflictError{Expected: *expectedVersion, Current: st.Version}
		}

		idx := lastProcessed(st.Items)
		if forward {
			idx = firstPending(st.Items)
		}
		if idx < 0 || idx >= len(st.Items) {
			log.Debug().Str("meeting_id", meetingID).Bool("forward", forward).Msg("agenda step is a no-op")
			res = models.NoOp(st.Version)
			return nil
		}

		var processedAt *time.Time
		if forward {
			now := s.clock.Now().UTC()
			processedAt = &now
		}
		item := st.Items[idx]
		if err := s.store.SetAgendaItemProcessed(ctx, meetingID, item.ID, processedAt); err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				// the row vanished underneath us, resync everyone
				if rerr := s.reload(ctx, meetingID, slot); rerr == nil {
					s.rooms.Broadcast(meetingID, rooms.EventAgendaSnapshot, slot.State.snapshot())
				}
				return &errs.NotFoundError{Reason: errs.ReasonNotFound, Err: err}
			}
			return errs.Persistence("agenda.step", err)
		}

		items := make([]models.AgendaItem, len(st.Items))
		copy(items, st.Items)
		items[idx].Processed = forward
		items[idx].ProcessedAt = processedAt

		st.Items = items
		st.CurrentIndex = firstPending(items)
		st.Version++

		s.rooms.Broadcast(meetingID, rooms.EventAgendaUpdate, st.snapshot())
		res = models.Applied(st.Version)
		return nil
	})
	return res, err
}

func (s *Synchronizer) ensureLoaded(ctx context.Context, meetingID string, slot *session.Slot[State]) error {
	if slot.State != nil {
		return nil
	}
	return s.reload(ctx, meetingID, slot)
}

func (s *Synchronizer) reload(ctx context.Context, meetingID string, slot *session.Slot[State]) error {
	items, err := s.store.ListAgendaItems(ctx, meetingID)
	if err != nil {
		return errs.Persistence("agenda.load", err)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Less(items[j]) })

	var prev int
	if slot.State != nil {
		prev = slot.State.Version
	} else {
		s.retiredMu.Lock()
		prev = s.retired[meetingID]
		delete(s.retired, meetingID)
		s.retiredMu.Unlock()
	}

	slot.State = &State{
		Version:      prev + 1,
		Items:        items,
		CurrentIndex: firstPending(items),
	}
	return nil
}

// firstPending returns the index of the first unprocessed item, or len(items).
func firstPending(items []models.AgendaItem) int {
	for i, it := range items {
		if !it.Processed {
			return i
		}
	}
	return len(items)
}

// lastProcessed returns the index of the last processed item, or -1.
func lastProcessed(items []models.AgendaItem) int {
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].Processed {
			return i
		}
	}
	return -1
}
