package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/flowminder/go/internal/errs"
	"github.com/mcdev12/flowminder/go/internal/meeting/agenda"
	"github.com/mcdev12/flowminder/go/internal/meeting/cooldown"
	"github.com/mcdev12/flowminder/go/internal/meeting/nudge"
	"github.com/mcdev12/flowminder/go/internal/meeting/rooms"
	"github.com/mcdev12/flowminder/go/internal/meeting/timer"
	"github.com/mcdev12/flowminder/go/internal/models"
	"github.com/stretchr/testify/require"
)

// memStore backs all three synchronizers.
type memStore struct {
	mu       sync.Mutex
	agenda   map[string][]models.AgendaItem
	roster   map[string]map[string]models.Participant
	settings map[string]models.TimerSettings
	failNext error // returned once by the next write
}

func (m *memStore) takeFailure() error {
	err := m.failNext
	m.failNext = nil
	return err
}

func newMemStore() *memStore {
	return &memStore{
		agenda:   map[string][]models.AgendaItem{},
		roster:   map[string]map[string]models.Participant{},
		settings: map[string]models.TimerSettings{},
	}
}

func (m *memStore) ListAgendaItems(_ context.Context, meetingID string) ([]models.AgendaItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.AgendaItem(nil), m.agenda[meetingID]...), nil
}

func (m *memStore) SetAgendaItemProcessed(_ context.Context, meetingID, itemID string, at *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	for i, it := range m.agenda[meetingID] {
		if it.ID == itemID {
			m.agenda[meetingID][i].Processed = at != nil
			m.agenda[meetingID][i].ProcessedAt = at
			return nil
		}
	}
	return errs.ErrNotFound
}

func (m *memStore) ListParticipants(_ context.Context, meetingID string) ([]models.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Participant
	for _, p := range m.roster[meetingID] {
		out = append(out, p)
	}
	return out, nil
}

func (m *memStore) MarkParticipantJoined(_ context.Context, meetingID, userID, name string) (models.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.roster[meetingID] == nil {
		m.roster[meetingID] = map[string]models.Participant{}
	}
	p, ok := m.roster[meetingID][userID]
	if !ok {
		p = models.Participant{UserID: userID, DisplayName: userID}
	}
	if name != "" {
		p.DisplayName = name
	}
	p.InMeeting = true
	m.roster[meetingID][userID] = p
	return p, nil
}

func (m *memStore) MarkParticipantLeft(_ context.Context, meetingID, userID string) (models.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.roster[meetingID][userID]
	if !ok {
		return models.Participant{}, errs.ErrNotFound
	}
	p.InMeeting = false
	m.roster[meetingID][userID] = p
	return p, nil
}

func (m *memStore) ApplyNudge(_ context.Context, meetingID, targetID string, kind models.NudgeKind) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return 0, 0, err
	}
	p, ok := m.roster[meetingID][targetID]
	if !ok || !p.InMeeting {
		return 0, 0, errs.ErrTargetNotInMeeting
	}
	if kind == models.NudgeKindMore {
		p.MoreCount++
	} else {
		p.LessCount++
	}
	m.roster[meetingID][targetID] = p
	return p.MoreCount, p.LessCount, nil
}

func (m *memStore) ResetNudges(_ context.Context, meetingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.roster[meetingID] {
		p.MoreCount, p.LessCount = 0, 0
		m.roster[meetingID][id] = p
	}
	return nil
}

func (m *memStore) GetTimerSettings(_ context.Context, meetingID string) (models.TimerSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settings[meetingID]
	if !ok {
		return models.TimerSettings{}, errs.ErrNotFound
	}
	return s, nil
}

func (m *memStore) SaveTimerSettings(_ context.Context, meetingID string, s models.TimerSettings) (models.TimerSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.settings[meetingID]; !ok {
		return models.TimerSettings{}, errs.ErrNotFound
	}
	m.settings[meetingID] = s.Normalize()
	return m.settings[meetingID], nil
}

// fakeClient records every frame it is sent.
type fakeClient struct {
	id, user string
	mu       sync.Mutex
	frames   [][]byte
	closed   bool
}

func (f *fakeClient) ID() string     { return f.id }
func (f *fakeClient) UserID() string { return f.user }

func (f *fakeClient) Deliver(frame []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.frames = append(f.frames, frame)
	return true
}

func (f *fakeClient) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeClient) events(t *testing.T) []rooms.Event {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]rooms.Event, 0, len(f.frames))
	for _, fr := range f.frames {
		var ev rooms.Event
		require.NoError(t, json.Unmarshal(fr, &ev))
		out = append(out, ev)
	}
	return out
}

func (f *fakeClient) types(t *testing.T) []rooms.EventType {
	t.Helper()
	var out []rooms.EventType
	for _, ev := range f.events(t) {
		out = append(out, ev.Type)
	}
	return out
}

func (f *fakeClient) lastAck(t *testing.T) Ack {
	t.Helper()
	evs := f.events(t)
	for i := len(evs) - 1; i >= 0; i-- {
		if evs[i].Type == rooms.EventAck {
			var ack Ack
			require.NoError(t, json.Unmarshal(evs[i].Data, &ack))
			return ack
		}
	}
	t.Fatalf("no ack among %d frames", len(evs))
	return Ack{}
}

func (f *fakeClient) reset() {
	f.mu.Lock()
	f.frames = nil
	f.mu.Unlock()
}

type harness struct {
	store    *memStore
	clock    *clockwork.FakeClock
	registry *rooms.Registry
	engine   *Engine
	disp     *Dispatcher
	agenda   *agenda.Synchronizer
	timer    *timer.Synchronizer
	nudge    *nudge.Synchronizer
}

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := newMemStore()
	store.agenda["m1"] = []models.AgendaItem{
		{ID: "a", Label: "A", DurationSeconds: 30, OrderIndex: 0, CreatedAt: base},
		{ID: "b", Label: "B", DurationSeconds: 45, OrderIndex: 1, CreatedAt: base},
		{ID: "c", Label: "C", DurationSeconds: 0, OrderIndex: 2, CreatedAt: base},
	}
	store.settings["m1"] = models.DefaultTimerSettings()

	clock := clockwork.NewFakeClockAt(base)
	registry := rooms.NewRegistry(clock)
	cd := cooldown.NewTracker(clock, 5*time.Minute)
	t.Cleanup(cd.Stop)

	h := &harness{
		store:    store,
		clock:    clock,
		registry: registry,
		agenda:   agenda.NewSynchronizer(store, registry, clock),
		timer:    timer.NewSynchronizer(store, registry, clock),
		nudge:    nudge.NewSynchronizer(store, registry, cd, clock),
	}
	h.engine = &Engine{Agenda: h.agenda, Timer: h.timer, Nudge: h.nudge}
	h.disp = NewDispatcher(h.engine, registry, clock, time.Second)
	return h
}

func (h *harness) send(t *testing.T, c Client, id, verb, meetingID string, data any) {
	t.Helper()
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		require.NoError(t, err)
		raw = b
	}
	frame, err := json.Marshal(Command{ID: id, Type: verb, MeetingID: meetingID, Data: raw})
	require.NoError(t, err)
	h.disp.Handle(context.Background(), c, frame)
}

func (h *harness) client(id string) *fakeClient {
	return &fakeClient{id: id, user: strings.ToUpper(id)}
}
