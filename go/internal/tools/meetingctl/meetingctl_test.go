package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/flowminder/go/internal/meeting/bus"
	"github.com/mcdev12/flowminder/go/internal/models"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakePublisher struct {
	url    string
	sent   []bus.Envelope
	closed bool
}

func (p *fakePublisher) Publish(_ context.Context, env bus.Envelope) error {
	p.sent = append(p.sent, env)
	return nil
}

func (p *fakePublisher) Close() { p.closed = true }

type fakeStore struct {
	items    []models.AgendaItem
	saved    map[string]models.TimerSettings
	saveErr  error
	released bool
}

func (s *fakeStore) ListAgendaItems(_ context.Context, _ string) ([]models.AgendaItem, error) {
	return s.items, nil
}

func (s *fakeStore) SaveTimerSettings(_ context.Context, meetingID string, settings models.TimerSettings) (models.TimerSettings, error) {
	if s.saveErr != nil {
		return models.TimerSettings{}, s.saveErr
	}
	at := now
	settings.UpdatedAt = &at
	s.saved[meetingID] = settings
	return settings, nil
}

type fixture struct {
	deps      *Dependencies
	publisher *fakePublisher
	store     *fakeStore
	migrated  []string
}

func newFixture() *fixture {
	f := &fixture{
		publisher: &fakePublisher{},
		store:     &fakeStore{saved: map[string]models.TimerSettings{}},
	}
	f.deps = &Dependencies{
		Clock: clockwork.NewFakeClockAt(now),
		DSN:   "postgres://test",
		Migrate: func(_ context.Context, dsn string) error {
			f.migrated = append(f.migrated, dsn)
			return nil
		},
		Status: func(context.Context, string) error { return nil },
		OpenStore: func(context.Context) (Store, func(), error) {
			return f.store, func() { f.store.released = true }, nil
		},
		OpenPublisher: func(_ context.Context, natsURL string) (Publisher, error) {
			f.publisher.url = natsURL
			return f.publisher, nil
		},
	}
	return f
}

func (f *fixture) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd(f.deps)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMigrateUp(t *testing.T) {
	f := newFixture()
	out, err := f.run(t, "", "migrate", "up")
	require.NoError(t, err)
	require.Equal(t, []string{"postgres://test"}, f.migrated)
	require.Contains(t, out, "migrations applied")
}

func TestRosterJoinPublishes(t *testing.T) {
	f := newFixture()
	out, err := f.run(t, "", "roster", "join", "m1", "u1", "--name", "Ada", "--nats-url", "nats://bus:4222")
	require.NoError(t, err)

	require.Equal(t, "nats://bus:4222", f.publisher.url)
	require.True(t, f.publisher.closed)
	require.Len(t, f.publisher.sent, 1)
	env := f.publisher.sent[0]
	require.Equal(t, bus.EventTypeParticipantJoined, env.EventType)
	require.Equal(t, "m1", env.MeetingID)
	require.True(t, env.Timestamp.Equal(now))
	require.JSONEq(t, `{"userId":"u1","displayName":"Ada"}`, string(env.Payload))
	require.Contains(t, out, "published ParticipantJoined for meeting m1")
}

func TestRosterLeaveNeedsBothIDs(t *testing.T) {
	f := newFixture()
	_, err := f.run(t, "", "roster", "leave", "m1")
	require.Error(t, err)
	require.Empty(t, f.publisher.sent)
}

func TestAgendaReload(t *testing.T) {
	f := newFixture()
	_, err := f.run(t, "", "agenda", "reload", "m1")
	require.NoError(t, err)
	require.Len(t, f.publisher.sent, 1)
	require.Equal(t, bus.EventTypeAgendaChanged, f.publisher.sent[0].EventType)
}

func TestAgendaList(t *testing.T) {
	f := newFixture()
	f.store.items = []models.AgendaItem{
		{ID: "a", Label: "Intro", DurationSeconds: 300, Processed: true},
		{ID: "b", Label: "Roadmap", DurationSeconds: 900},
	}

	out, err := f.run(t, "", "agenda", "list", "m1")
	require.NoError(t, err)
	require.True(t, f.store.released)
	require.Contains(t, out, "Intro")
	require.Contains(t, out, "processed")
	require.Contains(t, out, "Roadmap")
	require.Contains(t, out, "pending")
}

func TestSettingsPutFromFile(t *testing.T) {
	f := newFixture()
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"hasTimers":true,"defaultVisibility":"loud","automation":{"autoAdvance":true}}`), 0o600))

	_, err := f.run(t, "", "settings", "put", "m1", "--file", path)
	require.NoError(t, err)

	saved := f.store.saved["m1"]
	require.True(t, saved.HasTimers)
	require.Equal(t, models.VisibilityMe, saved.DefaultVisibility)
	require.True(t, saved.Automation.AutoAdvance)

	require.Len(t, f.publisher.sent, 1)
	var payload bus.TimerSettingsPayload
	require.NoError(t, json.Unmarshal(f.publisher.sent[0].Payload, &payload))
	require.Equal(t, saved.HasTimers, payload.TimerSettings.HasTimers)
	require.NotNil(t, payload.TimerSettings.UpdatedAt)
}

func TestSettingsPutFromStdin(t *testing.T) {
	f := newFixture()
	_, err := f.run(t, `{"hasTimers":false,"defaultVisibility":"everyone"}`, "settings", "put", "m2", "-f", "-")
	require.NoError(t, err)
	require.Equal(t, models.VisibilityEveryone, f.store.saved["m2"].DefaultVisibility)
}

func TestSettingsPutStoreFailureDoesNotPublish(t *testing.T) {
	f := newFixture()
	f.store.saveErr = errors.New("meeting missing")

	_, err := f.run(t, `{"hasTimers":true}`, "settings", "put", "m1", "-f", "-")
	require.ErrorContains(t, err, "meeting missing")
	require.Empty(t, f.publisher.sent)
}

func TestSettingsPutRequiresFile(t *testing.T) {
	f := newFixture()
	_, err := f.run(t, "", "settings", "put", "m1")
	require.Error(t, err)
}
