package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/mcdev12/flowminder/go/internal/meeting/agenda"
	"github.com/mcdev12/flowminder/go/internal/meeting/nudge"
	"github.com/mcdev12/flowminder/go/internal/meeting/timer"
	"github.com/mcdev12/flowminder/go/internal/models"
	"github.com/rs/zerolog/log"
)

// AgendaSync is what the gateway needs from the agenda synchronizer.
type AgendaSync interface {
	GetOrLoad(ctx context.Context, meetingID string) (agenda.Snapshot, error)
	Advance(ctx context.Context, meetingID string, expectedVersion *int) (models.Result, error)
	Retreat(ctx context.Context, meetingID string, expectedVersion *int) (models.Result, error)
	ForceReload(ctx context.Context, meetingID string) (agenda.Snapshot, error)
	ReloadAll(ctx context.Context) (int, error)
}

// TimerSync is what the gateway needs from the timer synchronizer.
type TimerSync interface {
	Get(meetingID string) timer.View
	Start(meetingID string, d time.Duration) models.Result
	Pause(meetingID string) models.Result
	Resume(meetingID string) models.Result
	Cancel(meetingID string) models.Result
	EditEnd(meetingID string, proposedEndAt time.Time) models.Result
	Settings(ctx context.Context, meetingID string) (models.TimerSettings, error)
	UpdateSettings(ctx context.Context, meetingID string, settings models.TimerSettings) (models.TimerSettings, error)
	SettingsApplied(meetingID string, settings models.TimerSettings)
}

// NudgeSync is what the gateway needs from the nudge synchronizer.
type NudgeSync interface {
	JoinMeeting(ctx context.Context, meetingID, userID, displayName string) (models.Result, error)
	LeaveMeeting(ctx context.Context, meetingID, userID string) (models.Result, error)
	Cast(ctx context.Context, meetingID, voterID, targetID string, kind models.NudgeKind) (nudge.Tally, error)
	Reset(ctx context.Context, meetingID string) (models.Result, error)
	BuildSnapshot(ctx context.Context, meetingID string) (nudge.Snapshot, error)
	Invalidate(meetingID string)
}

// MeetingState is the full state of one meeting.
type MeetingState struct {
	MeetingID     string                `json:"meetingId"`
	Agenda        agenda.Snapshot       `json:"agenda"`
	Timer         timer.View            `json:"timer"`
	Nudges        nudge.Snapshot        `json:"nudges"`
	TimerSettings *models.TimerSettings `json:"timerSettings,omitempty"`
}

// Engine groups the synchronizers of every meeting. It serves the dispatcher, the HTTP
// hooks and the hook bus.
type Engine struct {
	Agenda AgendaSync
	Timer  TimerSync
	Nudge  NudgeSync
}

// State assembles the full meeting state. Missing timer settings are not an error.
func (e *Engine) State(ctx context.Context, meetingID string) (*MeetingState, error) {
	agendaSnap, err := e.Agenda.GetOrLoad(ctx, meetingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load agenda: %w", err)
	}
	nudges, err := e.Nudge.BuildSnapshot(ctx, meetingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load roster: %w", err)
	}
	state := &MeetingState{
		MeetingID: meetingID,
		Agenda:    agendaSnap,
		Timer:     e.Timer.Get(meetingID),
		Nudges:    nudges,
	}
	if settings, err := e.Timer.Settings(ctx, meetingID); err == nil {
		state.TimerSettings = &settings
	} else {
		log.Debug().Err(err).Str("meeting_id", meetingID).Msg("timer settings unavailable")
	}
	return state, nil
}

// AgendaChanged reloads the agenda after an out-of-band write.
func (e *Engine) AgendaChanged(ctx context.Context, meetingID string) error {
	_, err := e.Agenda.ForceReload(ctx, meetingID)
	return err
}

// AgendaResync reloads every cached agenda when individual change notifications may have
// been lost.
func (e *Engine) AgendaResync(ctx context.Context) error {
	_, err := e.Agenda.ReloadAll(ctx)
	return err
}

// ParticipantJoined records a provider join.
func (e *Engine) ParticipantJoined(ctx context.Context, meetingID, userID, displayName string) error {
	_, err := e.Nudge.JoinMeeting(ctx, meetingID, userID, displayName)
	return err
}

// ParticipantLeft records a provider leave.
func (e *Engine) ParticipantLeft(ctx context.Context, meetingID, userID string) error {
	_, err := e.Nudge.LeaveMeeting(ctx, meetingID, userID)
	return err
}

// TimerSettingsUpdated broadcasts settings written by another process.
func (e *Engine) TimerSettingsUpdated(_ context.Context, meetingID string, settings models.TimerSettings) error {
	e.Timer.SettingsApplied(meetingID, settings)
	return nil
}
