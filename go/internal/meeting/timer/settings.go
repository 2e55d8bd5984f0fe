package timer

import (
	"context"
	"errors"

	"github.com/mcdev12/flowminder/go/internal/errs"
	"github.com/mcdev12/flowminder/go/internal/meeting/rooms"
	"github.com/mcdev12/flowminder/go/internal/models"
	"github.com/rs/zerolog/log"
)

// SettingsStore persists the per-meeting timer defaults.
type SettingsStore interface {
	GetTimerSettings(ctx context.Context, meetingID string) (models.TimerSettings, error)
	SaveTimerSettings(ctx context.Context, meetingID string, settings models.TimerSettings) (models.TimerSettings, error)
}

// SettingsUpdate is the settings:update payload.
type SettingsUpdate struct {
	TimerSettings models.TimerSettings `json:"timer_settings"`
	ServerTime    int64                `json:"serverTime"`
}

// Settings reads the stored timer defaults of a meeting.
func (s *Synchronizer) Settings(ctx context.Context, meetingID string) (models.TimerSettings, error) {
	if s.settings == nil {
		return models.DefaultTimerSettings(), nil
	}
	settings, err := s.settings.GetTimerSettings(ctx, meetingID)
	if err != nil {
		return models.TimerSettings{}, errs.Persistence("timer.settings", err)
	}
	return settings, nil
}

// UpdateSettings persists new timer defaults and broadcasts them to the room.
func (s *Synchronizer) UpdateSettings(ctx context.Context, meetingID string, settings models.TimerSettings) (models.TimerSettings, error) {
	if s.settings == nil {
		return models.TimerSettings{}, errs.Persistence("timer.updateSettings", errors.New("no settings store configured"))
	}
	if settings.DefaultVisibility != "" && settings.DefaultVisibility != models.VisibilityMe && settings.DefaultVisibility != models.VisibilityEveryone {
		return models.TimerSettings{}, errs.Invalid("defaultVisibility", "must be me or everyone")
	}
	stored, err := s.settings.SaveTimerSettings(ctx, meetingID, settings)
	if err != nil {
		return models.TimerSettings{}, errs.Persistence("timer.updateSettings", err)
	}
	s.SettingsApplied(meetingID, stored)
	return stored, nil
}

// SettingsApplied broadcasts settings that were written elsewhere. It never touches the
// countdown state.
func (s *Synchronizer) SettingsApplied(meetingID string, settings models.TimerSettings) {
	s.rooms.Broadcast(meetingID, rooms.EventSettingsUpdate, SettingsUpdate{
		TimerSettings: settings.Normalize(),
		ServerTime:    s.clock.Now().UnixMilli(),
	})
	log.Debug().Str("meeting_id", meetingID).Msg("timer settings broadcast")
}
