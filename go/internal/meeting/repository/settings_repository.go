package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/mcdev12/flowminder/go/internal/errs"
	"github.com/mcdev12/flowminder/go/internal/models"
	"github.com/sqlc-dev/pqtype"
)

const getTimerSettingsSQL = `SELECT timer_settings FROM meetings WHERE id = $1`

const saveTimerSettingsSQL = `
UPDATE meetings
SET timer_settings = jsonb_set($2::jsonb, '{updatedAt}',
        to_jsonb(to_char(now() at time zone 'utc', 'YYYY-MM-DD"T"HH24:MI:SS.MS"Z"')), true)
WHERE id = $1
RETURNING timer_settings`

// GetTimerSettings returns the stored timer defaults, or the defaults when the column is NULL.
func (r *Repository) GetTimerSettings(ctx context.Context, meetingID string) (models.TimerSettings, error) {
	var raw pqtype.NullRawMessage
	err := r.pool.QueryRow(ctx, getTimerSettingsSQL, meetingID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.TimerSettings{}, fmt.Errorf("meeting %s: %w", meetingID, errs.ErrNotFound)
	}
	if err != nil {
		return models.TimerSettings{}, fmt.Errorf("failed to get timer settings: %w", err)
	}
	return decodeTimerSettings(raw)
}

// SaveTimerSettings stores the settings blob with a server-assigned updatedAt and returns
// what was stored.
func (r *Repository) SaveTimerSettings(ctx context.Context, meetingID string, settings models.TimerSettings) (models.TimerSettings, error) {
	settings.UpdatedAt = nil
	body, err := json.Marshal(settings.Normalize())
	if err != nil {
		return models.TimerSettings{}, fmt.Errorf("failed to marshal timer settings: %w", err)
	}

	var stored pqtype.NullRawMessage
	err = r.pool.QueryRow(ctx, saveTimerSettingsSQL, meetingID, pqtype.NullRawMessage{RawMessage: body, Valid: true}).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.TimerSettings{}, fmt.Errorf("meeting %s: %w", meetingID, errs.ErrNotFound)
	}
	if err != nil {
		return models.TimerSettings{}, fmt.Errorf("failed to save timer settings: %w", err)
	}
	return decodeTimerSettings(stored)
}

func decodeTimerSettings(raw pqtype.NullRawMessage) (models.TimerSettings, error) {
	if !raw.Valid || len(raw.RawMessage) == 0 {
		return models.DefaultTimerSettings(), nil
	}
	settings := models.DefaultTimerSettings()
	if err := json.Unmarshal(raw.RawMessage, &settings); err != nil {
		return models.TimerSettings{}, fmt.Errorf("failed to decode timer settings: %w", err)
	}
	return settings.Normalize(), nil
}
