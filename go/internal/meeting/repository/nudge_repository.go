package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/mcdev12/flowminder/go/internal/errs"
	"github.com/mcdev12/flowminder/go/internal/models"
	"github.com/mcdev12/flowminder/go/internal/sqlutil"
)

const participantColumns = `
SELECT n.user_id,
       z.display_name,
       n.speak_more_count,
       n.speak_less_count,
       n.in_meeting
FROM nudges n
LEFT JOIN provider_users z ON z.user_id = n.user_id`

const listParticipantsSQL = participantColumns + `
WHERE n.meeting_id = $1
ORDER BY lower(COALESCE(z.display_name, n.user_id)) ASC, n.user_id ASC`

const getParticipantSQL = participantColumns + `
WHERE n.meeting_id = $1 AND n.user_id = $2`

const upsertDisplayNameSQL = `
INSERT INTO provider_users (user_id, display_name)
VALUES ($1, $2)
ON CONFLICT (user_id) DO UPDATE SET display_name = EXCLUDED.display_name`

const markJoinedSQL = `
INSERT INTO nudges (meeting_id, user_id, in_meeting)
VALUES ($1, $2, true)
ON CONFLICT (meeting_id, user_id)
DO UPDATE SET in_meeting = true, updated_at = now()`

const markLeftSQL = `
UPDATE nudges
SET in_meeting = false, updated_at = now()
WHERE meeting_id = $1 AND user_id = $2`

const applyNudgeSQL = `
UPDATE nudges
SET speak_more_count = speak_more_count + CASE WHEN $3 = 'more' THEN 1 ELSE 0 END,
    speak_less_count = speak_less_count + CASE WHEN $3 = 'less' THEN 1 ELSE 0 END,
    updated_at       = now()
WHERE meeting_id = $1
  AND user_id    = $2
  AND in_meeting = true
RETURNING speak_more_count, speak_less_count`

const resetNudgesSQL = `
UPDATE nudges
SET speak_more_count = 0, speak_less_count = 0, updated_at = now()
WHERE meeting_id = $1`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanParticipant(row rowScanner) (models.Participant, error) {
	var (
		p           models.Participant
		displayName *string
		more, less  int32
	)
	if err := row.Scan(&p.UserID, &displayName, &more, &less, &p.InMeeting); err != nil {
		return models.Participant{}, err
	}
	p.DisplayName = sqlutil.StringOr(displayName, p.UserID)
	p.MoreCount = int(more)
	p.LessCount = int(less)
	return p, nil
}

// ListParticipants returns the meeting roster ordered by display name, case-insensitive.
func (r *Repository) ListParticipants(ctx context.Context, meetingID string) ([]models.Participant, error) {
	rows, err := r.pool.Query(ctx, listParticipantsSQL, meetingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	var out []models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate participants: %w", err)
	}
	return out, nil
}

// GetParticipant returns one roster row or errs.ErrNotFound.
func (r *Repository) GetParticipant(ctx context.Context, meetingID, userID string) (models.Participant, error) {
	p, err := scanParticipant(r.pool.QueryRow(ctx, getParticipantSQL, meetingID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Participant{}, fmt.Errorf("participant %s: %w", userID, errs.ErrNotFound)
	}
	if err != nil {
		return models.Participant{}, fmt.Errorf("failed to get participant: %w", err)
	}
	return p, nil
}

// MarkParticipantJoined upserts the roster row with in_meeting=true and returns it. A
// non-empty displayName is recorded first.
func (r *Repository) MarkParticipantJoined(ctx context.Context, meetingID, userID, displayName string) (models.Participant, error) {
	var p models.Participant
	err := sqlutil.Run(ctx, r.pool, func(tx pgx.Tx) error {
		if displayName != "" {
			if _, err := tx.Exec(ctx, upsertDisplayNameSQL, userID, displayName); err != nil {
				return fmt.Errorf("failed to upsert display name: %w", err)
			}
		}
		if _, err := tx.Exec(ctx, markJoinedSQL, meetingID, userID); err != nil {
			return fmt.Errorf("failed to mark participant joined: %w", err)
		}
		row, err := scanParticipant(tx.QueryRow(ctx, getParticipantSQL, meetingID, userID))
		if err != nil {
			return fmt.Errorf("failed to read participant: %w", err)
		}
		p = row
		return nil
	})
	return p, err
}

// MarkParticipantLeft flips in_meeting to false. Counts are preserved. Returns
// errs.ErrNotFound when the user never joined.
func (r *Repository) MarkParticipantLeft(ctx context.Context, meetingID, userID string) (models.Participant, error) {
	tag, err := r.pool.Exec(ctx, markLeftSQL, meetingID, userID)
	if err != nil {
		return models.Participant{}, fmt.Errorf("failed to mark participant left: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.Participant{}, fmt.Errorf("participant %s: %w", userID, errs.ErrNotFound)
	}
	return r.GetParticipant(ctx, meetingID, userID)
}

// ApplyNudge atomically increments one counter of a target that is in the meeting and
// returns the new absolute counts. Returns errs.ErrTargetNotInMeeting otherwise.
func (r *Repository) ApplyNudge(ctx context.Context, meetingID, targetID string, kind models.NudgeKind) (more, less int, err error) {
	var m, l int32
	err = r.pool.QueryRow(ctx, applyNudgeSQL, meetingID, targetID, string(kind)).Scan(&m, &l)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, errs.ErrTargetNotInMeeting
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to apply nudge: %w", err)
	}
	return int(m), int(l), nil
}

// ResetNudges zeroes both counters for every roster row of the meeting.
func (r *Repository) ResetNudges(ctx context.Context, meetingID string) error {
	if _, err := r.pool.Exec(ctx, resetNudgesSQL, meetingID); err != nil {
		return fmt.Errorf("failed to reset nudges: %w", err)
	}
	return nil
}
