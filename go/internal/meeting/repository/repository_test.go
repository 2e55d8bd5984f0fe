package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/mcdev12/flowminder/go/internal/errs"
	"github.com/mcdev12/flowminder/go/internal/models"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/sqlc-dev/pqtype"
	"github.com/stretchr/testify/require"
)

func newRepo(t *testing.T) (*Repository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return NewRepository(mock), mock
}

var participantCols = []string{"user_id", "display_name", "speak_more_count", "speak_less_count", "in_meeting"}

func strPtr(s string) *string { return &s }

func TestListAgendaItems_OK(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	done := created.Add(time.Minute)
	mock.ExpectQuery(`FROM agenda_items\s+WHERE meeting_id = \$1`).
		WithArgs("m1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "agenda_item", "duration_seconds", "order_index", "status", "processed_at", "created_at"}).
			AddRow("a", "Intro", int32(300), int32(0), "processed", &done, created).
			AddRow("b", "Demo", int32(600), int32(1), "pending", (*time.Time)(nil), created))

	items, err := r.ListAgendaItems(context.Background(), "m1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.True(t, items[0].Processed)
	require.NotNil(t, items[0].ProcessedAt)
	require.Equal(t, 300, items[0].DurationSeconds)
	require.False(t, items[1].Processed)
	require.Nil(t, items[1].ProcessedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListAgendaItems_QueryError(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	mock.ExpectQuery(`FROM agenda_items`).WithArgs("m1").WillReturnError(errors.New("boom"))

	_, err := r.ListAgendaItems(context.Background(), "m1")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetAgendaItemProcessed(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	at := time.Now().UTC()
	mock.ExpectExec(`UPDATE agenda_items`).
		WithArgs("m1", "a", "processed", &at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.SetAgendaItemProcessed(context.Background(), "m1", "a", &at))

	mock.ExpectExec(`UPDATE agenda_items`).
		WithArgs("m1", "a", "pending", (*time.Time)(nil)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.SetAgendaItemProcessed(context.Background(), "m1", "a", nil))

	mock.ExpectExec(`UPDATE agenda_items`).
		WithArgs("m1", "gone", "pending", (*time.Time)(nil)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	err := r.SetAgendaItemProcessed(context.Background(), "m1", "gone", nil)
	require.ErrorIs(t, err, errs.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkParticipantJoined_WithDisplayName(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO provider_users`).
		WithArgs("u1", "Ada").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO nudges`).
		WithArgs("m1", "u1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`FROM nudges n`).
		WithArgs("m1", "u1").
		WillReturnRows(pgxmock.NewRows(participantCols).AddRow("u1", strPtr("Ada"), int32(2), int32(1), true))
	mock.ExpectCommit()

	p, err := r.MarkParticipantJoined(context.Background(), "m1", "u1", "Ada")
	require.NoError(t, err)
	require.Equal(t, models.Participant{UserID: "u1", DisplayName: "Ada", MoreCount: 2, LessCount: 1, InMeeting: true}, p)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkParticipantJoined_FallsBackToUserID(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO nudges`).
		WithArgs("m1", "u9").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`FROM nudges n`).
		WithArgs("m1", "u9").
		WillReturnRows(pgxmock.NewRows(participantCols).AddRow("u9", (*string)(nil), int32(0), int32(0), true))
	mock.ExpectCommit()

	p, err := r.MarkParticipantJoined(context.Background(), "m1", "u9", "")
	require.NoError(t, err)
	require.Equal(t, "u9", p.DisplayName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkParticipantJoined_RollsBack(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO nudges`).
		WithArgs("m1", "u1").
		WillReturnError(errors.New("db down"))
	mock.ExpectRollback()

	_, err := r.MarkParticipantJoined(context.Background(), "m1", "u1", "")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkParticipantLeft(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	mock.ExpectExec(`UPDATE nudges\s+SET in_meeting = false`).
		WithArgs("m1", "u1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`FROM nudges n`).
		WithArgs("m1", "u1").
		WillReturnRows(pgxmock.NewRows(participantCols).AddRow("u1", strPtr("Ada"), int32(3), int32(0), false))

	p, err := r.MarkParticipantLeft(context.Background(), "m1", "u1")
	require.NoError(t, err)
	require.False(t, p.InMeeting)
	require.Equal(t, 3, p.MoreCount)

	mock.ExpectExec(`UPDATE nudges\s+SET in_meeting = false`).
		WithArgs("m1", "ghost").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	_, err = r.MarkParticipantLeft(context.Background(), "m1", "ghost")
	require.ErrorIs(t, err, errs.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetParticipant_NotFound(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	mock.ExpectQuery(`FROM nudges n`).WithArgs("m1", "u1").WillReturnError(pgx.ErrNoRows)

	_, err := r.GetParticipant(context.Background(), "m1", "u1")
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListParticipants(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	mock.ExpectQuery(`ORDER BY lower`).
		WithArgs("m1").
		WillReturnRows(pgxmock.NewRows(participantCols).
			AddRow("u2", strPtr("ada"), int32(0), int32(0), true).
			AddRow("u1", strPtr("Bob"), int32(1), int32(4), false))

	ps, err := r.ListParticipants(context.Background(), "m1")
	require.NoError(t, err)
	require.Len(t, ps, 2)
	require.Equal(t, "u2", ps[0].UserID)
	require.Equal(t, 4, ps[1].LessCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyNudge(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	mock.ExpectQuery(`AND in_meeting = true\s+RETURNING`).
		WithArgs("m1", "b", "more").
		WillReturnRows(pgxmock.NewRows([]string{"speak_more_count", "speak_less_count"}).AddRow(int32(1), int32(0)))
	more, less, err := r.ApplyNudge(context.Background(), "m1", "b", models.NudgeKindMore)
	require.NoError(t, err)
	require.Equal(t, 1, more)
	require.Equal(t, 0, less)

	mock.ExpectQuery(`AND in_meeting = true\s+RETURNING`).
		WithArgs("m1", "gone", "less").
		WillReturnError(pgx.ErrNoRows)
	_, _, err = r.ApplyNudge(context.Background(), "m1", "gone", models.NudgeKindLess)
	require.ErrorIs(t, err, errs.ErrTargetNotInMeeting)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResetNudges(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	mock.ExpectExec(`SET speak_more_count = 0, speak_less_count = 0`).
		WithArgs("m1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))
	require.NoError(t, r.ResetNudges(context.Background(), "m1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTimerSettings(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	mock.ExpectQuery(`SELECT timer_settings FROM meetings`).
		WithArgs("m1").
		WillReturnRows(pgxmock.NewRows([]string{"timer_settings"}).
			AddRow([]byte(`{"hasTimers":true,"defaultVisibility":"everyone","automation":{"autoAdvance":true}}`)))
	s, err := r.GetTimerSettings(context.Background(), "m1")
	require.NoError(t, err)
	require.True(t, s.HasTimers)
	require.Equal(t, models.VisibilityEveryone, s.DefaultVisibility)
	require.True(t, s.Automation.AutoAdvance)
	require.False(t, s.Automation.AutoStartNextTimer)

	mock.ExpectQuery(`SELECT timer_settings FROM meetings`).
		WithArgs("m2").
		WillReturnRows(pgxmock.NewRows([]string{"timer_settings"}).AddRow(nil))
	s, err = r.GetTimerSettings(context.Background(), "m2")
	require.NoError(t, err)
	require.Equal(t, models.DefaultTimerSettings(), s)

	mock.ExpectQuery(`SELECT timer_settings FROM meetings`).
		WithArgs("m3").
		WillReturnError(pgx.ErrNoRows)
	_, err = r.GetTimerSettings(context.Background(), "m3")
	require.ErrorIs(t, err, errs.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveTimerSettings(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	in := models.TimerSettings{HasTimers: true, DefaultVisibility: "bogus"}
	mock.ExpectQuery(`UPDATE meetings`).
		WithArgs("m1", pqtype.NullRawMessage{
			RawMessage: json.RawMessage(`{"hasTimers":true,"defaultVisibility":"me","automation":{"autoAdvance":false,"autoStartNextTimer":false}}`),
			Valid:      true,
		}).
		WillReturnRows(pgxmock.NewRows([]string{"timer_settings"}).
			AddRow([]byte(`{"hasTimers":true,"defaultVisibility":"me","automation":{"autoAdvance":false,"autoStartNextTimer":false},"updatedAt":"2026-03-01T09:00:00.000Z"}`)))

	out, err := r.SaveTimerSettings(context.Background(), "m1", in)
	require.NoError(t, err)
	require.Equal(t, models.VisibilityMe, out.DefaultVisibility)
	require.NotNil(t, out.UpdatedAt)
	require.Equal(t, 2026, out.UpdatedAt.Year())
	require.NoError(t, mock.ExpectationsWereMet())
}
