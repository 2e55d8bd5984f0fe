package sqlutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func TestRun_Commits(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE nudges`).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err = Run(context.Background(), mock, func(tx pgx.Tx) error {
		_, err := tx.Exec(context.Background(), `UPDATE nudges SET in_meeting = false`)
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_RollsBackOnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()

	err = Run(context.Background(), mock, func(tx pgx.Tx) error { return boom })
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNullTimeHelpers(t *testing.T) {
	require.Nil(t, ToNullTime(time.Time{}))
	require.Nil(t, FromNullTime(nil))

	local := time.Date(2025, 3, 1, 10, 0, 0, 0, time.FixedZone("x", 3600))
	got := ToNullTime(local)
	require.NotNil(t, got)
	require.Equal(t, time.UTC, got.Location())
	require.True(t, got.Equal(local))
}

func TestStringOrIntOr(t *testing.T) {
	blank := "  "
	name := "Ada"
	require.Equal(t, "u1", StringOr(nil, "u1"))
	require.Equal(t, "u1", StringOr(&blank, "u1"))
	require.Equal(t, "Ada", StringOr(&name, "u1"))

	v := int32(7)
	require.Equal(t, 7, IntOr(&v, 0))
	require.Equal(t, 3, IntOr(nil, 3))
}
