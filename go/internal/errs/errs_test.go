package errs

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"validation", Invalid("kind", "must be more or less"), ReasonInvalid},
		{"cooldown", &CooldownError{Remaining: time.Second}, ReasonCooldown},
		{"conflict", fmt.Errorf("advance: %w", &ConflictError{Expected: 1, Current: 2}), ReasonConflict},
		{"not found with reason", &NotFoundError{Reason: ReasonTargetNotInMeeting}, ReasonTargetNotInMeeting},
		{"not found sentinel", fmt.Errorf("load: %w", ErrNotFound), ReasonNotFound},
		{"unknown verb", fmt.Errorf("timer:explode: %w", ErrInvalidCommand), ReasonInvalid},
		{"persistence", Persistence("advance", errors.New("conn refused")), ReasonServerError},
		{"unknown", errors.New("boom"), ReasonServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Reason(tc.err))
		})
	}
}

func TestPersistence_Unwraps(t *testing.T) {
	base := errors.New("db down")
	err := Persistence("reset", base)
	require.ErrorIs(t, err, base)

	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, "reset", pe.Op)
	require.NoError(t, Persistence("noop", nil))
}

func TestRemainingMs(t *testing.T) {
	require.Equal(t, int64(1500), RemainingMs(&CooldownError{Remaining: 1500 * time.Millisecond}))
	require.Equal(t, int64(0), RemainingMs(errors.New("other")))
}
