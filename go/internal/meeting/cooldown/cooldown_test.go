package cooldown

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestCheckAndClaim(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := NewTracker(clock, 5*time.Minute)
	defer tr.Stop()

	key := Key{MeetingID: "m1", VoterID: "a", TargetID: "b"}

	ok, remaining := tr.CheckAndClaim(key)
	require.True(t, ok)
	require.Zero(t, remaining)

	clock.Advance(time.Minute)
	ok, remaining = tr.CheckAndClaim(key)
	require.False(t, ok)
	require.Equal(t, 4*time.Minute, remaining)
	require.Equal(t, 4*time.Minute, tr.Remaining(key))

	// other triples are independent
	ok, _ = tr.CheckAndClaim(Key{MeetingID: "m1", VoterID: "a", TargetID: "c"})
	require.True(t, ok)
	ok, _ = tr.CheckAndClaim(Key{MeetingID: "m2", VoterID: "a", TargetID: "b"})
	require.True(t, ok)
	require.Equal(t, 3, tr.Len())
}

func TestEntriesExpire(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := NewTracker(clock, time.Minute)
	defer tr.Stop()

	key := Key{MeetingID: "m1", VoterID: "a", TargetID: "b"}
	ok, _ := tr.CheckAndClaim(key)
	require.True(t, ok)

	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return tr.Len() == 0 }, time.Second, 5*time.Millisecond)

	ok, _ = tr.CheckAndClaim(key)
	require.True(t, ok)
}

func TestRelease(t *testing.T) {
	tr := NewTracker(clockwork.NewFakeClock(), time.Minute)
	defer tr.Stop()

	key := Key{MeetingID: "m1", VoterID: "a", TargetID: "b"}
	ok, _ := tr.CheckAndClaim(key)
	require.True(t, ok)

	tr.Release(key)
	require.Zero(t, tr.Len())
	require.Zero(t, tr.Remaining(key))

	ok, _ = tr.CheckAndClaim(key)
	require.True(t, ok)
}

func TestDefaults(t *testing.T) {
	tr := NewTracker(nil, 0)
	defer tr.Stop()
	require.Equal(t, DefaultWindow, tr.Window())
}
