package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

type counter struct{ n int }

func TestWithInitialisesLazily(t *testing.T) {
	tbl := NewTable[counter](clockwork.NewFakeClock())

	err := tbl.With("m1", func(slot *Slot[counter]) error {
		require.Nil(t, slot.State)
		slot.State = &counter{n: 1}
		return nil
	})
	require.NoError(t, err)

	err = tbl.With("m1", func(slot *Slot[counter]) error {
		require.NotNil(t, slot.State)
		require.Equal(t, 1, slot.State.n)
		return errors.New("boom")
	})
	require.EqualError(t, err, "boom")
	require.Equal(t, 1, tbl.Len())
}

func TestWithSerialisesPerMeeting(t *testing.T) {
	tbl := NewTable[counter](nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = tbl.With("m1", func(slot *Slot[counter]) error {
				if slot.State == nil {
					slot.State = &counter{}
				}
				n := slot.State.n
				time.Sleep(time.Microsecond)
				slot.State.n = n + 1
				return nil
			})
		}()
	}
	wg.Wait()

	_ = tbl.With("m1", func(slot *Slot[counter]) error {
		require.Equal(t, 50, slot.State.n)
		return nil
	})
}

func TestEvictIdle(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tbl := NewTable[counter](clock)

	for _, id := range []string{"idle", "busy", "kept"} {
		id := id
		require.NoError(t, tbl.With(id, func(slot *Slot[counter]) error {
			slot.State = &counter{}
			return nil
		}))
	}

	clock.Advance(10 * time.Minute)
	require.NoError(t, tbl.With("busy", func(*Slot[counter]) error { return nil }))

	var evicted []string
	n := tbl.EvictIdle(5*time.Minute,
		func(id string, _ *counter) bool { return id == "kept" },
		func(id string, _ *counter) { evicted = append(evicted, id) })

	require.Equal(t, 1, n)
	require.Equal(t, []string{"idle"}, evicted)
	require.Equal(t, 2, tbl.Len())
}

func TestIDsSorted(t *testing.T) {
	tbl := NewTable[counter](clockwork.NewFakeClock())
	require.Empty(t, tbl.IDs())

	for _, id := range []string{"m3", "m1", "m2"} {
		require.NoError(t, tbl.With(id, func(*Slot[counter]) error { return nil }))
	}
	require.Equal(t, []string{"m1", "m2", "m3"}, tbl.IDs())
}
