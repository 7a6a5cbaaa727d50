package notify

import (
	"testing"

	"github.com/mauzec/taskindex/internal/core"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestBusFanOut(t *testing.T) {
	bus := NewBus(4, nil)
	ch1, unsub1 := bus.Subscribe()
	ch2, unsub2 := bus.Subscribe()
	defer unsub2()
	require.Equal(t, 2, bus.Subscribers())

	bus.Publish(Event{Kind: KindTaskCreated, Task: &core.Task{ID: "t1"}, State: core.OutcomeConfirmed})

	ev := <-ch1
	require.Equal(t, KindTaskCreated, ev.Kind)
	require.Equal(t, "t1", ev.Task.ID)
	ev = <-ch2
	require.Equal(t, core.OutcomeConfirmed, ev.State)

	unsub1()
	unsub1()
	_, open := <-ch1
	require.False(t, open)
	require.Equal(t, 1, bus.Subscribers())
}

func TestBusDropsWhenFull(t *testing.T) {
	bus := NewBus(1, nil)
	ch, unsub := bus.Subscribe()
	defer unsub()

	before := testutil.ToFloat64(Dropped)
	bus.Publish(Event{Kind: KindMoreLoaded})
	bus.Publish(Event{Kind: KindNoMore})
	require.Equal(t, before+1, testutil.ToFloat64(Dropped))

	ev := <-ch
	require.Equal(t, KindMoreLoaded, ev.Kind)
}

func TestBusClose(t *testing.T) {
	bus := NewBus(0, nil)
	ch, unsub := bus.Subscribe()
	bus.Close()
	_, open := <-ch
	require.False(t, open)
	unsub()

	late, _ := bus.Subscribe()
	_, open = <-late
	require.False(t, open)

	// publishing after close is harmless
	bus.Publish(Event{Kind: KindResultChanged})
}
