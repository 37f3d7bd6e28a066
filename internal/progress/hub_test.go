package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
	closed int
}

func (c *captureSink) Consume(_ context.Context, batch []Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, batch...)
	return nil
}

func (c *captureSink) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *captureSink) snapshot() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func validEvent(stage Stage) Event {
	evt := Event{
		RequestID:     "req-1",
		ControlNumber: "K805670",
		TS:            time.Now().UTC(),
		Stage:         stage,
	}
	switch stage {
	case StageStateEnter:
		evt.State = "BYPASSING"
	case StageAttemptDone:
		evt.Attempt = 1
		evt.Result = ResultSuccess
	case StageRunDone:
		evt.Result = ResultSuccess
	}
	return evt
}

func TestHubDeliversInOrder(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{FlushInterval: 20 * time.Millisecond}, sink)

	stages := []Stage{StageRunStart, StageStateEnter, StageAttemptDone, StageRunDone}
	for _, st := range stages {
		hub.Emit(validEvent(st))
	}

	require.Eventually(t, func() bool {
		return len(sink.snapshot()) == len(stages)
	}, 2*time.Second, 10*time.Millisecond)

	got := sink.snapshot()
	for i, st := range stages {
		require.Equal(t, st, got[i].Stage)
	}

	require.NoError(t, hub.Close(context.Background()))
	require.Equal(t, 1, sink.closed)
}

func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{FlushInterval: 20 * time.Millisecond}, sink)

	hub.Emit(Event{Stage: StageRunStart}) // missing request id and timestamp
	hub.Emit(validEvent(StageRunStart))

	require.Eventually(t, func() bool {
		return len(sink.snapshot()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.snapshot(), 1)
}

func TestHubCloseFlushesPending(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	// Long flush interval so delivery happens only via the close drain.
	hub := NewHub(Config{FlushInterval: time.Minute}, sink)

	hub.Emit(validEvent(StageRunStart))
	hub.Emit(validEvent(StageRunDone))

	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.snapshot(), 2)

	// Emits after close are silently ignored.
	hub.Emit(validEvent(StageRunStart))
	require.Len(t, sink.snapshot(), 2)
	require.NoError(t, hub.Close(context.Background()))
}

func TestNilHubIsSafe(t *testing.T) {
	t.Parallel()

	var hub *Hub
	hub.Emit(validEvent(StageRunStart))
	require.NoError(t, hub.Close(context.Background()))
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Event)
		ok     bool
	}{
		{"run start", func(e *Event) {}, true},
		{"missing request id", func(e *Event) { e.RequestID = "" }, false},
		{"missing timestamp", func(e *Event) { e.TS = time.Time{} }, false},
		{"unknown stage", func(e *Event) { e.Stage = "WAT" }, false},
		{"state enter without state", func(e *Event) { e.Stage = StageStateEnter }, false},
		{"attempt done without attempt", func(e *Event) {
			e.Stage = StageAttemptDone
			e.Result = ResultSuccess
		}, false},
		{"attempt done without result", func(e *Event) {
			e.Stage = StageAttemptDone
			e.Attempt = 2
		}, false},
		{"run done without result", func(e *Event) { e.Stage = StageRunDone }, false},
		{"negative duration", func(e *Event) { e.Dur = -time.Second }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			evt := validEvent(StageRunStart)
			tc.mutate(&evt)
			err := evt.Validate()
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}
