package logging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/overlayd/overlayd/internal/events"
)

func TestLogger_InfofMirrorsToEventBus(t *testing.T) {
	bus := events.NewBus(4)
	sub := bus.Subscribe(events.EventLog)

	log := New(bus)
	log.Infof("scan complete: %d files", 42)

	select {
	case evt := <-sub:
		logEvt, ok := evt.(events.LogEvent)
		require.True(t, ok)
		require.Equal(t, events.InfoLevel, logEvt.Level)
		require.Equal(t, "scan complete: 42 files", logEvt.Message)
	case <-time.After(time.Second):
		t.Fatal("expected a LogEvent to be published")
	}
}

func TestLogger_NilBusDoesNotPanic(t *testing.T) {
	log := New(nil)
	require.NotPanics(t, func() {
		log.Infof("no subscribers: %s", "fine")
	})
}

func TestLogger_ComponentTagsChildLogger(t *testing.T) {
	log := New(nil)
	child := log.Component("transfer")
	require.NotNil(t, child)
}
