package events

import (
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	ch := bus.Subscribe(EventTransferProgress)

	bus.Publish(&TransferEvent{
		BaseEvent:  BaseEvent{EventType: EventTransferProgress, Time: time.Now()},
		TransferID: "xfer-1",
		Direction:  "download",
		Filename:   "file.bin",
		Offset:     512,
		Size:       1024,
	})

	select {
	case received := <-ch:
		ev, ok := received.(*TransferEvent)
		if !ok {
			t.Fatal("expected TransferEvent")
		}
		if ev.TransferID != "xfer-1" {
			t.Errorf("expected transfer id xfer-1, got %s", ev.TransferID)
		}
		if ev.Offset != 512 {
			t.Errorf("expected offset 512, got %d", ev.Offset)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
}

func TestBus_MultipleSubscribers(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	ch1 := bus.Subscribe(EventLog)
	ch2 := bus.Subscribe(EventLog)

	bus.Publish(&LogEvent{
		BaseEvent: BaseEvent{EventType: EventLog, Time: time.Now()},
		Level:     InfoLevel,
		Message:   "hello",
	})

	received1, received2 := false, false
	select {
	case <-ch1:
		received1 = true
	case <-time.After(100 * time.Millisecond):
	}
	select {
	case <-ch2:
		received2 = true
	case <-time.After(100 * time.Millisecond):
	}

	if !received1 || !received2 {
		t.Error("not all subscribers received the event")
	}
}

func TestBus_DifferentEventTypes(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	transferCh := bus.Subscribe(EventTransferQueued)
	logCh := bus.Subscribe(EventLog)

	bus.Publish(&TransferEvent{
		BaseEvent:  BaseEvent{EventType: EventTransferQueued, Time: time.Now()},
		TransferID: "xfer-2",
	})

	select {
	case <-transferCh:
	case <-time.After(100 * time.Millisecond):
		t.Error("transfer subscriber didn't receive event")
	}

	select {
	case <-logCh:
		t.Error("log subscriber received wrong event type")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_SubscribeAll(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	allCh := bus.SubscribeAll()

	bus.Publish(&TransferEvent{BaseEvent: BaseEvent{EventType: EventTransferQueued, Time: time.Now()}})
	bus.Publish(&LogEvent{BaseEvent: BaseEvent{EventType: EventLog, Time: time.Now()}})

	count := 0
	for i := 0; i < 2; i++ {
		select {
		case <-allCh:
			count++
		case <-time.After(100 * time.Millisecond):
		}
	}
	if count != 2 {
		t.Errorf("expected 2 events, got %d", count)
	}
}

func TestBus_NonBlockingDropsExcess(t *testing.T) {
	bus := NewBus(2)
	defer bus.Close()

	ch := bus.Subscribe(EventTransferQueued)

	for i := 0; i < 10; i++ {
		bus.Publish(&TransferEvent{BaseEvent: BaseEvent{EventType: EventTransferQueued, Time: time.Now()}})
	}

	if bus.DroppedCount() == 0 {
		t.Error("expected some events to be dropped once the buffer filled")
	}

	count := 0
drain:
	for {
		select {
		case <-ch:
			count++
		case <-time.After(10 * time.Millisecond):
			break drain
		}
	}
	if count == 0 {
		t.Error("should have received at least some events")
	}
}

func TestBus_Close(t *testing.T) {
	bus := NewBus(10)
	ch := bus.Subscribe(EventTransferQueued)
	bus.Close()

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after bus.Close()")
	}

	// Publishing after close must not panic.
	bus.Publish(&TransferEvent{BaseEvent: BaseEvent{EventType: EventTransferQueued, Time: time.Now()}})
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	ch := bus.Subscribe(EventTransferQueued)
	bus.Unsubscribe(EventTransferQueued, ch)

	bus.Publish(&TransferEvent{BaseEvent: BaseEvent{EventType: EventTransferQueued, Time: time.Now()}})

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("unsubscribed channel should not receive further events")
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.expected {
			t.Errorf("level %d: expected %s, got %s", tt.level, tt.expected, got)
		}
	}
}
