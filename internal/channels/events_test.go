package channels

import (
	"errors"
	"testing"
	"time"
)

func TestPublishDeliversBufferedEvents(t *testing.T) {
	events := NewEvents(Config{})

	events.PublishPollError(PollErrorEvent{Watcher: "status", Err: errors.New("nml read"), Timestamp: time.Now()})
	events.PublishWatcherState(WatcherStateEvent{Watcher: "hal", State: "armed", Timestamp: time.Now()})
	events.PublishListenerPanic(ListenerPanicEvent{Watcher: "status", Path: "task", Recovered: "boom", Timestamp: time.Now()})

	select {
	case ev := <-events.PollError:
		if ev.Watcher != "status" {
			t.Errorf("poll error watcher = %q", ev.Watcher)
		}
	default:
		t.Error("poll error event not delivered")
	}
	select {
	case ev := <-events.WatcherState:
		if ev.Watcher != "hal" || ev.State != "armed" {
			t.Errorf("state event = %+v", ev)
		}
	default:
		t.Error("watcher state event not delivered")
	}
	select {
	case ev := <-events.ListenerPanic:
		if ev.Recovered != "boom" {
			t.Errorf("panic event = %+v", ev)
		}
	default:
		t.Error("listener panic event not delivered")
	}
}

func TestPublishNeverBlocksOnFullBuffer(t *testing.T) {
	events := NewEvents(Config{WatcherStateBufferSize: 1})

	events.PublishWatcherState(WatcherStateEvent{State: "armed"})
	// Second publish finds the buffer full and must drop, not block.
	done := make(chan struct{})
	go func() {
		events.PublishWatcherState(WatcherStateEvent{State: "idle"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full buffer")
	}
}

func TestPublishOnNilHubIsNoOp(t *testing.T) {
	var events *Events
	events.PublishPollError(PollErrorEvent{})
	events.PublishWatcherState(WatcherStateEvent{})
	events.PublishListenerPanic(ListenerPanicEvent{})
}

func TestCloseSignalsDone(t *testing.T) {
	events := NewEvents(Config{})
	if err := events.Close(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-events.Done():
	default:
		t.Error("Done not closed after Close")
	}
}
