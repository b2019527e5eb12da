package events

import (
	"testing"
	"time"
)

func recvEvent(t *testing.T, sub *Subscriber) Event {
	t.Helper()
	select {
	case ev := <-sub.C:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestPublishReachesAllSubscribers(t *testing.T) {
	bus := NewBus(4)
	a := bus.Subscribe()
	b := bus.Subscribe()
	defer a.Close()
	defer b.Close()

	bus.Changed(Player)

	if ev := recvEvent(t, a); ev.Topic != Player {
		t.Errorf("subscriber a got topic %q", ev.Topic)
	}
	if ev := recvEvent(t, b); ev.Topic != Player {
		t.Errorf("subscriber b got topic %q", ev.Topic)
	}
}

func TestTopicFilter(t *testing.T) {
	bus := NewBus(4)
	sub := bus.Subscribe(Mixer)
	defer sub.Close()

	bus.Changed(Player)
	bus.Changed(Mixer)

	ev := recvEvent(t, sub)
	if ev.Topic != Mixer {
		t.Errorf("filtered subscriber got %q, want mixer", ev.Topic)
	}
	select {
	case ev := <-sub.C:
		t.Errorf("unexpected second event %q", ev.Topic)
	default:
	}
}

func TestPayloadDelivery(t *testing.T) {
	bus := NewBus(4)
	sub := bus.Subscribe(Device)
	defer sub.Close()

	bus.Publish(Device, "living-room")
	ev := recvEvent(t, sub)
	if got, ok := ev.Payload.(string); !ok || got != "living-room" {
		t.Errorf("payload = %v", ev.Payload)
	}
	if ev.At.IsZero() {
		t.Error("event timestamp should be set")
	}
}

func TestLaggedSubscriber(t *testing.T) {
	bus := NewBus(1)
	sub := bus.Subscribe(Playlist)
	defer sub.Close()

	// Fill the buffer, then overflow it.
	bus.Changed(Playlist)
	bus.Changed(Playlist)
	bus.Changed(Playlist)

	first := recvEvent(t, sub)
	if first.Lagged {
		t.Error("first delivered event should not be lagged")
	}
	second := recvEvent(t, sub)
	if !second.Lagged {
		t.Error("overflow should surface as a single lagged event")
	}

	// Delivery resumes normally after the lag marker.
	bus.Changed(Playlist)
	third := recvEvent(t, sub)
	if third.Lagged {
		t.Error("post-lag event should be a normal delivery")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	bus := NewBus(4)
	sub := bus.Subscribe()
	sub.Close()
	sub.Close()

	// Publishing after close must not panic.
	bus.Changed(Player)
}

func TestIsSubsystem(t *testing.T) {
	if !IsSubsystem("player") || !IsSubsystem("stored_playlist") {
		t.Error("known subsystems should be recognized")
	}
	if IsSubsystem("device") {
		t.Error("device is not an MPD idle subsystem")
	}
	if IsSubsystem("bogus") {
		t.Error("unknown name should not be a subsystem")
	}
}
