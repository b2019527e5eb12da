// Package events implements the in-process change notification bus. Topics
// mirror the MPD idle subsystems so the MPD surface can subscribe directly.
package events

import (
	"sync"
	"time"
)

// Topic names one change-notification subsystem.
type Topic string

const (
	Database       Topic = "database"
	Update         Topic = "update"
	StoredPlaylist Topic = "stored_playlist"
	Playlist       Topic = "playlist"
	Player         Topic = "player"
	Mixer          Topic = "mixer"
	Output         Topic = "output"
	Options        Topic = "options"
	Partition      Topic = "partition"
	Sticker        Topic = "sticker"
	Subscription   Topic = "subscription"
	Message        Topic = "message"
	Neighbor       Topic = "neighbor"
	Mount          Topic = "mount"
	// Device is published on cast device appearance. It is not an MPD
	// subsystem and is consumed by the GraphQL subscription surface.
	Device Topic = "device"
)

// Topics lists every MPD idle subsystem in protocol order.
var Topics = []Topic{
	Database, Update, StoredPlaylist, Playlist, Player, Mixer, Output,
	Options, Partition, Sticker, Subscription, Message, Neighbor, Mount,
}

// IsSubsystem reports whether name is a known MPD idle subsystem.
func IsSubsystem(name string) bool {
	for _, t := range Topics {
		if string(t) == name {
			return true
		}
	}
	return false
}

// Event is one published change notification.
type Event struct {
	Topic Topic
	// Lagged is set on the synthetic event delivered to a subscriber whose
	// queue overflowed. The subscriber must resynchronize by re-querying.
	Lagged bool
	// Payload optionally carries the changed entity (e.g. a Device).
	Payload interface{}
	At      time.Time
}

// Subscriber receives events on C. A subscriber that stops draining C in
// time receives a single Lagged event in place of the dropped ones.
type Subscriber struct {
	C      <-chan Event
	bus    *Bus
	ch     chan Event
	topics map[Topic]bool
	lagged bool
	closed bool
}

// Bus is a multi-producer, multi-consumer broadcast channel. Deliveries are
// per-subscriber FIFO; cross-subscriber ordering is not guaranteed.
type Bus struct {
	mu   sync.Mutex
	subs map[*Subscriber]struct{}
	size int
}

// NewBus creates a bus whose subscribers buffer up to size events.
func NewBus(size int) *Bus {
	if size <= 0 {
		size = 64
	}
	return &Bus{subs: make(map[*Subscriber]struct{}), size: size}
}

// Subscribe registers a subscriber for the given topics, or for every topic
// when none are given.
func (b *Bus) Subscribe(topics ...Topic) *Subscriber {
	sub := &Subscriber{
		bus: b,
		ch:  make(chan Event, b.size),
	}
	sub.C = sub.ch
	if len(topics) > 0 {
		sub.topics = make(map[Topic]bool, len(topics))
		for _, t := range topics {
			sub.topics[t] = true
		}
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Close unregisters the subscriber and closes its channel.
func (s *Subscriber) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	delete(s.bus.subs, s)
	close(s.ch)
}

// Publish broadcasts an event to every matching subscriber. Publish never
// blocks: a full subscriber is marked lagged instead.
func (b *Bus) Publish(topic Topic, payload interface{}) {
	ev := Event{Topic: topic, Payload: payload, At: time.Now()}

	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		if sub.topics != nil && !sub.topics[topic] {
			continue
		}
		if sub.lagged {
			// Deliver a single lag marker once there is room again,
			// then resume normal delivery. The subscriber resyncs by
			// re-querying.
			select {
			case sub.ch <- Event{Topic: topic, Lagged: true, At: ev.At}:
				sub.lagged = false
			default:
			}
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			sub.lagged = true
		}
	}
}

// Changed publishes a bare change notification on a topic.
func (b *Bus) Changed(topic Topic) { b.Publish(topic, nil) }
