// Package events implements the process-local event bus (spec component
// C): topic-keyed pub/sub with bounded, per-subscriber backpressure.
// Remote delivery is the external transport layer's job (the websocket
// handler in internal/api reads a subscription and forwards to a client).
package events

import (
	"sync"
	"time"
)

// inboxCapacity is the default bounded inbox size per subscriber.
const inboxCapacity = 256

// Event is one message published to a topic. Topics are opaque strings;
// the core defines deployment:{id}, container:{id}:logs,
// container:{id}:stats, server:{id} and app:{id}.
type Event struct {
	Topic     string
	Seq       uint64
	Data      any
	Timestamp time.Time
}

// Subscription is a bounded inbox delivering events for one topic. A
// consumer that falls behind has its oldest buffered message dropped
// rather than blocking the publisher; Lagging reports whether that has
// happened since the last read of the flag.
type Subscription struct {
	C      <-chan Event
	topic  string
	bus    *Bus
	id     uint64
	mu     sync.Mutex
	lagged bool
}

// Lagging reports and clears whether this subscription has dropped a
// message due to a full inbox.
func (s *Subscription) Lagging() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	lagged := s.lagged
	s.lagged = false
	return lagged
}

func (s *Subscription) setLagging() {
	s.mu.Lock()
	s.lagged = true
	s.mu.Unlock()
}

// Unsubscribe removes this subscription from the bus. Safe to call more
// than once.
func (s *Subscription) Unsubscribe() {
	s.bus.unsubscribe(s.topic, s.id)
}

type subscriber struct {
	id   uint64
	ch   chan Event
	subs *Subscription
}

// Bus is a transport-agnostic, in-process publish/subscribe fan-out. The
// teacher's EventCache shared one map of *websocket.Conn under a single
// lock and dropped dead clients on write failure; Bus generalizes that
// into topic-keyed subscriber lists where each subscriber owns a bounded
// channel and a failing/slow subscriber only ever loses its own messages
// (spec.md §4.5: "a subscriber's failure to consume never blocks other
// subscribers or publishers").
type Bus struct {
	mu        sync.Mutex
	subs      map[string][]*subscriber
	nextID    uint64
	seqByTopic map[string]uint64
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{
		subs:       make(map[string][]*subscriber),
		seqByTopic: make(map[string]uint64),
	}
}

// Subscribe returns a bounded inbox for topic. Call Unsubscribe (or let
// the subscription leak until the bus itself is discarded) when done.
func (b *Bus) Subscribe(topic string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID

	ch := make(chan Event, inboxCapacity)
	sub := &Subscription{C: ch, topic: topic, bus: b, id: id}

	b.subs[topic] = append(b.subs[topic], &subscriber{id: id, ch: ch, subs: sub})
	return sub
}

func (b *Bus) unsubscribe(topic string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[topic]
	for i, s := range list {
		if s.id == id {
			close(s.ch)
			b.subs[topic] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Publish sends data to every current subscriber of topic, assigning it
// the next sequence number for that topic. Publish never blocks: a
// subscriber whose inbox is full has its oldest buffered event dropped to
// make room, and its Lagging flag is set.
func (b *Bus) Publish(topic string, data any) {
	b.mu.Lock()
	b.seqByTopic[topic]++
	seq := b.seqByTopic[topic]
	list := append([]*subscriber(nil), b.subs[topic]...)
	b.mu.Unlock()

	evt := Event{Topic: topic, Seq: seq, Data: data, Timestamp: time.Now()}

	for _, s := range list {
		select {
		case s.ch <- evt:
		default:
			select {
			case <-s.ch:
			default:
			}
			select {
			case s.ch <- evt:
			default:
			}
			s.subs.setLagging()
		}
	}
}

// SubscriberCount reports the number of active subscriptions for a topic,
// used by metrics and tests.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic])
}
