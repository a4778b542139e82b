package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Topic names a refresh signal.
type Topic string

const (
	TopicTasks      Topic = "refresh-tasks"
	TopicProjects   Topic = "refresh-projects"
	TopicMeetings   Topic = "refresh-meetings"
	TopicAttendance Topic = "refresh-attendance"
	TopicFeedback   Topic = "refresh-feedback"
	TopicEmployees  Topic = "refresh-employees"
	TopicClients    Topic = "refresh-clients"
)

// AllTopics returns every refresh topic.
func AllTopics() []Topic {
	return []Topic{
		TopicTasks,
		TopicProjects,
		TopicMeetings,
		TopicAttendance,
		TopicFeedback,
		TopicEmployees,
		TopicClients,
	}
}

// Signal tells subscribers that data behind Topic may have changed.
// Payload is the raw event payload; it is a hint, not authoritative state.
type Signal struct {
	Topic      Topic           `json:"topic"`
	Event      string          `json:"event"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Handler receives signals. Handlers run on the publisher's goroutine and must not block.
type Handler func(Signal)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is an in-process publish/subscribe hub for refresh signals.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Topic][]subscription
	nextID uint64
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Topic][]subscription)}
}

// Subscribe registers handler for topic and returns a function that removes it.
func (b *Bus) Subscribe(topic Topic, handler Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(topic, id) })
	}
}

func (b *Bus) unsubscribe(topic Topic, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[topic]
	for i, sub := range subs {
		if sub.id == id {
			b.subs[topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[topic]) == 0 {
		delete(b.subs, topic)
	}
}

// Publish delivers sig to the topic's subscribers in registration order.
func (b *Bus) Publish(sig Signal) {
	if sig.ReceivedAt.IsZero() {
		sig.ReceivedAt = time.Now()
	}

	b.mu.RLock()
	subs := make([]subscription, len(b.subs[sig.Topic]))
	copy(subs, b.subs[sig.Topic])
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.handler(sig)
	}
}

// Subscribers returns the number of handlers registered for topic.
func (b *Bus) Subscribers(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
