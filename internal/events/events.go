// Package events carries push notifications from the recognition pipeline
// to the coordinator.
package events

import (
	"sort"
	"sync"

	"whisper-desktop/internal/domain"
)

// Topic names one push-event channel of the pipeline.
type Topic string

const (
	TopicProgress  Topic = "progress"
	TopicOutput    Topic = "output"
	TopicCompleted Topic = "completed"
	TopicError     Topic = "error"
	TopicStopped   Topic = "stopped"
)

// Topics lists every topic a coordinator listens to.
var Topics = []Topic{TopicProgress, TopicOutput, TopicCompleted, TopicError, TopicStopped}

// Event is one typed notification. Only the fields of its topic are set.
type Event struct {
	Topic    Topic                `json:"topic"`
	Progress domain.ProgressEvent `json:"progress,omitempty"`
	Line     string               `json:"line,omitempty"`
	Message  string               `json:"message,omitempty"`
	Severity domain.ErrorSeverity `json:"severity,omitempty"`
}

// Progress builds a progress event.
func Progress(p domain.ProgressEvent) Event {
	return Event{Topic: TopicProgress, Progress: p}
}

// Output builds a transcript line event.
func Output(line string) Event {
	return Event{Topic: TopicOutput, Line: line}
}

// Completed builds a successful completion event.
func Completed() Event {
	return Event{Topic: TopicCompleted}
}

// Failure builds an error event with an explicit severity.
func Failure(message string, severity domain.ErrorSeverity) Event {
	return Event{Topic: TopicError, Message: message, Severity: severity}
}

// Stopped reports a recognition that ended without a stop request.
func Stopped() Event {
	return Event{Topic: TopicStopped}
}

// Handler receives events for one topic.
type Handler func(Event)

// Source is a push-event channel supporting subscribe/unsubscribe pairs.
type Source interface {
	Subscribe(topic Topic, handler Handler) (unsubscribe func())
}

// Publisher emits events into a Source.
type Publisher interface {
	Publish(event Event)
}

type subscription struct {
	id      int
	handler Handler
}

// Bus is an in-process Source. Handlers run synchronously on the publishing
// goroutine, in subscription order.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[Topic][]subscription
	mirror Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Topic][]subscription)}
}

// SetMirror registers a hook that sees every published event, e.g. to
// forward pipeline events to a frontend.
func (b *Bus) SetMirror(fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mirror = fn
}

// Subscribe registers handler for topic and returns its release func.
// Releasing twice is a no-op.
func (b *Bus) Subscribe(topic Topic, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, handler: handler})

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(topic, id) })
	}
}

// Publish delivers event to the topic's subscribers.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	subs := append([]subscription(nil), b.subs[event.Topic]...)
	mirror := b.mirror
	b.mu.RUnlock()

	sort.Slice(subs, func(i, j int) bool { return subs[i].id < subs[j].id })
	for _, sub := range subs {
		sub.handler(event)
	}
	if mirror != nil {
		mirror(event)
	}
}

// Subscribers reports how many listeners a topic has.
func (b *Bus) Subscribers(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

func (b *Bus) remove(topic Topic, id int) {
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
