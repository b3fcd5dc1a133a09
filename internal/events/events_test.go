package events

import (
	"errors"
	"testing"

	"whisper-desktop/internal/domain"
)

// TestBusDeliversPerTopicInOrder verifies FIFO delivery within a topic.
func TestBusDeliversPerTopicInOrder(t *testing.T) {
	bus := NewBus()
	var got []string
	unsub := bus.Subscribe(TopicOutput, func(e Event) { got = append(got, e.Line) })
	defer unsub()

	bus.Publish(Output("a"))
	bus.Publish(Completed())
	bus.Publish(Output("b"))

	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("got = %v, want [a b]", got)
	}
}

// TestBusUnsubscribeIsIdempotent checks release funcs can be called twice.
func TestBusUnsubscribeIsIdempotent(t *testing.T) {
	bus := NewBus()
	first := bus.Subscribe(TopicProgress, func(Event) {})
	second := bus.Subscribe(TopicProgress, func(Event) {})

	first()
	first()
	if n := bus.Subscribers(TopicProgress); n != 1 {
		t.Fatalf("subscribers = %d, want 1", n)
	}
	second()
	if n := bus.Subscribers(TopicProgress); n != 0 {
		t.Fatalf("subscribers = %d, want 0", n)
	}
}

// TestBusMirrorSeesEveryEvent checks the frontend forwarding hook.
func TestBusMirrorSeesEveryEvent(t *testing.T) {
	bus := NewBus()
	var topics []Topic
	bus.SetMirror(func(e Event) { topics = append(topics, e.Topic) })

	bus.Publish(Progress(domain.ProgressEvent{Percent: 10}))
	bus.Publish(Failure("boom", domain.SeverityFatal))

	if len(topics) != 2 || topics[0] != TopicProgress || topics[1] != TopicError {
		t.Fatalf("topics = %v", topics)
	}
}

// TestManagerAttachesOncePerTopic verifies one listener per topic and full release.
func TestManagerAttachesOncePerTopic(t *testing.T) {
	bus := NewBus()
	m := NewManager(bus)

	var got []Event
	if err := m.Attach(func(e Event) { got = append(got, e) }); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := m.Attach(func(Event) {}); !errors.Is(err, ErrAlreadyAttached) {
		t.Fatalf("second attach error = %v, want %v", err, ErrAlreadyAttached)
	}
	for _, topic := range Topics {
		if n := bus.Subscribers(topic); n != 1 {
			t.Fatalf("%s subscribers = %d, want 1", topic, n)
		}
	}

	bus.Publish(Output("hello"))
	bus.Publish(Stopped())
	if len(got) != 2 || got[0].Line != "hello" || got[1].Topic != TopicStopped {
		t.Fatalf("got = %+v", got)
	}

	m.Close()
	m.Close()
	for _, topic := range Topics {
		if n := bus.Subscribers(topic); n != 0 {
			t.Fatalf("%s subscribers after close = %d, want 0", topic, n)
		}
	}
	if m.Attached() {
		t.Fatal("manager should report detached")
	}

	bus.Publish(Output("late"))
	if len(got) != 2 {
		t.Fatalf("late event delivered after close: %+v", got)
	}
}

// TestManagerReattachAfterClose checks a remounted scope can subscribe again without leaks.
func TestManagerReattachAfterClose(t *testing.T) {
	bus := NewBus()
	m := NewManager(bus)
	for i := 0; i < 3; i++ {
		if err := m.Attach(func(Event) {}); err != nil {
			t.Fatalf("attach %d: %v", i, err)
		}
		m.Close()
	}
	if n := bus.Subscribers(TopicCompleted); n != 0 {
		t.Fatalf("subscribers = %d, want 0", n)
	}
}
