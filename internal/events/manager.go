package events

import (
	"errors"
	"sync"
)

// ErrAlreadyAttached is returned when a scope attaches a second time.
var ErrAlreadyAttached = errors.New("event subscriptions already attached")

// Manager holds exactly one subscription per topic for the lifetime of a
// coordinating scope and funnels every delivery into one intake func.
type Manager struct {
	source Source

	mu     sync.Mutex
	unsubs []func()
}

// NewManager creates a manager over source.
func NewManager(source Source) *Manager {
	return &Manager{source: source}
}

// Attach subscribes to every topic, routing events to intake. The event's
// Topic field is stamped with the subscribed topic.
func (m *Manager) Attach(intake Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.unsubs != nil {
		return ErrAlreadyAttached
	}

	unsubs := make([]func(), 0, len(Topics))
	for _, topic := range Topics {
		topic := topic
		unsubs = append(unsubs, m.source.Subscribe(topic, func(event Event) {
			event.Topic = topic
			intake(event)
		}))
	}
	m.unsubs = unsubs
	return nil
}

// Attached reports whether subscriptions are currently held.
func (m *Manager) Attached() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unsubs != nil
}

// Close releases every subscription. It is safe to call more than once.
func (m *Manager) Close() {
	m.mu.Lock()
	unsubs := m.unsubs
	m.unsubs = nil
	m.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}
