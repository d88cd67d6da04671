package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrPublisherClosed is returned by MockPublisher after Close.
var ErrPublisherClosed = errors.New("notify: publisher closed")

// MockPublisher is an in-memory broker for tests. It keeps the publication
// log plus the retained table a late subscriber would receive.
type MockPublisher struct {
	mu       sync.Mutex
	log      []Message
	retained map[string]Message
	closed   bool
	failErr  error
	failPfx  string
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{retained: make(map[string]Message)}
}

func (m *MockPublisher) Publish(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrPublisherClosed
	}
	if m.failErr != nil && strings.HasPrefix(msg.Topic, m.failPfx) {
		return m.failErr
	}
	msg.Payload = append([]byte(nil), msg.Payload...)
	m.log = append(m.log, msg)
	if msg.Retained {
		// an empty retained payload clears the topic, as on a real broker
		if len(msg.Payload) == 0 {
			delete(m.retained, msg.Topic)
		} else {
			m.retained[msg.Topic] = msg
		}
	}
	return nil
}

func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Messages returns the publication log.
func (m *MockPublisher) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.log...)
}

// Topic returns the messages published to topic, in order.
func (m *MockPublisher) Topic(topic string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Message
	for _, msg := range m.log {
		if msg.Topic == topic {
			out = append(out, msg)
		}
	}
	return out
}

// Retained returns the message a new subscriber to topic would receive.
func (m *MockPublisher) Retained(topic string) (Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.retained[topic]
	return msg, ok
}

// FailTopics makes publishes to topics starting with prefix return err.
// An empty prefix matches everything; a nil err clears the failure.
func (m *MockPublisher) FailTopics(prefix string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failPfx, m.failErr = prefix, err
}
