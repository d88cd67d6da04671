package notify

import "context"

// Message is one publication.
type Message struct {
	Topic    string
	Payload  []byte
	Retained bool
}

// Publisher defines the interface for publishing messages.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}
