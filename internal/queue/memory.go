package queue

import (
	"context"
	"sync"
)

// MemoryClient records sent messages. Used when no queue URL is configured
// in tests and local tooling.
type MemoryClient struct {
	mu       sync.Mutex
	messages []Message
}

// Send appends msg.
func (m *MemoryClient) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

// Messages returns a copy of the sent messages.
func (m *MemoryClient) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.messages...)
}

var _ Client = (*MemoryClient)(nil)
