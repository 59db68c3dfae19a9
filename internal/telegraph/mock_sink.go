package telegraph

import (
	"context"
	"sync"
)

// MockSink implements Sink for testing. It records posted messages and can
// be told to fail.
type MockSink struct {
	mu      sync.Mutex
	name    string
	posted  []OutboundMessage
	postErr error
}

// NewMockSink creates a MockSink reporting the given name.
func NewMockSink(name string) *MockSink {
	return &MockSink{name: name}
}

// Name implements Sink.
func (m *MockSink) Name() string { return m.name }

// Post records msg, or returns the error set by SetPostError.
func (m *MockSink) Post(_ context.Context, msg OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.postErr != nil {
		return m.postErr
	}
	m.posted = append(m.posted, msg)
	return nil
}

// SetPostError makes subsequent posts fail with err (nil to clear).
func (m *MockSink) SetPostError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.postErr = err
}

// Posted returns a copy of every recorded message.
func (m *MockSink) Posted() []OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]OutboundMessage, len(m.posted))
	copy(out, m.posted)
	return out
}

// Reset clears recorded messages.
func (m *MockSink) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posted = nil
}
