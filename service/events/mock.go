package events

import (
	"context"
	"sync"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu              sync.RWMutex
	publishedEvents []*AttemptEvent
	publishError    error
	closed          bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		publishedEvents: make([]*AttemptEvent, 0),
	}
}

// PublishAttempt records the event and returns any configured error.
func (m *MockPublisher) PublishAttempt(ctx context.Context, event *AttemptEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}

	copied := *event
	m.publishedEvents = append(m.publishedEvents, &copied)
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GetPublishedEvents returns all published events (for testing).
func (m *MockPublisher) GetPublishedEvents() []*AttemptEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*AttemptEvent, len(m.publishedEvents))
	copy(events, m.publishedEvents)
	return events
}

// GetPublishedStatuses returns the status of every published event for attemptID, in order.
func (m *MockPublisher) GetPublishedStatuses(attemptID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	statuses := make([]string, 0)
	for _, event := range m.publishedEvents {
		if event.AttemptID == attemptID {
			statuses = append(statuses, event.Status)
		}
	}
	return statuses
}

// SetPublishError configures the mock to return an error on PublishAttempt.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
