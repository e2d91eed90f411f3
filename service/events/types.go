package events

import (
	"time"
)

// AttemptEvent is published every time the live payment attempt changes status.
// It is published to the subject "attempts.{address}" in JetStream.
type AttemptEvent struct {
	AttemptID string `json:"attempt_id"`
	Address   string `json:"address"`

	Recipient string `json:"recipient,omitempty"`
	Amount    string `json:"amount,omitempty"`

	Status  string `json:"status"`
	Message string `json:"message"`
	Hash    string `json:"hash,omitempty"`
	// Cause is the internal failure reason; the user-facing message does not carry it.
	Cause string `json:"cause,omitempty"`

	Timestamp   time.Time `json:"timestamp"`
	PublishedAt time.Time `json:"published_at"`
}

// Subject returns the JetStream subject for events of address.
func Subject(address string) string {
	return SubjectPrefix + address
}
