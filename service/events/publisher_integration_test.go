package events

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJetStreamPublisher_PublishAttempt(t *testing.T) {
	if os.Getenv("RUN_INTEGRATION_TESTS") != "1" {
		t.Skip("Skipping integration test. Set RUN_INTEGRATION_TESTS=1 to run.")
	}
	url := os.Getenv("NATS_URL")
	if url == "" {
		url = nats.DefaultURL
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pub, err := NewPublisher(url, nil, logger)
	require.NoError(t, err)
	defer pub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	address := "GTESTPUBLISHER" + time.Now().Format("150405")
	cons, err := pub.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		FilterSubject: Subject(address),
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	require.NoError(t, err)

	require.NoError(t, pub.PublishAttempt(ctx, &AttemptEvent{
		AttemptID: "attempt-1",
		Address:   address,
		Status:    "building",
		Message:   "Building transaction...",
		Timestamp: time.Now().UTC(),
	}))

	msg, err := cons.Next(jetstream.FetchMaxWait(5 * time.Second))
	require.NoError(t, err)
	defer msg.Ack()

	var got AttemptEvent
	require.NoError(t, json.Unmarshal(msg.Data(), &got))
	assert.Equal(t, "attempt-1", got.AttemptID)
	assert.Equal(t, "building", got.Status)
	assert.False(t, got.PublishedAt.IsZero())
}

func TestMockPublisher(t *testing.T) {
	pub := NewMockPublisher()
	ctx := context.Background()

	require.NoError(t, pub.PublishAttempt(ctx, &AttemptEvent{AttemptID: "a", Status: "building"}))
	require.NoError(t, pub.PublishAttempt(ctx, &AttemptEvent{AttemptID: "b", Status: "building"}))
	require.NoError(t, pub.PublishAttempt(ctx, &AttemptEvent{AttemptID: "a", Status: "failed"}))

	assert.Equal(t, []string{"building", "failed"}, pub.GetPublishedStatuses("a"))
	assert.Len(t, pub.GetPublishedEvents(), 3)

	require.NoError(t, pub.Close())
	assert.True(t, pub.IsClosed())
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "attempts.GABC", Subject("GABC"))
}
