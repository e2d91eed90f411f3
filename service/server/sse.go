package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/lumenpay/service/events"
	"github.com/brojonat/lumenpay/service/metrics"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// AttemptStream relays attempt events from JetStream to Server-Sent Events clients.
type AttemptStream struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewAttemptStream connects to NATS for streaming attempt events.
func NewAttemptStream(natsURL string, m *metrics.Metrics, logger *slog.Logger) (*AttemptStream, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("lumenpay-sse"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	logger.Info("attempt stream initialized", "nats_url", natsURL)

	return &AttemptStream{
		nc:      nc,
		js:      js,
		metrics: m,
		logger:  logger,
	}, nil
}

// Close closes the NATS connection.
func (s *AttemptStream) Close() error {
	if s.nc != nil {
		s.nc.Close()
		s.logger.Info("attempt stream closed")
	}
	return nil
}

// streamSubject picks the JetStream filter for a request: the address query
// parameter, else the connected session's address, else every address.
func streamSubject(r *http.Request, sess SessionService) (string, string) {
	address := r.URL.Query().Get("address")
	if address == "" && sess != nil {
		address = sess.Snapshot().Address
	}
	if address == "" {
		return events.StreamSubjects, "all addresses"
	}
	return events.Subject(address), address
}

// handleStreamAttempts streams attempt status changes as they are published.
// GET /api/v1/stream/attempts[?address=G...]
func handleStreamAttempts(stream *AttemptStream, sess SessionService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, desc := streamSubject(r, sess)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		flusher, _ := w.(http.Flusher)
		flush := func() {
			if flusher != nil {
				flusher.Flush()
			}
		}
		flush()

		stream.metrics.RecordSSEConnectionChange(1)
		defer stream.metrics.RecordSSEConnectionChange(-1)

		logger.DebugContext(r.Context(), "SSE client connected",
			"address", desc,
			"remote_addr", r.RemoteAddr,
		)

		// Ephemeral consumer; the server deletes it once the client goes away.
		cons, err := stream.js.CreateOrUpdateConsumer(r.Context(), events.StreamName, jetstream.ConsumerConfig{
			FilterSubject:     subject,
			AckPolicy:         jetstream.AckExplicitPolicy,
			DeliverPolicy:     jetstream.DeliverNewPolicy,
			InactiveThreshold: time.Minute,
		})
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to create consumer",
				"address", desc,
				"error", err,
			)
			fmt.Fprintf(w, "event: error\ndata: {\"error\": \"failed to subscribe\"}\n\n")
			return
		}

		msgChan := make(chan jetstream.Msg, 10)
		doneChan := make(chan struct{})

		go func() {
			defer close(doneChan)
			cc, err := cons.Consume(func(msg jetstream.Msg) {
				select {
				case msgChan <- msg:
				case <-r.Context().Done():
				}
			})
			if err != nil {
				logger.ErrorContext(r.Context(), "failed to start consuming messages",
					"error", err,
				)
				return
			}
			select {
			case <-r.Context().Done():
			case <-cc.Closed():
			}
			cc.Stop()
		}()

		connected, _ := json.Marshal(map[string]string{"address": desc})
		fmt.Fprintf(w, "event: connected\ndata: %s\n\n", connected)
		flush()

		keepalive := time.NewTicker(10 * time.Second)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				fmt.Fprintf(w, ": keepalive\n\n")
				flush()

			case msg := <-msgChan:
				var event events.AttemptEvent
				if err := json.Unmarshal(msg.Data(), &event); err != nil {
					logger.WarnContext(r.Context(), "failed to unmarshal event",
						"error", err,
					)
					msg.Ack()
					continue
				}

				// Causes stay internal.
				event.Cause = ""
				data, err := json.Marshal(event)
				if err != nil {
					logger.WarnContext(r.Context(), "failed to marshal event",
						"error", err,
					)
					msg.Ack()
					continue
				}

				fmt.Fprintf(w, "event: attempt\ndata: %s\n\n", data)
				flush()
				msg.Ack()
				stream.metrics.RecordSSEEventSent("attempt")

				logger.DebugContext(r.Context(), "sent attempt event",
					"attempt_id", event.AttemptID,
					"status", event.Status,
				)

			case <-r.Context().Done():
				logger.DebugContext(r.Context(), "SSE client disconnected",
					"address", desc,
					"remote_addr", r.RemoteAddr,
				)
				return

			case <-doneChan:
				return
			}
		}
	})
}
