package wallet

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connectTestNATS(t *testing.T) *nats.Conn {
	t.Helper()
	if os.Getenv("RUN_INTEGRATION_TESTS") != "1" {
		t.Skip("Skipping integration test. Set RUN_INTEGRATION_TESTS=1 to run.")
	}
	url := os.Getenv("NATS_URL")
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url, nats.Name("lumenpay-wallet-test"))
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return nc
}

func TestNATSBridge_NoRelayIsAbsent(t *testing.T) {
	nc := connectTestNATS(t)
	bridge := NewNATSBridge(nc, 2*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))

	present, err := bridge.CheckPresence(context.Background())
	require.NoError(t, err)
	assert.False(t, present)
}

func TestNATSBridge_RoundTrip(t *testing.T) {
	nc := connectTestNATS(t)

	// Stand-in for the browser relay.
	subs := []*nats.Subscription{}
	sub, err := nc.Subscribe(SubjectPresence, func(msg *nats.Msg) {
		msg.Respond([]byte(`{"isConnected":true}`))
	})
	require.NoError(t, err)
	subs = append(subs, sub)
	sub, err = nc.Subscribe(SubjectAddress, func(msg *nats.Msg) {
		msg.Respond([]byte(`{"address":"GABC"}`))
	})
	require.NoError(t, err)
	subs = append(subs, sub)
	sub, err = nc.Subscribe(SubjectSign, func(msg *nats.Msg) {
		var req signRequest
		_ = json.Unmarshal(msg.Data, &req)
		data, _ := json.Marshal(SignResult{SignedTxXDR: req.XDR + "-signed", SignerAddress: "GABC"})
		msg.Respond(data)
	})
	require.NoError(t, err)
	subs = append(subs, sub)
	defer func() {
		for _, s := range subs {
			s.Unsubscribe()
		}
	}()

	bridge := NewNATSBridge(nc, 2*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	present, err := bridge.CheckPresence(ctx)
	require.NoError(t, err)
	assert.True(t, present)

	addr, err := bridge.RequestAddress(ctx)
	require.NoError(t, err)
	assert.Equal(t, "GABC", addr.Address)

	signed, err := bridge.Sign(ctx, "AAAA", SignOptions{NetworkPassphrase: "Test SDF Network ; September 2015"})
	require.NoError(t, err)
	assert.Equal(t, "AAAA-signed", signed.SignedTxXDR)
}
