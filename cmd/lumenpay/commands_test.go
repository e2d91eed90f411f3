package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/brojonat/lumenpay/client"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runApp runs the CLI against serverURL and returns what it printed.
func runApp(t *testing.T, serverURL string, args ...string) (string, error) {
	t.Helper()
	app := newApp()
	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &out

	full := append([]string{"lumenpay", "--server-url", serverURL}, args...)
	err := app.Run(full)
	return out.String(), err
}

func TestHealthCommand_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))
	defer server.Close()

	out, err := runApp(t, server.URL, "server", "health")
	require.NoError(t, err)
	assert.Contains(t, out, "Server is healthy")
}

func TestHealthCommand_Failure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := runApp(t, server.URL, "server", "health")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unhealthy status: 500")
}

func TestVersionCommand(t *testing.T) {
	out, err := runApp(t, "http://unused", "server", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "lumenpay CLI")
	assert.Contains(t, out, "Version: dev")
}

func TestSessionConnect_WalletUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/session/connect", r.URL.Path)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"session":{"balance":null,"is_loading":false},"error":"Freighter wallet not installed."}`))
	}))
	defer server.Close()

	out, err := runApp(t, server.URL, "session", "connect")
	require.Error(t, err)
	assert.Equal(t, "Freighter wallet not installed.", err.Error())
	assert.Contains(t, out, "Not connected")
}

func TestSessionShow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/session", r.URL.Path)
		w.Write([]byte(`{"session":{"address":"GADDR","balance":"99.5000000","is_loading":false}}`))
	}))
	defer server.Close()

	out, err := runApp(t, server.URL, "session", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Address: GADDR")
	assert.Contains(t, out, "Balance: 99.5000000 XLM")
}

func TestPaySend_ValidationMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"attempt":{"status":"idle","message":"Amount must be greater than 0."},"error":"Amount must be greater than 0."}`))
	}))
	defer server.Close()

	_, err := runApp(t, server.URL, "pay", "send", "GDEST", "0")
	require.Error(t, err)
	assert.Equal(t, "Amount must be greater than 0.", err.Error())
}

func TestPaySend_RequiresTwoArgs(t *testing.T) {
	_, err := runApp(t, "http://unused", "pay", "send", "GDEST")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly two arguments")
}

func TestPaySend_Wait(t *testing.T) {
	var polls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/payments":
			w.WriteHeader(http.StatusAccepted)
			w.Write([]byte(`{"attempt":{"id":"a1","status":"building","message":"Building transaction..."}}`))
		case "/api/v1/payments/current":
			if atomic.AddInt32(&polls, 1) < 3 {
				w.Write([]byte(`{"attempt":{"id":"a1","status":"awaiting_signature"}}`))
				return
			}
			w.Write([]byte(`{"attempt":{"id":"a1","status":"success","message":"Transaction successful!","hash":"feed","recipient":"GDEST","amount":"1"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	out, err := runApp(t, server.URL, "pay", "send", "--wait", "--poll-interval", "10ms", "GDEST", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Status:    success")
	assert.Contains(t, out, "Hash:      feed")
	assert.GreaterOrEqual(t, atomic.LoadInt32(&polls), int32(3))
}

func TestPaySend_WaitSuperseded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/payments":
			w.WriteHeader(http.StatusAccepted)
			w.Write([]byte(`{"attempt":{"id":"a1","status":"building"}}`))
		default:
			w.Write([]byte(`{"attempt":{"id":"a2","status":"building"}}`))
		}
	}))
	defer server.Close()

	_, err := runApp(t, server.URL, "pay", "send", "--wait", "GDEST", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "superseded")
}

func TestPayWatch_MustJQUntilTerminal(t *testing.T) {
	events := []client.AttemptEvent{
		{AttemptID: "other", Status: "success", Hash: "nope"},
		{AttemptID: "a1", Status: "building"},
		{AttemptID: "a1", Status: "success", Hash: "feed"},
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/stream/attempts", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, e := range events {
			data, _ := json.Marshal(e)
			fmt.Fprintf(w, "event: attempt\ndata: %s\n\n", data)
		}
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	out, err := runApp(t, server.URL, "--json", "pay", "watch", "--until-terminal", "--must-jq", `.attempt_id == "a1"`)
	require.NoError(t, err)

	lines := bytes.Split(bytes.TrimSpace([]byte(out)), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Contains(t, string(lines[0]), `"status":"building"`)
	assert.Contains(t, string(lines[1]), `"hash":"feed"`)
}

func TestCompileJQFilters_Invalid(t *testing.T) {
	_, err := compileJQFilters([]string{".status =="})
	assert.Error(t, err)
}

func TestMatchesAll(t *testing.T) {
	event := &client.AttemptEvent{AttemptID: "a1", Status: "failed", Amount: "12.5"}

	tests := []struct {
		name    string
		filters []string
		want    bool
	}{
		{name: "no filters", filters: nil, want: true},
		{name: "status match", filters: []string{`.status == "failed"`}, want: true},
		{name: "status mismatch", filters: []string{`.status == "success"`}, want: false},
		{name: "all must match", filters: []string{`.attempt_id == "a1"`, `.status == "success"`}, want: false},
		{name: "numeric on amount", filters: []string{`(.amount | tonumber) > 10`}, want: true},
		{name: "null is falsy", filters: []string{`.hash`}, want: false},
		{name: "runtime error fails", filters: []string{`.status | tonumber`}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codes, err := compileJQFilters(tt.filters)
			require.NoError(t, err)
			assert.Equal(t, tt.want, matchesAll(codes, event))
		})
	}
}

func TestDBAttempts_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := runApp(t, "http://unused", "db", "attempts", "GADDR")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database-url is required")
}

func TestDBAttempts_LimitBounds(t *testing.T) {
	_, err := runApp(t, "http://unused", "db", "attempts", "--limit", "0", "GADDR")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit must be between")
}

func TestConsumerConfig(t *testing.T) {
	cfg := consumerConfig("attempts.GADDR", false, false, "ignored")
	assert.Equal(t, "attempts.GADDR", cfg.FilterSubject)
	assert.Equal(t, jetstream.DeliverNewPolicy, cfg.DeliverPolicy)
	assert.Empty(t, cfg.Durable)

	cfg = consumerConfig("attempts.*", true, true, "ops")
	assert.Equal(t, jetstream.DeliverAllPolicy, cfg.DeliverPolicy)
	assert.Equal(t, "ops", cfg.Durable)
	assert.Equal(t, "ops", cfg.Name)
}
