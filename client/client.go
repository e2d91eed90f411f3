// Package client is a Go client for the lumenpay HTTP API.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Session is the connected wallet and its balance.
type Session struct {
	Address   string  `json:"address,omitempty"`
	Balance   *string `json:"balance"`
	IsLoading bool    `json:"is_loading"`
	Error     string  `json:"error,omitempty"`
}

// Attempt is the live payment attempt.
type Attempt struct {
	ID        string    `json:"id,omitempty"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Hash      string    `json:"hash,omitempty"`
	Recipient string    `json:"recipient,omitempty"`
	Amount    string    `json:"amount,omitempty"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Terminal reports whether the attempt has finished.
func (a *Attempt) Terminal() bool {
	return a.Status == "success" || a.Status == "failed"
}

// AttemptEvent is one status change received from the attempt stream.
type AttemptEvent struct {
	AttemptID   string    `json:"attempt_id"`
	Address     string    `json:"address"`
	Recipient   string    `json:"recipient,omitempty"`
	Amount      string    `json:"amount,omitempty"`
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	Hash        string    `json:"hash,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	PublishedAt time.Time `json:"published_at"`
}

// APIError is a non-success response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request failed (%d): %s", e.StatusCode, e.Message)
}

// Client is the HTTP client for the lumenpay server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new client. The default HTTP client has no timeout,
// since connect and send wait on the wallet; bound calls with ctx instead.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

type sessionEnvelope struct {
	Session Session `json:"session"`
	Error   string  `json:"error,omitempty"`
}

type attemptEnvelope struct {
	Attempt Attempt `json:"attempt"`
	Error   string  `json:"error,omitempty"`
}

// Connect asks the server to connect the wallet. When the wallet is missing
// or refuses, the session is returned together with an *APIError.
func (c *Client) Connect(ctx context.Context) (*Session, error) {
	var env sessionEnvelope
	err := c.do(ctx, http.MethodPost, "/api/v1/session/connect", nil, http.StatusOK, &env)
	if err != nil && !isAPIError(err) {
		return nil, err
	}
	c.logger.Debug("connect finished", "address", env.Session.Address, "error", env.Error)
	return &env.Session, err
}

// Session returns the current session.
func (c *Client) Session(ctx context.Context) (*Session, error) {
	var env sessionEnvelope
	if err := c.do(ctx, http.MethodGet, "/api/v1/session", nil, http.StatusOK, &env); err != nil {
		return nil, err
	}
	return &env.Session, nil
}

// Refresh reloads the balance. Ledger failures are reported in Session.Error.
func (c *Client) Refresh(ctx context.Context) (*Session, error) {
	var env sessionEnvelope
	if err := c.do(ctx, http.MethodPost, "/api/v1/session/refresh", nil, http.StatusOK, &env); err != nil {
		return nil, err
	}
	return &env.Session, nil
}

// Send starts a payment. A rejected request returns the idle attempt together
// with an *APIError carrying the validation message.
func (c *Client) Send(ctx context.Context, recipient, amount string) (*Attempt, error) {
	body := map[string]string{
		"recipient": recipient,
		"amount":    amount,
	}
	var env attemptEnvelope
	err := c.do(ctx, http.MethodPost, "/api/v1/payments", body, http.StatusAccepted, &env)
	if err != nil && !isAPIError(err) {
		return nil, err
	}
	c.logger.Debug("payment started", "attempt_id", env.Attempt.ID, "status", env.Attempt.Status)
	return &env.Attempt, err
}

// Current returns the live attempt.
func (c *Client) Current(ctx context.Context) (*Attempt, error) {
	var env attemptEnvelope
	if err := c.do(ctx, http.MethodGet, "/api/v1/payments/current", nil, http.StatusOK, &env); err != nil {
		return nil, err
	}
	return &env.Attempt, nil
}

// Stream calls fn for every attempt event until ctx ends, the server closes
// the stream, or fn returns an error. An empty address follows the server's
// connected session.
func (c *Client) Stream(ctx context.Context, address string, fn func(*AttemptEvent) error) error {
	u := c.baseURL + "/api/v1/stream/attempts"
	if address != "" {
		u += "?address=" + url.QueryEscape(address)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to SSE endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp.StatusCode, resp.Body)
	}

	scanner := bufio.NewScanner(resp.Body)
	var currentEvent, currentData string
	for scanner.Scan() {
		line := scanner.Text()

		// Empty line ends an event
		if line == "" {
			if currentEvent == "error" {
				return fmt.Errorf("server error: %s", currentData)
			}
			if currentEvent == "attempt" && currentData != "" {
				var event AttemptEvent
				if err := json.Unmarshal([]byte(currentData), &event); err != nil {
					c.logger.Warn("failed to decode attempt event", "error", err)
				} else if err := fn(&event); err != nil {
					return err
				}
			}
			currentEvent, currentData = "", ""
			continue
		}

		if strings.HasPrefix(line, "event:") {
			currentEvent = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		} else if strings.HasPrefix(line, "data:") {
			currentData = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("error reading SSE stream: %w", err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

// errFound stops Stream once Await has its match.
var errFound = errors.New("found")

// Await blocks until an attempt event satisfies matcher.
func (c *Client) Await(ctx context.Context, address string, matcher func(*AttemptEvent) bool) (*AttemptEvent, error) {
	var found *AttemptEvent
	err := c.Stream(ctx, address, func(e *AttemptEvent) error {
		if matcher(e) {
			found = e
			return errFound
		}
		return nil
	})
	if found != nil {
		return found, nil
	}
	if err == nil {
		return nil, errors.New("stream closed before a matching event arrived")
	}
	return nil, err
}

func (c *Client) do(ctx context.Context, method, path string, body any, okStatus int, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != okStatus {
		// Error responses still carry the session or attempt when there is one.
		_ = json.Unmarshal(data, out)
		return c.parseErrorResponse(resp.StatusCode, bytes.NewReader(data))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(status int, body io.Reader) error {
	var errResp struct {
		Error string `json:"error"`
	}

	data, _ := io.ReadAll(body)
	if err := json.Unmarshal(data, &errResp); err != nil || errResp.Error == "" {
		return &APIError{StatusCode: status, Message: strings.TrimSpace(string(data))}
	}
	return &APIError{StatusCode: status, Message: errResp.Error}
}

func isAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}
