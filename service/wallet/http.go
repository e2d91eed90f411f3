package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// HTTPBridge talks to a signer bridge over HTTP.
//
// The bridge exposes:
//
//	GET  /presence -> {"isConnected": bool}
//	POST /address  -> AddressResult
//	POST /sign     {"xdr": "...", "networkPassphrase": "..."} -> SignResult
type HTTPBridge struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPBridge creates a bridge client. httpClient may be nil.
// No client timeout is set by default: signing waits on a human.
func NewHTTPBridge(baseURL string, httpClient *http.Client, logger *slog.Logger) *HTTPBridge {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &HTTPBridge{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// CheckPresence implements Wallet.
func (b *HTTPBridge) CheckPresence(ctx context.Context) (bool, error) {
	var resp struct {
		IsConnected bool `json:"isConnected"`
	}
	if err := b.do(ctx, http.MethodGet, "/presence", nil, &resp); err != nil {
		return false, err
	}
	return resp.IsConnected, nil
}

// RequestAddress implements Wallet.
func (b *HTTPBridge) RequestAddress(ctx context.Context) (AddressResult, error) {
	var res AddressResult
	if err := b.do(ctx, http.MethodPost, "/address", nil, &res); err != nil {
		return AddressResult{}, err
	}
	b.logger.DebugContext(ctx, "address request answered", "address", res.Address, "wallet_error", res.Error)
	return res, nil
}

// Sign implements Wallet.
func (b *HTTPBridge) Sign(ctx context.Context, envelopeXDR string, opts SignOptions) (SignResult, error) {
	reqBody := signRequest{XDR: envelopeXDR, NetworkPassphrase: opts.NetworkPassphrase}
	var res SignResult
	if err := b.do(ctx, http.MethodPost, "/sign", reqBody, &res); err != nil {
		return SignResult{}, err
	}
	b.logger.DebugContext(ctx, "sign request answered", "signer", res.SignerAddress, "wallet_error", res.Error)
	return res, nil
}

type signRequest struct {
	XDR               string `json:"xdr"`
	NetworkPassphrase string `json:"networkPassphrase"`
}

func (b *HTTPBridge) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("wallet bridge request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return parseErrorResponse(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode wallet bridge response: %w", err)
	}
	return nil
}

// parseErrorResponse turns a non-200 bridge response into an error.
func parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("wallet bridge returned status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("wallet bridge error: %s", errResp.Error)
}
