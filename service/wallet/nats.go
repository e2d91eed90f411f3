package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Subjects answered by the browser-side relay. The relay is a page that holds a
// NATS WebSocket connection and forwards each request to the wallet extension.
const (
	SubjectPresence = "wallet.presence"
	SubjectAddress  = "wallet.address"
	SubjectSign     = "wallet.sign"
)

// NATSBridge reaches the wallet through NATS request/reply.
type NATSBridge struct {
	nc      *nats.Conn
	timeout time.Duration
	logger  *slog.Logger
}

// NewNATSBridge creates a bridge on an existing connection. NATS requests need a
// deadline, so every call is bounded by timeout unless ctx already has an
// earlier one.
func NewNATSBridge(nc *nats.Conn, timeout time.Duration, logger *slog.Logger) *NATSBridge {
	return &NATSBridge{
		nc:      nc,
		timeout: timeout,
		logger:  logger,
	}
}

// CheckPresence implements Wallet. No responder on the presence subject means
// no relay page is open, which is reported as absent rather than as an error.
func (b *NATSBridge) CheckPresence(ctx context.Context) (bool, error) {
	var resp struct {
		IsConnected bool `json:"isConnected"`
	}
	err := b.request(ctx, SubjectPresence, struct{}{}, &resp)
	if errors.Is(err, nats.ErrNoResponders) {
		b.logger.DebugContext(ctx, "no wallet relay listening", "subject", SubjectPresence)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return resp.IsConnected, nil
}

// RequestAddress implements Wallet.
func (b *NATSBridge) RequestAddress(ctx context.Context) (AddressResult, error) {
	var res AddressResult
	if err := b.request(ctx, SubjectAddress, struct{}{}, &res); err != nil {
		return AddressResult{}, err
	}
	return res, nil
}

// Sign implements Wallet.
func (b *NATSBridge) Sign(ctx context.Context, envelopeXDR string, opts SignOptions) (SignResult, error) {
	var res SignResult
	req := signRequest{XDR: envelopeXDR, NetworkPassphrase: opts.NetworkPassphrase}
	if err := b.request(ctx, SubjectSign, req, &res); err != nil {
		return SignResult{}, err
	}
	return res, nil
}

func (b *NATSBridge) request(ctx context.Context, subject string, in, out interface{}) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", subject, err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	msg, err := b.nc.RequestWithContext(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("wallet request on %s failed: %w", subject, err)
	}

	if err := json.Unmarshal(msg.Data, out); err != nil {
		return fmt.Errorf("failed to decode %s reply: %w", subject, err)
	}

	b.logger.DebugContext(ctx, "wallet request answered", "subject", subject)
	return nil
}
