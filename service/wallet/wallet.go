// Package wallet defines the external signing capability and its bridges.
//
// The wallet is never in-process: keys live in a browser extension (Freighter)
// or another signer, reached over HTTP or NATS request/reply. Each call returns
// two kinds of failure: a wallet-reported error in the result (the user
// declined, the extension refused) and a Go error for transport failures.
package wallet

import (
	"context"
	"time"

	"github.com/brojonat/lumenpay/service/metrics"
)

// AddressResult is the answer to an address access request.
type AddressResult struct {
	Address string `json:"address"`
	Error   string `json:"error,omitempty"`
}

// SignOptions accompanies an envelope sent for signing.
type SignOptions struct {
	NetworkPassphrase string `json:"networkPassphrase"`
}

// SignResult is the answer to a signing request.
type SignResult struct {
	SignedTxXDR   string `json:"signedTxXdr"`
	SignerAddress string `json:"signerAddress,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Wallet is the capability surface of an external wallet.
type Wallet interface {
	// CheckPresence reports whether a wallet is installed and reachable.
	CheckPresence(ctx context.Context) (bool, error)

	// RequestAddress prompts the user to share their address.
	RequestAddress(ctx context.Context) (AddressResult, error)

	// Sign prompts the user to sign a base64 XDR envelope for the given network.
	Sign(ctx context.Context, envelopeXDR string, opts SignOptions) (SignResult, error)
}

// instrumented records metrics around every call of the wrapped Wallet.
type instrumented struct {
	next    Wallet
	metrics *metrics.Metrics
}

// WithMetrics wraps w so every capability call is counted and timed.
func WithMetrics(w Wallet, m *metrics.Metrics) Wallet {
	if m == nil {
		return w
	}
	return &instrumented{next: w, metrics: m}
}

func (i *instrumented) CheckPresence(ctx context.Context) (bool, error) {
	start := time.Now()
	present, err := i.next.CheckPresence(ctx)
	outcome := outcomeOf("", err)
	if err == nil && !present {
		outcome = "absent"
	}
	i.metrics.RecordWalletCall("presence", outcome, metrics.Since(start))
	return present, err
}

func (i *instrumented) RequestAddress(ctx context.Context) (AddressResult, error) {
	start := time.Now()
	res, err := i.next.RequestAddress(ctx)
	i.metrics.RecordWalletCall("address", outcomeOf(res.Error, err), metrics.Since(start))
	return res, err
}

func (i *instrumented) Sign(ctx context.Context, envelopeXDR string, opts SignOptions) (SignResult, error) {
	start := time.Now()
	res, err := i.next.Sign(ctx, envelopeXDR, opts)
	i.metrics.RecordWalletCall("sign", outcomeOf(res.Error, err), metrics.Since(start))
	return res, err
}

func outcomeOf(walletErr string, err error) string {
	switch {
	case err != nil:
		return "error"
	case walletErr != "":
		return "rejected"
	default:
		return "ok"
	}
}
