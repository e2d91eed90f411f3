// Package session owns the wallet connection and the balance of the connected account.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/brojonat/lumenpay/service/metrics"
	"github.com/brojonat/lumenpay/service/stellar"
	"github.com/brojonat/lumenpay/service/wallet"
)

var (
	// ErrWalletUnavailable means no wallet extension answered the presence check.
	ErrWalletUnavailable = errors.New("wallet unavailable")

	// ErrAccessDenied means the wallet refused to share an address.
	ErrAccessDenied = errors.New("wallet access denied")

	// ErrAccountNotActivated means the ledger has no record of the address yet.
	ErrAccountNotActivated = errors.New("account not activated")

	// ErrBalanceFetchFailed covers every other balance lookup failure.
	ErrBalanceFetchFailed = errors.New("balance fetch failed")

	// ErrNotConnected is returned by operations that need an address before connect succeeded.
	ErrNotConnected = errors.New("wallet not connected")
)

// Message returns the short user-facing text for a session error.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrWalletUnavailable):
		return "Freighter wallet not installed."
	case errors.Is(err, ErrAccessDenied):
		return "Connection failed."
	case errors.Is(err, ErrAccountNotActivated):
		return "Account not activated. Fund via testnet faucet."
	case errors.Is(err, ErrBalanceFetchFailed):
		return "Failed to fetch balance."
	case errors.Is(err, ErrNotConnected):
		return "Connect a wallet first."
	default:
		return "Something went wrong."
	}
}

// AccountLoader loads account records from the ledger.
type AccountLoader interface {
	LoadAccount(ctx context.Context, address string) (*stellar.Account, error)
}

// Snapshot is a copy of the session state.
type Snapshot struct {
	Address   string  `json:"address,omitempty"`
	Balance   *string `json:"balance"`
	IsLoading bool    `json:"is_loading"`
	Error     error   `json:"-"`
	// ErrorMessage is the user-facing rendering of Error.
	ErrorMessage string `json:"error,omitempty"`
}

// Connected reports whether an address has been established.
func (s Snapshot) Connected() bool {
	return s.Address != ""
}

// Controller owns one session. Create one per user and pass it by reference.
type Controller struct {
	wallet  wallet.Wallet
	ledger  AccountLoader
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu        sync.Mutex
	address   string
	balance   *string
	loading   bool
	err       error
	refreshID uint64
}

// NewController creates an empty session. If m is nil, no metrics are recorded.
func NewController(w wallet.Wallet, ledger AccountLoader, m *metrics.Metrics, logger *slog.Logger) *Controller {
	return &Controller{
		wallet:  w,
		ledger:  ledger,
		metrics: m,
		logger:  logger,
	}
}

// Connect asks the wallet for the user's address. It prompts for access at most
// once and never retries. When the address changes the balance is refreshed
// before Connect returns.
//
// ErrWalletUnavailable and ErrAccessDenied are returned for the conditions the
// user should see. Transport failures are logged and leave the session as it
// was; the caller may simply try again.
func (c *Controller) Connect(ctx context.Context) error {
	present, err := c.wallet.CheckPresence(ctx)
	if err != nil {
		c.logger.ErrorContext(ctx, "wallet presence check failed", "error", err)
		c.metrics.RecordConnect("error")
		return nil
	}
	if !present {
		c.logger.InfoContext(ctx, "no wallet available")
		c.metrics.RecordConnect("unavailable")
		return ErrWalletUnavailable
	}

	res, err := c.wallet.RequestAddress(ctx)
	if err != nil {
		c.logger.ErrorContext(ctx, "wallet address request failed", "error", err)
		c.metrics.RecordConnect("error")
		return nil
	}
	if res.Error != "" {
		c.logger.InfoContext(ctx, "wallet denied address access", "wallet_error", res.Error)
		c.metrics.RecordConnect("denied")
		return fmt.Errorf("%w: %s", ErrAccessDenied, res.Error)
	}
	address := strings.TrimSpace(res.Address)
	if address == "" {
		c.logger.InfoContext(ctx, "wallet returned an empty address")
		c.metrics.RecordConnect("denied")
		return fmt.Errorf("%w: empty address", ErrAccessDenied)
	}

	c.mu.Lock()
	changed := c.address != address
	c.address = address
	c.mu.Unlock()

	c.metrics.RecordConnect("connected")
	c.logger.InfoContext(ctx, "wallet connected", "address", address, "changed", changed)

	if changed {
		// The outcome lands in the session state.
		_ = c.RefreshBalance(ctx)
	}
	return nil
}

// RefreshBalance loads the native balance of the connected address. The result
// is stored in the session and also returned. A refresh started later wins: if
// another refresh begins while this one is in flight, this one's result is
// dropped.
func (c *Controller) RefreshBalance(ctx context.Context) error {
	c.mu.Lock()
	address := c.address
	if address == "" {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.refreshID++
	id := c.refreshID
	c.loading = true
	c.err = nil
	c.mu.Unlock()

	var (
		balance string
		result  error
	)
	defer func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if id != c.refreshID {
			c.logger.DebugContext(ctx, "dropping superseded balance refresh", "address", address)
			return
		}
		c.loading = false
		if result != nil {
			c.err = result
			return
		}
		c.balance = &balance
	}()

	acct, err := c.ledger.LoadAccount(ctx, address)
	if err != nil {
		if errors.Is(err, stellar.ErrAccountNotFound) {
			result = ErrAccountNotActivated
			c.metrics.RecordBalanceRefresh("not_activated")
		} else {
			result = ErrBalanceFetchFailed
			c.metrics.RecordBalanceRefresh("error")
		}
		c.logger.WarnContext(ctx, "balance refresh failed", "address", address, "error", err)
		return result
	}

	balance = acct.NativeBalance()
	c.metrics.RecordBalanceRefresh("success")
	c.logger.DebugContext(ctx, "balance refreshed", "address", address, "balance", balance)
	return nil
}

// Address returns the connected address, if any.
func (c *Controller) Address() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.address, c.address != ""
}

// Snapshot returns a copy of the current session state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Address:      c.address,
		IsLoading:    c.loading,
		Error:        c.err,
		ErrorMessage: Message(c.err),
	}
	if c.balance != nil {
		b := *c.balance
		snap.Balance = &b
	}
	return snap
}
