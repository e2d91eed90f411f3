package stellar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/brojonat/lumenpay/service/metrics"
	"github.com/stellar/go-stellar-sdk/clients/horizonclient"
	"github.com/stellar/go-stellar-sdk/protocols/horizon"
)

// ErrAccountNotFound is returned by LoadAccount when Horizon has no record of the
// account. On the test network this means the account was never funded.
var ErrAccountNotFound = errors.New("account not found")

// HorizonClient is an interface for the Horizon operations we need.
// This allows us to mock the ledger in tests without hitting a real Horizon instance.
type HorizonClient interface {
	AccountDetail(ctx context.Context, accountID string) (horizon.Account, error)
	SubmitTransactionXDR(ctx context.Context, envelopeXDR string) (horizon.Transaction, error)
}

// SubmitError describes a transaction Horizon refused to apply.
type SubmitError struct {
	Status          int
	TransactionCode string
	OperationCodes  []string
	Err             error
}

func (e *SubmitError) Error() string {
	if e.TransactionCode == "" {
		return fmt.Sprintf("transaction submission failed: %v", e.Err)
	}
	return fmt.Sprintf("transaction rejected: %s [%s]", e.TransactionCode, strings.Join(e.OperationCodes, ","))
}

func (e *SubmitError) Unwrap() error { return e.Err }

// Client provides the ledger operations the session and payment flows need.
// It wraps the Horizon client with logging, metrics and error classification.
type Client struct {
	horizon HorizonClient
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewClient creates a new ledger client. If m is nil, no metrics are recorded.
func NewClient(hc HorizonClient, m *metrics.Metrics, logger *slog.Logger) *Client {
	return &Client{
		horizon: hc,
		logger:  logger,
		metrics: m,
	}
}

// LoadAccount fetches the account record for address.
// Returns ErrAccountNotFound (wrapped) if the account does not exist on the network.
func (c *Client) LoadAccount(ctx context.Context, address string) (*Account, error) {
	start := time.Now()
	record, err := c.horizon.AccountDetail(ctx, address)
	c.metrics.RecordHorizonCall("LoadAccount", err, metrics.Since(start))

	if err != nil {
		if isNotFound(err) {
			c.logger.DebugContext(ctx, "account not found on ledger", "address", address)
			return nil, fmt.Errorf("load account %s: %w", address, ErrAccountNotFound)
		}
		c.logger.ErrorContext(ctx, "failed to load account",
			"address", address,
			"error", err,
		)
		return nil, fmt.Errorf("load account %s: %w", address, err)
	}

	acct := accountToDomain(record)
	c.logger.DebugContext(ctx, "loaded account",
		"address", address,
		"sequence", acct.Sequence,
		"balances", len(acct.Balances),
	)
	return acct, nil
}

// Submit sends a signed base64 XDR envelope to the network and returns the
// transaction hash once Horizon has accepted it into a ledger.
func (c *Client) Submit(ctx context.Context, envelopeXDR string) (string, error) {
	start := time.Now()
	tx, err := c.horizon.SubmitTransactionXDR(ctx, envelopeXDR)
	c.metrics.RecordHorizonCall("Submit", err, metrics.Since(start))

	if err != nil {
		serr := toSubmitError(err)
		c.logger.ErrorContext(ctx, "transaction submission failed",
			"status", serr.Status,
			"tx_code", serr.TransactionCode,
			"op_codes", serr.OperationCodes,
			"error", err,
		)
		return "", serr
	}

	c.logger.InfoContext(ctx, "transaction submitted",
		"hash", tx.Hash,
		"ledger", tx.Ledger,
	)
	return tx.Hash, nil
}

func accountToDomain(record horizon.Account) *Account {
	acct := &Account{
		ID:       record.AccountID,
		Sequence: record.Sequence,
		Balances: make([]Balance, 0, len(record.Balances)),
	}
	for _, b := range record.Balances {
		acct.Balances = append(acct.Balances, Balance{
			AssetType: b.Type,
			AssetCode: b.Code,
			Amount:    b.Balance,
		})
	}
	return acct
}

func isNotFound(err error) bool {
	if horizonclient.IsNotFoundError(err) {
		return true
	}
	var herr *horizonclient.Error
	return errors.As(err, &herr) && herr.Problem.Status == http.StatusNotFound
}

func toSubmitError(err error) *SubmitError {
	serr := &SubmitError{Err: err}
	var herr *horizonclient.Error
	if !errors.As(err, &herr) {
		return serr
	}
	serr.Status = herr.Problem.Status
	if codes, cerr := herr.ResultCodes(); cerr == nil && codes != nil {
		serr.TransactionCode = codes.TransactionCode
		serr.OperationCodes = codes.OperationCodes
	}
	return serr
}
