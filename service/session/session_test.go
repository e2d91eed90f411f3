package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/brojonat/lumenpay/service/stellar"
	"github.com/brojonat/lumenpay/service/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddress = "GDRXE2BQUC3AZNPVFSCEZ76NJ3WWL25FYFK6RGZGIEKWE4SOOHSUJUJ6"

// mockLedger implements AccountLoader for testing.
// loadFunc, when set, overrides account/err so tests can block a call.
type mockLedger struct {
	mu       sync.Mutex
	account  *stellar.Account
	err      error
	loadFunc func(ctx context.Context, address string) (*stellar.Account, error)
	calls    int
}

func (m *mockLedger) LoadAccount(ctx context.Context, address string) (*stellar.Account, error) {
	m.mu.Lock()
	m.calls++
	fn, acct, err := m.loadFunc, m.account, m.err
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, address)
	}
	return acct, err
}

func (m *mockLedger) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func fundedAccount(balance string) *stellar.Account {
	return &stellar.Account{
		ID:       testAddress,
		Sequence: 1,
		Balances: []stellar.Balance{{AssetType: stellar.NativeAssetType, Amount: balance}},
	}
}

func newTestController(w wallet.Wallet, ledger AccountLoader) *Controller {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewController(w, ledger, nil, logger)
}

func TestConnect_Success(t *testing.T) {
	w := wallet.NewMockWallet(testAddress)
	ledger := &mockLedger{account: fundedAccount("10000.0000000")}
	c := newTestController(w, ledger)

	err := c.Connect(context.Background())
	require.NoError(t, err)

	snap := c.Snapshot()
	assert.Equal(t, testAddress, snap.Address)
	require.NotNil(t, snap.Balance)
	assert.Equal(t, "10000.0000000", *snap.Balance)
	assert.False(t, snap.IsLoading)
	assert.NoError(t, snap.Error)
	assert.Equal(t, 1, w.AddressCalls())
	assert.Equal(t, 1, ledger.Calls())
}

func TestConnect_WalletAbsent(t *testing.T) {
	w := wallet.NewMockWallet(testAddress)
	w.Present = false
	ledger := &mockLedger{account: fundedAccount("1")}
	c := newTestController(w, ledger)

	err := c.Connect(context.Background())
	assert.ErrorIs(t, err, ErrWalletUnavailable)

	snap := c.Snapshot()
	assert.False(t, snap.Connected())
	assert.Nil(t, snap.Balance)
	assert.Equal(t, 0, w.AddressCalls(), "no access prompt without a wallet")
	assert.Equal(t, 0, ledger.Calls(), "refresh must not run without an address")
}

func TestConnect_AccessDenied(t *testing.T) {
	w := wallet.NewMockWallet("")
	w.Address = wallet.AddressResult{Error: "User declined access"}
	ledger := &mockLedger{}
	c := newTestController(w, ledger)

	err := c.Connect(context.Background())
	assert.ErrorIs(t, err, ErrAccessDenied)
	assert.Contains(t, err.Error(), "User declined access")

	_, ok := c.Address()
	assert.False(t, ok)
	assert.Equal(t, 1, w.AddressCalls())
	assert.Equal(t, 0, ledger.Calls())
}

func TestConnect_EmptyAddressIsDenied(t *testing.T) {
	w := wallet.NewMockWallet("   ")
	c := newTestController(w, &mockLedger{})

	assert.ErrorIs(t, c.Connect(context.Background()), ErrAccessDenied)
	assert.False(t, c.Snapshot().Connected())
}

func TestConnect_TransportFailureIsSwallowed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*wallet.MockWallet)
	}{
		{name: "presence", mutate: func(w *wallet.MockWallet) { w.PresenceErr = errors.New("relay gone") }},
		{name: "address", mutate: func(w *wallet.MockWallet) { w.AddressErr = errors.New("relay gone") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := wallet.NewMockWallet(testAddress)
			tt.mutate(w)
			ledger := &mockLedger{}
			c := newTestController(w, ledger)

			err := c.Connect(context.Background())
			assert.NoError(t, err)
			assert.False(t, c.Snapshot().Connected())
			assert.Equal(t, 0, ledger.Calls())
		})
	}
}

func TestConnect_SameAddressDoesNotRefresh(t *testing.T) {
	w := wallet.NewMockWallet(testAddress)
	ledger := &mockLedger{account: fundedAccount("5")}
	c := newTestController(w, ledger)

	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Connect(context.Background()))

	assert.Equal(t, 2, w.AddressCalls())
	assert.Equal(t, 1, ledger.Calls())
}

func TestRefreshBalance_NotActivated(t *testing.T) {
	w := wallet.NewMockWallet(testAddress)
	ledger := &mockLedger{err: fmt.Errorf("load account: %w", stellar.ErrAccountNotFound)}
	c := newTestController(w, ledger)

	require.NoError(t, c.Connect(context.Background()))

	snap := c.Snapshot()
	assert.Equal(t, testAddress, snap.Address)
	assert.ErrorIs(t, snap.Error, ErrAccountNotActivated)
	assert.Equal(t, "Account not activated. Fund via testnet faucet.", snap.ErrorMessage)
	assert.Nil(t, snap.Balance)
	assert.False(t, snap.IsLoading)
}

func TestRefreshBalance_OtherFailureKeepsPreviousBalance(t *testing.T) {
	w := wallet.NewMockWallet(testAddress)
	ledger := &mockLedger{account: fundedAccount("42.0000000")}
	c := newTestController(w, ledger)
	require.NoError(t, c.Connect(context.Background()))

	ledger.mu.Lock()
	ledger.err = errors.New("horizon: 503 service unavailable")
	ledger.mu.Unlock()

	err := c.RefreshBalance(context.Background())
	assert.ErrorIs(t, err, ErrBalanceFetchFailed)

	snap := c.Snapshot()
	assert.ErrorIs(t, snap.Error, ErrBalanceFetchFailed)
	require.NotNil(t, snap.Balance)
	assert.Equal(t, "42.0000000", *snap.Balance)
	assert.False(t, snap.IsLoading)
}

func TestRefreshBalance_NoNativeEntry(t *testing.T) {
	w := wallet.NewMockWallet(testAddress)
	ledger := &mockLedger{account: &stellar.Account{
		ID:       testAddress,
		Balances: []stellar.Balance{{AssetType: "credit_alphanum4", AssetCode: "USDC", Amount: "3"}},
	}}
	c := newTestController(w, ledger)

	require.NoError(t, c.Connect(context.Background()))

	snap := c.Snapshot()
	require.NotNil(t, snap.Balance)
	assert.Equal(t, "0", *snap.Balance)
}

func TestRefreshBalance_NotConnected(t *testing.T) {
	c := newTestController(wallet.NewMockWallet(testAddress), &mockLedger{})
	assert.ErrorIs(t, c.RefreshBalance(context.Background()), ErrNotConnected)
}

func TestRefreshBalance_ClearsErrorAndSetsLoading(t *testing.T) {
	w := wallet.NewMockWallet(testAddress)
	ledger := &mockLedger{err: stellar.ErrAccountNotFound}
	c := newTestController(w, ledger)
	require.NoError(t, c.Connect(context.Background()))
	require.Error(t, c.Snapshot().Error)

	entered := make(chan struct{})
	release := make(chan struct{})
	ledger.mu.Lock()
	ledger.loadFunc = func(ctx context.Context, address string) (*stellar.Account, error) {
		close(entered)
		<-release
		return fundedAccount("7"), nil
	}
	ledger.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- c.RefreshBalance(context.Background()) }()

	<-entered
	inFlight := c.Snapshot()
	assert.True(t, inFlight.IsLoading)
	assert.NoError(t, inFlight.Error)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, c.Snapshot().IsLoading)
}

func TestRefreshBalance_LaterRefreshWins(t *testing.T) {
	w := wallet.NewMockWallet(testAddress)
	ledger := &mockLedger{account: fundedAccount("1")}
	c := newTestController(w, ledger)
	require.NoError(t, c.Connect(context.Background()))

	firstEntered := make(chan struct{})
	releaseFirst := make(chan struct{})
	var once sync.Once
	ledger.mu.Lock()
	ledger.loadFunc = func(ctx context.Context, address string) (*stellar.Account, error) {
		first := false
		once.Do(func() { first = true })
		if first {
			close(firstEntered)
			<-releaseFirst
			return fundedAccount("111"), nil
		}
		return fundedAccount("222"), nil
	}
	ledger.mu.Unlock()

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		_ = c.RefreshBalance(context.Background())
	}()
	<-firstEntered

	require.NoError(t, c.RefreshBalance(context.Background()))
	close(releaseFirst)
	<-firstDone

	snap := c.Snapshot()
	require.NotNil(t, snap.Balance)
	assert.Equal(t, "222", *snap.Balance, "the stale refresh must not overwrite the newer result")
	assert.False(t, snap.IsLoading)
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "", Message(nil))
	assert.Equal(t, "Connection failed.", Message(fmt.Errorf("%w: nope", ErrAccessDenied)))
	assert.Equal(t, "Failed to fetch balance.", Message(ErrBalanceFetchFailed))
	assert.Equal(t, "Something went wrong.", Message(errors.New("boom")))
}
