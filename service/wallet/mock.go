package wallet

import (
	"context"
	"sync"
)

// MockWallet is a scriptable Wallet for tests.
//
// SignFunc, when set, replaces the canned sign result; tests use it to block
// a signing call until they release it.
type MockWallet struct {
	mu sync.Mutex

	Present     bool
	PresenceErr error
	Address     AddressResult
	AddressErr  error
	SignResult  SignResult
	SignErr     error
	SignFunc    func(ctx context.Context, envelopeXDR string, opts SignOptions) (SignResult, error)

	presenceCalls int
	addressCalls  int
	signRequests  []SignRequest
}

// SignRequest is a recorded call to Sign.
type SignRequest struct {
	EnvelopeXDR string
	Options     SignOptions
}

// NewMockWallet returns a present wallet that hands out address.
func NewMockWallet(address string) *MockWallet {
	return &MockWallet{
		Present: true,
		Address: AddressResult{Address: address},
	}
}

// CheckPresence implements Wallet.
func (m *MockWallet) CheckPresence(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.presenceCalls++
	return m.Present, m.PresenceErr
}

// RequestAddress implements Wallet.
func (m *MockWallet) RequestAddress(ctx context.Context) (AddressResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addressCalls++
	return m.Address, m.AddressErr
}

// Sign implements Wallet.
func (m *MockWallet) Sign(ctx context.Context, envelopeXDR string, opts SignOptions) (SignResult, error) {
	m.mu.Lock()
	m.signRequests = append(m.signRequests, SignRequest{EnvelopeXDR: envelopeXDR, Options: opts})
	fn := m.SignFunc
	res, err := m.SignResult, m.SignErr
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, envelopeXDR, opts)
	}
	return res, err
}

// AddressCalls returns how many times RequestAddress was called.
func (m *MockWallet) AddressCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addressCalls
}

// PresenceCalls returns how many times CheckPresence was called.
func (m *MockWallet) PresenceCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.presenceCalls
}

// SignRequests returns a copy of all recorded sign requests.
func (m *MockWallet) SignRequests() []SignRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SignRequest, len(m.signRequests))
	copy(out, m.signRequests)
	return out
}
