package stellar

import (
	"testing"
	"time"

	"github.com/stellar/go-stellar-sdk/keypair"
	"github.com/stellar/go-stellar-sdk/network"
	"github.com/stellar/go-stellar-sdk/txnbuild"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTestEnvelope(t *testing.T, source *keypair.Full, now time.Time) string {
	t.Helper()
	envelope, err := BuildPaymentEnvelope(PaymentParams{
		Source:      &Account{ID: source.Address(), Sequence: 100},
		Destination: keypair.MustRandom().Address(),
		Amount:      "12.5",
		BaseFee:     txnbuild.MinBaseFee,
		ValidFor:    30 * time.Second,
		Now:         now,
	})
	require.NoError(t, err)
	return envelope
}

func signEnvelope(t *testing.T, envelope, passphrase string, kp *keypair.Full) string {
	t.Helper()
	generic, err := txnbuild.TransactionFromXDR(envelope)
	require.NoError(t, err)
	tx, ok := generic.Transaction()
	require.True(t, ok)
	signed, err := tx.Sign(passphrase, kp)
	require.NoError(t, err)
	out, err := signed.Base64()
	require.NoError(t, err)
	return out
}

func TestBuildPaymentEnvelope(t *testing.T) {
	source := keypair.MustRandom()
	now := time.Unix(1_700_000_000, 0)

	envelope := buildTestEnvelope(t, source, now)

	generic, err := txnbuild.TransactionFromXDR(envelope)
	require.NoError(t, err)
	tx, ok := generic.Transaction()
	require.True(t, ok)

	assert.Equal(t, source.Address(), tx.SourceAccount().AccountID)
	assert.Equal(t, int64(101), tx.SequenceNumber())
	assert.Equal(t, int64(txnbuild.MinBaseFee), tx.BaseFee())
	assert.Equal(t, now.Add(30*time.Second).Unix(), tx.Timebounds().MaxTime)
	assert.Empty(t, tx.Signatures())

	ops := tx.Operations()
	require.Len(t, ops, 1)
	payment, ok := ops[0].(*txnbuild.Payment)
	require.True(t, ok)
	assert.Equal(t, "12.5000000", payment.Amount)
	assert.True(t, payment.Asset.IsNative())
}

func TestBuildPaymentEnvelope_InvalidDestination(t *testing.T) {
	_, err := BuildPaymentEnvelope(PaymentParams{
		Source:      &Account{ID: keypair.MustRandom().Address(), Sequence: 1},
		Destination: "not-an-address",
		Amount:      "1",
		BaseFee:     txnbuild.MinBaseFee,
		ValidFor:    30 * time.Second,
	})
	assert.Error(t, err)
}

func TestParseSignedEnvelope(t *testing.T) {
	source := keypair.MustRandom()
	envelope := buildTestEnvelope(t, source, time.Now())

	t.Run("valid signature for expected network", func(t *testing.T) {
		signed := signEnvelope(t, envelope, network.TestNetworkPassphrase, source)

		parsed, err := ParseSignedEnvelope(signed, network.TestNetworkPassphrase, source.Address())
		require.NoError(t, err)
		assert.NotEmpty(t, parsed.XDR)
		assert.Len(t, parsed.Hash, 64)
	})

	t.Run("signed for a different network", func(t *testing.T) {
		signed := signEnvelope(t, envelope, network.PublicNetworkPassphrase, source)

		_, err := ParseSignedEnvelope(signed, network.TestNetworkPassphrase, source.Address())
		assert.ErrorIs(t, err, ErrWrongNetwork)
	})

	t.Run("unsigned envelope", func(t *testing.T) {
		_, err := ParseSignedEnvelope(envelope, network.TestNetworkPassphrase, source.Address())
		assert.ErrorIs(t, err, ErrMalformedEnvelope)
	})

	t.Run("different source account", func(t *testing.T) {
		signed := signEnvelope(t, envelope, network.TestNetworkPassphrase, source)

		_, err := ParseSignedEnvelope(signed, network.TestNetworkPassphrase, keypair.MustRandom().Address())
		assert.ErrorIs(t, err, ErrMalformedEnvelope)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := ParseSignedEnvelope("definitely not xdr", network.TestNetworkPassphrase, source.Address())
		assert.ErrorIs(t, err, ErrMalformedEnvelope)
	})
}
