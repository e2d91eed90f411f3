package stellar

import (
	"errors"
	"fmt"
	"time"

	"github.com/stellar/go-stellar-sdk/keypair"
	"github.com/stellar/go-stellar-sdk/txnbuild"
)

var (
	// ErrMalformedEnvelope is returned when a signed envelope cannot be decoded
	// or is not a plain transaction from the expected source account.
	ErrMalformedEnvelope = errors.New("malformed transaction envelope")

	// ErrWrongNetwork is returned when no signature on the envelope verifies
	// against the transaction hash for the expected network passphrase.
	ErrWrongNetwork = errors.New("envelope not signed for the expected network")
)

// PaymentParams describes a single native-asset payment.
type PaymentParams struct {
	Source      *Account
	Destination string
	Amount      string
	BaseFee     int64
	// ValidFor bounds how long the network will accept the transaction.
	ValidFor time.Duration
	// Now anchors the validity window. Zero means time.Now().
	Now time.Time
}

// BuildPaymentEnvelope builds an unsigned transaction containing exactly one
// native payment and returns it as a base64 XDR envelope. The transaction uses
// the source account's next sequence number.
func BuildPaymentEnvelope(p PaymentParams) (string, error) {
	if p.Source == nil {
		return "", fmt.Errorf("build payment: source account is required")
	}
	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}

	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount: &txnbuild.SimpleAccount{
			AccountID: p.Source.ID,
			Sequence:  p.Source.Sequence,
		},
		IncrementSequenceNum: true,
		BaseFee:              p.BaseFee,
		Preconditions: txnbuild.Preconditions{
			TimeBounds: txnbuild.NewTimebounds(0, now.Add(p.ValidFor).Unix()),
		},
		Operations: []txnbuild.Operation{
			&txnbuild.Payment{
				Destination: p.Destination,
				Amount:      p.Amount,
				Asset:       txnbuild.NativeAsset{},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("build payment: %w", err)
	}

	envelope, err := tx.Base64()
	if err != nil {
		return "", fmt.Errorf("encode envelope: %w", err)
	}
	return envelope, nil
}

// SignedEnvelope is a decoded, network-checked signed transaction.
type SignedEnvelope struct {
	XDR  string
	Hash string
}

// ParseSignedEnvelope decodes a signed envelope returned by a wallet and checks
// that it is a transaction from source carrying a signature by source over the
// transaction hash for networkPassphrase.
func ParseSignedEnvelope(envelopeXDR, networkPassphrase, source string) (*SignedEnvelope, error) {
	generic, err := txnbuild.TransactionFromXDR(envelopeXDR)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	tx, ok := generic.Transaction()
	if !ok {
		return nil, fmt.Errorf("%w: fee bump transactions are not accepted", ErrMalformedEnvelope)
	}

	sourceAccount := tx.SourceAccount()
	if sourceAccount.AccountID != source {
		return nil, fmt.Errorf("%w: source account %s does not match %s",
			ErrMalformedEnvelope, sourceAccount.AccountID, source)
	}

	signer, err := keypair.ParseAddress(source)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid source address: %v", ErrMalformedEnvelope, err)
	}

	hash, err := tx.Hash(networkPassphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: hash transaction: %v", ErrMalformedEnvelope, err)
	}

	signatures := tx.Signatures()
	if len(signatures) == 0 {
		return nil, fmt.Errorf("%w: envelope carries no signatures", ErrMalformedEnvelope)
	}

	verified := false
	for _, sig := range signatures {
		if signer.Verify(hash[:], sig.Signature) == nil {
			verified = true
			break
		}
	}
	if !verified {
		return nil, ErrWrongNetwork
	}

	canonical, err := tx.Base64()
	if err != nil {
		return nil, fmt.Errorf("%w: re-encode envelope: %v", ErrMalformedEnvelope, err)
	}

	hashHex, err := tx.HashHex(networkPassphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: hash transaction: %v", ErrMalformedEnvelope, err)
	}

	return &SignedEnvelope{XDR: canonical, Hash: hashHex}, nil
}
