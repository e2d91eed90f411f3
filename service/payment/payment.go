// Package payment runs the send flow for a single native payment: validate the
// request, build the unsigned envelope, have the wallet sign it, then submit it.
package payment

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the progress of a payment attempt.
type Status string

const (
	StatusIdle              Status = "idle"
	StatusBuilding          Status = "building"
	StatusAwaitingSignature Status = "awaiting_signature"
	StatusSubmitting        Status = "submitting"
	StatusSuccess           Status = "success"
	StatusFailed            Status = "failed"
)

// Terminal reports whether no further transitions follow s.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Message returns the user-visible text for s.
func (s Status) Message() string {
	switch s {
	case StatusBuilding:
		return "Building transaction..."
	case StatusAwaitingSignature:
		return "Awaiting signature..."
	case StatusSubmitting:
		return "Submitting transaction..."
	case StatusSuccess:
		return "Transaction successful!"
	case StatusFailed:
		return "Transaction failed."
	default:
		return ""
	}
}

// Cause is the internal reason an attempt failed. Users only see "Transaction failed.".
type Cause string

const (
	CauseAccountLoad       Cause = "account_load"
	CauseBuild             Cause = "build"
	CauseSignRejected      Cause = "sign_rejected"
	CauseSignError         Cause = "sign_error"
	CauseMalformedEnvelope Cause = "malformed_envelope"
	CauseWrongNetwork      Cause = "wrong_network"
	CauseSubmitRejected    Cause = "submit_rejected"
)

var (
	// ErrTransactionFailed wraps every failure after validation passed.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrNotConnected is returned when no wallet address is available. The
	// live attempt is left untouched.
	ErrNotConnected = errors.New("wallet not connected")
)

// Validation rules, in evaluation order.
const (
	RuleRecipientRequired = "recipient_required"
	RuleSelfPayment       = "self_payment"
	RuleAmountPositive    = "amount_positive"
)

// ValidationError rejects a request before any network or signing call.
type ValidationError struct {
	Rule   string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// SendRequest is what the user typed into the payment form.
type SendRequest struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

// Attempt is the state of one payment attempt. Hash is set only when Status is StatusSuccess.
type Attempt struct {
	ID        string    `json:"id,omitempty"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Hash      string    `json:"hash,omitempty"`
	Recipient string    `json:"recipient,omitempty"`
	Amount    string    `json:"amount,omitempty"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks req against the sender address. The first failing rule wins.
// On success it returns the trimmed recipient and the parsed amount.
func Validate(req SendRequest, sender string) (string, decimal.Decimal, error) {
	recipient := strings.TrimSpace(req.Recipient)
	if recipient == "" {
		return "", decimal.Zero, &ValidationError{
			Rule:   RuleRecipientRequired,
			Reason: "Please enter recipient address.",
		}
	}
	if recipient == strings.TrimSpace(sender) {
		return "", decimal.Zero, &ValidationError{
			Rule:   RuleSelfPayment,
			Reason: "You cannot send XLM to your own address.",
		}
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil || !amount.IsPositive() {
		return "", decimal.Zero, &ValidationError{
			Rule:   RuleAmountPositive,
			Reason: "Amount must be greater than 0.",
		}
	}
	return recipient, amount, nil
}
