package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/brojonat/lumenpay/service/events"
	"github.com/brojonat/lumenpay/service/metrics"
	"github.com/brojonat/lumenpay/service/stellar"
	"github.com/brojonat/lumenpay/service/wallet"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AddressSource provides the sender address. session.Controller implements it.
type AddressSource interface {
	Address() (string, bool)
}

// Ledger is the subset of the Horizon client used to send a payment.
type Ledger interface {
	LoadAccount(ctx context.Context, address string) (*stellar.Account, error)
	Submit(ctx context.Context, envelopeXDR string) (string, error)
}

// Outcome is the final result of an attempt, including the internal failure cause.
type Outcome struct {
	AttemptID  string
	Address    string
	Recipient  string
	Amount     string
	Status     Status
	Cause      Cause
	Hash       string
	Error      string
	Superseded bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// Recorder persists attempt outcomes.
type Recorder interface {
	RecordAttempt(ctx context.Context, outcome Outcome) error
}

// Params are the transaction parameters applied to every attempt.
type Params struct {
	NetworkPassphrase string
	BaseFee           int64
	ValidFor          time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Orchestrator owns the live payment attempt. Only the most recently started
// attempt may change it; results of superseded attempts are logged and
// recorded but never displayed.
type Orchestrator struct {
	session   AddressSource
	ledger    Ledger
	wallet    wallet.Wallet
	params    Params
	publisher events.Publisher
	recorder  Recorder
	metrics   *metrics.Metrics
	logger    *slog.Logger

	// emitMu serializes state transitions with their events so subscribers
	// see them in order. It is always taken before mu.
	emitMu  sync.Mutex
	mu      sync.Mutex
	current Attempt
	gen     uint64

	inflight sync.WaitGroup
}

// NewOrchestrator creates an orchestrator with an idle attempt. If m is nil,
// no metrics are recorded.
func NewOrchestrator(session AddressSource, ledger Ledger, w wallet.Wallet, params Params, m *metrics.Metrics, logger *slog.Logger) *Orchestrator {
	if params.Now == nil {
		params.Now = time.Now
	}
	return &Orchestrator{
		session: session,
		ledger:  ledger,
		wallet:  w,
		params:  params,
		metrics: m,
		logger:  logger,
		current: Attempt{Status: StatusIdle},
	}
}

// SetPublisher publishes every status change of the live attempt to p.
// Call before the first Send.
func (o *Orchestrator) SetPublisher(p events.Publisher) {
	o.publisher = p
}

// SetRecorder writes every attempt outcome to r. Call before the first Send.
func (o *Orchestrator) SetRecorder(r Recorder) {
	o.recorder = r
}

// run is one attempt in flight.
type run struct {
	gen     uint64
	address string
	amount  decimal.Decimal
	attempt Attempt
}

// Send runs a full attempt and returns its final state. A validation failure
// returns a *ValidationError and leaves the attempt idle with the reason as
// its message. Any later failure returns an error wrapping ErrTransactionFailed.
func (o *Orchestrator) Send(ctx context.Context, req SendRequest) (Attempt, error) {
	r, snap, err := o.begin(ctx, req)
	if err != nil {
		return snap, err
	}
	o.advance(ctx, r, StatusBuilding)
	return o.execute(ctx, r)
}

// Start validates req and starts the attempt in the background, returning the
// attempt as it is once building has begun. The attempt outlives ctx; use
// Current or the event stream to follow it.
func (o *Orchestrator) Start(ctx context.Context, req SendRequest) (Attempt, error) {
	r, snap, err := o.begin(ctx, req)
	if err != nil {
		return snap, err
	}
	snap = o.advance(ctx, r, StatusBuilding)

	bg := context.WithoutCancel(ctx)
	o.inflight.Add(1)
	go func() {
		defer o.inflight.Done()
		_, _ = o.execute(bg, r)
	}()
	return snap, nil
}

// Wait blocks until every attempt started with Start has finished.
func (o *Orchestrator) Wait() {
	o.inflight.Wait()
}

// Current returns a copy of the live attempt.
func (o *Orchestrator) Current() Attempt {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// begin supersedes any attempt in flight, resets the live attempt to idle and
// validates req.
func (o *Orchestrator) begin(ctx context.Context, req SendRequest) (*run, Attempt, error) {
	address, ok := o.session.Address()
	if !ok {
		o.logger.InfoContext(ctx, "send ignored, no wallet connected")
		return nil, o.Current(), ErrNotConnected
	}

	recipient, amount, verr := Validate(req, address)

	o.emitMu.Lock()
	defer o.emitMu.Unlock()

	now := o.params.Now()
	r := &run{address: address, amount: amount}

	o.mu.Lock()
	o.gen++
	r.gen = o.gen
	r.attempt = Attempt{Status: StatusIdle, StartedAt: now, UpdatedAt: now}
	if verr != nil {
		r.attempt.Message = verr.Error()
	} else {
		r.attempt.ID = uuid.NewString()
		r.attempt.Recipient = recipient
		r.attempt.Amount = amount.String()
	}
	o.current = r.attempt
	o.mu.Unlock()

	if verr != nil {
		var ve *ValidationError
		if errors.As(verr, &ve) {
			o.metrics.RecordValidationReject(ve.Rule)
		}
		o.logger.InfoContext(ctx, "payment request rejected",
			"address", address,
			"reason", verr.Error(),
		)
		return nil, r.attempt, verr
	}

	o.publish(ctx, r, "")
	return r, r.attempt, nil
}

// execute runs the attempt from account load to its terminal status.
func (o *Orchestrator) execute(ctx context.Context, r *run) (Attempt, error) {
	start := time.Now()
	o.logger.InfoContext(ctx, "payment attempt started",
		"attempt_id", r.attempt.ID,
		"address", r.address,
		"recipient", r.attempt.Recipient,
		"amount", r.attempt.Amount,
	)

	// Step 1: Build the unsigned envelope from the current sequence number
	acct, err := o.ledger.LoadAccount(ctx, r.address)
	if err != nil {
		return o.fail(ctx, r, start, CauseAccountLoad, err)
	}
	envelope, err := stellar.BuildPaymentEnvelope(stellar.PaymentParams{
		Source:      acct,
		Destination: r.attempt.Recipient,
		Amount:      r.amount.String(),
		BaseFee:     o.params.BaseFee,
		ValidFor:    o.params.ValidFor,
		Now:         o.params.Now(),
	})
	if err != nil {
		return o.fail(ctx, r, start, CauseBuild, err)
	}

	// Step 2: Hand it to the wallet
	o.advance(ctx, r, StatusAwaitingSignature)
	signed, err := o.wallet.Sign(ctx, envelope, wallet.SignOptions{NetworkPassphrase: o.params.NetworkPassphrase})
	if err != nil {
		return o.fail(ctx, r, start, CauseSignError, err)
	}
	if signed.Error != "" {
		return o.fail(ctx, r, start, CauseSignRejected, errors.New(signed.Error))
	}

	// Step 3: Check the signed envelope against our network and submit
	o.advance(ctx, r, StatusSubmitting)
	parsed, err := stellar.ParseSignedEnvelope(signed.SignedTxXDR, o.params.NetworkPassphrase, r.address)
	if err != nil {
		cause := CauseMalformedEnvelope
		if errors.Is(err, stellar.ErrWrongNetwork) {
			cause = CauseWrongNetwork
		}
		return o.fail(ctx, r, start, cause, err)
	}
	hash, err := o.ledger.Submit(ctx, parsed.XDR)
	if err != nil {
		return o.fail(ctx, r, start, CauseSubmitRejected, err)
	}

	// Step 4: Done
	return o.finish(ctx, r, start, StatusSuccess, hash, "", nil)
}

func (o *Orchestrator) fail(ctx context.Context, r *run, start time.Time, cause Cause, err error) (Attempt, error) {
	return o.finish(ctx, r, start, StatusFailed, "", cause, err)
}

// advance moves r to status. The live attempt only follows if r is still current.
func (o *Orchestrator) advance(ctx context.Context, r *run, status Status) Attempt {
	o.emitMu.Lock()
	defer o.emitMu.Unlock()

	r.attempt.Status = status
	r.attempt.Message = status.Message()
	r.attempt.UpdatedAt = o.params.Now()

	if !o.commit(r) {
		o.logger.DebugContext(ctx, "superseded attempt advanced",
			"attempt_id", r.attempt.ID,
			"status", status,
		)
		return r.attempt
	}
	o.publish(ctx, r, "")
	return r.attempt
}

// finish moves r to a terminal status and records the outcome.
func (o *Orchestrator) finish(ctx context.Context, r *run, start time.Time, status Status, hash string, cause Cause, cerr error) (Attempt, error) {
	o.emitMu.Lock()
	r.attempt.Status = status
	r.attempt.Message = status.Message()
	r.attempt.Hash = hash
	r.attempt.UpdatedAt = o.params.Now()
	current := o.commit(r)
	if current {
		o.publish(ctx, r, cause)
	}
	o.emitMu.Unlock()

	o.metrics.RecordAttempt(string(status), string(cause), metrics.Since(start))
	if !current {
		o.metrics.RecordStaleResult()
	}

	logArgs := []any{
		"attempt_id", r.attempt.ID,
		"address", r.address,
		"status", status,
		"superseded", !current,
		"duration_ms", time.Since(start).Milliseconds(),
	}
	if status == StatusSuccess {
		o.logger.InfoContext(ctx, "payment attempt succeeded", append(logArgs, "hash", hash)...)
	} else {
		o.logger.ErrorContext(ctx, "payment attempt failed", append(logArgs, "cause", cause, "error", cerr)...)
	}

	if o.recorder != nil {
		outcome := Outcome{
			AttemptID:  r.attempt.ID,
			Address:    r.address,
			Recipient:  r.attempt.Recipient,
			Amount:     r.attempt.Amount,
			Status:     status,
			Cause:      cause,
			Hash:       hash,
			Superseded: !current,
			StartedAt:  r.attempt.StartedAt,
			FinishedAt: r.attempt.UpdatedAt,
		}
		if cerr != nil {
			outcome.Error = cerr.Error()
		}
		if err := o.recorder.RecordAttempt(context.WithoutCancel(ctx), outcome); err != nil {
			o.logger.WarnContext(ctx, "failed to record attempt outcome",
				"attempt_id", r.attempt.ID,
				"error", err,
			)
		}
	}

	if status == StatusFailed {
		return r.attempt, fmt.Errorf("%w: %s: %v", ErrTransactionFailed, cause, cerr)
	}
	return r.attempt, nil
}

// commit copies r's attempt into the live attempt if r is still the latest
// attempt. Callers hold emitMu.
func (o *Orchestrator) commit(r *run) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if r.gen != o.gen {
		return false
	}
	o.current = r.attempt
	return true
}

// publish emits the current state of r. Callers hold emitMu.
func (o *Orchestrator) publish(ctx context.Context, r *run, cause Cause) {
	if o.publisher == nil {
		return
	}
	event := &events.AttemptEvent{
		AttemptID: r.attempt.ID,
		Address:   r.address,
		Recipient: r.attempt.Recipient,
		Amount:    r.attempt.Amount,
		Status:    string(r.attempt.Status),
		Message:   r.attempt.Message,
		Hash:      r.attempt.Hash,
		Cause:     string(cause),
		Timestamp: r.attempt.UpdatedAt,
	}
	if err := o.publisher.PublishAttempt(ctx, event); err != nil {
		o.logger.WarnContext(ctx, "failed to publish attempt event",
			"attempt_id", r.attempt.ID,
			"status", r.attempt.Status,
			"error", err,
		)
	}
}
