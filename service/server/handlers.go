package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/brojonat/lumenpay/service/payment"
	"github.com/brojonat/lumenpay/service/session"
)

const maxRequestBodySize = 1 << 10 // a recipient and an amount

// SessionService is the session controller as seen by the HTTP layer.
type SessionService interface {
	Connect(ctx context.Context) error
	RefreshBalance(ctx context.Context) error
	Snapshot() session.Snapshot
}

// PaymentService is the payment orchestrator as seen by the HTTP layer.
type PaymentService interface {
	Start(ctx context.Context, req payment.SendRequest) (payment.Attempt, error)
	Current() payment.Attempt
}

// SessionResponse is returned by every session endpoint.
type SessionResponse struct {
	Session session.Snapshot `json:"session"`
	Error   string           `json:"error,omitempty"`
}

// AttemptResponse is returned by every payment endpoint.
type AttemptResponse struct {
	Attempt payment.Attempt `json:"attempt"`
	Error   string          `json:"error,omitempty"`
}

// handleConnect returns a handler that asks the wallet for the user's address.
// POST /api/v1/session/connect
func handleConnect(sess SessionService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := sess.Connect(r.Context())
		resp := SessionResponse{Session: sess.Snapshot()}

		switch {
		case err == nil:
			writeJSON(w, resp, http.StatusOK)
		case errors.Is(err, session.ErrWalletUnavailable):
			resp.Error = session.Message(err)
			writeJSON(w, resp, http.StatusServiceUnavailable)
		case errors.Is(err, session.ErrAccessDenied):
			resp.Error = session.Message(err)
			writeJSON(w, resp, http.StatusForbidden)
		default:
			logger.ErrorContext(r.Context(), "connect failed", "error", err)
			resp.Error = session.Message(err)
			writeJSON(w, resp, http.StatusInternalServerError)
		}
	})
}

// handleGetSession returns a handler that reports the session state.
// GET /api/v1/session
func handleGetSession(sess SessionService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, SessionResponse{Session: sess.Snapshot()}, http.StatusOK)
	})
}

// handleRefreshBalance returns a handler that reloads the balance. Ledger
// failures are part of the session state, so only a missing connection is an
// HTTP error.
// POST /api/v1/session/refresh
func handleRefreshBalance(sess SessionService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := sess.RefreshBalance(r.Context())
		resp := SessionResponse{Session: sess.Snapshot()}
		if errors.Is(err, session.ErrNotConnected) {
			resp.Error = session.Message(err)
			writeJSON(w, resp, http.StatusConflict)
			return
		}
		if err != nil {
			logger.DebugContext(r.Context(), "balance refresh finished with error", "error", err)
		}
		writeJSON(w, resp, http.StatusOK)
	})
}

// handleSendPayment returns a handler that starts a payment attempt. The
// attempt continues after the response; follow it with the current attempt
// endpoint or the attempt stream.
// POST /api/v1/payments
func handleSendPayment(payments PaymentService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req payment.SendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Debug("failed to decode payment request", "error", err)
			if strings.Contains(err.Error(), "http: request body too large") {
				writeError(w, "request body too large", http.StatusBadRequest)
				return
			}
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}

		attempt, err := payments.Start(r.Context(), req)
		resp := AttemptResponse{Attempt: attempt}

		var verr *payment.ValidationError
		switch {
		case err == nil:
			writeJSON(w, resp, http.StatusAccepted)
		case errors.As(err, &verr):
			resp.Error = verr.Reason
			writeJSON(w, resp, http.StatusUnprocessableEntity)
		case errors.Is(err, payment.ErrNotConnected):
			resp.Error = session.Message(session.ErrNotConnected)
			writeJSON(w, resp, http.StatusConflict)
		default:
			logger.ErrorContext(r.Context(), "failed to start payment", "error", err)
			resp.Error = payment.StatusFailed.Message()
			writeJSON(w, resp, http.StatusInternalServerError)
		}
	})
}

// handleCurrentAttempt returns a handler that reports the live attempt.
// GET /api/v1/payments/current
func handleCurrentAttempt(payments PaymentService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, AttemptResponse{Attempt: payments.Current()}, http.StatusOK)
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
