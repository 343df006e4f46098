package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/grant"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/logging"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/openpayments"
)

type Status string

const (
	StatusInitiated             Status = "INITIATED"
	StatusAwaitingAuthorization Status = "PENDING_AUTHORIZATION"
	StatusCompleted             Status = "COMPLETED"
	StatusFailed                Status = "FAILED"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) canTransitionTo(next Status) bool {
	switch s {
	case "":
		return next == StatusInitiated
	case StatusInitiated:
		return next == StatusAwaitingAuthorization || next == StatusCompleted || next == StatusFailed
	case StatusAwaitingAuthorization:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// Pending is what the caller must keep to resume an authorization.
type Pending struct {
	RedirectURL  string
	Continuation grant.Continuation
}

// Session tracks one orchestration run. It lives only for the duration of a
// call; nothing about it is kept in memory between Initiate and Complete.
type Session struct {
	ID                string
	AmountRequested   decimal.Decimal
	Description       string
	IncomingPaymentID string
	QuoteID           string
	PaymentID         string
	PaymentState      string
	DebitAmount       *openpayments.Amount
	ReceiveAmount     *openpayments.Amount
	Status            Status
	Pending           *Pending
	Reason            string
}

// Transition is emitted each time a session changes status.
type Transition struct {
	From            Status
	To              Status
	Session         Session
	ContinuationKey string
	At              time.Time
}

// Key identifies the session across Initiate and Complete: the continuation
// key once one exists, the session id otherwise.
func (t Transition) Key() string {
	if t.ContinuationKey != "" {
		return t.ContinuationKey
	}
	return t.Session.ID
}

type Observer interface {
	ObserveTransition(ctx context.Context, t Transition)
}

// Observers fans a transition out to every observer in order.
type Observers []Observer

func (o Observers) ObserveTransition(ctx context.Context, t Transition) {
	for _, obs := range o {
		if obs != nil {
			obs.ObserveTransition(ctx, t)
		}
	}
}

// ContinuationKey derives a stable, non-secret key from a continuation.
func ContinuationKey(uri, token string) string {
	sum := sha256.Sum256([]byte(uri + "\n" + token))
	return hex.EncodeToString(sum[:])
}

// LogObserver writes one structured event per transition.
type LogObserver struct{}

func (LogObserver) ObserveTransition(ctx context.Context, t Transition) {
	fields := []zap.Field{
		zap.String("session_id", t.Session.ID),
		zap.String("from", string(t.From)),
		zap.String("to", string(t.To)),
	}
	if t.Session.IncomingPaymentID != "" {
		fields = append(fields, zap.String("incoming_payment_id", t.Session.IncomingPaymentID))
	}
	if t.Session.QuoteID != "" {
		fields = append(fields, zap.String("quote_id", t.Session.QuoteID))
	}
	if t.Session.PaymentID != "" {
		fields = append(fields, zap.String("payment_id", t.Session.PaymentID), zap.String("payment_state", t.Session.PaymentState))
	}
	if t.ContinuationKey != "" {
		fields = append(fields, zap.String("continuation_key", t.ContinuationKey))
	}

	logger := logging.FromContext(ctx)
	switch t.To {
	case StatusInitiated:
		logger.Info("payment_initiated", append(fields, zap.String("amount", t.Session.AmountRequested.String()))...)
	case StatusAwaitingAuthorization:
		logger.Info("payment_awaiting_authorization", fields...)
	case StatusCompleted:
		logger.Info("payment_completed", fields...)
	case StatusFailed:
		logger.Warn("payment_failed", append(fields, zap.String("reason", t.Session.Reason))...)
	}
}
