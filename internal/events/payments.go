package events

import (
	"context"

	"go.uber.org/zap"

	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/logging"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/openpayments"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/payment"
)

const TopicPayments = "payments.v1"

const (
	EventPaymentAwaitingAuthorization = "PaymentAwaitingAuthorization"
	EventPaymentCompleted             = "PaymentCompleted"
	EventPaymentFailed                = "PaymentFailed"
)

// PaymentEvent is the data carried by every payments.v1 envelope.
type PaymentEvent struct {
	SessionID         string               `json:"sessionId"`
	ContinuationKey   string               `json:"continuationKey,omitempty"`
	Status            payment.Status       `json:"status"`
	IncomingPaymentID string               `json:"incomingPaymentId,omitempty"`
	QuoteID           string               `json:"quoteId,omitempty"`
	PaymentID         string               `json:"paymentId,omitempty"`
	PaymentState      string               `json:"paymentState,omitempty"`
	Description       string               `json:"description,omitempty"`
	DebitAmount       *openpayments.Amount `json:"debitAmount,omitempty"`
	ReceiveAmount     *openpayments.Amount `json:"receiveAmount,omitempty"`
	AuthorizationURL  string               `json:"authorizationUrl,omitempty"`
	Reason            string               `json:"reason,omitempty"`
}

type publisher interface {
	Publish(ctx context.Context, topic, key, eventType string, data any) error
}

// SessionPublisher turns session transitions into payments.v1 events.
// Publishing failures are logged and never fail the payment.
type SessionPublisher struct {
	p publisher
}

func NewSessionPublisher(p *Producer) *SessionPublisher {
	return &SessionPublisher{p: p}
}

func (s *SessionPublisher) ObserveTransition(ctx context.Context, t payment.Transition) {
	var eventType string
	switch t.To {
	case payment.StatusAwaitingAuthorization:
		eventType = EventPaymentAwaitingAuthorization
	case payment.StatusCompleted:
		eventType = EventPaymentCompleted
	case payment.StatusFailed:
		eventType = EventPaymentFailed
	default:
		return
	}

	evt := PaymentEvent{
		SessionID:         t.Session.ID,
		ContinuationKey:   t.ContinuationKey,
		Status:            t.To,
		IncomingPaymentID: t.Session.IncomingPaymentID,
		QuoteID:           t.Session.QuoteID,
		PaymentID:         t.Session.PaymentID,
		PaymentState:      t.Session.PaymentState,
		Description:       t.Session.Description,
		DebitAmount:       t.Session.DebitAmount,
		ReceiveAmount:     t.Session.ReceiveAmount,
		Reason:            t.Session.Reason,
	}
	if t.Session.Pending != nil {
		evt.AuthorizationURL = t.Session.Pending.RedirectURL
	}

	key := t.Session.QuoteID
	if key == "" {
		key = t.Key()
	}
	if err := s.p.Publish(ctx, TopicPayments, key, eventType, evt); err != nil {
		logging.FromContext(ctx).Warn("payment_event_publish_failed",
			zap.String("event_type", eventType),
			zap.String("session_id", t.Session.ID),
			zap.Error(err),
		)
	}
}
