package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/amount"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/grant"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/logging"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/wallet"
)

const defaultDescription = "Service payment"

// OrchestratorConfig names the two wallets every payment flows between.
type OrchestratorConfig struct {
	PayerWallet string
	PayeeWallet string
}

type InitiateRequest struct {
	Amount      decimal.Decimal
	Description string
}

// CompleteRequest carries the handle returned by a pending Initiate.
type CompleteRequest struct {
	QuoteID       string
	ContinueURI   string
	ContinueToken string
	InteractRef   string
}

// Orchestrator sequences wallet resolution, grants and the three resources
// into Initiate and Complete. It holds no per-payment state.
type Orchestrator struct {
	cfg      OrchestratorConfig
	wallets  Wallets
	incoming *IncomingPayments
	quotes   *Quotes
	outgoing *OutgoingPayments
	observer Observer
	tracer   trace.Tracer
	now      func() time.Time
	newID    func() string
}

func NewOrchestrator(cfg OrchestratorConfig, wallets Wallets, incoming *IncomingPayments, quotes *Quotes, outgoing *OutgoingPayments, observer Observer) *Orchestrator {
	if observer == nil {
		observer = LogObserver{}
	}
	return &Orchestrator{
		cfg:      cfg,
		wallets:  wallets,
		incoming: incoming,
		quotes:   quotes,
		outgoing: outgoing,
		observer: observer,
		tracer:   otel.Tracer("payment"),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Initiate drives a payment up to completion or to the point where the payer
// must authorize it. The returned Outcome is never nil; err is set exactly
// when the outcome is FAILED.
func (o *Orchestrator) Initiate(ctx context.Context, req InitiateRequest) (*Outcome, error) {
	description := req.Description
	if description == "" {
		description = defaultDescription
	}
	s := &Session{ID: o.newID(), Description: description}

	// An amount that fails validation is never rendered, not even for logs.
	invalid := amount.Validate(req.Amount)
	attrs := []attribute.KeyValue{attribute.String("session.id", s.ID)}
	if invalid == nil {
		s.AmountRequested = req.Amount
		attrs = append(attrs, attribute.String("payment.amount", req.Amount.String()))
	}

	ctx = logging.ContextWithLogger(ctx, logging.FromContext(ctx).With(zap.String("session_id", s.ID)))
	ctx, span := o.tracer.Start(ctx, "payment.initiate", trace.WithAttributes(attrs...))
	defer span.End()

	o.transition(ctx, s, StatusInitiated, "")

	if invalid != nil {
		return o.failInitiate(ctx, span, s, invalid)
	}

	var payee *wallet.Address
	if err := o.step(ctx, "payment.resolve_payee", func(ctx context.Context) (err error) {
		payee, err = o.wallets.Resolve(ctx, o.cfg.PayeeWallet)
		return err
	}); err != nil {
		return o.failInitiate(ctx, span, s, err)
	}

	var incoming *IncomingPayment
	if err := o.step(ctx, "payment.create_incoming_payment", func(ctx context.Context) (err error) {
		incoming, err = o.incoming.Create(ctx, payee, req.Amount, description)
		return err
	}); err != nil {
		return o.failInitiate(ctx, span, s, err)
	}
	s.IncomingPaymentID = incoming.ID

	var payer *wallet.Address
	if err := o.step(ctx, "payment.resolve_payer", func(ctx context.Context) (err error) {
		payer, err = o.wallets.Resolve(ctx, o.cfg.PayerWallet)
		return err
	}); err != nil {
		return o.failInitiate(ctx, span, s, err)
	}

	var quote *Quote
	if err := o.step(ctx, "payment.create_quote", func(ctx context.Context) (err error) {
		quote, err = o.quotes.Create(ctx, payer, incoming.ID)
		return err
	}); err != nil {
		return o.failInitiate(ctx, span, s, err)
	}
	s.QuoteID = quote.ID
	s.DebitAmount = &quote.DebitAmount
	s.ReceiveAmount = &quote.ReceiveAmount

	var auth *Authorization
	if err := o.step(ctx, "payment.request_authorization", func(ctx context.Context) (err error) {
		auth, err = o.outgoing.RequestAuthorization(ctx, payer, quote)
		return err
	}); err != nil {
		return o.failInitiate(ctx, span, s, err)
	}

	if auth.RequiresInteraction {
		s.Pending = &Pending{RedirectURL: auth.RedirectURL, Continuation: *auth.Continuation}
		key := ContinuationKey(auth.Continuation.URI, auth.Continuation.Token)
		o.transition(ctx, s, StatusAwaitingAuthorization, key)
		return initiateOutcome(s), nil
	}

	var created *OutgoingPayment
	if err := o.step(ctx, "payment.create_outgoing_payment", func(ctx context.Context) (err error) {
		created, err = o.outgoing.CreateWithGrant(ctx, auth.Grant, payer, quote.ID)
		return err
	}); err != nil {
		return o.failInitiate(ctx, span, s, err)
	}
	s.PaymentID = created.ID
	s.PaymentState = created.State
	o.transition(ctx, s, StatusCompleted, "")
	return initiateOutcome(s), nil
}

// Complete resumes a payment the payer has authorized, using only the handle
// returned by Initiate. The payer wallet is resolved again.
func (o *Orchestrator) Complete(ctx context.Context, req CompleteRequest) (*Outcome, error) {
	s := &Session{ID: o.newID(), QuoteID: req.QuoteID, Status: StatusAwaitingAuthorization}

	ctx = logging.ContextWithLogger(ctx, logging.FromContext(ctx).With(zap.String("session_id", s.ID)))
	ctx, span := o.tracer.Start(ctx, "payment.complete", trace.WithAttributes(
		attribute.String("session.id", s.ID),
		attribute.String("payment.quote_id", req.QuoteID),
	))
	defer span.End()

	if req.QuoteID == "" || req.ContinueURI == "" || req.ContinueToken == "" {
		err := fmt.Errorf("%w: quoteId, continueUri and continueToken are required", ErrInvalidRequest)
		return o.failComplete(ctx, span, s, "", err)
	}
	key := ContinuationKey(req.ContinueURI, req.ContinueToken)

	var payer *wallet.Address
	if err := o.step(ctx, "payment.resolve_payer", func(ctx context.Context) (err error) {
		payer, err = o.wallets.Resolve(ctx, o.cfg.PayerWallet)
		return err
	}); err != nil {
		return o.failComplete(ctx, span, s, key, err)
	}

	var created *OutgoingPayment
	if err := o.step(ctx, "payment.finalize_outgoing_payment", func(ctx context.Context) (err error) {
		c := grant.Continuation{URI: req.ContinueURI, Token: req.ContinueToken}
		created, err = o.outgoing.Finalize(ctx, c, req.InteractRef, payer, req.QuoteID)
		return err
	}); err != nil {
		return o.failComplete(ctx, span, s, key, err)
	}

	s.PaymentID = created.ID
	s.PaymentState = created.State
	o.transition(ctx, s, StatusCompleted, key)
	return completeOutcome(s), nil
}

func (o *Orchestrator) step(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := o.tracer.Start(ctx, name)
	defer span.End()
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (o *Orchestrator) transition(ctx context.Context, s *Session, to Status, key string) {
	from := s.Status
	if !from.canTransitionTo(to) {
		logging.FromContext(ctx).Error("invalid_session_transition",
			zap.String("from", string(from)), zap.String("to", string(to)))
		return
	}
	s.Status = to
	o.observer.ObserveTransition(ctx, Transition{
		From:            from,
		To:              to,
		Session:         *s,
		ContinuationKey: key,
		At:              o.now().UTC(),
	})
}

func (o *Orchestrator) failInitiate(ctx context.Context, span trace.Span, s *Session, err error) (*Outcome, error) {
	o.fail(ctx, span, s, "", err)
	return failedOutcome(s.Reason, o.now().UTC().Format(time.RFC3339Nano)), err
}

func (o *Orchestrator) failComplete(ctx context.Context, span trace.Span, s *Session, key string, err error) (*Outcome, error) {
	o.fail(ctx, span, s, key, err)
	return failedOutcome(s.Reason, ""), err
}

func (o *Orchestrator) fail(ctx context.Context, span trace.Span, s *Session, key string, err error) {
	s.Reason = err.Error()
	span.RecordError(err)
	span.SetStatus(codes.Error, s.Reason)
	o.transition(ctx, s, StatusFailed, key)
}
