package payment

import (
	"encoding/json"
	"fmt"

	restate "github.com/restatedev/sdk-go"
	"github.com/shopspring/decimal"

	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/amount"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/grant"
)

const (
	ServiceName = "payments.sv1.PaymentService"
	ObjectName  = "payments.sv1.AuthorizationObject"

	stateOutcome = "outcome"
)

type InitiateInput struct {
	Amount      json.Number `json:"amount"`
	Description string      `json:"description,omitempty"`
}

type CompleteInput struct {
	QuoteID       string `json:"quoteId"`
	ContinueURI   string `json:"continueUri"`
	ContinueToken string `json:"continueToken"`
	InteractRef   string `json:"interactRef,omitempty"`
}

// Handlers exposes the orchestrator as Restate handlers.
type Handlers struct {
	orch *Orchestrator
}

func NewHandlers(orch *Orchestrator) *Handlers {
	return &Handlers{orch: orch}
}

// Service is PaymentService with its Initiate handler.
func (h *Handlers) Service() restate.ServiceDefinition {
	return restate.NewService(ServiceName).
		Handler("Initiate", restate.NewServiceHandler(h.Initiate))
}

// Object is AuthorizationObject, keyed by continuation key.
func (h *Handlers) Object() restate.ServiceDefinition {
	return restate.NewObject(ObjectName).
		Handler("Complete", restate.NewObjectHandler(h.Complete)).
		Handler("GetOutcome", restate.NewObjectSharedHandler(h.GetOutcome))
}

// Initiate journals the whole initiate chain as one side effect so a replay
// never repeats the network calls.
func (h *Handlers) Initiate(ctx restate.Context, in InitiateInput) (Outcome, error) {
	amt, err := decimal.NewFromString(string(in.Amount))
	if err != nil {
		return Outcome{}, restate.TerminalError(fmt.Errorf("%w: %v", amount.ErrInvalidAmount, err), 400)
	}

	return restate.Run(ctx, func(rc restate.RunContext) (Outcome, error) {
		out, _ := h.orch.Initiate(rc, InitiateRequest{Amount: amt, Description: in.Description})
		return *out, nil
	})
}

// Complete finalizes the payment for the continuation this object is keyed
// by. Once a completion succeeded, later calls fail without reaching the
// authorization server.
func (h *Handlers) Complete(ctx restate.ObjectContext, in CompleteInput) (Outcome, error) {
	key := restate.Key(ctx)
	if key != ContinuationKey(in.ContinueURI, in.ContinueToken) {
		return Outcome{}, restate.TerminalError(fmt.Errorf("%w: continuation does not match key %s", ErrInvalidRequest, key), 400)
	}

	prev, err := restate.Get[Outcome](ctx, stateOutcome)
	if err != nil {
		return Outcome{}, err
	}
	if prev.Success {
		reason := fmt.Errorf("%w: continuation already used for payment %s", grant.ErrNotFinalized, prev.PaymentID)
		return *failedOutcome(reason.Error(), ""), nil
	}

	out, err := restate.Run(ctx, func(rc restate.RunContext) (Outcome, error) {
		out, _ := h.orch.Complete(rc, CompleteRequest{
			QuoteID:       in.QuoteID,
			ContinueURI:   in.ContinueURI,
			ContinueToken: in.ContinueToken,
			InteractRef:   in.InteractRef,
		})
		return *out, nil
	})
	if err != nil {
		return Outcome{}, err
	}
	if out.Success {
		restate.Set(ctx, stateOutcome, out)
	}
	return out, nil
}

// GetOutcome returns the recorded successful completion, if any.
func (h *Handlers) GetOutcome(ctx restate.ObjectSharedContext, _ restate.Void) (Outcome, error) {
	out, err := restate.Get[Outcome](ctx, stateOutcome)
	if err != nil {
		return Outcome{}, err
	}
	if !out.Success {
		return Outcome{}, restate.TerminalError(fmt.Errorf("no completion recorded for %s", restate.Key(ctx)), 404)
	}
	return out, nil
}
