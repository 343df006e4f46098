package payment

import (
	"encoding/json"

	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/amount"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/openpayments"
)

const (
	messageCompleted = "Payment completed successfully"
	messageAwaiting  = "Payer must authorize the payment in their wallet"
)

// AmountView is a network amount rendered for callers.
type AmountView struct {
	Value      json.Number `json:"value"`
	AssetCode  string      `json:"assetCode"`
	AssetScale int         `json:"assetScale"`
	Formatted  string      `json:"formatted"`
}

// Outcome is the only projection of a session returned to callers.
type Outcome struct {
	Success             bool        `json:"success"`
	Status              Status      `json:"status"`
	PaymentID           string      `json:"paymentId,omitempty"`
	IncomingPaymentID   string      `json:"incomingPaymentId,omitempty"`
	QuoteID             string      `json:"quoteId,omitempty"`
	Amount              json.Number `json:"amount,omitempty"`
	RequiresInteraction bool        `json:"requiresInteraction,omitempty"`
	AuthorizationURL    string      `json:"authorizationUrl,omitempty"`
	ContinueToken       string      `json:"continueToken,omitempty"`
	ContinueURI         string      `json:"continueUri,omitempty"`
	DebitAmount         *AmountView `json:"debitAmount,omitempty"`
	ReceiveAmount       *AmountView `json:"receiveAmount,omitempty"`
	State               string      `json:"state,omitempty"`
	Message             string      `json:"message,omitempty"`
	Error               string      `json:"error,omitempty"`
	Timestamp           string      `json:"timestamp,omitempty"`
}

func viewOf(a *openpayments.Amount) *AmountView {
	if a == nil {
		return nil
	}
	d, err := amount.ToDecimal(a.Value, a.AssetScale)
	if err != nil {
		return nil
	}
	formatted, _ := amount.Format(a.Value, a.AssetScale, a.AssetCode)
	return &AmountView{
		Value:      json.Number(d.String()),
		AssetCode:  a.AssetCode,
		AssetScale: a.AssetScale,
		Formatted:  formatted,
	}
}

func initiateOutcome(s *Session) *Outcome {
	out := &Outcome{
		Success:           true,
		Status:            s.Status,
		IncomingPaymentID: s.IncomingPaymentID,
		QuoteID:           s.QuoteID,
		Amount:            json.Number(s.AmountRequested.String()),
		DebitAmount:       viewOf(s.DebitAmount),
		ReceiveAmount:     viewOf(s.ReceiveAmount),
	}
	if s.Pending != nil {
		out.RequiresInteraction = true
		out.AuthorizationURL = s.Pending.RedirectURL
		out.ContinueToken = s.Pending.Continuation.Token
		out.ContinueURI = s.Pending.Continuation.URI
		out.Message = messageAwaiting
		return out
	}
	out.PaymentID = s.PaymentID
	out.State = s.PaymentState
	out.Message = messageCompleted
	return out
}

func completeOutcome(s *Session) *Outcome {
	return &Outcome{
		Success:   true,
		Status:    StatusCompleted,
		PaymentID: s.PaymentID,
		State:     s.PaymentState,
		Message:   messageCompleted,
	}
}

func failedOutcome(reason, timestamp string) *Outcome {
	return &Outcome{
		Success:   false,
		Status:    StatusFailed,
		Error:     reason,
		Timestamp: timestamp,
	}
}
