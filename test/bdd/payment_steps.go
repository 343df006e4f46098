package bdd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/cucumber/godog"

	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/openpayments/openpaymentstest"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/payment"
)

func (w *PaymentWorld) registerPaymentSteps(sc *godog.ScenarioContext) {
	sc.Step(`^an Open Payments test network$`, w.startNetwork)
	sc.Step(`^the payer wallet uses "([A-Z]{3})" with scale (\d+)$`, w.payerAsset)
	sc.Step(`^the payee wallet uses "([A-Z]{3})" with scale (\d+)$`, w.payeeAsset)
	sc.Step(`^the payer must authorize outgoing payments interactively$`, w.requireInteraction)
	sc.Step(`^the payer declines the authorization$`, w.declineInteraction)
	sc.Step(`^the payee wallet is unreachable$`, w.payeeUnreachable)

	sc.Step(`^I request a payment of (-?[\d.]+)(?: for "([^"]*)")?$`, w.requestPayment)
	sc.Step(`^I complete the payment with the returned handle$`, w.completePayment)

	sc.Step(`^the payment status is "([^"]+)"$`, w.assertStatus)
	sc.Step(`^the debit amount is "([^"]+)"$`, w.assertDebit)
	sc.Step(`^the receive amount is "([^"]+)"$`, w.assertReceive)
	sc.Step(`^an authorization URL is returned$`, w.assertAuthorizationURL)
	sc.Step(`^(\d+) outgoing payments? (?:was|were) created$`, w.assertOutgoingCount)
	sc.Step(`^the error mentions "([^"]+)"$`, w.assertErrorMentions)
	sc.Step(`^the failure carries a timestamp$`, w.assertTimestamp)
	sc.Step(`^no grant was requested$`, w.assertNoGrant)
	sc.Step(`^no wallet was looked up$`, w.assertNoWalletLookup)
}

func (w *PaymentWorld) payerAsset(code string, scale int) error {
	w.network.PayerAsset = openpaymentstest.Asset{Code: code, Scale: scale}
	return nil
}

func (w *PaymentWorld) payeeAsset(code string, scale int) error {
	w.network.PayeeAsset = openpaymentstest.Asset{Code: code, Scale: scale}
	return nil
}

func (w *PaymentWorld) requireInteraction() error {
	w.network.RequireInteraction = true
	return nil
}

func (w *PaymentWorld) declineInteraction() error {
	w.network.DeclineInteraction = true
	return nil
}

func (w *PaymentWorld) payeeUnreachable() error {
	w.network.FailWallet = "/bob"
	return nil
}

func (w *PaymentWorld) requestPayment(amount, description string) error {
	body := map[string]any{"amount": json.Number(amount)}
	if description != "" {
		body["description"] = description
	}
	if err := w.post("/api/payments", body); err != nil {
		return err
	}
	if w.outcome.Status == payment.StatusAwaitingAuthorization {
		w.lastPaused = w.outcome
	}
	return nil
}

func (w *PaymentWorld) completePayment() error {
	if w.lastPaused.ContinueURI == "" {
		return fmt.Errorf("no paused payment to complete")
	}
	return w.post("/api/payments/complete", map[string]string{
		"quoteId":       w.lastPaused.QuoteID,
		"continueUri":   w.lastPaused.ContinueURI,
		"continueToken": w.lastPaused.ContinueToken,
	})
}

func (w *PaymentWorld) assertStatus(status string) error {
	if w.httpStatus != http.StatusOK {
		return fmt.Errorf("expected HTTP 200, got %d", w.httpStatus)
	}
	if string(w.outcome.Status) != status {
		return fmt.Errorf("expected status %s, got %s (error=%q)", status, w.outcome.Status, w.outcome.Error)
	}
	if wantSuccess := status != string(payment.StatusFailed); w.outcome.Success != wantSuccess {
		return fmt.Errorf("expected success=%v for status %s", wantSuccess, status)
	}
	return nil
}

func (w *PaymentWorld) assertDebit(formatted string) error {
	if w.outcome.DebitAmount == nil || w.outcome.DebitAmount.Formatted != formatted {
		return fmt.Errorf("expected debit %q, got %+v", formatted, w.outcome.DebitAmount)
	}
	return nil
}

func (w *PaymentWorld) assertReceive(formatted string) error {
	if w.outcome.ReceiveAmount == nil || w.outcome.ReceiveAmount.Formatted != formatted {
		return fmt.Errorf("expected receive %q, got %+v", formatted, w.outcome.ReceiveAmount)
	}
	return nil
}

func (w *PaymentWorld) assertAuthorizationURL() error {
	if !w.outcome.RequiresInteraction {
		return fmt.Errorf("expected requiresInteraction")
	}
	if !strings.HasPrefix(w.outcome.AuthorizationURL, w.network.URL+"/interact/") {
		return fmt.Errorf("unexpected authorization URL %q", w.outcome.AuthorizationURL)
	}
	if w.outcome.ContinueToken == "" || w.outcome.ContinueURI == "" || w.outcome.QuoteID == "" {
		return fmt.Errorf("incomplete resume handle: %+v", w.outcome)
	}
	return nil
}

func (w *PaymentWorld) assertOutgoingCount(n int) error {
	if got := len(w.network.OutgoingPayments()); got != n {
		return fmt.Errorf("expected %d outgoing payments, got %d", n, got)
	}
	return nil
}

func (w *PaymentWorld) assertErrorMentions(text string) error {
	if !strings.Contains(w.outcome.Error, text) {
		return fmt.Errorf("expected error to mention %q, got %q", text, w.outcome.Error)
	}
	return nil
}

func (w *PaymentWorld) assertTimestamp() error {
	if w.outcome.Timestamp == "" {
		return fmt.Errorf("expected a timestamp on the failed outcome")
	}
	return nil
}

func (w *PaymentWorld) assertNoGrant() error {
	if n := w.network.Calls(openpaymentstest.RouteGrant); n != 0 {
		return fmt.Errorf("expected no grant requests, got %d", n)
	}
	return nil
}

func (w *PaymentWorld) assertNoWalletLookup() error {
	if n := w.network.Calls(openpaymentstest.RouteWallet); n != 0 {
		return fmt.Errorf("expected no wallet lookups, got %d", n)
	}
	return nil
}
