package bdd

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/cucumber/godog"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/api"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/grant"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/openpayments"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/openpayments/openpaymentstest"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/payment"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/telemetry"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/wallet"
)

// PaymentWorld holds one scenario: a fake Open Payments network and the
// payment HTTP API wired to it.
type PaymentWorld struct {
	t *testing.T

	network *openpaymentstest.Server
	api     *httptest.Server

	httpStatus int
	outcome    payment.Outcome
	lastPaused payment.Outcome
}

func NewPaymentWorld(t *testing.T) *PaymentWorld {
	return &PaymentWorld{t: t}
}

func (w *PaymentWorld) Register(sc *godog.ScenarioContext) {
	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		w.resetScenarioState()
		return ctx, nil
	})
	sc.After(func(ctx context.Context, _ *godog.Scenario, _ error) (context.Context, error) {
		if w.api != nil {
			w.api.Close()
		}
		if w.network != nil {
			w.network.Close()
		}
		return ctx, nil
	})

	w.registerPaymentSteps(sc)
}

func (w *PaymentWorld) resetScenarioState() {
	w.network = nil
	w.api = nil
	w.httpStatus = 0
	w.outcome = payment.Outcome{}
	w.lastPaused = payment.Outcome{}
}

// startNetwork brings up the fake network and an API in front of an
// orchestrator that signs with a fresh key.
func (w *PaymentWorld) startNetwork() error {
	w.network = openpaymentstest.NewServer()

	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generate client key: %w", err)
	}
	id := &openpayments.Identity{WalletAddress: w.network.PayerWallet(), KeyID: "bdd-key", PrivateKey: key}
	w.network.VerifyKey = id.PublicKey()

	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	client := openpayments.NewClient(id, openpayments.WithHTTPClient(&http.Client{
		Transport: metrics.RoundTripper(nil),
	}))
	grants := grant.NewNegotiator(client)
	orch := payment.NewOrchestrator(
		payment.OrchestratorConfig{PayerWallet: w.network.PayerWallet(), PayeeWallet: w.network.PayeeWallet()},
		wallet.NewResolver(client),
		payment.NewIncomingPayments(grants, client, 0),
		payment.NewQuotes(grants, client),
		payment.NewOutgoingPayments(grants, client),
		payment.Observers{payment.LogObserver{}, metrics},
	)

	w.api = httptest.NewServer(api.NewRouter(api.Deps{Service: "bdd", Payments: orch}))
	return nil
}

func (w *PaymentWorld) post(path string, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := http.Post(w.api.URL+path, "application/json", strings.NewReader(string(b)))
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	w.httpStatus = resp.StatusCode
	w.outcome = payment.Outcome{}
	if err := json.NewDecoder(resp.Body).Decode(&w.outcome); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	w.debugf("POST %s -> %d %+v", path, resp.StatusCode, w.outcome)
	return nil
}

func (w *PaymentWorld) debugf(format string, args ...any) {
	if os.Getenv("BDD_DEBUG") != "" {
		w.t.Logf(format, args...)
	}
}
