package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/payment"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/storage/postgres"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/wallet"
)

type mockPayments struct{ mock.Mock }

func (m *mockPayments) Initiate(ctx context.Context, req payment.InitiateRequest) (*payment.Outcome, error) {
	args := m.Called(ctx, req)
	out, _ := args.Get(0).(*payment.Outcome)
	return out, args.Error(1)
}

func (m *mockPayments) Complete(ctx context.Context, req payment.CompleteRequest) (*payment.Outcome, error) {
	args := m.Called(ctx, req)
	out, _ := args.Get(0).(*payment.Outcome)
	return out, args.Error(1)
}

type denyAll struct{}

func (denyAll) Check(context.Context, string, string, string) (bool, error) { return false, nil }

func serve(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeOutcome(t *testing.T, rec *httptest.ResponseRecorder) payment.Outcome {
	t.Helper()
	var out payment.Outcome
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestInitiateAcceptsNumberOrString(t *testing.T) {
	for _, body := range []string{`{"amount":12.5,"description":"Tip"}`, `{"amount":"12.5","description":"Tip"}`} {
		p := &mockPayments{}
		p.On("Initiate", mock.Anything, mock.MatchedBy(func(req payment.InitiateRequest) bool {
			return req.Amount.Equal(decimal.RequireFromString("12.5")) && req.Description == "Tip"
		})).Return(&payment.Outcome{Success: true, Status: payment.StatusCompleted, PaymentID: "op1"}, nil)

		rec := serve(t, NewRouter(Deps{Service: "svc", Payments: p}), http.MethodPost, "/api/payments", body)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "op1", decodeOutcome(t, rec).PaymentID)
		p.AssertExpectations(t)
	}
}

func TestInitiateRejectsBadInput(t *testing.T) {
	p := &mockPayments{}
	h := NewRouter(Deps{Payments: p})

	assert.Equal(t, http.StatusBadRequest, serve(t, h, http.MethodPost, "/api/payments", `{"amount":`).Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, h, http.MethodPost, "/api/payments", `{"description":"x"}`).Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, h, http.MethodPost, "/api/payments", `{"amount":"ten"}`).Code)
	p.AssertNotCalled(t, "Initiate", mock.Anything, mock.Anything)
}

func TestInitiateRejectsOversizedAmount(t *testing.T) {
	p := &mockPayments{}
	h := NewRouter(Deps{Payments: p})

	start := time.Now()
	rec := serve(t, h, http.MethodPost, "/api/payments", `{"amount":1e50000000}`)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid amount")

	rec = serve(t, h, http.MethodPost, "/api/payments", `{"amount":"1e-300"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	p.AssertNotCalled(t, "Initiate", mock.Anything, mock.Anything)
}

func TestWrongMethodIs405(t *testing.T) {
	h := NewRouter(Deps{Payments: &mockPayments{}})
	assert.Equal(t, http.StatusMethodNotAllowed, serve(t, h, http.MethodGet, "/api/payments", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(t, h, http.MethodPut, "/api/payments/complete", "").Code)
}

func TestFailedOutcomeIsStill200(t *testing.T) {
	p := &mockPayments{}
	p.On("Initiate", mock.Anything, mock.Anything).
		Return(&payment.Outcome{Status: payment.StatusFailed, Error: "invalid amount", Timestamp: "2026-01-01T00:00:00Z"}, errors.New("invalid amount"))

	rec := serve(t, NewRouter(Deps{Payments: p}), http.MethodPost, "/api/payments", `{"amount":-5}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	out := decodeOutcome(t, rec)
	assert.False(t, out.Success)
	assert.Equal(t, payment.StatusFailed, out.Status)
	assert.NotEmpty(t, out.Timestamp)
}

func TestMissingOutcomeIs502(t *testing.T) {
	p := &mockPayments{}
	p.On("Complete", mock.Anything, mock.Anything).Return(nil, errors.New("call restate ingress: connection refused"))

	rec := serve(t, NewRouter(Deps{Payments: p}), http.MethodPost, "/api/payments/complete", `{"quoteId":"q","continueUri":"u","continueToken":"t"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, decodeOutcome(t, rec).Error, "connection refused")
}

func TestCompletePassesHandleThrough(t *testing.T) {
	p := &mockPayments{}
	want := payment.CompleteRequest{QuoteID: "q", ContinueURI: "https://auth.example/continue/1", ContinueToken: "t", InteractRef: "ref"}
	p.On("Complete", mock.Anything, want).Return(&payment.Outcome{Success: true, Status: payment.StatusCompleted}, nil)

	rec := serve(t, NewRouter(Deps{Payments: p}), http.MethodPost, "/api/payments/complete",
		`{"quoteId":"q","continueUri":"https://auth.example/continue/1","continueToken":"t","interactRef":"ref"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	p.AssertExpectations(t)
}

func TestAuthzGuardsPayments(t *testing.T) {
	p := &mockPayments{}
	h := NewRouter(Deps{Service: "svc", Payments: p, Authz: denyAll{}})

	assert.Equal(t, http.StatusForbidden, serve(t, h, http.MethodPost, "/api/payments", `{"amount":1}`).Code)
	assert.Equal(t, http.StatusForbidden, serve(t, h, http.MethodPost, "/api/payments/complete", `{}`).Code)
	assert.Equal(t, http.StatusOK, serve(t, h, http.MethodGet, "/healthz", "").Code)
}

type staticResolver map[string]*wallet.Address

func (s staticResolver) Resolve(_ context.Context, id string) (*wallet.Address, error) {
	if a, ok := s[id]; ok {
		return a, nil
	}
	return nil, wallet.ErrResolution
}

func TestWalletsListsConfiguredEntries(t *testing.T) {
	h := NewRouter(Deps{
		Wallets: []WalletEntry{
			{ID: "payer", Name: "Payer", WalletURL: "https://wallet.example/alice"},
			{ID: "payee", Name: "Payee", WalletURL: "https://wallet.example/bob"},
		},
		Resolver: staticResolver{
			"https://wallet.example/alice": {ID: "https://wallet.example/alice", PublicName: "Alice", AssetCode: "USD", AssetScale: 2},
		},
	})

	rec := serve(t, h, http.MethodGet, "/api/wallets", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Success bool `json:"success"`
		Wallets []struct {
			ID         string `json:"id"`
			Name       string `json:"name"`
			AssetCode  string `json:"assetCode"`
			AssetScale *int   `json:"assetScale"`
		} `json:"wallets"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.True(t, body.Success)
	require.Len(t, body.Wallets, 2)
	assert.Equal(t, "Alice", body.Wallets[0].Name)
	assert.Equal(t, "USD", body.Wallets[0].AssetCode)
	assert.Equal(t, "Payee", body.Wallets[1].Name)
	assert.Nil(t, body.Wallets[1].AssetScale)
}

type mapSessions map[string]*postgres.SessionRecord

func (m mapSessions) Get(_ context.Context, key string) (*postgres.SessionRecord, error) {
	if rec, ok := m[key]; ok {
		return rec, nil
	}
	return nil, postgres.ErrSessionNotFound
}

func TestSessionLookup(t *testing.T) {
	h := NewRouter(Deps{Sessions: mapSessions{"ck": {Key: "ck", Status: payment.StatusCompleted}}})

	assert.Equal(t, http.StatusOK, serve(t, h, http.MethodGet, "/api/payments/sessions/ck", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(t, h, http.MethodGet, "/api/payments/sessions/nope", "").Code)
}

func TestInteractionCallback(t *testing.T) {
	h := NewRouter(Deps{Service: "test", Payments: &mockPayments{}})

	rec := serve(t, h, http.MethodGet, "/api/payments/callback?interact_ref=ref-1&hash=abc", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "received", body["status"])
	assert.Equal(t, "ref-1", body["interactRef"])

	rec = serve(t, h, http.MethodGet, "/api/payments/callback?error=denied", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body = map[string]any{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "rejected", body["status"])

	rec = serve(t, h, http.MethodGet, "/api/payments/callback", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
