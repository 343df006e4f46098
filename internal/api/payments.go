package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/amount"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/logging"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/payment"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/storage/postgres"
)

const maxBodyBytes = 64 << 10

type initiateBody struct {
	Amount      json.Number `json:"amount"`
	Description string      `json:"description"`
}

type completeBody struct {
	QuoteID       string `json:"quoteId"`
	ContinueURI   string `json:"continueUri"`
	ContinueToken string `json:"continueToken"`
	InteractRef   string `json:"interactRef"`
}

type paymentsHandler struct {
	payments Payments
	sessions Sessions
}

// POST /api/payments
func (h *paymentsHandler) initiate(w http.ResponseWriter, r *http.Request) {
	var body initiateBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Amount == "" {
		writeError(w, http.StatusBadRequest, "amount is required")
		return
	}
	amt, err := decimal.NewFromString(body.Amount.String())
	if err != nil {
		writeError(w, http.StatusBadRequest, "amount must be a decimal number")
		return
	}
	if err := amount.CheckBounds(amt); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := h.payments.Initiate(r.Context(), payment.InitiateRequest{Amount: amt, Description: body.Description})
	h.respond(w, r, out, err)
}

// POST /api/payments/complete
func (h *paymentsHandler) complete(w http.ResponseWriter, r *http.Request) {
	var body completeBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	out, err := h.payments.Complete(r.Context(), payment.CompleteRequest{
		QuoteID:       body.QuoteID,
		ContinueURI:   body.ContinueURI,
		ContinueToken: body.ContinueToken,
		InteractRef:   body.InteractRef,
	})
	h.respond(w, r, out, err)
}

// respond writes a payment outcome. Failed outcomes are still 200; only a
// missing outcome is a gateway error.
func (h *paymentsHandler) respond(w http.ResponseWriter, r *http.Request, out *payment.Outcome, err error) {
	if out == nil {
		logging.FromContext(r.Context()).Error("payment_call_failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, payment.Outcome{Status: payment.StatusFailed, Error: errorText(err)})
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /api/payments/sessions/{key}
func (h *paymentsHandler) session(w http.ResponseWriter, r *http.Request) {
	rec, err := h.sessions.Get(r.Context(), chi.URLParam(r, "key"))
	if errors.Is(err, postgres.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		logging.FromContext(r.Context()).Error("payment_session_lookup_failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "session lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func errorText(err error) string {
	if err == nil {
		return "payment service unavailable"
	}
	return err.Error()
}
