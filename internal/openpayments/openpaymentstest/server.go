// Package openpaymentstest runs an in-process Open Payments authorization and
// resource server for tests.
package openpaymentstest

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/amount"
	op "github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/openpayments"
)

// Route names accepted by Calls.
const (
	RouteWallet          = "wallet"
	RouteGrant           = "grant"
	RouteContinue        = "continue"
	RouteIncomingPayment = "incoming-payment"
	RouteQuote           = "quote"
	RouteOutgoingPayment = "outgoing-payment"
)

type Asset struct {
	Code  string
	Scale int
}

type issuedToken struct {
	resourceType string
	identifier   string
}

type pendingGrant struct {
	token    string
	consumed bool
	access   []op.AccessItem
}

// Server fakes one account servicing entity hosting a payer and a payee.
// Exported fields may be changed between requests.
type Server struct {
	*httptest.Server

	PayerAsset Asset
	PayeeAsset Asset
	// QuoteFee is added to the debit amount, in payer asset units.
	QuoteFee int64
	// RequireInteraction makes outgoing-payment grants pending on redirect.
	RequireInteraction bool
	// DeclineInteraction answers continuations with another pending grant.
	DeclineInteraction bool
	// FailWallet drops the connection on lookups of this wallet path.
	FailWallet string
	FailQuote  bool
	// OutgoingState is reported on created outgoing payments; empty omits it.
	OutgoingState string
	// VerifyKey, when set, rejects requests not signed by the matching key.
	VerifyKey ed25519.PublicKey

	mu            sync.Mutex
	calls         map[string]int
	tokens        map[string]issuedToken
	continuations map[string]*pendingGrant
	incoming      map[string]op.Amount
	quotes        map[string]op.Quote
	outgoing      []op.OutgoingPayment
}

func NewServer() *Server {
	s := &Server{
		PayerAsset:    Asset{Code: "USD", Scale: 2},
		PayeeAsset:    Asset{Code: "USD", Scale: 2},
		OutgoingState: op.StateCompleted,
		calls:         map[string]int{},
		tokens:        map[string]issuedToken{},
		continuations: map[string]*pendingGrant{},
		incoming:      map[string]op.Amount{},
		quotes:        map[string]op.Quote{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/alice", s.handleWallet("/alice", func() Asset { return s.PayerAsset }))
	mux.HandleFunc("/bob", s.handleWallet("/bob", func() Asset { return s.PayeeAsset }))
	mux.HandleFunc("/auth", s.handleGrant)
	mux.HandleFunc("/auth/continue/", s.handleContinue)
	mux.HandleFunc("/rs/incoming-payments", s.handleIncomingPayment)
	mux.HandleFunc("/rs/quotes", s.handleQuote)
	mux.HandleFunc("/rs/outgoing-payments", s.handleOutgoingPayment)
	mux.HandleFunc("/interact/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s.Server = httptest.NewServer(s.verify(mux))
	return s
}

func (s *Server) PayerWallet() string { return s.URL + "/alice" }
func (s *Server) PayeeWallet() string { return s.URL + "/bob" }

// Calls reports how many requests reached a route.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// OutgoingPayments returns every outgoing payment created so far.
func (s *Server) OutgoingPayments() []op.OutgoingPayment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]op.OutgoingPayment(nil), s.outgoing...)
}

func (s *Server) verify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		if s.VerifyKey != nil {
			if err := op.VerifyRequest(r, body, s.VerifyKey); err != nil {
				writeError(w, http.StatusUnauthorized, "invalid_client", err.Error())
				return
			}
		}
		r.Body = io.NopCloser(strings.NewReader(string(body)))
		next.ServeHTTP(w, r)
	})
}

func (s *Server) count(route string) {
	s.mu.Lock()
	s.calls[route]++
	s.mu.Unlock()
}

func (s *Server) handleWallet(path string, asset func() Asset) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.count(RouteWallet)
		if s.FailWallet == path {
			if hj, ok := w.(http.Hijacker); ok {
				if conn, _, err := hj.Hijack(); err == nil {
					conn.Close()
					return
				}
			}
			writeError(w, http.StatusBadGateway, "unavailable", "wallet lookup failed")
			return
		}
		a := asset()
		writeJSON(w, http.StatusOK, op.WalletAddress{
			ID:             s.URL + path,
			PublicName:     strings.TrimPrefix(path, "/"),
			AssetCode:      a.Code,
			AssetScale:     a.Scale,
			AuthServer:     s.URL + "/auth",
			ResourceServer: s.URL + "/rs",
		})
	}
}

func (s *Server) handleGrant(w http.ResponseWriter, r *http.Request) {
	s.count(RouteGrant)
	var req op.GrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.AccessToken.Access) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed grant request")
		return
	}
	access := req.AccessToken.Access

	if access[0].Type == op.ResourceOutgoingPayment && req.Interact != nil && s.RequireInteraction {
		id := uuid.NewString()
		token := "cont-" + id
		s.mu.Lock()
		s.continuations[id] = &pendingGrant{token: token, access: access}
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, op.GrantResponse{
			Interact: &op.Interact{Redirect: s.URL + "/interact/" + id},
			Continue: &op.Continue{
				AccessToken: op.ContinueToken{Value: token},
				URI:         s.URL + "/auth/continue/" + id,
			},
		})
		return
	}

	writeJSON(w, http.StatusOK, op.GrantResponse{AccessToken: s.issue(access)})
}

func (s *Server) handleContinue(w http.ResponseWriter, r *http.Request) {
	s.count(RouteContinue)
	id := strings.TrimPrefix(r.URL.Path, "/auth/continue/")

	s.mu.Lock()
	pending, ok := s.continuations[id]
	valid := ok && !pending.consumed && r.Header.Get("Authorization") == "GNAP "+pending.token
	if valid && !s.DeclineInteraction {
		pending.consumed = true
	}
	s.mu.Unlock()

	if !valid {
		writeError(w, http.StatusUnauthorized, "invalid_continuation", "continuation is unknown or already used")
		return
	}
	if s.DeclineInteraction {
		writeJSON(w, http.StatusOK, op.GrantResponse{Continue: &op.Continue{
			AccessToken: op.ContinueToken{Value: pending.token},
			URI:         s.URL + "/auth/continue/" + id,
			Wait:        5,
		}})
		return
	}
	writeJSON(w, http.StatusOK, op.GrantResponse{AccessToken: s.issue(pending.access)})
}

func (s *Server) issue(access []op.AccessItem) *op.AccessToken {
	token := "tok-" + uuid.NewString()
	s.mu.Lock()
	s.tokens[token] = issuedToken{resourceType: access[0].Type, identifier: access[0].Identifier}
	s.mu.Unlock()
	return &op.AccessToken{Value: token, Access: access}
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request, resourceType string) (issuedToken, bool) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "GNAP ")
	s.mu.Lock()
	issued, ok := s.tokens[token]
	s.mu.Unlock()
	if !ok || issued.resourceType != resourceType {
		writeError(w, http.StatusUnauthorized, "invalid_token", "access token does not cover "+resourceType)
		return issuedToken{}, false
	}
	return issued, true
}

func (s *Server) handleIncomingPayment(w http.ResponseWriter, r *http.Request) {
	s.count(RouteIncomingPayment)
	if _, ok := s.authorize(w, r, op.ResourceIncomingPayment); !ok {
		return
	}
	var req op.IncomingPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IncomingAmount == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed incoming payment")
		return
	}
	id := s.URL + "/rs/incoming-payments/" + uuid.NewString()
	s.mu.Lock()
	s.incoming[id] = *req.IncomingAmount
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, op.IncomingPayment{
		ID:             id,
		WalletAddress:  req.WalletAddress,
		IncomingAmount: req.IncomingAmount,
		ReceivedAmount: &op.Amount{Value: "0", AssetCode: req.IncomingAmount.AssetCode, AssetScale: req.IncomingAmount.AssetScale},
		Metadata:       req.Metadata,
	})
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	s.count(RouteQuote)
	if _, ok := s.authorize(w, r, op.ResourceQuote); !ok {
		return
	}
	if s.FailQuote {
		writeError(w, http.StatusInternalServerError, "internal_error", "quote backend unavailable")
		return
	}
	var req op.QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed quote")
		return
	}
	s.mu.Lock()
	receive, ok := s.incoming[req.Receiver]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "unknown_receiver", "receiver not found")
		return
	}

	debit, err := s.debitFor(receive)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	quote := op.Quote{
		ID:            s.URL + "/rs/quotes/" + uuid.NewString(),
		WalletAddress: req.WalletAddress,
		Receiver:      req.Receiver,
		DebitAmount:   debit,
		ReceiveAmount: receive,
		Method:        req.Method,
	}
	s.mu.Lock()
	s.quotes[quote.ID] = quote
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, quote)
}

// debitFor prices receive in the payer asset at a 1:1 rate plus QuoteFee.
func (s *Server) debitFor(receive op.Amount) (op.Amount, error) {
	d, err := amount.ToDecimal(receive.Value, receive.AssetScale)
	if err != nil {
		return op.Amount{}, err
	}
	fee := decimal.New(s.QuoteFee, -int32(s.PayerAsset.Scale))
	units, err := amount.ToNetworkUnits(d.Add(fee), s.PayerAsset.Scale)
	if err != nil {
		return op.Amount{}, err
	}
	return op.Amount{Value: units, AssetCode: s.PayerAsset.Code, AssetScale: s.PayerAsset.Scale}, nil
}

func (s *Server) handleOutgoingPayment(w http.ResponseWriter, r *http.Request) {
	s.count(RouteOutgoingPayment)
	issued, ok := s.authorize(w, r, op.ResourceOutgoingPayment)
	if !ok {
		return
	}
	var req op.OutgoingPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed outgoing payment")
		return
	}
	if issued.identifier != "" && issued.identifier != req.WalletAddress {
		writeError(w, http.StatusForbidden, "insufficient_grant", "grant does not cover "+req.WalletAddress)
		return
	}
	s.mu.Lock()
	quote, ok := s.quotes[req.QuoteID]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "unknown_quote", fmt.Sprintf("quote %s not found", req.QuoteID))
		return
	}

	payment := op.OutgoingPayment{
		ID:            s.URL + "/rs/outgoing-payments/" + uuid.NewString(),
		WalletAddress: req.WalletAddress,
		QuoteID:       quote.ID,
		Receiver:      quote.Receiver,
		DebitAmount:   &quote.DebitAmount,
		ReceiveAmount: &quote.ReceiveAmount,
		State:         s.OutgoingState,
	}
	s.mu.Lock()
	s.outgoing = append(s.outgoing, payment)
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, payment)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"code": code, "description": description},
	})
}
