package payment

import (
	"context"
	"time"

	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/grant"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/openpayments"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/wallet"
)

// ResourceServer creates Open Payments resources under a GNAP access token.
type ResourceServer interface {
	CreateIncomingPayment(ctx context.Context, resourceServer, token string, req openpayments.IncomingPaymentRequest) (*openpayments.IncomingPayment, error)
	CreateQuote(ctx context.Context, resourceServer, token string, req openpayments.QuoteRequest) (*openpayments.Quote, error)
	CreateOutgoingPayment(ctx context.Context, resourceServer, token string, req openpayments.OutgoingPaymentRequest) (*openpayments.OutgoingPayment, error)
}

// Grants negotiates access with authorization servers.
type Grants interface {
	Request(ctx context.Context, authServer string, access grant.Access, interactive bool) (*grant.Grant, error)
	Continue(ctx context.Context, rt grant.ResourceType, c grant.Continuation, interactRef string) (*grant.Grant, error)
}

// Wallets resolves wallet addresses. Implementations must not cache.
type Wallets interface {
	Resolve(ctx context.Context, id string) (*wallet.Address, error)
}

// IncomingPayment is the receivable created on the payee wallet.
type IncomingPayment struct {
	ID             string
	WalletAddress  string
	IncomingAmount openpayments.Amount
	ExpiresAt      time.Time
}

// Quote prices sending to a receiver from the payer wallet.
type Quote struct {
	ID            string
	DebitAmount   openpayments.Amount
	ReceiveAmount openpayments.Amount
	Receiver      string
}

// OutgoingPayment is the payable created on the payer wallet.
type OutgoingPayment struct {
	ID      string
	State   string
	QuoteID string
}
