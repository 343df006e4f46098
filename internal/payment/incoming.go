package payment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/amount"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/grant"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/openpayments"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/wallet"
)

const (
	DefaultIncomingPaymentTTL = 60 * time.Minute
	defaultRequestDescription = "Payment request"
)

// IncomingPayments creates receivables on the payee wallet.
type IncomingPayments struct {
	grants Grants
	rs     ResourceServer
	ttl    time.Duration
	now    func() time.Time
}

func NewIncomingPayments(grants Grants, rs ResourceServer, ttl time.Duration) *IncomingPayments {
	if ttl <= 0 {
		ttl = DefaultIncomingPaymentTTL
	}
	return &IncomingPayments{grants: grants, rs: rs, ttl: ttl, now: time.Now}
}

// Create obtains a non-interactive incoming-payment grant on the payee's
// authorization server and creates a receivable for amt in the payee asset.
func (m *IncomingPayments) Create(ctx context.Context, payee *wallet.Address, amt decimal.Decimal, description string) (*IncomingPayment, error) {
	value, err := amount.ToNetworkUnits(amt, payee.AssetScale)
	if err != nil {
		return nil, &IncomingPaymentCreationError{Err: err}
	}

	g, err := m.grants.Request(ctx, payee.AuthServer, grant.Access{
		Type:    grant.IncomingPayment,
		Actions: []string{openpayments.ActionRead, openpayments.ActionComplete, openpayments.ActionCreate},
	}, false)
	if err != nil {
		return nil, &IncomingPaymentCreationError{Err: err}
	}

	if description == "" {
		description = defaultRequestDescription
	}
	expiresAt := m.now().Add(m.ttl).UTC()
	incoming := openpayments.Amount{Value: value, AssetCode: payee.AssetCode, AssetScale: payee.AssetScale}

	created, err := m.rs.CreateIncomingPayment(ctx, payee.ResourceServer, g.AccessToken, openpayments.IncomingPaymentRequest{
		WalletAddress:  payee.ID,
		IncomingAmount: &incoming,
		ExpiresAt:      expiresAt.Format(time.RFC3339),
		Metadata:       map[string]any{"description": description},
	})
	if err != nil {
		return nil, &IncomingPaymentCreationError{Err: err}
	}

	out := &IncomingPayment{
		ID:             created.ID,
		WalletAddress:  payee.ID,
		IncomingAmount: incoming,
		ExpiresAt:      expiresAt,
	}
	if created.IncomingAmount != nil {
		out.IncomingAmount = *created.IncomingAmount
	}
	if created.ExpiresAt != nil {
		out.ExpiresAt = *created.ExpiresAt
	}
	return out, nil
}
