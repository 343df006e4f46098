package payment

import (
	"context"

	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/grant"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/openpayments"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/wallet"
)

const quoteMethodILP = "ilp"

// Quotes prices payments from the payer wallet.
type Quotes struct {
	grants Grants
	rs     ResourceServer
}

func NewQuotes(grants Grants, rs ResourceServer) *Quotes {
	return &Quotes{grants: grants, rs: rs}
}

// Create quotes paying receiver (an incoming payment id) from payer.
func (m *Quotes) Create(ctx context.Context, payer *wallet.Address, receiver string) (*Quote, error) {
	g, err := m.grants.Request(ctx, payer.AuthServer, grant.Access{
		Type:    grant.Quote,
		Actions: []string{openpayments.ActionCreate, openpayments.ActionRead},
	}, false)
	if err != nil {
		return nil, &QuoteCreationError{Err: err}
	}
	if g.ResourceType != grant.Quote || !g.IsFinalized() {
		return nil, &QuoteCreationError{Err: grant.ErrNotFinalized}
	}

	q, err := m.rs.CreateQuote(ctx, payer.ResourceServer, g.AccessToken, openpayments.QuoteRequest{
		WalletAddress: payer.ID,
		Receiver:      receiver,
		Method:        quoteMethodILP,
	})
	if err != nil {
		return nil, &QuoteCreationError{Err: err}
	}
	return &Quote{
		ID:            q.ID,
		DebitAmount:   q.DebitAmount,
		ReceiveAmount: q.ReceiveAmount,
		Receiver:      receiver,
	}, nil
}
