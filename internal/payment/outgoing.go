package payment

import (
	"context"
	"fmt"

	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/grant"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/openpayments"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/wallet"
)

// Authorization is the result of asking for an outgoing-payment grant.
// Either Grant is Finalized, or RedirectURL and Continuation are set.
type Authorization struct {
	RequiresInteraction bool
	Grant               *grant.Grant
	RedirectURL         string
	Continuation        *grant.Continuation
}

// OutgoingPayments creates payables on the payer wallet.
type OutgoingPayments struct {
	grants Grants
	rs     ResourceServer
}

func NewOutgoingPayments(grants Grants, rs ResourceServer) *OutgoingPayments {
	return &OutgoingPayments{grants: grants, rs: rs}
}

// RequestAuthorization asks for an interactive grant limited to the quote's
// debit amount.
func (m *OutgoingPayments) RequestAuthorization(ctx context.Context, payer *wallet.Address, q *Quote) (*Authorization, error) {
	debit := q.DebitAmount
	g, err := m.grants.Request(ctx, payer.AuthServer, grant.Access{
		Type:       grant.OutgoingPayment,
		Actions:    []string{openpayments.ActionRead, openpayments.ActionCreate},
		Identifier: payer.ID,
		Limits:     &openpayments.Limits{DebitAmount: &debit},
	}, true)
	if err != nil {
		return nil, err
	}

	switch {
	case g.IsFinalized():
		return &Authorization{Grant: g}, nil
	case g.Interaction != nil && g.Interaction.RedirectURL != "" && g.Continuation != nil:
		return &Authorization{
			RequiresInteraction: true,
			Grant:               g,
			RedirectURL:         g.Interaction.RedirectURL,
			Continuation:        g.Continuation,
		}, nil
	default:
		return nil, fmt.Errorf("%w: outgoing-payment grant has neither token nor redirect", grant.ErrUnexpectedState)
	}
}

// Finalize continues a pending grant after the payer authorized it, then
// creates the outgoing payment for quoteID.
func (m *OutgoingPayments) Finalize(ctx context.Context, c grant.Continuation, interactRef string, payer *wallet.Address, quoteID string) (*OutgoingPayment, error) {
	g, err := m.grants.Continue(ctx, grant.OutgoingPayment, c, interactRef)
	if err != nil {
		return nil, err
	}
	return m.CreateWithGrant(ctx, g, payer, quoteID)
}

// CreateWithGrant creates the outgoing payment. It refuses any grant that is
// not a Finalized outgoing-payment grant.
func (m *OutgoingPayments) CreateWithGrant(ctx context.Context, g *grant.Grant, payer *wallet.Address, quoteID string) (*OutgoingPayment, error) {
	if g == nil || g.ResourceType != grant.OutgoingPayment || !g.IsFinalized() {
		return nil, fmt.Errorf("%w: outgoing payment needs a finalized outgoing-payment grant", grant.ErrNotFinalized)
	}

	p, err := m.rs.CreateOutgoingPayment(ctx, payer.ResourceServer, g.AccessToken, openpayments.OutgoingPaymentRequest{
		WalletAddress: payer.ID,
		QuoteID:       quoteID,
	})
	if err != nil {
		return nil, &OutgoingPaymentCreationError{Err: err}
	}
	return &OutgoingPayment{ID: p.ID, State: p.Status(), QuoteID: quoteID}, nil
}
