package openpayments_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/openpayments"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/openpayments/openpaymentstest"
)

func newIdentity(t *testing.T, wallet string) *openpayments.Identity {
	t.Helper()
	_, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return &openpayments.Identity{WalletAddress: wallet, KeyID: "test-key", PrivateKey: key}
}

func TestClientRequestsAreSigned(t *testing.T) {
	srv := openpaymentstest.NewServer()
	defer srv.Close()

	id := newIdentity(t, srv.PayerWallet())
	srv.VerifyKey = id.PublicKey()
	client := openpayments.NewClient(id)
	ctx := context.Background()

	wallet, err := client.GetWalletAddress(ctx, srv.PayeeWallet())
	require.NoError(t, err)
	assert.Equal(t, srv.PayeeWallet(), wallet.ID)
	assert.Equal(t, "USD", wallet.AssetCode)
	assert.Equal(t, 2, wallet.AssetScale)

	grant, err := client.RequestGrant(ctx, wallet.AuthServer, openpayments.GrantRequest{
		AccessToken: openpayments.AccessTokenRequest{Access: []openpayments.AccessItem{{
			Type:    openpayments.ResourceIncomingPayment,
			Actions: []string{openpayments.ActionCreate, openpayments.ActionRead},
		}}},
	})
	require.NoError(t, err)
	assert.True(t, grant.Finalized())

	incoming, err := client.CreateIncomingPayment(ctx, wallet.ResourceServer, grant.AccessToken.Value, openpayments.IncomingPaymentRequest{
		WalletAddress:  wallet.ID,
		IncomingAmount: &openpayments.Amount{Value: "1000", AssetCode: "USD", AssetScale: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, "1000", incoming.IncomingAmount.Value)
}

func TestClientRejectedWithForeignKey(t *testing.T) {
	srv := openpaymentstest.NewServer()
	defer srv.Close()

	srv.VerifyKey = newIdentity(t, srv.PayerWallet()).PublicKey()
	client := openpayments.NewClient(newIdentity(t, srv.PayerWallet()))

	_, err := client.GetWalletAddress(context.Background(), srv.PayerWallet())
	var opErr *openpayments.Error
	require.True(t, errors.As(err, &opErr), "got %v", err)
	assert.Equal(t, http.StatusUnauthorized, opErr.StatusCode)
	assert.Equal(t, "invalid_client", opErr.Code)
}

func TestInteractiveGrantAndSingleUseContinuation(t *testing.T) {
	srv := openpaymentstest.NewServer()
	defer srv.Close()
	srv.RequireInteraction = true

	client := openpayments.NewClient(newIdentity(t, srv.PayerWallet()))
	ctx := context.Background()

	pending, err := client.RequestGrant(ctx, srv.URL+"/auth", openpayments.GrantRequest{
		AccessToken: openpayments.AccessTokenRequest{Access: []openpayments.AccessItem{{
			Type:       openpayments.ResourceOutgoingPayment,
			Actions:    []string{openpayments.ActionCreate, openpayments.ActionRead},
			Identifier: srv.PayerWallet(),
		}}},
		Interact: &openpayments.InteractRequest{Start: []string{"redirect"}},
	})
	require.NoError(t, err)
	require.False(t, pending.Finalized())
	require.NotNil(t, pending.Interact)
	require.NotNil(t, pending.Continue)

	finalized, err := client.ContinueGrant(ctx, pending.Continue.URI, pending.Continue.AccessToken.Value, openpayments.ContinueRequest{})
	require.NoError(t, err)
	assert.True(t, finalized.Finalized())

	_, err = client.ContinueGrant(ctx, pending.Continue.URI, pending.Continue.AccessToken.Value, openpayments.ContinueRequest{})
	var opErr *openpayments.Error
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, http.StatusUnauthorized, opErr.StatusCode)
	assert.Equal(t, "invalid_continuation", opErr.Code)
}

func TestResourceServerRejectsWrongTokenType(t *testing.T) {
	srv := openpaymentstest.NewServer()
	defer srv.Close()

	client := openpayments.NewClient(newIdentity(t, srv.PayerWallet()))
	ctx := context.Background()

	grant, err := client.RequestGrant(ctx, srv.URL+"/auth", openpayments.GrantRequest{
		AccessToken: openpayments.AccessTokenRequest{Access: []openpayments.AccessItem{{
			Type:    openpayments.ResourceQuote,
			Actions: []string{openpayments.ActionCreate},
		}}},
	})
	require.NoError(t, err)

	_, err = client.CreateOutgoingPayment(ctx, srv.URL+"/rs", grant.AccessToken.Value, openpayments.OutgoingPaymentRequest{
		WalletAddress: srv.PayerWallet(),
		QuoteID:       "https://example.test/quotes/1",
	})
	var opErr *openpayments.Error
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, http.StatusUnauthorized, opErr.StatusCode)
}

func TestTimeoutAppliesRegardlessOfOptionOrder(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()

	own := &http.Client{}
	client := openpayments.NewClient(newIdentity(t, slow.URL+"/alice"),
		openpayments.WithTimeout(50*time.Millisecond),
		openpayments.WithHTTPClient(own),
	)

	start := time.Now()
	_, err := client.GetWalletAddress(context.Background(), slow.URL+"/bob")
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Zero(t, own.Timeout)
}
