package grant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/openpayments"
)

type mockAuthServer struct {
	mock.Mock
}

func (m *mockAuthServer) RequestGrant(ctx context.Context, authServer string, req openpayments.GrantRequest) (*openpayments.GrantResponse, error) {
	args := m.Called(ctx, authServer, req)
	resp, _ := args.Get(0).(*openpayments.GrantResponse)
	return resp, args.Error(1)
}

func (m *mockAuthServer) ContinueGrant(ctx context.Context, uri, token string, req openpayments.ContinueRequest) (*openpayments.GrantResponse, error) {
	args := m.Called(ctx, uri, token, req)
	resp, _ := args.Get(0).(*openpayments.GrantResponse)
	return resp, args.Error(1)
}

func finalized(token string) *openpayments.GrantResponse {
	return &openpayments.GrantResponse{AccessToken: &openpayments.AccessToken{Value: token}}
}

func pendingContinue(uri, token string, wait int) *openpayments.GrantResponse {
	return &openpayments.GrantResponse{Continue: &openpayments.Continue{
		URI:         uri,
		AccessToken: openpayments.ContinueToken{Value: token},
		Wait:        wait,
	}}
}

func noSleep(n *Negotiator) {
	n.sleep = func(context.Context, time.Duration) error { return nil }
}

func TestRequestNonInteractiveFinalized(t *testing.T) {
	as := new(mockAuthServer)
	as.On("RequestGrant", mock.Anything, "https://auth.example", mock.MatchedBy(func(req openpayments.GrantRequest) bool {
		item := req.AccessToken.Access[0]
		return req.Interact == nil && item.Type == "quote" && len(item.Actions) == 2
	})).Return(finalized("tok-q"), nil).Once()

	g, err := NewNegotiator(as).Request(context.Background(), "https://auth.example", Access{
		Type:    Quote,
		Actions: []string{openpayments.ActionCreate, openpayments.ActionRead},
	}, false)
	require.NoError(t, err)
	assert.Equal(t, Finalized, g.State)
	assert.Equal(t, Quote, g.ResourceType)
	assert.Equal(t, "tok-q", g.AccessToken)
	as.AssertExpectations(t)
}

func TestRequestNonInteractivePollsOnWait(t *testing.T) {
	as := new(mockAuthServer)
	as.On("RequestGrant", mock.Anything, mock.Anything, mock.Anything).
		Return(pendingContinue("https://auth.example/continue/1", "c1", 2), nil).Once()
	as.On("ContinueGrant", mock.Anything, "https://auth.example/continue/1", "c1", openpayments.ContinueRequest{}).
		Return(pendingContinue("https://auth.example/continue/1", "c2", 2), nil).Once()
	as.On("ContinueGrant", mock.Anything, "https://auth.example/continue/1", "c2", openpayments.ContinueRequest{}).
		Return(finalized("tok-ip"), nil).Once()

	var waits []time.Duration
	n := NewNegotiator(as)
	n.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	g, err := n.Request(context.Background(), "https://auth.example", Access{Type: IncomingPayment}, false)
	require.NoError(t, err)
	assert.Equal(t, "tok-ip", g.AccessToken)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, waits)
	as.AssertExpectations(t)
}

func TestRequestNonInteractiveGivesUpAfterPollAttempts(t *testing.T) {
	as := new(mockAuthServer)
	as.On("RequestGrant", mock.Anything, mock.Anything, mock.Anything).
		Return(pendingContinue("https://auth.example/continue/1", "c", 0), nil).Once()
	as.On("ContinueGrant", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(pendingContinue("https://auth.example/continue/1", "c", 0), nil)

	_, err := NewNegotiator(as, WithPollAttempts(2), noSleep).
		Request(context.Background(), "https://auth.example", Access{Type: Quote}, false)
	assert.ErrorIs(t, err, ErrNotFinalized)
	as.AssertNumberOfCalls(t, "ContinueGrant", 2)
}

func TestRequestNonInteractiveRejectsInteraction(t *testing.T) {
	as := new(mockAuthServer)
	resp := pendingContinue("https://auth.example/continue/1", "c", 0)
	resp.Interact = &openpayments.Interact{Redirect: "https://auth.example/interact/1"}
	as.On("RequestGrant", mock.Anything, mock.Anything, mock.Anything).Return(resp, nil)

	_, err := NewNegotiator(as).Request(context.Background(), "https://auth.example", Access{Type: Quote}, false)
	assert.ErrorIs(t, err, ErrNotFinalized)
	as.AssertNotCalled(t, "ContinueGrant", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRequestRemoteFailureIsNotFinalized(t *testing.T) {
	cause := &openpayments.Error{StatusCode: 400, Code: "invalid_client"}
	as := new(mockAuthServer)
	as.On("RequestGrant", mock.Anything, mock.Anything, mock.Anything).Return(nil, cause)

	_, err := NewNegotiator(as).Request(context.Background(), "https://auth.example", Access{Type: IncomingPayment}, false)
	assert.ErrorIs(t, err, ErrNotFinalized)

	var opErr *openpayments.Error
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, "invalid_client", opErr.Code)
}

func TestRequestInteractiveReturnsPendingGrant(t *testing.T) {
	resp := pendingContinue("https://auth.example/continue/9", "c9", 0)
	resp.Interact = &openpayments.Interact{Redirect: "https://auth.example/interact/9"}

	as := new(mockAuthServer)
	as.On("RequestGrant", mock.Anything, mock.Anything, mock.MatchedBy(func(req openpayments.GrantRequest) bool {
		return req.Interact != nil &&
			req.Interact.Start[0] == "redirect" &&
			req.Interact.Finish != nil &&
			req.Interact.Finish.URI == "https://shop.example/return" &&
			req.Interact.Finish.Nonce != ""
	})).Return(resp, nil)

	g, err := NewNegotiator(as, WithFinishURI("https://shop.example/return")).
		Request(context.Background(), "https://auth.example", Access{Type: OutgoingPayment}, true)
	require.NoError(t, err)
	assert.Equal(t, Pending, g.State)
	assert.Empty(t, g.AccessToken)
	require.NotNil(t, g.Interaction)
	assert.Equal(t, "https://auth.example/interact/9", g.Interaction.RedirectURL)
	require.NotNil(t, g.Continuation)
	assert.Equal(t, "c9", g.Continuation.Token)
}

func TestContinue(t *testing.T) {
	c := Continuation{URI: "https://auth.example/continue/9", Token: "c9"}

	t.Run("finalized", func(t *testing.T) {
		as := new(mockAuthServer)
		as.On("ContinueGrant", mock.Anything, c.URI, c.Token, openpayments.ContinueRequest{InteractRef: "ref"}).
			Return(finalized("tok-op"), nil).Once()

		g, err := NewNegotiator(as).Continue(context.Background(), OutgoingPayment, c, "ref")
		require.NoError(t, err)
		assert.True(t, g.IsFinalized())
		assert.Equal(t, OutgoingPayment, g.ResourceType)
	})

	t.Run("replayed continuation", func(t *testing.T) {
		as := new(mockAuthServer)
		as.On("ContinueGrant", mock.Anything, c.URI, c.Token, mock.Anything).
			Return(nil, &openpayments.Error{StatusCode: 401, Code: "invalid_continuation"}).Once()

		_, err := NewNegotiator(as).Continue(context.Background(), OutgoingPayment, c, "")
		assert.ErrorIs(t, err, ErrNotFinalized)
		as.AssertNumberOfCalls(t, "ContinueGrant", 1)
	})

	t.Run("still pending", func(t *testing.T) {
		as := new(mockAuthServer)
		as.On("ContinueGrant", mock.Anything, c.URI, c.Token, mock.Anything).
			Return(pendingContinue(c.URI, c.Token, 5), nil).Once()

		_, err := NewNegotiator(as).Continue(context.Background(), OutgoingPayment, c, "")
		assert.ErrorIs(t, err, ErrNotFinalized)
	})

	t.Run("wrong resource type", func(t *testing.T) {
		resp := finalized("tok")
		resp.AccessToken.Access = []openpayments.AccessItem{{Type: openpayments.ResourceQuote}}
		as := new(mockAuthServer)
		as.On("ContinueGrant", mock.Anything, c.URI, c.Token, mock.Anything).Return(resp, nil).Once()

		_, err := NewNegotiator(as).Continue(context.Background(), OutgoingPayment, c, "")
		assert.ErrorIs(t, err, ErrUnexpectedState)
	})

	t.Run("incomplete continuation", func(t *testing.T) {
		as := new(mockAuthServer)
		_, err := NewNegotiator(as).Continue(context.Background(), OutgoingPayment, Continuation{URI: c.URI}, "")
		assert.ErrorIs(t, err, ErrNotFinalized)
		as.AssertNotCalled(t, "ContinueGrant", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestRequestRejectsGrantForAnotherResource(t *testing.T) {
	wrong := func() *openpayments.GrantResponse {
		resp := finalized("tok")
		resp.AccessToken.Access = []openpayments.AccessItem{{Type: openpayments.ResourceIncomingPayment}}
		return resp
	}

	t.Run("immediate", func(t *testing.T) {
		as := new(mockAuthServer)
		as.On("RequestGrant", mock.Anything, "https://auth.example", mock.Anything).Return(wrong(), nil).Once()

		_, err := NewNegotiator(as).Request(context.Background(), "https://auth.example", Access{Type: Quote}, false)
		assert.ErrorIs(t, err, ErrUnexpectedState)
	})

	t.Run("after polling", func(t *testing.T) {
		as := new(mockAuthServer)
		as.On("RequestGrant", mock.Anything, "https://auth.example", mock.Anything).
			Return(pendingContinue("https://auth.example/continue/1", "c1", 1), nil).Once()
		as.On("ContinueGrant", mock.Anything, "https://auth.example/continue/1", "c1", mock.Anything).Return(wrong(), nil).Once()

		_, err := NewNegotiator(as, noSleep).Request(context.Background(), "https://auth.example", Access{Type: Quote}, false)
		assert.ErrorIs(t, err, ErrUnexpectedState)
	})

	t.Run("interactive", func(t *testing.T) {
		as := new(mockAuthServer)
		as.On("RequestGrant", mock.Anything, "https://auth.example", mock.Anything).Return(wrong(), nil).Once()

		_, err := NewNegotiator(as).Request(context.Background(), "https://auth.example", Access{Type: OutgoingPayment}, true)
		assert.ErrorIs(t, err, ErrUnexpectedState)
	})
}
