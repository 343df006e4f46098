package grant

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/openpayments"
)

const defaultPollInterval = time.Second

// AuthServer is the GNAP side of an Open Payments client.
type AuthServer interface {
	RequestGrant(ctx context.Context, authServer string, req openpayments.GrantRequest) (*openpayments.GrantResponse, error)
	ContinueGrant(ctx context.Context, uri, token string, req openpayments.ContinueRequest) (*openpayments.GrantResponse, error)
}

type Negotiator struct {
	as           AuthServer
	pollAttempts int
	finishURI    string
	sleep        func(ctx context.Context, d time.Duration) error
}

type Option func(*Negotiator)

// WithPollAttempts bounds how many times a non-interactive grant that answered
// with a continuation is polled before giving up.
func WithPollAttempts(attempts int) Option {
	return func(n *Negotiator) {
		if attempts >= 0 {
			n.pollAttempts = attempts
		}
	}
}

// WithFinishURI asks the authorization server to redirect the payer back to
// uri once interaction completes.
func WithFinishURI(uri string) Option {
	return func(n *Negotiator) { n.finishURI = uri }
}

func NewNegotiator(as AuthServer, opts ...Option) *Negotiator {
	n := &Negotiator{as: as, pollAttempts: 3, sleep: sleepContext}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Request asks authServer for a grant. A non-interactive request returns a
// Finalized grant or ErrNotFinalized. An interactive request may return a
// Pending grant carrying Interaction and Continuation.
func (n *Negotiator) Request(ctx context.Context, authServer string, access Access, interactive bool) (*Grant, error) {
	req := openpayments.GrantRequest{
		AccessToken: openpayments.AccessTokenRequest{Access: []openpayments.AccessItem{{
			Type:       string(access.Type),
			Actions:    access.Actions,
			Identifier: access.Identifier,
			Limits:     access.Limits,
		}}},
	}
	if interactive {
		req.Interact = &openpayments.InteractRequest{Start: []string{"redirect"}}
		if n.finishURI != "" {
			req.Interact.Finish = &openpayments.InteractFinish{
				Method: "redirect",
				URI:    n.finishURI,
				Nonce:  uuid.NewString(),
			}
		}
	}

	resp, err := n.as.RequestGrant(ctx, authServer, req)
	if err != nil {
		return nil, fmt.Errorf("%w: request %s grant: %w", ErrNotFinalized, access.Type, err)
	}
	g := fromResponse(access.Type, resp)
	if g.IsFinalized() {
		if err := checkCovers(access.Type, resp); err != nil {
			return nil, err
		}
		return g, nil
	}
	if interactive {
		return g, nil
	}
	if g.Interaction != nil || g.Continuation == nil {
		return nil, fmt.Errorf("%w: %s grant requires interaction", ErrNotFinalized, access.Type)
	}
	return n.poll(ctx, access.Type, g.Continuation)
}

func (n *Negotiator) poll(ctx context.Context, rt ResourceType, c *Continuation) (*Grant, error) {
	for attempt := 0; attempt < n.pollAttempts; attempt++ {
		wait := c.Wait
		if wait <= 0 {
			wait = defaultPollInterval
		}
		if err := n.sleep(ctx, wait); err != nil {
			return nil, fmt.Errorf("%w: %s grant: %w", ErrNotFinalized, rt, err)
		}
		resp, err := n.as.ContinueGrant(ctx, c.URI, c.Token, openpayments.ContinueRequest{})
		if err != nil {
			return nil, fmt.Errorf("%w: continue %s grant: %w", ErrNotFinalized, rt, err)
		}
		g := fromResponse(rt, resp)
		if g.IsFinalized() {
			if err := checkCovers(rt, resp); err != nil {
				return nil, err
			}
			return g, nil
		}
		if g.Continuation == nil {
			break
		}
		c = g.Continuation
	}
	return nil, fmt.Errorf("%w: %s grant still pending after %d attempts", ErrNotFinalized, rt, n.pollAttempts)
}

// Continue resumes a pending grant once. Any rejection, including a replayed
// continuation, is ErrNotFinalized.
func (n *Negotiator) Continue(ctx context.Context, rt ResourceType, c Continuation, interactRef string) (*Grant, error) {
	if c.URI == "" || c.Token == "" {
		return nil, fmt.Errorf("%w: incomplete continuation", ErrNotFinalized)
	}
	resp, err := n.as.ContinueGrant(ctx, c.URI, c.Token, openpayments.ContinueRequest{InteractRef: interactRef})
	if err != nil {
		return nil, fmt.Errorf("%w: continue %s grant: %w", ErrNotFinalized, rt, err)
	}
	g := fromResponse(rt, resp)
	if !g.IsFinalized() {
		return nil, fmt.Errorf("%w: %s grant still pending", ErrNotFinalized, rt)
	}
	if err := checkCovers(rt, resp); err != nil {
		return nil, err
	}
	return g, nil
}

// checkCovers rejects a finalized grant whose token was issued for another
// resource type.
func checkCovers(rt ResourceType, resp *openpayments.GrantResponse) error {
	for _, item := range resp.AccessToken.Access {
		if item.Type != "" && ResourceType(item.Type) != rt {
			return fmt.Errorf("%w: grant covers %s, not %s", ErrUnexpectedState, item.Type, rt)
		}
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
