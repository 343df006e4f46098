package grant

import (
	"errors"
	"time"

	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/openpayments"
)

var (
	// ErrNotFinalized is returned when a grant could not be brought to the
	// Finalized state: the authorization server rejected the request or the
	// continuation, or interaction has not completed.
	ErrNotFinalized = errors.New("grant not finalized")
	// ErrUnexpectedState is returned for grant answers that are neither
	// finalized nor a usable interaction request.
	ErrUnexpectedState = errors.New("unexpected grant state")
)

type ResourceType string

const (
	IncomingPayment ResourceType = openpayments.ResourceIncomingPayment
	Quote           ResourceType = openpayments.ResourceQuote
	OutgoingPayment ResourceType = openpayments.ResourceOutgoingPayment
)

type State string

const (
	Pending   State = "Pending"
	Finalized State = "Finalized"
)

// Continuation is the handle needed to resume a pending grant.
type Continuation struct {
	URI   string
	Token string
	Wait  time.Duration
}

type Interaction struct {
	RedirectURL string
}

// Grant moves from Pending to Finalized only. AccessToken is set only when
// Finalized.
type Grant struct {
	ResourceType ResourceType
	State        State
	AccessToken  string
	Continuation *Continuation
	Interaction  *Interaction
}

func (g *Grant) IsFinalized() bool {
	return g != nil && g.State == Finalized && g.AccessToken != ""
}

// Access describes what a grant is requested for.
type Access struct {
	Type       ResourceType
	Actions    []string
	Identifier string
	Limits     *openpayments.Limits
}

func fromResponse(rt ResourceType, resp *openpayments.GrantResponse) *Grant {
	g := &Grant{ResourceType: rt, State: Pending}
	if resp.Finalized() {
		g.State = Finalized
		g.AccessToken = resp.AccessToken.Value
	}
	if resp.Continue != nil {
		g.Continuation = &Continuation{
			URI:   resp.Continue.URI,
			Token: resp.Continue.AccessToken.Value,
			Wait:  time.Duration(resp.Continue.Wait) * time.Second,
		}
	}
	if resp.Interact != nil && resp.Interact.Redirect != "" {
		g.Interaction = &Interaction{RedirectURL: resp.Interact.Redirect}
	}
	return g
}
