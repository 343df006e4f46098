package openpayments

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/amount"
)

// Resource types a grant can be scoped to.
const (
	ResourceIncomingPayment = "incoming-payment"
	ResourceQuote           = "quote"
	ResourceOutgoingPayment = "outgoing-payment"
)

// Actions used in grant access items.
const (
	ActionCreate   = "create"
	ActionRead     = "read"
	ActionComplete = "complete"
)

// Outgoing payment states reported by resource servers.
const (
	StateFunding   = "FUNDING"
	StateSending   = "SENDING"
	StateCompleted = "COMPLETED"
	StateFailed    = "FAILED"
)

// Amount is a fixed-point network amount: value / 10^assetScale units of assetCode.
type Amount struct {
	Value      string `json:"value"`
	AssetCode  string `json:"assetCode"`
	AssetScale int    `json:"assetScale"`
}

func (a Amount) Validate() error {
	if strings.TrimSpace(a.AssetCode) == "" {
		return invalidf("amount: missing assetCode")
	}
	if _, err := amount.ToDecimal(a.Value, a.AssetScale); err != nil {
		return invalidf("amount: %v", err)
	}
	return nil
}

// WalletAddress is the public description of an account on the network.
type WalletAddress struct {
	ID             string `json:"id"`
	PublicName     string `json:"publicName,omitempty"`
	AssetCode      string `json:"assetCode"`
	AssetScale     int    `json:"assetScale"`
	AuthServer     string `json:"authServer"`
	ResourceServer string `json:"resourceServer"`
}

func (w WalletAddress) Validate() error {
	if err := requireURL("wallet address id", w.ID); err != nil {
		return err
	}
	if err := requireURL("authServer", w.AuthServer); err != nil {
		return err
	}
	if err := requireURL("resourceServer", w.ResourceServer); err != nil {
		return err
	}
	if strings.TrimSpace(w.AssetCode) == "" {
		return invalidf("wallet address %s: missing assetCode", w.ID)
	}
	if w.AssetScale < 0 || w.AssetScale > amount.MaxScale {
		return invalidf("wallet address %s: assetScale %d out of range", w.ID, w.AssetScale)
	}
	return nil
}

// Limits bound what a grant may spend or receive.
type Limits struct {
	DebitAmount   *Amount `json:"debitAmount,omitempty"`
	ReceiveAmount *Amount `json:"receiveAmount,omitempty"`
}

// AccessItem is one entry of a GNAP access request.
type AccessItem struct {
	Type       string   `json:"type"`
	Actions    []string `json:"actions"`
	Identifier string   `json:"identifier,omitempty"`
	Limits     *Limits  `json:"limits,omitempty"`
}

type AccessTokenRequest struct {
	Access []AccessItem `json:"access"`
}

type InteractFinish struct {
	Method string `json:"method"`
	URI    string `json:"uri"`
	Nonce  string `json:"nonce"`
}

type InteractRequest struct {
	Start  []string        `json:"start"`
	Finish *InteractFinish `json:"finish,omitempty"`
}

// GrantRequest is the body posted to an authorization server.
type GrantRequest struct {
	AccessToken AccessTokenRequest `json:"access_token"`
	Client      string             `json:"client"`
	Interact    *InteractRequest   `json:"interact,omitempty"`
}

// ContinueRequest is the body posted to a grant continuation URI.
type ContinueRequest struct {
	InteractRef string `json:"interact_ref,omitempty"`
}

type AccessToken struct {
	Value     string       `json:"value"`
	Manage    string       `json:"manage,omitempty"`
	ExpiresIn int          `json:"expires_in,omitempty"`
	Access    []AccessItem `json:"access,omitempty"`
}

type ContinueToken struct {
	Value string `json:"value"`
}

type Continue struct {
	AccessToken ContinueToken `json:"access_token"`
	URI         string        `json:"uri"`
	Wait        int           `json:"wait,omitempty"`
}

type Interact struct {
	Redirect string `json:"redirect"`
	Finish   string `json:"finish,omitempty"`
}

// GrantResponse covers both finalized and pending grant answers.
type GrantResponse struct {
	AccessToken *AccessToken `json:"access_token,omitempty"`
	Continue    *Continue    `json:"continue,omitempty"`
	Interact    *Interact    `json:"interact,omitempty"`
}

// Finalized reports whether the authorization server issued an access token.
func (g GrantResponse) Finalized() bool {
	return g.AccessToken != nil && g.AccessToken.Value != ""
}

func (g GrantResponse) Validate() error {
	if g.AccessToken == nil && g.Continue == nil {
		return invalidf("grant: neither access_token nor continue present")
	}
	if g.AccessToken != nil && g.AccessToken.Value == "" {
		return invalidf("grant: empty access token")
	}
	if g.Continue != nil {
		if err := requireURL("grant continue uri", g.Continue.URI); err != nil {
			return err
		}
		if g.Continue.AccessToken.Value == "" {
			return invalidf("grant: empty continue token")
		}
		if g.Continue.Wait < 0 {
			return invalidf("grant: negative wait %d", g.Continue.Wait)
		}
	}
	if g.Interact != nil {
		if err := requireURL("grant interact redirect", g.Interact.Redirect); err != nil {
			return err
		}
	}
	return nil
}

type IncomingPaymentRequest struct {
	WalletAddress  string         `json:"walletAddress"`
	IncomingAmount *Amount        `json:"incomingAmount,omitempty"`
	ExpiresAt      string         `json:"expiresAt,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

type IncomingPayment struct {
	ID             string         `json:"id"`
	WalletAddress  string         `json:"walletAddress"`
	IncomingAmount *Amount        `json:"incomingAmount,omitempty"`
	ReceivedAmount *Amount        `json:"receivedAmount,omitempty"`
	Completed      bool           `json:"completed"`
	ExpiresAt      *time.Time     `json:"expiresAt,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      *time.Time     `json:"createdAt,omitempty"`
}

func (p IncomingPayment) Validate() error {
	if err := requireURL("incoming payment id", p.ID); err != nil {
		return err
	}
	if p.WalletAddress == "" {
		return invalidf("incoming payment %s: missing walletAddress", p.ID)
	}
	if p.IncomingAmount != nil {
		if err := p.IncomingAmount.Validate(); err != nil {
			return err
		}
	}
	return nil
}

type QuoteRequest struct {
	WalletAddress string  `json:"walletAddress"`
	Receiver      string  `json:"receiver"`
	Method        string  `json:"method"`
	DebitAmount   *Amount `json:"debitAmount,omitempty"`
	ReceiveAmount *Amount `json:"receiveAmount,omitempty"`
}

type Quote struct {
	ID            string     `json:"id"`
	WalletAddress string     `json:"walletAddress"`
	Receiver      string     `json:"receiver"`
	DebitAmount   Amount     `json:"debitAmount"`
	ReceiveAmount Amount     `json:"receiveAmount"`
	Method        string     `json:"method,omitempty"`
	CreatedAt     *time.Time `json:"createdAt,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
}

func (q Quote) Validate() error {
	if err := requireURL("quote id", q.ID); err != nil {
		return err
	}
	if err := q.DebitAmount.Validate(); err != nil {
		return fmt.Errorf("quote debitAmount: %w", err)
	}
	if err := q.ReceiveAmount.Validate(); err != nil {
		return fmt.Errorf("quote receiveAmount: %w", err)
	}
	return nil
}

type OutgoingPaymentRequest struct {
	WalletAddress string         `json:"walletAddress"`
	QuoteID       string         `json:"quoteId"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

type OutgoingPayment struct {
	ID            string  `json:"id"`
	WalletAddress string  `json:"walletAddress"`
	QuoteID       string  `json:"quoteId"`
	Receiver      string  `json:"receiver,omitempty"`
	DebitAmount   *Amount `json:"debitAmount,omitempty"`
	ReceiveAmount *Amount `json:"receiveAmount,omitempty"`
	SentAmount    *Amount `json:"sentAmount,omitempty"`
	Failed        bool    `json:"failed,omitempty"`
	State         string  `json:"state,omitempty"`
}

func (p OutgoingPayment) Validate() error {
	if err := requireURL("outgoing payment id", p.ID); err != nil {
		return err
	}
	switch p.State {
	case "", StateFunding, StateSending, StateCompleted, StateFailed:
	default:
		return invalidf("outgoing payment %s: unknown state %q", p.ID, p.State)
	}
	return nil
}

// Status returns the reported state, deriving one for servers that omit it.
func (p OutgoingPayment) Status() string {
	switch {
	case p.State != "":
		return p.State
	case p.Failed:
		return StateFailed
	case p.SentAmount != nil && p.DebitAmount != nil && p.SentAmount.Value == p.DebitAmount.Value:
		return StateCompleted
	default:
		return StateSending
	}
}

func requireURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || raw == "" {
		return invalidf("%s: %q is not a valid URL", field, raw)
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return invalidf("%s: %q is not an absolute http(s) URL", field, raw)
	}
	return nil
}
