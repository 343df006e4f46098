package openpayments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxResponseBytes = 1 << 20

// Client talks to Open Payments authorization and resource servers on behalf
// of a single client identity. It is safe for concurrent use.
type Client struct {
	identity   *Identity
	httpClient *http.Client
	timeout    time.Duration
	now        func() time.Time
}

type Option func(*Client)

// WithHTTPClient replaces the default instrumented HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithTimeout sets the per-request timeout. It applies to whichever HTTP
// client the Client ends up with; a client passed to WithHTTPClient is copied,
// not modified.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func withClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func NewClient(identity *Identity, opts ...Option) *Client {
	c := &Client{
		identity: identity,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   15 * time.Second,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		h := *c.httpClient
		h.Timeout = c.timeout
		c.httpClient = &h
	}
	return c
}

// ClientWalletAddress is the wallet address presented as the GNAP client.
func (c *Client) ClientWalletAddress() string {
	return c.identity.WalletAddress
}

func (c *Client) GetWalletAddress(ctx context.Context, id string) (*WalletAddress, error) {
	var out WalletAddress
	if err := c.do(ctx, http.MethodGet, NormalizeWalletAddress(id), "", nil, &out); err != nil {
		return nil, err
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RequestGrant(ctx context.Context, authServer string, req GrantRequest) (*GrantResponse, error) {
	if req.Client == "" {
		req.Client = c.identity.WalletAddress
	}
	var out GrantResponse
	if err := c.do(ctx, http.MethodPost, authServer, "", req, &out); err != nil {
		return nil, err
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ContinueGrant(ctx context.Context, uri, token string, req ContinueRequest) (*GrantResponse, error) {
	var body any
	if req.InteractRef != "" {
		body = req
	}
	var out GrantResponse
	if err := c.do(ctx, http.MethodPost, uri, token, body, &out); err != nil {
		return nil, err
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateIncomingPayment(ctx context.Context, resourceServer, token string, req IncomingPaymentRequest) (*IncomingPayment, error) {
	var out IncomingPayment
	if err := c.do(ctx, http.MethodPost, resourceURL(resourceServer, "incoming-payments"), token, req, &out); err != nil {
		return nil, err
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateQuote(ctx context.Context, resourceServer, token string, req QuoteRequest) (*Quote, error) {
	var out Quote
	if err := c.do(ctx, http.MethodPost, resourceURL(resourceServer, "quotes"), token, req, &out); err != nil {
		return nil, err
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateOutgoingPayment(ctx context.Context, resourceServer, token string, req OutgoingPaymentRequest) (*OutgoingPayment, error) {
	var out OutgoingPayment
	if err := c.do(ctx, http.MethodPost, resourceURL(resourceServer, "outgoing-payments"), token, req, &out); err != nil {
		return nil, err
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, url, token string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, url, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, url, err)
	}
	req.Header.Set("Accept", "application/json")
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "GNAP "+token)
	}
	signRequest(req, body, c.identity, c.now())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read %s %s: %w", method, url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseError(method, url, resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return invalidf("decode %s %s: %v", method, url, err)
	}
	return nil
}

func resourceURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + path
}
