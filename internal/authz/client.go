package authz

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Client performs authorization checks.
type Client interface {
	Check(ctx context.Context, user, object, relation string) (bool, error)
}

// Tuple is a single relationship between a user and an object.
type Tuple struct {
	User     string `json:"user"`
	Relation string `json:"relation"`
	Object   string `json:"object"`
}

// OpenFGAClient implements Client against an OpenFGA HTTP API.
type OpenFGAClient struct {
	apiURL  string
	storeID string
	http    *http.Client
}

// New returns an OpenFGA client, or a NoopClient when apiURL or storeID is
// empty.
func New(apiURL, storeID string) Client {
	if apiURL == "" || storeID == "" {
		return NoopClient{}
	}
	return NewOpenFGAClient(apiURL, storeID)
}

func NewOpenFGAClient(apiURL, storeID string) *OpenFGAClient {
	return &OpenFGAClient{
		apiURL:  strings.TrimRight(apiURL, "/"),
		storeID: storeID,
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   3 * time.Second,
		},
	}
}

// Check calls OpenFGA /check. Returns (false, nil) on a definitive deny.
func (c *OpenFGAClient) Check(ctx context.Context, user, object, relation string) (bool, error) {
	var out struct {
		Allowed bool `json:"allowed"`
	}
	body := map[string]any{"tuple_key": Tuple{User: user, Relation: relation, Object: object}}
	if err := c.post(ctx, "check", body, &out); err != nil {
		return false, err
	}
	return out.Allowed, nil
}

// Write adds relationship tuples.
func (c *OpenFGAClient) Write(ctx context.Context, tuples ...Tuple) error {
	if len(tuples) == 0 {
		return nil
	}
	body := map[string]any{"writes": map[string]any{"tuple_keys": tuples}}
	return c.post(ctx, "write", body, nil)
}

func (c *OpenFGAClient) post(ctx context.Context, op string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode openfga %s: %w", op, err)
	}
	url := fmt.Sprintf("%s/stores/%s/%s", c.apiURL, c.storeID, op)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("openfga %s: %w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("openfga %s status %d", op, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode openfga %s: %w", op, err)
	}
	return nil
}

// NoopClient allows everything. Useful for local dev without OpenFGA.
type NoopClient struct{}

func (NoopClient) Check(context.Context, string, string, string) (bool, error) {
	return true, nil
}
