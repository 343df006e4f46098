package payment

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

// IngressClient calls the Restate handlers through the ingress endpoint. It
// offers the same Initiate and Complete calls as the Orchestrator.
type IngressClient struct {
	baseURL string
	http    *http.Client
}

func NewIngressClient(baseURL string) *IngressClient {
	return &IngressClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   60 * time.Second,
		},
	}
}

func (c *IngressClient) Initiate(ctx context.Context, req InitiateRequest) (*Outcome, error) {
	in := InitiateInput{Amount: json.Number(req.Amount.String()), Description: req.Description}
	return c.call(ctx, fmt.Sprintf("%s/%s/Initiate", c.baseURL, ServiceName), in)
}

func (c *IngressClient) Complete(ctx context.Context, req CompleteRequest) (*Outcome, error) {
	key := ContinuationKey(req.ContinueURI, req.ContinueToken)
	in := CompleteInput{
		QuoteID:       req.QuoteID,
		ContinueURI:   req.ContinueURI,
		ContinueToken: req.ContinueToken,
		InteractRef:   req.InteractRef,
	}
	return c.call(ctx, fmt.Sprintf("%s/%s/%s/Complete", c.baseURL, ObjectName, key), in)
}

func (c *IngressClient) call(ctx context.Context, url string, in any) (*Outcome, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode ingress request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build ingress request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call restate ingress: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read ingress response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("restate ingress %s returned %d: %s", url, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out Outcome
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode ingress response: %w", err)
	}
	if !out.Success {
		return &out, fmt.Errorf("payment failed: %s", out.Error)
	}
	return &out, nil
}
