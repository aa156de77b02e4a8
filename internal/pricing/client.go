package pricing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/costscope/costscope-agent/pkg/model"
)

// Lookup resolves a unit price from the upstream pricing service.
type Lookup interface {
	FetchPrice(ctx context.Context, region, instanceType, operatingSystem string) (model.Price, error)
}

// Client calls the pricing service over HTTP. Requests carry a bounded
// timeout so a slow pricing backend cannot stall a scrape cycle.
type Client struct {
	httpClient *http.Client
	endpoint   string
}

// NewClient creates a pricing Client for the given endpoint URL.
// An explicit transport is used instead of http.DefaultTransport to avoid
// sharing mutable state with other code in the process.
func NewClient(endpoint string, timeout time.Duration) *Client {
	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: timeout,
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: base,
		},
		endpoint: endpoint,
	}
}

type lookupRequest struct {
	Region          string `json:"region"`
	InstanceType    string `json:"instance_type"`
	OperatingSystem string `json:"operating_system"`
}

type lookupResponse struct {
	CostPerVCPUPerHour *float64 `json:"cost_per_vcpu_per_hour"`
}

// FetchPrice POSTs the price key to the pricing service and decodes the
// per-vCPU hourly price. Non-2xx responses and malformed bodies are errors;
// the caller treats any error as an unknown price.
func (c *Client) FetchPrice(ctx context.Context, region, instanceType, operatingSystem string) (model.Price, error) {
	payload, err := json.Marshal(lookupRequest{
		Region:          region,
		InstanceType:    instanceType,
		OperatingSystem: operatingSystem,
	})
	if err != nil {
		return model.UnknownPrice, fmt.Errorf("pricing: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return model.UnknownPrice, fmt.Errorf("pricing: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.UnknownPrice, fmt.Errorf("pricing: calling %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return model.UnknownPrice, fmt.Errorf("pricing: unexpected status %d from %s", resp.StatusCode, c.endpoint)
	}

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return model.UnknownPrice, fmt.Errorf("pricing: decoding response: %w", err)
	}
	if body.CostPerVCPUPerHour == nil {
		return model.UnknownPrice, fmt.Errorf("pricing: response missing cost_per_vcpu_per_hour")
	}

	return model.KnownPrice(*body.CostPerVCPUPerHour), nil
}
