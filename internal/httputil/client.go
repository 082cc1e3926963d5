package httputil

import (
	"context"
	"crypto/tls"
	"fmt"
	"math"
	"net/http"
	"time"
)

// DefaultTransportWithMinTLS12 returns an *http.Transport pinned to TLS 1.2
// as the floor, for every outbound call this daemon makes to a collaborator
// (messaging, payments, banking, trading, the LLM backend, Slack).
func DefaultTransportWithMinTLS12() *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if transport.TLSClientConfig == nil {
		transport.TLSClientConfig = &tls.Config{}
	}
	transport.TLSClientConfig.MinVersion = tls.VersionTLS12
	return transport
}

// RetryConfig controls RetryingClient's backoff.
type RetryConfig struct {
	MaxAttempts int           // default 3
	BaseDelay   time.Duration // default 200ms, doubled per attempt
	Timeout     time.Duration // per-request timeout, default 10s
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 200 * time.Millisecond
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	return c
}

// RetryingClient wraps an *http.Client with exponential backoff over
// transient failures (network errors and 5xx responses), for the
// collaborator calls spec.md's transient-dependency error category covers.
type RetryingClient struct {
	client *http.Client
	cfg    RetryConfig
}

// NewRetryingClient constructs a RetryingClient using DefaultTransportWithMinTLS12.
func NewRetryingClient(cfg RetryConfig) *RetryingClient {
	cfg = cfg.withDefaults()
	return &RetryingClient{
		client: &http.Client{Transport: DefaultTransportWithMinTLS12(), Timeout: cfg.Timeout},
		cfg:    cfg,
	}
}

// Do executes req, retrying on network errors and 5xx status codes up to
// MaxAttempts times with exponential backoff. The final response (success
// or not) is returned if all attempts are exhausted without a non-retryable
// outcome.
func (c *RetryingClient) Do(req *http.Request) (*http.Response, error) {
	var lastErr error
	var lastResp *http.Response

	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(c.cfg.BaseDelay) * math.Pow(2, float64(attempt-1)))
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(delay):
			}
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode < 500 {
			return resp, nil
		}
		lastResp = resp
		lastErr = fmt.Errorf("httputil: retryable status %d", resp.StatusCode)
	}

	if lastResp != nil {
		return lastResp, nil
	}
	return nil, lastErr
}

// Get is a convenience wrapper around Do for simple GET requests.
func (c *RetryingClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}
