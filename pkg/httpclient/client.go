package httpclient

import (
	"fmt"
	"net/http"
	"time"

	"ragchat/pkg/circuitbreaker"
)

// Options configures the client and its circuit breaker.
type Options struct {
	Timeout          time.Duration
	BreakerEnabled   bool
	FailureThreshold uint32
	SuccessThreshold uint32
	BreakerTimeout   time.Duration
}

// Client wraps the standard http.Client with circuit breaking for calls to
// external dependencies (identity provider, search engine).
type Client struct {
	httpClient *http.Client
	breaker    circuitbreaker.CircuitBreaker
}

// New creates a Client. With the breaker disabled it degrades to a plain
// http.Client with the configured timeout.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	c := &Client{httpClient: &http.Client{Timeout: timeout}}
	if opts.BreakerEnabled {
		c.breaker = circuitbreaker.New(opts.FailureThreshold, opts.SuccessThreshold, opts.BreakerTimeout)
	}
	return c
}

// Do executes the request with circuit breaker protection. Status codes
// >= 500 count as failures toward opening the circuit.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.breaker == nil {
		return c.httpClient.Do(req)
	}

	res, err := c.breaker.Execute(func() (interface{}, error) {
		resp, doErr := c.httpClient.Do(req)
		if doErr != nil {
			return nil, doErr
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			resp.Body.Close()
			return nil, fmt.Errorf("server error: received status code %d", resp.StatusCode)
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*http.Response), nil
}
