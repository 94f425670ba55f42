package types

import (
	"fmt"
	"net/http"
	"time"
)

// DefaultHTTPTimeout bounds every registry API call.
const DefaultHTTPTimeout = 30 * time.Second

// HTTPClientInterface is an abstraction that allows for easier testing by mocking HTTP responses.
type HTTPClientInterface interface {
	Do(req *http.Request) (*http.Response, error)
}

// RealHTTPClient is a concrete implementation of HTTPClientInterface that uses a real http.Client to make requests.
type RealHTTPClient struct {
	Client *http.Client
}

// NewRealHTTPClient creates a RealHTTPClient whose requests time out after timeout.
// A non-positive timeout falls back to DefaultHTTPTimeout.
func NewRealHTTPClient(timeout time.Duration) *RealHTTPClient {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &RealHTTPClient{
		Client: &http.Client{Timeout: timeout},
	}
}

// Do sends an HTTP request using the underlying http.Client and returns the response.
func (c *RealHTTPClient) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to do request to %s: %w", req.URL.Host, err)
	}
	return resp, nil
}
