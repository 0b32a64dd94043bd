package httpclient

import (
	"context"
	"net/http"
	"time"
)

// ClientType selects the request-header profile for outbound requests.
type ClientType string

const (
	// BrowserClient uses browser-like headers. Many podcast hosts and feed
	// CDNs answer 403/406 to Go's default User-Agent but accept a browser one.
	BrowserClient ClientType = "browser"

	// PlainClient uses Go's default headers. Some CDN fronts block
	// browser-like User-Agents from non-browser TLS stacks but allow
	// simple tools.
	PlainClient ClientType = "plain"
)

// HTTPClient wraps an http.Client with a header profile and a request timeout.
type HTTPClient struct {
	client     *http.Client
	clientType ClientType
}

// NewClient creates a new HTTP client with the specified header profile.
// A zero timeout means requests are bounded only by their context.
func NewClient(clientType ClientType, timeout time.Duration) *HTTPClient {
	client := &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// Audio enclosures commonly sit behind tracking redirect chains.
			if len(via) >= 10 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}

	return &HTTPClient{
		client:     client,
		clientType: clientType,
	}
}

// Do executes an HTTP request with the headers for the client type.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	c.setHeaders(req)
	return c.client.Do(req)
}

// Get is a convenience method for context-bound GET requests.
func (c *HTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// setHeaders sets the appropriate headers based on client type.
func (c *HTTPClient) setHeaders(req *http.Request) {
	switch c.clientType {
	case BrowserClient:
		req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
		req.Header.Set("Accept", "*/*")
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
		req.Header.Set("Connection", "keep-alive")

	case PlainClient:
		req.Header.Set("User-Agent", "curl/8.7.1")

	default:
		// Go's default User-Agent.
	}
}
