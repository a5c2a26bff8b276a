package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/pkg/errors"
)

// Response is the raw result of one ingestion POST. The caller classifies
// the status code; every HTTP status, including 4xx and 5xx, arrives here
// rather than as an error.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// IsSuccess reports whether the response status is 2xx.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode <= 299
}

// Client posts JSON payloads to the ingestion endpoint. It performs no
// retries of its own and returns an error only for connection-level failures
// (DNS, refused, TLS, timeout); the per-call timeout comes from the wrapped
// http.Client. Safe for concurrent use.
type Client struct {
	http      *http.Client
	userAgent string
}

// NewClient wraps httpClient for ingestion POSTs. The User-Agent is sent on
// every request when non-empty.
func NewClient(httpClient *http.Client, userAgent string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		http:      httpClient,
		userAgent: userAgent,
	}
}

// PostJSON sends body to url with Content-Type: application/json plus any
// extra headers. The response body is read fully and the connection released
// before returning, so the transport can reuse it.
func (c *Client) PostJSON(ctx context.Context, url string, body []byte, headers map[string]string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "transport: building request")
	}

	req.Header.Set("Content-Type", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "transport: posting batch")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		// The connection died mid-response; the batch outcome is unknown,
		// so surface it like any other connection-level failure.
		return nil, errors.Wrap(err, "transport: reading response body")
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
	}, nil
}
