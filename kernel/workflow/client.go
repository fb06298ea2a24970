package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// StatusError reports a non-2xx pipeline response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("workflow: responded with %d", e.StatusCode)
	}
	return fmt.Sprintf("workflow: responded with %d: %s", e.StatusCode, e.Body)
}

// Client starts the pipeline on a remote Handler.
type Client struct {
	URL        string
	HTTPClient *http.Client
}

// NewClient bounds connecting and waiting for response headers by timeout.
// Reading the body is bounded only by the caller's context, so long replies
// are never cut off mid-stream.
func NewClient(url string, timeout time.Duration) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if timeout > 0 {
		transport.DialContext = (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext
		transport.TLSHandshakeTimeout = timeout
		transport.ResponseHeaderTimeout = timeout
	}
	return &Client{URL: strings.TrimRight(url, "/"), HTTPClient: &http.Client{Transport: transport}}
}

// Start posts in and returns the NDJSON body. Transport failures and
// non-2xx statuses are errors; the body is only returned on success.
func (c *Client) Start(ctx context.Context, in Input) (io.ReadCloser, error) {
	raw, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")
	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("workflow: request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return resp.Body, nil
}
