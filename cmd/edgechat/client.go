package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/OnslaughtSnail/edgechat/kernel/relay"
)

const defaultServerURL = "http://127.0.0.1:8787"

// apiClient talks to a running edgechat server.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		base = defaultServerURL
	}
	return &apiClient{base: base, http: &http.Client{}}
}

type chatBody struct {
	SessionID string    `json:"sessionId"`
	Message   string    `json:"message"`
	ModelID   string    `json:"modelId,omitempty"`
	Meta      *chatMeta `json:"meta,omitempty"`
}

type chatMeta struct {
	ClientTS int64 `json:"clientTs"`
}

// chat posts one message and calls fn for every streamed event.
func (c *apiClient) chat(ctx context.Context, sessionID, message, modelID string, fn func(relay.ClientEvent) error) error {
	raw, err := json.Marshal(chatBody{
		SessionID: sessionID,
		Message:   message,
		ModelID:   modelID,
		Meta:      &chatMeta{ClientTS: time.Now().UnixMilli()},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/chat", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	return relay.ReadEvents(resp.Body, fn)
}

// memory returns the raw stored state of a session.
func (c *apiClient) memory(ctx context.Context, sessionID string) (json.RawMessage, error) {
	var out struct {
		Memory json.RawMessage `json:"memory"`
	}
	if err := c.do(ctx, http.MethodGet, sessionID, &out); err != nil {
		return nil, err
	}
	return out.Memory, nil
}

func (c *apiClient) clear(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, sessionID, nil)
}

func (c *apiClient) do(ctx context.Context, method, sessionID string, into any) error {
	target := c.base + "/api/memory?" + url.Values{"sessionId": {sessionID}}.Encode()
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("memory request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	if into == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(into)
}

// responseError extracts the server's error message from a non-200 reply.
func responseError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		Error json.RawMessage `json:"error"`
	}
	msg := strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &body); err == nil && len(body.Error) > 0 {
		var s string
		if json.Unmarshal(body.Error, &s) == nil {
			msg = s
		} else {
			msg = string(body.Error)
		}
	}
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, msg)
}
