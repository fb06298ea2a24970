package model

import (
	"context"
	"errors"
	"io"
)

// Role identifies message author type.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single role-tagged element of a prompt.
type Message struct {
	Role Role
	Text string
}

// Request is a provider-agnostic generation request.
type Request struct {
	// Model overrides the provider default when non-empty.
	Model           string
	Messages        []Message
	MaxOutputTokens int
}

// Usage reports model token usage (best-effort).
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is a complete, non-streamed generation result.
type Response struct {
	Text     string
	Model    string
	Provider string
	Usage    Usage
}

// StreamChunk is one record of a streaming body. Streaming bodies are
// newline-delimited JSON, one chunk per line.
type StreamChunk struct {
	Delta string `json:"delta,omitempty"`
	Done  bool   `json:"done,omitempty"`
}

// Gateway executes a language model over a list of role-tagged messages.
type Gateway interface {
	Name() string
	Generate(context.Context, *Request) (*Response, error)
}

// StreamGateway is implemented by gateways that can stream a response as a
// newline-delimited JSON body of StreamChunk records. A failure after the
// body was returned surfaces as a read error on the body.
type StreamGateway interface {
	Gateway
	GenerateStream(context.Context, *Request) (io.ReadCloser, error)
}

// ErrEmptyResponse is returned when a provider answered without any text.
var ErrEmptyResponse = errors.New("model: empty response")

// SupportsStreaming reports whether g can stream.
func SupportsStreaming(g Gateway) bool {
	_, ok := g.(StreamGateway)
	return ok
}
