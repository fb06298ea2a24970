package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/OnslaughtSnail/edgechat/kernel/session"
)

// Intent names accepted by Dispatch.
const (
	IntentGet       = "get"
	IntentAppend    = "append"
	IntentContext   = "context"
	IntentClear     = "clear"
	IntentSummarize = "summarize"
)

// IntentRequest is the message-shaped form of a session operation.
type IntentRequest struct {
	Intent  string          `json:"intent"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type appendPayload struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	TS      int64  `json:"ts,omitempty"`
}

type contextPayload struct {
	MaxTokens int `json:"maxTokens"`
}

// OK is the reply for operations that return no data.
type OK struct {
	OK bool `json:"ok"`
}

// Dispatch runs the operation named by req and returns its JSON-ready
// result.
func (r *Registry) Dispatch(ctx context.Context, sessionID string, req IntentRequest) (any, error) {
	switch strings.TrimSpace(req.Intent) {
	case IntentGet:
		return r.Get(ctx, sessionID)
	case IntentAppend:
		var p appendPayload
		if err := decodePayload(req.Payload, &p); err != nil {
			return nil, err
		}
		if p.Role == "" || p.Content == "" {
			return nil, &ValidationError{Fields: map[string]string{"payload": "invalid turn payload"}}
		}
		var ts time.Time
		if p.TS > 0 {
			ts = time.UnixMilli(p.TS)
		}
		if err := r.Append(ctx, sessionID, session.Role(p.Role), p.Content, ts); err != nil {
			return nil, err
		}
		return OK{OK: true}, nil
	case IntentContext:
		var p contextPayload
		if err := decodePayload(req.Payload, &p); err != nil {
			return nil, err
		}
		return r.Context(ctx, sessionID, p.MaxTokens)
	case IntentClear:
		if err := r.Clear(ctx, sessionID); err != nil {
			return nil, err
		}
		return OK{OK: true}, nil
	case IntentSummarize:
		if err := r.Summarize(ctx, sessionID); err != nil {
			return nil, err
		}
		return OK{OK: true}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownIntent, req.Intent)
	}
}

func decodePayload(raw json.RawMessage, into any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return &ValidationError{Fields: map[string]string{"payload": err.Error()}}
	}
	return nil
}
