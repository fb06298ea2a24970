package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/OnslaughtSnail/edgechat/kernel/session"
	"github.com/OnslaughtSnail/edgechat/kernel/workflow"
)

// ChatRequest is one user message for a session.
type ChatRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	ModelID   string `json:"modelId,omitempty"`
	Meta      *Meta  `json:"meta,omitempty"`
}

type Meta struct {
	ClientTS int64 `json:"clientTs,omitempty"`
}

// ValidationError lists offending fields and why they were rejected.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "chat: invalid request"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "chat: invalid request: " + strings.Join(parts, "; ")
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// Validate checks the shape of r.
func (r ChatRequest) Validate() error {
	fields := map[string]string{}
	switch {
	case strings.TrimSpace(r.SessionID) == "":
		fields["sessionId"] = "must contain at least 1 non-blank character"
	case session.ValidateID(r.SessionID) != nil:
		fields["sessionId"] = strings.TrimPrefix(session.ValidateID(r.SessionID).Error(), "session: ")
	}
	if r.Message == "" {
		fields["message"] = "must contain at least 1 character"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// DecodeRequest parses a request body. Malformed JSON and wrongly typed
// fields are reported as a *ValidationError.
func DecodeRequest(r io.Reader) (ChatRequest, error) {
	var req ChatRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return req, &ValidationError{Fields: map[string]string{
				typeErr.Field: fmt.Sprintf("expected %s, received %s", typeErr.Type, typeErr.Value),
			}}
		}
		return req, &ValidationError{Fields: map[string]string{"body": "invalid JSON"}}
	}
	return req, nil
}

func (r ChatRequest) input() workflow.Input {
	in := workflow.Input{SessionID: r.SessionID, Message: r.Message, ModelID: r.ModelID}
	if r.Meta != nil {
		in.Meta = &workflow.Meta{ClientTS: r.Meta.ClientTS}
	}
	return in
}

// ConfigError reports a deployment that cannot serve the request at all.
// It is never retried.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "chat: configuration error: " + e.Reason
}

func IsConfigError(err error) bool {
	var target *ConfigError
	return errors.As(err, &target)
}
