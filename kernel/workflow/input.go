package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/OnslaughtSnail/edgechat/kernel/session"
)

// ErrInvalidInput classifies ingest failures.
var ErrInvalidInput = errors.New("workflow: invalid input")

// Input is the pipeline request body.
type Input struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	ModelID   string `json:"modelId,omitempty"`
	Meta      *Meta  `json:"meta,omitempty"`
}

type Meta struct {
	ClientTS int64 `json:"clientTs,omitempty"`
}

// Validate accepts inputs whose session id can address a stored session.
func (in Input) Validate() error {
	var problems []string
	if err := session.ValidateID(in.SessionID); err != nil {
		problems = append(problems, "sessionId: "+strings.TrimPrefix(err.Error(), "session: "))
	}
	if in.Message == "" {
		problems = append(problems, "message: required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}

// Record is one line of the pipeline's NDJSON output.
type Record struct {
	Delta     string `json:"delta,omitempty"`
	Done      bool   `json:"done,omitempty"`
	SessionID string `json:"sessionId"`
}
