// Package chat routes a chat request to the primary pipeline and, when that
// cannot start, to a single streaming fallback, relaying whichever answers
// to the client.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/OnslaughtSnail/edgechat/kernel/model"
	"github.com/OnslaughtSnail/edgechat/kernel/promptpipeline"
	"github.com/OnslaughtSnail/edgechat/kernel/relay"
	"github.com/OnslaughtSnail/edgechat/kernel/session"
	"github.com/OnslaughtSnail/edgechat/kernel/tasks"
	"github.com/OnslaughtSnail/edgechat/kernel/workflow"
)

// Primary starts the primary pipeline and returns its NDJSON body.
type Primary interface {
	Start(ctx context.Context, in workflow.Input) (io.ReadCloser, error)
}

type Orchestrator struct {
	Primary Primary
	Memory  workflow.Memory
	// Gateway serves the fallback path and must implement
	// model.StreamGateway.
	Gateway       model.Gateway
	DefaultModel  string
	Templates     promptpipeline.Templates
	ContextTokens int
	Tasks         *tasks.Group
	Logger        *zap.Logger
	Now           func() time.Time
}

// Handle answers req on sink. Errors returned before the first event leave
// sink untouched; once ready was emitted, failures are reported in-stream
// and Handle returns nil unless the client went away.
func (o *Orchestrator) Handle(ctx context.Context, req ChatRequest, sink relay.Sink) error {
	if err := req.Validate(); err != nil {
		return err
	}
	log := o.logger().With(zap.String("session_id", req.SessionID))

	fallback := false
	var body io.ReadCloser
	var err error
	if o.Primary != nil {
		body, err = o.Primary.Start(ctx, req.input())
	} else {
		err = fmt.Errorf("chat: no primary pipeline configured")
	}
	if err != nil && rejectedInput(err) {
		return &ValidationError{Fields: map[string]string{"body": err.Error()}}
	}
	if err != nil {
		log.Warn("primary pipeline failed, using fallback", zap.Error(err))
		fallback = true
		body, err = o.openFallback(ctx, log, req)
		if err != nil {
			return err
		}
	}
	defer body.Close()

	if err := sink.Emit(relay.Event{Name: relay.EventReady}); err != nil {
		return err
	}
	res, err := relay.Pump(ctx, body, req.SessionID, sink)
	if err != nil {
		return err
	}
	if res.Err != nil {
		log.Warn("stream ended with error", zap.Bool("fallback", fallback), zap.Error(res.Err))
	}
	if fallback && res.Completed {
		o.persist(log, req, res.Text)
	}
	return nil
}

// rejectedInput reports whether the primary pipeline refused the input
// itself rather than failing to run.
func rejectedInput(err error) bool {
	if errors.Is(err, workflow.ErrInvalidInput) {
		return true
	}
	var statusErr *workflow.StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusBadRequest
}

func (o *Orchestrator) openFallback(ctx context.Context, log *zap.Logger, req ChatRequest) (io.ReadCloser, error) {
	stream, ok := o.Gateway.(model.StreamGateway)
	if o.Gateway == nil || !ok {
		return nil, &ConfigError{Reason: "fallback model does not support streaming"}
	}
	window := session.Window{Turns: []session.Turn{}}
	if o.Memory != nil {
		w, err := o.Memory.Context(ctx, req.SessionID, o.ContextTokens)
		if err != nil {
			log.Warn("memory unavailable for fallback", zap.Error(err))
		} else {
			window = w
		}
	}
	modelID := req.ModelID
	if modelID == "" {
		modelID = o.DefaultModel
	}
	body, err := stream.GenerateStream(ctx, &model.Request{
		Model:    modelID,
		Messages: promptpipeline.Assemble(promptpipeline.FromWindow(o.Templates, window, req.Message)),
	})
	if err != nil {
		return nil, fmt.Errorf("chat: fallback stream: %w", err)
	}
	return body, nil
}

// persist records a completed fallback exchange the way the primary
// pipeline does.
func (o *Orchestrator) persist(log *zap.Logger, req ChatRequest, answer string) {
	if o.Memory == nil || o.Tasks == nil {
		return
	}
	ts := time.Now()
	if o.Now != nil {
		ts = o.Now()
	}
	o.Tasks.Go("fallback_update_memory:"+req.SessionID, func(ctx context.Context) error {
		if err := o.Memory.Append(ctx, req.SessionID, session.RoleUser, req.Message, ts); err != nil {
			return err
		}
		if err := o.Memory.Append(ctx, req.SessionID, session.RoleAssistant, answer, ts.Add(time.Millisecond)); err != nil {
			return err
		}
		if err := o.Memory.Summarize(ctx, req.SessionID); err != nil {
			log.Warn("summary trigger failed", zap.Error(err))
		}
		return nil
	})
}

func (o *Orchestrator) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger.Named("chat")
}
