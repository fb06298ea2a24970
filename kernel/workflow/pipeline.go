// Package workflow is the primary generation pipeline: load memory, build
// the prompt, generate, persist the exchange in the background and stream
// the answer back as newline-delimited JSON.
package workflow

import (
	"context"
	"encoding/json"
	"io"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/OnslaughtSnail/edgechat/kernel/model"
	"github.com/OnslaughtSnail/edgechat/kernel/promptpipeline"
	"github.com/OnslaughtSnail/edgechat/kernel/session"
	"github.com/OnslaughtSnail/edgechat/kernel/tasks"
)

const DefaultEmitDelay = 5 * time.Millisecond

// Memory is the slice of the session actor the pipeline needs.
type Memory interface {
	Context(ctx context.Context, sessionID string, maxTokens int) (session.Window, error)
	Append(ctx context.Context, sessionID string, role session.Role, content string, ts time.Time) error
	Summarize(ctx context.Context, sessionID string) error
}

// Pipeline runs the chat steps. It holds no per-request state and is safe
// for concurrent use.
type Pipeline struct {
	Memory        Memory
	Gateway       model.Gateway
	DefaultModel  string
	Templates     promptpipeline.Templates
	ContextTokens int
	// EmitDelay paces streamed fragments. Zero selects DefaultEmitDelay,
	// negative disables pacing.
	EmitDelay time.Duration
	Tasks     *tasks.Group
	Logger    *zap.Logger
	Now       func() time.Time
}

// Reply is a generated answer ready to be streamed.
type Reply struct {
	SessionID string
	Text      string
	delay     time.Duration
}

// Prepare runs every step up to and including generation and schedules the
// memory update. Nothing has been written anywhere when it fails.
func (p *Pipeline) Prepare(ctx context.Context, in Input) (*Reply, error) {
	log := p.logger().With(zap.String("session_id", in.SessionID))

	if err := p.step(ctx, log, StepIngestInput, func(context.Context) error {
		return in.Validate()
	}); err != nil {
		return nil, err
	}

	var window session.Window
	if err := p.step(ctx, log, StepLoadMemory, func(ctx context.Context) error {
		var err error
		window, err = p.Memory.Context(ctx, in.SessionID, p.ContextTokens)
		return err
	}); err != nil {
		log.Warn("memory unavailable, continuing without context", zap.Error(err))
		window = session.Window{Turns: []session.Turn{}}
	}

	var prompt []model.Message
	_ = p.step(ctx, log, StepPrepareContext, func(context.Context) error {
		prompt = promptpipeline.Assemble(promptpipeline.FromWindow(p.Templates, window, in.Message))
		return nil
	})

	var answer string
	if err := p.step(ctx, log, StepCallLLM, func(ctx context.Context) error {
		modelID := in.ModelID
		if modelID == "" {
			modelID = p.DefaultModel
		}
		resp, err := p.Gateway.Generate(ctx, &model.Request{Model: modelID, Messages: prompt})
		if err != nil {
			return err
		}
		answer = resp.Text
		return nil
	}); err != nil {
		return nil, err
	}

	p.updateMemory(log, in.SessionID, in.Message, answer)
	return &Reply{SessionID: in.SessionID, Text: answer, delay: p.emitDelay()}, nil
}

// updateMemory persists the exchange off the request path. The user turn is
// stamped ts and the assistant turn ts+1ms so they sort as a pair.
func (p *Pipeline) updateMemory(log *zap.Logger, sessionID, userMessage, answer string) {
	ts := p.now()
	run := func(ctx context.Context) error {
		return p.step(ctx, log, StepUpdateMemory, func(ctx context.Context) error {
			if err := p.Memory.Append(ctx, sessionID, session.RoleUser, userMessage, ts); err != nil {
				return err
			}
			if err := p.Memory.Append(ctx, sessionID, session.RoleAssistant, answer, ts.Add(time.Millisecond)); err != nil {
				return err
			}
			if err := p.Memory.Summarize(ctx, sessionID); err != nil {
				log.Warn("summary trigger failed", zap.Error(err))
			}
			return nil
		})
	}
	if p.Tasks == nil {
		go func() {
			if err := run(context.Background()); err != nil {
				log.Warn("memory update failed", zap.Error(err))
			}
		}()
		return
	}
	p.Tasks.Go(StepUpdateMemory+":"+sessionID, run)
}

// Emit writes the reply as NDJSON records: one per whitespace-preserving
// fragment, then a done record. flush, when non-nil, runs after each line.
func (r *Reply) Emit(ctx context.Context, w io.Writer, flush func()) error {
	enc := json.NewEncoder(w)
	write := func(rec Record) error {
		if err := enc.Encode(rec); err != nil {
			return err
		}
		if flush != nil {
			flush()
		}
		return nil
	}
	var timer *time.Timer
	for _, frag := range Fragments(r.Text) {
		if err := write(Record{Delta: frag, SessionID: r.SessionID}); err != nil {
			return &StepError{Step: StepEmitStream, Err: err}
		}
		if r.delay <= 0 {
			continue
		}
		if timer == nil {
			timer = time.NewTimer(r.delay)
			defer timer.Stop()
		} else {
			timer.Reset(r.delay)
		}
		select {
		case <-ctx.Done():
			return &StepError{Step: StepEmitStream, Err: ctx.Err()}
		case <-timer.C:
		}
	}
	if err := write(Record{Done: true, SessionID: r.SessionID}); err != nil {
		return &StepError{Step: StepEmitStream, Err: err}
	}
	return nil
}

// Fragments splits text into alternating runs of whitespace and
// non-whitespace. Concatenating the fragments yields text.
func Fragments(text string) []string {
	var out []string
	start := 0
	inSpace := false
	for i, r := range text {
		space := unicode.IsSpace(r)
		if i > start && space != inSpace {
			out = append(out, text[start:i])
			start = i
		}
		if i == start {
			inSpace = space
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

func (p *Pipeline) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger.Named("workflow")
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Pipeline) emitDelay() time.Duration {
	if p.EmitDelay < 0 {
		return 0
	}
	if p.EmitDelay == 0 {
		return DefaultEmitDelay
	}
	return p.EmitDelay
}
