// Package memory owns per-session conversation state. Every session id is
// served by exactly one actor goroutine that applies operations in arrival
// order, so reads and writes to one conversation never interleave.
package memory

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/OnslaughtSnail/edgechat/kernel/model"
	"github.com/OnslaughtSnail/edgechat/kernel/promptpipeline"
	"github.com/OnslaughtSnail/edgechat/kernel/session"
)

const (
	DefaultQueueDepth  = 64
	DefaultIdleTimeout = 5 * time.Minute
)

// Config wires a Registry.
type Config struct {
	Store session.Store
	// Mirror receives every new summary. Optional.
	Mirror session.SummaryMirror
	// Summarizer generates summaries. Without one Summarize is a no-op.
	Summarizer   model.Gateway
	SummaryModel string
	Templates    promptpipeline.Templates

	QueueDepth  int
	IdleTimeout time.Duration

	Logger *zap.Logger
	Now    func() time.Time
}

// Registry maps session ids to their actors.
type Registry struct {
	cfg Config
	log *zap.Logger

	mu     sync.Mutex
	actors map[string]*actor
	closed bool
	wg     sync.WaitGroup
}

func NewRegistry(cfg Config) *Registry {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultQueueDepth
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.Templates = cfg.Templates.WithDefaults()
	return &Registry{
		cfg:    cfg,
		log:    cfg.Logger.Named("memory"),
		actors: map[string]*actor{},
	}
}

// Get returns a copy of the session state, creating the session on first
// access.
func (r *Registry) Get(ctx context.Context, sessionID string) (*session.State, error) {
	var out *session.State
	err := r.do(ctx, sessionID, func(ctx context.Context, a *actor) error {
		out = a.state.Clone()
		return nil
	})
	return out, err
}

// Append stores one turn. A zero ts means now. Once the session has started
// the append it completes even if ctx is cancelled, so a caller that sees
// ctx.Err() cannot tell whether the turn was stored.
func (r *Registry) Append(ctx context.Context, sessionID string, role session.Role, content string, ts time.Time) error {
	if !role.Valid() {
		return invalid("role", "must be user or assistant")
	}
	if content == "" {
		return invalid("content", "is required")
	}
	return r.do(ctx, sessionID, func(ctx context.Context, a *actor) error {
		return a.append(ctx, session.Turn{Role: role, Content: content, Timestamp: ts})
	})
}

// Context returns the bounded window for the next prompt. maxTokens <= 0
// selects session.DefaultContextTokens.
func (r *Registry) Context(ctx context.Context, sessionID string, maxTokens int) (session.Window, error) {
	var out session.Window
	err := r.do(ctx, sessionID, func(ctx context.Context, a *actor) error {
		out = session.BuildWindow(a.state, maxTokens)
		return nil
	})
	return out, err
}

// Clear resets turns and summary. The session itself survives.
func (r *Registry) Clear(ctx context.Context, sessionID string) error {
	return r.do(ctx, sessionID, func(ctx context.Context, a *actor) error {
		return a.clear(ctx)
	})
}

// Summarize regenerates the session summary. Generation and mirroring
// failures are logged and leave the previous summary in place; only
// failures to schedule the operation are returned.
func (r *Registry) Summarize(ctx context.Context, sessionID string) error {
	return r.do(ctx, sessionID, func(ctx context.Context, a *actor) error {
		a.summarize(ctx)
		return nil
	})
}

// Close stops accepting operations, lets actors drain what is queued and
// waits for them to exit or for ctx to expire.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		for id, a := range r.actors {
			close(a.mailbox)
			delete(r.actors, id)
		}
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active reports the number of live actors.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.actors)
}

func (r *Registry) do(ctx context.Context, sessionID string, fn func(context.Context, *actor) error) error {
	if err := session.ValidateID(sessionID); err != nil {
		return invalid("sessionId", err.Error())
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	req := &op{ctx: ctx, fn: fn, done: make(chan error, 1)}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	a, ok := r.actors[sessionID]
	if !ok {
		a = newActor(r, sessionID)
		r.actors[sessionID] = a
		r.wg.Add(1)
		go a.run()
	}
	select {
	case a.mailbox <- req:
	default:
		r.mu.Unlock()
		return &OverloadedError{SessionID: sessionID, Depth: cap(a.mailbox)}
	}
	r.mu.Unlock()

	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// retire removes a from the registry if nothing is queued for it. Enqueue
// holds the same lock, so once retire succeeds no op can reach a.
func (r *Registry) retire(a *actor) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || len(a.mailbox) > 0 {
		return false
	}
	if r.actors[a.id] == a {
		delete(r.actors, a.id)
	}
	return true
}
