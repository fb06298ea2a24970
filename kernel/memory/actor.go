package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/OnslaughtSnail/edgechat/kernel/model"
	"github.com/OnslaughtSnail/edgechat/kernel/promptpipeline"
	"github.com/OnslaughtSnail/edgechat/kernel/session"
)

type op struct {
	ctx  context.Context
	fn   func(context.Context, *actor) error
	done chan error
}

// actor is the single writer for one session id. state is only touched on
// the actor goroutine.
type actor struct {
	id      string
	reg     *Registry
	log     *zap.Logger
	mailbox chan *op
	state   *session.State
}

func newActor(r *Registry, id string) *actor {
	return &actor{
		id:      id,
		reg:     r,
		log:     r.log.With(zap.String("session_id", id)),
		mailbox: make(chan *op, r.cfg.QueueDepth),
	}
}

func (a *actor) run() {
	defer a.reg.wg.Done()
	idle := time.NewTimer(a.reg.cfg.IdleTimeout)
	defer idle.Stop()
	for {
		select {
		case req, ok := <-a.mailbox:
			if !ok {
				return
			}
			a.handle(req)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(a.reg.cfg.IdleTimeout)
		case <-idle.C:
			if a.reg.retire(a) {
				a.log.Debug("actor retired")
				return
			}
			idle.Reset(a.reg.cfg.IdleTimeout)
		}
	}
}

func (a *actor) handle(req *op) {
	// The caller gave up before the op started; skip it so it is never
	// half applied behind the caller's back.
	if err := req.ctx.Err(); err != nil {
		req.done <- err
		return
	}
	// A started op runs to completion; the caller may stop waiting but
	// cannot leave it half applied.
	ctx := context.WithoutCancel(req.ctx)
	if err := a.init(ctx); err != nil {
		req.done <- err
		return
	}
	req.done <- req.fn(ctx, a)
}

// init loads the persisted state once per actor lifetime, writing the
// default state when the session does not exist yet.
func (a *actor) init(ctx context.Context) error {
	if a.state != nil {
		return nil
	}
	state, err := a.reg.cfg.Store.Load(ctx, a.id)
	if errors.Is(err, session.ErrSessionNotFound) {
		state = session.NewState(a.reg.cfg.Now())
		if err := a.reg.cfg.Store.Save(ctx, a.id, state); err != nil {
			return fmt.Errorf("memory: initialize %q: %w", a.id, err)
		}
	} else if err != nil {
		return fmt.Errorf("memory: load %q: %w", a.id, err)
	}
	if state.Turns == nil {
		state.Turns = []session.Turn{}
	}
	a.state = state
	return nil
}

// commit persists next and adopts it only when the save succeeded.
func (a *actor) commit(ctx context.Context, next *session.State) error {
	if err := a.reg.cfg.Store.Save(ctx, a.id, next); err != nil {
		return fmt.Errorf("memory: save %q: %w", a.id, err)
	}
	a.state = next
	return nil
}

func (a *actor) append(ctx context.Context, turn session.Turn) error {
	now := a.reg.cfg.Now()
	if turn.Timestamp.IsZero() {
		turn.Timestamp = now
	}
	next := a.state.Clone()
	next.Append(turn, now)
	return a.commit(ctx, next)
}

func (a *actor) clear(ctx context.Context) error {
	next := a.state.Clone()
	next.Reset(a.reg.cfg.Now())
	return a.commit(ctx, next)
}

func (a *actor) summarize(ctx context.Context) {
	if len(a.state.Turns) == 0 {
		return
	}
	gw := a.reg.cfg.Summarizer
	if gw == nil {
		a.log.Debug("summarize skipped: no summarizer configured")
		return
	}
	resp, err := gw.Generate(ctx, &model.Request{
		Model:    a.reg.cfg.SummaryModel,
		Messages: promptpipeline.SummaryRequest(a.reg.cfg.Templates.Summary, a.state.Turns),
	})
	if err != nil {
		a.log.Warn("summarize failed", zap.Error(err))
		return
	}
	summary := ""
	if resp != nil {
		summary = strings.TrimSpace(resp.Text)
	}
	if summary == "" {
		a.log.Warn("summarize failed", zap.Error(model.ErrEmptyResponse))
		return
	}

	next := a.state.Clone()
	next.Summary = summary
	next.LastUpdated = a.reg.cfg.Now()
	if err := a.commit(ctx, next); err != nil {
		a.log.Warn("summarize failed", zap.Error(err))
		return
	}
	if mirror := a.reg.cfg.Mirror; mirror != nil {
		if err := mirror.PutSummary(ctx, a.id, summary); err != nil {
			a.log.Warn("summary mirror failed", zap.Error(err))
		}
	}
}
