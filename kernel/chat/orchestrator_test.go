package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OnslaughtSnail/edgechat/kernel/memory"
	"github.com/OnslaughtSnail/edgechat/kernel/model"
	"github.com/OnslaughtSnail/edgechat/kernel/relay"
	"github.com/OnslaughtSnail/edgechat/kernel/session"
	"github.com/OnslaughtSnail/edgechat/kernel/session/inmemory"
	"github.com/OnslaughtSnail/edgechat/kernel/tasks"
	"github.com/OnslaughtSnail/edgechat/kernel/workflow"
)

type primaryFunc func(ctx context.Context, in workflow.Input) (io.ReadCloser, error)

func (f primaryFunc) Start(ctx context.Context, in workflow.Input) (io.ReadCloser, error) {
	return f(ctx, in)
}

func failingPrimary() Primary {
	return primaryFunc(func(context.Context, workflow.Input) (io.ReadCloser, error) {
		return nil, &workflow.StatusError{StatusCode: 500}
	})
}

type recordingMemory struct {
	mu      sync.Mutex
	window  session.Window
	ops     []string
	appends []session.Turn
}

func (m *recordingMemory) Context(context.Context, string, int) (session.Window, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "context")
	return m.window, nil
}

func (m *recordingMemory) Append(_ context.Context, _ string, role session.Role, content string, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "append:"+string(role))
	m.appends = append(m.appends, session.Turn{Role: role, Content: content, Timestamp: ts})
	return nil
}

func (m *recordingMemory) Summarize(context.Context, string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "summarize")
	return nil
}

type plainGateway struct{}

func (plainGateway) Name() string { return "plain" }
func (plainGateway) Generate(context.Context, *model.Request) (*model.Response, error) {
	return &model.Response{Text: "unused"}, nil
}

type streamGateway struct {
	plainGateway
	body    string
	openErr error
	readErr error
	reqs    []*model.Request
}

func (g *streamGateway) GenerateStream(_ context.Context, req *model.Request) (io.ReadCloser, error) {
	g.reqs = append(g.reqs, req)
	if g.openErr != nil {
		return nil, g.openErr
	}
	var r io.Reader = strings.NewReader(g.body)
	if g.readErr != nil {
		r = io.MultiReader(r, &errReader{err: g.readErr})
	}
	return io.NopCloser(r), nil
}

type errReader struct{ err error }

func (r *errReader) Read([]byte) (int, error) { return 0, r.err }

type eventLog struct {
	events []relay.Event
}

func (l *eventLog) Emit(ev relay.Event) error {
	l.events = append(l.events, ev)
	return nil
}

func (l *eventLog) names() []string {
	out := make([]string, 0, len(l.events))
	for _, ev := range l.events {
		out = append(out, ev.Name)
	}
	return out
}

func newOrchestrator(t *testing.T, primary Primary, mem *recordingMemory, gw model.Gateway) (*Orchestrator, *tasks.Group) {
	t.Helper()
	group := tasks.New(nil, time.Second)
	t.Cleanup(func() { _, _ = group.Shutdown(context.Background()) })
	return &Orchestrator{
		Primary:      primary,
		Memory:       mem,
		Gateway:      gw,
		DefaultModel: "fallback-model",
		Tasks:        group,
		Now:          func() time.Time { return time.UnixMilli(1_700_000_000_000) },
	}, group
}

func TestHandle_PrimarySuccess(t *testing.T) {
	var got workflow.Input
	primary := primaryFunc(func(_ context.Context, in workflow.Input) (io.ReadCloser, error) {
		got = in
		return io.NopCloser(strings.NewReader("{\"delta\":\"Hi\",\"sessionId\":\"s1\"}\n{\"done\":true,\"sessionId\":\"s1\"}\n")), nil
	})
	gw := &streamGateway{}
	mem := &recordingMemory{}
	o, group := newOrchestrator(t, primary, mem, gw)

	sink := &eventLog{}
	require.NoError(t, o.Handle(context.Background(), ChatRequest{SessionID: "s1", Message: "hi", ModelID: "m"}, sink))
	group.Wait()

	assert.Equal(t, []string{"ready", "delta", "delta", "done"}, sink.names())
	assert.Equal(t, workflow.Input{SessionID: "s1", Message: "hi", ModelID: "m"}, got)
	assert.Empty(t, gw.reqs, "fallback is not used when the primary starts")
	assert.Empty(t, mem.ops, "the primary pipeline owns persistence")
}

func TestHandle_FallbackWhenPrimaryFails(t *testing.T) {
	mem := &recordingMemory{window: session.Window{Summary: "- caching"}}
	gw := &streamGateway{body: "{\"delta\":\"Hel\"}\n{\"delta\":\"lo\"}\n{\"done\":true}\n"}
	o, group := newOrchestrator(t, failingPrimary(), mem, gw)

	sink := &eventLog{}
	require.NoError(t, o.Handle(context.Background(), ChatRequest{SessionID: "s1", Message: "hi"}, sink))
	group.Wait()

	require.Equal(t, []string{"ready", "delta", "delta", "delta", "done"}, sink.names())
	assert.Equal(t, relay.Delta{Delta: "Hel", SessionID: "s1"}, sink.events[1].Data)
	assert.Equal(t, relay.Delta{Delta: "lo", SessionID: "s1"}, sink.events[2].Data)

	require.Len(t, gw.reqs, 1)
	req := gw.reqs[0]
	assert.Equal(t, "fallback-model", req.Model)
	assert.Contains(t, req.Messages[2].Text, "Conversation summary: - caching")
	assert.Equal(t, "hi", req.Messages[len(req.Messages)-1].Text)

	assert.Equal(t, []string{"context", "append:user", "append:assistant", "summarize"}, mem.ops)
	assert.Equal(t, "Hello", mem.appends[1].Content)
	assert.Equal(t, time.Millisecond, mem.appends[1].Timestamp.Sub(mem.appends[0].Timestamp))
}

func TestHandle_NoPrimaryConfiguredUsesFallback(t *testing.T) {
	gw := &streamGateway{body: "{\"delta\":\"x\"}\n"}
	o, group := newOrchestrator(t, nil, &recordingMemory{}, gw)
	sink := &eventLog{}
	require.NoError(t, o.Handle(context.Background(), ChatRequest{SessionID: "s", Message: "hi"}, sink))
	group.Wait()
	assert.Equal(t, []string{"ready", "delta", "done"}, sink.names())
}

func TestHandle_NonStreamingFallbackIsConfigError(t *testing.T) {
	o, _ := newOrchestrator(t, failingPrimary(), &recordingMemory{}, plainGateway{})
	sink := &eventLog{}
	err := o.Handle(context.Background(), ChatRequest{SessionID: "s", Message: "hi"}, sink)
	require.True(t, IsConfigError(err), "got %v", err)
	assert.Empty(t, sink.events)
}

func TestHandle_FallbackOpenFailureWritesNothing(t *testing.T) {
	gw := &streamGateway{openErr: errors.New("provider 503")}
	o, _ := newOrchestrator(t, failingPrimary(), &recordingMemory{}, gw)
	sink := &eventLog{}
	err := o.Handle(context.Background(), ChatRequest{SessionID: "s", Message: "hi"}, sink)
	require.Error(t, err)
	assert.False(t, IsConfigError(err))
	assert.Empty(t, sink.events)
}

func TestHandle_BrokenFallbackStreamPersistsNothing(t *testing.T) {
	mem := &recordingMemory{}
	gw := &streamGateway{body: "{\"delta\":\"par\"}\n", readErr: errors.New("reset by peer")}
	o, group := newOrchestrator(t, failingPrimary(), mem, gw)
	sink := &eventLog{}
	require.NoError(t, o.Handle(context.Background(), ChatRequest{SessionID: "s", Message: "hi"}, sink))
	group.Wait()

	assert.Equal(t, []string{"ready", "delta", "error"}, sink.names())
	assert.Equal(t, relay.ErrorData{Message: "reset by peer"}, sink.events[2].Data)
	assert.Equal(t, []string{"context"}, mem.ops)
}

func TestHandle_ValidatesRequest(t *testing.T) {
	o, _ := newOrchestrator(t, failingPrimary(), &recordingMemory{}, &streamGateway{})
	err := o.Handle(context.Background(), ChatRequest{}, &eventLog{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "sessionId")
	assert.Contains(t, verr.Fields, "message")
}

func TestHandle_RejectsUnaddressableSessionIDs(t *testing.T) {
	for name, id := range map[string]string{
		"empty":    "",
		"blank":    "   ",
		"too long": strings.Repeat("a", 129),
	} {
		t.Run(name, func(t *testing.T) {
			started := false
			primary := primaryFunc(func(context.Context, workflow.Input) (io.ReadCloser, error) {
				started = true
				return nil, errors.New("unreachable")
			})
			gw := &streamGateway{body: "{\"done\":true}\n"}
			o, _ := newOrchestrator(t, primary, &recordingMemory{}, gw)

			sink := &eventLog{}
			err := o.Handle(context.Background(), ChatRequest{SessionID: id, Message: "hi"}, sink)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, "sessionId")
			assert.False(t, started)
			assert.Empty(t, gw.reqs)
			assert.Empty(t, sink.events)
		})
	}
}

func TestHandle_PrimaryInputRejectionIsNotRetried(t *testing.T) {
	for name, primaryErr := range map[string]error{
		"in process": &workflow.StepError{Step: workflow.StepIngestInput, Err: fmt.Errorf("%w: message: required", workflow.ErrInvalidInput)},
		"remote":     &workflow.StatusError{StatusCode: 400, Body: `{"error":"invalid input"}`},
	} {
		t.Run(name, func(t *testing.T) {
			primary := primaryFunc(func(context.Context, workflow.Input) (io.ReadCloser, error) {
				return nil, primaryErr
			})
			gw := &streamGateway{body: "{\"done\":true}\n"}
			o, _ := newOrchestrator(t, primary, &recordingMemory{}, gw)

			sink := &eventLog{}
			err := o.Handle(context.Background(), ChatRequest{SessionID: "s1", Message: "hi"}, sink)
			assert.True(t, IsValidation(err), "got %v", err)
			assert.Empty(t, gw.reqs, "fallback must not run for rejected input")
			assert.Empty(t, sink.events)
		})
	}
}

func TestHandle_LongestValidSessionIDIsPersisted(t *testing.T) {
	reg := memory.NewRegistry(memory.Config{Store: inmemory.New()})
	t.Cleanup(func() { _ = reg.Close(context.Background()) })
	group := tasks.New(nil, time.Second)
	t.Cleanup(func() { _, _ = group.Shutdown(context.Background()) })

	pipeline := &workflow.Pipeline{Memory: reg, Gateway: plainGateway{}, EmitDelay: -1, Tasks: group}
	gw := &streamGateway{}
	o := &Orchestrator{Primary: &workflow.Local{Pipeline: pipeline}, Memory: reg, Gateway: gw, Tasks: group}

	id := strings.Repeat("a", 128)
	sink := &eventLog{}
	require.NoError(t, o.Handle(context.Background(), ChatRequest{SessionID: id, Message: "hi"}, sink))
	group.Wait()

	assert.Equal(t, relay.EventDone, sink.names()[len(sink.events)-1])
	assert.Empty(t, gw.reqs)
	state, err := reg.Get(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, state.Turns, 2)
	assert.Equal(t, "unused", state.Turns[1].Content)
}

func TestDecodeRequest(t *testing.T) {
	req, err := DecodeRequest(strings.NewReader(`{"sessionId":"s","message":"hi","meta":{"clientTs":5}}`))
	require.NoError(t, err)
	assert.Equal(t, int64(5), req.Meta.ClientTS)

	_, err = DecodeRequest(strings.NewReader(`{"sessionId":7}`))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "sessionId")

	_, err = DecodeRequest(strings.NewReader(`{`))
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "body")
}
