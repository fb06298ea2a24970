package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/OnslaughtSnail/edgechat/kernel/model"
)

func TestListModelsRequiresRegistration(t *testing.T) {
	factory := NewFactory()
	if got := factory.ListModels(); len(got) != 0 {
		t.Fatalf("expected empty model list, got %v", got)
	}
	if _, err := factory.NewByAlias("openai/gpt-4o-mini"); err == nil {
		t.Fatalf("expected unknown alias error without registration")
	}

	cfg := Config{
		Alias:   "OpenAI/gpt-4o-mini",
		API:     APIOpenAI,
		Model:   "gpt-4o-mini",
		BaseURL: "https://api.openai.com/v1",
		Auth:    AuthConfig{Token: "secret"},
	}
	if err := factory.Register(cfg); err != nil {
		t.Fatalf("register provider config: %v", err)
	}
	list := factory.ListModels()
	if len(list) != 1 || list[0] != "openai/gpt-4o-mini" {
		t.Fatalf("unexpected list models: %v", list)
	}
	gw, err := factory.NewByAlias("openai/gpt-4o-mini")
	if err != nil {
		t.Fatalf("new by alias: %v", err)
	}
	if !model.SupportsStreaming(gw) {
		t.Fatalf("expected openai gateway to support streaming")
	}
}

func TestRegisterRejectsUnsupportedAPI(t *testing.T) {
	factory := NewFactory()
	if err := factory.Register(Config{Alias: "x", API: "carrier-pigeon", Model: "m"}); err == nil {
		t.Fatal("expected unsupported api error")
	}
	if err := factory.Register(Config{Alias: "x", API: APIOpenAI}); err == nil {
		t.Fatal("expected missing model error")
	}
}

func TestResolveTokenFromEnv(t *testing.T) {
	t.Setenv("EDGECHAT_TEST_TOKEN", "from-env")
	token, err := resolveToken(AuthConfig{TokenEnv: "EDGECHAT_TEST_TOKEN"})
	if err != nil {
		t.Fatalf("resolve token: %v", err)
	}
	if token != "from-env" {
		t.Fatalf("expected token from env, got %q", token)
	}
	if _, err := resolveToken(AuthConfig{TokenEnv: "EDGECHAT_TEST_TOKEN_MISSING"}); err == nil {
		t.Fatal("expected error for empty env token")
	}
}

func TestOpenAICompatGenerate(t *testing.T) {
	var got openAICompatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer token" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = fmt.Fprint(w, `{"model":"override","choices":[{"message":{"role":"assistant","content":"hello there"}}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`)
	}))
	defer server.Close()

	llm := newOpenAICompat(Config{Provider: "openai", Model: "default-model", BaseURL: server.URL, Timeout: 2 * time.Second}, "token")
	resp, err := llm.Generate(context.Background(), &model.Request{
		Model:    "override",
		Messages: []model.Message{{Role: model.RoleSystem, Text: "sys"}, {Role: model.RoleUser, Text: "hi"}},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Text != "hello there" || resp.Usage.TotalTokens != 5 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if got.Model != "override" || got.Stream {
		t.Fatalf("unexpected request payload: %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "hi" {
		t.Fatalf("unexpected request messages: %+v", got.Messages)
	}
}

func TestOpenAICompatGenerate_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	llm := newOpenAICompat(Config{Model: "m", BaseURL: server.URL}, "token")
	_, err := llm.Generate(context.Background(), &model.Request{Messages: []model.Message{{Role: model.RoleUser, Text: "hi"}}})
	if err == nil {
		t.Fatal("expected status error")
	}
	if StatusCode(err) != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d (%v)", StatusCode(err), err)
	}
	if !strings.Contains(err.Error(), "overloaded") {
		t.Fatalf("expected body excerpt in error, got %v", err)
	}
}

func TestOpenAICompatGenerateStream_EmitsNDJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n\n")
		_, _ = fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"hello\"}}]}\n\n")
		_, _ = fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\" world\"}}]}\n\n")
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	llm := newOpenAICompat(Config{Model: "m", BaseURL: server.URL, Timeout: 2 * time.Second}, "token")
	body, err := llm.GenerateStream(context.Background(), &model.Request{Messages: []model.Message{{Role: model.RoleUser, Text: "hi"}}})
	if err != nil {
		t.Fatalf("generate stream: %v", err)
	}
	defer body.Close()
	raw, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	want := "{\"delta\":\"hello\"}\n{\"delta\":\" world\"}\n{\"done\":true}\n"
	if string(raw) != want {
		t.Fatalf("unexpected ndjson body:\n%s\nwant:\n%s", raw, want)
	}
}

func TestOpenAICompatGenerateStream_InvalidChunkBreaksBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"hello\"}}]}\n\n")
		_, _ = fmt.Fprint(w, "data: {invalid-json}\n\n")
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	llm := newOpenAICompat(Config{Model: "m", BaseURL: server.URL, Timeout: 2 * time.Second}, "token")
	body, err := llm.GenerateStream(context.Background(), &model.Request{Messages: []model.Message{{Role: model.RoleUser, Text: "hi"}}})
	if err != nil {
		t.Fatalf("generate stream: %v", err)
	}
	defer body.Close()
	raw, err := io.ReadAll(body)
	if err == nil {
		t.Fatalf("expected read error after invalid chunk, body=%q", raw)
	}
	if !strings.HasPrefix(string(raw), "{\"delta\":\"hello\"}\n") {
		t.Fatalf("expected partial output before the error, got %q", raw)
	}
	if strings.Contains(string(raw), "done") {
		t.Fatalf("broken stream must not carry a done record, got %q", raw)
	}
}

func TestOpenAICompatGenerateStream_OpenFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	llm := newOpenAICompat(Config{Model: "m", BaseURL: server.URL}, "token")
	if _, err := llm.GenerateStream(context.Background(), &model.Request{}); StatusCode(err) != http.StatusUnauthorized {
		t.Fatalf("expected 401 status error, got %v", err)
	}
}

func TestWorkersAIRequiresAccountID(t *testing.T) {
	factory := NewFactory()
	if err := factory.Register(Config{Alias: "cf", API: APIWorkersAI, Auth: AuthConfig{Token: "t"}}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := factory.NewByAlias("cf"); err == nil || !strings.Contains(err.Error(), "account_id") {
		t.Fatalf("expected account_id error, got %v", err)
	}
}

func TestWorkersAIGenerate(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_, _ = fmt.Fprint(w, `{"success":true,"errors":[],"result":{"response":"edge answer"}}`)
	}))
	defer server.Close()

	llm, err := newWorkersAI(Config{Alias: "cf", BaseURL: server.URL, AccountID: "acc"}, "token")
	if err != nil {
		t.Fatalf("new workers ai: %v", err)
	}
	resp, err := llm.Generate(context.Background(), &model.Request{Messages: []model.Message{{Role: model.RoleUser, Text: "hi"}}})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Text != "edge answer" || resp.Model != WorkersAIDefaultModel {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if path != "/accounts/acc/ai/run/"+WorkersAIDefaultModel {
		t.Fatalf("unexpected request path %q", path)
	}
}

func TestWorkersAIGenerateStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload workersAIRequest
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if !payload.Stream {
			t.Errorf("expected stream flag in payload")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprint(w, "data: {\"response\":\"edge\"}\n\n")
		_, _ = fmt.Fprint(w, "data: {\"response\":\" stream\"}\n\n")
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	llm, err := newWorkersAI(Config{Alias: "cf", BaseURL: server.URL, AccountID: "acc"}, "token")
	if err != nil {
		t.Fatalf("new workers ai: %v", err)
	}
	body, err := llm.GenerateStream(context.Background(), &model.Request{Model: "@cf/custom/model"})
	if err != nil {
		t.Fatalf("generate stream: %v", err)
	}
	defer body.Close()
	raw, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	want := "{\"delta\":\"edge\"}\n{\"delta\":\" stream\"}\n{\"done\":true}\n"
	if string(raw) != want {
		t.Fatalf("unexpected ndjson body %q", raw)
	}
}

func TestSplitSystem(t *testing.T) {
	system, rest := splitSystem([]model.Message{
		{Role: model.RoleSystem, Text: "a"},
		{Role: model.RoleSystem, Text: "b"},
		{Role: model.RoleUser, Text: "hi"},
	})
	if system != "a\n\nb" {
		t.Fatalf("unexpected system text %q", system)
	}
	if len(rest) != 1 || rest[0].Text != "hi" {
		t.Fatalf("unexpected rest %+v", rest)
	}
}
