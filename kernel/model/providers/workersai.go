package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/OnslaughtSnail/edgechat/kernel/model"
)

const (
	workersAIDefaultBaseURL = "https://api.cloudflare.com/client/v4"
	// WorkersAIDefaultModel is used when neither the alias nor the request
	// names a model.
	WorkersAIDefaultModel = "@cf/meta/llama-3.3-8b-instruct"
)

// workersAILLM talks to the Workers AI REST API. Models are addressed by
// path, e.g. /accounts/{id}/ai/run/@cf/meta/llama-3.3-8b-instruct.
type workersAILLM struct {
	name      string
	provider  string
	baseURL   string
	accountID string
	token     string
	maxTok    int
	client    *http.Client
}

func newWorkersAI(cfg Config, token string) (*workersAILLM, error) {
	accountID := strings.TrimSpace(cfg.AccountID)
	if accountID == "" {
		return nil, fmt.Errorf("providers: workers_ai alias %q requires account_id", cfg.Alias)
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = workersAIDefaultBaseURL
	}
	name := strings.TrimSpace(cfg.Model)
	if name == "" {
		name = WorkersAIDefaultModel
	}
	return &workersAILLM{
		name:      name,
		provider:  cfg.Provider,
		baseURL:   baseURL,
		accountID: accountID,
		token:     token,
		maxTok:    cfg.MaxOutputTok,
		client:    &http.Client{Timeout: cfg.timeout()},
	}, nil
}

func (l *workersAILLM) Name() string {
	return l.name
}

func (l *workersAILLM) Generate(ctx context.Context, req *model.Request) (*model.Response, error) {
	name, resp, err := l.do(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out workersAIEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("model: decode response: %w", err)
	}
	if !out.Success && len(out.Errors) > 0 {
		return nil, fmt.Errorf("model: workers ai: %s", out.Errors[0].Message)
	}
	if strings.TrimSpace(out.Result.Response) == "" {
		return nil, model.ErrEmptyResponse
	}
	return &model.Response{
		Text:     out.Result.Response,
		Model:    name,
		Provider: l.provider,
		Usage: model.Usage{
			PromptTokens:     out.Result.Usage.PromptTokens,
			CompletionTokens: out.Result.Usage.CompletionTokens,
			TotalTokens:      out.Result.Usage.TotalTokens,
		},
	}, nil
}

func (l *workersAILLM) GenerateStream(ctx context.Context, req *model.Request) (io.ReadCloser, error) {
	ctx, cancel := context.WithCancel(ctx)
	_, resp, err := l.do(ctx, req, true)
	if err != nil {
		cancel()
		return nil, err
	}
	return streamBody(cancel, func(emit func(string) error) error {
		defer resp.Body.Close()
		return pumpSSE(resp.Body, emit, func(chunk *workersAIStreamChunk) string {
			return chunk.Response
		})
	}), nil
}

func (l *workersAILLM) do(ctx context.Context, req *model.Request, stream bool) (string, *http.Response, error) {
	if req == nil {
		return "", nil, fmt.Errorf("model: request is nil")
	}
	name := l.name
	if strings.TrimSpace(req.Model) != "" {
		name = strings.TrimSpace(req.Model)
	}
	maxTok := l.maxTok
	if req.MaxOutputTokens > 0 {
		maxTok = req.MaxOutputTokens
	}
	payload := workersAIRequest{
		Messages:  fromKernelMessages(req.Messages),
		Stream:    stream,
		MaxTokens: maxTok,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", nil, err
	}
	endpoint := fmt.Sprintf("%s/accounts/%s/ai/run/%s", l.baseURL, l.accountID, strings.TrimLeft(name, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return "", nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+l.token)
	resp, err := l.client.Do(httpReq)
	if err != nil {
		return "", nil, err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return "", nil, statusError(resp)
	}
	return name, resp, nil
}

type workersAIRequest struct {
	Messages  []openAICompatMsg `json:"messages"`
	Stream    bool              `json:"stream,omitempty"`
	MaxTokens int               `json:"max_tokens,omitempty"`
}

type workersAIEnvelope struct {
	Success bool `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
	Result struct {
		Response string `json:"response"`
		Usage    struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	} `json:"result"`
}

type workersAIStreamChunk struct {
	Response string `json:"response"`
}
