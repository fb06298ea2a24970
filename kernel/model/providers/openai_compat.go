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

type openAICompatLLM struct {
	name     string
	provider string
	baseURL  string
	token    string
	headers  map[string]string
	maxTok   int
	client   *http.Client
}

func newOpenAICompat(cfg Config, token string) *openAICompatLLM {
	return &openAICompatLLM{
		name:     cfg.Model,
		provider: cfg.Provider,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		token:    token,
		headers:  cfg.Headers,
		maxTok:   cfg.MaxOutputTok,
		client:   &http.Client{Timeout: cfg.timeout()},
	}
}

func (l *openAICompatLLM) Name() string {
	return l.name
}

func (l *openAICompatLLM) Generate(ctx context.Context, req *model.Request) (*model.Response, error) {
	resp, err := l.do(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out openAICompatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("model: decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("model: empty choices")
	}
	text := out.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return nil, model.ErrEmptyResponse
	}
	return &model.Response{
		Text:     text,
		Model:    out.Model,
		Provider: l.provider,
		Usage: model.Usage{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
			TotalTokens:      out.Usage.TotalTokens,
		},
	}, nil
}

func (l *openAICompatLLM) GenerateStream(ctx context.Context, req *model.Request) (io.ReadCloser, error) {
	ctx, cancel := context.WithCancel(ctx)
	resp, err := l.do(ctx, req, true)
	if err != nil {
		cancel()
		return nil, err
	}
	return streamBody(cancel, func(emit func(string) error) error {
		defer resp.Body.Close()
		return pumpSSE(resp.Body, emit, func(chunk *openAICompatStreamChunk) string {
			if len(chunk.Choices) == 0 {
				return ""
			}
			return chunk.Choices[0].Delta.Content
		})
	}), nil
}

func (l *openAICompatLLM) do(ctx context.Context, req *model.Request, stream bool) (*http.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("model: request is nil")
	}
	name := l.name
	if strings.TrimSpace(req.Model) != "" {
		name = req.Model
	}
	maxTok := l.maxTok
	if req.MaxOutputTokens > 0 {
		maxTok = req.MaxOutputTokens
	}
	payload := openAICompatRequest{
		Model:     name,
		Messages:  fromKernelMessages(req.Messages),
		Stream:    stream,
		MaxTokens: maxTok,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/chat/completions", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if l.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+l.token)
	}
	for k, v := range l.headers {
		httpReq.Header.Set(k, v)
	}
	resp, err := l.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	return resp, nil
}

type openAICompatRequest struct {
	Model     string            `json:"model"`
	Messages  []openAICompatMsg `json:"messages"`
	Stream    bool              `json:"stream"`
	MaxTokens int               `json:"max_tokens,omitempty"`
}

type openAICompatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAICompatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message openAICompatMsg `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type openAICompatStreamChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta openAICompatMsg `json:"delta"`
	} `json:"choices"`
}

func fromKernelMessages(messages []model.Message) []openAICompatMsg {
	out := make([]openAICompatMsg, 0, len(messages))
	for _, m := range messages {
		out = append(out, openAICompatMsg{Role: string(m.Role), Content: m.Text})
	}
	return out
}
