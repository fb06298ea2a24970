package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/OnslaughtSnail/edgechat/kernel/model"
)

type anthropicLLM struct {
	name     string
	provider string
	maxTok   int
	client   anthropic.Client
}

func newAnthropic(cfg Config, token string) *anthropicLLM {
	maxTok := cfg.MaxOutputTok
	if maxTok <= 0 {
		maxTok = 1024
	}
	opts := []option.RequestOption{
		option.WithAPIKey(token),
		option.WithHTTPClient(&http.Client{Timeout: cfg.timeout()}),
	}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	for k, v := range cfg.Headers {
		opts = append(opts, option.WithHeader(k, v))
	}
	return &anthropicLLM{
		name:     cfg.Model,
		provider: cfg.Provider,
		maxTok:   maxTok,
		client:   anthropic.NewClient(opts...),
	}
}

func (l *anthropicLLM) Name() string {
	return l.name
}

func (l *anthropicLLM) Generate(ctx context.Context, req *model.Request) (*model.Response, error) {
	params, err := l.params(req)
	if err != nil {
		return nil, err
	}
	msg, err := l.client.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}
	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return nil, model.ErrEmptyResponse
	}
	return &model.Response{
		Text:     text.String(),
		Model:    string(msg.Model),
		Provider: l.provider,
		Usage: model.Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}, nil
}

func (l *anthropicLLM) GenerateStream(ctx context.Context, req *model.Request) (io.ReadCloser, error) {
	params, err := l.params(req)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	stream := l.client.Messages.NewStreaming(ctx, params)
	// The first event surfaces connection and status errors before the
	// body is handed out.
	if !stream.Next() {
		err := stream.Err()
		_ = stream.Close()
		cancel()
		if err == nil {
			err = model.ErrEmptyResponse
		}
		return nil, err
	}
	return streamBody(cancel, func(emit func(string) error) error {
		defer stream.Close()
		for {
			event := stream.Current()
			if ev, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
				if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok {
					if err := emit(delta.Text); err != nil {
						return err
					}
				}
			}
			if !stream.Next() {
				return stream.Err()
			}
		}
	}), nil
}

func (l *anthropicLLM) params(req *model.Request) (anthropic.MessageNewParams, error) {
	if req == nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("model: request is nil")
	}
	name := l.name
	if strings.TrimSpace(req.Model) != "" {
		name = req.Model
	}
	maxTok := l.maxTok
	if req.MaxOutputTokens > 0 {
		maxTok = req.MaxOutputTokens
	}
	system, rest := splitSystem(req.Messages)
	messages := make([]anthropic.MessageParam, 0, len(rest))
	for _, m := range rest {
		block := anthropic.NewTextBlock(m.Text)
		if m.Role == model.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
			continue
		}
		messages = append(messages, anthropic.NewUserMessage(block))
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(name),
		MaxTokens: int64(maxTok),
		Messages:  messages,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	return params, nil
}

// splitSystem joins leading and interleaved system messages into one
// instruction block for providers that take it out-of-band.
func splitSystem(messages []model.Message) (string, []model.Message) {
	var system []string
	rest := make([]model.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == model.RoleSystem {
			if text := strings.TrimSpace(m.Text); text != "" {
				system = append(system, text)
			}
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}
