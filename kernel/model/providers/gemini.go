package providers

import (
	"context"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/OnslaughtSnail/edgechat/kernel/model"
)

type geminiLLM struct {
	name     string
	provider string
	maxTok   int
	client   *genai.Client
}

func newGemini(cfg Config, token string) (*geminiLLM, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:     token,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.timeout()},
	}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		clientCfg.HTTPOptions.BaseURL = baseURL
	}
	client, err := genai.NewClient(context.Background(), clientCfg)
	if err != nil {
		return nil, fmt.Errorf("providers: create gemini client: %w", err)
	}
	return &geminiLLM{
		name:     cfg.Model,
		provider: cfg.Provider,
		maxTok:   cfg.MaxOutputTok,
		client:   client,
	}, nil
}

func (l *geminiLLM) Name() string {
	return l.name
}

func (l *geminiLLM) Generate(ctx context.Context, req *model.Request) (*model.Response, error) {
	name, contents, cfg, err := l.prepare(req)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Models.GenerateContent(ctx, name, contents, cfg)
	if err != nil {
		return nil, err
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return nil, model.ErrEmptyResponse
	}
	out := &model.Response{Text: text, Model: name, Provider: l.provider}
	if resp.UsageMetadata != nil {
		out.Usage = model.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return out, nil
}

func (l *geminiLLM) GenerateStream(ctx context.Context, req *model.Request) (io.ReadCloser, error) {
	name, contents, cfg, err := l.prepare(req)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	next, stop := iter.Pull2(l.client.Models.GenerateContentStream(ctx, name, contents, cfg))
	first, err, ok := next()
	if err != nil || !ok {
		stop()
		cancel()
		if err == nil {
			err = model.ErrEmptyResponse
		}
		return nil, err
	}
	return streamBody(cancel, func(emit func(string) error) error {
		defer stop()
		resp := first
		for {
			if resp != nil {
				if err := emit(resp.Text()); err != nil {
					return err
				}
			}
			var ok bool
			resp, err, ok = next()
			if !ok {
				return nil
			}
			if err != nil {
				return err
			}
		}
	}), nil
}

func (l *geminiLLM) prepare(req *model.Request) (string, []*genai.Content, *genai.GenerateContentConfig, error) {
	if req == nil {
		return "", nil, nil, fmt.Errorf("model: request is nil")
	}
	name := l.name
	if strings.TrimSpace(req.Model) != "" {
		name = req.Model
	}
	system, rest := splitSystem(req.Messages)
	contents := make([]*genai.Content, 0, len(rest))
	for _, m := range rest {
		var role genai.Role = genai.RoleUser
		if m.Role == model.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Text, role))
	}
	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	maxTok := l.maxTok
	if req.MaxOutputTokens > 0 {
		maxTok = req.MaxOutputTokens
	}
	if maxTok > 0 {
		cfg.MaxOutputTokens = int32(maxTok)
	}
	return name, contents, cfg, nil
}
