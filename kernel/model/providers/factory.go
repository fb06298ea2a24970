package providers

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/OnslaughtSnail/edgechat/kernel/model"
)

// Factory builds model gateways from alias configs.
type Factory struct {
	configs map[string]Config
}

// NewFactory returns an empty provider factory.
func NewFactory() *Factory {
	return &Factory{configs: map[string]Config{}}
}

// Register adds or overwrites one alias config.
func (f *Factory) Register(cfg Config) error {
	if f == nil {
		return fmt.Errorf("providers: factory is nil")
	}
	alias := strings.ToLower(strings.TrimSpace(cfg.Alias))
	if alias == "" {
		return fmt.Errorf("providers: alias is required")
	}
	switch cfg.API {
	case APIOpenAI, APIOpenAICompatible, APIWorkersAI, APIAnthropic, APIGemini:
	default:
		return fmt.Errorf("providers: unsupported api type %q", cfg.API)
	}
	if cfg.API != APIWorkersAI && strings.TrimSpace(cfg.Model) == "" {
		return fmt.Errorf("providers: alias %q requires a model", alias)
	}
	if cfg.Provider == "" {
		cfg.Provider = string(cfg.API)
	}
	cfg.Alias = alias
	f.configs[alias] = cfg
	return nil
}

// NewByAlias creates a model gateway by alias.
func (f *Factory) NewByAlias(alias string) (model.Gateway, error) {
	if f == nil {
		return nil, fmt.Errorf("providers: factory is nil")
	}
	alias = strings.ToLower(strings.TrimSpace(alias))
	if alias == "" {
		return nil, fmt.Errorf("providers: model alias is required")
	}
	cfg, ok := f.configs[alias]
	if !ok {
		return nil, fmt.Errorf("providers: unknown model alias %q", alias)
	}
	token, err := resolveToken(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("providers: alias %q: %w", alias, err)
	}

	switch cfg.API {
	case APIOpenAI, APIOpenAICompatible:
		return newOpenAICompat(cfg, token), nil
	case APIWorkersAI:
		return newWorkersAI(cfg, token)
	case APIAnthropic:
		return newAnthropic(cfg, token), nil
	case APIGemini:
		return newGemini(cfg, token)
	default:
		return nil, fmt.Errorf("providers: unsupported api type %q", cfg.API)
	}
}

// ListModels returns available aliases from current factory.
func (f *Factory) ListModels() []string {
	if f == nil {
		return nil
	}
	out := make([]string, 0, len(f.configs))
	for k := range f.configs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func resolveToken(cfg AuthConfig) (string, error) {
	if token := strings.TrimSpace(cfg.Token); token != "" {
		return token, nil
	}
	if env := strings.TrimSpace(cfg.TokenEnv); env != "" {
		if token := strings.TrimSpace(os.Getenv(env)); token != "" {
			return token, nil
		}
		return "", fmt.Errorf("auth token env %s is empty", env)
	}
	return "", fmt.Errorf("auth token is empty")
}
