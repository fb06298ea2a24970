package providers

import "time"

// APIType defines protocol dialect used by a model provider.
type APIType string

const (
	APIOpenAI           APIType = "openai"
	APIOpenAICompatible APIType = "openai_compatible"
	APIWorkersAI        APIType = "workers_ai"
	APIAnthropic        APIType = "anthropic"
	APIGemini           APIType = "gemini"
)

// AuthConfig is provider-agnostic auth configuration. Token wins over
// TokenEnv when both are set.
type AuthConfig struct {
	TokenEnv string
	Token    string
}

// Config is a provider-agnostic model alias definition.
type Config struct {
	Alias    string
	Provider string
	API      APIType
	// Model is the default model; requests may override it.
	Model   string
	BaseURL string
	// AccountID scopes Workers AI requests.
	AccountID    string
	Headers      map[string]string
	Timeout      time.Duration
	MaxOutputTok int
	Auth         AuthConfig
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 60 * time.Second
	}
	return c.Timeout
}
