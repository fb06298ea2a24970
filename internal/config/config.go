// Package config loads edgechat settings from an optional TOML file,
// EDGECHAT_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	FileName  = "edgechat"
	FileType  = "toml"
	EnvPrefix = "EDGECHAT"
)

type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Store     StoreConfig      `mapstructure:"store"`
	Memory    MemoryConfig     `mapstructure:"memory"`
	Workflow  WorkflowConfig   `mapstructure:"workflow"`
	Model     ModelConfig      `mapstructure:"model"`
	Prompt    PromptConfig     `mapstructure:"prompt"`
	Providers []ProviderConfig `mapstructure:"providers"`
	Log       LogConfig        `mapstructure:"log"`
	Tasks     TasksConfig      `mapstructure:"tasks"`
}

type ServerConfig struct {
	Addr          string        `mapstructure:"addr"`
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
}

// StoreConfig selects the session store. Driver is memory, file or sqlite;
// Path is a directory for file and a database file for sqlite.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

type MemoryConfig struct {
	QueueDepth    int           `mapstructure:"queue_depth"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	ContextTokens int           `mapstructure:"context_tokens"`
}

// WorkflowConfig locates the primary pipeline. An empty URL runs it
// in-process; Mount additionally serves it at /workflow/chat.
type WorkflowConfig struct {
	URL       string        `mapstructure:"url"`
	Mount     bool          `mapstructure:"mount"`
	EmitDelay time.Duration `mapstructure:"emit_delay"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// ModelConfig names the provider alias used for generation and an optional
// model id override for summaries.
type ModelConfig struct {
	Default      string `mapstructure:"default"`
	SummaryModel string `mapstructure:"summary_model"`
}

type PromptConfig struct {
	System     string `mapstructure:"system"`
	Guardrails string `mapstructure:"guardrails"`
	Summary    string `mapstructure:"summary"`
}

type ProviderConfig struct {
	Alias           string            `mapstructure:"alias"`
	API             string            `mapstructure:"api"`
	Model           string            `mapstructure:"model"`
	BaseURL         string            `mapstructure:"base_url"`
	AccountID       string            `mapstructure:"account_id"`
	Token           string            `mapstructure:"token"`
	TokenEnv        string            `mapstructure:"token_env"`
	Headers         map[string]string `mapstructure:"headers"`
	Timeout         time.Duration     `mapstructure:"timeout"`
	MaxOutputTokens int               `mapstructure:"max_output_tokens"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TasksConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// SetDefaults registers every key with its default so environment
// variables can override keys absent from the file.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.shutdown_grace", d.Server.ShutdownGrace)
	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("memory.queue_depth", d.Memory.QueueDepth)
	v.SetDefault("memory.idle_timeout", d.Memory.IdleTimeout)
	v.SetDefault("memory.context_tokens", d.Memory.ContextTokens)
	v.SetDefault("workflow.url", d.Workflow.URL)
	v.SetDefault("workflow.mount", d.Workflow.Mount)
	v.SetDefault("workflow.emit_delay", d.Workflow.EmitDelay)
	v.SetDefault("workflow.timeout", d.Workflow.Timeout)
	v.SetDefault("model.default", d.Model.Default)
	v.SetDefault("model.summary_model", d.Model.SummaryModel)
	v.SetDefault("prompt.system", "")
	v.SetDefault("prompt.guardrails", "")
	v.SetDefault("prompt.summary", "")
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("tasks.timeout", d.Tasks.Timeout)
}

// Load reads configuration into v and decodes it. path names an explicit
// config file; when empty, edgechat.toml is searched for in the working
// directory and the user config directory, and a missing file is not an
// error.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType(FileType)
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "edgechat"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if strings.TrimSpace(path) != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if len(cfg.Providers) == 0 {
		cfg.Providers = Default().Providers
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory":
	case "file", "sqlite":
		if strings.TrimSpace(c.Store.Path) == "" {
			return fmt.Errorf("config: store.path is required for driver %q", c.Store.Driver)
		}
	default:
		return fmt.Errorf("config: unsupported store.driver %q", c.Store.Driver)
	}
	if c.Memory.QueueDepth < 0 {
		return fmt.Errorf("config: memory.queue_depth must not be negative")
	}
	if strings.TrimSpace(c.Model.Default) == "" {
		return fmt.Errorf("config: model.default is required")
	}
	found := false
	for _, p := range c.Providers {
		if strings.EqualFold(strings.TrimSpace(p.Alias), strings.TrimSpace(c.Model.Default)) {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("config: model.default %q matches no provider alias", c.Model.Default)
	}
	return nil
}
