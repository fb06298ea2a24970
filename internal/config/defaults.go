package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	defaultProviderAlias = "workers-ai"
	defaultModelID       = "@cf/meta/llama-3.3-8b-instruct"
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server:   ServerConfig{Addr: ":8787", ShutdownGrace: 10 * time.Second},
		Store:    StoreConfig{Driver: "sqlite", Path: filepath.Join("data", "edgechat.db")},
		Memory:   MemoryConfig{QueueDepth: 64, IdleTimeout: 5 * time.Minute, ContextTokens: 4000},
		Workflow: WorkflowConfig{Mount: true, EmitDelay: 5 * time.Millisecond, Timeout: 90 * time.Second},
		Model:    ModelConfig{Default: defaultProviderAlias},
		Providers: []ProviderConfig{{
			Alias:     defaultProviderAlias,
			API:       "workers_ai",
			Model:     defaultModelID,
			AccountID: "",
			TokenEnv:  "CLOUDFLARE_API_TOKEN",
			Timeout:   60 * time.Second,
		}},
		Log:   LogConfig{Level: "info", Format: "json"},
		Tasks: TasksConfig{Timeout: 2 * time.Minute},
	}
}

// document is the on-disk layout written by WriteDefault. Durations are
// strings so the file stays readable and viper can decode them back.
type document struct {
	Server struct {
		Addr          string `toml:"addr"`
		ShutdownGrace string `toml:"shutdown_grace"`
	} `toml:"server"`
	Store struct {
		Driver string `toml:"driver"`
		Path   string `toml:"path"`
	} `toml:"store"`
	Memory struct {
		QueueDepth    int    `toml:"queue_depth"`
		IdleTimeout   string `toml:"idle_timeout"`
		ContextTokens int    `toml:"context_tokens"`
	} `toml:"memory"`
	Workflow struct {
		URL       string `toml:"url"`
		Mount     bool   `toml:"mount"`
		EmitDelay string `toml:"emit_delay"`
		Timeout   string `toml:"timeout"`
	} `toml:"workflow"`
	Model struct {
		Default      string `toml:"default"`
		SummaryModel string `toml:"summary_model"`
	} `toml:"model"`
	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`
	Tasks struct {
		Timeout string `toml:"timeout"`
	} `toml:"tasks"`
	Providers []providerDocument `toml:"providers"`
}

type providerDocument struct {
	Alias           string `toml:"alias"`
	API             string `toml:"api"`
	Model           string `toml:"model"`
	BaseURL         string `toml:"base_url,omitempty"`
	AccountID       string `toml:"account_id"`
	TokenEnv        string `toml:"token_env,omitempty"`
	Timeout         string `toml:"timeout"`
	MaxOutputTokens int    `toml:"max_output_tokens,omitempty"`
}

func toDocument(c Config) document {
	var d document
	d.Server.Addr = c.Server.Addr
	d.Server.ShutdownGrace = c.Server.ShutdownGrace.String()
	d.Store.Driver = c.Store.Driver
	d.Store.Path = c.Store.Path
	d.Memory.QueueDepth = c.Memory.QueueDepth
	d.Memory.IdleTimeout = c.Memory.IdleTimeout.String()
	d.Memory.ContextTokens = c.Memory.ContextTokens
	d.Workflow.URL = c.Workflow.URL
	d.Workflow.Mount = c.Workflow.Mount
	d.Workflow.EmitDelay = c.Workflow.EmitDelay.String()
	d.Workflow.Timeout = c.Workflow.Timeout.String()
	d.Model.Default = c.Model.Default
	d.Model.SummaryModel = c.Model.SummaryModel
	d.Log.Level = c.Log.Level
	d.Log.Format = c.Log.Format
	d.Tasks.Timeout = c.Tasks.Timeout.String()
	for _, p := range c.Providers {
		d.Providers = append(d.Providers, providerDocument{
			Alias:           p.Alias,
			API:             p.API,
			Model:           p.Model,
			BaseURL:         p.BaseURL,
			AccountID:       p.AccountID,
			TokenEnv:        p.TokenEnv,
			Timeout:         p.Timeout.String(),
			MaxOutputTokens: p.MaxOutputTokens,
		})
	}
	return d
}

// MarshalDefault renders the built-in configuration as TOML.
func MarshalDefault() ([]byte, error) {
	return toml.Marshal(toDocument(Default()))
}

// WriteDefault writes the built-in configuration to path. An existing file
// is only replaced when force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config: %s already exists", path)
		}
	}
	raw, err := MarshalDefault()
	if err != nil {
		return fmt.Errorf("config: encode defaults: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, raw, 0o600)
}
