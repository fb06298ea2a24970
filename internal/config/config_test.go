package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, ":8787", cfg.Server.Addr)
	assert.Equal(t, 64, cfg.Memory.QueueDepth)
	assert.Equal(t, 5*time.Minute, cfg.Memory.IdleTimeout)
	assert.Equal(t, 5*time.Millisecond, cfg.Workflow.EmitDelay)
	require.Len(t, cfg.Providers, 1)
	assert.Equal(t, "workers_ai", cfg.Providers[0].API)
}

func TestWriteDefault_RoundTripsThroughLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edgechat.toml")
	require.NoError(t, WriteDefault(path, false))
	require.Error(t, WriteDefault(path, false), "existing file is kept")
	require.NoError(t, WriteDefault(path, true))

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	want := Default()
	assert.Equal(t, want.Server, cfg.Server)
	assert.Equal(t, want.Memory, cfg.Memory)
	assert.Equal(t, want.Workflow, cfg.Workflow)
	assert.Equal(t, want.Tasks, cfg.Tasks)
	require.Len(t, cfg.Providers, 1)
	assert.Equal(t, want.Providers[0].Timeout, cfg.Providers[0].Timeout)
	assert.Equal(t, "CLOUDFLARE_API_TOKEN", cfg.Providers[0].TokenEnv)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edgechat.toml")
	raw := `
[server]
addr = ":9000"

[store]
driver = "file"
path = "/tmp/sessions"

[model]
default = "local"

[[providers]]
alias = "local"
api = "openai_compatible"
model = "llama3"
base_url = "http://localhost:11434/v1"
token = "x"
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))
	t.Setenv("EDGECHAT_SERVER_ADDR", ":9100")
	t.Setenv("EDGECHAT_MEMORY_QUEUE_DEPTH", "8")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.Server.Addr)
	assert.Equal(t, 8, cfg.Memory.QueueDepth)
	assert.Equal(t, "file", cfg.Store.Driver)
	require.Len(t, cfg.Providers, 1)
	assert.Equal(t, "http://localhost:11434/v1", cfg.Providers[0].BaseURL)
}

func TestLoad_ExplicitMissingFileFails(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	bad := Default()
	bad.Store.Driver = "redis"
	assert.Error(t, bad.Validate())

	bad = Default()
	bad.Store = StoreConfig{Driver: "file"}
	assert.Error(t, bad.Validate())

	bad = Default()
	bad.Model.Default = "unknown"
	assert.Error(t, bad.Validate())
}
