package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Credentials: []CredentialConfig{
			{Name: "key-a", APIKey: "sk-a", Capacity: 1_000_000},
		},
		Model: ModelConfig{Provider: "openai", Name: "gpt-4o"},
		Store: StoreConfig{Driver: "memory"},
	}
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestConfig_ValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "no credentials",
			mutate:  func(c *Config) { c.Credentials = nil },
			wantErr: "at least one credential",
		},
		{
			name: "unnamed credential",
			mutate: func(c *Config) {
				c.Credentials = append(c.Credentials, CredentialConfig{APIKey: "sk-b", Capacity: 1})
			},
			wantErr: "has no name",
		},
		{
			name: "duplicate credential names",
			mutate: func(c *Config) {
				c.Credentials = append(c.Credentials, c.Credentials[0])
			},
			wantErr: "duplicate credential name",
		},
		{
			name:    "missing api key",
			mutate:  func(c *Config) { c.Credentials[0].APIKey = "" },
			wantErr: "has no api_key",
		},
		{
			name:    "non-positive capacity",
			mutate:  func(c *Config) { c.Credentials[0].Capacity = 0 },
			wantErr: "positive capacity",
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Model.Provider = "cohere" },
			wantErr: "unknown model provider",
		},
		{
			name:    "unknown store driver",
			mutate:  func(c *Config) { c.Store.Driver = "postgres" },
			wantErr: "unknown store driver",
		},
		{
			name: "sqlite without dsn",
			mutate: func(c *Config) {
				c.Store.Driver = "sqlite"
				c.Store.DSN = ""
			},
			wantErr: "requires a dsn",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_FromFileWithDefaults(t *testing.T) {
	dir := t.TempDir()
	content := `
[[credentials]]
name = "key-a"
api_key = "sk-a"
capacity = 1000000

[[credentials]]
name = "key-b"
api_key = "sk-b"
capacity = 500000

[model]
name = "gpt-4o-mini"

[loop]
max_iterations = 6
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agentpool.toml"), []byte(content), 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)

	require.Len(t, cfg.Credentials, 2)
	assert.Equal(t, int64(500_000), cfg.Credentials[1].Capacity)
	assert.Equal(t, "gpt-4o-mini", cfg.Model.Name)

	// Anything the file omits falls back to defaults.
	assert.Equal(t, "openai", cfg.Model.Provider)
	assert.Equal(t, 6, cfg.Loop.MaxIterations)
	assert.Equal(t, 2, cfg.Loop.MaxRetries)
	assert.Equal(t, 2, cfg.Loop.MinToolCalls)
	assert.Equal(t, 5000, cfg.Loop.TokenBuffer)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_MissingFileStillNeedsCredentials(t *testing.T) {
	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credential")
}
