// Configuration loader and default value tests.
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoaderLoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 40.0, cfg.Pipeline.ApproveThreshold)
	assert.Equal(t, "memory", cfg.Escalation.StoreType)
}

func TestLoaderLoadFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "loanflow.yaml")

	yamlContent := `
server:
  http_port: 8888
  read_timeout: 60s
  auth_secret: "reviewer-signing-key"

pipeline:
  approve_threshold: 35
  decline_threshold: 75
  batch_concurrency: 8

risk_model:
  provider_name: "local-gateway"
  base_url: "http://localhost:11434"
  model: "llama3.1:8b"
  cache_enabled: true

escalation:
  store_type: "mongo"
  mongo:
    uri: "mongodb://localhost:27017"
    database: "underwriting"

database:
  driver: "postgres"
  host: "db.internal"
  port: 5433

log:
  level: "debug"
  format: "console"
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "reviewer-signing-key", cfg.Server.AuthSecret)

	assert.Equal(t, 35.0, cfg.Pipeline.ApproveThreshold)
	assert.Equal(t, 75.0, cfg.Pipeline.DeclineThreshold)
	assert.Equal(t, 8, cfg.Pipeline.BatchConcurrency)

	assert.Equal(t, "local-gateway", cfg.RiskModel.ProviderName)
	assert.Equal(t, "http://localhost:11434", cfg.RiskModel.BaseURL)
	assert.Equal(t, "llama3.1:8b", cfg.RiskModel.Model)
	assert.True(t, cfg.RiskModel.CacheEnabled)

	assert.Equal(t, "mongo", cfg.Escalation.StoreType)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Escalation.Mongo.URI)
	assert.Equal(t, "underwriting", cfg.Escalation.Mongo.Database)
	// Unset keys inside a present section keep their defaults.
	assert.Equal(t, "escalations", cfg.Escalation.Mongo.Collection)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoaderLoadFromEnv(t *testing.T) {
	envVars := map[string]string{
		"LOANFLOW_SERVER_HTTP_PORT":           "7777",
		"LOANFLOW_PIPELINE_APPROVE_THRESHOLD": "30",
		"LOANFLOW_PIPELINE_MODEL_TIMEOUT":     "20s",
		"LOANFLOW_RISK_MODEL_API_KEY":         "ghp_test",
		"LOANFLOW_ESCALATION_STORE_TYPE":      "database",
		"LOANFLOW_DATABASE_DRIVER":            "mysql",
		"LOANFLOW_HISTORY_ENABLED":            "false",
		"LOANFLOW_LOG_LEVEL":                  "warn",
		"LOANFLOW_LOG_OUTPUT_PATHS":           "stdout, /var/log/loanflow.log",
		"LOANFLOW_TELEMETRY_ENABLED":          "true",
	}
	for k, v := range envVars {
		os.Setenv(k, v)
	}
	defer func() {
		for k := range envVars {
			os.Unsetenv(k)
		}
	}()

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.HTTPPort)
	assert.Equal(t, 30.0, cfg.Pipeline.ApproveThreshold)
	assert.Equal(t, 20*time.Second, cfg.Pipeline.ModelTimeout)
	assert.Equal(t, "ghp_test", cfg.RiskModel.APIKey)
	assert.Equal(t, "database", cfg.Escalation.StoreType)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.False(t, cfg.History.Enabled)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, []string{"stdout", "/var/log/loanflow.log"}, cfg.Log.OutputPaths)
	assert.True(t, cfg.Telemetry.Enabled)
}

func TestLoaderEnvOverridesYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "loanflow.yaml")

	yamlContent := `
server:
  http_port: 8888
risk_model:
  model: "yaml-model"
  base_url: "http://yaml-host"
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	os.Setenv("LOANFLOW_SERVER_HTTP_PORT", "9999")
	os.Setenv("LOANFLOW_RISK_MODEL_MODEL", "env-model")
	defer func() {
		os.Unsetenv("LOANFLOW_SERVER_HTTP_PORT")
		os.Unsetenv("LOANFLOW_RISK_MODEL_MODEL")
	}()

	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.Equal(t, "env-model", cfg.RiskModel.Model)
	// YAML values without an env override survive.
	assert.Equal(t, "http://yaml-host", cfg.RiskModel.BaseURL)
}

func TestLoaderCustomEnvPrefix(t *testing.T) {
	os.Setenv("UNDERWRITE_SERVER_HTTP_PORT", "6666")
	defer os.Unsetenv("UNDERWRITE_SERVER_HTTP_PORT")

	cfg, err := NewLoader().
		WithEnvPrefix("UNDERWRITE").
		Load()
	require.NoError(t, err)

	assert.Equal(t, 6666, cfg.Server.HTTPPort)
}

func TestLoaderWithValidator(t *testing.T) {
	validator := func(cfg *Config) error {
		if cfg.Server.HTTPPort < 1024 {
			return assert.AnError
		}
		return nil
	}

	os.Setenv("LOANFLOW_SERVER_HTTP_PORT", "80")
	defer os.Unsetenv("LOANFLOW_SERVER_HTTP_PORT")

	_, err := NewLoader().
		WithValidator(validator).
		Load()
	assert.Error(t, err)
}

func TestLoaderNonExistentFile(t *testing.T) {
	cfg, err := NewLoader().
		WithConfigPath("/non/existent/path/loanflow.yaml").
		Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoaderInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `
server:
  http_port: [invalid
  this is not valid yaml
`
	err := os.WriteFile(configPath, []byte(invalidYAML), 0644)
	require.NoError(t, err)

	_, err = NewLoader().
		WithConfigPath(configPath).
		Load()
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "invalid HTTP port (negative)",
			modify: func(c *Config) {
				c.Server.HTTPPort = -1
			},
			wantErr: true,
		},
		{
			name: "invalid HTTP port (too large)",
			modify: func(c *Config) {
				c.Server.HTTPPort = 70000
			},
			wantErr: true,
		},
		{
			name: "thresholds out of range",
			modify: func(c *Config) {
				c.Pipeline.DeclineThreshold = 140
			},
			wantErr: true,
		},
		{
			name: "approve at or above decline",
			modify: func(c *Config) {
				c.Pipeline.ApproveThreshold = 80
				c.Pipeline.DeclineThreshold = 80
			},
			wantErr: true,
		},
		{
			name: "invalid temperature",
			modify: func(c *Config) {
				c.RiskModel.Temperature = 3.0
			},
			wantErr: true,
		},
		{
			name: "unknown escalation store",
			modify: func(c *Config) {
				c.Escalation.StoreType = "dynamo"
			},
			wantErr: true,
		},
		{
			name: "unknown database driver",
			modify: func(c *Config) {
				c.Database.Driver = "oracle"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDatabaseConfigDSN(t *testing.T) {
	tests := []struct {
		name     string
		config   DatabaseConfig
		expected string
	}{
		{
			name: "postgres DSN",
			config: DatabaseConfig{
				Driver:   "postgres",
				Host:     "localhost",
				Port:     5432,
				User:     "loanflow",
				Password: "pass",
				Name:     "loans",
				SSLMode:  "disable",
			},
			expected: "host=localhost port=5432 user=loanflow password=pass dbname=loans sslmode=disable",
		},
		{
			name: "mysql DSN",
			config: DatabaseConfig{
				Driver:   "mysql",
				Host:     "localhost",
				Port:     3306,
				User:     "loanflow",
				Password: "pass",
				Name:     "loans",
			},
			expected: "loanflow:pass@tcp(localhost:3306)/loans?parseTime=true",
		},
		{
			name: "sqlite DSN",
			config: DatabaseConfig{
				Driver: "sqlite",
				Name:   "/var/lib/loanflow/loanflow.db",
			},
			expected: "/var/lib/loanflow/loanflow.db",
		},
		{
			name: "unknown driver",
			config: DatabaseConfig{
				Driver: "unknown",
			},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.config.DSN())
		})
	}
}

func TestMustLoadSuccess(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "loanflow.yaml")

	yamlContent := `
server:
  http_port: 8080
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		cfg := MustLoad(configPath)
		assert.Equal(t, 8080, cfg.Server.HTTPPort)
	})
}

func TestMustLoadInvalidFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	err := os.WriteFile(configPath, []byte("invalid: [yaml"), 0644)
	require.NoError(t, err)

	assert.Panics(t, func() {
		MustLoad(configPath)
	})
}

func TestLoadFromEnvFunction(t *testing.T) {
	os.Setenv("LOANFLOW_RISK_MODEL_MODEL", "env-only-model")
	defer os.Unsetenv("LOANFLOW_RISK_MODEL_MODEL")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "env-only-model", cfg.RiskModel.Model)
}
