package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "config-test-secret-0123456789"

// isolate runs the test from an empty directory so a developer's
// config.yaml cannot leak in.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv(PathEnvVar, "")
	return dir
}

func TestLoad_DefaultsWithSecret(t *testing.T) {
	isolate(t)
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "data/movies.db", cfg.Database.Path)
	assert.Equal(t, 24*time.Hour, cfg.Catalog.RefreshAfter)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, "https://api.themoviedb.org/3", cfg.TMDB.BaseURL)
	assert.Equal(t, uint(3), cfg.TMDB.MaxRetries)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_MissingSecret(t *testing.T) {
	isolate(t)
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("PORT", "9090")
	t.Setenv("DB_PATH", "/tmp/other.db")
	t.Setenv("TMDB_API_KEY", "tmdb-key")
	t.Setenv("CATALOG_REFRESH_AFTER", "6h")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/tmp/other.db", cfg.Database.Path)
	assert.Equal(t, "tmdb-key", cfg.TMDB.APIKey)
	assert.Equal(t, 6*time.Hour, cfg.Catalog.RefreshAfter)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_FileThenEnvironment(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "movies.yaml")
	yaml := `
server:
  port: 7000
completion:
  model: local-model
  base_url: http://localhost:11434/v1
auth:
  jwt_secret: file-secret-0123456789
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv(PathEnvVar, path)
	t.Setenv("PORT", "7001")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7001, cfg.Server.Port, "environment wins over the file")
	assert.Equal(t, "local-model", cfg.Completion.Model)
	assert.Equal(t, "http://localhost:11434/v1", cfg.Completion.BaseURL)
	assert.Equal(t, "file-secret-0123456789", cfg.Auth.JWTSecret)
	assert.Equal(t, 30*time.Second, cfg.Completion.Timeout, "unset keys keep defaults")
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	isolate(t)
	t.Setenv(PathEnvVar, "/does/not/exist.yaml")
	t.Setenv("JWT_SECRET", testSecret)

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Auth.JWTSecret = testSecret
		return cfg
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }, "jwt_secret"},
		{"half github", func(c *Config) { c.Auth.GitHubClientID = "id" }, "github_client_secret"},
		{"zero timeout", func(c *Config) { c.TMDB.Timeout = 0 }, "tmdb.timeout"},
		{"refresh window", func(c *Config) { c.Catalog.RefreshAfter = -time.Hour }, "catalog.refresh_after"},
		{"log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"rate window", func(c *Config) { c.Server.RateLimitWindow = 0 }, "rate_limit_window"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := defaultConfig()
	cfg.Server.Port = 0
	cfg.Logging.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "jwt_secret")
	assert.Contains(t, err.Error(), "logging.format")
}
