// Package config loads the server configuration.
//
// LAYERING (later wins):
//  1. Defaults built into defaultConfig
//  2. An optional YAML file: $MOVIETRACKER_CONFIG, else ./config.yaml
//  3. Environment variables (PORT, DB_PATH, JWT_SECRET, TMDB_API_KEY, ...)
//
// Loading uses koanf; the result is validated before it is returned, so a
// *Config handed to the server is always usable.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// PathEnvVar names the environment variable holding the config file path.
const PathEnvVar = "MOVIETRACKER_CONFIG"

const defaultPath = "config.yaml"

// minSecretLength matches auth.NewTokenService.
const minSecretLength = 16

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Auth       AuthConfig       `koanf:"auth"`
	TMDB       TMDBConfig       `koanf:"tmdb"`
	OMDB       OMDBConfig       `koanf:"omdb"`
	Completion CompletionConfig `koanf:"completion"`
	Catalog    CatalogConfig    `koanf:"catalog"`
	Logging    LoggingConfig    `koanf:"logging"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`

	// RateLimitRequests per RateLimitWindow per client IP; 0 disables.
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
}

type DatabaseConfig struct {
	Path string `koanf:"path"`
}

type AuthConfig struct {
	JWTSecret  string        `koanf:"jwt_secret"`
	AccessTTL  time.Duration `koanf:"access_ttl"`
	RefreshTTL time.Duration `koanf:"refresh_ttl"`

	// GitHub sign-in is enabled when both client fields are set.
	GitHubClientID     string `koanf:"github_client_id"`
	GitHubClientSecret string `koanf:"github_client_secret"`
	GitHubCallbackURL  string `koanf:"github_callback_url"`
}

// TMDBConfig configures the metadata provider client.
type TMDBConfig struct {
	APIKey                  string        `koanf:"api_key"`
	BaseURL                 string        `koanf:"base_url"`
	Language                string        `koanf:"language"`
	Timeout                 time.Duration `koanf:"timeout"`
	RequestsPerSecond       float64       `koanf:"requests_per_second"`
	Burst                   int           `koanf:"burst"`
	MaxRetries              uint          `koanf:"max_retries"`
	RetryDelay              time.Duration `koanf:"retry_delay"`
	BreakerFailureThreshold uint32        `koanf:"breaker_failure_threshold"`
	BreakerOpenTimeout      time.Duration `koanf:"breaker_open_timeout"`
}

// OMDBConfig configures the ratings provider. Without a key ratings are
// simply absent.
type OMDBConfig struct {
	APIKey  string        `koanf:"api_key"`
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`
}

type CompletionConfig struct {
	APIKey  string        `koanf:"api_key"`
	BaseURL string        `koanf:"base_url"`
	Model   string        `koanf:"model"`
	Timeout time.Duration `koanf:"timeout"`
}

type CatalogConfig struct {
	// RefreshAfter is how old a movie's detail may get before a detail view
	// fetches it again.
	RefreshAfter time.Duration `koanf:"refresh_after"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // text, json
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              8080,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			ShutdownTimeout:   30 * time.Second,
			CORSOrigins:       []string{"*"},
			RateLimitRequests: 120,
			RateLimitWindow:   time.Minute,
		},
		Database: DatabaseConfig{
			Path: "data/movies.db",
		},
		Auth: AuthConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
		},
		TMDB: TMDBConfig{
			BaseURL:                 "https://api.themoviedb.org/3",
			Language:                "en-US",
			Timeout:                 10 * time.Second,
			RequestsPerSecond:       20,
			Burst:                   10,
			MaxRetries:              3,
			RetryDelay:              200 * time.Millisecond,
			BreakerFailureThreshold: 5,
			BreakerOpenTimeout:      30 * time.Second,
		},
		OMDB: OMDBConfig{
			BaseURL: "http://www.omdbapi.com/",
			Timeout: 5 * time.Second,
		},
		Completion: CompletionConfig{
			Model:   "gpt-4o-mini",
			Timeout: 30 * time.Second,
		},
		Catalog: CatalogConfig{
			RefreshAfter: 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads and validates the configuration.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: loading defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: loading %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("config: loading environment: %w", err)
	}
	if err := splitList(k, "server.cors_origins"); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(PathEnvVar); p != "" {
		return p
	}
	if _, err := os.Stat(defaultPath); err == nil {
		return defaultPath
	}
	return ""
}

// envKeys maps the supported environment variables to config paths.
// Anything else in the environment is ignored.
var envKeys = map[string]string{
	"PORT":                     "server.port",
	"CORS_ORIGINS":             "server.cors_origins",
	"RATE_LIMIT_REQUESTS":      "server.rate_limit_requests",
	"RATE_LIMIT_WINDOW":        "server.rate_limit_window",
	"DB_PATH":                  "database.path",
	"JWT_SECRET":               "auth.jwt_secret",
	"JWT_ACCESS_TTL":           "auth.access_ttl",
	"JWT_REFRESH_TTL":          "auth.refresh_ttl",
	"GITHUB_CLIENT_ID":         "auth.github_client_id",
	"GITHUB_CLIENT_SECRET":     "auth.github_client_secret",
	"GITHUB_CALLBACK_URL":      "auth.github_callback_url",
	"TMDB_API_KEY":             "tmdb.api_key",
	"TMDB_BASE_URL":            "tmdb.base_url",
	"TMDB_LANGUAGE":            "tmdb.language",
	"OMDB_API_KEY":             "omdb.api_key",
	"OMDB_BASE_URL":            "omdb.base_url",
	"COMPLETION_API_KEY":       "completion.api_key",
	"COMPLETION_BASE_URL":      "completion.base_url",
	"COMPLETION_MODEL":         "completion.model",
	"CATALOG_REFRESH_AFTER":    "catalog.refresh_after",
	"LOG_LEVEL":                "logging.level",
	"LOG_FORMAT":               "logging.format",
	"COMPLETION_TIMEOUT":       "completion.timeout",
	"TMDB_REQUESTS_PER_SECOND": "tmdb.requests_per_second",
}

// envKey returns "" for unknown variables, which koanf skips.
func envKey(name string) string {
	return envKeys[name]
}

// splitList turns a comma-separated string from the environment into a
// list. Lists from YAML are left alone.
func splitList(k *koanf.Koanf, path string) error {
	raw, ok := k.Get(path).(string)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if err := k.Set(path, out); err != nil {
		return fmt.Errorf("config: setting %s: %w", path, err)
	}
	return nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path (DB_PATH) is required"))
	}
	if len(c.Auth.JWTSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("auth.jwt_secret (JWT_SECRET) must be at least %d characters", minSecretLength))
	}
	if (c.Auth.GitHubClientID == "") != (c.Auth.GitHubClientSecret == "") {
		errs = append(errs, errors.New("auth.github_client_id and auth.github_client_secret must be set together"))
	}
	if c.TMDB.BaseURL == "" {
		errs = append(errs, errors.New("tmdb.base_url is required"))
	}

	for name, d := range map[string]time.Duration{
		"server.read_timeout":     c.Server.ReadTimeout,
		"server.write_timeout":    c.Server.WriteTimeout,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"auth.access_ttl":         c.Auth.AccessTTL,
		"auth.refresh_ttl":        c.Auth.RefreshTTL,
		"tmdb.timeout":            c.TMDB.Timeout,
		"omdb.timeout":            c.OMDB.Timeout,
		"completion.timeout":      c.Completion.Timeout,
		"catalog.refresh_after":   c.Catalog.RefreshAfter,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.Server.RateLimitRequests > 0 && c.Server.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("server.rate_limit_window must be positive when rate limiting is on"))
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}
