// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads process configuration from defaults, a YAML file,
// the environment and command-line flags, in that order of precedence.
package config

import (
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable read by Load. Sections are
// separated by a double underscore: VIDTUBE_AUTH__ACCESS_TOKEN_SECRET.
const EnvPrefix = "VIDTUBE_"

// MinSecretLength mirrors the token codec's minimum HMAC key length.
const MinSecretLength = 32

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is the process-scoped configuration, read once at startup.
type Config struct {
	HTTP    HTTPConfig    `koanf:"http"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
	Store   StoreConfig   `koanf:"store"`
	Auth    AuthConfig    `koanf:"auth"`
	Cookie  CookieConfig  `koanf:"cookie"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr            string        `koanf:"addr" jsonschema:"description=API listen address"`
	BasePath        string        `koanf:"base_path" jsonschema:"description=Route prefix for the user endpoints"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" jsonschema:"description=Grace period for in-flight requests on shutdown"`
	CORSOrigin      string        `koanf:"cors_origin" jsonschema:"description=Allowed CORS origin; empty disables CORS headers"`
}

// MetricsConfig configures the metrics and health listener.
type MetricsConfig struct {
	Addr string `koanf:"addr" jsonschema:"description=Metrics and health listen address; empty disables it"`
}

// LogConfig configures slog output.
type LogConfig struct {
	Format string `koanf:"format" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// StoreConfig selects the credential store.
type StoreConfig struct {
	Driver      string `koanf:"driver" jsonschema:"enum=postgres,enum=memory"`
	DatabaseURL string `koanf:"database_url" jsonschema:"description=PostgreSQL connection URL"`
	AutoMigrate bool   `koanf:"auto_migrate" jsonschema:"description=Apply pending migrations at startup"`
}

// AuthConfig holds the token signing keys and lifetimes.
type AuthConfig struct {
	AccessTokenSecret  string        `koanf:"access_token_secret" jsonschema:"minLength=32"`
	AccessTokenTTL     time.Duration `koanf:"access_token_ttl"`
	RefreshTokenSecret string        `koanf:"refresh_token_secret" jsonschema:"minLength=32"`
	RefreshTokenTTL    time.Duration `koanf:"refresh_token_ttl"`
	UniformLoginErrors bool          `koanf:"uniform_login_errors" jsonschema:"description=Answer unknown accounts with the same 401 as a wrong password"`
}

// CookieConfig holds the token cookie attributes.
type CookieConfig struct {
	Secure   bool   `koanf:"secure"`
	SameSite string `koanf:"same_site" jsonschema:"enum=lax,enum=strict,enum=none"`
	Domain   string `koanf:"domain"`
	Path     string `koanf:"path"`
}

// SameSiteMode returns the http.SameSite value for the configured name.
func (c CookieConfig) SameSiteMode() http.SameSite {
	switch strings.ToLower(c.SameSite) {
	case "lax":
		return http.SameSiteLaxMode
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteDefaultMode
	}
}

// defaults are loaded before any other source.
func defaults() map[string]any {
	return map[string]any{
		"http.addr":                 ":8000",
		"http.base_path":            "/api/v1/users",
		"http.shutdown_timeout":     10 * time.Second,
		"http.cors_origin":          "",
		"metrics.addr":              "127.0.0.1:9100",
		"log.format":                "json",
		"log.level":                 "info",
		"store.driver":              DriverPostgres,
		"store.database_url":        "",
		"store.auto_migrate":        false,
		"auth.access_token_secret":  "",
		"auth.access_token_ttl":     15 * time.Minute,
		"auth.refresh_token_secret": "",
		"auth.refresh_token_ttl":    10 * 24 * time.Hour,
		"auth.uniform_login_errors": false,
		"cookie.secure":             true,
		"cookie.same_site":          "none",
		"cookie.domain":             "",
		"cookie.path":               "/",
	}
}

// RegisterFlags adds the overridable settings to fs. Flag names map to keys
// by turning the first dash into a dot and the rest into underscores, so
// --auth-access-token-ttl sets auth.access_token_ttl.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("http-addr", ":8000", "API listen address")
	fs.String("http-base-path", "/api/v1/users", "route prefix for the user endpoints")
	fs.String("metrics-addr", "127.0.0.1:9100", "metrics/health HTTP address (empty = disabled)")
	fs.String("log-format", "json", "log format (json or text)")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("store-driver", DriverPostgres, "credential store driver (postgres or memory)")
	fs.String("store-database-url", "", "PostgreSQL connection URL")
	fs.Bool("store-auto-migrate", false, "apply pending migrations at startup")
	fs.Duration("auth-access-token-ttl", 15*time.Minute, "access token lifetime")
	fs.Duration("auth-refresh-token-ttl", 10*24*time.Hour, "refresh token lifetime")
	fs.Bool("auth-uniform-login-errors", false, "answer unknown accounts like a wrong password")
	fs.Bool("cookie-secure", true, "set the Secure attribute on token cookies")
	fs.String("cookie-same-site", "none", "SameSite attribute of token cookies (lax, strict, none)")
}

// flagKey maps a flag name to its koanf key.
func flagKey(name string) string {
	section, rest, ok := strings.Cut(name, "-")
	if !ok {
		return ""
	}
	return section + "." + strings.ReplaceAll(rest, "-", "_")
}

// envKey maps VIDTUBE_AUTH__ACCESS_TOKEN_SECRET to auth.access_token_secret.
func envKey(name string) string {
	name = strings.TrimPrefix(name, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(name), "__", ".")
}

var logLevels = []string{"debug", "info", "warn", "error"}

// Load reads configuration. path may be empty; flags may be nil. The YAML
// file is validated against the generated schema before it is merged.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	for key, val := range defaults() {
		if err := k.Set(key, val); err != nil {
			return nil, oops.Code("CONFIG_DEFAULTS_FAILED").With("key", key).Wrap(err)
		}
	}

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // operator-supplied config path
		if err != nil {
			return nil, oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
		}
		if err := ValidateYAML(data); err != nil {
			return nil, oops.Code("CONFIG_INVALID").
				With("path", path).
				With("violation", FormatSchemaError(err)).
				Wrapf(err, "invalid config file %s", path)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_ENV_FAILED").Wrap(err)
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key := flagKey(f.Name)
			if key == "" {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	invalid := func(key, format string, args ...any) error {
		return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
	}

	if c.HTTP.Addr == "" {
		return invalid("http.addr", "http.addr is required")
	}
	if !strings.HasPrefix(c.HTTP.BasePath, "/") {
		return invalid("http.base_path", "http.base_path must start with /")
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		return invalid("http.shutdown_timeout", "http.shutdown_timeout must be positive")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "log.format must be json or text, got %q", c.Log.Format)
	}
	if !slices.Contains(logLevels, c.Log.Level) {
		return invalid("log.level", "log.level must be one of %s, got %q", strings.Join(logLevels, ", "), c.Log.Level)
	}

	switch c.Store.Driver {
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return invalid("store.database_url", "store.database_url is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return invalid("store.driver", "store.driver must be postgres or memory, got %q", c.Store.Driver)
	}

	if len(c.Auth.AccessTokenSecret) < MinSecretLength {
		return invalid("auth.access_token_secret", "auth.access_token_secret must be at least %d bytes", MinSecretLength)
	}
	if len(c.Auth.RefreshTokenSecret) < MinSecretLength {
		return invalid("auth.refresh_token_secret", "auth.refresh_token_secret must be at least %d bytes", MinSecretLength)
	}
	if c.Auth.AccessTokenSecret == c.Auth.RefreshTokenSecret {
		return invalid("auth.refresh_token_secret", "access and refresh token secrets must differ")
	}
	if c.Auth.AccessTokenTTL <= 0 {
		return invalid("auth.access_token_ttl", "auth.access_token_ttl must be positive")
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		return invalid("auth.refresh_token_ttl", "auth.refresh_token_ttl must be positive")
	}

	if c.Cookie.SameSiteMode() == http.SameSiteDefaultMode {
		return invalid("cookie.same_site", "cookie.same_site must be lax, strict or none, got %q", c.Cookie.SameSite)
	}
	if c.Cookie.SameSiteMode() == http.SameSiteNoneMode && !c.Cookie.Secure {
		return invalid("cookie.secure", "cookie.same_site=none requires cookie.secure=true")
	}
	return nil
}
