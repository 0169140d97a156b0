package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
)

// Environment variable names.
const (
	EnvAPIKey    = "JUPITERONE_API_KEY"
	EnvAccountID = "JUPITERONE_ACCOUNT_ID"
	EnvRegion    = "JUPITERONE_REGION"
	EnvAPIURL    = "JUPITERONE_API_URL"
	EnvTimeout   = "JUPITERONE_TIMEOUT"
	EnvLogLevel  = "LOG_LEVEL"

	DefaultRegion   = "us"
	DefaultTimeout  = 30 * time.Second
	DefaultLogLevel = "info"
)

// Regions maps a region code to the base URL of that deployment.
var Regions = map[string]string{
	"us": "https://graphql.us.jupiterone.io",
	"eu": "https://graphql.eu.jupiterone.io",
}

// Config is the process-wide configuration. It is built once at startup and
// must not be modified afterwards.
type Config struct {
	APIKey    string
	AccountID string
	Region    string
	Endpoint  string
	Timeout   time.Duration
	LogLevel  zapcore.Level
}

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// FromEnv loads an optional .env file and reads the configuration from the
// process environment. Variables already set take precedence over .env.
func FromEnv() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("unable to load .env file: %w", err)
	}
	return Load(os.LookupEnv)
}

// Load builds a Config from the given lookup function.
func Load(lookup LookupFunc) (*Config, error) {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	cfg := &Config{
		APIKey:    get(EnvAPIKey),
		AccountID: get(EnvAccountID),
		Region:    strings.ToLower(get(EnvRegion)),
		Timeout:   DefaultTimeout,
	}

	if cfg.APIKey == "" {
		return nil, &Error{Name: EnvAPIKey, Reason: "not set"}
	}
	if cfg.AccountID == "" {
		return nil, &Error{Name: EnvAccountID, Reason: "not set"}
	}

	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	base, ok := Regions[cfg.Region]
	if !ok {
		return nil, &Error{Name: EnvRegion, Reason: fmt.Sprintf("unknown region %q", cfg.Region)}
	}
	cfg.Endpoint = base

	if raw := get(EnvAPIURL); raw != "" {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, &Error{Name: EnvAPIURL, Reason: "must be an absolute http(s) URL"}
		}
		cfg.Endpoint = strings.TrimRight(u.String(), "/")
	}

	if raw := get(EnvTimeout); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return nil, &Error{Name: EnvTimeout, Reason: "must be a positive duration, e.g. 30s"}
		}
		cfg.Timeout = d
	}

	level := get(EnvLogLevel)
	if level == "" {
		level = DefaultLogLevel
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, &Error{Name: EnvLogLevel, Reason: err.Error()}
	}

	return cfg, nil
}

// String masks the API key.
func (c *Config) String() string {
	return fmt.Sprintf("region=%s endpoint=%s account=%s timeout=%s api_key=%s",
		c.Region, c.Endpoint, c.AccountID, c.Timeout, mask(c.APIKey))
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (c *Config) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("region", c.Region)
	enc.AddString("endpoint", c.Endpoint)
	enc.AddString("account_id", c.AccountID)
	enc.AddDuration("timeout", c.Timeout)
	enc.AddString("api_key", mask(c.APIKey))
	return nil
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "[redacted]"
}
