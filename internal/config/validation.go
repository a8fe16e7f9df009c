package config

import (
	"net/url"
	"strings"

	ferrors "github.com/Silberengel/scriptorium/internal/foundation/errors"
)

// Validate checks the configuration after defaults were applied. It also
// canonicalizes the source type.
func Validate(cfg *Config) error {
	u, err := url.Parse(cfg.Relay.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return ferrors.ConfigError("relay url must be a ws:// or wss:// address").
			WithContext("relay", cfg.Relay.URL).Build()
	}

	st, err := ParseSourceType(string(cfg.Source.Type))
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "unsupported source type").
			Fatal().WithContext("source", string(cfg.Source.Type)).Build()
	}
	cfg.Source.Type = st

	if NormalizeRetryBackoff(string(cfg.Retry.Backoff)) == "" {
		return ferrors.ConfigError("unknown retry backoff mode").
			WithContext("backoff", string(cfg.Retry.Backoff)).Build()
	}
	if cfg.Retry.Initial > cfg.Retry.Max {
		return ferrors.ConfigError("retry initial delay exceeds maximum delay").
			WithContext("initial", cfg.Retry.Initial.String()).
			WithContext("max", cfg.Retry.Max.String()).Build()
	}

	if cfg.Notify.Enabled() && strings.TrimSpace(cfg.Notify.Subject) == "" {
		return ferrors.ConfigError("nats subject must not be empty").Build()
	}
	return nil
}

// RequireKey reports a ConfigError when no signing key was provided. Only
// commands that sign records call it.
func (c *Config) RequireKey() error {
	if strings.TrimSpace(c.SecretKey) == "" {
		return ferrors.ConfigError("missing " + EnvKey + " in environment").Build()
	}
	return nil
}
