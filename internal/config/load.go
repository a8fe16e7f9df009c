package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	ferrors "github.com/Silberengel/scriptorium/internal/foundation/errors"
)

// Environment variables recognised by Load. They take precedence over the config file.
const (
	EnvKey            = "SCRIPTORIUM_KEY"
	EnvRelay          = "SCRIPTORIUM_RELAY"
	EnvSource         = "SCRIPTORIUM_SOURCE"
	EnvOut            = "SCRIPTORIUM_OUT"
	EnvMaxBatch       = "SCRIPTORIUM_MAX_BATCH"
	EnvRate           = "SCRIPTORIUM_RATE"
	EnvMaxRetries     = "SCRIPTORIUM_MAX_RETRIES"
	EnvRetryBackoff   = "SCRIPTORIUM_RETRY_BACKOFF"
	EnvPublishTimeout = "SCRIPTORIUM_PUBLISH_TIMEOUT"
	EnvLogLevel       = "SCRIPTORIUM_LOG_LEVEL"
	EnvMetricsFile    = "SCRIPTORIUM_METRICS_FILE"
	EnvNATSURL        = "SCRIPTORIUM_NATS_URL"
	EnvNATSSubject    = "SCRIPTORIUM_NATS_SUBJECT"
	EnvQCInterval     = "SCRIPTORIUM_QC_INTERVAL"
)

// envFiles are tried in order; values already present in the process environment win.
var envFiles = []string{".env", ".env.local"}

// Load reads configuration from an optional YAML file, .env files and the environment.
// An empty configPath, or a path that does not exist, yields defaults plus environment.
func Load(configPath string) (*Config, error) {
	loadEnvFiles()

	var cfg Config
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			slog.Debug("Config file not found, using defaults", "path", configPath)
		case err != nil:
			return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to read config file").
				WithContext("path", configPath).Build()
		default:
			expanded := os.ExpandEnv(string(data))
			if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
				return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to parse config file").
					Fatal().WithContext("path", configPath).Build()
			}
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnvFiles() {
	for _, name := range envFiles {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		if err := godotenv.Load(name); err != nil {
			slog.Warn("Failed to load env file", "path", name, "error", err)
			continue
		}
		slog.Debug("Loaded environment variables", "path", name)
		return
	}
}

func applyEnv(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv(EnvKey)); v != "" {
		cfg.SecretKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvRelay)); v != "" {
		cfg.Relay.URL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvSource)); v != "" {
		cfg.Source.Type = SourceType(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvOut)); v != "" {
		cfg.Output.Directory = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvRetryBackoff)); v != "" {
		cfg.Retry.Backoff = RetryBackoffMode(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = LogLevel(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvMetricsFile)); v != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Textfile = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvNATSURL)); v != "" {
		cfg.Notify.NATSURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvNATSSubject)); v != "" {
		cfg.Notify.Subject = v
	}

	var err error
	if cfg.Relay.QueryBatch, err = envInt(EnvMaxBatch, cfg.Relay.QueryBatch); err != nil {
		return err
	}
	if cfg.Retry.MaxRetries, err = envInt(EnvMaxRetries, cfg.Retry.MaxRetries); err != nil {
		return err
	}
	if cfg.Relay.PublishTimeout, err = envDuration(EnvPublishTimeout, cfg.Relay.PublishTimeout); err != nil {
		return err
	}
	if cfg.Daemon.QCInterval, err = envDuration(EnvQCInterval, cfg.Daemon.QCInterval); err != nil {
		return err
	}
	if v := strings.TrimSpace(os.Getenv(EnvRate)); v != "" {
		rate, perr := strconv.ParseFloat(v, 64)
		if perr != nil {
			return envError(EnvRate, v, perr)
		}
		cfg.Relay.Rate = rate
	}
	return nil
}

func envInt(name string, current int) (int, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return current, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return current, envError(name, v, err)
	}
	return n, nil
}

func envDuration(name string, current time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return current, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return current, envError(name, v, err)
	}
	return d, nil
}

func envError(name, value string, err error) error {
	return ferrors.WrapError(err, ferrors.CategoryConfig, fmt.Sprintf("invalid %s", name)).
		Fatal().WithContext("value", value).Build()
}
