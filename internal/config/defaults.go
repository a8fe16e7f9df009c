package config

import "time"

const (
	defaultOutputDir      = "out"
	defaultDialTimeout    = 10 * time.Second
	defaultPublishTimeout = 15 * time.Second
	defaultQueryTimeout   = 20 * time.Second
	defaultQueryBatch     = 500
	defaultRate           = 50
	defaultNATSSubject    = "scriptorium.runs"
	defaultQCInterval     = time.Hour
	defaultDebounce       = 2 * time.Second
	defaultMetricsFile    = "metrics/scriptorium.prom"
)

// applyDefaults fills unset fields. Enumerations are normalized first so that
// canonical values drive the defaults.
func applyDefaults(cfg *Config) {
	if cfg.Relay.URL == "" {
		cfg.Relay.URL = DefaultRelay
	}
	if cfg.Relay.DialTimeout <= 0 {
		cfg.Relay.DialTimeout = defaultDialTimeout
	}
	if cfg.Relay.PublishTimeout <= 0 {
		cfg.Relay.PublishTimeout = defaultPublishTimeout
	}
	if cfg.Relay.QueryTimeout <= 0 {
		cfg.Relay.QueryTimeout = defaultQueryTimeout
	}
	if cfg.Relay.QueryBatch <= 0 {
		cfg.Relay.QueryBatch = defaultQueryBatch
	}
	if cfg.Relay.Rate < 0 {
		cfg.Relay.Rate = 0
	} else if cfg.Relay.Rate == 0 {
		cfg.Relay.Rate = defaultRate
	}

	if cfg.Output.Directory == "" {
		cfg.Output.Directory = defaultOutputDir
	}

	if cfg.Retry.Backoff == "" {
		cfg.Retry.Backoff = RetryBackoffLinear
	} else if m := NormalizeRetryBackoff(string(cfg.Retry.Backoff)); m != "" {
		cfg.Retry.Backoff = m
	}
	if cfg.Retry.Initial <= 0 {
		cfg.Retry.Initial = time.Second
	}
	if cfg.Retry.Max <= 0 {
		cfg.Retry.Max = 30 * time.Second
	}
	if cfg.Retry.MaxRetries < 0 {
		cfg.Retry.MaxRetries = 0
	} else if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = 2
	}

	cfg.Logging.Level = NormalizeLogLevel(string(cfg.Logging.Level))
	cfg.Logging.Format = NormalizeLogFormat(string(cfg.Logging.Format))

	if cfg.Metrics.Enabled && cfg.Metrics.Textfile == "" {
		cfg.Metrics.Textfile = defaultMetricsFile
	}
	if cfg.Notify.Subject == "" {
		cfg.Notify.Subject = defaultNATSSubject
	}
	if cfg.Daemon.QCInterval <= 0 {
		cfg.Daemon.QCInterval = defaultQCInterval
	}
	if cfg.Daemon.Debounce <= 0 {
		cfg.Daemon.Debounce = defaultDebounce
	}
}
