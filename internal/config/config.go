package config

import (
	"time"
)

// DefaultRelay is used when neither the config file nor the environment names a relay.
const DefaultRelay = "wss://thecitadel.nostr1.com"

// Config is the operator configuration shared by every scriptorium command.
type Config struct {
	Relay   RelayConfig   `yaml:"relay"`
	Source  SourceConfig  `yaml:"source"`
	Output  OutputConfig  `yaml:"output"`
	Retry   RetryConfig   `yaml:"retry"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Notify  NotifyConfig  `yaml:"notify"`
	Daemon  DaemonConfig  `yaml:"daemon"`

	// SecretKey is only ever read from SCRIPTORIUM_KEY (nsec bech32 or 64 hex).
	SecretKey string `yaml:"-"`
}

// RelayConfig describes the relay records are published to and reconciled against.
type RelayConfig struct {
	URL            string        `yaml:"url"`
	Hint           string        `yaml:"hint"`            // relay hint written into a-tags; defaults to URL
	DialTimeout    time.Duration `yaml:"dial_timeout"`    // websocket handshake bound
	PublishTimeout time.Duration `yaml:"publish_timeout"` // wait for OK per record
	QueryTimeout   time.Duration `yaml:"query_timeout"`   // wait for EOSE per REQ
	QueryBatch     int           `yaml:"query_batch"`     // #d values per REQ filter
	Rate           float64       `yaml:"rate"`            // records per second; negative disables pacing
}

// SourceConfig selects the source adapter used by generate.
type SourceConfig struct {
	Type      SourceType `yaml:"type"`
	ASCIIOnly bool       `yaml:"ascii_only"`
}

// OutputConfig holds the artifact directory.
type OutputConfig struct {
	Directory string `yaml:"directory"`
}

// RetryConfig bounds transport retries during publish and repair.
type RetryConfig struct {
	Backoff    RetryBackoffMode `yaml:"backoff"`
	Initial    time.Duration    `yaml:"initial"`
	Max        time.Duration    `yaml:"max"`
	MaxRetries int              `yaml:"max_retries"`
}

// LoggingConfig configures the slog handler installed by the CLI.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// MetricsConfig controls the prometheus textfile export written after each run.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Textfile string `yaml:"textfile"` // relative paths resolve inside the output directory
}

// NotifyConfig configures optional run report notifications over NATS.
type NotifyConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// Enabled reports whether a NATS server was configured.
func (n NotifyConfig) Enabled() bool { return n.NATSURL != "" }

// DaemonConfig configures the long running daemon command.
type DaemonConfig struct {
	QCInterval time.Duration `yaml:"qc_interval"` // periodic qc cadence
	Repair     bool          `yaml:"repair"`      // republish missing records during scheduled qc
	Watch      bool          `yaml:"watch"`       // regenerate and publish when the input changes
	Debounce   time.Duration `yaml:"debounce"`
}

// RelayHint returns the relay hint used for a-tags.
func (c *Config) RelayHint() string {
	if c.Relay.Hint != "" {
		return c.Relay.Hint
	}
	return c.Relay.URL
}
