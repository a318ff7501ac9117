package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/lcalzada-xor/fleetmap/internal/adapters/web/middleware"
	"github.com/lcalzada-xor/fleetmap/internal/logger"
	"github.com/lcalzada-xor/fleetmap/internal/telemetry"
)

// ConfigPathEnv names the optional YAML config file.
const ConfigPathEnv = "FLEETMAP_CONFIG"

// Config holds all application configuration.
type Config struct {
	Addr           string   `yaml:"addr" env:"FLEETMAP_ADDR" env-default:":8080"`
	GRPCPort       int      `yaml:"grpc_port" env:"FLEETMAP_GRPC" env-default:"9000"`
	MockMode       bool     `yaml:"mock" env:"FLEETMAP_MOCK"`
	MockFixture    string   `yaml:"mock_fixture" env:"FLEETMAP_MOCK_FIXTURE"`
	DBPath         string   `yaml:"db" env:"FLEETMAP_DB"`
	Latitude       float64  `yaml:"lat" env:"FLEETMAP_LAT" env-default:"40.4168"`
	Longitude      float64  `yaml:"lng" env:"FLEETMAP_LNG" env-default:"-3.7038"`
	EagerHierarchy bool     `yaml:"eager_hierarchy" env:"FLEETMAP_EAGER_HIERARCHY"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"FLEETMAP_ALLOWED_ORIGINS" env-separator:","`
	// TrustedProxies are the addresses or CIDR ranges allowed to name the
	// operator in X-Forwarded-User. Empty trusts no one.
	TrustedProxies []string `yaml:"trusted_proxies" env:"FLEETMAP_TRUSTED_PROXIES" env-separator:","`

	Directory DirectoryConfig       `yaml:"directory"`
	Probe     ProbeConfig           `yaml:"probe"`
	Kafka     KafkaConfig           `yaml:"kafka"`
	Log       logger.Config         `yaml:"log"`
	Trace     telemetry.TraceConfig `yaml:"trace"`
}

// DirectoryConfig points at the Device Directory Service.
type DirectoryConfig struct {
	BaseURL            string        `yaml:"base_url" env:"FLEETMAP_DIRECTORY_URL" env-default:"http://localhost:8000/api"`
	Token              string        `yaml:"token" env:"FLEETMAP_DIRECTORY_TOKEN"`
	Timeout            time.Duration `yaml:"timeout" env:"FLEETMAP_DIRECTORY_TIMEOUT" env-default:"15s"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify" env:"FLEETMAP_DIRECTORY_INSECURE"`
}

// ProbeConfig tunes the probe dispatcher.
type ProbeConfig struct {
	PollInterval time.Duration `yaml:"poll_interval" env:"FLEETMAP_POLL_INTERVAL" env-default:"2s"`
	TaskTimeout  time.Duration `yaml:"task_timeout" env:"FLEETMAP_TASK_TIMEOUT" env-default:"5m"`
	// RateLimit is the number of manual probes a client may issue per minute.
	RateLimit int `yaml:"rate_limit" env:"FLEETMAP_PROBE_RATE_LIMIT" env-default:"30"`
}

// KafkaConfig enables the status-change feed when Brokers is not empty.
type KafkaConfig struct {
	Brokers       []string      `yaml:"brokers" env:"FLEETMAP_KAFKA_BROKERS" env-separator:","`
	Topic         string        `yaml:"topic" env:"FLEETMAP_KAFKA_TOPIC" env-default:"fleetmap.status"`
	FlushInterval time.Duration `yaml:"flush_interval" env:"FLEETMAP_KAFKA_FLUSH" env-default:"2s"`
}

// Enabled reports whether a broker is configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// Load reads .env, the optional YAML file and environment variables, then applies
// command line flags. Flags take precedence over environment variables.
func Load(args []string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := &Config{}
	if path := os.Getenv(ConfigPathEnv); path != "" {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	if err := cfg.parseFlags(args); err != nil {
		return nil, err
	}

	if cfg.DBPath == "" {
		cfg.DBPath = getDefaultDBPath()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) parseFlags(args []string) error {
	fs := flag.NewFlagSet("fleetmap", flag.ContinueOnError)

	origins := strings.Join(cfg.AllowedOrigins, ",")
	proxies := strings.Join(cfg.TrustedProxies, ",")
	brokers := strings.Join(cfg.Kafka.Brokers, ",")

	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP server address")
	fs.IntVar(&cfg.GRPCPort, "grpc", cfg.GRPCPort, "gRPC health server port")
	fs.BoolVar(&cfg.MockMode, "mock", cfg.MockMode, "Run against a simulated directory")
	fs.StringVar(&cfg.MockFixture, "mock-fixture", cfg.MockFixture, "YAML topology fixture for mock mode")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to SQLite audit database")
	fs.Float64Var(&cfg.Latitude, "lat", cfg.Latitude, "Default map center latitude")
	fs.Float64Var(&cfg.Longitude, "lng", cfg.Longitude, "Default map center longitude")
	fs.BoolVar(&cfg.EagerHierarchy, "eager-hierarchy", cfg.EagerHierarchy, "Expand every datacenter at startup")
	fs.StringVar(&origins, "origins", origins, "Allowed WebSocket origins (comma separated)")
	fs.StringVar(&proxies, "trusted-proxies", proxies, "Proxies allowed to set X-Forwarded-User (comma separated IPs or CIDRs)")
	fs.StringVar(&cfg.Directory.BaseURL, "directory", cfg.Directory.BaseURL, "Device Directory Service base URL")
	fs.DurationVar(&cfg.Directory.Timeout, "directory-timeout", cfg.Directory.Timeout, "Directory request timeout")
	fs.DurationVar(&cfg.Probe.PollInterval, "poll-interval", cfg.Probe.PollInterval, "Async probe task poll interval")
	fs.DurationVar(&cfg.Probe.TaskTimeout, "task-timeout", cfg.Probe.TaskTimeout, "Give up on async probe tasks after this long")
	fs.StringVar(&brokers, "kafka", brokers, "Kafka brokers for the status feed (comma separated)")
	fs.BoolVar(&cfg.Log.Debug, "debug", cfg.Log.Debug, "Enable verbose debug logging")
	fs.StringVar(&cfg.Trace.Exporter, "trace-exporter", cfg.Trace.Exporter, "Span exporter: stdout or none")
	fs.Float64Var(&cfg.Trace.SampleRatio, "trace-sample", cfg.Trace.SampleRatio, "Fraction of traces to sample")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg.AllowedOrigins = splitList(origins)
	cfg.TrustedProxies = splitList(proxies)
	cfg.Kafka.Brokers = splitList(brokers)
	return nil
}

// Validate checks values that would otherwise fail late.
func (cfg *Config) Validate() error {
	if _, err := middleware.ParseTrustedProxies(cfg.TrustedProxies); err != nil {
		return err
	}
	if err := cfg.Trace.Validate(); err != nil {
		return err
	}
	if cfg.MockMode {
		return validateProbe(cfg.Probe)
	}
	u, err := url.Parse(cfg.Directory.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid directory url %q", cfg.Directory.BaseURL)
	}
	return validateProbe(cfg.Probe)
}

func validateProbe(p ProbeConfig) error {
	if p.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	if p.TaskTimeout < p.PollInterval {
		return errors.New("task timeout must be at least one poll interval")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// getDefaultDBPath returns the default database path in the user's home directory.
func getDefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "fleetmap.db"
	}

	dir := filepath.Join(home, ".fleetmap")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "fleetmap.db"
	}

	return filepath.Join(dir, "fleetmap.db")
}
